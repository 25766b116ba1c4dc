package contracts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/agencyhub-backend/pkg/config"
	dbpkg "github.com/angelmondragon/agencyhub-backend/pkg/db"
	"github.com/angelmondragon/agencyhub-backend/pkg/db/models"
	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
	"github.com/angelmondragon/agencyhub-backend/pkg/logger"
	"github.com/angelmondragon/agencyhub-backend/pkg/metrics"
	"github.com/angelmondragon/agencyhub-backend/pkg/outbox"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sequenceStub struct {
	mu       sync.Mutex
	counters map[string]int64
	err      error
}

func newSequenceStub() *sequenceStub {
	return &sequenceStub{counters: map[string]int64{}}
}

func (s *sequenceStub) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.counters[key]++
	return s.counters[key], nil
}

func (s *sequenceStub) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.counters[key] += delta
	return s.counters[key], nil
}

func (s *sequenceStub) CounterKey(name string) string {
	return "ah:counter:" + name
}

// fixedNumbers always offers the same contract number.
type fixedNumbers string

func (n fixedNumbers) Next(context.Context, time.Time) (string, error) { return string(n), nil }

func (n fixedNumbers) Resync(context.Context, time.Time) (string, error) { return string(n), nil }

// numberIndexStub reports a fixed highest number per prefix.
type numberIndexStub struct {
	highest map[string]string
	err     error
}

func (s numberIndexStub) HighestNumber(_ context.Context, prefix string) (string, error) {
	return s.highest[prefix], s.err
}

type storeFixture struct {
	svc      Service
	client   *dbpkg.Client
	clock    *testClock
	seq      *sequenceStub
	registry *prometheus.Registry
	logs     *bytes.Buffer
	user     models.User
}

func newTestDB(t *testing.T) *dbpkg.Client {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	client, err := dbpkg.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.DB().AutoMigrate(models.All()...))
	return client
}

func newFixture(t *testing.T) *storeFixture {
	t.Helper()
	client := newTestDB(t)

	user := models.User{Email: "manager@agencyhub.test", Name: "Marta Manager"}
	require.NoError(t, client.DB().Create(&user).Error)

	clock := &testClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	seq := newSequenceStub()
	repo := NewRepository(client.DB())
	numbers, err := NewNumberGenerator(seq, repo, "CTR")
	require.NoError(t, err)

	logs := &bytes.Buffer{}
	registry := prometheus.NewRegistry()
	svc, err := NewService(ServiceParams{
		Repository: repo,
		DB:         client,
		Outbox:     outbox.NewService(outbox.NewRepository(client.DB()), nil),
		Numbers:    numbers,
		Logger:     logger.New(logger.Options{ServiceName: "contracts-test", Output: logs}),
		Metrics:    metrics.NewContractMetrics(registry),
		Config:     config.ContractsConfig{DefaultPageLimit: 20, MaxPageLimit: 100, ExpiringSoonDays: 30, DefaultCurrency: "EUR"},
		Now:        clock.Now,
	})
	require.NoError(t, err)

	return &storeFixture{
		svc:      svc,
		client:   client,
		clock:    clock,
		seq:      seq,
		registry: registry,
		logs:     logs,
		user:     user,
	}
}

func validCreateInput(createdBy uuid.UUID) CreateContractInput {
	return CreateContractInput{
		ContractType:  enums.ContractTypeService,
		PartyAName:    "Agency Hub SL",
		PartyALegalID: "B12345678",
		PartyAAddress: "Calle Mayor 1, 28013 Madrid",
		PartyBName:    "DJ Nova",
		PartyBLegalID: "X1234567L",
		PartyBAddress: "Avenida del Puerto 22, Valencia",
		Title:         "Summer residency 2025",
		Content:       strings.Repeat("The artist performs the agreed sets. ", 3),
		TotalAmount:   decimal.RequireFromString("1500.00"),
		StartDate:     "2025-01-01",
		CreatedBy:     createdBy,
	}
}

func validSignature(signer uuid.UUID, at time.Time) SignatureInput {
	return SignatureInput{
		Signature: strings.Repeat("c2lnbmF0dXJl", 6),
		IPAddress: "203.0.113.10",
		UserAgent: "Mozilla/5.0",
		SignerID:  signer,
		Timestamp: at,
	}
}

func (f *storeFixture) create(t *testing.T, mutate func(*CreateContractInput)) *ContractDTO {
	t.Helper()
	input := validCreateInput(f.user.ID)
	if mutate != nil {
		mutate(&input)
	}
	contract, err := f.svc.Create(context.Background(), input)
	require.NoError(t, err)
	return contract
}

func (f *storeFixture) historyCount(t *testing.T, contractID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.client.DB().Model(&models.ContractHistory{}).Where("contract_id = ?", contractID).Count(&count).Error)
	return count
}

func (f *storeFixture) outboxTypes(t *testing.T, contractID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.client.DB().Where("aggregate_id = ?", contractID).Order("created_at ASC").Find(&rows).Error)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}

func (f *storeFixture) mutationCount(t *testing.T, operation, outcome string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "agencyhub_contract_mutations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelValue(m, "operation") == operation && labelValue(m, "outcome") == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelValue(m *dto.Metric, name string) string {
	for _, label := range m.GetLabel() {
		if label.GetName() == name {
			return label.GetValue()
		}
	}
	return ""
}

// failHistoryInserts makes every contract_history insert fail until the test ends.
func failHistoryInserts(t *testing.T, conn *gorm.DB) {
	t.Helper()
	name := "test:fail_history_inserts"
	err := conn.Callback().Create().Before("gorm:create").Register(name, func(tx *gorm.DB) {
		if tx.Statement.Table == "contract_history" {
			_ = tx.AddError(errors.New("simulated history insert failure"))
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Callback().Create().Remove(name) })
}
