package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/agencyhub-backend/internal/contracts"
	"github.com/angelmondragon/agencyhub-backend/internal/notifications"
	pkgAuth "github.com/angelmondragon/agencyhub-backend/pkg/auth"
	"github.com/angelmondragon/agencyhub-backend/pkg/config"
	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
	"github.com/angelmondragon/agencyhub-backend/pkg/logger"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type memoryRedis struct {
	data   map[string]string
	counts map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string { return "ah:idempotency:" + scope + ":" + id }

func (m *memoryRedis) Ping(context.Context) error { return nil }

func (m *memoryRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.counts[scope]++
	return m.counts[scope] <= limit, m.counts[scope], nil
}

type stubContracts struct {
	contracts.Service
	created   int
	lastInput contracts.CreateContractInput
	signed    contracts.SignatureInput
	party     enums.SigningParty
	update    contracts.ContractUpdate
	filters   contracts.ListFilters
}

func (s *stubContracts) Create(_ context.Context, input contracts.CreateContractInput) (*contracts.ContractDTO, error) {
	s.created++
	s.lastInput = input
	return &contracts.ContractDTO{ID: uuid.New(), ContractNumber: "CTR-2025-000001", Status: enums.ContractStatusDraft}, nil
}

func (s *stubContracts) GetByID(context.Context, uuid.UUID) (*contracts.ContractDTO, error) {
	return nil, nil
}

func (s *stubContracts) GetAll(_ context.Context, filters contracts.ListFilters) (*contracts.ListResult, error) {
	s.filters = filters
	return &contracts.ListResult{Contracts: []contracts.ContractDTO{}}, nil
}

func (s *stubContracts) Update(_ context.Context, id uuid.UUID, update contracts.ContractUpdate, _ uuid.UUID) (*contracts.ContractDTO, error) {
	s.update = update
	return &contracts.ContractDTO{ID: id}, nil
}

func (s *stubContracts) Sign(_ context.Context, id uuid.UUID, party enums.SigningParty, signature contracts.SignatureInput, _ uuid.UUID) (*contracts.ContractDTO, error) {
	s.party = party
	s.signed = signature
	return &contracts.ContractDTO{ID: id}, nil
}

func (s *stubContracts) Delete(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return false, nil
}

type stubNotifications struct {
	notifications.Service
	params notifications.ListParams
}

func (s *stubNotifications) List(_ context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	s.params = params
	return &notifications.ListResult{Items: []notifications.NotificationDTO{}}, nil
}

type routerFixture struct {
	handler       http.Handler
	cfg           *config.Config
	contracts     *stubContracts
	notifications *stubNotifications
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	cfg := &config.Config{
		App:       config.AppConfig{Env: "test"},
		JWT:       config.JWTConfig{Secret: "secret", Issuer: "agencyhub", ExpirationMinutes: 30},
		RateLimit: config.RateLimitConfig{Window: time.Minute, UserLimit: 100},
	}
	fx := &routerFixture{
		cfg:           cfg,
		contracts:     &stubContracts{},
		notifications: &stubNotifications{},
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	logg := logger.New(logger.Options{ServiceName: "router-test", Output: &bytes.Buffer{}})
	fx.handler = NewRouter(cfg, logg, stubPinger{}, newMemoryRedis(), metrics, fx.contracts, fx.notifications)
	return fx
}

func (fx *routerFixture) token(t *testing.T, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(fx.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	require.NoError(t, err)
	return token
}

func (fx *routerFixture) do(t *testing.T, method, path, token, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	fx.handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	fx := newRouterFixture(t)

	live := fx.do(t, http.MethodGet, "/health/live", "", "", nil)
	assert.Equal(t, http.StatusOK, live.Code)
	assert.Equal(t, "test", live.Header().Get("X-AgencyHub-Env"))
	assert.NotEmpty(t, live.Header().Get("X-Request-Id"))

	ready := fx.do(t, http.MethodGet, "/health/ready", "", "", nil)
	assert.Equal(t, http.StatusOK, ready.Code)

	metrics := fx.do(t, http.MethodGet, "/metrics", "", "", nil)
	assert.Equal(t, http.StatusOK, metrics.Code)
}

func TestContractsRequireAuthentication(t *testing.T) {
	fx := newRouterFixture(t)

	resp := fx.do(t, http.MethodGet, "/api/v1/contracts", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestViewerCannotCreateContracts(t *testing.T) {
	fx := newRouterFixture(t)

	resp := fx.do(t, http.MethodPost, "/api/v1/contracts", fx.token(t, enums.UserRoleViewer), `{}`, map[string]string{"Idempotency-Key": "k1"})
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Zero(t, fx.contracts.created)
}

func TestCreateContractIsIdempotent(t *testing.T) {
	fx := newRouterFixture(t)
	token := fx.token(t, enums.UserRoleManager)
	body := `{"contract_type":"service","title":"Summer residency"}`

	missing := fx.do(t, http.MethodPost, "/api/v1/contracts", token, body, nil)
	assert.Equal(t, http.StatusBadRequest, missing.Code)

	first := fx.do(t, http.MethodPost, "/api/v1/contracts", token, body, map[string]string{"Idempotency-Key": "create-1"})
	require.Equal(t, http.StatusCreated, first.Code)
	replay := fx.do(t, http.MethodPost, "/api/v1/contracts", token, body, map[string]string{"Idempotency-Key": "create-1"})
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, first.Body.String(), replay.Body.String())
	assert.Equal(t, 1, fx.contracts.created)
	assert.NotEqual(t, uuid.Nil, fx.contracts.lastInput.CreatedBy)
	assert.Equal(t, enums.ContractTypeService, fx.contracts.lastInput.ContractType)
}

func TestGetMissingContractIsNotFound(t *testing.T) {
	fx := newRouterFixture(t)

	resp := fx.do(t, http.MethodGet, "/api/v1/contracts/"+uuid.NewString(), fx.token(t, enums.UserRoleViewer), "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	bad := fx.do(t, http.MethodGet, "/api/v1/contracts/not-a-uuid", fx.token(t, enums.UserRoleViewer), "", nil)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestDeleteRequiresAdminAndReportsMissing(t *testing.T) {
	fx := newRouterFixture(t)
	path := "/api/v1/contracts/" + uuid.NewString()

	forbidden := fx.do(t, http.MethodDelete, path, fx.token(t, enums.UserRoleManager), "", nil)
	assert.Equal(t, http.StatusForbidden, forbidden.Code)

	missing := fx.do(t, http.MethodDelete, path, fx.token(t, enums.UserRoleAdmin), "", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestListParsesFilters(t *testing.T) {
	fx := newRouterFixture(t)
	clientID := uuid.New()

	resp := fx.do(t, http.MethodGet, "/api/v1/contracts?page=2&limit=500&status=active&client_id="+clientID.String()+"&search=%20gala%20", fx.token(t, enums.UserRoleViewer), "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 2, fx.contracts.filters.Page)
	assert.Equal(t, 500, fx.contracts.filters.Limit)
	assert.Equal(t, enums.ContractStatusActive, fx.contracts.filters.Status)
	require.NotNil(t, fx.contracts.filters.ClientID)
	assert.Equal(t, clientID, *fx.contracts.filters.ClientID)
	assert.Equal(t, "gala", fx.contracts.filters.Search)

	var envelope struct {
		Data struct {
			Contracts  []any          `json:"contracts"`
			Pagination map[string]any `json:"pagination"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Contains(t, envelope.Data.Pagination, "currentPage")
}

func TestPatchIgnoresUnknownKeys(t *testing.T) {
	fx := newRouterFixture(t)

	resp := fx.do(t, http.MethodPatch, "/api/v1/contracts/"+uuid.NewString(), fx.token(t, enums.UserRoleManager),
		`{"title":"Renamed residency","status":"signed","contract_number":"X"}`, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []string{"title"}, fx.contracts.update.Fields())
}

func TestSignCapturesRequestMetadata(t *testing.T) {
	fx := newRouterFixture(t)

	resp := fx.do(t, http.MethodPost, "/api/v1/contracts/"+uuid.NewString()+"/sign", fx.token(t, enums.UserRoleManager),
		`{"party":"b","signature":"data:image/png;base64,iVBORw0KGgo"}`,
		map[string]string{"Idempotency-Key": "sign-1", "User-Agent": "agency-tablet/1.0", "X-Forwarded-For": "198.51.100.7"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, enums.SigningPartyB, fx.contracts.party)
	assert.Equal(t, "198.51.100.7", fx.contracts.signed.IPAddress)
	assert.Equal(t, "agency-tablet/1.0", fx.contracts.signed.UserAgent)
	assert.NotEqual(t, uuid.Nil, fx.contracts.signed.SignerID)
	assert.False(t, fx.contracts.signed.Timestamp.IsZero())
}

func TestNotificationsListUsesCaller(t *testing.T) {
	fx := newRouterFixture(t)

	resp := fx.do(t, http.MethodGet, "/api/v1/notifications?unreadOnly=true&page=3", fx.token(t, enums.UserRoleViewer), "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotEqual(t, uuid.Nil, fx.notifications.params.UserID)
	assert.True(t, fx.notifications.params.UnreadOnly)
	assert.Equal(t, 3, fx.notifications.params.Page)
}
