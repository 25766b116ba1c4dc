package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const consumerName = "contract-notifications"

// claimStore keeps SetNX claims in memory, like redis would.
type claimStore struct {
	claims map[string]any
	ttls   map[string]time.Duration
	err    error
}

func newClaimStore() *claimStore {
	return &claimStore{claims: map[string]any{}, ttls: map[string]time.Duration{}}
}

func (s *claimStore) Get(context.Context, string) (string, error) { return "", nil }

func (s *claimStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if _, taken := s.claims[key]; taken {
		return false, nil
	}
	s.claims[key] = value
	s.ttls[key] = ttl
	return true, nil
}

func (s *claimStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.claims, key)
	}
	return nil
}

func (s *claimStore) IdempotencyKey(scope, id string) string {
	return "ah:idempotency:" + scope + ":" + id
}

func processedKey(id uuid.UUID) string {
	return "ah:idempotency:evt:processed:" + consumerName + ":" + id.String()
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(nil, time.Hour)
	assert.Error(t, err)

	_, err = NewManager(newClaimStore(), -time.Second)
	assert.Error(t, err)

	m, err := NewManager(newClaimStore(), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, m.ttl)
}

func TestDuplicateDeliveryIsDetected(t *testing.T) {
	store := newClaimStore()
	m, err := NewManager(store, 6*time.Hour)
	require.NoError(t, err)
	m.now = func() time.Time { return time.Date(2025, 3, 10, 8, 0, 0, 0, time.FixedZone("CET", 3600)) }
	ctx := context.Background()
	eventID := uuid.New()

	seen, err := m.CheckAndMarkProcessed(ctx, consumerName, eventID)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = m.CheckAndMarkProcessed(ctx, consumerName, eventID)
	require.NoError(t, err)
	assert.True(t, seen)

	key := processedKey(eventID)
	assert.Equal(t, "2025-03-10T07:00:00Z", store.claims[key])
	assert.Equal(t, 6*time.Hour, store.ttls[key])
}

func TestClaimsAreScopedPerConsumer(t *testing.T) {
	m, err := NewManager(newClaimStore(), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	for _, consumer := range []string{consumerName, "contract-audit"} {
		seen, err := m.CheckAndMarkProcessed(ctx, consumer, eventID)
		require.NoError(t, err)
		assert.False(t, seen, consumer)
	}
}

func TestReleaseAllowsRedelivery(t *testing.T) {
	store := newClaimStore()
	m, err := NewManager(store, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	_, err = m.CheckAndMarkProcessed(ctx, consumerName, eventID)
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, consumerName, eventID))
	assert.NotContains(t, store.claims, processedKey(eventID))

	seen, err := m.CheckAndMarkProcessed(ctx, consumerName, eventID)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestManagerRejectsIncompleteKeys(t *testing.T) {
	m, err := NewManager(newClaimStore(), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = m.CheckAndMarkProcessed(ctx, "", uuid.New())
	assert.Error(t, err)
	_, err = m.CheckAndMarkProcessed(ctx, consumerName, uuid.Nil)
	assert.Error(t, err)
	assert.Error(t, m.Release(ctx, "", uuid.New()))
}

func TestStoreErrorsPropagate(t *testing.T) {
	store := newClaimStore()
	store.err = errors.New("redis unavailable")
	m, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	_, err = m.CheckAndMarkProcessed(context.Background(), consumerName, uuid.New())
	assert.EqualError(t, err, "redis unavailable")
}
