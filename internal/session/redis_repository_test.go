package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hospital-registration-agent/pkg/logging"
)

func newTestRedisRepository(t *testing.T, keyTTL time.Duration) (*RedisRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRepository(client, keyTTL), mr
}

func TestRedisRepositoryRoundTrip(t *testing.T) {
	repo, mr := newTestRedisRepository(t, time.Hour)
	ctx := context.Background()

	sess := activeSession("+919876543210")
	sess.UpdatedAt = time.Date(2025, 11, 9, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, sess))

	assert.True(t, mr.Exists("session:+919876543210"))
	assert.Equal(t, time.Hour, mr.TTL("session:+919876543210"))

	got, err := repo.Load(ctx, "+919876543210")
	require.NoError(t, err)
	assert.Equal(t, sess.Step, got.Step)
	assert.Equal(t, sess.Data, got.Data)
	assert.True(t, sess.UpdatedAt.Equal(got.UpdatedAt))

	require.NoError(t, repo.Delete(ctx, "+919876543210"))
	_, err = repo.Load(ctx, "+919876543210")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisRepositoryCorruptPayload(t *testing.T) {
	repo, mr := newTestRedisRepository(t, time.Hour)
	require.NoError(t, mr.Set("session:bob", "{not json"))

	_, err := repo.Load(context.Background(), "bob")
	require.ErrorIs(t, err, ErrCorrupt)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRedisBackedStorePurgesCorruptSession(t *testing.T) {
	repo, mr := newTestRedisRepository(t, 2*DefaultTTL)
	store := NewStore(repo, DefaultTTL, logging.Discard())
	ctx := context.Background()
	require.NoError(t, mr.Set("session:bob", "{not json"))

	_, err := store.Get(ctx, "bob")
	require.ErrorIs(t, err, ErrCorrupt)
	assert.False(t, mr.Exists("session:bob"))

	got, err := store.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, StepNone, got.Step)
}

func TestRedisBackedStoreExpiry(t *testing.T) {
	repo, mr := newTestRedisRepository(t, 2*DefaultTTL)
	clock := newFakeClock()
	store := NewStore(repo, DefaultTTL, logging.Discard(), WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, activeSession("carol")))
	clock.Advance(31 * time.Minute)

	got, err := store.Get(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, StepNone, got.Step)
	assert.False(t, mr.Exists("session:carol"))

	got, err = store.Get(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, StepNone, got.Step)
}

func TestRedisRepositoryUnavailable(t *testing.T) {
	repo, mr := newTestRedisRepository(t, time.Hour)
	mr.Close()

	_, err := repo.Load(context.Background(), "dave")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
