package redisclient

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, wait time.Duration) (*miniredis.Miniredis, *redis.Client, Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client, NewRedisSlotLocker(client, 5*time.Second, wait)
}

func TestWithSlotLock_ReleasesAfterRun(t *testing.T) {
	mr, _, locker := newTestLocker(t, 0)

	var ran bool
	err := locker.WithSlotLock(context.Background(), "Cardiology|2025-11-10|09:00", func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:slot:Cardiology|2025-11-10|09:00"))
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:slot:Cardiology|2025-11-10|09:00"))
}

func TestWithSlotLock_FailsFastWhenHeldAndNoWait(t *testing.T) {
	mr, _, locker := newTestLocker(t, 0)
	require.NoError(t, mr.Set("lock:slot:k", "someone-else"))

	err := locker.WithSlotLock(context.Background(), "k", func(ctx context.Context) error {
		t.Fatal("fn must not run without the lock")
		return nil
	})

	require.ErrorIs(t, err, ErrLockNotAcquired)
	got, _ := mr.Get("lock:slot:k")
	assert.Equal(t, "someone-else", got, "a foreign lock must not be released")
}

func TestWithSlotLock_WaitsForHolder(t *testing.T) {
	_, _, locker := newTestLocker(t, 5*time.Second)

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithSlotLock(context.Background(), "shared", func(ctx context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen, "critical section must never be shared")
}

func TestWithSlotLock_PropagatesFnError(t *testing.T) {
	mr, _, locker := newTestLocker(t, 0)
	boom := assert.AnError

	err := locker.WithSlotLock(context.Background(), "k", func(ctx context.Context) error {
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:slot:k"))
}
