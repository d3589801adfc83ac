package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/hackgods/hospital-registration-agent/internal/redis"
	"github.com/hackgods/hospital-registration-agent/pkg/logging"
)

func testRegistration(dept, date, hhmm string) Registration {
	return Registration{
		FirstName:  "Priya",
		LastName:   "Sharma",
		Gender:     GenderFemale,
		Phone:      "+919876543210",
		Department: dept,
		Date:       date,
		Time:       hhmm,
	}
}

func newTestAllocator(t *testing.T, repo Repository, locker redisclient.Locker) *Allocator {
	t.Helper()
	return NewAllocator(repo, DefaultCatalog(), locker, logging.Discard(), nil)
}

// allocateConcurrently fires n allocations at once and returns issued ids and errors
func allocateConcurrently(a *Allocator, regs []Registration) ([]string, []error) {
	var (
		mu   sync.Mutex
		ids  []string
		errs []error
		wg   sync.WaitGroup
	)
	start := make(chan struct{})
	for _, reg := range regs {
		wg.Add(1)
		go func(reg Registration) {
			defer wg.Done()
			<-start
			p, err := a.Allocate(context.Background(), reg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids = append(ids, p.ID)
		}(reg)
	}
	close(start)
	wg.Wait()
	return ids, errs
}

func repeatRegistration(reg Registration, n int) []Registration {
	out := make([]Registration, n)
	for i := range out {
		out[i] = reg
	}
	return out
}

func TestAllocate_FirstPatientIsP1001(t *testing.T) {
	repo := NewMemoryRepository()
	a := newTestAllocator(t, repo, nil)

	p, err := a.Allocate(context.Background(), testRegistration("Cardiology", "2025-11-10", "09:00"))
	require.NoError(t, err)
	assert.Equal(t, "P1001", p.ID)
	assert.Equal(t, "Priya", p.Registration.FirstName)

	slot, err := a.GetSlot(context.Background(), SlotKey{"Cardiology", "2025-11-10", "09:00"})
	require.NoError(t, err)
	assert.Equal(t, 10, slot.Capacity)
	assert.Equal(t, 1, slot.Count)
	assert.Equal(t, []string{"P1001"}, slot.Patients)

	stored, err := a.GetPatient(context.Background(), "P1001")
	require.NoError(t, err)
	assert.Equal(t, p.Registration, stored.Registration)

	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventPatientRegistered, events[0].EventType)
	assert.Equal(t, "P1001", *events[0].PatientID)
}

func TestAllocate_ValidationErrors(t *testing.T) {
	a := newTestAllocator(t, NewMemoryRepository(), nil)

	tests := []struct {
		name string
		reg  Registration
		want error
	}{
		{"unknown department", testRegistration("Astrology", "2025-11-10", "09:00"), ErrInvalidDepartment},
		{"time outside window", testRegistration("Cardiology", "2025-11-10", "13:00"), ErrInvalidTime},
		{"time not on the hour", testRegistration("Cardiology", "2025-11-10", "09:30"), ErrInvalidTime},
		{"malformed date", testRegistration("Cardiology", "10/11/2025", "09:00"), ErrInvalidDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Allocate(context.Background(), tt.reg)
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := a.GetPatient(context.Background(), "P1001")
	assert.ErrorIs(t, err, ErrPatientNotFound, "failed validations must not issue ids")
}

func TestAllocate_ConcurrentCapacity(t *testing.T) {
	repo := NewMemoryRepository()
	a := newTestAllocator(t, repo, nil)
	reg := testRegistration("Cardiology", "2025-11-10", "09:00")

	ids, errs := allocateConcurrently(a, repeatRegistration(reg, 11))

	require.Len(t, ids, 10)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrSlotFull)

	sort.Strings(ids)
	var want []string
	for n := int64(1001); n <= 1010; n++ {
		want = append(want, FormatPatientID(n))
	}
	assert.Equal(t, want, ids)

	slot, err := repo.GetSlot(context.Background(), reg.Key())
	require.NoError(t, err)
	assert.Equal(t, 10, slot.Count)
	assert.Len(t, slot.Patients, slot.Count)
}

func TestAllocate_IDsAreGaplessAcrossSlots(t *testing.T) {
	repo := NewMemoryRepository()
	a := newTestAllocator(t, repo, nil)

	var regs []Registration
	for _, hhmm := range []string{"09:00", "10:00", "11:00"} {
		regs = append(regs, repeatRegistration(testRegistration("Cardiology", "2025-11-10", hhmm), 12)...)
	}
	regs = append(regs, repeatRegistration(testRegistration("Pediatrics", "2025-11-11", "09:00"), 5)...)

	ids, errs := allocateConcurrently(a, regs)

	// three Cardiology slots overflow by 2 each
	require.Len(t, errs, 6)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrSlotFull)
	}
	require.Len(t, ids, 35)

	nums := make([]int, 0, len(ids))
	for _, id := range ids {
		n, err := ParsePatientID(id)
		require.NoError(t, err)
		nums = append(nums, int(n))
	}
	sort.Ints(nums)
	for i, n := range nums {
		assert.Equal(t, 1001+i, n, "ids must be gapless and unique")
	}

	for _, hhmm := range []string{"09:00", "10:00", "11:00"} {
		slot, err := repo.GetSlot(context.Background(), SlotKey{"Cardiology", "2025-11-10", hhmm})
		require.NoError(t, err)
		assert.Equal(t, 10, slot.Count)
		assert.True(t, sort.SliceIsSorted(slot.Patients, func(i, j int) bool {
			x, _ := ParsePatientID(slot.Patients[i])
			y, _ := ParsePatientID(slot.Patients[j])
			return x < y
		}), "patients are kept in allocation order")
	}
}

func TestAllocate_WithRedisSlotLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := redisclient.NewRedisSlotLocker(client, 5*time.Second, 10*time.Second)
	a := newTestAllocator(t, NewMemoryRepository(), locker)

	ids, errs := allocateConcurrently(a, repeatRegistration(testRegistration("Cardiology", "2025-11-10", "09:00"), 11))

	assert.Len(t, ids, 10)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrSlotFull)
}

func TestAllocate_LockContentionIsRetryable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reg := testRegistration("Cardiology", "2025-11-10", "09:00")
	require.NoError(t, mr.Set("lock:slot:"+reg.Key().String(), "other-process"))

	locker := redisclient.NewRedisSlotLocker(client, 5*time.Second, 0)
	a := newTestAllocator(t, NewMemoryRepository(), locker)

	_, err := a.Allocate(context.Background(), reg)
	assert.ErrorIs(t, err, ErrSlotBeingBooked)
}

// faultyRepository fails the slot write after the patient row was written inside the tx
type faultyRepository struct {
	*MemoryRepository
	err error
}

func (r *faultyRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return r.MemoryRepository.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return fn(ctx, &faultyTx{Tx: tx, err: r.err})
	})
}

type faultyTx struct {
	Tx
	err error
}

func (t *faultyTx) SaveSlot(context.Context, *Slot) error {
	return t.err
}

func TestAllocate_NoPartialEffects(t *testing.T) {
	mem := NewMemoryRepository()
	boom := fmt.Errorf("%w: connection reset", ErrStoreUnavailable)
	a := newTestAllocator(t, &faultyRepository{MemoryRepository: mem, err: boom}, nil)

	_, err := a.Allocate(context.Background(), testRegistration("Cardiology", "2025-11-10", "09:00"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))

	_, err = mem.GetPatientByID(context.Background(), "P1001")
	assert.ErrorIs(t, err, ErrPatientNotFound)
	_, err = mem.GetSlot(context.Background(), SlotKey{"Cardiology", "2025-11-10", "09:00"})
	assert.ErrorIs(t, err, ErrSlotNotFound)

	// the counter did not move either
	ok := newTestAllocator(t, mem, nil)
	p, err := ok.Allocate(context.Background(), testRegistration("Cardiology", "2025-11-10", "09:00"))
	require.NoError(t, err)
	assert.Equal(t, "P1001", p.ID)
}

func TestAllocate_KeepsCapacityCopiedAtCreation(t *testing.T) {
	repo := NewMemoryRepository()
	small, err := NewCatalog(Department{Name: "Cardiology", StartTime: "09:00", EndTime: "12:00", Capacity: 1})
	require.NoError(t, err)

	first := NewAllocator(repo, small, nil, logging.Discard(), nil)
	_, err = first.Allocate(context.Background(), testRegistration("Cardiology", "2025-11-10", "09:00"))
	require.NoError(t, err)

	// a later, larger catalog does not grow an existing slot
	second := newTestAllocator(t, repo, nil)
	_, err = second.Allocate(context.Background(), testRegistration("Cardiology", "2025-11-10", "09:00"))
	assert.ErrorIs(t, err, ErrSlotFull)
}
