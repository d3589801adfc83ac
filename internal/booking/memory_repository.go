package booking

import (
	"context"
	"fmt"
	"sync"
)

type memoryState struct {
	lastPatient int64
	slots       map[SlotKey]Slot
	patients    map[string]Patient
}

func cloneSlot(s Slot) Slot {
	s.Patients = append([]string(nil), s.Patients...)
	return s
}

// MemoryRepository keeps everything in process. Transactions run one at a time and
// buffer their writes, which are applied to the live state only when fn succeeds.
type MemoryRepository struct {
	mu     sync.RWMutex
	state  memoryState
	events []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		state: memoryState{
			lastPatient: FirstPatientNumber - 1,
			slots:       make(map[SlotKey]Slot),
			patients:    make(map[string]Patient),
		},
	}
}

func (r *MemoryRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := newMemoryTx(&r.state)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.apply()
	return nil
}

func (r *MemoryRepository) GetSlot(_ context.Context, key SlotKey) (*Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.state.slots[key]
	if !ok {
		return nil, ErrSlotNotFound
	}
	s = cloneSlot(s)
	return &s, nil
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.state.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the event log
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}

// memoryTx reads through to the live state and keeps its own writes until apply
type memoryTx struct {
	base        *memoryState
	lastPatient *int64
	slots       map[SlotKey]Slot
	patients    map[string]Patient
}

func newMemoryTx(base *memoryState) *memoryTx {
	return &memoryTx{
		base:     base,
		slots:    make(map[SlotKey]Slot),
		patients: make(map[string]Patient),
	}
}

func (t *memoryTx) apply() {
	if t.lastPatient != nil {
		t.base.lastPatient = *t.lastPatient
	}
	for k, v := range t.slots {
		t.base.slots[k] = v
	}
	for k, v := range t.patients {
		t.base.patients[k] = v
	}
}

func (t *memoryTx) LastPatientNumber(context.Context) (int64, error) {
	if t.lastPatient != nil {
		return *t.lastPatient, nil
	}
	return t.base.lastPatient, nil
}

func (t *memoryTx) SetLastPatientNumber(_ context.Context, n int64) error {
	t.lastPatient = &n
	return nil
}

func (t *memoryTx) GetSlot(_ context.Context, key SlotKey) (*Slot, error) {
	s, ok := t.slots[key]
	if !ok {
		s, ok = t.base.slots[key]
	}
	if !ok {
		return nil, ErrSlotNotFound
	}
	s = cloneSlot(s)
	return &s, nil
}

func (t *memoryTx) SaveSlot(_ context.Context, slot *Slot) error {
	t.slots[slot.Key] = cloneSlot(*slot)
	return nil
}

func (t *memoryTx) InsertPatient(_ context.Context, p *Patient) error {
	_, pending := t.patients[p.ID]
	_, stored := t.base.patients[p.ID]
	if pending || stored {
		return fmt.Errorf("patient %s already exists", p.ID)
	}
	t.patients[p.ID] = *p
	return nil
}
