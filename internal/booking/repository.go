package booking

import (
	"context"
	"errors"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrSlotNotFound    = errors.New("slot not found")
	// ErrStoreUnavailable marks transient store failures, including conflicts past the retry budget
	ErrStoreUnavailable = errors.New("booking store unavailable")
)

// Tx is the view of the store inside one serializable allocation transaction.
type Tx interface {
	// LastPatientNumber returns the last issued N, or FirstPatientNumber-1 before any allocation
	LastPatientNumber(ctx context.Context) (int64, error)
	SetLastPatientNumber(ctx context.Context, n int64) error

	// GetSlot returns ErrSlotNotFound if nothing was allocated into key yet
	GetSlot(ctx context.Context, key SlotKey) (*Slot, error)
	SaveSlot(ctx context.Context, slot *Slot) error

	InsertPatient(ctx context.Context, p *Patient) error
}

// Repository contains all storage interactions needed by the allocator.
type Repository interface {
	// WithinTx runs fn with serializable isolation against every other WithinTx call.
	// Either all writes made through tx become visible or none do.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetSlot(ctx context.Context, key SlotKey) (*Slot, error)
	GetPatientByID(ctx context.Context, id string) (*Patient, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
