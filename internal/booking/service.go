package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/hospital-registration-agent/internal/observability/metrics"
	redisclient "github.com/hackgods/hospital-registration-agent/internal/redis"
	"github.com/hackgods/hospital-registration-agent/pkg/logging"
)

const (
	EventPatientRegistered = "PATIENT_REGISTERED"
)

var (
	ErrInvalidDepartment = errors.New("department is not in the catalog")
	ErrInvalidTime       = errors.New("time is not an hourly slot of the department")
	ErrInvalidDate       = errors.New("date must be YYYY-MM-DD")
	ErrSlotFull          = errors.New("slot is full")
	ErrSlotBeingBooked   = errors.New("slot is currently being booked, please retry")
)

var allocTracer = otel.Tracer("hospital.internal.booking.allocator")

// Allocator issues patient ids and reserves slot capacity atomically.
type Allocator struct {
	repo    Repository
	catalog *Catalog
	locker  redisclient.Locker
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
	now     func() time.Time
}

// NewAllocator wires the allocator. locker and m may be nil.
func NewAllocator(repo Repository, catalog *Catalog, locker redisclient.Locker, logger *logging.Logger, m *metrics.BookingMetrics) *Allocator {
	if repo == nil {
		panic("booking: repository required")
	}
	if catalog == nil {
		panic("booking: catalog required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Allocator{
		repo:    repo,
		catalog: catalog,
		locker:  locker,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

func (a *Allocator) Catalog() *Catalog {
	return a.catalog
}

// Allocate validates reg against the catalog, then in one transaction checks capacity,
// takes the next patient number, writes the patient and updates the slot.
func (a *Allocator) Allocate(ctx context.Context, reg Registration) (*Patient, error) {
	ctx, span := allocTracer.Start(ctx, "booking.allocate")
	defer span.End()
	span.SetAttributes(attribute.String("slot", reg.Key().String()))

	start := time.Now()
	patient, err := a.allocate(ctx, reg)
	a.metrics.ObserveAllocation(allocationOutcome(err), time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("patient_id", patient.ID))
	return patient, nil
}

func (a *Allocator) allocate(ctx context.Context, reg Registration) (*Patient, error) {
	dept, ok := a.catalog.Lookup(reg.Department)
	if !ok {
		return nil, ErrInvalidDepartment
	}
	if !dept.HasMark(reg.Time) {
		return nil, ErrInvalidTime
	}
	if _, err := time.Parse(DateLayout, reg.Date); err != nil {
		return nil, ErrInvalidDate
	}

	key := reg.Key()
	if a.locker == nil {
		return a.commit(ctx, dept, key, reg)
	}

	var created *Patient
	err := a.locker.WithSlotLock(ctx, key.String(), func(lockCtx context.Context) error {
		p, err := a.commit(lockCtx, dept, key, reg)
		created = p
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}
	return created, nil
}

func (a *Allocator) commit(ctx context.Context, dept Department, key SlotKey, reg Registration) (*Patient, error) {
	var created *Patient

	err := a.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		now := a.now().UTC()

		// counter first: it is the row every allocation contends on
		last, err := tx.LastPatientNumber(ctx)
		if err != nil {
			return fmt.Errorf("read patient counter: %w", err)
		}

		slot, err := tx.GetSlot(ctx, key)
		switch {
		case errors.Is(err, ErrSlotNotFound):
			slot = &Slot{Key: key, Capacity: dept.Capacity, CreatedAt: now}
		case err != nil:
			return fmt.Errorf("load slot: %w", err)
		}

		if slot.Full() {
			return ErrSlotFull
		}

		n := last + 1
		patient := &Patient{
			ID:           FormatPatientID(n),
			Registration: reg,
			CreatedAt:    now,
		}
		if err := tx.InsertPatient(ctx, patient); err != nil {
			return fmt.Errorf("insert patient: %w", err)
		}

		slot.Count++
		slot.Patients = append(slot.Patients, patient.ID)
		slot.UpdatedAt = now
		if err := tx.SaveSlot(ctx, slot); err != nil {
			return fmt.Errorf("save slot: %w", err)
		}

		if err := tx.SetLastPatientNumber(ctx, n); err != nil {
			return fmt.Errorf("advance patient counter: %w", err)
		}

		created = patient
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logEvent(ctx, created.ID, EventPatientRegistered, map[string]any{
		"department": key.Department,
		"date":       key.Date,
		"time":       key.Time,
	})
	a.logger.Info("patient registered",
		"patient_id", created.ID,
		"slot", key.String(),
	)

	return created, nil
}

func (a *Allocator) logEvent(ctx context.Context, patientID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		a.logger.Error("failed to marshal event payload", "event_type", eventType, "error", err)
		data = nil
	}

	id := patientID
	ev := EventLog{
		EventType: eventType,
		PatientID: &id,
		Payload:   data,
		CreatedAt: a.now().UTC(),
	}

	if err := a.repo.InsertEvent(ctx, ev); err != nil {
		a.logger.Error("failed to insert event log",
			"event_type", eventType,
			"patient_id", patientID,
			"error", err,
		)
	}
}

// GetSlot returns current occupancy of a slot
func (a *Allocator) GetSlot(ctx context.Context, key SlotKey) (*Slot, error) {
	slot, err := a.repo.GetSlot(ctx, key)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get slot: %w", err)
	}
	return slot, nil
}

// GetPatient retrieves a patient record by its P<N> id
func (a *Allocator) GetPatient(ctx context.Context, id string) (*Patient, error) {
	p, err := a.repo.GetPatientByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func allocationOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeConfirmed
	case errors.Is(err, ErrSlotFull):
		return metrics.OutcomeSlotFull
	case errors.Is(err, ErrInvalidDepartment), errors.Is(err, ErrInvalidTime), errors.Is(err, ErrInvalidDate):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
