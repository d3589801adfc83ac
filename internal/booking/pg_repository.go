package booking

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const patientCounterName = "patient_id"

// SQLSTATEs that mean "another allocation won, run again"
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

// pgxPool is the subset of *pgxpool.Pool the repository needs, so tests can use pgxmock
type pgxPool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool       pgxPool
	maxRetries int
	backoff    time.Duration
}

// NewPgRepository runs allocations as SERIALIZABLE transactions, retrying conflicts up to maxRetries times
func NewPgRepository(pool *pgxpool.Pool, maxRetries int) *PgRepository {
	return newPgRepositoryWithPool(pool, maxRetries)
}

func newPgRepositoryWithPool(pool pgxPool, maxRetries int) *PgRepository {
	if pool == nil {
		panic("booking: pgx pool required")
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &PgRepository{pool: pool, maxRetries: maxRetries, backoff: 10 * time.Millisecond}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var gender string

	err := row.Scan(
		&p.ID,
		&p.Registration.FirstName,
		&p.Registration.LastName,
		&gender,
		&p.Registration.Address,
		&p.Registration.Email,
		&p.Registration.Phone,
		&p.Registration.Department,
		&p.Registration.Date,
		&p.Registration.Time,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Registration.Gender = Gender(gender)
	return &p, nil
}

func scanSlot(row pgx.Row, key SlotKey) (*Slot, error) {
	s := Slot{Key: key}

	err := row.Scan(
		&s.Capacity,
		&s.Count,
		&s.Patients,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected, pgUniqueViolation:
		return true
	}
	return false
}

// Interface methods

func (r *PgRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			// jitter keeps retried losers from colliding again in lockstep
			wait := r.backoff*time.Duration(attempt) + time.Duration(rand.Int64N(int64(r.backoff)+1))
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", ErrStoreUnavailable, ctx.Err())
			case <-time.After(wait):
			}
		}

		lastErr = r.runTx(ctx, fn)
		if lastErr == nil || !isRetryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%w: gave up after %d attempts: %w", ErrStoreUnavailable, r.maxRetries+1, lastErr)
}

func (r *PgRepository) runTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", ErrStoreUnavailable, err)
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isRetryable(err) {
			return err
		}
		return fmt.Errorf("%w: commit: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (r *PgRepository) GetSlot(ctx context.Context, key SlotKey) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT capacity, count, patients, created_at, updated_at
		FROM slots
		WHERE department = $1 AND slot_date = $2 AND slot_time = $3
	`, key.Department, key.Date, key.Time)
	return scanSlot(row, key)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id string) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, gender, address, email, phone, department, reg_date, reg_time, created_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, patient_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.PatientID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LastPatientNumber(ctx context.Context) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx, `
		SELECT value FROM sequence_counters
		WHERE name = $1
		FOR UPDATE
	`, patientCounterName).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FirstPatientNumber - 1, nil
		}
		return 0, err
	}
	return n, nil
}

func (t *pgTx) SetLastPatientNumber(ctx context.Context, n int64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO sequence_counters (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value
	`, patientCounterName, n)
	return err
}

func (t *pgTx) GetSlot(ctx context.Context, key SlotKey) (*Slot, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT capacity, count, patients, created_at, updated_at
		FROM slots
		WHERE department = $1 AND slot_date = $2 AND slot_time = $3
		FOR UPDATE
	`, key.Department, key.Date, key.Time)
	return scanSlot(row, key)
}

func (t *pgTx) SaveSlot(ctx context.Context, s *Slot) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO slots (department, slot_date, slot_time, capacity, count, patients, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (department, slot_date, slot_time)
		DO UPDATE SET count = EXCLUDED.count, patients = EXCLUDED.patients, updated_at = EXCLUDED.updated_at
	`, s.Key.Department, s.Key.Date, s.Key.Time, s.Capacity, s.Count, s.Patients, s.CreatedAt, s.UpdatedAt)
	return err
}

func (t *pgTx) InsertPatient(ctx context.Context, p *Patient) error {
	reg := p.Registration
	_, err := t.tx.Exec(ctx, `
		INSERT INTO patients (id, first_name, last_name, gender, address, email, phone, department, reg_date, reg_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, reg.FirstName, reg.LastName, string(reg.Gender), reg.Address, reg.Email, reg.Phone,
		reg.Department, reg.Date, reg.Time, p.CreatedAt)
	return err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
