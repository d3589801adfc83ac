package booking

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLiteRepository is the single-node store used by the CLI and small deployments.
// One open connection means transactions never overlap.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	if path == "" {
		path = "registration.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	r := &SQLiteRepository{db: db}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *SQLiteRepository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sequence_counters (
		name  TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS patients (
		id         TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name  TEXT NOT NULL DEFAULT '',
		gender     TEXT NOT NULL,
		address    TEXT NOT NULL DEFAULT '',
		email      TEXT NOT NULL DEFAULT '',
		phone      TEXT NOT NULL,
		department TEXT NOT NULL,
		reg_date   TEXT NOT NULL,
		reg_time   TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS slots (
		department TEXT NOT NULL,
		slot_date  TEXT NOT NULL,
		slot_time  TEXT NOT NULL,
		capacity   INTEGER NOT NULL CHECK (capacity > 0),
		count      INTEGER NOT NULL CHECK (count >= 0 AND count <= capacity),
		patients   TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (department, slot_date, slot_time)
	);
	CREATE TABLE IF NOT EXISTS event_logs (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		patient_id TEXT,
		payload    TEXT,
		created_at TEXT NOT NULL
	);
	`
	_, err := r.db.Exec(schema)
	return err
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (retErr error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", ErrStoreUnavailable, err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, &sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSlot(row rowScanner, key SlotKey) (*Slot, error) {
	s := Slot{Key: key}
	var patients, createdAt, updatedAt string

	if err := row.Scan(&s.Capacity, &s.Count, &patients, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(patients), &s.Patients); err != nil {
		return nil, fmt.Errorf("decode slot patients: %w", err)
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &s, nil
}

const sqliteSlotQuery = `
	SELECT capacity, count, patients, created_at, updated_at
	FROM slots
	WHERE department = ? AND slot_date = ? AND slot_time = ?`

func (r *SQLiteRepository) GetSlot(ctx context.Context, key SlotKey) (*Slot, error) {
	row := r.db.QueryRowContext(ctx, sqliteSlotQuery, key.Department, key.Date, key.Time)
	return scanSQLiteSlot(row, key)
}

func (r *SQLiteRepository) GetPatientByID(ctx context.Context, id string) (*Patient, error) {
	var p Patient
	var gender, createdAt string

	err := r.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, gender, address, email, phone, department, reg_date, reg_time, created_at
		FROM patients WHERE id = ?`, id).Scan(
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
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	p.Registration.Gender = Gender(gender)
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &p, nil
}

func (r *SQLiteRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO event_logs (event_type, patient_id, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		ev.EventType, ev.PatientID, string(ev.Payload), createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) LastPatientNumber(ctx context.Context) (int64, error) {
	var n int64
	err := t.tx.QueryRowContext(ctx, `SELECT value FROM sequence_counters WHERE name = ?`, patientCounterName).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FirstPatientNumber - 1, nil
		}
		return 0, err
	}
	return n, nil
}

func (t *sqliteTx) SetLastPatientNumber(ctx context.Context, n int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sequence_counters (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value`, patientCounterName, n)
	return err
}

func (t *sqliteTx) GetSlot(ctx context.Context, key SlotKey) (*Slot, error) {
	row := t.tx.QueryRowContext(ctx, sqliteSlotQuery, key.Department, key.Date, key.Time)
	return scanSQLiteSlot(row, key)
}

func (t *sqliteTx) SaveSlot(ctx context.Context, s *Slot) error {
	patients, err := json.Marshal(s.Patients)
	if err != nil {
		return fmt.Errorf("encode slot patients: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO slots (department, slot_date, slot_time, capacity, count, patients, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (department, slot_date, slot_time)
		DO UPDATE SET count = excluded.count, patients = excluded.patients, updated_at = excluded.updated_at`,
		s.Key.Department, s.Key.Date, s.Key.Time, s.Capacity, s.Count, string(patients),
		s.CreatedAt.Format(time.RFC3339Nano), s.UpdatedAt.Format(time.RFC3339Nano))
	return err
}

func (t *sqliteTx) InsertPatient(ctx context.Context, p *Patient) error {
	reg := p.Registration
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO patients (id, first_name, last_name, gender, address, email, phone, department, reg_date, reg_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, reg.FirstName, reg.LastName, string(reg.Gender), reg.Address, reg.Email, reg.Phone,
		reg.Department, reg.Date, reg.Time, p.CreatedAt.Format(time.RFC3339Nano))
	return err
}
