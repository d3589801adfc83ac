package booking

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// FirstPatientNumber is the N of the first issued id P<N>
const FirstPatientNumber int64 = 1001

// DateLayout is the ISO calendar date used for registration dates
const DateLayout = "2006-01-02"

// Registration is the payload collected by the conversation and consumed by the allocator.
type Registration struct {
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Gender     Gender `json:"gender,omitempty"`
	Address    string `json:"address,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Department string `json:"department,omitempty"`
	Date       string `json:"date,omitempty"` // YYYY-MM-DD
	Time       string `json:"time,omitempty"` // HH:00
}

// IsZero reports whether no field has been collected yet
func (r Registration) IsZero() bool {
	return r == Registration{}
}

// FullName joins first and last name, skipping an empty last name
func (r Registration) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// SlotKey identifies a bookable unit
type SlotKey struct {
	Department string
	Date       string
	Time       string
}

func (k SlotKey) String() string {
	return k.Department + "|" + k.Date + "|" + k.Time
}

// Key returns the slot this registration targets
func (r Registration) Key() SlotKey {
	return SlotKey{Department: r.Department, Date: r.Date, Time: r.Time}
}

// Slot tracks occupancy. Count always equals len(Patients).
type Slot struct {
	Key       SlotKey
	Capacity  int
	Count     int
	Patients  []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Full reports whether no further patient fits
func (s *Slot) Full() bool {
	return s.Count >= s.Capacity
}

// Patient is immutable once written
type Patient struct {
	ID           string
	Registration Registration
	CreatedAt    time.Time
}

type EventLog struct {
	ID        int64
	EventType string
	PatientID *string
	Payload   []byte
	CreatedAt time.Time
}

// FormatPatientID renders N as P<N>
func FormatPatientID(n int64) string {
	return "P" + strconv.FormatInt(n, 10)
}

// ParsePatientID is the inverse of FormatPatientID
func ParsePatientID(id string) (int64, error) {
	if !strings.HasPrefix(id, "P") {
		return 0, fmt.Errorf("patient id %q: missing P prefix", id)
	}
	n, err := strconv.ParseInt(id[1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("patient id %q: %w", id, err)
	}
	return n, nil
}
