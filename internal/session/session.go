package session

import (
	"time"

	"github.com/hackgods/hospital-registration-agent/internal/booking"
)

// Step is the field the conversation is currently collecting
type Step string

const (
	StepNone       Step = "NONE"
	StepFirstName  Step = "FIRST_NAME"
	StepLastName   Step = "LAST_NAME"
	StepGender     Step = "GENDER"
	StepAddress    Step = "ADDRESS"
	StepEmail      Step = "EMAIL"
	StepPhone      Step = "PHONE"
	StepDepartment Step = "DEPARTMENT"
	StepRegDate    Step = "REG_DATE"
	StepRegTime    Step = "REG_TIME"
	StepConfirming Step = "CONFIRMING"
	// StepCompleted marks a booked session whose delete failed; it behaves as idle
	StepCompleted Step = "COMPLETED"
)

// Session is the per-sender conversation state.
// Step == StepNone implies Data is empty.
type Session struct {
	SenderID  string               `json:"sender_id"`
	Step      Step                 `json:"step"`
	Data      booking.Registration `json:"data"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// New returns an idle session for sender
func New(senderID string) *Session {
	return &Session{SenderID: senderID, Step: StepNone}
}

// Active reports whether a multi-turn flow is in progress
func (s *Session) Active() bool {
	return s.Step != StepNone && s.Step != ""
}
