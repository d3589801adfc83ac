// Package conversation drives multi-turn registration over a session store and
// hands complete registrations to the slot allocator.
package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hackgods/hospital-registration-agent/internal/booking"
	"github.com/hackgods/hospital-registration-agent/internal/extract"
	"github.com/hackgods/hospital-registration-agent/internal/observability/metrics"
	"github.com/hackgods/hospital-registration-agent/internal/session"
	"github.com/hackgods/hospital-registration-agent/pkg/logging"
)

// Turn results recorded in metrics and logs
const (
	resultGreeting   = "greeting"
	resultReset      = "reset"
	resultGuidance   = "guidance"
	resultStarted    = "started"
	resultAccepted   = "accepted"
	resultRejected   = "rejected"
	resultConfirmed  = "confirmed"
	resultSlotFull   = "slot_full"
	resultFallback   = "fallback"
	resultCorrupted  = "corrupted"
	resultError      = "error"
	resultRetryLater = "busy"
)

type Allocator interface {
	Allocate(ctx context.Context, reg booking.Registration) (*booking.Patient, error)
}

type SessionStore interface {
	Get(ctx context.Context, senderID string) (*session.Session, error)
	Set(ctx context.Context, s *session.Session) error
	Delete(ctx context.Context, senderID string) error
}

// Machine handles one inbound message at a time per call; calls may run concurrently.
type Machine struct {
	sessions  SessionStore
	allocator Allocator
	catalog   *booking.Catalog
	logger    *logging.Logger
	metrics   *metrics.BookingMetrics
	now       func() time.Time
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func WithMetrics(bm *metrics.BookingMetrics) Option {
	return func(m *Machine) { m.metrics = bm }
}

func NewMachine(sessions SessionStore, allocator Allocator, catalog *booking.Catalog, logger *logging.Logger, opts ...Option) *Machine {
	if sessions == nil || allocator == nil || catalog == nil {
		panic("conversation: sessions, allocator and catalog are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	m := &Machine{
		sessions:  sessions,
		allocator: allocator,
		catalog:   catalog,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HandleTurn consumes one message from senderID and returns the reply text.
// It never fails: store and allocation errors become user-facing replies.
func (m *Machine) HandleTurn(ctx context.Context, senderID, text string) string {
	text = strings.TrimSpace(text)

	if isGreeting(text) {
		m.observe(session.StepNone, resultGreeting)
		return msgWelcome
	}

	if isReset(text) {
		if err := m.sessions.Delete(ctx, senderID); err != nil {
			m.logger.Error("failed to delete session on reset", "sender", senderID, "error", err)
			m.observe(session.StepNone, resultError)
			return msgFailure
		}
		m.observe(session.StepNone, resultReset)
		return msgCancelled
	}

	sess, err := m.sessions.Get(ctx, senderID)
	if errors.Is(err, session.ErrCorrupt) {
		return m.resetCorrupted(ctx, session.New(senderID))
	}
	if err != nil {
		m.logger.Error("failed to load session", "sender", senderID, "error", err)
		m.observe(session.StepNone, resultError)
		return msgFailure
	}

	if !sess.Active() {
		return m.handleIdle(ctx, sess, text)
	}
	if sess.Step == session.StepCompleted {
		return m.handleIdle(ctx, session.New(senderID), text)
	}
	if sess.Step == session.StepConfirming {
		return m.handleConfirming(ctx, sess, text)
	}

	h, ok := steps[sess.Step]
	if !ok {
		return m.resetCorrupted(ctx, sess)
	}
	return m.handleStep(ctx, sess, h, text)
}

func (m *Machine) handleIdle(ctx context.Context, sess *session.Session, text string) string {
	if reg, ok := m.singleShot(text); ok {
		return m.bookSingleShot(ctx, sess, reg)
	}

	if isStart(text) {
		return m.startGuided(ctx, sess, "", resultStarted)
	}

	m.observe(session.StepNone, resultGuidance)
	return msgGuidance
}

// singleShot builds a full registration from one message when name, phone,
// department, date and time are all present.
func (m *Machine) singleShot(text string) (booking.Registration, bool) {
	p, ok := extract.Phone(text)
	if !ok {
		return booking.Registration{}, false
	}
	dept, ok := extract.Department(text, m.catalog.Names())
	if !ok {
		return booking.Registration{}, false
	}
	first, last, ok := extract.Name(text)
	if !ok {
		return booking.Registration{}, false
	}
	date, hhmm, ok := extract.DateTime(text, m.now())
	if !ok {
		return booking.Registration{}, false
	}

	gender, ok := extract.Gender(text)
	if !ok {
		gender = booking.GenderOther
	}
	mail, _ := extract.Email(text)

	return booking.Registration{
		FirstName:  first,
		LastName:   last,
		Gender:     gender,
		Email:      mail,
		Phone:      p,
		Department: dept,
		Date:       date.Format(booking.DateLayout),
		Time:       hhmm,
	}, true
}

// bookSingleShot allocates without creating a session. Rejected bookings restart
// the guided flow from a clean slate.
func (m *Machine) bookSingleShot(ctx context.Context, sess *session.Session, reg booking.Registration) string {
	var err error
	var patient *booking.Patient
	if !m.isFuture(reg.Date) {
		err = booking.ErrInvalidDate
	} else {
		patient, err = m.allocator.Allocate(ctx, reg)
	}

	switch {
	case err == nil:
		m.observe(session.StepNone, resultConfirmed)
		return confirmation(patient)
	case isRejection(err):
		m.logger.Info("single-shot booking rejected, starting guided flow",
			"sender", sess.SenderID,
			"slot", reg.Key().String(),
			"reason", err,
		)
		return m.startGuided(ctx, sess, msgSingleShotFail+": "+rejectionReason(err, reg)+"\nLet's go step by step.", resultFallback)
	default:
		return m.failTransient(sess, err)
	}
}

func (m *Machine) startGuided(ctx context.Context, sess *session.Session, preface, result string) string {
	next := session.New(sess.SenderID)
	next.Step = session.StepFirstName
	if err := m.sessions.Set(ctx, next); err != nil {
		m.logger.Error("failed to create session", "sender", sess.SenderID, "error", err)
		m.observe(session.StepNone, resultError)
		return msgFailure
	}
	m.observe(session.StepNone, result)
	if preface != "" {
		return preface + "\n" + promptFirstName
	}
	return promptFirstName
}

func (m *Machine) handleStep(ctx context.Context, sess *session.Session, h stepHandler, text string) string {
	// rules write into a copy; the session only changes once a rule accepts
	reg := sess.Data
	accepted := false
	for _, r := range h.rules {
		if r(m, &reg, text) {
			accepted = true
			break
		}
	}

	if !accepted {
		m.touch(ctx, sess)
		m.observe(sess.Step, resultRejected)
		return h.reject + "\n" + h.prompt(m, sess.Data)
	}

	if h.next == session.StepNone {
		return m.book(ctx, sess, reg)
	}

	step := sess.Step
	updated := *sess
	updated.Data = reg
	updated.Step = h.next
	if err := m.sessions.Set(ctx, &updated); err != nil {
		m.logger.Error("failed to save session", "sender", sess.SenderID, "step", step, "error", err)
		m.observe(step, resultError)
		return msgFailure
	}
	m.observe(step, resultAccepted)
	return steps[h.next].prompt(m, reg)
}

// book allocates a completed guided registration.
func (m *Machine) book(ctx context.Context, sess *session.Session, reg booking.Registration) string {
	step := sess.Step
	patient, err := m.allocator.Allocate(ctx, reg)
	switch {
	case err == nil:
		m.finish(ctx, sess)
		m.observe(step, resultConfirmed)
		return confirmation(patient)

	case errors.Is(err, booking.ErrSlotFull), errors.Is(err, booking.ErrInvalidTime):
		retry := *sess
		retry.Step = session.StepRegTime
		retry.Data = reg
		retry.Data.Time = ""
		if err := m.sessions.Set(ctx, &retry); err != nil {
			m.logger.Error("failed to save session", "sender", sess.SenderID, "step", step, "error", err)
			m.observe(step, resultError)
			return msgFailure
		}
		m.observe(step, resultSlotFull)
		return rejectionReason(err, reg) + "\n" + timePrompt(m.catalog, reg.Department)

	case errors.Is(err, booking.ErrSlotBeingBooked):
		m.touch(ctx, sess)
		m.observe(step, resultRetryLater)
		return msgSlotBusy

	case errors.Is(err, booking.ErrInvalidDepartment), errors.Is(err, booking.ErrInvalidDate):
		m.logger.Warn("stored registration no longer valid", "sender", sess.SenderID, "error", err)
		return m.resetCorrupted(ctx, sess)

	default:
		return m.failTransient(sess, err)
	}
}

// finish removes a booked session. When the delete keeps failing the session is
// overwritten with StepCompleted so its registration cannot be booked twice.
func (m *Machine) finish(ctx context.Context, sess *session.Session) {
	ctx = context.WithoutCancel(ctx)
	err := m.sessions.Delete(ctx, sess.SenderID)
	if err != nil {
		err = m.sessions.Delete(ctx, sess.SenderID)
	}
	if err == nil {
		return
	}
	m.logger.Error("failed to delete completed session", "sender", sess.SenderID, "error", err)

	done := session.New(sess.SenderID)
	done.Step = session.StepCompleted
	if err := m.sessions.Set(ctx, done); err != nil {
		m.logger.Error("failed to mark session completed", "sender", sess.SenderID, "error", err)
	}
}

// handleConfirming serves sessions stored at CONFIRMING, a step the linear flow
// no longer enters.
func (m *Machine) handleConfirming(ctx context.Context, sess *session.Session, text string) string {
	switch {
	case isYes(text):
		return m.book(ctx, sess, sess.Data)
	case isNo(text):
		if err := m.sessions.Delete(ctx, sess.SenderID); err != nil {
			m.logger.Error("failed to delete session", "sender", sess.SenderID, "error", err)
			return msgFailure
		}
		m.observe(sess.Step, resultReset)
		return msgCancelled
	default:
		m.touch(ctx, sess)
		m.observe(sess.Step, resultRejected)
		return summary(sess.Data)
	}
}

func (m *Machine) resetCorrupted(ctx context.Context, sess *session.Session) string {
	m.logger.Warn("resetting corrupted session", "sender", sess.SenderID, "step", sess.Step)
	if err := m.sessions.Delete(ctx, sess.SenderID); err != nil {
		m.logger.Error("failed to delete corrupted session", "sender", sess.SenderID, "error", err)
	}
	m.observe(sess.Step, resultCorrupted)
	return msgSessionReset
}

func (m *Machine) failTransient(sess *session.Session, err error) string {
	m.logger.Error("allocation failed", "sender", sess.SenderID, "step", sess.Step, "error", err)
	m.observe(sess.Step, resultError)
	return msgFailure
}

// touch re-saves an unchanged session to refresh its idle timer
func (m *Machine) touch(ctx context.Context, sess *session.Session) {
	if err := m.sessions.Set(ctx, sess); err != nil {
		m.logger.Warn("failed to refresh session", "sender", sess.SenderID, "error", err)
	}
}

func (m *Machine) observe(step session.Step, result string) {
	m.metrics.ObserveTurn(string(step), result)
}

func (m *Machine) marks(department string) []string {
	dept, ok := m.catalog.Lookup(department)
	if !ok {
		return nil
	}
	return dept.HourlyMarks()
}

// isFuture compares ISO dates against the server-local calendar date
func (m *Machine) isFuture(iso string) bool {
	today := m.now().Format(booking.DateLayout)
	return iso > today
}

func isRejection(err error) bool {
	return errors.Is(err, booking.ErrSlotFull) ||
		errors.Is(err, booking.ErrInvalidTime) ||
		errors.Is(err, booking.ErrInvalidDepartment) ||
		errors.Is(err, booking.ErrInvalidDate)
}

func rejectionReason(err error, reg booking.Registration) string {
	switch {
	case errors.Is(err, booking.ErrSlotFull):
		return slotFull(reg)
	case errors.Is(err, booking.ErrInvalidTime):
		return reg.Time + " is not an available time for " + reg.Department + "."
	case errors.Is(err, booking.ErrInvalidDate):
		return rejectDate
	default:
		return "that department is not available."
	}
}
