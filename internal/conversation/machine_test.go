package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hospital-registration-agent/internal/booking"
	"github.com/hackgods/hospital-registration-agent/internal/session"
	"github.com/hackgods/hospital-registration-agent/pkg/logging"
)

const sender = "+919876543210"

// Sunday, so "tomorrow" is 2025-11-10
var refNow = time.Date(2025, 11, 9, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	t         *testing.T
	machine   *Machine
	sessions  *session.Store
	allocator *booking.Allocator
	clock     *fakeClock
}

func newHarness(t *testing.T, catalog *booking.Catalog) *harness {
	t.Helper()
	if catalog == nil {
		catalog = booking.DefaultCatalog()
	}
	clock := &fakeClock{now: refNow}
	store := session.NewStore(session.NewMemoryRepository(), session.DefaultTTL, logging.Discard(), session.WithClock(clock.Now))
	allocator := booking.NewAllocator(booking.NewMemoryRepository(), catalog, nil, logging.Discard(), nil)
	return &harness{
		t:         t,
		machine:   NewMachine(store, allocator, catalog, logging.Discard(), WithClock(clock.Now)),
		sessions:  store,
		allocator: allocator,
		clock:     clock,
	}
}

func (h *harness) send(text string) string {
	return h.machine.HandleTurn(context.Background(), sender, text)
}

func (h *harness) session() *session.Session {
	h.t.Helper()
	s, err := h.sessions.Get(context.Background(), sender)
	require.NoError(h.t, err)
	return s
}

// guidedInputs answers every step with a valid value, in flow order
var guidedInputs = []struct {
	step  session.Step
	input string
}{
	{session.StepFirstName, "Priya"},
	{session.StepLastName, "Sharma"},
	{session.StepGender, "2"},
	{session.StepAddress, "12 MG Road, Pune"},
	{session.StepEmail, "priya@example.com"},
	{session.StepPhone, "+919876543210"},
	{session.StepDepartment, "cardiology"},
	{session.StepRegDate, "tomorrow"},
	{session.StepRegTime, "10am"},
}

// walkTo starts a guided flow and answers until the session sits at step
func (h *harness) walkTo(step session.Step) {
	h.t.Helper()
	h.send("register")
	for _, in := range guidedInputs {
		if in.step == step {
			require.Equal(h.t, step, h.session().Step)
			return
		}
		h.send(in.input)
	}
	h.t.Fatalf("step %s is not part of the guided flow", step)
}

func smallCatalog(t *testing.T, capacity int) *booking.Catalog {
	t.Helper()
	c, err := booking.NewCatalog(
		booking.Department{Name: "Cardiology", StartTime: "09:00", EndTime: "12:00", Capacity: capacity},
		booking.Department{Name: "Orthopedics", StartTime: "10:00", EndTime: "14:00", Capacity: capacity},
	)
	require.NoError(t, err)
	return c
}

func TestGreetingLeavesSessionUntouched(t *testing.T) {
	h := newHarness(t, nil)
	h.walkTo(session.StepEmail)

	reply := h.send("Hello!")
	assert.Equal(t, msgWelcome, reply)
	assert.Equal(t, session.StepEmail, h.session().Step)
}

func TestIdleGuidance(t *testing.T) {
	h := newHarness(t, nil)

	assert.Equal(t, msgGuidance, h.send("what is this?"))
	assert.Equal(t, session.StepNone, h.session().Step)
}

func TestMenuChoiceStartsGuidedFlow(t *testing.T) {
	h := newHarness(t, nil)

	assert.Equal(t, promptFirstName, h.send("1"))
	s := h.session()
	assert.Equal(t, session.StepFirstName, s.Step)
	assert.True(t, s.Data.IsZero())
}

func TestSingleShotBookingCreatesNoSession(t *testing.T) {
	h := newHarness(t, nil)

	reply := h.send("I am Priya, phone +919876543210, cardiology tomorrow 10am")
	assert.Contains(t, reply, "P1001")
	assert.Contains(t, reply, "Cardiology")
	assert.Contains(t, reply, "2025-11-10")
	assert.Contains(t, reply, "10:00")
	assert.Equal(t, session.StepNone, h.session().Step)

	p, err := h.allocator.GetPatient(context.Background(), "P1001")
	require.NoError(t, err)
	assert.Equal(t, booking.Registration{
		FirstName:  "Priya",
		Gender:     booking.GenderOther,
		Phone:      "+919876543210",
		Department: "Cardiology",
		Date:       "2025-11-10",
		Time:       "10:00",
	}, p.Registration)
}

func TestSingleShotFallbackOnFullSlot(t *testing.T) {
	h := newHarness(t, smallCatalog(t, 1))
	_, err := h.allocator.Allocate(context.Background(), booking.Registration{
		FirstName: "Ravi", Phone: "9876500000", Gender: booking.GenderMale,
		Department: "Cardiology", Date: "2025-11-10", Time: "10:00",
	})
	require.NoError(t, err)

	reply := h.send("I am Priya, phone +919876543210, cardiology tomorrow 10am")
	assert.Contains(t, reply, "fully booked")
	assert.Contains(t, reply, promptFirstName)

	s := h.session()
	assert.Equal(t, session.StepFirstName, s.Step)
	assert.True(t, s.Data.IsZero(), "extracted fields are discarded on fallback")
}

func TestSingleShotPastDateFallsBack(t *testing.T) {
	h := newHarness(t, nil)

	reply := h.send("I am Priya, phone +919876543210, cardiology 2025-11-01 10am")
	assert.Contains(t, reply, rejectDate)
	assert.Equal(t, session.StepFirstName, h.session().Step)
}

func TestEmailSkipThenInvalidPhone(t *testing.T) {
	h := newHarness(t, nil)
	h.walkTo(session.StepEmail)

	assert.Equal(t, promptPhone, h.send("skip"))
	s := h.session()
	assert.Equal(t, session.StepPhone, s.Step)
	assert.Equal(t, "", s.Data.Email)
	assert.Equal(t, "Priya", s.Data.FirstName)

	reply := h.send("not a number")
	assert.Contains(t, reply, rejectPhone)
	assert.Contains(t, reply, promptPhone)
	after := h.session()
	assert.Equal(t, session.StepPhone, after.Step)
	assert.Equal(t, s.Data, after.Data)
}

func TestSlotFullKeepsTimeStep(t *testing.T) {
	h := newHarness(t, smallCatalog(t, 1))
	_, err := h.allocator.Allocate(context.Background(), booking.Registration{
		FirstName: "Ravi", Phone: "9876500000", Gender: booking.GenderMale,
		Department: "Cardiology", Date: "2025-11-10", Time: "09:00",
	})
	require.NoError(t, err)

	h.walkTo(session.StepRegTime)
	before := h.session().Data

	reply := h.send("1")
	assert.Contains(t, reply, "fully booked")
	assert.Contains(t, reply, "1. 09:00")

	s := h.session()
	assert.Equal(t, session.StepRegTime, s.Step)
	assert.Equal(t, before, s.Data, "other fields stay intact")

	reply = h.send("10:00")
	assert.Contains(t, reply, "P1002")
	assert.Equal(t, session.StepNone, h.session().Step)
}

func TestGuidedFlowVisitsEveryStepInOrder(t *testing.T) {
	h := newHarness(t, nil)
	h.send("book an appointment")

	invalid := map[session.Step]string{
		session.StepGender:     "maybe",
		session.StepEmail:      "priya-at-example",
		session.StepPhone:      "123",
		session.StepDepartment: "neurology",
		session.StepRegDate:    "2025-11-09",
		session.StepRegTime:    "7",
	}

	for i, in := range guidedInputs {
		require.Equal(t, in.step, h.session().Step, "input %d", i)

		if bad, ok := invalid[in.step]; ok {
			h.send(bad)
			require.Equal(t, in.step, h.session().Step, "rejected %q must not advance", bad)
		}

		reply := h.send(in.input)
		if i+1 < len(guidedInputs) {
			next := guidedInputs[i+1].step
			require.Equal(t, next, h.session().Step)
			assert.Equal(t, steps[next].prompt(h.machine, h.session().Data), reply)
		} else {
			assert.Contains(t, reply, "Registration confirmed!")
		}
	}

	assert.Equal(t, session.StepNone, h.session().Step)
	p, err := h.allocator.GetPatient(context.Background(), "P1001")
	require.NoError(t, err)
	assert.Equal(t, booking.Registration{
		FirstName:  "Priya",
		LastName:   "Sharma",
		Gender:     booking.GenderFemale,
		Address:    "12 MG Road, Pune",
		Email:      "priya@example.com",
		Phone:      "+919876543210",
		Department: "Cardiology",
		Date:       "2025-11-10",
		Time:       "10:00",
	}, p.Registration)
}

func TestGuidedAndSingleShotProduceSameRecord(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.send("I am Priya, phone +919876543210, cardiology tomorrow 10am")

	h.send("register")
	for _, in := range []string{"Priya", "-", "3", "skip", "skip", "+919876543210", "1", "tomorrow", "10 am"} {
		h.send(in)
	}
	require.Equal(t, session.StepNone, h.session().Step)

	single, err := h.allocator.GetPatient(ctx, "P1001")
	require.NoError(t, err)
	guided, err := h.allocator.GetPatient(ctx, "P1002")
	require.NoError(t, err)
	assert.Equal(t, single.Registration, guided.Registration)
}

func TestNumericChoices(t *testing.T) {
	h := newHarness(t, nil)
	h.walkTo(session.StepDepartment)

	h.send("2")
	s := h.session()
	assert.Equal(t, "Orthopedics", s.Data.Department)

	h.send("day after tomorrow")
	s = h.session()
	assert.Equal(t, "2025-11-11", s.Data.Date)

	// Orthopedics runs 10:00 to 14:00
	reply := h.send("6")
	assert.Contains(t, reply, rejectTime)
	assert.Equal(t, session.StepRegTime, h.session().Step)

	reply = h.send("5")
	assert.Contains(t, reply, "Time: 14:00")
}

func TestTimeOutsideDepartmentHoursRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.walkTo(session.StepRegTime)

	reply := h.send("3pm")
	assert.Contains(t, reply, rejectTime)
	assert.Equal(t, session.StepRegTime, h.session().Step)
}

func TestResetPhraseDeletesSession(t *testing.T) {
	h := newHarness(t, nil)
	h.walkTo(session.StepPhone)

	assert.Equal(t, msgCancelled, h.send("start over"))
	assert.Equal(t, session.StepNone, h.session().Step)
}

func TestUnknownStepResets(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.sessions.Set(ctx, &session.Session{
		SenderID: sender,
		Step:     session.Step("BOGUS"),
		Data:     booking.Registration{FirstName: "Priya"},
	}))

	assert.Equal(t, msgSessionReset, h.send("anything"))
	assert.Equal(t, session.StepNone, h.session().Step)
}

func TestCorruptStoredSessionResets(t *testing.T) {
	h := newHarness(t, nil)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := session.NewStore(session.NewRedisRepository(client, 2*session.DefaultTTL), session.DefaultTTL,
		logging.Discard(), session.WithClock(h.clock.Now))
	h.sessions = store
	h.machine.sessions = store

	key := "session:" + sender
	require.NoError(t, mr.Set(key, "{not json"))

	assert.Equal(t, msgSessionReset, h.send("register"))
	assert.False(t, mr.Exists(key))

	assert.Equal(t, promptFirstName, h.send("register"))
	assert.Equal(t, session.StepFirstName, h.session().Step)
}

// flakyStore fails selected writes of an otherwise working store
type flakyStore struct {
	*session.Store
	failDelete bool
	failSet    bool
	deletes    int
}

func (s *flakyStore) Delete(ctx context.Context, senderID string) error {
	if s.failDelete {
		s.deletes++
		return errors.New("redis: connection refused")
	}
	return s.Store.Delete(ctx, senderID)
}

func (s *flakyStore) Set(ctx context.Context, sess *session.Session) error {
	if s.failSet {
		return errors.New("redis: connection refused")
	}
	return s.Store.Set(ctx, sess)
}

func TestUndeletableBookedSessionCannotBookAgain(t *testing.T) {
	h := newHarness(t, nil)
	h.walkTo(session.StepRegTime)
	flaky := &flakyStore{Store: h.sessions, failDelete: true}
	h.machine.sessions = flaky

	assert.Contains(t, h.send("10am"), "P1001")
	assert.Equal(t, 2, flaky.deletes, "delete is retried once")
	assert.Equal(t, session.StepCompleted, h.session().Step)

	assert.Equal(t, msgGuidance, h.send("11am"))
	_, err := h.allocator.GetPatient(context.Background(), "P1002")
	assert.ErrorIs(t, err, booking.ErrPatientNotFound)

	assert.Equal(t, promptFirstName, h.send("register"))
	assert.Equal(t, session.StepFirstName, h.session().Step)
}

func TestSlotFullWithUnsavableSessionFails(t *testing.T) {
	h := newHarness(t, smallCatalog(t, 1))
	ctx := context.Background()
	taken := booking.Registration{
		FirstName: "Ravi", Phone: "9876500000", Gender: booking.GenderMale,
		Department: "Cardiology", Date: "2025-11-10", Time: "09:00",
	}
	_, err := h.allocator.Allocate(ctx, taken)
	require.NoError(t, err)

	pending := taken
	pending.FirstName = "Priya"
	require.NoError(t, h.sessions.Set(ctx, &session.Session{SenderID: sender, Step: session.StepConfirming, Data: pending}))
	h.machine.sessions = &flakyStore{Store: h.sessions, failSet: true}

	assert.Equal(t, msgFailure, h.send("yes"))
	s := h.session()
	assert.Equal(t, session.StepConfirming, s.Step)
	assert.Equal(t, "09:00", s.Data.Time)
}

func TestExpiredSessionActsAsIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.walkTo(session.StepPhone)

	h.clock.Advance(31 * time.Minute)
	assert.Equal(t, msgGuidance, h.send("9876543210"))
	assert.Equal(t, session.StepNone, h.session().Step)
}

func TestRejectedInputRefreshesIdleTimer(t *testing.T) {
	h := newHarness(t, nil)
	h.walkTo(session.StepPhone)

	h.clock.Advance(20 * time.Minute)
	h.send("not a number")
	h.clock.Advance(20 * time.Minute)

	assert.Equal(t, session.StepPhone, h.session().Step)
}

type failingAllocator struct {
	err error
}

func (f failingAllocator) Allocate(context.Context, booking.Registration) (*booking.Patient, error) {
	return nil, f.err
}

func TestTransientAllocationFailurePreservesSession(t *testing.T) {
	h := newHarness(t, nil)
	h.walkTo(session.StepRegTime)
	before := h.session()

	h.machine.allocator = failingAllocator{err: errors.Join(booking.ErrStoreUnavailable, errors.New("connection refused"))}

	assert.Equal(t, msgFailure, h.send("10am"))
	after := h.session()
	assert.Equal(t, session.StepRegTime, after.Step)
	assert.Equal(t, before.Data, after.Data)
}

func TestSlotBeingBookedAsksToRetry(t *testing.T) {
	h := newHarness(t, nil)
	h.walkTo(session.StepRegTime)
	h.machine.allocator = failingAllocator{err: booking.ErrSlotBeingBooked}

	assert.Equal(t, msgSlotBusy, h.send("10am"))
	assert.Equal(t, session.StepRegTime, h.session().Step)
}

func TestConfirmingSession(t *testing.T) {
	ctx := context.Background()
	complete := booking.Registration{
		FirstName: "Priya", Gender: booking.GenderFemale, Phone: "+919876543210",
		Department: "Cardiology", Date: "2025-11-10", Time: "11:00",
	}

	t.Run("yes books", func(t *testing.T) {
		h := newHarness(t, nil)
		require.NoError(t, h.sessions.Set(ctx, &session.Session{SenderID: sender, Step: session.StepConfirming, Data: complete}))

		assert.Contains(t, h.send("maybe"), promptConfirm)
		assert.Contains(t, h.send("yes"), "P1001")
		assert.Equal(t, session.StepNone, h.session().Step)
	})

	t.Run("no cancels", func(t *testing.T) {
		h := newHarness(t, nil)
		require.NoError(t, h.sessions.Set(ctx, &session.Session{SenderID: sender, Step: session.StepConfirming, Data: complete}))

		assert.Equal(t, msgCancelled, h.send("no"))
		assert.Equal(t, session.StepNone, h.session().Step)
	})
}
