package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"labreserve/pkg/logger"
	"labreserve/pkg/model"
)

type fakeClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *fakeClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = at
}

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Publish(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]EventType, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.Type)
	}
	return types
}

type testEnv struct {
	engine *Engine
	store  *MemoryStore
	ledger *MemoryLedger
	events *captureSink
	clock  *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard})
	env := &testEnv{
		store:  NewMemoryStore(),
		ledger: NewMemoryLedger(),
		events: &captureSink{},
		clock:  &fakeClock{at: monday(8, 0)},
	}
	env.engine = New(env.store, env.ledger, log,
		WithClock(env.clock.Now),
		WithEventSink(env.events),
	)
	return env
}

func candidate(labID string, start, end time.Time) *model.Booking {
	return &model.Booking{
		LaboratoryID:      labID,
		RequesterID:       "student-1",
		StartTime:         start,
		EndTime:           end,
		Purpose:           model.PurposePractical,
		ExpectedAttendees: 20,
	}
}

func (env *testEnv) mustStatus(t *testing.T, id string, want model.BookingStatus) *model.Booking {
	t.Helper()
	b, err := env.store.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID(%s): %v", id, err)
	}
	if b.Status != want {
		t.Fatalf("booking %s status = %s, want %s", id, b.Status, want)
	}
	return b
}

func TestSubmitApprove_ThenOverlappingSubmitConflicts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	lab := testLab()

	b1 := candidate("lab1", monday(9, 0), monday(10, 0))
	if err := env.engine.Submit(ctx, b1, lab); err != nil {
		t.Fatalf("submit b1: %v", err)
	}
	env.mustStatus(t, b1.ID, model.StatusPending)
	if env.ledger.Len() != 0 {
		t.Fatal("submission must not touch the ledger")
	}

	if err := env.engine.Approve(ctx, b1.ID, "prof-1", lab); err != nil {
		t.Fatalf("approve b1: %v", err)
	}
	approved := env.mustStatus(t, b1.ID, model.StatusApproved)
	if approved.ApprovedBy != "prof-1" || approved.ApprovedAt == nil {
		t.Error("approval metadata not recorded")
	}
	if env.ledger.Len() != 1 {
		t.Fatalf("ledger holds %d entries, want 1", env.ledger.Len())
	}

	b2 := candidate("lab1", monday(9, 30), monday(10, 30))
	err := env.engine.Submit(ctx, b2, lab)
	var conflict *SlotConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected SlotConflictError, got %v", err)
	}
	if conflict.Stage != StageSubmission {
		t.Errorf("stage = %s, want %s", conflict.Stage, StageSubmission)
	}
	if len(conflict.Conflicting) != 1 || conflict.Conflicting[0] != b1.ID {
		t.Errorf("conflict must identify %s, got %v", b1.ID, conflict.Conflicting)
	}
}

func TestSubmit_CapacityCheckedBeforeAvailability(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	lab := testLab() // capacity 30

	// Occupy the slot so an availability check would also fail; the
	// capacity error must win because it is checked first.
	held := candidate("lab1", monday(9, 0), monday(10, 0))
	if err := env.engine.Submit(ctx, held, lab); err != nil {
		t.Fatalf("submit held: %v", err)
	}
	if err := env.engine.Approve(ctx, held.ID, "prof-1", lab); err != nil {
		t.Fatalf("approve held: %v", err)
	}

	b := candidate("lab1", monday(9, 0), monday(10, 0))
	b.ExpectedAttendees = 35
	err := env.engine.Submit(ctx, b, lab)
	var capErr *CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapacityError, got %v", err)
	}
	if capErr.Requested != 35 || capErr.Capacity != 30 {
		t.Errorf("CapacityError = %+v", capErr)
	}
}

func TestSubmit_AutoApprovalWithoutApprovalPolicy(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	lab := testLab()
	lab.Rules.RequireApproval = false

	b := candidate("lab1", monday(9, 0), monday(10, 0))
	if err := env.engine.Submit(ctx, b, lab); err != nil {
		t.Fatalf("submit: %v", err)
	}

	env.mustStatus(t, b.ID, model.StatusApproved)
	if env.ledger.Len() != 1 {
		t.Errorf("auto-approved booking must be committed, ledger has %d entries", env.ledger.Len())
	}
	types := env.events.types()
	if len(types) != 2 || types[0] != EventBookingSubmitted || types[1] != EventBookingApproved {
		t.Errorf("events = %v, want [BookingSubmitted BookingApproved]", types)
	}
}

func TestSubmit_RejectsExternallyAttachedOccurrences(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	b := candidate("lab1", monday(9, 0), monday(10, 0))
	b.ParentBookingID = "someroot"
	err := env.engine.Submit(ctx, b, testLab())
	var ruleErr *RuleViolationError
	if !errors.As(err, &ruleErr) || ruleErr.Rule != "parent_booking" {
		t.Fatalf("expected parent_booking rule violation, got %v", err)
	}
}

func TestApprove_LoserOfSlotRaceIsAutoRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	lab := testLab()

	b1 := candidate("lab1", monday(9, 0), monday(10, 0))
	b2 := candidate("lab1", monday(9, 30), monday(10, 30))
	if err := env.engine.Submit(ctx, b1, lab); err != nil {
		t.Fatalf("submit b1: %v", err)
	}
	if err := env.engine.Submit(ctx, b2, lab); err != nil {
		t.Fatalf("submit b2: %v", err)
	}

	if err := env.engine.Approve(ctx, b1.ID, "prof-1", lab); err != nil {
		t.Fatalf("approve b1: %v", err)
	}

	err := env.engine.Approve(ctx, b2.ID, "prof-2", lab)
	var conflict *SlotConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected SlotConflictError, got %v", err)
	}
	if conflict.Stage != StageApproval {
		t.Errorf("stage = %s, want %s", conflict.Stage, StageApproval)
	}

	// The loser must not be left pending.
	rejected := env.mustStatus(t, b2.ID, model.StatusRejected)
	if rejected.RejectedBy != SystemActor || rejected.RejectionReason == "" {
		t.Errorf("auto-rejection metadata missing: %+v", rejected)
	}
	if env.ledger.Len() != 1 {
		t.Errorf("ledger holds %d entries, want 1", env.ledger.Len())
	}
}

func TestApprove_ConcurrentOverlappingApprovals(t *testing.T) {
	lab := testLab()

	// Run with -race. Exactly one of two racing approvals may commit.
	for round := 0; round < 30; round++ {
		ctx := context.Background()
		env := newTestEnv(t)

		b1 := candidate("lab1", monday(9, 0), monday(10, 0))
		b2 := candidate("lab1", monday(9, 30), monday(10, 30))
		if err := env.engine.Submit(ctx, b1, lab); err != nil {
			t.Fatalf("submit b1: %v", err)
		}
		if err := env.engine.Submit(ctx, b2, lab); err != nil {
			t.Fatalf("submit b2: %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = env.engine.Approve(ctx, b1.ID, "prof-1", lab)
		}()
		go func() {
			defer wg.Done()
			_ = env.engine.Approve(ctx, b2.ID, "prof-2", lab)
		}()
		wg.Wait()

		s1, _ := env.store.FindByID(ctx, b1.ID)
		s2, _ := env.store.FindByID(ctx, b2.ID)
		approvedCount := 0
		rejectedCount := 0
		for _, b := range []*model.Booking{s1, s2} {
			switch b.Status {
			case model.StatusApproved:
				approvedCount++
			case model.StatusRejected:
				rejectedCount++
			}
		}
		if approvedCount != 1 || rejectedCount != 1 {
			t.Fatalf("round %d: approved=%d rejected=%d, want exactly one of each (b1=%s b2=%s)",
				round, approvedCount, rejectedCount, s1.Status, s2.Status)
		}
		if env.ledger.Len() != 1 {
			t.Fatalf("round %d: ledger holds %d entries, want 1", round, env.ledger.Len())
		}
	}
}

func TestApprove_IllegalFromTerminalStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	lab := testLab()

	b := candidate("lab1", monday(9, 0), monday(10, 0))
	if err := env.engine.Submit(ctx, b, lab); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := env.engine.Reject(ctx, b.ID, "prof-1", "room under maintenance"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	err := env.engine.Approve(ctx, b.ID, "prof-1", lab)
	var transition *TransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if transition.From != model.StatusRejected {
		t.Errorf("transition error From = %s, want rejected", transition.From)
	}
}

func TestReject_RecordsMetadataWithoutLedgerEffect(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	b := candidate("lab1", monday(9, 0), monday(10, 0))
	if err := env.engine.Submit(ctx, b, testLab()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := env.engine.Reject(ctx, b.ID, "prof-1", "overbooked week"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	rejected := env.mustStatus(t, b.ID, model.StatusRejected)
	if rejected.RejectedBy != "prof-1" || rejected.RejectionReason != "overbooked week" || rejected.RejectedAt == nil {
		t.Errorf("rejection metadata missing: %+v", rejected)
	}
	if env.ledger.Len() != 0 {
		t.Error("rejecting a pending booking must not touch the ledger")
	}
}

func TestCancel_ReleasesCommittedSlot(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	lab := testLab()

	b := candidate("lab1", monday(9, 0), monday(10, 0))
	if err := env.engine.Submit(ctx, b, lab); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := env.engine.Approve(ctx, b.ID, "prof-1", lab); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := env.engine.Cancel(ctx, b.ID, "student-1", "class moved online", false); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	cancelled := env.mustStatus(t, b.ID, model.StatusCancelled)
	if cancelled.CancelledAt == nil || cancelled.CancellationReason == "" {
		t.Errorf("cancellation metadata missing: %+v", cancelled)
	}
	if env.ledger.Len() != 0 {
		t.Fatal("cancelled booking must release its ledger entry")
	}

	// The freed slot is bookable again.
	next := candidate("lab1", monday(9, 0), monday(10, 0))
	if err := env.engine.Submit(ctx, next, lab); err != nil {
		t.Errorf("slot should be free after cancellation: %v", err)
	}
}

func TestCancel_TerminalStatusIsIllegal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	b := candidate("lab1", monday(9, 0), monday(10, 0))
	if err := env.engine.Submit(ctx, b, testLab()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := env.engine.Reject(ctx, b.ID, "prof-1", "no"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	err := env.engine.Cancel(ctx, b.ID, "student-1", "changed my mind", false)
	var transition *TransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
}

func submitRecurringSeries(t *testing.T, env *testEnv, lab model.Laboratory) *model.Booking {
	t.Helper()
	root := candidate("lab1", time.Time{}, time.Time{})
	root.IsRecurring = true
	root.Recurrence = &model.RecurrencePattern{
		Frequency:  model.FrequencyWeekly,
		DaysOfWeek: []model.Weekday{model.Tuesday},
		StartDate:  "2025-03-03",
		EndDate:    "2025-03-18",
		StartTime:  "10:00",
		EndTime:    "11:00",
	}
	// Roots derive their span from the expansion; the submitted interval
	// seeds structural validation only.
	root.StartTime = monday(10, 0)
	root.EndTime = monday(11, 0)

	if err := env.engine.Submit(context.Background(), root, lab); err != nil {
		t.Fatalf("submit recurring root: %v", err)
	}
	return root
}

func TestSubmitRecurring_GeneratesChildren(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	lab := testLab()

	root := submitRecurringSeries(t, env, lab)

	children, err := env.store.FindChildren(ctx, root.ID)
	if err != nil {
		t.Fatalf("FindChildren: %v", err)
	}
	if len(children) != 3 {
		t.Fatalf("expected 3 occurrences, got %d", len(children))
	}
	for i, c := range children {
		if c.ParentBookingID != root.ID {
			t.Errorf("child %d parent = %q, want %q", i, c.ParentBookingID, root.ID)
		}
		if c.Status != model.StatusPending {
			t.Errorf("child %d status = %s, want pending", i, c.Status)
		}
		if c.Purpose != root.Purpose || c.RequesterID != root.RequesterID {
			t.Errorf("child %d did not inherit purpose/requester", i)
		}
	}
	if env.ledger.Len() != 0 {
		t.Error("pending series must not occupy the ledger")
	}

	stored, _ := env.store.FindByID(ctx, root.ID)
	if !stored.StartTime.Equal(children[0].StartTime) || !stored.EndTime.Equal(children[2].EndTime) {
		t.Errorf("root span [%s, %s] does not cover the series", stored.StartTime, stored.EndTime)
	}
}

func TestSubmitRecurring_DisallowedByPolicy(t *testing.T) {
	env := newTestEnv(t)
	lab := testLab()
	lab.Rules.AllowRecurring = false

	root := candidate("lab1", monday(10, 0), monday(11, 0))
	root.IsRecurring = true
	root.Recurrence = &model.RecurrencePattern{
		Frequency:  model.FrequencyWeekly,
		DaysOfWeek: []model.Weekday{model.Tuesday},
		StartDate:  "2025-03-03",
		EndDate:    "2025-03-18",
		StartTime:  "10:00",
		EndTime:    "11:00",
	}

	err := env.engine.Submit(context.Background(), root, lab)
	var ruleErr *RuleViolationError
	if !errors.As(err, &ruleErr) || ruleErr.Rule != "allow_recurring" {
		t.Fatalf("expected allow_recurring violation, got %v", err)
	}
	if env.store.Len() != 0 {
		t.Error("failed series submit must not persist anything")
	}
}

func TestSubmitRecurring_OneConflictFailsWholeSeries(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	lab := testLab()

	// Occupy the second Tuesday.
	held := candidate("lab1", monday(10, 0).AddDate(0, 0, 8), monday(11, 0).AddDate(0, 0, 8))
	if err := env.engine.Submit(ctx, held, lab); err != nil {
		t.Fatalf("submit held: %v", err)
	}
	if err := env.engine.Approve(ctx, held.ID, "prof-1", lab); err != nil {
		t.Fatalf("approve held: %v", err)
	}
	storedBefore := env.store.Len()

	root := candidate("lab1", monday(10, 0), monday(11, 0))
	root.IsRecurring = true
	root.Recurrence = &model.RecurrencePattern{
		Frequency:  model.FrequencyWeekly,
		DaysOfWeek: []model.Weekday{model.Tuesday},
		StartDate:  "2025-03-03",
		EndDate:    "2025-03-18",
		StartTime:  "10:00",
		EndTime:    "11:00",
	}

	err := env.engine.Submit(ctx, root, lab)
	var conflict *SlotConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected SlotConflictError, got %v", err)
	}
	if env.store.Len() != storedBefore {
		t.Error("a conflicting series must leave no root or children behind")
	}
}

func TestApproveRecurring_CommitsAllOccurrences(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	lab := testLab()

	root := submitRecurringSeries(t, env, lab)
	if err := env.engine.Approve(ctx, root.ID, "prof-1", lab); err != nil {
		t.Fatalf("approve root: %v", err)
	}

	env.mustStatus(t, root.ID, model.StatusApproved)
	children, _ := env.store.FindChildren(ctx, root.ID)
	for _, c := range children {
		if c.Status != model.StatusApproved {
			t.Errorf("child %s status = %s, want approved", c.ID, c.Status)
		}
	}
	if env.ledger.Len() != 3 {
		t.Errorf("ledger holds %d entries, want 3 (one per occurrence, none for the root)", env.ledger.Len())
	}
}

func TestCancelRecurring_CascadeReleasesEverything(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	lab := testLab()

	root := submitRecurringSeries(t, env, lab)
	if err := env.engine.Approve(ctx, root.ID, "prof-1", lab); err != nil {
		t.Fatalf("approve root: %v", err)
	}

	if err := env.engine.Cancel(ctx, root.ID, "student-1", "course cancelled", true); err != nil {
		t.Fatalf("cascade cancel: %v", err)
	}

	env.mustStatus(t, root.ID, model.StatusCancelled)
	children, _ := env.store.FindChildren(ctx, root.ID)
	for _, c := range children {
		if !c.Status.Terminal() {
			t.Errorf("child %s left non-terminal after cascade: %s", c.ID, c.Status)
		}
	}
	if env.ledger.Len() != 0 {
		t.Errorf("cascade cancel must empty the ledger, %d entries remain", env.ledger.Len())
	}
}

func TestCancelRecurring_SingleChildLeavesSiblings(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	lab := testLab()

	root := submitRecurringSeries(t, env, lab)
	if err := env.engine.Approve(ctx, root.ID, "prof-1", lab); err != nil {
		t.Fatalf("approve root: %v", err)
	}
	children, _ := env.store.FindChildren(ctx, root.ID)

	if err := env.engine.Cancel(ctx, children[1].ID, "student-1", "skip this week", false); err != nil {
		t.Fatalf("cancel child: %v", err)
	}

	env.mustStatus(t, children[1].ID, model.StatusCancelled)
	env.mustStatus(t, children[0].ID, model.StatusApproved)
	env.mustStatus(t, children[2].ID, model.StatusApproved)
	if env.ledger.Len() != 2 {
		t.Errorf("ledger holds %d entries, want 2", env.ledger.Len())
	}
}

func TestCheckInCheckOutFlow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	lab := testLab()

	b := candidate("lab1", monday(9, 0), monday(10, 0))
	if err := env.engine.Submit(ctx, b, lab); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := env.engine.Approve(ctx, b.ID, "prof-1", lab); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// Too early: the interval has not started.
	err := env.engine.CheckIn(ctx, b.ID)
	var ruleErr *RuleViolationError
	if !errors.As(err, &ruleErr) || ruleErr.Rule != "check_in_window" {
		t.Fatalf("expected check_in_window violation, got %v", err)
	}

	env.clock.Set(monday(9, 5))
	if err := env.engine.CheckIn(ctx, b.ID); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	confirmed := env.mustStatus(t, b.ID, model.StatusConfirmed)
	if confirmed.CheckInAt == nil {
		t.Error("check-in timestamp missing")
	}

	// Check-in is not repeatable.
	if err := env.engine.CheckIn(ctx, b.ID); err == nil {
		t.Error("second check-in must fail")
	}

	env.clock.Set(monday(9, 55))
	if err := env.engine.CheckOut(ctx, b.ID, 18); err != nil {
		t.Fatalf("check-out: %v", err)
	}
	completed := env.mustStatus(t, b.ID, model.StatusCompleted)
	if completed.CheckOutAt == nil || completed.ActualAttendees != 18 {
		t.Errorf("check-out metadata missing: %+v", completed)
	}
	if env.ledger.Len() != 0 {
		t.Error("completed booking must leave the ledger")
	}
}

func TestNoShow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	lab := testLab()

	b := candidate("lab1", monday(9, 0), monday(10, 0))
	if err := env.engine.Submit(ctx, b, lab); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := env.engine.Approve(ctx, b.ID, "prof-1", lab); err != nil {
		t.Fatalf("approve: %v", err)
	}
	approved, _ := env.store.FindByID(ctx, b.ID)

	grace := 15 * time.Minute
	if IsOverdueForCheckIn(approved, monday(9, 10), grace) {
		t.Error("not overdue inside the grace period")
	}
	if !IsOverdueForCheckIn(approved, monday(9, 20), grace) {
		t.Error("overdue past the grace period")
	}

	checkedIn := *approved
	checkedInAt := monday(9, 5)
	checkedIn.CheckInAt = &checkedInAt
	if IsOverdueForCheckIn(&checkedIn, monday(9, 20), grace) {
		t.Error("a checked-in booking is never overdue")
	}

	if err := env.engine.MarkNoShow(ctx, b.ID); err != nil {
		t.Fatalf("mark no-show: %v", err)
	}
	env.mustStatus(t, b.ID, model.StatusNoShow)
	if env.ledger.Len() != 0 {
		t.Error("no-show booking must leave the ledger")
	}
}

// TestLedgerInvariantAfterMixedOperations drives a sequence of submissions,
// approvals and cancellations and then verifies the global invariant: no
// two committed bookings on the same laboratory overlap.
func TestLedgerInvariantAfterMixedOperations(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	lab := testLab()

	var ids []string
	for day := 0; day < 5; day++ {
		for hour := 8; hour < 17; hour += 2 {
			b := candidate("lab1", monday(hour, 0).AddDate(0, 0, day), monday(hour+1, 30).AddDate(0, 0, day))
			if err := env.engine.Submit(ctx, b, lab); err != nil {
				continue
			}
			if err := env.engine.Approve(ctx, b.ID, "prof-1", lab); err != nil {
				continue
			}
			ids = append(ids, b.ID)
		}
	}
	// Overlapping rivals: every one must fail at submit or approve.
	for day := 0; day < 5; day++ {
		b := candidate("lab1", monday(8, 30).AddDate(0, 0, day), monday(10, 0).AddDate(0, 0, day))
		if err := env.engine.Submit(ctx, b, lab); err == nil {
			_ = env.engine.Approve(ctx, b.ID, "prof-2", lab)
		}
	}
	// Free some slots again.
	for i, id := range ids {
		if i%3 == 0 {
			if err := env.engine.Cancel(ctx, id, "student-1", "freed", false); err != nil {
				t.Fatalf("cancel %s: %v", id, err)
			}
		}
	}

	entries := env.ledger.Entries()
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			a, b := entries[i], entries[j]
			if a.LaboratoryID == b.LaboratoryID && a.Interval.Overlaps(b.Interval) {
				t.Fatalf("ledger invariant broken: %s and %s overlap on %s", a.BookingID, b.BookingID, a.LaboratoryID)
			}
		}
	}
}
