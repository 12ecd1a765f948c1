package engine

import (
	"context"
	"errors"
	"time"

	"labreserve/pkg/logger"
	"labreserve/pkg/model"
)

// SystemActor is recorded as the acting party on automatic transitions,
// such as the auto-reject that resolves a lost approval race.
const SystemActor = "system"

// Engine owns the booking lifecycle: it validates candidates, expands
// recurring patterns, checks availability and mediates every status
// transition. The ledger is its only mutable shared state; callers
// serialize check-then-commit externally (advisory locks, transactions)
// when the ledger implementation requires it.
type Engine struct {
	store    BookingStore
	ledger   Ledger
	checker  *AvailabilityChecker
	expander *Expander
	events   EventSink
	clock    func() time.Time
	log      *logger.Logger
}

type Option func(*Engine)

// WithClock overrides the time source. Tests pin it.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.events = sink }
}

func WithMaxOccurrences(n int) Option {
	return func(e *Engine) { e.expander = NewExpander(n) }
}

func New(store BookingStore, ledger Ledger, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		ledger:   ledger,
		checker:  NewAvailabilityChecker(ledger),
		expander: NewExpander(DefaultMaxOccurrences),
		events:   NopSink{},
		clock:    time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckAvailability runs the availability checker without touching the
// ledger. It backs the read-only availability probe.
func (e *Engine) CheckAvailability(ctx context.Context, lab model.Laboratory, iv Interval, equipmentIDs []string, excludeBookingID string) error {
	return e.checker.Check(ctx, lab, iv, equipmentIDs, excludeBookingID, e.clock())
}

// Submit validates a candidate and moves it to pending, or straight to
// approved (committing its interval) when the laboratory does not require
// approval. Recurring candidates are expanded into child occurrences;
// the whole series is accepted or rejected as one unit. On conflict the
// ledger is left untouched and the error names the conflicting bookings.
func (e *Engine) Submit(ctx context.Context, b *model.Booking, lab model.Laboratory) error {
	now := e.clock().UTC()

	if b.ParentBookingID != "" {
		// Occurrences are generated from the recurrence pattern; a
		// candidate may never attach itself to an existing series.
		return &RuleViolationError{Rule: "parent_booking", Limit: "occurrences are engine-generated"}
	}
	switch b.Status {
	case "", model.StatusDraft, model.StatusPending:
	default:
		return &TransitionError{BookingID: b.ID, From: b.Status, Op: "submit"}
	}

	iv, err := NewInterval(b.StartTime, b.EndTime)
	if err != nil {
		return err
	}
	if b.ExpectedAttendees > lab.Capacity {
		return &CapacityError{Requested: b.ExpectedAttendees, Capacity: lab.Capacity}
	}

	if b.IsRecurring {
		return e.submitRecurring(ctx, b, lab, now)
	}

	if err := e.checker.Check(ctx, lab, iv, b.EquipmentIDs, "", now); err != nil {
		return err
	}

	b.Status = model.StatusPending
	b.Priority = defaultPriority(b.Priority)
	b.CreatedAt = now
	b.UpdatedAt = now
	if err := e.store.Insert(ctx, b); err != nil {
		return err
	}
	e.emit(ctx, EventBookingSubmitted, b, "", "")

	if !lab.Rules.RequireApproval {
		return e.commitApproval(ctx, b, SystemActor, lab, now)
	}
	return nil
}

func (e *Engine) submitRecurring(ctx context.Context, root *model.Booking, lab model.Laboratory, now time.Time) error {
	if !lab.Rules.AllowRecurring {
		return &RuleViolationError{Rule: "allow_recurring", Limit: "recurring bookings disabled"}
	}
	if root.Recurrence == nil {
		return &RuleViolationError{Rule: "recurrence_pattern", Limit: "required for recurring bookings"}
	}

	occurrences, err := e.expander.Expand(*root.Recurrence)
	if err != nil {
		return err
	}
	if len(occurrences) == 0 {
		return &RuleViolationError{Rule: "recurrence_pattern", Limit: "must match at least one date"}
	}

	for _, iv := range occurrences {
		if err := e.checker.Check(ctx, lab, iv, root.EquipmentIDs, "", now); err != nil {
			return err
		}
	}

	// The root spans the whole series but never occupies the ledger
	// itself; its children carry the concrete intervals.
	root.StartTime = occurrences[0].Start
	root.EndTime = occurrences[len(occurrences)-1].End
	root.Status = model.StatusPending
	root.Priority = defaultPriority(root.Priority)
	root.CreatedAt = now
	root.UpdatedAt = now
	if err := e.store.Insert(ctx, root); err != nil {
		return err
	}

	children := make([]*model.Booking, 0, len(occurrences))
	for _, iv := range occurrences {
		children = append(children, &model.Booking{
			LaboratoryID:      root.LaboratoryID,
			RequesterID:       root.RequesterID,
			StartTime:         iv.Start,
			EndTime:           iv.End,
			Purpose:           root.Purpose,
			Status:            model.StatusPending,
			Priority:          root.Priority,
			ExpectedAttendees: root.ExpectedAttendees,
			Notes:             root.Notes,
			ParentBookingID:   root.ID,
			EquipmentIDs:      root.EquipmentIDs,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}
	if err := e.store.Insert(ctx, children...); err != nil {
		return err
	}
	e.emit(ctx, EventBookingSubmitted, root, "", "")

	if !lab.Rules.RequireApproval {
		return e.commitSeriesApproval(ctx, root, children, SystemActor, now)
	}
	return nil
}

// Approve moves a pending booking to approved. The availability check is
// re-run at approval time and the ledger commit re-validates under its own
// lock, so of two racing approvals exactly one wins; the loser is
// auto-rejected with a system reason rather than left pending.
func (e *Engine) Approve(ctx context.Context, id, approverID string, lab model.Laboratory) error {
	b, err := e.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if b.Status != model.StatusPending {
		err := &TransitionError{BookingID: b.ID, From: b.Status, Op: "approve"}
		e.log.Warn("Illegal booking transition", "id", b.ID, "status", b.Status, "op", "approve")
		return err
	}

	now := e.clock().UTC()
	if b.IsRoot() {
		children, err := e.store.FindChildren(ctx, b.ID)
		if err != nil {
			return err
		}
		return e.commitSeriesApproval(ctx, b, children, approverID, now)
	}
	return e.commitApproval(ctx, b, approverID, lab, now)
}

// commitApproval is the check-then-commit critical section for one booking.
func (e *Engine) commitApproval(ctx context.Context, b *model.Booking, approverID string, lab model.Laboratory, now time.Time) error {
	iv := Interval{Start: b.StartTime, End: b.EndTime}
	if err := e.checker.Check(ctx, lab, iv, b.EquipmentIDs, b.ID, now); err != nil {
		return e.resolveApprovalFailure(ctx, b, err)
	}

	entry := Entry{BookingID: b.ID, LaboratoryID: b.LaboratoryID, EquipmentIDs: b.EquipmentIDs, Interval: iv}
	if err := e.ledger.Commit(ctx, entry); err != nil {
		return e.resolveApprovalFailure(ctx, b, err)
	}

	b.Status = model.StatusApproved
	b.ApprovedBy = approverID
	b.ApprovedAt = &now
	b.UpdatedAt = now
	if err := e.store.Update(ctx, b); err != nil {
		// Undo the commit so a failed persistence never leaves a phantom
		// ledger entry.
		_ = e.ledger.Release(ctx, b.ID)
		return err
	}

	e.emit(ctx, EventBookingApproved, b, approverID, "")
	e.log.Info("Booking approved", "id", b.ID, "laboratory_id", b.LaboratoryID, "approved_by", approverID)
	return nil
}

// commitSeriesApproval approves a recurring root and all its pending
// children as one unit; children are processed in interval-start order and
// one batched ledger commit keeps the cascade atomic.
func (e *Engine) commitSeriesApproval(ctx context.Context, root *model.Booking, children []*model.Booking, approverID string, now time.Time) error {
	pending := make([]*model.Booking, 0, len(children))
	entries := make([]Entry, 0, len(children))
	for _, c := range children {
		if c.Status != model.StatusPending {
			continue
		}
		pending = append(pending, c)
		entries = append(entries, Entry{
			BookingID:    c.ID,
			LaboratoryID: c.LaboratoryID,
			EquipmentIDs: c.EquipmentIDs,
			Interval:     Interval{Start: c.StartTime, End: c.EndTime},
		})
	}

	if err := e.ledger.Commit(ctx, entries...); err != nil {
		return e.resolveApprovalFailure(ctx, root, err)
	}

	committed := make([]string, 0, len(entries))
	for _, entry := range entries {
		committed = append(committed, entry.BookingID)
	}

	for _, b := range append([]*model.Booking{root}, pending...) {
		b.Status = model.StatusApproved
		b.ApprovedBy = approverID
		b.ApprovedAt = &now
		b.UpdatedAt = now
		if err := e.store.Update(ctx, b); err != nil {
			_ = e.ledger.Release(ctx, committed...)
			return &CascadeError{RootID: root.ID, ChildID: b.ID, Err: err}
		}
	}

	e.emit(ctx, EventBookingApproved, root, approverID, "")
	e.log.Info("Booking series approved", "id", root.ID, "occurrences", len(pending), "approved_by", approverID)
	return nil
}

// resolveApprovalFailure turns a lost approval race into a clean terminal
// state: conflicts auto-reject the booking (and its pending children) with
// a system reason; policy errors leave it pending for the caller to act on.
func (e *Engine) resolveApprovalFailure(ctx context.Context, b *model.Booking, cause error) error {
	var conflict *SlotConflictError
	if !errors.As(cause, &conflict) {
		return cause
	}
	conflict.Stage = StageApproval

	now := e.clock().UTC()
	reason := "slot no longer available: " + conflict.Error()
	targets := []*model.Booking{b}
	if b.IsRoot() {
		children, err := e.store.FindChildren(ctx, b.ID)
		if err != nil {
			return err
		}
		for _, c := range children {
			if c.Status == model.StatusPending {
				targets = append(targets, c)
			}
		}
	}
	for _, t := range targets {
		t.Status = model.StatusRejected
		t.RejectedBy = SystemActor
		t.RejectedAt = &now
		t.RejectionReason = reason
		t.UpdatedAt = now
		if err := e.store.Update(ctx, t); err != nil {
			return err
		}
	}

	e.emit(ctx, EventBookingRejected, b, SystemActor, reason)
	e.log.Warn("Approval lost slot race, booking auto-rejected",
		"id", b.ID,
		"conflicting", conflict.Conflicting,
	)
	return conflict
}

// Reject refuses a pending booking. Nothing was ever committed, so the
// ledger is untouched. Rejecting a recurring root rejects its pending
// children with it.
func (e *Engine) Reject(ctx context.Context, id, approverID, reason string) error {
	b, err := e.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if b.Status != model.StatusPending {
		e.log.Warn("Illegal booking transition", "id", b.ID, "status", b.Status, "op", "reject")
		return &TransitionError{BookingID: b.ID, From: b.Status, Op: "reject"}
	}

	now := e.clock().UTC()
	targets := []*model.Booking{b}
	if b.IsRoot() {
		children, err := e.store.FindChildren(ctx, b.ID)
		if err != nil {
			return err
		}
		for _, c := range children {
			if c.Status == model.StatusPending {
				targets = append(targets, c)
			}
		}
	}
	for _, t := range targets {
		t.Status = model.StatusRejected
		t.RejectedBy = approverID
		t.RejectedAt = &now
		t.RejectionReason = reason
		t.UpdatedAt = now
		if err := e.store.Update(ctx, t); err != nil {
			return err
		}
	}

	e.emit(ctx, EventBookingRejected, b, approverID, reason)
	e.log.Info("Booking rejected", "id", b.ID, "rejected_by", approverID)
	return nil
}

// Cancel withdraws a pending, approved or confirmed booking, releasing any
// committed interval. With cascade set, cancelling a recurring root cancels
// every non-terminal child in interval-start order as one unit; cancelling
// a single child never touches its siblings.
func (e *Engine) Cancel(ctx context.Context, id, actorID, reason string, cascade bool) error {
	b, err := e.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	switch b.Status {
	case model.StatusPending, model.StatusApproved, model.StatusConfirmed:
	default:
		e.log.Warn("Illegal booking transition", "id", b.ID, "status", b.Status, "op", "cancel")
		return &TransitionError{BookingID: b.ID, From: b.Status, Op: "cancel"}
	}

	now := e.clock().UTC()
	targets := []*model.Booking{b}
	if b.IsRoot() && cascade {
		children, err := e.store.FindChildren(ctx, b.ID)
		if err != nil {
			return &CascadeError{RootID: b.ID, Err: err}
		}
		for _, c := range children {
			if !c.Status.Terminal() {
				targets = append(targets, c)
			}
		}
	}

	var release []string
	for _, t := range targets {
		if t.Status.Committed() && !t.IsRoot() {
			release = append(release, t.ID)
		}
		t.Status = model.StatusCancelled
		t.CancelledBy = actorID
		t.CancelledAt = &now
		t.CancellationReason = reason
		t.UpdatedAt = now
		if err := e.store.Update(ctx, t); err != nil {
			if len(targets) > 1 {
				return &CascadeError{RootID: b.ID, ChildID: t.ID, Err: err}
			}
			return err
		}
	}
	if err := e.ledger.Release(ctx, release...); err != nil {
		return err
	}

	e.emit(ctx, EventBookingCancelled, b, actorID, reason)
	e.log.Info("Booking cancelled", "id", b.ID, "cancelled_by", actorID, "cascade", cascade, "released", len(release))
	return nil
}

// CheckIn confirms physical arrival for an approved booking whose interval
// has started and not yet ended.
func (e *Engine) CheckIn(ctx context.Context, id string) error {
	b, err := e.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if b.Status != model.StatusApproved {
		e.log.Warn("Illegal booking transition", "id", b.ID, "status", b.Status, "op", "check-in")
		return &TransitionError{BookingID: b.ID, From: b.Status, Op: "check in"}
	}

	now := e.clock().UTC()
	if now.Before(b.StartTime) || !now.Before(b.EndTime) {
		return &RuleViolationError{Rule: "check_in_window", Limit: "within the booked interval"}
	}

	b.Status = model.StatusConfirmed
	b.CheckInAt = &now
	b.UpdatedAt = now
	if err := e.store.Update(ctx, b); err != nil {
		return err
	}

	e.emit(ctx, EventBookingCheckedIn, b, b.RequesterID, "")
	e.log.Info("Booking checked in", "id", b.ID)
	return nil
}

// CheckOut completes a confirmed booking, recording actual attendance and
// freeing the slot.
func (e *Engine) CheckOut(ctx context.Context, id string, actualAttendees int) error {
	b, err := e.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if b.Status != model.StatusConfirmed {
		e.log.Warn("Illegal booking transition", "id", b.ID, "status", b.Status, "op", "check-out")
		return &TransitionError{BookingID: b.ID, From: b.Status, Op: "check out"}
	}

	now := e.clock().UTC()
	b.Status = model.StatusCompleted
	b.CheckOutAt = &now
	b.ActualAttendees = actualAttendees
	b.UpdatedAt = now
	if err := e.store.Update(ctx, b); err != nil {
		return err
	}
	if err := e.ledger.Release(ctx, b.ID); err != nil {
		return err
	}

	e.emit(ctx, EventBookingCheckedOut, b, b.RequesterID, "")
	e.emit(ctx, EventBookingCompleted, b, b.RequesterID, "")
	e.log.Info("Booking completed", "id", b.ID, "actual_attendees", actualAttendees)
	return nil
}

// MarkNoShow terminates an approved booking that was never checked in. The
// grace-period sweep driving this lives outside the engine; it decides via
// IsOverdueForCheckIn.
func (e *Engine) MarkNoShow(ctx context.Context, id string) error {
	b, err := e.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if b.Status != model.StatusApproved {
		e.log.Warn("Illegal booking transition", "id", b.ID, "status", b.Status, "op", "no-show")
		return &TransitionError{BookingID: b.ID, From: b.Status, Op: "mark no-show"}
	}

	now := e.clock().UTC()
	b.Status = model.StatusNoShow
	b.UpdatedAt = now
	if err := e.store.Update(ctx, b); err != nil {
		return err
	}
	if err := e.ledger.Release(ctx, b.ID); err != nil {
		return err
	}

	e.emit(ctx, EventBookingNoShow, b, SystemActor, "")
	e.log.Info("Booking marked no-show", "id", b.ID)
	return nil
}

// IsOverdueForCheckIn reports whether an approved booking has passed its
// start by more than the grace period without a check-in. Pure; external
// schedulers call it to drive MarkNoShow.
func IsOverdueForCheckIn(b *model.Booking, now time.Time, grace time.Duration) bool {
	if b == nil || b.Status != model.StatusApproved || b.CheckInAt != nil {
		return false
	}
	return now.UTC().After(b.StartTime.Add(grace))
}

func (e *Engine) emit(ctx context.Context, typ EventType, b *model.Booking, actorID, reason string) {
	event := Event{
		Type:            typ,
		BookingID:       b.ID,
		LaboratoryID:    b.LaboratoryID,
		RequesterID:     b.RequesterID,
		ParentBookingID: b.ParentBookingID,
		ActorID:         actorID,
		Reason:          reason,
		OccurredAt:      e.clock().UTC(),
	}
	if err := e.events.Publish(ctx, event); err != nil {
		e.log.Warn("Failed to publish booking event",
			"type", typ,
			"booking_id", b.ID,
			"error", err,
		)
	}
}

func defaultPriority(p model.BookingPriority) model.BookingPriority {
	if p == "" {
		return model.PriorityNormal
	}
	return p
}
