package engine

import (
	"errors"
	"fmt"
	"strings"

	"labreserve/pkg/model"
)

var (
	// ErrInvalidInterval rejects zero-length or inverted intervals at
	// construction.
	ErrInvalidInterval = errors.New("interval end must be after interval start")

	// ErrInvalidRecurrenceRange rejects series whose end date precedes the
	// start date.
	ErrInvalidRecurrenceRange = errors.New("recurrence end date precedes start date")

	// ErrBookingNotFound is returned by stores when no booking has the
	// requested id.
	ErrBookingNotFound = errors.New("booking not found")
)

// ConflictStage distinguishes a conflict seen at submission from one seen
// during the approval re-check.
type ConflictStage string

const (
	StageSubmission ConflictStage = "submission"
	StageApproval   ConflictStage = "approval"
)

// SlotConflictError reports that a laboratory or equipment slot is already
// occupied by one or more committed bookings.
type SlotConflictError struct {
	Stage       ConflictStage
	Conflicting []string
}

func (e *SlotConflictError) Error() string {
	if e.Stage == StageApproval {
		return fmt.Sprintf("slot no longer available, conflicts with booking(s): %s", strings.Join(e.Conflicting, ", "))
	}
	return fmt.Sprintf("slot unavailable, conflicts with booking(s): %s", strings.Join(e.Conflicting, ", "))
}

// CapacityError reports expected attendance beyond laboratory capacity.
type CapacityError struct {
	Requested int
	Capacity  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("expected attendees (%d) exceed laboratory capacity (%d)", e.Requested, e.Capacity)
}

// OperatingHoursError reports an interval outside the laboratory's
// configured operating window.
type OperatingHoursError struct {
	Day     model.Weekday
	Opening string
	Closing string
}

func (e *OperatingHoursError) Error() string {
	return fmt.Sprintf("interval falls outside operating hours (%s %s-%s)", e.Day, e.Opening, e.Closing)
}

// RuleViolationError reports a booking-rule policy breach. Rule names the
// violated policy and Limit its configured threshold so callers can present
// both.
type RuleViolationError struct {
	Rule  string
	Limit string
}

func (e *RuleViolationError) Error() string {
	return fmt.Sprintf("booking rule %q violated (limit: %s)", e.Rule, e.Limit)
}

// TransitionError reports a state machine misuse, such as approving an
// already-rejected booking. It indicates a stale caller, not a data fault.
type TransitionError struct {
	BookingID string
	From      model.BookingStatus
	Op        string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition: cannot %s booking %s in status %q", e.Op, e.BookingID, e.From)
}

// CascadeError reports a recurring-series cascade that could not complete.
// The surrounding transaction guarantees no partial application.
type CascadeError struct {
	RootID  string
	ChildID string
	Err     error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("cascade on series %s failed at child %s: %v", e.RootID, e.ChildID, e.Err)
}

func (e *CascadeError) Unwrap() error {
	return e.Err
}
