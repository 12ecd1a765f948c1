package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"labreserve/pkg/model"
)

// AvailabilityChecker decides whether a candidate interval is schedulable
// for a laboratory and an optional equipment set. It validates operating
// hours and booking-rule policy, then queries the ledger for committed
// conflicts. It never mutates the ledger.
type AvailabilityChecker struct {
	ledger Ledger
}

func NewAvailabilityChecker(ledger Ledger) *AvailabilityChecker {
	return &AvailabilityChecker{ledger: ledger}
}

// Check returns nil when the slot is free and the policy permits it.
// Conflicts surface as *SlotConflictError carrying every conflicting
// booking id; policy breaches surface as *OperatingHoursError or
// *RuleViolationError naming the violated rule and its threshold.
// excludeBookingID lets a booking be re-checked against everything but its
// own committed entry during approval races.
func (c *AvailabilityChecker) Check(ctx context.Context, lab model.Laboratory, iv Interval, equipmentIDs []string, excludeBookingID string, now time.Time) error {
	if err := c.checkOperatingHours(lab, iv); err != nil {
		return err
	}
	if err := c.checkBookingRules(lab.Rules, iv, now); err != nil {
		return err
	}
	return c.checkConflicts(ctx, lab.ID, iv, equipmentIDs, excludeBookingID)
}

func (c *AvailabilityChecker) checkOperatingHours(lab model.Laboratory, iv Interval) error {
	day := iv.Start.UTC().Weekday()
	hoursErr := &OperatingHoursError{
		Day:     model.WeekdayOf(day),
		Opening: lab.OpeningTime,
		Closing: lab.ClosingTime,
	}

	if !lab.OpenOn(day) {
		return hoursErr
	}

	openMin, err := model.ParseDayTime(lab.OpeningTime)
	if err != nil {
		return fmt.Errorf("laboratory %s has invalid opening time: %w", lab.ID, err)
	}
	closeMin, err := model.ParseDayTime(lab.ClosingTime)
	if err != nil {
		return fmt.Errorf("laboratory %s has invalid closing time: %w", lab.ID, err)
	}

	startMin := model.MinutesOfDay(iv.Start)
	// endMin exceeds a day's span for intervals crossing midnight, which
	// the single opening window can never contain.
	endMin := startMin + int(iv.Duration().Minutes())
	if startMin < openMin || endMin > closeMin {
		return hoursErr
	}
	return nil
}

func (c *AvailabilityChecker) checkBookingRules(rules model.BookingRules, iv Interval, now time.Time) error {
	if rules.MaxBookingDurationMin > 0 {
		if iv.Duration() > time.Duration(rules.MaxBookingDurationMin)*time.Minute {
			return &RuleViolationError{
				Rule:  "max_booking_duration",
				Limit: fmt.Sprintf("%d minutes", rules.MaxBookingDurationMin),
			}
		}
	}

	advance := iv.Start.Sub(now.UTC())
	if rules.MinAdvanceBookingMin > 0 {
		if advance < time.Duration(rules.MinAdvanceBookingMin)*time.Minute {
			return &RuleViolationError{
				Rule:  "min_advance_booking",
				Limit: fmt.Sprintf("%d minutes", rules.MinAdvanceBookingMin),
			}
		}
	}
	if rules.MaxAdvanceBookingMin > 0 {
		if advance > time.Duration(rules.MaxAdvanceBookingMin)*time.Minute {
			return &RuleViolationError{
				Rule:  "max_advance_booking",
				Limit: fmt.Sprintf("%d minutes", rules.MaxAdvanceBookingMin),
			}
		}
	}
	return nil
}

func (c *AvailabilityChecker) checkConflicts(ctx context.Context, laboratoryID string, iv Interval, equipmentIDs []string, excludeBookingID string) error {
	conflicts := make(map[string]struct{})

	labEntries, err := c.ledger.OverlappingLaboratory(ctx, laboratoryID, iv, excludeBookingID)
	if err != nil {
		return err
	}
	for _, e := range labEntries {
		conflicts[e.BookingID] = struct{}{}
	}

	for _, equipID := range equipmentIDs {
		equipEntries, err := c.ledger.OverlappingEquipment(ctx, equipID, iv, excludeBookingID)
		if err != nil {
			return err
		}
		for _, e := range equipEntries {
			conflicts[e.BookingID] = struct{}{}
		}
	}

	if len(conflicts) == 0 {
		return nil
	}

	ids := make([]string, 0, len(conflicts))
	for id := range conflicts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &SlotConflictError{Stage: StageSubmission, Conflicting: ids}
}
