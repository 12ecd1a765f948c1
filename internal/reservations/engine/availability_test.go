package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"labreserve/pkg/model"
)

func testLab() model.Laboratory {
	return model.Laboratory{
		ID:          "lab1",
		Name:        "Chemistry Lab A",
		Capacity:    30,
		OpeningTime: "08:00",
		ClosingTime: "18:00",
		WorkingDays: []model.Weekday{model.Monday, model.Tuesday, model.Wednesday, model.Thursday, model.Friday},
		Rules: model.BookingRules{
			MaxBookingDurationMin: 240,
			MinAdvanceBookingMin:  0,
			MaxAdvanceBookingMin:  0,
			RequireApproval:       true,
			AllowRecurring:        true,
		},
		Active: true,
	}
}

// monday is 2025-03-03, a Monday, at the given clock time.
func monday(hour, minute int) time.Time {
	return time.Date(2025, 3, 3, hour, minute, 0, 0, time.UTC)
}

func TestCheck_OperatingHours(t *testing.T) {
	ctx := context.Background()
	checker := NewAvailabilityChecker(NewMemoryLedger())
	lab := testLab()
	now := monday(7, 0)

	tests := []struct {
		name    string
		iv      Interval
		wantErr bool
	}{
		{"inside hours", Interval{Start: monday(9, 0), End: monday(10, 0)}, false},
		{"exactly the full window", Interval{Start: monday(8, 0), End: monday(18, 0)}, false},
		{"before opening", Interval{Start: monday(7, 0), End: monday(9, 0)}, true},
		{"past closing", Interval{Start: monday(17, 30), End: monday(18, 30)}, true},
		{"closed weekday", Interval{Start: monday(9, 0).AddDate(0, 0, 5), End: monday(10, 0).AddDate(0, 0, 5)}, true}, // Saturday
		{"crosses midnight", Interval{Start: monday(17, 0), End: monday(17, 0).Add(10 * time.Hour)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Max duration is irrelevant to these cases.
			lab := lab
			lab.Rules.MaxBookingDurationMin = 0

			err := checker.Check(ctx, lab, tt.iv, nil, "", now)
			var hoursErr *OperatingHoursError
			if tt.wantErr && !errors.As(err, &hoursErr) {
				t.Errorf("expected OperatingHoursError, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCheck_BookingRules(t *testing.T) {
	ctx := context.Background()
	checker := NewAvailabilityChecker(NewMemoryLedger())

	lab := testLab()
	lab.Rules.MaxBookingDurationMin = 120
	lab.Rules.MinAdvanceBookingMin = 60
	lab.Rules.MaxAdvanceBookingMin = 7 * 24 * 60

	now := monday(8, 0)

	tests := []struct {
		name     string
		iv       Interval
		wantRule string
	}{
		{"within all rules", Interval{Start: monday(10, 0), End: monday(11, 0)}, ""},
		{"too long", Interval{Start: monday(10, 0), End: monday(14, 0)}, "max_booking_duration"},
		{"too soon", Interval{Start: monday(8, 30), End: monday(9, 30)}, "min_advance_booking"},
		{"too far ahead", Interval{Start: monday(10, 0).AddDate(0, 0, 14), End: monday(11, 0).AddDate(0, 0, 14)}, "max_advance_booking"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checker.Check(ctx, lab, tt.iv, nil, "", now)
			if tt.wantRule == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var ruleErr *RuleViolationError
			if !errors.As(err, &ruleErr) {
				t.Fatalf("expected RuleViolationError, got %v", err)
			}
			if ruleErr.Rule != tt.wantRule {
				t.Errorf("violated rule = %q, want %q", ruleErr.Rule, tt.wantRule)
			}
			if ruleErr.Limit == "" {
				t.Error("rule violation must state its configured threshold")
			}
		})
	}
}

func TestCheck_LedgerConflicts(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	checker := NewAvailabilityChecker(ledger)
	lab := testLab()
	now := monday(8, 0)

	if err := ledger.Commit(ctx,
		entryAt("held-lab", "lab1", monday(9, 0), time.Hour),
		entryAt("held-equip", "lab2", monday(9, 0), time.Hour, "scope1"),
	); err != nil {
		t.Fatalf("setup: %v", err)
	}

	// Laboratory conflict.
	err := checker.Check(ctx, lab, Interval{Start: monday(9, 30), End: monday(10, 30)}, nil, "", now)
	var conflict *SlotConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected SlotConflictError, got %v", err)
	}
	if conflict.Stage != StageSubmission {
		t.Errorf("checker conflicts are submission-stage, got %s", conflict.Stage)
	}
	if len(conflict.Conflicting) != 1 || conflict.Conflicting[0] != "held-lab" {
		t.Errorf("expected conflict with held-lab, got %v", conflict.Conflicting)
	}

	// Equipment conflict even though the laboratory is free.
	err = checker.Check(ctx, lab, Interval{Start: monday(11, 0), End: monday(12, 0)}, []string{"scope1"}, "", now)
	if err != nil {
		t.Fatalf("free equipment window: %v", err)
	}
	err = checker.Check(ctx, lab, Interval{Start: monday(9, 0), End: monday(10, 0)}, []string{"scope1"}, "", now)
	if !errors.As(err, &conflict) {
		t.Fatalf("expected equipment conflict, got %v", err)
	}

	// Excluding the conflicting booking clears the check.
	err = checker.Check(ctx, lab, Interval{Start: monday(9, 30), End: monday(10, 30)}, nil, "held-lab", now)
	if err != nil {
		t.Errorf("exclusion should clear the conflict: %v", err)
	}
}
