package engine

import (
	"errors"
	"testing"

	"labreserve/pkg/model"
)

func weeklyPattern() model.RecurrencePattern {
	return model.RecurrencePattern{
		Frequency:  model.FrequencyWeekly,
		DaysOfWeek: []model.Weekday{model.Tuesday},
		StartDate:  "2025-03-03", // a Monday
		EndDate:    "2025-03-18",
		StartTime:  "10:00",
		EndTime:    "11:00",
	}
}

func TestExpand_WeeklyByDay(t *testing.T) {
	occurrences, err := NewExpander(0).Expand(weeklyPattern())
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	// Tuesdays between 2025-03-03 and 2025-03-18 inclusive: 4th, 11th, 18th.
	if len(occurrences) != 3 {
		t.Fatalf("expected 3 occurrences, got %d", len(occurrences))
	}
	for i, iv := range occurrences {
		if iv.Start.Weekday().String() != "Tuesday" {
			t.Errorf("occurrence %d falls on %s, want Tuesday", i, iv.Start.Weekday())
		}
		if iv.Start.Hour() != 10 || iv.End.Hour() != 11 {
			t.Errorf("occurrence %d has times %s-%s, want 10:00-11:00", i, iv.Start, iv.End)
		}
	}
	if got := occurrences[2].Start.Day(); got != 18 {
		t.Errorf("series end date is inclusive; last occurrence on day %d, want 18", got)
	}
}

func TestExpand_IsDeterministic(t *testing.T) {
	e := NewExpander(0)
	first, err := e.Expand(weeklyPattern())
	if err != nil {
		t.Fatalf("first expansion: %v", err)
	}
	second, err := e.Expand(weeklyPattern())
	if err != nil {
		t.Fatalf("second expansion: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("expansions differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Start.Equal(second[i].Start) || !first[i].End.Equal(second[i].End) {
			t.Errorf("occurrence %d differs: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestExpand_RespectsOccurrenceCap(t *testing.T) {
	pattern := weeklyPattern()
	pattern.EndDate = "2035-03-03" // a decade of Tuesdays

	occurrences, err := NewExpander(5).Expand(pattern)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(occurrences) != 5 {
		t.Errorf("expected cap of 5 occurrences, got %d", len(occurrences))
	}
	for i := 1; i < len(occurrences); i++ {
		if !occurrences[i-1].Start.Before(occurrences[i].Start) {
			t.Errorf("occurrences out of order at index %d", i)
		}
	}
}

func TestExpand_EndBeforeStart(t *testing.T) {
	pattern := weeklyPattern()
	pattern.StartDate = "2025-03-18"
	pattern.EndDate = "2025-03-03"

	if _, err := NewExpander(0).Expand(pattern); !errors.Is(err, ErrInvalidRecurrenceRange) {
		t.Errorf("expected ErrInvalidRecurrenceRange, got %v", err)
	}
}

func TestExpand_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.RecurrencePattern)
	}{
		{"unsupported frequency", func(p *model.RecurrencePattern) { p.Frequency = "daily" }},
		{"bad start date", func(p *model.RecurrencePattern) { p.StartDate = "03/03/2025" }},
		{"bad day time", func(p *model.RecurrencePattern) { p.StartTime = "25:00" }},
		{"end time before start time", func(p *model.RecurrencePattern) { p.StartTime = "11:00"; p.EndTime = "10:00" }},
		{"unknown weekday", func(p *model.RecurrencePattern) { p.DaysOfWeek = []model.Weekday{"Someday"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pattern := weeklyPattern()
			tt.mutate(&pattern)
			if _, err := NewExpander(0).Expand(pattern); err == nil {
				t.Error("expected an error, got none")
			}
		})
	}
}

func TestExpand_NoMatchingDates(t *testing.T) {
	pattern := weeklyPattern()
	pattern.DaysOfWeek = []model.Weekday{model.Sunday}
	pattern.StartDate = "2025-03-03" // Monday
	pattern.EndDate = "2025-03-07"   // Friday

	occurrences, err := NewExpander(0).Expand(pattern)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(occurrences) != 0 {
		t.Errorf("expected no occurrences, got %d", len(occurrences))
	}
}
