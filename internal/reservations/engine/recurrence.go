package engine

import (
	"fmt"
	"time"

	"labreserve/pkg/model"
)

// DefaultMaxOccurrences caps expansion at ten years of weekly occurrences.
const DefaultMaxOccurrences = 520

// Expander turns a weekly recurrence pattern into a bounded, ordered list
// of concrete occurrence intervals. Expansion is pure: the same pattern
// always yields the same sequence.
type Expander struct {
	maxOccurrences int
}

func NewExpander(maxOccurrences int) *Expander {
	if maxOccurrences <= 0 {
		maxOccurrences = DefaultMaxOccurrences
	}
	return &Expander{maxOccurrences: maxOccurrences}
}

// Expand generates one interval per matching calendar date between the
// series start and end dates inclusive, in date order, stopping at the
// occurrence cap. The pattern's day times apply on each matching date.
func (e *Expander) Expand(pattern model.RecurrencePattern) ([]Interval, error) {
	if pattern.Frequency != model.FrequencyWeekly {
		return nil, fmt.Errorf("unsupported recurrence frequency: %s", pattern.Frequency)
	}

	startDate, err := model.ParseDate(pattern.StartDate)
	if err != nil {
		return nil, err
	}
	endDate, err := model.ParseDate(pattern.EndDate)
	if err != nil {
		return nil, err
	}
	if endDate.Before(startDate) {
		return nil, fmt.Errorf("%w: %s before %s", ErrInvalidRecurrenceRange, pattern.EndDate, pattern.StartDate)
	}

	startMin, err := model.ParseDayTime(pattern.StartTime)
	if err != nil {
		return nil, err
	}
	endMin, err := model.ParseDayTime(pattern.EndTime)
	if err != nil {
		return nil, err
	}
	if endMin <= startMin {
		return nil, fmt.Errorf("%w: occurrence time %s-%s", ErrInvalidInterval, pattern.StartTime, pattern.EndTime)
	}

	wanted := make(map[time.Weekday]bool, len(pattern.DaysOfWeek))
	for _, name := range pattern.DaysOfWeek {
		day, ok := name.TimeWeekday()
		if !ok {
			return nil, fmt.Errorf("unknown weekday in recurrence pattern: %s", name)
		}
		wanted[day] = true
	}

	var occurrences []Interval
	for date := startDate; !date.After(endDate); date = date.AddDate(0, 0, 1) {
		if !wanted[date.Weekday()] {
			continue
		}
		iv, err := NewInterval(
			date.Add(time.Duration(startMin)*time.Minute),
			date.Add(time.Duration(endMin)*time.Minute),
		)
		if err != nil {
			return nil, err
		}
		occurrences = append(occurrences, iv)
		if len(occurrences) >= e.maxOccurrences {
			break
		}
	}

	return occurrences, nil
}
