package engine

import (
	"fmt"
	"time"
)

// Interval is a half-open time range [Start, End) in UTC. Back-to-back
// intervals (a.End == b.Start) do not overlap, so adjacent bookings never
// conflict.
type Interval struct {
	Start time.Time `json:"start" bson:"start"`
	End   time.Time `json:"end" bson:"end"`
}

// NewInterval builds an interval, normalizing both instants to UTC.
// Zero-length and inverted ranges are rejected with ErrInvalidInterval.
func NewInterval(start, end time.Time) (Interval, error) {
	start = start.UTC()
	end = end.UTC()
	if !end.After(start) {
		return Interval{}, fmt.Errorf("%w: [%s, %s)", ErrInvalidInterval,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Interval{Start: start, End: end}, nil
}

// Overlaps implements the half-open overlap rule: two intervals overlap iff
// a.Start < b.End && b.Start < a.End.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether t falls inside the interval, start inclusive,
// end exclusive.
func (iv Interval) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// Duration is the interval length; always positive for valid intervals.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s)", iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
}
