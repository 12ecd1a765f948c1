package model

import (
	"fmt"
	"regexp"
	"time"
)

// DayTimeRegex matches HH:MM clock times between 00:00 and 23:59.
var DayTimeRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

const dateLayout = "2006-01-02"

// ParseDayTime converts an HH:MM string into minutes since midnight.
func ParseDayTime(s string) (int, error) {
	if !DayTimeRegex.MatchString(s) {
		return 0, fmt.Errorf("day time must be in HH:MM format (00:00-23:59), got: %s", s)
	}
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("day time must be in HH:MM format, got: %s", s)
	}
	return hour*60 + minute, nil
}

// ParseDate converts a YYYY-MM-DD string into a UTC midnight timestamp.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be in YYYY-MM-DD format, got: %s", s)
	}
	return t, nil
}

// MinutesOfDay returns how many minutes into its UTC day the instant falls.
func MinutesOfDay(t time.Time) int {
	t = t.UTC()
	return t.Hour()*60 + t.Minute()
}
