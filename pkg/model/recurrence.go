package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type RecurrenceFrequency string

// Weekly is the only supported frequency; patterns name the weekdays on
// which occurrences fall between the series start and end dates.
const FrequencyWeekly RecurrenceFrequency = "weekly"

// RecurrencePattern is the closed recurrence schema accepted at the
// boundary. External callers often carry recurrence as free-form JSON;
// ParseRecurrencePattern rejects anything outside this shape.
type RecurrencePattern struct {
	Frequency  RecurrenceFrequency `json:"frequency" bson:"frequency" validate:"required,oneof=weekly"`
	DaysOfWeek []Weekday           `json:"days_of_week" bson:"days_of_week" validate:"required,min=1,max=7,unique,dive,oneof=Sunday Monday Tuesday Wednesday Thursday Friday Saturday"`
	StartDate  string              `json:"start_date" bson:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate    string              `json:"end_date" bson:"end_date" validate:"required,datetime=2006-01-02"`
	StartTime  string              `json:"start_time" bson:"start_time" validate:"required,day_time"`
	EndTime    string              `json:"end_time" bson:"end_time" validate:"required,day_time"`
}

// recurrencePatternJSON avoids UnmarshalJSON recursion during parsing.
type recurrencePatternJSON RecurrencePattern

// ParseRecurrencePattern decodes untrusted recurrence JSON into the closed
// schema. Unknown fields are an error; structural validation (weekday
// names, date formats, range ordering) is left to the validator and the
// recurrence expander.
func ParseRecurrencePattern(raw []byte) (*RecurrencePattern, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var pattern recurrencePatternJSON
	if err := dec.Decode(&pattern); err != nil {
		return nil, fmt.Errorf("unrecognized recurrence pattern: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("unrecognized recurrence pattern: trailing data")
	}

	p := RecurrencePattern(pattern)
	return &p, nil
}

// UnmarshalJSON routes all JSON decoding, including nested booking decoding
// at the HTTP boundary, through the closed-schema parser.
func (p *RecurrencePattern) UnmarshalJSON(raw []byte) error {
	parsed, err := ParseRecurrencePattern(raw)
	if err != nil {
		return err
	}
	*p = *parsed
	return nil
}
