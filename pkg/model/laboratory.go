package model

import (
	"time"
)

type Weekday string

const (
	Sunday    Weekday = "Sunday"
	Monday    Weekday = "Monday"
	Tuesday   Weekday = "Tuesday"
	Wednesday Weekday = "Wednesday"
	Thursday  Weekday = "Thursday"
	Friday    Weekday = "Friday"
	Saturday  Weekday = "Saturday"
)

// AllWeekdays lists valid weekday names in calendar order.
var AllWeekdays = []Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// TimeWeekday maps the name onto time.Weekday. The second return value is
// false for unknown names.
func (d Weekday) TimeWeekday() (time.Weekday, bool) {
	for i, w := range AllWeekdays {
		if w == d {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

// WeekdayOf converts a time.Weekday into its name.
func WeekdayOf(d time.Weekday) Weekday {
	return AllWeekdays[int(d)%7]
}

// BookingRules is the per-laboratory booking policy. It is catalog data,
// read-only to the reservation engine.
type BookingRules struct {
	MaxBookingDurationMin int  `json:"max_booking_duration_min" bson:"max_booking_duration_min" validate:"required,min=5,max=1440"`
	MinAdvanceBookingMin  int  `json:"min_advance_booking_min" bson:"min_advance_booking_min" validate:"min=0,max=20160"`
	MaxAdvanceBookingMin  int  `json:"max_advance_booking_min" bson:"max_advance_booking_min" validate:"min=0,max=1051200"`
	RequireApproval       bool `json:"require_approval" bson:"require_approval"`
	AllowRecurring        bool `json:"allow_recurring" bson:"allow_recurring"`
}

// Laboratory is the catalog snapshot the engine validates candidates
// against. Opening hours use HH:MM day times in the laboratory's canonical
// clock; all interval math happens in UTC.
type Laboratory struct {
	ID          string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Name        string    `json:"name" bson:"name" validate:"required,min=2,max=100"`
	Capacity    int       `json:"capacity" bson:"capacity" validate:"required,min=1,max=500"`
	OpeningTime string    `json:"opening_time" bson:"opening_time" validate:"required,day_time"`
	ClosingTime string    `json:"closing_time" bson:"closing_time" validate:"required,day_time"`
	WorkingDays []Weekday `json:"working_days" bson:"working_days" validate:"required,min=1,max=7,dive,oneof=Sunday Monday Tuesday Wednesday Thursday Friday Saturday"`

	Rules BookingRules `json:"booking_rules" bson:"booking_rules" validate:"required"`

	Active    bool      `json:"active" bson:"active"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// OpenOn reports whether the laboratory operates on the given weekday.
func (l *Laboratory) OpenOn(d time.Weekday) bool {
	name := WeekdayOf(d)
	for _, w := range l.WorkingDays {
		if w == name {
			return true
		}
	}
	return false
}

type EquipmentStatus string

const (
	EquipmentAvailable   EquipmentStatus = "available"
	EquipmentMaintenance EquipmentStatus = "maintenance"
	EquipmentRetired     EquipmentStatus = "retired"
)

// Equipment is a bookable item belonging to a laboratory's catalog.
type Equipment struct {
	ID           string          `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	LaboratoryID string          `json:"laboratory_id" bson:"laboratory_id" validate:"required,mongodb"`
	Name         string          `json:"name" bson:"name" validate:"required,min=2,max=100"`
	Status       EquipmentStatus `json:"status" bson:"status" validate:"required,oneof=available maintenance retired"`
	CreatedAt    time.Time       `json:"created_at" bson:"created_at" validate:"omitempty"`
}
