package model

import (
	"time"
)

type BookingStatus string

const (
	StatusDraft     BookingStatus = "draft"
	StatusPending   BookingStatus = "pending"
	StatusApproved  BookingStatus = "approved"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCompleted BookingStatus = "completed"
	StatusNoShow    BookingStatus = "no_show"
	StatusRejected  BookingStatus = "rejected"
	StatusCancelled BookingStatus = "cancelled"
)

// Terminal reports whether the status has no outgoing transitions.
func (s BookingStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusNoShow, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Committed reports whether a booking in this status occupies space in the
// reservation ledger.
func (s BookingStatus) Committed() bool {
	return s == StatusApproved || s == StatusConfirmed
}

type BookingPurpose string

const (
	PurposeLecture   BookingPurpose = "lecture"
	PurposePractical BookingPurpose = "practical"
	PurposeResearch  BookingPurpose = "research"
	PurposeMeeting   BookingPurpose = "meeting"
	PurposeExam      BookingPurpose = "exam"
	PurposeWorkshop  BookingPurpose = "workshop"
	PurposeOther     BookingPurpose = "other"
)

// BookingPriority is a tie-break hint only; it never overrides conflict rules.
type BookingPriority string

const (
	PriorityLow    BookingPriority = "low"
	PriorityNormal BookingPriority = "normal"
	PriorityHigh   BookingPriority = "high"
	PriorityUrgent BookingPriority = "urgent"
)

type Booking struct {
	ID                string             `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	LaboratoryID      string             `json:"laboratory_id" bson:"laboratory_id" validate:"required,mongodb"`
	RequesterID       string             `json:"requester_id" bson:"requester_id" validate:"required,min=1,max=100"`
	StartTime         time.Time          `json:"start_time" bson:"start_time" validate:"required"`
	EndTime           time.Time          `json:"end_time" bson:"end_time" validate:"required,gtfield=StartTime"`
	Purpose           BookingPurpose     `json:"purpose" bson:"purpose" validate:"required,oneof=lecture practical research meeting exam workshop other"`
	Status            BookingStatus      `json:"status" bson:"status" validate:"omitempty,oneof=draft pending approved confirmed completed no_show rejected cancelled"`
	Priority          BookingPriority    `json:"priority" bson:"priority" validate:"omitempty,oneof=low normal high urgent"`
	ExpectedAttendees int                `json:"expected_attendees" bson:"expected_attendees" validate:"required,min=1,max=500"`
	Notes             string             `json:"notes,omitempty" bson:"notes,omitempty" validate:"omitempty,max=500"`
	IsRecurring       bool               `json:"is_recurring" bson:"is_recurring"`
	Recurrence        *RecurrencePattern `json:"recurrence,omitempty" bson:"recurrence,omitempty"`
	ParentBookingID   string             `json:"parent_booking_id,omitempty" bson:"parent_booking_id,omitempty" validate:"omitempty,mongodb"`
	EquipmentIDs      []string           `json:"equipment_ids,omitempty" bson:"equipment_ids,omitempty" validate:"omitempty,max=20,unique,dive,mongodb"`

	ApprovedBy string     `json:"approved_by,omitempty" bson:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty" bson:"approved_at,omitempty"`

	RejectedBy      string     `json:"rejected_by,omitempty" bson:"rejected_by,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty" bson:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty" bson:"rejection_reason,omitempty" validate:"omitempty,max=500"`

	CancelledBy        string     `json:"cancelled_by,omitempty" bson:"cancelled_by,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty" bson:"cancellation_reason,omitempty" validate:"omitempty,max=500"`

	CheckInAt       *time.Time `json:"check_in_at,omitempty" bson:"check_in_at,omitempty"`
	CheckOutAt      *time.Time `json:"check_out_at,omitempty" bson:"check_out_at,omitempty"`
	ActualAttendees int        `json:"actual_attendees,omitempty" bson:"actual_attendees,omitempty" validate:"omitempty,min=0,max=500"`

	CreatedAt time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at" validate:"omitempty"`
}

// IsRoot reports whether the booking is the root of a recurring series.
func (b *Booking) IsRoot() bool {
	return b.IsRecurring && b.ParentBookingID == ""
}
