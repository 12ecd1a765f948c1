package engine

import (
	"context"
	"time"
)

type EventType string

const (
	EventBookingSubmitted  EventType = "BookingSubmitted"
	EventBookingApproved   EventType = "BookingApproved"
	EventBookingRejected   EventType = "BookingRejected"
	EventBookingCancelled  EventType = "BookingCancelled"
	EventBookingCheckedIn  EventType = "BookingCheckedIn"
	EventBookingCheckedOut EventType = "BookingCheckedOut"
	EventBookingCompleted  EventType = "BookingCompleted"
	EventBookingNoShow     EventType = "BookingNoShow"
)

// Event is a domain event emitted on every state machine transition.
// Notification, email and chat subsystems subscribe to these; the engine
// never calls them directly.
type Event struct {
	Type            EventType `json:"type"`
	BookingID       string    `json:"booking_id"`
	LaboratoryID    string    `json:"laboratory_id"`
	RequesterID     string    `json:"requester_id"`
	ParentBookingID string    `json:"parent_booking_id,omitempty"`
	ActorID         string    `json:"actor_id,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// EventSink receives domain events. Publish failures never roll back the
// transition that produced the event; the engine logs and moves on.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

// NopSink drops every event. Used when no subscriber transport is wired.
type NopSink struct{}

func (NopSink) Publish(ctx context.Context, event Event) error { return nil }
