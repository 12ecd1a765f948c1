package engine

import (
	"context"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"labreserve/pkg/model"
)

// BookingStore is the booking arena the state machine reads and mutates.
// Implementations must make Insert/Update visible to subsequent reads
// within the same context (the Mongo implementation joins the caller's
// session transaction).
type BookingStore interface {
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	// FindChildren returns the occurrences of a recurring series root,
	// ordered by start time.
	FindChildren(ctx context.Context, rootID string) ([]*model.Booking, error)
	// Insert persists the bookings, assigning ids to any that lack one.
	Insert(ctx context.Context, bookings ...*model.Booking) error
	Update(ctx context.Context, booking *model.Booking) error
}

// MemoryStore is an in-memory booking arena keyed by id, with a flat
// parent-id back-reference for recurring children. It backs library use and
// tests; the service wires the Mongo-backed store instead.
type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[string]model.Booking
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bookings: make(map[string]model.Booking)}
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	copied := b
	return &copied, nil
}

func (s *MemoryStore) FindChildren(ctx context.Context, rootID string) ([]*model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var children []*model.Booking
	for _, b := range s.bookings {
		if b.ParentBookingID == rootID {
			copied := b
			children = append(children, &copied)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].StartTime.Before(children[j].StartTime)
	})
	return children, nil
}

func (s *MemoryStore) Insert(ctx context.Context, bookings ...*model.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range bookings {
		if b.ID == "" {
			b.ID = primitive.NewObjectID().Hex()
		}
		s.bookings[b.ID] = *b
	}
	return nil
}

// Len reports the number of stored bookings.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bookings)
}

func (s *MemoryStore) Update(ctx context.Context, booking *model.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bookings[booking.ID]; !ok {
		return ErrBookingNotFound
	}
	s.bookings[booking.ID] = *booking
	return nil
}
