package engine

import (
	"context"
	"sort"
	"sync"
)

// Entry is a committed interval-to-booking mapping. One entry occupies its
// laboratory and every listed equipment item for the interval's duration.
type Entry struct {
	BookingID    string   `json:"booking_id" bson:"_id"`
	LaboratoryID string   `json:"laboratory_id" bson:"laboratory_id"`
	EquipmentIDs []string `json:"equipment_ids,omitempty" bson:"equipment_ids,omitempty"`
	Interval     Interval `json:"interval" bson:"interval"`
}

// Ledger is the authoritative store of committed reservation intervals.
// Commit must re-validate overlap atomically with the insert: the combined
// check-then-commit is the engine's single critical section. Only the state
// machine mutates the ledger; availability checks are read-only.
type Ledger interface {
	// Commit atomically validates and inserts the entries. Either all
	// entries commit or none do; on overlap it returns *SlotConflictError
	// naming the conflicting booking ids.
	Commit(ctx context.Context, entries ...Entry) error

	// Release removes the entries for the given bookings. Releasing a
	// booking with no entry is a no-op.
	Release(ctx context.Context, bookingIDs ...string) error

	// OverlappingLaboratory returns committed entries on the laboratory
	// whose intervals overlap iv, excluding excludeBookingID when non-empty.
	OverlappingLaboratory(ctx context.Context, laboratoryID string, iv Interval, excludeBookingID string) ([]Entry, error)

	// OverlappingEquipment is the per-equipment-item analogue.
	OverlappingEquipment(ctx context.Context, equipmentID string, iv Interval, excludeBookingID string) ([]Entry, error)
}

// MemoryLedger is an in-memory Ledger. A single mutex held across the
// check-then-commit sequence serializes concurrent approvals; two racing
// commits for overlapping intervals resolve to exactly one winner.
type MemoryLedger struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	labIndex   map[string]map[string]struct{}
	equipIndex map[string]map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries:    make(map[string]Entry),
		labIndex:   make(map[string]map[string]struct{}),
		equipIndex: make(map[string]map[string]struct{}),
	}
}

func (l *MemoryLedger) Commit(ctx context.Context, entries ...Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	conflicts := make(map[string]struct{})
	for i, e := range entries {
		for id := range l.labIndex[e.LaboratoryID] {
			if id != e.BookingID && l.entries[id].Interval.Overlaps(e.Interval) {
				conflicts[id] = struct{}{}
			}
		}
		for _, equipID := range e.EquipmentIDs {
			for id := range l.equipIndex[equipID] {
				if id != e.BookingID && l.entries[id].Interval.Overlaps(e.Interval) {
					conflicts[id] = struct{}{}
				}
			}
		}
		// Entries within one batch must not collide either.
		for j := 0; j < i; j++ {
			if overlapsEntry(entries[j], e) {
				conflicts[entries[j].BookingID] = struct{}{}
			}
		}
	}

	if len(conflicts) > 0 {
		ids := make([]string, 0, len(conflicts))
		for id := range conflicts {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return &SlotConflictError{Stage: StageApproval, Conflicting: ids}
	}

	for _, e := range entries {
		l.insertLocked(e)
	}
	return nil
}

func (l *MemoryLedger) Release(ctx context.Context, bookingIDs ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range bookingIDs {
		e, ok := l.entries[id]
		if !ok {
			continue
		}
		delete(l.entries, id)
		delete(l.labIndex[e.LaboratoryID], id)
		for _, equipID := range e.EquipmentIDs {
			delete(l.equipIndex[equipID], id)
		}
	}
	return nil
}

func (l *MemoryLedger) OverlappingLaboratory(ctx context.Context, laboratoryID string, iv Interval, excludeBookingID string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var found []Entry
	for id := range l.labIndex[laboratoryID] {
		if id == excludeBookingID {
			continue
		}
		if e := l.entries[id]; e.Interval.Overlaps(iv) {
			found = append(found, e)
		}
	}
	sortEntries(found)
	return found, nil
}

func (l *MemoryLedger) OverlappingEquipment(ctx context.Context, equipmentID string, iv Interval, excludeBookingID string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var found []Entry
	for id := range l.equipIndex[equipmentID] {
		if id == excludeBookingID {
			continue
		}
		if e := l.entries[id]; e.Interval.Overlaps(iv) {
			found = append(found, e)
		}
	}
	sortEntries(found)
	return found, nil
}

// Len reports the number of committed entries.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a snapshot of every committed entry in start order.
func (l *MemoryLedger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries
}

func (l *MemoryLedger) insertLocked(e Entry) {
	l.entries[e.BookingID] = e
	if l.labIndex[e.LaboratoryID] == nil {
		l.labIndex[e.LaboratoryID] = make(map[string]struct{})
	}
	l.labIndex[e.LaboratoryID][e.BookingID] = struct{}{}
	for _, equipID := range e.EquipmentIDs {
		if l.equipIndex[equipID] == nil {
			l.equipIndex[equipID] = make(map[string]struct{})
		}
		l.equipIndex[equipID][e.BookingID] = struct{}{}
	}
}

func overlapsEntry(a, b Entry) bool {
	if !a.Interval.Overlaps(b.Interval) {
		return false
	}
	if a.LaboratoryID == b.LaboratoryID {
		return true
	}
	for _, ea := range a.EquipmentIDs {
		for _, eb := range b.EquipmentIDs {
			if ea == eb {
				return true
			}
		}
	}
	return false
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Interval.Start.Equal(entries[j].Interval.Start) {
			return entries[i].BookingID < entries[j].BookingID
		}
		return entries[i].Interval.Start.Before(entries[j].Interval.Start)
	})
}
