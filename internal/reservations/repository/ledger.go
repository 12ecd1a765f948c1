package repository

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"labreserve/internal/reservations/engine"
	"labreserve/pkg/config"
)

const (
	LedgerCollectionName = "Reservation_ledger"
)

// mongoLedger stores committed reservation entries in a dedicated collection.
// Commit runs check-then-insert; callers serialize racing commits for the
// same slot with advisory slot locks and run the whole operation inside a
// session transaction, which together make the sequence atomic.
type mongoLedger struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoLedger(cfg *config.Config) engine.Ledger {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoLedger{
		cfg:        cfg,
		collection: db.Collection(LedgerCollectionName),
	}
}

func (l *mongoLedger) Commit(ctx context.Context, entries ...engine.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	conflicts := make(map[string]struct{})
	for i, e := range entries {
		found, err := l.OverlappingLaboratory(ctx, e.LaboratoryID, e.Interval, e.BookingID)
		if err != nil {
			return err
		}
		for _, c := range found {
			conflicts[c.BookingID] = struct{}{}
		}
		for _, equipID := range e.EquipmentIDs {
			found, err := l.OverlappingEquipment(ctx, equipID, e.Interval, e.BookingID)
			if err != nil {
				return err
			}
			for _, c := range found {
				conflicts[c.BookingID] = struct{}{}
			}
		}
		// Entries within one batch must not collide either.
		for j := 0; j < i; j++ {
			if entriesCollide(entries[j], e) {
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
		return &engine.SlotConflictError{Stage: engine.StageApproval, Conflicting: ids}
	}

	docs := make([]any, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, e)
	}
	if _, err := l.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to commit ledger entries: %w", err)
	}
	return nil
}

func (l *mongoLedger) Release(ctx context.Context, bookingIDs ...string) error {
	if len(bookingIDs) == 0 {
		return nil
	}

	_, err := l.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": bookingIDs}})
	if err != nil {
		return fmt.Errorf("failed to release ledger entries: %w", err)
	}
	return nil
}

func (l *mongoLedger) OverlappingLaboratory(ctx context.Context, laboratoryID string, iv engine.Interval, excludeBookingID string) ([]engine.Entry, error) {
	filter := bson.M{
		"laboratory_id":  laboratoryID,
		"interval.start": bson.M{"$lt": iv.End},
		"interval.end":   bson.M{"$gt": iv.Start},
	}
	return l.findOverlapping(ctx, filter, excludeBookingID)
}

func (l *mongoLedger) OverlappingEquipment(ctx context.Context, equipmentID string, iv engine.Interval, excludeBookingID string) ([]engine.Entry, error) {
	filter := bson.M{
		"equipment_ids":  equipmentID,
		"interval.start": bson.M{"$lt": iv.End},
		"interval.end":   bson.M{"$gt": iv.Start},
	}
	return l.findOverlapping(ctx, filter, excludeBookingID)
}

func (l *mongoLedger) findOverlapping(ctx context.Context, filter bson.M, excludeBookingID string) ([]engine.Entry, error) {
	if excludeBookingID != "" {
		filter["_id"] = bson.M{"$ne": excludeBookingID}
	}

	opts := options.Find().SetSort(bson.D{{Key: "interval.start", Value: 1}})
	cursor, err := l.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []engine.Entry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode ledger entries: %w", err)
	}

	return entries, nil
}

func entriesCollide(a, b engine.Entry) bool {
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
