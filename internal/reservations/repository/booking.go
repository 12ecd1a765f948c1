package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	reserrors "labreserve/internal/reservations/errors"
	"labreserve/pkg/config"
	mongotx "labreserve/pkg/db/mongo"
	"labreserve/pkg/model"
)

const (
	BookingCollectionName = "Bookings"
)

// BookingRepository persists bookings. It satisfies the lifecycle engine's
// store contract and adds the listing and sweep queries the service layer
// needs on top of it.
type BookingRepository interface {
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindChildren(ctx context.Context, rootID string) ([]*model.Booking, error)
	Insert(ctx context.Context, bookings ...*model.Booking) error
	Update(ctx context.Context, booking *model.Booking) error

	FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error)
	Count(ctx context.Context) (int64, error)
	FindByLaboratory(ctx context.Context, laboratoryID string, startTime, endTime *time.Time, limit int, offset int64) ([]*model.Booking, error)
	CountByLaboratory(ctx context.Context, laboratoryID string, startTime, endTime *time.Time) (int64, error)
	FindOverdueCheckIns(ctx context.Context, startedBefore time.Time, limit int) ([]*model.Booking, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoBookingRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(BookingCollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo.Client),
	}
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// When inside a transaction (SessionContext), returns the original context unchanged
// with a no-op cancel function, as we cannot wrap SessionContext without breaking
// transaction semantics.
func (r *mongoBookingRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return nil, fmt.Errorf("%w: %s", reserrors.ErrInvalidID, id)
	}

	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

func (r *mongoBookingRepository) FindChildren(ctx context.Context, rootID string) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"parent_booking_id": rootID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find booking occurrences: %w", err)
	}
	defer cursor.Close(ctx)

	var children []*model.Booking
	if err = cursor.All(ctx, &children); err != nil {
		return nil, fmt.Errorf("failed to decode booking occurrences: %w", err)
	}

	return children, nil
}

func (r *mongoBookingRepository) Insert(ctx context.Context, bookings ...*model.Booking) error {
	if len(bookings) == 0 {
		return nil
	}

	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	docs := make([]any, 0, len(bookings))
	for _, b := range bookings {
		if b.ID == "" {
			b.ID = primitive.NewObjectID().Hex()
		}
		docs = append(docs, b)
	}

	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert bookings: %w", err)
	}
	return nil
}

func (r *mongoBookingRepository) Update(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := primitive.ObjectIDFromHex(booking.ID); err != nil {
		return fmt.Errorf("%w: %s", reserrors.ErrInvalidID, booking.ID)
	}

	filter := bson.M{"_id": booking.ID}
	update := bson.M{
		"$set": bson.M{
			"status":              booking.Status,
			"start_time":          booking.StartTime,
			"end_time":            booking.EndTime,
			"expected_attendees":  booking.ExpectedAttendees,
			"actual_attendees":    booking.ActualAttendees,
			"equipment_ids":       booking.EquipmentIDs,
			"notes":               booking.Notes,
			"approved_by":         booking.ApprovedBy,
			"approved_at":         booking.ApprovedAt,
			"rejected_by":         booking.RejectedBy,
			"rejected_at":         booking.RejectedAt,
			"rejection_reason":    booking.RejectionReason,
			"cancelled_by":        booking.CancelledBy,
			"cancelled_at":        booking.CancelledAt,
			"cancellation_reason": booking.CancellationReason,
			"check_in_at":         booking.CheckInAt,
			"check_out_at":        booking.CheckOutAt,
			"updated_at":          booking.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if result.MatchedCount == 0 {
		return reserrors.ErrNotFound
	}

	return nil
}

func (r *mongoBookingRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	return count, nil
}

func (r *mongoBookingRepository) FindByLaboratory(
	ctx context.Context,
	laboratoryID string,
	startTime, endTime *time.Time,
	limit int, offset int64,
) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := r.buildLaboratoryFilter(laboratoryID, startTime, endTime)

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(offset).
		SetSort(bson.D{{Key: "start_time", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) CountByLaboratory(
	ctx context.Context,
	laboratoryID string,
	startTime, endTime *time.Time,
) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := r.buildLaboratoryFilter(laboratoryID, startTime, endTime)

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings by laboratory: %w", err)
	}
	return count, nil
}

// Half-open overlap filter: a booking intersects [startTime, endTime) when
// start_time < endTime and end_time > startTime.
func (r *mongoBookingRepository) buildLaboratoryFilter(laboratoryID string, startTime, endTime *time.Time) bson.M {
	filter := bson.M{
		"laboratory_id": laboratoryID,
	}

	if startTime != nil || endTime != nil {
		timeFilters := bson.M{}
		if startTime != nil && endTime != nil {
			timeFilters = bson.M{
				"start_time": bson.M{"$lt": *endTime},
				"end_time":   bson.M{"$gt": *startTime},
			}
		} else if startTime != nil {
			timeFilters = bson.M{
				"end_time": bson.M{"$gt": *startTime},
			}
		} else if endTime != nil {
			timeFilters = bson.M{
				"start_time": bson.M{"$lt": *endTime},
			}
		}

		filter["$and"] = []bson.M{timeFilters}
	}

	return filter
}

// FindOverdueCheckIns returns approved bookings whose interval started before
// the cutoff and that were never checked in. The no-show sweeper feeds these
// to the lifecycle engine.
func (r *mongoBookingRepository) FindOverdueCheckIns(ctx context.Context, startedBefore time.Time, limit int) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"status":      model.StatusApproved,
		"start_time":  bson.M{"$lt": startedBefore},
		"check_in_at": nil,
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find overdue bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode overdue bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
