package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	reserrors "labreserve/internal/reservations/errors"
	"labreserve/pkg/config"
	"labreserve/pkg/model"
)

const (
	LaboratoryCollectionName = "Laboratories"
	EquipmentCollectionName  = "Equipment"
)

// LaboratoryRepository reads the laboratory catalog. The reservation flow
// treats the catalog as read-only; administration happens elsewhere.
type LaboratoryRepository interface {
	FindByID(ctx context.Context, id string) (*model.Laboratory, error)
	FindAll(ctx context.Context, activeOnly bool, limit int, offset int64) ([]*model.Laboratory, error)
	Count(ctx context.Context, activeOnly bool) (int64, error)
}

type mongoLaboratoryRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoLaboratoryRepository(cfg *config.Config) LaboratoryRepository {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoLaboratoryRepository{
		cfg:        cfg,
		collection: db.Collection(LaboratoryCollectionName),
	}
}

func (r *mongoLaboratoryRepository) FindByID(ctx context.Context, id string) (*model.Laboratory, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var lab model.Laboratory
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&lab)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reserrors.ErrLaboratoryNotFound
		}
		return nil, fmt.Errorf("failed to find laboratory: %w", err)
	}

	return &lab, nil
}

func (r *mongoLaboratoryRepository) FindAll(ctx context.Context, activeOnly bool, limit int, offset int64) ([]*model.Laboratory, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{}
	if activeOnly {
		filter["active"] = true
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find laboratories: %w", err)
	}
	defer cursor.Close(ctx)

	var labs []*model.Laboratory
	if err = cursor.All(ctx, &labs); err != nil {
		return nil, fmt.Errorf("failed to decode laboratories: %w", err)
	}

	return labs, nil
}

func (r *mongoLaboratoryRepository) Count(ctx context.Context, activeOnly bool) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{}
	if activeOnly {
		filter["active"] = true
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count laboratories: %w", err)
	}
	return count, nil
}

// EquipmentRepository reads the equipment catalog.
type EquipmentRepository interface {
	FindByIDs(ctx context.Context, ids []string) ([]*model.Equipment, error)
	FindByLaboratory(ctx context.Context, laboratoryID string) ([]*model.Equipment, error)
}

type mongoEquipmentRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoEquipmentRepository(cfg *config.Config) EquipmentRepository {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoEquipmentRepository{
		cfg:        cfg,
		collection: db.Collection(EquipmentCollectionName),
	}
}

func (r *mongoEquipmentRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.Equipment, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to find equipment: %w", err)
	}
	defer cursor.Close(ctx)

	var equipment []*model.Equipment
	if err = cursor.All(ctx, &equipment); err != nil {
		return nil, fmt.Errorf("failed to decode equipment: %w", err)
	}

	return equipment, nil
}

func (r *mongoEquipmentRepository) FindByLaboratory(ctx context.Context, laboratoryID string) ([]*model.Equipment, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"laboratory_id": laboratoryID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find equipment: %w", err)
	}
	defer cursor.Close(ctx)

	var equipment []*model.Equipment
	if err = cursor.All(ctx, &equipment); err != nil {
		return nil, fmt.Errorf("failed to decode equipment: %w", err)
	}

	return equipment, nil
}
