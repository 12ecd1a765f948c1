package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"labreserve/internal/reservations/engine"
	reserrors "labreserve/internal/reservations/errors"
	"labreserve/internal/reservations/repository"
	"labreserve/internal/reservations/validator"
	"labreserve/pkg/config"
	apperrors "labreserve/pkg/errors"
	"labreserve/pkg/model"
	"labreserve/pkg/sanitizer"
)

type BookingService interface {
	Submit(ctx context.Context, booking *model.Booking) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error)
	GetByLaboratory(ctx context.Context, laboratoryID string, startTime, endTime *time.Time, limit int, offset int64) ([]*model.Booking, int64, error)
	CheckAvailability(ctx context.Context, laboratoryID string, startTime, endTime time.Time, equipmentIDs []string) error
	Approve(ctx context.Context, id, approverID string) error
	Reject(ctx context.Context, id, approverID, reason string) error
	Cancel(ctx context.Context, id, actorID, reason string, cascade bool) error
	CheckIn(ctx context.Context, id string) error
	CheckOut(ctx context.Context, id string, actualAttendees int) error
	SweepNoShows(ctx context.Context) (int, error)

	GetLaboratories(ctx context.Context, activeOnly bool, limit int, offset int64) ([]*model.Laboratory, int64, error)
	GetLaboratoryEquipment(ctx context.Context, laboratoryID string) ([]*model.Equipment, error)
}

type bookingService struct {
	repo      repository.BookingRepository
	lockRepo  repository.SlotLockRepository
	labRepo   repository.LaboratoryRepository
	equipRepo repository.EquipmentRepository
	validator *validator.BookingValidator
	engine    *engine.Engine
	cfg       *config.Config
}

func NewBookingService(
	repo repository.BookingRepository,
	lockRepo repository.SlotLockRepository,
	labRepo repository.LaboratoryRepository,
	equipRepo repository.EquipmentRepository,
	bookingValidator *validator.BookingValidator,
	ledger engine.Ledger,
	events engine.EventSink,
	cfg *config.Config,
) BookingService {
	eng := engine.New(repo, ledger, cfg.Log,
		engine.WithEventSink(events),
		engine.WithMaxOccurrences(cfg.MaxRecurrenceOccurrences),
	)
	return &bookingService{
		repo:      repo,
		lockRepo:  lockRepo,
		labRepo:   labRepo,
		equipRepo: equipRepo,
		validator: bookingValidator,
		engine:    eng,
		cfg:       cfg,
	}
}

func (s *bookingService) Submit(ctx context.Context, booking *model.Booking) error {
	s.sanitize(booking)
	if err := s.validate(booking); err != nil {
		return err
	}

	lab, err := s.loadLaboratory(ctx, booking.LaboratoryID)
	if err != nil {
		return err
	}
	if err := s.verifyEquipment(ctx, lab.ID, booking.EquipmentIDs); err != nil {
		return err
	}

	// Advisory locks serialize the check-then-commit sequence per resource;
	// the ledger commit inside the transaction re-validates under them.
	lockIDs, err := s.acquireSlotLocks(ctx, lab.ID, booking.EquipmentIDs)
	if err != nil {
		return err
	}
	defer s.releaseSlotLocks(ctx, lockIDs)

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		return s.engine.Submit(sessCtx, booking, *lab)
	})
	if err != nil {
		s.cfg.Log.Error("Failed to submit booking", "laboratory_id", booking.LaboratoryID, "error", err)
		return s.mapEngineError(ctx, err)
	}

	s.cfg.Log.Info("Booking submitted",
		"id", booking.ID,
		"laboratory_id", booking.LaboratoryID,
		"requester_id", booking.RequesterID,
		"status", booking.Status,
		"recurring", booking.IsRecurring,
	)
	return nil
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, reserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		if errors.Is(err, reserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid booking ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}

	return booking, nil
}

func (s *bookingService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error) {
	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "error", errCount)
			errCount = apperrors.Internal("Failed to count bookings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.repo.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve bookings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

func (s *bookingService) GetByLaboratory(ctx context.Context, laboratoryID string, startTime, endTime *time.Time, limit int, offset int64) ([]*model.Booking, int64, error) {
	if laboratoryID == "" {
		return nil, 0, apperrors.InvalidInput("Laboratory ID cannot be empty")
	}

	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		var err error
		count, err = s.repo.CountByLaboratory(ctx, laboratoryID, startTime, endTime)
		if err != nil {
			s.cfg.Log.Error("Failed to count laboratory bookings", "laboratory_id", laboratoryID, "error", err)
			errCount = apperrors.Internal("Failed to count bookings", err)
		}
	}()

	go func() {
		defer wg.Done()
		var err error
		bookings, err = s.repo.FindByLaboratory(ctx, laboratoryID, startTime, endTime, limit, offset)
		if err != nil {
			s.cfg.Log.Error("Failed to list laboratory bookings", "laboratory_id", laboratoryID, "error", err)
			errFind = apperrors.Internal("Failed to retrieve bookings", err)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

// CheckAvailability is the read-only probe: it never mutates the ledger, so
// a clear result is advisory until approval commits the slot.
func (s *bookingService) CheckAvailability(ctx context.Context, laboratoryID string, startTime, endTime time.Time, equipmentIDs []string) error {
	lab, err := s.loadLaboratory(ctx, laboratoryID)
	if err != nil {
		return err
	}
	if err := s.verifyEquipment(ctx, lab.ID, equipmentIDs); err != nil {
		return err
	}

	iv, err := engine.NewInterval(startTime, endTime)
	if err != nil {
		return s.mapEngineError(ctx, err)
	}
	if err := s.engine.CheckAvailability(ctx, *lab, iv, equipmentIDs, ""); err != nil {
		return s.mapEngineError(ctx, err)
	}
	return nil
}

func (s *bookingService) Approve(ctx context.Context, id, approverID string) error {
	if id == "" || approverID == "" {
		return apperrors.InvalidInput("Booking ID and approver ID are required")
	}

	booking, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	lab, err := s.loadLaboratory(ctx, booking.LaboratoryID)
	if err != nil {
		return err
	}

	lockIDs, err := s.acquireSlotLocks(ctx, lab.ID, booking.EquipmentIDs)
	if err != nil {
		return err
	}
	defer s.releaseSlotLocks(ctx, lockIDs)

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		return s.engine.Approve(sessCtx, id, approverID, *lab)
	})
	if err != nil {
		return s.mapEngineError(ctx, err)
	}

	return nil
}

func (s *bookingService) Reject(ctx context.Context, id, approverID, reason string) error {
	if id == "" || approverID == "" {
		return apperrors.InvalidInput("Booking ID and approver ID are required")
	}
	reason = sanitizer.TrimAndNormalize(reason)

	err := s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		return s.engine.Reject(sessCtx, id, approverID, reason)
	})
	if err != nil {
		return s.mapEngineError(ctx, err)
	}
	return nil
}

func (s *bookingService) Cancel(ctx context.Context, id, actorID, reason string, cascade bool) error {
	if id == "" || actorID == "" {
		return apperrors.InvalidInput("Booking ID and actor ID are required")
	}
	reason = sanitizer.TrimAndNormalize(reason)

	err := s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		return s.engine.Cancel(sessCtx, id, actorID, reason, cascade)
	})
	if err != nil {
		return s.mapEngineError(ctx, err)
	}
	return nil
}

func (s *bookingService) CheckIn(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.InvalidInput("Booking ID cannot be empty")
	}

	err := s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		return s.engine.CheckIn(sessCtx, id)
	})
	if err != nil {
		return s.mapEngineError(ctx, err)
	}
	return nil
}

func (s *bookingService) CheckOut(ctx context.Context, id string, actualAttendees int) error {
	if id == "" {
		return apperrors.InvalidInput("Booking ID cannot be empty")
	}
	if actualAttendees < 0 {
		return apperrors.InvalidInput("Actual attendees cannot be negative")
	}

	err := s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		return s.engine.CheckOut(sessCtx, id, actualAttendees)
	})
	if err != nil {
		return s.mapEngineError(ctx, err)
	}
	return nil
}

// SweepNoShows terminates approved bookings whose check-in grace period has
// elapsed. It returns the number of bookings marked.
func (s *bookingService) SweepNoShows(ctx context.Context) (int, error) {
	const sweepBatchSize = 100

	now := time.Now().UTC()
	overdue, err := s.repo.FindOverdueCheckIns(ctx, now.Add(-s.cfg.NoShowGrace), sweepBatchSize)
	if err != nil {
		return 0, apperrors.Internal("Failed to find overdue bookings", err)
	}

	marked := 0
	for _, b := range overdue {
		if !engine.IsOverdueForCheckIn(b, now, s.cfg.NoShowGrace) {
			continue
		}
		err := s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
			return s.engine.MarkNoShow(sessCtx, b.ID)
		})
		if err != nil {
			// A transition error means another actor raced us; skip it.
			var transition *engine.TransitionError
			if errors.As(err, &transition) {
				continue
			}
			s.cfg.Log.Error("Failed to mark no-show", "id", b.ID, "error", err)
			return marked, s.mapEngineError(ctx, err)
		}
		marked++
	}

	if marked > 0 {
		s.cfg.Log.Info("No-show sweep completed", "marked", marked, "grace", s.cfg.NoShowGrace)
	}
	return marked, nil
}

func (s *bookingService) GetLaboratories(ctx context.Context, activeOnly bool, limit int, offset int64) ([]*model.Laboratory, int64, error) {
	var count int64
	var labs []*model.Laboratory
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		var err error
		count, err = s.labRepo.Count(ctx, activeOnly)
		if err != nil {
			s.cfg.Log.Error("Failed to count laboratories", "error", err)
			errCount = apperrors.Internal("Failed to count laboratories", err)
		}
	}()

	go func() {
		defer wg.Done()
		var err error
		labs, err = s.labRepo.FindAll(ctx, activeOnly, limit, offset)
		if err != nil {
			s.cfg.Log.Error("Failed to list laboratories", "error", err)
			errFind = apperrors.Internal("Failed to retrieve laboratories", err)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return labs, count, nil
}

func (s *bookingService) GetLaboratoryEquipment(ctx context.Context, laboratoryID string) ([]*model.Equipment, error) {
	if laboratoryID == "" {
		return nil, apperrors.InvalidInput("Laboratory ID cannot be empty")
	}

	if _, err := s.labRepo.FindByID(ctx, laboratoryID); err != nil {
		if errors.Is(err, reserrors.ErrLaboratoryNotFound) {
			return nil, apperrors.NotFoundWithID("Laboratory", laboratoryID)
		}
		return nil, apperrors.Internal("Failed to retrieve laboratory", err)
	}

	equipment, err := s.equipRepo.FindByLaboratory(ctx, laboratoryID)
	if err != nil {
		return nil, apperrors.Internal("Failed to retrieve equipment", err)
	}
	return equipment, nil
}

// --- Helpers ---

func (s *bookingService) sanitize(b *model.Booking) {
	b.RequesterID = strings.TrimSpace(b.RequesterID)
	b.Notes = sanitizer.TrimAndNormalize(b.Notes)
}

func (s *bookingService) validate(booking *model.Booking) error {
	if err := s.validator.Validate(booking); err != nil {
		s.cfg.Log.Warn("Booking validation failed", "error", err)
		return apperrors.Validation("Booking validation failed", map[string]any{"error": err.Error()})
	}
	return nil
}

func (s *bookingService) loadLaboratory(ctx context.Context, id string) (*model.Laboratory, error) {
	lab, err := s.labRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, reserrors.ErrLaboratoryNotFound) {
			return nil, apperrors.NotFoundWithID("Laboratory", id)
		}
		return nil, apperrors.Internal("Failed to retrieve laboratory", err)
	}
	if !lab.Active {
		return nil, apperrors.Validation("Laboratory is not accepting bookings", map[string]any{
			"laboratory_id": id,
		})
	}
	return lab, nil
}

func (s *bookingService) verifyEquipment(ctx context.Context, laboratoryID string, equipmentIDs []string) error {
	if len(equipmentIDs) == 0 {
		return nil
	}

	items, err := s.equipRepo.FindByIDs(ctx, equipmentIDs)
	if err != nil {
		return apperrors.Internal("Failed to retrieve equipment", err)
	}

	found := make(map[string]*model.Equipment, len(items))
	for _, item := range items {
		found[item.ID] = item
	}

	for _, id := range equipmentIDs {
		item, ok := found[id]
		if !ok {
			return apperrors.NotFoundWithID("Equipment", id)
		}
		if item.LaboratoryID != laboratoryID {
			return apperrors.Validation("Equipment belongs to another laboratory", map[string]any{
				"equipment_id":  id,
				"laboratory_id": item.LaboratoryID,
			})
		}
		if item.Status != model.EquipmentAvailable {
			return apperrors.Validation("Equipment is not available", map[string]any{
				"equipment_id": id,
				"status":       item.Status,
			})
		}
	}
	return nil
}

// acquireSlotLocks takes one advisory lock per resource touched by the
// check-then-commit sequence, in sorted key order so two requests touching
// the same resources never deadlock.
func (s *bookingService) acquireSlotLocks(ctx context.Context, laboratoryID string, equipmentIDs []string) ([]string, error) {
	keys := make([]string, 0, 1+len(equipmentIDs))
	keys = append(keys, fmt.Sprintf("slot_lab_%s", laboratoryID))
	for _, id := range equipmentIDs {
		keys = append(keys, fmt.Sprintf("slot_equip_%s", id))
	}
	sort.Strings(keys)

	acquired := make([]string, 0, len(keys))
	for _, key := range keys {
		lock := &model.SlotLock{
			ID:        key,
			ExpiresAt: time.Now().Add(s.cfg.SlotLockTTL),
		}
		if _, err := s.lockRepo.Create(ctx, lock); err != nil {
			s.releaseSlotLocks(ctx, acquired)
			if mongo.IsDuplicateKeyError(err) {
				return nil, apperrors.Conflict("This slot is currently being booked by another request. Please try again.")
			}
			return nil, apperrors.Internal("Failed to acquire slot lock", err)
		}
		acquired = append(acquired, key)
	}

	return acquired, nil
}

func (s *bookingService) releaseSlotLocks(ctx context.Context, lockIDs []string) {
	for _, id := range lockIDs {
		if err := s.lockRepo.Delete(ctx, id); err != nil {
			s.cfg.Log.Warn("Failed to release slot lock", "lock_id", id, "error", err)
		}
	}
}

// mapEngineError translates lifecycle engine errors into API errors.
func (s *bookingService) mapEngineError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}

	var conflict *engine.SlotConflictError
	if errors.As(err, &conflict) {
		return apperrors.Conflict("Requested slot conflicts with existing bookings").WithDetails(map[string]any{
			"stage":       string(conflict.Stage),
			"conflicting": conflict.Conflicting,
		})
	}

	var capacity *engine.CapacityError
	if errors.As(err, &capacity) {
		return apperrors.Validation("Expected attendees exceed laboratory capacity", map[string]any{
			"requested": capacity.Requested,
			"capacity":  capacity.Capacity,
		})
	}

	var hours *engine.OperatingHoursError
	if errors.As(err, &hours) {
		return apperrors.Validation("Requested interval is outside operating hours", map[string]any{
			"day":     string(hours.Day),
			"opening": hours.Opening,
			"closing": hours.Closing,
		})
	}

	var rule *engine.RuleViolationError
	if errors.As(err, &rule) {
		return apperrors.Validation("Booking violates laboratory rules", map[string]any{
			"rule":  rule.Rule,
			"limit": rule.Limit,
		})
	}

	var transition *engine.TransitionError
	if errors.As(err, &transition) {
		return apperrors.Conflict(fmt.Sprintf("Cannot %s a booking in status %s", transition.Op, transition.From))
	}

	var cascade *engine.CascadeError
	if errors.As(err, &cascade) {
		return apperrors.Internal("Failed to apply series cascade", cascade)
	}

	switch {
	case errors.Is(err, engine.ErrInvalidInterval),
		errors.Is(err, engine.ErrInvalidRecurrenceRange),
		errors.Is(err, reserrors.ErrInvalidID):
		return apperrors.InvalidInput(err.Error())
	case errors.Is(err, engine.ErrBookingNotFound), errors.Is(err, reserrors.ErrNotFound):
		return apperrors.NotFound("Booking")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.Timeout("Booking operation timed out")
	default:
		return apperrors.Internal("Booking operation failed", err)
	}
}
