package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"labreserve/internal/reservations/engine"
	reserrors "labreserve/internal/reservations/errors"
	"labreserve/internal/reservations/validator"
	"labreserve/pkg/config"
	mongotx "labreserve/pkg/db/mongo"
	apperrors "labreserve/pkg/errors"
	"labreserve/pkg/logger"
	"labreserve/pkg/model"
)

const (
	labID    = "507f1f77bcf86cd799439011"
	otherLab = "507f1f77bcf86cd799439012"
	scopeID  = "507f1f77bcf86cd799439021"
)

// fakeSessionContext satisfies mongo.SessionContext for tests that never
// touch session methods.
type fakeSessionContext struct {
	context.Context
	mongo.Session
}

type mockBookingRepo struct {
	*engine.MemoryStore
	findAllFn func(ctx context.Context, limit int, offset int64) ([]*model.Booking, error)
	countFn   func(ctx context.Context) (int64, error)
	overdueFn func(ctx context.Context, startedBefore time.Time, limit int) ([]*model.Booking, error)
}

func newMockBookingRepo() *mockBookingRepo {
	return &mockBookingRepo{MemoryStore: engine.NewMemoryStore()}
}

// FindByID reports missing bookings with the repository sentinel, as the
// Mongo implementation does.
func (m *mockBookingRepo) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	b, err := m.MemoryStore.FindByID(ctx, id)
	if errors.Is(err, engine.ErrBookingNotFound) {
		return nil, reserrors.ErrNotFound
	}
	return b, err
}

func (m *mockBookingRepo) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	if m.findAllFn != nil {
		return m.findAllFn(ctx, limit, offset)
	}
	return nil, nil
}

func (m *mockBookingRepo) Count(ctx context.Context) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 0, nil
}

func (m *mockBookingRepo) FindByLaboratory(ctx context.Context, laboratoryID string, startTime, endTime *time.Time, limit int, offset int64) ([]*model.Booking, error) {
	return nil, nil
}

func (m *mockBookingRepo) CountByLaboratory(ctx context.Context, laboratoryID string, startTime, endTime *time.Time) (int64, error) {
	return 0, nil
}

func (m *mockBookingRepo) FindOverdueCheckIns(ctx context.Context, startedBefore time.Time, limit int) ([]*model.Booking, error) {
	if m.overdueFn != nil {
		return m.overdueFn(ctx, startedBefore, limit)
	}
	return nil, nil
}

func (m *mockBookingRepo) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(fakeSessionContext{Context: ctx})
}

type mockLockRepo struct {
	held     map[string]bool
	acquired []string
	released []string
	failWith error
}

func newMockLockRepo() *mockLockRepo {
	return &mockLockRepo{held: make(map[string]bool)}
}

func (m *mockLockRepo) Create(ctx context.Context, lock *model.SlotLock) (*model.SlotLock, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	if m.held[lock.ID] {
		return nil, mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000}}}
	}
	m.held[lock.ID] = true
	m.acquired = append(m.acquired, lock.ID)
	return lock, nil
}

func (m *mockLockRepo) Delete(ctx context.Context, lockID string) error {
	delete(m.held, lockID)
	m.released = append(m.released, lockID)
	return nil
}

type mockLabRepo struct {
	labs map[string]*model.Laboratory
}

func (m *mockLabRepo) FindByID(ctx context.Context, id string) (*model.Laboratory, error) {
	lab, ok := m.labs[id]
	if !ok {
		return nil, reserrors.ErrLaboratoryNotFound
	}
	copied := *lab
	return &copied, nil
}

func (m *mockLabRepo) FindAll(ctx context.Context, activeOnly bool, limit int, offset int64) ([]*model.Laboratory, error) {
	return nil, nil
}

func (m *mockLabRepo) Count(ctx context.Context, activeOnly bool) (int64, error) { return 0, nil }

type mockEquipRepo struct {
	items map[string]*model.Equipment
}

func (m *mockEquipRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.Equipment, error) {
	var found []*model.Equipment
	for _, id := range ids {
		if item, ok := m.items[id]; ok {
			copied := *item
			found = append(found, &copied)
		}
	}
	return found, nil
}

func (m *mockEquipRepo) FindByLaboratory(ctx context.Context, laboratoryID string) ([]*model.Equipment, error) {
	return nil, nil
}

type serviceEnv struct {
	svc    BookingService
	repo   *mockBookingRepo
	locks  *mockLockRepo
	labs   *mockLabRepo
	equip  *mockEquipRepo
	ledger *engine.MemoryLedger
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	log := logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard})
	cfg := &config.Config{
		SlotLockTTL:              10 * time.Second,
		NoShowGrace:              15 * time.Minute,
		MaxRecurrenceOccurrences: 52,
		Log:                      log,
	}

	env := &serviceEnv{
		repo:   newMockBookingRepo(),
		locks:  newMockLockRepo(),
		labs:   &mockLabRepo{labs: map[string]*model.Laboratory{labID: openLab(labID)}},
		equip:  &mockEquipRepo{items: map[string]*model.Equipment{}},
		ledger: engine.NewMemoryLedger(),
	}
	env.svc = NewBookingService(
		env.repo,
		env.locks,
		env.labs,
		env.equip,
		validator.NewBookingValidator(log),
		env.ledger,
		engine.NopSink{},
		cfg,
	)
	return env
}

func openLab(id string) *model.Laboratory {
	return &model.Laboratory{
		ID:          id,
		Name:        "Biology Lab C",
		Capacity:    20,
		OpeningTime: "00:00",
		ClosingTime: "23:59",
		WorkingDays: model.AllWeekdays,
		Rules: model.BookingRules{
			MaxBookingDurationMin: 480,
			RequireApproval:       true,
			AllowRecurring:        true,
		},
		Active: true,
	}
}

func requestAt(start time.Time) *model.Booking {
	return &model.Booking{
		LaboratoryID:      labID,
		RequesterID:       "student-7",
		StartTime:         start,
		EndTime:           start.Add(time.Hour),
		Purpose:           model.PurposeLecture,
		ExpectedAttendees: 10,
	}
}

func wantCode(t *testing.T, err error, code string) *apperrors.AppError {
	t.Helper()
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError with code %s, got %v", code, err)
	}
	if appErr.Code != code {
		t.Fatalf("error code = %s, want %s (error: %v)", appErr.Code, code, appErr)
	}
	return appErr
}

// futureSlot is 09:00 UTC on a day n days out, comfortably inside any
// always-open laboratory's hours.
func futureSlot(days int) time.Time {
	base := time.Now().UTC().AddDate(0, 0, days)
	return time.Date(base.Year(), base.Month(), base.Day(), 9, 0, 0, 0, time.UTC)
}

func TestSubmit_HappyPath(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)

	b := requestAt(futureSlot(2))
	if err := env.svc.Submit(ctx, b); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if b.Status != model.StatusPending {
		t.Errorf("status = %s, want pending", b.Status)
	}
	if b.ID == "" {
		t.Error("submit must assign an id")
	}
	if len(env.locks.acquired) == 0 {
		t.Error("submit must acquire slot locks")
	}
	if len(env.locks.held) != 0 {
		t.Errorf("slot locks not released: %v", env.locks.held)
	}
}

func TestSubmit_ValidationFailure(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)

	b := requestAt(futureSlot(2))
	b.ExpectedAttendees = 0
	err := env.svc.Submit(ctx, b)
	wantCode(t, err, apperrors.CodeValidation)

	if len(env.locks.acquired) != 0 {
		t.Error("validation failures must not reach the lock step")
	}
}

func TestSubmit_UnknownLaboratory(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)

	b := requestAt(futureSlot(2))
	b.LaboratoryID = otherLab
	err := env.svc.Submit(ctx, b)
	wantCode(t, err, apperrors.CodeNotFound)
}

func TestSubmit_InactiveLaboratory(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	env.labs.labs[labID].Active = false

	err := env.svc.Submit(ctx, requestAt(futureSlot(2)))
	wantCode(t, err, apperrors.CodeValidation)
}

func TestSubmit_EquipmentChecks(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	env.equip.items[scopeID] = &model.Equipment{
		ID:           scopeID,
		LaboratoryID: otherLab,
		Name:         "Microscope",
		Status:       model.EquipmentAvailable,
	}

	// Belongs to another laboratory.
	b := requestAt(futureSlot(2))
	b.EquipmentIDs = []string{scopeID}
	err := env.svc.Submit(ctx, b)
	wantCode(t, err, apperrors.CodeValidation)

	// Unknown item.
	b = requestAt(futureSlot(2))
	b.EquipmentIDs = []string{"507f1f77bcf86cd799439099"}
	err = env.svc.Submit(ctx, b)
	wantCode(t, err, apperrors.CodeNotFound)

	// Under maintenance.
	env.equip.items[scopeID].LaboratoryID = labID
	env.equip.items[scopeID].Status = model.EquipmentMaintenance
	b = requestAt(futureSlot(2))
	b.EquipmentIDs = []string{scopeID}
	err = env.svc.Submit(ctx, b)
	wantCode(t, err, apperrors.CodeValidation)
}

func TestSubmit_LockContention(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	env.locks.held["slot_lab_"+labID] = true

	err := env.svc.Submit(ctx, requestAt(futureSlot(2)))
	wantCode(t, err, apperrors.CodeConflict)
}

func TestSubmitApprove_ConflictSurfacesAsAppError(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	start := futureSlot(2)

	first := requestAt(start)
	if err := env.svc.Submit(ctx, first); err != nil {
		t.Fatalf("submit first: %v", err)
	}
	if err := env.svc.Approve(ctx, first.ID, "prof-1"); err != nil {
		t.Fatalf("approve first: %v", err)
	}
	stored, _ := env.repo.FindByID(ctx, first.ID)
	if stored.Status != model.StatusApproved {
		t.Fatalf("first booking status = %s, want approved", stored.Status)
	}

	second := requestAt(start.Add(30 * time.Minute))
	err := env.svc.Submit(ctx, second)
	appErr := wantCode(t, err, apperrors.CodeConflict)
	conflicting, ok := appErr.Details["conflicting"].([]string)
	if !ok || len(conflicting) != 1 || conflicting[0] != first.ID {
		t.Errorf("conflict details must name %s, got %v", first.ID, appErr.Details)
	}
}

func TestApprove_RaceLoserRejected(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	start := futureSlot(2)

	b1 := requestAt(start)
	b2 := requestAt(start.Add(30 * time.Minute))
	if err := env.svc.Submit(ctx, b1); err != nil {
		t.Fatalf("submit b1: %v", err)
	}
	if err := env.svc.Submit(ctx, b2); err != nil {
		t.Fatalf("submit b2: %v", err)
	}

	if err := env.svc.Approve(ctx, b1.ID, "prof-1"); err != nil {
		t.Fatalf("approve b1: %v", err)
	}
	err := env.svc.Approve(ctx, b2.ID, "prof-2")
	wantCode(t, err, apperrors.CodeConflict)

	loser, _ := env.repo.FindByID(ctx, b2.ID)
	if loser.Status != model.StatusRejected {
		t.Errorf("race loser status = %s, want rejected", loser.Status)
	}
}

func TestApprove_MissingBooking(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)

	err := env.svc.Approve(ctx, "507f1f77bcf86cd799439055", "prof-1")
	wantCode(t, err, apperrors.CodeNotFound)
}

func TestCheckAvailability_InvalidInterval(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	start := futureSlot(2)

	err := env.svc.CheckAvailability(ctx, labID, start, start, nil)
	wantCode(t, err, apperrors.CodeInvalidInput)
}

func TestSweepNoShows(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)

	// An approved booking whose start passed well beyond the grace period.
	past := time.Now().UTC().Add(-time.Hour)
	stale := requestAt(past)
	stale.Status = model.StatusApproved
	if err := env.repo.Insert(ctx, stale); err != nil {
		t.Fatalf("insert stale: %v", err)
	}
	if err := env.ledger.Commit(ctx, engine.Entry{
		BookingID:    stale.ID,
		LaboratoryID: labID,
		Interval:     engine.Interval{Start: stale.StartTime, End: stale.EndTime},
	}); err != nil {
		t.Fatalf("commit stale: %v", err)
	}
	env.repo.overdueFn = func(ctx context.Context, startedBefore time.Time, limit int) ([]*model.Booking, error) {
		if !stale.StartTime.Before(startedBefore) {
			return nil, nil
		}
		return []*model.Booking{stale}, nil
	}

	marked, err := env.svc.SweepNoShows(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if marked != 1 {
		t.Fatalf("marked = %d, want 1", marked)
	}

	swept, _ := env.repo.FindByID(ctx, stale.ID)
	if swept.Status != model.StatusNoShow {
		t.Errorf("status = %s, want no_show", swept.Status)
	}
	if env.ledger.Len() != 0 {
		t.Error("no-show sweep must release the ledger entry")
	}
}
