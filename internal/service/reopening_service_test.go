package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/colegio-gt/unidades-api/internal/models"
	appErrors "github.com/colegio-gt/unidades-api/pkg/errors"
)

type reopeningStoreStub struct {
	requests map[string]*models.ReopeningRequest
}

func newReopeningStoreStub() *reopeningStoreStub {
	return &reopeningStoreStub{requests: make(map[string]*models.ReopeningRequest)}
}

func (s *reopeningStoreStub) Create(ctx context.Context, request *models.ReopeningRequest) error {
	if request.ID == "" {
		request.ID = "req-1"
	}
	request.Status = models.ReopeningStatusPending
	copy := *request
	s.requests[request.ID] = &copy
	return nil
}

func (s *reopeningStoreStub) GetByID(ctx context.Context, id string) (*models.ReopeningRequest, error) {
	if request, ok := s.requests[id]; ok {
		copy := *request
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *reopeningStoreStub) HasPending(ctx context.Context, unitID, teacherID string) (bool, error) {
	for _, request := range s.requests {
		if request.UnitID == unitID && request.TeacherID == teacherID && request.Status == models.ReopeningStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *reopeningStoreStub) ListByTeacher(ctx context.Context, teacherID string) ([]models.ReopeningRequest, error) {
	var result []models.ReopeningRequest
	for _, request := range s.requests {
		if request.TeacherID == teacherID {
			result = append(result, *request)
		}
	}
	return result, nil
}

func (s *reopeningStoreStub) ListPending(ctx context.Context) ([]models.ReopeningRequest, error) {
	var result []models.ReopeningRequest
	for _, request := range s.requests {
		if request.Status == models.ReopeningStatusPending {
			result = append(result, *request)
		}
	}
	return result, nil
}

func (s *reopeningStoreStub) Decide(ctx context.Context, q sqlx.ExtContext, params models.ReopeningDecision) error {
	request, ok := s.requests[params.ID]
	if !ok || request.Status != models.ReopeningStatusPending {
		return sql.ErrNoRows
	}
	request.Status = params.Status
	request.DecidedBy = &params.DecidedBy
	request.DecidedAt = &params.DecidedAt
	request.Notes = params.Notes
	request.DeactivatedUnitID = params.DeactivatedUnitID
	return nil
}

type reopeningUnitStub struct {
	units map[string]*models.Unit
}

func (s *reopeningUnitStub) GetByID(ctx context.Context, id string) (*models.Unit, error) {
	if unit, ok := s.units[id]; ok {
		copy := *unit
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *reopeningUnitStub) GetForUpdate(ctx context.Context, q sqlx.ExtContext, id string) (*models.Unit, error) {
	return s.GetByID(ctx, id)
}

func (s *reopeningUnitStub) FindActiveByOffering(ctx context.Context, q sqlx.ExtContext, offeringID string) (*models.Unit, error) {
	for _, unit := range s.units {
		if unit.OfferingID == offeringID && unit.Active {
			copy := *unit
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *reopeningUnitStub) Deactivate(ctx context.Context, q sqlx.ExtContext, id string) error {
	if unit, ok := s.units[id]; ok {
		unit.Active = false
		return nil
	}
	return sql.ErrNoRows
}

func (s *reopeningUnitStub) Reopen(ctx context.Context, q sqlx.ExtContext, id string) error {
	unit, ok := s.units[id]
	if !ok || !unit.Closed {
		return sql.ErrNoRows
	}
	unit.Closed = false
	unit.Active = true
	unit.ClosedAt = nil
	unit.ClosedBy = nil
	return nil
}

func teacherClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}
}

func newReopeningFixture(t *testing.T) (*ReopeningService, *reopeningStoreStub, *reopeningUnitStub, sqlmock.Sqlmock) {
	db, mock := newMockDB(t)
	store := newReopeningStoreStub()
	units := &reopeningUnitStub{units: map[string]*models.Unit{
		"unit-1": {ID: "unit-1", OfferingID: "off-1", Sequence: 1, Closed: true},
		"unit-2": {ID: "unit-2", OfferingID: "off-1", Sequence: 2, Active: true},
	}}
	offerings := &closureOfferingStub{offerings: map[string]*models.CourseOffering{
		"off-1": {ID: "off-1", TeacherID: "teacher-1", CourseID: "course-1"},
	}}
	svc := NewReopeningService(db, store, units, offerings, nil, nil, nil)
	return svc, store, units, mock
}

func TestRequestReopening(t *testing.T) {
	svc, store, _, _ := newReopeningFixture(t)

	request, err := svc.Request(context.Background(), teacherClaims(), CreateReopeningRequest{
		UnitID: "unit-1",
		Reason: "late exam corrections",
	})
	require.NoError(t, err)
	require.Equal(t, models.ReopeningStatusPending, request.Status)
	require.Equal(t, "teacher-1", request.TeacherID)
	require.Len(t, store.requests, 1)
}

func TestRequestReopeningNotClosed(t *testing.T) {
	svc, _, units, _ := newReopeningFixture(t)
	units.units["unit-1"].Closed = false

	_, err := svc.Request(context.Background(), teacherClaims(), CreateReopeningRequest{
		UnitID: "unit-1",
		Reason: "late exam corrections",
	})
	require.True(t, appErrors.Is(err, appErrors.ErrNotClosed))
}

func TestRequestReopeningNotOwner(t *testing.T) {
	svc, _, _, _ := newReopeningFixture(t)
	other := &models.JWTClaims{UserID: "teacher-2", Role: models.RoleTeacher}

	_, err := svc.Request(context.Background(), other, CreateReopeningRequest{
		UnitID: "unit-1",
		Reason: "late exam corrections",
	})
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestRequestReopeningDuplicatePending(t *testing.T) {
	svc, _, _, _ := newReopeningFixture(t)

	_, err := svc.Request(context.Background(), teacherClaims(), CreateReopeningRequest{
		UnitID: "unit-1",
		Reason: "late exam corrections",
	})
	require.NoError(t, err)

	_, err = svc.Request(context.Background(), teacherClaims(), CreateReopeningRequest{
		UnitID: "unit-1",
		Reason: "still waiting",
	})
	require.True(t, appErrors.Is(err, appErrors.ErrDuplicatePending))
}

func TestProcessApproveReopensUnit(t *testing.T) {
	svc, store, units, mock := newReopeningFixture(t)
	store.requests["req-1"] = &models.ReopeningRequest{
		ID: "req-1", UnitID: "unit-1", TeacherID: "teacher-1", Status: models.ReopeningStatusPending,
	}
	mock.ExpectBegin()
	mock.ExpectCommit()

	request, err := svc.Process(context.Background(), adminClaims(), "req-1", ProcessReopeningRequest{
		Decision: "APPROVED",
	})
	require.NoError(t, err)
	require.Equal(t, models.ReopeningStatusApproved, request.Status)
	require.NotNil(t, request.DeactivatedUnitID)
	require.Equal(t, "unit-2", *request.DeactivatedUnitID)

	// The closed unit is active again, the previously active one is parked.
	require.True(t, units.units["unit-1"].Active)
	require.False(t, units.units["unit-1"].Closed)
	require.False(t, units.units["unit-2"].Active)
}

func TestProcessRejectLeavesUnitClosed(t *testing.T) {
	svc, store, units, mock := newReopeningFixture(t)
	store.requests["req-1"] = &models.ReopeningRequest{
		ID: "req-1", UnitID: "unit-1", TeacherID: "teacher-1", Status: models.ReopeningStatusPending,
	}
	mock.ExpectBegin()
	mock.ExpectCommit()

	notes := "deadline passed"
	request, err := svc.Process(context.Background(), adminClaims(), "req-1", ProcessReopeningRequest{
		Decision: "REJECTED",
		Notes:    &notes,
	})
	require.NoError(t, err)
	require.Equal(t, models.ReopeningStatusRejected, request.Status)
	require.True(t, units.units["unit-1"].Closed)
	require.True(t, units.units["unit-2"].Active)
}

func TestProcessTwiceFails(t *testing.T) {
	svc, store, _, mock := newReopeningFixture(t)
	store.requests["req-1"] = &models.ReopeningRequest{
		ID: "req-1", UnitID: "unit-1", TeacherID: "teacher-1", Status: models.ReopeningStatusPending,
	}
	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := svc.Process(context.Background(), adminClaims(), "req-1", ProcessReopeningRequest{Decision: "REJECTED"})
	require.NoError(t, err)

	_, err = svc.Process(context.Background(), adminClaims(), "req-1", ProcessReopeningRequest{Decision: "APPROVED"})
	require.True(t, appErrors.Is(err, appErrors.ErrNotPending))
}

func TestProcessForbiddenForTeacher(t *testing.T) {
	svc, _, _, _ := newReopeningFixture(t)

	_, err := svc.Process(context.Background(), teacherClaims(), "req-1", ProcessReopeningRequest{Decision: "APPROVED"})
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
