package service

import (
	"context"
	"database/sql"
	"sort"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/colegio-gt/unidades-api/internal/models"
	appErrors "github.com/colegio-gt/unidades-api/pkg/errors"
)

type unitStoreStub struct {
	units map[string]*models.Unit
}

func newUnitStoreStub() *unitStoreStub {
	return &unitStoreStub{units: make(map[string]*models.Unit)}
}

func (s *unitStoreStub) Create(ctx context.Context, unit *models.Unit) error {
	if unit.ID == "" {
		unit.ID = "unit-new"
	}
	unit.Active = false
	unit.Closed = false
	copy := *unit
	s.units[unit.ID] = &copy
	return nil
}

func (s *unitStoreStub) GetByID(ctx context.Context, id string) (*models.Unit, error) {
	if unit, ok := s.units[id]; ok {
		copy := *unit
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *unitStoreStub) GetForUpdate(ctx context.Context, q sqlx.ExtContext, id string) (*models.Unit, error) {
	return s.GetByID(ctx, id)
}

func (s *unitStoreStub) ListByOffering(ctx context.Context, offeringID string) ([]models.Unit, error) {
	var result []models.Unit
	for _, unit := range s.units {
		if unit.OfferingID == offeringID {
			result = append(result, *unit)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Sequence < result[j].Sequence })
	return result, nil
}

func (s *unitStoreStub) FindActiveByOffering(ctx context.Context, q sqlx.ExtContext, offeringID string) (*models.Unit, error) {
	for _, unit := range s.units {
		if unit.OfferingID == offeringID && unit.Active {
			copy := *unit
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *unitStoreStub) FindBySequence(ctx context.Context, q sqlx.ExtContext, offeringID string, sequence int) (*models.Unit, error) {
	for _, unit := range s.units {
		if unit.OfferingID == offeringID && unit.Sequence == sequence {
			copy := *unit
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *unitStoreStub) Activate(ctx context.Context, q sqlx.ExtContext, id string) error {
	unit, ok := s.units[id]
	if !ok || unit.Closed {
		return sql.ErrNoRows
	}
	unit.Active = true
	return nil
}

func (s *unitStoreStub) Deactivate(ctx context.Context, q sqlx.ExtContext, id string) error {
	if unit, ok := s.units[id]; ok {
		unit.Active = false
		return nil
	}
	return sql.ErrNoRows
}

func newUnitServiceFixture(t *testing.T) (*UnitService, *unitStoreStub, func(commit bool)) {
	db, mock := newMockDB(t)
	store := newUnitStoreStub()
	offerings := &closureOfferingStub{offerings: map[string]*models.CourseOffering{
		"off-1": {ID: "off-1", TeacherID: "teacher-1", CourseID: "course-1"},
	}}
	svc := NewUnitService(db, store, offerings, nil, nil)
	expectTx := func(commit bool) {
		mock.ExpectBegin()
		if commit {
			mock.ExpectCommit()
		} else {
			mock.ExpectRollback()
		}
	}
	return svc, store, expectTx
}

func TestCreateUnit(t *testing.T) {
	svc, store, _ := newUnitServiceFixture(t)

	unit, err := svc.Create(context.Background(), adminClaims(), CreateUnitRequest{
		OfferingID:  "off-1",
		Sequence:    1,
		ZonaWeight:  75,
		FinalWeight: 25,
	})
	require.NoError(t, err)
	require.False(t, unit.Active)
	require.False(t, unit.Closed)
	require.Len(t, store.units, 1)
}

func TestCreateUnitInvalidWeights(t *testing.T) {
	svc, _, _ := newUnitServiceFixture(t)

	_, err := svc.Create(context.Background(), adminClaims(), CreateUnitRequest{
		OfferingID:  "off-1",
		Sequence:    1,
		ZonaWeight:  70,
		FinalWeight: 40,
	})
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidWeights))
}

func TestCreateUnitDuplicateSequence(t *testing.T) {
	svc, store, _ := newUnitServiceFixture(t)
	store.units["unit-1"] = &models.Unit{ID: "unit-1", OfferingID: "off-1", Sequence: 1}

	_, err := svc.Create(context.Background(), adminClaims(), CreateUnitRequest{
		OfferingID:  "off-1",
		Sequence:    1,
		ZonaWeight:  75,
		FinalWeight: 25,
	})
	require.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestCreateUnitForbiddenForTeacher(t *testing.T) {
	svc, _, _ := newUnitServiceFixture(t)

	_, err := svc.Create(context.Background(), teacherClaims(), CreateUnitRequest{
		OfferingID:  "off-1",
		Sequence:    1,
		ZonaWeight:  75,
		FinalWeight: 25,
	})
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestActivateUnitSwapsActive(t *testing.T) {
	svc, store, expectTx := newUnitServiceFixture(t)
	store.units["unit-1"] = &models.Unit{ID: "unit-1", OfferingID: "off-1", Sequence: 1, Active: true}
	store.units["unit-2"] = &models.Unit{ID: "unit-2", OfferingID: "off-1", Sequence: 2}
	expectTx(true)

	unit, err := svc.Activate(context.Background(), adminClaims(), "unit-2")
	require.NoError(t, err)
	require.True(t, unit.Active)
	require.True(t, store.units["unit-2"].Active)
	require.False(t, store.units["unit-1"].Active)
}

func TestActivateClosedUnit(t *testing.T) {
	svc, store, expectTx := newUnitServiceFixture(t)
	store.units["unit-1"] = &models.Unit{ID: "unit-1", OfferingID: "off-1", Sequence: 1, Closed: true}
	expectTx(false)

	_, err := svc.Activate(context.Background(), adminClaims(), "unit-1")
	require.True(t, appErrors.Is(err, appErrors.ErrAlreadyClosed))
}

func TestActivateUnknownUnit(t *testing.T) {
	svc, _, expectTx := newUnitServiceFixture(t)
	expectTx(false)

	_, err := svc.Activate(context.Background(), adminClaims(), "missing")
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
