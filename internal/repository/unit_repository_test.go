package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/colegio-gt/unidades-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestUnitRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUnitRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO units")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	unit := &models.Unit{
		OfferingID:  "off-1",
		Sequence:    1,
		ZonaWeight:  70,
		FinalWeight: 30,
	}
	require.NoError(t, repo.Create(context.Background(), unit))
	require.NotEmpty(t, unit.ID)
	require.False(t, unit.Active)
	require.False(t, unit.Closed)

	rows := sqlmock.NewRows([]string{"id", "offering_id", "sequence", "zona_weight", "final_weight", "active", "closed", "grading_deadline", "closed_at", "closed_by", "notifications_sent", "created_at", "updated_at"}).
		AddRow(unit.ID, "off-1", 1, 70.0, 30.0, false, false, nil, nil, nil, false, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, offering_id, sequence")).
		WithArgs(unit.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), unit.ID)
	require.NoError(t, err)
	require.Equal(t, unit.ID, found.ID)
	require.Equal(t, 70.0, found.ZonaWeight)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitRepositoryMarkClosedGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUnitRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE units SET")).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkClosed(context.Background(), db, "unit-1", "admin-1"))

	// Second closure hits the active/closed guard and matches no rows.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE units SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.MarkClosed(context.Background(), db, "unit-1", "admin-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitRepositoryReopenGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUnitRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE units SET")).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Reopen(context.Background(), db, "unit-1"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE units SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Reopen(context.Background(), db, "unit-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitRepositoryActivateClosedUnit(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUnitRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE units SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Activate(context.Background(), db, "unit-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitRepositoryFindActiveByOffering(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUnitRepository(db)
	rows := sqlmock.NewRows([]string{"id", "offering_id", "sequence", "zona_weight", "final_weight", "active", "closed", "grading_deadline", "closed_at", "closed_by", "notifications_sent", "created_at", "updated_at"}).
		AddRow("unit-2", "off-1", 2, 70.0, 30.0, true, false, nil, nil, nil, false, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, offering_id, sequence")).
		WithArgs("off-1").
		WillReturnRows(rows)

	unit, err := repo.FindActiveByOffering(context.Background(), db, "off-1")
	require.NoError(t, err)
	require.Equal(t, "unit-2", unit.ID)
	require.True(t, unit.Active)
	require.NoError(t, mock.ExpectationsWereMet())
}
