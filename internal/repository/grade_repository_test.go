package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/colegio-gt/unidades-api/internal/models"
)

func TestGradeRepositoryUpsertScore(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewGradeRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grades")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	score := 85.5
	gradedBy := "teacher-1"
	grade := &models.Grade{
		ActivityID: "act-1",
		StudentID:  "student-1",
		Score:      &score,
		GradedBy:   &gradedBy,
	}
	require.NoError(t, repo.UpsertScore(context.Background(), grade))
	require.NotEmpty(t, grade.ID)
	require.False(t, grade.UpdatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryFetchUnitRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewGradeRepository(db)
	rows := sqlmock.NewRows([]string{"activity_id", "student_id", "kind", "max_points", "score"}).
		AddRow("act-1", "student-a", "ZONA", 40.0, 35.0).
		AddRow("act-2", "student-a", "FINAL", 30.0, nil).
		AddRow("act-1", "student-b", "ZONA", 40.0, 22.5)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT g.activity_id, g.student_id")).
		WithArgs("unit-1").
		WillReturnRows(rows)

	byStudent, err := repo.FetchUnitRows(context.Background(), db, "unit-1")
	require.NoError(t, err)
	require.Len(t, byStudent, 2)
	require.Len(t, byStudent["student-a"], 2)
	require.Len(t, byStudent["student-b"], 1)

	require.Equal(t, models.ActivityKindZona, byStudent["student-a"][0].Kind)
	require.NotNil(t, byStudent["student-a"][0].Score)
	require.Equal(t, 35.0, *byStudent["student-a"][0].Score)
	require.Nil(t, byStudent["student-a"][1].Score)
	require.Equal(t, 40.0, byStudent["student-b"][0].MaxPoints)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositorySeedSkipsEmptyRoster(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewGradeRepository(db)
	require.NoError(t, repo.Seed(context.Background(), db, "act-1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}
