package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/seva-hours-api/internal/models"
)

var creditColumnNames = []string{"student_id", "event_id", "hours", "attended_at"}

func expectStudentLock(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM students WHERE id = $1 FOR UPDATE")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1"))
}

func TestLedgerRepositoryCreditOverwriteCreatesEntry(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	now := time.Now().UTC()
	expectStudentLock(mock)
	mock.ExpectQuery("FROM student_event_credits WHERE student_id").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(creditColumnNames).AddRow("s1", "e0", 2.0, now))
	mock.ExpectExec("INSERT INTO student_event_credits").
		WithArgs("s1", "e1", 3.5, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (event_id, student_id) DO NOTHING")).
		WithArgs("e1", "s1", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("RETURNING total_hours")).
		WithArgs("s1", now).
		WillReturnRows(sqlmock.NewRows([]string{"total_hours"}).AddRow(5.5))
	mock.ExpectCommit()

	res, err := repo.Credit(context.Background(), "s1", "e1", 3.5, models.CreditModeOverwrite, now)
	require.NoError(t, err)
	assert.True(t, res.Change.Created)
	assert.Equal(t, 3.5, res.Change.Entry.Hours)
	assert.Equal(t, 5.5, res.TotalHours)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryCreditStrictDuplicateRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	now := time.Now().UTC()
	expectStudentLock(mock)
	mock.ExpectQuery("FROM student_event_credits WHERE student_id").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(creditColumnNames).AddRow("s1", "e1", 3.0, now))
	mock.ExpectRollback()

	_, err := repo.Credit(context.Background(), "s1", "e1", 3, models.CreditModeStrict, now)
	assert.ErrorIs(t, err, models.ErrDuplicateCredit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryCreditBonusSkipsAttendee(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	attended := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	expectStudentLock(mock)
	mock.ExpectQuery("FROM student_event_credits WHERE student_id").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(creditColumnNames).AddRow("s1", "e1", 3.0, attended))
	mock.ExpectExec("INSERT INTO student_event_credits").
		WithArgs("s1", "e1", 5.0, attended).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("RETURNING total_hours")).
		WithArgs("s1", now).
		WillReturnRows(sqlmock.NewRows([]string{"total_hours"}).AddRow(5.0))
	mock.ExpectCommit()

	res, err := repo.Credit(context.Background(), "s1", "e1", 2, models.CreditModeBonus, now)
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.Change.PreviousHours)
	assert.Equal(t, 5.0, res.Change.Entry.Hours)
	assert.Equal(t, 5.0, res.TotalHours)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryCreditFailureRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	now := time.Now().UTC()
	expectStudentLock(mock)
	mock.ExpectQuery("FROM student_event_credits WHERE student_id").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(creditColumnNames))
	mock.ExpectExec("INSERT INTO student_event_credits").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO event_attendees").
		WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	_, err := repo.Credit(context.Background(), "s1", "e1", 2, models.CreditModeOverwrite, now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert attendee")
	assert.NoError(t, mock.ExpectationsWereMet())
}
