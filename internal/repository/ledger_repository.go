package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/seva-hours-api/internal/models"
)

// CreditResult reports a committed ledger change and the student's new total.
type CreditResult struct {
	Change     models.CreditChange
	TotalHours float64
}

// LedgerRepository applies hour credits to the student ledger.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs a LedgerRepository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Credit applies one credit in a single transaction. The student row is
// locked first, so concurrent credits for the same student serialise while
// different students proceed in parallel. Overwrite and strict credits also
// add the student to the event's attendee set. total_hours is recomputed from
// the ledger before commit.
func (r *LedgerRepository) Credit(ctx context.Context, studentID, eventID string, hours float64, mode models.CreditMode, now time.Time) (*CreditResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin credit tx: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			_ = tx.Rollback()
		}
	}()

	var locked string
	if err := tx.GetContext(ctx, &locked, `SELECT id FROM students WHERE id = $1 FOR UPDATE`, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock student: %w", err)
	}

	var ledger models.Ledger
	if err := tx.SelectContext(ctx, &ledger, `SELECT student_id, event_id, hours, attended_at FROM student_event_credits WHERE student_id = $1`, studentID); err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	_, change, err := models.ApplyCredit(ledger, studentID, eventID, hours, mode, now)
	if err != nil {
		return nil, err
	}

	const upsert = `INSERT INTO student_event_credits (student_id, event_id, hours, attended_at) VALUES ($1, $2, $3, $4)
        ON CONFLICT (student_id, event_id) DO UPDATE SET hours = EXCLUDED.hours, attended_at = EXCLUDED.attended_at`
	entry := change.Entry
	if _, err := tx.ExecContext(ctx, upsert, entry.StudentID, entry.EventID, entry.Hours, entry.AttendedAt); err != nil {
		return nil, fmt.Errorf("upsert credit: %w", err)
	}

	if mode != models.CreditModeBonus {
		const attendee = `INSERT INTO event_attendees (event_id, student_id, joined_at) VALUES ($1, $2, $3) ON CONFLICT (event_id, student_id) DO NOTHING`
		if _, err := tx.ExecContext(ctx, attendee, eventID, studentID, now); err != nil {
			return nil, fmt.Errorf("insert attendee: %w", err)
		}
	}

	const recompute = `UPDATE students SET total_hours = (SELECT COALESCE(SUM(hours), 0) FROM student_event_credits WHERE student_id = $1), updated_at = $2
        WHERE id = $1 RETURNING total_hours`
	var total float64
	if err := tx.GetContext(ctx, &total, recompute, studentID, now); err != nil {
		return nil, fmt.Errorf("recompute total hours: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit credit tx: %w", err)
	}
	commit = true
	return &CreditResult{Change: change, TotalHours: total}, nil
}
