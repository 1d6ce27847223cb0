package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/seva-hours-api/internal/models"
)

const eventColumns = `e.id, e.name, e.description, e.date, e.given_hours, e.location, e.type, e.max_attendees, e.active, e.completed, e.completed_at, e.completed_by, e.created_by, e.created_at, e.updated_at,
        (SELECT COUNT(*) FROM event_attendees a WHERE a.event_id = e.id) AS attendee_count`

// EventRepository manages events and their attendee sets.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a new event.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Type == "" {
		event.Type = models.EventTypeCommunityService
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	const query = `INSERT INTO events (id, name, description, date, given_hours, location, type, max_attendees, active, completed, created_by, created_at, updated_at)
        VALUES (:id, :name, :description, :date, :given_hours, :location, :type, :max_attendees, :active, :completed, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// FindByID returns an event with its attendee count.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM events e WHERE e.id = $1 LIMIT 1`, eventColumns)
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find event: %w", err)
	}
	return &event, nil
}

// List returns active events matching the filter with the total count.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter, now time.Time) ([]models.Event, int, error) {
	conditions := []string{"e.active = TRUE"}
	args := []interface{}{}

	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("e.type = $%d", len(args)+1))
		args = append(args, *filter.Type)
	}
	if filter.Upcoming != nil {
		op := "<"
		if *filter.Upcoming {
			op = ">="
		}
		conditions = append(conditions, fmt.Sprintf("e.date %s $%d", op, len(args)+1))
		args = append(args, now)
	}
	if filter.Completed != nil {
		conditions = append(conditions, fmt.Sprintf("e.completed = $%d", len(args)+1))
		args = append(args, *filter.Completed)
	}
	if filter.Search != "" {
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(e.name) LIKE $%d OR LOWER(e.location) LIKE $%d)", idx, idx))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	where := strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"date":        "e.date",
		"name":        "e.name",
		"given_hours": "e.given_hours",
		"created_at":  "e.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "e.date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := normalisePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM events e WHERE %s ORDER BY %s %s, e.id LIMIT %d OFFSET %d`, eventColumns, where, column, order, size, offset)
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf(`SELECT COUNT(*) FROM events e WHERE %s`, where), args...); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}
	return events, total, nil
}

// Upcoming returns the next active, open events from now on.
func (r *EventRepository) Upcoming(ctx context.Context, now time.Time, limit int) ([]models.Event, error) {
	if limit <= 0 || limit > 50 {
		limit = 5
	}
	query := fmt.Sprintf(`SELECT %s FROM events e WHERE e.active = TRUE AND e.completed = FALSE AND e.date >= $1 ORDER BY e.date ASC LIMIT %d`, eventColumns, limit)
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, now); err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	return events, nil
}

// MarkCompleted flips an open event to completed. It reports false when the
// event was already completed so completed_at is never overwritten.
func (r *EventRepository) MarkCompleted(ctx context.Context, id, adminID string, at time.Time) (bool, error) {
	const query = `UPDATE events SET completed = TRUE, completed_at = $2, completed_by = $3, updated_at = $2 WHERE id = $1 AND completed = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, at, nullableString(adminID))
	if err != nil {
		return false, fmt.Errorf("complete event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete event rows: %w", err)
	}
	return affected > 0, nil
}

// Attendance lists the attendee set of an event together with any ledger
// entry each attendee holds for it.
func (r *EventRepository) Attendance(ctx context.Context, eventID string) ([]models.EventAttendee, error) {
	const query = `SELECT s.id AS student_id, s.roll_no, s.full_name, s.email, s.branch, s.year, a.joined_at, c.hours, c.attended_at
        FROM event_attendees a
        JOIN students s ON s.id = a.student_id
        LEFT JOIN student_event_credits c ON c.student_id = a.student_id AND c.event_id = a.event_id
        WHERE a.event_id = $1
        ORDER BY s.roll_no`
	var attendees []models.EventAttendee
	if err := r.db.SelectContext(ctx, &attendees, query, eventID); err != nil {
		return nil, fmt.Errorf("list event attendance: %w", err)
	}
	return attendees, nil
}

// RegisterAttendee adds a student to the attendee set. The event row is locked
// so the capacity check and the insert are atomic. It returns the new
// attendee count.
func (r *EventRepository) RegisterAttendee(ctx context.Context, eventID, studentID string, at time.Time) (int, error) {
	return r.withEventLock(ctx, eventID, studentID, func(tx *sqlx.Tx, event *lockedEvent) (int, error) {
		if event.Completed {
			return 0, models.ErrEventCompleted
		}
		if event.registered {
			return 0, models.ErrAlreadyRegistered
		}
		if event.MaxAttendees != nil && event.count >= *event.MaxAttendees {
			return 0, models.ErrEventFull
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO event_attendees (event_id, student_id, joined_at) VALUES ($1, $2, $3)`, eventID, studentID, at); err != nil {
			return 0, fmt.Errorf("insert attendee: %w", err)
		}
		return event.count + 1, nil
	})
}

// RemoveAttendee removes a student from the attendee set and returns the new
// attendee count. Students holding hours for the event stay in the set.
func (r *EventRepository) RemoveAttendee(ctx context.Context, eventID, studentID string) (int, error) {
	return r.withEventLock(ctx, eventID, studentID, func(tx *sqlx.Tx, event *lockedEvent) (int, error) {
		if event.Completed {
			return 0, models.ErrEventCompleted
		}
		if !event.registered {
			return 0, models.ErrNotRegistered
		}
		var credited int
		if err := tx.GetContext(ctx, &credited, `SELECT COUNT(*) FROM student_event_credits WHERE student_id = $1 AND event_id = $2`, studentID, eventID); err != nil {
			return 0, fmt.Errorf("check credit: %w", err)
		}
		if credited > 0 {
			return 0, models.ErrAlreadyCredited
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM event_attendees WHERE event_id = $1 AND student_id = $2`, eventID, studentID); err != nil {
			return 0, fmt.Errorf("delete attendee: %w", err)
		}
		return event.count - 1, nil
	})
}

type lockedEvent struct {
	Completed    bool `db:"completed"`
	MaxAttendees *int `db:"max_attendees"`
	count        int
	registered   bool
}

func (r *EventRepository) withEventLock(ctx context.Context, eventID, studentID string, fn func(*sqlx.Tx, *lockedEvent) (int, error)) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin attendee tx: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			_ = tx.Rollback()
		}
	}()

	var event lockedEvent
	if err := tx.GetContext(ctx, &event, `SELECT completed, max_attendees FROM events WHERE id = $1 FOR UPDATE`, eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
		return 0, fmt.Errorf("lock event: %w", err)
	}
	if err := tx.GetContext(ctx, &event.count, `SELECT COUNT(*) FROM event_attendees WHERE event_id = $1`, eventID); err != nil {
		return 0, fmt.Errorf("count attendees: %w", err)
	}
	var member int
	if err := tx.GetContext(ctx, &member, `SELECT COUNT(*) FROM event_attendees WHERE event_id = $1 AND student_id = $2`, eventID, studentID); err != nil {
		return 0, fmt.Errorf("check attendee: %w", err)
	}
	event.registered = member > 0

	count, err := fn(tx, &event)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit attendee tx: %w", err)
	}
	commit = true
	return count, nil
}
