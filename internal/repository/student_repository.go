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

	"github.com/noah-isme/seva-hours-api/internal/dto"
	"github.com/noah-isme/seva-hours-api/internal/models"
)

const studentColumns = `id, roll_no, email, full_name, phone, year, branch, password_hash, approved, approved_at, approved_by, active, total_hours, last_login, registered_at, created_at, updated_at`

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Approved != nil {
		conditions = append(conditions, fmt.Sprintf("approved = $%d", len(args)+1))
		args = append(args, *filter.Approved)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Branch != "" {
		conditions = append(conditions, fmt.Sprintf("branch = $%d", len(args)+1))
		args = append(args, strings.ToUpper(filter.Branch))
	}
	if filter.Year != nil {
		conditions = append(conditions, fmt.Sprintf("year = $%d", len(args)+1))
		args = append(args, *filter.Year)
	}
	if filter.Search != "" {
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(roll_no) LIKE $%d OR LOWER(email) LIKE $%d)", idx, idx, idx))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	where := strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"full_name":     "full_name",
		"roll_no":       "roll_no",
		"total_hours":   "total_hours",
		"registered_at": "registered_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "registered_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := normalisePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM students WHERE %s ORDER BY %s %s, id LIMIT %d OFFSET %d`, studentColumns, where, column, order, size, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM students WHERE %s", where), args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByRollNo fetches a student by normalised roll number.
func (r *StudentRepository) FindByRollNo(ctx context.Context, rollNo string) (*models.Student, error) {
	return r.findOne(ctx, "roll_no = $1", rollNo)
}

// FindByEmail fetches a student by lower-cased email.
func (r *StudentRepository) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	return r.findOne(ctx, "email = $1", email)
}

// FindEligibleByRollNo returns the approved and active student with the roll
// number, or sql.ErrNoRows.
func (r *StudentRepository) FindEligibleByRollNo(ctx context.Context, rollNo string) (*models.Student, error) {
	return r.findOne(ctx, "roll_no = $1 AND approved = TRUE AND active = TRUE", rollNo)
}

func (r *StudentRepository) findOne(ctx context.Context, where string, arg interface{}) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE %s LIMIT 1`, studentColumns, where)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// ExistsByRollNoOrEmail checks whether another student already uses the roll
// number or email, optionally excluding an ID.
func (r *StudentRepository) ExistsByRollNoOrEmail(ctx context.Context, rollNo, email, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE (roll_no = $1 OR email = $2)"
	args := []interface{}{rollNo, email}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check student identity: %w", err)
	}
	return true, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.RegisteredAt.IsZero() {
		student.RegisteredAt = now
	}
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, roll_no, email, full_name, phone, year, branch, password_hash, approved, active, total_hours, registered_at, created_at, updated_at)
        VALUES (:id, :roll_no, :email, :full_name, :phone, :year, :branch, :password_hash, :approved, :active, :total_hours, :registered_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// UpdateProfile modifies the editable profile fields of a student.
func (r *StudentRepository) UpdateProfile(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET email = :email, full_name = :full_name, phone = :phone, year = :year, branch = :branch, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Approve marks a pending student approved. It reports false when the
// student was already approved.
func (r *StudentRepository) Approve(ctx context.Context, id, adminID string, at time.Time) (bool, error) {
	const query = `UPDATE students SET approved = TRUE, approved_at = $2, approved_by = $3, updated_at = $2 WHERE id = $1 AND approved = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, at, nullableString(adminID))
	if err != nil {
		return false, fmt.Errorf("approve student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("approve student rows: %w", err)
	}
	return affected > 0, nil
}

// SetActive blocks or unblocks a student.
func (r *StudentRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE students SET active = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC()); err != nil {
		return fmt.Errorf("set student active: %w", err)
	}
	return nil
}

// Delete removes a student permanently. Ledger and attendee rows cascade.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}

// UpdateLastLogin updates the last_login timestamp for a student.
func (r *StudentRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE students SET last_login = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("update student last login: %w", err)
	}
	return nil
}

// Leaderboard ranks approved active students with hours by total hours.
func (r *StudentRepository) Leaderboard(ctx context.Context, page, size int) ([]models.LeaderboardEntry, int, error) {
	page, size = normalisePage(page, size)
	offset := (page - 1) * size
	const where = `s.approved = TRUE AND s.active = TRUE AND s.total_hours > 0`
	query := fmt.Sprintf(`SELECT s.id, s.roll_no, s.full_name, s.branch, s.total_hours,
        (SELECT COUNT(*) FROM student_event_credits c WHERE c.student_id = s.id) AS event_count
        FROM students s WHERE %s ORDER BY s.total_hours DESC, event_count DESC, s.roll_no LIMIT %d OFFSET %d`, where, size, offset)

	var entries []models.LeaderboardEntry
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, 0, fmt.Errorf("list leaderboard: %w", err)
	}
	for i := range entries {
		entries[i].Rank = offset + i + 1
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf(`SELECT COUNT(*) FROM students s WHERE %s`, where)); err != nil {
		return nil, 0, fmt.Errorf("count leaderboard: %w", err)
	}
	return entries, total, nil
}

// Ledger lists a student's credits joined with their events, newest first.
func (r *StudentRepository) Ledger(ctx context.Context, studentID string) ([]models.LedgerEntry, error) {
	const query = `SELECT c.student_id, c.event_id, c.hours, c.attended_at, e.name AS event_name, e.date AS event_date, e.type AS event_type
        FROM student_event_credits c JOIN events e ON e.id = c.event_id
        WHERE c.student_id = $1 ORDER BY c.attended_at DESC`
	var entries []models.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, studentID); err != nil {
		return nil, fmt.Errorf("list student ledger: %w", err)
	}
	return entries, nil
}

// HoursReport returns approved active students matching the report filter,
// ordered by total hours.
func (r *StudentRepository) HoursReport(ctx context.Context, filter dto.HoursReportFilter) ([]models.Student, error) {
	conditions := []string{"approved = TRUE", "active = TRUE"}
	args := []interface{}{}
	if filter.Branch != "" {
		conditions = append(conditions, fmt.Sprintf("branch = $%d", len(args)+1))
		args = append(args, strings.ToUpper(filter.Branch))
	}
	if filter.Year != nil {
		conditions = append(conditions, fmt.Sprintf("year = $%d", len(args)+1))
		args = append(args, *filter.Year)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("registered_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("registered_at <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	query := fmt.Sprintf(`SELECT %s FROM students WHERE %s ORDER BY total_hours DESC, roll_no`, studentColumns, strings.Join(conditions, " AND "))
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("hours report: %w", err)
	}
	return students, nil
}

func normalisePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
