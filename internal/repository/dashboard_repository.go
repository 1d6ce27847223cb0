package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/seva-hours-api/internal/dto"
	"github.com/noah-isme/seva-hours-api/internal/models"
)

// DashboardRepository runs the aggregate queries behind the admin dashboard
// and hours reports.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository constructs a DashboardRepository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// Overview returns the headline counters. recentSince bounds the recent
// registration window.
func (r *DashboardRepository) Overview(ctx context.Context, now, recentSince time.Time) (*dto.DashboardOverview, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM students WHERE active = TRUE) AS total_students,
        (SELECT COUNT(*) FROM students WHERE active = TRUE AND approved = TRUE) AS approved_students,
        (SELECT COUNT(*) FROM students WHERE active = TRUE AND approved = FALSE) AS pending_students,
        (SELECT COUNT(*) FROM events WHERE active = TRUE) AS total_events,
        (SELECT COUNT(*) FROM events WHERE active = TRUE AND date >= $1) AS upcoming_events,
        (SELECT COALESCE(SUM(total_hours), 0) FROM students WHERE active = TRUE) AS total_hours,
        (SELECT COUNT(*) FROM students WHERE registered_at >= $2) AS recent_registrations`
	var overview dto.DashboardOverview
	if err := r.db.GetContext(ctx, &overview, query, now, recentSince); err != nil {
		return nil, fmt.Errorf("dashboard overview: %w", err)
	}
	return &overview, nil
}

// TopPerformers returns the highest ranked students.
func (r *DashboardRepository) TopPerformers(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	query := fmt.Sprintf(`SELECT s.id, s.roll_no, s.full_name, s.branch, s.total_hours,
        (SELECT COUNT(*) FROM student_event_credits c WHERE c.student_id = s.id) AS event_count
        FROM students s WHERE s.approved = TRUE AND s.active = TRUE AND s.total_hours > 0
        ORDER BY s.total_hours DESC, s.roll_no LIMIT %d`, limit)
	var entries []models.LeaderboardEntry
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("dashboard top performers: %w", err)
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// EventTypeStats counts active events per type.
func (r *DashboardRepository) EventTypeStats(ctx context.Context) ([]dto.EventTypeStat, error) {
	const query = `SELECT type, COUNT(*) AS count FROM events WHERE active = TRUE GROUP BY type ORDER BY count DESC, type`
	var stats []dto.EventTypeStat
	if err := r.db.SelectContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("dashboard event types: %w", err)
	}
	return stats, nil
}

// MonthlyRegistrations counts registrations per month of the given year.
func (r *DashboardRepository) MonthlyRegistrations(ctx context.Context, year int) ([]dto.MonthlyRegistrationStat, error) {
	const query = `SELECT EXTRACT(MONTH FROM registered_at)::int AS month, COUNT(*) AS count
        FROM students WHERE EXTRACT(YEAR FROM registered_at)::int = $1
        GROUP BY month ORDER BY month`
	var stats []dto.MonthlyRegistrationStat
	if err := r.db.SelectContext(ctx, &stats, query, year); err != nil {
		return nil, fmt.Errorf("dashboard monthly registrations: %w", err)
	}
	return stats, nil
}

// BranchStats aggregates approved active students per branch.
func (r *DashboardRepository) BranchStats(ctx context.Context) ([]dto.BranchStat, error) {
	const query = `SELECT COALESCE(branch, 'UNASSIGNED') AS branch, COUNT(*) AS count,
        COALESCE(SUM(total_hours), 0) AS total_hours, COALESCE(ROUND(AVG(total_hours), 2), 0) AS avg_hours
        FROM students WHERE approved = TRUE AND active = TRUE
        GROUP BY COALESCE(branch, 'UNASSIGNED') ORDER BY total_hours DESC`
	var stats []dto.BranchStat
	if err := r.db.SelectContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("dashboard branch stats: %w", err)
	}
	return stats, nil
}
