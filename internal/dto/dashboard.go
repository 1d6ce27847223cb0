package dto

import (
	"time"

	"github.com/noah-isme/seva-hours-api/internal/models"
)

// DashboardOverview holds the headline counters.
type DashboardOverview struct {
	TotalStudents       int     `json:"totalStudents" db:"total_students"`
	ApprovedStudents    int     `json:"approvedStudents" db:"approved_students"`
	PendingStudents     int     `json:"pendingStudents" db:"pending_students"`
	TotalEvents         int     `json:"totalEvents" db:"total_events"`
	UpcomingEvents      int     `json:"upcomingEvents" db:"upcoming_events"`
	TotalHours          float64 `json:"totalHours" db:"total_hours"`
	RecentRegistrations int     `json:"recentRegistrations" db:"recent_registrations"`
}

// EventTypeStat counts active events per type.
type EventTypeStat struct {
	Type  models.EventType `json:"type" db:"type"`
	Count int              `json:"count" db:"count"`
}

// MonthlyRegistrationStat counts registrations per month of the current year.
type MonthlyRegistrationStat struct {
	Month int `json:"month" db:"month"`
	Count int `json:"count" db:"count"`
}

// BranchStat aggregates approved students per branch.
type BranchStat struct {
	Branch     string  `json:"branch" db:"branch"`
	Count      int     `json:"count" db:"count"`
	TotalHours float64 `json:"totalHours" db:"total_hours"`
	AvgHours   float64 `json:"avgHours" db:"avg_hours"`
}

// AdminDashboardResponse captures the aggregated admin dashboard payload.
type AdminDashboardResponse struct {
	Overview      DashboardOverview         `json:"overview"`
	TopPerformers []models.LeaderboardEntry `json:"topPerformers"`
	EventTypes    []EventTypeStat           `json:"eventTypeStats"`
	Monthly       []MonthlyRegistrationStat `json:"monthlyStats"`
	Branches      []BranchStat              `json:"branchStats"`
	GeneratedAt   time.Time                 `json:"generatedAt"`
}
