package dto

import (
	"time"

	"github.com/noah-isme/seva-hours-api/internal/models"
)

// HoursReportFilter narrows the hours report.
type HoursReportFilter struct {
	Branch string
	Year   *int
	From   *time.Time
	To     *time.Time
}

// HoursReportSummary aggregates hours across the matched students.
type HoursReportSummary struct {
	TotalStudents int     `json:"totalStudents"`
	TotalHours    float64 `json:"totalHours"`
	AvgHours      float64 `json:"avgHours"`
	MaxHours      float64 `json:"maxHours"`
	MinHours      float64 `json:"minHours"`
}

// HoursReport is the admin hours report payload.
type HoursReport struct {
	Summary  HoursReportSummary `json:"summary"`
	Branches []BranchStat       `json:"branchStats"`
	Students []models.Student   `json:"students"`
}

// FileDownload is a rendered document ready to stream as an attachment.
type FileDownload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// StudentProfile is a student record with its ledger.
type StudentProfile struct {
	Student    models.Student       `json:"student"`
	Ledger     []models.LedgerEntry `json:"eventsAttended"`
	EventCount int                  `json:"eventCount"`
}

// StudentLedger is the public hours summary for a roll number.
type StudentLedger struct {
	RollNo     string               `json:"rollNo"`
	TotalHours float64              `json:"totalHours"`
	EventCount int                  `json:"eventCount"`
	Events     []models.LedgerEntry `json:"events"`
}
