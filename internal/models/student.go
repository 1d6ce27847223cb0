package models

import (
	"regexp"
	"strings"
	"time"
)

var (
	rollNoPattern = regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Z]\d{4}$`)
	phonePattern  = regexp.MustCompile(`^[6-9]\d{9}$`)
)

// NormalizeRollNo trims and upper-cases a roll number.
func NormalizeRollNo(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ValidRollNo reports whether an already normalised roll number matches the
// institutional format, e.g. CS23B1006.
func ValidRollNo(rollNo string) bool {
	return rollNoPattern.MatchString(rollNo)
}

// ValidPhone reports whether phone is a ten digit mobile number.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// Student represents a registered member of the organisation.
type Student struct {
	ID           string     `db:"id" json:"id"`
	RollNo       string     `db:"roll_no" json:"roll_no"`
	Email        string     `db:"email" json:"email"`
	FullName     string     `db:"full_name" json:"full_name"`
	Phone        *string    `db:"phone" json:"phone,omitempty"`
	Year         *int       `db:"year" json:"year,omitempty"`
	Branch       *string    `db:"branch" json:"branch,omitempty"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Approved     bool       `db:"approved" json:"approved"`
	ApprovedAt   *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	ApprovedBy   *string    `db:"approved_by" json:"approved_by,omitempty"`
	Active       bool       `db:"active" json:"active"`
	TotalHours   float64    `db:"total_hours" json:"total_hours"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	RegisteredAt time.Time  `db:"registered_at" json:"registered_at"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Eligible reports whether the student may be credited or register for events.
func (s *Student) Eligible() bool {
	return s.Approved && s.Active
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Approved  *bool
	Active    *bool
	Branch    string
	Year      *int
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// RegisterStudentRequest is the self-registration payload.
type RegisterStudentRequest struct {
	FullName string  `json:"full_name" validate:"required,min=2,max=100"`
	RollNo   string  `json:"roll_no" validate:"required,rollno"`
	Email    string  `json:"email" validate:"required,email"`
	Phone    *string `json:"phone" validate:"omitempty,phone"`
	Year     *int    `json:"year" validate:"omitempty,min=1,max=4"`
	Branch   *string `json:"branch" validate:"omitempty,max=50"`
	Password string  `json:"password" validate:"required,min=6"`
}

// UpdateStudentRequest carries admin edits; nil fields are left untouched.
type UpdateStudentRequest struct {
	FullName *string `json:"full_name" validate:"omitempty,min=2,max=100"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone" validate:"omitempty,phone"`
	Year     *int    `json:"year" validate:"omitempty,min=1,max=4"`
	Branch   *string `json:"branch" validate:"omitempty,max=50"`
}

// RejectStudentRequest records why a registration was declined.
type RejectStudentRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// LeaderboardEntry is one public leaderboard row.
type LeaderboardEntry struct {
	Rank       int     `db:"-" json:"rank"`
	ID         string  `db:"id" json:"id"`
	RollNo     string  `db:"roll_no" json:"roll_no"`
	FullName   string  `db:"full_name" json:"full_name"`
	Branch     *string `db:"branch" json:"branch,omitempty"`
	TotalHours float64 `db:"total_hours" json:"total_hours"`
	EventCount int     `db:"event_count" json:"event_count"`
}

// RegistrationStatus is the public view of a pending or approved registration.
type RegistrationStatus struct {
	FullName     string     `json:"full_name"`
	RollNo       string     `json:"roll_no"`
	Email        string     `json:"email"`
	Approved     bool       `json:"approved"`
	Status       string     `json:"status"`
	RegisteredAt time.Time  `json:"registered_at"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	TotalHours   float64    `json:"total_hours"`
}
