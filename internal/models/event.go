package models

import (
	"errors"
	"time"
)

// EventType classifies service activities.
type EventType string

const (
	EventTypeCommunityService EventType = "community_service"
	EventTypeAwareness        EventType = "awareness"
	EventTypeDonation         EventType = "donation"
	EventTypeCleaning         EventType = "cleaning"
	EventTypeEducation        EventType = "education"
	EventTypeOther            EventType = "other"
)

// Valid returns true when the type is a supported value.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeCommunityService, EventTypeAwareness, EventTypeDonation, EventTypeCleaning, EventTypeEducation, EventTypeOther:
		return true
	default:
		return false
	}
}

// Attendee set errors reported by the store.
var (
	ErrEventCompleted    = errors.New("event is already completed")
	ErrEventFull         = errors.New("event is full")
	ErrAlreadyRegistered = errors.New("already registered for this event")
	ErrNotRegistered     = errors.New("not registered for this event")
	ErrAlreadyCredited   = errors.New("student already holds hours for this event")
)

// Event bounds for awarded hours.
const (
	MinGivenHours = 0.5
	MaxGivenHours = 24
)

// Event represents a single service activity.
type Event struct {
	ID            string     `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	Description   string     `db:"description" json:"description"`
	Date          time.Time  `db:"date" json:"date"`
	GivenHours    float64    `db:"given_hours" json:"given_hours"`
	Location      string     `db:"location" json:"location"`
	Type          EventType  `db:"type" json:"type"`
	MaxAttendees  *int       `db:"max_attendees" json:"max_attendees,omitempty"`
	Active        bool       `db:"active" json:"active"`
	Completed     bool       `db:"completed" json:"completed"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CompletedBy   *string    `db:"completed_by" json:"completed_by,omitempty"`
	CreatedBy     *string    `db:"created_by" json:"created_by,omitempty"`
	AttendeeCount int        `db:"attendee_count" json:"attendee_count"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Full reports whether the capacity, when set, has been reached.
func (e *Event) Full() bool {
	return e.MaxAttendees != nil && e.AttendeeCount >= *e.MaxAttendees
}

// EventFilter defines list query filters.
type EventFilter struct {
	Type      *EventType
	Upcoming  *bool
	Completed *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// CreateEventRequest is the admin payload for a new event.
type CreateEventRequest struct {
	Name         string    `json:"name" validate:"required,min=3,max=200"`
	Description  string    `json:"description" validate:"required,min=10,max=1000"`
	Date         time.Time `json:"date" validate:"required"`
	GivenHours   float64   `json:"given_hours" validate:"required,gte=0.5,lte=24"`
	Location     string    `json:"location" validate:"omitempty,max=200"`
	Type         EventType `json:"type" validate:"omitempty,oneof=community_service awareness donation cleaning education other"`
	MaxAttendees *int      `json:"max_attendees" validate:"omitempty,min=1"`
}

// EventAttendee is one row of the attendance view for an event: a member of
// the attendee set joined with the ledger entry for that event, if any.
type EventAttendee struct {
	StudentID  string     `db:"student_id" json:"student_id"`
	RollNo     string     `db:"roll_no" json:"roll_no"`
	FullName   string     `db:"full_name" json:"full_name"`
	Email      string     `db:"email" json:"email"`
	Branch     *string    `db:"branch" json:"branch,omitempty"`
	Year       *int       `db:"year" json:"year,omitempty"`
	JoinedAt   time.Time  `db:"joined_at" json:"joined_at"`
	Hours      *float64   `db:"hours" json:"hours_earned,omitempty"`
	AttendedAt *time.Time `db:"attended_at" json:"attended_at,omitempty"`
}
