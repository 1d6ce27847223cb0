package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/seva-hours-api/internal/dto"
	"github.com/noah-isme/seva-hours-api/internal/models"
	appErrors "github.com/noah-isme/seva-hours-api/pkg/errors"
	"github.com/noah-isme/seva-hours-api/pkg/export"
)

type eventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	FindByID(ctx context.Context, id string) (*models.Event, error)
	List(ctx context.Context, filter models.EventFilter, now time.Time) ([]models.Event, int, error)
	Upcoming(ctx context.Context, now time.Time, limit int) ([]models.Event, error)
	MarkCompleted(ctx context.Context, id, adminID string, at time.Time) (bool, error)
	Attendance(ctx context.Context, eventID string) ([]models.EventAttendee, error)
	RegisterAttendee(ctx context.Context, eventID, studentID string, at time.Time) (int, error)
	RemoveAttendee(ctx context.Context, eventID, studentID string) (int, error)
}

type studentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// EventService manages events, their attendee sets and completion.
type EventService struct {
	events    eventRepository
	students  studentLookup
	notifier  notifier
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEventService constructs an EventService.
func NewEventService(events eventRepository, students studentLookup, notify notifier, validate *validator.Validate, logger *zap.Logger) *EventService {
	if notify == nil {
		notify = noopNotifier{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{events: events, students: students, notifier: notify, validator: validate, logger: logger, now: time.Now}
}

// Create validates and stores a new event.
func (s *EventService) Create(ctx context.Context, adminID string, req models.CreateEventRequest) (*models.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	req.Location = strings.TrimSpace(req.Location)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}
	if req.Type == "" {
		req.Type = models.EventTypeCommunityService
	}

	event := &models.Event{
		Name:         req.Name,
		Description:  req.Description,
		Date:         req.Date.UTC(),
		GivenHours:   req.GivenHours,
		Location:     req.Location,
		Type:         req.Type,
		MaxAttendees: req.MaxAttendees,
		Active:       true,
	}
	if adminID != "" {
		event.CreatedBy = &adminID
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}
	return event, nil
}

// Get returns an event by ID.
func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.events.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}

// List returns events matching the filter.
func (s *EventService) List(ctx context.Context, filter models.EventFilter) ([]models.Event, *models.Pagination, error) {
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid event type")
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	events, total, err := s.events.List(ctx, filter, s.now().UTC())
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Export renders every active event matching the filter with its attendee
// count.
func (s *EventService) Export(ctx context.Context, filter models.EventFilter, format string) (*dto.FileDownload, error) {
	exporter, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid event type")
	}
	filter.Page = 1
	filter.PageSize = 100
	if filter.SortBy == "" {
		filter.SortBy = "date"
	}

	dataset := export.Dataset{
		Title:   "Events",
		Headers: []string{"Name", "Date", "Type", "Location", "Given Hours", "Attendees", "Capacity", "Completed"},
	}
	now := s.now().UTC()
	for {
		events, total, err := s.events.List(ctx, filter, now)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
		}
		for _, e := range events {
			dataset.Rows = append(dataset.Rows, map[string]string{
				"Name":        e.Name,
				"Date":        e.Date.UTC().Format("2006-01-02"),
				"Type":        string(e.Type),
				"Location":    e.Location,
				"Given Hours": formatHours(e.GivenHours),
				"Attendees":   strconv.Itoa(e.AttendeeCount),
				"Capacity":    derefInt(e.MaxAttendees),
				"Completed":   strconv.FormatBool(e.Completed),
			})
		}
		if len(events) == 0 || filter.Page*filter.PageSize >= total {
			break
		}
		filter.Page++
	}

	data, err := exporter.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &dto.FileDownload{
		Filename:    fmt.Sprintf("events-%s.%s", now.Format("20060102"), exporter.Extension()),
		ContentType: exporter.ContentType(),
		Data:        data,
	}, nil
}

// Upcoming returns the next active events that are not completed.
func (s *EventService) Upcoming(ctx context.Context, limit int) ([]models.Event, error) {
	events, err := s.events.Upcoming(ctx, s.now().UTC(), limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list upcoming events")
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}

// MarkCompleted moves an event to the completed state. Completing twice
// fails and leaves the original completion time untouched.
func (s *EventService) MarkCompleted(ctx context.Context, id, adminID string) (*dto.EventCompletionResponse, error) {
	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.Completed {
		return nil, appErrors.ErrAlreadyCompleted
	}
	at := s.now().UTC()
	ok, err := s.events.MarkCompleted(ctx, id, adminID, at)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete event")
	}
	if !ok {
		return nil, appErrors.ErrAlreadyCompleted
	}
	s.logger.Info("event completed", zap.String("event_id", id), zap.String("admin_id", adminID))
	return &dto.EventCompletionResponse{EventID: event.ID, Name: event.Name, CompletedAt: at}, nil
}

// Register adds an eligible student to the event's attendee set.
func (s *EventService) Register(ctx context.Context, eventID, studentID string) (*dto.EventRegistrationResponse, error) {
	event, err := s.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureEligible(ctx, studentID); err != nil {
		return nil, err
	}
	count, err := s.events.RegisterAttendee(ctx, eventID, studentID, s.now().UTC())
	if err != nil {
		return nil, mapAttendeeError(err)
	}
	s.notifier.Notify(ctx, models.Notification{
		UserID:   studentID,
		UserType: models.RoleStudent,
		Title:    "Registered for Event",
		Message:  fmt.Sprintf("You registered for %s on %s.", event.Name, event.Date.Format("2006-01-02")),
		Type:     models.NotificationSuccess,
	})
	return &dto.EventRegistrationResponse{EventID: eventID, StudentID: studentID, Registered: true, AttendeeCount: count}, nil
}

// Unregister removes the student from the event's attendee set.
func (s *EventService) Unregister(ctx context.Context, eventID, studentID string) (*dto.EventRegistrationResponse, error) {
	event, err := s.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	count, err := s.events.RemoveAttendee(ctx, eventID, studentID)
	if err != nil {
		return nil, mapAttendeeError(err)
	}
	s.notifier.Notify(ctx, models.Notification{
		UserID:   studentID,
		UserType: models.RoleStudent,
		Title:    "Unregistered from Event",
		Message:  fmt.Sprintf("You unregistered from %s.", event.Name),
		Type:     models.NotificationInfo,
	})
	return &dto.EventRegistrationResponse{EventID: eventID, StudentID: studentID, Registered: false, AttendeeCount: count}, nil
}

// Attendance lists the attendee set joined with credited hours.
func (s *EventService) Attendance(ctx context.Context, eventID string) ([]models.EventAttendee, error) {
	if _, err := s.Get(ctx, eventID); err != nil {
		return nil, err
	}
	attendees, err := s.events.Attendance(ctx, eventID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	if attendees == nil {
		attendees = []models.EventAttendee{}
	}
	return attendees, nil
}

func (s *EventService) ensureEligible(ctx context.Context, studentID string) error {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Approved {
		return appErrors.ErrNotApproved
	}
	if !student.Active {
		return appErrors.ErrInactiveAccount
	}
	return nil
}

func mapAttendeeError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "event not found")
	case errors.Is(err, models.ErrEventCompleted):
		return appErrors.Clone(appErrors.ErrAlreadyCompleted, "event is already completed")
	case errors.Is(err, models.ErrEventFull):
		return appErrors.ErrEventFull
	case errors.Is(err, models.ErrAlreadyRegistered):
		return appErrors.ErrAlreadyRegistered
	case errors.Is(err, models.ErrNotRegistered):
		return appErrors.ErrNotRegistered
	case errors.Is(err, models.ErrAlreadyCredited):
		return appErrors.Clone(appErrors.ErrAlreadyCredited, "hours already credited for this event, cannot unregister")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendees")
	}
}
