package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/seva-hours-api/internal/models"
	appErrors "github.com/noah-isme/seva-hours-api/pkg/errors"
)

type mockEventRepo struct {
	events     map[string]models.Event
	attendees  map[string]map[string]bool
	credited   map[string]map[string]bool
	created    []models.Event
	listNow    time.Time
	lastFilter models.EventFilter
}

func newMockEventRepo(events ...models.Event) *mockEventRepo {
	repo := &mockEventRepo{events: map[string]models.Event{}, attendees: map[string]map[string]bool{}, credited: map[string]map[string]bool{}}
	for _, e := range events {
		repo.events[e.ID] = e
		repo.attendees[e.ID] = map[string]bool{}
		repo.credited[e.ID] = map[string]bool{}
	}
	return repo
}

func (m *mockEventRepo) Create(_ context.Context, event *models.Event) error {
	event.ID = "evt-new"
	m.created = append(m.created, *event)
	m.events[event.ID] = *event
	return nil
}

func (m *mockEventRepo) FindByID(_ context.Context, id string) (*models.Event, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	e.AttendeeCount = len(m.attendees[id])
	return &e, nil
}

func (m *mockEventRepo) List(_ context.Context, filter models.EventFilter, now time.Time) ([]models.Event, int, error) {
	m.listNow = now
	m.lastFilter = filter
	out := make([]models.Event, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e)
	}
	return out, len(out), nil
}

func (m *mockEventRepo) Upcoming(context.Context, time.Time, int) ([]models.Event, error) {
	return nil, nil
}

func (m *mockEventRepo) MarkCompleted(_ context.Context, id, adminID string, at time.Time) (bool, error) {
	e := m.events[id]
	if e.Completed {
		return false, nil
	}
	e.Completed = true
	e.CompletedAt = &at
	e.CompletedBy = &adminID
	m.events[id] = e
	return true, nil
}

func (m *mockEventRepo) Attendance(_ context.Context, eventID string) ([]models.EventAttendee, error) {
	var out []models.EventAttendee
	for id := range m.attendees[eventID] {
		out = append(out, models.EventAttendee{StudentID: id})
	}
	return out, nil
}

func (m *mockEventRepo) RegisterAttendee(_ context.Context, eventID, studentID string, _ time.Time) (int, error) {
	e, ok := m.events[eventID]
	if !ok {
		return 0, sql.ErrNoRows
	}
	set := m.attendees[eventID]
	switch {
	case e.Completed:
		return 0, models.ErrEventCompleted
	case set[studentID]:
		return 0, models.ErrAlreadyRegistered
	case e.MaxAttendees != nil && len(set) >= *e.MaxAttendees:
		return 0, models.ErrEventFull
	}
	set[studentID] = true
	return len(set), nil
}

func (m *mockEventRepo) RemoveAttendee(_ context.Context, eventID, studentID string) (int, error) {
	e, ok := m.events[eventID]
	if !ok {
		return 0, sql.ErrNoRows
	}
	set := m.attendees[eventID]
	if e.Completed {
		return 0, models.ErrEventCompleted
	}
	if !set[studentID] {
		return 0, models.ErrNotRegistered
	}
	if m.credited[eventID][studentID] {
		return 0, models.ErrAlreadyCredited
	}
	delete(set, studentID)
	return len(set), nil
}

func intPtr(v int) *int { return &v }

func newTestEventService(events *mockEventRepo, students *mockStudentRepo) *EventService {
	svc := NewEventService(events, students, nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestEventServiceCreate(t *testing.T) {
	events := newMockEventRepo()
	svc := newTestEventService(events, newMockStudentRepo())

	_, err := svc.Create(context.Background(), "admin-1", models.CreateEventRequest{Name: "Cleanup", Description: "short", GivenHours: 4, Date: time.Now()})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), "admin-1", models.CreateEventRequest{Name: "Cleanup drive", Description: "Campus cleanup drive", GivenHours: 30, Date: time.Now()})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	event, err := svc.Create(context.Background(), "admin-1", models.CreateEventRequest{
		Name:        " Cleanup drive ",
		Description: "Campus cleanup drive near hostel block",
		GivenHours:  4,
		Date:        time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "Cleanup drive", event.Name)
	assert.Equal(t, models.EventTypeCommunityService, event.Type)
	assert.True(t, event.Active)
	require.NotNil(t, event.CreatedBy)
	assert.Equal(t, "admin-1", *event.CreatedBy)
}

func TestEventServiceMarkCompletedOnce(t *testing.T) {
	events := newMockEventRepo(models.Event{ID: "evt-1", Name: "Blood drive"})
	svc := newTestEventService(events, newMockStudentRepo())

	res, err := svc.MarkCompleted(context.Background(), "evt-1", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, svc.now(), res.CompletedAt)

	svc.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	_, err = svc.MarkCompleted(context.Background(), "evt-1", "admin-2")
	assert.ErrorIs(t, err, appErrors.ErrAlreadyCompleted)
	assert.Equal(t, time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC), *events.events["evt-1"].CompletedAt)

	_, err = svc.MarkCompleted(context.Background(), "missing", "admin-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestEventServiceRegister(t *testing.T) {
	events := newMockEventRepo(models.Event{ID: "evt-1", MaxAttendees: intPtr(1)})
	students := newMockStudentRepo(
		models.Student{ID: "stu-1", Approved: true, Active: true},
		models.Student{ID: "stu-2", Approved: true, Active: true},
		models.Student{ID: "stu-3", Approved: false, Active: true},
		models.Student{ID: "stu-4", Approved: true, Active: false},
	)
	svc := newTestEventService(events, students)
	ctx := context.Background()

	notify := &recordingNotifier{}
	svc.notifier = notify

	res, err := svc.Register(ctx, "evt-1", "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.AttendeeCount)
	require.Len(t, notify.sent, 1)
	assert.Equal(t, "Registered for Event", notify.sent[0].Title)

	_, err = svc.Register(ctx, "evt-1", "stu-1")
	assert.ErrorIs(t, err, appErrors.ErrAlreadyRegistered)

	_, err = svc.Register(ctx, "evt-1", "stu-2")
	assert.ErrorIs(t, err, appErrors.ErrEventFull)

	_, err = svc.Register(ctx, "evt-1", "stu-3")
	assert.ErrorIs(t, err, appErrors.ErrNotApproved)

	_, err = svc.Register(ctx, "evt-1", "stu-4")
	assert.ErrorIs(t, err, appErrors.ErrInactiveAccount)

	_, err = svc.Register(ctx, "missing", "stu-2")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestEventServiceUnregister(t *testing.T) {
	events := newMockEventRepo(models.Event{ID: "evt-1"}, models.Event{ID: "evt-done", Completed: true})
	events.attendees["evt-1"]["stu-1"] = true
	events.attendees["evt-done"]["stu-1"] = true
	svc := newTestEventService(events, newMockStudentRepo())
	ctx := context.Background()

	res, err := svc.Unregister(ctx, "evt-1", "stu-1")
	require.NoError(t, err)
	assert.False(t, res.Registered)
	assert.Equal(t, 0, res.AttendeeCount)

	_, err = svc.Unregister(ctx, "evt-1", "stu-1")
	assert.ErrorIs(t, err, appErrors.ErrNotRegistered)

	_, err = svc.Unregister(ctx, "evt-done", "stu-1")
	assert.ErrorIs(t, err, appErrors.ErrAlreadyCompleted)
}

func TestEventServiceUnregisterKeepsCreditedStudent(t *testing.T) {
	events := newMockEventRepo(models.Event{ID: "evt-1"})
	events.attendees["evt-1"]["stu-1"] = true
	events.credited["evt-1"]["stu-1"] = true
	svc := newTestEventService(events, newMockStudentRepo())

	_, err := svc.Unregister(context.Background(), "evt-1", "stu-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyCredited)
	assert.Equal(t, 409, appErrors.FromError(err).Status)
	assert.True(t, events.attendees["evt-1"]["stu-1"])
}

func TestEventServiceExport(t *testing.T) {
	events := newMockEventRepo(
		models.Event{ID: "evt-1", Name: "Tree plantation", Type: models.EventTypeCommunityService, GivenHours: 4, Date: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), MaxAttendees: intPtr(30)},
		models.Event{ID: "evt-2", Name: "Beach cleanup", Type: models.EventTypeCleaning, GivenHours: 2.5, Date: time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), Completed: true},
	)
	svc := newTestEventService(events, newMockStudentRepo())

	file, err := svc.Export(context.Background(), models.EventFilter{}, "csv")
	require.NoError(t, err)
	assert.Equal(t, "events-20240401.csv", file.Filename)
	body := string(file.Data)
	assert.Contains(t, body, "Name,Date,Type,Location,Given Hours,Attendees,Capacity,Completed")
	assert.Contains(t, body, "Tree plantation,2024-03-02,community_service,,4,0,30,false")
	assert.Contains(t, body, "Beach cleanup,2024-02-10,cleaning,,2.5,0,,true")
	assert.Equal(t, "date", events.lastFilter.SortBy)

	_, err = svc.Export(context.Background(), models.EventFilter{}, "docx")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	bogus := models.EventType("party")
	_, err = svc.Export(context.Background(), models.EventFilter{Type: &bogus}, "csv")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestEventServiceListAndAttendance(t *testing.T) {
	events := newMockEventRepo(models.Event{ID: "evt-1"})
	events.attendees["evt-1"]["stu-1"] = true
	svc := newTestEventService(events, newMockStudentRepo())

	invalid := models.EventType("party")
	_, _, err := svc.List(context.Background(), models.EventFilter{Type: &invalid})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	list, pagination, err := svc.List(context.Background(), models.EventFilter{PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, svc.now(), events.listNow)

	attendees, err := svc.Attendance(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Len(t, attendees, 1)

	_, err = svc.Attendance(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	upcoming, err := svc.Upcoming(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, upcoming)
}
