package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/seva-hours-api/internal/dto"
	"github.com/noah-isme/seva-hours-api/internal/models"
	appErrors "github.com/noah-isme/seva-hours-api/pkg/errors"
	"github.com/noah-isme/seva-hours-api/pkg/response"
)

type eventService interface {
	Create(ctx context.Context, adminID string, req models.CreateEventRequest) (*models.Event, error)
	Get(ctx context.Context, id string) (*models.Event, error)
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, *models.Pagination, error)
	Upcoming(ctx context.Context, limit int) ([]models.Event, error)
	Export(ctx context.Context, filter models.EventFilter, format string) (*dto.FileDownload, error)
	MarkCompleted(ctx context.Context, id, adminID string) (*dto.EventCompletionResponse, error)
	Register(ctx context.Context, eventID, studentID string) (*dto.EventRegistrationResponse, error)
	Unregister(ctx context.Context, eventID, studentID string) (*dto.EventRegistrationResponse, error)
	Attendance(ctx context.Context, eventID string) ([]models.EventAttendee, error)
}

// EventHandler exposes event endpoints.
type EventHandler struct {
	events eventService
}

// NewEventHandler constructs EventHandler.
func NewEventHandler(events eventService) *EventHandler {
	return &EventHandler{events: events}
}

// Create godoc
// @Summary Create event
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body models.CreateEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	var req models.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid event payload"))
		return
	}
	var adminID string
	if claims := claimsFromContext(c); claims != nil {
		adminID = claims.UserID
	}
	event, err := h.events.Create(c.Request.Context(), adminID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// List godoc
// @Summary List events
// @Tags Events
// @Produce json
// @Param type query string false "Event type"
// @Param upcoming query bool false "Only future (true) or past (false) events"
// @Param completed query bool false "Completion state"
// @Param search query string false "Search name or location"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	filter := eventFilterFromQuery(c)
	events, pagination, err := h.events.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination)
}

// Export godoc
// @Summary Export events
// @Tags Reports
// @Produce octet-stream
// @Param type query string false "Event type"
// @Param completed query bool false "Completion state"
// @Param format query string false "csv, pdf or xlsx"
// @Success 200 {file} file
// @Router /events/export [get]
func (h *EventHandler) Export(c *gin.Context) {
	file, err := h.events.Export(c.Request.Context(), eventFilterFromQuery(c), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}

func eventFilterFromQuery(c *gin.Context) models.EventFilter {
	page, size := pageParams(c)
	filter := models.EventFilter{
		Upcoming:  boolQuery(c, "upcoming"),
		Completed: boolQuery(c, "completed"),
		Search:    strings.TrimSpace(c.Query("search")),
		Page:      page,
		PageSize:  size,
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		t := models.EventType(raw)
		filter.Type = &t
	}
	return filter
}

// Upcoming godoc
// @Summary Upcoming events
// @Tags Events
// @Produce json
// @Param limit query int false "Maximum events"
// @Success 200 {object} response.Envelope
// @Router /events/upcoming [get]
func (h *EventHandler) Upcoming(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	events, err := h.events.Upcoming(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// Get godoc
// @Summary Get event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id", "event")
	if !ok {
		return
	}
	event, err := h.events.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Complete godoc
// @Summary Mark event completed
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id}/complete [patch]
func (h *EventHandler) Complete(c *gin.Context) {
	id, ok := idParam(c, "id", "event")
	if !ok {
		return
	}
	var adminID string
	if claims := claimsFromContext(c); claims != nil {
		adminID = claims.UserID
	}
	res, err := h.events.MarkCompleted(c.Request.Context(), id, adminID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Event marked as completed", res)
}

// Register godoc
// @Summary Register for event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id}/register [post]
func (h *EventHandler) Register(c *gin.Context) {
	id, ok := idParam(c, "id", "event")
	if !ok {
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	res, err := h.events.Register(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Registered successfully", res)
}

// Unregister godoc
// @Summary Unregister from event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/unregister [post]
func (h *EventHandler) Unregister(c *gin.Context) {
	id, ok := idParam(c, "id", "event")
	if !ok {
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	res, err := h.events.Unregister(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Unregistered successfully", res)
}

// Attendance godoc
// @Summary Event attendance
// @Tags Attendance
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/attendance [get]
func (h *EventHandler) Attendance(c *gin.Context) {
	id, ok := idParam(c, "id", "event")
	if !ok {
		return
	}
	attendees, err := h.events.Attendance(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attendees, nil, map[string]interface{}{"count": len(attendees)})
}
