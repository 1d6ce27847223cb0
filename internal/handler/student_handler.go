package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/seva-hours-api/internal/dto"
	"github.com/noah-isme/seva-hours-api/internal/models"
	appErrors "github.com/noah-isme/seva-hours-api/pkg/errors"
	"github.com/noah-isme/seva-hours-api/pkg/response"
)

type studentService interface {
	Register(ctx context.Context, req models.RegisterStudentRequest) (*models.Student, error)
	Get(ctx context.Context, id string) (*models.Student, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error)
	Pending(ctx context.Context, page, size int) ([]models.Student, *models.Pagination, error)
	Approve(ctx context.Context, id, adminID string) (*models.Student, error)
	Reject(ctx context.Context, id string, req models.RejectStudentRequest) error
	SetBlocked(ctx context.Context, id string, blocked bool) (*models.Student, error)
	Update(ctx context.Context, id string, req models.UpdateStudentRequest) (*models.Student, error)
	Delete(ctx context.Context, id string) error
	Profile(ctx context.Context, id string) (*dto.StudentProfile, error)
	Ledger(ctx context.Context, id string) ([]models.LedgerEntry, error)
	ProfileByRollNo(ctx context.Context, rollNo string) (*dto.StudentProfile, error)
	LedgerByRollNo(ctx context.Context, rollNo string) (*dto.StudentLedger, error)
	Status(ctx context.Context, rollNo string) (*models.RegistrationStatus, error)
	Leaderboard(ctx context.Context, page, size int) ([]models.LeaderboardEntry, *models.Pagination, error)
	HoursReport(ctx context.Context, filter dto.HoursReportFilter) (*dto.HoursReport, error)
	Export(ctx context.Context, filter models.StudentFilter, format string) (*dto.FileDownload, error)
}

// StudentHandler exposes student endpoints.
type StudentHandler struct {
	students studentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentService) *StudentHandler {
	return &StudentHandler{students: students}
}

// Register godoc
// @Summary Self-register a student
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body models.RegisterStudentRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/register [post]
func (h *StudentHandler) Register(c *gin.Context) {
	var req models.RegisterStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}
	student, err := h.students.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Status godoc
// @Summary Registration status by roll number
// @Tags Students
// @Produce json
// @Param rollNo path string true "Roll number"
// @Success 200 {object} response.Envelope
// @Router /students/status/{rollNo} [get]
func (h *StudentHandler) Status(c *gin.Context) {
	status, err := h.students.Status(c.Request.Context(), c.Param("rollNo"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// PublicProfile godoc
// @Summary Public profile by roll number
// @Tags Students
// @Produce json
// @Param rollNo path string true "Roll number"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/profile/{rollNo} [get]
func (h *StudentHandler) PublicProfile(c *gin.Context) {
	profile, err := h.students.ProfileByRollNo(c.Request.Context(), c.Param("rollNo"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// PublicLedger godoc
// @Summary Public hours history by roll number
// @Tags Students
// @Produce json
// @Param rollNo path string true "Roll number"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/profile/{rollNo}/events [get]
func (h *StudentHandler) PublicLedger(c *gin.Context) {
	ledger, err := h.students.LedgerByRollNo(c.Request.Context(), c.Param("rollNo"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ledger, nil)
}

// Leaderboard godoc
// @Summary Public hours leaderboard
// @Tags Students
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students/leaderboard [get]
func (h *StudentHandler) Leaderboard(c *gin.Context) {
	page, size := pageParams(c)
	entries, pagination, err := h.students.Leaderboard(c.Request.Context(), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Me godoc
// @Summary Own profile with attended events
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/me [get]
func (h *StudentHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	profile, err := h.students.Profile(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// MyLedger godoc
// @Summary Own hours ledger
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/me/events [get]
func (h *StudentHandler) MyLedger(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	entries, err := h.students.Ledger(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param search query string false "Search by name, roll number or email"
// @Param approved query bool false "Filter by approval"
// @Param active query bool false "Filter by active state"
// @Param branch query string false "Branch"
// @Param year query int false "Year of study"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	filter := studentFilterFromQuery(c)
	students, pagination, err := h.students.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Pending godoc
// @Summary Registrations awaiting approval
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/pending [get]
func (h *StudentHandler) Pending(c *gin.Context) {
	page, size := pageParams(c)
	students, pagination, err := h.students.Pending(c.Request.Context(), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Student profile with ledger
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id", "student")
	if !ok {
		return
	}
	profile, err := h.students.Profile(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Approve godoc
// @Summary Approve registration
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/approve [patch]
func (h *StudentHandler) Approve(c *gin.Context) {
	id, ok := idParam(c, "id", "student")
	if !ok {
		return
	}
	var adminID string
	if claims := claimsFromContext(c); claims != nil {
		adminID = claims.UserID
	}
	student, err := h.students.Approve(c.Request.Context(), id, adminID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Student approved successfully", student)
}

// Reject godoc
// @Summary Reject registration
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body models.RejectStudentRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/reject [patch]
func (h *StudentHandler) Reject(c *gin.Context) {
	id, ok := idParam(c, "id", "student")
	if !ok {
		return
	}
	var req models.RejectStudentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reject payload"))
			return
		}
	}
	if err := h.students.Reject(c.Request.Context(), id, req); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Student registration rejected", nil)
}

// Block godoc
// @Summary Block student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/block [patch]
func (h *StudentHandler) Block(c *gin.Context) {
	h.setBlocked(c, true)
}

// Unblock godoc
// @Summary Unblock student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/unblock [patch]
func (h *StudentHandler) Unblock(c *gin.Context) {
	h.setBlocked(c, false)
}

func (h *StudentHandler) setBlocked(c *gin.Context, blocked bool) {
	id, ok := idParam(c, "id", "student")
	if !ok {
		return
	}
	student, err := h.students.SetBlocked(c.Request.Context(), id, blocked)
	if err != nil {
		response.Error(c, err)
		return
	}
	msg := "Student unblocked"
	if blocked {
		msg = "Student blocked"
	}
	response.Message(c, http.StatusOK, msg, student)
}

// Update godoc
// @Summary Update student profile
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body models.UpdateStudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "id", "student")
	if !ok {
		return
	}
	var req models.UpdateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Delete godoc
// @Summary Delete student permanently
// @Tags Students
// @Param id path string true "Student ID"
// @Success 204
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id", "student")
	if !ok {
		return
	}
	if err := h.students.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// HoursReport godoc
// @Summary Hours report
// @Tags Reports
// @Produce json
// @Param branch query string false "Branch"
// @Param year query int false "Year of study"
// @Param from query string false "Registered from (YYYY-MM-DD)"
// @Param to query string false "Registered to (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /reports/hours [get]
func (h *StudentHandler) HoursReport(c *gin.Context) {
	filter := dto.HoursReportFilter{Branch: strings.TrimSpace(c.Query("branch")), Year: intQuery(c, "year")}
	var err error
	if filter.From, err = dateQuery(c, "from", false); err != nil {
		response.Error(c, err)
		return
	}
	if filter.To, err = dateQuery(c, "to", true); err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.students.HoursReport(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Export godoc
// @Summary Export student directory
// @Tags Reports
// @Produce octet-stream
// @Param format query string false "csv, pdf or xlsx"
// @Success 200 {file} file
// @Router /students/export [get]
func (h *StudentHandler) Export(c *gin.Context) {
	file, err := h.students.Export(c.Request.Context(), studentFilterFromQuery(c), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}

// dateQuery parses a YYYY-MM-DD query value. endOfDay moves the result to
// the last instant of that day.
func dateQuery(c *gin.Context, key string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, key+" must be YYYY-MM-DD")
	}
	if endOfDay {
		ts = ts.Add(24*time.Hour - time.Nanosecond)
	}
	return &ts, nil
}

func studentFilterFromQuery(c *gin.Context) models.StudentFilter {
	page, size := pageParams(c)
	return models.StudentFilter{
		Search:    strings.TrimSpace(c.Query("search")),
		Approved:  boolQuery(c, "approved"),
		Active:    boolQuery(c, "active"),
		Branch:    strings.TrimSpace(c.Query("branch")),
		Year:      intQuery(c, "year"),
		Page:      page,
		PageSize:  size,
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
}
