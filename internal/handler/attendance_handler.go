package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/seva-hours-api/internal/dto"
	"github.com/noah-isme/seva-hours-api/internal/middleware"
	appErrors "github.com/noah-isme/seva-hours-api/pkg/errors"
	"github.com/noah-isme/seva-hours-api/pkg/response"
)

const defaultMaxUploadBytes int64 = 10 << 20

type attendanceService interface {
	Upload(ctx context.Context, eventID, adminID, filename string, content []byte) (*dto.AttendanceUploadResult, error)
	ManualCredit(ctx context.Context, eventID string, req dto.ManualCreditRequest) (*dto.ManualCreditResponse, error)
	AddBonusHours(ctx context.Context, eventID string, req dto.BonusHoursRequest) (*dto.BonusHoursResponse, error)
	Template() (*dto.FileDownload, error)
	Export(ctx context.Context, eventID, format string) (*dto.FileDownload, error)
}

// AttendanceHandler exposes attendance reconciliation endpoints.
type AttendanceHandler struct {
	service        attendanceService
	maxUploadBytes int64
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(svc attendanceService, maxUploadBytes int64) *AttendanceHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &AttendanceHandler{service: svc, maxUploadBytes: maxUploadBytes}
}

// Upload godoc
// @Summary Upload attendance sheet
// @Description Credits the event's hours to every approved student listed in the rollNo column
// @Tags Attendance
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Event ID"
// @Param file formData file true "xlsx or csv sheet"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id}/attendance/upload [post]
func (h *AttendanceHandler) Upload(c *gin.Context) {
	id, ok := idParam(c, "id", "event")
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is too large"))
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "No file uploaded"))
		return
	}
	if fileHeader.Size > h.maxUploadBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is too large"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()
	content, err := io.ReadAll(src)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read file"))
		return
	}

	var adminID string
	if claims := claimsFromContext(c); claims != nil {
		adminID = claims.UserID
	}
	result, err := h.service.Upload(c.Request.Context(), id, adminID, fileHeader.Filename, content)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "failed_records", result.FailedRecords)
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// ManualCredit godoc
// @Summary Credit one student
// @Description Fails when the student already has hours for the event
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.ManualCreditRequest true "Student and optional hours"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id}/attendance/manual [post]
func (h *AttendanceHandler) ManualCredit(c *gin.Context) {
	id, ok := idParam(c, "id", "event")
	if !ok {
		return
	}
	var req dto.ManualCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid manual credit payload"))
		return
	}
	if req.StudentID != "" && !validID(req.StudentID) {
		response.Error(c, invalidIDError("student"))
		return
	}
	res, err := h.service.ManualCredit(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Student added to event", res)
}

// Bonus godoc
// @Summary Add bonus hours
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.BonusHoursRequest true "Student and bonus hours"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /events/{id}/attendance/bonus [post]
func (h *AttendanceHandler) Bonus(c *gin.Context) {
	id, ok := idParam(c, "id", "event")
	if !ok {
		return
	}
	var req dto.BonusHoursRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bonus payload"))
		return
	}
	if req.StudentID != "" && !validID(req.StudentID) {
		response.Error(c, invalidIDError("student"))
		return
	}
	res, err := h.service.AddBonusHours(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Bonus hours added", res)
}

// Template godoc
// @Summary Download attendance template
// @Tags Attendance
// @Produce octet-stream
// @Success 200 {file} file
// @Router /events/attendance/template [get]
func (h *AttendanceHandler) Template(c *gin.Context) {
	file, err := h.service.Template()
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}

// Export godoc
// @Summary Export event attendance
// @Tags Attendance
// @Produce octet-stream
// @Param id path string true "Event ID"
// @Param format query string false "csv, pdf or xlsx"
// @Success 200 {file} file
// @Router /events/{id}/attendance/export [get]
func (h *AttendanceHandler) Export(c *gin.Context) {
	id, ok := idParam(c, "id", "event")
	if !ok {
		return
	}
	file, err := h.service.Export(c.Request.Context(), id, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}
