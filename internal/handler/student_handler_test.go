package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/seva-hours-api/internal/dto"
	"github.com/noah-isme/seva-hours-api/internal/models"
	appErrors "github.com/noah-isme/seva-hours-api/pkg/errors"
)

type fakeStudentSrv struct {
	registerErr  error
	rejected     *models.RejectStudentRequest
	blocked      *bool
	approvedBy   string
	reportFilter dto.HoursReportFilter
	listFilter   models.StudentFilter
	exportFormat string
	profileFor   string
}

func (f *fakeStudentSrv) Register(_ context.Context, req models.RegisterStudentRequest) (*models.Student, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &models.Student{ID: "stu-1", RollNo: req.RollNo, Email: req.Email}, nil
}

func (f *fakeStudentSrv) Get(_ context.Context, id string) (*models.Student, error) {
	return &models.Student{ID: id}, nil
}

func (f *fakeStudentSrv) List(_ context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	f.listFilter = filter
	return []models.Student{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (f *fakeStudentSrv) Pending(context.Context, int, int) ([]models.Student, *models.Pagination, error) {
	return []models.Student{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (f *fakeStudentSrv) Approve(_ context.Context, id, adminID string) (*models.Student, error) {
	f.approvedBy = adminID
	return &models.Student{ID: id, Approved: true}, nil
}

func (f *fakeStudentSrv) Reject(_ context.Context, _ string, req models.RejectStudentRequest) error {
	f.rejected = &req
	return nil
}

func (f *fakeStudentSrv) SetBlocked(_ context.Context, id string, blocked bool) (*models.Student, error) {
	f.blocked = &blocked
	return &models.Student{ID: id, Active: !blocked}, nil
}

func (f *fakeStudentSrv) Update(_ context.Context, id string, _ models.UpdateStudentRequest) (*models.Student, error) {
	return &models.Student{ID: id}, nil
}

func (f *fakeStudentSrv) Delete(context.Context, string) error { return nil }

func (f *fakeStudentSrv) Profile(_ context.Context, id string) (*dto.StudentProfile, error) {
	f.profileFor = id
	return &dto.StudentProfile{Student: models.Student{ID: id}}, nil
}

func (f *fakeStudentSrv) Ledger(context.Context, string) ([]models.LedgerEntry, error) {
	return []models.LedgerEntry{}, nil
}

func (f *fakeStudentSrv) ProfileByRollNo(_ context.Context, rollNo string) (*dto.StudentProfile, error) {
	if rollNo != "CS23B1001" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return &dto.StudentProfile{Student: models.Student{ID: "stu-1", RollNo: rollNo}, EventCount: 2}, nil
}

func (f *fakeStudentSrv) LedgerByRollNo(_ context.Context, rollNo string) (*dto.StudentLedger, error) {
	return &dto.StudentLedger{RollNo: rollNo, TotalHours: 6.5, EventCount: 2, Events: []models.LedgerEntry{}}, nil
}

func (f *fakeStudentSrv) Status(_ context.Context, rollNo string) (*models.RegistrationStatus, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "No registration found for "+rollNo)
}

func (f *fakeStudentSrv) Leaderboard(context.Context, int, int) ([]models.LeaderboardEntry, *models.Pagination, error) {
	return []models.LeaderboardEntry{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (f *fakeStudentSrv) HoursReport(_ context.Context, filter dto.HoursReportFilter) (*dto.HoursReport, error) {
	f.reportFilter = filter
	return &dto.HoursReport{}, nil
}

func (f *fakeStudentSrv) Export(_ context.Context, _ models.StudentFilter, format string) (*dto.FileDownload, error) {
	f.exportFormat = format
	return &dto.FileDownload{Filename: "students-20261017.xlsx", ContentType: "application/octet-stream", Data: []byte("PK")}, nil
}

func TestStudentHandlerRegisterDomainRejected(t *testing.T) {
	handler := NewStudentHandler(&fakeStudentSrv{registerErr: appErrors.Clone(appErrors.ErrForbidden, "Only college.edu email accounts are allowed for registration")})
	r := newTestRouter(nil)
	r.POST("/students/register", handler.Register)

	rec := perform(r, http.MethodPost, "/students/register", map[string]interface{}{"full_name": "Asha", "roll_no": "CS23B1001", "email": "asha@gmail.com", "password": "secret1"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStudentHandlerStatusNotFound(t *testing.T) {
	handler := NewStudentHandler(&fakeStudentSrv{})
	r := newTestRouter(nil)
	r.GET("/students/status/:rollNo", handler.Status)

	rec := perform(r, http.MethodGet, "/students/status/CS23B1001", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStudentHandlerMeUsesClaims(t *testing.T) {
	svc := &fakeStudentSrv{}
	handler := NewStudentHandler(svc)
	r := newTestRouter(studentClaims())
	r.GET("/students/me", handler.Me)

	rec := perform(r, http.MethodGet, "/students/me", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stu-1", svc.profileFor)
}

func TestStudentHandlerApproveAndBlock(t *testing.T) {
	svc := &fakeStudentSrv{}
	handler := NewStudentHandler(svc)
	r := newTestRouter(adminClaims())
	r.PATCH("/students/:id/approve", handler.Approve)
	r.PATCH("/students/:id/block", handler.Block)
	r.PATCH("/students/:id/unblock", handler.Unblock)

	rec := perform(r, http.MethodPatch, "/students/"+testStudentID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin-1", svc.approvedBy)

	rec = perform(r, http.MethodPatch, "/students/"+testStudentID+"/block", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.blocked)
	assert.True(t, *svc.blocked)
	assert.Equal(t, "Student blocked", decodeEnvelope(t, rec).Message)

	rec = perform(r, http.MethodPatch, "/students/"+testStudentID+"/unblock", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, *svc.blocked)
}

func TestStudentHandlerRejectWithAndWithoutReason(t *testing.T) {
	svc := &fakeStudentSrv{}
	handler := NewStudentHandler(svc)
	r := newTestRouter(adminClaims())
	r.PATCH("/students/:id/reject", handler.Reject)

	rec := perform(r, http.MethodPatch, "/students/"+testStudentID+"/reject", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.rejected)
	assert.Empty(t, svc.rejected.Reason)

	rec = perform(r, http.MethodPatch, "/students/"+testStudentID+"/reject", map[string]string{"reason": "Duplicate account"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Duplicate account", svc.rejected.Reason)
}

func TestStudentHandlerListFilters(t *testing.T) {
	svc := &fakeStudentSrv{}
	handler := NewStudentHandler(svc)
	r := newTestRouter(adminClaims())
	r.GET("/students", handler.List)

	rec := perform(r, http.MethodGet, "/students?approved=false&branch=cse&year=2&search=asha", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.listFilter.Approved)
	assert.False(t, *svc.listFilter.Approved)
	assert.Nil(t, svc.listFilter.Active)
	assert.Equal(t, "cse", svc.listFilter.Branch)
	require.NotNil(t, svc.listFilter.Year)
	assert.Equal(t, 2, *svc.listFilter.Year)
}

func TestStudentHandlerHoursReportDates(t *testing.T) {
	svc := &fakeStudentSrv{}
	handler := NewStudentHandler(svc)
	r := newTestRouter(adminClaims())
	r.GET("/reports/hours", handler.HoursReport)

	rec := perform(r, http.MethodGet, "/reports/hours?from=2026-01-01&to=2026-01-31&branch=CSE", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.reportFilter.From)
	require.NotNil(t, svc.reportFilter.To)
	assert.Equal(t, "2026-01-01", svc.reportFilter.From.Format("2006-01-02"))
	assert.Equal(t, "2026-01-31", svc.reportFilter.To.Format("2006-01-02"))
	assert.Equal(t, 23, svc.reportFilter.To.Hour())
	assert.Equal(t, "CSE", svc.reportFilter.Branch)
}

func TestStudentHandlerHoursReportInvalidDate(t *testing.T) {
	handler := NewStudentHandler(&fakeStudentSrv{})
	r := newTestRouter(adminClaims())
	r.GET("/reports/hours", handler.HoursReport)

	rec := perform(r, http.MethodGet, "/reports/hours?from=01/02/2026", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "from must be YYYY-MM-DD", decodeEnvelope(t, rec).Error["message"])
}

func TestStudentHandlerExportFormat(t *testing.T) {
	svc := &fakeStudentSrv{}
	handler := NewStudentHandler(svc)
	r := newTestRouter(adminClaims())
	r.GET("/students/export", handler.Export)

	rec := perform(r, http.MethodGet, "/students/export?format=xlsx", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "xlsx", svc.exportFormat)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "students-20261017.xlsx")
}

func TestStudentHandlerPublicProfileAndLedger(t *testing.T) {
	handler := NewStudentHandler(&fakeStudentSrv{})
	r := newTestRouter(nil)
	r.GET("/students/profile/:rollNo", handler.PublicProfile)
	r.GET("/students/profile/:rollNo/events", handler.PublicLedger)

	rec := perform(r, http.MethodGet, "/students/profile/CS23B1001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile dto.StudentProfile
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &profile))
	assert.Equal(t, 2, profile.EventCount)

	rec = perform(r, http.MethodGet, "/students/profile/ZZ99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = perform(r, http.MethodGet, "/students/profile/CS23B1001/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ledger dto.StudentLedger
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &ledger))
	assert.Equal(t, "CS23B1001", ledger.RollNo)
	assert.Equal(t, 6.5, ledger.TotalHours)
}

func TestStudentHandlerRejectsMalformedID(t *testing.T) {
	svc := &fakeStudentSrv{}
	handler := NewStudentHandler(svc)
	r := newTestRouter(adminClaims())
	r.PATCH("/students/:id/approve", handler.Approve)

	rec := perform(r, http.MethodPatch, "/students/abc/approve", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid student ID", decodeEnvelope(t, rec).Error["message"])
	assert.Empty(t, svc.approvedBy)
}
