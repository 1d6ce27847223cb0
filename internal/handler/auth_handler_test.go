package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/seva-hours-api/internal/models"
	appErrors "github.com/noah-isme/seva-hours-api/pkg/errors"
)

type fakeAuthSrv struct {
	adminReq         models.AdminLoginRequest
	studentReq       models.StudentLoginRequest
	studentErr       error
	adminGoogleReq   models.AdminGoogleLoginRequest
	studentGoogleReq models.StudentGoogleLoginRequest
	googleErr        error
}

func (f *fakeAuthSrv) AdminLogin(_ context.Context, req models.AdminLoginRequest) (*models.LoginResponse, error) {
	f.adminReq = req
	return &models.LoginResponse{AccessToken: "token", User: models.UserInfo{ID: "admin-1", Role: models.RoleAdmin}}, nil
}

func (f *fakeAuthSrv) AdminRegister(_ context.Context, req models.AdminRegisterRequest) (*models.Admin, error) {
	return &models.Admin{ID: "admin-2", Email: req.Email, Role: models.RoleAdmin}, nil
}

func (f *fakeAuthSrv) StudentLogin(_ context.Context, req models.StudentLoginRequest) (*models.LoginResponse, error) {
	f.studentReq = req
	if f.studentErr != nil {
		return nil, f.studentErr
	}
	return &models.LoginResponse{AccessToken: "token"}, nil
}

func (f *fakeAuthSrv) AdminGoogleLogin(_ context.Context, req models.AdminGoogleLoginRequest) (*models.LoginResponse, error) {
	f.adminGoogleReq = req
	if f.googleErr != nil {
		return nil, f.googleErr
	}
	return &models.LoginResponse{AccessToken: "google-token", User: models.UserInfo{ID: "admin-1", Role: models.RoleAdmin}}, nil
}

func (f *fakeAuthSrv) StudentGoogleLogin(_ context.Context, req models.StudentGoogleLoginRequest) (*models.LoginResponse, error) {
	f.studentGoogleReq = req
	if f.googleErr != nil {
		return nil, f.googleErr
	}
	return &models.LoginResponse{AccessToken: "google-token", User: models.UserInfo{ID: "s1", Role: models.RoleStudent}}, nil
}

func TestAuthHandlerAdminLoginCapturesClient(t *testing.T) {
	svc := &fakeAuthSrv{}
	handler := NewAuthHandler(svc)
	r := newTestRouter(nil)
	r.POST("/auth/admin/login", handler.AdminLogin)

	rec := perform(r, http.MethodPost, "/auth/admin/login", map[string]string{"email": "admin@college.edu", "password": "secret1", "pass_key": "org-key"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "org-key", svc.adminReq.Passkey)
	assert.NotEmpty(t, svc.adminReq.IP)
	var res models.LoginResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &res))
	assert.Equal(t, "token", res.AccessToken)
}

func TestAuthHandlerStudentLoginNotApproved(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthSrv{studentErr: appErrors.ErrNotApproved})
	r := newTestRouter(nil)
	r.POST("/auth/student/login", handler.StudentLogin)

	rec := perform(r, http.MethodPost, "/auth/student/login", map[string]string{"roll_no": "CS23B1001", "password": "secret1"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, appErrors.ErrNotApproved.Code, decodeEnvelope(t, rec).Error["code"])
}

func TestAuthHandlerInvalidPayload(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthSrv{})
	r := newTestRouter(nil)
	r.POST("/auth/admin/register", handler.AdminRegister)

	rec := perform(r, http.MethodPost, "/auth/admin/register", "not-json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthSrv{})
	r := newTestRouter(studentClaims())
	r.GET("/auth/me", handler.Me)

	rec := perform(r, http.MethodGet, "/auth/me", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var info models.UserInfo
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &info))
	assert.Equal(t, "CS23B1001", info.RollNo)
}

func TestAuthHandlerAdminGoogleLogin(t *testing.T) {
	svc := &fakeAuthSrv{}
	handler := NewAuthHandler(svc)
	r := newTestRouter(nil)
	r.POST("/auth/admin/google-login", handler.AdminGoogleLogin)

	rec := perform(r, http.MethodPost, "/auth/admin/google-login", map[string]string{"id_token": "abc.def.ghi", "pass_key": "org-key"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc.def.ghi", svc.adminGoogleReq.IDToken)
	assert.Equal(t, "org-key", svc.adminGoogleReq.Passkey)
	assert.NotEmpty(t, svc.adminGoogleReq.IP)
	var res models.LoginResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &res))
	assert.Equal(t, "google-token", res.AccessToken)
}

func TestAuthHandlerStudentGoogleLogin(t *testing.T) {
	svc := &fakeAuthSrv{}
	handler := NewAuthHandler(svc)
	r := newTestRouter(nil)
	r.POST("/auth/student/google-login", handler.StudentGoogleLogin)

	rec := perform(r, http.MethodPost, "/auth/student/google-login", map[string]string{"id_token": "abc.def.ghi", "roll_no": "CS23B1002"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CS23B1002", svc.studentGoogleReq.RollNo)

	svc.googleErr = appErrors.Clone(appErrors.ErrNotApproved, "your account is pending approval")
	rec = perform(r, http.MethodPost, "/auth/student/google-login", map[string]string{"id_token": "abc.def.ghi", "roll_no": "CS23B1002"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, appErrors.ErrNotApproved.Code, decodeEnvelope(t, rec).Error["code"])

	rec = perform(r, http.MethodPost, "/auth/student/google-login", "not-json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
