package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/seva-hours-api/internal/models"
	appErrors "github.com/noah-isme/seva-hours-api/pkg/errors"
)

type fakeNotificationSrv struct {
	owner    string
	role     models.UserRole
	markedID string
	sent     *models.SendNotificationRequest
}

func (f *fakeNotificationSrv) List(_ context.Context, userID string, role models.UserRole) ([]models.Notification, int, error) {
	f.owner, f.role = userID, role
	return []models.Notification{{ID: "n-1", Title: "Registration Approved"}}, 1, nil
}

func (f *fakeNotificationSrv) UnreadCount(context.Context, string, models.UserRole) (int, error) {
	return 4, nil
}

func (f *fakeNotificationSrv) MarkRead(_ context.Context, id, _ string, _ models.UserRole) error {
	if id != testNotificationID {
		return appErrors.Clone(appErrors.ErrNotFound, "Notification not found")
	}
	f.markedID = id
	return nil
}

func (f *fakeNotificationSrv) MarkAllRead(context.Context, string, models.UserRole) (int64, error) {
	return 3, nil
}

func (f *fakeNotificationSrv) Delete(context.Context, string, string, models.UserRole) error {
	return nil
}

func (f *fakeNotificationSrv) Send(_ context.Context, req models.SendNotificationRequest) (*models.Notification, error) {
	f.sent = &req
	return &models.Notification{ID: "n-9", UserID: req.UserID, Title: req.Title}, nil
}

func TestNotificationHandlerListScopesToCaller(t *testing.T) {
	svc := &fakeNotificationSrv{}
	handler := NewNotificationHandler(svc)
	r := newTestRouter(studentClaims())
	r.GET("/notifications", handler.List)

	rec := perform(r, http.MethodGet, "/notifications", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stu-1", svc.owner)
	assert.Equal(t, models.RoleStudent, svc.role)
	assert.EqualValues(t, 1, decodeEnvelope(t, rec).Meta["unread_count"])
}

func TestNotificationHandlerRequiresClaims(t *testing.T) {
	handler := NewNotificationHandler(&fakeNotificationSrv{})
	r := newTestRouter(nil)
	r.GET("/notifications/unread-count", handler.UnreadCount)

	rec := perform(r, http.MethodGet, "/notifications/unread-count", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNotificationHandlerMarkRead(t *testing.T) {
	svc := &fakeNotificationSrv{}
	handler := NewNotificationHandler(svc)
	r := newTestRouter(studentClaims())
	r.PATCH("/notifications/:id/read", handler.MarkRead)

	rec := perform(r, http.MethodPatch, "/notifications/"+testNotificationID+"/read", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, testNotificationID, svc.markedID)

	rec = perform(r, http.MethodPatch, "/notifications/3c2b1a09-8f7e-4d6c-9b5a-4f3e2d1c0b9a/read", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = perform(r, http.MethodPatch, "/notifications/other/read", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotificationHandlerSend(t *testing.T) {
	svc := &fakeNotificationSrv{}
	handler := NewNotificationHandler(svc)
	r := newTestRouter(adminClaims())
	r.POST("/notifications", handler.Send)

	rec := perform(r, http.MethodPost, "/notifications", map[string]string{
		"user_id":   "stu-1",
		"user_type": "STUDENT",
		"title":     "Reminder",
		"message":   "Bring your ID card",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.sent)
	assert.Equal(t, models.RoleStudent, svc.sent.UserType)
}
