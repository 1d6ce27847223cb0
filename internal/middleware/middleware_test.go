package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/seva-hours-api/internal/models"
	appErrors "github.com/noah-isme/seva-hours-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type observerStub struct {
	paths    []string
	statuses []int
}

func (o *observerStub) ObserveHTTPRequest(_ string, path string, status int, _ time.Duration) {
	o.paths = append(o.paths, path)
	o.statuses = append(o.statuses, status)
}

func newEngine(role models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWT(stubValidator{claims: &models.JWTClaims{UserID: "u-1", Role: role}}))
	return r
}

func perform(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWTRejectsMissingAndMalformedTokens(t *testing.T) {
	r := newEngine(models.RoleAdmin)
	r.GET("/me", func(c *gin.Context) {
		claims, ok := Claims(c)
		require.True(t, ok)
		c.String(http.StatusOK, claims.UserID)
	})

	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/me", "Token good").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/me", "Bearer bad").Code)

	rec := perform(r, http.MethodGet, "/me", "Bearer good")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", rec.Body.String())
}

func TestRequireRoles(t *testing.T) {
	r := newEngine(models.RoleStudent)
	r.GET("/admin", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/student", RequireRoles(models.RoleStudent), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/admin", "Bearer good").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/student", "Bearer good").Code)

	bare := gin.New()
	bare.GET("/admin", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, perform(bare, http.MethodGet, "/admin", "").Code)
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	recorder := &auditStub{}
	r := newEngine(models.RoleAdmin)
	r.PATCH("/events/:id/complete", Audit(recorder, nil, models.AuditActionEventComplete, "event"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.POST("/events/:id/fail", Audit(recorder, nil, models.AuditActionEventComplete, "event"), func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})

	perform(r, http.MethodPatch, "/events/evt-1/complete", "Bearer good")
	perform(r, http.MethodPost, "/events/evt-1/fail", "Bearer good")

	require.Len(t, recorder.logs, 1)
	entry := recorder.logs[0]
	assert.Equal(t, models.AuditActionEventComplete, entry.Action)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "evt-1", *entry.ResourceID)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "u-1", *entry.UserID)
	assert.Contains(t, string(entry.NewValues), `"status":200`)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	observer := &observerStub{}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(observer))
	r.GET("/events/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	perform(r, http.MethodGet, "/events/abc", "")
	perform(r, http.MethodGet, "/nope", "")

	assert.Equal(t, []string{"/events/:id", "unmatched"}, observer.paths)
	assert.Equal(t, []int{http.StatusOK, http.StatusNotFound}, observer.statuses)
}

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, ExtractMeta(c))

	SetCacheHit(c, true)
	SetMeta(c, "rows", 3)
	meta := ExtractMeta(c)
	assert.Equal(t, true, meta["cache_hit"])
	assert.Equal(t, 3, meta["rows"])
}
