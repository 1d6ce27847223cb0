package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noah-isme/seva-hours-api/internal/dto"
	"github.com/noah-isme/seva-hours-api/internal/middleware"
	"github.com/noah-isme/seva-hours-api/internal/models"
	appErrors "github.com/noah-isme/seva-hours-api/pkg/errors"
	"github.com/noah-isme/seva-hours-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.Claims(c)
	if !ok {
		return nil
	}
	return claims
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, size
}

func boolQuery(c *gin.Context, key string) *bool {
	switch strings.ToLower(strings.TrimSpace(c.Query(key))) {
	case "true", "1":
		v := true
		return &v
	case "false", "0":
		v := false
		return &v
	default:
		return nil
	}
}

func intQuery(c *gin.Context, key string) *int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}

func sendFile(c *gin.Context, file *dto.FileDownload) {
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// idParam reads a UUID path parameter. Malformed values get a 400 response
// and never reach the database.
func idParam(c *gin.Context, name, label string) (string, bool) {
	raw := strings.TrimSpace(c.Param(name))
	if !validID(raw) {
		response.Error(c, invalidIDError(label))
		return "", false
	}
	return raw, true
}

func validID(raw string) bool {
	_, err := uuid.Parse(raw)
	return err == nil
}

func invalidIDError(label string) error {
	return appErrors.Clone(appErrors.ErrValidation, "Invalid "+label+" ID")
}
