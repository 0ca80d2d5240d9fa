package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/greenaudit/greenwash_backend/config"
	"github.com/greenaudit/greenwash_backend/utils"
	"github.com/sirupsen/logrus"
)

func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, errUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, utils.ErrInvalidInput),
		errors.Is(err, utils.ErrEmptyDocument),
		errors.Is(err, utils.ErrExtractionFailure),
		errors.Is(err, utils.ErrInvalidIdentifier):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, utils.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, utils.ErrUnauthorized):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// respondError writes err as JSON. Server-side failures are logged with the request's
// correlation id.
func respondError(c *gin.Context, logger logrus.FieldLogger, funcName string, err error) {
	status := httpStatusFor(err)
	body := gin.H{"error": err.Error()}

	var insufficient *utils.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		body["credit_type"] = insufficient.CreditType
		body["available"] = insufficient.Available
		body["requested"] = insufficient.Requested
	}

	if status >= http.StatusInternalServerError {
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		config.LogError(logger, "server.go", funcName, c.Request.Method+" "+c.FullPath(), gin.H{"correlation_id": cid}, err)
	}
	c.AbortWithStatusJSON(status, body)
}
