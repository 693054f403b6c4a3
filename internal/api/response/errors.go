package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/org-management/org-service/internal/services"
)

// StatusFor maps a service error kind to its HTTP status. conflictStatus is
// used for ErrAlreadyExists, which the delete route reports as 400.
func StatusFor(err error, conflictStatus int) int {
	switch {
	case errors.Is(err, services.ErrAlreadyExists):
		return conflictStatus
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// ServiceError writes the envelope for an error returned by a service.
// Classified errors carry their own message; everything else is a 500 whose
// cause is shown only in debug mode. A saga failure additionally lists the
// committed steps in debug mode so an operator can reconcile. Invalid input
// found by a service is reported like a binding failure on the body.
func ServiceError(c *gin.Context, err error, debug bool, conflictStatus int) {
	status := StatusFor(err, conflictStatus)
	if status != http.StatusInternalServerError {
		var domainErr *services.Error
		msg := err.Error()
		field := ""
		if errors.As(err, &domainErr) {
			msg, field = domainErr.Message, domainErr.Field
		}
		if status == http.StatusUnprocessableEntity {
			loc := "body"
			if field != "" {
				loc += "." + field
			}
			ValidationFailed(c, []FieldError{{Field: loc, Message: msg, Type: "value_error"}})
			return
		}
		if status == http.StatusUnauthorized {
			c.Header("WWW-Authenticate", "Bearer")
		}
		Abort(c, status, msg, nil)
		return
	}

	slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)

	var sagaErr *services.SagaError
	if debug && errors.As(err, &sagaErr) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, Error{
			Error:   "Internal Server Error",
			Message: "An unexpected error occurred",
			Details: gin.H{
				"error":           err.Error(),
				"operation":       sagaErr.Operation,
				"failed_step":     sagaErr.Step,
				"completed_steps": sagaErr.Completed,
			},
		})
		return
	}
	Internal(c, debug, err)
}
