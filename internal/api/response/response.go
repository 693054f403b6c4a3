// Package response renders the JSON envelopes shared by every handler and
// middleware:
//
//	success: {"success": true,  "message": "...", "data": {...}}
//	error:   {"success": false, "error": "Not Found", "message": "...", "details": {...}}
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Success is the envelope of a successful response
type Success struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Error is the envelope of a failed response
type Error struct {
	Success bool   `json:"success" example:"false"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

// FieldError describes one failed validation rule
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// OK writes a success envelope
func OK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Success{Success: true, Message: message, Data: data})
}

// Fail writes an error envelope whose error label is the status text.
func Fail(c *gin.Context, status int, message string, details any) {
	c.JSON(status, Error{Error: http.StatusText(status), Message: message, Details: details})
}

// Abort writes an error envelope and stops the handler chain.
func Abort(c *gin.Context, status int, message string, details any) {
	c.AbortWithStatusJSON(status, Error{Error: http.StatusText(status), Message: message, Details: details})
}

// ValidationFailed writes the 422 envelope listing every failed field.
func ValidationFailed(c *gin.Context, errs []FieldError) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, Error{
		Error:   "Validation Error",
		Message: "Request validation failed",
		Details: gin.H{"errors": errs},
	})
}

// Internal writes the 500 envelope. The cause is exposed only when debug is on.
func Internal(c *gin.Context, debug bool, err error) {
	var details any
	if debug && err != nil {
		details = gin.H{"error": err.Error()}
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, Error{
		Error:   "Internal Server Error",
		Message: "An unexpected error occurred",
		Details: details,
	})
}
