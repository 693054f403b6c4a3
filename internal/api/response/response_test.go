package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func record(fn func(c *gin.Context)) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	fn(c)

	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestOK(t *testing.T) {
	w, body := record(func(c *gin.Context) { OK(c, http.StatusCreated, "created", gin.H{"id": "1"}) })
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "created", body["message"])
	assert.Equal(t, map[string]any{"id": "1"}, body["data"])
}

func TestOK_NilDataIsNull(t *testing.T) {
	w, body := record(func(c *gin.Context) { OK(c, http.StatusOK, "deleted", nil) })
	assert.Equal(t, http.StatusOK, w.Code)
	v, ok := body["data"]
	assert.True(t, ok, "data key must be present")
	assert.Nil(t, v)
}

func TestAbort(t *testing.T) {
	w, body := record(func(c *gin.Context) { Abort(c, http.StatusNotFound, "Organization 'x' not found", nil) })
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Not Found", body["error"])
	assert.Equal(t, "Organization 'x' not found", body["message"])
}

func TestValidationFailed(t *testing.T) {
	w, body := record(func(c *gin.Context) {
		ValidationFailed(c, []FieldError{{Field: "body.email", Message: "must be a valid email", Type: "email"}})
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Validation Error", body["error"])
	assert.Equal(t, "Request validation failed", body["message"])

	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	errs, ok := details["errors"].([]any)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "body.email", errs[0].(map[string]any)["field"])
}

func TestInternal(t *testing.T) {
	cause := errors.New("connection refused")

	_, body := record(func(c *gin.Context) { Internal(c, false, cause) })
	assert.Equal(t, "Internal Server Error", body["error"])
	assert.Equal(t, "An unexpected error occurred", body["message"])
	assert.Nil(t, body["details"])

	_, body = record(func(c *gin.Context) { Internal(c, true, cause) })
	assert.Equal(t, map[string]any{"error": "connection refused"}, body["details"])
}
