package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/org-management/org-service/internal/auth"
	"github.com/org-management/org-service/internal/db/models"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type stubValidator struct {
	principal *models.Principal
	err       error
	calls     int
}

func (s *stubValidator) ValidateToken(_ context.Context, token string) (*models.Principal, error) {
	s.calls++
	return s.principal, s.err
}

func newAuthRouter(v TokenValidator) *gin.Engine {
	r := gin.New()
	r.Use(AuthMiddleware(v, false))
	r.GET("/", func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"admin_id": p.AdminID, "ctx_admin_id": c.GetString(AdminIDKey)})
	})
	return r
}

func doAuth(r *gin.Engine, header string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, w.Body.String())
	}
	return body
}

// ---------------------------------------------------------------------------
// AuthMiddleware
// ---------------------------------------------------------------------------

func TestAuthMiddleware_MissingOrMalformedHeader(t *testing.T) {
	for _, header := range []string{"", "Basic dXNlcjpwYXNz", "Bearer ", "Token abc"} {
		t.Run(header, func(t *testing.T) {
			v := &stubValidator{}
			w := doAuth(newAuthRouter(v), header)

			if w.Code != http.StatusForbidden {
				t.Errorf("status = %d, want 403", w.Code)
			}
			body := decodeBody(t, w)
			if body["success"] != false || body["message"] != "Not authenticated" {
				t.Errorf("body = %v", body)
			}
			if v.calls != 0 {
				t.Error("validator should not be called without a bearer token")
			}
		})
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	v := &stubValidator{err: auth.ErrInvalidToken}
	w := doAuth(newAuthRouter(v), "Bearer bad.token.here")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got != "Bearer" {
		t.Errorf("WWW-Authenticate = %q, want Bearer", got)
	}
	body := decodeBody(t, w)
	if body["error"] != "Unauthorized" || body["message"] != "Invalid or expired token" {
		t.Errorf("body = %v", body)
	}
}

func TestAuthMiddleware_ValidatorFailure(t *testing.T) {
	v := &stubValidator{err: errors.New("db down")}
	w := doAuth(newAuthRouter(v), "Bearer tok")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body := decodeBody(t, w); body["details"] != nil {
		t.Errorf("details leaked with debug off: %v", body["details"])
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	v := &stubValidator{principal: &models.Principal{AdminID: "admin-1", OrganizationID: "org-1"}}
	w := doAuth(newAuthRouter(v), "Bearer good.token")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["admin_id"] != "admin-1" || body["ctx_admin_id"] != "admin-1" {
		t.Errorf("body = %v, principal not stored in context", body)
	}
}

func TestGetPrincipal_Absent(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if _, ok := GetPrincipal(c); ok {
		t.Error("GetPrincipal() ok = true on a fresh context")
	}
	c.Set(PrincipalKey, "not a principal")
	if _, ok := GetPrincipal(c); ok {
		t.Error("GetPrincipal() ok = true for a wrong type")
	}
}
