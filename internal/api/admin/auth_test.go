package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/org-management/org-service/internal/auth"
	"github.com/org-management/org-service/internal/config"
	"github.com/org-management/org-service/internal/db/models"
	"github.com/org-management/org-service/internal/middleware"
	"github.com/org-management/org-service/internal/services"
	"github.com/org-management/org-service/internal/store/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Router helper
// ---------------------------------------------------------------------------

type testEnv struct {
	router *gin.Engine
	orgs   *services.OrganizationService
	orgID  string
}

func newAuthRouter(t *testing.T) *testEnv {
	t.Helper()
	tokens, err := auth.NewTokenService(config.JWTConfig{
		Secret:                   "test-admin-jwt-secret-that-is-32chars!!",
		Algorithm:                "HS256",
		AccessTokenExpireMinutes: 30,
	})
	require.NoError(t, err)

	backend := memory.New()
	hasher := auth.NewPasswordHasher(4)
	orgs := services.NewOrganizationService(backend, backend, hasher)
	authSvc := services.NewAuthService(backend, hasher, tokens)

	view, err := orgs.Create(context.Background(), services.CreateInput{
		Name: "acme", Email: "admin@acme.io", Password: "Secret123",
	})
	require.NoError(t, err)

	h := NewAuthHandlers(authSvc, false)
	r := gin.New()
	r.POST("/admin/login", h.Login())
	protected := r.Group("/admin", middleware.AuthMiddleware(authSvc, false))
	protected.GET("/me", h.Me())
	protected.POST("/verify-token", h.VerifyToken())

	return &testEnv{router: r, orgs: orgs, orgID: view.ID}
}

func (e *testEnv) do(method, path, body, token string) (*httptest.ResponseRecorder, map[string]any) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	w, body := e.do(http.MethodPost, "/admin/login", `{"email":"admin@acme.io","password":"Secret123"}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

// ---------------------------------------------------------------------------
// Login
// ---------------------------------------------------------------------------

func TestLogin_Success(t *testing.T) {
	e := newAuthRouter(t)
	w, body := e.do(http.MethodPost, "/admin/login", `{"email":"ADMIN@acme.io","password":"Secret123"}`, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bearer", body["token_type"])
	assert.NotEmpty(t, body["access_token"])
	assert.EqualValues(t, 1800, body["expires_in"])
}

func TestLogin_InvalidCredentials(t *testing.T) {
	e := newAuthRouter(t)
	for _, body := range []string{
		`{"email":"admin@acme.io","password":"wrong-password"}`,
		`{"email":"nobody@acme.io","password":"Secret123"}`,
	} {
		w, out := e.do(http.MethodPost, "/admin/login", body, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
		assert.Equal(t, "Invalid email or password", out["message"])
	}
}

func TestLogin_ValidationError(t *testing.T) {
	e := newAuthRouter(t)
	w, out := e.do(http.MethodPost, "/admin/login", `{"email":"not-an-email"}`, "")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Validation Error", out["error"])
	details := out["details"].(map[string]any)
	assert.Len(t, details["errors"], 2)
}

// ---------------------------------------------------------------------------
// Me / VerifyToken
// ---------------------------------------------------------------------------

func TestMe_ReturnsAdmin(t *testing.T) {
	e := newAuthRouter(t)
	token := e.login(t)

	w, out := e.do(http.MethodGet, "/admin/me", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Admin information retrieved successfully", out["message"])

	adminInfo := out["data"].(map[string]any)["admin"].(map[string]any)
	assert.Equal(t, "admin@acme.io", adminInfo["email"])
	assert.Equal(t, e.orgID, adminInfo["organization_id"])
	assert.Equal(t, "acme", adminInfo["organization_name"])
	assert.NotEmpty(t, adminInfo["id"])
}

func TestVerifyToken_Valid(t *testing.T) {
	e := newAuthRouter(t)
	token := e.login(t)

	w, out := e.do(http.MethodPost, "/admin/verify-token", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Token is valid", out["message"])
	data := out["data"].(map[string]any)
	assert.Equal(t, true, data["valid"])
	assert.Equal(t, e.orgID, data["organization_id"])
}

func TestProtectedRoutes_Rejections(t *testing.T) {
	e := newAuthRouter(t)

	w, out := e.do(http.MethodGet, "/admin/me", "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Not authenticated", out["message"])

	w, _ = e.do(http.MethodPost, "/admin/verify-token", "", "not.a.jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
}

func TestVerifyToken_AdminDeleted(t *testing.T) {
	e := newAuthRouter(t)
	token := e.login(t)

	w, out := e.do(http.MethodGet, "/admin/me", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	adminID := out["data"].(map[string]any)["admin"].(map[string]any)["id"].(string)

	// Deleting the organization removes its admin; the old token must stop working.
	err := e.orgs.Delete(context.Background(), "acme", &models.Principal{AdminID: adminID, OrganizationID: e.orgID})
	require.NoError(t, err)

	w, _ = e.do(http.MethodPost, "/admin/verify-token", "", token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
