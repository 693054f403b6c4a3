// Package admin implements the /admin routes: login, the current admin, and
// token verification.
package admin

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/org-management/org-service/internal/api/response"
	"github.com/org-management/org-service/internal/middleware"
	"github.com/org-management/org-service/internal/services"
	"github.com/org-management/org-service/internal/validation"
)

// LoginRequest is the body of POST /admin/login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email" example:"admin@acme.io"`
	Password string `json:"password" binding:"required" example:"Sup3rSecret"`
}

// AdminInfo describes the authenticated admin
type AdminInfo struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	OrganizationID   string `json:"organization_id"`
	OrganizationName string `json:"organization_name"`
}

// MeData is the data of GET /admin/me
type MeData struct {
	Admin AdminInfo `json:"admin"`
}

// VerifyData is the data of POST /admin/verify-token
type VerifyData struct {
	Valid          bool   `json:"valid"`
	AdminID        string `json:"admin_id"`
	OrganizationID string `json:"organization_id"`
}

// AuthHandlers serves the admin authentication routes.
type AuthHandlers struct {
	auth  *services.AuthService
	debug bool
}

// NewAuthHandlers creates the admin authentication handlers
func NewAuthHandlers(authService *services.AuthService, debug bool) *AuthHandlers {
	validation.Register()
	return &AuthHandlers{auth: authService, debug: debug}
}

// @Summary      Admin login
// @Description  Exchanges admin credentials for a bearer access token carrying the admin's organization.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body      LoginRequest  true  "Admin credentials"
// @Success      200   {object}  services.Token
// @Failure      401   {object}  response.Error  "Invalid email or password"
// @Failure      422   {object}  response.Error
// @Failure      429   {object}  response.Error
// @Router       /admin/login [post]
func (h *AuthHandlers) Login() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, validation.FieldErrors(err, validation.LocationBody))
			return
		}

		email := strings.ToLower(req.Email)
		middleware.SetAuditSubject(c, "", email)

		token, err := h.auth.Login(c.Request.Context(), email, req.Password)
		if err != nil {
			if errors.Is(err, services.ErrInvalidCredentials) {
				c.Header("WWW-Authenticate", "Bearer")
				response.Abort(c, http.StatusUnauthorized, "Invalid email or password", nil)
				return
			}
			response.ServiceError(c, err, h.debug, http.StatusConflict)
			return
		}

		c.JSON(http.StatusOK, token)
	}
}

// @Summary      Current admin
// @Description  Returns the admin the bearer token was issued to.
// @Tags         Authentication
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Success{data=MeData}
// @Failure      401  {object}  response.Error
// @Failure      403  {object}  response.Error
// @Router       /admin/me [get]
func (h *AuthHandlers) Me() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := middleware.GetPrincipal(c)
		if !ok {
			response.Abort(c, http.StatusForbidden, "Not authenticated", nil)
			return
		}
		response.OK(c, http.StatusOK, "Admin information retrieved successfully", MeData{Admin: AdminInfo{
			ID:               principal.AdminID,
			Email:            principal.Email,
			OrganizationID:   principal.OrganizationID,
			OrganizationName: principal.OrganizationName,
		}})
	}
}

// @Summary      Verify token
// @Description  Confirms the bearer token is valid and its admin still exists.
// @Tags         Authentication
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Success{data=VerifyData}
// @Failure      401  {object}  response.Error
// @Failure      403  {object}  response.Error
// @Router       /admin/verify-token [post]
func (h *AuthHandlers) VerifyToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := middleware.GetPrincipal(c)
		if !ok {
			response.Abort(c, http.StatusForbidden, "Not authenticated", nil)
			return
		}
		response.OK(c, http.StatusOK, "Token is valid", VerifyData{
			Valid:          true,
			AdminID:        principal.AdminID,
			OrganizationID: principal.OrganizationID,
		})
	}
}
