// Package middleware provides Gin HTTP middleware for authentication, rate
// limiting, security headers, request logging, and metrics.
//
// Middleware ordering is enforced in internal/api/router.go:
//
//	Recovery → RequestID → Metrics → Logger → CORS → Security → [RateLimit] → [Auth] → Handler
//
// Rate limiting is attached to the login route only and runs before any
// credential check. Auth is attached to the routes that act on behalf of an
// admin.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/org-management/org-service/internal/api/response"
	"github.com/org-management/org-service/internal/auth"
	"github.com/org-management/org-service/internal/db/models"
)

const (
	// PrincipalKey is the gin.Context key holding the authenticated *models.Principal.
	PrincipalKey = "principal"

	// AdminIDKey is the gin.Context key holding the authenticated admin id.
	AdminIDKey = "admin_id"
)

// TokenValidator resolves a bearer token to the admin it was issued to.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.Principal, error)
}

// AuthMiddleware requires a valid bearer token.
//
// A missing header or a non-Bearer scheme is answered with 403 "Not
// authenticated". A token that fails verification, has expired, or belongs to
// an admin that no longer exists is answered with 401 and a
// WWW-Authenticate: Bearer challenge.
func AuthMiddleware(validator TokenValidator, debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.Abort(c, http.StatusForbidden, "Not authenticated", nil)
			return
		}

		principal, err := validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				c.Header("WWW-Authenticate", "Bearer")
				response.Abort(c, http.StatusUnauthorized, "Invalid or expired token", nil)
				return
			}
			slog.Error("token validation failed", "error", err)
			response.Internal(c, debug, err)
			return
		}

		c.Set(PrincipalKey, principal)
		c.Set(AdminIDKey, principal.AdminID)
		c.Next()
	}
}

// GetPrincipal returns the principal stored by AuthMiddleware.
func GetPrincipal(c *gin.Context) (*models.Principal, bool) {
	v, exists := c.Get(PrincipalKey)
	if !exists {
		return nil, false
	}
	p, ok := v.(*models.Principal)
	return p, ok && p != nil
}
