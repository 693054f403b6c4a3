package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/org-management/org-service/internal/auth"
	"github.com/org-management/org-service/internal/db/models"
	"github.com/org-management/org-service/internal/store"
	"github.com/org-management/org-service/internal/telemetry"
)

// Token is the result of a successful login
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// AuthService authenticates admins and validates their access tokens.
type AuthService struct {
	registry store.Registry
	hasher   *auth.PasswordHasher
	tokens   *auth.TokenService
}

// NewAuthService creates a new auth service
func NewAuthService(registry store.Registry, hasher *auth.PasswordHasher, tokens *auth.TokenService) *AuthService {
	return &AuthService{registry: registry, hasher: hasher, tokens: tokens}
}

// Authenticate checks email and password. Unknown email, inactive admin and
// wrong password all yield ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*models.AdminUser, error) {
	email = strings.ToLower(email)
	admin, err := s.registry.FindAdminByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up admin: %w", err)
	}
	if admin == nil {
		slog.Warn("login rejected", "reason", "unknown email")
		return nil, ErrInvalidCredentials
	}
	if !admin.IsActive {
		slog.Warn("login rejected", "reason", "inactive admin", "admin_id", admin.ID)
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, admin.PasswordHash) {
		slog.Warn("login rejected", "reason", "wrong password", "admin_id", admin.ID)
		return nil, ErrInvalidCredentials
	}
	return admin, nil
}

// Login authenticates the admin and issues an access token carrying its
// organization.
func (s *AuthService) Login(ctx context.Context, email, password string) (token *Token, err error) {
	defer func() {
		result := "success"
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			result = "invalid_credentials"
		case err != nil:
			result = "error"
		}
		telemetry.AdminLoginAttemptsTotal.WithLabelValues(result).Inc()
	}()

	admin, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	org, err := s.registry.FindOrganizationByID(ctx, admin.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up organization: %w", err)
	}
	if org == nil {
		slog.Error("admin has no organization", "admin_id", admin.ID, "organization_id", admin.OrganizationID)
		return nil, ErrInvalidCredentials
	}

	signed, err := s.tokens.IssueToken(auth.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: admin.ID},
		Email:            admin.Email,
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
		Role:             admin.Role,
	}, 0)
	if err != nil {
		return nil, err
	}

	slog.Info("admin logged in", "admin_id", admin.ID, "organization_id", org.ID)
	return &Token{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresIn:   int(s.tokens.TTL().Seconds()),
	}, nil
}

// ValidateToken decodes token and confirms its admin still exists and is active.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*models.Principal, error) {
	claims, err := s.tokens.DecodeToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	admin, err := s.registry.FindAdminByID(ctx, claims.AdminID())
	if err != nil {
		return nil, fmt.Errorf("failed to look up admin: %w", err)
	}
	if admin == nil || !admin.IsActive {
		return nil, ErrInvalidToken
	}

	return &models.Principal{
		AdminID:          claims.AdminID(),
		Email:            claims.Email,
		OrganizationID:   claims.OrganizationID,
		OrganizationName: claims.OrganizationName,
		Role:             claims.Role,
	}, nil
}
