package services

import (
	"context"
	"testing"

	"github.com/org-management/org-service/internal/auth"
	"github.com/org-management/org-service/internal/config"
	"github.com/org-management/org-service/internal/db/models"
	"github.com/org-management/org-service/internal/store/memory"
	"github.com/stretchr/testify/require"
)

// faultyBackend wraps the memory backend and fails the named operations.
// Organization names and admin emails in hidden are reported absent by the
// Find lookups, so writes reach the unique indexes.
type faultyBackend struct {
	*memory.Backend
	failOn map[string]error
	hidden map[string]bool
}

func newFaultyBackend() *faultyBackend {
	return &faultyBackend{Backend: memory.New(), failOn: map[string]error{}, hidden: map[string]bool{}}
}

func (f *faultyBackend) FindOrganizationByName(ctx context.Context, name string) (*models.Organization, error) {
	if f.hidden[name] {
		return nil, nil
	}
	return f.Backend.FindOrganizationByName(ctx, name)
}

func (f *faultyBackend) FindAdminByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	if f.hidden[email] {
		return nil, nil
	}
	return f.Backend.FindAdminByEmail(ctx, email)
}

func (f *faultyBackend) InsertAdmin(ctx context.Context, admin *models.AdminUser) (string, error) {
	if err := f.failOn["InsertAdmin"]; err != nil {
		return "", err
	}
	return f.Backend.InsertAdmin(ctx, admin)
}

func (f *faultyBackend) UpdateAdmin(ctx context.Context, id string, patch models.AdminPatch) error {
	if err := f.failOn["UpdateAdmin"]; err != nil {
		return err
	}
	return f.Backend.UpdateAdmin(ctx, id, patch)
}

func (f *faultyBackend) DeleteAdminsByOrganization(ctx context.Context, orgID string) (int64, error) {
	if err := f.failOn["DeleteAdminsByOrganization"]; err != nil {
		return 0, err
	}
	return f.Backend.DeleteAdminsByOrganization(ctx, orgID)
}

func (f *faultyBackend) DeleteOrganization(ctx context.Context, id string) error {
	if err := f.failOn["DeleteOrganization"]; err != nil {
		return err
	}
	return f.Backend.DeleteOrganization(ctx, id)
}

func (f *faultyBackend) Provision(ctx context.Context, collection string) error {
	if err := f.failOn["Provision"]; err != nil {
		return err
	}
	return f.Backend.Provision(ctx, collection)
}

func (f *faultyBackend) Rename(ctx context.Context, from, to string) error {
	if err := f.failOn["Rename"]; err != nil {
		return err
	}
	return f.Backend.Rename(ctx, from, to)
}

func (f *faultyBackend) Destroy(ctx context.Context, collection string) error {
	if err := f.failOn["Destroy"]; err != nil {
		return err
	}
	return f.Backend.Destroy(ctx, collection)
}

type fixture struct {
	backend *faultyBackend
	orgs    *OrganizationService
	auth    *AuthService
	tokens  *auth.TokenService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := auth.NewTokenService(config.JWTConfig{
		Secret:                   "test-jwt-secret-that-is-32-chars-!",
		Algorithm:                "HS256",
		AccessTokenExpireMinutes: 30,
		Issuer:                   "org-service",
	})
	require.NoError(t, err)

	b := newFaultyBackend()
	hasher := auth.NewPasswordHasher(4)
	return &fixture{
		backend: b,
		orgs:    NewOrganizationService(b, b, hasher),
		auth:    NewAuthService(b, hasher, tokens),
		tokens:  tokens,
	}
}

// createOrg creates an organization and returns its admin's principal.
func (f *fixture) createOrg(t *testing.T, name, email string) (*OrganizationView, *models.Principal) {
	t.Helper()
	ctx := context.Background()
	view, err := f.orgs.Create(ctx, CreateInput{Name: name, Email: email, Password: "Secret123"})
	require.NoError(t, err)

	admin, err := f.backend.FindAdminByEmail(ctx, email)
	require.NoError(t, err)
	require.NotNil(t, admin)
	return view, &models.Principal{
		AdminID:          admin.ID,
		Email:            admin.Email,
		OrganizationID:   admin.OrganizationID,
		OrganizationName: admin.OrganizationName,
		Role:             admin.Role,
	}
}

func ptr[T any](v T) *T { return &v }
