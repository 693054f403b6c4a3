// Package services implements the business logic that coordinates the
// registry and tenant collection stores. Organization create, update, and
// delete are sagas: ordered forward steps, each committed on its own, with no
// compensation. A failure after the first write is reported as a *SagaError
// naming the committed steps.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/org-management/org-service/internal/auth"
	"github.com/org-management/org-service/internal/db/models"
	"github.com/org-management/org-service/internal/store"
	"github.com/org-management/org-service/internal/telemetry"
)

// Saga step names
const (
	stepInsertOrganization  = "insert_organization"
	stepInsertAdmin         = "insert_admin"
	stepLinkAdmin           = "link_admin"
	stepProvisionCollection = "provision_collection"
	stepPatchOrganization   = "patch_organization"
	stepRenameCollection    = "rename_collection"
	stepPatchAdmin          = "patch_admin"
	stepPatchAdminEmail     = "patch_admin_email"
	stepDestroyCollection   = "destroy_collection"
	stepDeleteAdmins        = "delete_admins"
	stepDeleteOrganization  = "delete_organization"
)

// CollectionName derives the tenant collection name from an organization name.
func CollectionName(name string) string {
	return "org_" + strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// OrganizationView is the organization as returned to clients.
type OrganizationView struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	CollectionName string     `json:"collection_name"`
	AdminEmail     string     `json:"admin_email"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
	IsActive       bool       `json:"is_active"`
}

func newOrganizationView(org *models.Organization) *OrganizationView {
	v := &OrganizationView{
		ID:             org.ID,
		Name:           org.Name,
		CollectionName: org.CollectionName,
		CreatedAt:      org.CreatedAt,
		UpdatedAt:      org.UpdatedAt,
		IsActive:       org.IsActive,
	}
	if org.AdminEmail != nil {
		v.AdminEmail = *org.AdminEmail
	}
	return v
}

// CreateInput carries a validated create request
type CreateInput struct {
	Name     string
	Email    string
	Password string
}

// UpdateInput carries a validated update request. Nil fields are left unchanged.
type UpdateInput struct {
	Name     string
	Email    *string
	Password *string
}

// OrganizationService runs the organization lifecycle.
type OrganizationService struct {
	registry    store.Registry
	provisioner store.Provisioner
	hasher      *auth.PasswordHasher
	now         func() time.Time
}

// NewOrganizationService creates a new organization service
func NewOrganizationService(registry store.Registry, provisioner store.Provisioner, hasher *auth.PasswordHasher) *OrganizationService {
	return &OrganizationService{
		registry:    registry,
		provisioner: provisioner,
		hasher:      hasher,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *OrganizationService) observe(operation string, start time.Time, err error) {
	telemetry.OrgLifecycleOperationsTotal.WithLabelValues(operation, outcome(err)).Inc()
	telemetry.OrgLifecycleDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func countCollectionOp(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	telemetry.TenantCollectionOperationsTotal.WithLabelValues(operation, result).Inc()
}

// Get returns the organization named name (case-insensitive).
func (s *OrganizationService) Get(ctx context.Context, name string) (*OrganizationView, error) {
	name = strings.ToLower(name)
	org, err := s.registry.FindOrganizationByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	if org == nil {
		return nil, errorf(ErrNotFound, "Organization '%s' not found", name)
	}
	return newOrganizationView(org), nil
}

// Create registers an organization and its admin, then provisions the
// tenant collection. Provisioning runs last so a failure leaves no orphaned
// collection.
func (s *OrganizationService) Create(ctx context.Context, in CreateInput) (view *OrganizationView, err error) {
	start := time.Now()
	defer func() { s.observe("create", start, err) }()

	name := strings.ToLower(in.Name)
	email := strings.ToLower(in.Email)
	sg := &saga{operation: "create"}

	existing, err := s.registry.FindOrganizationByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up organization: %w", err)
	}
	if existing != nil {
		return nil, errorf(ErrAlreadyExists, "Organization '%s' already exists", name)
	}

	admin, err := s.registry.FindAdminByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up admin: %w", err)
	}
	if admin != nil {
		return nil, errorf(ErrAlreadyExists, "Admin with email '%s' already exists", email)
	}

	collection := CollectionName(name)
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.now()

	org := &models.Organization{
		Name:           name,
		CollectionName: collection,
		CreatedAt:      now,
		IsActive:       true,
	}
	org.ID, err = s.registry.InsertOrganization(ctx, org)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, errorf(ErrAlreadyExists, "Organization '%s' already exists", name)
		}
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}
	sg.done(stepInsertOrganization)
	slog.Info("organization record created", "organization_id", org.ID, "name", name)

	adminID, err := s.registry.InsertAdmin(ctx, &models.AdminUser{
		Email:            email,
		PasswordHash:     hash,
		OrganizationID:   org.ID,
		OrganizationName: name,
		Role:             models.RoleAdmin,
		IsActive:         true,
		CreatedAt:        now,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			err = errorf(ErrAlreadyExists, "Admin with email '%s' already exists", email)
		}
		return nil, s.logFailure(sg.fail(stepInsertAdmin, err))
	}
	sg.done(stepInsertAdmin)

	if err := s.registry.UpdateOrganization(ctx, org.ID, models.OrganizationPatch{
		AdminID:    &adminID,
		AdminEmail: &email,
	}); err != nil {
		return nil, s.logFailure(sg.fail(stepLinkAdmin, err))
	}
	sg.done(stepLinkAdmin)
	org.AdminID, org.AdminEmail = &adminID, &email

	err = s.provisioner.Provision(ctx, collection)
	countCollectionOp("provision", err)
	if err != nil {
		return nil, s.logFailure(sg.fail(stepProvisionCollection, err))
	}

	slog.Info("organization created", "organization_id", org.ID, "name", name, "collection", collection)
	return newOrganizationView(org), nil
}

// Update renames an organization and optionally changes its admin's email
// and password. The registry patch runs before the physical collection
// rename so the unique index reserves the new name first.
func (s *OrganizationService) Update(ctx context.Context, currentName string, in UpdateInput, principal *models.Principal) (view *OrganizationView, err error) {
	start := time.Now()
	defer func() { s.observe("update", start, err) }()

	org, admin, err := s.authorize(ctx, currentName, principal, "update")
	if err != nil {
		return nil, err
	}

	newName := strings.ToLower(in.Name)
	nameChanged := newName != org.Name
	if nameChanged {
		taken, err := s.registry.FindOrganizationByName(ctx, newName)
		if err != nil {
			return nil, fmt.Errorf("failed to look up organization: %w", err)
		}
		if taken != nil {
			return nil, errorf(ErrAlreadyExists, "Organization '%s' already exists", newName)
		}
	}

	var newEmail *string
	if in.Email != nil {
		email := strings.ToLower(*in.Email)
		if email != admin.Email {
			owner, err := s.registry.FindAdminByEmail(ctx, email)
			if err != nil {
				return nil, fmt.Errorf("failed to look up admin: %w", err)
			}
			if owner != nil && owner.ID != admin.ID {
				return nil, errorf(ErrAlreadyExists, "Email '%s' is already in use", email)
			}
			newEmail = &email
		}
	}

	var newHash *string
	if in.Password != nil {
		hash, err := s.hashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		newHash = &hash
	}

	sg := &saga{operation: "update"}
	newCollection := CollectionName(newName)
	collectionChanged := newCollection != org.CollectionName
	now := s.now()

	patch := models.OrganizationPatch{UpdatedAt: &now}
	if nameChanged {
		patch.Name = &newName
	}
	if collectionChanged {
		patch.CollectionName = &newCollection
	}
	if err := s.registry.UpdateOrganization(ctx, org.ID, patch); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return nil, errorf(ErrAlreadyExists, "Organization '%s' already exists", newName)
		case errors.Is(err, store.ErrNotFound):
			return nil, errorf(ErrNotFound, "Organization '%s' not found", org.Name)
		}
		return nil, fmt.Errorf("failed to update organization: %w", err)
	}
	sg.done(stepPatchOrganization)

	if collectionChanged {
		err := s.provisioner.Rename(ctx, org.CollectionName, newCollection)
		countCollectionOp("rename", err)
		if err != nil {
			return nil, s.logFailure(sg.fail(stepRenameCollection, err))
		}
		sg.done(stepRenameCollection)
		slog.Info("tenant collection renamed", "organization_id", org.ID, "from", org.CollectionName, "to", newCollection)
	}

	adminPatch := models.AdminPatch{
		Email:            newEmail,
		PasswordHash:     newHash,
		OrganizationName: &newName,
	}
	if err := s.registry.UpdateAdmin(ctx, admin.ID, adminPatch); err != nil {
		if errors.Is(err, store.ErrConflict) && newEmail != nil {
			err = errorf(ErrAlreadyExists, "Email '%s' is already in use", *newEmail)
		}
		return nil, s.logFailure(sg.fail(stepPatchAdmin, err))
	}
	sg.done(stepPatchAdmin)

	if newEmail != nil {
		if err := s.registry.UpdateOrganization(ctx, org.ID, models.OrganizationPatch{AdminEmail: newEmail}); err != nil {
			return nil, s.logFailure(sg.fail(stepPatchAdminEmail, err))
		}
		sg.done(stepPatchAdminEmail)
	}

	updated, err := s.registry.FindOrganizationByID(ctx, org.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload organization: %w", err)
	}
	if updated == nil {
		return nil, errorf(ErrNotFound, "Organization '%s' not found", newName)
	}

	slog.Info("organization updated", "organization_id", org.ID, "name", newName,
		"renamed", nameChanged, "email_changed", newEmail != nil, "password_changed", newHash != nil)
	return newOrganizationView(updated), nil
}

// Delete drops the tenant collection, then the admins, then the
// organization record. There is no undo once the collection is dropped.
func (s *OrganizationService) Delete(ctx context.Context, name string, principal *models.Principal) (err error) {
	start := time.Now()
	defer func() { s.observe("delete", start, err) }()

	org, _, err := s.authorize(ctx, name, principal, "delete")
	if err != nil {
		return err
	}

	sg := &saga{operation: "delete"}

	err = s.provisioner.Destroy(ctx, org.CollectionName)
	countCollectionOp("destroy", err)
	switch {
	case err == nil:
		sg.done(stepDestroyCollection)
	case errors.Is(err, store.ErrCollectionNotFound):
		slog.Warn("tenant collection already absent, continuing delete",
			"organization_id", org.ID, "collection", org.CollectionName)
		sg.done(stepDestroyCollection)
	default:
		return fmt.Errorf("failed to drop tenant collection: %w", err)
	}

	removed, err := s.registry.DeleteAdminsByOrganization(ctx, org.ID)
	if err != nil {
		return s.logFailure(sg.fail(stepDeleteAdmins, err))
	}
	sg.done(stepDeleteAdmins)

	if err := s.registry.DeleteOrganization(ctx, org.ID); err != nil {
		return s.logFailure(sg.fail(stepDeleteOrganization, err))
	}

	slog.Info("organization deleted", "organization_id", org.ID, "name", org.Name,
		"collection", org.CollectionName, "admins_removed", removed)
	return nil
}

// authorize loads the organization named name and checks that the principal
// is one of its admins.
func (s *OrganizationService) authorize(ctx context.Context, name string, principal *models.Principal, action string) (*models.Organization, *models.AdminUser, error) {
	name = strings.ToLower(name)
	org, err := s.registry.FindOrganizationByName(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up organization: %w", err)
	}
	if org == nil {
		return nil, nil, errorf(ErrNotFound, "Organization '%s' not found", name)
	}

	var admin *models.AdminUser
	if principal != nil {
		admin, err = s.registry.FindAdminByID(ctx, principal.AdminID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to look up admin: %w", err)
		}
	}
	if admin == nil || admin.OrganizationID != org.ID {
		slog.Warn("organization access denied", "organization_id", org.ID, "action", action)
		return nil, nil, errorf(ErrUnauthorized, "You are not authorized to %s this organization", action)
	}
	return org, admin, nil
}

func (s *OrganizationService) logFailure(err error) error {
	var sagaErr *SagaError
	if errors.As(err, &sagaErr) {
		slog.Error("organization lifecycle step failed after partial commit",
			"operation", sagaErr.Operation, "step", sagaErr.Step,
			"completed", sagaErr.Completed, "error", sagaErr.Err)
	}
	return err
}

// hashPassword hashes before any store write, so a rejected password mutates nothing.
func (s *OrganizationService) hashPassword(password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return "", &Error{
			Kind:    ErrInvalidInput,
			Message: fmt.Sprintf("Password must be at most %d bytes", auth.MaxPasswordBytes),
			Field:   "password",
		}
	}
	return hash, err
}
