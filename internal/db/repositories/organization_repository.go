// organization_repository.go implements the organization half of store.Registry
// on the organizations table.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/org-management/org-service/internal/db/models"
	"github.com/org-management/org-service/internal/store"
)

const organizationColumns = `id, name, collection_name, admin_id, admin_email, created_at, updated_at, is_active`

// psql builds PostgreSQL statements with $n placeholders
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// OrganizationRepository handles database operations for organizations
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// FindOrganizationByName retrieves an organization by its canonical name
func (r *OrganizationRepository) FindOrganizationByName(ctx context.Context, name string) (*models.Organization, error) {
	return r.getOne(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE name = $1`, name)
}

// FindOrganizationByID retrieves an organization by ID
func (r *OrganizationRepository) FindOrganizationByID(ctx context.Context, id string) (*models.Organization, error) {
	return r.getOne(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id)
}

// ListOrganizations retrieves all organizations ordered by name
func (r *OrganizationRepository) ListOrganizations(ctx context.Context) ([]*models.Organization, error) {
	var orgs []*models.Organization
	if err := r.db.SelectContext(ctx, &orgs, `SELECT `+organizationColumns+` FROM organizations ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return orgs, nil
}

func (r *OrganizationRepository) getOne(ctx context.Context, query string, arg any) (*models.Organization, error) {
	var org models.Organization
	err := r.db.GetContext(ctx, &org, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

// InsertOrganization creates a new organization and returns its generated ID
func (r *OrganizationRepository) InsertOrganization(ctx context.Context, org *models.Organization) (string, error) {
	query := `
		INSERT INTO organizations (name, collection_name, admin_id, admin_email, created_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id string
	err := r.db.QueryRowxContext(ctx, query,
		org.Name, org.CollectionName, org.AdminID, org.AdminEmail, org.CreatedAt, org.IsActive,
	).Scan(&id)
	if err != nil {
		return "", mapWriteError("create organization", err)
	}
	return id, nil
}

// UpdateOrganization writes the non-nil fields of patch
func (r *OrganizationRepository) UpdateOrganization(ctx context.Context, id string, patch models.OrganizationPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	b := psql.Update("organizations").Where(sq.Eq{"id": id})
	if patch.Name != nil {
		b = b.Set("name", *patch.Name)
	}
	if patch.CollectionName != nil {
		b = b.Set("collection_name", *patch.CollectionName)
	}
	if patch.AdminID != nil {
		b = b.Set("admin_id", *patch.AdminID)
	}
	if patch.AdminEmail != nil {
		b = b.Set("admin_email", *patch.AdminEmail)
	}
	if patch.UpdatedAt != nil {
		b = b.Set("updated_at", *patch.UpdatedAt)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build organization update: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapWriteError("update organization", err)
	}
	return requireAffected(result, "organization")
}

// DeleteOrganization deletes an organization row
func (r *OrganizationRepository) DeleteOrganization(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	return requireAffected(result, "organization")
}

func requireAffected(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}
