// admin_repository.go implements the admin half of store.Registry on the
// admin_users table.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/org-management/org-service/internal/db/models"
)

const adminColumns = `id, email, password_hash, organization_id, organization_name, role, is_active, created_at`

// AdminRepository handles database operations for admin users
type AdminRepository struct {
	db *sqlx.DB
}

// NewAdminRepository creates a new admin repository
func NewAdminRepository(db *sqlx.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// FindAdminByEmail retrieves an admin by email
func (r *AdminRepository) FindAdminByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	return r.getOne(ctx, `SELECT `+adminColumns+` FROM admin_users WHERE email = $1`, email)
}

// FindAdminByID retrieves an admin by ID
func (r *AdminRepository) FindAdminByID(ctx context.Context, id string) (*models.AdminUser, error) {
	return r.getOne(ctx, `SELECT `+adminColumns+` FROM admin_users WHERE id = $1`, id)
}

func (r *AdminRepository) getOne(ctx context.Context, query string, arg any) (*models.AdminUser, error) {
	var admin models.AdminUser
	if err := r.db.GetContext(ctx, &admin, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return &admin, nil
}

// InsertAdmin creates a new admin user and returns its generated ID
func (r *AdminRepository) InsertAdmin(ctx context.Context, admin *models.AdminUser) (string, error) {
	query := `
		INSERT INTO admin_users (email, password_hash, organization_id, organization_name, role, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var id string
	err := r.db.QueryRowxContext(ctx, query,
		admin.Email, admin.PasswordHash, admin.OrganizationID, admin.OrganizationName,
		admin.Role, admin.IsActive, admin.CreatedAt,
	).Scan(&id)
	if err != nil {
		return "", mapWriteError("create admin", err)
	}
	return id, nil
}

// UpdateAdmin writes the non-nil fields of patch
func (r *AdminRepository) UpdateAdmin(ctx context.Context, id string, patch models.AdminPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	b := psql.Update("admin_users").Where(sq.Eq{"id": id})
	if patch.Email != nil {
		b = b.Set("email", *patch.Email)
	}
	if patch.PasswordHash != nil {
		b = b.Set("password_hash", *patch.PasswordHash)
	}
	if patch.OrganizationName != nil {
		b = b.Set("organization_name", *patch.OrganizationName)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build admin update: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapWriteError("update admin", err)
	}
	return requireAffected(result, "admin")
}

// DeleteAdminsByOrganization deletes every admin bound to an organization
func (r *AdminRepository) DeleteAdminsByOrganization(ctx context.Context, orgID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM admin_users WHERE organization_id = $1`, orgID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete admins: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}
