// Package models - admin_user.go defines the AdminUser account bound to exactly one
// organization, and the Principal derived from a verified access token.
package models

import "time"

// RoleAdmin is the only role issued today.
const RoleAdmin = "admin"

// AdminUser is the login identity that manages one organization
type AdminUser struct {
	ID               string    `db:"id"`
	Email            string    `db:"email"` // globally unique
	PasswordHash     string    `db:"password_hash"`
	OrganizationID   string    `db:"organization_id"`
	OrganizationName string    `db:"organization_name"` // denormalized copy of Organization.Name
	Role             string    `db:"role"`
	IsActive         bool      `db:"is_active"`
	CreatedAt        time.Time `db:"created_at"`
}

// AdminPatch lists the admin fields an update may change. Nil fields are left untouched.
type AdminPatch struct {
	Email            *string
	PasswordHash     *string
	OrganizationName *string
}

// IsEmpty reports whether the patch would change nothing.
func (p AdminPatch) IsEmpty() bool {
	return p.Email == nil && p.PasswordHash == nil && p.OrganizationName == nil
}

// Apply copies the non-nil patch fields onto admin.
func (p AdminPatch) Apply(admin *AdminUser) {
	if p.Email != nil {
		admin.Email = *p.Email
	}
	if p.PasswordHash != nil {
		admin.PasswordHash = *p.PasswordHash
	}
	if p.OrganizationName != nil {
		admin.OrganizationName = *p.OrganizationName
	}
}

// Principal is the authenticated identity attached to a request. It is built
// from token claims after the referenced admin has been re-checked.
type Principal struct {
	AdminID          string
	Email            string
	OrganizationID   string
	OrganizationName string
	Role             string
}
