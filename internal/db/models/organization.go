// Package models - organization.go defines the Organization registry record: one
// row per tenant, pointing at the tenant's dedicated collection and its admin.
package models

import "time"

// Organization represents a tenant registered in the master store
type Organization struct {
	ID             string     `db:"id"`
	Name           string     `db:"name"`            // canonical lower-case name, unique
	CollectionName string     `db:"collection_name"` // derived from Name, unique
	AdminID        *string    `db:"admin_id"`
	AdminEmail     *string    `db:"admin_email"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      *time.Time `db:"updated_at"`
	IsActive       bool       `db:"is_active"`
}

// OrganizationPatch lists the registry fields an update may change. Nil fields
// are left untouched.
type OrganizationPatch struct {
	Name           *string
	CollectionName *string
	AdminID        *string
	AdminEmail     *string
	UpdatedAt      *time.Time
}

// IsEmpty reports whether the patch would change nothing.
func (p OrganizationPatch) IsEmpty() bool {
	return p.Name == nil && p.CollectionName == nil && p.AdminID == nil &&
		p.AdminEmail == nil && p.UpdatedAt == nil
}

// Apply copies the non-nil patch fields onto org.
func (p OrganizationPatch) Apply(org *Organization) {
	if p.Name != nil {
		org.Name = *p.Name
	}
	if p.CollectionName != nil {
		org.CollectionName = *p.CollectionName
	}
	if p.AdminID != nil {
		org.AdminID = p.AdminID
	}
	if p.AdminEmail != nil {
		org.AdminEmail = p.AdminEmail
	}
	if p.UpdatedAt != nil {
		org.UpdatedAt = p.UpdatedAt
	}
}
