// Package store defines the persistence contracts of the organization service:
// the Registry holding organization and admin records, and the Provisioner
// managing each tenant's dedicated collection.
//
// Backends live in sub-packages and register themselves with the factory from
// an init() function:
//
//	func init() {
//	    store.Register("mybackend", func(ctx context.Context, cfg *config.Config) (store.Backend, error) {
//	        return NewBackend(ctx, cfg)
//	    })
//	}
//
// cmd/server blank-imports every backend so selecting one is a config change only.
package store

import (
	"context"

	"github.com/org-management/org-service/internal/db/models"
)

// Registry is the master store of organization and admin records.
//
// Find methods return (nil, nil) when nothing matches. Insert and Update
// return ErrConflict when a unique index (organization name, collection name,
// admin email) rejects the write; the index, not a prior lookup, is what
// makes uniqueness hold under concurrency.
type Registry interface {
	FindOrganizationByName(ctx context.Context, name string) (*models.Organization, error)
	FindOrganizationByID(ctx context.Context, id string) (*models.Organization, error)
	// ListOrganizations returns every organization ordered by name.
	ListOrganizations(ctx context.Context) ([]*models.Organization, error)
	InsertOrganization(ctx context.Context, org *models.Organization) (string, error)
	// UpdateOrganization returns ErrNotFound when no record has the id.
	UpdateOrganization(ctx context.Context, id string, patch models.OrganizationPatch) error
	// DeleteOrganization returns ErrNotFound when no record has the id.
	DeleteOrganization(ctx context.Context, id string) error

	FindAdminByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	FindAdminByID(ctx context.Context, id string) (*models.AdminUser, error)
	InsertAdmin(ctx context.Context, admin *models.AdminUser) (string, error)
	// UpdateAdmin returns ErrNotFound when no record has the id.
	UpdateAdmin(ctx context.Context, id string, patch models.AdminPatch) error
	DeleteAdminsByOrganization(ctx context.Context, orgID string) (int64, error)
}

// Provisioner manages tenant collections. Every call is atomic at the store
// level; sequencing several calls is the caller's business.
type Provisioner interface {
	// Provision creates the collection, writes the bootstrap marker document
	// and creates its indexes. Fails with a *ProvisionError wrapping
	// ErrCollectionExists when the collection is already there.
	Provision(ctx context.Context, collection string) error
	// Rename fails with a *RenameError wrapping ErrCollectionNotFound or
	// ErrCollectionExists.
	Rename(ctx context.Context, from, to string) error
	// Destroy drops the collection and all of its documents. Fails with a
	// *ProvisionError wrapping ErrCollectionNotFound when it does not exist.
	Destroy(ctx context.Context, collection string) error
	Exists(ctx context.Context, collection string) (bool, error)
	// ListCollections returns the names of all tenant collections, sorted.
	ListCollections(ctx context.Context) ([]string, error)
}

// Backend is a complete storage implementation.
type Backend interface {
	Registry
	Provisioner
	Ping(ctx context.Context) error
	Close() error
}

// Bootstrap marker written into every freshly provisioned collection.
const (
	MarkerSchemaVersion = "1.0"
	MarkerCreatedAt     = "initialization"
	MarkerType          = "schema_metadata"
)

// BootstrapDocument returns the marker document for a new tenant collection.
func BootstrapDocument() map[string]any {
	return map[string]any{
		"_schema_version": MarkerSchemaVersion,
		"_created_at":     MarkerCreatedAt,
		"_type":           MarkerType,
	}
}

// IndexedFields are the document fields every tenant collection is indexed on.
var IndexedFields = []string{"_type", "created_at"}
