// Package memory implements store.Backend in process memory. Data is lost on
// restart; the backend serves tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/org-management/org-service/internal/config"
	"github.com/org-management/org-service/internal/db/models"
	"github.com/org-management/org-service/internal/store"
)

func init() {
	store.Register(config.DriverMemory, func(_ context.Context, _ *config.Config) (store.Backend, error) {
		return New(), nil
	})
}

// Collection is the in-memory form of a tenant collection.
type Collection struct {
	Documents []map[string]any
	Indexes   []string
	CreatedAt time.Time
}

// Backend implements store.Backend with mutex-guarded maps. The unique indexes
// of the persistent backends (organization name, collection name, admin email)
// are enforced on every write.
type Backend struct {
	mu sync.RWMutex

	organizations map[string]*models.Organization // id -> Organization
	admins        map[string]*models.AdminUser    // id -> AdminUser
	collections   map[string]*Collection          // name -> Collection
}

var _ store.Backend = (*Backend)(nil)

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		organizations: make(map[string]*models.Organization),
		admins:        make(map[string]*models.AdminUser),
		collections:   make(map[string]*Collection),
	}
}

// Ping always succeeds.
func (b *Backend) Ping(context.Context) error { return nil }

// Close is a no-op.
func (b *Backend) Close() error { return nil }

// ---------------------------------------------------------------------------
// Organizations
// ---------------------------------------------------------------------------

// FindOrganizationByName returns the organization with the given name, or nil.
func (b *Backend) FindOrganizationByName(_ context.Context, name string) (*models.Organization, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, org := range b.organizations {
		if org.Name == name {
			return cloneOrg(org), nil
		}
	}
	return nil, nil
}

// FindOrganizationByID returns the organization with the given id, or nil.
func (b *Backend) FindOrganizationByID(_ context.Context, id string) (*models.Organization, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if org, ok := b.organizations[id]; ok {
		return cloneOrg(org), nil
	}
	return nil, nil
}

// ListOrganizations returns copies of all organizations ordered by name.
func (b *Backend) ListOrganizations(_ context.Context) ([]*models.Organization, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*models.Organization, 0, len(b.organizations))
	for _, org := range b.organizations {
		out = append(out, cloneOrg(org))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// InsertOrganization stores a copy of org under a new id.
func (b *Backend) InsertOrganization(_ context.Context, org *models.Organization) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.orgConflict("", org.Name, org.CollectionName) {
		return "", store.ErrConflict
	}

	clone := cloneOrg(org)
	clone.ID = uuid.NewString()
	b.organizations[clone.ID] = clone
	return clone.ID, nil
}

// UpdateOrganization applies patch to the organization with the given id.
func (b *Backend) UpdateOrganization(_ context.Context, id string, patch models.OrganizationPatch) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	org, ok := b.organizations[id]
	if !ok {
		return store.ErrNotFound
	}

	updated := cloneOrg(org)
	patch.Apply(updated)
	if b.orgConflict(id, updated.Name, updated.CollectionName) {
		return store.ErrConflict
	}
	b.organizations[id] = updated
	return nil
}

// DeleteOrganization removes the organization with the given id.
func (b *Backend) DeleteOrganization(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.organizations[id]; !ok {
		return store.ErrNotFound
	}
	delete(b.organizations, id)
	return nil
}

// orgConflict reports whether another organization already holds name or collection.
func (b *Backend) orgConflict(selfID, name, collection string) bool {
	for id, other := range b.organizations {
		if id == selfID {
			continue
		}
		if other.Name == name || other.CollectionName == collection {
			return true
		}
	}
	return false
}

func cloneOrg(org *models.Organization) *models.Organization {
	clone := *org
	if org.AdminID != nil {
		v := *org.AdminID
		clone.AdminID = &v
	}
	if org.AdminEmail != nil {
		v := *org.AdminEmail
		clone.AdminEmail = &v
	}
	if org.UpdatedAt != nil {
		v := *org.UpdatedAt
		clone.UpdatedAt = &v
	}
	return &clone
}

// ---------------------------------------------------------------------------
// Admins
// ---------------------------------------------------------------------------

// FindAdminByEmail returns the admin with the given email, or nil.
func (b *Backend) FindAdminByEmail(_ context.Context, email string) (*models.AdminUser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, admin := range b.admins {
		if admin.Email == email {
			clone := *admin
			return &clone, nil
		}
	}
	return nil, nil
}

// FindAdminByID returns the admin with the given id, or nil.
func (b *Backend) FindAdminByID(_ context.Context, id string) (*models.AdminUser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if admin, ok := b.admins[id]; ok {
		clone := *admin
		return &clone, nil
	}
	return nil, nil
}

// InsertAdmin stores a copy of admin under a new id.
func (b *Backend) InsertAdmin(_ context.Context, admin *models.AdminUser) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.emailTaken("", admin.Email) {
		return "", store.ErrConflict
	}

	clone := *admin
	clone.ID = uuid.NewString()
	b.admins[clone.ID] = &clone
	return clone.ID, nil
}

// UpdateAdmin applies patch to the admin with the given id.
func (b *Backend) UpdateAdmin(_ context.Context, id string, patch models.AdminPatch) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	admin, ok := b.admins[id]
	if !ok {
		return store.ErrNotFound
	}
	if patch.Email != nil && b.emailTaken(id, *patch.Email) {
		return store.ErrConflict
	}

	updated := *admin
	patch.Apply(&updated)
	b.admins[id] = &updated
	return nil
}

// DeleteAdminsByOrganization removes every admin bound to orgID.
func (b *Backend) DeleteAdminsByOrganization(_ context.Context, orgID string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var n int64
	for id, admin := range b.admins {
		if admin.OrganizationID == orgID {
			delete(b.admins, id)
			n++
		}
	}
	return n, nil
}

func (b *Backend) emailTaken(selfID, email string) bool {
	for id, other := range b.admins {
		if id != selfID && other.Email == email {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Tenant collections
// ---------------------------------------------------------------------------

// Provision creates the collection with its bootstrap marker and indexes.
func (b *Backend) Provision(_ context.Context, collection string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.collections[collection]; ok {
		return &store.ProvisionError{Op: "provision", Collection: collection, Err: store.ErrCollectionExists}
	}
	b.collections[collection] = &Collection{
		Documents: []map[string]any{store.BootstrapDocument()},
		Indexes:   append([]string(nil), store.IndexedFields...),
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// Rename moves the collection to a new name.
func (b *Backend) Rename(_ context.Context, from, to string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.collections[from]
	if !ok {
		return &store.RenameError{From: from, To: to, Err: store.ErrCollectionNotFound}
	}
	if _, taken := b.collections[to]; taken {
		return &store.RenameError{From: from, To: to, Err: store.ErrCollectionExists}
	}
	delete(b.collections, from)
	b.collections[to] = c
	return nil
}

// Destroy drops the collection.
func (b *Backend) Destroy(_ context.Context, collection string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.collections[collection]; !ok {
		return &store.ProvisionError{Op: "destroy", Collection: collection, Err: store.ErrCollectionNotFound}
	}
	delete(b.collections, collection)
	return nil
}

// Exists reports whether the collection exists.
func (b *Backend) Exists(_ context.Context, collection string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.collections[collection]
	return ok, nil
}

// ListCollections returns the sorted collection names.
func (b *Backend) ListCollections(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.collections))
	for name := range b.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Collection returns a snapshot of the named collection, or nil.
func (b *Backend) Collection(name string) *Collection {
	b.mu.RLock()
	defer b.mu.RUnlock()

	c, ok := b.collections[name]
	if !ok {
		return nil
	}
	snapshot := *c
	snapshot.Documents = append([]map[string]any(nil), c.Documents...)
	snapshot.Indexes = append([]string(nil), c.Indexes...)
	return &snapshot
}
