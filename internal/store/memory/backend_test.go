package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/org-management/org-service/internal/db/models"
	"github.com/org-management/org-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrg(name string) *models.Organization {
	return &models.Organization{
		Name:           name,
		CollectionName: "org_" + name,
		CreatedAt:      time.Now().UTC(),
		IsActive:       true,
	}
}

// ---------------------------------------------------------------------------
// Organizations
// ---------------------------------------------------------------------------

func TestInsertOrganization_AssignsIDAndCopies(t *testing.T) {
	b := New()
	ctx := context.Background()

	org := newOrg("acme")
	id, err := b.InsertOrganization(ctx, org)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Empty(t, org.ID, "caller's struct must not be mutated")

	got, err := b.FindOrganizationByName(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "org_acme", got.CollectionName)

	byID, err := b.FindOrganizationByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "acme", byID.Name)
}

func TestInsertOrganization_DuplicateNameConflicts(t *testing.T) {
	b := New()
	ctx := context.Background()

	_, err := b.InsertOrganization(ctx, newOrg("acme"))
	require.NoError(t, err)

	_, err = b.InsertOrganization(ctx, newOrg("acme"))
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestInsertOrganization_DuplicateCollectionConflicts(t *testing.T) {
	b := New()
	ctx := context.Background()

	_, err := b.InsertOrganization(ctx, newOrg("acme"))
	require.NoError(t, err)

	other := newOrg("other")
	other.CollectionName = "org_acme"
	_, err = b.InsertOrganization(ctx, other)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestInsertOrganization_ConcurrentSameNameOnlyOneWins(t *testing.T) {
	b := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.InsertOrganization(ctx, newOrg("race")); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestFindOrganization_Missing(t *testing.T) {
	b := New()
	got, err := b.FindOrganizationByName(context.Background(), "ghost")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateOrganization(t *testing.T) {
	b := New()
	ctx := context.Background()
	id, err := b.InsertOrganization(ctx, newOrg("acme"))
	require.NoError(t, err)
	_, err = b.InsertOrganization(ctx, newOrg("taken"))
	require.NoError(t, err)

	t.Run("applies patch", func(t *testing.T) {
		name, coll := "acme2", "org_acme2"
		now := time.Now().UTC()
		require.NoError(t, b.UpdateOrganization(ctx, id, models.OrganizationPatch{Name: &name, CollectionName: &coll, UpdatedAt: &now}))

		got, err := b.FindOrganizationByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "acme2", got.Name)
		assert.Equal(t, "org_acme2", got.CollectionName)
		require.NotNil(t, got.UpdatedAt)
	})

	t.Run("conflict leaves record untouched", func(t *testing.T) {
		name := "taken"
		err := b.UpdateOrganization(ctx, id, models.OrganizationPatch{Name: &name})
		assert.ErrorIs(t, err, store.ErrConflict)

		got, _ := b.FindOrganizationByID(ctx, id)
		assert.Equal(t, "acme2", got.Name)
	})

	t.Run("unknown id", func(t *testing.T) {
		name := "x"
		err := b.UpdateOrganization(ctx, "nope", models.OrganizationPatch{Name: &name})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestDeleteOrganization(t *testing.T) {
	b := New()
	ctx := context.Background()
	id, err := b.InsertOrganization(ctx, newOrg("acme"))
	require.NoError(t, err)

	require.NoError(t, b.DeleteOrganization(ctx, id))
	assert.ErrorIs(t, b.DeleteOrganization(ctx, id), store.ErrNotFound)

	// the name is free again
	_, err = b.InsertOrganization(ctx, newOrg("acme"))
	assert.NoError(t, err)
}

// ---------------------------------------------------------------------------
// Admins
// ---------------------------------------------------------------------------

func TestAdmins(t *testing.T) {
	b := New()
	ctx := context.Background()

	id, err := b.InsertAdmin(ctx, &models.AdminUser{Email: "a@acme.io", OrganizationID: "o1", Role: models.RoleAdmin, IsActive: true})
	require.NoError(t, err)
	_, err = b.InsertAdmin(ctx, &models.AdminUser{Email: "b@acme.io", OrganizationID: "o1"})
	require.NoError(t, err)
	_, err = b.InsertAdmin(ctx, &models.AdminUser{Email: "c@other.io", OrganizationID: "o2"})
	require.NoError(t, err)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := b.InsertAdmin(ctx, &models.AdminUser{Email: "a@acme.io", OrganizationID: "o3"})
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("find by email and id", func(t *testing.T) {
		byEmail, err := b.FindAdminByEmail(ctx, "a@acme.io")
		require.NoError(t, err)
		require.NotNil(t, byEmail)
		assert.Equal(t, id, byEmail.ID)

		byID, err := b.FindAdminByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "a@acme.io", byID.Email)

		missing, err := b.FindAdminByEmail(ctx, "nobody@acme.io")
		assert.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("update email conflict", func(t *testing.T) {
		email := "c@other.io"
		assert.ErrorIs(t, b.UpdateAdmin(ctx, id, models.AdminPatch{Email: &email}), store.ErrConflict)
	})

	t.Run("update own email to itself is allowed", func(t *testing.T) {
		email := "a@acme.io"
		assert.NoError(t, b.UpdateAdmin(ctx, id, models.AdminPatch{Email: &email}))
	})

	t.Run("update unknown id", func(t *testing.T) {
		name := "x"
		assert.ErrorIs(t, b.UpdateAdmin(ctx, "nope", models.AdminPatch{OrganizationName: &name}), store.ErrNotFound)
	})

	t.Run("delete by organization", func(t *testing.T) {
		n, err := b.DeleteAdminsByOrganization(ctx, "o1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		left, _ := b.FindAdminByEmail(ctx, "c@other.io")
		assert.NotNil(t, left)
	})
}

// ---------------------------------------------------------------------------
// Tenant collections
// ---------------------------------------------------------------------------

func TestProvision_WritesMarkerAndIndexes(t *testing.T) {
	b := New()
	ctx := context.Background()

	require.NoError(t, b.Provision(ctx, "org_acme"))

	c := b.Collection("org_acme")
	require.NotNil(t, c)
	require.Len(t, c.Documents, 1)
	assert.Equal(t, "schema_metadata", c.Documents[0]["_type"])
	assert.ElementsMatch(t, []string{"_type", "created_at"}, c.Indexes)

	err := b.Provision(ctx, "org_acme")
	var pe *store.ProvisionError
	require.True(t, errors.As(err, &pe))
	assert.ErrorIs(t, err, store.ErrCollectionExists)
}

func TestRename(t *testing.T) {
	b := New()
	ctx := context.Background()
	require.NoError(t, b.Provision(ctx, "org_a"))
	require.NoError(t, b.Provision(ctx, "org_b"))

	err := b.Rename(ctx, "org_a", "org_b")
	assert.ErrorIs(t, err, store.ErrCollectionExists)

	err = b.Rename(ctx, "org_missing", "org_c")
	assert.ErrorIs(t, err, store.ErrCollectionNotFound)
	var re *store.RenameError
	assert.True(t, errors.As(err, &re))

	require.NoError(t, b.Rename(ctx, "org_a", "org_c"))
	ok, _ := b.Exists(ctx, "org_a")
	assert.False(t, ok)
	ok, _ = b.Exists(ctx, "org_c")
	assert.True(t, ok)
	assert.Len(t, b.Collection("org_c").Documents, 1, "documents move with the collection")
}

func TestDestroy(t *testing.T) {
	b := New()
	ctx := context.Background()
	require.NoError(t, b.Provision(ctx, "org_acme"))

	require.NoError(t, b.Destroy(ctx, "org_acme"))
	assert.Nil(t, b.Collection("org_acme"))
	assert.ErrorIs(t, b.Destroy(ctx, "org_acme"), store.ErrCollectionNotFound)
}

func TestListings_Sorted(t *testing.T) {
	b := New()
	ctx := context.Background()
	for _, name := range []string{"globex", "acme", "initech"} {
		_, err := b.InsertOrganization(ctx, newOrg(name))
		require.NoError(t, err)
		require.NoError(t, b.Provision(ctx, "org_"+name))
	}

	orgs, err := b.ListOrganizations(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 3)
	assert.Equal(t, []string{"acme", "globex", "initech"}, []string{orgs[0].Name, orgs[1].Name, orgs[2].Name})

	orgs[0].Name = "mutated"
	again, _ := b.ListOrganizations(ctx)
	assert.Equal(t, "acme", again[0].Name, "listing returns copies")

	names, err := b.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"org_acme", "org_globex", "org_initech"}, names)
}
