package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/org-management/org-service/internal/db/models"
	"github.com/org-management/org-service/internal/store"
)

var adminCols = []string{"id", "email", "password_hash", "organization_id", "organization_name", "role", "is_active", "created_at"}

func sampleAdminRow() *sqlmock.Rows {
	return sqlmock.NewRows(adminCols).
		AddRow("admin-1", "admin@acme.io", "$2a$04$hash", "org-1", "acme", "admin", true, time.Now())
}

func newAdminRepo(t *testing.T) (*AdminRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewAdminRepository(db), mock
}

// ---------------------------------------------------------------------------
// FindAdminByEmail / FindAdminByID
// ---------------------------------------------------------------------------

func TestFindAdminByEmail_Found(t *testing.T) {
	repo, mock := newAdminRepo(t)
	mock.ExpectQuery("SELECT.*FROM admin_users WHERE email").
		WithArgs("admin@acme.io").
		WillReturnRows(sampleAdminRow())

	admin, err := repo.FindAdminByEmail(context.Background(), "admin@acme.io")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if admin == nil || admin.OrganizationID != "org-1" || !admin.IsActive {
		t.Errorf("admin = %+v", admin)
	}
}

func TestFindAdminByID_NotFound(t *testing.T) {
	repo, mock := newAdminRepo(t)
	mock.ExpectQuery("SELECT.*FROM admin_users WHERE id").
		WithArgs("admin-9").
		WillReturnRows(sqlmock.NewRows(adminCols))

	admin, err := repo.FindAdminByID(context.Background(), "admin-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if admin != nil {
		t.Error("expected nil, got non-nil")
	}
}

// ---------------------------------------------------------------------------
// InsertAdmin
// ---------------------------------------------------------------------------

func TestInsertAdmin(t *testing.T) {
	now := time.Now().UTC()
	admin := &models.AdminUser{
		Email: "admin@acme.io", PasswordHash: "hash", OrganizationID: "org-1",
		OrganizationName: "acme", Role: models.RoleAdmin, IsActive: true, CreatedAt: now,
	}

	t.Run("success", func(t *testing.T) {
		repo, mock := newAdminRepo(t)
		mock.ExpectQuery("INSERT INTO admin_users").
			WithArgs("admin@acme.io", "hash", "org-1", "acme", "admin", true, now).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("admin-1"))

		id, err := repo.InsertAdmin(context.Background(), admin)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "admin-1" {
			t.Errorf("id = %s, want admin-1", id)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		repo, mock := newAdminRepo(t)
		mock.ExpectQuery("INSERT INTO admin_users").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "admin_users_email_key"})

		if _, err := repo.InsertAdmin(context.Background(), admin); !errors.Is(err, store.ErrConflict) {
			t.Errorf("error = %v, want store.ErrConflict", err)
		}
	})

	t.Run("organization gone", func(t *testing.T) {
		repo, mock := newAdminRepo(t)
		mock.ExpectQuery("INSERT INTO admin_users").
			WillReturnError(&pq.Error{Code: "23503"})

		if _, err := repo.InsertAdmin(context.Background(), admin); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("error = %v, want store.ErrNotFound", err)
		}
	})
}

// ---------------------------------------------------------------------------
// UpdateAdmin
// ---------------------------------------------------------------------------

func TestUpdateAdmin_AllFields(t *testing.T) {
	repo, mock := newAdminRepo(t)
	email, hash, org := "new@acme.io", "newhash", "acme2"

	mock.ExpectExec(`UPDATE admin_users SET email = \$1, password_hash = \$2, organization_name = \$3 WHERE id = \$4`).
		WithArgs("new@acme.io", "newhash", "acme2", "admin-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateAdmin(context.Background(), "admin-1", models.AdminPatch{Email: &email, PasswordHash: &hash, OrganizationName: &org})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateAdmin_EmailConflict(t *testing.T) {
	repo, mock := newAdminRepo(t)
	email := "taken@acme.io"
	mock.ExpectExec("UPDATE admin_users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "admin_users_email_key"})

	err := repo.UpdateAdmin(context.Background(), "admin-1", models.AdminPatch{Email: &email})
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("error = %v, want store.ErrConflict", err)
	}
}

func TestUpdateAdmin_NoRows(t *testing.T) {
	repo, mock := newAdminRepo(t)
	org := "acme2"
	mock.ExpectExec("UPDATE admin_users").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateAdmin(context.Background(), "admin-9", models.AdminPatch{OrganizationName: &org})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want store.ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// DeleteAdminsByOrganization
// ---------------------------------------------------------------------------

func TestDeleteAdminsByOrganization(t *testing.T) {
	repo, mock := newAdminRepo(t)
	mock.ExpectExec("DELETE FROM admin_users WHERE organization_id").
		WithArgs("org-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteAdminsByOrganization(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
}
