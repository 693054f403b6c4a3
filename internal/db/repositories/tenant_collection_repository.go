// tenant_collection_repository.go implements store.Provisioner with one table per
// tenant inside a dedicated schema. Each table keeps documents as JSONB and
// lifts the indexed fields into columns.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/org-management/org-service/internal/store"
)

// TenantCollectionRepository manages tenant tables in a single schema
type TenantCollectionRepository struct {
	db     *sqlx.DB
	schema string
}

// NewTenantCollectionRepository creates a repository managing tables in schema
func NewTenantCollectionRepository(db *sqlx.DB, schema string) *TenantCollectionRepository {
	return &TenantCollectionRepository{db: db, schema: schema}
}

// table returns the schema-qualified, quoted table name for a collection
func (r *TenantCollectionRepository) table(collection string) string {
	return pq.QuoteIdentifier(r.schema) + "." + pq.QuoteIdentifier(collection)
}

// Provision creates the tenant table, inserts the bootstrap marker and creates
// the field indexes in one transaction.
func (r *TenantCollectionRepository) Provision(ctx context.Context, collection string) error {
	fail := func(err error) error {
		return &store.ProvisionError{Op: "provision", Collection: collection, Err: err}
	}

	marker, err := json.Marshal(store.BootstrapDocument())
	if err != nil {
		return fail(err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fail(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback() // nolint:errcheck

	table := r.table(collection)
	create := `CREATE TABLE ` + table + ` (
		id BIGSERIAL PRIMARY KEY,
		_type TEXT,
		created_at TIMESTAMPTZ,
		document JSONB NOT NULL
	)`
	if _, err := tx.ExecContext(ctx, create); err != nil {
		if pgCode(err) == pgerrcode.DuplicateTable {
			return fail(store.ErrCollectionExists)
		}
		return fail(fmt.Errorf("failed to create table: %w", err))
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO `+table+` (_type, document) VALUES ($1, $2)`,
		store.MarkerType, marker,
	); err != nil {
		return fail(fmt.Errorf("failed to insert bootstrap document: %w", err))
	}

	// Index names are left to PostgreSQL so they never collide after a rename.
	for _, field := range store.IndexedFields {
		if _, err := tx.ExecContext(ctx, `CREATE INDEX ON `+table+` (`+pq.QuoteIdentifier(field)+`)`); err != nil {
			return fail(fmt.Errorf("failed to create index on %s: %w", field, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fail(fmt.Errorf("failed to commit: %w", err))
	}
	return nil
}

// Rename renames the tenant table. Indexes and sequences follow the table.
func (r *TenantCollectionRepository) Rename(ctx context.Context, from, to string) error {
	_, err := r.db.ExecContext(ctx, `ALTER TABLE `+r.table(from)+` RENAME TO `+pq.QuoteIdentifier(to))
	if err == nil {
		return nil
	}

	switch pgCode(err) {
	case pgerrcode.UndefinedTable:
		err = store.ErrCollectionNotFound
	case pgerrcode.DuplicateTable:
		err = store.ErrCollectionExists
	}
	return &store.RenameError{From: from, To: to, Err: err}
}

// Destroy drops the tenant table and every document in it
func (r *TenantCollectionRepository) Destroy(ctx context.Context, collection string) error {
	_, err := r.db.ExecContext(ctx, `DROP TABLE `+r.table(collection))
	if err == nil {
		return nil
	}
	if pgCode(err) == pgerrcode.UndefinedTable {
		err = store.ErrCollectionNotFound
	}
	return &store.ProvisionError{Op: "destroy", Collection: collection, Err: err}
}

// Exists reports whether the tenant table exists
func (r *TenantCollectionRepository) Exists(ctx context.Context, collection string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)
	`
	if err := r.db.GetContext(ctx, &exists, query, r.schema, collection); err != nil {
		return false, fmt.Errorf("failed to check collection %s: %w", collection, err)
	}
	return exists, nil
}

// ListCollections returns the tenant table names in the schema, sorted
func (r *TenantCollectionRepository) ListCollections(ctx context.Context) ([]string, error) {
	var names []string
	query := `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	if err := r.db.SelectContext(ctx, &names, query, r.schema); err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return names, nil
}

// Documents returns the raw JSON documents stored in a tenant table, oldest first
func (r *TenantCollectionRepository) Documents(ctx context.Context, collection string) ([]json.RawMessage, error) {
	var docs []json.RawMessage
	rows, err := r.db.QueryxContext(ctx, `SELECT document FROM `+r.table(collection)+` ORDER BY id`)
	if err != nil {
		if pgCode(err) == pgerrcode.UndefinedTable {
			return nil, store.ErrCollectionNotFound
		}
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, json.RawMessage(raw))
	}
	return docs, rows.Err()
}
