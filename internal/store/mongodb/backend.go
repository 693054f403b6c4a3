// Package mongodb implements store.Backend on MongoDB. Registry records live in
// the organizations and admin_users collections; each tenant gets a collection
// of its own in the same database.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/org-management/org-service/internal/config"
	"github.com/org-management/org-service/internal/db/models"
	"github.com/org-management/org-service/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

func init() {
	store.Register(config.DriverMongoDB, func(ctx context.Context, cfg *config.Config) (store.Backend, error) {
		return Open(ctx, cfg.Database.MongoDB.URI, cfg.Database.MongoDB.Database)
	})
}

const (
	organizationsCollection = "organizations"
	adminUsersCollection    = "admin_users"
)

// Server error codes
const (
	codeNamespaceNotFound = 26
	codeNamespaceExists   = 48
)

var registryIndexes = map[string][]mongo.IndexModel{
	organizationsCollection: {
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetName("uniq_name").SetUnique(true)},
		{Keys: bson.D{{Key: "collection_name", Value: 1}}, Options: options.Index().SetName("uniq_collection_name").SetUnique(true)},
	},
	adminUsersCollection: {
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName("uniq_email").SetUnique(true)},
		{Keys: bson.D{{Key: "organization_id", Value: 1}}, Options: options.Index().SetName("idx_organization_id")},
	},
}

type organizationDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Name           string             `bson:"name"`
	CollectionName string             `bson:"collection_name"`
	AdminID        *string            `bson:"admin_id"`
	AdminEmail     *string            `bson:"admin_email"`
	CreatedAt      time.Time          `bson:"created_at"`
	UpdatedAt      *time.Time         `bson:"updated_at"`
	IsActive       bool               `bson:"is_active"`
}

func (d *organizationDoc) model() *models.Organization {
	return &models.Organization{
		ID:             d.ID.Hex(),
		Name:           d.Name,
		CollectionName: d.CollectionName,
		AdminID:        d.AdminID,
		AdminEmail:     d.AdminEmail,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		IsActive:       d.IsActive,
	}
}

type adminDoc struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	Email            string             `bson:"email"`
	PasswordHash     string             `bson:"password_hash"`
	OrganizationID   string             `bson:"organization_id"`
	OrganizationName string             `bson:"organization_name"`
	Role             string             `bson:"role"`
	IsActive         bool               `bson:"is_active"`
	CreatedAt        time.Time          `bson:"created_at"`
}

func (d *adminDoc) model() *models.AdminUser {
	return &models.AdminUser{
		ID:               d.ID.Hex(),
		Email:            d.Email,
		PasswordHash:     d.PasswordHash,
		OrganizationID:   d.OrganizationID,
		OrganizationName: d.OrganizationName,
		Role:             d.Role,
		IsActive:         d.IsActive,
		CreatedAt:        d.CreatedAt,
	}
}

// Backend is the MongoDB store.Backend
type Backend struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.Backend = (*Backend)(nil)

// New wraps a connected client. dbName is the master database.
func New(client *mongo.Client, dbName string) *Backend {
	return &Backend{client: client, db: client.Database(dbName)}
}

// Open connects to uri, verifies the connection and ensures the registry indexes.
func Open(ctx context.Context, uri, dbName string) (*Backend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	b := New(client, dbName)
	if err := b.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	slog.Info("connected to mongodb", "database", dbName)
	return b, nil
}

// EnsureIndexes creates the unique and secondary registry indexes.
func (b *Backend) EnsureIndexes(ctx context.Context) error {
	for coll, indexes := range registryIndexes {
		if _, err := b.db.Collection(coll).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// Ping checks the primary is reachable
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client
func (b *Backend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return b.client.Disconnect(ctx)
}

func hasCode(err error, code int) bool {
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorCode(code)
}

func mapWriteError(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to %s: %w", op, store.ErrConflict)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// ---------------------------------------------------------------------------
// Organizations
// ---------------------------------------------------------------------------

func (b *Backend) findOrganization(ctx context.Context, filter bson.D) (*models.Organization, error) {
	var doc organizationDoc
	err := b.db.Collection(organizationsCollection).FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return doc.model(), nil
}

// FindOrganizationByName retrieves an organization by canonical name
func (b *Backend) FindOrganizationByName(ctx context.Context, name string) (*models.Organization, error) {
	return b.findOrganization(ctx, bson.D{{Key: "name", Value: name}})
}

// FindOrganizationByID retrieves an organization by hex ObjectID
func (b *Backend) FindOrganizationByID(ctx context.Context, id string) (*models.Organization, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	return b.findOrganization(ctx, bson.D{{Key: "_id", Value: oid}})
}

// ListOrganizations returns all organization documents ordered by name
func (b *Backend) ListOrganizations(ctx context.Context) ([]*models.Organization, error) {
	cur, err := b.db.Collection(organizationsCollection).Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	var docs []organizationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode organizations: %w", err)
	}

	orgs := make([]*models.Organization, 0, len(docs))
	for i := range docs {
		orgs = append(orgs, docs[i].model())
	}
	return orgs, nil
}

// InsertOrganization stores a new organization document
func (b *Backend) InsertOrganization(ctx context.Context, org *models.Organization) (string, error) {
	doc := organizationDoc{
		Name:           org.Name,
		CollectionName: org.CollectionName,
		AdminID:        org.AdminID,
		AdminEmail:     org.AdminEmail,
		CreatedAt:      org.CreatedAt,
		UpdatedAt:      org.UpdatedAt,
		IsActive:       org.IsActive,
	}
	res, err := b.db.Collection(organizationsCollection).InsertOne(ctx, doc)
	if err != nil {
		return "", mapWriteError("create organization", err)
	}
	return res.InsertedID.(primitive.ObjectID).Hex(), nil
}

// UpdateOrganization sets the non-nil fields of patch
func (b *Backend) UpdateOrganization(ctx context.Context, id string, patch models.OrganizationPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	set := bson.D{}
	if patch.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *patch.Name})
	}
	if patch.CollectionName != nil {
		set = append(set, bson.E{Key: "collection_name", Value: *patch.CollectionName})
	}
	if patch.AdminID != nil {
		set = append(set, bson.E{Key: "admin_id", Value: *patch.AdminID})
	}
	if patch.AdminEmail != nil {
		set = append(set, bson.E{Key: "admin_email", Value: *patch.AdminEmail})
	}
	if patch.UpdatedAt != nil {
		set = append(set, bson.E{Key: "updated_at", Value: *patch.UpdatedAt})
	}
	return b.updateByID(ctx, organizationsCollection, "organization", id, set)
}

// DeleteOrganization removes an organization document
func (b *Backend) DeleteOrganization(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("organization: %w", store.ErrNotFound)
	}
	res, err := b.db.Collection(organizationsCollection).DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("organization: %w", store.ErrNotFound)
	}
	return nil
}

func (b *Backend) updateByID(ctx context.Context, coll, what, id string, set bson.D) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	res, err := b.db.Collection(coll).UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return mapWriteError("update "+what, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Admins
// ---------------------------------------------------------------------------

func (b *Backend) findAdmin(ctx context.Context, filter bson.D) (*models.AdminUser, error) {
	var doc adminDoc
	err := b.db.Collection(adminUsersCollection).FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return doc.model(), nil
}

// FindAdminByEmail retrieves an admin by email
func (b *Backend) FindAdminByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	return b.findAdmin(ctx, bson.D{{Key: "email", Value: email}})
}

// FindAdminByID retrieves an admin by hex ObjectID
func (b *Backend) FindAdminByID(ctx context.Context, id string) (*models.AdminUser, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	return b.findAdmin(ctx, bson.D{{Key: "_id", Value: oid}})
}

// InsertAdmin stores a new admin document
func (b *Backend) InsertAdmin(ctx context.Context, admin *models.AdminUser) (string, error) {
	doc := adminDoc{
		Email:            admin.Email,
		PasswordHash:     admin.PasswordHash,
		OrganizationID:   admin.OrganizationID,
		OrganizationName: admin.OrganizationName,
		Role:             admin.Role,
		IsActive:         admin.IsActive,
		CreatedAt:        admin.CreatedAt,
	}
	res, err := b.db.Collection(adminUsersCollection).InsertOne(ctx, doc)
	if err != nil {
		return "", mapWriteError("create admin", err)
	}
	return res.InsertedID.(primitive.ObjectID).Hex(), nil
}

// UpdateAdmin sets the non-nil fields of patch
func (b *Backend) UpdateAdmin(ctx context.Context, id string, patch models.AdminPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	set := bson.D{}
	if patch.Email != nil {
		set = append(set, bson.E{Key: "email", Value: *patch.Email})
	}
	if patch.PasswordHash != nil {
		set = append(set, bson.E{Key: "password_hash", Value: *patch.PasswordHash})
	}
	if patch.OrganizationName != nil {
		set = append(set, bson.E{Key: "organization_name", Value: *patch.OrganizationName})
	}
	return b.updateByID(ctx, adminUsersCollection, "admin", id, set)
}

// DeleteAdminsByOrganization removes every admin bound to orgID
func (b *Backend) DeleteAdminsByOrganization(ctx context.Context, orgID string) (int64, error) {
	res, err := b.db.Collection(adminUsersCollection).DeleteMany(ctx, bson.D{{Key: "organization_id", Value: orgID}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete admins: %w", err)
	}
	return res.DeletedCount, nil
}

// ---------------------------------------------------------------------------
// Tenant collections
// ---------------------------------------------------------------------------

// Provision creates the collection, inserts the bootstrap marker and creates indexes.
func (b *Backend) Provision(ctx context.Context, collection string) error {
	fail := func(err error) error {
		return &store.ProvisionError{Op: "provision", Collection: collection, Err: err}
	}

	if err := b.db.CreateCollection(ctx, collection); err != nil {
		if hasCode(err, codeNamespaceExists) {
			return fail(store.ErrCollectionExists)
		}
		return fail(fmt.Errorf("failed to create collection: %w", err))
	}

	coll := b.db.Collection(collection)
	marker := bson.M{}
	for k, v := range store.BootstrapDocument() {
		marker[k] = v
	}
	if _, err := coll.InsertOne(ctx, marker); err != nil {
		return fail(fmt.Errorf("failed to insert bootstrap document: %w", err))
	}

	indexes := make([]mongo.IndexModel, 0, len(store.IndexedFields))
	for _, field := range store.IndexedFields {
		indexes = append(indexes, mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}})
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fail(fmt.Errorf("failed to create indexes: %w", err))
	}
	return nil
}

// Rename renames the collection with the renameCollection admin command.
func (b *Backend) Rename(ctx context.Context, from, to string) error {
	cmd := bson.D{
		{Key: "renameCollection", Value: b.db.Name() + "." + from},
		{Key: "to", Value: b.db.Name() + "." + to},
	}
	err := b.client.Database("admin").RunCommand(ctx, cmd).Err()
	if err == nil {
		return nil
	}

	switch {
	case hasCode(err, codeNamespaceNotFound):
		err = store.ErrCollectionNotFound
	case hasCode(err, codeNamespaceExists):
		err = store.ErrCollectionExists
	}
	return &store.RenameError{From: from, To: to, Err: err}
}

// Destroy drops the collection. MongoDB ignores drops of missing collections,
// so existence is checked first.
func (b *Backend) Destroy(ctx context.Context, collection string) error {
	exists, err := b.Exists(ctx, collection)
	if err != nil {
		return &store.ProvisionError{Op: "destroy", Collection: collection, Err: err}
	}
	if !exists {
		return &store.ProvisionError{Op: "destroy", Collection: collection, Err: store.ErrCollectionNotFound}
	}
	if err := b.db.Collection(collection).Drop(ctx); err != nil {
		return &store.ProvisionError{Op: "destroy", Collection: collection, Err: err}
	}
	return nil
}

// Exists reports whether the collection exists
func (b *Backend) Exists(ctx context.Context, collection string) (bool, error) {
	names, err := b.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: collection}})
	if err != nil {
		return false, fmt.Errorf("failed to list collections: %w", err)
	}
	return len(names) > 0, nil
}

// ListCollections returns every collection in the master database except the
// registry and system collections, sorted.
func (b *Backend) ListCollections(ctx context.Context) ([]string, error) {
	filter := bson.D{{Key: "name", Value: bson.D{{Key: "$nin", Value: bson.A{organizationsCollection, adminUsersCollection}}}}}
	names, err := b.db.ListCollectionNames(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	tenants := names[:0]
	for _, name := range names {
		if !strings.HasPrefix(name, "system.") {
			tenants = append(tenants, name)
		}
	}
	sort.Strings(tenants)
	return tenants, nil
}
