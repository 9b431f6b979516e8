package mongodb

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"docdb-binder/internal/collections/domain/client"
	"docdb-binder/internal/collections/domain/model"
	"docdb-binder/internal/shared/errors"
	"docdb-binder/internal/shared/links"
	"docdb-binder/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// metadataCollection records resource ids and creation times of the database and
	// its collections. Writing to it is also what makes MongoDB create the database.
	metadataCollection = "_metadata"

	databaseMetadataID     = "database"
	collectionMetadataType = "collection_metadata"
	databaseMetadataType   = "database_metadata"

	idField = "id"
)

type metadataDocument struct {
	ID         string    `bson:"_id"`
	Type       string    `bson:"type"`
	Name       string    `bson:"name"`
	ResourceID string    `bson:"_rid"`
	UniqueKeys []string  `bson:"unique_keys,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
}

func collectionMetadataID(name string) string {
	return "collection:" + name
}

// Client implements client.DatabaseClient on MongoDB. One logical database maps to
// one MongoDB database; documents are addressed by their id field, which carries a
// unique index.
type Client struct {
	server ServerInterface
	log    logger.Logger
	now    func() time.Time
}

var (
	_ client.DatabaseClient = (*Client)(nil)
	_ client.Counter        = (*Client)(nil)
)

// NewClient wraps a connected driver client.
func NewClient(mc *mongo.Client, log logger.Logger) *Client {
	return NewClientWithServer(NewMongoServerAdapter(mc), log)
}

// NewClientWithServer builds a Client over any ServerInterface, used by tests.
func NewClientWithServer(server ServerInterface, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Client{
		server: server,
		log:    log.WithComponent("mongodb_client"),
		now:    time.Now,
	}
}

func (c *Client) ResolveDatabase(ctx context.Context, databaseID string) (*model.Database, error) {
	names, err := c.server.ListDatabaseNames(ctx, bson.D{{Key: "name", Value: databaseID}})
	if err != nil {
		return nil, mapError(ctx, "list databases", err)
	}
	if !slices.Contains(names, databaseID) {
		return nil, nil
	}

	db := &model.Database{ID: databaseID, SelfLink: links.Database(databaseID)}
	meta, err := c.findMetadata(ctx, c.server.Database(databaseID), databaseMetadataID)
	if err != nil {
		return nil, err
	}
	if meta != nil {
		db.ResourceID = meta.ResourceID
		db.CreatedAt = meta.CreatedAt
	}
	return db, nil
}

func (c *Client) CreateDatabase(ctx context.Context, databaseID string) (*model.Database, error) {
	if !links.IsValidID(databaseID) {
		return nil, errors.NewValidationError("invalid database id").WithDetail("database_id", databaseID)
	}

	names, err := c.server.ListDatabaseNames(ctx, bson.D{{Key: "name", Value: databaseID}})
	if err != nil {
		return nil, mapError(ctx, "list databases", err)
	}
	if slices.Contains(names, databaseID) {
		return nil, errors.NewConflictError(fmt.Sprintf("database %q already exists", databaseID))
	}

	meta := metadataDocument{
		ID:         databaseMetadataID,
		Type:       databaseMetadataType,
		Name:       databaseID,
		ResourceID: primitive.NewObjectID().Hex(),
		CreatedAt:  c.now().UTC().Truncate(time.Millisecond),
	}
	if _, err := c.server.Database(databaseID).Collection(metadataCollection).InsertOne(ctx, meta); err != nil {
		return nil, mapError(ctx, "create database", err)
	}

	c.log.WithFields(map[string]interface{}{"database_id": databaseID}).Info("database created")
	return &model.Database{
		ID:         databaseID,
		ResourceID: meta.ResourceID,
		SelfLink:   links.Database(databaseID),
		CreatedAt:  meta.CreatedAt,
	}, nil
}

func (c *Client) ResolveCollection(ctx context.Context, db *model.Database, name string) (*model.CollectionHandle, error) {
	if db == nil {
		return nil, errors.NewValidationError("database handle cannot be nil")
	}
	mdb := c.server.Database(db.ID)

	names, err := mdb.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return nil, mapError(ctx, "list collections", err)
	}
	if !slices.Contains(names, name) {
		return nil, nil
	}

	handle := &model.CollectionHandle{
		ID:         name,
		DatabaseID: db.ID,
		SelfLink:   links.Collection(db.ID, name),
	}
	meta, err := c.findMetadata(ctx, mdb, collectionMetadataID(name))
	if err != nil {
		return nil, err
	}
	if meta != nil {
		handle.ResourceID = meta.ResourceID
		handle.CreatedAt = meta.CreatedAt
	}
	return handle, nil
}

func (c *Client) CreateCollection(ctx context.Context, db *model.Database, spec model.CollectionSpec) (*model.CollectionHandle, error) {
	if db == nil {
		return nil, errors.NewValidationError("database handle cannot be nil")
	}
	if !links.IsValidID(spec.ID) || spec.ID == metadataCollection {
		return nil, errors.NewValidationError("invalid collection id").WithDetail("collection_id", spec.ID)
	}
	mdb := c.server.Database(db.ID)

	if err := mdb.CreateCollection(ctx, spec.ID); err != nil {
		return nil, mapError(ctx, "create collection", err)
	}

	indexes := []mongo.IndexModel{{
		Keys:    bson.D{{Key: idField, Value: 1}},
		Options: options.Index().SetUnique(true).SetName("id_unique"),
	}}
	for _, key := range spec.UniqueKeys {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: key, Value: 1}},
			Options: options.Index().SetUnique(true).SetName(key + "_unique"),
		})
	}
	if _, err := mdb.Collection(spec.ID).CreateIndexes(ctx, indexes); err != nil {
		return nil, mapError(ctx, "create indexes", err)
	}

	meta := metadataDocument{
		ID:         collectionMetadataID(spec.ID),
		Type:       collectionMetadataType,
		Name:       spec.ID,
		ResourceID: primitive.NewObjectID().Hex(),
		UniqueKeys: spec.UniqueKeys,
		CreatedAt:  c.now().UTC().Truncate(time.Millisecond),
	}
	if _, err := mdb.Collection(metadataCollection).InsertOne(ctx, meta); err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, mapError(ctx, "record collection metadata", err)
	}

	c.log.WithFields(map[string]interface{}{
		"database_id": db.ID,
		"collection":  spec.ID,
		"unique_keys": spec.UniqueKeys,
	}).Info("collection created")

	return &model.CollectionHandle{
		ID:         spec.ID,
		DatabaseID: db.ID,
		ResourceID: meta.ResourceID,
		SelfLink:   links.Collection(db.ID, spec.ID),
		CreatedAt:  meta.CreatedAt,
	}, nil
}

func (c *Client) CreateDocument(ctx context.Context, handle *model.CollectionHandle, doc model.Model) (*model.DocumentResult, error) {
	if handle == nil {
		return nil, errors.NewValidationError("collection handle cannot be nil")
	}
	if doc == nil {
		return nil, errors.NewValidationError("document cannot be nil")
	}
	if !links.IsValidID(doc.GetID()) {
		return nil, errors.NewValidationError("invalid document id").WithDetail("id", doc.GetID())
	}

	prevRID, prevLink := doc.GetResourceID(), doc.GetSelfLink()
	doc.SetResourceID(primitive.NewObjectID().Hex())
	doc.SetSelfLink(links.Document(handle.SelfLink, doc.GetID()))

	coll := c.server.Database(handle.DatabaseID).Collection(handle.ID)
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		doc.SetResourceID(prevRID)
		doc.SetSelfLink(prevLink)
		return nil, mapError(ctx, "create document", err)
	}

	return &model.DocumentResult{
		ResourceID:    doc.GetResourceID(),
		SelfLink:      doc.GetSelfLink(),
		StatusCode:    http.StatusCreated,
		RequestCharge: 1,
	}, nil
}

func (c *Client) ReplaceDocument(ctx context.Context, documentLink string, doc model.Model) (*model.DocumentResult, error) {
	if doc == nil {
		return nil, errors.NewValidationError("document cannot be nil")
	}
	info, err := links.ParseDocument(documentLink)
	if err != nil {
		return nil, err
	}
	if doc.GetID() != info.DocumentID {
		return nil, errors.NewValidationError("document id does not match link").
			WithDetail("id", doc.GetID()).
			WithDetail("link", documentLink)
	}
	if doc.GetSelfLink() == "" {
		doc.SetSelfLink(documentLink)
	}

	coll := c.server.Database(info.DatabaseID).Collection(info.CollectionID)
	res, err := coll.ReplaceOne(ctx, bson.D{{Key: idField, Value: info.DocumentID}}, doc)
	if err != nil {
		return nil, mapError(ctx, "replace document", err)
	}
	if res.Matched() == 0 {
		return nil, errors.NewNotFoundError("document "+documentLink).WithCause(errors.ErrDocumentNotFound)
	}

	return &model.DocumentResult{
		ResourceID:    doc.GetResourceID(),
		SelfLink:      doc.GetSelfLink(),
		StatusCode:    http.StatusOK,
		RequestCharge: 1,
	}, nil
}

func (c *Client) DeleteDocument(ctx context.Context, documentLink string) (*model.DocumentResult, error) {
	info, err := links.ParseDocument(documentLink)
	if err != nil {
		return nil, err
	}

	coll := c.server.Database(info.DatabaseID).Collection(info.CollectionID)
	var deleted model.Resource
	err = coll.FindOneAndDelete(ctx, bson.D{{Key: idField, Value: info.DocumentID}}).Decode(&deleted)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.NewNotFoundError("document "+documentLink).WithCause(errors.ErrDocumentNotFound)
	}
	if err != nil {
		return nil, mapError(ctx, "delete document", err)
	}

	return &model.DocumentResult{
		ResourceID:    deleted.ResourceID,
		SelfLink:      documentLink,
		StatusCode:    http.StatusNoContent,
		RequestCharge: 1,
	}, nil
}

// Query runs spec on the server. Expression, when set, is a MongoDB extended-JSON
// filter document such as {"price": {"$gt": 10}}.
func (c *Client) Query(ctx context.Context, handle *model.CollectionHandle, spec model.QuerySpec) (client.Cursor, error) {
	if handle == nil {
		return nil, errors.NewValidationError("collection handle cannot be nil")
	}
	filter, err := buildFilter(spec)
	if err != nil {
		return nil, err
	}

	coll := c.server.Database(handle.DatabaseID).Collection(handle.ID)
	cur, err := coll.Find(ctx, filter, buildFindOptions(spec))
	if err != nil {
		return nil, mapError(ctx, "query", err)
	}

	c.log.WithContext(ctx).WithFields(map[string]interface{}{
		"collection": handle.ID,
		"filters":    len(spec.Filters),
		"native":     spec.Expression != "",
	}).Debug("query started")
	return &cursor{cur: cur}, nil
}

func (c *Client) Count(ctx context.Context, handle *model.CollectionHandle, spec model.QuerySpec) (int64, error) {
	if handle == nil {
		return 0, errors.NewValidationError("collection handle cannot be nil")
	}
	filter, err := buildFilter(spec)
	if err != nil {
		return 0, err
	}

	coll := c.server.Database(handle.DatabaseID).Collection(handle.ID)
	n, err := coll.CountDocuments(ctx, filter, buildCountOptions(spec))
	if err != nil {
		return 0, mapError(ctx, "count", err)
	}
	return n, nil
}

func (c *Client) findMetadata(ctx context.Context, mdb DatabaseInterface, id string) (*metadataDocument, error) {
	var meta metadataDocument
	err := mdb.Collection(metadataCollection).FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&meta)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(ctx, "read metadata", err)
	}
	return &meta, nil
}

// cursor maps driver iteration errors into the shared taxonomy.
type cursor struct {
	cur CursorInterface
	ctx context.Context
}

func (c *cursor) Next(ctx context.Context) bool {
	c.ctx = ctx
	return c.cur.Next(ctx)
}

func (c *cursor) Decode(val interface{}) error { return c.cur.Decode(val) }

func (c *cursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }

func (c *cursor) Err() error {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return mapError(ctx, "query iteration", c.cur.Err())
}
