// Package memory is an in-process Database Client. Documents are stored as BSON, so
// field names and decoding match the MongoDB client; native query expressions are CEL
// boolean expressions over the variable doc.
package memory

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"docdb-binder/internal/collections/domain/client"
	"docdb-binder/internal/collections/domain/model"
	"docdb-binder/internal/shared/errors"
	"docdb-binder/internal/shared/links"
	"docdb-binder/internal/shared/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

type database struct {
	handle      model.Database
	collections map[string]*collection
}

type collection struct {
	handle     model.CollectionHandle
	uniqueKeys []string
	docs       map[string]bson.Raw
	// insertion order, used as the natural order of unsorted queries
	order []string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithClock replaces time.Now for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client implements client.DatabaseClient in memory. It is safe for concurrent use.
type Client struct {
	mu        sync.RWMutex
	databases map[string]*database

	expressions *expressionCache
	log         logger.Logger
	now         func() time.Time
}

var (
	_ client.DatabaseClient = (*Client)(nil)
	_ client.Counter        = (*Client)(nil)
)

// NewClient creates an empty in-memory database server.
func NewClient(opts ...Option) (*Client, error) {
	exprs, err := newExpressionCache(maxCachedExpressions)
	if err != nil {
		return nil, errors.NewInternalError("failed to create expression environment").WithCause(err)
	}

	c := &Client{
		databases:   make(map[string]*database),
		expressions: exprs,
		log:         logger.NewNopLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithComponent("memory_client")
	return c, nil
}

func (c *Client) ResolveDatabase(ctx context.Context, databaseID string) (*model.Database, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	db, ok := c.databases[databaseID]
	if !ok {
		return nil, nil
	}
	handle := db.handle
	return &handle, nil
}

func (c *Client) CreateDatabase(ctx context.Context, databaseID string) (*model.Database, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !links.IsValidID(databaseID) {
		return nil, errors.NewValidationError("invalid database id").WithDetail("database_id", databaseID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.databases[databaseID]; exists {
		return nil, errors.NewConflictError(fmt.Sprintf("database %q already exists", databaseID))
	}
	db := &database{
		handle: model.Database{
			ID:         databaseID,
			ResourceID: uuid.NewString(),
			SelfLink:   links.Database(databaseID),
			CreatedAt:  c.now().UTC(),
		},
		collections: make(map[string]*collection),
	}
	c.databases[databaseID] = db

	c.log.WithFields(map[string]interface{}{"database_id": databaseID}).Debug("database created")
	handle := db.handle
	return &handle, nil
}

func (c *Client) ResolveCollection(ctx context.Context, db *model.Database, name string) (*model.CollectionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, err := c.database(db)
	if err != nil {
		return nil, err
	}
	coll, ok := d.collections[name]
	if !ok {
		return nil, nil
	}
	handle := coll.handle
	return &handle, nil
}

func (c *Client) CreateCollection(ctx context.Context, db *model.Database, spec model.CollectionSpec) (*model.CollectionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !links.IsValidID(spec.ID) {
		return nil, errors.NewValidationError("invalid collection id").WithDetail("collection_id", spec.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	d, err := c.database(db)
	if err != nil {
		return nil, err
	}
	if _, exists := d.collections[spec.ID]; exists {
		return nil, errors.NewConflictError(fmt.Sprintf("collection %q already exists", spec.ID))
	}

	coll := &collection{
		handle: model.CollectionHandle{
			ID:         spec.ID,
			DatabaseID: d.handle.ID,
			ResourceID: uuid.NewString(),
			SelfLink:   links.Collection(d.handle.ID, spec.ID),
			CreatedAt:  c.now().UTC(),
		},
		uniqueKeys: append([]string(nil), spec.UniqueKeys...),
		docs:       make(map[string]bson.Raw),
	}
	d.collections[spec.ID] = coll

	c.log.WithFields(map[string]interface{}{
		"database_id": d.handle.ID,
		"collection":  spec.ID,
	}).Debug("collection created")
	handle := coll.handle
	return &handle, nil
}

func (c *Client) CreateDocument(ctx context.Context, handle *model.CollectionHandle, doc model.Model) (*model.DocumentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.NewValidationError("document cannot be nil")
	}
	if !links.IsValidID(doc.GetID()) {
		return nil, errors.NewValidationError("invalid document id").WithDetail("id", doc.GetID())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	coll, err := c.collectionByHandle(handle)
	if err != nil {
		return nil, err
	}
	id := doc.GetID()
	if _, exists := coll.docs[id]; exists {
		return nil, errors.NewConflictError(fmt.Sprintf("document %q already exists", id)).
			WithDetail("collection", coll.handle.ID)
	}

	prevRID, prevLink := doc.GetResourceID(), doc.GetSelfLink()
	doc.SetResourceID(uuid.NewString())
	doc.SetSelfLink(links.Document(coll.handle.SelfLink, id))

	raw, err := bson.Marshal(doc)
	if err != nil {
		err = errors.NewValidationError("document cannot be encoded").WithCause(err)
	} else {
		err = coll.checkUnique(id, raw)
	}
	if err != nil {
		doc.SetResourceID(prevRID)
		doc.SetSelfLink(prevLink)
		return nil, err
	}

	coll.docs[id] = raw
	coll.order = append(coll.order, id)

	return &model.DocumentResult{
		ResourceID:    doc.GetResourceID(),
		SelfLink:      doc.GetSelfLink(),
		StatusCode:    http.StatusCreated,
		RequestCharge: requestCharge(raw),
	}, nil
}

func (c *Client) ReplaceDocument(ctx context.Context, documentLink string, doc model.Model) (*model.DocumentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
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

	c.mu.Lock()
	defer c.mu.Unlock()

	coll, err := c.collectionByLink(info)
	if err != nil {
		return nil, err
	}
	stored, ok := coll.docs[info.DocumentID]
	if !ok {
		return nil, errors.NewNotFoundError("document "+documentLink).WithCause(errors.ErrDocumentNotFound)
	}

	var meta model.Resource
	if err := bson.Unmarshal(stored, &meta); err != nil {
		return nil, errors.NewInternalError("stored document is corrupt").WithCause(err)
	}
	doc.SetResourceID(meta.ResourceID)
	doc.SetSelfLink(meta.SelfLink)

	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, errors.NewValidationError("document cannot be encoded").WithCause(err)
	}
	if err := coll.checkUnique(info.DocumentID, raw); err != nil {
		return nil, err
	}
	coll.docs[info.DocumentID] = raw

	return &model.DocumentResult{
		ResourceID:    meta.ResourceID,
		SelfLink:      meta.SelfLink,
		StatusCode:    http.StatusOK,
		RequestCharge: requestCharge(raw),
	}, nil
}

func (c *Client) DeleteDocument(ctx context.Context, documentLink string) (*model.DocumentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := links.ParseDocument(documentLink)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	coll, err := c.collectionByLink(info)
	if err != nil {
		return nil, err
	}
	stored, ok := coll.docs[info.DocumentID]
	if !ok {
		return nil, errors.NewNotFoundError("document "+documentLink).WithCause(errors.ErrDocumentNotFound)
	}

	var meta model.Resource
	_ = bson.Unmarshal(stored, &meta)

	delete(coll.docs, info.DocumentID)
	for i, id := range coll.order {
		if id == info.DocumentID {
			coll.order = append(coll.order[:i], coll.order[i+1:]...)
			break
		}
	}

	return &model.DocumentResult{
		ResourceID:    meta.ResourceID,
		SelfLink:      documentLink,
		StatusCode:    http.StatusNoContent,
		RequestCharge: 1,
	}, nil
}

// Query evaluates spec against a snapshot of the collection taken at call time.
func (c *Client) Query(ctx context.Context, handle *model.CollectionHandle, spec model.QuerySpec) (client.Cursor, error) {
	docs, err := c.evaluate(ctx, handle, spec)
	if err != nil {
		return nil, err
	}
	return newCursor(docs), nil
}

// Count returns the number of documents matching spec, honoring Skip and Limit.
func (c *Client) Count(ctx context.Context, handle *model.CollectionHandle, spec model.QuerySpec) (int64, error) {
	docs, err := c.evaluate(ctx, handle, spec)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (c *Client) evaluate(ctx context.Context, handle *model.CollectionHandle, spec model.QuerySpec) ([]bson.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var program *compiledExpression
	if spec.Expression != "" {
		p, err := c.expressions.compile(spec.Expression)
		if err != nil {
			return nil, err
		}
		program = p
	}

	c.mu.RLock()
	coll, err := c.collectionByHandle(handle)
	if err != nil {
		c.mu.RUnlock()
		return nil, err
	}
	snapshot := make([]bson.Raw, 0, len(coll.order))
	for _, id := range coll.order {
		snapshot = append(snapshot, coll.docs[id])
	}
	c.mu.RUnlock()

	matched := make([]matchedDoc, 0, len(snapshot))
	for _, raw := range snapshot {
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, errors.NewInternalError("stored document is corrupt").WithCause(err)
		}
		if !matchesFilters(fields, spec.Filters) {
			continue
		}
		if program != nil && !program.matches(fields) {
			continue
		}
		matched = append(matched, matchedDoc{raw: raw, fields: fields})
	}

	sortMatches(matched, spec.Orders)

	if spec.Skip > 0 {
		if spec.Skip >= int64(len(matched)) {
			matched = matched[:0]
		} else {
			matched = matched[spec.Skip:]
		}
	}
	if spec.Limit > 0 && spec.Limit < int64(len(matched)) {
		matched = matched[:spec.Limit]
	}

	out := make([]bson.Raw, len(matched))
	for i, m := range matched {
		out[i] = m.raw
	}
	return out, nil
}

// database must be called with c.mu held.
func (c *Client) database(db *model.Database) (*database, error) {
	if db == nil {
		return nil, errors.NewValidationError("database handle cannot be nil")
	}
	d, ok := c.databases[db.ID]
	if !ok {
		return nil, errors.NewNotFoundError("database "+db.ID).WithCause(errors.ErrDatabaseNotFound)
	}
	return d, nil
}

// collectionByHandle must be called with c.mu held.
func (c *Client) collectionByHandle(handle *model.CollectionHandle) (*collection, error) {
	if handle == nil {
		return nil, errors.NewValidationError("collection handle cannot be nil")
	}
	return c.collectionByLink(&links.LinkInfo{DatabaseID: handle.DatabaseID, CollectionID: handle.ID})
}

// collectionByLink must be called with c.mu held.
func (c *Client) collectionByLink(info *links.LinkInfo) (*collection, error) {
	d, ok := c.databases[info.DatabaseID]
	if !ok {
		return nil, errors.NewNotFoundError("database "+info.DatabaseID).WithCause(errors.ErrDatabaseNotFound)
	}
	coll, ok := d.collections[info.CollectionID]
	if !ok {
		return nil, errors.NewNotFoundError("collection "+links.Collection(info.DatabaseID, info.CollectionID)).
			WithCause(errors.ErrCollectionNotFound)
	}
	return coll, nil
}

// checkUnique rejects raw when another document shares a value for one of the
// collection's unique keys.
func (coll *collection) checkUnique(id string, raw bson.Raw) error {
	for _, key := range coll.uniqueKeys {
		value, err := raw.LookupErr(splitPath(key)...)
		if err != nil {
			continue
		}
		for otherID, other := range coll.docs {
			if otherID == id {
				continue
			}
			otherValue, err := other.LookupErr(splitPath(key)...)
			if err != nil {
				continue
			}
			if value.Equal(otherValue) {
				return errors.NewConflictError(fmt.Sprintf("unique key %q violated", key)).
					WithDetail("collection", coll.handle.ID).
					WithDetail("conflicting_id", otherID)
			}
		}
	}
	return nil
}

// requestCharge approximates a request unit cost: one unit per started kilobyte.
func requestCharge(raw bson.Raw) float64 {
	return float64(len(raw)/1024 + 1)
}
