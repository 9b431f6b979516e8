package usecase

import (
	"context"
	"reflect"
	"time"

	"docdb-binder/internal/collections/domain/client"
	"docdb-binder/internal/collections/domain/model"
	"docdb-binder/internal/shared/errors"
	"docdb-binder/internal/shared/eventbus"
	"docdb-binder/internal/shared/links"
	"docdb-binder/internal/shared/logger"

	"github.com/google/uuid"
)

// idField is the stored name of model.Resource.ID.
const idField = "id"

// DocumentResponse is the outcome of an upsert: the persisted state plus the client's report.
type DocumentResponse[T model.Model] struct {
	Document T
	Result   *model.DocumentResult
	Created  bool
}

// Succeeded reports whether the write was acknowledged with a 2xx status.
func (r *DocumentResponse[T]) Succeeded() bool {
	return r != nil && r.Result.Succeeded()
}

// CollectionOption configures a Collection.
type CollectionOption func(*collectionOptions)

type collectionOptions struct {
	logger      logger.Logger
	events      eventbus.EventBusInterface
	idGenerator func() string
}

// WithCollectionLogger sets the logger used for per-operation debug output.
func WithCollectionLogger(log logger.Logger) CollectionOption {
	return func(o *collectionOptions) { o.logger = log }
}

// WithChangeEvents publishes a ChangeEvent on bus after every committed write.
func WithChangeEvents(bus eventbus.EventBusInterface) CollectionOption {
	return func(o *collectionOptions) { o.events = bus }
}

// WithIDGenerator replaces the UUID generator used for entities without an ID.
func WithIDGenerator(gen func() string) CollectionOption {
	return func(o *collectionOptions) { o.idGenerator = gen }
}

// Collection gives typed CRUD and query access to one collection. It holds only
// immutable state and is safe for concurrent use.
//
// AddOrUpdate is a read followed by a write without isolation: two concurrent calls
// for the same ID race, and the last write wins. No compare-and-swap guard is applied.
type Collection[T model.Model] struct {
	client client.DatabaseClient
	handle *model.CollectionHandle
	logger logger.Logger
	events eventbus.EventBusInterface
	newID  func() string
}

// NewCollection binds an accessor to an existing collection.
func NewCollection[T model.Model](c client.DatabaseClient, handle *model.CollectionHandle, opts ...CollectionOption) *Collection[T] {
	o := collectionOptions{
		logger:      logger.NewNopLogger(),
		idGenerator: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Collection[T]{
		client: c,
		handle: handle,
		logger: o.logger.WithComponent("collection").WithFields(map[string]interface{}{
			"database_id": handle.DatabaseID,
			"collection":  handle.ID,
		}),
		events: o.events,
		newID:  o.idGenerator,
	}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.handle.ID }

// Link returns the collection's address within the database.
func (c *Collection[T]) Link() string { return c.handle.SelfLink }

// Handle returns the collection handle the accessor is bound to.
func (c *Collection[T]) Handle() *model.CollectionHandle { return c.handle }

// Query starts a query over every document in the collection.
func (c *Collection[T]) Query() *Query[T] {
	return newQuery[T](c.client, c.handle)
}

// NativeQuery starts a query from a raw expression in the backend's own query
// language. The expression is passed to the client untouched.
func (c *Collection[T]) NativeQuery(expression string) *Query[T] {
	q := newQuery[T](c.client, c.handle)
	q.spec.Expression = expression
	return q
}

// Find returns the document whose ID equals id. A miss is reported as found == false
// with a nil error.
func (c *Collection[T]) Find(ctx context.Context, id string) (T, bool, error) {
	return c.Query().WhereEqual(idField, id).First(ctx)
}

// AddOrUpdate replaces the stored document with entity's ID, or creates it when absent.
// An entity without an ID is assigned a generated one, which is cleared again when the
// write fails. The replace keeps the stored document's ResourceID and address.
func (c *Collection[T]) AddOrUpdate(ctx context.Context, entity T) (*DocumentResponse[T], error) {
	if isNil(entity) {
		return nil, errors.NewValidationError("entity cannot be nil")
	}
	if entity.GetID() != "" {
		return c.upsert(ctx, entity)
	}

	entity.SetID(c.newID())
	resp, err := c.upsert(ctx, entity)
	if err != nil {
		entity.SetID("")
	}
	return resp, err
}

func (c *Collection[T]) upsert(ctx context.Context, entity T) (*DocumentResponse[T], error) {
	existing, found, err := c.Find(ctx, entity.GetID())
	if err != nil {
		return nil, err
	}

	if found {
		return c.replace(ctx, existing, entity)
	}
	return c.create(ctx, entity)
}

func (c *Collection[T]) create(ctx context.Context, entity T) (*DocumentResponse[T], error) {
	result, err := c.client.CreateDocument(ctx, c.handle, entity)
	if err != nil {
		return nil, err
	}
	applyResult(entity, result)

	c.logger.WithContext(ctx).Debugf("created document %s", entity.GetID())
	c.publish(ctx, eventbus.EventTypeDocumentCreated, model.ChangeCreated, entity.GetID(), entity.GetResourceID())

	return &DocumentResponse[T]{Document: entity, Result: result, Created: true}, nil
}

func (c *Collection[T]) replace(ctx context.Context, existing, entity T) (*DocumentResponse[T], error) {
	entity.SetResourceID(existing.GetResourceID())
	entity.SetSelfLink(existing.GetSelfLink())

	link := existing.GetSelfLink()
	if link == "" {
		link = links.Document(c.handle.SelfLink, entity.GetID())
	}

	result, err := c.client.ReplaceDocument(ctx, link, entity)
	if err != nil {
		return nil, err
	}
	applyResult(entity, result)

	c.logger.WithContext(ctx).Debugf("replaced document %s", entity.GetID())
	c.publish(ctx, eventbus.EventTypeDocumentReplaced, model.ChangeReplaced, entity.GetID(), entity.GetResourceID())

	return &DocumentResponse[T]{Document: entity, Result: result}, nil
}

// AddOrUpdateAll upserts entities one after another in input order. It stops at the
// first failure, returning the responses collected so far and a *errors.BatchError.
func (c *Collection[T]) AddOrUpdateAll(ctx context.Context, entities []T) ([]*DocumentResponse[T], error) {
	responses := make([]*DocumentResponse[T], 0, len(entities))
	for i, entity := range entities {
		resp, err := c.AddOrUpdate(ctx, entity)
		if err != nil {
			return responses, c.batchError(ctx, "add_or_update", i, entity, err)
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

// Remove deletes the document addressed by id without reading it first.
// A missing document yields a NOT_FOUND error from the client.
func (c *Collection[T]) Remove(ctx context.Context, id string) (*model.DocumentResult, error) {
	if id == "" {
		return nil, errors.NewValidationError("document id cannot be empty")
	}

	result, err := c.client.DeleteDocument(ctx, links.Document(c.handle.SelfLink, id))
	if err != nil {
		return nil, err
	}

	var rid string
	if result != nil {
		rid = result.ResourceID
	}
	c.logger.WithContext(ctx).Debugf("removed document %s", id)
	c.publish(ctx, eventbus.EventTypeDocumentDeleted, model.ChangeDeleted, id, rid)

	return result, nil
}

// RemoveEntity deletes the document with entity's ID.
func (c *Collection[T]) RemoveEntity(ctx context.Context, entity T) (*model.DocumentResult, error) {
	if isNil(entity) {
		return nil, errors.NewValidationError("entity cannot be nil")
	}
	return c.Remove(ctx, entity.GetID())
}

// RemoveRange deletes entities one after another in input order, stopping at the first failure.
func (c *Collection[T]) RemoveRange(ctx context.Context, entities []T) ([]*model.DocumentResult, error) {
	results := make([]*model.DocumentResult, 0, len(entities))
	for i, entity := range entities {
		result, err := c.RemoveEntity(ctx, entity)
		if err != nil {
			return results, c.batchError(ctx, "remove_range", i, entity, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (c *Collection[T]) batchError(ctx context.Context, op string, index int, entity T, cause error) error {
	batchErr := &errors.BatchError{
		Operation:   op,
		Succeeded:   index,
		FailedIndex: index,
		Cause:       cause,
	}
	if !isNil(entity) {
		batchErr.FailedID = entity.GetID()
	}

	c.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"operation":    op,
		"succeeded":    index,
		"failed_index": index,
	}).Warnf("batch stopped: %v", cause)
	return batchErr
}

func (c *Collection[T]) publish(ctx context.Context, eventType string, kind model.ChangeKind, id, rid string) {
	if c.events == nil {
		return
	}
	evt := model.ChangeEvent{
		Kind:         kind,
		DatabaseID:   c.handle.DatabaseID,
		CollectionID: c.handle.ID,
		DocumentID:   id,
		ResourceID:   rid,
		Timestamp:    time.Now().UTC(),
	}
	c.events.PublishAndForget(ctx, eventbus.NewBasicEventWithSource(eventType, evt, c.handle.SelfLink))
}

func applyResult(entity model.Model, result *model.DocumentResult) {
	if result == nil {
		return
	}
	if result.ResourceID != "" {
		entity.SetResourceID(result.ResourceID)
	}
	if result.SelfLink != "" {
		entity.SetSelfLink(result.SelfLink)
	}
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}
