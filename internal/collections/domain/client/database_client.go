package client

import (
	"context"

	"docdb-binder/internal/collections/domain/model"
)

// DatabaseClient is the handle to the remote document database. Implementations own
// transport, authentication, retries and timeouts; callers only pass a context.
//
// Resolve* methods return (nil, nil) when the resource does not exist. Create* methods
// return a CONFLICT error when the resource already exists. Document writes address
// documents by link (see package links) and return NOT_FOUND when the target is absent.
type DatabaseClient interface {
	ResolveDatabase(ctx context.Context, databaseID string) (*model.Database, error)
	CreateDatabase(ctx context.Context, databaseID string) (*model.Database, error)

	ResolveCollection(ctx context.Context, db *model.Database, name string) (*model.CollectionHandle, error)
	CreateCollection(ctx context.Context, db *model.Database, spec model.CollectionSpec) (*model.CollectionHandle, error)

	// CreateDocument stores doc in the collection and sets its ResourceID and SelfLink.
	CreateDocument(ctx context.Context, coll *model.CollectionHandle, doc model.Model) (*model.DocumentResult, error)
	// ReplaceDocument overwrites the document at documentLink with doc.
	ReplaceDocument(ctx context.Context, documentLink string, doc model.Model) (*model.DocumentResult, error)
	DeleteDocument(ctx context.Context, documentLink string) (*model.DocumentResult, error)

	// Query starts evaluating spec against the collection. Evaluation happens on the
	// backend; results are pulled through the cursor.
	Query(ctx context.Context, coll *model.CollectionHandle, spec model.QuerySpec) (Cursor, error)
}

// Cursor iterates over query results.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Close(ctx context.Context) error
	Err() error
}

// Counter is an optional capability for clients that can count matches without
// transferring documents.
type Counter interface {
	Count(ctx context.Context, coll *model.CollectionHandle, spec model.QuerySpec) (int64, error)
}
