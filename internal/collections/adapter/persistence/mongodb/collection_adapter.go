package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ServerInterface is the part of *mongo.Client used by Client.
type ServerInterface interface {
	ListDatabaseNames(ctx context.Context, filter interface{}) ([]string, error)
	Database(name string) DatabaseInterface
}

// DatabaseInterface is the part of *mongo.Database used by Client.
type DatabaseInterface interface {
	ListCollectionNames(ctx context.Context, filter interface{}) ([]string, error)
	CreateCollection(ctx context.Context, name string) error
	Collection(name string) CollectionInterface
}

// CollectionInterface is the part of *mongo.Collection used by Client.
type CollectionInterface interface {
	InsertOne(ctx context.Context, doc interface{}) (interface{}, error)
	FindOne(ctx context.Context, filter interface{}) SingleResultInterface
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}) (UpdateResultInterface, error)
	FindOneAndDelete(ctx context.Context, filter interface{}) SingleResultInterface
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (CursorInterface, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	CreateIndexes(ctx context.Context, models []mongo.IndexModel) ([]string, error)
}

type SingleResultInterface interface {
	Decode(v interface{}) error
}
type UpdateResultInterface interface{ Matched() int64 }
type CursorInterface interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Close(ctx context.Context) error
	Err() error
}

// MongoServerAdapter wraps *mongo.Client.
type MongoServerAdapter struct {
	client *mongo.Client
}

func NewMongoServerAdapter(client *mongo.Client) *MongoServerAdapter {
	return &MongoServerAdapter{client: client}
}

func (m *MongoServerAdapter) ListDatabaseNames(ctx context.Context, filter interface{}) ([]string, error) {
	return m.client.ListDatabaseNames(ctx, filter)
}

func (m *MongoServerAdapter) Database(name string) DatabaseInterface {
	return &MongoDatabaseAdapter{db: m.client.Database(name)}
}

// MongoDatabaseAdapter wraps *mongo.Database.
type MongoDatabaseAdapter struct {
	db *mongo.Database
}

func (m *MongoDatabaseAdapter) ListCollectionNames(ctx context.Context, filter interface{}) ([]string, error) {
	return m.db.ListCollectionNames(ctx, filter)
}

func (m *MongoDatabaseAdapter) CreateCollection(ctx context.Context, name string) error {
	return m.db.CreateCollection(ctx, name)
}

func (m *MongoDatabaseAdapter) Collection(name string) CollectionInterface {
	return &MongoCollectionAdapter{col: m.db.Collection(name)}
}

// MongoCollectionAdapter wraps *mongo.Collection.
type MongoCollectionAdapter struct {
	col *mongo.Collection
}

func (m *MongoCollectionAdapter) InsertOne(ctx context.Context, doc interface{}) (interface{}, error) {
	res, err := m.col.InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	return res.InsertedID, nil
}

func (m *MongoCollectionAdapter) FindOne(ctx context.Context, filter interface{}) SingleResultInterface {
	return m.col.FindOne(ctx, filter)
}

func (m *MongoCollectionAdapter) ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}) (UpdateResultInterface, error) {
	res, err := m.col.ReplaceOne(ctx, filter, replacement)
	if err != nil {
		return nil, err
	}
	return &MongoUpdateResultAdapter{matched: res.MatchedCount}, nil
}

func (m *MongoCollectionAdapter) FindOneAndDelete(ctx context.Context, filter interface{}) SingleResultInterface {
	return m.col.FindOneAndDelete(ctx, filter)
}

func (m *MongoCollectionAdapter) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (CursorInterface, error) {
	cur, err := m.col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (m *MongoCollectionAdapter) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return m.col.CountDocuments(ctx, filter, opts...)
}

func (m *MongoCollectionAdapter) CreateIndexes(ctx context.Context, models []mongo.IndexModel) ([]string, error) {
	return m.col.Indexes().CreateMany(ctx, models)
}

// MongoUpdateResultAdapter wraps the matched count.
type MongoUpdateResultAdapter struct {
	matched int64
}

func (m *MongoUpdateResultAdapter) Matched() int64 { return m.matched }
