package mongodb

import (
	"context"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MockServer struct {
	mock.Mock
}

func (m *MockServer) ListDatabaseNames(ctx context.Context, filter interface{}) ([]string, error) {
	args := m.Called(ctx, filter)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

func (m *MockServer) Database(name string) DatabaseInterface {
	args := m.Called(name)
	return args.Get(0).(DatabaseInterface)
}

type MockDatabase struct {
	mock.Mock
}

func (m *MockDatabase) ListCollectionNames(ctx context.Context, filter interface{}) ([]string, error) {
	args := m.Called(ctx, filter)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

func (m *MockDatabase) CreateCollection(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *MockDatabase) Collection(name string) CollectionInterface {
	args := m.Called(name)
	return args.Get(0).(CollectionInterface)
}

type MockCollection struct {
	mock.Mock
}

func (m *MockCollection) InsertOne(ctx context.Context, doc interface{}) (interface{}, error) {
	args := m.Called(ctx, doc)
	return args.Get(0), args.Error(1)
}

func (m *MockCollection) FindOne(ctx context.Context, filter interface{}) SingleResultInterface {
	return m.Called(ctx, filter).Get(0).(SingleResultInterface)
}

func (m *MockCollection) ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}) (UpdateResultInterface, error) {
	args := m.Called(ctx, filter, replacement)
	res, _ := args.Get(0).(UpdateResultInterface)
	return res, args.Error(1)
}

func (m *MockCollection) FindOneAndDelete(ctx context.Context, filter interface{}) SingleResultInterface {
	return m.Called(ctx, filter).Get(0).(SingleResultInterface)
}

func (m *MockCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (CursorInterface, error) {
	args := m.Called(ctx, filter, opts)
	cur, _ := args.Get(0).(CursorInterface)
	return cur, args.Error(1)
}

func (m *MockCollection) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	args := m.Called(ctx, filter, opts)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCollection) CreateIndexes(ctx context.Context, models []mongo.IndexModel) ([]string, error) {
	args := m.Called(ctx, models)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

// stubResult decodes by running fill on the target, or returns err.
type stubResult struct {
	fill func(v interface{})
	err  error
}

func (s *stubResult) Decode(v interface{}) error {
	if s.err != nil {
		return s.err
	}
	if s.fill != nil {
		s.fill(v)
	}
	return nil
}

type stubUpdateResult struct{ matched int64 }

func (s stubUpdateResult) Matched() int64 { return s.matched }

type stubCursor struct {
	err    error
	closed bool
}

func (s *stubCursor) Next(context.Context) bool       { return false }
func (s *stubCursor) Decode(interface{}) error        { return nil }
func (s *stubCursor) Close(ctx context.Context) error { s.closed = true; return nil }
func (s *stubCursor) Err() error                      { return s.err }
