package mongodb

import (
	"context"
	stderrors "errors"
	"net/http"
	"testing"

	"docdb-binder/internal/collections/domain/model"
	"docdb-binder/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type widget struct {
	model.Resource `bson:",inline"`
	Name           string  `json:"name" bson:"name"`
	Price          float64 `json:"price" bson:"price"`
}

type fixture struct {
	server   *MockServer
	db       *MockDatabase
	coll     *MockCollection
	metadata *MockCollection
	client   *Client
}

func newFixture() *fixture {
	f := &fixture{
		server:   new(MockServer),
		db:       new(MockDatabase),
		coll:     new(MockCollection),
		metadata: new(MockCollection),
	}
	f.server.On("Database", "db1").Return(f.db).Maybe()
	f.db.On("Collection", "Widgets").Return(f.coll).Maybe()
	f.db.On("Collection", metadataCollection).Return(f.metadata).Maybe()
	f.client = NewClientWithServer(f.server, nil)
	return f
}

var (
	testDB     = &model.Database{ID: "db1", SelfLink: "dbs/db1"}
	testHandle = &model.CollectionHandle{ID: "Widgets", DatabaseID: "db1", SelfLink: "dbs/db1/colls/Widgets"}
)

func TestResolveDatabase(t *testing.T) {
	ctx := context.Background()

	t.Run("absent", func(t *testing.T) {
		f := newFixture()
		f.server.On("ListDatabaseNames", ctx, bson.D{{Key: "name", Value: "db1"}}).Return([]string{}, nil)

		db, err := f.client.ResolveDatabase(ctx, "db1")
		require.NoError(t, err)
		assert.Nil(t, db)
	})

	t.Run("present with metadata", func(t *testing.T) {
		f := newFixture()
		f.server.On("ListDatabaseNames", ctx, mock.Anything).Return([]string{"db1"}, nil)
		f.metadata.On("FindOne", ctx, bson.D{{Key: "_id", Value: databaseMetadataID}}).Return(&stubResult{
			fill: func(v interface{}) { v.(*metadataDocument).ResourceID = "rid-1" },
		})

		db, err := f.client.ResolveDatabase(ctx, "db1")
		require.NoError(t, err)
		require.NotNil(t, db)
		assert.Equal(t, "dbs/db1", db.SelfLink)
		assert.Equal(t, "rid-1", db.ResourceID)
	})

	t.Run("present without metadata", func(t *testing.T) {
		f := newFixture()
		f.server.On("ListDatabaseNames", ctx, mock.Anything).Return([]string{"db1"}, nil)
		f.metadata.On("FindOne", ctx, mock.Anything).Return(&stubResult{err: mongo.ErrNoDocuments})

		db, err := f.client.ResolveDatabase(ctx, "db1")
		require.NoError(t, err)
		require.NotNil(t, db)
		assert.Empty(t, db.ResourceID)
	})

	t.Run("server failure is remote", func(t *testing.T) {
		f := newFixture()
		boom := stderrors.New("connection reset")
		f.server.On("ListDatabaseNames", ctx, mock.Anything).Return(nil, boom)

		_, err := f.client.ResolveDatabase(ctx, "db1")
		assert.True(t, errors.IsRemote(err))
		assert.ErrorIs(t, err, boom)
	})
}

func TestCreateDatabase(t *testing.T) {
	ctx := context.Background()

	t.Run("writes metadata", func(t *testing.T) {
		f := newFixture()
		f.server.On("ListDatabaseNames", ctx, mock.Anything).Return([]string{}, nil)
		f.metadata.On("InsertOne", ctx, mock.MatchedBy(func(doc metadataDocument) bool {
			return doc.ID == databaseMetadataID && doc.Name == "db1" && doc.ResourceID != ""
		})).Return("database", nil)

		db, err := f.client.CreateDatabase(ctx, "db1")
		require.NoError(t, err)
		assert.Equal(t, "db1", db.ID)
		assert.NotEmpty(t, db.ResourceID)
		f.metadata.AssertExpectations(t)
	})

	t.Run("existing is conflict", func(t *testing.T) {
		f := newFixture()
		f.server.On("ListDatabaseNames", ctx, mock.Anything).Return([]string{"db1"}, nil)

		_, err := f.client.CreateDatabase(ctx, "db1")
		assert.True(t, errors.IsConflict(err))
	})

	t.Run("concurrent creator is conflict", func(t *testing.T) {
		f := newFixture()
		f.server.On("ListDatabaseNames", ctx, mock.Anything).Return([]string{}, nil)
		dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
		f.metadata.On("InsertOne", ctx, mock.Anything).Return(nil, dup)

		_, err := f.client.CreateDatabase(ctx, "db1")
		assert.True(t, errors.IsConflict(err))
	})
}

func TestCreateCollection(t *testing.T) {
	ctx := context.Background()

	t.Run("creates unique indexes", func(t *testing.T) {
		f := newFixture()
		f.db.On("CreateCollection", ctx, "Widgets").Return(nil)
		f.coll.On("CreateIndexes", ctx, mock.MatchedBy(func(models []mongo.IndexModel) bool {
			if len(models) != 2 {
				return false
			}
			return *models[0].Options.Unique && *models[0].Options.Name == "id_unique" &&
				*models[1].Options.Name == "name_unique"
		})).Return([]string{"id_unique", "name_unique"}, nil)
		f.metadata.On("InsertOne", ctx, mock.Anything).Return("collection:Widgets", nil)

		handle, err := f.client.CreateCollection(ctx, testDB, model.CollectionSpec{ID: "Widgets", UniqueKeys: []string{"name"}})
		require.NoError(t, err)
		assert.Equal(t, "dbs/db1/colls/Widgets", handle.SelfLink)
		assert.NotEmpty(t, handle.ResourceID)
		f.coll.AssertExpectations(t)
	})

	t.Run("namespace exists is conflict", func(t *testing.T) {
		f := newFixture()
		f.db.On("CreateCollection", ctx, "Widgets").Return(mongo.CommandError{Code: namespaceExistsCode, Name: "NamespaceExists"})

		_, err := f.client.CreateCollection(ctx, testDB, model.CollectionSpec{ID: "Widgets"})
		assert.True(t, errors.IsConflict(err))
	})

	t.Run("metadata name is reserved", func(t *testing.T) {
		f := newFixture()
		_, err := f.client.CreateCollection(ctx, testDB, model.CollectionSpec{ID: metadataCollection})
		assert.True(t, errors.IsValidation(err))
	})
}

func TestResolveCollection(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.db.On("ListCollectionNames", ctx, bson.D{{Key: "name", Value: "Gadgets"}}).Return([]string{}, nil)
	f.db.On("ListCollectionNames", ctx, bson.D{{Key: "name", Value: "Widgets"}}).Return([]string{"Widgets"}, nil)
	f.metadata.On("FindOne", ctx, bson.D{{Key: "_id", Value: "collection:Widgets"}}).Return(&stubResult{
		fill: func(v interface{}) { v.(*metadataDocument).ResourceID = "coll-rid" },
	})

	handle, err := f.client.ResolveCollection(ctx, testDB, "Gadgets")
	require.NoError(t, err)
	assert.Nil(t, handle)

	handle, err = f.client.ResolveCollection(ctx, testDB, "Widgets")
	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.Equal(t, "coll-rid", handle.ResourceID)
	assert.Equal(t, "db1", handle.DatabaseID)
}

func TestCreateDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns identity", func(t *testing.T) {
		f := newFixture()
		f.coll.On("InsertOne", ctx, mock.Anything).Return("oid", nil)

		w := &widget{Resource: model.Resource{ID: "w1"}, Name: "sprocket"}
		result, err := f.client.CreateDocument(ctx, testHandle, w)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, result.StatusCode)
		assert.NotEmpty(t, w.ResourceID)
		assert.Equal(t, "dbs/db1/colls/Widgets/docs/w1", w.SelfLink)
		assert.Equal(t, w.ResourceID, result.ResourceID)
	})

	t.Run("duplicate restores identity", func(t *testing.T) {
		f := newFixture()
		dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
		f.coll.On("InsertOne", ctx, mock.Anything).Return(nil, dup)

		w := &widget{Resource: model.Resource{ID: "w1"}}
		_, err := f.client.CreateDocument(ctx, testHandle, w)
		assert.True(t, errors.IsConflict(err))
		assert.Empty(t, w.ResourceID)
		assert.Empty(t, w.SelfLink)
	})

	t.Run("invalid id", func(t *testing.T) {
		f := newFixture()
		_, err := f.client.CreateDocument(ctx, testHandle, &widget{Resource: model.Resource{ID: "a/b"}})
		assert.True(t, errors.IsValidation(err))
	})
}

func TestReplaceDocument(t *testing.T) {
	ctx := context.Background()
	link := "dbs/db1/colls/Widgets/docs/w1"

	t.Run("matched", func(t *testing.T) {
		f := newFixture()
		f.coll.On("ReplaceOne", ctx, bson.D{{Key: idField, Value: "w1"}}, mock.Anything).Return(stubUpdateResult{matched: 1}, nil)

		w := &widget{Resource: model.Resource{ID: "w1", ResourceID: "rid", SelfLink: link}, Price: 2}
		result, err := f.client.ReplaceDocument(ctx, link, w)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, result.StatusCode)
		assert.Equal(t, "rid", result.ResourceID)
	})

	t.Run("missing", func(t *testing.T) {
		f := newFixture()
		f.coll.On("ReplaceOne", ctx, mock.Anything, mock.Anything).Return(stubUpdateResult{matched: 0}, nil)

		_, err := f.client.ReplaceDocument(ctx, link, &widget{Resource: model.Resource{ID: "w1"}})
		assert.True(t, errors.IsNotFound(err))
		assert.ErrorIs(t, err, errors.ErrDocumentNotFound)
	})

	t.Run("id mismatch", func(t *testing.T) {
		f := newFixture()
		_, err := f.client.ReplaceDocument(ctx, link, &widget{Resource: model.Resource{ID: "w2"}})
		assert.True(t, errors.IsValidation(err))
	})
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	link := "dbs/db1/colls/Widgets/docs/w1"

	t.Run("deleted", func(t *testing.T) {
		f := newFixture()
		f.coll.On("FindOneAndDelete", ctx, bson.D{{Key: idField, Value: "w1"}}).Return(&stubResult{
			fill: func(v interface{}) { v.(*model.Resource).ResourceID = "rid" },
		})

		result, err := f.client.DeleteDocument(ctx, link)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, result.StatusCode)
		assert.Equal(t, "rid", result.ResourceID)
	})

	t.Run("missing", func(t *testing.T) {
		f := newFixture()
		f.coll.On("FindOneAndDelete", ctx, mock.Anything).Return(&stubResult{err: mongo.ErrNoDocuments})

		_, err := f.client.DeleteDocument(ctx, link)
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestQueryAndCount(t *testing.T) {
	ctx := context.Background()
	spec := model.QuerySpec{
		Filters: []model.Filter{{Field: "price", Operator: model.OperatorGreaterThan, Value: 5}},
		Orders:  []model.Order{{Field: "name", Direction: model.Descending}},
		Limit:   10,
	}

	f := newFixture()
	cur := &stubCursor{}
	f.coll.On("Find", ctx, bson.D{{Key: "price", Value: bson.D{{Key: "$gt", Value: 5}}}}, mock.MatchedBy(func(opts []*options.FindOptions) bool {
		return len(opts) == 1 && *opts[0].Limit == 10
	})).Return(cur, nil)
	f.coll.On("CountDocuments", ctx, mock.Anything, mock.Anything).Return(int64(3), nil)

	result, err := f.client.Query(ctx, testHandle, spec)
	require.NoError(t, err)
	assert.False(t, result.Next(ctx))
	require.NoError(t, result.Err())
	require.NoError(t, result.Close(ctx))
	assert.True(t, cur.closed)

	n, err := f.client.Count(ctx, testHandle, spec)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestQueryRejectsInvalidNativeExpression(t *testing.T) {
	f := newFixture()
	_, err := f.client.Query(context.Background(), testHandle, model.QuerySpec{Expression: "{price: "})
	assert.True(t, errors.IsValidation(err))
}

func TestCanceledContextIsReturnedUnchanged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newFixture()
	f.coll.On("InsertOne", ctx, mock.Anything).Return(nil, stderrors.New("driver: context canceled while checking out connection"))

	_, err := f.client.CreateDocument(ctx, testHandle, &widget{Resource: model.Resource{ID: "w1"}})
	assert.Equal(t, context.Canceled, err)
}

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name string
		spec model.QuerySpec
		want bson.D
	}{
		{"empty", model.QuerySpec{}, bson.D{}},
		{
			"single filter",
			model.QuerySpec{Filters: []model.Filter{{Field: "id", Operator: model.OperatorEqual, Value: "w1"}}},
			bson.D{{Key: "id", Value: bson.D{{Key: "$eq", Value: "w1"}}}},
		},
		{
			"filters and native",
			model.QuerySpec{
				Filters:    []model.Filter{{Field: "tags", Operator: model.OperatorIn, Value: []string{"a"}}},
				Expression: `{"price": {"$lt": 3}}`,
			},
			bson.D{{Key: "$and", Value: []bson.D{
				{{Key: "tags", Value: bson.D{{Key: "$in", Value: []string{"a"}}}}},
				{{Key: "price", Value: bson.D{{Key: "$lt", Value: int32(3)}}}},
			}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildFilter(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildSort(t *testing.T) {
	got := buildSort([]model.Order{
		{Field: "name", Direction: model.Ascending},
		{Field: "price", Direction: model.Descending},
	})
	assert.Equal(t, bson.D{{Key: "name", Value: 1}, {Key: "price", Value: -1}}, got)
}
