package usecase

import (
	"context"
	"testing"

	"docdb-binder/internal/collections/domain/model"
	"docdb-binder/internal/shared/errors"
	"docdb-binder/internal/shared/eventbus"

	"github.com/stretchr/testify/suite"
)

type CollectionTestSuite struct {
	suite.Suite
	ctx    context.Context
	client *faultyClient
	bus    *recordingBus
	coll   *Collection[*widget]
}

func (s *CollectionTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.client = newFaultyClient()
	s.bus = &recordingBus{}

	slot := NewSlot[*widget]("Widgets", WithUniqueKeys("name"))
	_, err := NewCollectionManager(s.ctx, s.client, "db1", MustSchema(slot),
		WithCreateIfMissing(true), WithEventBus(s.bus))
	s.Require().NoError(err)
	s.coll = slot.Collection()
}

func TestCollectionTestSuite(t *testing.T) {
	suite.Run(t, new(CollectionTestSuite))
}

func (s *CollectionTestSuite) count() int64 {
	n, err := s.coll.Query().Count(s.ctx)
	s.Require().NoError(err)
	return n
}

func (s *CollectionTestSuite) TestAddOrUpdateRoundTrip() {
	w := newWidget("w1", "sprocket", 4.5)
	w.Tags = []string{"metal"}

	resp, err := s.coll.AddOrUpdate(s.ctx, w)
	s.Require().NoError(err)
	s.True(resp.Created)
	s.True(resp.Succeeded())
	s.NotEmpty(resp.Document.ResourceID)
	s.Equal("dbs/db1/colls/Widgets/docs/w1", resp.Document.SelfLink)

	found, ok, err := s.coll.Find(s.ctx, "w1")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(w.Name, found.Name)
	s.Equal(w.Price, found.Price)
	s.Equal(w.Tags, found.Tags)
	s.Equal(resp.Document.ResourceID, found.ResourceID)
}

func (s *CollectionTestSuite) TestAddOrUpdateReplacesInsteadOfDuplicating() {
	first, err := s.coll.AddOrUpdate(s.ctx, newWidget("w1", "sprocket", 1))
	s.Require().NoError(err)

	second, err := s.coll.AddOrUpdate(s.ctx, newWidget("w1", "sprocket", 2))
	s.Require().NoError(err)
	s.False(second.Created)
	s.Equal(first.Document.ResourceID, second.Document.ResourceID)
	s.Equal(first.Document.SelfLink, second.Document.SelfLink)

	s.Equal(int64(1), s.count())
	found, _, err := s.coll.Find(s.ctx, "w1")
	s.Require().NoError(err)
	s.Equal(2.0, found.Price)
}

func (s *CollectionTestSuite) TestAddOrUpdateGeneratesID() {
	resp, err := s.coll.AddOrUpdate(s.ctx, &widget{Name: "anonymous"})
	s.Require().NoError(err)
	s.NotEmpty(resp.Document.ID)

	_, ok, err := s.coll.Find(s.ctx, resp.Document.ID)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *CollectionTestSuite) TestAddOrUpdateRejectsNil() {
	_, err := s.coll.AddOrUpdate(s.ctx, nil)
	s.True(errors.IsValidation(err))
}

func (s *CollectionTestSuite) TestFindMissIsNotAnError() {
	found, ok, err := s.coll.Find(s.ctx, "missing")
	s.NoError(err)
	s.False(ok)
	s.Nil(found)
}

func (s *CollectionTestSuite) TestAddOrUpdateAllPreservesOrder() {
	entities := []*widget{
		newWidget("a", "anchor", 3),
		newWidget("b", "bolt", 1),
		newWidget("c", "clamp", 2),
	}
	responses, err := s.coll.AddOrUpdateAll(s.ctx, entities)
	s.Require().NoError(err)
	s.Require().Len(responses, 3)
	for i, resp := range responses {
		s.Equal(entities[i].ID, resp.Document.ID)
	}

	all, err := s.coll.Query().All(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"a", "b", "c"}, widgetIDs(all))
}

func (s *CollectionTestSuite) TestAddOrUpdateAllStopsAtFirstFailure() {
	s.client.failCreateID["b"] = errors.NewRemoteError("create document failed", errInjected)

	responses, err := s.coll.AddOrUpdateAll(s.ctx, []*widget{
		newWidget("a", "anchor", 3),
		newWidget("b", "bolt", 1),
		newWidget("c", "clamp", 2),
	})
	s.Require().Error(err)
	s.Len(responses, 1)
	s.True(errors.IsPartialBatch(err))
	s.True(errors.IsRemote(err))

	var batchErr *errors.BatchError
	s.Require().ErrorAs(err, &batchErr)
	s.Equal(1, batchErr.FailedIndex)
	s.Equal(1, batchErr.Succeeded)
	s.Equal("b", batchErr.FailedID)

	_, ok, err := s.coll.Find(s.ctx, "c")
	s.Require().NoError(err)
	s.False(ok, "items after the failure must not be written")
}

func (s *CollectionTestSuite) TestUniqueKeyViolationIsConflict() {
	_, err := s.coll.AddOrUpdate(s.ctx, newWidget("a", "same", 1))
	s.Require().NoError(err)

	rejected := newWidget("b", "same", 1)
	_, err = s.coll.AddOrUpdate(s.ctx, rejected)
	s.True(errors.IsConflict(err))
	s.Empty(rejected.ResourceID)
	s.Empty(rejected.SelfLink)
	s.False(rejected.IsPersisted())

	_, ok, err := s.coll.Find(s.ctx, "b")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *CollectionTestSuite) TestFailedCreateClearsGeneratedID() {
	_, err := s.coll.AddOrUpdate(s.ctx, newWidget("a", "same", 1))
	s.Require().NoError(err)

	rejected := &widget{Name: "same"}
	_, err = s.coll.AddOrUpdate(s.ctx, rejected)
	s.True(errors.IsConflict(err))
	s.Empty(rejected.ID)
	s.False(rejected.IsPersisted())
	s.Equal(int64(1), s.count())
}

func (s *CollectionTestSuite) TestRemoveThenFind() {
	_, err := s.coll.AddOrUpdate(s.ctx, newWidget("w1", "sprocket", 1))
	s.Require().NoError(err)

	result, err := s.coll.Remove(s.ctx, "w1")
	s.Require().NoError(err)
	s.True(result.Succeeded())

	_, ok, err := s.coll.Find(s.ctx, "w1")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *CollectionTestSuite) TestRemoveMissingIsNotFound() {
	_, err := s.coll.Remove(s.ctx, "missing")
	s.True(errors.IsNotFound(err))

	_, err = s.coll.Remove(s.ctx, "")
	s.True(errors.IsValidation(err))
}

func (s *CollectionTestSuite) TestRemoveRangeStopsAtFirstFailure() {
	entities := []*widget{newWidget("a", "anchor", 1), newWidget("b", "bolt", 1), newWidget("c", "clamp", 1)}
	_, err := s.coll.AddOrUpdateAll(s.ctx, entities)
	s.Require().NoError(err)

	s.client.failDeleteLink["dbs/db1/colls/Widgets/docs/b"] = errors.NewRemoteError("delete failed", errInjected)

	results, err := s.coll.RemoveRange(s.ctx, entities)
	s.Require().Error(err)
	s.Len(results, 1)

	var batchErr *errors.BatchError
	s.Require().ErrorAs(err, &batchErr)
	s.Equal("remove_range", batchErr.Operation)
	s.Equal("b", batchErr.FailedID)

	remaining, err := s.coll.Query().OrderBy("id", model.Ascending).All(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"b", "c"}, widgetIDs(remaining))
}

func (s *CollectionTestSuite) TestWritesPublishChangeEvents() {
	_, err := s.coll.AddOrUpdate(s.ctx, newWidget("w1", "sprocket", 1))
	s.Require().NoError(err)
	_, err = s.coll.AddOrUpdate(s.ctx, newWidget("w1", "sprocket", 2))
	s.Require().NoError(err)
	_, err = s.coll.Remove(s.ctx, "w1")
	s.Require().NoError(err)

	created := s.bus.byType(eventbus.EventTypeDocumentCreated)
	s.Require().Len(created, 1)
	evt := created[0].Data().(model.ChangeEvent)
	s.Equal(model.ChangeCreated, evt.Kind)
	s.Equal("db1", evt.DatabaseID)
	s.Equal("Widgets", evt.CollectionID)
	s.Equal("w1", evt.DocumentID)
	s.NotEmpty(evt.ResourceID)
	s.Equal("dbs/db1/colls/Widgets", created[0].Source())

	s.Len(s.bus.byType(eventbus.EventTypeDocumentReplaced), 1)
	s.Len(s.bus.byType(eventbus.EventTypeDocumentDeleted), 1)
}

func (s *CollectionTestSuite) TestFailedWritePublishesNothing() {
	s.client.failCreateID["w1"] = errInjected
	_, err := s.coll.AddOrUpdate(s.ctx, newWidget("w1", "sprocket", 1))
	s.ErrorIs(err, errInjected)
	s.Empty(s.bus.byType(eventbus.EventTypeDocumentCreated))
}

func (s *CollectionTestSuite) TestCanceledContextPropagates() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := s.coll.AddOrUpdate(ctx, newWidget("w1", "sprocket", 1))
	s.Equal(context.Canceled, err)

	_, _, err = s.coll.Find(ctx, "w1")
	s.Equal(context.Canceled, err)
}

func widgetIDs(ws []*widget) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.ID
	}
	return out
}
