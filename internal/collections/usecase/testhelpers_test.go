package usecase

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"docdb-binder/internal/collections/adapter/persistence/memory"
	"docdb-binder/internal/collections/domain/model"
	"docdb-binder/internal/shared/errors"
	"docdb-binder/internal/shared/eventbus"
)

type widget struct {
	model.Resource `bson:",inline"`
	Name           string   `json:"name" bson:"name"`
	Price          float64  `json:"price" bson:"price"`
	Tags           []string `json:"tags,omitempty" bson:"tags,omitempty"`
}

func newWidget(id, name string, price float64) *widget {
	return &widget{Resource: model.Resource{ID: id}, Name: name, Price: price}
}

type gadget struct {
	model.Resource `bson:",inline"`
	Label          string `json:"label" bson:"label"`
}

var errInjected = stderrors.New("injected failure")

// faultyClient wraps the in-memory client and fails selected calls.
type faultyClient struct {
	*memory.Client

	failCollection map[string]error
	failCreateID   map[string]error
	failDeleteLink map[string]error

	createCollectionCalls atomic.Int32
	conflictOnce          map[string]bool
	mu                    sync.Mutex
}

func newFaultyClient() *faultyClient {
	c, err := memory.NewClient()
	if err != nil {
		panic(err)
	}
	return &faultyClient{
		Client:         c,
		failCollection: map[string]error{},
		failCreateID:   map[string]error{},
		failDeleteLink: map[string]error{},
		conflictOnce:   map[string]bool{},
	}
}

func (f *faultyClient) CreateCollection(ctx context.Context, db *model.Database, spec model.CollectionSpec) (*model.CollectionHandle, error) {
	f.createCollectionCalls.Add(1)
	if err, ok := f.failCollection[spec.ID]; ok {
		return nil, err
	}

	f.mu.Lock()
	racing := f.conflictOnce[spec.ID]
	delete(f.conflictOnce, spec.ID)
	f.mu.Unlock()
	if racing {
		// another binder wins the race between resolve and create
		if _, err := f.Client.CreateCollection(ctx, db, spec); err != nil {
			return nil, err
		}
		return nil, errors.NewConflictError("collection already exists")
	}
	return f.Client.CreateCollection(ctx, db, spec)
}

func (f *faultyClient) CreateDocument(ctx context.Context, handle *model.CollectionHandle, doc model.Model) (*model.DocumentResult, error) {
	if err, ok := f.failCreateID[doc.GetID()]; ok {
		return nil, err
	}
	return f.Client.CreateDocument(ctx, handle, doc)
}

func (f *faultyClient) DeleteDocument(ctx context.Context, link string) (*model.DocumentResult, error) {
	if err, ok := f.failDeleteLink[link]; ok {
		return nil, err
	}
	return f.Client.DeleteDocument(ctx, link)
}

// recordingBus captures published events synchronously.
type recordingBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *recordingBus) Subscribe(string, eventbus.Handler) {}
func (b *recordingBus) Unsubscribe(string)                 {}
func (b *recordingBus) GetSubscriberCount(string) int      { return 0 }
func (b *recordingBus) GetEventTypes() []string            { return nil }

func (b *recordingBus) Publish(_ context.Context, event eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) PublishAndForget(ctx context.Context, event eventbus.Event) {
	_ = b.Publish(ctx, event)
}

func (b *recordingBus) byType(eventType string) []eventbus.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []eventbus.Event
	for _, e := range b.events {
		if e.Type() == eventType {
			out = append(out, e)
		}
	}
	return out
}
