package persistence

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"docdb-binder/internal/collections/domain/model"
	"docdb-binder/internal/shared/errors"
	"docdb-binder/internal/shared/eventbus"
	"docdb-binder/internal/shared/links"
	"docdb-binder/internal/shared/logger"

	"github.com/redis/go-redis/v9"
)

const (
	defaultStreamPrefix = "changes:"
	defaultReadCount    = 1000
)

// ChangeStoreConfig tunes the Redis change feed.
type ChangeStoreConfig struct {
	StreamPrefix string
	// MaxLen caps each collection stream; zero keeps every event.
	MaxLen int64
}

// RedisChangeStore appends document change events to one Redis stream per collection
// and reads them back in order. The stream entry id is the event's Sequence.
type RedisChangeStore struct {
	client *redis.Client
	logger logger.Logger
	config ChangeStoreConfig
}

// NewRedisChangeStore creates a change store over an existing Redis client.
func NewRedisChangeStore(client *redis.Client, log logger.Logger, config ChangeStoreConfig) *RedisChangeStore {
	if config.StreamPrefix == "" {
		config.StreamPrefix = defaultStreamPrefix
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &RedisChangeStore{
		client: client,
		logger: log.WithComponent("redis_change_store"),
		config: config,
	}
}

// StreamName returns the stream key holding a collection's changes.
func (r *RedisChangeStore) StreamName(databaseID, collectionID string) string {
	return r.config.StreamPrefix + links.Collection(databaseID, collectionID)
}

// Append stores evt and returns its stream id.
func (r *RedisChangeStore) Append(ctx context.Context, evt model.ChangeEvent) (string, error) {
	if evt.DatabaseID == "" || evt.CollectionID == "" {
		return "", errors.NewValidationError("change event must name a database and a collection")
	}
	stream := r.StreamName(evt.DatabaseID, evt.CollectionID)

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"kind":         string(evt.Kind),
			"databaseId":   evt.DatabaseID,
			"collectionId": evt.CollectionID,
			"documentId":   evt.DocumentID,
			"resourceId":   evt.ResourceID,
			"timestamp":    evt.Timestamp.UnixNano(),
		},
	}
	if r.config.MaxLen > 0 {
		args.MaxLen = r.config.MaxLen
	}

	id, err := r.client.XAdd(ctx, args).Result()
	if err != nil {
		r.logger.WithFields(map[string]interface{}{
			"stream": stream,
			"kind":   string(evt.Kind),
		}).Errorf("failed to append change event: %v", err)
		return "", errors.NewRemoteError("append change event failed", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"stream":      stream,
		"document_id": evt.DocumentID,
		"sequence":    id,
	}).Debug("change event stored")
	return id, nil
}

// ReadSince returns up to count events recorded after the stream id afterID, oldest
// first. An empty afterID reads from the beginning.
func (r *RedisChangeStore) ReadSince(ctx context.Context, databaseID, collectionID, afterID string, count int64) ([]model.ChangeEvent, error) {
	stream := r.StreamName(databaseID, collectionID)
	if afterID == "" {
		afterID = "0"
	}
	if count <= 0 {
		count = defaultReadCount
	}

	res, err := r.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, afterID},
		Count:   count,
		Block:   -1,
	}).Result()
	if stderrors.Is(err, redis.Nil) {
		return []model.ChangeEvent{}, nil
	}
	if err != nil {
		return nil, errors.NewRemoteError("read change events failed", err)
	}

	events := make([]model.ChangeEvent, 0)
	for _, streamRes := range res {
		for _, msg := range streamRes.Messages {
			evt, err := parseChangeEvent(msg)
			if err != nil {
				r.logger.WithFields(map[string]interface{}{"message_id": msg.ID}).
					Warnf("skipping malformed change event: %v", err)
				continue
			}
			events = append(events, evt)
		}
	}
	return events, nil
}

// Len returns the number of retained events for a collection.
func (r *RedisChangeStore) Len(ctx context.Context, databaseID, collectionID string) (int64, error) {
	n, err := r.client.XLen(ctx, r.StreamName(databaseID, collectionID)).Result()
	if err != nil {
		return 0, errors.NewRemoteError("read change stream length failed", err)
	}
	return n, nil
}

// Subscribe records every document change published on bus.
func (r *RedisChangeStore) Subscribe(bus eventbus.EventBusInterface) {
	for _, eventType := range []string{
		eventbus.EventTypeDocumentCreated,
		eventbus.EventTypeDocumentReplaced,
		eventbus.EventTypeDocumentDeleted,
	} {
		bus.Subscribe(eventType, r.handle)
	}
}

func (r *RedisChangeStore) handle(ctx context.Context, event eventbus.Event) error {
	evt, ok := event.Data().(model.ChangeEvent)
	if !ok {
		return errors.NewValidationError("unexpected event payload").WithDetail("event_type", event.Type())
	}
	_, err := r.Append(ctx, evt)
	return err
}

func parseChangeEvent(msg redis.XMessage) (model.ChangeEvent, error) {
	evt := model.ChangeEvent{Sequence: msg.ID}
	evt.Kind = model.ChangeKind(stringValue(msg.Values, "kind"))
	evt.DatabaseID = stringValue(msg.Values, "databaseId")
	evt.CollectionID = stringValue(msg.Values, "collectionId")
	evt.DocumentID = stringValue(msg.Values, "documentId")
	evt.ResourceID = stringValue(msg.Values, "resourceId")

	if evt.Kind == "" || evt.DocumentID == "" {
		return evt, errors.NewValidationError("change event is missing kind or document id")
	}
	if ts := stringValue(msg.Values, "timestamp"); ts != "" {
		nanos, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return evt, errors.NewValidationError("invalid change event timestamp").WithCause(err)
		}
		evt.Timestamp = time.Unix(0, nanos).UTC()
	}
	return evt, nil
}

func stringValue(values map[string]interface{}, key string) string {
	s, _ := values[key].(string)
	return s
}
