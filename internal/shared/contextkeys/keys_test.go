package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKey_String(t *testing.T) {
	key := contextKey("testKey")
	assert.Equal(t, "docdb-binder context key testKey", key.String())
}

func TestContextKeys_Usage(t *testing.T) {
	ctx := context.Background()
	ctx = context.WithValue(ctx, RequestIDKey, "req-456")
	ctx = context.WithValue(ctx, DatabaseIDKey, "db1")
	ctx = context.WithValue(ctx, CollectionKey, "Widgets")
	ctx = context.WithValue(ctx, ComponentKey, "component-logger")
	ctx = context.WithValue(ctx, OperationKey, "operation-read")

	assert.Equal(t, "req-456", ctx.Value(RequestIDKey))
	assert.Equal(t, "db1", ctx.Value(DatabaseIDKey))
	assert.Equal(t, "Widgets", ctx.Value(CollectionKey))
	assert.Equal(t, "component-logger", ctx.Value(ComponentKey))
	assert.Equal(t, "operation-read", ctx.Value(OperationKey))
}
