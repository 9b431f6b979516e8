package memory

import (
	"context"

	"docdb-binder/internal/shared/errors"

	"go.mongodb.org/mongo-driver/bson"
)

// cursor walks a query result snapshot.
type cursor struct {
	docs    []bson.Raw
	pos     int
	current bson.Raw
	err     error
	closed  bool
}

func newCursor(docs []bson.Raw) *cursor {
	return &cursor{docs: docs}
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.closed || c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.pos >= len(c.docs) {
		return false
	}
	c.current = c.docs[c.pos]
	c.pos++
	return true
}

func (c *cursor) Decode(val interface{}) error {
	if c.current == nil {
		return errors.NewInternalError("decode called before next")
	}
	return bson.Unmarshal(c.current, val)
}

func (c *cursor) Close(context.Context) error {
	c.closed = true
	c.docs = nil
	return nil
}

func (c *cursor) Err() error { return c.err }
