package contextkeys

// contextKey is an unexported type to prevent collisions with context keys defined in
// other packages.
type contextKey string

// String makes contextKey satisfy the Stringer interface to assist with debugging.
func (c contextKey) String() string {
	return "docdb-binder context key " + string(c)
}

const (
	// RequestIDKey carries the request ID of the inbound call, if any.
	RequestIDKey = contextKey("requestID")

	// DatabaseIDKey carries the logical database a call is bound to.
	DatabaseIDKey = contextKey("databaseID")

	// CollectionKey carries the collection name a call is bound to.
	CollectionKey = contextKey("collection")

	// ComponentKey names the component emitting a log line.
	ComponentKey = contextKey("component")

	// OperationKey names the accessor or client operation in flight.
	OperationKey = contextKey("operation")
)
