package observability

import (
	"context"
	"time"

	"docdb-binder/internal/collections/domain/client"
	"docdb-binder/internal/collections/domain/model"
	"docdb-binder/internal/shared/errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "docdb-binder/collections"

// Operation labels.
const (
	OpResolveDatabase   = "resolve_database"
	OpCreateDatabase    = "create_database"
	OpResolveCollection = "resolve_collection"
	OpCreateCollection  = "create_collection"
	OpCreateDocument    = "create_document"
	OpReplaceDocument   = "replace_document"
	OpDeleteDocument    = "delete_document"
	OpQuery             = "query"
	OpCount             = "count"
)

// Metrics holds the client-side collectors.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	charge     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docdb_client_operations_total",
				Help: "Total number of database client operations.",
			},
			[]string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docdb_client_operation_duration_seconds",
				Help:    "Latency of database client operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		charge: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docdb_client_request_charge_total",
				Help: "Request units reported by document writes.",
			},
			[]string{"operation"},
		),
	}

	for _, c := range []prometheus.Collector{m.operations, m.duration, m.charge} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// InstrumentedClient wraps a DatabaseClient with metrics and a span per operation.
// It always implements client.Counter; when the wrapped client cannot count, the
// query results are streamed and counted.
type InstrumentedClient struct {
	next    client.DatabaseClient
	metrics *Metrics
	tracer  trace.Tracer
}

// Option configures an InstrumentedClient.
type Option func(*InstrumentedClient)

// WithTracerProvider uses tp instead of the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *InstrumentedClient) {
		c.tracer = tp.Tracer(instrumentationName)
	}
}

// Instrument decorates next. A nil metrics records spans only.
func Instrument(next client.DatabaseClient, metrics *Metrics, opts ...Option) *InstrumentedClient {
	c := &InstrumentedClient{
		next:    next,
		metrics: metrics,
		tracer:  otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Unwrap returns the decorated client.
func (c *InstrumentedClient) Unwrap() client.DatabaseClient {
	return c.next
}

func (c *InstrumentedClient) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := c.tracer.Start(ctx, "docdb."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs, attribute.String("db.operation", op))...),
	)
	started := time.Now()

	return ctx, func(err error) {
		outcome := Outcome(err)
		span.SetAttributes(attribute.String("docdb.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if c.metrics != nil {
			c.metrics.operations.WithLabelValues(op, outcome).Inc()
			c.metrics.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
		}
	}
}

func (c *InstrumentedClient) recordCharge(op string, res *model.DocumentResult) {
	if c.metrics != nil && res != nil && res.RequestCharge > 0 {
		c.metrics.charge.WithLabelValues(op).Add(res.RequestCharge)
	}
}

// Outcome classifies err into a metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.IsCanceled(err):
		return "canceled"
	case errors.IsNotFound(err):
		return "not_found"
	case errors.IsConflict(err):
		return "conflict"
	case errors.IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}

func (c *InstrumentedClient) ResolveDatabase(ctx context.Context, databaseID string) (db *model.Database, err error) {
	ctx, done := c.start(ctx, OpResolveDatabase, attribute.String("db.name", databaseID))
	defer func() { done(err) }()
	return c.next.ResolveDatabase(ctx, databaseID)
}

func (c *InstrumentedClient) CreateDatabase(ctx context.Context, databaseID string) (db *model.Database, err error) {
	ctx, done := c.start(ctx, OpCreateDatabase, attribute.String("db.name", databaseID))
	defer func() { done(err) }()
	return c.next.CreateDatabase(ctx, databaseID)
}

func (c *InstrumentedClient) ResolveCollection(ctx context.Context, db *model.Database, name string) (h *model.CollectionHandle, err error) {
	ctx, done := c.start(ctx, OpResolveCollection, attribute.String("db.collection.name", name))
	defer func() { done(err) }()
	return c.next.ResolveCollection(ctx, db, name)
}

func (c *InstrumentedClient) CreateCollection(ctx context.Context, db *model.Database, spec model.CollectionSpec) (h *model.CollectionHandle, err error) {
	ctx, done := c.start(ctx, OpCreateCollection, attribute.String("db.collection.name", spec.ID))
	defer func() { done(err) }()
	return c.next.CreateCollection(ctx, db, spec)
}

func (c *InstrumentedClient) CreateDocument(ctx context.Context, coll *model.CollectionHandle, doc model.Model) (res *model.DocumentResult, err error) {
	ctx, done := c.start(ctx, OpCreateDocument, attribute.String("db.collection.name", coll.ID))
	defer func() { done(err) }()
	res, err = c.next.CreateDocument(ctx, coll, doc)
	c.recordCharge(OpCreateDocument, res)
	return res, err
}

func (c *InstrumentedClient) ReplaceDocument(ctx context.Context, documentLink string, doc model.Model) (res *model.DocumentResult, err error) {
	ctx, done := c.start(ctx, OpReplaceDocument, attribute.String("docdb.link", documentLink))
	defer func() { done(err) }()
	res, err = c.next.ReplaceDocument(ctx, documentLink, doc)
	c.recordCharge(OpReplaceDocument, res)
	return res, err
}

func (c *InstrumentedClient) DeleteDocument(ctx context.Context, documentLink string) (res *model.DocumentResult, err error) {
	ctx, done := c.start(ctx, OpDeleteDocument, attribute.String("docdb.link", documentLink))
	defer func() { done(err) }()
	res, err = c.next.DeleteDocument(ctx, documentLink)
	c.recordCharge(OpDeleteDocument, res)
	return res, err
}

// Query times cursor creation only; iteration is attributed to the caller.
func (c *InstrumentedClient) Query(ctx context.Context, coll *model.CollectionHandle, spec model.QuerySpec) (cur client.Cursor, err error) {
	ctx, done := c.start(ctx, OpQuery,
		attribute.String("db.collection.name", coll.ID),
		attribute.Int("docdb.filters", len(spec.Filters)),
		attribute.Bool("docdb.native", spec.Expression != ""),
	)
	defer func() { done(err) }()
	return c.next.Query(ctx, coll, spec)
}

func (c *InstrumentedClient) Count(ctx context.Context, coll *model.CollectionHandle, spec model.QuerySpec) (n int64, err error) {
	ctx, done := c.start(ctx, OpCount, attribute.String("db.collection.name", coll.ID))
	defer func() { done(err) }()

	if counter, ok := c.next.(client.Counter); ok {
		return counter.Count(ctx, coll, spec)
	}

	cur, err := c.next.Query(ctx, coll, spec)
	if err != nil {
		return 0, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		n++
	}
	return n, cur.Err()
}

var (
	_ client.DatabaseClient = (*InstrumentedClient)(nil)
	_ client.Counter        = (*InstrumentedClient)(nil)
)
