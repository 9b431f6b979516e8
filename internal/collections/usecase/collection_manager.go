package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"docdb-binder/internal/collections/domain/client"
	"docdb-binder/internal/collections/domain/model"
	"docdb-binder/internal/shared/errors"
	"docdb-binder/internal/shared/eventbus"
	"docdb-binder/internal/shared/logger"

	"golang.org/x/sync/errgroup"
)

const defaultProvisioningConcurrency = 4

// ProvisioningError lists the slots that could not be bound during Initialize.
// Other slots are bound and usable; failed slots stay unbound.
type ProvisioningError struct {
	DatabaseID string
	Failures   map[string]error
}

func (e *ProvisioningError) Error() string {
	names := e.FailedSlots()
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failures[name]))
	}
	return fmt.Sprintf("provisioning of database %q failed for %d slot(s): %s",
		e.DatabaseID, len(names), strings.Join(parts, "; "))
}

// Unwrap exposes every slot failure to errors.Is and errors.As.
func (e *ProvisioningError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, name := range e.FailedSlots() {
		out = append(out, e.Failures[name])
	}
	return out
}

// FailedSlots returns the failed slot names, sorted.
func (e *ProvisioningError) FailedSlots() []string {
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ManagerOption configures a CollectionManager.
type ManagerOption func(*CollectionManager)

// WithCreateIfMissing creates the database when it does not exist instead of failing.
func WithCreateIfMissing(create bool) ManagerOption {
	return func(m *CollectionManager) { m.createIfMissing = create }
}

// WithLogger sets the logger for the manager and the accessors it binds.
func WithLogger(log logger.Logger) ManagerOption {
	return func(m *CollectionManager) {
		if log != nil {
			m.logger = log
		}
	}
}

// WithEventBus publishes provisioning events and makes every bound accessor publish
// document change events.
func WithEventBus(bus eventbus.EventBusInterface) ManagerOption {
	return func(m *CollectionManager) { m.events = bus }
}

// WithProvisioningConcurrency bounds how many slots are provisioned at once.
func WithProvisioningConcurrency(n int) ManagerOption {
	return func(m *CollectionManager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithCollectionOptions passes extra options to every accessor the manager binds.
func WithCollectionOptions(opts ...CollectionOption) ManagerOption {
	return func(m *CollectionManager) { m.collectionOpts = append(m.collectionOpts, opts...) }
}

// CollectionManager resolves (or creates) a database and binds every slot of a
// Schema to an accessor over a collection named after the slot.
type CollectionManager struct {
	client          client.DatabaseClient
	databaseID      string
	schema          *Schema
	createIfMissing bool
	concurrency     int
	logger          logger.Logger
	events          eventbus.EventBusInterface
	collectionOpts  []CollectionOption

	database *model.Database

	mu          sync.RWMutex
	initialized bool
	handles     map[string]*model.CollectionHandle
	accessors   map[string]interface{}
	failures    map[string]error
}

// NewCollectionManager resolves the database and provisions every slot of schema.
//
// When the database is absent and creation is not enabled, a CONFIGURATION error
// wrapping errors.ErrDatabaseNotFound is returned with a nil manager. When some slots
// fail to provision, the manager is returned together with a *ProvisioningError; the
// other slots are bound and usable.
func NewCollectionManager(ctx context.Context, c client.DatabaseClient, databaseID string, schema *Schema, opts ...ManagerOption) (*CollectionManager, error) {
	m, err := Construct(ctx, c, databaseID, schema, opts...)
	if err != nil {
		return nil, err
	}
	if err := m.Initialize(ctx); err != nil {
		return m, err
	}
	return m, nil
}

// Construct resolves (or creates) the database without provisioning any slot.
// Call Initialize to bind the slots.
func Construct(ctx context.Context, c client.DatabaseClient, databaseID string, schema *Schema, opts ...ManagerOption) (*CollectionManager, error) {
	if c == nil {
		return nil, errors.NewValidationError("database client cannot be nil")
	}
	if databaseID == "" {
		return nil, errors.NewValidationError("database id cannot be empty")
	}
	if schema == nil {
		schema = &Schema{}
	}

	m := &CollectionManager{
		client:      c,
		databaseID:  databaseID,
		schema:      schema,
		concurrency: defaultProvisioningConcurrency,
		logger:      logger.NewNopLogger(),
		handles:     make(map[string]*model.CollectionHandle),
		accessors:   make(map[string]interface{}),
		failures:    make(map[string]error),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("collection_manager").WithFields(map[string]interface{}{
		"database_id": databaseID,
	})

	db, err := m.resolveDatabase(ctx)
	if err != nil {
		return nil, err
	}
	m.database = db
	return m, nil
}

func (m *CollectionManager) resolveDatabase(ctx context.Context) (*model.Database, error) {
	db, err := m.client.ResolveDatabase(ctx, m.databaseID)
	if err != nil {
		return nil, err
	}
	if db != nil {
		m.logger.Debug("resolved existing database")
		return db, nil
	}

	if !m.createIfMissing {
		return nil, errors.NewConfigurationError(fmt.Sprintf("database %q does not exist and creation is disabled", m.databaseID)).
			WithCause(errors.ErrDatabaseNotFound).
			WithComponent("collection_manager").
			WithDetail("database_id", m.databaseID)
	}

	db, err = m.client.CreateDatabase(ctx, m.databaseID)
	if errors.IsConflict(err) {
		// another process created it between our lookup and create
		db, err = m.client.ResolveDatabase(ctx, m.databaseID)
		if err == nil && db == nil {
			err = errors.NewNotFoundError("database " + m.databaseID).WithCause(errors.ErrDatabaseNotFound)
		}
	}
	if err != nil {
		return nil, err
	}

	m.logger.Info("created database")
	m.publish(ctx, eventbus.EventTypeDatabaseProvisioned, db)
	return db, nil
}

// Initialize provisions every slot of the schema: it resolves the collection named after
// the slot, creates it when missing, and binds an accessor. Slots are independent;
// a failure leaves that slot unbound without affecting the others and is reported in
// the returned *ProvisioningError. Initialize runs once per manager.
func (m *CollectionManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return errors.NewConflictError("collection manager already initialized")
	}
	m.initialized = true
	m.mu.Unlock()

	slots := m.schema.Slots()
	m.logger.Infof("provisioning %d collection slot(s)", len(slots))

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for _, slot := range slots {
		slot := slot
		g.Go(func() error {
			if err := m.provisionSlot(ctx, slot); err != nil {
				m.mu.Lock()
				m.failures[slot.Name()] = err
				m.mu.Unlock()

				m.logger.WithFields(map[string]interface{}{
					"slot":       slot.Name(),
					"model_type": slot.ModelType(),
				}).Errorf("failed to provision slot: %v", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.failures) > 0 {
		failures := make(map[string]error, len(m.failures))
		for name, err := range m.failures {
			failures[name] = err
		}
		return &ProvisioningError{DatabaseID: m.databaseID, Failures: failures}
	}
	return nil
}

func (m *CollectionManager) provisionSlot(ctx context.Context, slot SlotBinding) error {
	name := slot.Name()

	handle, err := m.client.ResolveCollection(ctx, m.database, name)
	if err != nil {
		return err
	}

	if handle == nil {
		handle, err = m.client.CreateCollection(ctx, m.database, slot.Spec())
		if errors.IsConflict(err) {
			handle, err = m.client.ResolveCollection(ctx, m.database, name)
			if err == nil && handle == nil {
				err = errors.NewNotFoundError("collection " + name).WithCause(errors.ErrCollectionNotFound)
			}
		} else if err == nil {
			m.logger.WithFields(map[string]interface{}{"slot": name}).Info("created collection")
			m.publish(ctx, eventbus.EventTypeCollectionProvisioned, handle)
		}
		if err != nil {
			return err
		}
	}

	opts := append([]CollectionOption{WithCollectionLogger(m.logger)}, m.collectionOpts...)
	if m.events != nil {
		opts = append(opts, WithChangeEvents(m.events))
	}
	accessor := slot.bind(m.client, handle, opts...)

	m.mu.Lock()
	m.handles[name] = handle
	m.accessors[name] = accessor
	m.mu.Unlock()

	m.logger.WithFields(map[string]interface{}{
		"slot":       name,
		"model_type": slot.ModelType(),
		"link":       handle.SelfLink,
	}).Debug("bound collection slot")
	return nil
}

func (m *CollectionManager) publish(ctx context.Context, eventType string, data interface{}) {
	if m.events == nil {
		return
	}
	m.events.PublishAndForget(ctx, eventbus.NewBasicEventWithSource(eventType, data, "collection_manager"))
}

// DatabaseID returns the identifier the manager was constructed with.
func (m *CollectionManager) DatabaseID() string { return m.databaseID }

// Database returns the resolved database handle.
func (m *CollectionManager) Database() *model.Database { return m.database }

// Schema returns the schema the manager provisions.
func (m *CollectionManager) Schema() *Schema { return m.schema }

// Slots returns the declared slots in declaration order.
func (m *CollectionManager) Slots() []SlotBinding { return m.schema.Slots() }

// Handle returns the collection handle bound to a slot, or nil when unbound.
func (m *CollectionManager) Handle(name string) *model.CollectionHandle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handles[name]
}

// Bound returns the names of bound slots, sorted.
func (m *CollectionManager) Bound() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.accessors))
	for name := range m.accessors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unbound returns the names of declared slots without an accessor, in declaration order.
func (m *CollectionManager) Unbound() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for _, slot := range m.schema.Slots() {
		if _, ok := m.accessors[slot.Name()]; !ok {
			names = append(names, slot.Name())
		}
	}
	return names
}

// SlotError returns the provisioning failure recorded for a slot, if any.
func (m *CollectionManager) SlotError(name string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failures[name]
}

// Close logs shutdown. The manager holds no remote resources of its own; the
// database client is owned and closed by the caller.
func (m *CollectionManager) Close() error {
	m.logger.Debug("collection manager closed")
	return nil
}

// Accessor looks up the accessor bound to the named slot and checks its model type.
func Accessor[T model.Model](m *CollectionManager, name string) (*Collection[T], error) {
	m.mu.RLock()
	raw, ok := m.accessors[name]
	cause := m.failures[name]
	m.mu.RUnlock()

	if !ok {
		err := errors.NewConfigurationError(fmt.Sprintf("slot %q is not bound", name)).
			WithCause(errors.ErrSlotNotBound).
			WithDetail("slot", name)
		if cause != nil {
			err.WithDetail("provisioning_error", cause.Error())
		}
		return nil, err
	}

	coll, ok := raw.(*Collection[T])
	if !ok {
		var zero T
		return nil, errors.NewValidationError(fmt.Sprintf("slot %q does not hold %T", name, zero)).
			WithDetail("slot", name)
	}
	return coll, nil
}
