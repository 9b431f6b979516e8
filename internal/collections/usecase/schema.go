package usecase

import (
	"fmt"
	"sync/atomic"

	"docdb-binder/internal/collections/domain/client"
	"docdb-binder/internal/collections/domain/model"
	"docdb-binder/internal/shared/errors"
	"docdb-binder/internal/shared/links"
)

// SlotBinding is one named entry of a Schema. It is implemented by *Slot[T].
type SlotBinding interface {
	// Name is both the slot name and the backing collection name.
	Name() string
	// ModelType describes the model type bound to the slot, e.g. "*catalog.Widget".
	ModelType() string
	// Spec describes the collection to create when it is missing.
	Spec() model.CollectionSpec
	// Bound reports whether an accessor has been assigned.
	Bound() bool

	bind(c client.DatabaseClient, handle *model.CollectionHandle, opts ...CollectionOption) interface{}
}

// Slot is a typed, named binding from a model type to a collection accessor.
// Collection returns nil until a CollectionManager binds the slot.
type Slot[T model.Model] struct {
	name       string
	uniqueKeys []string
	collection atomic.Pointer[Collection[T]]
}

// SlotOption configures a Slot.
type SlotOption func(*slotConfig)

type slotConfig struct {
	uniqueKeys []string
}

// WithUniqueKeys declares extra unique single-field keys for the slot's collection.
func WithUniqueKeys(fields ...string) SlotOption {
	return func(c *slotConfig) { c.uniqueKeys = append(c.uniqueKeys, fields...) }
}

// NewSlot declares a slot named name holding documents of type T.
func NewSlot[T model.Model](name string, opts ...SlotOption) *Slot[T] {
	var cfg slotConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Slot[T]{name: name, uniqueKeys: cfg.uniqueKeys}
}

func (s *Slot[T]) Name() string { return s.name }

func (s *Slot[T]) ModelType() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}

func (s *Slot[T]) Spec() model.CollectionSpec {
	return model.CollectionSpec{ID: s.name, UniqueKeys: append([]string(nil), s.uniqueKeys...)}
}

func (s *Slot[T]) Bound() bool { return s.collection.Load() != nil }

// Collection returns the bound accessor, or nil when the slot is unbound.
func (s *Slot[T]) Collection() *Collection[T] { return s.collection.Load() }

// Get returns the bound accessor or an error wrapping errors.ErrSlotNotBound.
func (s *Slot[T]) Get() (*Collection[T], error) {
	if coll := s.collection.Load(); coll != nil {
		return coll, nil
	}
	return nil, errors.NewConfigurationError(fmt.Sprintf("slot %q is not bound", s.name)).WithCause(errors.ErrSlotNotBound)
}

func (s *Slot[T]) bind(c client.DatabaseClient, handle *model.CollectionHandle, opts ...CollectionOption) interface{} {
	coll := NewCollection[T](c, handle, opts...)
	s.collection.Store(coll)
	return coll
}

// Schema is the explicit set of slots an application exposes.
type Schema struct {
	slots []SlotBinding
}

// NewSchema validates and collects slots. Names must be non-empty, usable as link
// segments, and unique.
func NewSchema(slots ...SlotBinding) (*Schema, error) {
	verrs := errors.NewValidationErrors()
	seen := make(map[string]bool, len(slots))

	for i, slot := range slots {
		if slot == nil {
			verrs.Add(fmt.Sprintf("slots[%d]", i), "slot cannot be nil", nil)
			continue
		}
		name := slot.Name()
		switch {
		case !links.IsValidID(name):
			verrs.Add(fmt.Sprintf("slots[%d]", i), "invalid slot name", name)
		case seen[name]:
			verrs.Add(fmt.Sprintf("slots[%d]", i), "duplicate slot name", name)
		}
		seen[name] = true
	}

	if verrs.HasErrors() {
		return nil, verrs.ToAppError()
	}
	return &Schema{slots: append([]SlotBinding(nil), slots...)}, nil
}

// MustSchema is NewSchema that panics on invalid input, for package-level declarations.
func MustSchema(slots ...SlotBinding) *Schema {
	schema, err := NewSchema(slots...)
	if err != nil {
		panic(err)
	}
	return schema
}

// Slots returns the declared slots in declaration order.
func (s *Schema) Slots() []SlotBinding {
	if s == nil {
		return nil
	}
	return append([]SlotBinding(nil), s.slots...)
}

// Names returns the declared slot names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, 0, len(s.Slots()))
	for _, slot := range s.Slots() {
		names = append(names, slot.Name())
	}
	return names
}
