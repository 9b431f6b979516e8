// Package catalog is the schema served by the host binary: widgets and the gadgets
// built from them, each kept in its own collection.
package catalog

import (
	"context"

	httpadapter "docdb-binder/internal/collections/adapter/http"
	"docdb-binder/internal/collections/domain/model"
	"docdb-binder/internal/collections/usecase"
	"docdb-binder/internal/shared/errors"

	"github.com/gofiber/fiber/v2"
)

// Slot names, which are also the collection names.
const (
	WidgetsSlot = "Widgets"
	GadgetsSlot = "Gadgets"
)

// Widget is a priced part. Names are unique.
type Widget struct {
	model.Resource `bson:",inline"`
	Name           string   `json:"name" bson:"name"`
	Price          float64  `json:"price" bson:"price"`
	Tags           []string `json:"tags,omitempty" bson:"tags,omitempty"`
}

// Gadget references the widget it is built from.
type Gadget struct {
	model.Resource `bson:",inline"`
	Name           string `json:"name" bson:"name"`
	WidgetID       string `json:"widgetId" bson:"widget_id"`
}

// Catalog declares the slots and exposes their accessors once bound.
type Catalog struct {
	Widgets *usecase.Slot[*Widget]
	Gadgets *usecase.Slot[*Gadget]

	schema *usecase.Schema
}

// New declares a fresh, unbound catalog.
func New() *Catalog {
	c := &Catalog{
		Widgets: usecase.NewSlot[*Widget](WidgetsSlot, usecase.WithUniqueKeys("name")),
		Gadgets: usecase.NewSlot[*Gadget](GadgetsSlot),
	}
	c.schema = usecase.MustSchema(c.Widgets, c.Gadgets)
	return c
}

// Schema returns the slots in declaration order.
func (c *Catalog) Schema() *usecase.Schema {
	return c.schema
}

// RegisterRoutes mounts the document routes of every slot.
func (c *Catalog) RegisterRoutes(router fiber.Router, h *httpadapter.Handler) {
	httpadapter.RegisterSlot[*Widget](router, h, WidgetsSlot)
	httpadapter.RegisterSlot[*Gadget](router, h, GadgetsSlot)
}

// AddGadget stores g after checking that its widget exists.
func (c *Catalog) AddGadget(ctx context.Context, g *Gadget) (*usecase.DocumentResponse[*Gadget], error) {
	widgets, err := c.Widgets.Get()
	if err != nil {
		return nil, err
	}
	gadgets, err := c.Gadgets.Get()
	if err != nil {
		return nil, err
	}

	if g == nil || g.WidgetID == "" {
		return nil, errors.NewValidationError("gadget must reference a widget")
	}
	_, ok, err := widgets.Find(ctx, g.WidgetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewValidationError("gadget references an unknown widget").
			WithDetail("widget_id", g.WidgetID)
	}
	return gadgets.AddOrUpdate(ctx, g)
}

// GadgetsFor lists the gadgets built from a widget, ordered by name.
func (c *Catalog) GadgetsFor(ctx context.Context, widgetID string) ([]*Gadget, error) {
	gadgets, err := c.Gadgets.Get()
	if err != nil {
		return nil, err
	}
	return gadgets.Query().
		WhereEqual("widget_id", widgetID).
		OrderBy("name", model.Ascending).
		All(ctx)
}

// RemoveWidget deletes a widget together with its gadgets. Gadgets go first so a
// failure never leaves gadgets pointing at a missing widget.
func (c *Catalog) RemoveWidget(ctx context.Context, widgetID string) error {
	widgets, err := c.Widgets.Get()
	if err != nil {
		return err
	}
	gadgets, err := c.Gadgets.Get()
	if err != nil {
		return err
	}

	dependents, err := c.GadgetsFor(ctx, widgetID)
	if err != nil {
		return err
	}
	if _, err := gadgets.RemoveRange(ctx, dependents); err != nil {
		return err
	}
	_, err = widgets.Remove(ctx, widgetID)
	return err
}
