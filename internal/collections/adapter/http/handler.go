package http

import (
	"context"
	stderrors "errors"
	"time"

	"docdb-binder/internal/collections/domain/model"
	"docdb-binder/internal/collections/usecase"
	"docdb-binder/internal/shared/contextkeys"
	"docdb-binder/internal/shared/errors"
	"docdb-binder/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

// ChangeFeed reads recorded document changes of a collection.
type ChangeFeed interface {
	ReadSince(ctx context.Context, databaseID, collectionID, afterID string, count int64) ([]model.ChangeEvent, error)
}

// HealthCheck reports whether the backing services are reachable.
type HealthCheck func(ctx context.Context) error

// Handler serves the slots of one CollectionManager over REST.
type Handler struct {
	Manager *usecase.CollectionManager
	Changes ChangeFeed
	Health  HealthCheck
	Log     logger.Logger
}

// NewHandler creates a Handler. changes and health may be nil.
func NewHandler(manager *usecase.CollectionManager, changes ChangeFeed, health HealthCheck, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Handler{
		Manager: manager,
		Changes: changes,
		Health:  health,
		Log:     log.WithComponent("collections_http"),
	}
}

// RegisterRoutes mounts the slot-independent endpoints. Typed document routes are
// added per slot with RegisterSlot.
func (h *Handler) RegisterRoutes(router fiber.Router) {
	router.Get("/health", h.HealthStatus)

	v1 := router.Group("/v1")
	v1.Get("/slots", h.ListSlots)
}

// HealthStatus answers 200 when the health check passes and 503 otherwise.
func (h *Handler) HealthStatus(c *fiber.Ctx) error {
	if h.Health != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
		defer cancel()

		if err := h.Health(ctx); err != nil {
			h.Log.Errorf("health check failed: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "UNHEALTHY",
				"error":  err.Error(),
			})
		}
	}

	return c.JSON(fiber.Map{
		"status":    "HEALTHY",
		"database":  h.Manager.DatabaseID(),
		"bound":     h.Manager.Bound(),
		"unbound":   h.Manager.Unbound(),
		"timestamp": time.Now().UTC(),
	})
}

type slotStatus struct {
	Name       string `json:"name"`
	ModelType  string `json:"modelType"`
	Bound      bool   `json:"bound"`
	SelfLink   string `json:"_self,omitempty"`
	ResourceID string `json:"_rid,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ListSlots describes every declared slot and its binding state.
func (h *Handler) ListSlots(c *fiber.Ctx) error {
	slots := h.Manager.Slots()
	out := make([]slotStatus, 0, len(slots))
	for _, slot := range slots {
		status := slotStatus{
			Name:      slot.Name(),
			ModelType: slot.ModelType(),
			Bound:     slot.Bound(),
		}
		if handle := h.Manager.Handle(slot.Name()); handle != nil {
			status.SelfLink = handle.SelfLink
			status.ResourceID = handle.ResourceID
		}
		if err := h.Manager.SlotError(slot.Name()); err != nil {
			status.Error = err.Error()
		}
		out = append(out, status)
	}

	return c.JSON(fiber.Map{
		"database": h.Manager.DatabaseID(),
		"slots":    out,
	})
}

// respondError writes err as a JSON error body with the status derived from its type.
func (h *Handler) respondError(c *fiber.Ctx, op string, err error) error {
	status := errors.HTTPStatus(err)
	code := "INTERNAL_ERROR"

	var appErr *errors.AppError
	var batchErr *errors.BatchError
	switch {
	case stderrors.Is(err, errors.ErrSlotNotBound):
		status = fiber.StatusServiceUnavailable
		code = string(errors.ErrorTypeConfiguration)
	case stderrors.As(err, &batchErr):
		code = string(errors.ErrorTypePartialBatch)
	case stderrors.As(err, &appErr):
		code = string(appErr.Type)
	case errors.IsCanceled(err):
		code = "CANCELED"
	}

	fields := map[string]interface{}{
		"operation": op,
		"path":      c.Path(),
		"status":    status,
	}
	if status >= fiber.StatusInternalServerError {
		h.Log.WithFields(fields).Errorf("request failed: %v", err)
	} else {
		h.Log.WithFields(fields).Debugf("request rejected: %v", err)
	}

	body := fiber.Map{
		"error":   code,
		"message": err.Error(),
	}
	if batchErr != nil {
		body["succeeded"] = batchErr.Succeeded
		body["failedIndex"] = batchErr.FailedIndex
		body["failedId"] = batchErr.FailedID
	}
	return c.Status(status).JSON(body)
}

// requestContext tags the request context with the fields the loggers pick up.
func (h *Handler) requestContext(c *fiber.Ctx, collection, op string) context.Context {
	ctx := c.UserContext()
	rid := c.Get(fiber.HeaderXRequestID)
	if rid == "" {
		rid = c.GetRespHeader(fiber.HeaderXRequestID)
	}
	if rid != "" {
		ctx = context.WithValue(ctx, contextkeys.RequestIDKey, rid)
	}
	ctx = context.WithValue(ctx, contextkeys.DatabaseIDKey, h.Manager.DatabaseID())
	ctx = context.WithValue(ctx, contextkeys.CollectionKey, collection)
	return context.WithValue(ctx, contextkeys.OperationKey, op)
}
