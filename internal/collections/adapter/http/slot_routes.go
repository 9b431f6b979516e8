package http

import (
	"encoding/json"
	stderrors "errors"
	"reflect"
	"strconv"
	"strings"

	"docdb-binder/internal/collections/domain/model"
	"docdb-binder/internal/collections/usecase"
	"docdb-binder/internal/shared/errors"

	"github.com/gofiber/fiber/v2"
)

const maxPageSize = 1000

// RegisterSlot mounts the document routes of one slot under /v1/collections/{name}.
// The accessor is looked up per request, so a slot that failed to provision answers
// 503 until the process is restarted.
//
//	GET    /v1/collections/{name}/docs        query (where, orderBy, direction, skip, limit, q)
//	POST   /v1/collections/{name}/docs        upsert a JSON array of documents in order
//	GET    /v1/collections/{name}/docs/{id}   find by id
//	PUT    /v1/collections/{name}/docs/{id}   upsert one document
//	DELETE /v1/collections/{name}/docs/{id}   remove by id
//	GET    /v1/collections/{name}/count       count matches
//	GET    /v1/collections/{name}/changes     recorded changes (after, count)
func RegisterSlot[T model.Model](router fiber.Router, h *Handler, name string) {
	r := &slotRoutes[T]{h: h, name: name}

	group := router.Group("/v1/collections/" + name)
	group.Get("/docs", r.list)
	group.Post("/docs", r.upsertAll)
	group.Get("/docs/:id", r.get)
	group.Put("/docs/:id", r.put)
	group.Delete("/docs/:id", r.remove)
	group.Get("/count", r.count)
	group.Get("/changes", r.changes)
}

type slotRoutes[T model.Model] struct {
	h    *Handler
	name string
}

type documentBody[T model.Model] struct {
	Document      T       `json:"document"`
	Created       bool    `json:"created"`
	StatusCode    int     `json:"statusCode"`
	RequestCharge float64 `json:"requestCharge,omitempty"`
}

func toBody[T model.Model](resp *usecase.DocumentResponse[T]) documentBody[T] {
	body := documentBody[T]{Document: resp.Document, Created: resp.Created}
	if resp.Result != nil {
		body.StatusCode = resp.Result.StatusCode
		body.RequestCharge = resp.Result.RequestCharge
	}
	return body
}

func (r *slotRoutes[T]) accessor() (*usecase.Collection[T], error) {
	return usecase.Accessor[T](r.h.Manager, r.name)
}

func (r *slotRoutes[T]) get(c *fiber.Ctx) error {
	coll, err := r.accessor()
	if err != nil {
		return r.h.respondError(c, "find", err)
	}

	doc, ok, err := coll.Find(r.h.requestContext(c, r.name, "find"), c.Params("id"))
	if err != nil {
		return r.h.respondError(c, "find", err)
	}
	if !ok {
		return r.h.respondError(c, "find", errors.NewNotFoundError("document "+c.Params("id")))
	}
	return c.JSON(doc)
}

func (r *slotRoutes[T]) put(c *fiber.Ctx) error {
	coll, err := r.accessor()
	if err != nil {
		return r.h.respondError(c, "add_or_update", err)
	}

	var entity T
	if err := json.Unmarshal(c.Body(), &entity); err != nil {
		return r.h.respondError(c, "add_or_update",
			errors.NewValidationError("request body is not a valid document").WithCause(err))
	}
	if isNilModel(entity) {
		return r.h.respondError(c, "add_or_update", errors.NewValidationError("request body is empty"))
	}

	id := c.Params("id")
	if entity.GetID() != "" && entity.GetID() != id {
		return r.h.respondError(c, "add_or_update",
			errors.NewValidationError("document id does not match the path").WithDetail("id", entity.GetID()))
	}
	entity.SetID(id)

	resp, err := coll.AddOrUpdate(r.h.requestContext(c, r.name, "add_or_update"), entity)
	if err != nil {
		return r.h.respondError(c, "add_or_update", err)
	}

	status := fiber.StatusOK
	if resp.Created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(toBody(resp))
}

func (r *slotRoutes[T]) upsertAll(c *fiber.Ctx) error {
	coll, err := r.accessor()
	if err != nil {
		return r.h.respondError(c, "add_or_update_all", err)
	}

	var entities []T
	if err := json.Unmarshal(c.Body(), &entities); err != nil {
		return r.h.respondError(c, "add_or_update_all",
			errors.NewValidationError("request body must be a JSON array of documents").WithCause(err))
	}

	responses, err := coll.AddOrUpdateAll(r.h.requestContext(c, r.name, "add_or_update_all"), entities)
	bodies := make([]documentBody[T], 0, len(responses))
	for _, resp := range responses {
		bodies = append(bodies, toBody(resp))
	}

	if err != nil {
		var batchErr *errors.BatchError
		if !stderrors.As(err, &batchErr) {
			return r.h.respondError(c, "add_or_update_all", err)
		}
		r.h.Log.WithFields(map[string]interface{}{
			"collection":   r.name,
			"failed_index": batchErr.FailedIndex,
			"failed_id":    batchErr.FailedID,
		}).Warnf("batch upsert stopped early: %v", batchErr.Cause)

		return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{
			"results":     bodies,
			"error":       string(errors.ErrorTypePartialBatch),
			"message":     err.Error(),
			"failedIndex": batchErr.FailedIndex,
			"failedId":    batchErr.FailedID,
		})
	}
	return c.JSON(fiber.Map{"results": bodies})
}

func (r *slotRoutes[T]) remove(c *fiber.Ctx) error {
	coll, err := r.accessor()
	if err != nil {
		return r.h.respondError(c, "remove", err)
	}

	result, err := coll.Remove(r.h.requestContext(c, r.name, "remove"), c.Params("id"))
	if err != nil {
		return r.h.respondError(c, "remove", err)
	}
	return c.JSON(result)
}

func (r *slotRoutes[T]) list(c *fiber.Ctx) error {
	coll, err := r.accessor()
	if err != nil {
		return r.h.respondError(c, "query", err)
	}

	query, err := buildQuery(c, coll, true)
	if err != nil {
		return r.h.respondError(c, "query", err)
	}
	docs, err := query.All(r.h.requestContext(c, r.name, "query"))
	if err != nil {
		return r.h.respondError(c, "query", err)
	}
	return c.JSON(fiber.Map{
		"documents": docs,
		"count":     len(docs),
	})
}

func (r *slotRoutes[T]) count(c *fiber.Ctx) error {
	coll, err := r.accessor()
	if err != nil {
		return r.h.respondError(c, "count", err)
	}

	query, err := buildQuery(c, coll, false)
	if err != nil {
		return r.h.respondError(c, "count", err)
	}
	n, err := query.Count(r.h.requestContext(c, r.name, "count"))
	if err != nil {
		return r.h.respondError(c, "count", err)
	}
	return c.JSON(fiber.Map{"count": n})
}

func (r *slotRoutes[T]) changes(c *fiber.Ctx) error {
	if r.h.Changes == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   string(errors.ErrorTypeNotFound),
			"message": "change feed is not enabled",
		})
	}

	count := int64(c.QueryInt("count", 100))
	events, err := r.h.Changes.ReadSince(r.h.requestContext(c, r.name, "changes"), r.h.Manager.DatabaseID(), r.name, c.Query("after"), count)
	if err != nil {
		return r.h.respondError(c, "changes", err)
	}
	return c.JSON(fiber.Map{"changes": events})
}

// buildQuery translates query parameters into a typed query:
//
//	where=field,op,value   repeatable; value is decoded as JSON when possible
//	orderBy=field          repeatable, paired with direction=asc|desc
//	q=expression           backend-native expression
//	skip=n, limit=n        paging (limit capped at maxPageSize)
func buildQuery[T model.Model](c *fiber.Ctx, coll *usecase.Collection[T], paging bool) (*usecase.Query[T], error) {
	query := coll.Query()
	if native := c.Query("q"); native != "" {
		query = coll.NativeQuery(native)
	}

	args := c.Context().QueryArgs()
	for _, raw := range args.PeekMulti("where") {
		field, op, value, err := parseWhere(string(raw))
		if err != nil {
			return nil, err
		}
		query = query.Where(field, op, value)
	}

	directions := args.PeekMulti("direction")
	for i, raw := range args.PeekMulti("orderBy") {
		dir := model.Ascending
		if i < len(directions) {
			dir = model.Direction(strings.ToLower(string(directions[i])))
		}
		query = query.OrderBy(string(raw), dir)
	}

	if !paging {
		return query, nil
	}
	if s := c.Query("skip"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errors.NewValidationError("skip must be an integer").WithDetail("skip", s)
		}
		query = query.Skip(n)
	}
	limit := int64(maxPageSize)
	if s := c.Query("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errors.NewValidationError("limit must be an integer").WithDetail("limit", s)
		}
		if n != 0 && n < limit {
			limit = n
		}
	}
	return query.Limit(limit), nil
}

func parseWhere(raw string) (string, model.Operator, interface{}, error) {
	parts := strings.SplitN(raw, ",", 3)
	if len(parts) != 3 {
		return "", "", nil, errors.NewValidationError("where must be field,op,value").WithDetail("where", raw)
	}

	op := model.Operator(parts[1])
	var value interface{}
	if err := json.Unmarshal([]byte(parts[2]), &value); err != nil {
		value = parts[2]
	}
	return parts[0], op, value, nil
}

func isNilModel(m model.Model) bool {
	if m == nil {
		return true
	}
	rv := reflect.ValueOf(m)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}
