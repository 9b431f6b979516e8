package mongodb

import (
	"docdb-binder/internal/collections/domain/model"
	"docdb-binder/internal/shared/errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var operatorMap = map[model.Operator]string{
	model.OperatorEqual:              "$eq",
	model.OperatorNotEqual:           "$ne",
	model.OperatorLessThan:           "$lt",
	model.OperatorLessThanOrEqual:    "$lte",
	model.OperatorGreaterThan:        "$gt",
	model.OperatorGreaterThanOrEqual: "$gte",
	model.OperatorIn:                 "$in",
}

// buildFilter translates filters and the native extended-JSON expression into a
// single MongoDB filter document. Clauses are combined with $and.
func buildFilter(spec model.QuerySpec) (bson.D, error) {
	clauses := make([]bson.D, 0, len(spec.Filters)+1)

	for _, f := range spec.Filters {
		op, ok := operatorMap[f.Operator]
		if !ok {
			return nil, errors.NewValidationError("unsupported query operator").WithDetail("operator", string(f.Operator))
		}
		clauses = append(clauses, bson.D{{Key: f.Field, Value: bson.D{{Key: op, Value: f.Value}}}})
	}

	if spec.Expression != "" {
		var native bson.D
		if err := bson.UnmarshalExtJSON([]byte(spec.Expression), false, &native); err != nil {
			return nil, errors.NewValidationError("invalid native query expression").
				WithCause(err).
				WithDetail("expression", spec.Expression)
		}
		if len(native) > 0 {
			clauses = append(clauses, native)
		}
	}

	switch len(clauses) {
	case 0:
		return bson.D{}, nil
	case 1:
		return clauses[0], nil
	}
	return bson.D{{Key: "$and", Value: clauses}}, nil
}

func buildSort(orders []model.Order) bson.D {
	sort := make(bson.D, 0, len(orders))
	for _, o := range orders {
		dir := 1
		if o.Direction == model.Descending {
			dir = -1
		}
		sort = append(sort, bson.E{Key: o.Field, Value: dir})
	}
	return sort
}

func buildFindOptions(spec model.QuerySpec) *options.FindOptions {
	opts := options.Find()
	if len(spec.Orders) > 0 {
		opts.SetSort(buildSort(spec.Orders))
	}
	if spec.Limit > 0 {
		opts.SetLimit(spec.Limit)
	}
	if spec.Skip > 0 {
		opts.SetSkip(spec.Skip)
	}
	return opts
}

func buildCountOptions(spec model.QuerySpec) *options.CountOptions {
	opts := options.Count()
	if spec.Limit > 0 {
		opts.SetLimit(spec.Limit)
	}
	if spec.Skip > 0 {
		opts.SetSkip(spec.Skip)
	}
	return opts
}
