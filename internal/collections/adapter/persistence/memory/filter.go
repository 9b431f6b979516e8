package memory

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"docdb-binder/internal/collections/domain/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type matchedDoc struct {
	raw    bson.Raw
	fields map[string]interface{}
}

func splitPath(field string) []string {
	return strings.Split(field, ".")
}

// decodeFields turns a stored document into plain Go values: maps, []interface{},
// int64, float64, string, bool, time.Time and nil.
func decodeFields(raw bson.Raw) (map[string]interface{}, error) {
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return normalize(doc).(map[string]interface{}), nil
}

func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case bson.M:
		return normalizeMap(val)
	case map[string]interface{}:
		return normalizeMap(val)
	case bson.D:
		out := make(map[string]interface{}, len(val))
		for _, e := range val {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		return normalizeSlice(val)
	case []interface{}:
		return normalizeSlice(val)
	case int32:
		return int64(val)
	case int:
		return int64(val)
	case float32:
		return float64(val)
	case primitive.DateTime:
		return val.Time().UTC()
	case time.Time:
		return val.UTC()
	case primitive.ObjectID:
		return val.Hex()
	}
	return normalizeReflect(v)
}

func normalizeMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalizeSlice(s []interface{}) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = normalize(v)
	}
	return out
}

// normalizeReflect handles caller-supplied filter values of named or sized types.
func normalizeReflect(v interface{}) interface{} {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

// lookup resolves a dotted path. The boolean is false when a segment is missing.
func lookup(doc map[string]interface{}, field string) (interface{}, bool) {
	var current interface{} = doc
	for _, part := range splitPath(field) {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func matchesFilters(doc map[string]interface{}, filters []model.Filter) bool {
	for _, f := range filters {
		if !matchFilter(doc, f) {
			return false
		}
	}
	return true
}

func matchFilter(doc map[string]interface{}, f model.Filter) bool {
	stored, present := lookup(doc, f.Field)
	want := normalize(f.Value)

	switch f.Operator {
	case model.OperatorEqual:
		return matchEqual(stored, present, want)
	case model.OperatorNotEqual:
		return !matchEqual(stored, present, want)
	case model.OperatorIn:
		candidates, ok := want.([]interface{})
		if !ok {
			return false
		}
		for _, candidate := range candidates {
			if matchEqual(stored, present, candidate) {
				return true
			}
		}
		return false
	case model.OperatorLessThan, model.OperatorLessThanOrEqual,
		model.OperatorGreaterThan, model.OperatorGreaterThanOrEqual:
		if !present {
			return false
		}
		return anyElement(stored, func(v interface{}) bool {
			cmp, ok := compareValues(v, want)
			if !ok {
				return false
			}
			switch f.Operator {
			case model.OperatorLessThan:
				return cmp < 0
			case model.OperatorLessThanOrEqual:
				return cmp <= 0
			case model.OperatorGreaterThan:
				return cmp > 0
			default:
				return cmp >= 0
			}
		})
	}
	return false
}

// matchEqual follows document-store equality: a missing field equals nil, and an
// array field matches when the array itself or any element equals want.
func matchEqual(stored interface{}, present bool, want interface{}) bool {
	if !present {
		return want == nil
	}
	if equalValues(stored, want) {
		return true
	}
	if _, wantArray := want.([]interface{}); wantArray {
		return false
	}
	return anyElement(stored, func(v interface{}) bool { return equalValues(v, want) })
}

func anyElement(stored interface{}, pred func(interface{}) bool) bool {
	if arr, ok := stored.([]interface{}); ok {
		for _, v := range arr {
			if pred(v) {
				return true
			}
		}
		return false
	}
	return pred(stored)
}

func equalValues(a, b interface{}) bool {
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// compareValues orders two scalars of compatible types. The boolean is false when
// the values cannot be ordered against each other.
func compareValues(a, b interface{}) (int, bool) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		return compareOrdered(af, bf), true
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		default:
			return 1, true
		}
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	}
	return 0, false
}

func compareOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// typeRank orders values of different types the way MongoDB sorts them.
func typeRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case int64, float64:
		return 1
	case string:
		return 2
	case map[string]interface{}:
		return 3
	case []interface{}:
		return 4
	case bool:
		return 5
	case time.Time:
		return 6
	}
	return 7
}

func sortMatches(docs []matchedDoc, orders []model.Order) {
	if len(orders) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, o := range orders {
			a, _ := lookup(docs[i].fields, o.Field)
			b, _ := lookup(docs[j].fields, o.Field)

			cmp := typeRank(a) - typeRank(b)
			if cmp == 0 {
				cmp, _ = compareValues(a, b)
			}
			if cmp == 0 {
				continue
			}
			if o.Direction == model.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}
