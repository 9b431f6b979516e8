package model

import "fmt"

// Operator is a comparison used in a query filter.
type Operator string

const (
	OperatorEqual              Operator = "=="
	OperatorNotEqual           Operator = "!="
	OperatorLessThan           Operator = "<"
	OperatorLessThanOrEqual    Operator = "<="
	OperatorGreaterThan        Operator = ">"
	OperatorGreaterThanOrEqual Operator = ">="
	OperatorIn                 Operator = "in"
)

// Valid reports whether the operator is supported.
func (o Operator) Valid() bool {
	switch o {
	case OperatorEqual, OperatorNotEqual, OperatorLessThan, OperatorLessThanOrEqual,
		OperatorGreaterThan, OperatorGreaterThanOrEqual, OperatorIn:
		return true
	}
	return false
}

// Direction orders query results.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// Filter is a single field comparison. Field uses the stored (bson/json) field name,
// dotted for nested fields.
type Filter struct {
	Field    string
	Operator Operator
	Value    interface{}
}

func (f Filter) String() string {
	return fmt.Sprintf("%s %s %v", f.Field, f.Operator, f.Value)
}

// Order sorts results by one field.
type Order struct {
	Field     string
	Direction Direction
}

// QuerySpec is the backend-neutral description of a query. Filters are ANDed.
// Expression, when set, is a raw query in the backend's native language and is
// ANDed with Filters.
type QuerySpec struct {
	Filters    []Filter
	Orders     []Order
	Limit      int64
	Skip       int64
	Expression string
}

// Clone returns a deep copy so builders can derive new specs without aliasing.
func (q QuerySpec) Clone() QuerySpec {
	out := q
	out.Filters = append([]Filter(nil), q.Filters...)
	out.Orders = append([]Order(nil), q.Orders...)
	return out
}
