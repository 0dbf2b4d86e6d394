package store

import (
	"fmt"
	"strings"

	"github.com/roach88/archivist/internal/document"
)

// Op is a comparison operator in a filter condition.
type Op string

const (
	OpEq  Op = "="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

// Cond is a single field comparison.
type Cond struct {
	Field string
	Op    Op
	Value any
}

// Filter is a conjunction of conditions. An empty filter matches every
// document in the collection.
type Filter []Cond

// Eq matches documents whose field equals v. A nil v matches absent or null
// fields.
func Eq(field string, v any) Cond { return Cond{Field: field, Op: OpEq, Value: v} }

// Ne matches documents whose field differs from v.
func Ne(field string, v any) Cond { return Cond{Field: field, Op: OpNe, Value: v} }

// Lt matches documents whose field is less than v.
func Lt(field string, v any) Cond { return Cond{Field: field, Op: OpLt, Value: v} }

// Lte matches documents whose field is at most v.
func Lte(field string, v any) Cond { return Cond{Field: field, Op: OpLte, Value: v} }

// Gt matches documents whose field is greater than v.
func Gt(field string, v any) Cond { return Cond{Field: field, Op: OpGt, Value: v} }

// Gte matches documents whose field is at least v.
func Gte(field string, v any) Cond { return Cond{Field: field, Op: OpGte, Value: v} }

// Where builds a Filter from conditions.
func Where(conds ...Cond) Filter { return Filter(conds) }

// SortKey orders results by a field.
type SortKey struct {
	Field string
	Desc  bool
}

// Asc sorts ascending by field.
func Asc(field string) SortKey { return SortKey{Field: field} }

// Desc sorts descending by field.
func Desc(field string) SortKey { return SortKey{Field: field, Desc: true} }

// FindOptions controls projection, ordering and limits of a query.
type FindOptions struct {
	// Projection restricts returned fields. _id is always returned.
	Projection []string
	// Sort keys are applied before the seq tiebreaker.
	Sort []SortKey
	// Limit caps the number of results; zero means no limit.
	Limit int
}

// fieldExpr returns the json_extract expression for a validated field.
func fieldExpr(field string) (string, error) {
	if !document.ValidFieldName(field) {
		return "", fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	return fmt.Sprintf("json_extract(body, '$.%s')", field), nil
}

// compileFilter converts a filter to a WHERE fragment scoped to collection.
// Values are bound, never interpolated.
func compileFilter(collection string, f Filter) (string, []any, error) {
	parts := []string{"collection = ?"}
	params := []any{collection}

	for _, c := range f {
		expr, err := fieldExpr(c.Field)
		if err != nil {
			return "", nil, err
		}
		value, err := bindValue(c.Value)
		if err != nil {
			return "", nil, fmt.Errorf("filter on %q: %w", c.Field, err)
		}

		switch c.Op {
		case OpEq:
			if value == nil {
				parts = append(parts, expr+" IS NULL")
				continue
			}
		case OpNe:
			if value == nil {
				parts = append(parts, expr+" IS NOT NULL")
				continue
			}
		case OpLt, OpLte, OpGt, OpGte:
			if value == nil {
				return "", nil, fmt.Errorf("filter on %q: operator %s needs a value", c.Field, c.Op)
			}
		default:
			return "", nil, fmt.Errorf("filter on %q: unknown operator %q", c.Field, c.Op)
		}
		parts = append(parts, fmt.Sprintf("%s %s ?", expr, c.Op))
		params = append(params, value)
	}

	return strings.Join(parts, " AND "), params, nil
}

// compileOrder returns the ORDER BY clause. seq ASC is always the final key.
func compileOrder(keys []SortKey) (string, error) {
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		expr, err := fieldExpr(k.Field)
		if err != nil {
			return "", err
		}
		if k.Desc {
			parts = append(parts, expr+" DESC")
		} else {
			parts = append(parts, expr+" ASC")
		}
	}
	parts = append(parts, "seq ASC")
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// bindValue converts a filter value into something the driver binds so that
// it compares equal to what json_extract yields for the stored JSON.
func bindValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, int64, float64:
		return val, nil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case float32:
		return float64(val), nil
	default:
		if n, ok := document.AsInt(val); ok {
			return n, nil
		}
		return nil, fmt.Errorf("unsupported filter value type %T", v)
	}
}
