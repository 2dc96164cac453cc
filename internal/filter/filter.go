// Package filter compiles structured filter expressions into predicates
// over semi-structured record data.
//
// The wire form is a mapping of field name to clause, where a clause is
// either a bare scalar (implying eq) or an {"operator", "value"} object.
// Clauses combine with logical AND.
//
// Compiled filters realize two ways: ToSQL emits parameterized SQL over
// json_extract so values (and field paths) are always bound, never
// interpolated into query text; Matches evaluates the same predicate in
// memory.
package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/recordd/internal/apperr"
)

// Op is a filter comparison operator.
type Op string

const (
	OpEq       Op = "eq"
	OpNeq      Op = "neq"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpContains Op = "contains"
)

// validOps is the closed operator set. Unknown operators are rejected at
// compile time rather than silently ignored.
var validOps = map[Op]bool{
	OpEq:       true,
	OpNeq:      true,
	OpGt:       true,
	OpGte:      true,
	OpLt:       true,
	OpLte:      true,
	OpContains: true,
}

// Clause is one compiled comparison: field path, operator, bound value.
type Clause struct {
	Field string
	Op    Op
	Value any
}

// Filter is a compiled conjunction of clauses.
type Filter struct {
	clauses []Clause
}

// Clauses returns the compiled clauses in deterministic field order.
func (f *Filter) Clauses() []Clause {
	if f == nil {
		return nil
	}
	return f.clauses
}

// Empty reports whether the filter has no clauses.
func (f *Filter) Empty() bool {
	return f == nil || len(f.clauses) == 0
}

// Compile translates the wire-form filter into a Filter. A nil or empty
// input compiles to an empty filter. Unknown operators fail with a
// validation error.
func Compile(raw map[string]any) (*Filter, error) {
	f := &Filter{}
	if len(raw) == 0 {
		return f, nil
	}

	// Sorted for deterministic SQL and error reporting.
	fields := make([]string, 0, len(raw))
	for field := range raw {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		clause, err := compileClause(field, raw[field])
		if err != nil {
			return nil, err
		}
		f.clauses = append(f.clauses, clause)
	}
	return f, nil
}

// compileClause compiles a single field clause. A mapping value is the
// structured {"operator","value"} form; anything else is a bare scalar
// implying eq.
func compileClause(field string, value any) (Clause, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return Clause{Field: field, Op: OpEq, Value: value}, nil
	}

	op := OpEq
	if rawOp, ok := obj["operator"]; ok {
		s, ok := rawOp.(string)
		if !ok {
			return Clause{}, apperr.Validation("filter %s: operator must be a string", field)
		}
		op = Op(s)
	}
	if !validOps[op] {
		return Clause{}, apperr.Validation("filter %s: unsupported operator %q", field, op)
	}

	return Clause{Field: field, Op: op, Value: obj["value"]}, nil
}

// ToSQL compiles the filter into a SQL fragment over a JSON document
// column, with every field path and value passed as a bound parameter.
// Returns ("", nil) for an empty filter. The fragment is a conjunction
// suitable for appending to a WHERE clause with AND.
//
// Numeric comparisons cast the extracted value to REAL so JSON numbers
// order numerically rather than lexically.
func (f *Filter) ToSQL(column string) (string, []any) {
	if f.Empty() {
		return "", nil
	}

	var conds []string
	var args []any
	for _, c := range f.clauses {
		path := "$." + c.Field
		extract := fmt.Sprintf("json_extract(%s, ?)", column)

		switch c.Op {
		case OpEq:
			conds = append(conds, extract+" = ?")
			args = append(args, path, c.Value)
		case OpNeq:
			conds = append(conds, extract+" != ?")
			args = append(args, path, c.Value)
		case OpGt, OpGte, OpLt, OpLte:
			cmp := sqlComparator(c.Op)
			if _, numeric := toFloat64(c.Value); numeric {
				conds = append(conds, fmt.Sprintf("CAST(%s AS REAL) %s ?", extract, cmp))
			} else {
				conds = append(conds, fmt.Sprintf("%s %s ?", extract, cmp))
			}
			args = append(args, path, c.Value)
		case OpContains:
			conds = append(conds, extract+` LIKE ? ESCAPE '\'`)
			args = append(args, path, "%"+escapeLike(fmt.Sprintf("%v", c.Value))+"%")
		}
	}
	return strings.Join(conds, " AND "), args
}

func sqlComparator(op Op) string {
	switch op {
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	default:
		return "<="
	}
}

// escapeLike escapes LIKE metacharacters in a literal substring.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// Matches evaluates the filter against a record's data mapping in memory.
// Absent fields fail every clause except neq.
func (f *Filter) Matches(data map[string]any) bool {
	if f.Empty() {
		return true
	}
	for _, c := range f.clauses {
		if !c.matches(data) {
			return false
		}
	}
	return true
}

func (c Clause) matches(data map[string]any) bool {
	value, exists := data[c.Field]

	switch c.Op {
	case OpEq:
		return exists && compare(value, c.Value, OpEq)
	case OpNeq:
		return !exists || compare(value, c.Value, OpNeq)
	case OpGt, OpGte, OpLt, OpLte:
		return exists && compare(value, c.Value, c.Op)
	case OpContains:
		s, ok := value.(string)
		if !ok {
			// Substring match is defined for string values only.
			return false
		}
		return strings.Contains(s, fmt.Sprintf("%v", c.Value))
	}
	return false
}

// compare compares two values: numerically when both sides are numbers,
// otherwise by string representation.
func compare(a, b any, op Op) bool {
	af, aNum := toFloat64(a)
	bf, bNum := toFloat64(b)
	if aNum && bNum {
		switch op {
		case OpEq:
			return af == bf
		case OpNeq:
			return af != bf
		case OpGt:
			return af > bf
		case OpGte:
			return af >= bf
		case OpLt:
			return af < bf
		case OpLte:
			return af <= bf
		}
	}

	as := fmt.Sprintf("%v", a)
	bs := fmt.Sprintf("%v", b)
	switch op {
	case OpEq:
		return as == bs
	case OpNeq:
		return as != bs
	case OpGt:
		return as > bs
	case OpGte:
		return as >= bs
	case OpLt:
		return as < bs
	case OpLte:
		return as <= bs
	}
	return false
}

// toFloat64 attempts numeric conversion of the representations JSON
// decoding produces.
func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
