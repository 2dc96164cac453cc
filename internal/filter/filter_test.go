package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recordd/internal/apperr"
)

func TestCompileBareScalarImpliesEq(t *testing.T) {
	f, err := Compile(map[string]any{"status": "active"})
	require.NoError(t, err)

	clauses := f.Clauses()
	require.Len(t, clauses, 1)
	assert.Equal(t, Clause{Field: "status", Op: OpEq, Value: "active"}, clauses[0])
}

func TestCompileStructuredClause(t *testing.T) {
	f, err := Compile(map[string]any{
		"age": map[string]any{"operator": "gte", "value": 21},
	})
	require.NoError(t, err)

	clauses := f.Clauses()
	require.Len(t, clauses, 1)
	assert.Equal(t, Clause{Field: "age", Op: OpGte, Value: 21}, clauses[0])
}

func TestCompileMissingOperatorDefaultsToEq(t *testing.T) {
	f, err := Compile(map[string]any{
		"name": map[string]any{"value": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, OpEq, f.Clauses()[0].Op)
}

func TestCompileUnknownOperatorRejected(t *testing.T) {
	_, err := Compile(map[string]any{
		"age": map[string]any{"operator": "between", "value": 21},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), `unsupported operator "between"`)
}

func TestCompileNonStringOperatorRejected(t *testing.T) {
	_, err := Compile(map[string]any{
		"age": map[string]any{"operator": 5, "value": 21},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operator must be a string")
}

func TestCompileDeterministicOrder(t *testing.T) {
	f, err := Compile(map[string]any{"b": 1, "a": 2, "c": 3})
	require.NoError(t, err)

	var fields []string
	for _, c := range f.Clauses() {
		fields = append(fields, c.Field)
	}
	assert.Equal(t, []string{"a", "b", "c"}, fields)
}

func TestCompileEmpty(t *testing.T) {
	f, err := Compile(nil)
	require.NoError(t, err)
	assert.True(t, f.Empty())

	where, args := f.ToSQL("data")
	assert.Empty(t, where)
	assert.Nil(t, args)
}

func TestToSQLBindsEverything(t *testing.T) {
	f, err := Compile(map[string]any{
		"status": "active",
		"age":    map[string]any{"operator": "gt", "value": 21},
	})
	require.NoError(t, err)

	where, args := f.ToSQL("data")

	assert.Equal(t,
		`CAST(json_extract(data, ?) AS REAL) > ? AND json_extract(data, ?) = ?`,
		where)
	assert.Equal(t, []any{"$.age", 21, "$.status", "active"}, args)

	// No raw value ever appears in the SQL text.
	assert.NotContains(t, where, "active")
	assert.NotContains(t, where, "21")
}

func TestToSQLInjectionValuesStayBound(t *testing.T) {
	f, err := Compile(map[string]any{
		"name": "'; DROP TABLE model_records; --",
	})
	require.NoError(t, err)

	where, args := f.ToSQL("data")
	assert.Equal(t, "json_extract(data, ?) = ?", where)
	assert.NotContains(t, where, "DROP")
	assert.Contains(t, args, "'; DROP TABLE model_records; --")
}

func TestToSQLContainsEscapesLikeMeta(t *testing.T) {
	f, err := Compile(map[string]any{
		"title": map[string]any{"operator": "contains", "value": "50%_off"},
	})
	require.NoError(t, err)

	where, args := f.ToSQL("data")
	assert.Equal(t, `json_extract(data, ?) LIKE ? ESCAPE '\'`, where)
	assert.Equal(t, []any{"$.title", `%50\%\_off%`}, args)
}

func TestMatches(t *testing.T) {
	data := map[string]any{
		"status": "active",
		"age":    30.0,
		"title":  "hello world",
	}

	tests := []struct {
		name string
		raw  map[string]any
		want bool
	}{
		{"eq match", map[string]any{"status": "active"}, true},
		{"eq miss", map[string]any{"status": "archived"}, false},
		{"neq match", map[string]any{"status": map[string]any{"operator": "neq", "value": "archived"}}, true},
		{"neq on absent field matches", map[string]any{"ghost": map[string]any{"operator": "neq", "value": "x"}}, true},
		{"eq on absent field misses", map[string]any{"ghost": "x"}, false},
		{"gt numeric", map[string]any{"age": map[string]any{"operator": "gt", "value": 21}}, true},
		{"gte boundary", map[string]any{"age": map[string]any{"operator": "gte", "value": 30}}, true},
		{"lt miss", map[string]any{"age": map[string]any{"operator": "lt", "value": 30}}, false},
		{"lte boundary", map[string]any{"age": map[string]any{"operator": "lte", "value": 30}}, true},
		{"contains match", map[string]any{"title": map[string]any{"operator": "contains", "value": "world"}}, true},
		{"contains miss", map[string]any{"title": map[string]any{"operator": "contains", "value": "goodbye"}}, false},
		{"contains non-string never matches", map[string]any{"age": map[string]any{"operator": "contains", "value": "3"}}, false},
		{"multiple clauses AND", map[string]any{"status": "active", "age": map[string]any{"operator": "gt", "value": 21}}, true},
		{"one failing clause fails all", map[string]any{"status": "active", "age": map[string]any{"operator": "gt", "value": 99}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Matches(data))
		})
	}
}

func TestMatchesNumericStringComparison(t *testing.T) {
	// JSON numbers arrive as float64; filter values may come as int.
	f, err := Compile(map[string]any{"age": 30})
	require.NoError(t, err)
	assert.True(t, f.Matches(map[string]any{"age": 30.0}))
}

func TestNilFilter(t *testing.T) {
	var f *Filter
	assert.True(t, f.Empty())
	assert.True(t, f.Matches(map[string]any{"a": 1}))

	where, args := f.ToSQL("data")
	assert.Empty(t, where)
	assert.Nil(t, args)
}
