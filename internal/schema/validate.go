package schema

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fyrsmithlabs/recordd/internal/apperr"
)

// reservedPrefixes are field name prefixes reserved for system metadata
// injected into response projections (_id, _created_at, _updated_at).
var reservedPrefixes = []string{"_", "$"}

// ValidateFields validates field definitions at model definition time.
// All violations are accumulated into a single validation error, reported
// in sorted field-name order.
func ValidateFields(fields map[string]FieldDef) error {
	if len(fields) == 0 {
		return apperr.Validation("model must have at least one field")
	}

	var violations []string
	for _, name := range sortedFieldNames(fields) {
		def := fields[name]

		if name == "" {
			violations = append(violations, "field name cannot be empty")
			continue
		}
		for _, prefix := range reservedPrefixes {
			if strings.HasPrefix(name, prefix) {
				violations = append(violations,
					fmt.Sprintf("field %s: name cannot start with reserved prefix %q", name, prefix))
			}
		}

		if def.Type == "" {
			violations = append(violations, fmt.Sprintf("field %s: missing type", name))
			continue
		}
		if !validTypes[def.Type] {
			violations = append(violations,
				fmt.Sprintf("field %s: invalid type %q", name, def.Type))
			continue
		}

		if def.Type == TypeVector && def.Dimensions < 0 {
			violations = append(violations,
				fmt.Sprintf("field %s: vector dimensions must be a positive integer, got %d", name, def.Dimensions))
		}
		if def.Type == TypeNumber && def.Min != nil && def.Max != nil && *def.Min > *def.Max {
			violations = append(violations,
				fmt.Sprintf("field %s: min %v exceeds max %v", name, *def.Min, *def.Max))
		}
	}

	if len(violations) > 0 {
		return apperr.Validation("%s", strings.Join(violations, "; "))
	}
	return nil
}

// ValidateRecord validates record data against field definitions. It runs
// identically on create and update; for partial updates the caller merges
// the patch over the stored document before validating.
//
// Keys in data without a field definition pass through unvalidated (open
// schema). Vector fields are server-computed and never validated here.
// All violations are accumulated.
func ValidateRecord(data map[string]any, fields map[string]FieldDef) error {
	if data == nil {
		return apperr.Validation("data must be an object")
	}

	var violations []string

	// Required fields first, in deterministic order.
	for _, name := range sortedFieldNames(fields) {
		if fields[name].Required {
			if _, ok := data[name]; !ok {
				violations = append(violations, fmt.Sprintf("required field missing: %s", name))
			}
		}
	}

	for _, name := range sortedFieldNames(data) {
		def, ok := fields[name]
		if !ok {
			continue // open schema: extra keys pass through
		}
		value := data[name]
		if value == nil {
			continue
		}
		if v := checkValue(name, value, def); v != "" {
			violations = append(violations, v)
		}
	}

	if len(violations) > 0 {
		return apperr.Validation("%s", strings.Join(violations, "; "))
	}
	return nil
}

// checkValue validates a single non-nil value against its definition.
// Returns "" when valid, otherwise a violation naming the field and the
// nature of the problem.
func checkValue(name string, value any, def FieldDef) string {
	switch def.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("field %s must be a string", name)
		}
		if len(def.Enum) > 0 && !slices.Contains(def.Enum, s) {
			return fmt.Sprintf("field %s must be one of: %s", name, strings.Join(def.Enum, ", "))
		}

	case TypeNumber:
		n, ok := toNumber(value)
		if !ok {
			return fmt.Sprintf("field %s must be a number", name)
		}
		if def.Min != nil && n < *def.Min {
			return fmt.Sprintf("field %s must be at least %v", name, *def.Min)
		}
		if def.Max != nil && n > *def.Max {
			return fmt.Sprintf("field %s must be at most %v", name, *def.Max)
		}

	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("field %s must be a boolean", name)
		}

	case TypeDate:
		if !isDate(value) {
			return fmt.Sprintf("field %s must be a date string or timestamp", name)
		}

	case TypeVector:
		// Server-computed; client-supplied values are not validated.

	default:
		// ValidateFields rejects unknown kinds at definition time, so
		// this only fires on definitions persisted outside that path.
		return fmt.Sprintf("field %s has unsupported type %q", name, def.Type)
	}
	return ""
}

// toNumber accepts the numeric representations JSON decoding and Go
// callers produce.
func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// dateFormats are the accepted textual date representations.
var dateFormats = []string{time.RFC3339, "2006-01-02"}

func isDate(value any) bool {
	switch v := value.(type) {
	case time.Time:
		return true
	case string:
		for _, layout := range dateFormats {
			if _, err := time.Parse(layout, v); err == nil {
				return true
			}
		}
	}
	return false
}
