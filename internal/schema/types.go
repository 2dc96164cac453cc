// Package schema defines user-authored model definitions and validates
// record data against them.
//
// A model is a runtime-defined mapping of field name to typed field
// definition. Models are owned by exactly one principal and soft-deleted.
// Record data is open-world: keys without a field definition pass through
// unvalidated.
package schema

import (
	"sort"
	"strings"
	"time"
)

// FieldType is the kind of a field definition.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	TypeVector  FieldType = "vector"
)

// validTypes is the closed set of field kinds.
var validTypes = map[FieldType]bool{
	TypeString:  true,
	TypeNumber:  true,
	TypeBoolean: true,
	TypeDate:    true,
	TypeVector:  true,
}

// DefaultVectorDimensions matches OpenAI ada-002 embeddings.
const DefaultVectorDimensions = 1536

// FieldDef is the constraint set for one schema field. It is a tagged
// union over Type: Enum applies to string fields, Min/Max to number
// fields, Dimensions to vector fields. Unique is declarative metadata
// only; enforcement is delegated to the store.
type FieldDef struct {
	Type        FieldType `json:"type"`
	Required    bool      `json:"required,omitempty"`
	Unique      bool      `json:"unique,omitempty"`
	Description string    `json:"description,omitempty"`
	Default     any       `json:"default,omitempty"`

	// String fields only.
	Enum []string `json:"enum,omitempty"`

	// Number fields only. Inclusive bounds.
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`

	// Vector fields only. Zero means DefaultVectorDimensions.
	Dimensions int `json:"dimensions,omitempty"`
}

// Relationship is declarative relationship metadata. The core never
// enforces it.
type Relationship struct {
	Type          string            `json:"type"` // one-to-one, one-to-many, many-to-many
	TargetModel   string            `json:"target_model"`
	ForeignKey    map[string]string `json:"foreign_key,omitempty"`
	CascadeDelete bool              `json:"cascade_delete,omitempty"`
}

// Index is declarative index metadata, assumed delegated to the store.
type Index struct {
	Fields []string `json:"fields"`
	Unique bool     `json:"unique,omitempty"`
}

// EmbeddingConfig controls semantic search for a model.
type EmbeddingConfig struct {
	Enabled      bool     `json:"enabled"`
	SourceFields []string `json:"source_fields,omitempty"`
}

// Model status values. Deleted models are soft-deleted, never purged.
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// Model is a user-defined schema that records conform to.
type Model struct {
	ID            string                  `json:"id"`
	OwnerID       string                  `json:"owner_id"`
	Name          string                  `json:"name"`
	Description   string                  `json:"description,omitempty"`
	Fields        map[string]FieldDef     `json:"fields"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
	Indexes       map[string]Index        `json:"indexes,omitempty"`
	Embedding     *EmbeddingConfig        `json:"embedding,omitempty"`
	Status        string                  `json:"status"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// EmbeddingEnabled reports whether the model has semantic search enabled
// with at least one source field.
func (m *Model) EmbeddingEnabled() bool {
	return m.Embedding != nil && m.Embedding.Enabled && len(m.Embedding.SourceFields) > 0
}

// SourceText extracts the embedding source text from record data by
// joining the string values of the configured source fields in order.
// Non-string and absent fields are skipped. Returns "" when nothing is
// derivable.
func (c *EmbeddingConfig) SourceText(data map[string]any) string {
	if c == nil || len(c.SourceFields) == 0 {
		return ""
	}
	var parts []string
	for _, field := range c.SourceFields {
		if v, ok := data[field].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// sortedFieldNames returns field names in deterministic order so
// validation errors are reported stably.
func sortedFieldNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
