package models

import "github.com/fyrsmithlabs/recordd/internal/schema"

// CreateRequest is the payload for defining a new model.
type CreateRequest struct {
	Name          string                         `json:"name"`
	Description   string                         `json:"description,omitempty"`
	Fields        map[string]schema.FieldDef     `json:"fields"`
	Relationships map[string]schema.Relationship `json:"relationships,omitempty"`
	Indexes       map[string]schema.Index        `json:"indexes,omitempty"`
	Embedding     *schema.EmbeddingConfig        `json:"embedding,omitempty"`
}

// UpdateRequest is a partial model update. Nil sections are left
// untouched; a provided Fields mapping replaces the field set wholesale
// and is revalidated.
type UpdateRequest struct {
	Name          *string                        `json:"name,omitempty"`
	Description   *string                        `json:"description,omitempty"`
	Fields        map[string]schema.FieldDef     `json:"fields,omitempty"`
	Relationships map[string]schema.Relationship `json:"relationships,omitempty"`
	Indexes       map[string]schema.Index        `json:"indexes,omitempty"`
	Embedding     *schema.EmbeddingConfig        `json:"embedding,omitempty"`
}
