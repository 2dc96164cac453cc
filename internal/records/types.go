package records

// System keys injected into response projections. Record data may not
// use the underscore prefix, so these never collide with user fields.
const (
	KeyID        = "_id"
	KeyCreatedAt = "_created_at"
	KeyUpdatedAt = "_updated_at"
)

// Pagination bounds.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// DefaultMinSimilarity is the search score cutoff when the caller does
// not provide one.
const DefaultMinSimilarity = 0.7

// searchCandidateCap bounds how many stored records are scored per
// search. Search is brute-force over candidates, so the cap keeps the
// scoring pass small.
const searchCandidateCap = 100

// ListOptions controls filtering and pagination of a record listing.
type ListOptions struct {
	Page   int
	Limit  int
	Filter map[string]any
}

// PageMeta describes the position of a returned page.
type PageMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// SearchRequest is a semantic search over a model's records.
type SearchRequest struct {
	Query         string         `json:"query"`
	MinSimilarity *float64       `json:"min_similarity,omitempty"`
	Limit         int            `json:"limit,omitempty"`
	Filter        map[string]any `json:"filter,omitempty"`
}

// SearchResult pairs a record projection with its similarity score.
type SearchResult struct {
	Record     map[string]any `json:"record"`
	Similarity float64        `json:"similarity"`
}

// BulkError reports one failed item of a bulk operation.
type BulkError struct {
	Index int            `json:"index"`
	Error string         `json:"error"`
	Data  map[string]any `json:"data,omitempty"`
}

// BulkResult aggregates the outcome of a bulk operation. Succeeded
// items appear in Records in input order; failures in Errors.
type BulkResult struct {
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Records   []map[string]any `json:"records"`
	Errors    []BulkError      `json:"errors,omitempty"`
}
