// Package records manages record instances governed by user-defined
// models: CRUD, filtered listing, bulk operations, and semantic search.
package records

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recordd/internal/apperr"
	"github.com/fyrsmithlabs/recordd/internal/embeddings"
	"github.com/fyrsmithlabs/recordd/internal/filter"
	"github.com/fyrsmithlabs/recordd/internal/models"
	"github.com/fyrsmithlabs/recordd/internal/schema"
	"github.com/fyrsmithlabs/recordd/internal/similarity"
	"github.com/fyrsmithlabs/recordd/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/recordd/internal/records"

// Service provides record operations within a model.
type Service interface {
	// Create validates and persists a new record, computing its
	// embedding when the model has semantic search enabled.
	Create(ctx context.Context, modelID, ownerID string, data map[string]any) (map[string]any, error)

	// Get retrieves one record projection.
	Get(ctx context.Context, modelID, recordID string) (map[string]any, error)

	// List returns a filtered, paginated page of record projections,
	// newest first.
	List(ctx context.Context, modelID string, opts ListOptions) ([]map[string]any, *PageMeta, error)

	// Update merges a patch over an owned record and revalidates the
	// merged document. The embedding is recomputed only when the patch
	// touches an embedding source field.
	Update(ctx context.Context, modelID, recordID, ownerID string, patch map[string]any) (map[string]any, error)

	// Delete removes an owned record permanently.
	Delete(ctx context.Context, modelID, recordID, ownerID string) error

	// Search ranks a model's records by cosine similarity to the query.
	Search(ctx context.Context, modelID string, req *SearchRequest) ([]SearchResult, error)

	// BulkCreate creates many records, reporting per-item outcomes.
	BulkCreate(ctx context.Context, modelID, ownerID string, items []map[string]any) (*BulkResult, error)

	// BulkUpdate patches many records identified by their _id key,
	// reporting per-item outcomes.
	BulkUpdate(ctx context.Context, modelID, ownerID string, items []map[string]any) (*BulkResult, error)
}

// service implements the Service interface.
type service struct {
	models   models.Service
	store    store.Store
	embedder embeddings.Embedder
	logger   *zap.Logger

	tracer        trace.Tracer
	meter         metric.Meter
	createCounter metric.Int64Counter
	searchCounter metric.Int64Counter
}

// NewService creates a record service. The embedder may be nil, in
// which case records are stored without embeddings and search reports
// the upstream as unavailable.
func NewService(ms models.Service, st store.Store, emb embeddings.Embedder, logger *zap.Logger) (Service, error) {
	if ms == nil {
		return nil, errors.New("models service is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &service{
		models:   ms,
		store:    st,
		embedder: emb,
		logger:   logger.Named("records"),
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}
	s.initMetrics()
	return s, nil
}

func (s *service) initMetrics() {
	var err error

	s.createCounter, err = s.meter.Int64Counter(
		"recordd.records.created_total",
		metric.WithDescription("Total number of records created"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		s.logger.Warn("failed to create record counter", zap.Error(err))
	}

	s.searchCounter, err = s.meter.Int64Counter(
		"recordd.records.searches_total",
		metric.WithDescription("Total number of semantic searches"),
		metric.WithUnit("{search}"),
	)
	if err != nil {
		s.logger.Warn("failed to create search counter", zap.Error(err))
	}
}

// Create validates and persists a new record.
func (s *service) Create(ctx context.Context, modelID, ownerID string, data map[string]any) (map[string]any, error) {
	ctx, span := s.tracer.Start(ctx, "records.create")
	defer span.End()
	span.SetAttributes(attribute.String("model_id", modelID))

	m, err := s.models.GetActive(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if data != nil {
		// Underscore keys are reserved for injected metadata and are
		// never stored. The caller's map is left untouched.
		data = stripSystemKeys(data)
	}
	if err := schema.ValidateRecord(data, m.Fields); err != nil {
		span.RecordError(err)
		return nil, err
	}

	embedding, err := s.computeEmbedding(ctx, m, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := time.Now().UTC()
	r := &store.Record{
		ID:        uuid.New().String(),
		ModelID:   modelID,
		OwnerID:   ownerID,
		Data:      data,
		Embedding: embedding,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertRecord(ctx, r); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if s.createCounter != nil {
		s.createCounter.Add(ctx, 1)
	}
	s.logger.Info("created record",
		zap.String("id", r.ID),
		zap.String("model_id", modelID))
	return project(r), nil
}

// Get retrieves one record projection.
func (s *service) Get(ctx context.Context, modelID, recordID string) (map[string]any, error) {
	ctx, span := s.tracer.Start(ctx, "records.get")
	defer span.End()
	span.SetAttributes(
		attribute.String("model_id", modelID),
		attribute.String("record_id", recordID))

	if _, err := s.models.GetActive(ctx, modelID); err != nil {
		return nil, err
	}
	r, err := s.getRecord(ctx, modelID, recordID)
	if err != nil {
		return nil, err
	}
	return project(r), nil
}

// List returns a filtered, paginated page of records, newest first.
func (s *service) List(ctx context.Context, modelID string, opts ListOptions) ([]map[string]any, *PageMeta, error) {
	ctx, span := s.tracer.Start(ctx, "records.list")
	defer span.End()
	span.SetAttributes(attribute.String("model_id", modelID))

	if _, err := s.models.GetActive(ctx, modelID); err != nil {
		return nil, nil, err
	}

	page, limit, err := normalizePage(opts.Page, opts.Limit)
	if err != nil {
		return nil, nil, err
	}
	f, err := filter.Compile(opts.Filter)
	if err != nil {
		return nil, nil, err
	}

	rows, total, err := s.store.QueryRecords(ctx, modelID, f, (page-1)*limit, limit)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	projected := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		projected = append(projected, project(r))
	}
	return projected, pageMeta(page, limit, total), nil
}

// Update merges a patch over an owned record.
func (s *service) Update(ctx context.Context, modelID, recordID, ownerID string, patch map[string]any) (map[string]any, error) {
	ctx, span := s.tracer.Start(ctx, "records.update")
	defer span.End()
	span.SetAttributes(
		attribute.String("model_id", modelID),
		attribute.String("record_id", recordID))

	m, err := s.models.GetActive(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if patch == nil {
		return nil, apperr.Validation("data must be an object")
	}

	r, err := s.getRecord(ctx, modelID, recordID)
	if err != nil {
		return nil, err
	}
	if r.OwnerID != ownerID {
		return nil, apperr.Authorization("record %s belongs to another owner", recordID)
	}

	merged := maps.Clone(r.Data)
	if merged == nil {
		merged = map[string]any{}
	}
	maps.Copy(merged, stripSystemKeys(patch))

	if err := schema.ValidateRecord(merged, m.Fields); err != nil {
		span.RecordError(err)
		return nil, err
	}

	embedding := r.Embedding
	if touchesSourceFields(m, patch) {
		embedding, err = s.computeEmbedding(ctx, m, merged)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	now := time.Now().UTC()
	// Ownership is re-checked by the conditional write.
	if err := s.store.UpdateRecord(ctx, recordID, ownerID, merged, embedding, now); err != nil {
		span.RecordError(err)
		return nil, s.mapWriteErr(err, recordID)
	}

	r.Data = merged
	r.UpdatedAt = now
	s.logger.Info("updated record", zap.String("id", recordID))
	return project(r), nil
}

// Delete removes an owned record permanently.
func (s *service) Delete(ctx context.Context, modelID, recordID, ownerID string) error {
	ctx, span := s.tracer.Start(ctx, "records.delete")
	defer span.End()
	span.SetAttributes(
		attribute.String("model_id", modelID),
		attribute.String("record_id", recordID))

	if _, err := s.models.GetActive(ctx, modelID); err != nil {
		return err
	}
	r, err := s.getRecord(ctx, modelID, recordID)
	if err != nil {
		return err
	}
	if r.OwnerID != ownerID {
		return apperr.Authorization("record %s belongs to another owner", recordID)
	}

	if err := s.store.DeleteRecord(ctx, recordID, ownerID); err != nil {
		span.RecordError(err)
		return s.mapWriteErr(err, recordID)
	}
	s.logger.Info("deleted record", zap.String("id", recordID))
	return nil
}

// Search ranks a model's records by cosine similarity to the query.
func (s *service) Search(ctx context.Context, modelID string, req *SearchRequest) ([]SearchResult, error) {
	ctx, span := s.tracer.Start(ctx, "records.search")
	defer span.End()
	span.SetAttributes(attribute.String("model_id", modelID))

	m, err := s.models.GetActive(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if !m.EmbeddingEnabled() {
		return nil, apperr.Validation("semantic search is not enabled for model %s", modelID)
	}
	if req == nil || req.Query == "" {
		return nil, apperr.Validation("search query must not be empty")
	}
	if s.embedder == nil {
		return nil, apperr.External("embedding service is not configured")
	}

	query, err := s.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(query) == 0 {
		return nil, apperr.Validation("query produced an empty embedding")
	}

	f, err := filter.Compile(req.Filter)
	if err != nil {
		return nil, err
	}
	candidates, _, err := s.store.QueryRecords(ctx, modelID, f, 0, searchCandidateCap)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// Records stored before search was enabled have no embedding and
	// cannot be scored.
	scorable := candidates[:0]
	for _, c := range candidates {
		if len(c.Embedding) == len(query) && len(c.Embedding) > 0 {
			scorable = append(scorable, c)
		}
	}

	minSim := DefaultMinSimilarity
	if req.MinSimilarity != nil {
		minSim = *req.MinSimilarity
	}
	matches := similarity.Rank(query, scorable,
		func(r *store.Record) []float32 { return r.Embedding },
		minSim, req.Limit)

	results := make([]SearchResult, 0, len(matches))
	for _, match := range matches {
		results = append(results, SearchResult{
			Record:     project(match.Item),
			Similarity: match.Score,
		})
	}

	if s.searchCounter != nil {
		s.searchCounter.Add(ctx, 1)
	}
	s.logger.Debug("search completed",
		zap.String("model_id", modelID),
		zap.Int("candidates", len(scorable)),
		zap.Int("results", len(results)))
	return results, nil
}

// BulkCreate creates many records, reporting per-item outcomes.
func (s *service) BulkCreate(ctx context.Context, modelID, ownerID string, items []map[string]any) (*BulkResult, error) {
	ctx, span := s.tracer.Start(ctx, "records.bulk_create")
	defer span.End()
	span.SetAttributes(
		attribute.String("model_id", modelID),
		attribute.Int("items", len(items)))

	if _, err := s.models.GetActive(ctx, modelID); err != nil {
		return nil, err
	}

	result := &BulkResult{Total: len(items), Records: []map[string]any{}}
	for i, item := range items {
		projected, err := s.Create(ctx, modelID, ownerID, item)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, BulkError{Index: i, Error: err.Error(), Data: item})
			continue
		}
		result.Succeeded++
		result.Records = append(result.Records, projected)
	}
	return result, nil
}

// BulkUpdate patches many records identified by their _id key.
func (s *service) BulkUpdate(ctx context.Context, modelID, ownerID string, items []map[string]any) (*BulkResult, error) {
	ctx, span := s.tracer.Start(ctx, "records.bulk_update")
	defer span.End()
	span.SetAttributes(
		attribute.String("model_id", modelID),
		attribute.Int("items", len(items)))

	if _, err := s.models.GetActive(ctx, modelID); err != nil {
		return nil, err
	}

	result := &BulkResult{Total: len(items), Records: []map[string]any{}}
	for i, item := range items {
		recordID, ok := item[KeyID].(string)
		if !ok || recordID == "" {
			result.Failed++
			result.Errors = append(result.Errors, BulkError{
				Index: i, Error: "item is missing the _id key", Data: item})
			continue
		}

		projected, err := s.Update(ctx, modelID, recordID, ownerID, item)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, BulkError{Index: i, Error: err.Error(), Data: item})
			continue
		}
		result.Succeeded++
		result.Records = append(result.Records, projected)
	}
	return result, nil
}

// computeEmbedding derives the record's embedding from its source
// fields. Returns nil when the model has search disabled or the record
// yields no source text.
func (s *service) computeEmbedding(ctx context.Context, m *schema.Model, data map[string]any) ([]float32, error) {
	if !m.EmbeddingEnabled() || s.embedder == nil {
		return nil, nil
	}
	text := m.Embedding.SourceText(data)
	if text == "" {
		return nil, nil
	}
	return s.embedder.EmbedQuery(ctx, text)
}

// getRecord loads a record scoped to a model, mapping absence to a
// boundary error.
func (s *service) getRecord(ctx context.Context, modelID, recordID string) (*store.Record, error) {
	r, err := s.store.GetRecord(ctx, modelID, recordID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("record not found: %s", recordID)
		}
		return nil, err
	}
	return r, nil
}

func (s *service) mapWriteErr(err error, recordID string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("record not found: %s", recordID)
	case errors.Is(err, store.ErrOwnerMismatch):
		return apperr.Authorization("record %s belongs to another owner", recordID)
	default:
		return err
	}
}

// touchesSourceFields reports whether the patch writes any embedding
// source field.
func touchesSourceFields(m *schema.Model, patch map[string]any) bool {
	if !m.EmbeddingEnabled() {
		return false
	}
	for _, field := range m.Embedding.SourceFields {
		if _, ok := patch[field]; ok {
			return true
		}
	}
	return false
}

// project builds the client-facing record shape: a copy of the data
// document with system metadata injected. The embedding vector is never
// exposed.
func project(r *store.Record) map[string]any {
	out := make(map[string]any, len(r.Data)+3)
	maps.Copy(out, r.Data)
	out[KeyID] = r.ID
	out[KeyCreatedAt] = r.CreatedAt.UTC().Format(time.RFC3339)
	out[KeyUpdatedAt] = r.UpdatedAt.UTC().Format(time.RFC3339)
	return out
}

// stripSystemKeys returns a copy of item without underscore-prefixed
// keys. Bulk inputs are never mutated.
func stripSystemKeys(item map[string]any) map[string]any {
	out := make(map[string]any, len(item))
	for k, v := range item {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		out[k] = v
	}
	return out
}

// normalizePage validates pagination inputs and applies defaults.
func normalizePage(page, limit int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return 0, 0, apperr.Validation("page must be at least 1")
	}
	if limit == 0 {
		limit = DefaultPageLimit
	}
	if limit < 1 || limit > MaxPageLimit {
		return 0, 0, apperr.Validation("limit must be between 1 and %d", MaxPageLimit)
	}
	return page, limit, nil
}

// pageMeta computes pagination metadata. An empty result set still
// reports one page so clients can render a stable pager.
func pageMeta(page, limit, total int) *PageMeta {
	totalPages := (total + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}
	return &PageMeta{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}
