// Package models manages user-defined model definitions.
package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recordd/internal/apperr"
	"github.com/fyrsmithlabs/recordd/internal/schema"
	"github.com/fyrsmithlabs/recordd/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/recordd/internal/models"

// Service provides model definition management.
type Service interface {
	// Create defines a new model owned by ownerID.
	Create(ctx context.Context, ownerID string, req *CreateRequest) (*schema.Model, error)

	// GetActive retrieves a model by ID. Soft-deleted models are
	// reported as not found.
	GetActive(ctx context.Context, id string) (*schema.Model, error)

	// List returns the owner's active models.
	List(ctx context.Context, ownerID string) ([]*schema.Model, error)

	// Update applies a partial update to an owned model.
	Update(ctx context.Context, id, ownerID string, req *UpdateRequest) (*schema.Model, error)

	// Delete soft-deletes an owned model. Its records are retained.
	Delete(ctx context.Context, id, ownerID string) error
}

// service implements the Service interface.
type service struct {
	store  store.Store
	logger *zap.Logger

	tracer        trace.Tracer
	meter         metric.Meter
	createCounter metric.Int64Counter
	deleteCounter metric.Int64Counter
}

// NewService creates a model definition service.
func NewService(st store.Store, logger *zap.Logger) (Service, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &service{
		store:  st,
		logger: logger.Named("models"),
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	s.initMetrics()
	return s, nil
}

func (s *service) initMetrics() {
	var err error

	s.createCounter, err = s.meter.Int64Counter(
		"recordd.models.created_total",
		metric.WithDescription("Total number of models created"),
		metric.WithUnit("{model}"),
	)
	if err != nil {
		s.logger.Warn("failed to create model counter", zap.Error(err))
	}

	s.deleteCounter, err = s.meter.Int64Counter(
		"recordd.models.deleted_total",
		metric.WithDescription("Total number of models soft-deleted"),
		metric.WithUnit("{model}"),
	)
	if err != nil {
		s.logger.Warn("failed to create delete counter", zap.Error(err))
	}
}

// Create defines a new model owned by ownerID.
func (s *service) Create(ctx context.Context, ownerID string, req *CreateRequest) (*schema.Model, error) {
	ctx, span := s.tracer.Start(ctx, "models.create")
	defer span.End()
	span.SetAttributes(attribute.String("owner_id", ownerID))

	if req == nil || req.Name == "" {
		return nil, apperr.Validation("model name is required")
	}
	if err := schema.ValidateFields(req.Fields); err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := time.Now().UTC()
	m := &schema.Model{
		ID:            uuid.New().String(),
		OwnerID:       ownerID,
		Name:          req.Name,
		Description:   req.Description,
		Fields:        req.Fields,
		Relationships: req.Relationships,
		Indexes:       req.Indexes,
		Embedding:     req.Embedding,
		Status:        schema.StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.CreateModel(ctx, m); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if s.createCounter != nil {
		s.createCounter.Add(ctx, 1)
	}
	s.logger.Info("created model",
		zap.String("id", m.ID),
		zap.String("name", m.Name),
		zap.String("owner_id", ownerID))
	return m, nil
}

// GetActive retrieves a model, treating soft-deleted models as absent.
func (s *service) GetActive(ctx context.Context, id string) (*schema.Model, error) {
	ctx, span := s.tracer.Start(ctx, "models.get")
	defer span.End()
	span.SetAttributes(attribute.String("model_id", id))

	m, err := s.store.GetModel(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("model not found: %s", id)
		}
		span.RecordError(err)
		return nil, err
	}
	if m.Status != schema.StatusActive {
		return nil, apperr.NotFound("model not found: %s", id)
	}
	return m, nil
}

// List returns the owner's active models.
func (s *service) List(ctx context.Context, ownerID string) ([]*schema.Model, error) {
	ctx, span := s.tracer.Start(ctx, "models.list")
	defer span.End()
	span.SetAttributes(attribute.String("owner_id", ownerID))

	models, err := s.store.ListModels(ctx, ownerID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return models, nil
}

// Update applies a partial update to an owned model. A provided field
// set replaces the previous one and is revalidated before persisting.
func (s *service) Update(ctx context.Context, id, ownerID string, req *UpdateRequest) (*schema.Model, error) {
	ctx, span := s.tracer.Start(ctx, "models.update")
	defer span.End()
	span.SetAttributes(
		attribute.String("model_id", id),
		attribute.String("owner_id", ownerID))

	m, err := s.GetActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.OwnerID != ownerID {
		return nil, apperr.Authorization("model %s belongs to another owner", id)
	}
	if req == nil {
		return m, nil
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, apperr.Validation("model name is required")
		}
		m.Name = *req.Name
	}
	if req.Description != nil {
		m.Description = *req.Description
	}
	if req.Fields != nil {
		if err := schema.ValidateFields(req.Fields); err != nil {
			span.RecordError(err)
			return nil, err
		}
		m.Fields = req.Fields
	}
	if req.Relationships != nil {
		m.Relationships = req.Relationships
	}
	if req.Indexes != nil {
		m.Indexes = req.Indexes
	}
	if req.Embedding != nil {
		m.Embedding = req.Embedding
	}
	m.UpdatedAt = time.Now().UTC()

	// The write re-checks ownership so a concurrent owner change cannot
	// slip between the check above and the update.
	if err := s.store.UpdateModel(ctx, m, ownerID); err != nil {
		span.RecordError(err)
		return nil, s.mapWriteErr(err, id)
	}

	s.logger.Info("updated model", zap.String("id", id))
	return m, nil
}

// Delete soft-deletes an owned model.
func (s *service) Delete(ctx context.Context, id, ownerID string) error {
	ctx, span := s.tracer.Start(ctx, "models.delete")
	defer span.End()
	span.SetAttributes(
		attribute.String("model_id", id),
		attribute.String("owner_id", ownerID))

	m, err := s.GetActive(ctx, id)
	if err != nil {
		return err
	}
	if m.OwnerID != ownerID {
		return apperr.Authorization("model %s belongs to another owner", id)
	}

	if err := s.store.MarkModelDeleted(ctx, id, ownerID, time.Now().UTC()); err != nil {
		span.RecordError(err)
		return s.mapWriteErr(err, id)
	}

	if s.deleteCounter != nil {
		s.deleteCounter.Add(ctx, 1)
	}
	s.logger.Info("deleted model", zap.String("id", id))
	return nil
}

// mapWriteErr translates store sentinels from conditional writes into
// boundary errors.
func (s *service) mapWriteErr(err error, id string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("model not found: %s", id)
	case errors.Is(err, store.ErrOwnerMismatch):
		return apperr.Authorization("model %s belongs to another owner", id)
	default:
		return err
	}
}
