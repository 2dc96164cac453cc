// Package services wires the business services behind a single
// registry handed to the transport layer.
package services

import (
	"errors"

	"github.com/fyrsmithlabs/recordd/internal/models"
	"github.com/fyrsmithlabs/recordd/internal/records"
)

// Registry exposes the business services.
type Registry interface {
	Models() models.Service
	Records() records.Service
}

type registry struct {
	models  models.Service
	records records.Service
}

// NewRegistry creates a service registry.
func NewRegistry(ms models.Service, rs records.Service) (Registry, error) {
	if ms == nil {
		return nil, errors.New("models service is required")
	}
	if rs == nil {
		return nil, errors.New("records service is required")
	}
	return &registry{models: ms, records: rs}, nil
}

func (r *registry) Models() models.Service   { return r.models }
func (r *registry) Records() records.Service { return r.records }
