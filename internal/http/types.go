package http

import "github.com/fyrsmithlabs/recordd/internal/records"

// Response is the uniform envelope for every API response.
type Response struct {
	Success bool              `json:"success"`
	Data    any               `json:"data,omitempty"`
	Error   *ErrorBody        `json:"error,omitempty"`
	Meta    *records.PageMeta `json:"meta,omitempty"`
}

// ErrorBody carries the machine-readable error classification and a
// human-readable message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
