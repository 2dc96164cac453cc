// Package embeddings generates text embeddings through an
// OpenAI-compatible embeddings endpoint.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recordd/internal/apperr"
)

// Config holds embedding provider settings.
type Config struct {
	BaseURL    string `koanf:"base_url"`
	APIKey     string `koanf:"api_key"`
	Model      string `koanf:"model"`
	MaxRetries int    `koanf:"max_retries"`
}

// Embedder produces an embedding vector for a piece of text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Client is the HTTP Embedder implementation. Transient upstream
// failures (429 and 5xx) are retried with exponential backoff; every
// other failure is surfaced immediately.
type Client struct {
	cfg     Config
	httpc   *http.Client
	logger  *zap.Logger
	retries uint64

	// newBackOff builds the per-call retry policy. Overridable in tests.
	newBackOff func() backoff.BackOff
}

var _ Embedder = (*Client)(nil)

// NewClient creates an embeddings client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		logger:  logger.Named("embeddings"),
		retries: uint64(retries),
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedQuery returns the embedding vector for text. Failures after
// retries are reported as external service errors so callers can map
// them to an upstream-unavailable condition.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, apperr.Validation("embedding input must not be empty")
	}

	body, err := json.Marshal(embeddingRequest{Input: text, Model: c.cfg.Model})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(c.newBackOff(), c.retries), ctx)

	var vector []float32
	attempt := 0
	op := func() error {
		attempt++
		v, err := c.embedOnce(ctx, body)
		if err != nil {
			c.logger.Warn("embedding request failed",
				zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		vector = v
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return nil, apperr.External("embedding service: %v", err)
	}
	return vector, nil
}

func (c *Client) embedOnce(ctx context.Context, body []byte) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(payload))
		if retryable(resp.StatusCode) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, backoff.Permanent(fmt.Errorf("response contains no embedding"))
	}
	return parsed.Data[0].Embedding, nil
}

// retryable reports whether an HTTP status indicates a transient
// upstream condition.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
