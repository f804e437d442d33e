package smoketest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/noderank/internal/domain/model"
)

// Client is a small typed client for the model API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

func (c *Client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode != want {
		se := &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(raw)}
		var eb errorResponse
		if json.Unmarshal(raw, &eb) == nil {
			se.Code, se.Body = eb.Code, eb.Message
		}
		return se
	}
	switch dst := out.(type) {
	case nil:
	case *[]byte:
		*dst = raw
	default:
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return nil
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, http.StatusOK, nil)
}

// CreateModel calls POST /models.
func (c *Client) CreateModel(ctx context.Context, name string, metadata *string) (model.Record, error) {
	var rec model.Record
	err := c.do(ctx, http.MethodPost, "/models", createRequest{Name: name, Metadata: metadata}, http.StatusCreated, &rec)
	return rec, err
}

// ListModels calls GET /models.
func (c *Client) ListModels(ctx context.Context) ([]model.Record, error) {
	var recs []model.Record
	err := c.do(ctx, http.MethodGet, "/models", nil, http.StatusOK, &recs)
	return recs, err
}

// GetModel calls GET /models/{id}.
func (c *Client) GetModel(ctx context.Context, id string) (model.Record, error) {
	var rec model.Record
	err := c.do(ctx, http.MethodGet, "/models/"+id, nil, http.StatusOK, &rec)
	return rec, err
}

// TrainModel calls PUT /models/{id}/train.
func (c *Client) TrainModel(ctx context.Context, id string, dataset []model.FeatureRecord) (model.Record, error) {
	var rec model.Record
	err := c.do(ctx, http.MethodPut, "/models/"+id+"/train", dataset, http.StatusOK, &rec)
	return rec, err
}

// Rank calls POST /models/{id}/test.
func (c *Client) Rank(ctx context.Context, id string, candidates []model.FeatureRecord, topK int) ([]model.ScoredCandidate, error) {
	var res rankResponse
	err := c.do(ctx, http.MethodPost, "/models/"+id+"/test", rankRequest{Dataset: candidates, NumberOfNodes: topK}, http.StatusOK, &res)
	return res.TopNodes, err
}

// Download calls GET /models/{id}/download.
func (c *Client) Download(ctx context.Context, id string) ([]byte, error) {
	var raw []byte
	err := c.do(ctx, http.MethodGet, "/models/"+id+"/download", nil, http.StatusOK, &raw)
	return raw, err
}

// DeleteModel calls DELETE /models/{id}.
func (c *Client) DeleteModel(ctx context.Context, id string) (bool, error) {
	var res deleteResponse
	err := c.do(ctx, http.MethodDelete, "/models/"+id, nil, http.StatusOK, &res)
	return res.ArtifactRemoved, err
}
