// Package embedclient implements ragarena's Embedding Client: batch text
// embedding over HTTP, with a deterministic hash-based backend for tests
// that do not want to pay for or depend on a live embedding endpoint.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the C3 contract every technique and ingestion path depends on.
type Client interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// HTTPClient calls an OpenAI-compatible embeddings endpoint.
type HTTPClient struct {
	baseURL   string
	model     string
	apiKey    string
	dimension int
	timeout   time.Duration
	http      *http.Client
}

// NewHTTPClient builds an HTTPClient against baseURL+"/embeddings" (or
// baseURL directly if it already ends in "/embeddings") using the given
// model, API key, and timeout.
func NewHTTPClient(baseURL, model, apiKey string, dimension int, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(baseURL, "/embeddings") {
		baseURL += "/embeddings"
	}
	return &HTTPClient{
		baseURL:   baseURL,
		model:     model,
		apiKey:    apiKey,
		dimension: dimension,
		timeout:   timeout,
		http:      http.DefaultClient,
	}
}

func (c *HTTPClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embedclient: no inputs")
	}
	body, err := json.Marshal(embedRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedclient: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("embedclient: status %s: %s", resp.Status, string(raw))
	}

	var er embedResponse
	if err := json.Unmarshal(raw, &er); err != nil {
		return nil, fmt.Errorf("embedclient: parse response: %w", err)
	}
	if len(er.Data) != len(texts) {
		return nil, fmt.Errorf("embedclient: got %d embeddings, want %d", len(er.Data), len(texts))
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}

func (c *HTTPClient) Dimension() int { return c.dimension }
