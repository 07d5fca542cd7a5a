package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"postseq/internal/errs"
	"postseq/internal/metrics"
	"postseq/internal/util"
)

type embedRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

type embedResponse [][]float32

// HTTPOptions configures an HTTPEmbedder.
type HTTPOptions struct {
	BaseURL string
	Model   string
	Dim     int
	RPS     float64
	Burst   int
	Timeout time.Duration
}

// HTTPEmbedder calls a text-embeddings-inference style service: POST /embed {"inputs": [...]}.
// Failures are returned as resource errors; there is no retry.
type HTTPEmbedder struct {
	baseURL    string
	model      string
	dim        int
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewHTTPEmbedder(opts HTTPOptions) *HTTPEmbedder {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEmbedder{
		baseURL:    opts.BaseURL,
		model:      opts.Model,
		dim:        opts.Dim,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    newLimiter(opts.RPS, opts.Burst),
	}
}

func (c *HTTPEmbedder) Dim() int          { return c.dim }
func (c *HTTPEmbedder) ModelName() string { return c.model }

func (c *HTTPEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	text = util.NormalizeWhitespace(text)
	if text == "" {
		return Zero(c.dim), nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errs.Resource(errs.StageEmbed, "", err)
	}
	vec, err := c.post(ctx, text)
	if err != nil {
		metrics.EmbedErrors.Inc()
		return nil, err
	}
	if len(vec) != c.dim {
		return nil, errs.Shape(errs.StageEmbed, []string{fmt.Sprintf("got=%d", len(vec)), fmt.Sprintf("want=%d", c.dim)},
			fmt.Errorf("embedding service %s returned wrong dimension", c.model))
	}
	return vec, nil
}

func (c *HTTPEmbedder) post(ctx context.Context, text string) ([]float32, error) {
	metrics.EmbedRequests.Inc()
	body, err := json.Marshal(embedRequest{Inputs: []string{text}, Truncate: true})
	if err != nil {
		return nil, errs.Resource(errs.StageEmbed, "", fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Resource(errs.StageEmbed, "", fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Resource(errs.StageEmbed, "", fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errs.Resource(errs.StageEmbed, "",
			fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, util.Truncate(string(b), 200)))
	}
	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errs.Resource(errs.StageEmbed, "", fmt.Errorf("decode response: %w", err))
	}
	if len(out) != 1 {
		return nil, errs.Resource(errs.StageEmbed, "", fmt.Errorf("expected 1 embedding, got %d", len(out)))
	}
	return out[0], nil
}
