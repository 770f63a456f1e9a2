// Package llm provides the client for the local text-generation service and
// the bounded queue every cognitive request goes through.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Options are the sampling parameters forwarded to the service.
type Options struct {
	NumPredict  int      `json:"num_predict"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	Stop        []string `json:"stop,omitempty"`
}

// Request is one text-generation call.
type Request struct {
	Prompt  string
	Options Options
}

// Generator produces text for a prompt. Client is the production
// implementation; tests substitute their own.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Client talks to an Ollama-compatible generation endpoint.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a generation client.
// Returns nil if baseURL is empty (generation disabled).
func NewClient(baseURL, model string, logger *zap.Logger) *Client {
	if baseURL == "" {
		return nil
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Enabled returns true if the client has an endpoint.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// generateRequest is the API request body.
type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options Options `json:"options"`
}

// generateResponse is the API response body.
type generateResponse struct {
	Response        string `json:"response"`
	EvalCount       int    `json:"eval_count"`
	PromptEvalCount int    `json:"prompt_eval_count"`
}

// Generate sends a prompt and returns the raw response text. Failures are
// returned as *GenerationError.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if !c.Enabled() {
		return "", &GenerationError{Kind: KindUnavailable, Err: errors.New("client not configured")}
	}

	body, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  req.Prompt,
		Stream:  false,
		Options: req.Options,
	})
	if err != nil {
		return "", &GenerationError{Kind: KindDecode, Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", &GenerationError{Kind: KindUnavailable, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", &GenerationError{Kind: KindTimeout, Err: ctx.Err()}
		}
		return "", &GenerationError{Kind: KindUnavailable, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &GenerationError{Kind: KindUnavailable, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &GenerationError{Kind: KindStatus, Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(respBody), 200))}
	}

	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", &GenerationError{Kind: KindDecode, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", &GenerationError{Kind: KindEmpty}
	}

	c.logger.Debug("generation call",
		zap.Duration("took", time.Since(start)),
		zap.Int("prompt_tokens", out.PromptEvalCount),
		zap.Int("output_tokens", out.EvalCount),
	)

	return out.Response, nil
}

// CheckConnection probes the service's model list. It reports false on any
// failure, including the probe exceeding timeout.
func (c *Client) CheckConnection(ctx context.Context, timeout time.Duration) bool {
	if !c.Enabled() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("generation service unreachable", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
