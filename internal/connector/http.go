package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPConfig configures an Ollama-style HTTP connector.
type HTTPConfig struct {
	Host           string
	Port           int
	TimeoutMS      uint64
	MaxRetries     uint32
	ChatModel      string
	EmbeddingModel string
}

// DefaultHTTPConfig mirrors the provider defaults: local Ollama on 11434,
// 5 minute timeout, 3 retries, llama2/nomic-embed-text models.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Host:           "http://localhost",
		Port:           11434,
		TimeoutMS:      300000,
		MaxRetries:     3,
		ChatModel:      "llama2",
		EmbeddingModel: "nomic-embed-text",
	}
}

// HTTPConnector drives an Ollama-style HTTP model server: one POST per
// chat turn against /api/generate, a separate /api/embeddings endpoint,
// and an /api/tags health/model-listing probe.
type HTTPConnector struct {
	cfg     HTTPConfig
	client  *http.Client
	tracker metricsTracker
}

// NewHTTPConnector returns a connector bound to cfg, instrumented with
// OTel HTTP client tracing.
func NewHTTPConnector(cfg HTTPConfig) *HTTPConnector {
	return &HTTPConnector{
		cfg:     cfg,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		tracker: newMetricsTracker(),
	}
}

func (c *HTTPConnector) baseURL() string { return fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port) }

func (c *HTTPConnector) Health() Health { return c.tracker.Health() }
func (c *HTTPConnector) Metrics() Metrics { return c.tracker.Snapshot() }

func (c *HTTPConnector) RecordUsage(input, output uint64) {
	c.tracker.recordUsage(input, output)
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response        string  `json:"response"`
	PromptEvalCount *uint64 `json:"prompt_eval_count,omitempty"`
	EvalCount       *uint64 `json:"eval_count,omitempty"`
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Chat issues a single POST to /api/generate, retrying the whole call with
// backoff, and returns Content/[Usage]/Done as a uniform stream.
func (c *HTTPConnector) Chat(ctx context.Context, prompt string) (<-chan Event, error) {
	var events []Event
	err := runWithRetry(ctx, c.cfg.MaxRetries, &c.tracker, func() (float64, error) {
		start := time.Now()
		resp, err := c.generate(ctx, prompt)
		if err != nil {
			return 0, err
		}

		events = []Event{ContentEvent(resp.Response)}
		input, output := derefOr0(resp.PromptEvalCount), derefOr0(resp.EvalCount)
		if input > 0 || output > 0 {
			events = append(events, UsageEvent(input, output))
			c.tracker.recordUsage(input, output)
		}
		return float64(time.Since(start).Milliseconds()), nil
	})
	if err != nil {
		return nil, err
	}

	out := make(chan Event, len(events)+1)
	for _, e := range events {
		out <- e
	}
	out <- DoneEvent()
	close(out)
	return out, nil
}

func derefOr0(p *uint64) uint64 {
	if p == nil {
		return 0
	}
	return *p
}

func (c *HTTPConnector) generate(ctx context.Context, prompt string) (*generateResponse, error) {
	body, err := json.Marshal(generateRequest{Model: c.cfg.ChatModel, Prompt: prompt, Stream: false})
	if err != nil {
		return nil, fmt.Errorf("connector: encoding generate request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutMS)*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL()+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("connector: building generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("connector: %w", ErrTimeout)
		}
		return nil, fmt.Errorf("connector: generate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("connector: generate returned HTTP %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("connector: decoding generate response: %w", err)
	}
	return &out, nil
}

// Embed issues a POST to /api/embeddings and returns the raw vector,
// rejecting empty or non-finite results.
func (c *HTTPConnector) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := runWithRetry(ctx, c.cfg.MaxRetries, &c.tracker, func() (float64, error) {
		start := time.Now()
		body, err := json.Marshal(embeddingRequest{Model: c.cfg.EmbeddingModel, Prompt: text})
		if err != nil {
			return 0, fmt.Errorf("connector: encoding embedding request: %w", err)
		}

		reqCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL()+"/api/embeddings", bytes.NewReader(body))
		if err != nil {
			return 0, fmt.Errorf("connector: building embedding request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if reqCtx.Err() == context.DeadlineExceeded {
				return 0, fmt.Errorf("connector: %w", ErrTimeout)
			}
			return 0, fmt.Errorf("connector: embedding request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return 0, fmt.Errorf("connector: embeddings returned HTTP %d", resp.StatusCode)
		}

		var out embeddingResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return 0, fmt.Errorf("connector: decoding embedding response: %w", err)
		}
		if !ValidEmbedding(out.Embedding) {
			return 0, fmt.Errorf("connector: embedding response was empty or non-finite")
		}
		vec = out.Embedding
		return float64(time.Since(start).Milliseconds()), nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// CheckHealth probes /api/tags and updates the connector's reported health.
func (c *HTTPConnector) CheckHealth(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutMS)*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL()+"/api/tags", nil)
	if err != nil {
		c.tracker.setHealth(UnhealthyStatus(err.Error()))
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.tracker.setHealth(UnhealthyStatus(fmt.Sprintf("health check failed: %s", err)))
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.tracker.setHealth(UnhealthyStatus(fmt.Sprintf("health check failed: HTTP %d", resp.StatusCode)))
		return false
	}
	c.tracker.setHealth(HealthyStatus())
	return true
}

// ListModels returns the model names reported by /api/tags.
func (c *HTTPConnector) ListModels(ctx context.Context) ([]string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutMS)*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL()+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("connector: building tags request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connector: tags request failed: %w", err)
	}
	defer resp.Body.Close()

	var out tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("connector: decoding tags response: %w", err)
	}
	names := make([]string, len(out.Models))
	for i, m := range out.Models {
		names[i] = m.Name
	}
	return names, nil
}
