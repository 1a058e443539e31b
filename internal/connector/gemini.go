package connector

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig configures a Google Gemini connector.
type GeminiConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	TimeoutMS      uint64
	MaxRetries     uint32
}

// DefaultGeminiConfig mirrors the provider defaults: gemini-1.5-flash,
// text-embedding-004, 5 minute timeout, 3 retries.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		Model:          "gemini-1.5-flash",
		EmbeddingModel: "text-embedding-004",
		TimeoutMS:      300000,
		MaxRetries:     3,
	}
}

// GeminiConnector is an HTTP-style connector over the Gemini API: one
// request per chat turn plus an embeddings entry point, both built on
// google.golang.org/genai.
type GeminiConnector struct {
	cfg     GeminiConfig
	client  *genai.Client
	tracker metricsTracker
}

func NewGeminiConnector(ctx context.Context, cfg GeminiConfig) (*GeminiConnector, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("connector: creating gemini client: %w", err)
	}
	return &GeminiConnector{cfg: cfg, client: client, tracker: newMetricsTracker()}, nil
}

func (c *GeminiConnector) Health() Health { return c.tracker.Health() }
func (c *GeminiConnector) Metrics() Metrics { return c.tracker.Snapshot() }

// Chat issues one GenerateContent call, retrying the whole call with
// backoff, and returns Content/Usage/Done as a uniform stream.
func (c *GeminiConnector) Chat(ctx context.Context, prompt string) (<-chan Event, error) {
	var events []Event
	err := runWithRetry(ctx, c.cfg.MaxRetries, &c.tracker, func() (float64, error) {
		start := time.Now()

		reqCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()

		result, err := c.client.Models.GenerateContent(reqCtx, c.cfg.Model, genai.Text(prompt), nil)
		if err != nil {
			if reqCtx.Err() == context.DeadlineExceeded {
				return 0, fmt.Errorf("connector: %w", ErrTimeout)
			}
			return 0, fmt.Errorf("connector: gemini generate content request failed: %w", err)
		}

		var input, output uint64
		if result.UsageMetadata != nil {
			input = uint64(result.UsageMetadata.PromptTokenCount)
			output = uint64(result.UsageMetadata.CandidatesTokenCount)
		}
		c.tracker.recordUsage(input, output)
		events = []Event{ContentEvent(result.Text()), UsageEvent(input, output)}

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

// Embed issues an embeddings request and returns the raw vector, rejecting
// empty or non-finite results.
func (c *GeminiConnector) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := runWithRetry(ctx, c.cfg.MaxRetries, &c.tracker, func() (float64, error) {
		start := time.Now()

		reqCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()

		result, err := c.client.Models.EmbedContent(reqCtx, c.cfg.EmbeddingModel, genai.Text(text), nil)
		if err != nil {
			if reqCtx.Err() == context.DeadlineExceeded {
				return 0, fmt.Errorf("connector: %w", ErrTimeout)
			}
			return 0, fmt.Errorf("connector: gemini embed content request failed: %w", err)
		}
		if len(result.Embeddings) == 0 {
			return 0, fmt.Errorf("connector: gemini embed response had no embeddings")
		}

		candidate := result.Embeddings[0].Values
		if !ValidEmbedding(candidate) {
			return 0, fmt.Errorf("connector: gemini embedding was empty or non-finite")
		}
		vec = candidate
		return float64(time.Since(start).Milliseconds()), nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}
