package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIConfig configures an OpenAI Chat Completions connector.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	TimeoutMS  uint64
	MaxRetries uint32
}

// DefaultOpenAIConfig mirrors the provider defaults: gpt-4o-mini, 5 minute
// timeout, 3 retries.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Model:      "gpt-4o-mini",
		TimeoutMS:  300000,
		MaxRetries: 3,
	}
}

// OpenAIConnector is an HTTP-style connector over the Chat Completions
// API: one request per chat turn, usage read directly off the response.
type OpenAIConnector struct {
	cfg     OpenAIConfig
	client  openai.Client
	tracker metricsTracker
}

func NewOpenAIConnector(cfg OpenAIConfig) *OpenAIConnector {
	return &OpenAIConnector{
		cfg:     cfg,
		client:  openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		tracker: newMetricsTracker(),
	}
}

func (c *OpenAIConnector) Health() Health { return c.tracker.Health() }
func (c *OpenAIConnector) Metrics() Metrics { return c.tracker.Snapshot() }

// Chat issues one Chat.Completions.New call, retrying the whole call with
// backoff, and returns Content/Usage/Done as a uniform stream.
func (c *OpenAIConnector) Chat(ctx context.Context, prompt string) (<-chan Event, error) {
	var events []Event
	err := runWithRetry(ctx, c.cfg.MaxRetries, &c.tracker, func() (float64, error) {
		start := time.Now()

		reqCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()

		resp, err := c.client.Chat.Completions.New(reqCtx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(c.cfg.Model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
		})
		if err != nil {
			if reqCtx.Err() == context.DeadlineExceeded {
				return 0, fmt.Errorf("connector: %w", ErrTimeout)
			}
			return 0, fmt.Errorf("connector: openai chat completion request failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return 0, fmt.Errorf("connector: openai response had no choices")
		}

		input := uint64(resp.Usage.PromptTokens)
		output := uint64(resp.Usage.CompletionTokens)
		c.tracker.recordUsage(input, output)
		events = []Event{ContentEvent(resp.Choices[0].Message.Content), UsageEvent(input, output)}

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
