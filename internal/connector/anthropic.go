package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures an Anthropic Messages API connector.
type AnthropicConfig struct {
	APIKey     string
	Model      string
	MaxTokens  int64
	TimeoutMS  uint64
	MaxRetries uint32
}

// DefaultAnthropicConfig mirrors the provider defaults: claude-3-5-sonnet,
// 1024 max output tokens, 5 minute timeout, 3 retries.
func DefaultAnthropicConfig() AnthropicConfig {
	return AnthropicConfig{
		Model:      "claude-3-5-sonnet-latest",
		MaxTokens:  1024,
		TimeoutMS:  300000,
		MaxRetries: 3,
	}
}

// AnthropicConnector is an HTTP-style connector over Anthropic's Messages
// API: one request per chat turn, usage read directly off the response.
type AnthropicConnector struct {
	cfg     AnthropicConfig
	client  anthropic.Client
	tracker metricsTracker
}

func NewAnthropicConnector(cfg AnthropicConfig) *AnthropicConnector {
	return &AnthropicConnector{
		cfg:     cfg,
		client:  anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		tracker: newMetricsTracker(),
	}
}

func (c *AnthropicConnector) Health() Health { return c.tracker.Health() }
func (c *AnthropicConnector) Metrics() Metrics { return c.tracker.Snapshot() }

// Chat issues one Messages.New call, retrying the whole call with backoff,
// and returns Content/Usage/Done as a uniform stream.
func (c *AnthropicConnector) Chat(ctx context.Context, prompt string) (<-chan Event, error) {
	var events []Event
	err := runWithRetry(ctx, c.cfg.MaxRetries, &c.tracker, func() (float64, error) {
		start := time.Now()

		reqCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()

		msg, err := c.client.Messages.New(reqCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.cfg.Model),
			MaxTokens: c.cfg.MaxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			if reqCtx.Err() == context.DeadlineExceeded {
				return 0, fmt.Errorf("connector: %w", ErrTimeout)
			}
			return 0, fmt.Errorf("connector: anthropic messages request failed: %w", err)
		}

		var text string
		for _, block := range msg.Content {
			if block.Type == "text" {
				text += block.Text
			}
		}

		input := uint64(msg.Usage.InputTokens)
		output := uint64(msg.Usage.OutputTokens)
		c.tracker.recordUsage(input, output)
		events = []Event{ContentEvent(text), UsageEvent(input, output)}

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
