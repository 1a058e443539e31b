package connector

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker"
)

// Defaults carries the process-wide connector settings a fleet file does
// not override per agent (API keys, hosts, fallback models).
type Defaults struct {
	SubprocessCLIPath string

	OllamaHost string
	OllamaPort int

	AnthropicAPIKey string
	AnthropicModel  string

	OpenAIAPIKey string
	OpenAIModel  string

	GeminiAPIKey string
	GeminiModel  string
}

// New builds a Connector for the named kind ("subprocess", "subprocess_interactive",
// "ollama", "anthropic", "openai", "gemini"), seeded from d and overridden
// by the agent's MaxRetries/TimeoutMS where the connector kind accepts them.
func New(ctx context.Context, kind string, d Defaults, maxRetries uint32, timeoutMS uint64) (Connector, error) {
	switch kind {
	case "", "subprocess":
		cfg := DefaultConfig()
		cfg.CLIPath = firstNonEmpty(d.SubprocessCLIPath, cfg.CLIPath)
		applyOverrides(&cfg.MaxRetries, &cfg.TimeoutMS, maxRetries, timeoutMS)
		return wrapWithBreaker(kind, NewSubprocessConnector(cfg, ModeOneshot)), nil

	case "subprocess_interactive":
		cfg := DefaultConfig()
		cfg.CLIPath = firstNonEmpty(d.SubprocessCLIPath, cfg.CLIPath)
		applyOverrides(&cfg.MaxRetries, &cfg.TimeoutMS, maxRetries, timeoutMS)
		return wrapWithBreaker(kind, NewSubprocessConnector(cfg, ModeInteractive)), nil

	case "ollama":
		cfg := DefaultHTTPConfig()
		if d.OllamaHost != "" {
			cfg.Host = d.OllamaHost
		}
		if d.OllamaPort != 0 {
			cfg.Port = d.OllamaPort
		}
		applyOverrides(&cfg.MaxRetries, &cfg.TimeoutMS, maxRetries, timeoutMS)
		return wrapWithBreaker(kind, NewHTTPConnector(cfg)), nil

	case "anthropic":
		cfg := DefaultAnthropicConfig()
		cfg.APIKey = d.AnthropicAPIKey
		cfg.Model = firstNonEmpty(d.AnthropicModel, cfg.Model)
		applyOverrides(&cfg.MaxRetries, &cfg.TimeoutMS, maxRetries, timeoutMS)
		return wrapWithBreaker(kind, NewAnthropicConnector(cfg)), nil

	case "openai":
		cfg := DefaultOpenAIConfig()
		cfg.APIKey = d.OpenAIAPIKey
		cfg.Model = firstNonEmpty(d.OpenAIModel, cfg.Model)
		applyOverrides(&cfg.MaxRetries, &cfg.TimeoutMS, maxRetries, timeoutMS)
		return wrapWithBreaker(kind, NewOpenAIConnector(cfg)), nil

	case "gemini":
		cfg := DefaultGeminiConfig()
		cfg.APIKey = d.GeminiAPIKey
		cfg.Model = firstNonEmpty(d.GeminiModel, cfg.Model)
		applyOverrides(&cfg.MaxRetries, &cfg.TimeoutMS, maxRetries, timeoutMS)
		conn, err := NewGeminiConnector(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return wrapWithBreaker(kind, conn), nil

	default:
		return nil, fmt.Errorf("connector: unknown connector kind %q", kind)
	}
}

// breakerWrapped decorates a built Connector with a circuit breaker around
// its Chat entry point, named after the connector kind so a tripped breaker
// is traceable to a provider. Health factors in the breaker's own state;
// Metrics and Embed pass through to the wrapped connector unchanged,
// following the same structural-interface pattern memory.Embedder relies on
// in internal/memory.
type breakerWrapped struct {
	inner   Connector
	breaker *BreakerConnector
}

func wrapWithBreaker(kind string, inner Connector) Connector {
	return &breakerWrapped{inner: inner, breaker: NewBreakerConnector(kind, inner.Chat)}
}

func (b *breakerWrapped) Chat(ctx context.Context, prompt string) (<-chan Event, error) {
	return b.breaker.Chat(ctx, prompt)
}

func (b *breakerWrapped) Health() Health {
	if b.breaker.State() == gobreaker.StateOpen {
		return UnhealthyStatus("circuit breaker open")
	}
	if h, ok := b.inner.(interface{ Health() Health }); ok {
		return h.Health()
	}
	return HealthyStatus()
}

func (b *breakerWrapped) Metrics() Metrics {
	if m, ok := b.inner.(interface{ Metrics() Metrics }); ok {
		return m.Metrics()
	}
	return Metrics{}
}

func (b *breakerWrapped) Embed(ctx context.Context, text string) ([]float32, error) {
	if e, ok := b.inner.(interface {
		Embed(ctx context.Context, text string) ([]float32, error)
	}); ok {
		return e.Embed(ctx, text)
	}
	return nil, fmt.Errorf("connector: %T does not support embeddings", b.inner)
}

// Unwrap returns the concrete connector a breakerWrapped decorates, for
// callers that need the underlying type (e.g. tests inspecting config).
func (b *breakerWrapped) Unwrap() Connector { return b.inner }

func applyOverrides(retries *uint32, timeoutMS *uint64, overrideRetries uint32, overrideTimeoutMS uint64) {
	if overrideRetries != 0 {
		*retries = overrideRetries
	}
	if overrideTimeoutMS != 0 {
		*timeoutMS = overrideTimeoutMS
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
