package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
)

func parseInt(v string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(v))
}

func parseFloat(v string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(v), 64)
}

func parseBool(v string) bool {
	v = strings.TrimSpace(v)
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

// Load reads configuration from environment variables, overlaying a local
// .env file if present. Load never fails on a missing .env; it only returns
// an error when an explicitly provided value cannot be parsed.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		Host:     firstNonEmpty(os.Getenv("AGENTMESH_HOST"), "127.0.0.1"),
		Port:     8730,
		LogPath:  strings.TrimSpace(os.Getenv("LOG_PATH")),
		LogLevel: firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info"),
	}

	if v := strings.TrimSpace(os.Getenv("AGENTMESH_PORT")); v != "" {
		n, err := parseInt(v)
		if err != nil {
			return cfg, fmt.Errorf("parsing AGENTMESH_PORT: %w", err)
		}
		cfg.Port = n
	}

	cfg.Database.DSN = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.Database.UseInMemory = cfg.Database.DSN == ""
	if cfg.Database.UseInMemory {
		pterm.Info.Println("DATABASE_URL not set, using in-memory persistence store.")
	}

	cfg.Obs.OTLP = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	cfg.Obs.ServiceName = firstNonEmpty(strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")), "agentmesh")
	cfg.Obs.ServiceVersion = firstNonEmpty(strings.TrimSpace(os.Getenv("AGENTMESH_VERSION")), "dev")
	cfg.Obs.Environment = firstNonEmpty(strings.TrimSpace(os.Getenv("AGENTMESH_ENV")), "development")

	cfg.Connector.SubprocessCLIPath = strings.TrimSpace(os.Getenv("SUBPROCESS_CLI_PATH"))
	cfg.Connector.OllamaHost = firstNonEmpty(strings.TrimSpace(os.Getenv("OLLAMA_HOST")), "http://localhost")
	cfg.Connector.OllamaPort = 11434
	if v := strings.TrimSpace(os.Getenv("OLLAMA_PORT")); v != "" {
		n, err := parseInt(v)
		if err != nil {
			return cfg, fmt.Errorf("parsing OLLAMA_PORT: %w", err)
		}
		cfg.Connector.OllamaPort = n
	}
	cfg.Connector.AnthropicAPIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	cfg.Connector.AnthropicModel = firstNonEmpty(strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL")), "claude-3-5-sonnet-latest")
	cfg.Connector.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.Connector.OpenAIModel = firstNonEmpty(strings.TrimSpace(os.Getenv("OPENAI_MODEL")), "gpt-4o-mini")
	cfg.Connector.GeminiAPIKey = strings.TrimSpace(os.Getenv("GOOGLE_GEMINI_API_KEY"))
	cfg.Connector.GeminiModel = firstNonEmpty(strings.TrimSpace(os.Getenv("GOOGLE_GEMINI_MODEL")), "gemini-1.5-flash")

	cfg.Auth.DevToken = firstNonEmpty(strings.TrimSpace(os.Getenv("AGENTMESH_DEV_TOKEN")), "dev-token-local")
	cfg.Auth.RequestsPerSecond = 100
	cfg.Auth.BurstSize = 150
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); v != "" {
		f, err := parseFloat(v)
		if err != nil {
			return cfg, fmt.Errorf("parsing RATE_LIMIT_RPS: %w", err)
		}
		cfg.Auth.RequestsPerSecond = f
	}
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); v != "" {
		n, err := parseInt(v)
		if err != nil {
			return cfg, fmt.Errorf("parsing RATE_LIMIT_BURST: %w", err)
		}
		cfg.Auth.BurstSize = n
	}
	cfg.Auth.RateLimitBackend = firstNonEmpty(strings.TrimSpace(os.Getenv("RATE_LIMIT_BACKEND")), "memory")
	cfg.Auth.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))

	cfg.FleetPath = firstNonEmpty(strings.TrimSpace(os.Getenv("AGENTMESH_FLEET_FILE")), "fleet.yaml")
	cfg.AppDataDir = strings.TrimSpace(os.Getenv("AGENTMESH_DATA_DIR"))

	pterm.Success.Println("Configuration loaded from environment.")
	return cfg, nil
}
