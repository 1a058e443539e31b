// Command agentmesh boots a local multi-agent coordination runtime: a
// static fleet of agents wired to model connectors, a priority message
// bus, a token-bounded memory layer, and the scheduling loop that
// dispatches messages between them until a loop guard trips.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"agentmesh/internal/appdir"
	"agentmesh/internal/authz"
	"agentmesh/internal/config"
	"agentmesh/internal/connector"
	"agentmesh/internal/logging"
	"agentmesh/internal/memory"
	"agentmesh/internal/observability"
	"agentmesh/internal/persistence"
	"agentmesh/internal/persistence/memstore"
	"agentmesh/internal/persistence/pgstore"
	"agentmesh/internal/runtime"
	"agentmesh/internal/util"
)

const blackboardCapacity = 1024
const agentBufferTokenCapacity = 4096

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("agentmesh")
	}
}

func run() error {
	logging.Log.Info("agentmesh starting up")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	baseCtx := context.Background()

	shutdownOTel, err := observability.InitOTel(baseCtx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdownOTel = nil
	}
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	dataDir, err := appdir.Dir(cfg.AppDataDir)
	if err != nil {
		return fmt.Errorf("resolve app data dir: %w", err)
	}
	settings, err := appdir.LoadSettings(appdir.SettingsPath(dataDir))
	if err != nil {
		return fmt.Errorf("load app settings: %w", err)
	}
	log.Info().Str("data_dir", dataDir).Str("app_name", settings.AppName).Msg("app_data_resolved")

	store, closeStore, err := buildStore(baseCtx, cfg)
	if err != nil {
		return fmt.Errorf("init persistence store: %w", err)
	}
	defer closeStore()

	auth := authz.NewAuthService(cfg.Auth.DevToken)
	limiter, closeLimiter, err := buildRateLimiter(cfg)
	if err != nil {
		return fmt.Errorf("init rate limiter: %w", err)
	}
	defer closeLimiter()

	fleet, err := config.LoadFleet(cfg.FleetPath)
	if err != nil {
		return fmt.Errorf("load fleet: %w", err)
	}

	registry := runtime.NewRegistry()
	bus := runtime.NewMessageBus()
	memMgr := memory.NewManager(blackboardCapacity)

	defaults := connector.Defaults{
		SubprocessCLIPath: cfg.Connector.SubprocessCLIPath,
		OllamaHost:        cfg.Connector.OllamaHost,
		OllamaPort:        cfg.Connector.OllamaPort,
		AnthropicAPIKey:   cfg.Connector.AnthropicAPIKey,
		AnthropicModel:    cfg.Connector.AnthropicModel,
		OpenAIAPIKey:      cfg.Connector.OpenAIAPIKey,
		OpenAIModel:       cfg.Connector.OpenAIModel,
		GeminiAPIKey:      cfg.Connector.GeminiAPIKey,
		GeminiModel:       cfg.Connector.GeminiModel,
	}

	var embedder memory.Embedder
	agentConnectors := make(map[runtime.AgentID]connector.Connector, len(fleet.Agents))
	for _, fa := range fleet.Agents {
		conn, err := connector.New(baseCtx, fa.ConnectorKind, defaults, fa.MaxRetries, fa.TimeoutMS)
		if err != nil {
			return fmt.Errorf("build connector for agent %q: %w", fa.Name, err)
		}
		if embedder == nil && embeddingCapable(conn) {
			embedder = conn.(memory.Embedder)
		}

		policies := make([]runtime.ToolPolicy, 0, len(fa.ToolPolicies))
		for _, tp := range fa.ToolPolicies {
			policy := runtime.NewToolPolicy(tp.ToolName, parsePermission(tp.Permission))
			if tp.MaxCallsPerHour != nil {
				policy = policy.WithRateLimit(*tp.MaxCallsPerHour)
			}
			policy.AllowedPaths = tp.AllowedPaths
			policies = append(policies, policy)
		}

		acfg := runtime.NewAgentConfig(fa.Name, runtime.AgentRole(fa.Role), fa.ConnectorKind)
		if fa.MaxRetries != 0 {
			acfg.MaxRetries = fa.MaxRetries
		}
		if fa.TimeoutMS != 0 {
			acfg.TimeoutMS = fa.TimeoutMS
		}
		acfg.ToolPolicies = policies

		id := registry.Register(acfg)
		bus.CreateMailbox(id)
		agentConnectors[id] = conn
		memMgr.CreateAgentBuffer(id, agentBufferTokenCapacity)

		log.Info().Str("agent", fa.Name).Str("role", fa.Role).Str("connector_kind", fa.ConnectorKind).Msg("agent_registered")
	}

	if embedder != nil {
		memMgr = memMgr.WithEmbeddings(embedder)
	}

	execute := buildExecuteFunc(store, memMgr, agentConnectors)
	guard := runtime.DefaultLoopGuard()
	if v := fleet.LoopGuard.MaxIterations; v != nil {
		guard.MaxIterations = *v
	}
	if v := fleet.LoopGuard.MaxMessagesPerAgent; v != nil {
		guard.MaxMessagesPerAgent = *v
	}
	if v := fleet.LoopGuard.MaxExecutionTimeMS; v != nil {
		guard.MaxExecutionTimeMS = *v
	}
	orch := runtime.New(registry, bus, execute).WithLoopGuard(guard)

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := buildHTTPServer(cfg, store, orch, agentConnectors, auth, limiter)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http_server_listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http_server_failed")
		}
	}()

	reason := orch.Start(ctx)
	log.Info().Str("stop_reason", reason.String()).Msg("orchestrator_stopped")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}

func buildStore(ctx context.Context, cfg config.Config) (persistence.Store, func(), error) {
	if cfg.Database.UseInMemory {
		return memstore.New(), func() {}, nil
	}
	pool, err := pgstore.OpenPool(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := pgstore.New(pool)
	if err := store.InitSchema(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("init schema: %w", err)
	}
	return store, store.Close, nil
}

func buildRateLimiter(cfg config.Config) (authz.RateLimiter, func(), error) {
	limitCfg := authz.RateLimitConfig{
		RequestsPerSecond: uint32(cfg.Auth.RequestsPerSecond),
		BurstSize:         uint32(cfg.Auth.BurstSize),
	}
	if cfg.Auth.RateLimitBackend != "redis" {
		return authz.NewMemoryRateLimiter(limitCfg), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Auth.RedisAddr})
	return authz.NewRedisRateLimiter(client, limitCfg), func() { _ = client.Close() }, nil
}

func parsePermission(name string) runtime.PermissionLevel {
	switch name {
	case "read_only":
		return runtime.PermissionReadOnly
	case "read_write":
		return runtime.PermissionReadWrite
	case "full":
		return runtime.PermissionFull
	default:
		return runtime.PermissionDenied
	}
}

// embeddingCapable reports whether conn's concrete connector implements
// memory.Embedder, unwrapping a breaker decorator first since its Embed
// method forwards unconditionally and errors at call time rather than
// reporting absence through the type system.
func embeddingCapable(conn connector.Connector) bool {
	target := conn
	if u, ok := conn.(interface{ Unwrap() connector.Connector }); ok {
		target = u.Unwrap()
	}
	_, ok := target.(memory.Embedder)
	return ok
}

// buildExecuteFunc adapts an agent's Connector into runtime.ExecuteFunc:
// drive one chat turn, fold Content events into the agent's ring buffer,
// and persist a block per turn when a Store is available.
func buildExecuteFunc(store persistence.Store, memMgr *memory.Manager, connectors map[runtime.AgentID]connector.Connector) runtime.ExecuteFunc {
	return func(ctx context.Context, id runtime.AgentID, msg runtime.Message, cfg runtime.AgentConfig) error {
		conn, ok := connectors[id]
		if !ok {
			return fmt.Errorf("no connector registered for agent %s", id)
		}

		events, err := conn.Chat(ctx, msg.Content)
		if err != nil {
			return fmt.Errorf("connector chat: %w", err)
		}

		var reply string
		for ev := range events {
			switch ev.Kind {
			case connector.EventContent:
				reply += ev.Content
			case connector.EventError:
				return fmt.Errorf("connector reported error: %s", ev.ErrorMessage)
			}
		}

		combined := msg.Content + "\n" + reply
		entry := memory.NewEntry(combined, uint32(util.CountTokens(combined)))
		if err := memMgr.AddToAgent(ctx, id, entry); err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Str("agent_id", id.String()).Msg("memory_add_failed")
		}

		if store != nil {
			sessionID := msg.Metadata["session_id"]
			if sessionID == "" {
				sessionID = id.String()
			}
			if _, err := store.EnsureSession(ctx, sessionID, "agent-session"); err == nil {
				_, _ = store.AppendBlock(ctx, persistence.Block{
					SessionID: sessionID,
					BlockType: "agent_turn",
					Content:   reply,
				})
			}
		}

		return nil
	}
}

func buildHTTPServer(cfg config.Config, store persistence.Store, orch *runtime.Orchestrator, connectors map[runtime.AgentID]connector.Connector, auth *authz.AuthService, limiter authz.RateLimiter) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		sess, err := store.CreateSession(r.Context(), body.Name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, sess)
	})

	mux.HandleFunc("GET /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sess, err := store.GetSession(r.Context(), r.PathValue("id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	})

	mux.HandleFunc("GET /sessions", func(w http.ResponseWriter, r *http.Request) {
		sessions, err := store.ListSessions(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	})

	mux.HandleFunc("POST /agents/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent message submission is not wired to an HTTP-facing mailbox in this deployment", http.StatusNotImplemented)
	})

	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, orch.Metrics())
	})

	mux.HandleFunc("GET /usage", func(w http.ResponseWriter, r *http.Request) {
		usage := make(map[string]connector.Metrics, len(connectors))
		for id, c := range connectors {
			if m, ok := c.(interface{ Metrics() connector.Metrics }); ok {
				usage[id.String()] = m.Metrics()
			}
		}
		writeJSON(w, http.StatusOK, usage)
	})

	var handler http.Handler = mux
	handler = authz.RequireRateLimit(limiter, authz.ClientIDFromToken)(handler)
	handler = authz.RequireBearerToken(auth)(handler)

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case err == persistence.ErrNotFound:
		http.Error(w, "not found", http.StatusNotFound)
	case err == persistence.ErrForbidden:
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
