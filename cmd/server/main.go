// Command server is the entry point for the brand-intelligence
// conversational server.
//
// Responsibilities:
//   - Load and validate configuration from YAML, environment variables
//   - Connect the document store and the cache layer built on top of it
//   - Configure the Gemini LLM adapter with the tool catalog's schemas
//   - Wire the tool registry/dispatcher, session store, and orchestrator
//   - Serve the SSE/REST chat endpoints and the health check
//   - Run the background scheduler (post monitoring, hashtag prefetch)
//   - Shut everything down gracefully on SIGINT/SIGTERM
//
// Wiring order mirrors the teacher's initializeComponents: config first,
// then every collaborator the orchestrator depends on, then the HTTP
// surface, then background jobs, so each stage can assume the previous
// one already succeeded.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-ai/internal/actor"
	"github.com/kubilitics/kubilitics-ai/internal/audit"
	"github.com/kubilitics/kubilitics-ai/internal/cache"
	"github.com/kubilitics/kubilitics-ai/internal/config"
	"github.com/kubilitics/kubilitics-ai/internal/hooks"
	"github.com/kubilitics/kubilitics-ai/internal/llm"
	"github.com/kubilitics/kubilitics-ai/internal/llm/gemini"
	"github.com/kubilitics/kubilitics-ai/internal/orchestrator"
	"github.com/kubilitics/kubilitics-ai/internal/scheduler"
	"github.com/kubilitics/kubilitics-ai/internal/session"
	"github.com/kubilitics/kubilitics-ai/internal/store"
	"github.com/kubilitics/kubilitics-ai/internal/tools"
	"github.com/kubilitics/kubilitics-ai/internal/tools/catalog"
	"github.com/kubilitics/kubilitics-ai/internal/transport"
)

func main() {
	configPath := flag.String("config", "/etc/brandint/config.yaml", "path to YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	mgr, err := config.NewManager(configPath)
	if err != nil {
		return fmt.Errorf("build config manager: %w", err)
	}
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := mgr.Get(ctx)

	zapLogger, err := newZapLogger(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Store.ConnectTimeout)*time.Second)
	defer cancel()
	docStore, err := store.Connect(connectCtx, cfg.Store.MongoURI, cfg.Store.Database)
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer func() { _ = docStore.Disconnect(context.Background()) }()

	readThrough := cache.New(docStore, zapLogger)
	if err := readThrough.EnsureTTLIndexes(ctx); err != nil {
		zapLogger.Warn("failed to ensure cache TTL indexes", zap.Error(err))
	}

	actorClient := actor.NewHTTPClient(cfg.Actor.BaseURL, cfg.Actor.Token, time.Duration(cfg.Actor.DefaultTimeout)*time.Second)

	registry := tools.NewRegistry()
	catalog.Register(registry, catalog.Deps{Actor: actorClient, Cache: readThrough})

	profileSeen := hooks.NewProfileSeen()
	registry.RegisterHook(profileSeen.Hook())

	dispatcher := tools.NewDispatcher(registry)

	llm.Configure(gemini.Factory(gemini.Config{
		APIKey: cfg.LLM.APIKey,
		Model:  cfg.LLM.Model,
		Tools:  gemini.ToolsFromSpecs(registry.Specs()),
	}))

	auditLogger, err := audit.NewLogger(&audit.Config{
		AuditLogPath: cfg.Logging.AuditLogPath,
		AppLogPath:   cfg.Logging.AppLogPath,
		MaxSize:      100,
		MaxBackups:   10,
		MaxAge:       30,
		Compress:     true,
		LogLevel:     cfg.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("build audit logger: %w", err)
	}
	defer func() { _ = auditLogger.Close() }()

	sessions := session.New(
		session.WithMaxSessions(cfg.Session.MaxSessions),
		session.WithIdleTTL(time.Duration(cfg.Session.IdleTTLMinutes)*time.Minute),
	)
	defer sessions.Stop()

	orch := orchestrator.New(dispatcher).WithAudit(auditLogger)

	statusHub := transport.NewStatusHub(cfg.Server.AllowedOrigins)
	handler := transport.New(orch, sessions, docStore, cfg.Server.AllowedOrigins).
		WithProfilesSeenStat(profileSeen.Count).
		WithRequestsPerMinute(cfg.Server.RequestsPerMinute).
		WithStatusHub(statusHub)
	defer handler.Close()

	mux := http.NewServeMux()
	handler.Register(mux)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: transport.RequestTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		postStore := scheduler.NewMongoPostStore(docStore, "tracked_posts")
		sched = scheduler.New(dispatcher, postStore, nil, time.Duration(cfg.Scheduler.ThrottleMs)*time.Millisecond).
			WithAudit(auditLogger).
			WithEventCallback(func(job string, skipped bool, duration time.Duration, err error) {
				statusHub.Broadcast(transport.StatusEvent{
					Job:       job,
					Kind:      map[bool]string{true: "skipped", false: "run"}[skipped],
					Success:   err == nil,
					Duration:  duration.String(),
					Timestamp: time.Now(),
				})
			})
		sched.Start(ctx)
	}

	serveErr := make(chan error, 1)
	go func() {
		zapLogger.Info("server starting", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		zapLogger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Warn("http server shutdown error", zap.Error(err))
	}

	if sched != nil {
		sched.Stop()
	}

	zapLogger.Info("server stopped")
	return nil
}

func newZapLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var lv zap.AtomicLevel
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = lv
	return cfg.Build()
}
