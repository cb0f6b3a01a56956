package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/guy-hartstein/syncforge/internal/config"
	"github.com/guy-hartstein/syncforge/internal/gateway"
	"github.com/guy-hartstein/syncforge/internal/gh"
	"github.com/guy-hartstein/syncforge/internal/memory"
	"github.com/guy-hartstein/syncforge/internal/orchestrator"
	"github.com/guy-hartstein/syncforge/internal/ratelimit"
	"github.com/guy-hartstein/syncforge/internal/scheduler"
	"github.com/guy-hartstein/syncforge/internal/server"
	"github.com/guy-hartstein/syncforge/internal/storage"
	"github.com/guy-hartstein/syncforge/internal/telemetry"
	"github.com/guy-hartstein/syncforge/internal/wizard"
	"github.com/guy-hartstein/syncforge/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("SYNCFORGE_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("syncforge starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, false)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database and apply migrations. RunMigrations tracks applied
	// files in schema_migrations and skips duplicates, so errors here indicate
	// real failures (not "already exists").
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// The gateway API key lives in the settings table, not the environment,
	// so clients are built per operation from the stored key.
	var gatewayOpts []gateway.Option
	if cfg.GatewayBaseURL != "" {
		gatewayOpts = append(gatewayOpts, gateway.WithBaseURL(cfg.GatewayBaseURL))
	}
	gatewayFactory := func(apiKey string) orchestrator.Gateway {
		return gateway.New(apiKey, logger, gatewayOpts...)
	}
	diagnosticsFactory := func(apiKey string) server.Diagnostics {
		return gateway.New(apiKey, logger, gatewayOpts...)
	}
	codeHostFactory := func(token string) server.CodeHost {
		return gh.New(token)
	}

	// Memory extraction and the wizard degrade gracefully without a key: the
	// extractor becomes a noop and the wizard falls back to its scripted flow.
	var extractor orchestrator.MemoryExtractor = memory.Noop{}
	if cfg.OpenAIAPIKey != "" {
		var memOpts []memory.Option
		if cfg.OpenAIModel != "" {
			memOpts = append(memOpts, memory.WithModel(cfg.OpenAIModel))
		}
		extractor = memory.New(cfg.OpenAIAPIKey, logger, memOpts...)
	} else {
		logger.Info("memory extraction: disabled (no OPENAI_API_KEY)")
	}

	var wizardOpts []wizard.Option
	if cfg.OpenAIModel != "" {
		wizardOpts = append(wizardOpts, wizard.WithModel(cfg.OpenAIModel))
	}
	wizardSvc := wizard.New(cfg.OpenAIAPIKey, logger, wizardOpts...)
	sessions := wizard.NewSessionStore()
	defer sessions.Stop()

	coordinator := orchestrator.New(db, gatewayFactory, logger,
		orchestrator.WithPRChecker(prChecker{db: db, logger: logger}),
		orchestrator.WithMemoryExtractor(extractor),
	)

	// Background sync keeps run state converging even when webhooks are lost.
	sched := scheduler.New(db, coordinator, cfg.SyncInterval, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	defer sched.Stop()

	limiter := ratelimit.NewMemoryLimiter(cfg.WebhookRateLimit, cfg.WebhookRateBurst)
	defer func() { _ = limiter.Close() }()

	srv := server.New(server.Config{
		Handlers: server.HandlersDeps{
			Store:       db,
			Coordinator: coordinator,
			WizardSvc:   wizardSvc,
			Sessions:    sessions,
			Diagnostics: diagnosticsFactory,
			CodeHost:    codeHostFactory,
			Logger:      logger,
			Version:     version,
		},
		Limiter:      limiter,
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("syncforge shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("syncforge stopped")
	return nil
}

// prChecker builds a GitHub client from the stored token per check, so a
// token change applies without a restart.
type prChecker struct {
	db     *storage.DB
	logger *slog.Logger
}

func (p prChecker) PullRequestState(ctx context.Context, prURL string) (orchestrator.PullRequestState, error) {
	settings, err := p.db.GetSettings(ctx)
	if err != nil {
		return orchestrator.PullRequestState{}, err
	}
	// An empty token still works for public repositories.
	return gh.New(settings.GitHubToken).PullRequestState(ctx, prURL)
}
