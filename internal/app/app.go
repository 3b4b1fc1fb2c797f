package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aimorme/datewise-backend/internal/clients/openai"
	"github.com/aimorme/datewise-backend/internal/clients/qloo"
	internalhttp "github.com/aimorme/datewise-backend/internal/http"
	httpH "github.com/aimorme/datewise-backend/internal/http/handlers"
	"github.com/aimorme/datewise-backend/internal/jobs/gateway"
	"github.com/aimorme/datewise-backend/internal/jobs/orchestrator"
	"github.com/aimorme/datewise-backend/internal/observability"
	"github.com/aimorme/datewise-backend/internal/pipeline"
	"github.com/aimorme/datewise-backend/internal/pkg/logger"
	"github.com/aimorme/datewise-backend/internal/store"
)

type App struct {
	Log     *logger.Logger
	Cfg     Config
	Store   store.Store
	Gateway *gateway.Service
	Server  *internalhttp.Server

	ai            openai.Client
	taste         qloo.Client
	cancel        context.CancelFunc
	traceShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	traceShutdown := observability.InitTracing(context.Background(), log, observability.Config{
		ServiceName: observability.TracerName,
		Environment: logMode,
		Version:     os.Getenv("SERVICE_VERSION"),
	})

	// Redis is the normal backend; fall back to the in-process store so the
	// service still boots when redis is down. Documents then die with the
	// process.
	st, err := store.NewRedis(log)
	if err != nil {
		log.Warn("Redis unavailable, falling back to in-process store", "error", err.Error())
		st = store.NewMemory(log)
	}

	aiClient, err := openai.NewClient(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init ai client: %w", err)
	}
	tasteClient, err := qloo.NewClient(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init taste graph client: %w", err)
	}

	pipe := pipeline.New(aiClient, tasteClient, cfg.Pipeline, log)
	orch := orchestrator.New(st, pipe, cfg.Jobs, log)
	dispatcher := orchestrator.NewDispatcher(orch, log)
	gw := gateway.NewService(st, dispatcher, cfg.Gateway, log)

	server := internalhttp.NewServer(internalhttp.RouterConfig{
		DatePlanHandler: httpH.NewDatePlanHandler(gw),
		HealthHandler:   httpH.NewHealthHandler(st, true, true),
	})

	return &App{
		Log:           log,
		Cfg:           cfg,
		Store:         st,
		Gateway:       gw,
		Server:        server,
		ai:            aiClient,
		taste:         tasteClient,
		traceShutdown: traceShutdown,
	}, nil
}

// Start runs boot-time background work: API key validation and a TTL
// backfill over leftover progress documents. Neither blocks serving.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go func() {
		vctx, vcancel := context.WithTimeout(ctx, 15*time.Second)
		defer vcancel()
		if err := a.ai.ValidateKey(vctx); err != nil {
			a.Log.Warn("AI key validation failed", "error", err.Error())
		}
		if err := a.taste.ValidateKey(vctx); err != nil {
			a.Log.Warn("Taste graph key validation failed", "error", err.Error())
		}
		if _, err := a.Gateway.CleanupOrphans(vctx); err != nil {
			a.Log.Warn("Orphan cleanup failed", "error", err.Error())
		}
	}()
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Run(":" + a.Cfg.Port)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.traceShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.traceShutdown(ctx); err != nil && a.Log != nil {
			a.Log.Warn("Trace shutdown failed", "error", err.Error())
		}
		cancel()
		a.traceShutdown = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
