package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/studyquiz-backend/internal/data/db"
	apphttp "github.com/yungbote/studyquiz-backend/internal/http"
	"github.com/yungbote/studyquiz-backend/internal/observability"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Config   Config
	Metrics  *observability.Metrics
	DB       *db.Service
	Clients  Clients
	Services Services
	Server   *apphttp.Server

	cancel       context.CancelFunc
	otelShutdown func(context.Context) error
	closeOnce    sync.Once
}

func New() (*App, error) {
	log, err := logger.New(envLogMode())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg := LoadConfig(log)

	ctx, cancel := context.WithCancel(context.Background())
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfigFromEnv(cfg.ServiceName, cfg.Env, cfg.Version))

	var metrics *observability.Metrics
	if observability.Enabled() {
		metrics = observability.Init(log)
		metrics.StartServer(ctx, log, cfg.MetricsAddr)
	}

	dbService, err := db.Open(db.Config{
		Driver:      cfg.DBDriver,
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
	}, log)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		cancel()
		_ = dbService.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	metrics.StartDBCollector(ctx, log, dbService.DB())

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		cancel()
		_ = dbService.Close()
		return nil, err
	}
	if rc := clients.redisClient(); rc != nil {
		metrics.StartRedisCollector(ctx, log, rc)
	}

	services, err := wireServices(ctx, log, cfg, dbService, clients)
	if err != nil {
		cancel()
		clients.Close()
		_ = dbService.Close()
		return nil, err
	}

	handlers := wireHandlers(log, cfg, dbService, clients, services)
	engine := apphttp.NewRouter(apphttp.RouterConfig{
		Log:             log,
		ServiceName:     cfg.ServiceName,
		AllowedOrigins:  cfg.AllowedOrigins,
		Metrics:         metrics,
		HealthHandler:   handlers.Health,
		RealtimeHandler: handlers.Realtime,
		UploadHandler:   handlers.Upload,
		MaterialHandler: handlers.Material,
		SessionHandler:  handlers.Session,
	})

	return &App{
		Log:          log,
		Config:       cfg,
		Metrics:      metrics,
		DB:           dbService,
		Clients:      clients,
		Services:     services,
		Server:       apphttp.NewServer(log, cfg.HTTPAddr, engine, cfg.ShutdownTimeout),
		cancel:       cancel,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Run(ctx)
}

// Close releases everything New acquired. It is safe to call more than once.
func (a *App) Close() {
	if a == nil {
		return
	}
	a.closeOnce.Do(a.close)
}

func (a *App) close() {
	a.Services.Close()
	a.Clients.Close()
	if a.cancel != nil {
		a.cancel()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn("database close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}
