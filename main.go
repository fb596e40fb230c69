// Command steamwatch is the entrypoint for the Steam status watcher.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Builds the fetch/detect/notify pipeline and starts the watch scheduler.
//   - Exposes an ops HTTP server with /healthz, /readyz, /status, /metrics,
//     and token-guarded /admin/monitor lifecycle actions.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/joho/godotenv"
	"github.com/okatz/steamwatch/cache"
	"github.com/okatz/steamwatch/config"
	"github.com/okatz/steamwatch/db"
	"github.com/okatz/steamwatch/monitor"
	"github.com/okatz/steamwatch/notify"
	"github.com/okatz/steamwatch/server"
	"github.com/okatz/steamwatch/steamapi"
	"github.com/okatz/steamwatch/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateAPIMode(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("steamwatch", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect(cfg.DB.DSN)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx, database); err != nil {
		cancelMigrate()
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}
	cancelMigrate()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metadata cache
	var metaCache cache.Cache
	switch cfg.Cache.Type {
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			slog.Error("redis cache init failed", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() { _ = rc.Close() }()
		metaCache = rc
	default:
		metaCache = cache.NewMemoryCache()
	}

	// Steam client with rotating key pool
	client := &steamapi.Client{
		Rotator:    steamapi.NewKeyRotator(cfg.Steam.APIKeys),
		HTTPClient: &http.Client{Timeout: cfg.Steam.HTTPTimeout},
	}
	statusSrc := &steamapi.StatusSource{Client: client, Mode: cfg.Steam.FetchMode}
	invSrc := &steamapi.InventorySource{Client: client}
	metaSrc := &monitor.CachedMetadataSource{
		Source: &steamapi.MetadataSource{Client: client},
		Cache:  metaCache,
		TTL:    cfg.Cache.TTL,
	}

	// Notification sink: OneBot websocket gateway, or log-only when unset.
	var sender monitor.Sender
	if cfg.OneBot.WSURL != "" {
		ob := notify.NewOneBotSender(cfg.OneBot.WSURL, cfg.OneBot.AccessToken, cfg.OneBot.SendTimeout)
		defer func() { _ = ob.Close() }()
		sender = ob
	} else {
		slog.Warn("ONEBOT_WS_URL not set; notifications will be logged only")
		sender = notify.LogSender{}
	}

	store := &db.Store{DB: database}
	mon := monitor.New(statusSrc, invSrc, metaSrc, store, store, nil, sender, monitor.Options{
		BatchSize:         cfg.Monitor.BatchSize,
		InventoryInterval: cfg.Monitor.InventoryInterval,
	})
	mon.AfterCycle = func(cctx context.Context, stats monitor.CycleStats) {
		if err := db.RecordHeartbeat(cctx, database, "watch"); err != nil {
			slog.Warn("heartbeat write failed", slog.Any("err", err), slog.String("component", "watch"))
		}
		if stats.Err != "" {
			_ = db.SetKV(cctx, database, "watch:last_error", stats.Err)
		}
	}

	sched := monitor.NewScheduler(mon, cfg.Monitor.StatusInterval, cfg.Monitor.RestartDelay)
	sched.Start(ctx)
	defer sched.Stop()

	// Ops HTTP server (blocks until shutdown)
	if err := server.Start(ctx, database, sched, cfg.Server.Addr, cfg.Server.AdminToken); err != nil {
		slog.Error("http server error", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
