// Package server exposes the operational HTTP API: health, readiness,
// status, metrics, and monitor admin actions. It injects correlation IDs
// into request contexts for consistent logging.
package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okatz/steamwatch/monitor"
	"github.com/okatz/steamwatch/telemetry"
)

// NewMux returns the HTTP handler with all routes.
func NewMux(db *sql.DB, sched *monitor.Scheduler, adminToken string) http.Handler {
	handlers := &Handlers{db: db, sched: sched}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", handlers.HandleHealthz)
	mux.HandleFunc("/readyz", handlers.HandleReadyz)
	mux.HandleFunc("/status", handlers.HandleStatus)
	mux.HandleFunc("/admin/monitor", adminAuth(http.HandlerFunc(handlers.HandleAdminMonitor), adminToken))

	// Correlation ID injector: reuse the header if provided, else generate.
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)
		mux.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminAuth guards admin endpoints with a bearer token. An empty configured
// token disables the endpoints entirely rather than leaving them open.
func adminAuth(next http.Handler, token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token == "" {
			http.Error(w, "admin endpoints disabled (ADMIN_TOKEN not set)", http.StatusForbidden)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	}
}

// Start runs the HTTP server until the context is canceled.
func Start(ctx context.Context, db *sql.DB, sched *monitor.Scheduler, addr, adminToken string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(db, sched, adminToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown", slog.Any("err", err))
		}
	}()
	slog.Info("http server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
