package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/okatz/steamwatch/db"
	"github.com/okatz/steamwatch/monitor"
	"github.com/okatz/steamwatch/telemetry"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db    *sql.DB
	sched *monitor.Scheduler
}

// HandleHealthz reports process liveness.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleReadyz reports readiness: the database must answer a ping.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "db": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// statusResponse is the /status payload.
type statusResponse struct {
	SchedulerRunning bool               `json:"scheduler_running"`
	LastCycle        monitor.CycleStats `json:"last_cycle"`
	Heartbeat        string             `json:"heartbeat,omitempty"`
	LastError        string             `json:"last_error,omitempty"`
}

// HandleStatus returns scheduler state, last-cycle stats, and the job
// heartbeat recorded in kv.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		SchedulerRunning: h.sched.Running(),
		LastCycle:        h.sched.Monitor().LastCycle(),
	}
	// kv reads are best-effort; /status must answer even with the DB down.
	if hb, err := db.GetKV(r.Context(), h.db, "job_watch_last"); err == nil {
		resp.Heartbeat = hb
	}
	if lastErr, err := db.GetKV(r.Context(), h.db, "watch:last_error"); err == nil {
		resp.LastError = lastErr
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// HandleAdminMonitor controls the scheduler lifecycle:
// POST /admin/monitor?action=start|stop|restart|trigger
func (h *Handlers) HandleAdminMonitor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	logger := telemetry.LoggerWithCorr(r.Context())
	action := r.URL.Query().Get("action")
	switch action {
	case "start":
		h.sched.Start(context.WithoutCancel(r.Context()))
	case "stop":
		h.sched.Stop()
	case "restart":
		h.sched.Restart(context.WithoutCancel(r.Context()))
	case "trigger":
		h.sched.TriggerNow(r.Context())
	default:
		http.Error(w, "unknown action (want start|stop|restart|trigger)", http.StatusBadRequest)
		return
	}
	logger.Info("monitor admin action", slog.String("action", action))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"action": action, "running": h.sched.Running()})
}
