package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okatz/steamwatch/telemetry"
)

// Scheduler drives the Monitor on a fixed interval with a start/stop/restart
// lifecycle. It owns its timer; nothing here lives in package state.
type Scheduler struct {
	monitor  *Monitor
	interval time.Duration
	// settle is the pause between stop and start on Restart, letting
	// in-flight work drain.
	settle time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	inFlight atomic.Bool
}

// NewScheduler wraps a Monitor with interval-driven execution.
func NewScheduler(m *Monitor, interval, settle time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if settle <= 0 {
		settle = 2 * time.Second
	}
	return &Scheduler{monitor: m, interval: interval, settle: settle}
}

// Running reports the lifecycle state.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Monitor returns the wrapped pipeline (for the ops surface).
func (s *Scheduler) Monitor() *Monitor { return s.monitor }

// Start begins the periodic loop. The first cycle runs immediately rather
// than one interval after boot. Calling Start while running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		slog.Info("watch scheduler already running; start ignored", slog.String("component", "watch"))
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	done := s.done
	s.mu.Unlock()

	telemetry.UpdateSchedulerGauge(true)
	slog.Info("watch scheduler started", slog.Duration("interval", s.interval), slog.String("component", "watch"))
	go s.loop(loopCtx, done)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	s.tick(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("watch scheduler stopped", slog.String("component", "watch"))
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one cycle unless the previous one is still in flight, in which
// case the tick is skipped: the interval should be large relative to cycle
// duration, and overlapping cycles would race on the snapshot stores.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		telemetry.CyclesSkipped.Inc()
		slog.Warn("previous cycle still running; tick skipped", slog.String("component", "watch"))
		return
	}
	defer s.inFlight.Store(false)
	if err := s.monitor.RunCycle(ctx); err != nil {
		slog.Error("watch cycle aborted", slog.Any("err", err), slog.String("component", "watch"))
	}
}

// Stop cancels the next scheduled tick and waits for any in-flight cycle to
// wind down before returning. Cancellation is cooperative: in-flight network
// calls observe the canceled context and return early.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()
	<-done
	telemetry.UpdateSchedulerGauge(false)
}

// Restart stops the loop, waits a short settle delay, and starts it again.
func (s *Scheduler) Restart(ctx context.Context) {
	s.Stop()
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.settle):
	}
	s.Start(ctx)
}

// TriggerNow runs one cycle out of band, honoring the in-flight guard.
func (s *Scheduler) TriggerNow(ctx context.Context) {
	s.tick(ctx)
}
