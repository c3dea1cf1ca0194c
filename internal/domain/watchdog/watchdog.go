// Package watchdog implements the quota watchdog background task:
// a periodic scan of the profile pool that declares
// QUOTA_EXCEEDED when every profile is simultaneously in global cooldown,
// and clears that state as soon as one profile recovers. A plain
// Start/Stop-guarded ticker loop around a pool-scanning callback.
package watchdog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PoolScanner is the callback invoked on every tick; it reports whether
// every profile is currently in global cooldown.
type PoolScanner func(now time.Time) (allExhausted bool)

// OnStateChange is notified whenever the aggregate exhaustion state flips.
type OnStateChange func(exhausted bool)

// Watchdog runs PoolScanner on a fixed interval and debounces state-change
// notifications so callers see one event per transition, not one per tick.
type Watchdog struct {
	mu sync.Mutex
	interval time.Duration
	scan PoolScanner
	onChange OnStateChange
	logger *zap.Logger

	running bool
	cancel context.CancelFunc

	lastExhausted bool
}

// New builds a watchdog. interval defaults to 30s if zero.
func New(interval time.Duration, scan PoolScanner, onChange OnStateChange, logger *zap.Logger) *Watchdog {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watchdog{
		interval: interval,
		scan: scan,
		onChange: onChange,
		logger: logger.With(zap.String("component", "quota-watchdog")),
	}
}

// Start begins the scan loop. A no-op if already running.
func (w *Watchdog) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.logger.Info("quota watchdog started", zap.Duration("interval", w.interval))
	go w.loop(runCtx)
}

// Stop halts the scan loop.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		w.cancel()
		w.running = false
		w.logger.Info("quota watchdog stopped")
	}
}

func (w *Watchdog) loop(ctx context.Context) {
	w.tick()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Watchdog) tick() {
	exhausted := w.scan(time.Now())

	w.mu.Lock()
	changed := exhausted != w.lastExhausted
	w.lastExhausted = exhausted
	w.mu.Unlock()

	if changed {
		w.logger.Info("quota exhaustion state changed", zap.Bool("all_profiles_exhausted", exhausted))
		if w.onChange != nil {
			w.onChange(exhausted)
		}
	}
}
