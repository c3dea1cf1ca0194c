// Package streaming implements the per-request streaming lifecycle
// controller: a small state machine guarding the TTFB/silence timeouts and
// cancellation.
package streaming

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Phase is one state of the streaming lifecycle.
type Phase string

const (
	PhaseArmed Phase = "armed" // submitted, waiting for first byte
	PhaseStreaming Phase = "streaming" // receiving deltas
	PhaseSilenceCheck Phase = "silence_check" // no deltas for a while; verifying still alive
	PhaseCompleted Phase = "completed"
	PhaseTTFBTimeout Phase = "ttfb_timeout"
	PhaseStaleTimeout Phase = "stale_timeout"
	PhaseCancelled Phase = "cancelled"
	PhaseError Phase = "error"
)

var validTransitions = map[Phase]map[Phase]bool{
	PhaseArmed: {
		PhaseStreaming: true,
		PhaseTTFBTimeout: true,
		PhaseCancelled: true,
		PhaseError: true,
	},
	PhaseStreaming: {
		PhaseSilenceCheck: true,
		PhaseCompleted: true,
		PhaseCancelled: true,
		PhaseError: true,
	},
	PhaseSilenceCheck: {
		PhaseStreaming: true, // more deltas arrived, silence was transient
		PhaseCompleted: true,
		PhaseStaleTimeout: true,
		PhaseCancelled: true,
		PhaseError: true,
	},
	// terminal
	PhaseCompleted: {},
	PhaseTTFBTimeout: {},
	PhaseStaleTimeout: {},
	PhaseCancelled: {},
	PhaseError: {},
}

// Snapshot is a point-in-time read of the controller.
type Snapshot struct {
	Phase Phase
	DeltasSeen int
	LastDeltaAt time.Time
	Elapsed time.Duration
	SinceLastDelta time.Duration
}

// Controller drives one request's streaming lifecycle. Not reused across
// requests — one instance per RequestContext.
type Controller struct {
	mu sync.Mutex

	phase Phase
	deltasSeen int
	startedAt time.Time
	lastDeltaAt time.Time

	logger *zap.Logger

	listeners []func(from, to Phase, snap Snapshot)
}

// NewController creates a controller in PhaseArmed.
func NewController(logger *zap.Logger) *Controller {
	now := time.Now()
	return &Controller{
		phase: PhaseArmed,
		startedAt: now,
		logger: logger,
	}
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Snapshot returns a full copy of the controller's state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	now := time.Now()
	var sinceLast time.Duration
	if !c.lastDeltaAt.IsZero() {
		sinceLast = now.Sub(c.lastDeltaAt)
	}
	return Snapshot{
		Phase: c.phase,
		DeltasSeen: c.deltasSeen,
		LastDeltaAt: c.lastDeltaAt,
		Elapsed: now.Sub(c.startedAt),
		SinceLastDelta: sinceLast,
	}
}

// Transition attempts to move to a new phase, rejecting anything not in
// validTransitions. A rejected transition is a programmer error, not a
// recoverable request-level condition — callers should treat it as such.
func (c *Controller) Transition(to Phase) error {
	c.mu.Lock()
	from := c.phase
	allowed, ok := validTransitions[from]
	if !ok || !allowed[to] {
		c.mu.Unlock()
		return fmt.Errorf("streaming: invalid phase transition %s -> %s", from, to)
	}
	c.phase = to
	snap := c.snapshotLocked()
	listeners := make([]func(Phase, Phase, Snapshot), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Debug("streaming phase transition",
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Int("deltas_seen", snap.DeltasSeen),
		)
	}
	for _, fn := range listeners {
		fn(from, to, snap)
	}
	return nil
}

// OnTransition registers a listener invoked after every successful
// transition, outside the controller's lock.
func (c *Controller) OnTransition(fn func(from, to Phase, snap Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// RecordDelta marks that a content/reasoning/tool-call chunk arrived,
// updating the silence clock. The caller is responsible for the
// Armed->Streaming or SilenceCheck->Streaming transition.
func (c *Controller) RecordDelta() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deltasSeen++
	c.lastDeltaAt = time.Now()
}

// IsTerminal reports whether the controller has reached a terminal phase.
func (c *Controller) IsTerminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.phase {
	case PhaseCompleted, PhaseTTFBTimeout, PhaseStaleTimeout, PhaseCancelled, PhaseError:
		return true
	}
	return false
}
