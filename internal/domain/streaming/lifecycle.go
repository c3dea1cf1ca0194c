package streaming

import (
	"context"
	"time"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/gateway/pkg/clock"
	"go.uber.org/zap"
)

// Timeouts holds the time-to-first-byte deadline and the inter-delta
// silence window before the controller starts polling the acquisition
// layer to check whether generation actually stalled.
type Timeouts struct {
	TTFB           time.Duration
	Silence        time.Duration
	SilenceCheck   time.Duration // wait between consecutive silence-check polls; a poll itself is bounded only by ctx
	MaxSilenceTicks int          // how many consecutive silence checks before StaleTimeout
}

// Lifecycle drives a Controller against a wall clock, translating timer
// expiry into phase transitions and terminal EngineErrors. One per request,
// run in its own goroutine by the queue worker.
type Lifecycle struct {
	ctl     *Controller
	clock   clock.Clock
	timeouts Timeouts
	logger  *zap.Logger
}

// NewLifecycle builds a lifecycle runner around a fresh Armed controller.
func NewLifecycle(clk clock.Clock, timeouts Timeouts, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		ctl:      NewController(logger),
		clock:    clk,
		timeouts: timeouts,
		logger:   logger,
	}
}

// Controller exposes the underlying state machine for callers that need to
// inspect phase or register listeners (e.g. the SSE writer).
func (l *Lifecycle) Controller() *Controller { return l.ctl }

// Run blocks until the lifecycle reaches a terminal phase, driven by deltas
// arriving on deltas and cancellation via cancel. silenceProbe is called
// each time the silence window elapses without a delta; it should perform
// a best-effort check of whether the underlying session is still generating
// (Layer 3's PollResponseState) and return true if it is.
func (l *Lifecycle) Run(ctx context.Context, cancel *clock.CancelToken, deltas <-chan struct{}, silenceProbe func(context.Context) (stillGenerating bool, err error)) *entity.EngineError {
	ttfbTimer := l.clock.NewTimer(l.timeouts.TTFB)
	defer ttfbTimer.Stop()

	for {
		switch l.ctl.Phase() {
		case PhaseArmed:
			select {
			case <-ctx.Done():
				l.ctl.Transition(PhaseCancelled)
				return nil
			case <-cancel.Done():
				l.ctl.Transition(PhaseCancelled)
				return nil
			case <-ttfbTimer.C():
				l.ctl.Transition(PhaseTTFBTimeout)
				return &entity.EngineError{Code: "gateway_timeout", Message: "no response before time-to-first-byte deadline", Type: "timeout_error"}
			case <-deltas:
				l.ctl.RecordDelta()
				l.ctl.Transition(PhaseStreaming)
			}

		case PhaseStreaming:
			silenceTimer := l.clock.NewTimer(l.timeouts.Silence)
			select {
			case <-ctx.Done():
				silenceTimer.Stop()
				l.ctl.Transition(PhaseCancelled)
				return nil
			case <-cancel.Done():
				silenceTimer.Stop()
				l.ctl.Transition(PhaseCancelled)
				return nil
			case <-silenceTimer.C():
				l.ctl.Transition(PhaseSilenceCheck)
			case <-deltas:
				silenceTimer.Stop()
				l.ctl.RecordDelta()
				// stays in Streaming
			}

		case PhaseSilenceCheck:
			ticks := 0
			resolved := false
			for !resolved {
				stillGenerating, err := silenceProbe(ctx)
				if err != nil {
					l.ctl.Transition(PhaseError)
					return &entity.EngineError{Code: "layer_failed", Message: err.Error(), Type: "server_error"}
				}
				if !stillGenerating {
					l.ctl.Transition(PhaseCompleted)
					return nil
				}
				ticks++
				if ticks >= l.timeouts.MaxSilenceTicks {
					l.ctl.Transition(PhaseStaleTimeout)
					return &entity.EngineError{Code: "gateway_timeout", Message: "response stalled past the silence-check budget", Type: "timeout_error"}
				}
				checkTimer := l.clock.NewTimer(l.timeouts.SilenceCheck)
				select {
				case <-ctx.Done():
					checkTimer.Stop()
					l.ctl.Transition(PhaseCancelled)
					return nil
				case <-cancel.Done():
					checkTimer.Stop()
					l.ctl.Transition(PhaseCancelled)
					return nil
				case <-deltas:
					checkTimer.Stop()
					l.ctl.RecordDelta()
					l.ctl.Transition(PhaseStreaming)
					resolved = true
				case <-checkTimer.C():
					// loop again, still in SilenceCheck
				}
			}

		default:
			return nil
		}
	}
}
