// Package clock provides the monotonic-time source and cancellation token
// primitives shared by every subsystem of the engine.
package clock

import (
	"context"
	"time"
)

// Clock abstracts time so tests can inject a fake. The real implementation
// wraps the standard library. Not every package goes through it: the HTTP
// layer, for one, calls time.Now directly.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	After(d time.Duration) <-chan time.Time
	NewTimer(d time.Duration) Timer
}

// Timer mirrors time.Timer with an interface so fakes can control firing.
type Timer interface {
	C() <-chan time.Time
	Reset(d time.Duration) bool
	Stop() bool
}

type realClock struct{}

// Real is the production Clock backed by the standard library.
var Real Clock = realClock{}

func (realClock) Now() time.Time                  { return time.Now() }
func (realClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (realClock) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

type realTimer struct{ t *time.Timer }

func (r *realTimer) C() <-chan time.Time      { return r.t.C }
func (r *realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }
func (r *realTimer) Stop() bool                 { return r.t.Stop() }

// CancelToken is a one-shot cancellation signal carried in a RequestContext.
// It wraps context.Context so suspension points can select on {work, cancel}
// using the standard library's cancellation machinery, but exposes the
// narrow capability surface the engine actually needs.
type CancelToken struct {
	ctx    context.Context
	cancel context.CancelFunc
	reason *string
}

// NewCancelToken creates a token tied to a background context.
func NewCancelToken() *CancelToken {
	ctx, cancel := context.WithCancel(context.Background())
	return &CancelToken{ctx: ctx, cancel: cancel}
}

// FromContext wraps an existing context (e.g. the HTTP request's context,
// which fires when the client disconnects) as a CancelToken.
func FromContext(ctx context.Context) *CancelToken {
	ctx, cancel := context.WithCancel(ctx)
	return &CancelToken{ctx: ctx, cancel: cancel}
}

// Fire cancels the token with a reason (e.g. "client_closed_request").
// Idempotent — firing an already-fired token is a no-op.
func (c *CancelToken) Fire(reason string) {
	if c.reason == nil {
		c.reason = &reason
	}
	c.cancel()
}

// Fired reports whether the token has already fired.
func (c *CancelToken) Fired() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// Reason returns the reason passed to Fire, if any.
func (c *CancelToken) Reason() string {
	if c.reason == nil {
		return ""
	}
	return *c.reason
}

// Done returns the channel suspension points select on.
func (c *CancelToken) Done() <-chan struct{} { return c.ctx.Done() }

// Context returns the underlying context, for passing to I/O calls that
// accept one directly (HTTP requests, browser facade calls).
func (c *CancelToken) Context() context.Context { return c.ctx }
