package queue

import (
	"sync"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
)

// Registry tracks every request currently queued or in flight, keyed by
// ReqID, so the cancel endpoint can find the right cancellation token
// without the queue itself needing a lookup-by-ID capability.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*entity.RequestContext
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*entity.RequestContext)}
}

// Register tracks req until Unregister is called. Callers should register
// before Enqueue and unregister once ResultSink is drained to completion.
func (r *Registry) Register(req *entity.RequestContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[req.ReqID] = req
}

// Unregister drops req from tracking.
func (r *Registry) Unregister(reqID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, reqID)
}

// Cancel fires the cancellation token for reqID, if it is still tracked.
// Reports whether a matching request was found.
func (r *Registry) Cancel(reqID string) bool {
	r.mu.RLock()
	req, ok := r.byID[reqID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	req.ClientCancel.Fire("client_closed_request")
	return true
}

// Len returns how many requests are currently tracked (queued + in flight).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
