package queue

import "sync/atomic"

// Mode is the global deployment mode the worker checks before every
// dequeue. Stored as an int32 behind atomic ops so the
// quota watchdog (a separate task) can flip it without taking the
// processing lock.
type Mode int32

const (
	ModeNormal Mode = iota
	ModeQuotaExceeded
	ModeNeedsRotation
	ModeEmergency // every eligible profile failed its canary — rotation exhausted
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "NORMAL"
	case ModeQuotaExceeded:
		return "QUOTA_EXCEEDED"
	case ModeNeedsRotation:
		return "NEEDS_ROTATION"
	case ModeEmergency:
		return "EMERGENCY"
	default:
		return "UNKNOWN"
	}
}

// ModeHolder is a lock-free box around the current Mode.
type ModeHolder struct {
	v atomic.Int32
}

func (h *ModeHolder) Load() Mode { return Mode(h.v.Load()) }
func (h *ModeHolder) Store(m Mode) { h.v.Store(int32(m)) }
func (h *ModeHolder) CAS(old, new_ Mode) bool {
	return h.v.CompareAndSwap(int32(old), int32(new_))
}
