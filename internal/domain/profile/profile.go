// Package profile models the authentication-profile pool: credential tiers,
// the per-profile cooldown ledger, and the smart-efficiency rotation
// algorithm. This is the failure-recovery backbone the queue worker leans on.
package profile

import (
	"sort"
	"time"
)

// Tier is the eligibility pool a profile belongs to.
type Tier string

const (
	TierPrimary Tier = "primary"
	TierActive Tier = "active"
	TierEmergency Tier = "emergency"
)

// GlobalScope is the cooldown map key covering every model.
const GlobalScope = "global"

// CooldownReason enumerates why a profile was put on cooldown.
type CooldownReason string

const (
	ReasonRateLimit CooldownReason = "rate_limit" // sets GlobalScope cooldown
	ReasonQuotaExceeded CooldownReason = "quota_exceeded" // sets per-model cooldown
	ReasonCanaryFailed CooldownReason = "canary_failed" // sets GlobalScope cooldown, shorter
	ReasonManual CooldownReason = "manual"
)

// Profile is one credential handle plus its persisted state.
type Profile struct {
	ID string // opaque path-like handle
	Tier Tier
	Path string // filesystem location of the opaque blob

	TokenUsageTotal int64
	Cooldowns map[string]time.Time // scope ("global" or model id) → deadline
}

// EligibleFor reports whether p may be used for model M right now: neither
// its global cooldown nor its per-model cooldown for M may be in the future.
func (p *Profile) EligibleFor(model string, now time.Time) bool {
	if deadline, ok := p.Cooldowns[GlobalScope]; ok && deadline.After(now) {
		return false
	}
	if deadline, ok := p.Cooldowns[model]; ok && deadline.After(now) {
		return false
	}
	return true
}

// ActiveCooldownCount returns how many *other* scopes besides `exclude` are
// currently on cooldown — the "partially spent" signal used by rotation's
// efficiency score.
func (p *Profile) ActiveCooldownCount(exclude string, now time.Time) int {
	n := 0
	for scope, deadline := range p.Cooldowns {
		if scope == exclude {
			continue
		}
		if deadline.After(now) {
			n++
		}
	}
	return n
}

// SetCooldown records a cooldown deadline for the given reason.
func (p *Profile) SetCooldown(reason CooldownReason, model string, now time.Time, ledger CooldownDurations) {
	if p.Cooldowns == nil {
		p.Cooldowns = make(map[string]time.Time)
	}
	switch reason {
	case ReasonRateLimit:
		p.Cooldowns[GlobalScope] = now.Add(ledger.RateLimit)
	case ReasonQuotaExceeded:
		p.Cooldowns[model] = now.Add(ledger.QuotaExceeded)
	case ReasonCanaryFailed:
		p.Cooldowns[GlobalScope] = now.Add(ledger.Canary)
	}
}

// CooldownDurations is the config-supplied durations for each reason
// (rate_limit_cooldown_s, quota_exceeded_cooldown_s, canary_cooldown_s).
type CooldownDurations struct {
	RateLimit time.Duration
	QuotaExceeded time.Duration
	Canary time.Duration
}

// Pool holds every known profile, keyed by ID, and implements the
// smart-efficiency rotation order.
type Pool struct {
	profiles map[string]*Profile
	order []string // insertion order, for deterministic iteration
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{profiles: make(map[string]*Profile)}
}

// Add registers a profile.
func (pl *Pool) Add(p *Profile) {
	if p.Cooldowns == nil {
		p.Cooldowns = make(map[string]time.Time)
	}
	if _, exists := pl.profiles[p.ID]; !exists {
		pl.order = append(pl.order, p.ID)
	}
	pl.profiles[p.ID] = p
}

// Get returns the profile by id.
func (pl *Pool) Get(id string) (*Profile, bool) {
	p, ok := pl.profiles[id]
	return p, ok
}

// All returns every profile in insertion order.
func (pl *Pool) All() []*Profile {
	out := make([]*Profile, 0, len(pl.order))
	for _, id := range pl.order {
		out = append(out, pl.profiles[id])
	}
	return out
}

// AllInGlobalCooldown reports whether every profile currently has a live
// global cooldown — the quota watchdog's QUOTA_EXCEEDED trigger.
func (pl *Pool) AllInGlobalCooldown(now time.Time) bool {
	if len(pl.profiles) == 0 {
		return false
	}
	for _, p := range pl.profiles {
		if deadline, ok := p.Cooldowns[GlobalScope]; !ok || !deadline.After(now) {
			return false
		}
	}
	return true
}

// RandSource is injected so the tie-break step is
// deterministic under test while uniformly random in production.
type RandSource func(n int) int

// Candidates returns profiles eligible for model, ordered best-first by
// smart-efficiency selection:
// 1. higher ActiveCooldownCount (more "partially spent") sorts first
// 2. lower TokenUsageTotal sorts first (wear-leveling)
// 3. random tie-break among remaining ties
func (pl *Pool) Candidates(model string, now time.Time, rnd RandSource) []*Profile {
	var eligible []*Profile
	for _, id := range pl.order {
		p := pl.profiles[id]
		if p.EligibleFor(model, now) {
			eligible = append(eligible, p)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		ai := a.ActiveCooldownCount(model, now)
		bi := b.ActiveCooldownCount(model, now)
		if ai != bi {
			return ai > bi // negative efficiency score: more cooldowns = better
		}
		if a.TokenUsageTotal != b.TokenUsageTotal {
			return a.TokenUsageTotal < b.TokenUsageTotal
		}
		return false // tie — stable sort preserves insertion order until shuffled below
	})

	shuffleTiesInPlace(eligible, model, now, rnd)
	return eligible
}

// shuffleTiesInPlace randomizes the order within runs of profiles that
// compare fully equal on efficiency score and usage count, so concurrent
// rotations across instances don't hammer the same "first eligible" profile.
func shuffleTiesInPlace(profiles []*Profile, model string, now time.Time, rnd RandSource) {
	if rnd == nil || len(profiles) < 2 {
		return
	}
	i := 0
	for i < len(profiles) {
		j := i + 1
		for j < len(profiles) &&
			profiles[j].ActiveCooldownCount(model, now) == profiles[i].ActiveCooldownCount(model, now) &&
			profiles[j].TokenUsageTotal == profiles[i].TokenUsageTotal {
			j++
		}
		if j-i > 1 {
			run := profiles[i:j]
			for k := len(run) - 1; k > 0; k-- {
				m := rnd(k + 1)
				run[k], run[m] = run[m], run[k]
			}
		}
		i = j
	}
}
