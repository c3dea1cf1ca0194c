// Package persistence implements the durable side of the engine: the
// cooldown/usage ledgers backing internal/domain/profile (write-temp,
// fsync, rename, so a crash mid-write never leaves a half-written ledger
// file) and a gorm-backed append-only audit log of rotation/quota-watchdog
// transitions.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/profile"
)

// LedgerStore persists two maps: {profile_id → {scope → deadline}} (the
// per-profile cooldown ledger) and {profile_id → token_total} (cumulative
// usage for wear-leveling).
// Load and Persist are serialized by a mutex. The store keeps no in-memory
// copy: the live state is the Pool, and the on-disk files are the source of
// truth across process restarts.
type LedgerStore struct {
	mu sync.Mutex

	cooldownPath string
	usagePath    string
}

// cooldownFile / usageFile are the on-disk JSON shapes.
type cooldownFile map[string]map[string]int64 // profile_id -> scope -> unix_ms
type usageFile map[string]int64               // profile_id -> token_total

// NewLedgerStore points at cooldown_status.json and profile_usage.json
// directly under root.
func NewLedgerStore(root string) *LedgerStore {
	return &LedgerStore{
		cooldownPath: filepath.Join(root, "cooldown_status.json"),
		usagePath:    filepath.Join(root, "profile_usage.json"),
	}
}

// Load reads both ledger files (missing files are treated as empty) and
// applies them onto the given pool.
func (s *LedgerStore) Load(pool *profile.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cd cooldownFile
	if err := readJSON(s.cooldownPath, &cd); err != nil {
		return fmt.Errorf("load cooldown ledger: %w", err)
	}
	var usage usageFile
	if err := readJSON(s.usagePath, &usage); err != nil {
		return fmt.Errorf("load usage ledger: %w", err)
	}

	for _, p := range pool.All() {
		if scopes, ok := cd[p.ID]; ok {
			p.Cooldowns = make(map[string]time.Time, len(scopes))
			for scope, ms := range scopes {
				p.Cooldowns[scope] = time.UnixMilli(ms)
			}
		}
		if total, ok := usage[p.ID]; ok {
			p.TokenUsageTotal = total
		}
	}
	return nil
}

// Persist writes both ledgers atomically: write-temp, fsync, rename.
func (s *LedgerStore) Persist(pool *profile.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd := make(cooldownFile)
	usage := make(usageFile)
	for _, p := range pool.All() {
		scopes := make(map[string]int64, len(p.Cooldowns))
		for scope, deadline := range p.Cooldowns {
			scopes[scope] = deadline.UnixMilli()
		}
		cd[p.ID] = scopes
		usage[p.ID] = p.TokenUsageTotal
	}

	if err := writeJSONAtomic(s.cooldownPath, cd); err != nil {
		return fmt.Errorf("persist cooldown ledger: %w", err)
	}
	if err := writeJSONAtomic(s.usagePath, usage); err != nil {
		return fmt.Errorf("persist usage ledger: %w", err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// writeJSONAtomic writes data to path via a temp file in the same
// directory, fsyncs it, then renames over the destination — rename is
// atomic on the same filesystem, so readers never observe a partial file.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
