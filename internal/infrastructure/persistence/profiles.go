package persistence

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/profile"
)

// tierDirs are the three credential-tier subdirectories under the
// profiles root, in the order they are scanned.
var tierDirs = []profile.Tier{profile.TierPrimary, profile.TierActive, profile.TierEmergency}

// LoadProfilePool scans root/{primary,active,emergency}/*.json and builds a
// Pool, one Profile per blob file. The blob contents themselves are opaque
// to the engine (the browser facade is what knows how to apply them); this
// loader only establishes identity, tier, and path.
func LoadProfilePool(root string) (*profile.Pool, error) {
	pool := profile.NewPool()
	for _, tier := range tierDirs {
		dir := filepath.Join(root, string(tier))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			pool.Add(&profile.Profile{
				ID: filepath.Join(string(tier), entry.Name()),
				Tier: tier,
				Path: filepath.Join(dir, entry.Name()),
			})
		}
	}
	return pool, nil
}
