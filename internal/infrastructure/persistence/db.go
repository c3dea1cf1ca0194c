package persistence

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AuditEvent is the single gorm-mapped table this gateway persists:
// rotation/quota-watchdog transitions (profile switched, cooldown set,
// canary result, QUOTA_EXCEEDED raised/cleared). This is explicitly NOT
// conversation history — only the failure-recovery trail survives a
// restart; chat content is never written to disk server-side.
type AuditEvent struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time
	Kind      string `gorm:"index"` // "profile_switch" | "cooldown_set" | "canary_result" | "quota_state"
	ProfileID string `gorm:"index"`
	Model     string
	Detail    string // free-form JSON blob
}

// NewDBConnection opens the local sqlite audit database. Only sqlite is
// wired: the engine runs as a single local process against its own
// filesystem, so there is no multi-writer case the postgres dialector
// would serve — dropped from go.mod accordingly.
func NewDBConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}
	if err := db.AutoMigrate(&AuditEvent{}); err != nil {
		return nil, fmt.Errorf("failed to migrate audit database: %w", err)
	}
	return db, nil
}
