package persistence

import (
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuditLog appends rotation/quota-watchdog transitions to AuditEvent.
// Writes are best-effort: a failed audit write must never fail the
// request it is describing, so every method only logs on error.
type AuditLog struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewAuditLog(db *gorm.DB, logger *zap.Logger) *AuditLog {
	return &AuditLog{db: db, logger: logger.With(zap.String("component", "audit-log"))}
}

func (a *AuditLog) record(kind, profileID, model string, detail interface{}) {
	blob, _ := json.Marshal(detail)
	if err := a.db.Create(&AuditEvent{Kind: kind, ProfileID: profileID, Model: model, Detail: string(blob)}).Error; err != nil {
		a.logger.Warn("audit write failed", zap.String("kind", kind), zap.Error(err))
	}
}

func (a *AuditLog) ProfileSwitch(profileID, model, reason string) {
	a.record("profile_switch", profileID, model, map[string]string{"reason": reason})
}

func (a *AuditLog) CooldownSet(profileID, model, reason string, seconds float64) {
	a.record("cooldown_set", profileID, model, map[string]interface{}{"reason": reason, "duration_s": seconds})
}

func (a *AuditLog) CanaryResult(profileID string, passed bool, detail string) {
	a.record("canary_result", profileID, "", map[string]interface{}{"passed": passed, "detail": detail})
}

func (a *AuditLog) QuotaState(exhausted bool) {
	a.record("quota_state", "", "", map[string]bool{"all_profiles_exhausted": exhausted})
}
