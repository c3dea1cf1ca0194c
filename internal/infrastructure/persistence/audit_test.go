package persistence

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func newTestAuditLog(t *testing.T) *AuditLog {
	t.Helper()
	db, err := NewDBConnection(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("unexpected error opening db: %v", err)
	}
	return NewAuditLog(db, zap.NewNop())
}

func TestAuditLog_ProfileSwitch(t *testing.T) {
	a := newTestAuditLog(t)
	a.ProfileSwitch("p1", "gemini-pro", "cooldown")

	var events []AuditEvent
	if err := a.db.Where("kind = ?", "profile_switch").Find(&events).Error; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ProfileID != "p1" || events[0].Model != "gemini-pro" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestAuditLog_CooldownSet(t *testing.T) {
	a := newTestAuditLog(t)
	a.CooldownSet("p1", "gemini-pro", "rate_limited", 30.5)

	var events []AuditEvent
	if err := a.db.Where("kind = ?", "cooldown_set").Find(&events).Error; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

func TestAuditLog_CanaryResult(t *testing.T) {
	a := newTestAuditLog(t)
	a.CanaryResult("p1", true, "ok")

	var events []AuditEvent
	if err := a.db.Where("kind = ?", "canary_result").Find(&events).Error; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

func TestAuditLog_QuotaState(t *testing.T) {
	a := newTestAuditLog(t)
	a.QuotaState(true)

	var events []AuditEvent
	if err := a.db.Where("kind = ?", "quota_state").Find(&events).Error; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Detail == "" {
		t.Fatal("expected a non-empty detail blob")
	}
}
