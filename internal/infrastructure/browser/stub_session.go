// Package browser provides the only concrete implementation of
// browser.Session shipped with this repository: an in-memory stub that
// exercises the full facade contract without driving a real browser. Wiring
// a Playwright/chromedp-backed driver against the interface in
// internal/domain/browser is an out-of-scope integration point; this stub
// is what the engine's own tests and local/dev runs exercise against.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	domainbrowser "github.com/ngoclaw/ngoclaw/gateway/internal/domain/browser"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	"go.uber.org/zap"
)

// StubSession is a single-process, goroutine-safe stand-in for the real
// browser automation driver. It accepts any model id, echoes the live
// prompt back with a canned prefix, and never fails unless configured to.
type StubSession struct {
	mu sync.Mutex

	ready bool
	connected bool
	model string
	profile string

	pendingText string
	generating bool
	genStarted time.Time
	genDuration time.Duration

	decls []byte
	toggleOn bool

	logger *zap.Logger

	// FailNextSubmit/FailNextRefresh let tests inject transient-DOM errors.
	FailNextSubmit bool
	FailNextRefresh bool
}

// NewStubSession creates a ready, connected stub session.
func NewStubSession(logger *zap.Logger) *StubSession {
	return &StubSession{
		ready: true,
		connected: true,
		logger: logger.With(zap.String("component", "browser-stub")),
		genDuration: 400 * time.Millisecond,
	}
}

var _ domainbrowser.Session = (*StubSession)(nil)

func (s *StubSession) PageReady(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *StubSession) Connected(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *StubSession) QuickRefresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNextRefresh {
		s.FailNextRefresh = false
		return fmt.Errorf("stub: refresh failed")
	}
	s.ready = true
	return nil
}

func (s *StubSession) SetModel(ctx context.Context, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = modelID
	return nil
}

func (s *StubSession) CurrentModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

func (s *StubSession) SetParams(ctx context.Context, p entity.Params, cap domainbrowser.Capability) error {
	return nil
}

func (s *StubSession) SetFunctionDeclarations(ctx context.Context, decls []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decls = decls
	s.toggleOn = len(decls) > 0
	return nil
}

func (s *StubSession) FunctionToggleEnabled(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toggleOn, nil
}

func (s *StubSession) SubmitPrompt(ctx context.Context, prompt string, attachments []entity.Attachment, correlationToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNextSubmit {
		s.FailNextSubmit = false
		return fmt.Errorf("stub: submit failed")
	}
	s.pendingText = "stub reply to: " + truncate(prompt, 200)
	s.generating = true
	s.genStarted = time.Now()
	return nil
}

func (s *StubSession) PollResponseState(ctx context.Context) (domainbrowser.ResponseState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := s.generating && time.Since(s.genStarted) < s.genDuration
	return domainbrowser.ResponseState{
		StopButtonVisible: active,
		RunButtonDisabled: active,
		ResponseStable: !active,
		PendingNetwork: false,
	}, nil
}

func (s *StubSession) ReadFinalText(ctx context.Context) (string, string, []domainbrowser.FunctionCallWidget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generating = false
	return s.pendingText, "", nil, nil
}

func (s *StubSession) PressStop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generating = false
	return nil
}

func (s *StubSession) ClearChat(ctx context.Context) error {
	return nil
}

func (s *StubSession) ListModels(ctx context.Context) ([]string, error) {
	return []string{"gemini-pro", "gemini-flash"}, nil
}

func (s *StubSession) SwitchProfile(ctx context.Context, profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profileID
	s.model = ""
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
