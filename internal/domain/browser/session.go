// Package browser defines the contract-only abstraction over the automated
// browser session. The actual automation driver (the specific DOM selectors,
// the Playwright/chromedp wiring) is explicitly out of scope — only its
// contract appears here. Everything in the engine depends on
// this interface, never on a concrete driver.
package browser

import (
	"context"
	"time"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
)

// ResponseState is what the DOM-polling layer (Layer 3) observes about the
// in-progress response.
type ResponseState struct {
	StopButtonVisible bool // "Stop generating" present → generation active
	RunButtonDisabled bool // disabled "Run" → generation active
	ResponseStable bool // container unchanged across the final-state-check window
	PendingNetwork bool
}

// FunctionCallWidget is one native function-call card rendered in the
// response pane (Layer 3 parsing, "Native DOM").
type FunctionCallWidget struct {
	Name string
	ArgsJSON string
}

// Capability describes what a model supports at the browser level (the
// model-capability table), loaded from config rather than hardcoded.
type Capability struct {
	ThinkingMode ThinkingMode
	ThinkingLevels []string // valid when ThinkingMode == ThinkingLevels
	ThinkingBudgetRange [2]int // valid when ThinkingMode == ThinkingBudget
	SupportsGoogleSearch bool
	SupportsURLContext bool
}

type ThinkingMode string

const (
	ThinkingNone ThinkingMode = "none"
	ThinkingLevels ThinkingMode = "levels"
	ThinkingBudget ThinkingMode = "budget"
)

// Session is the single shared browser resource. Only the queue worker may
// mutate it, and only while holding the processing lock — the
// interface itself does not enforce that; it is a capability surface, not a
// concurrency primitive.
type Session interface {
	// PageReady reports whether the page has finished loading and is
	// accepting interaction. The API adapter refuses requests while false.
	PageReady(ctx context.Context) bool

	// Connected reports whether the underlying browser process is alive.
	Connected(ctx context.Context) bool

	// QuickRefresh performs a navigate-to-self + wait-for-idle, used by the
	// transient-DOM recovery path.
	QuickRefresh(ctx context.Context) error

	// SetModel switches the page to the given model id. Idempotent at the
	// call site (callers should no-op when already on CurrentModel()).
	SetModel(ctx context.Context, modelID string) error
	CurrentModel() string

	// SetParams applies browser-level generation parameters. Implementations
	// must treat every field independently settable.
	SetParams(ctx context.Context, p entity.Params, cap Capability) error

	// SetFunctionDeclarations installs (or removes, when decls is empty)
	// the native function-calling toggle and declaration editor contents.
	SetFunctionDeclarations(ctx context.Context, decls []byte) error
	FunctionToggleEnabled(ctx context.Context) (bool, error)

	// SubmitPrompt uploads attachments (if any) and submits the composed
	// prompt text, returning once the Run/Submit button reports accepted
	// state. correlationToken is injected as a request header so the wire
	// interceptor can key its per-request channel.
	SubmitPrompt(ctx context.Context, prompt string, attachments []entity.Attachment, correlationToken string) error

	// PollResponseState returns the current DOM-observed generation state,
	// as seen by the DOM-scrape acquisition layer.
	PollResponseState(ctx context.Context) (ResponseState, error)

	// ReadFinalText reads the complete response text once generation has
	// stabilized, plus any native function-call widgets present.
	ReadFinalText(ctx context.Context) (text string, reasoning string, calls []FunctionCallWidget, err error)

	// PressStop attempts to click the site's stop-generation button,
	// best-effort, bounded by the caller's context deadline.
	PressStop(ctx context.Context) error

	// ClearChat clears the conversation in the browser.
	ClearChat(ctx context.Context) error

	// ListModels returns the model ids observed on the page.
	ListModels(ctx context.Context) ([]string, error)

	// SwitchProfile hot-swaps the active credential profile, forcing the
	// next SetModel to re-apply regardless of CurrentModel().
	SwitchProfile(ctx context.Context, profileID string) error
}

// DefaultFinalStateCheckWindow is how long the response container must be
// unchanged before Layer 3 considers generation finished.
const DefaultFinalStateCheckWindow = 1500 * time.Millisecond
