package queue

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	domainacq "github.com/ngoclaw/ngoclaw/gateway/internal/domain/acquisition"
	domainbrowser "github.com/ngoclaw/ngoclaw/gateway/internal/domain/browser"
	stubbrowser "github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/browser"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/functioncall"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/profile"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/streaming"
	"github.com/ngoclaw/ngoclaw/gateway/pkg/clock"
	apperr "github.com/ngoclaw/ngoclaw/gateway/pkg/errors"
	"go.uber.org/zap"
)

type noopAudit struct{}

func (noopAudit) ProfileSwitch(profileID, model, reason string) {}
func (noopAudit) CooldownSet(profileID, model, reason string, seconds float64) {}

// fakeAcquirer returns a fixed response immediately, pinging deltas once.
type fakeAcquirer struct {
	layer domainacq.Layer
	resp *entity.InternalResponse
	err error
}

func (f fakeAcquirer) Layer() domainacq.Layer { return f.layer }
func (f fakeAcquirer) Acquire(ctx context.Context, req *entity.RequestContext, deltas chan<- struct{}) (*entity.InternalResponse, error) {
	select {
	case deltas <- struct{}{}:
	default:
	}
	return f.resp, f.err
}

func newTestWorker(t *testing.T, acq domainacq.Acquirer) (*Worker, *stubbrowser.StubSession) {
	t.Helper()
	q := New()
	session := stubbrowser.NewStubSession(zap.NewNop())
	pool := profile.NewPool()

	checker := alwaysEligibleChecker{layer: domainacq.LayerDOMScrape}
	selector := domainacq.NewSelector(checker)
	acquirers := map[domainacq.Layer]domainacq.Acquirer{domainacq.LayerDOMScrape: acq}

	orch := functioncall.NewOrchestrator(functioncall.NewDeclarationsCache(), "```tool_call", false)

	cfg := Config{
		StreamTimeouts: streaming.Timeouts{TTFB: 2 * time.Second, Silence: 2 * time.Second, SilenceCheck: 50 * time.Millisecond, MaxSilenceTicks: 10},
	}
	w := NewWorker(q, session, pool, nil, noopAudit{}, selector, acquirers, orch, nil, "", clock.Real, cfg, zap.NewNop())
	return w, session
}

type alwaysEligibleChecker struct{ layer domainacq.Layer }

func (a alwaysEligibleChecker) Layer() domainacq.Layer { return a.layer }
func (a alwaysEligibleChecker) CheckEligible(ctx context.Context) domainacq.Eligibility {
	return domainacq.Eligibility{Layer: a.layer, Eligible: true}
}

func newChatReq(id, content string, stream bool) *entity.RequestContext {
	return &entity.RequestContext{
		ReqID: id,
		ReceivedAt: time.Now(),
		ModelRequested: "gemini-pro",
		Stream: stream,
		Messages: []entity.Message{{Role: entity.RoleUser, Content: content}},
		ClientCancel: clock.NewCancelToken(),
		ResultSink: make(chan entity.Event, 32),
	}
}

func TestWorker_ProcessRequest_NonStreamingEmitsFinish(t *testing.T) {
	acq := fakeAcquirer{layer: domainacq.LayerDOMScrape, resp: &entity.InternalResponse{Content: "hi there", HasContent: true, FinishReason: entity.FinishStop}}
	w, _ := newTestWorker(t, acq)
	req := newChatReq("req-1", "hello", false)

	w.processRequest(req.ClientCancel.Context(), req)

	ev, ok := <-req.ResultSink
	if !ok {
		t.Fatal("expected an event on the result sink")
	}
	if ev.Kind != entity.EventFinish {
		t.Fatalf("expected EventFinish, got %v", ev.Kind)
	}
	if ev.Response.Content != "hi there" {
		t.Fatalf("unexpected response content: %q", ev.Response.Content)
	}
	if _, open := <-req.ResultSink; open {
		t.Fatal("expected the sink to be closed after the final event")
	}
}

func TestWorker_ProcessRequest_StreamingEmitsChunksThenFinish(t *testing.T) {
	acq := fakeAcquirer{layer: domainacq.LayerDOMScrape, resp: &entity.InternalResponse{Content: "hello world", HasContent: true, FinishReason: entity.FinishStop}}
	w, _ := newTestWorker(t, acq)
	req := newChatReq("req-2", "hi", true)

	w.processRequest(req.ClientCancel.Context(), req)

	var gotText string
	var sawFinish bool
	for ev := range req.ResultSink {
		switch ev.Kind {
		case entity.EventTextDelta:
			gotText += ev.TextDelta
		case entity.EventFinish:
			sawFinish = true
		}
	}
	if gotText != "hello world" {
		t.Fatalf("expected reassembled text, got %q", gotText)
	}
	if !sawFinish {
		t.Fatal("expected a finish event")
	}
}

func TestWorker_ProcessRequest_AcquirerErrorEmitsErrorEvent(t *testing.T) {
	acq := fakeAcquirer{layer: domainacq.LayerDOMScrape, err: context.DeadlineExceeded}
	w, _ := newTestWorker(t, acq)
	req := newChatReq("req-3", "hi", false)

	w.processRequest(req.ClientCancel.Context(), req)

	ev, ok := <-req.ResultSink
	if !ok {
		t.Fatal("expected an event")
	}
	if ev.Kind != entity.EventError {
		t.Fatalf("expected EventError, got %v", ev.Kind)
	}
}

func TestWorker_ProcessRequest_QuotaSignalSetsCooldownAndRotates(t *testing.T) {
	acq := fakeAcquirer{layer: domainacq.LayerDOMScrape, err: apperr.New(apperr.CodeQuotaExceeded, "quota exhausted")}
	w, _ := newTestWorker(t, acq)

	w.pool.Add(&profile.Profile{ID: "primary/a.json", Tier: profile.TierPrimary})
	w.pool.Add(&profile.Profile{ID: "primary/b.json", Tier: profile.TierPrimary})
	w.currentProfileID = "primary/a.json"
	w.cfg.Cooldowns = profile.CooldownDurations{QuotaExceeded: time.Hour}

	req := newChatReq("req-quota", "hi", false)
	w.processRequest(req.ClientCancel.Context(), req)

	ev, ok := <-req.ResultSink
	if !ok {
		t.Fatal("expected an event")
	}
	if ev.Kind != entity.EventError {
		t.Fatalf("expected EventError, got %v", ev.Kind)
	}
	if ev.Err.Code != string(apperr.CodeBadGateway) {
		t.Fatalf("expected bad_gateway surfaced to the current request, got %q", ev.Err.Code)
	}

	cand, ok := w.pool.Get("primary/a.json")
	if !ok {
		t.Fatal("expected profile still registered")
	}
	if _, onCooldown := cand.Cooldowns["gemini-pro"]; !onCooldown {
		t.Fatal("expected a per-model cooldown on the profile that reported quota exhaustion")
	}
	if w.currentProfileID != "primary/b.json" {
		t.Fatalf("expected rotation to switch the active profile, got %q", w.currentProfileID)
	}
}

func TestWorker_ProcessRequest_NativeModeDisablesGroundingAndWarns(t *testing.T) {
	acq := fakeAcquirer{layer: domainacq.LayerDOMScrape, resp: &entity.InternalResponse{Content: "ok", HasContent: true, FinishReason: entity.FinishStop}}
	w, _ := newTestWorker(t, acq)

	req := newChatReq("req-native", "hi", false)
	req.Tools = []entity.ToolDefinition{{Name: "get_weather", Parameters: map[string]interface{}{}}}
	req.Params.GoogleSearch = true
	req.Params.URLContext = true

	w.processRequest(req.ClientCancel.Context(), req)

	ev, ok := <-req.ResultSink
	if !ok {
		t.Fatal("expected an event")
	}
	if ev.Kind != entity.EventFinish {
		t.Fatalf("expected EventFinish, got %v", ev.Kind)
	}
	if len(ev.Response.Warnings) != 1 {
		t.Fatalf("expected a grounding-exclusivity warning, got %v", ev.Response.Warnings)
	}
	if req.Params.GoogleSearch || req.Params.URLContext {
		t.Fatalf("expected grounding flags cleared on the request, got %+v", req.Params)
	}
}

func TestWorker_ResolveToolCalls_EmulatedFuzzyMatchesTruncatedName(t *testing.T) {
	w, _ := newTestWorker(t, fakeAcquirer{})
	req := &entity.RequestContext{Tools: []entity.ToolDefinition{{Name: "gh_grep_searchGitHub"}}}
	resp := &entity.InternalResponse{
		Content: "```tool_call gh_grep_searchGitH\n{}",
	}

	w.resolveToolCalls(functioncall.ModeEmulated, req, resp)

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 parsed tool call, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Name != "gh_grep_searchGitHub" {
		t.Fatalf("expected the truncated name to resolve, got %q", resp.ToolCalls[0].Name)
	}
	if resp.ToolCalls[0].ID == "" {
		t.Fatal("expected a generated call id")
	}
	if resp.FinishReason != entity.FinishToolCalls {
		t.Fatalf("expected FinishToolCalls, got %q", resp.FinishReason)
	}
}

func TestComposePrompt_EmulatedModeInjectsCatalogAndMarker(t *testing.T) {
	req := &entity.RequestContext{
		Tools: []entity.ToolDefinition{{Name: "get_weather", Description: "looks up weather", Parameters: map[string]interface{}{"type": "object"}}},
		Messages: []entity.Message{{Role: entity.RoleUser, Content: "what's the weather?"}},
	}
	prompt := composePrompt(req, functioncall.ModeEmulated, "Request function call:")
	if !strings.Contains(prompt, "get_weather") {
		t.Fatalf("expected the tool catalog to list get_weather, got %q", prompt)
	}
	if !strings.Contains(prompt, "Request function call:") {
		t.Fatalf("expected the protocol marker line, got %q", prompt)
	}
	if !strings.Contains(prompt, "what's the weather?") {
		t.Fatalf("expected the live prompt to survive, got %q", prompt)
	}
}

func TestComposePrompt_NativeModeNeverInjectsCatalog(t *testing.T) {
	req := &entity.RequestContext{
		Tools: []entity.ToolDefinition{{Name: "get_weather"}},
		Messages: []entity.Message{{Role: entity.RoleUser, Content: "hi"}},
	}
	prompt := composePrompt(req, functioncall.ModeNative, "Request function call:")
	if strings.Contains(prompt, "get_weather") {
		t.Fatalf("expected no catalog injection in native mode, got %q", prompt)
	}
}

func TestComposePrompt_EmulatedModeWithoutToolsSkipsCatalog(t *testing.T) {
	req := &entity.RequestContext{Messages: []entity.Message{{Role: entity.RoleUser, Content: "hi"}}}
	prompt := composePrompt(req, functioncall.ModeEmulated, "Request function call:")
	if prompt != "hi" {
		t.Fatalf("expected the plain live prompt, got %q", prompt)
	}
}

// failOnceParamsSession fails its first SetParams call, then succeeds, so
// tests can exercise ensureParams's quick-refresh-then-retry path.
type failOnceParamsSession struct {
	*stubbrowser.StubSession
	failed bool
}

func (f *failOnceParamsSession) SetParams(ctx context.Context, p entity.Params, cap domainbrowser.Capability) error {
	if !f.failed {
		f.failed = true
		return fmt.Errorf("stub: params failed")
	}
	return nil
}

func TestWorker_EnsureParams_RetriesOnceAfterQuickRefresh(t *testing.T) {
	w, _ := newTestWorker(t, fakeAcquirer{})
	w.session = &failOnceParamsSession{StubSession: stubbrowser.NewStubSession(zap.NewNop())}

	req := &entity.RequestContext{ModelRequested: "gemini-pro", Params: entity.Params{Temperature: floatPtr(0.5)}}
	if err := w.ensureParams(context.Background(), req); err != nil {
		t.Fatalf("expected the retry after quick-refresh to succeed, got %+v", err)
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestWorker_SubmitWithQuickRefresh_RetriesOnceThenSucceeds(t *testing.T) {
	w, session := newTestWorker(t, fakeAcquirer{})
	session.FailNextSubmit = true

	err := w.submitWithQuickRefresh(context.Background(), "hello", nil, "tok-1")
	if err != nil {
		t.Fatalf("expected the retry after quick-refresh to succeed, got %v", err)
	}
}

func TestWorker_SubmitWithQuickRefresh_FatalWhenRefreshAlsoFails(t *testing.T) {
	w, session := newTestWorker(t, fakeAcquirer{})
	session.FailNextSubmit = true
	session.FailNextRefresh = true

	err := w.submitWithQuickRefresh(context.Background(), "hello", nil, "tok-2")
	if err == nil {
		t.Fatal("expected the submit failure to surface when the refresh itself fails")
	}
}

func TestWorker_EnsureModel_SkipsWhenAlreadyCurrent(t *testing.T) {
	w, session := newTestWorker(t, fakeAcquirer{})
	session.SetModel(context.Background(), "gemini-pro")

	if err := w.ensureModel(context.Background(), "gemini-pro"); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
}

func TestWorker_EnsureModel_SwitchesWhenDifferent(t *testing.T) {
	w, session := newTestWorker(t, fakeAcquirer{})
	if err := w.ensureModel(context.Background(), "gemini-flash"); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if session.CurrentModel() != "gemini-flash" {
		t.Fatalf("expected model switched, got %q", session.CurrentModel())
	}
}

func TestWorker_SmartDelay_SkipsWhenPreviousWasNotStreaming(t *testing.T) {
	w, _ := newTestWorker(t, fakeAcquirer{})
	w.lastWasStream = false
	item := &entity.QueueItem{Ctx: &entity.RequestContext{Stream: true}, EnqueuedAt: time.Now()}

	start := time.Now()
	w.smartDelay(item)
	if time.Since(start) > 50*time.Millisecond {
		t.Fatal("expected smartDelay to return immediately when the previous request was not streaming")
	}
}

func TestWorker_SmartDelay_SleepsWithinConfiguredBounds(t *testing.T) {
	w, _ := newTestWorker(t, fakeAcquirer{})
	w.lastWasStream = true
	w.cfg.InterRequestDelayMin = 10 * time.Millisecond
	w.cfg.InterRequestDelayMax = 20 * time.Millisecond
	item := &entity.QueueItem{Ctx: &entity.RequestContext{Stream: true}, EnqueuedAt: time.Now()}

	start := time.Now()
	w.smartDelay(item)
	elapsed := time.Since(start)
	if elapsed < 9*time.Millisecond {
		t.Fatalf("expected a delay of at least ~10ms, got %v", elapsed)
	}
}
