package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	domainacq "github.com/ngoclaw/ngoclaw/gateway/internal/domain/acquisition"
	domainbrowser "github.com/ngoclaw/ngoclaw/gateway/internal/domain/browser"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/functioncall"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/profile"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/streaming"
	apperr "github.com/ngoclaw/ngoclaw/gateway/pkg/errors"

	"github.com/ngoclaw/ngoclaw/gateway/pkg/clock"
	"github.com/ngoclaw/ngoclaw/gateway/pkg/safego"
	"go.uber.org/zap"
)

// CapabilityResolver resolves a model id to its browser capability profile.
type CapabilityResolver interface {
	Resolve(modelID string) domainbrowser.Capability
}

// AuditSink is the narrow slice of persistence.AuditLog the worker needs;
// kept as an interface so worker_test.go can swap in a no-op.
type AuditSink interface {
	ProfileSwitch(profileID, model, reason string)
	CooldownSet(profileID, model, reason string, seconds float64)
}

// LedgerPersister is the narrow slice of persistence.LedgerStore the worker
// needs after a rotation commit.
type LedgerPersister interface {
	Persist(pool *profile.Pool) error
}

// Config bundles the tunables the worker reads from the resolved
// config.Config snapshot — passed by value, so the Worker keeps its own
// copy and never shares a struct that a config reload could write into.
type Config struct {
	Cooldowns profile.CooldownDurations
	StreamTimeouts streaming.Timeouts
	PseudoStreamDelay time.Duration
	InterRequestDelayMin time.Duration
	InterRequestDelayMax time.Duration
	ClearChatBetweenReqs bool
}

// Worker is the single task that drains Queue against the one shared
// browser.Session: one FIFO, one processing lock, tiered
// error recovery, smart inter-request delay.
type Worker struct {
	queue *Queue
	session domainbrowser.Session
	pool *profile.Pool
	ledger LedgerPersister
	audit AuditSink
	rnd profile.RandSource

	selector *domainacq.Selector
	acquirers map[domainacq.Layer]domainacq.Acquirer
	orch *functioncall.Orchestrator
	caps CapabilityResolver

	mode ModeHolder
	clock clock.Clock
	cfg Config

	logger *zap.Logger

	processingLock    chan struct{} // 1-buffered: acquire by send, release by receive
	lastWasStream     bool
	paramsFingerprint string // last-applied SetParams fingerprint; unchanged params are not re-set
	currentProfileID  string // which pool entry the session is presently authenticated as
}

// NewWorker wires a Worker. acquirers must contain at least one entry keyed
// by the Layer its EligibilityChecker/Acquirer reports.
func NewWorker(
	q *Queue,
	session domainbrowser.Session,
	pool *profile.Pool,
	ledger LedgerPersister,
	audit AuditSink,
	selector *domainacq.Selector,
	acquirers map[domainacq.Layer]domainacq.Acquirer,
	orch *functioncall.Orchestrator,
	caps CapabilityResolver,
	initialProfileID string,
	clk clock.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	w := &Worker{
		queue: q,
		session: session,
		pool: pool,
		ledger: ledger,
		audit: audit,
		rnd: func(n int) int { return rand.Intn(n) },
		selector: selector,
		acquirers: acquirers,
		orch: orch,
		caps: caps,
		currentProfileID: initialProfileID,
		clock: clk,
		cfg: cfg,
		logger: logger.With(zap.String("component", "queue-worker")),
		processingLock: make(chan struct{}, 1),
	}
	return w
}

// ModeHolder exposes the deployment-mode box so the quota watchdog can flip
// it without a reference cycle back into this package.
func (w *Worker) ModeHolder() *ModeHolder { return &w.mode }

// Run drains the queue until ctx is cancelled. One goroutine; safego.Go is
// used by the caller (application.App.Start) to survive an unexpected panic without
// taking the process down — the processing lock itself is released on every
// exit path including panic/error (see runOne's defer).
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		// Step 1: small periodic wake-up so shutdown/cancellation is serviced
		// even when the queue is empty.
		waitCtx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		item, ok := w.queue.Dequeue(waitCtx)
		cancel()
		if !ok {
			continue
		}

		// Step 2: already-cancelled items never reach the browser.
		if item.Ctx.ClientCancel.Fired() {
			w.finishError(item.Ctx, apperr.New(apperr.CodeClientClosed, "client disconnected before dequeue"))
			continue
		}

		// Step 3: deployment mode gates dequeueing.
		switch w.mode.Load() {
		case ModeQuotaExceeded, ModeNeedsRotation:
			if !w.tryRotate(ctx, item.Ctx.ModelRequested) {
				w.finishError(item.Ctx, apperr.New(apperr.CodeRotationExhausted, "no eligible authentication profile"))
				continue
			}
		case ModeEmergency:
			w.finishError(item.Ctx, apperr.New(apperr.CodeRotationExhausted, "rotation exhausted, awaiting cooldown expiry"))
			continue
		}

		w.smartDelay(item)

		// Step 4: acquire the processing lock.
		w.processingLock <- struct{}{}
		w.runOne(ctx, item)
	}
}

// runOne executes one request while holding the processing lock, guaranteed
// to release it on every exit path (normal return, error return, or panic)
// via the deferred release — the worker always releases the processing
// lock, regardless of how the request turns out.
func (w *Worker) runOne(ctx context.Context, item *entity.QueueItem) {
	defer func() {
		<-w.processingLock
		w.lastWasStream = item.Ctx.Stream
	}()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic while processing request", zap.Any("panic", r), zap.String("req_id", item.Ctx.ReqID))
			w.finishError(item.Ctx, apperr.New(apperr.CodeInternal, "internal panic during request processing"))
		}
	}()

	reqCtx := item.Ctx.ClientCancel.Context()
	w.processRequest(reqCtx, item.Ctx)
	w.postRequestCleanup(reqCtx, item.Ctx)
}

// processRequest drives the pre-flight sequence (model switch, parameter
// injection, function-declaration setup) then submits and acquires.
func (w *Worker) processRequest(ctx context.Context, req *entity.RequestContext) {
	if err := w.ensureModel(ctx, req.ModelRequested); err != nil {
		w.finishEngineError(req, err)
		return
	}

	// Mode resolution runs before param injection: when it resolves to
	// native with declared tools, it silently clears GoogleSearch/URLContext
	// on req.Params so ensureParams submits the already-reconciled values.
	mode, warnings, err := w.resolveModeWithQuickRefresh(ctx, req)
	if err != nil {
		if apperr.Is(err, apperr.CodeInvalidTool) {
			w.finishError(req, apperr.Wrap(apperr.CodeInvalidTool, "invalid tool declaration", err))
			return
		}
		w.finishError(req, apperr.Wrap(apperr.CodeTransientDOM, "function-declaration setup failed", err))
		return
	}

	if err := w.ensureParams(ctx, req); err != nil {
		w.finishEngineError(req, err)
		return
	}

	correlationToken := req.ReqID
	prompt := composePrompt(req, mode, w.orch.Marker())
	if err := w.submitWithQuickRefresh(ctx, prompt, attachmentsForLiveTurn(req), correlationToken); err != nil {
		w.finishEngineError(req, w.classifySubmitError(err))
		return
	}

	layer, _, ok := w.selector.Select(ctx)
	if !ok {
		w.finishError(req, apperr.New(apperr.CodeBadGateway, "no acquisition layer eligible"))
		return
	}
	acquirer := w.acquirers[layer]

	resp, finishErr := w.acquireWithLifecycle(ctx, req, acquirer)
	if finishErr != nil {
		if finishErr.Code == string(apperr.CodeQuotaExceeded) || finishErr.Code == string(apperr.CodeRateLimited) {
			finishErr = w.applyQuotaSignal(ctx, req, finishErr)
		}
		w.finishEngineError(req, finishErr)
		return
	}
	if resp == nil {
		return // cancelled mid-flight: lifecycle already resolved the sink
	}

	resp.Warnings = append(resp.Warnings, warnings...)
	w.resolveToolCalls(mode, req, resp)
	w.emitFinal(req, resp)
}

// acquireWithLifecycle runs the selected layer's Acquire concurrently with
// the streaming lifecycle controller, which owns the TTFB/silence timing.
// deltas is a pure liveness signal — Acquire pings it on every chunk
// it receives, the lifecycle uses it only to reset timers. The acquired
// content itself is delivered to the client afterward (see emitFinal):
// Layers 1/2 in this engine aggregate a full turn before returning, so true
// sub-turn SSE relay collapses to the same pseudo-stream chunking already
// used as the Layer 3 fallback.
func (w *Worker) acquireWithLifecycle(ctx context.Context, req *entity.RequestContext, acquirer domainacq.Acquirer) (*entity.InternalResponse, *entity.EngineError) {
	lc := streaming.NewLifecycle(w.clock, w.cfg.StreamTimeouts, w.logger)
	deltas := make(chan struct{}, 1)

	type acquireResult struct {
		resp *entity.InternalResponse
		err error
	}
	resultCh := make(chan acquireResult, 1)
	safego.Go(w.logger, "acquire-"+req.ReqID, func() {
		resp, err := acquirer.Acquire(ctx, req, deltas)
		resultCh <- acquireResult{resp, err}
	})

	lifecycleErrCh := make(chan *entity.EngineError, 1)
	safego.Go(w.logger, "lifecycle-"+req.ReqID, func() {
		lifecycleErrCh <- lc.Run(ctx, req.ClientCancel, deltas, func(probeCtx context.Context) (bool, error) {
			state, err := w.session.PollResponseState(probeCtx)
			if err != nil {
				return false, err
			}
			return state.StopButtonVisible || state.RunButtonDisabled, nil
		})
	})

	select {
	case res := <-resultCh:
		// The lifecycle goroutine is left running: with no further deltas it
		// will reach SilenceCheck and then Completed/StaleTimeout on its own,
		// bounded by cfg.StreamTimeouts. Blocking here on its exit would add
		// pure latency to an already-successful response for no benefit.
		if res.err != nil {
			if apperr.Is(res.err, apperr.CodeQuotaExceeded) || apperr.Is(res.err, apperr.CodeRateLimited) {
				return nil, &entity.EngineError{Code: string(apperr.Code(res.err)), Message: res.err.Error(), Type: "server_error"}
			}
			return nil, &entity.EngineError{Code: string(apperr.CodeLayerFailed), Message: res.err.Error(), Type: "server_error"}
		}
		return res.resp, nil
	case lcErr := <-lifecycleErrCh:
		w.pressStopBestEffort(ctx)
		return nil, lcErr
	}
}

// resolveModeWithQuickRefresh wraps orch.ResolveMode with a single
// quick-refresh-then-retry for transient-DOM failures during declaration
// install (spec §4.1). Invalid-tool errors are a validation failure, not a
// DOM glitch, and are never retried.
func (w *Worker) resolveModeWithQuickRefresh(ctx context.Context, req *entity.RequestContext) (functioncall.Mode, []string, error) {
	mode, warnings, err := w.orch.ResolveMode(ctx, w.session, req)
	if err == nil || apperr.Is(err, apperr.CodeInvalidTool) {
		return mode, warnings, err
	}
	if refreshErr := w.session.QuickRefresh(ctx); refreshErr != nil {
		return mode, warnings, err
	}
	return w.orch.ResolveMode(ctx, w.session, req)
}

// submitWithQuickRefresh retries SubmitPrompt once, after a QuickRefresh,
// before a transient-DOM submit failure is treated as fatal-for-request.
func (w *Worker) submitWithQuickRefresh(ctx context.Context, prompt string, attachments []entity.Attachment, correlationToken string) error {
	err := w.session.SubmitPrompt(ctx, prompt, attachments, correlationToken)
	if err == nil {
		return nil
	}
	if refreshErr := w.session.QuickRefresh(ctx); refreshErr != nil {
		return err
	}
	return w.session.SubmitPrompt(ctx, prompt, attachments, correlationToken)
}

// pressStopBestEffort attempts the site's stop-generation button, bounded to
// 1000ms, regardless of why the lifecycle returned (cancellation, timeout,
// or terminal error).
func (w *Worker) pressStopBestEffort(parent context.Context) {
	stopCtx, cancel := context.WithTimeout(parent, time.Second)
	defer cancel()
	if err := w.session.PressStop(stopCtx); err != nil {
		w.logger.Debug("best-effort stop-button press failed", zap.Error(err))
	}
}

// resolveToolCalls assigns call IDs to any tool calls the acquirer produced
// without one (DOM-native widgets), and — only when the acquirer delivered
// none structurally and the turn ran in emulated mode — parses them out of
// the response text. Emulated-mode names that don't exactly match a
// registered tool are resolved via prefix fuzzy match against req.Tools
// (spec §4.7's truncated-tool-name recovery).
func (w *Worker) resolveToolCalls(mode functioncall.Mode, req *entity.RequestContext, resp *entity.InternalResponse) {
	if len(resp.ToolCalls) == 0 && mode == functioncall.ModeEmulated && resp.Content != "" {
		calls, cleaned := functioncall.ParseEmulated(resp.Content, w.orch.Marker())
		if len(calls) > 0 {
			registered := toolNames(req.Tools)
			for i := range calls {
				if resolved, ok := functioncall.ResolveRegisteredName(calls[i].Name, registered); ok {
					calls[i].Name = resolved
				}
			}
			resp.ToolCalls = calls
			resp.Content = cleaned
		}
	}
	for i := range resp.ToolCalls {
		if resp.ToolCalls[i].ID == "" {
			resp.ToolCalls[i].ID = functioncall.NewCallID()
		}
	}
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = entity.FinishToolCalls
	}
}

// toolNames extracts the registered tool names from a request's tool
// declarations, for emulated-mode fuzzy name resolution.
func toolNames(tools []entity.ToolDefinition) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

// emitFinal delivers the finished response to the sink: streamed as
// pseudo-stream chunks paced by cfg.PseudoStreamDelay when req.Stream, or as
// a single EventFinish carrying the full InternalResponse otherwise.
func (w *Worker) emitFinal(req *entity.RequestContext, resp *entity.InternalResponse) {
	if !req.Stream {
		req.ResultSink <- entity.Event{Kind: entity.EventFinish, FinishReason: resp.FinishReason, Response: resp}
		close(req.ResultSink)
		return
	}

	for _, chunk := range splitIntoChunks(resp.Content) {
		select {
		case <-req.ClientCancel.Done():
			close(req.ResultSink)
			return
		default:
		}
		req.ResultSink <- entity.Event{Kind: entity.EventTextDelta, TextDelta: chunk}
		if w.cfg.PseudoStreamDelay > 0 {
			select {
			case <-w.clock.After(w.cfg.PseudoStreamDelay):
			case <-req.ClientCancel.Done():
				close(req.ResultSink)
				return
			}
		}
	}
	for i, tc := range resp.ToolCalls {
		req.ResultSink <- entity.Event{Kind: entity.EventToolCallChunk, ToolCallIndex: i, ToolCallID: tc.ID, ToolCallName: tc.Name, ArgsFragment: tc.Arguments}
	}
	req.ResultSink <- entity.Event{Kind: entity.EventFinish, FinishReason: resp.FinishReason, Response: resp}
	close(req.ResultSink)
}

// splitIntoChunks cuts text into small rune-safe pieces for pseudo-streaming.
func splitIntoChunks(text string) []string {
	const chunkSize = 12
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	chunks := make([]string, 0, len(runes)/chunkSize+1)
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

// composePrompt builds the live prompt text, prepending the emulated-mode
// tool catalog and protocol line (spec §4.7) when mode is emulated and the
// request actually declared tools — native mode and tool-less requests
// never touch the system prompt.
func composePrompt(req *entity.RequestContext, mode functioncall.Mode, marker string) string {
	if len(req.Messages) == 0 {
		return ""
	}
	var ctxBlock string
	for _, m := range req.Messages[:len(req.Messages)-1] {
		switch m.Role {
		case entity.RoleTool:
			ctxBlock += "Tool result (tool_call_id=" + m.ToolCallID + "): " + m.Content + "\n"
		default:
			ctxBlock += string(m.Role) + ": " + m.Content + "\n"
		}
	}
	live := req.Messages[len(req.Messages)-1].Content
	body := live
	if ctxBlock != "" {
		body = ctxBlock + "\n" + live
	}
	if mode != functioncall.ModeEmulated || len(req.Tools) == 0 {
		return body
	}
	return buildToolCatalog(req.Tools, marker) + "\n" + body
}

// buildToolCatalog renders the system-prompt block emulated mode needs to
// produce a parseable function call: one entry per declared tool (name,
// description, argument schema) followed by the literal marker line the
// parser scans for.
func buildToolCatalog(tools []entity.ToolDefinition, marker string) string {
	var b strings.Builder
	b.WriteString("You have access to the following functions:\n")
	for _, t := range tools {
		schema, err := json.Marshal(t.Parameters)
		if err != nil || len(schema) == 0 {
			schema = []byte("{}")
		}
		b.WriteString("- " + t.Name + ": " + t.Description + "\n  arguments schema: " + string(schema) + "\n")
	}
	b.WriteString("To call a function, emit exactly: " + marker + " <name>\nfollowed by a JSON object on the next line.\n")
	return b.String()
}

// attachmentsForLiveTurn returns only the attachments carried on the
// request, per the default upload policy (only the current user
// message's attachments are forwarded — the API adapter is responsible for
// not populating req.Attachments from earlier turns).
func attachmentsForLiveTurn(req *entity.RequestContext) []entity.Attachment {
	return req.Attachments
}

// ensureParams applies the request's generation parameters against the
// model's capability profile, skipping the browser call entirely when the
// fingerprint matches the last-applied one (the params_cache).
func (w *Worker) ensureParams(ctx context.Context, req *entity.RequestContext) *entity.EngineError {
	cap := domainbrowser.Capability{}
	if w.caps != nil {
		cap = w.caps.Resolve(req.ModelRequested)
	}
	fp := paramsFingerprint(req.ModelRequested, req.Params)
	if fp == w.paramsFingerprint {
		return nil
	}
	err := w.session.SetParams(ctx, req.Params, cap)
	if err != nil {
		if refreshErr := w.session.QuickRefresh(ctx); refreshErr == nil {
			err = w.session.SetParams(ctx, req.Params, cap)
		}
	}
	if err != nil {
		return &entity.EngineError{Code: string(apperr.CodeTransientDOM), Message: "parameter injection failed: " + err.Error(), Type: "server_error"}
	}
	w.paramsFingerprint = fp
	return nil
}

func paramsFingerprint(model string, p entity.Params) string {
	return fmt.Sprintf("%s|%v|%v|%v|%v|%s|%v|%v", model, p.Temperature, p.TopP, p.MaxOutputTokens, p.StopSequences, p.ReasoningEffort, p.GoogleSearch, p.URLContext)
}

func (w *Worker) ensureModel(ctx context.Context, model string) *entity.EngineError {
	if model == "" || w.session.CurrentModel() == model {
		return nil
	}
	if err := w.session.SetModel(ctx, model); err != nil {
		return &entity.EngineError{Code: string(apperr.CodeModelNotAvailable), Message: "model switch failed: " + err.Error(), Type: "invalid_request_error"}
	}
	return nil
}

func (w *Worker) classifySubmitError(err error) *entity.EngineError {
	return &entity.EngineError{Code: string(apperr.CodeTransientDOM), Message: err.Error(), Type: "server_error"}
}

func (w *Worker) finishError(req *entity.RequestContext, err *apperr.AppError) {
	w.finishEngineError(req, &entity.EngineError{Code: string(err.Code), Message: err.Message, Type: "server_error"})
}

func (w *Worker) finishEngineError(req *entity.RequestContext, eerr *entity.EngineError) {
	select {
	case req.ResultSink <- entity.Event{Kind: entity.EventError, Err: eerr, FinishReason: entity.FinishError}:
	default:
	}
	close(req.ResultSink)
}

// smartDelay humanizes request cadence: when the previous and current
// requests are both streaming and the current one is dequeued less than 1s
// after it was enqueued, sleep a uniform random duration in
// [InterRequestDelayMin, InterRequestDelayMax) (500ms to 1000ms when unset)
// before the next browser interaction.
func (w *Worker) smartDelay(item *entity.QueueItem) {
	if !w.lastWasStream || !item.Ctx.Stream {
		return
	}
	if w.clock.Since(item.EnqueuedAt) >= time.Second {
		return
	}
	lo, hi := w.cfg.InterRequestDelayMin, w.cfg.InterRequestDelayMax
	if lo <= 0 {
		lo = 500 * time.Millisecond
	}
	if hi <= lo {
		hi = lo + 500*time.Millisecond
	}
	d := lo + time.Duration(rand.Int63n(int64(hi-lo)))
	<-w.clock.After(d)
}

// postRequestCleanup runs after-request hygiene: residual wire events are
// drained by the acquirer's own unregister, chat history is cleared per
// policy, and function declarations are left alone unless
// clear_between_requests demands otherwise (the orchestrator already
// applies that policy in ResolveMode on the *next* call).
func (w *Worker) postRequestCleanup(ctx context.Context, req *entity.RequestContext) {
	if w.cfg.ClearChatBetweenReqs {
		if err := w.session.ClearChat(ctx); err != nil {
			w.logger.Warn("post-request ClearChat failed", zap.String("req_id", req.ReqID), zap.Error(err))
		}
	}
}

// applyQuotaSignal reacts to a quota/rate-limit signal surfaced by the
// acquisition layer: mark the profile currently in use on cooldown, attempt
// rotation so the *next* queued request lands on a fresh profile, and
// surface the current request as bad-gateway — the upstream turn has
// already been consumed, so it cannot be silently retried (spec §8
// scenario 4: "current request fails with 502, stream already opened").
func (w *Worker) applyQuotaSignal(ctx context.Context, req *entity.RequestContext, finishErr *entity.EngineError) *entity.EngineError {
	now := w.clock.Now()
	reason := profile.ReasonQuotaExceeded
	if finishErr.Code == string(apperr.CodeRateLimited) {
		reason = profile.ReasonRateLimit
	}
	if cand, ok := w.pool.Get(w.currentProfileID); ok {
		cand.SetCooldown(reason, req.ModelRequested, now, w.cfg.Cooldowns)
		seconds := w.cfg.Cooldowns.QuotaExceeded.Seconds()
		if reason == profile.ReasonRateLimit {
			seconds = w.cfg.Cooldowns.RateLimit.Seconds()
		}
		w.audit.CooldownSet(cand.ID, req.ModelRequested, string(reason), seconds)
		if w.ledger != nil {
			_ = w.ledger.Persist(w.pool)
		}
	}
	w.tryRotate(ctx, req.ModelRequested)
	return &entity.EngineError{Code: string(apperr.CodeBadGateway), Message: finishErr.Message, Type: "server_error"}
}

// tryRotate performs rotation: eligibility filter, smart-efficiency
// sort, canary test, commit. Returns false (emergency mode) if no candidate
// passes canary.
func (w *Worker) tryRotate(ctx context.Context, model string) bool {
	now := w.clock.Now()
	candidates := w.pool.Candidates(model, now, w.rnd)
	for _, cand := range candidates {
		if err := w.canary(ctx, cand); err != nil {
			cand.SetCooldown(profile.ReasonCanaryFailed, model, now, w.cfg.Cooldowns)
			w.audit.CooldownSet(cand.ID, model, string(profile.ReasonCanaryFailed), w.cfg.Cooldowns.Canary.Seconds())
			continue
		}
		// Commit: the canary already switched the session onto cand's
		// credentials; reset the declaration cache ("different account =
		// different UI state") and persist the ledger.
		w.orch.ResetDeclarationCache()
		w.currentProfileID = cand.ID
		w.audit.ProfileSwitch(cand.ID, model, "rotation")
		if w.ledger != nil {
			_ = w.ledger.Persist(w.pool)
		}
		w.mode.Store(ModeNormal)
		return true
	}
	w.mode.Store(ModeEmergency)
	return false
}

// canary performs a minimal eligibility probe against the candidate profile
// before committing to it: switch the session onto its credentials
// and confirm the session reports connected/ready. A full prompt
// round-trip would need the same acquisition pipeline runOne uses and is
// deliberately out of scope for the rotation decision itself.
func (w *Worker) canary(ctx context.Context, cand *profile.Profile) error {
	if err := w.session.SwitchProfile(ctx, cand.ID); err != nil {
		return err
	}
	if !w.session.Connected(ctx) || !w.session.PageReady(ctx) {
		return apperr.New(apperr.CodeTransientDOM, "candidate profile session not ready")
	}
	return nil
}
