package functioncall

import (
	"context"
	"encoding/json"
	"strings"

	domainbrowser "github.com/ngoclaw/ngoclaw/gateway/internal/domain/browser"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	apperr "github.com/ngoclaw/ngoclaw/gateway/pkg/errors"
)

// Orchestrator drives the native-vs-emulated decision for one request and
// normalizes whichever mode actually produced tool calls into a single
// []entity.ToolCall shape the OpenAI formatter consumes.
type Orchestrator struct {
	declCache *DeclarationsCache
	marker    string // emulated-mode marker text, from config
	clearBetweenRequests bool
}

// NewOrchestrator builds an orchestrator. marker is the literal line the
// system prompt instructs the model to emit before an emulated function
// call (e.g. "```tool_call" or a project-specific token).
func NewOrchestrator(declCache *DeclarationsCache, marker string, clearBetweenRequests bool) *Orchestrator {
	return &Orchestrator{declCache: declCache, marker: marker, clearBetweenRequests: clearBetweenRequests}
}

// ResolveMode decides native vs emulated for this request: native requires
// both that the caller requested it (or "auto") and that the session
// reports its function-call toggle is actually enabled after installation.
// When it resolves to native with declared tools, it also enforces the
// native-mode exclusivity with Google Search / URL context grounding: AI
// Studio's UI cannot have both a function declaration and a grounding tool
// active at once, so the grounding flags are silently cleared on req.Params
// and a warning is returned for the caller to surface to the client.
func (o *Orchestrator) ResolveMode(ctx context.Context, session domainbrowser.Session, req *entity.RequestContext) (Mode, []string, error) {
	if req.FunctionMode == "emulated" {
		return ModeEmulated, nil, nil
	}

	decls, err := o.buildDeclarations(req.Tools)
	if err != nil {
		return "", nil, err
	}

	if o.clearBetweenRequests {
		o.declCache.Clear()
	}

	if len(decls) == 0 {
		if err := session.SetFunctionDeclarations(ctx, nil); err != nil {
			return "", nil, err
		}
	} else if o.declCache.NeedsInstall(decls) {
		if err := session.SetFunctionDeclarations(ctx, decls); err != nil {
			return "", nil, err
		}
	}

	enabled, err := session.FunctionToggleEnabled(ctx)
	if err != nil {
		return "", nil, err
	}
	if enabled && req.FunctionMode != "native" && len(req.Tools) == 0 {
		// no tools requested: native toggle state is irrelevant
		return ModeNative, nil, nil
	}
	if !enabled {
		return ModeEmulated, nil, nil
	}
	return ModeNative, enforceNativeExclusivity(req), nil
}

// enforceNativeExclusivity silences Google Search / URL context grounding
// on a request resolved to native function calling with declared tools,
// returning a warning describing what it disabled (nil if nothing applied).
func enforceNativeExclusivity(req *entity.RequestContext) []string {
	if len(req.Tools) == 0 {
		return nil
	}
	if !req.Params.GoogleSearch && !req.Params.URLContext {
		return nil
	}
	var disabled []string
	if req.Params.GoogleSearch {
		disabled = append(disabled, "google_search")
	}
	if req.Params.URLContext {
		disabled = append(disabled, "url_context")
	}
	req.Params.GoogleSearch = false
	req.Params.URLContext = false
	return []string{"native function calling is mutually exclusive with grounding tools; disabled: " + strings.Join(disabled, ", ")}
}

func (o *Orchestrator) buildDeclarations(tools []entity.ToolDefinition) ([]byte, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	likes := make([]ToolDefinitionLike, len(tools))
	for i, t := range tools {
		params := ConvertSchema(t.Parameters)
		if t.Name == "" || (len(params) == 0 && len(t.Parameters) > 0) {
			return nil, apperr.New(apperr.CodeInvalidTool, "tool declaration is empty or lacks a name after schema stripping: "+t.Name)
		}
		likes[i] = entity.ToolDefinition{Name: t.Name, Description: t.Description, Parameters: params}
	}
	return CanonicalizeTools(likes)
}

// ResetDeclarationCache discards the cached declarations digest. Call this
// after a profile rotation commits: a different account starts from a
// different UI state, so a stale "already installed" digest would skip a
// reinstall the new session actually needs.
func (o *Orchestrator) ResetDeclarationCache() { o.declCache.Clear() }

// Marker returns the emulated-mode call marker this orchestrator was built
// with, for callers that parse emulated text outside ExtractCalls.
func (o *Orchestrator) Marker() string { return o.marker }

// ExtractCalls pulls tool calls out of a response body according to mode:
// native widgets are already structured; emulated mode scans the raw text
// and, for any parsed name that doesn't exactly match a registered tool,
// attempts the prefix fuzzy match (spec §4.7's truncated-name recovery).
// Names that still don't resolve are left as emitted; they are not
// rejected or flagged as an unknown tool.
func (o *Orchestrator) ExtractCalls(mode Mode, text string, widgets []NativeWidget, registeredNames []string) (calls []entity.ToolCall, cleanedText string) {
	if mode == ModeNative {
		return ParseNative(widgets), text
	}
	calls, cleanedText = ParseEmulated(text, o.marker)
	for i := range calls {
		if resolved, ok := ResolveRegisteredName(calls[i].Name, registeredNames); ok {
			calls[i].Name = resolved
		}
	}
	return calls, cleanedText
}

// FormatToolCallsJSON renders calls in the OpenAI `tool_calls` array shape.
func FormatToolCallsJSON(calls []entity.ToolCall) ([]byte, error) {
	type wireCall struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
	}
	out := make([]wireCall, len(calls))
	for i, c := range calls {
		out[i].ID = c.ID
		out[i].Type = "function"
		out[i].Function.Name = c.Name
		out[i].Function.Arguments = c.Arguments
	}
	return json.Marshal(out)
}
