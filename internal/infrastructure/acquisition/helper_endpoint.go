package acquisition

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	domainacq "github.com/ngoclaw/ngoclaw/gateway/internal/domain/acquisition"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	"go.uber.org/zap"
)

// HelperEndpoint is Layer 2: a companion HTTP+SSE endpoint (run alongside
// the browser session, forwarding the same upstream call the page itself
// triggers) that streams deltas without requiring MITM cert trust, built
// on a plain http.Client and a line-based SSE scanner. No idle-read
// timeout is applied: a stalled stream ends only when ctx is done.
type HelperEndpoint struct {
	baseURL string
	client  *http.Client
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewHelperEndpoint builds a Layer-2 client against the given base URL,
// e.g. http://127.0.0.1:<port> of the companion process. idleTimeout is
// accepted but not used.
func NewHelperEndpoint(baseURL string, idleTimeout time.Duration, logger *zap.Logger) *HelperEndpoint {
	return &HelperEndpoint{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 0, // streaming: no blanket timeout; only the request ctx bounds the read
		},
		breaker: NewCircuitBreaker(3, 20*time.Second),
		logger:  logger.With(zap.String("component", "helper-endpoint")),
	}
}

var _ domainacq.EligibilityChecker = (*HelperEndpoint)(nil)
var _ domainacq.Acquirer = (*HelperEndpoint)(nil)

func (h *HelperEndpoint) Layer() domainacq.Layer { return domainacq.LayerHelperEndpoint }

func (h *HelperEndpoint) CheckEligible(ctx context.Context) domainacq.Eligibility {
	if !h.breaker.Allow() {
		return domainacq.Eligibility{Layer: domainacq.LayerHelperEndpoint, Eligible: false, Reason: "circuit open after repeated helper-endpoint failures"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/healthz", nil)
	if err != nil {
		return domainacq.Eligibility{Layer: domainacq.LayerHelperEndpoint, Eligible: false, Reason: err.Error()}
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return domainacq.Eligibility{Layer: domainacq.LayerHelperEndpoint, Eligible: false, Reason: "unreachable: " + err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domainacq.Eligibility{Layer: domainacq.LayerHelperEndpoint, Eligible: false, Reason: fmt.Sprintf("unhealthy status %d", resp.StatusCode)}
	}
	return domainacq.Eligibility{Layer: domainacq.LayerHelperEndpoint, Eligible: true}
}

// sseDelta is the companion endpoint's per-event payload shape.
type sseDelta struct {
	Content      string `json:"content"`
	Reasoning    string `json:"reasoning"`
	ToolCallName string `json:"tool_call_name"`
	ToolCallArgs string `json:"tool_call_args_fragment"`
	Done         bool   `json:"done"`
}

// Acquire posts the prompt to the companion endpoint and scans its SSE
// response, accumulating text/reasoning/tool-call fragments.
func (h *HelperEndpoint) Acquire(ctx context.Context, req *entity.RequestContext, deltas chan<- struct{}) (*entity.InternalResponse, error) {
	body, err := json.Marshal(map[string]interface{}{
		"req_id": req.ReqID,
		"model":  req.ModelRequested,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/stream", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		h.breaker.RecordFailure()
		return nil, fmt.Errorf("helper endpoint request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		h.breaker.RecordFailure()
		return nil, fmt.Errorf("helper endpoint status %d", resp.StatusCode)
	}

	result := &entity.InternalResponse{FinishReason: entity.FinishStop}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}
		var d sseDelta
		if err := json.Unmarshal([]byte(payload), &d); err != nil {
			h.logger.Warn("malformed helper-endpoint SSE event", zap.String("payload", payload), zap.Error(err))
			continue
		}
		if d.Content != "" {
			result.Content += d.Content
			result.HasContent = true
		}
		if d.Reasoning != "" {
			result.Reasoning += d.Reasoning
			result.HasReasoning = true
		}
		if d.ToolCallName != "" || d.ToolCallArgs != "" {
			result.ToolCalls = appendToolFragment(result.ToolCalls, d.ToolCallName, d.ToolCallArgs)
		}
		select {
		case deltas <- struct{}{}:
		default:
		}
		if d.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		h.breaker.RecordFailure()
		return result, fmt.Errorf("helper endpoint stream read: %w", err)
	}
	h.breaker.RecordSuccess()
	if qerr := detectQuotaOrRateLimit(result.Content); qerr != nil {
		return nil, qerr
	}
	if len(result.ToolCalls) > 0 {
		result.FinishReason = entity.FinishToolCalls
	}
	return result, nil
}

// appendToolFragment accumulates a streamed tool-call's name/argument
// fragments into the last entry, starting a new one when name is set.
func appendToolFragment(calls []entity.ToolCall, name, argsFragment string) []entity.ToolCall {
	if name != "" {
		return append(calls, entity.ToolCall{Name: name, Arguments: argsFragment})
	}
	if len(calls) == 0 {
		return calls
	}
	calls[len(calls)-1].Arguments += argsFragment
	return calls
}
