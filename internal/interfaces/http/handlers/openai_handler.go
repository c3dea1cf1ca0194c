package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ngoclaw/ngoclaw/gateway/internal/application/queue"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	apperr "github.com/ngoclaw/ngoclaw/gateway/pkg/errors"

	"github.com/ngoclaw/ngoclaw/gateway/pkg/clock"
)

// ChatCompletionRequest mirrors OpenAI's request format, plus the
// non-OpenAI fields this engine accepts: reasoning_effort, google_search,
// url_context.
type ChatCompletionRequest struct {
	Model string `json:"model" binding:"required"`
	Messages []ChatMessage `json:"messages" binding:"required"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP *float64 `json:"top_p,omitempty"`
	MaxTokens *int `json:"max_tokens,omitempty"`
	MaxOutputTokens *int `json:"max_output_tokens,omitempty"`
	Stop []string `json:"stop,omitempty"`
	Stream bool `json:"stream,omitempty"`
	Tools []ChatTool `json:"tools,omitempty"`
	ToolChoice json.RawMessage `json:"tool_choice,omitempty"`
	ReasoningEffort json.RawMessage `json:"reasoning_effort,omitempty"`
	GoogleSearch bool `json:"google_search,omitempty"`
	URLContext bool `json:"url_context,omitempty"`
	User string `json:"user,omitempty"`
}

// ChatMessage represents a message in the conversation.
type ChatMessage struct {
	Role string `json:"role"`
	Content string `json:"content"`
	Name string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolCalls []ChatToolCall `json:"tool_calls,omitempty"`
}

// ChatTool mirrors one entry of the incoming OpenAI `tools` array.
type ChatTool struct {
	Type string `json:"type"`
	Function struct {
		Name string `json:"name"`
		Description string `json:"description"`
		Parameters map[string]interface{} `json:"parameters"`
	} `json:"function"`
}

// ChatToolCall mirrors an assistant message's recorded tool_calls.
type ChatToolCall struct {
	ID string `json:"id"`
	Type string `json:"type"`
	Function struct {
		Name string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// ChatCompletionResponse mirrors OpenAI's non-streaming response format.
type ChatCompletionResponse struct {
	ID string `json:"id"`
	Object string `json:"object"`
	Created int64 `json:"created"`
	Model string `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage *ChatUsage `json:"usage,omitempty"`
	Warnings []string `json:"warnings,omitempty"` // non-fatal notices, e.g. a silently disabled grounding tool
}

type ChatChoice struct {
	Index int `json:"index"`
	Message ChatMessage `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type ChatUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens int `json:"total_tokens"`
}

// ChatStreamChunk represents a streaming chunk.
type ChatStreamChunk struct {
	ID string `json:"id"`
	Object string `json:"object"`
	Created int64 `json:"created"`
	Model string `json:"model"`
	Choices []ChatStreamChoice `json:"choices"`
	Warnings []string `json:"warnings,omitempty"`
}

type ChatStreamChoice struct {
	Index int `json:"index"`
	Delta ChatStreamDelta `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type ChatStreamDelta struct {
	Role string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
	ToolCalls []ChatToolCall `json:"tool_calls,omitempty"`
}

// OpenAIModel represents one entry in the /v1/models response.
type OpenAIModel struct {
	ID string `json:"id"`
	Object string `json:"object"`
	Created int64 `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type ModelsResponse struct {
	Object string `json:"object"`
	Data []OpenAIModel `json:"data"`
}

// ModelLister resolves the model list the handler serves on GET /v1/models:
// observed-on-page ids, filtered by an exclusion list, augmented by any
// injected (config-only) models.
type ModelLister interface {
	ListModels() []string
}

// HealthReporter is the narrow session/worker surface GET /health needs.
type HealthReporter interface {
	Connected() bool
	PageReady() bool
}

// OpenAIHandler implements the OpenAI-compatible chat completions API
// fronting the request queue.
type OpenAIHandler struct {
	queue *queue.Queue
	registry *queue.Registry
	models ModelLister
	health HealthReporter
	mode *queue.ModeHolder
	logger *zap.Logger
	infoFn func() map[string]interface{}
}

func NewOpenAIHandler(q *queue.Queue, registry *queue.Registry, models ModelLister, health HealthReporter, mode *queue.ModeHolder, infoFn func() map[string]interface{}, logger *zap.Logger) *OpenAIHandler {
	return &OpenAIHandler{queue: q, registry: registry, models: models, health: health, mode: mode, infoFn: infoFn, logger: logger}
}

// ChatCompletions handles POST /v1/chat/completions.
func (h *OpenAIHandler) ChatCompletions(c *gin.Context) {
	var req ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(apperr.New(apperr.CodeInvalidRequest, "").HTTPStatus(), errorResponse(err.Error(), "invalid_request_error"))
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(apperr.New(apperr.CodeInvalidRequest, "").HTTPStatus(), errorResponse("messages array must not be empty", "invalid_request_error"))
		return
	}

	reqCtx, err := buildRequestContext(c, req)
	if err != nil {
		c.JSON(apperr.New(apperr.CodeInvalidTool, "").HTTPStatus(), errorResponse(err.Error(), "invalid_request_error"))
		return
	}

	if h.health != nil && !h.health.PageReady() {
		status := apperr.New(apperr.CodeServiceUnavail, "").HTTPStatus()
		c.JSON(status, errorResponse("the AI Studio page is not ready to accept requests", "service_unavailable_error"))
		return
	}

	h.registry.Register(reqCtx)
	defer h.registry.Unregister(reqCtx.ReqID)
	h.queue.Enqueue(reqCtx)

	if req.Stream {
		h.drainStream(c, reqCtx)
		return
	}
	h.drainNonStream(c, reqCtx)
}

func (h *OpenAIHandler) drainNonStream(c *gin.Context, req *entity.RequestContext) {
	for ev := range req.ResultSink {
		switch ev.Kind {
		case entity.EventError:
			status := httpStatusForCode(ev.Err.Code)
			c.JSON(status, errorResponse(ev.Err.Message, ev.Err.Type))
			return
		case entity.EventFinish:
			c.JSON(200, toChatCompletionResponse(req, ev))
			return
		}
	}
}

func (h *OpenAIHandler) drainStream(c *gin.Context, req *entity.RequestContext) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	completionID := "chatcmpl-" + randomHex(12)
	created := time.Now().Unix()

	writeSSEChunk(c.Writer, ChatStreamChunk{
		ID: completionID, Object: "chat.completion.chunk", Created: created, Model: req.ModelRequested,
		Choices: []ChatStreamChoice{{Index: 0, Delta: ChatStreamDelta{Role: "assistant"}}},
	})
	c.Writer.Flush()

	erred := false
	for ev := range req.ResultSink {
		switch ev.Kind {
		case entity.EventTextDelta:
			writeSSEChunk(c.Writer, ChatStreamChunk{
				ID: completionID, Object: "chat.completion.chunk", Created: created, Model: req.ModelRequested,
				Choices: []ChatStreamChoice{{Index: 0, Delta: ChatStreamDelta{Content: ev.TextDelta}}},
			})
		case entity.EventToolCallChunk:
			writeSSEChunk(c.Writer, ChatStreamChunk{
				ID: completionID, Object: "chat.completion.chunk", Created: created, Model: req.ModelRequested,
				Choices: []ChatStreamChoice{{Index: 0, Delta: ChatStreamDelta{ToolCalls: []ChatToolCall{toolCallDelta(ev)}}}},
			})
		case entity.EventFinish:
			reason := string(ev.FinishReason)
			var warnings []string
			if ev.Response != nil {
				warnings = ev.Response.Warnings
			}
			writeSSEChunk(c.Writer, ChatStreamChunk{
				ID: completionID, Object: "chat.completion.chunk", Created: created, Model: req.ModelRequested,
				Choices: []ChatStreamChoice{{Index: 0, Delta: ChatStreamDelta{}, FinishReason: &reason}},
				Warnings: warnings,
			})
		case entity.EventError:
			erred = true
			reason := "error"
			writeSSEChunk(c.Writer, ChatStreamChunk{
				ID: completionID, Object: "chat.completion.chunk", Created: created, Model: req.ModelRequested,
				Choices: []ChatStreamChoice{{Index: 0, Delta: ChatStreamDelta{}, FinishReason: &reason}},
			})
		}
		c.Writer.Flush()
	}
	if !erred {
		io.WriteString(c.Writer, "data: [DONE]\n\n")
		c.Writer.Flush()
	}
}

func toolCallDelta(ev entity.Event) ChatToolCall {
	var tc ChatToolCall
	tc.ID = ev.ToolCallID
	tc.Type = "function"
	tc.Function.Name = ev.ToolCallName
	tc.Function.Arguments = ev.ArgsFragment
	return tc
}

func toChatCompletionResponse(req *entity.RequestContext, ev entity.Event) ChatCompletionResponse {
	resp := ev.Response
	msg := ChatMessage{Role: "assistant"}
	if resp != nil && resp.HasContent {
		msg.Content = resp.Content
	}
	var toolCalls []ChatToolCall
	if resp != nil {
		for _, tc := range resp.ToolCalls {
			toolCalls = append(toolCalls, ChatToolCall{ID: tc.ID, Type: "function", Function: struct {
				Name string `json:"name"`
				Arguments string `json:"arguments"`
			}{Name: tc.Name, Arguments: tc.Arguments}})
		}
	}
	msg.ToolCalls = toolCalls

	usage := &ChatUsage{}
	if resp != nil {
		usage.PromptTokens = resp.UsageEstimate.PromptTokens
		usage.CompletionTokens = resp.UsageEstimate.CompletionTokens
		usage.TotalTokens = resp.UsageEstimate.TotalTokens
	}

	var warnings []string
	if resp != nil {
		warnings = resp.Warnings
	}

	return ChatCompletionResponse{
		ID: "chatcmpl-" + randomHex(12),
		Object: "chat.completion",
		Created: time.Now().Unix(),
		Model: req.ModelRequested,
		Choices: []ChatChoice{{Index: 0, Message: msg, FinishReason: string(ev.FinishReason)}},
		Usage: usage,
		Warnings: warnings,
	}
}

// ListModels handles GET /v1/models, which stays open regardless of the
// configured API key set.
func (h *OpenAIHandler) ListModels(c *gin.Context) {
	var ids []string
	if h.models != nil {
		ids = h.models.ListModels()
	}
	data := make([]OpenAIModel, 0, len(ids))
	now := time.Now().Unix()
	for _, id := range ids {
		data = append(data, OpenAIModel{ID: id, Object: "model", Created: now, OwnedBy: "ngoclaw"})
	}
	c.JSON(200, ModelsResponse{Object: "list", Data: data})
}

// Health handles GET /health.
func (h *OpenAIHandler) Health(c *gin.Context) {
	connected, pageReady := false, false
	if h.health != nil {
		connected = h.health.Connected()
		pageReady = h.health.PageReady()
	}
	c.JSON(200, gin.H{
		"playwright_ready": connected,
		"browser_connected": connected,
		"page_ready": pageReady,
		"worker_running": true,
		"queue_length": h.queue.Len(),
		"deployment_mode": h.mode.Load().String(),
	})
}

// Info handles GET /api/info: the effective non-secret config.
func (h *OpenAIHandler) Info(c *gin.Context) {
	if h.infoFn == nil {
		c.JSON(200, gin.H{})
		return
	}
	c.JSON(200, h.infoFn())
}

// QueueStatus handles GET /v1/queue.
func (h *OpenAIHandler) QueueStatus(c *gin.Context) {
	c.JSON(200, gin.H{"queue_length": h.queue.Len()})
}

// Cancel handles POST /v1/cancel/:req_id.
func (h *OpenAIHandler) Cancel(c *gin.Context) {
	reqID := c.Param("req_id")
	if !h.registry.Cancel(reqID) {
		c.JSON(404, errorResponse("no in-flight request with that id", "invalid_request_error"))
		return
	}
	c.JSON(200, gin.H{"cancelled": reqID})
}

func buildRequestContext(c *gin.Context, req ChatCompletionRequest) (*entity.RequestContext, error) {
	messages := make([]entity.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg := entity.Message{Role: entity.Role(m.Role), Content: m.Content, Name: m.Name, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, entity.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
		}
		messages = append(messages, msg)
	}

	tools := make([]entity.ToolDefinition, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, entity.ToolDefinition{Name: t.Function.Name, Description: t.Function.Description, Parameters: t.Function.Parameters})
	}

	toolChoice, err := parseToolChoice(req.ToolChoice)
	if err != nil {
		return nil, err
	}

	maxTokens := req.MaxOutputTokens
	if maxTokens == nil {
		maxTokens = req.MaxTokens
	}

	params := entity.Params{
		Temperature: req.Temperature,
		TopP: req.TopP,
		MaxOutputTokens: maxTokens,
		StopSequences: req.Stop,
		ReasoningEffort: normalizeReasoningEffort(req.ReasoningEffort),
		GoogleSearch: req.GoogleSearch,
		URLContext: req.URLContext,
	}

	return &entity.RequestContext{
		ReqID: "req_" + randomHex(12),
		ReceivedAt: time.Now(),
		ModelRequested: req.Model,
		Stream: req.Stream,
		Params: params,
		Tools: tools,
		ToolChoice: toolChoice,
		Messages: messages,
		ClientCancel: clock.FromContext(c.Request.Context()),
		ResultSink: make(chan entity.Event, 8),
	}, nil
}

// parseToolChoice accepts the OpenAI shapes: absent, "auto", "none",
// "required", or {"type":"function","function":{"name":"..."}}.
func parseToolChoice(raw json.RawMessage) (entity.ToolChoice, error) {
	if len(raw) == 0 {
		return entity.ToolChoice{Mode: "auto"}, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return entity.ToolChoice{Mode: asString}, nil
	}
	var asObject struct {
		Type string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &asObject); err != nil {
		return entity.ToolChoice{}, fmt.Errorf("invalid tool_choice: %w", err)
	}
	return entity.ToolChoice{Mode: "function", FunctionName: asObject.Function.Name}, nil
}

// normalizeReasoningEffort accepts an integer, -1, "0", or one of
// none/low/medium/high, collapsing them all to the canonical string form.
func normalizeReasoningEffort(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		switch asString {
		case "0":
			return "none"
		case "none", "low", "medium", "high":
			return asString
		default:
			return ""
		}
	}
	var asInt int
	if err := json.Unmarshal(raw, &asInt); err == nil {
		switch {
		case asInt < 0:
			return ""
		case asInt == 0:
			return "none"
		case asInt <= 33:
			return "low"
		case asInt <= 66:
			return "medium"
		default:
			return "high"
		}
	}
	return ""
}

func httpStatusForCode(code string) int {
	return apperr.New(apperr.ErrorCode(code), "").HTTPStatus()
}

func writeSSEChunk(w io.Writer, chunk ChatStreamChunk) {
	data, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func errorResponse(message, errType string) gin.H {
	return gin.H{"error": gin.H{"message": message, "type": errType}}
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(buf)
}
