// Package entity holds the small set of shapes carried across every stage
// of the engine: the request context, the queue item it rides in, and the
// canonical internal response the browser session is translated into.
package entity

import (
	"time"

	"github.com/ngoclaw/ngoclaw/gateway/pkg/clock"
)

// Role mirrors OpenAI's message roles.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool Role = "tool"
)

// Message is one entry of the incoming chat history.
type Message struct {
	Role Role
	Content string
	Name string
	ToolCallID string // set when Role == RoleTool: which call this answers
	ToolCalls []ToolCall // set on assistant messages that requested calls
}

// Attachment is a file reference carried on a message.
type Attachment struct {
	Filename string
	MimeType string
	Data []byte
	URL string // alternative to inline Data
}

// Params are the browser-level generation parameters.
type Params struct {
	Temperature *float64
	TopP *float64
	MaxOutputTokens *int
	StopSequences []string
	ReasoningEffort string // "none"|"low"|"medium"|"high", normalized from int/-1/"0"
	GoogleSearch bool
	URLContext bool
}

// ToolChoice mirrors OpenAI's tool_choice field; only "auto"/"none"/"required"
// and a forced-function shape are meaningful to the orchestrator.
type ToolChoice struct {
	Mode string // "auto" | "none" | "required" | "function"
	FunctionName string // set when Mode == "function"
}

// ToolDefinition is one entry of the incoming OpenAI `tools` array.
type ToolDefinition struct {
	Name string
	Description string
	Parameters map[string]interface{}
}

func (t ToolDefinition) GetName() string { return t.Name }
func (t ToolDefinition) GetDescription() string { return t.Description }
func (t ToolDefinition) GetParameters() map[string]interface{} { return t.Parameters }

// RequestContext is the one value created per accepted request. Owned by
// the queue until dequeued, then by the worker. Its fields are not changed
// after construction, except Params.GoogleSearch/URLContext, which function-
// call mode resolution clears when native mode takes over.
type RequestContext struct {
	ReqID string
	ReceivedAt time.Time
	ModelRequested string
	Stream bool
	Params Params
	Tools []ToolDefinition
	ToolChoice ToolChoice
	FunctionMode string // "auto" | "native" | "emulated", resolved from config
	Messages []Message
	Attachments []Attachment
	MCPEndpoint string

	ClientCancel *clock.CancelToken
	ResultSink chan Event // single-producer/single-consumer
}

// EventKind tags the union carried on ResultSink.
type EventKind string

const (
	EventTextDelta EventKind = "text_delta"
	EventReasoningDelta EventKind = "reasoning_delta"
	EventToolCallChunk EventKind = "tool_call_chunk"
	EventFinish EventKind = "finish"
	EventError EventKind = "error"
)

// Event is the unit published on a RequestContext's ResultSink: the
// streaming controller's SSE chunks and the non-streaming final response
// both derive from this same shape.
type Event struct {
	Kind EventKind

	TextDelta string
	ReasoningDelta string

	ToolCallIndex int
	ToolCallID string // set on first fragment of a tool call
	ToolCallName string // set on first fragment of a tool call
	ArgsFragment string

	FinishReason FinishReason
	Response *InternalResponse // set alongside EventFinish for non-streaming callers

	Err *EngineError
}

// EngineError carries a terminal error to the HTTP handler. Code selects
// the HTTP status; the JSON body returned to clients carries only Message
// and Type.
type EngineError struct {
	Code string
	Message string
	Type string
}

// FinishReason mirrors the OpenAI contract.
type FinishReason string

const (
	FinishStop FinishReason = "stop"
	FinishLength FinishReason = "length"
	FinishToolCalls FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
	FinishError FinishReason = "error"
)

// InternalResponse is the canonical shape the response assembler produces,
// regardless of which acquisition layer (wire/helper/DOM) filled it in.
type InternalResponse struct {
	Content string
	HasContent bool
	Reasoning string
	HasReasoning bool
	ToolCalls []ToolCall
	FinishReason FinishReason
	UsageEstimate Usage
	Warnings []string // non-fatal notices surfaced to the client, e.g. a silently disabled grounding tool
}

// Usage is a best-effort token accounting; the browser session never
// exposes exact provider-side counts.
type Usage struct {
	PromptTokens int
	CompletionTokens int
	TotalTokens int
}

// ToolCall is one function call extracted from the model's output, in the
// shape the OpenAI formatter serializes verbatim.
type ToolCall struct {
	ID string // "call_" + 24 lowercase hex
	Name string
	Arguments string // always a valid JSON object's serialization, "{}" if empty
}

// QueueItem orders a RequestContext by arrival; the queue is a plain FIFO
// over these.
type QueueItem struct {
	Ctx *RequestContext
	EnqueueSeq uint64
	EnqueuedAt time.Time
}
