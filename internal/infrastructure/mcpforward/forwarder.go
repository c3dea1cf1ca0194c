// Package mcpforward implements the optional MCP tool-forwarding plugin:
// at most one external server, contacted over JSON-RPC with a
// {name, arguments} -> {result}/{error} request when the
// native/emulated parser produces a call the engine itself cannot serve.
package mcpforward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Forwarder holds the single configured endpoint, or none — in which case
// every ForwardCall refuses immediately, per 's "refuses execution
// when no endpoint configured".
type Forwarder struct {
	endpoint string
	client *http.Client
	logger *zap.Logger

	idCounter int
	idMu sync.Mutex
}

// New builds a forwarder. An empty endpoint makes every call refuse.
func New(endpoint string, timeout time.Duration, logger *zap.Logger) *Forwarder {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Forwarder{
		endpoint: endpoint,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "mcp-forwarder")),
	}
}

// Configured reports whether a forwarding endpoint is set.
func (f *Forwarder) Configured() bool { return f.endpoint != "" }

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID int `json:"id"`
	Method string `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID int `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error *jsonRPCError `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code int `json:"code"`
	Message string `json:"message"`
}

// ForwardCall forwards one {name, arguments} tool call. Returns the
// stringified result content, or an error describing why the call was
// refused or failed.
func (f *Forwarder) ForwardCall(ctx context.Context, name string, arguments map[string]interface{}) (string, error) {
	if !f.Configured() {
		return "", fmt.Errorf("mcpforward: no endpoint configured, refusing to execute %q", name)
	}

	params := map[string]interface{}{"name": name, "arguments": arguments}
	resultRaw, err := f.call(ctx, "tools/call", params)
	if err != nil {
		return "", fmt.Errorf("mcp tools/call %s: %w", name, err)
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(resultRaw, &result); err != nil {
		return string(resultRaw), nil
	}
	if result.IsError {
		if len(result.Content) > 0 {
			return "", fmt.Errorf("mcp tool error: %s", result.Content[0].Text)
		}
		return "", fmt.Errorf("mcp tool returned error without message")
	}

	var output string
	for _, c := range result.Content {
		if c.Type == "text" {
			output += c.Text
		}
	}
	return output, nil
}

func (f *Forwarder) nextID() int {
	f.idMu.Lock()
	defer f.idMu.Unlock()
	f.idCounter++
	return f.idCounter
}

func (f *Forwarder) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: f.nextID(), Method: method, Params: params})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mcp http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("mcp server status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode mcp response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("mcp rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}
