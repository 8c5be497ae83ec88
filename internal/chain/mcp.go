package chain

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// mcpProtocolVersion is the MCP revision the hosted Blockscout server speaks.
const mcpProtocolVersion = "2024-11-05"

// Tool is one entry from the server's tools/list catalog
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// MCPClient talks JSON-RPC 2.0 to a hosted MCP server over HTTP POST.
// Responses may arrive as plain JSON or as an SSE stream; both are handled.
type MCPClient struct {
	endpoint   string
	clientName string
	httpClient *http.Client

	nextID int64

	mu        sync.Mutex
	sessionID string
	ready     bool
}

// NewMCPClient creates a client for the given MCP endpoint
func NewMCPClient(endpoint, clientName string) *MCPClient {
	return &MCPClient{
		endpoint:   endpoint,
		clientName: clientName,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id,omitempty"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type toolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolCallResult struct {
	Content []toolContent `json:"content"`
	IsError bool          `json:"isError"`
}

// Initialize performs the MCP handshake: an initialize request followed by
// the initialized notification. Safe to call more than once.
func (c *MCPClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return nil
	}

	params := map[string]interface{}{
		"protocolVersion": mcpProtocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    c.clientName,
			"version": "1.0.0",
		},
	}
	resp, sessionID, err := c.post(ctx, rpcRequest{
		JSONRPC: "2.0",
		ID:      atomic.AddInt64(&c.nextID, 1),
		Method:  "initialize",
		Params:  params,
	}, "")
	if err != nil {
		return fmt.Errorf("MCP initialize failed: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("MCP initialize rejected: %d %s", resp.Error.Code, resp.Error.Message)
	}
	c.sessionID = sessionID

	// The initialized notification carries no id and expects no reply
	if _, _, err := c.post(ctx, rpcRequest{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	}, c.sessionID); err != nil {
		return fmt.Errorf("MCP initialized notification failed: %w", err)
	}

	c.ready = true
	return nil
}

// ensureSession initializes the client on first use.
func (c *MCPClient) ensureSession(ctx context.Context) error {
	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()
	if ready {
		return nil
	}
	return c.Initialize(ctx)
}

// ListTools fetches the server's tool catalog.
func (c *MCPClient) ListTools(ctx context.Context) ([]Tool, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}

	resp, _, err := c.post(ctx, rpcRequest{
		JSONRPC: "2.0",
		ID:      atomic.AddInt64(&c.nextID, 1),
		Method:  "tools/list",
		Params:  map[string]interface{}{},
	}, c.session())
	if err != nil {
		return nil, fmt.Errorf("tools/list failed: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("tools/list rejected: %d %s", resp.Error.Code, resp.Error.Message)
	}

	var result struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tools/list result: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes a named tool. Tool payloads arrive as text content that is
// usually JSON; when it parses, the parsed document is returned, otherwise the
// raw text is returned as a JSON string.
func (c *MCPClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (json.RawMessage, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	resp, _, err := c.post(ctx, rpcRequest{
		JSONRPC: "2.0",
		ID:      atomic.AddInt64(&c.nextID, 1),
		Method:  "tools/call",
		Params: map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	}, c.session())
	if err != nil {
		return nil, fmt.Errorf("tools/call %s failed: %w", name, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("tools/call %s rejected: %d %s", name, resp.Error.Code, resp.Error.Message)
	}

	var result toolCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tools/call %s result: %w", name, err)
	}
	if len(result.Content) == 0 {
		return resp.Result, nil
	}
	text := result.Content[0].Text
	if result.IsError {
		return nil, fmt.Errorf("tool %s returned error: %s", name, text)
	}

	var parsed json.RawMessage
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		return parsed, nil
	}
	quoted, err := json.Marshal(text)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap tool %s text result: %w", name, err)
	}
	return quoted, nil
}

func (c *MCPClient) session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// post sends one JSON-RPC message and decodes the reply, transparently
// unwrapping SSE framing when the server streams. Notifications (no id)
// return an empty response.
func (c *MCPClient) post(ctx context.Context, rpcReq rpcRequest, sessionID string) (*rpcResponse, string, error) {
	payload, err := json.Marshal(rpcReq)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("User-Agent", "whale-watch/1.0")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to reach MCP server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("MCP server returned status %d: %s", resp.StatusCode, string(body))
	}
	newSession := resp.Header.Get("Mcp-Session-Id")

	// Notifications get no JSON-RPC reply
	if rpcReq.ID == 0 {
		io.Copy(io.Discard, resp.Body)
		return &rpcResponse{}, newSession, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read MCP response: %w", err)
	}

	data := body
	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		data, err = lastSSEData(body)
		if err != nil {
			return nil, "", err
		}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return nil, "", fmt.Errorf("failed to parse MCP response: %w", err)
	}
	return &rpcResp, newSession, nil
}

// lastSSEData extracts the payload of the final event from an SSE body.
// Consecutive data lines within one event are joined per the SSE spec.
func lastSSEData(body []byte) ([]byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var current, last []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(current) > 0 {
				last = current
				current = nil
			}
			continue
		}
		if strings.HasPrefix(line, "data:") {
			current = append(current, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan SSE stream: %w", err)
	}
	if len(current) > 0 {
		last = current
	}
	if len(last) == 0 {
		return nil, fmt.Errorf("SSE stream contained no data event")
	}
	return []byte(strings.Join(last, "\n")), nil
}
