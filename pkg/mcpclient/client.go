// Package mcpclient is a minimal MCP client over HTTP that propagates the
// active trace context into every tools/call via the _meta field.
package mcpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/longregen/mcptrace/pkg/mcp"
	"github.com/longregen/mcptrace/pkg/mcptrace"
)

// Client talks JSON-RPC to an MCP server's /mcp endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client. The default client
// uses a TracingTransport and a 30s timeout.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the given /mcp endpoint URL.
func New(endpoint string, opts ...ClientOption) *Client {
	c := &Client{endpoint: endpoint}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{
			Transport: mcptrace.NewTracingTransport(nil),
			Timeout:   30 * time.Second,
		}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Initialize performs the MCP handshake.
func (c *Client) Initialize(ctx context.Context) (*mcp.InitializeResult, error) {
	var result mcp.InitializeResult
	if err := c.call(ctx, mcp.MethodInitialize, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListTools fetches the server's tool definitions.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	var result mcp.ToolsListResult
	if err := c.call(ctx, mcp.MethodToolsList, nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a tool. The current trace context of ctx is injected into
// the params' _meta carrier so the server can link its span to this trace.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.ToolCallResult, error) {
	params := mcp.ToolCallParams{
		Name:      name,
		Arguments: args,
		Meta:      mcptrace.InjectMeta(ctx),
	}
	var result mcp.ToolCallResult
	if err := c.call(ctx, mcp.MethodToolsCall, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	req := mcp.NewRequest(newRequestID(), method, params)
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", method, httpResp.StatusCode)
	}

	var resp mcp.Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s: server error %d: %w", method, resp.Error.Code, resp.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func newRequestID() json.RawMessage {
	id, err := nanoid.New(12)
	if err != nil {
		id = strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return json.RawMessage(strconv.Quote("req_" + id))
}
