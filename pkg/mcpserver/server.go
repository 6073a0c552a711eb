// Package mcpserver implements a small MCP tool server with a middleware
// chain, serving newline-delimited JSON over stdio or JSON-RPC over HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/longregen/mcptrace/pkg/mcp"
	"github.com/longregen/mcptrace/pkg/mcptrace"
)

// ToolFunc executes one registered tool.
type ToolFunc func(ctx context.Context, args map[string]any) (mcp.ToolCallResult, error)

// Server dispatches MCP requests to registered tools. Every request runs
// through the middleware chain as a mcptrace.CallContext, so middleware
// decides per method whether to act; the tracing middleware only spans
// tools/call.
type Server struct {
	name    string
	version string
	logger  *slog.Logger

	mu          sync.RWMutex
	tools       []mcp.Tool
	handlers    map[string]ToolFunc
	middlewares []mcptrace.ToolMiddleware
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// New creates a tool server identified by name and version in the MCP
// initialize handshake.
func New(name, version string, opts ...ServerOption) *Server {
	s := &Server{
		name:     name,
		version:  version,
		handlers: make(map[string]ToolFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// RegisterTool adds a tool definition and its handler. Re-registering a name
// replaces the handler but keeps the first definition's list position.
func (s *Server) RegisterTool(tool mcp.Tool, fn ToolFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handlers[tool.Name]; !exists {
		s.tools = append(s.tools, tool)
	}
	s.handlers[tool.Name] = fn
}

// Use appends a middleware to the chain. This is the registration hook that
// mcptrace.Instrument looks for. Middleware run in registration order, the
// first registered being outermost.
func (s *Server) Use(mw mcptrace.ToolMiddleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, mw)
}

// Run serves newline-delimited JSON-RPC over the given reader/writer pair,
// returning when the input closes or ctx is cancelled.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	decoder := json.NewDecoder(in)
	encoder := json.NewEncoder(out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var req mcp.Request
		if err := decoder.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			s.logger.Error("decode request failed", "error", err)
			continue
		}

		resp := s.HandleRequest(ctx, &req)
		if resp == nil {
			continue
		}
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("encode response failed", "error", err)
		}
	}
}

// RunStdio serves the process's stdin/stdout, the standard MCP transport for
// subprocess servers.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, os.Stdin, os.Stdout)
}

// HandleRequest dispatches a single request. Notifications return nil.
func (s *Server) HandleRequest(ctx context.Context, req *mcp.Request) *mcp.Response {
	s.logger.Info("handling request", "method", req.Method, "id", string(req.ID))

	if req.Method == mcp.MethodInitialized {
		return nil
	}

	call, decodeErr := s.callContext(req)
	if decodeErr != nil {
		return mcp.NewErrorResponse(req.ID, mcp.ErrCodeInvalidParams, fmt.Sprintf("invalid params: %v", decodeErr))
	}

	result, err := s.chain(s.dispatch)(ctx, call)
	if err != nil {
		if req.Method == mcp.MethodToolsCall {
			// Tool execution failures are results with isError set, not
			// protocol errors.
			return mcp.NewResponse(req.ID, mcp.NewToolError(fmt.Sprintf("Error: %v", err)))
		}
		var rpcErr *mcp.Error
		if errors.As(err, &rpcErr) {
			return mcp.NewErrorResponse(req.ID, rpcErr.Code, rpcErr.Message)
		}
		return mcp.NewErrorResponse(req.ID, mcp.ErrCodeInternalError, err.Error())
	}
	if req.IsNotification() {
		return nil
	}
	return mcp.NewResponse(req.ID, result)
}

// callContext builds the structural invocation view handed to middleware.
func (s *Server) callContext(req *mcp.Request) (*mcptrace.CallContext, error) {
	call := &mcptrace.CallContext{
		Method: req.Method,
		Source: "client",
	}
	if req.Method != mcp.MethodToolsCall {
		return call, nil
	}
	params, err := mcp.DecodeParams(req.Params)
	if err != nil {
		return nil, err
	}
	call.Message = mcptrace.Message{Name: params.Name, Arguments: params.Arguments}
	if params.Meta != nil {
		call.RequestContext = &mcptrace.RequestContext{Meta: params.Meta}
	} else {
		call.RequestContext = &mcptrace.RequestContext{}
	}
	return call, nil
}

// dispatch is the innermost handler below the middleware chain.
func (s *Server) dispatch(ctx context.Context, call *mcptrace.CallContext) (any, error) {
	switch call.Method {
	case mcp.MethodInitialize:
		return mcp.InitializeResult{
			ProtocolVersion: mcp.ProtocolVersion,
			Capabilities: mcp.ServerCapabilities{
				Tools: &mcp.ToolsCapability{ListChanged: false},
			},
			ServerInfo: mcp.ServerInfo{Name: s.name, Version: s.version},
		}, nil
	case mcp.MethodToolsList:
		s.mu.RLock()
		tools := make([]mcp.Tool, len(s.tools))
		copy(tools, s.tools)
		s.mu.RUnlock()
		return mcp.ToolsListResult{Tools: tools}, nil
	case mcp.MethodPing:
		return map[string]any{}, nil
	case mcp.MethodToolsCall:
		return s.callTool(ctx, call)
	default:
		return nil, &mcp.Error{Code: mcp.ErrCodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", call.Method)}
	}
}

func (s *Server) callTool(ctx context.Context, call *mcptrace.CallContext) (any, error) {
	s.mu.RLock()
	fn, ok := s.handlers[call.Message.Name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", call.Message.Name)
	}
	result, err := fn(ctx, call.Message.Arguments)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// chain wraps the base handler in the registered middleware, last registered
// innermost.
func (s *Server) chain(base mcptrace.Handler) mcptrace.Handler {
	s.mu.RLock()
	middlewares := make([]mcptrace.ToolMiddleware, len(s.middlewares))
	copy(middlewares, s.middlewares)
	s.mu.RUnlock()

	h := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		mw, next := middlewares[i], h
		h = func(ctx context.Context, call *mcptrace.CallContext) (any, error) {
			return mw.OnCallTool(ctx, call, next)
		}
	}
	return h
}
