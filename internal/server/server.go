// Package server exposes the registry over MCP using mcp-go, on stdio or on
// one of the HTTP transports.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/mark3labs/restmcp/internal/dispatch"
	"github.com/mark3labs/restmcp/internal/registry"
)

// Transport names accepted by Serve.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// ShutdownTimeout bounds graceful HTTP shutdown.
const ShutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	Name    string
	Version string
	// Instructions is sent to clients on initialize, usually the API title.
	Instructions string
	// ForwardHeaders lists incoming HTTP headers captured for the dispatcher.
	ForwardHeaders []string
	Metrics        *dispatch.Metrics
	Logger         *zap.Logger
}

// Server keeps an mcp-go server in sync with a registry.
type Server struct {
	mcp     *mcpserver.MCPServer
	reg     *registry.Registry
	opts    Options
	logger  *zap.Logger
	mu      sync.Mutex
	version uint64
}

// New builds the MCP server, installs the registry's current tools and
// follows every later refresh.
func New(reg *registry.Registry, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "restmcp"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.ForwardHeaders == nil {
		opts.ForwardHeaders = dispatch.DefaultForwardHeaders
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	serverOpts := []mcpserver.ServerOption{
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	}
	if opts.Instructions != "" {
		serverOpts = append(serverOpts, mcpserver.WithInstructions(opts.Instructions))
	}
	s := &Server{
		mcp:    mcpserver.NewMCPServer(opts.Name, opts.Version, serverOpts...),
		reg:    reg,
		opts:   opts,
		logger: logger.With(zap.String("component", "server")),
	}
	// Subscribe before the first sync so no refresh falls between the two.
	reg.OnRefresh(s.sync)
	s.sync(reg.Snapshot())
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcp }

// sync replaces the whole tool set. Each handler is bound to the entry of the
// snapshot it was listed from.
func (s *Server) sync(snap *registry.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Version < s.version {
		return
	}
	s.version = snap.Version

	entries := snap.Entries()
	tools := make([]mcpserver.ServerTool, 0, len(entries))
	for _, e := range entries {
		tools = append(tools, mcpserver.ServerTool{Tool: e.Tool, Handler: s.handlerFor(e)})
	}
	s.mcp.SetTools(tools...)
	s.logger.Debug("tool set installed", zap.Uint64("version", snap.Version), zap.Int("tools", len(tools)))
}

func (s *Server) handlerFor(e *registry.Entry) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.reg.Invoke(ctx, e, req.GetArguments()), nil
	}
}

// captureHeaders stores allow-listed request headers for the dispatcher.
func (s *Server) captureHeaders(ctx context.Context, r *http.Request) context.Context {
	h := make(http.Header)
	for _, name := range s.opts.ForwardHeaders {
		if v := r.Header.Values(name); len(v) > 0 {
			h[http.CanonicalHeaderKey(name)] = v
		}
	}
	return dispatch.WithForwardedHeaders(ctx, h)
}

// Handler returns the HTTP surface for transport: the MCP endpoint plus
// /metrics and /healthz.
func (s *Server) Handler(transport string) (http.Handler, error) {
	mux := http.NewServeMux()
	switch transport {
	case TransportHTTP:
		h := mcpserver.NewStreamableHTTPServer(s.mcp,
			mcpserver.WithStateLess(true),
			mcpserver.WithHTTPContextFunc(s.captureHeaders),
		)
		mux.Handle("/mcp", h)
	case TransportSSE:
		h := mcpserver.NewSSEServer(s.mcp,
			mcpserver.WithSSEContextFunc(s.captureHeaders),
		)
		mux.Handle("/sse", h)
		mux.Handle("/message", h)
	default:
		return nil, fmt.Errorf("transport %q has no HTTP handler", transport)
	}
	if s.opts.Metrics != nil {
		mux.Handle("/metrics", s.opts.Metrics.Handler())
	}
	mux.HandleFunc("/healthz", s.healthz)
	return mux, nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	snap := s.reg.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"status":"ok","tools":%d,"version":%d}`, snap.Len(), snap.Version)
}

// ServeStdio speaks MCP over in and out until ctx ends or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("serving MCP over stdio")
	err := mcpserver.NewStdioServer(s.mcp).Listen(ctx, in, out)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// ServeHTTP listens on addr until ctx ends, then shuts down. Open SSE
// streams and in-flight calls are canceled through the base context so
// shutdown does not wait on them.
func (s *Server) ServeHTTP(ctx context.Context, transport, addr string) error {
	handler, err := s.Handler(transport)
	if err != nil {
		return err
	}
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving MCP over HTTP",
			zap.String("transport", transport),
			zap.String("addr", addr),
			zap.String("endpoint", endpointFor(transport)),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	cancelBase()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Serve dispatches to the stdio or HTTP transports.
func (s *Server) Serve(ctx context.Context, transport, addr string, in io.Reader, out io.Writer) error {
	switch strings.ToLower(transport) {
	case "", TransportStdio:
		return s.ServeStdio(ctx, in, out)
	case TransportSSE, TransportHTTP:
		return s.ServeHTTP(ctx, strings.ToLower(transport), addr)
	}
	return fmt.Errorf("unknown transport %q", transport)
}

func endpointFor(transport string) string {
	if transport == TransportSSE {
		return "/sse"
	}
	return "/mcp"
}
