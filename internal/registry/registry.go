// Package registry holds the live set of tools and dispatches calls against
// it. The set is swapped whole on refresh, so readers never see a mix of two
// catalogs.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/mark3labs/restmcp/internal/dispatch"
	"github.com/mark3labs/restmcp/internal/spec"
	"github.com/mark3labs/restmcp/internal/tools"
)

// Entry is one installed tool.
type Entry struct {
	Descriptor tools.ToolDescriptor
	Tool       mcp.Tool
	// validator is nil when the input schema could not be compiled.
	validator *tools.Validator
}

// Name returns the tool name.
func (e *Entry) Name() string { return e.Descriptor.Name }

// Snapshot is an immutable tool set.
type Snapshot struct {
	Version uint64
	BuiltAt time.Time
	entries []*Entry
	byName  map[string]*Entry
}

// Len returns the number of tools.
func (s *Snapshot) Len() int { return len(s.entries) }

// Get looks a tool up by name.
func (s *Snapshot) Get(name string) (*Entry, bool) {
	e, ok := s.byName[name]
	return e, ok
}

// Entries returns the tools in catalog order.
func (s *Snapshot) Entries() []*Entry {
	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Tools returns the MCP tool definitions in catalog order.
func (s *Snapshot) Tools() []mcp.Tool {
	out := make([]mcp.Tool, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Tool
	}
	return out
}

// Options configures a Registry.
type Options struct {
	Tools tools.Options
	// Client performs upstream calls; calls fail with an error result when nil.
	Client *dispatch.Client
	Logger *zap.Logger
}

// Registry owns the current snapshot.
type Registry struct {
	opts    Options
	logger  *zap.Logger
	metrics *dispatch.Metrics

	current atomic.Pointer[Snapshot]
	version atomic.Uint64

	mu          sync.Mutex
	subscribers []func(*Snapshot)
}

// New returns a registry with an empty snapshot installed.
func New(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		opts:   opts,
		logger: logger.With(zap.String("component", "registry")),
	}
	if opts.Client != nil {
		r.metrics = opts.Client.Metrics()
	}
	r.current.Store(&Snapshot{BuiltAt: time.Now(), byName: map[string]*Entry{}})
	return r
}

// Build derives a snapshot from ops without installing it.
func (r *Registry) Build(ops []spec.OperationDescriptor) (*Snapshot, error) {
	descs, err := tools.Build(ops, r.opts.Tools)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		BuiltAt: time.Now(),
		entries: make([]*Entry, 0, len(descs)),
		byName:  make(map[string]*Entry, len(descs)),
	}
	for _, d := range descs {
		tool, err := d.MCPTool()
		if err != nil {
			return nil, &spec.SpecError{
				Code:      spec.BuildError,
				Message:   "build: " + err.Error(),
				Operation: d.Operation.Method + " " + d.Operation.Path,
				Cause:     err,
			}
		}
		e := &Entry{Descriptor: d, Tool: tool}
		if v, verr := tools.NewValidator(d.Name, d.InputSchema); verr != nil {
			r.logger.Warn("input schema not usable for validation, checking required arguments only",
				zap.String("tool", d.Name),
				zap.Error(verr),
			)
		} else {
			e.validator = v
		}
		snap.entries = append(snap.entries, e)
		snap.byName[d.Name] = e
	}
	return snap, nil
}

// Refresh builds and installs a new snapshot, then notifies subscribers. On
// error the current snapshot stays installed.
func (r *Registry) Refresh(ops []spec.OperationDescriptor) (*Snapshot, error) {
	snap, err := r.Build(ops)
	if err != nil {
		r.logger.Error("refresh failed, keeping current tools", zap.Error(err))
		return nil, err
	}

	r.mu.Lock()
	snap.Version = r.version.Add(1)
	r.current.Store(snap)
	subs := make([]func(*Snapshot), len(r.subscribers))
	copy(subs, r.subscribers)
	r.mu.Unlock()

	r.logger.Info("tools refreshed",
		zap.Uint64("version", snap.Version),
		zap.Int("tools", snap.Len()),
	)
	for _, fn := range subs {
		fn(snap)
	}
	return snap, nil
}

// OnRefresh registers fn to run after every successful refresh.
func (r *Registry) OnRefresh(fn func(*Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

// Snapshot returns the installed snapshot.
func (r *Registry) Snapshot() *Snapshot { return r.current.Load() }

// Get looks a tool up in the installed snapshot.
func (r *Registry) Get(name string) (*Entry, bool) { return r.Snapshot().Get(name) }

// List returns the installed tool definitions.
func (r *Registry) List() []mcp.Tool { return r.Snapshot().Tools() }

// Call invokes name from the installed snapshot.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) *mcp.CallToolResult {
	e, ok := r.Get(name)
	if !ok {
		return mcp.NewToolResultError("unknown tool: " + name)
	}
	return r.Invoke(ctx, e, args)
}

// Invoke runs one call against a specific entry: validate, reconstruct,
// dispatch, then convert the outcome.
func (r *Registry) Invoke(ctx context.Context, e *Entry, args map[string]any) *mcp.CallToolResult {
	name := e.Name()
	log := r.logger.With(
		zap.String("call_id", uuid.NewString()),
		zap.String("tool", name),
	)
	start := time.Now()

	resp, err := r.invoke(ctx, e, args)
	outcome := dispatch.Outcome(err)
	r.metrics.RecordCall(name, outcome, time.Since(start))

	fields := []zap.Field{zap.String("outcome", outcome), zap.Duration("duration", time.Since(start))}
	if resp != nil {
		fields = append(fields, zap.Int("status", resp.Status))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
		log.Warn("tool call failed", fields...)
	} else {
		log.Info("tool call", fields...)
	}
	return dispatch.ToolResult(resp, err)
}

var errNoClient = errors.New("no upstream base URL configured")

func (r *Registry) invoke(ctx context.Context, e *Entry, args map[string]any) (*dispatch.Response, error) {
	m := e.Descriptor.Mapping
	if e.validator != nil {
		if err := e.validator.Validate(m.WithDefaults(args)); err != nil {
			return nil, err
		}
	}
	req, err := m.Reconstruct(args)
	if err != nil {
		return nil, err
	}
	if r.opts.Client == nil {
		return nil, &dispatch.TransportError{Method: req.Method, URL: req.Path, Err: errNoClient}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", dispatch.ErrCanceled, err)
	}
	return r.opts.Client.Do(ctx, req)
}
