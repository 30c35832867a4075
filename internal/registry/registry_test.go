package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/restmcp/internal/dispatch"
	"github.com/mark3labs/restmcp/internal/spec"
)

const petsSpec = `openapi: 3.0.0
info: { title: Pets, version: "1" }
paths:
  /pets/{id}:
    get:
      operationId: get_pet
      parameters:
        - { in: path, name: id, required: true, schema: { type: integer } }
      responses:
        "200": { description: ok }
  /pets:
    post:
      operationId: create_pet
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [name]
              properties:
                name: { type: string }
      responses:
        "201": { description: created }
`

func catalog(t *testing.T, raw string) []spec.OperationDescriptor {
	t.Helper()
	doc, err := spec.LoadData(context.Background(), []byte(raw))
	require.NoError(t, err)
	ops, err := spec.BuildCatalog(context.Background(), doc)
	require.NoError(t, err)
	return ops
}

func newRegistry(t *testing.T, h http.HandlerFunc) (*Registry, *dispatch.Metrics) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	metrics := dispatch.NewMetrics("restmcp")
	client, err := dispatch.NewClient(dispatch.Options{BaseURL: srv.URL, Metrics: metrics})
	require.NoError(t, err)
	return New(Options{Client: client}), metrics
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	return res.Content[0].(mcp.TextContent).Text
}

func TestRegistry_StartsEmpty(t *testing.T) {
	t.Parallel()
	r := New(Options{})
	assert.Equal(t, 0, r.Snapshot().Len())
	assert.Empty(t, r.List())

	res := r.Call(context.Background(), "get_pet", nil)
	assert.True(t, res.IsError)
	assert.Equal(t, "unknown tool: get_pet", resultText(t, res))
}

func TestRegistry_RefreshAndCall(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	r, metrics := newRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"path":%q}`, req.URL.Path)
	})

	snap, err := r.Refresh(catalog(t, petsSpec))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Version)
	assert.Equal(t, 2, snap.Len())

	names := []string{}
	for _, tool := range r.List() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"get_pet", "create_pet"}, names)

	res := r.Call(context.Background(), "get_pet", map[string]any{"id": 5.0})
	require.False(t, res.IsError, resultText(t, res))
	assert.Equal(t, map[string]any{"path": "/pets/5"}, res.StructuredContent)
	scrape := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, scrape.Body.String(), `restmcp_tool_calls_total{outcome="ok",tool="get_pet"} 1`)
	assert.Contains(t, scrape.Body.String(), `restmcp_upstream_responses_total{status="200",tool="get_pet"} 1`)
	assert.EqualValues(t, 1, hits.Load())
}

func TestRegistry_ValidationNeverReachesNetwork(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	r, _ := newRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		hits.Add(1)
	})
	_, err := r.Refresh(catalog(t, petsSpec))
	require.NoError(t, err)

	res := r.Call(context.Background(), "create_pet", map[string]any{"name": 3.0})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "validation error:")

	res = r.Call(context.Background(), "get_pet", map[string]any{})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "missing required arguments: id")
	assert.EqualValues(t, 0, hits.Load())
}

func TestRegistry_UpstreamErrorIsToolError(t *testing.T) {
	t.Parallel()
	r, _ := newRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, "taken")
	})
	_, err := r.Refresh(catalog(t, petsSpec))
	require.NoError(t, err)

	res := r.Call(context.Background(), "create_pet", map[string]any{"name": "rex"})
	assert.True(t, res.IsError)
	assert.Equal(t, "upstream error: HTTP 409 Conflict\ntaken", resultText(t, res))
}

func TestRegistry_FailedRefreshKeepsSnapshot(t *testing.T) {
	t.Parallel()
	r := New(Options{})
	first, err := r.Refresh(catalog(t, petsSpec))
	require.NoError(t, err)

	notified := 0
	r.OnRefresh(func(*Snapshot) { notified++ })
	_, err = r.Refresh([]spec.OperationDescriptor{{OperationID: "broken"}})
	require.Error(t, err)
	assert.True(t, spec.IsBuildError(err))
	assert.Same(t, first, r.Snapshot())
	assert.Equal(t, 0, notified)
}

func TestRegistry_BuildDoesNotInstall(t *testing.T) {
	t.Parallel()
	r := New(Options{})
	snap, err := r.Build(catalog(t, petsSpec))
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())
	assert.Equal(t, 0, r.Snapshot().Len())
}

func TestRegistry_ConcurrentRefreshAndList(t *testing.T) {
	t.Parallel()
	small := catalog(t, petsSpec)[:1]
	full := catalog(t, petsSpec)
	r := New(Options{})

	var seen atomic.Int32
	r.OnRefresh(func(s *Snapshot) { seen.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				ops := small
				if (i+j)%2 == 0 {
					ops = full
				}
				_, err := r.Refresh(ops)
				assert.NoError(t, err)
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				snap := r.Snapshot()
				n := len(snap.Tools())
				// A snapshot is either the one-tool or the two-tool catalog.
				assert.Contains(t, []int{0, 1, 2}, n)
				for _, e := range snap.Entries() {
					got, ok := snap.Get(e.Name())
					assert.True(t, ok)
					assert.Same(t, e, got)
				}
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 100, seen.Load())
	assert.Equal(t, uint64(100), r.Snapshot().Version)
}
