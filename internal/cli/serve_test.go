package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mark3labs/restmcp/internal/registry"
)

// captureServe swaps serveRunner for the duration of the test. Tests that use
// it do not run in parallel because the runner is package state.
func captureServe(t *testing.T) **ServeConfig {
	t.Helper()
	var captured *ServeConfig
	serveRunner = func(ctx context.Context, cfg *ServeConfig) error {
		captured = cfg
		return nil
	}
	t.Cleanup(func() { serveRunner = runServe })
	return &captured
}

func executeRoot(args ...string) error {
	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	return root.Execute()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestServeConfigFromFlags(t *testing.T) {
	captured := captureServe(t)

	err := executeRoot(
		"--verbose",
		"serve",
		"--input", "spec.yaml",
		"--base-url", "http://api.local/v1",
		"--describe-all-responses",
		"--include-tags", "foo,bar,foo",
		"--exclude-operations", "drop_me",
		"--transport", "HTTP",
		"--addr", "127.0.0.1:9000",
		"--timeout", "15s",
		"--header", "X-Api-Key=abc",
		"--header", "X-Team: core",
		"--forward-headers", "Authorization,X-Request-Id",
		"--watch",
		"--name", "items",
	)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	cfg := *captured
	if cfg == nil {
		t.Fatalf("expected config to be captured")
	}
	if cfg.Input != "spec.yaml" {
		t.Errorf("input mismatch: got %q", cfg.Input)
	}
	if cfg.BaseURL != "http://api.local/v1" {
		t.Errorf("base url mismatch: got %q", cfg.BaseURL)
	}
	if !cfg.DescribeAllResponses || cfg.DescribeFullResponseSchema {
		t.Errorf("describe flags mismatch: all=%v full=%v", cfg.DescribeAllResponses, cfg.DescribeFullResponseSchema)
	}
	if want := []string{"foo", "bar"}; !equalStringSlices(cfg.IncludeTags, want) {
		t.Errorf("include tags mismatch: got %v", cfg.IncludeTags)
	}
	if want := []string{"drop_me"}; !equalStringSlices(cfg.ExcludeOperations, want) {
		t.Errorf("exclude operations mismatch: got %v", cfg.ExcludeOperations)
	}
	if cfg.Transport != "http" {
		t.Errorf("transport mismatch: got %q", cfg.Transport)
	}
	if cfg.Addr != "127.0.0.1:9000" {
		t.Errorf("addr mismatch: got %q", cfg.Addr)
	}
	if cfg.Timeout != 15*time.Second {
		t.Errorf("timeout mismatch: got %v", cfg.Timeout)
	}
	if cfg.Headers["X-Api-Key"] != "abc" || cfg.Headers["X-Team"] != "core" {
		t.Errorf("headers mismatch: got %v", cfg.Headers)
	}
	if want := []string{"Authorization", "X-Request-Id"}; !equalStringSlices(cfg.ForwardHeaders, want) {
		t.Errorf("forward headers mismatch: got %v", cfg.ForwardHeaders)
	}
	if !cfg.Watch {
		t.Errorf("expected watch true")
	}
	if cfg.Name != "items" {
		t.Errorf("name mismatch: got %q", cfg.Name)
	}
	if !cfg.Verbose || cfg.LogLevel != "debug" {
		t.Errorf("verbose should force debug logging: verbose=%v level=%q", cfg.Verbose, cfg.LogLevel)
	}
}

func TestServeConfigDefaults(t *testing.T) {
	captured := captureServe(t)

	if err := executeRoot("serve", "--input", "spec.yaml"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	cfg := *captured
	if cfg.Transport != "stdio" || cfg.Addr != ":8080" {
		t.Errorf("transport defaults mismatch: %q %q", cfg.Transport, cfg.Addr)
	}
	if want := []string{"Authorization"}; !equalStringSlices(cfg.ForwardHeaders, want) {
		t.Errorf("forward headers default mismatch: got %v", cfg.ForwardHeaders)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "console" {
		t.Errorf("log defaults mismatch: %q %q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Timeout != 0 || cfg.Watch {
		t.Errorf("unexpected timeout/watch defaults: %v %v", cfg.Timeout, cfg.Watch)
	}
}

func TestServeConfigPrecedence(t *testing.T) {
	captured := captureServe(t)

	configPath := writeFile(t, t.TempDir(), "config.yaml", strings.TrimSpace(`
input: config-spec.yaml
base_url: http://from-config
includeTags:
  - cfgFoo
exclude-tags: cfgBar
transport: sse
timeout: 5
headers:
  X-Api-Key: from-config
describeFullResponseSchema: yes
logFormat: json
`)+"\n")

	err := executeRoot(
		"--config", configPath,
		"serve",
		"--input", "flag-spec.yaml",
		"--include-tags", "flagTag",
		"--header", "X-Extra=1",
	)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	cfg := *captured
	if cfg.Input != "flag-spec.yaml" {
		t.Errorf("input: want flag-spec.yaml got %q", cfg.Input)
	}
	if cfg.BaseURL != "http://from-config" {
		t.Errorf("base url: want config value got %q", cfg.BaseURL)
	}
	if want := []string{"flagTag"}; !equalStringSlices(cfg.IncludeTags, want) {
		t.Errorf("include tags: want %v got %v", want, cfg.IncludeTags)
	}
	if want := []string{"cfgBar"}; !equalStringSlices(cfg.ExcludeTags, want) {
		t.Errorf("exclude tags: want %v got %v", want, cfg.ExcludeTags)
	}
	if cfg.Transport != "sse" {
		t.Errorf("transport: want sse got %q", cfg.Transport)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("timeout: want 5s got %v", cfg.Timeout)
	}
	if cfg.Headers["X-Api-Key"] != "from-config" || cfg.Headers["X-Extra"] != "1" {
		t.Errorf("headers: got %v", cfg.Headers)
	}
	if !cfg.DescribeFullResponseSchema {
		t.Errorf("expected describeFullResponseSchema from config")
	}
	if cfg.LogFormat != "json" {
		t.Errorf("log format: want json got %q", cfg.LogFormat)
	}
	if cfg.ConfigPath != configPath {
		t.Errorf("config path: got %q", cfg.ConfigPath)
	}
}

func TestServeConfigFromTOML(t *testing.T) {
	captured := captureServe(t)

	configPath := writeFile(t, t.TempDir(), "restmcp.toml", strings.TrimSpace(`
input = "toml-spec.yaml"
transport = "http"
timeout = "1m"
includeOperations = ["a", "b"]
watch = true

[headers]
X-Api-Key = "toml"
`)+"\n")

	if err := executeRoot("--config", configPath, "serve"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	cfg := *captured
	if cfg.Input != "toml-spec.yaml" || cfg.Transport != "http" || !cfg.Watch {
		t.Errorf("toml values not applied: %+v", cfg)
	}
	if cfg.Timeout != time.Minute {
		t.Errorf("timeout: want 1m got %v", cfg.Timeout)
	}
	if want := []string{"a", "b"}; !equalStringSlices(cfg.IncludeOperations, want) {
		t.Errorf("include operations: got %v", cfg.IncludeOperations)
	}
	if cfg.Headers["X-Api-Key"] != "toml" {
		t.Errorf("headers: got %v", cfg.Headers)
	}
}

func TestServeConfigUnknownKey(t *testing.T) {
	captureServe(t)
	configPath := writeFile(t, t.TempDir(), "bad.yaml", "unknown: value\n")

	err := executeRoot("--config", configPath, "serve", "--input", "spec.yaml")
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestServeConfigRejectsBadValues(t *testing.T) {
	captureServe(t)

	cases := map[string][]string{
		"missing input":  {"serve"},
		"transport":      {"serve", "--input", "s.yaml", "--transport", "websocket"},
		"log level":      {"serve", "--input", "s.yaml", "--log-level", "loud"},
		"tag overlap":    {"serve", "--input", "s.yaml", "--include-tags", "a", "--exclude-tags", "a"},
		"op overlap":     {"serve", "--input", "s.yaml", "--include-operations", "x", "--exclude-operations", "x"},
		"header format":  {"serve", "--input", "s.yaml", "--header", "novalue"},
		"negative delay": {"serve", "--input", "s.yaml", "--timeout", "-1s"},
	}
	for name, args := range cases {
		err := executeRoot(args...)
		if err == nil {
			t.Errorf("%s: expected an error", name)
			continue
		}
		if !errors.Is(err, ErrUsage) {
			t.Errorf("%s: expected usage error, got %v", name, err)
		}
	}
}

func TestRunServe_RequiresBaseURL(t *testing.T) {
	t.Parallel()
	specPath := writeFile(t, t.TempDir(), "spec.yaml", minimalSpecYAML)

	cfg := defaultServeConfig()
	cfg.Input = specPath
	cfg.LogLevel = "error"
	err := runServe(context.Background(), &cfg)
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if !strings.Contains(err.Error(), "--base-url") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestRunServe_SpecErrorIsUsageError(t *testing.T) {
	t.Parallel()
	specPath := writeFile(t, t.TempDir(), "spec.yaml", "openapi: 3.0.0\ninfo: [not, a, map]\n")

	cfg := defaultServeConfig()
	cfg.Input = specPath
	cfg.BaseURL = "http://localhost:1"
	cfg.LogLevel = "error"
	err := runServe(context.Background(), &cfg)
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "spec: ") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestRunServe_HTTPStopsOnCancel(t *testing.T) {
	t.Parallel()
	specPath := writeFile(t, t.TempDir(), "spec.yaml", minimalSpecYAML)

	cfg := defaultServeConfig()
	cfg.Input = specPath
	cfg.BaseURL = "http://localhost:1"
	cfg.Transport = "http"
	cfg.Addr = "127.0.0.1:0"
	cfg.LogLevel = "error"
	cfg.Watch = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, &cfg) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("serve did not stop after cancel")
	}
}

func TestReloadCatalog_ReplacesAndKeepsTools(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	specPath := writeFile(t, dir, "spec.yaml", minimalSpecYAML)

	cfg := defaultServeConfig()
	cfg.Input = specPath
	reg := registry.New(registry.Options{})
	reloadCatalog(context.Background(), &cfg, reg, zap.NewNop())
	if got := reg.Snapshot().Len(); got != 1 {
		t.Fatalf("expected 1 tool after first load, got %d", got)
	}

	writeFile(t, dir, "spec.yaml", twoOperationSpecYAML)
	reloadCatalog(context.Background(), &cfg, reg, zap.NewNop())
	if got := reg.Snapshot().Len(); got != 2 {
		t.Fatalf("expected 2 tools after reload, got %d", got)
	}

	// A broken document leaves the installed tools alone.
	writeFile(t, dir, "spec.yaml", "openapi: [broken\n")
	reloadCatalog(context.Background(), &cfg, reg, zap.NewNop())
	if got := reg.Snapshot().Len(); got != 2 {
		t.Fatalf("expected tools to survive a bad reload, got %d", got)
	}
	if reg.Snapshot().Version != 2 {
		t.Fatalf("expected version 2, got %d", reg.Snapshot().Version)
	}
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
