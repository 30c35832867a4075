package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mark3labs/restmcp/internal/dispatch"
	"github.com/mark3labs/restmcp/internal/logging"
	"github.com/mark3labs/restmcp/internal/registry"
	"github.com/mark3labs/restmcp/internal/server"
	"github.com/mark3labs/restmcp/internal/spec"
	"github.com/mark3labs/restmcp/internal/tools"
	"github.com/mark3labs/restmcp/internal/watch"
)

var serveRunner = runServe

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an OpenAPI document's operations as MCP tools",
		Long: "Serve an OpenAPI document's operations as MCP tools over stdio, SSE or streamable HTTP. " +
			"Tool calls are forwarded to the API at --base-url (or the document's first server).",
		Example: strings.TrimSpace(`  restmcp serve --input openapi.yaml --base-url http://localhost:8000
  restmcp serve --input https://api.example.com/openapi.json --transport http --addr :9000
  restmcp --config restmcp.yaml serve --watch`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveServeConfig(cmd)
			if err != nil {
				return err
			}
			return serveRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	addCatalogFlags(flags)
	flags.String("base-url", "", "Base URL of the upstream API (defaults to the document's first server)")
	flags.String("transport", "", "MCP transport (stdio|sse|http); defaults to stdio")
	flags.String("addr", "", "Listen address for the sse and http transports; defaults to :8080")
	flags.Duration("timeout", 0, "Per-call upstream timeout, e.g. 30s (0 disables)")
	flags.StringArray("header", nil, "Static header sent upstream as Name=Value (repeatable)")
	flags.StringSlice("forward-headers", nil, "Incoming HTTP headers forwarded upstream; defaults to Authorization")
	flags.Bool("watch", false, "Reload the tools when the local input file changes")
	flags.String("name", "", "Server name reported to clients (defaults to the document title)")

	return cmd
}

func newLogger(cfg *ServeConfig) (*zap.Logger, error) {
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return nil, newUsageError(err.Error())
	}
	return logger, nil
}

func loadDocument(ctx context.Context, cfg *ServeConfig, logger *zap.Logger) (*spec.Document, error) {
	doc, err := spec.Load(ctx, cfg.Input, spec.WithLogger(logger))
	if err != nil {
		return nil, specUsageError(err)
	}
	return doc, nil
}

func buildCatalog(ctx context.Context, cfg *ServeConfig, doc *spec.Document) ([]spec.OperationDescriptor, error) {
	ops, err := spec.BuildCatalog(ctx, doc,
		spec.WithIncludeTags(cfg.IncludeTags),
		spec.WithExcludeTags(cfg.ExcludeTags),
		spec.WithIncludeOperations(cfg.IncludeOperations),
		spec.WithExcludeOperations(cfg.ExcludeOperations),
		spec.WithMethods(cfg.Methods),
		spec.WithPathPatterns(cfg.Paths),
		spec.WithAllowDuplicateIDs(cfg.AllowDuplicateIDs),
		spec.WithAllResponses(cfg.DescribeAllResponses),
	)
	if err != nil {
		return nil, specUsageError(err)
	}
	return ops, nil
}

func toolOptions(cfg *ServeConfig) tools.Options {
	return tools.Options{
		DescribeAllResponses:       cfg.DescribeAllResponses,
		DescribeFullResponseSchema: cfg.DescribeFullResponseSchema,
	}
}

func runServe(ctx context.Context, cfg *ServeConfig) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	doc, err := loadDocument(ctx, cfg, logger)
	if err != nil {
		return err
	}
	ops, err := buildCatalog(ctx, cfg, doc)
	if err != nil {
		return err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = doc.ServerURL()
	}
	if baseURL == "" {
		return newUsageError("serve: --base-url is required when the document declares no servers")
	}

	metrics := dispatch.NewMetrics("restmcp")
	client, err := dispatch.NewClient(dispatch.Options{
		BaseURL:        baseURL,
		Timeout:        cfg.Timeout,
		Headers:        cfg.Headers,
		ForwardHeaders: cfg.ForwardHeaders,
		Logger:         logger,
		Metrics:        metrics,
	})
	if err != nil {
		return newUsageError(fmt.Sprintf("serve: %v", err))
	}

	reg := registry.New(registry.Options{Tools: toolOptions(cfg), Client: client, Logger: logger})
	if _, err := reg.Refresh(ops); err != nil {
		return specUsageError(err)
	}
	logger.Info("catalog built",
		zap.String("source", doc.Source),
		zap.Int("operations", len(ops)),
		zap.Int("tools", reg.Snapshot().Len()),
		zap.String("base_url", client.BaseURL()),
	)

	name := cfg.Name
	if name == "" {
		name = doc.Title()
	}
	srv := server.New(reg, server.Options{
		Name:           name,
		Version:        Version,
		Instructions:   doc.Title(),
		ForwardHeaders: cfg.ForwardHeaders,
		Metrics:        metrics,
		Logger:         logger,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// stdio ends when the client closes stdin; stop the watcher too.
		defer cancel()
		return srv.Serve(gctx, cfg.Transport, cfg.Addr, os.Stdin, os.Stdout)
	})

	if cfg.Watch {
		if spec.IsRemote(cfg.Input) {
			logger.Warn("--watch ignored for remote input", zap.String("input", cfg.Input))
		} else {
			w, err := watch.NewFile(cfg.Input, watch.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			g.Go(func() error {
				return w.Run(gctx, func() { reloadCatalog(gctx, cfg, reg, logger) })
			})
		}
	}

	return g.Wait()
}

// reloadCatalog rebuilds the tools from the input document. Failures are
// logged and the current tools stay installed.
func reloadCatalog(ctx context.Context, cfg *ServeConfig, reg *registry.Registry, logger *zap.Logger) {
	doc, err := spec.Load(ctx, cfg.Input, spec.WithLogger(logger))
	if err != nil {
		logger.Error("reload failed, keeping current tools", zap.Error(err))
		return
	}
	ops, err := buildCatalog(ctx, cfg, doc)
	if err != nil {
		logger.Error("reload failed, keeping current tools", zap.Error(err))
		return
	}
	// Refresh logs its own failures.
	_, _ = reg.Refresh(ops)
}
