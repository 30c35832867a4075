package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mark3labs/restmcp/internal/emitter/pyemitter"
	"github.com/mark3labs/restmcp/internal/tools"
)

const defaultGenerateDir = "mcp_server"

// GenerateConfig is ServeConfig plus where the generated project goes.
type GenerateConfig struct {
	ServeConfig
	OutDir string
	Force  bool
	DryRun bool
}

var generateRunner = runGenerate

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a standalone Python MCP server project",
		Long: "Build the tool catalog for an OpenAPI document and write a Python MCP server " +
			"project (server.py, tools.json, requirements.txt, README.md) that serves the same tools.",
		Example: strings.TrimSpace(`  restmcp generate --input openapi.yaml --base-url http://localhost:8000
  restmcp --config restmcp.yaml generate --out ./items-mcp --force --dry-run`),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveCfg, err := resolveServeConfig(cmd)
			if err != nil {
				return err
			}
			cfg := &GenerateConfig{ServeConfig: *serveCfg}
			if cfg.OutDir, err = cmd.Flags().GetString("out"); err != nil {
				return err
			}
			if cfg.Force, err = cmd.Flags().GetBool("force"); err != nil {
				return err
			}
			if cfg.DryRun, err = cmd.Flags().GetBool("dry-run"); err != nil {
				return err
			}
			cfg.OutDir = strings.TrimSpace(cfg.OutDir)
			if cfg.OutDir == "" {
				cfg.OutDir = defaultGenerateDir
			}
			return generateRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	addCatalogFlags(flags)
	flags.String("base-url", "", "Upstream API base URL baked into the project (defaults to the document's servers, then "+pyemitter.DefaultBaseURL+")")
	flags.String("name", "", "Server name (defaults to the document title)")
	flags.String("out", defaultGenerateDir, "Output directory")
	flags.Bool("force", false, "Write into a non-empty output directory")
	flags.Bool("dry-run", false, "Preview planned outputs without writing files")

	return cmd
}

func runGenerate(ctx context.Context, cfg *GenerateConfig) error {
	logger, err := newLogger(&cfg.ServeConfig)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	doc, err := loadDocument(ctx, &cfg.ServeConfig, logger)
	if err != nil {
		return err
	}
	ops, err := buildCatalog(ctx, &cfg.ServeConfig, doc)
	if err != nil {
		return err
	}
	descriptors, err := tools.Build(ops, toolOptions(&cfg.ServeConfig))
	if err != nil {
		return specUsageError(err)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = doc.ServerURL()
	}
	name := cfg.Name
	if name == "" {
		name = doc.Title()
	}
	var version string
	if doc.Spec != nil && doc.Spec.Info != nil {
		version = doc.Spec.Info.Version
	}

	absOut, err := filepath.Abs(cfg.OutDir)
	if err != nil {
		return fmt.Errorf("generate: resolve output path: %w", err)
	}
	res, err := pyemitter.Emit(ctx, pyemitter.Project{
		Name:    name,
		Title:   doc.Title(),
		Version: version,
		BaseURL: baseURL,
		Tools:   descriptors,
	}, pyemitter.Options{OutDir: absOut, Force: cfg.Force, DryRun: cfg.DryRun})
	if err != nil {
		return wrapOutputError(err, absOut)
	}
	logger.Info("project generated",
		zap.String("out", absOut),
		zap.String("name", res.Name),
		zap.Int("tools", len(descriptors)),
		zap.Bool("dry_run", cfg.DryRun),
	)

	if cfg.DryRun {
		printPlan(absOut, res.Planned)
		fmt.Fprintf(os.Stdout, "Tools (%d):\n", len(descriptors))
		for _, d := range descriptors {
			fmt.Fprintf(os.Stdout, "- %s\n", d.Name)
		}
		return nil
	}
	fmt.Fprintf(os.Stdout, "Wrote %d files to %s\n", len(res.Planned), absOut)
	return nil
}

func printPlan(outDir string, planned []pyemitter.PlannedFile) {
	fmt.Fprintf(os.Stdout, "Planned writes to %s (%d files):\n", outDir, len(planned))
	for _, p := range planned {
		fmt.Fprintf(os.Stdout, "- %s\n", p.RelPath)
	}
}

func wrapOutputError(err error, outDir string) error {
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "not empty"):
		return newUsageError(fmt.Sprintf("generate: output directory %s is not empty\nHint: pass --force or choose a different --out.", outDir))
	case strings.Contains(lower, "not a directory"):
		return newUsageError(fmt.Sprintf("generate: output path %s is not a directory", outDir))
	case strings.Contains(lower, "permission denied"):
		return newUsageError(fmt.Sprintf("generate: cannot write to %s: permission denied", outDir))
	}
	return err
}
