package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mark3labs/restmcp/internal/registry"
)

// ToolsConfig is ServeConfig plus the listing format.
type ToolsConfig struct {
	ServeConfig
	Format string
}

var toolsRunner = runTools

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the MCP tools an OpenAPI document produces",
		Long: "Build the tool catalog for an OpenAPI document and print it, as the JSON " +
			"a client would receive from tools/list or as a table.",
		Example: strings.TrimSpace(`  restmcp tools --input openapi.yaml
  restmcp tools --input openapi.yaml --include-tags items --format table`),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveCfg, err := resolveServeConfig(cmd)
			if err != nil {
				return err
			}
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}
			cfg := &ToolsConfig{ServeConfig: *serveCfg, Format: strings.ToLower(strings.TrimSpace(format))}
			switch cfg.Format {
			case "json", "table":
			default:
				return newUsageError(fmt.Sprintf("tools: unsupported --format %q (allowed: json, table)", format))
			}
			return toolsRunner(cmd.Context(), cfg)
		},
	}

	addCatalogFlags(cmd.Flags())
	cmd.Flags().String("format", "json", "Output format (json|table)")

	return cmd
}

func runTools(ctx context.Context, cfg *ToolsConfig) error {
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
	snap, err := registry.New(registry.Options{Tools: toolOptions(&cfg.ServeConfig), Logger: logger}).Build(ops)
	if err != nil {
		return specUsageError(err)
	}

	if cfg.Format == "table" {
		return printToolTable(os.Stdout, snap)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"tools": snap.Tools()})
}

func printToolTable(w io.Writer, snap *registry.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMETHOD\tPATH\tHINTS")
	for _, e := range snap.Entries() {
		op := e.Descriptor.Operation
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name(), op.Method, op.Path, hints(e))
	}
	return tw.Flush()
}

func hints(e *registry.Entry) string {
	a := e.Descriptor.Annotations
	var out []string
	if a.ReadOnly {
		out = append(out, "read-only")
	}
	if a.Destructive {
		out = append(out, "destructive")
	}
	if a.Idempotent {
		out = append(out, "idempotent")
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, ",")
}
