package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// Version is reported to MCP clients on initialize. Release builds set it
// with -ldflags.
var Version = "dev"

// Execute runs the restmcp CLI.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the CLI with ctx as the base context of every command.
func ExecuteContext(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd constructs the root command so tests can exercise the CLI easily.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restmcp",
		Short: "Serve the operations of an OpenAPI document as MCP tools",
		Long: "restmcp loads a Swagger/OpenAPI document, turns each operation into an MCP tool " +
			"and forwards tool calls to the HTTP API the document describes.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	// Flag errors (like unknown flags) become usage errors that carry the
	// command's help text.
	cmd.SetFlagErrorFunc(flagUsageError)

	cmd.PersistentFlags().StringP("config", "c", "", "Config file path (YAML, or TOML when it ends in .toml)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	for _, sub := range []*cobra.Command{newServeCmd(), newToolsCmd(), newGenerateCmd(), newInitCmd()} {
		sub.SetFlagErrorFunc(flagUsageError)
		cmd.AddCommand(sub)
	}

	return cmd
}

func flagUsageError(c *cobra.Command, err error) error {
	return newUsageError(fmt.Sprintf("%v\n\n%s", err, c.UsageString()))
}
