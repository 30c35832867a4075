package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

const defaultConfigFile = "restmcp.yaml"

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath string
	Force      bool
	Verbose    bool
}

var initRunner = runInit

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a sample restmcp configuration file",
		Long:  "Scaffold a commented restmcp configuration file that documents available options.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			cfg := &InitConfig{
				OutputPath: out,
				Force:      force,
				Verbose:    verbose,
			}
			return initRunner(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("out", defaultConfigFile, "Where to write the sample config file")
	cmd.Flags().Bool("force", false, "Overwrite the target file if it already exists")

	return cmd
}

func runInit(ctx context.Context, cfg *InitConfig) error {
	_ = ctx

	out := strings.TrimSpace(cfg.OutputPath)
	if out == "" {
		out = defaultConfigFile
	}
	absPath, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}

	if st, err := os.Stat(absPath); err == nil && !cfg.Force {
		if st.Mode().IsRegular() {
			return newUsageError(fmt.Sprintf("init: %q already exists (use --force to overwrite)", absPath))
		}
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot create parent directory: %v", err))
	}

	content := sampleConfigYAML
	if strings.EqualFold(filepath.Ext(absPath), ".toml") {
		content = sampleConfigTOML
	}
	content = strings.TrimSpace(content) + "\n"

	// Atomic write via temp + rename
	tmp := absPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot write temp file: %v\nHint: choose a different --out or check directory permissions.", err))
	}
	if err := os.Rename(tmp, absPath); err != nil {
		_ = os.Remove(tmp)
		return newUsageError(fmt.Sprintf("init: cannot place file at %s: %v", absPath, err))
	}
	fmt.Fprintf(os.Stdout, "Wrote sample config to %s\n", absPath)
	return nil
}

// sampleConfigYAML documents every key serve and tools read.
const sampleConfigYAML = `# restmcp configuration (YAML)
# Only input is required. Command-line flags override config values.

# Path or URL to the Swagger/OpenAPI document (http/https or local file).
# input: ./openapi.yaml

# Upstream API base URL. Defaults to the first servers[].url of the document.
# baseUrl: http://localhost:8000

# List every declared response in tool descriptions, not only the success one.
# describeAllResponses: false

# Append the response schema to each described response.
# describeFullResponseSchema: false

# Only expose operations with these tags / operation ids (comma-separated or list).
# includeTags: [items]
# includeOperations: [list_items, read_item]

# Hide operations with these tags / operation ids.
# excludeTags: [internal]
# excludeOperations: [delete_item]

# Only expose these HTTP methods, and paths matching these regular expressions.
# methods: [GET, POST]
# paths: ["^/items"]

# Suffix repeated operationIds (_2, _3) instead of failing.
# allowDuplicateIds: false

# MCP transport: stdio, sse or http (streamable HTTP).
# transport: stdio

# Listen address for the sse and http transports.
# addr: ":8080"

# Per-call upstream timeout as a Go duration. 0 disables it.
# timeout: 30s

# Static headers sent with every upstream request.
# headers:
#   X-Api-Key: change-me

# Incoming HTTP headers passed through to the upstream API.
# forwardHeaders: [Authorization]

# Reload the tools when the local input file changes.
# watch: false

# Server name reported to clients. Defaults to the document title.
# name: items-api

# Logging goes to stderr.
# logLevel: info
# logFormat: console

# Force debug logging.
# verbose: false
`

// sampleConfigTOML is sampleConfigYAML for .toml targets.
const sampleConfigTOML = `# restmcp configuration (TOML)
# Only input is required. Command-line flags override config values.

# input = "./openapi.yaml"
# baseUrl = "http://localhost:8000"
# describeAllResponses = false
# describeFullResponseSchema = false
# includeTags = ["items"]
# excludeTags = ["internal"]
# includeOperations = ["list_items", "read_item"]
# excludeOperations = ["delete_item"]
# methods = ["GET", "POST"]
# paths = ["^/items"]
# allowDuplicateIds = false
# transport = "stdio"
# addr = ":8080"
# timeout = "30s"
# forwardHeaders = ["Authorization"]
# watch = false
# name = "items-api"
# logLevel = "info"
# logFormat = "console"
# verbose = false

# [headers]
# X-Api-Key = "change-me"
`
