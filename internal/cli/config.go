package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/restmcp/internal/dispatch"
	"github.com/mark3labs/restmcp/internal/server"
)

// ServeConfig captures all inputs that influence serve and tools after
// merging defaults, config file values, and CLI overrides.
type ServeConfig struct {
	Input                      string
	BaseURL                    string
	DescribeAllResponses       bool
	DescribeFullResponseSchema bool
	IncludeTags                []string
	ExcludeTags                []string
	IncludeOperations          []string
	ExcludeOperations          []string
	Methods                    []string
	Paths                      []string
	AllowDuplicateIDs          bool
	Transport                  string
	Addr                       string
	Timeout                    time.Duration
	Headers                    map[string]string
	ForwardHeaders             []string
	Watch                      bool
	Name                       string
	LogLevel                   string
	LogFormat                  string
	ConfigPath                 string
	Verbose                    bool
}

func defaultServeConfig() ServeConfig {
	return ServeConfig{
		Transport:      server.TransportStdio,
		Addr:           ":8080",
		ForwardHeaders: append([]string(nil), dispatch.DefaultForwardHeaders...),
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// addCatalogFlags registers the flags shared by every command that builds
// a tool catalog.
func addCatalogFlags(flags *pflag.FlagSet) {
	flags.String("input", "", "Path or URL to the Swagger/OpenAPI document")
	flags.Bool("describe-all-responses", false, "List every declared response in tool descriptions")
	flags.Bool("describe-full-response-schema", false, "Append response schemas to tool descriptions")
	flags.StringSlice("include-tags", nil, "Only expose operations with these tags")
	flags.StringSlice("exclude-tags", nil, "Hide operations with these tags")
	flags.StringSlice("include-operations", nil, "Only expose these operation ids")
	flags.StringSlice("exclude-operations", nil, "Hide these operation ids")
	flags.StringSlice("methods", nil, "Only expose operations using these HTTP methods")
	flags.StringArray("paths", nil, "Only expose paths matching this regular expression (repeatable)")
	flags.Bool("allow-duplicate-ids", false, "Suffix repeated operationIds instead of failing")
	flags.String("log-level", "", "Log level (debug|info|warn|error); defaults to info")
	flags.String("log-format", "", "Log format (console|json); defaults to console")
}

func resolveServeConfig(cmd *cobra.Command) (*ServeConfig, error) {
	cfg := defaultServeConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyServeConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyServeFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyServeFlagOverrides(flags *pflag.FlagSet, cfg *ServeConfig) error {
	strs := []struct {
		flag string
		dst  *string
	}{
		{"input", &cfg.Input},
		{"base-url", &cfg.BaseURL},
		{"transport", &cfg.Transport},
		{"addr", &cfg.Addr},
		{"name", &cfg.Name},
		{"log-level", &cfg.LogLevel},
		{"log-format", &cfg.LogFormat},
	}
	for _, s := range strs {
		if !flags.Changed(s.flag) {
			continue
		}
		value, err := flags.GetString(s.flag)
		if err != nil {
			return err
		}
		*s.dst = strings.TrimSpace(value)
	}

	bools := []struct {
		flag string
		dst  *bool
	}{
		{"describe-all-responses", &cfg.DescribeAllResponses},
		{"describe-full-response-schema", &cfg.DescribeFullResponseSchema},
		{"allow-duplicate-ids", &cfg.AllowDuplicateIDs},
		{"watch", &cfg.Watch},
		{"verbose", &cfg.Verbose},
	}
	for _, b := range bools {
		if !flags.Changed(b.flag) {
			continue
		}
		value, err := flags.GetBool(b.flag)
		if err != nil {
			return err
		}
		*b.dst = value
	}

	lists := []struct {
		flag string
		dst  *[]string
	}{
		{"include-tags", &cfg.IncludeTags},
		{"exclude-tags", &cfg.ExcludeTags},
		{"include-operations", &cfg.IncludeOperations},
		{"exclude-operations", &cfg.ExcludeOperations},
		{"methods", &cfg.Methods},
		{"forward-headers", &cfg.ForwardHeaders},
	}
	for _, l := range lists {
		if !flags.Changed(l.flag) {
			continue
		}
		value, err := flags.GetStringSlice(l.flag)
		if err != nil {
			return err
		}
		*l.dst = sanitizeList(value)
	}

	if flags.Changed("paths") {
		value, err := flags.GetStringArray("paths")
		if err != nil {
			return err
		}
		cfg.Paths = sanitizeList(value)
	}
	if flags.Changed("timeout") {
		value, err := flags.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = value
	}
	if flags.Changed("header") {
		values, err := flags.GetStringArray("header")
		if err != nil {
			return err
		}
		headers, err := parseHeaderPairs(values)
		if err != nil {
			return newUsageError(fmt.Sprintf("serve: --header: %v", err))
		}
		// Flag headers extend the config file ones.
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range headers {
			cfg.Headers[k] = v
		}
	}

	return nil
}

func (c *ServeConfig) normalize() {
	c.Input = strings.TrimSpace(c.Input)
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	c.Addr = strings.TrimSpace(c.Addr)
	c.Name = strings.TrimSpace(c.Name)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.IncludeTags = sanitizeList(c.IncludeTags)
	c.ExcludeTags = sanitizeList(c.ExcludeTags)
	c.IncludeOperations = sanitizeList(c.IncludeOperations)
	c.ExcludeOperations = sanitizeList(c.ExcludeOperations)
	c.ForwardHeaders = sanitizeList(c.ForwardHeaders)
	for i, m := range c.Methods {
		c.Methods[i] = strings.ToUpper(m)
	}
	c.Methods = sanitizeList(c.Methods)
	c.Paths = sanitizeList(c.Paths)
	if c.Transport == "" {
		c.Transport = server.TransportStdio
	}
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
	if c.Verbose {
		c.LogLevel = "debug"
	}
}

func (c *ServeConfig) validate() error {
	if c.Input == "" {
		return newUsageError("--input is required (set via flag or config file)")
	}

	switch c.Transport {
	case server.TransportStdio, server.TransportSSE, server.TransportHTTP:
	default:
		return newUsageError(fmt.Sprintf("unsupported --transport %q (allowed: stdio, sse, http)", c.Transport))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return newUsageError(fmt.Sprintf("unsupported --log-level %q (allowed: debug, info, warn, error)", c.LogLevel))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return newUsageError(fmt.Sprintf("unsupported --log-format %q (allowed: console, json)", c.LogFormat))
	}

	if c.Timeout < 0 {
		return newUsageError("--timeout must not be negative")
	}

	for _, m := range c.Methods {
		switch m {
		case "GET", "PUT", "POST", "DELETE", "OPTIONS", "HEAD", "PATCH", "TRACE":
		default:
			return newUsageError(fmt.Sprintf("unsupported --methods entry %q", m))
		}
	}
	for _, p := range c.Paths {
		if _, err := regexp.Compile(p); err != nil {
			return newUsageError(fmt.Sprintf("invalid --paths pattern %q: %v", p, err))
		}
	}

	if overlap := intersect(c.IncludeTags, c.ExcludeTags); len(overlap) > 0 {
		return newUsageError(fmt.Sprintf("include/exclude tags overlap: %s", strings.Join(overlap, ", ")))
	}
	if overlap := intersect(c.IncludeOperations, c.ExcludeOperations); len(overlap) > 0 {
		return newUsageError(fmt.Sprintf("include/exclude operations overlap: %s", strings.Join(overlap, ", ")))
	}

	return nil
}

func sanitizeList(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a))
	for _, item := range a {
		set[item] = struct{}{}
	}
	var result []string
	for _, item := range b {
		if _, ok := set[item]; ok {
			result = append(result, item)
		}
	}
	return result
}

// parseHeaderPairs reads "Name=Value" (or "Name: Value") entries.
func parseHeaderPairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		sep := strings.IndexAny(pair, "=:")
		if sep <= 0 {
			return nil, fmt.Errorf("expected Name=Value, got %q", pair)
		}
		name := strings.TrimSpace(pair[:sep])
		if name == "" {
			return nil, fmt.Errorf("empty header name in %q", pair)
		}
		out[name] = strings.TrimSpace(pair[sep+1:])
	}
	return out, nil
}

// decodeConfigFile parses YAML, or TOML when the file ends in .toml.
func decodeConfigFile(path string, data []byte) (map[string]any, error) {
	var raw map[string]any
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		return raw, nil
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func applyServeConfigFromFile(cfg *ServeConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newUsageError(fmt.Sprintf("read config file %q: %v", path, err))
	}

	raw, err := decodeConfigFile(path, data)
	if err != nil {
		return newUsageError(fmt.Sprintf("parse config file %q: %v", path, err))
	}

	// Map iteration order is random; sort so the first bad key reported is stable.
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		known, err := applyConfigField(cfg, key, raw[key])
		if !known {
			return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
		}
		if err != nil {
			return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
		}
	}

	return nil
}

func applyConfigField(cfg *ServeConfig, key string, value any) (known bool, err error) {
	switch normalizeKey(key) {
	case "input":
		cfg.Input, err = valueAsString(value)
	case "baseurl":
		cfg.BaseURL, err = valueAsString(value)
	case "describeallresponses":
		cfg.DescribeAllResponses, err = valueAsBool(value)
	case "describefullresponseschema":
		cfg.DescribeFullResponseSchema, err = valueAsBool(value)
	case "includetags":
		cfg.IncludeTags, err = valueAsStringSlice(value)
	case "excludetags":
		cfg.ExcludeTags, err = valueAsStringSlice(value)
	case "includeoperations":
		cfg.IncludeOperations, err = valueAsStringSlice(value)
	case "excludeoperations":
		cfg.ExcludeOperations, err = valueAsStringSlice(value)
	case "methods":
		cfg.Methods, err = valueAsStringSlice(value)
	case "paths":
		cfg.Paths, err = valueAsList(value)
	case "allowduplicateids":
		cfg.AllowDuplicateIDs, err = valueAsBool(value)
	case "transport":
		cfg.Transport, err = valueAsString(value)
	case "addr":
		cfg.Addr, err = valueAsString(value)
	case "timeout":
		cfg.Timeout, err = valueAsDuration(value)
	case "headers":
		cfg.Headers, err = valueAsStringMap(value)
	case "forwardheaders":
		cfg.ForwardHeaders, err = valueAsStringSlice(value)
	case "watch":
		cfg.Watch, err = valueAsBool(value)
	case "name":
		cfg.Name, err = valueAsString(value)
	case "loglevel":
		cfg.LogLevel, err = valueAsString(value)
	case "logformat":
		cfg.LogFormat, err = valueAsString(value)
	case "verbose":
		cfg.Verbose, err = valueAsBool(value)
	default:
		return false, nil
	}
	return true, err
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		return splitAndTrim(val), nil
	case []any:
		items := make([]string, 0, len(val))
		for idx, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", idx, err)
			}
			if str != "" {
				items = append(items, str)
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

// valueAsList is valueAsStringSlice without comma splitting, for values such
// as regular expressions.
func valueAsList(v any) ([]string, error) {
	if s, ok := v.(string); ok {
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		return []string{strings.TrimSpace(s)}, nil
	}
	return valueAsStringSlice(v)
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(val))
		switch trimmed {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n":
			return false, nil
		case "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

// valueAsDuration accepts Go duration strings or a number of seconds.
func valueAsDuration(v any) (time.Duration, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return 0, nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", val)
		}
		return d, nil
	case int:
		return time.Duration(val) * time.Second, nil
	case int64:
		return time.Duration(val) * time.Second, nil
	case float64:
		return time.Duration(val * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("expected duration, got %T", v)
	}
}

// valueAsStringMap accepts a mapping or a list of "Name=Value" strings.
func valueAsStringMap(v any) (map[string]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		out := make(map[string]string, len(val))
		for k, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = str
		}
		return out, nil
	case []any, string:
		list, err := valueAsStringSlice(val)
		if err != nil {
			return nil, err
		}
		return parseHeaderPairs(list)
	default:
		return nil, fmt.Errorf("expected mapping or list, got %T", v)
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
