// Package pyemitter writes a standalone Python MCP server project that serves
// a fixed set of tool descriptors against one upstream base URL.
package pyemitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/mark3labs/restmcp/internal/tools"
)

// DefaultBaseURL is used when neither the caller nor the document names one.
const DefaultBaseURL = "http://localhost:8000"

// Project is what gets rendered.
type Project struct {
	Name    string
	Title   string
	Version string
	BaseURL string
	Tools   []tools.ToolDescriptor
}

// Options controls where and how the project is written.
type Options struct {
	OutDir string // required
	Force  bool   // write into a non-empty directory
	DryRun bool   // plan only
}

// PlannedFile describes a file the emitter writes, or would write.
type PlannedFile struct {
	RelPath string
	Size    int
	Mode    os.FileMode
}

// Result lists the planned files in path order.
type Result struct {
	Name    string
	Planned []PlannedFile
}

// Emit renders the project and, unless DryRun is set, writes it to OutDir.
func Emit(ctx context.Context, p Project, opts Options) (*Result, error) {
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("pyemitter: OutDir is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.Name = sanitizeName(p.Name)
	if p.Name == "" {
		p.Name = sanitizeName(p.Title)
	}
	if p.Name == "" {
		p.Name = "restmcp-server"
	}
	if strings.TrimSpace(p.BaseURL) == "" {
		p.BaseURL = DefaultBaseURL
	}
	p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")

	files, err := render(p)
	if err != nil {
		return nil, err
	}

	rels := make([]string, 0, len(files))
	for rel := range files {
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	planned := make([]PlannedFile, 0, len(rels))
	for _, rel := range rels {
		planned = append(planned, PlannedFile{RelPath: rel, Size: len(files[rel]), Mode: fileMode(rel)})
	}

	abs, err := filepath.Abs(opts.OutDir)
	if err != nil {
		return nil, fmt.Errorf("pyemitter: resolve output directory: %w", err)
	}
	if err := validateOutputDirectory(abs, opts.Force); err != nil {
		return nil, err
	}
	if !opts.DryRun {
		for _, rel := range rels {
			if err := writeFileAtomic(abs, rel, files[rel]); err != nil {
				return nil, fmt.Errorf("pyemitter: write file %s: %w", rel, err)
			}
		}
	}
	return &Result{Name: p.Name, Planned: planned}, nil
}

func render(p Project) (map[string][]byte, error) {
	m := newManifest(p)
	manifestJSON, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("pyemitter: marshal tools.json: %w", err)
	}

	var readme bytes.Buffer
	if err := readmeTemplate.Execute(&readme, readmeData{Project: p, Manifest: m}); err != nil {
		return nil, fmt.Errorf("pyemitter: render README.md: %w", err)
	}

	return map[string][]byte{
		"server.py":        []byte(serverPy),
		"tools.json":       append(manifestJSON, '\n'),
		"requirements.txt": []byte(requirementsTxt),
		"README.md":        readme.Bytes(),
		".gitignore":       []byte(gitignore),
	}, nil
}

// manifest is the data server.py reads at startup: the tool list exactly as
// the Go server would advertise it, plus how to rebuild each request.
type manifest struct {
	Name    string         `json:"name"`
	Title   string         `json:"title"`
	Version string         `json:"version"`
	BaseURL string         `json:"baseUrl"`
	Tools   []manifestTool `json:"tools"`
}

type manifestTool struct {
	Name        string         `json:"name"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
	Annotations annotations    `json:"annotations"`
	Route       route          `json:"route"`
}

type annotations struct {
	ReadOnly    bool `json:"readOnlyHint"`
	Destructive bool `json:"destructiveHint"`
	Idempotent  bool `json:"idempotentHint"`
	OpenWorld   bool `json:"openWorldHint"`
}

type route struct {
	Method   string       `json:"method"`
	Path     string       `json:"path"`
	Params   []routeParam `json:"params"`
	Body     *routeBody   `json:"body,omitempty"`
	Required []string     `json:"required"`
}

type routeParam struct {
	Arg  string `json:"arg"`
	Name string `json:"name"`
	In   string `json:"in"`
}

type routeBody struct {
	Kind           string            `json:"kind"` // object or value
	Arg            string            `json:"arg,omitempty"`
	Fields         map[string]string `json:"fields,omitempty"`
	MediaType      string            `json:"mediaType"`
	Required       bool              `json:"required"`
	AcceptResidual bool              `json:"acceptResidual"`
}

func newManifest(p Project) manifest {
	m := manifest{Name: p.Name, Title: p.Title, Version: p.Version, BaseURL: p.BaseURL, Tools: []manifestTool{}}
	for _, d := range p.Tools {
		mt := manifestTool{
			Name:        d.Name,
			Title:       d.Annotations.Title,
			Description: d.Description,
			InputSchema: d.InputSchema,
			Annotations: annotations{
				ReadOnly:    d.Annotations.ReadOnly,
				Destructive: d.Annotations.Destructive,
				Idempotent:  d.Annotations.Idempotent,
				OpenWorld:   d.Annotations.OpenWorld,
			},
		}
		if mp := d.Mapping; mp != nil {
			mt.Route = route{Method: mp.Method, Path: mp.Path, Params: []routeParam{}, Required: append([]string{}, mp.Required()...)}
			for _, b := range mp.Params {
				mt.Route.Params = append(mt.Route.Params, routeParam{Arg: b.Arg, Name: b.Param.Name, In: b.Param.In})
			}
			switch mp.BodyKind {
			case tools.BodyObject:
				mt.Route.Body = &routeBody{Kind: "object", Fields: mp.BodyFields, MediaType: mp.BodyMediaType,
					Required: mp.BodyRequired, AcceptResidual: mp.AcceptResidual}
			case tools.BodyValue:
				mt.Route.Body = &routeBody{Kind: "value", Arg: mp.BodyArg, MediaType: mp.BodyMediaType, Required: mp.BodyRequired}
			}
		}
		m.Tools = append(m.Tools, mt)
	}
	return m
}

func validateOutputDirectory(absPath string, force bool) error {
	stat, err := os.Stat(absPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot access output directory %q: %w", absPath, err)
	}
	if !stat.IsDir() {
		return fmt.Errorf("output path %q is not a directory", absPath)
	}
	if force {
		return nil
	}
	entries, err := os.ReadDir(absPath)
	if err != nil {
		return fmt.Errorf("cannot read output directory %q: %w", absPath, err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("output directory %q is not empty (use --force to overwrite)", absPath)
	}
	return nil
}

// writeFileAtomic writes through a temp file in the target directory and
// renames it into place.
func writeFileAtomic(baseDir, relPath string, content []byte) error {
	fullPath := filepath.Join(baseDir, filepath.FromSlash(relPath))
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure target directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-pyemitter-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", relPath, err)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()
	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(fileMode(relPath)); err != nil {
		return fmt.Errorf("set file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmpPath, fullPath, err)
	}
	ok = true
	return nil
}

func fileMode(relPath string) os.FileMode {
	if relPath == "server.py" {
		return 0o755
	}
	return 0o644
}

// sanitizeName lowercases name and keeps alphanumerics, dashes and
// underscores, turning spaces and slashes into dashes.
func sanitizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.NewReplacer(" ", "-", "/", "-", ".", "-").Replace(name)
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	for strings.Contains(out, "--") {
		out = strings.ReplaceAll(out, "--", "-")
	}
	return strings.Trim(out, "-_")
}

type readmeData struct {
	Project
	Manifest manifest
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

var readmeTemplate = template.Must(template.New("README.md").Funcs(template.FuncMap{
	"firstLine": firstLine,
}).Parse(`# {{ .Name }}

MCP server for {{ if .Title }}{{ .Title }}{{ else }}an HTTP API{{ end }}{{ if .Version }} {{ .Version }}{{ end }}, generated by restmcp.
Each tool forwards one call to ` + "`{{ .BaseURL }}`" + `.

## Run

    pip install -r requirements.txt
    python server.py

Environment:

- ` + "`RESTMCP_BASE_URL`" + ` overrides the upstream base URL.
- ` + "`RESTMCP_TIMEOUT`" + ` sets the per-call timeout in seconds (default 30).
- ` + "`RESTMCP_AUTHORIZATION`" + ` is sent as the Authorization header when set.

## Tools
{{ range .Manifest.Tools }}
- ` + "`{{ .Name }}`" + ` ({{ .Route.Method }} {{ .Route.Path }}): {{ firstLine .Description }}
{{- end }}
`))

const requirementsTxt = `mcp>=1.3.0
requests>=2.25.0
`

const gitignore = `__pycache__/
*.pyc
.venv/
`

// serverPy mirrors the Go dispatcher: validate required arguments, rebuild
// path, query, headers, cookies and body from flat arguments, send one
// request, and turn non-2xx answers into tool errors.
const serverPy = `#!/usr/bin/env python3
"""MCP server generated by restmcp. Tool definitions live in tools.json."""

import asyncio
import json
import os
import pathlib
from urllib.parse import quote

import requests
import mcp.types as types
from mcp.server.lowlevel import Server
from mcp.server.stdio import stdio_server

HERE = pathlib.Path(__file__).resolve().parent
MANIFEST = json.loads((HERE / "tools.json").read_text(encoding="utf-8"))
BASE_URL = os.environ.get("RESTMCP_BASE_URL", MANIFEST["baseUrl"]).rstrip("/")
TIMEOUT = float(os.environ.get("RESTMCP_TIMEOUT", "30"))
TOOLS = {tool["name"]: tool for tool in MANIFEST["tools"]}

server = Server(MANIFEST["name"])


class ArgumentError(ValueError):
    pass


def text_value(value):
    if isinstance(value, bool):
        return "true" if value else "false"
    if isinstance(value, float) and value.is_integer():
        return str(int(value))
    if isinstance(value, (dict, list)):
        return json.dumps(value, separators=(",", ":"))
    return str(value)


def with_defaults(tool, args):
    out = dict(args)
    props = tool["inputSchema"].get("properties", {})
    for name in tool["route"]["required"]:
        if name not in out and "default" in props.get(name, {}):
            out[name] = props[name]["default"]
    return out


def build_request(tool, args):
    route = tool["route"]
    args = with_defaults(tool, args)
    missing = sorted(name for name in route["required"] if name not in args)
    if missing:
        raise ArgumentError("missing required arguments: " + ", ".join(missing))

    path = route["path"]
    params, headers, cookies, consumed = [], {}, {}, set()
    for param in route["params"]:
        consumed.add(param["arg"])
        if param["arg"] not in args:
            continue
        value = args[param["arg"]]
        if value is None:
            if param["in"] == "path":
                raise ArgumentError("path parameter %s must not be null" % param["arg"])
            continue
        if param["in"] == "path":
            if isinstance(value, list):
                value = ",".join(text_value(v) for v in value)
            path = path.replace("{%s}" % param["name"], quote(text_value(value), safe=""))
        elif param["in"] == "query":
            for item in value if isinstance(value, list) else [value]:
                params.append((param["name"], text_value(item)))
        elif param["in"] == "header":
            headers[param["name"]] = text_value(value)
        elif param["in"] == "cookie":
            cookies[param["name"]] = text_value(value)

    kwargs = {"params": params, "headers": headers, "cookies": cookies}
    body = route.get("body")
    payload, has_body = None, False
    if body and body["kind"] == "object":
        payload = {}
        for arg, field in body["fields"].items():
            consumed.add(arg)
            if arg in args:
                payload[field] = args[arg]
        if body["acceptResidual"]:
            for key, value in args.items():
                if key not in consumed and key not in payload:
                    payload[key] = value
        has_body = bool(payload) or body["required"]
    elif body and body["arg"] in args:
        payload, has_body = args[body["arg"]], True

    if has_body:
        media = body["mediaType"]
        if media == "application/x-www-form-urlencoded":
            kwargs["data"] = payload
        elif media == "multipart/form-data":
            if not isinstance(payload, dict):
                raise ArgumentError("multipart/form-data body must be an object")
            kwargs["files"] = [(k, (None, text_value(v))) for k, v in sorted(payload.items())]
        elif isinstance(payload, str) and not media.endswith("json"):
            kwargs["data"] = payload
            headers["Content-Type"] = media
        else:
            kwargs["json"] = payload

    auth = os.environ.get("RESTMCP_AUTHORIZATION")
    if auth:
        headers.setdefault("Authorization", auth)
    return route["method"], BASE_URL + path, kwargs


@server.list_tools()
async def list_tools():
    return [
        types.Tool(
            name=tool["name"],
            description=tool["description"],
            inputSchema=tool["inputSchema"],
            annotations=types.ToolAnnotations(title=tool.get("title"), **tool["annotations"]),
        )
        for tool in MANIFEST["tools"]
    ]


@server.call_tool()
async def call_tool(name, arguments):
    tool = TOOLS.get(name)
    if tool is None:
        raise ValueError("unknown tool: " + name)
    try:
        method, url, kwargs = build_request(tool, arguments or {})
    except ArgumentError as exc:
        raise ValueError("validation error: tool %s: %s" % (name, exc)) from exc
    try:
        resp = await asyncio.to_thread(requests.request, method, url, timeout=TIMEOUT, **kwargs)
    except requests.RequestException as exc:
        raise RuntimeError("transport error: %s %s: %s" % (method, url, exc)) from exc
    if resp.status_code >= 300:
        raise RuntimeError("upstream error: HTTP %d %s\n%s" % (resp.status_code, resp.reason, resp.text))
    try:
        text = json.dumps(resp.json(), indent=2)
    except ValueError:
        text = resp.text
    return [types.TextContent(type="text", text=text)]


async def main():
    async with stdio_server() as (read_stream, write_stream):
        await server.run(read_stream, write_stream, server.create_initialization_options())


if __name__ == "__main__":
    asyncio.run(main())
`
