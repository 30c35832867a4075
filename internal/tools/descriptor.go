// Package tools turns catalog operations into MCP tool descriptors and maps
// flat tool-call arguments back onto HTTP requests.
package tools

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/restmcp/internal/spec"
)

// MaxNameLength bounds tool names, matching what MCP clients accept.
const MaxNameLength = 64

// Options controls how descriptions are rendered.
type Options struct {
	// DescribeAllResponses lists every declared response instead of only the success one.
	DescribeAllResponses bool
	// DescribeFullResponseSchema appends the output schema of each listed response.
	DescribeFullResponseSchema bool
}

// Annotations are behavioral hints derived from the HTTP method.
type Annotations struct {
	Title       string
	ReadOnly    bool
	Destructive bool
	Idempotent  bool
	OpenWorld   bool
}

// ToolDescriptor is the protocol-facing description of one operation.
type ToolDescriptor struct {
	Name        string
	Title       string
	Description string
	InputSchema map[string]any
	Annotations Annotations
	Operation   spec.OperationDescriptor
	Mapping     *Mapping
}

// MCPTool converts the descriptor into an mcp-go tool definition.
func (d ToolDescriptor) MCPTool() (mcp.Tool, error) {
	raw, err := json.Marshal(d.InputSchema)
	if err != nil {
		return mcp.Tool{}, fmt.Errorf("marshal input schema for %s: %w", d.Name, err)
	}
	tool := mcp.NewToolWithRawSchema(d.Name, d.Description, raw)
	tool.Annotations = mcp.ToolAnnotation{
		Title:           d.Annotations.Title,
		ReadOnlyHint:    mcp.ToBoolPtr(d.Annotations.ReadOnly),
		DestructiveHint: mcp.ToBoolPtr(d.Annotations.Destructive),
		IdempotentHint:  mcp.ToBoolPtr(d.Annotations.Idempotent),
		OpenWorldHint:   mcp.ToBoolPtr(d.Annotations.OpenWorld),
	}
	return tool, nil
}

// Build derives descriptors for a whole catalog and makes tool names unique,
// in catalog order.
func Build(ops []spec.OperationDescriptor, opts Options) ([]ToolDescriptor, error) {
	taken := make(map[string]bool, len(ops))
	out := make([]ToolDescriptor, 0, len(ops))
	for _, op := range ops {
		d, err := BuildOne(op, opts)
		if err != nil {
			return nil, err
		}
		d.Name = uniqueToolName(d.Name, taken)
		taken[d.Name] = true
		d.Mapping.Tool = d.Name
		out = append(out, d)
	}
	return out, nil
}

// BuildOne derives the descriptor for a single operation. The name is
// normalized but not yet checked for uniqueness against other tools.
func BuildOne(op spec.OperationDescriptor, opts Options) (ToolDescriptor, error) {
	if op.Method == "" || op.Path == "" {
		return ToolDescriptor{}, &spec.SpecError{
			Code:      spec.BuildError,
			Message:   fmt.Sprintf("build: operation %q has no method or path", op.OperationID),
			Operation: op.OperationID,
		}
	}
	name := NormalizeName(op.OperationID)
	schema, mapping := inputSchema(op)
	mapping.Tool = name

	title := op.Summary
	if title == "" {
		title = op.Method + " " + op.Path
	}
	ann := annotationsFor(op.Method)
	ann.Title = title

	return ToolDescriptor{
		Name:        name,
		Title:       title,
		Description: describe(op, opts),
		InputSchema: schema,
		Annotations: ann,
		Operation:   op,
		Mapping:     mapping,
	}, nil
}

var (
	validNameRe   = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	invalidRunRe  = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
	underscoresRe = regexp.MustCompile(`_{2,}`)
)

// NormalizeName maps an operation id onto the tool-name alphabet
// [A-Za-z0-9_-], at most MaxNameLength long.
func NormalizeName(id string) string {
	if validNameRe.MatchString(id) {
		return id
	}
	name := invalidRunRe.ReplaceAllString(id, "_")
	name = underscoresRe.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if len(name) > MaxNameLength {
		name = strings.TrimRight(name[:MaxNameLength], "_")
	}
	if name == "" {
		return "tool"
	}
	return name
}

func uniqueToolName(base string, taken map[string]bool) string {
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		suffix := "_" + strconv.Itoa(n)
		stem := base
		if len(stem)+len(suffix) > MaxNameLength {
			stem = stem[:MaxNameLength-len(suffix)]
		}
		if candidate := stem + suffix; !taken[candidate] {
			return candidate
		}
	}
}

func annotationsFor(method string) Annotations {
	a := Annotations{OpenWorld: true}
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		a.ReadOnly = true
		a.Idempotent = true
	case http.MethodPut:
		a.Idempotent = true
		a.Destructive = true
	case http.MethodDelete:
		a.Idempotent = true
		a.Destructive = true
	}
	return a
}

// inputSchema assembles the flat argument schema and the mapping that undoes it.
func inputSchema(op spec.OperationDescriptor) (map[string]any, *Mapping) {
	props := make(map[string]any)
	var required []string
	taken := make(map[string]bool)
	m := &Mapping{
		Method:     op.Method,
		Path:       op.Path,
		BodyFields: map[string]string{},
		defaults:   map[string]any{},
	}

	for _, p := range op.Parameters {
		arg := p.Name
		if taken[arg] {
			// Same name in two locations, e.g. a query and a header "id".
			arg = uniqueArg(p.In+"_"+p.Name, taken)
		}
		taken[arg] = true

		schema := copySchema(p.Schema)
		schema["title"] = p.Name
		if _, ok := schema["description"]; !ok && p.Description != "" {
			schema["description"] = p.Description
		}
		if p.HasDefault {
			schema["default"] = p.Default
			m.defaults[arg] = p.Default
		}
		props[arg] = schema
		if p.Required {
			required = append(required, arg)
		}
		m.Params = append(m.Params, ParamBinding{Arg: arg, Param: p})
	}

	if body := op.RequestBody; body != nil {
		m.BodyMediaType = body.MediaType
		m.BodyRequired = body.Required
		if shape, ok := shapeOf(body.Schema); ok {
			m.BodyKind = BodyObject
			m.AcceptResidual = !shape.closed
			for _, field := range shape.fieldNames() {
				arg := field
				if taken[arg] {
					arg = uniqueArg("body_"+field, taken)
				}
				taken[arg] = true

				fs, _ := shape.properties[field].(map[string]any)
				schema := copySchema(fs)
				if _, ok := schema["title"]; !ok {
					schema["title"] = field
				}
				if def, ok := schema["default"]; ok {
					m.defaults[arg] = def
				}
				props[arg] = schema
				if shape.required[field] {
					required = append(required, arg)
				}
				m.BodyFields[arg] = field
			}
		} else {
			m.BodyKind = BodyValue
			arg := "body"
			if taken[arg] {
				arg = uniqueArg("body_body", taken)
			}
			taken[arg] = true
			schema := copySchema(body.Schema)
			if _, ok := schema["description"]; !ok && body.Description != "" {
				schema["description"] = body.Description
			}
			props[arg] = schema
			if body.Required {
				required = append(required, arg)
			}
			m.BodyArg = arg
		}
	}

	out := map[string]any{
		"type":       "object",
		"title":      op.OperationID + "Arguments",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	m.required = required
	return out, m
}

func uniqueArg(base string, taken map[string]bool) string {
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		if candidate := base + "_" + strconv.Itoa(n); !taken[candidate] {
			return candidate
		}
	}
}
