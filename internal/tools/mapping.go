package tools

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/mark3labs/restmcp/internal/dispatch"
	"github.com/mark3labs/restmcp/internal/spec"
)

// BodyKind says how a request body is carried in the flat argument set.
type BodyKind int

const (
	BodyNone BodyKind = iota
	// BodyObject bodies are flattened into one argument per top-level field.
	BodyObject
	// BodyValue bodies travel verbatim in a single argument.
	BodyValue
)

// ParamBinding ties an argument name to the parameter it fills.
type ParamBinding struct {
	Arg   string
	Param spec.ParameterDescriptor
}

// Mapping records how a tool's flat arguments map onto an HTTP request.
type Mapping struct {
	Tool   string
	Method string
	Path   string
	Params []ParamBinding

	BodyKind BodyKind
	// BodyArg is the argument carrying a BodyValue body.
	BodyArg string
	// BodyFields maps argument name to body field name for BodyObject bodies.
	BodyFields     map[string]string
	BodyMediaType  string
	BodyRequired   bool
	AcceptResidual bool

	required []string
	defaults map[string]any
}

// Required lists the required argument names.
func (m *Mapping) Required() []string { return m.required }

// WithDefaults returns a copy of args where missing required arguments that
// declare a default are filled in.
func (m *Mapping) WithDefaults(args map[string]any) map[string]any {
	out := make(map[string]any, len(args)+len(m.defaults))
	for k, v := range args {
		out[k] = v
	}
	for _, name := range m.required {
		if _, ok := out[name]; ok {
			continue
		}
		if def, ok := m.defaults[name]; ok {
			out[name] = def
		}
	}
	return out
}

// Reconstruct turns flat tool arguments into an upstream request.
func (m *Mapping) Reconstruct(args map[string]any) (*dispatch.Request, error) {
	args = m.WithDefaults(args)

	var missing, problems []string
	for _, name := range m.required {
		if _, ok := args[name]; !ok {
			missing = append(missing, name)
		}
	}

	consumed := make(map[string]bool, len(args))
	path := m.Path
	req := dispatch.NewRequest(m.Tool, m.Method, "")
	for _, b := range m.Params {
		v, ok := args[b.Arg]
		consumed[b.Arg] = true
		if !ok {
			continue
		}
		if v == nil {
			// A null path value has no textual form; other locations omit it.
			if b.Param.In == spec.InPath {
				problems = append(problems, fmt.Sprintf("path parameter %s must not be null", b.Arg))
			}
			continue
		}
		switch b.Param.In {
		case spec.InPath:
			path = strings.ReplaceAll(path, "{"+b.Param.Name+"}", url.PathEscape(dispatch.FormatValue(v)))
		case spec.InQuery:
			for _, s := range dispatch.FormatValues(v) {
				req.Query.Add(b.Param.Name, s)
			}
		case spec.InHeader:
			req.Header.Set(b.Param.Name, dispatch.FormatValue(v))
		case spec.InCookie:
			req.Cookies = append(req.Cookies, &http.Cookie{Name: b.Param.Name, Value: dispatch.FormatValue(v)})
		}
	}
	if len(missing) > 0 || len(problems) > 0 {
		sort.Strings(missing)
		return nil, &ValidationError{Tool: m.Tool, Missing: missing, Problems: problems}
	}
	req.Path = path

	switch m.BodyKind {
	case BodyObject:
		body := make(map[string]any)
		for arg, field := range m.BodyFields {
			consumed[arg] = true
			if v, ok := args[arg]; ok {
				body[field] = v
			}
		}
		if m.AcceptResidual {
			for k, v := range args {
				if consumed[k] {
					continue
				}
				if _, clash := body[k]; !clash {
					body[k] = v
				}
			}
		}
		if len(body) > 0 || m.BodyRequired {
			req.Body = body
			req.HasBody = true
		}
	case BodyValue:
		if v, ok := args[m.BodyArg]; ok {
			req.Body = v
			req.HasBody = true
		}
	}
	if req.HasBody {
		req.MediaType = m.BodyMediaType
	}
	return req, nil
}

// Flatten is the inverse of the body half of Reconstruct: it spreads a body
// value over the argument names the tool exposes.
func (m *Mapping) Flatten(body any) map[string]any {
	out := make(map[string]any)
	switch m.BodyKind {
	case BodyObject:
		obj, ok := body.(map[string]any)
		if !ok {
			return out
		}
		argFor := make(map[string]string, len(m.BodyFields))
		for arg, field := range m.BodyFields {
			argFor[field] = arg
		}
		for field, v := range obj {
			if arg, ok := argFor[field]; ok {
				out[arg] = v
			} else if m.AcceptResidual {
				out[field] = v
			}
		}
	case BodyValue:
		out[m.BodyArg] = body
	}
	return out
}

// ValidationError rejects a call before anything is sent upstream.
type ValidationError struct {
	Tool     string
	Missing  []string
	Problems []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required arguments: "+strings.Join(e.Missing, ", "))
	}
	parts = append(parts, e.Problems...)
	return fmt.Sprintf("tool %s: %s", e.Tool, strings.Join(parts, "; "))
}

// ArgumentError marks the error as an argument rejection for dispatch.ToolResult.
func (e *ValidationError) ArgumentError() {}
