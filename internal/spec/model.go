package spec

import "github.com/getkin/kin-openapi/openapi3"

// Document is a loaded OpenAPI v3 document together with where it came from
// and the order its operations were declared in.
type Document struct {
	Spec   *openapi3.T
	Source string
	// Order lists operations as they appear in the source text. It is empty
	// for documents built in memory.
	Order []OperationKey
}

// OperationKey identifies one operation by HTTP method (upper case) and path template.
type OperationKey struct {
	Method string
	Path   string
}

// Title returns the document title, or "" when the info block is missing.
func (d *Document) Title() string {
	if d == nil || d.Spec == nil || d.Spec.Info == nil {
		return ""
	}
	return safeStr(d.Spec.Info.Title)
}

// ServerURL returns the first declared server URL, or "".
func (d *Document) ServerURL() string {
	if d == nil || d.Spec == nil {
		return ""
	}
	for _, s := range d.Spec.Servers {
		if s != nil && safeStr(s.URL) != "" {
			return safeStr(s.URL)
		}
	}
	return ""
}

// Parameter locations accepted by the catalog builder.
const (
	InPath   = "path"
	InQuery  = "query"
	InHeader = "header"
	InCookie = "cookie"
)

// OperationDescriptor is one callable endpoint with every schema fully resolved.
type OperationDescriptor struct {
	OperationID string
	Method      string // upper case
	Path        string
	Summary     string
	Description string
	Tags        []string
	Deprecated  bool
	Parameters  []ParameterDescriptor
	RequestBody *RequestBodyDescriptor
	Responses   []ResponseDescriptor
}

// ParameterDescriptor is a single non-body input of an operation.
type ParameterDescriptor struct {
	Name        string
	In          string // path|query|header|cookie
	Required    bool
	Description string
	Schema      map[string]any
	Default     any
	HasDefault  bool
}

// RequestBodyDescriptor describes the payload an operation accepts.
type RequestBodyDescriptor struct {
	MediaType   string
	Required    bool
	Description string
	Schema      map[string]any
}

// ResponseDescriptor describes one declared response.
type ResponseDescriptor struct {
	Status      string // 200, 2XX, default
	Description string
	MediaType   string
	Schema      map[string]any
	// Example holds the declared example value if available. It may be nil.
	Example any
	Success bool
}

// Key returns the method/path identity of the operation.
func (o OperationDescriptor) Key() OperationKey {
	return OperationKey{Method: o.Method, Path: o.Path}
}

// ParametersIn returns the parameters declared in the given location, in order.
func (o OperationDescriptor) ParametersIn(in string) []ParameterDescriptor {
	var out []ParameterDescriptor
	for _, p := range o.Parameters {
		if p.In == in {
			out = append(out, p)
		}
	}
	return out
}
