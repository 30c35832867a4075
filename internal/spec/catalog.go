package spec

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// BuildOption configures how the operation catalog is built from an OpenAPI doc.
type BuildOption func(*buildConfig)

type buildConfig struct {
	includeTags       map[string]struct{}
	excludeTags       map[string]struct{}
	includeOps        map[string]struct{}
	excludeOps        map[string]struct{}
	methods           map[string]struct{}
	pathPatterns      []string
	allResponses      bool
	allowDuplicateIDs bool
}

func stringSet(dst map[string]struct{}, values []string, canon func(string) string) map[string]struct{} {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if dst == nil {
			dst = make(map[string]struct{}, len(values))
		}
		if canon != nil {
			v = canon(v)
		}
		dst[v] = struct{}{}
	}
	return dst
}

// WithIncludeTags keeps only operations that have at least one of the given tags.
// Combined with WithIncludeOperations, an operation matching either is kept.
func WithIncludeTags(tags []string) BuildOption {
	return func(c *buildConfig) { c.includeTags = stringSet(c.includeTags, tags, nil) }
}

// WithExcludeTags removes operations that have any of the given tags.
func WithExcludeTags(tags []string) BuildOption {
	return func(c *buildConfig) { c.excludeTags = stringSet(c.excludeTags, tags, nil) }
}

// WithIncludeOperations keeps only the listed operation ids.
func WithIncludeOperations(ids []string) BuildOption {
	return func(c *buildConfig) { c.includeOps = stringSet(c.includeOps, ids, nil) }
}

// WithExcludeOperations removes the listed operation ids.
func WithExcludeOperations(ids []string) BuildOption {
	return func(c *buildConfig) { c.excludeOps = stringSet(c.excludeOps, ids, nil) }
}

// WithMethods keeps only operations using one of the provided HTTP methods.
func WithMethods(methods []string) BuildOption {
	return func(c *buildConfig) { c.methods = stringSet(c.methods, methods, strings.ToUpper) }
}

// WithPathPatterns keeps only operations whose path matches at least one of the
// provided regular expressions. Invalid patterns fail the build.
func WithPathPatterns(patterns []string) BuildOption {
	return func(c *buildConfig) {
		for _, p := range patterns {
			if p = strings.TrimSpace(p); p != "" {
				c.pathPatterns = append(c.pathPatterns, p)
			}
		}
	}
}

// WithAllResponses resolves every declared response instead of only the success one.
func WithAllResponses(all bool) BuildOption {
	return func(c *buildConfig) { c.allResponses = all }
}

// WithAllowDuplicateIDs disambiguates repeated operationIds with numeric
// suffixes instead of failing the build.
func WithAllowDuplicateIDs(allow bool) BuildOption {
	return func(c *buildConfig) { c.allowDuplicateIDs = allow }
}

// opContext carries the identity of the operation being built, for errors.
type opContext struct {
	method string
	path   string
	id     string
	item   *openapi3.PathItem
	op     *openapi3.Operation
}

func (o *opContext) pointer() string {
	return "#/paths/" + escapePointer(o.path) + "/" + strings.ToLower(o.method)
}

// BuildCatalog converts an OpenAPI v3 document into operation descriptors, in
// declaration order, with every schema resolved. Any structural problem in a
// selected operation aborts the whole build with a BuildError.
func BuildCatalog(ctx context.Context, doc *Document, opts ...BuildOption) ([]OperationDescriptor, error) {
	if doc == nil || doc.Spec == nil {
		return nil, &SpecError{Code: BuildError, Message: "build: nil document"}
	}
	cfg := &buildConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	pathRes := make([]*regexp.Regexp, 0, len(cfg.pathPatterns))
	for _, p := range cfg.pathPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, &SpecError{Code: BuildError, Message: fmt.Sprintf("build: invalid path pattern %q: %v", p, err), Cause: err}
		}
		pathRes = append(pathRes, re)
	}

	ops := enumerateOperations(doc)
	if err := assignOperationIDs(ops, cfg.allowDuplicateIDs); err != nil {
		return nil, err
	}

	res := NewResolver()
	out := make([]OperationDescriptor, 0, len(ops))
	for _, oc := range ops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !cfg.selects(oc, pathRes) {
			continue
		}
		desc, err := buildOperation(res, oc, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, desc)
	}
	return out, nil
}

// fallbackMethodOrder is used when the source order is unknown.
var fallbackMethodOrder = []string{"GET", "PUT", "POST", "DELETE", "OPTIONS", "HEAD", "PATCH", "TRACE"}

func enumerateOperations(doc *Document) []*opContext {
	var out []*opContext
	seen := make(map[OperationKey]bool)
	add := func(method, path string) {
		key := OperationKey{Method: method, Path: path}
		if seen[key] {
			return
		}
		item := doc.Spec.Paths[path]
		if item == nil {
			return
		}
		op := item.GetOperation(method)
		if op == nil {
			return
		}
		seen[key] = true
		out = append(out, &opContext{method: method, path: path, item: item, op: op})
	}

	for _, k := range doc.Order {
		add(k.Method, k.Path)
	}
	// Anything the order scan missed (in-memory docs, conversion artifacts).
	paths := make([]string, 0, len(doc.Spec.Paths))
	for p := range doc.Spec.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		for _, m := range fallbackMethodOrder {
			add(m, p)
		}
	}
	return out
}

func assignOperationIDs(ops []*opContext, allowDuplicates bool) error {
	taken := make(map[string]bool, len(ops))
	for _, oc := range ops {
		id := safeStr(oc.op.OperationID)
		if id == "" {
			continue
		}
		if taken[id] {
			if !allowDuplicates {
				return buildErrorf(oc, "duplicate operationId %q", id)
			}
			id = uniqueName(id, taken)
		}
		taken[id] = true
		oc.id = id
	}
	for _, oc := range ops {
		if oc.id != "" {
			continue
		}
		oc.id = uniqueName(fallbackOperationID(oc.method, oc.path), taken)
		taken[oc.id] = true
	}
	return nil
}

var nonAlnumRe = regexp.MustCompile(`[^A-Za-z0-9]+`)

// fallbackOperationID derives an id such as "get_items_item_id" for GET /items/{item_id}.
func fallbackOperationID(method, path string) string {
	id := strings.ToLower(method) + "_" + nonAlnumRe.ReplaceAllString(path, "_")
	return strings.Trim(id, "_")
}

func uniqueName(base string, taken map[string]bool) string {
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "_" + strconv.Itoa(n)
		if !taken[candidate] {
			return candidate
		}
	}
}

func (c *buildConfig) selects(oc *opContext, pathRes []*regexp.Regexp) bool {
	if len(c.methods) > 0 {
		if _, ok := c.methods[oc.method]; !ok {
			return false
		}
	}
	if len(pathRes) > 0 {
		matched := false
		for _, re := range pathRes {
			if re.MatchString(oc.path) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	tags := cleanTags(oc.op.Tags)
	if len(c.includeOps) > 0 || len(c.includeTags) > 0 {
		_, byID := c.includeOps[oc.id]
		if !byID && !hasAny(tags, c.includeTags) {
			return false
		}
	}
	if _, excluded := c.excludeOps[oc.id]; excluded {
		return false
	}
	return !hasAny(tags, c.excludeTags)
}

func hasAny(tags []string, set map[string]struct{}) bool {
	for _, t := range tags {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

func cleanTags(raw []string) []string {
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func safeStr(s string) string { return strings.TrimSpace(s) }

func buildOperation(res *Resolver, oc *opContext, cfg *buildConfig) (OperationDescriptor, error) {
	desc := OperationDescriptor{
		OperationID: oc.id,
		Method:      oc.method,
		Path:        oc.path,
		Summary:     safeStr(oc.op.Summary),
		Description: safeStr(oc.op.Description),
		Tags:        cleanTags(oc.op.Tags),
		Deprecated:  oc.op.Deprecated,
	}

	params, err := mergeParameters(res, oc)
	if err != nil {
		return desc, err
	}
	if err := checkPathPlaceholders(oc, params); err != nil {
		return desc, err
	}
	desc.Parameters = params

	if rb := oc.op.RequestBody; rb != nil {
		body, err := buildRequestBody(res, oc, rb)
		if err != nil {
			return desc, err
		}
		desc.RequestBody = body
	}

	responses, err := buildResponses(res, oc, cfg.allResponses)
	if err != nil {
		return desc, err
	}
	desc.Responses = responses
	return desc, nil
}

func paramKey(in, name string) string { return in + ":" + name }

// mergeParameters applies operation-level parameters over path-level ones,
// keeping the declaration position of overridden entries.
func mergeParameters(res *Resolver, oc *opContext) ([]ParameterDescriptor, error) {
	var out []ParameterDescriptor
	index := make(map[string]int)
	add := func(refs openapi3.Parameters) error {
		for _, pref := range refs {
			if pref == nil {
				continue
			}
			pd, err := buildParameter(res, oc, pref)
			if err != nil {
				return err
			}
			key := paramKey(pd.In, pd.Name)
			if i, ok := index[key]; ok {
				out[i] = pd
				continue
			}
			index[key] = len(out)
			out = append(out, pd)
		}
		return nil
	}
	if err := add(oc.item.Parameters); err != nil {
		return nil, err
	}
	if err := add(oc.op.Parameters); err != nil {
		return nil, err
	}
	return out, nil
}

func buildParameter(res *Resolver, oc *opContext, pref *openapi3.ParameterRef) (ParameterDescriptor, error) {
	if pref.Value == nil {
		return ParameterDescriptor{}, buildErrorf(oc, "unresolved parameter reference %q", pref.Ref)
	}
	p := pref.Value
	name := safeStr(p.Name)
	if name == "" {
		return ParameterDescriptor{}, buildErrorf(oc, "parameter without a name")
	}
	in := strings.ToLower(safeStr(p.In))
	switch in {
	case InPath, InQuery, InHeader, InCookie:
	default:
		return ParameterDescriptor{}, buildErrorf(oc, "parameter %q has unsupported location %q", name, p.In)
	}

	schemaRef := p.Schema
	if schemaRef == nil && len(p.Content) > 0 {
		if mt := p.Content[pickMediaType(p.Content)]; mt != nil {
			schemaRef = mt.Schema
		}
	}
	schema, err := res.Resolve(schemaRef)
	if err != nil {
		return ParameterDescriptor{}, buildErrorf(oc, "parameter %q: %v", name, err)
	}

	pd := ParameterDescriptor{
		Name:        name,
		In:          in,
		Required:    p.Required || in == InPath,
		Description: safeStr(p.Description),
		Schema:      schema,
	}
	if def, ok := schema["default"]; ok {
		pd.Default = def
		pd.HasDefault = true
	}
	return pd, nil
}

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

func checkPathPlaceholders(oc *opContext, params []ParameterDescriptor) error {
	declared := make(map[string]bool)
	for _, p := range params {
		if p.In == InPath {
			declared[p.Name] = true
		}
	}
	used := make(map[string]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(oc.path, -1) {
		name := m[1]
		used[name] = true
		if !declared[name] {
			return buildErrorf(oc, "path placeholder {%s} has no matching path parameter", name)
		}
	}
	for _, p := range params {
		if p.In == InPath && !used[p.Name] {
			return buildErrorf(oc, "path parameter %q does not appear in the path template", p.Name)
		}
	}
	return nil
}

func buildRequestBody(res *Resolver, oc *opContext, rb *openapi3.RequestBodyRef) (*RequestBodyDescriptor, error) {
	if rb.Value == nil {
		return nil, buildErrorf(oc, "unresolved request body reference %q", rb.Ref)
	}
	body := &RequestBodyDescriptor{
		Required:    rb.Value.Required,
		Description: safeStr(rb.Value.Description),
		MediaType:   "application/json",
		Schema:      map[string]any{},
	}
	if len(rb.Value.Content) == 0 {
		return body, nil
	}
	body.MediaType = pickMediaType(rb.Value.Content)
	if mt := rb.Value.Content[body.MediaType]; mt != nil && mt.Schema != nil {
		schema, err := res.Resolve(mt.Schema)
		if err != nil {
			return nil, buildErrorf(oc, "request body: %v", err)
		}
		body.Schema = schema
	}
	return body, nil
}

// pickMediaType prefers application/json, then any +json type, then the
// first declared type in lexical order.
func pickMediaType(content openapi3.Content) string {
	if _, ok := content["application/json"]; ok {
		return "application/json"
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.HasSuffix(strings.ToLower(strings.TrimSpace(strings.SplitN(k, ";", 2)[0])), "+json") {
			return k
		}
	}
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

func buildResponses(res *Resolver, oc *opContext, all bool) ([]ResponseDescriptor, error) {
	codes := make([]string, 0, len(oc.op.Responses))
	for code := range oc.op.Responses {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return statusLess(codes[i], codes[j]) })

	success := successCode(codes)
	if success != "" && !all {
		codes = []string{success}
	}

	out := make([]ResponseDescriptor, 0, len(codes))
	for _, code := range codes {
		rref := oc.op.Responses[code]
		if rref == nil {
			continue
		}
		if rref.Value == nil {
			return nil, buildErrorf(oc, "response %s: unresolved reference %q", code, rref.Ref)
		}
		rd := ResponseDescriptor{Status: code, Success: code == success}
		if rref.Value.Description != nil {
			rd.Description = safeStr(*rref.Value.Description)
		}
		if len(rref.Value.Content) > 0 {
			rd.MediaType = pickMediaType(rref.Value.Content)
			mt := rref.Value.Content[rd.MediaType]
			if mt != nil {
				if mt.Schema != nil {
					schema, err := res.Resolve(mt.Schema)
					if err != nil {
						return nil, buildErrorf(oc, "response %s: %v", code, err)
					}
					rd.Schema = schema
				}
				rd.Example = mediaExample(mt)
			}
		}
		out = append(out, rd)
	}
	return out, nil
}

func mediaExample(mt *openapi3.MediaType) any {
	if mt.Example != nil {
		return mt.Example
	}
	if len(mt.Examples) == 0 {
		return nil
	}
	// Pick the first example value deterministically by key.
	names := make([]string, 0, len(mt.Examples))
	for name := range mt.Examples {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if ref := mt.Examples[name]; ref != nil && ref.Value != nil && ref.Value.Value != nil {
			return ref.Value.Value
		}
	}
	return nil
}

// successCode returns the lowest explicit 2xx code, else the 2XX range, else "".
func successCode(sorted []string) string {
	for _, c := range sorted {
		if n, err := strconv.Atoi(c); err == nil && n >= 200 && n < 300 {
			return c
		}
	}
	for _, c := range sorted {
		if strings.EqualFold(c, "2XX") {
			return c
		}
	}
	return ""
}

// statusLess orders numeric codes first, then ranges like 4XX, then default.
func statusLess(a, b string) bool {
	ra, rb := statusRank(a), statusRank(b)
	if ra != rb {
		return ra < rb
	}
	return a < b
}

func statusRank(code string) int {
	if n, err := strconv.Atoi(code); err == nil {
		return n
	}
	if len(code) == 3 && strings.EqualFold(code[1:], "XX") {
		if d, err := strconv.Atoi(code[:1]); err == nil {
			return 1000 + d
		}
	}
	return 2000
}
