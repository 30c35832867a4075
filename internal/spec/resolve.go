package spec

import (
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/mohae/deepcopy"
)

// Resolver turns kin-openapi schema graphs into self-contained JSON Schema
// maps with every $ref inlined. Recursive references are cut with a
// placeholder object schema, so resolution always terminates.
//
// A Resolver is not safe for concurrent use; the catalog builder creates one
// per build so the memo never outlives a document.
type Resolver struct {
	memo   map[*openapi3.Schema]map[string]any
	active map[*openapi3.Schema]string
}

// NewResolver returns an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{
		memo:   make(map[*openapi3.Schema]map[string]any),
		active: make(map[*openapi3.Schema]string),
	}
}

// Resolve returns the resolved form of ref. Every call returns an independent
// value; callers may mutate it freely.
func (r *Resolver) Resolve(ref *openapi3.SchemaRef) (map[string]any, error) {
	out, _, err := r.resolve(ref)
	return out, err
}

// resolve reports, besides the schema, whether a cycle placeholder was
// emitted somewhere below; such results depend on the path taken and are
// not memoized.
func (r *Resolver) resolve(ref *openapi3.SchemaRef) (map[string]any, bool, error) {
	if ref == nil {
		return map[string]any{}, false, nil
	}
	s := ref.Value
	if s == nil {
		if ref.Ref != "" {
			return nil, false, fmt.Errorf("unresolved reference %q", ref.Ref)
		}
		return map[string]any{}, false, nil
	}
	if name, ok := r.active[s]; ok {
		return cyclePlaceholder(name), true, nil
	}
	if ref.Ref != "" {
		if cached, ok := r.memo[s]; ok {
			return deepcopy.Copy(cached).(map[string]any), false, nil
		}
	}

	name := refName(ref.Ref)
	if name == "" {
		name = s.Title
	}
	r.active[s] = name
	out, cyclic, err := r.convert(s)
	delete(r.active, s)
	if err != nil {
		if ref.Ref != "" {
			return nil, false, fmt.Errorf("%s: %w", ref.Ref, err)
		}
		return nil, false, err
	}
	if ref.Ref != "" && !cyclic {
		r.memo[s] = out
		return deepcopy.Copy(out).(map[string]any), false, nil
	}
	return out, cyclic, nil
}

func (r *Resolver) convert(s *openapi3.Schema) (map[string]any, bool, error) {
	out := make(map[string]any)
	cyclic := false
	sub := func(ref *openapi3.SchemaRef) (map[string]any, error) {
		m, c, err := r.resolve(ref)
		cyclic = cyclic || c
		return m, err
	}
	subList := func(refs openapi3.SchemaRefs) ([]any, error) {
		list := make([]any, 0, len(refs))
		for _, ref := range refs {
			m, err := sub(ref)
			if err != nil {
				return nil, err
			}
			list = append(list, m)
		}
		return list, nil
	}

	switch {
	case s.Type != "" && s.Nullable:
		out["type"] = []any{s.Type, "null"}
	case s.Type != "":
		out["type"] = s.Type
	}
	if s.Title != "" {
		out["title"] = s.Title
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if s.Format != "" {
		out["format"] = s.Format
	}
	if len(s.Enum) > 0 {
		enum := deepcopy.Copy(s.Enum).([]any)
		if s.Nullable && !containsNil(enum) {
			enum = append(enum, nil)
		}
		out["enum"] = enum
	}
	if s.Default != nil {
		out["default"] = deepcopy.Copy(s.Default)
	}
	if s.Example != nil {
		out["examples"] = []any{deepcopy.Copy(s.Example)}
	}
	if s.ReadOnly {
		out["readOnly"] = true
	}
	if s.WriteOnly {
		out["writeOnly"] = true
	}
	if s.Deprecated {
		out["deprecated"] = true
	}

	if s.Min != nil {
		if s.ExclusiveMin {
			out["exclusiveMinimum"] = *s.Min
		} else {
			out["minimum"] = *s.Min
		}
	}
	if s.Max != nil {
		if s.ExclusiveMax {
			out["exclusiveMaximum"] = *s.Max
		} else {
			out["maximum"] = *s.Max
		}
	}
	if s.MultipleOf != nil {
		out["multipleOf"] = *s.MultipleOf
	}
	if s.MinLength > 0 {
		out["minLength"] = s.MinLength
	}
	if s.MaxLength != nil {
		out["maxLength"] = *s.MaxLength
	}
	if s.Pattern != "" {
		out["pattern"] = s.Pattern
	}
	if s.MinItems > 0 {
		out["minItems"] = s.MinItems
	}
	if s.MaxItems != nil {
		out["maxItems"] = *s.MaxItems
	}
	if s.UniqueItems {
		out["uniqueItems"] = true
	}
	if s.MinProps > 0 {
		out["minProperties"] = s.MinProps
	}
	if s.MaxProps != nil {
		out["maxProperties"] = *s.MaxProps
	}

	if s.Items != nil {
		items, err := sub(s.Items)
		if err != nil {
			return nil, false, fmt.Errorf("items: %w", err)
		}
		out["items"] = items
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, ref := range s.Properties {
			m, err := sub(ref)
			if err != nil {
				return nil, false, fmt.Errorf("property %q: %w", name, err)
			}
			props[name] = m
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		out["required"] = append([]string(nil), s.Required...)
	}
	if ap := s.AdditionalProperties; ap.Schema != nil {
		m, err := sub(ap.Schema)
		if err != nil {
			return nil, false, fmt.Errorf("additionalProperties: %w", err)
		}
		out["additionalProperties"] = m
	} else if ap.Has != nil {
		out["additionalProperties"] = *ap.Has
	}

	for key, refs := range map[string]openapi3.SchemaRefs{"allOf": s.AllOf, "anyOf": s.AnyOf, "oneOf": s.OneOf} {
		if len(refs) == 0 {
			continue
		}
		list, err := subList(refs)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = list
	}
	if s.Not != nil {
		m, err := sub(s.Not)
		if err != nil {
			return nil, false, fmt.Errorf("not: %w", err)
		}
		out["not"] = m
	}
	return out, cyclic, nil
}

func cyclePlaceholder(name string) map[string]any {
	if name == "" {
		name = "schema"
	}
	return map[string]any{
		"type":        "object",
		"description": "circular reference to " + name,
	}
}

// refName returns the last segment of a reference, e.g. "Pet" for
// "#/components/schemas/Pet".
func refName(ref string) string {
	if ref == "" {
		return ""
	}
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

func containsNil(list []any) bool {
	for _, v := range list {
		if v == nil {
			return true
		}
	}
	return false
}
