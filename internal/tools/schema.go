package tools

import (
	"sort"

	"github.com/mohae/deepcopy"
)

// schemaType returns the primary type of a resolved schema. Union types and
// anyOf branches yield their first non-null member.
func schemaType(schema map[string]any) string {
	switch t := schema["type"].(type) {
	case string:
		return t
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s != "null" {
				return s
			}
		}
	case []string:
		for _, s := range t {
			if s != "null" {
				return s
			}
		}
	}
	if branches, ok := schema["anyOf"].([]any); ok {
		for _, b := range branches {
			if m, ok := b.(map[string]any); ok {
				if t := schemaType(m); t != "" && t != "null" {
					return t
				}
			}
		}
	}
	return ""
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func copySchema(schema map[string]any) map[string]any {
	if schema == nil {
		return map[string]any{}
	}
	return deepcopy.Copy(schema).(map[string]any)
}

// objectShape is the flattened view of an object-typed body.
type objectShape struct {
	properties map[string]any
	required   map[string]bool
	// closed is set when additionalProperties is false.
	closed bool
}

// shapeOf reports whether schema describes an object with named properties,
// merging allOf parts. Free-form objects are not flattenable.
func shapeOf(schema map[string]any) (objectShape, bool) {
	if t := schemaType(schema); t != "" && t != "object" {
		return objectShape{}, false
	}
	shape := objectShape{properties: map[string]any{}, required: map[string]bool{}}
	found := false
	if props, ok := schema["properties"].(map[string]any); ok && len(props) > 0 {
		for k, v := range props {
			shape.properties[k] = v
		}
		found = true
	}
	for _, r := range stringList(schema["required"]) {
		shape.required[r] = true
	}
	if ap, ok := schema["additionalProperties"].(bool); ok && !ap {
		shape.closed = true
	}
	if parts, ok := schema["allOf"].([]any); ok && len(parts) > 0 {
		for _, p := range parts {
			m, ok := p.(map[string]any)
			if !ok {
				return objectShape{}, false
			}
			sub, ok := shapeOf(m)
			if !ok {
				// Annotation-only parts such as {description: ...} are harmless.
				if t := schemaType(m); t != "" && t != "object" {
					return objectShape{}, false
				}
				continue
			}
			for k, v := range sub.properties {
				shape.properties[k] = v
			}
			for r := range sub.required {
				shape.required[r] = true
			}
			shape.closed = shape.closed || sub.closed
		}
		found = found || len(shape.properties) > 0
	}
	return shape, found
}

func (s objectShape) fieldNames() []string {
	names := make([]string, 0, len(s.properties))
	for k := range s.properties {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

var displayNoise = []string{"anyOf", "oneOf", "nullable", "discriminator", "readOnly", "writeOnly", "xml", "externalDocs", "deprecated"}

// cleanForDisplay strips keywords that only add noise to a tool description.
// allOf parts are folded into the schema before removal.
func cleanForDisplay(schema map[string]any) map[string]any {
	out := copySchema(schema)
	if shape, ok := shapeOf(out); ok && out["allOf"] != nil {
		out["type"] = "object"
		out["properties"] = shape.properties
		req := make([]string, 0, len(shape.required))
		for r := range shape.required {
			req = append(req, r)
		}
		sort.Strings(req)
		if len(req) > 0 {
			out["required"] = req
		}
	}
	delete(out, "allOf")
	if t := schemaType(out); t != "" {
		out["type"] = t
	}
	for _, k := range displayNoise {
		delete(out, k)
	}
	if props, ok := out["properties"].(map[string]any); ok {
		for name, p := range props {
			if m, ok := p.(map[string]any); ok {
				props[name] = cleanForDisplay(m)
			}
		}
	}
	if out["type"] == "array" {
		if items, ok := out["items"].(map[string]any); ok {
			out["items"] = cleanForDisplay(items)
		}
	}
	return out
}

// exampleFor synthesizes a representative value for a display schema.
func exampleFor(schema map[string]any) any {
	if len(schema) == 0 {
		return nil
	}
	if ex, ok := schema["examples"].([]any); ok && len(ex) > 0 {
		return ex[0]
	}
	if enum, ok := schema["enum"].([]any); ok && len(enum) > 0 {
		return enum[0]
	}
	switch schemaType(schema) {
	case "object":
		result := map[string]any{}
		if props, ok := schema["properties"].(map[string]any); ok {
			for name, p := range props {
				m, _ := p.(map[string]any)
				if v := exampleFor(m); v != nil {
					result[name] = v
				}
			}
		}
		return result
	case "array":
		if items, ok := schema["items"].(map[string]any); ok {
			if v := exampleFor(items); v != nil {
				return []any{v}
			}
		}
		return []any{}
	case "string":
		switch schema["format"] {
		case "date-time":
			return "2023-01-01T00:00:00Z"
		case "date":
			return "2023-01-01"
		case "email":
			return "user@example.com"
		case "uri":
			return "https://example.com"
		}
		if title, ok := schema["title"].(string); ok && title != "" {
			return title
		}
		return "string"
	case "integer":
		return 1
	case "number":
		return 1.0
	case "boolean":
		return true
	}
	return nil
}

// isEmptyValue mirrors the truthiness check used before printing examples.
func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(val) == 0
	case []any:
		return len(val) == 0
	case string:
		return val == ""
	}
	return false
}
