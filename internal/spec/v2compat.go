package spec

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// preprocessV2ForCompatibility rewrites Swagger v2 operations that kin-openapi
// refuses to convert:
//   - several body parameters are merged into one object-typed body parameter;
//   - body parameters mixed with formData become formData fields and the
//     operation consumes multipart/form-data.
//
// On error the original bytes are returned with modified=false.
func preprocessV2ForCompatibility(data []byte) ([]byte, bool, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return data, false, err
	}
	paths, ok := doc["paths"].(map[string]any)
	if !ok || len(paths) == 0 {
		return data, false, nil
	}

	modified := false
	for _, pim := range paths {
		item, ok := pim.(map[string]any)
		if !ok {
			continue
		}
		for method, opm := range item {
			if !operationMethods[strings.ToLower(method)] {
				continue
			}
			if op, ok := opm.(map[string]any); ok && rewriteV2Operation(op) {
				modified = true
			}
		}
	}
	if !modified {
		return data, false, nil
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return data, false, err
	}
	return out, true, nil
}

func rewriteV2Operation(op map[string]any) bool {
	params, ok := op["parameters"].([]any)
	if !ok || len(params) == 0 {
		return false
	}
	var bodies, others []map[string]any
	hasFormData := false
	for _, p := range params {
		pm, _ := p.(map[string]any)
		if pm == nil {
			continue
		}
		switch in := asString(pm["in"]); {
		case strings.EqualFold(in, "body"):
			bodies = append(bodies, pm)
		case strings.EqualFold(in, "formData"):
			hasFormData = true
			others = append(others, pm)
		default:
			others = append(others, pm)
		}
	}

	switch {
	case len(bodies) == 0:
		return false
	case hasFormData:
		newParams := make([]any, 0, len(params))
		for _, p := range params {
			pm, _ := p.(map[string]any)
			if pm == nil {
				continue
			}
			if strings.EqualFold(asString(pm["in"]), "body") {
				newParams = append(newParams, formDataFromBodyParam(pm))
				continue
			}
			newParams = append(newParams, pm)
		}
		op["parameters"] = newParams
		consumes, _ := op["consumes"].([]any)
		if !containsString(consumes, "multipart/form-data") {
			op["consumes"] = append(consumes, "multipart/form-data")
		}
		return true
	case len(bodies) > 1:
		props := map[string]any{}
		var required []any
		for _, pm := range bodies {
			name := asString(pm["name"])
			if name == "" {
				name = "field"
			}
			schema := extractSchemaFromParam(pm)
			if schema == nil {
				schema = map[string]any{"type": "string"}
			}
			props[name] = schema
			if rb, _ := pm["required"].(bool); rb {
				required = append(required, name)
			}
		}
		bodySchema := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			bodySchema["required"] = required
		}
		merged := []any{map[string]any{"in": "body", "name": "body", "schema": bodySchema}}
		for _, pm := range others {
			merged = append(merged, pm)
		}
		op["parameters"] = merged
		return true
	}
	return false
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func containsString(list []any, want string) bool {
	for _, v := range list {
		if s, ok := v.(string); ok && s == want {
			return true
		}
	}
	return false
}

func extractSchemaFromParam(pm map[string]any) map[string]any {
	if sch, ok := pm["schema"].(map[string]any); ok {
		return sch
	}
	t, _ := pm["type"].(string)
	if t == "" {
		return nil
	}
	m := map[string]any{"type": t}
	if it, ok := pm["items"].(map[string]any); ok {
		m["items"] = it
	}
	if f, ok := pm["format"].(string); ok && f != "" {
		m["format"] = f
	}
	return m
}

func formDataFromBodyParam(pm map[string]any) map[string]any {
	name := asString(pm["name"])
	if name == "" {
		name = "field"
	}
	out := map[string]any{"in": "formData", "name": name}
	if desc := asString(pm["description"]); desc != "" {
		out["description"] = desc
	}
	if req, ok := pm["required"].(bool); ok {
		out["required"] = req
	}

	// formData cannot carry a referenced object; such fields degrade to string.
	src := pm
	if sch, ok := pm["schema"].(map[string]any); ok {
		src = sch
	}
	typ := asString(src["type"])
	if typ == "" {
		typ = "string"
	}
	out["type"] = typ
	if it, ok := src["items"].(map[string]any); ok {
		out["items"] = it
	}
	if f := asString(src["format"]); f != "" {
		out["format"] = f
	}
	return out
}
