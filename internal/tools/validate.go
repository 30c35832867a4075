package tools

import (
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// Validator checks tool arguments against a compiled input schema.
type Validator struct {
	tool   string
	schema *gojsonschema.Schema
}

// NewValidator compiles schema. Schemas gojsonschema cannot compile, such as
// ones with non-RE2 patterns, return an error and callers fall back to the
// required-argument check in Reconstruct.
func NewValidator(tool string, schema map[string]any) (*Validator, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("compile input schema for %s: %w", tool, err)
	}
	return &Validator{tool: tool, schema: compiled}, nil
}

// Validate returns a *ValidationError when args do not satisfy the schema.
func (v *Validator) Validate(args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return &ValidationError{Tool: v.tool, Problems: []string{err.Error()}}
	}
	if result.Valid() {
		return nil
	}
	verr := &ValidationError{Tool: v.tool}
	for _, e := range result.Errors() {
		if e.Type() == "required" && e.Field() == "(root)" {
			if name, ok := e.Details()["property"].(string); ok {
				verr.Missing = append(verr.Missing, name)
				continue
			}
		}
		verr.Problems = append(verr.Problems, e.String())
	}
	sort.Strings(verr.Missing)
	return verr
}
