package spec

import (
	"fmt"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"pgregory.net/rapid"
)

const cyclicSpec = `openapi: 3.0.0
info: { title: Tree, version: "1" }
paths:
  /nodes:
    post:
      operationId: createNode
      requestBody:
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/Node'
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Node'
components:
  schemas:
    Node:
      type: object
      properties:
        name:
          type: string
        parent:
          $ref: '#/components/schemas/Node'
        children:
          type: array
          items:
            $ref: '#/components/schemas/Node'
`

// containsRef reports whether any nested map still carries a "$ref" key.
func containsRef(v any) bool {
	switch val := v.(type) {
	case map[string]any:
		if _, ok := val["$ref"]; ok {
			return true
		}
		for _, child := range val {
			if containsRef(child) {
				return true
			}
		}
	case []any:
		for _, child := range val {
			if containsRef(child) {
				return true
			}
		}
	}
	return false
}

func TestResolver_CyclicSchemaTerminates(t *testing.T) {
	t.Parallel()
	doc := loadDoc(t, cyclicSpec)
	node := doc.Spec.Components.Schemas["Node"]

	out, err := NewResolver().Resolve(&openapi3.SchemaRef{Ref: "#/components/schemas/Node", Value: node.Value})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if containsRef(out) {
		t.Fatalf("resolved schema still has $ref: %v", out)
	}
	props := out["properties"].(map[string]any)
	parent := props["parent"].(map[string]any)
	if parent["type"] != "object" || !strings.Contains(fmt.Sprint(parent["description"]), "circular reference to Node") {
		t.Fatalf("expected placeholder for parent, got %v", parent)
	}
	children := props["children"].(map[string]any)
	if children["items"].(map[string]any)["description"] != parent["description"] {
		t.Fatalf("expected placeholder for children items, got %v", children)
	}
}

func TestResolver_PerSiteCopies(t *testing.T) {
	t.Parallel()
	doc := loadDoc(t, sampleSpec)
	pet := doc.Spec.Components.Schemas["Pet"]
	ref := &openapi3.SchemaRef{Ref: "#/components/schemas/Pet", Value: pet.Value}

	res := NewResolver()
	first, err := res.Resolve(ref)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	first["title"] = "mutated"
	first["properties"].(map[string]any)["id"].(map[string]any)["default"] = 99

	second, err := res.Resolve(ref)
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if _, ok := second["title"]; ok {
		t.Fatalf("memoized schema leaked a caller mutation: %v", second)
	}
	if _, ok := second["properties"].(map[string]any)["id"].(map[string]any)["default"]; ok {
		t.Fatalf("nested mutation leaked into memo: %v", second)
	}
}

func TestResolver_MissingTarget(t *testing.T) {
	t.Parallel()
	_, err := NewResolver().Resolve(&openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: "object",
			Properties: openapi3.Schemas{
				"owner": &openapi3.SchemaRef{Ref: "#/components/schemas/User"},
			},
		},
	})
	if err == nil || !strings.Contains(err.Error(), `"#/components/schemas/User"`) {
		t.Fatalf("expected unresolved reference error, got %v", err)
	}
}

func TestResolver_TranslatesKeywords(t *testing.T) {
	t.Parallel()
	min, max := 1.0, 10.0
	maxLen := uint64(5)
	out, err := NewResolver().Resolve(&openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:         "integer",
		Nullable:     true,
		Enum:         []any{1.0, 2.0},
		Min:          &min,
		Max:          &max,
		ExclusiveMax: true,
		Example:      2.0,
		AdditionalProperties: openapi3.AdditionalProperties{
			Has: openapi3.BoolPtr(false),
		},
		MaxLength: &maxLen,
	}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if typ := out["type"].([]any); typ[0] != "integer" || typ[1] != "null" {
		t.Fatalf("type: got %v", out["type"])
	}
	if enum := out["enum"].([]any); len(enum) != 3 || enum[2] != nil {
		t.Fatalf("enum should admit null: got %v", out["enum"])
	}
	if out["minimum"] != 1.0 || out["exclusiveMaximum"] != 10.0 {
		t.Fatalf("bounds: got %v", out)
	}
	if _, ok := out["maximum"]; ok {
		t.Fatalf("exclusive maximum must not also set maximum")
	}
	if out["additionalProperties"] != false {
		t.Fatalf("additionalProperties: got %v", out["additionalProperties"])
	}
	if ex := out["examples"].([]any); ex[0] != 2.0 {
		t.Fatalf("examples: got %v", out["examples"])
	}
}

// TestResolver_RandomCyclesTerminate wires random reference graphs, cycles
// included, and checks resolution always finishes without residual refs.
func TestResolver_RandomCyclesTerminate(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(rt, "schemas")
		nodes := make([]*openapi3.Schema, n)
		for i := range nodes {
			nodes[i] = &openapi3.Schema{Type: "object", Properties: openapi3.Schemas{}}
		}
		for i, s := range nodes {
			edges := rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("edges_%d", i))
			for e := 0; e < edges; e++ {
				target := rapid.IntRange(0, n-1).Draw(rt, fmt.Sprintf("target_%d_%d", i, e))
				ref := &openapi3.SchemaRef{Ref: fmt.Sprintf("#/components/schemas/S%d", target), Value: nodes[target]}
				if rapid.Bool().Draw(rt, fmt.Sprintf("array_%d_%d", i, e)) {
					ref = &openapi3.SchemaRef{Value: &openapi3.Schema{Type: "array", Items: ref}}
				}
				s.Properties[fmt.Sprintf("p%d", e)] = ref
			}
		}
		res := NewResolver()
		for i := range nodes {
			out, err := res.Resolve(&openapi3.SchemaRef{Ref: fmt.Sprintf("#/components/schemas/S%d", i), Value: nodes[i]})
			if err != nil {
				rt.Fatalf("resolve S%d: %v", i, err)
			}
			if containsRef(out) {
				rt.Fatalf("S%d: residual $ref in %v", i, out)
			}
		}
	})
}
