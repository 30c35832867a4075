package spec

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

var operationMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

// declarationOrder walks the raw YAML/JSON node tree and returns operations in
// the order the author wrote them. Decoding into maps would lose that order.
func declarationOrder(raw []byte) ([]OperationKey, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("parse spec: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("parse spec: empty document")
	}
	paths := mappingValue(root.Content[0], "paths")
	if paths == nil {
		return nil, nil
	}
	if paths.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse spec: paths is not a mapping")
	}

	var out []OperationKey
	for i := 0; i+1 < len(paths.Content); i += 2 {
		path := paths.Content[i].Value
		item := paths.Content[i+1]
		if item.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(item.Content); j += 2 {
			m := strings.ToLower(item.Content[j].Value)
			if operationMethods[m] {
				out = append(out, OperationKey{Method: strings.ToUpper(m), Path: path})
			}
		}
	}
	return out, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
