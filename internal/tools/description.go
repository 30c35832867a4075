package tools

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/mark3labs/restmcp/internal/spec"
)

// describe renders the human-readable tool description: summary, operation
// description, then one block per selected response.
func describe(op spec.OperationDescriptor, opts Options) string {
	var b strings.Builder
	if op.Summary != "" {
		b.WriteString(op.Summary)
	} else {
		b.WriteString(op.Method + " " + op.Path)
	}
	if op.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(op.Description)
	}

	responses := selectResponses(op.Responses, opts.DescribeAllResponses)
	if len(responses) == 0 {
		return b.String()
	}
	b.WriteString("\n\n### Responses:\n")
	for _, r := range responses {
		b.WriteString("\n**" + r.Status + "**: " + r.Description)
		if r.Success {
			b.WriteString(" (Success Response)")
		}
		if r.MediaType == "" || r.Schema == nil {
			continue
		}
		b.WriteString("\nContent-Type: " + r.MediaType)

		display := cleanForDisplay(r.Schema)
		example := r.Example
		if isEmptyValue(example) {
			example = exampleFor(display)
		}
		if !isEmptyValue(example) {
			writeJSONBlock(&b, "**Example Response:**", example)
		}
		if opts.DescribeFullResponseSchema {
			if items, ok := display["items"]; ok && display["type"] == "array" {
				writeJSONBlock(&b, "**Output Schema:** Array of items with the following structure:", items)
			} else {
				writeJSONBlock(&b, "**Output Schema:**", display)
			}
		}
	}
	return b.String()
}

// selectResponses keeps only the success response unless all were asked for
// or the operation declares no success response at all.
func selectResponses(all []spec.ResponseDescriptor, describeAll bool) []spec.ResponseDescriptor {
	if describeAll {
		return all
	}
	for _, r := range all {
		if r.Success {
			return []spec.ResponseDescriptor{r}
		}
	}
	return all
}

func writeJSONBlock(b *strings.Builder, heading string, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return
	}
	b.WriteString("\n\n" + heading + "\n```json\n")
	b.WriteString(strings.TrimRight(buf.String(), "\n"))
	b.WriteString("\n```")
}
