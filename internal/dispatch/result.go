package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolResult converts the outcome of a call into the MCP result sent back to
// the client. Failures become IsError results rather than protocol errors.
func ToolResult(resp *Response, err error) *mcp.CallToolResult {
	if err != nil {
		return errorResult(err)
	}
	if resp == nil {
		return mcp.NewToolResultText("")
	}
	text := string(resp.Body)
	if resp.IsJSON {
		if pretty, perr := json.MarshalIndent(resp.Value, "", "  "); perr == nil {
			text = string(pretty)
		}
		if obj, ok := resp.Value.(map[string]any); ok {
			return mcp.NewToolResultStructured(obj, text)
		}
	}
	return mcp.NewToolResultText(text)
}

func errorResult(err error) *mcp.CallToolResult {
	var (
		upstream  *UpstreamError
		transport *TransportError
		argErr    ArgumentError
	)
	switch {
	case errors.As(err, &upstream):
		text := upstream.Error()
		if len(upstream.Body) > 0 {
			text += "\n" + string(upstream.Body)
		}
		res := mcp.NewToolResultError(text)
		var body any = string(upstream.Body)
		var parsed any
		if json.Unmarshal(upstream.Body, &parsed) == nil {
			body = parsed
		}
		res.StructuredContent = map[string]any{"status": upstream.Status, "body": body}
		return res
	case errors.Is(err, ErrCanceled):
		return mcp.NewToolResultError(ErrCanceled.Error())
	case errors.As(err, &transport):
		return mcp.NewToolResultError(transport.Error())
	case errors.As(err, &argErr):
		return mcp.NewToolResultError("validation error: " + argErr.Error())
	}
	return mcp.NewToolResultError(fmt.Sprintf("error: %v", err))
}

// Outcome classifies err for the tool call counter.
func Outcome(err error) string {
	var (
		upstream  *UpstreamError
		transport *TransportError
		argErr    ArgumentError
	)
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &upstream):
		return OutcomeUpstream
	case errors.Is(err, ErrCanceled):
		return OutcomeCanceled
	case errors.As(err, &transport):
		return OutcomeTransport
	case errors.As(err, &argErr):
		return OutcomeInvalid
	}
	return OutcomeTransport
}
