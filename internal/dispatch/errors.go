package dispatch

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCanceled is returned when the caller's context ends before the
// upstream answers. The context error is wrapped alongside it.
var ErrCanceled = errors.New("call canceled")

// UpstreamError reports a non-2xx answer from the upstream API.
type UpstreamError struct {
	Status      int
	Body        []byte
	ContentType string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: HTTP %d %s", e.Status, http.StatusText(e.Status))
}

// TransportError reports a request that never produced a response.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ArgumentError is implemented by errors that reject tool arguments before
// anything is sent upstream.
type ArgumentError interface {
	error
	ArgumentError()
}

type canceledError struct{ cause error }

func (e *canceledError) Error() string        { return ErrCanceled.Error() + ": " + e.cause.Error() }
func (e *canceledError) Is(target error) bool { return target == ErrCanceled }
func (e *canceledError) Unwrap() error        { return e.cause }

// BodyError rejects a body that cannot be encoded as its form media type.
type BodyError struct {
	Tool      string
	MediaType string
	Body      any
}

func (e *BodyError) Error() string {
	return fmt.Sprintf("tool %s: %s body must be an object, got %T", e.Tool, e.MediaType, e.Body)
}

// ArgumentError marks the error as an argument rejection for ToolResult.
func (e *BodyError) ArgumentError() {}
