package spec

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes loader and build errors for clearer handling and messaging.
type ErrorCode string

const (
	InputError      ErrorCode = "InputError"
	NetworkError    ErrorCode = "NetworkError"
	ParseError      ErrorCode = "ParseError"
	ValidationError ErrorCode = "ValidationError"
	ConversionError ErrorCode = "ConversionError"
	// BuildError marks a document that loaded fine but cannot be turned into a
	// tool catalog (bad parameter locations, dangling refs, duplicate ids).
	BuildError ErrorCode = "BuildError"
)

// SpecError is a structured error with optional location and JSON Pointer.
type SpecError struct {
	Code        ErrorCode
	Message     string
	Location    string // file path or URL
	JSONPointer string // e.g. "#/paths/~1pets/get"
	Operation   string // "GET /pets" when the error belongs to one operation
	Cause       error
}

func (e *SpecError) Error() string { return e.Message }
func (e *SpecError) Unwrap() error { return e.Cause }

// IsBuildError reports whether err carries the BuildError code.
func IsBuildError(err error) bool {
	var se *SpecError
	return errors.As(err, &se) && se.Code == BuildError
}

func buildErrorf(op *opContext, format string, args ...any) *SpecError {
	msg := fmt.Sprintf(format, args...)
	se := &SpecError{Code: BuildError}
	if op != nil {
		se.Operation = op.method + " " + op.path
		se.JSONPointer = op.pointer()
		msg = fmt.Sprintf("%s: %s", se.Operation, msg)
	}
	se.Message = "build: " + msg
	return se
}

// escapePointer escapes a JSON Pointer reference token (RFC 6901).
func escapePointer(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	return strings.ReplaceAll(token, "/", "~1")
}
