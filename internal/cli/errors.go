package cli

import (
	"errors"
	"fmt"

	"github.com/mark3labs/restmcp/internal/spec"
)

// ErrUsage marks errors caused by bad flags, config or input documents.
var ErrUsage = errors.New("cli usage error")

type usageError struct {
	msg string
}

func newUsageError(msg string) error {
	return usageError{msg: msg}
}

func (e usageError) Error() string {
	return e.msg
}

func (e usageError) Is(target error) bool {
	return target == ErrUsage
}

// specUsageError turns a structured loader or build error into a usage error
// that points at the offending place in the document. Other errors pass
// through unchanged.
func specUsageError(err error) error {
	var se *spec.SpecError
	if !errors.As(err, &se) {
		return err
	}
	msg := fmt.Sprintf("spec: %s", se.Message)
	if se.Operation != "" {
		msg = fmt.Sprintf("%s\nOperation: %s", msg, se.Operation)
	}
	if se.Location != "" {
		msg = fmt.Sprintf("%s\nLocation: %s", msg, se.Location)
	}
	if se.JSONPointer != "" {
		msg = fmt.Sprintf("%s\nPointer: %s", msg, se.JSONPointer)
	}
	return newUsageError(msg)
}
