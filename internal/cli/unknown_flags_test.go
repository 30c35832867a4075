package cli

import (
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/restmcp/internal/spec"
)

func TestUnknownFlag_ShowsHelpAndUsageError(t *testing.T) {
	t.Parallel()
	for _, sub := range []string{"serve", "tools", "generate", "init"} {
		err := executeRoot(sub, "--unknown-flag")
		if err == nil {
			t.Fatalf("%s: expected error for unknown flag", sub)
		}
		if !errors.Is(err, ErrUsage) {
			t.Fatalf("%s: expected usage error, got %T: %v", sub, err, err)
		}
		if !strings.Contains(err.Error(), "unknown flag") || !strings.Contains(err.Error(), "Usage:") {
			t.Fatalf("%s: unexpected error text: %v", sub, err)
		}
		if !strings.Contains(err.Error(), "restmcp "+sub) {
			t.Fatalf("%s: usage should name the subcommand: %v", sub, err)
		}
	}
}

func TestSpecUsageError_Locations(t *testing.T) {
	t.Parallel()
	plain := errors.New("boom")
	if got := specUsageError(plain); got != plain {
		t.Fatalf("non-spec errors should pass through, got %v", got)
	}

	err := specUsageError(&spec.SpecError{
		Code:        spec.BuildError,
		Message:     "build: GET /a: bad",
		Operation:   "GET /a",
		Location:    "/tmp/spec.yaml",
		JSONPointer: "#/paths/~1a/get",
	})
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	want := "spec: build: GET /a: bad\nOperation: GET /a\nLocation: /tmp/spec.yaml\nPointer: #/paths/~1a/get"
	if err.Error() != want {
		t.Fatalf("unexpected message:\n%s", err)
	}
}
