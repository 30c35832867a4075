package spec_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/mark3labs/restmcp/internal/dispatch"
	"github.com/mark3labs/restmcp/internal/spec"
	"github.com/mark3labs/restmcp/internal/tools"
)

func v2Tool(t *testing.T, raw, name string) tools.ToolDescriptor {
	t.Helper()
	ctx := context.Background()
	doc, err := spec.LoadData(ctx, []byte(raw))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ops, err := spec.BuildCatalog(ctx, doc)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	list, err := tools.Build(ops, tools.Options{})
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	for _, d := range list {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("tool %s not built", name)
	return tools.ToolDescriptor{}
}

func TestV2Compat_MultipleBodiesBecomeOneFlattenedBody(t *testing.T) {
	t.Parallel()
	// Two body parameters are invalid v2; they are merged into one object body.
	d := v2Tool(t, `swagger: "2.0"
info: { title: t, version: "1.0.0" }
paths:
  /notes/{id}:
    post:
      operationId: add_note
      parameters:
      - { in: path, name: id, required: true, type: integer }
      - in: body
        name: text
        required: true
        schema: { type: string }
      - in: body
        name: priority
        schema: { type: integer }
      responses: { '200': { description: ok } }
`, "add_note")

	if d.Mapping.BodyKind != tools.BodyObject {
		t.Fatalf("expected a flattened body, got %v", d.Mapping.BodyKind)
	}
	props, _ := d.InputSchema["properties"].(map[string]any)
	for _, arg := range []string{"id", "text", "priority"} {
		if _, ok := props[arg]; !ok {
			t.Fatalf("missing argument %q in %v", arg, props)
		}
	}

	req, err := d.Mapping.Reconstruct(map[string]any{"id": 4.0, "text": "hi", "priority": 2.0})
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if got := req.URL(""); got != "/notes/4" {
		t.Fatalf("path: got %s", got)
	}
	want := map[string]any{"text": "hi", "priority": 2.0}
	if !reflect.DeepEqual(req.Body, want) {
		t.Fatalf("body: got %v, want %v", req.Body, want)
	}
}

func TestV2Compat_BodyWithFormDataIsSentAsMultipart(t *testing.T) {
	t.Parallel()
	// A body parameter next to formData ones turns into a form field.
	d := v2Tool(t, `swagger: "2.0"
info: { title: t, version: "1.0.0" }
paths:
  /upload:
    post:
      operationId: upload
      parameters:
      - in: body
        name: desc
        schema: { type: string }
      - in: formData
        name: title
        type: string
        required: true
      responses: { '200': { description: ok } }
`, "upload")

	if d.Mapping.BodyMediaType != "multipart/form-data" {
		t.Fatalf("media type: got %q", d.Mapping.BodyMediaType)
	}

	var contentType string
	var fields map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			fields = r.MultipartForm.Value
		}
		_, _ = io.WriteString(w, "ok")
	}))
	t.Cleanup(srv.Close)

	client, err := dispatch.NewClient(dispatch.Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	req, err := d.Mapping.Reconstruct(map[string]any{"title": "report", "desc": "q3"})
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if _, err := client.Do(context.Background(), req); err != nil {
		t.Fatalf("do: %v", err)
	}

	if !strings.HasPrefix(contentType, "multipart/form-data; boundary=") {
		t.Fatalf("content type: got %q", contentType)
	}
	want := map[string][]string{"title": {"report"}, "desc": {"q3"}}
	if !reflect.DeepEqual(fields, want) {
		t.Fatalf("fields: got %v, want %v", fields, want)
	}
}
