// Package dispatch sends reconstructed tool calls to the upstream API and
// turns the answers into MCP tool results.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MaxResponseSize caps how much of an upstream body is read.
const MaxResponseSize = 50 << 20

// DefaultForwardHeaders is used when Options.ForwardHeaders is nil.
var DefaultForwardHeaders = []string{"Authorization"}

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// Timeout bounds each call; zero means no limit beyond the caller's context.
	Timeout time.Duration
	// Headers are sent on every request.
	Headers map[string]string
	// ForwardHeaders lists incoming MCP request headers relayed upstream.
	ForwardHeaders []string
	Logger         *zap.Logger
	Metrics        *Metrics
}

// Client performs upstream requests against one base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	headers    http.Header
	forward    []string
	logger     *zap.Logger
	metrics    *Metrics
	tracer     trace.Tracer
}

// Response is an upstream answer with its body already read.
type Response struct {
	Status      int
	StatusText  string
	ContentType string
	Header      http.Header
	Body        []byte
	// Value is the parsed JSON body, or the body as text.
	Value any
	// IsJSON reports whether Value came from a JSON body.
	IsJSON bool
}

// NewClient validates the base URL and builds a Client.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("dispatch: base URL is required")
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("dispatch: invalid base URL %q", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	headers := make(http.Header, len(opts.Headers))
	for k, v := range opts.Headers {
		headers.Set(k, v)
	}
	forward := opts.ForwardHeaders
	if forward == nil {
		forward = DefaultForwardHeaders
	}

	return &Client{
		baseURL:    base,
		httpClient: hc,
		timeout:    opts.Timeout,
		headers:    headers,
		forward:    forward,
		logger:     logger.With(zap.String("component", "dispatch")),
		metrics:    opts.Metrics,
		tracer:     otel.Tracer("github.com/mark3labs/restmcp/internal/dispatch"),
	}, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Metrics returns the collector the client records into, possibly nil.
func (c *Client) Metrics() *Metrics { return c.metrics }

// Do sends req. A non-2xx answer returns both the response and an
// *UpstreamError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	parent := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := req.URL(c.baseURL)
	ctx, span := c.tracer.Start(ctx, req.Method+" "+req.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", target),
			attribute.String("mcp.tool", req.Tool),
		),
	)
	defer span.End()

	body, contentType, err := encodeBody(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var bodyErr *BodyError
		if errors.As(err, &bodyErr) {
			return nil, bodyErr
		}
		return nil, &TransportError{Method: req.Method, URL: target, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &TransportError{Method: req.Method, URL: target, Err: err}
	}
	c.applyHeaders(parent, httpReq, req)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	c.logger.Debug("upstream request",
		zap.String("tool", req.Tool),
		zap.String("method", req.Method),
		zap.String("url", target),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if parent.Err() != nil {
			return nil, &canceledError{cause: parent.Err()}
		}
		c.logger.Warn("upstream request failed",
			zap.String("tool", req.Tool),
			zap.String("url", target),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, &TransportError{Method: req.Method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		span.RecordError(err)
		if parent.Err() != nil {
			return nil, &canceledError{cause: parent.Err()}
		}
		return nil, &TransportError{Method: req.Method, URL: target, Err: fmt.Errorf("read response: %w", err)}
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.metrics.recordStatus(req.Tool, resp.StatusCode)
	c.logger.Debug("upstream response",
		zap.String("tool", req.Tool),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Duration("duration", duration),
	)

	out := &Response{
		Status:      resp.StatusCode,
		StatusText:  http.StatusText(resp.StatusCode),
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
		Body:        raw,
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, out.StatusText)
		return out, &UpstreamError{Status: resp.StatusCode, Body: raw, ContentType: out.ContentType}
	}
	out.Value, out.IsJSON = decodeBody(raw, out.ContentType)
	return out, nil
}

// applyHeaders layers static headers, forwarded headers and then the
// operation's own header parameters.
func (c *Client) applyHeaders(ctx context.Context, httpReq *http.Request, req *Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			httpReq.Header.Set(k, v)
		}
	}
	if incoming := ForwardedHeaders(ctx); incoming != nil {
		for _, name := range c.forward {
			if v := incoming.Get(name); v != "" {
				httpReq.Header.Set(name, v)
			}
		}
	}
	for k, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Set(k, v)
		}
	}
	for _, ck := range req.Cookies {
		httpReq.AddCookie(ck)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json, */*;q=0.5")
	}
}

func encodeBody(req *Request) (io.Reader, string, error) {
	if !req.HasBody {
		return nil, "", nil
	}
	mediaType, _, _ := mime.ParseMediaType(req.MediaType)
	fields, isObject := req.Body.(map[string]any)
	switch {
	case mediaType == "application/x-www-form-urlencoded":
		if !isObject {
			// A string is taken as an already encoded form.
			if s, ok := req.Body.(string); ok {
				return strings.NewReader(s), mediaType, nil
			}
			return nil, "", &BodyError{Tool: req.Tool, MediaType: mediaType, Body: req.Body}
		}
		form := url.Values{}
		for _, k := range sortedKeys(fields) {
			for _, v := range FormatValues(fields[k]) {
				form.Add(k, v)
			}
		}
		return strings.NewReader(form.Encode()), mediaType, nil
	case mediaType == "multipart/form-data":
		if !isObject {
			return nil, "", &BodyError{Tool: req.Tool, MediaType: mediaType, Body: req.Body}
		}
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for _, k := range sortedKeys(fields) {
			for _, v := range FormatValues(fields[k]) {
				if err := w.WriteField(k, v); err != nil {
					return nil, "", err
				}
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &buf, w.FormDataContentType(), nil
	case strings.HasPrefix(mediaType, "text/"):
		if s, ok := req.Body.(string); ok {
			return strings.NewReader(s), req.MediaType, nil
		}
	case mediaType == "" || isJSONMediaType(mediaType):
	default:
		if s, ok := req.Body.(string); ok {
			return strings.NewReader(s), req.MediaType, nil
		}
	}
	raw, err := json.Marshal(req.Body)
	if err != nil {
		return nil, "", fmt.Errorf("encode body: %w", err)
	}
	return bytes.NewReader(raw), "application/json", nil
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isJSONMediaType(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func decodeBody(raw []byte, contentType string) (any, bool) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if isJSONMediaType(mediaType) && len(bytes.TrimSpace(raw)) > 0 {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, true
		}
	}
	return string(raw), false
}
