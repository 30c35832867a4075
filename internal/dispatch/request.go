package dispatch

import (
	"net/http"
	"net/url"
)

// Request is a fully reconstructed upstream call, independent of the base URL.
type Request struct {
	// Tool names the tool the request was built for; used for logs and metrics.
	Tool    string
	Method  string
	Path    string // template expanded and escaped, starts with "/"
	Query   url.Values
	Header  http.Header
	Cookies []*http.Cookie
	// Body is sent only when HasBody is set, encoded per MediaType.
	Body      any
	HasBody   bool
	MediaType string
}

// NewRequest returns a Request with empty query and header sets.
func NewRequest(tool, method, path string) *Request {
	return &Request{
		Tool:   tool,
		Method: method,
		Path:   path,
		Query:  url.Values{},
		Header: http.Header{},
	}
}

// URL joins the request path and query onto base. base must not end in "/".
func (r *Request) URL(base string) string {
	u := base + r.Path
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	return u
}
