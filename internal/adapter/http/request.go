package http

import (
	"context"
	"io"
	"net/http"

	"cloudgateway/internal/core"
)

// request wraps an inbound *http.Request as a core.Request
type request struct {
	id         string
	httpReq    *http.Request
	remoteAddr string
}

func newRequest(id string, r *http.Request) core.Request {
	if r.Header.Get("X-Forwarded-Proto") == "" {
		r.Header.Set("X-Forwarded-Proto", "http")
	}
	return &request{
		id:         id,
		httpReq:    r,
		remoteAddr: r.RemoteAddr,
	}
}

func (r *request) ID() string {
	return r.id
}

func (r *request) Method() string {
	return r.httpReq.Method
}

func (r *request) Path() string {
	return r.httpReq.URL.Path
}

func (r *request) URL() string {
	return r.httpReq.URL.String()
}

func (r *request) RemoteAddr() string {
	return r.remoteAddr
}

func (r *request) Headers() map[string][]string {
	headers := make(map[string][]string, len(r.httpReq.Header))
	for k, v := range r.httpReq.Header {
		headers[k] = v
	}
	return headers
}

func (r *request) Body() io.ReadCloser {
	if r.httpReq.Body != nil {
		return r.httpReq.Body
	}
	return http.NoBody
}

func (r *request) Context() context.Context {
	return r.httpReq.Context()
}
