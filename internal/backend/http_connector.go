// Package backend issues the outbound calls to downstream CRUD services.
package backend

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloudgateway/internal/config"
	"cloudgateway/internal/core"
	"cloudgateway/pkg/errors"
)

// hopByHopHeaders are stripped before forwarding
var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailers":            true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

// NewClient builds the shared downstream HTTP client from backend config.
// It is constructed once at process start and shared by reference.
func NewClient(cfg config.HTTPBackend) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
	}
	if cfg.IdleConnTimeout > 0 {
		transport.IdleConnTimeout = time.Duration(cfg.IdleConnTimeout) * time.Second
	}
	if cfg.DialTimeout > 0 {
		transport.DialContext = (&net.Dialer{
			Timeout: time.Duration(cfg.DialTimeout) * time.Second,
		}).DialContext
	}

	// Per-call deadlines come from the request context, not the client.
	return &http.Client{Transport: transport}
}

// HTTPConnector implements core.Connector for HTTP downstream services
type HTTPConnector struct {
	client         *http.Client
	defaultTimeout time.Duration
}

// NewHTTPConnector creates an HTTP connector with the provided shared client
func NewHTTPConnector(client *http.Client, defaultTimeout time.Duration) *HTTPConnector {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	return &HTTPConnector{
		client:         client,
		defaultTimeout: defaultTimeout,
	}
}

// Call forwards the request to the resolved instance with the bearer token
// attached, under the given deadline. Failures come back typed: timeout,
// connection error, or the response itself for status handling upstream.
func (c *HTTPConnector) Call(ctx context.Context, req core.Request, instance *core.Instance, bearerToken string, timeout time.Duration) (core.Response, error) {
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	// cancel is tied to the response body: the caller owns the body stream.
	downstreamURL, err := c.buildURL(req, instance)
	if err != nil {
		cancel()
		return nil, errors.NewError(errors.ErrorTypeBadRequest, "failed to build downstream URL").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method(), downstreamURL, req.Body())
	if err != nil {
		cancel()
		return nil, errors.NewError(errors.ErrorTypeInternal, "failed to create downstream request").WithCause(err)
	}

	for key, values := range req.Headers() {
		if hopByHopHeaders[strings.ToLower(key)] {
			continue
		}
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	httpReq.Header.Set("X-Forwarded-For", req.RemoteAddr())
	httpReq.Header.Set("X-Forwarded-Proto", "http")
	if host := req.Headers()["Host"]; len(host) > 0 {
		httpReq.Header.Set("X-Forwarded-Host", host[0])
	}
	if bearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, c.classify(err, instance)
	}

	return &httpResponse{
		statusCode: resp.StatusCode,
		headers:    resp.Header,
		body:       &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
	}, nil
}

// classify maps transport errors onto the breaker-relevant taxonomy:
// deadline expiry is a timeout, everything else a downstream failure.
func (c *HTTPConnector) classify(err error, instance *core.Instance) error {
	if isTimeout(err) {
		return errors.NewError(errors.ErrorTypeTimeout, "downstream call timed out").
			WithCause(err).
			WithDetail("instance", instance.HostPort())
	}
	return errors.NewError(errors.ErrorTypeBadGateway, "downstream call failed").
		WithCause(err).
		WithDetail("instance", instance.HostPort())
}

func isTimeout(err error) bool {
	for err != nil {
		if err == context.DeadlineExceeded {
			return true
		}
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (c *HTTPConnector) buildURL(req core.Request, instance *core.Instance) (string, error) {
	u, err := url.Parse(req.URL())
	if err != nil {
		return "", err
	}

	scheme := instance.Scheme
	if scheme == "" {
		scheme = "http"
	}

	return fmt.Sprintf("%s://%s%s", scheme, instance.HostPort(), u.RequestURI()), nil
}

// cancelOnClose releases the call's timeout context when the body is closed
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// httpResponse implements core.Response for downstream HTTP responses
type httpResponse struct {
	statusCode int
	headers    http.Header
	body       io.ReadCloser
}

func (r *httpResponse) StatusCode() int {
	return r.statusCode
}

func (r *httpResponse) Headers() map[string][]string {
	return r.headers
}

func (r *httpResponse) Body() io.ReadCloser {
	return r.body
}
