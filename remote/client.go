/*
Package remote calls the authoritative evaluator over HTTP.

PURPOSE:
  The remote evaluator is another deployment of this service answering
  POST /api/evaluate. The client speaks the same Request/Response
  contract as the local evaluator so simulation.Fallback can swap one
  for the other.

FAILURES:
  Every transport failure, timeout, non-200 status or undecodable body
  becomes a *scheme.RemoteError, which unwraps to ErrRemoteUnavailable.
  An empty URL returns ErrRemoteNotConfigured without a network call.

SEE ALSO:
  - simulation/fallback.go: Falls back to the local evaluator
*/
package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"

	"github.com/warp/commission-engine/scheme"
	"github.com/warp/commission-engine/simulation"
)

const (
	evaluatePath   = "/api/evaluate"
	DefaultTimeout = 3 * time.Second
)

// Client is a remote evaluator.
type Client struct {
	URL     string
	Timeout time.Duration

	http *fasthttp.Client
}

var _ simulation.Evaluator = (*Client)(nil)

// New creates a client for the evaluator at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		URL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Timeout: timeout,
		http: &fasthttp.Client{
			Name:                "commission-engine",
			MaxConnsPerHost:     100,
			MaxIdleConnDuration: 90 * time.Second,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
		},
	}
}

// Configured reports whether the client has somewhere to call.
func (c *Client) Configured() bool {
	return c != nil && c.URL != ""
}

// Evaluate posts the request to the remote evaluator.
func (c *Client) Evaluate(ctx context.Context, req simulation.Request) (*simulation.Response, error) {
	if !c.Configured() {
		return nil, scheme.ErrRemoteNotConfigured
	}
	url := c.URL + evaluatePath
	if err := ctx.Err(); err != nil {
		return nil, &scheme.RemoteError{URL: url, Err: err}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode evaluation request: %w", err)
	}

	hreq := fasthttp.AcquireRequest()
	hresp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(hreq)
	defer fasthttp.ReleaseResponse(hresp)

	hreq.SetRequestURI(url)
	hreq.Header.SetMethod(fasthttp.MethodPost)
	hreq.Header.SetContentType("application/json")
	hreq.Header.Set(fasthttp.HeaderAccept, "application/json")
	hreq.SetBody(body)

	deadline := time.Now().Add(c.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(hreq, hresp, deadline); err != nil {
		return nil, &scheme.RemoteError{URL: url, Err: err}
	}
	if code := hresp.StatusCode(); code != fasthttp.StatusOK {
		return nil, &scheme.RemoteError{URL: url, StatusCode: code}
	}

	var out simulation.Response
	if err := json.Unmarshal(hresp.Body(), &out); err != nil {
		return nil, &scheme.RemoteError{URL: url, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &out, nil
}
