// Package venue talks to the local signing service and the exchange REST API.
// Raw venue statuses are mapped to order.Status here and nowhere else.
package venue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

var (
	ErrTransport = errors.New("venue: transport failure")
	ErrMalformed = errors.New("venue: malformed response")
)

// RejectionError is returned when the venue refuses a transaction outright.
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string {
	return "venue: transaction rejected: " + e.Message
}

type httpClient struct {
	client  *fasthttp.Client
	baseURL string
	timeout time.Duration
}

func newHTTPClient(client *fasthttp.Client, baseURL string, timeout time.Duration) httpClient {
	if client == nil {
		client = &fasthttp.Client{Name: "trendbot"}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return httpClient{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

// post sends a JSON body and returns the response body and status code. Only transport
// failures are errors here; callers decide what a status code means.
func (c httpClient) post(ctx context.Context, path string, body []byte) ([]byte, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + "/" + strings.TrimLeft(path, "/"))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBody(body)

	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, 0, fmt.Errorf("%w: POST %s: %v", ErrTransport, path, err)
	}
	return append([]byte(nil), resp.Body()...), resp.StatusCode(), nil
}
