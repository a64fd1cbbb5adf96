package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client wraps resty for requests to the payment provider and other APIs.
// It never retries; a failed call is reported to the caller as is.
type Client struct {
	r       *resty.Client
	timeout time.Duration
}

// Response is the raw outcome of a request that reached the server.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// New creates a new HTTP client with the given timeout.
func New(timeout time.Duration) *Client {
	r := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0)

	return &Client{r: r, timeout: timeout}
}

// WithHeader sets a header sent with every request.
func (c *Client) WithHeader(key, value string) *Client {
	c.r.SetHeader(key, value)
	return c
}

// Timeout returns the configured request timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Do sends a request with the given headers and raw body. Headers are set
// verbatim so that non-canonical names such as netgiro_appkey survive.
// A non-2xx status is not an error; only transport failures are.
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Response, error) {
	req := c.r.R().SetContext(ctx)
	for k, v := range headers {
		req.Header[k] = []string{v}
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		Header:     resp.Header(),
		Body:       resp.Body(),
	}, nil
}
