package httpclient

import (
	"crypto/tls"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client wraps resty for HTTP calls to external panels and APIs. The
// underlying resty client keeps a cookie jar, so session cookies set by
// a login endpoint are replayed on subsequent requests automatically.
type Client struct {
	r *resty.Client
}

// New creates an HTTP client with sensible defaults.
func New() *Client {
	r := resty.New().SetTimeout(10 * time.Second)
	return &Client{r: r}
}

// WithTimeout sets a custom timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.r.SetTimeout(d)
	return c
}

// WithHeader sets a default header on every request.
func (c *Client) WithHeader(key, value string) *Client {
	c.r.SetHeader(key, value)
	return c
}

// WithBaseURL sets the base URL prepended to request paths.
func (c *Client) WithBaseURL(url string) *Client {
	c.r.SetBaseURL(url)
	return c
}

// WithInsecureSkipVerify disables TLS verification. Self-hosted panels
// commonly run on self-signed certificates.
func (c *Client) WithInsecureSkipVerify() *Client {
	c.r.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	return c
}

// Request returns a new resty Request for chaining.
func (c *Client) Request() *resty.Request {
	return c.r.R()
}

// Raw returns the underlying resty client.
func (c *Client) Raw() *resty.Client {
	return c.r
}
