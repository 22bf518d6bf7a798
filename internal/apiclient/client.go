package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// RequestSigner authenticates an outgoing request whose payload is body.
type RequestSigner interface {
	Sign(ctx context.Context, req *http.Request, body []byte, region string) error
}

// Result is the raw outcome of a call to the ingest endpoint.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the response body into v.
func (r *Result) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("invalid JSON response: %w", err)
	}
	return nil
}

// Client posts JSON events to a deployed or local ingest endpoint.
type Client struct {
	httpClient *http.Client
	signer     RequestSigner
	region     string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client with a 10s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithSigner signs every request for region.
func WithSigner(s RequestSigner, region string) Option {
	return func(cl *Client) {
		cl.signer = s
		cl.region = region
	}
}

func New(opts ...Option) *Client {
	c := &Client{httpClient: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PostJSON encodes payload and POSTs it to url.
func (c *Client) PostJSON(ctx context.Context, url string, payload any) (*Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.signer != nil {
		if err := c.signer.Sign(ctx, req, body, c.region); err != nil {
			return nil, err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Result{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}
