package network

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	ErrFetchFailed  = errors.New("fetch failed")
	ErrBodyTooLarge = errors.New("response body exceeds limit")
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
	Do(ctx context.Context, req *http.Request) (*Response, error)
}

// Response is a fully read HTTP response. Redirected reports whether the
// final URL differs from the requested one.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Redirected bool
}

func (r *Response) OK() bool {
	return r != nil && r.StatusCode == http.StatusOK
}

type Options struct {
	Timeout       time.Duration
	UserAgent     string
	MinTLSVersion string
	MaxBodyBytes  int64
}

type Client struct {
	httpClient   *http.Client
	userAgent    string
	maxBodyBytes int64
}

var _ Fetcher = (*Client)(nil)

func NewClient(opts Options) (*Client, error) {
	minTLS := uint16(tls.VersionTLS12)
	if opts.MinTLSVersion != "" {
		version, err := TLSVersion(opts.MinTLSVersion)
		if err != nil {
			return nil, err
		}
		minTLS = version
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: minTLS}

	return &Client{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		userAgent:    opts.UserAgent,
		maxBodyBytes: opts.MaxBodyBytes,
	}, nil
}

// Fetch performs a GET request for url
func (c *Client) Fetch(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.Do(ctx, req)
}

// Do sends req and reads the whole body. Transport failures and bodies over
// the size limit are returned as errors; any HTTP status is a valid Response.
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	req = req.WithContext(ctx)
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w: %w", req.URL, ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if c.maxBodyBytes > 0 {
		// One byte past the limit tells a full body from a cut one
		body = io.LimitReader(resp.Body, c.maxBodyBytes+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w: %w", ErrFetchFailed, err)
	}
	if c.maxBodyBytes > 0 && int64(len(data)) > c.maxBodyBytes {
		return nil, fmt.Errorf("failed to fetch %s: %w: %w (limit %d bytes)", req.URL, ErrFetchFailed, ErrBodyTooLarge, c.maxBodyBytes)
	}

	finalURL := req.URL.String()
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		URL:        finalURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Redirected: finalURL != req.URL.String(),
	}, nil
}
