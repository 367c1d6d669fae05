package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

const (
	// MaxResponseBodyChars bounds the stored response excerpt.
	MaxResponseBodyChars = 2000

	maxResponseBytes = 64 << 10
	defaultUserAgent = "oficinapro-webhooks/1.0"
)

// Request is a single signed POST.
type Request struct {
	URL     string
	Payload []byte
	Secret  string
	Headers map[string]string
	Timeout time.Duration
}

// Outcome describes what happened on the wire. StatusCode is zero when no
// response was received.
type Outcome struct {
	StatusCode int
	Body       string
	Err        error
	Latency    time.Duration
	SentAt     time.Time
}

// Succeeded reports a 2xx response.
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.StatusCode >= 200 && o.StatusCode < 300
}

// Error returns the failure text, or "" on success.
func (o Outcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Client performs single webhook attempts. It never retries on its own.
type Client struct {
	http           *http.Client
	userAgent      string
	defaultTimeout time.Duration
	now            func() time.Time
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			// Redirects are not followed: the captured URL is the contract.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent:      defaultUserAgent,
		defaultTimeout: 30 * time.Second,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deliver POSTs req.Payload to req.URL once and reports the result.
func (c *Client) Deliver(ctx context.Context, req Request) Outcome {
	start := c.now()
	out := Outcome{SentAt: start}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, req.URL, bytes.NewReader(req.Payload))
	if err != nil {
		out.Err = fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		out.Latency = c.now().Sub(start)
		return out
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	for k, v := range SignatureHeaders(req.Secret, req.Payload, start) {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		out.Latency = c.now().Sub(start)
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			out.Err = fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, err)
		} else {
			out.Err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return out
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	out.Latency = c.now().Sub(start)
	out.StatusCode = resp.StatusCode
	out.Body = Truncate(string(body), MaxResponseBodyChars)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		out.Err = fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return out
}

// Truncate cuts s to at most n characters without splitting a rune.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
