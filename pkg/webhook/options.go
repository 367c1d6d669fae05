package webhook

import (
	"net/http"
	"time"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the pooled default client. Per-request timeouts are
// still applied through the request context.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(cl *Client) {
		if ua != "" {
			cl.userAgent = ua
		}
	}
}

// WithClock overrides the time source used for the timestamp header and
// latency measurement.
func WithClock(now func() time.Time) ClientOption {
	return func(cl *Client) {
		if now != nil {
			cl.now = now
		}
	}
}

// WithDefaultTimeout is used when a Request carries no timeout.
func WithDefaultTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		if d > 0 {
			cl.defaultTimeout = d
		}
	}
}
