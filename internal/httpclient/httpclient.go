package httpclient

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const DefaultUserAgent = "shoe-concept-studio/1.0"

type Options struct {
	PreferIPv4 bool
	Timeout    time.Duration
	UserAgent  string
	Logger     *slog.Logger
}

// New returns the client shared by the generation backends and the Telegram API.
// Image generation is slow, so the overall timeout is generous while dialing
// and TLS stay short.
func New(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	dialer := &net.Dialer{
		Timeout:   15 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if opts.PreferIPv4 {
				return dialer.DialContext(ctx, "tcp4", addr)
			}
			return dialer.DialContext(ctx, network, addr)
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &transport{
			next:      base,
			userAgent: userAgent,
			logger:    logger,
		},
	}
}

type transport struct {
	next      http.RoundTripper
	userAgent string
	logger    *slog.Logger
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("user-agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("user-agent", t.userAgent)
	}

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		t.logger.Debug("outbound failed", "method", req.Method, "host", req.URL.Host, "err", err, "dur_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	t.logger.Debug("outbound", "method", req.Method, "host", req.URL.Host, "status", resp.StatusCode, "dur_ms", time.Since(start).Milliseconds())
	return resp, nil
}
