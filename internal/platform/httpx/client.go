// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package httpx builds the outbound HTTP clients used for media retrieval.
package httpx

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"

	"github.com/ManuGH/mediagate/internal/metrics"
	pnet "github.com/ManuGH/mediagate/internal/platform/net"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultDialTimeout           = 3 * time.Second
	defaultIdleConnTimeout       = 30 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 16
	defaultMaxIdleConnsPerHost   = 4

	streamResponseHeaderTimeout = 15 * time.Second
)

// ErrDialBlocked is returned when the address actually being dialled is in a
// blocked range, even though the host passed validation earlier.
var ErrDialBlocked = errors.New("dial to blocked address refused")

// Options configures a streaming client.
type Options struct {
	// Strict enables the dial guard.
	Strict bool
	// ResponseHeaderTimeout bounds the wait for response headers. The body
	// transfer itself is bounded only by the request context.
	ResponseHeaderTimeout time.Duration
	// UserAgent, if set, is sent on every request that does not carry one.
	UserAgent string
	// Trace wraps the transport with OpenTelemetry instrumentation.
	Trace bool

	// DialContext replaces the guarded dialer. Test seam only: a replacement
	// dialer is used as given and is not guarded.
	DialContext func(ctx context.Context, network, addr string) (net.Conn, error)
	// TLSClientConfig overrides the default TLS configuration.
	TLSClientConfig *tls.Config
}

// NewStreamingClient returns a client for large media transfers. It has no
// overall timeout, never uses an environment proxy (a proxy would hide the
// real destination from the dial guard) and, in strict mode, refuses to
// connect to any blocked address.
func NewStreamingClient(opts Options) *http.Client {
	return &http.Client{Transport: NewStreamingTransport(opts)}
}

// NewStreamingTransport returns the round tripper behind NewStreamingClient.
func NewStreamingTransport(opts Options) http.RoundTripper {
	headerTimeout := opts.ResponseHeaderTimeout
	if headerTimeout <= 0 {
		headerTimeout = streamResponseHeaderTimeout
	}

	dial := opts.DialContext
	if dial == nil {
		d := &net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}
		if opts.Strict {
			d.Control = guardControl
		}
		dial = d.DialContext
	}

	tlsConfig := opts.TLSClientConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	var rt http.RoundTripper = &http.Transport{
		Proxy:                 nil,
		DialContext:           dial,
		TLSClientConfig:       tlsConfig,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultDialTimeout,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
	}
	if opts.UserAgent != "" {
		rt = &userAgentTransport{base: rt, ua: opts.UserAgent}
	}
	if opts.Trace {
		rt = otelhttp.NewTransport(rt)
	}
	return rt
}

// guardControl runs after DNS resolution, immediately before connect, with
// the literal address being dialled.
func guardControl(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: unparsable dial address %q", ErrDialBlocked, address)
	}
	if pnet.IsBlockedAddr(ap.Addr()) {
		metrics.RecordDialReject()
		return fmt.Errorf("%w: %s %s", ErrDialBlocked, network, ap.Addr().Unmap())
	}
	return nil
}

type userAgentTransport struct {
	base http.RoundTripper
	ua   string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.ua)
	return t.base.RoundTrip(clone)
}
