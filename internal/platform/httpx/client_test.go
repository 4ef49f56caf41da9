// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package httpx

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamingClient_NoOverallTimeoutNoProxy(t *testing.T) {
	client := NewStreamingClient(Options{Strict: true})
	assert.Zero(t, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Nil(t, transport.Proxy)
	assert.Equal(t, streamResponseHeaderTimeout, transport.ResponseHeaderTimeout)
	require.NotNil(t, transport.TLSClientConfig)
}

func TestStreamingClient_StrictRefusesLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("internal"))
	}))
	defer srv.Close()

	strict := NewStreamingClient(Options{Strict: true})
	resp, err := strict.Get(srv.URL)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDialBlocked)

	relaxed := NewStreamingClient(Options{Strict: false})
	resp, err = relaxed.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGuardControl(t *testing.T) {
	assert.ErrorIs(t, guardControl("tcp4", "10.0.0.1:443", nil), ErrDialBlocked)
	assert.ErrorIs(t, guardControl("tcp6", "[::1]:443", nil), ErrDialBlocked)
	assert.ErrorIs(t, guardControl("tcp", "not-an-address", nil), ErrDialBlocked)
	assert.NoError(t, guardControl("tcp4", "93.184.216.34:443", nil))
}

func TestStreamingClient_UserAgentAndDialOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-UA", r.UserAgent())
	}))
	defer srv.Close()

	var dialled atomic.Bool
	client := NewStreamingClient(Options{
		Strict:    true,
		UserAgent: "mediagate-test/1.0",
		Trace:     true,
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			dialled.Store(true)
			var d net.Dialer
			return d.DialContext(ctx, network, srv.Listener.Addr().String())
		},
	})

	resp, err := client.Get("http://media.example/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.True(t, dialled.Load())
	assert.Equal(t, "mediagate-test/1.0", resp.Header.Get("X-Seen-UA"))

	req, err := http.NewRequest(http.MethodGet, "http://media.example/", nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "caller/2")
	resp, err = client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "caller/2", resp.Header.Get("X-Seen-UA"))
}
