// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package testutil holds helpers shared by package tests: TLS media servers
// reachable under allow-listed host names, a public-answer resolver, scoped
// temporary roots and a concurrency probe.
package testutil

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/ManuGH/mediagate/internal/allowlist"
	"github.com/ManuGH/mediagate/internal/platform/fs"
	"github.com/ManuGH/mediagate/internal/platform/httpx"
	pnet "github.com/ManuGH/mediagate/internal/platform/net"
)

// PublicAddr is the address every host resolves to under PublicResolver.
var PublicAddr = netip.MustParseAddr("93.184.216.34")

// PublicResolver answers every lookup with PublicAddr, so strict DNS
// classification passes without network access.
func PublicResolver() pnet.ResolverFunc {
	return func(context.Context, string) ([]netip.Addr, error) {
		return []netip.Addr{PublicAddr}, nil
	}
}

// Validator returns a strict validator over the built-in allow-list backed
// by PublicResolver.
func Validator() *pnet.Validator {
	return pnet.NewValidator(allowlist.Default(true), PublicResolver())
}

// MediaServer is an HTTPS test server that answers for any host name.
type MediaServer struct {
	*httptest.Server
}

// NewMediaServer starts a TLS server and registers its shutdown.
func NewMediaServer(t *testing.T, handler http.Handler) *MediaServer {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)
	return &MediaServer{Server: srv}
}

// Dial connects to the server whatever address was requested.
func (m *MediaServer) Dial(ctx context.Context, network, _ string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, m.Listener.Addr().String())
}

// Client returns a streaming client that routes every connection to the
// server and trusts its certificate for any requested host.
func (m *MediaServer) Client() *http.Client {
	base := m.Server.Client().Transport.(*http.Transport).TLSClientConfig.Clone()
	// The httptest certificate is issued for example.com.
	base.ServerName = "example.com"
	base.MinVersion = tls.VersionTLS12
	return httpx.NewStreamingClient(httpx.Options{
		DialContext:     m.Dial,
		TLSClientConfig: base,
	})
}

// Roots creates a download root and a temp root under t.TempDir and returns
// them with the scope that spans both.
func Roots(t *testing.T) (scope *fs.PathScope, downloadRoot, tempRoot string) {
	t.Helper()
	base, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("resolve temp dir: %v", err)
	}
	downloadRoot = filepath.Join(base, "downloads")
	tempRoot = filepath.Join(base, "tmp")
	for _, d := range []string{downloadRoot, tempRoot} {
		if err := os.MkdirAll(d, 0o750); err != nil {
			t.Fatalf("create root: %v", err)
		}
	}
	scope, err = fs.NewPathScope(downloadRoot, tempRoot)
	if err != nil {
		t.Fatalf("path scope: %v", err)
	}
	return scope, downloadRoot, tempRoot
}

// ListFiles returns every regular file under dir, relative to dir.
func ListFiles(t *testing.T, dir string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", dir, err)
	}
	return out
}
