// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package net

import (
	"context"
	stdnet "net"
	"net/netip"
)

// Resolver is the DNS boundary of the validator. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// LookupNetIP implements Resolver.
func (f ResolverFunc) LookupNetIP(ctx context.Context, _ string, host string) ([]netip.Addr, error) {
	return f(ctx, host)
}

// DefaultResolver is the system resolver.
var DefaultResolver Resolver = stdnet.DefaultResolver
