// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package testutil

import "sync"

// ConcurrencyProbe records how many callers are inside a region at once.
type ConcurrencyProbe struct {
	mu      sync.Mutex
	current int
	max     int
	total   int
}

// Enter marks one caller entering the region.
func (p *ConcurrencyProbe) Enter() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current++
	p.total++
	if p.current > p.max {
		p.max = p.current
	}
}

// Exit marks one caller leaving the region.
func (p *ConcurrencyProbe) Exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current--
}

// Max is the highest concurrency observed.
func (p *ConcurrencyProbe) Max() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.max
}

// Total is the number of Enter calls.
func (p *ConcurrencyProbe) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}
