// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package admission bounds how many expensive operations run at once.
//
// A Gate is an explicit token pool, injected where it is needed rather than
// held as ambient global state, so capacity is configurable and the bound is
// testable with N concurrent acquirers.
package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/mediagate/internal/metrics"
	"golang.org/x/sync/semaphore"
)

// Gate is a fixed-capacity counting resource. Waiters block without
// spinning and are admitted in FIFO order.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64
	inUse    atomic.Int64
}

// NewGate returns a gate with the given capacity. Values below 1 select 1.
func NewGate(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
}

// Capacity is the number of concurrent holders allowed.
func (g *Gate) Capacity() int { return int(g.capacity) }

// InUse is the number of tokens currently held.
func (g *Gate) InUse() int { return int(g.inUse.Load()) }

// Acquire blocks until a token is available or ctx is done. The returned
// release func is idempotent.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	start := time.Now()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		metrics.ObserveAdmissionWait(time.Since(start), false)
		return nil, err
	}
	metrics.ObserveAdmissionWait(time.Since(start), true)
	return g.admitted(), nil
}

// TryAcquire takes a token only if one is free right now.
func (g *Gate) TryAcquire() (release func(), ok bool) {
	if !g.sem.TryAcquire(1) {
		return nil, false
	}
	return g.admitted(), true
}

// Do runs fn while holding a token. The token is released on every exit
// path, including a panic in fn.
func (g *Gate) Do(ctx context.Context, fn func(context.Context) error) error {
	release, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

func (g *Gate) admitted() func() {
	metrics.SetAdmissionInUse(float64(g.inUse.Add(1)))
	var once sync.Once
	return func() {
		once.Do(func() {
			metrics.SetAdmissionInUse(float64(g.inUse.Add(-1)))
			g.sem.Release(1)
		})
	}
}
