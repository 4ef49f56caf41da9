// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/mediagate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewGateClampsCapacity(t *testing.T) {
	assert.Equal(t, 1, NewGate(0).Capacity())
	assert.Equal(t, 1, NewGate(-3).Capacity())
	assert.Equal(t, 4, NewGate(4).Capacity())
}

func TestGateBoundsConcurrentAcquirers(t *testing.T) {
	for _, capacity := range []int{1, 2, 3} {
		gate := NewGate(capacity)
		var probe testutil.ConcurrencyProbe
		var wg sync.WaitGroup
		const acquirers = 24

		for i := 0; i < acquirers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := gate.Do(context.Background(), func(context.Context) error {
					probe.Enter()
					defer probe.Exit()
					assert.LessOrEqual(t, gate.InUse(), capacity)
					time.Sleep(2 * time.Millisecond)
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, acquirers, probe.Total())
		assert.LessOrEqual(t, probe.Max(), capacity, "capacity %d", capacity)
		assert.Zero(t, gate.InUse())
	}
}

func TestAcquireHonoursContext(t *testing.T) {
	gate := NewGate(1)
	release, err := gate.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = gate.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, gate.InUse())

	release()
	release() // idempotent
	assert.Zero(t, gate.InUse())

	next, err := gate.Acquire(context.Background())
	require.NoError(t, err)
	next()
}

func TestTryAcquire(t *testing.T) {
	gate := NewGate(1)
	release, ok := gate.TryAcquire()
	require.True(t, ok)
	_, ok = gate.TryAcquire()
	assert.False(t, ok)
	release()
	release2, ok := gate.TryAcquire()
	require.True(t, ok)
	release2()
}

func TestDoReleasesOnErrorAndPanic(t *testing.T) {
	gate := NewGate(1)
	boom := errors.New("launch failed")

	err := gate.Do(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, gate.InUse())

	assert.Panics(t, func() {
		_ = gate.Do(context.Background(), func(context.Context) error { panic("mux crashed") })
	})
	assert.Zero(t, gate.InUse())

	_, ok := gate.TryAcquire()
	assert.True(t, ok, "slot must not leak after panic")
}
