package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostLimiter_SpacesSameHost(t *testing.T) {
	gap := 80 * time.Millisecond
	h := NewHostLimiter(gap)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, h.Wait(ctx, "example.com"))
	assert.Less(t, time.Since(start), gap/2, "first request should not wait")

	require.NoError(t, h.Wait(ctx, "EXAMPLE.com"))
	assert.GreaterOrEqual(t, time.Since(start), gap-10*time.Millisecond)
}

func TestHostLimiter_IndependentHosts(t *testing.T) {
	h := NewHostLimiter(time.Second)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, h.Wait(ctx, "a.example"))
	require.NoError(t, h.Wait(ctx, "b.example"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 2, h.Hosts())
}

func TestHostLimiter_ContextCancelled(t *testing.T) {
	h := NewHostLimiter(time.Hour)
	require.NoError(t, h.Wait(context.Background(), "slow.example"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, h.Wait(ctx, "slow.example"))
}

func TestHostLimiter_Disabled(t *testing.T) {
	var nilLimiter *HostLimiter
	assert.NoError(t, nilLimiter.Wait(context.Background(), "x"))

	h := NewHostLimiter(0)
	for i := 0; i < 3; i++ {
		assert.NoError(t, h.Wait(context.Background(), "x"))
	}
}
