package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainLimiter_BurstThenThrottle(t *testing.T) {
	l := NewDomainLimiter(100, 2)

	ctx := context.Background()
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://clubx.example/a"))
	require.NoError(t, l.Wait(ctx, "https://clubx.example/b"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestDomainLimiter_PerHostIsolation(t *testing.T) {
	l := NewDomainLimiter(0.001, 1)

	ctx := context.Background()
	// Each host gets its own burst token.
	require.NoError(t, l.Wait(ctx, "https://clubx.example/events"))
	require.NoError(t, l.Wait(ctx, "https://hall-y.example/events"))
}

func TestDomainLimiter_ExhaustedTokenRespectsContext(t *testing.T) {
	l := NewDomainLimiter(0.001, 1)
	require.NoError(t, l.Wait(context.Background(), "https://clubx.example/a"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://clubx.example/b")
	assert.Error(t, err)
}

func TestDomainLimiter_UnparseableURLPassesThrough(t *testing.T) {
	l := NewDomainLimiter(0.001, 1)
	assert.NoError(t, l.Wait(context.Background(), "not a url"))
}
