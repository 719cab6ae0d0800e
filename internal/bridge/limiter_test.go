package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSlidingWindowLimiter_AllowsUpToMax(t *testing.T) {
	l := newSlidingWindowLimiter(time.Minute, 10)
	now := time.Now()
	for i := 0; i < 10; i++ {
		require.True(t, l.Allow(now))
	}
	require.False(t, l.Allow(now))
}

func TestSlidingWindowLimiter_WindowExpires(t *testing.T) {
	l := newSlidingWindowLimiter(time.Second, 1)
	now := time.Now()
	require.True(t, l.Allow(now))
	require.False(t, l.Allow(now))
	require.True(t, l.Allow(now.Add(2*time.Second)))
}
