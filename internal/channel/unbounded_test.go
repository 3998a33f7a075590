package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnbounded_SendsNeverWaitForReader(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	u := NewUnbounded[int](ctx, 2)
	for i := 0; i < 1000; i++ {
		require.NoError(t, u.Send(ctx, i))
	}
	u.Close()

	got := make([]int, 0, 1000)
	for v := range u.Out() {
		got = append(got, v)
	}
	require.Len(t, got, 1000)
	for i, v := range got {
		assert.Equal(t, i, v)
	}

	stats := u.Stats()
	assert.Equal(t, int64(1000), stats.Sends)
	assert.Equal(t, int64(1000), stats.Receives)
	assert.Greater(t, stats.Peak, int64(1))
}

func TestUnbounded_CancelClosesOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	u := NewUnbounded[string](ctx, 0)
	require.NoError(t, u.Send(ctx, "a"))
	cancel()

	select {
	case <-drain(u.Out()):
	case <-time.After(2 * time.Second):
		t.Fatal("out channel was not closed after cancel")
	}
	assert.ErrorIs(t, u.Send(ctx, "b"), context.Canceled)
}

func drain[T any](ch <-chan T) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()
	return done
}
