package trip

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := NewInMemoryStore(time.Hour, zerolog.Nop())
	store.now = func() time.Time { return now }

	require.NoError(t, store.Create(ctx, newSession("a", now)))
	require.NoError(t, store.Create(ctx, newSession("b", now)))

	now = now.Add(50 * time.Minute)
	_, err := store.Get(ctx, "a")
	require.NoError(t, err)

	// "a" was touched; "b" has now been idle for longer than the TTL.
	now = now.Add(20 * time.Minute)
	_, err = store.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Get(ctx, "a")
	require.NoError(t, err)

	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())
}

func TestInMemoryStore_DeleteCancelsRuns(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(0, zerolog.Nop())
	s := newSession("a", time.Now())
	require.NoError(t, store.Create(ctx, s))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.planSeq = 3
	s.planCancel = cancel
	s.mu.Unlock()

	require.NoError(t, store.Delete(ctx, "a"))
	assert.ErrorIs(t, runCtx.Err(), context.Canceled)
	assert.Equal(t, uint64(4), s.planSeq)

	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	require.NoError(t, store.Delete(ctx, "a"))
}

func TestInMemoryStore_RunJanitor(t *testing.T) {
	now := time.Now()
	store := NewInMemoryStore(time.Minute, zerolog.Nop())
	store.now = func() time.Time { return now.Add(time.Hour) }
	require.NoError(t, store.Create(context.Background(), newSession("a", now)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
