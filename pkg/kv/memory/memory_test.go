package memory

import (
	"context"
	"testing"
	"time"

	"github.com/EcoEarn/ecoearn-interface-sub000/pkg/kv"
	"github.com/EcoEarn/ecoearn-interface-sub000/pkg/kv/kvtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	factory := func(t *testing.T) kv.Store {
		return New(0) // no janitor: deterministic expiry checks
	}

	kvtest.RunConformanceTests(t, factory)
}

func TestMemoryStoreWithJanitor(t *testing.T) {
	store := New(10 * time.Millisecond)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "test:janitor", []byte("x"), 20*time.Millisecond))

	_, err := store.Get(ctx, "test:janitor")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		store.mu.RLock()
		defer store.mu.RUnlock()
		_, present := store.values["test:janitor"]
		return !present
	}, time.Second, 10*time.Millisecond, "janitor should evict the expired key")
}

func TestMemoryStoreClock(t *testing.T) {
	store := New(0)
	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))

	ttl, err := store.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	now = now.Add(time.Minute + time.Nanosecond)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := New(0)
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", buf))
	buf[0] = 'z'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestCloseIsIdempotent(t *testing.T) {
	store := New(time.Millisecond)
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
