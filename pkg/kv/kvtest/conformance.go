// Package kvtest provides conformance tests for kv.Store implementations
package kvtest

import (
	"context"
	"testing"
	"time"

	"github.com/EcoEarn/ecoearn-interface-sub000/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreFactory creates a fresh Store instance for testing
type StoreFactory func(t *testing.T) kv.Store

// RunConformanceTests runs all conformance tests against a Store implementation
func RunConformanceTests(t *testing.T, factory StoreFactory) {
	tests := []struct {
		name string
		test func(t *testing.T, store kv.Store)
	}{
		{"SetGet", testSetGet},
		{"GetNonExistent", testGetNonExistent},
		{"Overwrite", testOverwrite},
		{"Del", testDel},
		{"Exists", testExists},
		{"SetWithTTL", testSetWithTTL},
		{"SetWithoutTTLClearsExpiry", testSetWithoutTTLClearsExpiry},
		{"Expire", testExpire},
		{"TTLMissing", testTTLMissing},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			tt.test(t, store)
		})
	}
}

func testSetGet(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "test:string", []byte("hello world")))

	got, err := store.Get(ctx, "test:string")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func testGetNonExistent(t *testing.T, store kv.Store) {
	_, err := store.Get(context.Background(), "test:missing")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testOverwrite(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "test:overwrite", []byte("a")))
	require.NoError(t, store.Set(ctx, "test:overwrite", []byte("b")))

	got, err := store.Get(ctx, "test:overwrite")
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))
}

func testDel(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "test:del:1", []byte("1")))
	require.NoError(t, store.Set(ctx, "test:del:2", []byte("2")))

	n, err := store.Del(ctx, "test:del:1", "test:del:2", "test:del:missing")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = store.Get(ctx, "test:del:1")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testExists(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "test:exists", []byte("1")))

	n, err := store.Exists(ctx, "test:exists", "test:exists:missing")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func testSetWithTTL(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "test:ttl", []byte("v"), 50*time.Millisecond))

	ttl, err := store.TTL(ctx, "test:ttl")
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 50*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, err := store.Get(ctx, "test:ttl")
		return err == kv.ErrNotFound
	}, 2*time.Second, 10*time.Millisecond)
}

func testSetWithoutTTLClearsExpiry(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "test:persist", []byte("v"), time.Minute))
	require.NoError(t, store.Set(ctx, "test:persist", []byte("v")))

	ttl, err := store.TTL(ctx, "test:persist")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)
}

func testExpire(t *testing.T, store kv.Store) {
	ctx := context.Background()

	ok, err := store.Expire(ctx, "test:expire:missing", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "test:expire", []byte("v")))
	ok, err = store.Expire(ctx, "test:expire", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := store.TTL(ctx, "test:expire")
	require.NoError(t, err)
	assert.Greater(t, ttl, 30*time.Second)
}

func testTTLMissing(t *testing.T, store kv.Store) {
	_, err := store.TTL(context.Background(), "test:ttl:missing")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testPing(t *testing.T, store kv.Store) {
	assert.NoError(t, store.Ping(context.Background()))
}
