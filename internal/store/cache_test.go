package store

import (
	"context"
	"testing"
	"time"

	"github.com/EcoEarn/ecoearn-interface-sub000/pkg/kv/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type aggregate struct {
	TotalStaked   string `json:"totalStaked"`
	YearlyRewards string `json:"yearlyRewards"`
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c := NewCache(memory.New(0), zap.NewNop().Sugar(), nil)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCacheRoundTrip(t *testing.T) {
	c := newTestCache(t)
	require.True(t, c.IsInMemoryMode())

	ctx := context.Background()
	key := PoolAggregateKey("p1")
	want := aggregate{TotalStaked: "1000", YearlyRewards: "36000"}

	require.NoError(t, c.Set(ctx, key, want, time.Minute))

	var got aggregate
	require.NoError(t, c.Get(ctx, key, &got))
	assert.Equal(t, want, got)

	ok, err := c.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, key))
	assert.ErrorIs(t, c.Get(ctx, key, &got), ErrCacheMiss)
}

func TestCacheMiss(t *testing.T) {
	c := newTestCache(t)
	var got aggregate
	assert.ErrorIs(t, c.Get(context.Background(), "eco:nothing", &got), ErrCacheMiss)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "eco:pool:agg:p1", PoolAggregateKey("p1"))
	assert.Equal(t, "eco:user:stake:p1:0xabc", UserStakeKey("p1", "0xABC"))
	assert.Equal(t, "eco:pool:p1", PoolChannel("p1"))
	assert.Equal(t, "eco:user:stake", keyFamily(UserStakeKey("p1", "0xabc")))
}

func TestInMemoryPubSub(t *testing.T) {
	c := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := c.Subscribe(ctx, PoolChannel("p1"))
	defer sub.Close()

	require.NoError(t, c.Publish(ctx, PoolChannel("p2"), aggregate{TotalStaked: "1"}))
	require.NoError(t, c.Publish(ctx, PoolChannel("p1"), aggregate{TotalStaked: "2"}))

	select {
	case msg := <-sub.Channel():
		require.NotNil(t, msg)
		assert.Equal(t, PoolChannel("p1"), msg.Channel)
		assert.JSONEq(t, `{"totalStaked":"2","yearlyRewards":""}`, msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	hub := NewPubSubHub()
	ctx, cancel := context.WithCancel(context.Background())

	sub := hub.Subscribe(ctx, "eco:pool:p1")
	assert.Equal(t, 1, hub.Subscribers("eco:pool:p1"))

	cancel()
	assert.Eventually(t, func() bool { return hub.Subscribers("eco:pool:p1") == 0 }, time.Second, 5*time.Millisecond)

	_, open := <-sub.Channel()
	assert.False(t, open)
}
