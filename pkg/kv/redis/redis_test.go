package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/EcoEarn/ecoearn-interface-sub000/pkg/kv"
	"github.com/EcoEarn/ecoearn-interface-sub000/pkg/kv/kvtest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedisStore(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set, skipping Redis tests")
	}

	factory := func(t *testing.T) kv.Store {
		store, err := New(redisURL)
		if err != nil {
			t.Fatalf("Failed to create Redis store: %v", err)
		}
		store.client.FlushDB(context.Background())
		return store
	}

	kvtest.RunConformanceTests(t, factory)
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{err: nil, want: false},
		{err: redis.Nil, want: false},
		{err: context.Canceled, want: false},
		{err: errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"), want: true},
		{err: fmt.Errorf("read: %w", errors.New("i/o timeout")), want: true},
		{err: errors.New("WRONGTYPE Operation against a key holding the wrong kind of value"), want: false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsConnectionError(tt.err), "%v", tt.err)
	}
}

func TestNewUnreachable(t *testing.T) {
	_, err := New("redis://127.0.0.1:1/0")
	assert.ErrorIs(t, err, kv.ErrBackendUnavailable)
}
