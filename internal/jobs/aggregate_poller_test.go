package jobs

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/EcoEarn/ecoearn-interface-sub000/internal/calc"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/pools"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/repository"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/store"
	"github.com/EcoEarn/ecoearn-interface-sub000/pkg/kv/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testCatalog = `
pools:
  - id: elf
    boostCurve: "0.001"
  - id: sgr
    boostCurve: "0.002"
`

type fixture struct {
	poller *AggregatePoller
	cache  *store.Cache
	repo   *repository.Repository
	src    *pools.StaticSource
}

func newFixture(t *testing.T, config PollerConfig) *fixture {
	t.Helper()
	logger := zap.NewNop().Sugar()

	catalog, err := pools.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)

	cache := store.NewCache(memory.New(0), logger, nil)
	t.Cleanup(func() { cache.Close() })

	db, err := repository.Open(repository.DriverSQLite, filepath.Join(t.TempDir(), "poll.db"))
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db, repository.DriverSQLite))
	repo := repository.NewRepository(db, repository.DriverSQLite, logger)
	t.Cleanup(func() { repo.Close() })

	src := pools.NewStaticSource()
	src.SetAggregate("sgr", calc.PoolAggregate{
		TotalStaked:   decimal.NewFromInt(1000),
		YearlyRewards: decimal.NewFromInt(250),
	})

	poolSvc := pools.NewService(catalog, src, cache, time.Minute, logger)
	poller, err := NewAggregatePoller(poolSvc, cache, repo, nil, logger, config)
	require.NoError(t, err)

	return &fixture{poller: poller, cache: cache, repo: repo, src: src}
}

func TestPollOnce(t *testing.T) {
	f := newFixture(t, PollerConfig{Schedule: "@every 1h"})
	f.poller.now = func() time.Time { return time.UnixMilli(5000) }

	ctx := context.Background()
	sub := f.cache.Subscribe(ctx, store.PoolChannel("sgr"))
	defer sub.Close()

	status := f.poller.PollOnce(ctx)
	assert.Equal(t, 1, status.Refreshed)
	require.Contains(t, status.Failed, "elf")

	select {
	case msg := <-sub.Channel():
		var update PoolUpdate
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &update))
		assert.Equal(t, "sgr", update.PoolID)
		assert.Equal(t, "1000", update.TotalStaked)
		assert.Equal(t, "25", update.BaseAPR)
		assert.Equal(t, int64(5000), update.AtMs)
	case <-time.After(time.Second):
		t.Fatal("no pool update published")
	}

	history, err := f.repo.History(ctx, "sgr", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "250", history[0].YearlyRewards)

	var cached PollStatus
	require.NoError(t, f.cache.Get(ctx, store.KeyPollStatus, &cached))
	assert.Equal(t, int64(5000), cached.LastRunMs)
	assert.Equal(t, 1, cached.Refreshed)
}

func TestPollOncePrunes(t *testing.T) {
	f := newFixture(t, PollerConfig{Schedule: "@every 1h", Retention: time.Second})
	ctx := context.Background()

	require.NoError(t, f.repo.RecordSnapshot(ctx, repository.Snapshot{PoolID: "sgr", AtMs: 1, TotalStaked: "1", YearlyRewards: "1"}))
	f.poller.now = func() time.Time { return time.UnixMilli(10_000) }
	f.poller.PollOnce(ctx)

	history, err := f.repo.History(ctx, "sgr", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(10_000), history[0].AtMs)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, PollerConfig{Schedule: "*/1 * * * * *"})

	done := make(chan error, 1)
	go func() { done <- f.poller.Start(context.Background()) }()

	assert.Eventually(t, func() bool {
		h, err := f.repo.History(context.Background(), "sgr", 10)
		return err == nil && len(h) > 0
	}, 3*time.Second, 20*time.Millisecond)

	f.poller.Stop()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestInvalidSchedule(t *testing.T) {
	_, err := NewAggregatePoller(nil, nil, nil, nil, zap.NewNop().Sugar(), PollerConfig{Schedule: "whenever"})
	assert.Error(t, err)
}
