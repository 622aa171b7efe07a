package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/EcoEarn/ecoearn-interface-sub000/internal/calc"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/metrics"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/pools"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/repository"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/store"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SnapshotRecorder persists refreshed aggregates. Nil disables recording.
type SnapshotRecorder interface {
	RecordSnapshot(ctx context.Context, s repository.Snapshot) error
	Prune(ctx context.Context, beforeMs int64) (int64, error)
}

type PollerConfig struct {
	Schedule  string        // cron spec, seconds optional, descriptors allowed
	Timeout   time.Duration // per run
	Retention time.Duration // snapshots older than this are pruned, 0 keeps all
}

// PoolUpdate is published on the pool channel after every refresh.
type PoolUpdate struct {
	PoolID        string `json:"poolId"`
	TotalStaked   string `json:"totalStaked"`
	YearlyRewards string `json:"yearlyRewards"`
	BaseAPR       string `json:"baseApr"`
	AtMs          int64  `json:"at"`
}

// PollStatus is cached under store.KeyPollStatus after each run.
type PollStatus struct {
	LastRunMs int64             `json:"lastRun"`
	Refreshed int               `json:"refreshed"`
	Failed    map[string]string `json:"failed,omitempty"`
}

type AggregatePoller struct {
	pools    *pools.Service
	cache    *store.Cache
	recorder SnapshotRecorder
	metrics  *metrics.Metrics
	logger   *zap.SugaredLogger
	config   PollerConfig
	now      func() time.Time

	mu        sync.Mutex
	cron      *cron.Cron
	cancelCtx context.CancelFunc
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func NewAggregatePoller(poolSvc *pools.Service, cache *store.Cache, recorder SnapshotRecorder, m *metrics.Metrics, logger *zap.SugaredLogger, config PollerConfig) (*AggregatePoller, error) {
	if config.Schedule == "" {
		config.Schedule = "@every 15s"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if _, err := cronParser.Parse(config.Schedule); err != nil {
		return nil, fmt.Errorf("invalid poll schedule %q: %w", config.Schedule, err)
	}
	return &AggregatePoller{
		pools:    poolSvc,
		cache:    cache,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
		config:   config,
		now:      time.Now,
	}, nil
}

// Start refreshes once, then on schedule until ctx is done or Stop is called.
func (p *AggregatePoller) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	c := cron.New(cron.WithParser(cronParser))
	if _, err := c.AddFunc(p.config.Schedule, func() { p.PollOnce(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("register poll task: %w", err)
	}

	p.mu.Lock()
	p.cron = c
	p.cancelCtx = cancel
	p.mu.Unlock()

	p.logger.Infow("Starting aggregate poller",
		"schedule", p.config.Schedule,
		"pools", p.pools.Catalog().Len(),
		"source", p.pools.Source().Name(),
	)

	p.PollOnce(ctx)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	p.logger.Infow("Aggregate poller stopped")
	return ctx.Err()
}

func (p *AggregatePoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelCtx != nil {
		p.cancelCtx()
	}
}

// PollOnce refreshes every catalog pool.
func (p *AggregatePoller) PollOnce(ctx context.Context) PollStatus {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	status := PollStatus{LastRunMs: p.now().UnixMilli()}
	for _, pool := range p.pools.Catalog().All() {
		err := p.refreshPool(ctx, pool.ID, status.LastRunMs)
		if p.metrics != nil {
			p.metrics.RecordPoll(ctx, pool.ID, err)
		}
		if err != nil {
			if status.Failed == nil {
				status.Failed = make(map[string]string)
			}
			status.Failed[pool.ID] = err.Error()
			continue
		}
		status.Refreshed++
	}

	if err := p.cache.Set(ctx, store.KeyPollStatus, status, 0); err != nil {
		p.logger.Warnw("Failed to cache poll status", "error", err)
	}
	p.prune(ctx, status.LastRunMs)

	p.logger.Debugw("Polled pool aggregates", "refreshed", status.Refreshed, "failed", len(status.Failed))
	return status
}

func (p *AggregatePoller) refreshPool(ctx context.Context, poolID string, atMs int64) error {
	agg, err := p.pools.Refresh(ctx, poolID)
	if err != nil {
		p.logger.Warnw("Failed to refresh pool", "pool", poolID, "error", err)
		return err
	}

	update := PoolUpdate{
		PoolID:        poolID,
		TotalStaked:   agg.TotalStaked.String(),
		YearlyRewards: agg.YearlyRewards.String(),
		BaseAPR:       calc.BaseAPR(agg),
		AtMs:          atMs,
	}

	if err := p.cache.Publish(ctx, store.PoolChannel(poolID), update); err != nil {
		p.logger.Warnw("Failed to publish pool update", "pool", poolID, "error", err)
	}

	if p.recorder != nil {
		err := p.recorder.RecordSnapshot(ctx, repository.Snapshot{
			PoolID:        update.PoolID,
			AtMs:          update.AtMs,
			TotalStaked:   update.TotalStaked,
			YearlyRewards: update.YearlyRewards,
			BaseAPR:       update.BaseAPR,
		})
		if err != nil {
			p.logger.Errorw("Failed to record pool snapshot", "pool", poolID, "error", err)
			return errors.Join(errors.New("snapshot not recorded"), err)
		}
	}
	return nil
}

func (p *AggregatePoller) prune(ctx context.Context, nowMs int64) {
	if p.recorder == nil || p.config.Retention <= 0 {
		return
	}
	before := nowMs - p.config.Retention.Milliseconds()
	if _, err := p.recorder.Prune(ctx, before); err != nil {
		p.logger.Warnw("Failed to prune pool snapshots", "error", err)
	}
}
