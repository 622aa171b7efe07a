package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// Snapshot is a recorded pool aggregate. Amounts are raw-unit decimal strings.
type Snapshot struct {
	PoolID        string `json:"poolId"`
	AtMs          int64  `json:"at"`
	TotalStaked   string `json:"totalStaked"`
	YearlyRewards string `json:"yearlyRewards"`
	BaseAPR       string `json:"baseApr"`
}

type Repository struct {
	db     *sql.DB
	driver string
	logger *zap.SugaredLogger
}

func NewRepository(db *sql.DB, driver string, logger *zap.SugaredLogger) *Repository {
	return &Repository{
		db:     db,
		driver: driver,
		logger: logger,
	}
}

func (r *Repository) q(query string) string {
	return rebind(r.driver, query)
}

// RecordSnapshot stores s, replacing any snapshot of the same pool and instant.
func (r *Repository) RecordSnapshot(ctx context.Context, s Snapshot) error {
	query := r.q(`
		INSERT INTO pool_snapshots (pool_id, at_ms, total_staked, yearly_rewards, base_apr)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (pool_id, at_ms) DO UPDATE SET
			total_staked = EXCLUDED.total_staked,
			yearly_rewards = EXCLUDED.yearly_rewards,
			base_apr = EXCLUDED.base_apr
	`)

	_, err := r.db.ExecContext(ctx, query,
		s.PoolID,
		s.AtMs,
		s.TotalStaked,
		s.YearlyRewards,
		s.BaseAPR,
	)
	if err != nil {
		return fmt.Errorf("failed to store pool snapshot: %w", err)
	}
	return nil
}

// History returns the newest snapshots of poolID first.
func (r *Repository) History(ctx context.Context, poolID string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	query := r.q(`
		SELECT pool_id, at_ms, total_staked, yearly_rewards, base_apr
		FROM pool_snapshots
		WHERE pool_id = $1
		ORDER BY at_ms DESC
		LIMIT $2
	`)

	rows, err := r.db.QueryContext(ctx, query, poolID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pool snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]Snapshot, 0, limit)
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.PoolID, &s.AtMs, &s.TotalStaked, &s.YearlyRewards, &s.BaseAPR); err != nil {
			return nil, fmt.Errorf("failed to scan pool snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return snapshots, nil
}

// Prune deletes snapshots older than beforeMs and reports how many were removed.
func (r *Repository) Prune(ctx context.Context, beforeMs int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.q(`DELETE FROM pool_snapshots WHERE at_ms < $1`), beforeMs)
	if err != nil {
		return 0, fmt.Errorf("failed to prune pool snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		r.logger.Debugw("Pruned pool snapshots", "count", n)
	}
	return n, nil
}

// Health check
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}
