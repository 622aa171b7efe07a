package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	require.NoError(t, Migrate(db, DriverSQLite))

	repo := NewRepository(db, DriverSQLite, zap.NewNop().Sugar())
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRecordAndHistory(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i, total := range []string{"100", "200", "300"} {
		require.NoError(t, repo.RecordSnapshot(ctx, Snapshot{
			PoolID:        "sgr",
			AtMs:          int64(1000 * (i + 1)),
			TotalStaked:   total,
			YearlyRewards: "36000",
			BaseAPR:       "12",
		}))
	}
	require.NoError(t, repo.RecordSnapshot(ctx, Snapshot{PoolID: "elf", AtMs: 5000, TotalStaked: "1", YearlyRewards: "1"}))

	got, err := repo.History(ctx, "sgr", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3000), got[0].AtMs)
	assert.Equal(t, "300", got[0].TotalStaked)
	assert.Equal(t, int64(2000), got[1].AtMs)

	all, err := repo.History(ctx, "sgr", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := repo.History(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordSnapshotUpserts(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordSnapshot(ctx, Snapshot{PoolID: "sgr", AtMs: 1, TotalStaked: "1", YearlyRewards: "1"}))
	require.NoError(t, repo.RecordSnapshot(ctx, Snapshot{PoolID: "sgr", AtMs: 1, TotalStaked: "2", YearlyRewards: "3", BaseAPR: "150"}))

	got, err := repo.History(ctx, "sgr", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].TotalStaked)
	assert.Equal(t, "150", got[0].BaseAPR)
}

func TestPrune(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for _, at := range []int64{10, 20, 30} {
		require.NoError(t, repo.RecordSnapshot(ctx, Snapshot{PoolID: "sgr", AtMs: at, TotalStaked: "1", YearlyRewards: "1"}))
	}

	n, err := repo.Prune(ctx, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := repo.History(ctx, "sgr", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(30), got[0].AtMs)
	require.NoError(t, repo.Ping(ctx))
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db, DriverSQLite))
	require.NoError(t, Migrate(db, DriverSQLite))
	require.NoError(t, RunMigration(db, DriverSQLite, "version"))
	assert.Error(t, RunMigration(db, DriverSQLite, "sideways"))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	tests := []struct {
		driver string
		in     string
		want   string
	}{
		{driver: DriverSQLite, in: "SELECT $1, $2, $10", want: "SELECT ?, ?, ?"},
		{driver: DriverSQLite, in: "SELECT '$' || x", want: "SELECT '$' || x"},
		{driver: DriverPostgres, in: "SELECT $1", want: "SELECT $1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rebind(tt.driver, tt.in))
	}
}
