package history_test

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/history"
	"codeberg.org/nexustouch/perfd/internal/logger"
	"codeberg.org/nexustouch/perfd/internal/perf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) history.Config {
	t.Helper()
	return history.Config{
		DBPath:    filepath.Join(t.TempDir(), "history.db"),
		BatchSize: 100,
		Enabled:   true,
	}
}

func sampleSnapshot() perf.Snapshot {
	return perf.Snapshot{
		FPS:          48,
		AvgFPS:       51.5,
		MemoryUsage:  perf.Some(63.0),
		Battery:      perf.Some(perf.BatteryStatus{LevelPercent: 18, Charging: false}),
		TouchLatency: perf.LatencyStats{Average: 90 * time.Millisecond, Max: 240 * time.Millisecond, SlowCount: 2, TotalCount: 9},
	}
}

func TestRepositoryRoundTrip(t *testing.T) {
	repo, err := history.NewRepository(testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer repo.Close()

	change := perf.Change{From: perf.ModeFull, To: perf.ModeMinimal, Selected: perf.ModeAuto, Reason: perf.ReasonLatencySpike, At: epoch}
	require.NoError(t, repo.Record(history.ChangeRecord("s1", change, perf.ModeMinimal, sampleSnapshot())))

	tick := perf.Decision{From: perf.ModeMinimal, To: perf.ModeMinimal, Suggested: perf.ModeReduced}
	require.NoError(t, repo.Record(history.TickRecord("s1", epoch.Add(3*time.Second), perf.ModeAuto, tick, perf.Snapshot{AvgFPS: 60})))
	require.NoError(t, repo.Record(history.TickRecord("s2", epoch.Add(4*time.Second), perf.ModeFull, perf.Decision{}, perf.Snapshot{})))

	all, err := repo.Query(context.Background(), history.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	first := all[0]
	assert.Equal(t, epoch, first.Timestamp)
	assert.Equal(t, history.KindChange, first.Kind)
	assert.Equal(t, "full", first.From)
	assert.Equal(t, "minimal", first.To)
	assert.Equal(t, "latency_spike", first.Reason)
	assert.Equal(t, 90.0, first.LatencyAvgMs)
	assert.Equal(t, 240.0, first.LatencyMaxMs)
	require.NotNil(t, first.Memory)
	assert.Equal(t, 63.0, *first.Memory)
	require.NotNil(t, first.BatteryLevel)
	assert.Equal(t, 18.0, *first.BatteryLevel)
	require.NotNil(t, first.Charging)
	assert.False(t, *first.Charging)

	second := all[1]
	assert.Equal(t, history.KindTick, second.Kind)
	assert.Nil(t, second.Memory, "unsupported readings stay null")
	assert.Nil(t, second.BatteryLevel)
	assert.Nil(t, second.Charging)

	s1, err := repo.Query(context.Background(), history.Filter{SessionID: "s1", Kind: history.KindTick})
	require.NoError(t, err)
	require.Len(t, s1, 1)
	assert.Equal(t, "reduced", s1[0].Suggested)

	recent, err := repo.Query(context.Background(), history.Filter{Since: epoch.Add(time.Second)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	limited, err := repo.Query(context.Background(), history.Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRepositoryFlushesOnBatchSize(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 2
	repo, err := history.NewRepository(cfg, logger.Nop())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Record(history.TickRecord("s", epoch.Add(time.Duration(i)*time.Second), perf.ModeAuto, perf.Decision{}, perf.Snapshot{})))
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM history").Scan(&n))
	assert.Equal(t, 2, n, "third record is still buffered")

	require.NoError(t, repo.Close())
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM history").Scan(&n))
	assert.Equal(t, 3, n, "close flushes the buffer")
	require.NoError(t, repo.Close(), "close is idempotent")
}

func TestRepositoryPeriodicFlush(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchTimeout = 20 * time.Millisecond
	repo, err := history.NewRepository(cfg, logger.Nop())
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.Record(history.TickRecord("s", epoch, perf.ModeAuto, perf.Decision{}, perf.Snapshot{})))

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	require.Eventually(t, func() bool {
		var n int
		return db.QueryRow("SELECT COUNT(*) FROM history").Scan(&n) == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchemaMigrationBacksUpOldVersion(t *testing.T) {
	cfg := testConfig(t)

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));
		CREATE TABLE history (legacy TEXT);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	repo, err := history.NewRepository(cfg, logger.Nop())
	require.NoError(t, err)
	defer repo.Close()

	backups, err := os.ReadDir(filepath.Join(filepath.Dir(cfg.DBPath), "backups"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.True(t, strings.HasPrefix(backups[0].Name(), "history_v99_"))

	require.NoError(t, repo.Record(history.TickRecord("s", epoch, perf.ModeAuto, perf.Decision{}, perf.Snapshot{})))
	recs, err := repo.Query(context.Background(), history.Filter{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRepositoryBacklogBoundedWhenWritesFail(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 2

	repo, err := history.NewRepository(cfg, logger.Nop())
	require.NoError(t, err)
	defer repo.Close()

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec("DROP TABLE history")
	require.NoError(t, err)

	failed := 0
	for i := 0; i < 1000; i++ {
		rec := history.TickRecord("s", epoch.Add(time.Duration(i)*time.Second), perf.ModeAuto, perf.Decision{}, perf.Snapshot{})
		if err := repo.Record(rec); err != nil {
			failed++
			assert.True(t, errors.HasCode(err, history.ErrTransactionFailed))
		}
		require.LessOrEqual(t, repo.Pending(), 4*cfg.BatchSize)
	}
	assert.Greater(t, failed, 0)
}

func TestServiceDisabledIsNoop(t *testing.T) {
	rec, err := history.NewService(history.DefaultConfig(), logger.Nop())
	require.NoError(t, err)
	require.NoError(t, rec.Record(context.Background(), &history.Record{}))
	require.NoError(t, rec.Close())
}

func TestServiceValidation(t *testing.T) {
	_, err := history.NewService(history.Config{Enabled: true}, logger.Nop())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, history.ErrInvalidDBPath))
}

func TestServiceRecord(t *testing.T) {
	cfg := testConfig(t)
	rec, err := history.NewService(cfg, logger.Nop())
	require.NoError(t, err)

	err = rec.Record(context.Background(), nil)
	assert.True(t, errors.HasCode(err, history.ErrInvalidRecord))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = rec.Record(ctx, &history.Record{Kind: history.KindTick})
	assert.True(t, errors.HasCode(err, history.ErrOperationTimeout))

	require.NoError(t, rec.Record(context.Background(), history.TickRecord("s", epoch, perf.ModeAuto, perf.Decision{}, perf.Snapshot{})))
	require.NoError(t, rec.Close())

	err = rec.Record(context.Background(), &history.Record{Kind: history.KindTick})
	assert.True(t, errors.HasCode(err, history.ErrRecorderClosed))
}

func TestExportCSV(t *testing.T) {
	change := perf.Change{From: perf.ModeFull, To: perf.ModeReduced, Selected: perf.ModeAuto, Reason: perf.ReasonSustainedIssues, At: epoch}
	records := []history.Record{*history.ChangeRecord("s1", change, perf.ModeReduced, sampleSnapshot())}

	var buf bytes.Buffer
	require.NoError(t, history.ExportCSV(&buf, records))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "timestamp,session,kind,selected,from,to,suggested,reason"))
	assert.Contains(t, lines[1], "s1,change,auto,full,reduced,reduced,sustained_issues")
	assert.Contains(t, lines[1], "2026-03-01T12:00:00Z")
}
