package metrics

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/thermalctl/internal/errors"
	"codeberg.org/mutker/thermalctl/internal/logger"
	"codeberg.org/mutker/thermalctl/internal/thermal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = filepath.Join(t.TempDir(), "metrics.db")
	cfg.BatchSize = 2
	cfg.BatchTimeout = 0

	return cfg
}

func countRows(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&n))

	return n
}

func sample(cpu float64) *Sample {
	state := thermal.State{CPUTemp: cpu, Mode: thermal.ModeBalanced, PerfPct: 80}
	return &Sample{
		Timestamp:   time.Now(),
		CPUTemp:     state.CPUTemp,
		Zone:        state.Zone(),
		Mode:        state.Mode,
		PerfPct:     state.PerfPct,
		Target:      70,
		AutoControl: true,
	}
}

func TestDisabledIsNoop(t *testing.T) {
	c, err := NewService(DefaultConfig(), logger.Default())
	require.NoError(t, err)

	require.NoError(t, c.Record(context.Background(), sample(50)))
	require.NoError(t, c.Close())
}

func TestInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBPath = ""

	_, err := NewService(cfg, logger.Default())
	assert.True(t, errors.HasCode(err, ErrInvalidDBPath))
}

func TestRecordBatchesAndFlushesOnClose(t *testing.T) {
	cfg := testConfig(t)
	c, err := NewService(cfg, logger.Default())
	require.NoError(t, err)
	ctx := context.Background()

	for _, cpu := range []float64{50, 60, 70} {
		require.NoError(t, c.Record(ctx, sample(cpu)))
	}
	assert.Equal(t, 2, countRows(t, cfg.DBPath), "one full batch written")

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 3, countRows(t, cfg.DBPath))
}

func TestRowsShareRunID(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 1
	c, err := NewService(cfg, logger.Default())
	require.NoError(t, err)

	require.NoError(t, c.Record(context.Background(), sample(66)))
	require.NoError(t, c.Record(context.Background(), sample(67)))
	require.NoError(t, c.Close())

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	var runs int
	var zone, mode string
	require.NoError(t, db.QueryRow("SELECT COUNT(DISTINCT run_id) FROM samples").Scan(&runs))
	require.NoError(t, db.QueryRow("SELECT zone, mode FROM samples ORDER BY id LIMIT 1").Scan(&zone, &mode))
	assert.Equal(t, 1, runs)
	assert.Equal(t, thermal.ZoneWarm.String(), zone)
	assert.Equal(t, "Balanced", mode)
}

func TestRecordNil(t *testing.T) {
	c, err := NewService(testConfig(t), logger.Default())
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, errors.HasCode(c.Record(context.Background(), nil), ErrInvalidSample))
}

func TestRecordCancelled(t *testing.T) {
	c, err := NewService(testConfig(t), logger.Default())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.HasCode(c.Record(ctx, sample(50)), ErrOperationTimeout))
}

func TestSchemaVersionMismatchRecreates(t *testing.T) {
	cfg := testConfig(t)

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	c, err := NewService(cfg, logger.Default())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	db, err = sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()
	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)

	backups, err := filepath.Glob(filepath.Join(cfg.backupDir(), "samples_v99_*.db"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestPeriodicFlush(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 100
	cfg.BatchTimeout = 20 * time.Millisecond
	c, err := NewService(cfg, logger.Default())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Record(context.Background(), sample(55)))
	assert.Eventually(t, func() bool {
		db, err := sql.Open("sqlite3", cfg.DBPath)
		if err != nil {
			return false
		}
		defer db.Close()

		var n int
		return db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&n) == nil && n == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestFailingFlushBoundsBuffer(t *testing.T) {
	cfg := testConfig(t)
	repo, err := NewRepository(cfg, logger.Default())
	require.NoError(t, err)

	r := repo.(*repository)
	require.NoError(t, r.db.Close())

	var last *Sample
	for i := range 50 {
		last = sample(float64(40 + i))
		err := r.Record(last)
		if i > 0 {
			assert.Error(t, err)
		}
	}

	assert.Len(t, r.buffer, cfg.BatchSize*maxBufferedBatches)
	assert.Same(t, last, r.buffer[len(r.buffer)-1], "newest sample is kept")
}
