package metrics

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/deckfanctl/internal/errors"
	"codeberg.org/mutker/deckfanctl/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Enabled:   true,
		DBPath:    filepath.Join(t.TempDir(), "state", "metrics.db"),
		BatchSize: 1,
	}
}

func testSnapshot() *Snapshot {
	return &Snapshot{
		Timestamp:  time.Unix(1700000000, 0),
		Mode:       "assisted",
		Desired:    3000,
		Target:     3000,
		Current:    2950,
		AnyInvalid: true,
		Duration:   1500 * time.Microsecond,
		Zones: []ZoneSample{
			{Zone: "Batt", Policy: "required", Valid: false},
			{Zone: "CPU", Policy: "required", Reading: 60, HasReading: true, RPM: 3000, HasRPM: true, Valid: true},
		},
	}
}

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Config{Enabled: false}.Validate())

	err := Config{Enabled: true}.Validate()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrInvalidDBPath))

	err = Config{Enabled: true, DBPath: "/tmp/x.db", BatchSize: -1}.Validate()
	assert.True(t, errors.HasCode(err, ErrInvalidConfig))
}

func TestBackupDirDefault(t *testing.T) {
	assert.Equal(t, "/var/lib/deckfanctl/backups", DefaultConfig().backupDir())
	assert.Equal(t, "/srv/b", Config{DBPath: "/x/m.db", BackupDir: "/srv/b"}.backupDir())
}

func TestNoopCollector(t *testing.T) {
	c, err := NewService(Config{}, logger.Get())
	require.NoError(t, err)

	assert.NoError(t, c.Record(context.Background(), testSnapshot()))
	assert.NotEmpty(t, c.RunID())
	assert.NoError(t, c.Close())
}

func TestRecordPass(t *testing.T) {
	cfg := testConfig(t)
	c, err := NewService(cfg, logger.Get())
	require.NoError(t, err)

	require.NoError(t, c.Record(context.Background(), testSnapshot()))
	require.NoError(t, c.Close())

	db := openDB(t, cfg.DBPath)

	var runID, mode string
	var desired, current, invalid int
	require.NoError(t, db.QueryRow(
		`SELECT run_id, mode, desired_rpm, current_rpm, any_invalid FROM passes`,
	).Scan(&runID, &mode, &desired, &current, &invalid))
	assert.Equal(t, c.RunID(), runID)
	assert.Equal(t, "assisted", mode)
	assert.Equal(t, 3000, desired)
	assert.Equal(t, 2950, current)
	assert.Equal(t, 1, invalid)

	rows, err := db.Query(`SELECT zone, reading, rpm, valid FROM zone_samples ORDER BY zone`)
	require.NoError(t, err)
	defer rows.Close()

	type sample struct {
		zone    string
		reading sql.NullFloat64
		rpm     sql.NullInt64
		valid   int
	}
	var got []sample
	for rows.Next() {
		var s sample
		require.NoError(t, rows.Scan(&s.zone, &s.reading, &s.rpm, &s.valid))
		got = append(got, s)
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 2)

	assert.Equal(t, "Batt", got[0].zone)
	assert.False(t, got[0].reading.Valid)
	assert.False(t, got[0].rpm.Valid)
	assert.Equal(t, 0, got[0].valid)

	assert.Equal(t, "CPU", got[1].zone)
	assert.InDelta(t, 60.0, got[1].reading.Float64, 1e-9)
	assert.Equal(t, int64(3000), got[1].rpm.Int64)
	assert.Equal(t, 1, got[1].valid)
}

func TestCloseFlushesPartialBatch(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 10

	c, err := NewService(cfg, logger.Get())
	require.NoError(t, err)

	for range 3 {
		require.NoError(t, c.Record(context.Background(), testSnapshot()))
	}
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	var n int
	require.NoError(t, openDB(t, cfg.DBPath).QueryRow(`SELECT COUNT(*) FROM passes`).Scan(&n))
	assert.Equal(t, 3, n)
}

func TestRecordCanceled(t *testing.T) {
	c, err := NewService(testConfig(t), logger.Get())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = c.Record(ctx, testSnapshot())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrOperationTimeout))

	assert.True(t, errors.HasCode(c.Record(context.Background(), nil), ErrInvalidMetrics))
}

func TestSchemaMismatchCreatesBackup(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755))

	db := openDB(t, cfg.DBPath)
	_, err := db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	repo, err := NewRepository(cfg, "run", logger.Get())
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	backups, err := filepath.Glob(filepath.Join(cfg.backupDir(), "metrics_v99_*.db"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	version, err := GetSchemaVersion(openDB(t, cfg.DBPath))
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}

func TestRecordDropsOldestWhenFlushFails(t *testing.T) {
	repo, err := NewRepository(testConfig(t), "run", logger.Get())
	require.NoError(t, err)
	r := repo.(*repository)
	require.NoError(t, r.db.Close())

	for i := range 20 {
		s := testSnapshot()
		s.Desired = i
		assert.Error(t, repo.Record(s))
	}

	require.Len(t, r.buffer, maxBufferedBatches)
	assert.Equal(t, 12, r.buffer[0].Desired)
	assert.Equal(t, 19, r.buffer[len(r.buffer)-1].Desired)

	_ = repo.Close()
}
