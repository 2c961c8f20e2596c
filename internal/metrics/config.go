package metrics

import (
	"path/filepath"

	"codeberg.org/mutker/deckfanctl/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm      = 0o755
	defaultDBPath       = "/var/lib/deckfanctl/metrics.db"
	defaultBatchSize    = 12
	defaultBatchTimeout = 30

	// maxBufferedBatches bounds the buffer while the database is failing.
	maxBufferedBatches = 8
)

type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
	// BackupDir receives a copy of the database before an incompatible
	// schema is replaced. Empty means "backups" next to DBPath.
	BackupDir string `mapstructure:"backup_dir"`
	// BatchSize is the number of passes buffered before a write.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout flushes a partial batch after this many seconds.
	BatchTimeout int `mapstructure:"batch_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		DBPath:       defaultDBPath,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 0 || c.BatchTimeout < 0 {
		return errFactory.WithData(ErrInvalidConfig, "batch_size and batch_timeout must not be negative")
	}

	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}

	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
