package metrics

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/deckfanctl/internal/errors"
	"codeberg.org/mutker/deckfanctl/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	runID         string
	mu            sync.Mutex
	buffer        []*Snapshot
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
}

func NewRepository(cfg Config, runID string, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2&_foreign_keys=1"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Int("batch_timeout", cfg.BatchTimeout).
		Msg("Metrics repository initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		runID:         runID,
		buffer:        make([]*Snapshot, 0, max(cfg.BatchSize, 1)),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchSize > 0 && cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(time.Duration(cfg.BatchTimeout) * time.Second)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) Record(snapshot *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, snapshot)

	if len(r.buffer) >= r.cfg.BatchSize {
		if err := r.flush(); err != nil {
			r.trim()
			return err
		}
	}

	return nil
}

// trim drops the oldest snapshots once failed flushes have let the buffer
// grow past maxBufferedBatches batches.
func (r *repository) trim() {
	limit := max(r.cfg.BatchSize, 1) * maxBufferedBatches
	if len(r.buffer) <= limit {
		return
	}

	dropped := len(r.buffer) - limit
	r.buffer = append(r.buffer[:0], r.buffer[dropped:]...)
	r.logger.Warn().Int("dropped", dropped).Int("buffered", limit).Msg("Metrics buffer full, dropping oldest passes")
}

func (r *repository) Close() error {
	var closeErr error

	r.closeOnce.Do(func() {
		close(r.shutdownChan)
		if r.flushTicker != nil {
			r.flushTicker.Stop()
		}
		<-r.flushDoneChan

		// Without a flusher the remaining buffer is written here
		r.mu.Lock()
		if err := r.flush(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to flush metrics on close")
		}
		r.mu.Unlock()

		if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			closeErr = errors.New().WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: "checkpoint_wal",
				Error: err.Error(),
			})
			r.db.Close()
			return
		}

		if err := r.db.Close(); err != nil {
			closeErr = errors.New().WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: "close_database",
				Error: err.Error(),
			})
			return
		}

		r.logger.Info().Msg("Metrics repository closed gracefully")
	})

	return closeErr
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Periodic metrics flush failed")
				r.trim()
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
		}
	}()

	passStmt, err := tx.Prepare(insertPassSQL)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer passStmt.Close()

	zoneStmt, err := tx.Prepare(insertZoneSampleSQL)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer zoneStmt.Close()

	for _, s := range r.buffer {
		res, err := passStmt.Exec(
			r.runID,
			s.Timestamp.UnixMilli(),
			s.Mode,
			int64(s.Desired),
			int64(s.Target),
			int64(s.Current),
			int64(boolToInt(s.AnyInvalid)),
			s.Duration.Microseconds(),
		)
		if err != nil {
			return errFactory.Wrap(ErrTransactionFailed, err)
		}

		passID, err := res.LastInsertId()
		if err != nil {
			return errFactory.Wrap(ErrTransactionFailed, err)
		}

		for _, z := range s.Zones {
			reading := sql.NullFloat64{Float64: z.Reading, Valid: z.HasReading}
			rpm := sql.NullInt64{Int64: int64(z.RPM), Valid: z.HasRPM}
			if _, err := zoneStmt.Exec(passID, z.Zone, z.Policy, reading, rpm, boolToInt(z.Valid)); err != nil {
				return errFactory.Wrap(ErrTransactionFailed, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed = true

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed metrics to database")
	r.buffer = r.buffer[:0]

	return nil
}
