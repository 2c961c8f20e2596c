package metrics

import (
	"database/sql"

	"codeberg.org/mutker/deckfanctl/internal/errors"
	"codeberg.org/mutker/deckfanctl/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS passes (
	       id          INTEGER PRIMARY KEY AUTOINCREMENT,
	       run_id      TEXT NOT NULL,
	       timestamp   INTEGER NOT NULL,
	       mode        TEXT NOT NULL CHECK (mode IN ('default', 'assisted', 'max')),
	       desired_rpm INTEGER NOT NULL CHECK (typeof(desired_rpm) = 'integer'),
	       target_rpm  INTEGER NOT NULL CHECK (typeof(target_rpm) = 'integer'),
	       current_rpm INTEGER NOT NULL CHECK (typeof(current_rpm) = 'integer'),
	       any_invalid INTEGER NOT NULL CHECK (any_invalid IN (0, 1)),
	       duration_us INTEGER NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS passes_run_id ON passes (run_id, timestamp);
	   CREATE TABLE IF NOT EXISTS zone_samples (
	       pass_id  INTEGER NOT NULL REFERENCES passes (id) ON DELETE CASCADE,
	       zone     TEXT NOT NULL,
	       policy   TEXT NOT NULL CHECK (policy IN ('required', 'optional', 'excluded')),
	       reading  REAL,
	       rpm      INTEGER,
	       valid    INTEGER NOT NULL CHECK (valid IN (0, 1)),
	       PRIMARY KEY (pass_id, zone)
	   );`

	insertPassSQL = `
    INSERT INTO passes (
        run_id, timestamp, mode,
        desired_rpm, target_rpm, current_rpm,
        any_invalid, duration_us
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	insertZoneSampleSQL = `
    INSERT INTO zone_samples (
        pass_id, zone, policy, reading, rpm, valid
    ) VALUES (?, ?, ?, ?, ?, ?)`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version, 0 for an empty database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
