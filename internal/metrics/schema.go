package metrics

import (
	"database/sql"

	"codeberg.org/mutker/thermalctl/internal/errors"
	"codeberg.org/mutker/thermalctl/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS samples (
	       id            INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp_ms  INTEGER NOT NULL CHECK (typeof(timestamp_ms) = 'integer'),
	       run_id        TEXT NOT NULL,
	       cpu_temp      REAL NOT NULL,
	       keyboard_temp REAL NOT NULL,
	       zone          TEXT NOT NULL,
	       mode          TEXT NOT NULL,
	       perf_pct      INTEGER NOT NULL CHECK (perf_pct BETWEEN 0 AND 100),
	       fan_boost     INTEGER NOT NULL CHECK (fan_boost IN (0, 1)),
	       target_temp   REAL NOT NULL,
	       auto_control  INTEGER NOT NULL CHECK (auto_control IN (0, 1)),
	       action        TEXT NOT NULL DEFAULT '',
	       error         TEXT NOT NULL DEFAULT ''
	   );
	   CREATE INDEX IF NOT EXISTS samples_run_id ON samples (run_id, timestamp_ms);`

	insertSampleSQL = `
    INSERT INTO samples (
        timestamp_ms, run_id,
        cpu_temp, keyboard_temp, zone,
        mode, perf_pct, fan_boost,
        target_temp, auto_control,
        action, error
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, failed("create_tables", "", err))
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, failed("record_version", "schema_versions", err))
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

// GetSchemaVersion returns the current schema version, or 0 for an empty
// database.
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
		return 0, errFactory.WithData(ErrSchemaValidationFailed, failed("get_version", "schema_versions", err))
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, failed("check_table_exists", tableName, err))
	}
	return exists, nil
}
