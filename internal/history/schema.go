package history

import (
	"database/sql"

	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/logger"
)

// SchemaVersion is bumped whenever createTablesSQL changes. Databases of
// any other version are backed up and recreated on open.

const SchemaVersion = 1

const (
	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS history (
	       id              INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp       INTEGER NOT NULL,
	       session_id      TEXT NOT NULL,
	       kind            TEXT NOT NULL CHECK (kind IN ('change', 'tick')),
	       selected        TEXT NOT NULL,
	       mode_from       TEXT NOT NULL,
	       mode_to         TEXT NOT NULL,
	       suggested       TEXT NOT NULL,
	       reason          TEXT NOT NULL,
	       fps             REAL NOT NULL,
	       avg_fps         REAL NOT NULL,
	       latency_avg_ms  REAL NOT NULL,
	       latency_max_ms  REAL NOT NULL,
	       slow_count      INTEGER NOT NULL,
	       total_count     INTEGER NOT NULL,
	       memory_percent  REAL,
	       battery_level   REAL,
	       charging        INTEGER CHECK (charging IS NULL OR charging IN (0, 1)),
	       low_end         INTEGER NOT NULL CHECK (low_end IN (0, 1))
	   );
	   CREATE INDEX IF NOT EXISTS history_session_ts ON history (session_id, timestamp);`

	insertRecordSQL = `
    INSERT INTO history (
        timestamp, session_id, kind,
        selected, mode_from, mode_to, suggested, reason,
        fps, avg_fps, latency_avg_ms, latency_max_ms,
        slow_count, total_count,
        memory_percent, battery_level, charging, low_end
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	recordVersionSQL = `INSERT INTO schema_versions (version, applied_at) VALUES (?, datetime('now'))`

	currentVersionSQL = `SELECT COALESCE(MAX(version), 0) FROM schema_versions`

	tableExistsSQL = `SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?)`

	selectRecordsSQL = `
    SELECT timestamp, session_id, kind,
        selected, mode_from, mode_to, suggested, reason,
        fps, avg_fps, latency_avg_ms, latency_max_ms,
        slow_count, total_count,
        memory_percent, battery_level, charging, low_end
    FROM history
    WHERE (? = '' OR session_id = ?)
      AND timestamp >= ?
      AND (? = '' OR kind = ?)
    ORDER BY timestamp, id`
)

// stepFailure is attached to schema and storage errors to say which step
// broke.
type stepFailure struct {
	Phase  string
	Target string `json:",omitempty"`
	Error  string
}

func failed(code errors.ErrorCode, phase, target string, err error) error {
	return errors.New().WithData(code, stepFailure{Phase: phase, Target: target, Error: err.Error()})
}

// inTx runs fn in a transaction, rolling back unless fn and the commit
// both succeed. Failures are reported under code.
func inTx(db *sql.DB, code errors.ErrorCode, log logger.Logger, fn func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.New().Wrap(code, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Debug().Err(rbErr).Msg("Rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.New().Wrap(code, err)
	}
	return nil
}

// InitSchema creates the tables and stamps them with SchemaVersion.
func InitSchema(db *sql.DB, log logger.Logger) error {
	log.Debug().Msg("Creating history schema")

	err := inTx(db, ErrSchemaInitFailed, log, func(tx *sql.Tx) error {
		if _, err := tx.Exec(createTablesSQL); err != nil {
			return failed(ErrSchemaInitFailed, "create_tables", "", err)
		}
		if _, err := tx.Exec(recordVersionSQL, SchemaVersion); err != nil {
			return failed(ErrSchemaInitFailed, "record_version", "schema_versions", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Int("version", SchemaVersion).Msg("History schema initialized")
	return nil
}

// GetSchemaVersion returns the stamped version, or 0 when the database has
// never been initialized.
func GetSchemaVersion(db *sql.DB) (int, error) {
	exists, err := tableExists(db, "schema_versions")
	if err != nil || !exists {
		return 0, err
	}

	var version int
	if err := db.QueryRow(currentVersionSQL).Scan(&version); err != nil {
		return 0, failed(ErrSchemaValidationFailed, "get_version", "schema_versions", err)
	}
	return version, nil
}

func tableExists(db *sql.DB, name string) (bool, error) {
	var exists bool
	if err := db.QueryRow(tableExistsSQL, name).Scan(&exists); err != nil {
		return false, failed(ErrSchemaValidationFailed, "check_table", name, err)
	}
	return exists, nil
}
