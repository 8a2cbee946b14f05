package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/logger"
)

var managedTables = []string{"history", "schema_versions"}

// ValidateAndUpdateSchema brings db to SchemaVersion. History is advisory
// data, so an outdated schema is not migrated row by row: it is copied to
// backupDir and recreated empty.
func ValidateAndUpdateSchema(db *sql.DB, backupDir string, log logger.Logger) error {
	version, err := GetSchemaVersion(db)
	if err != nil {
		return errors.New().Wrap(ErrSchemaValidationFailed, err)
	}

	log.Debug().Int("found", version).Int("want", SchemaVersion).Msg("Checking history schema")

	switch version {
	case SchemaVersion:
		return nil
	case 0:
	default:
		if _, err := backupDatabase(db, backupDir, version, log); err != nil {
			return err
		}
	}

	err = inTx(db, ErrSchemaMigrationFailed, log, func(tx *sql.Tx) error {
		for _, table := range managedTables {
			if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
				return failed(ErrSchemaMigrationFailed, "drop_table", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return InitSchema(db, log)
}

// backupDatabase snapshots db with VACUUM INTO, which must run outside a
// transaction.
func backupDatabase(db *sql.DB, dir string, version int, log logger.Logger) (string, error) {
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", failed(ErrSchemaMigrationFailed, "create_backup_dir", dir, err)
	}

	name := fmt.Sprintf("history_v%d_%s.db", version, time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(dir, name)

	if _, err := db.Exec("VACUUM INTO '" + strings.ReplaceAll(path, "'", "''") + "'"); err != nil {
		return "", failed(ErrSchemaMigrationFailed, "create_backup", path, err)
	}

	log.Info().Str("path", path).Int("version", version).Msg("Backed up history database before schema reset")
	return path, nil
}
