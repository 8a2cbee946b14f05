package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []*Record
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
}

// NewRepository opens (or creates) the history database at cfg.DBPath.
func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, failed(ErrStorageInit, "create_directory", cfg.DBPath, err)
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, failed(ErrStorageInit, "open_database", cfg.DBPath, err)
	}

	backupDir := filepath.Join(filepath.Dir(cfg.DBPath), backupDirName)
	if err := ValidateAndUpdateSchema(db, backupDir, log); err != nil {
		db.Close()
		return nil, failed(ErrStorageInit, "schema_version", cfg.DBPath, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("History repository initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]*Record, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(cfg.BatchTimeout)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) Record(rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, rec)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

// Flush writes all buffered records.
func (r *repository) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flush()
}

func (r *repository) Query(ctx context.Context, filter Filter) ([]Record, error) {
	errFactory := errors.New()

	if err := r.Flush(); err != nil {
		return nil, err
	}

	query := selectRecordsSQL
	args := []any{
		filter.SessionID, filter.SessionID,
		filter.Since.UnixMilli(),
		string(filter.Kind), string(filter.Kind),
	}
	if filter.Since.IsZero() {
		args[2] = int64(0)
	}
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec      Record
			ts       int64
			kind     string
			memory   sql.NullFloat64
			battery  sql.NullFloat64
			charging sql.NullBool
		)
		if err := rows.Scan(
			&ts, &rec.SessionID, &kind,
			&rec.Selected, &rec.From, &rec.To, &rec.Suggested, &rec.Reason,
			&rec.FPS, &rec.AvgFPS, &rec.LatencyAvgMs, &rec.LatencyMaxMs,
			&rec.SlowCount, &rec.TotalCount,
			&memory, &battery, &charging, &rec.LowEnd,
		); err != nil {
			return nil, errFactory.Wrap(ErrQueryFailed, err)
		}
		rec.Timestamp = time.UnixMilli(ts).UTC()
		rec.Kind = Kind(kind)
		if memory.Valid {
			rec.Memory = &memory.Float64
		}
		if battery.Valid {
			rec.BatteryLevel = &battery.Float64
		}
		if charging.Valid {
			rec.Charging = &charging.Bool
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	return out, nil
}

func (r *repository) Close() error {
	var closeErr error
	r.closeOnce.Do(func() {
		close(r.shutdownChan)
		if r.flushTicker != nil {
			r.flushTicker.Stop()
		}

		// Wait for the flusher to finish its final flush
		<-r.flushDoneChan

		r.mu.Lock()
		if err := r.flush(); err != nil {
			r.logger.Error().Err(err).Msg("Final history flush failed")
		}
		r.mu.Unlock()

		if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			closeErr = failed(ErrStorageClose, "checkpoint_wal", r.cfg.DBPath, err)
			r.db.Close()
			return
		}

		if err := r.db.Close(); err != nil {
			closeErr = failed(ErrStorageClose, "close_database", r.cfg.DBPath, err)
			return
		}

		r.logger.Info().Msg("History repository closed gracefully")
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
				r.logger.Error().Err(err).Msg("Periodic history flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

func (r *repository) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer)
}

// flush must be called with r.mu held. A failed write keeps the rows for the
// next attempt, bounded to maxPendingBatches batches.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	if err := r.write(); err != nil {
		r.trimBacklog()
		return err
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed history to database")
	r.buffer = r.buffer[:0]
	return nil
}

func (r *repository) trimBacklog() {
	limit := r.cfg.BatchSize * maxPendingBatches
	dropped := len(r.buffer) - limit
	if dropped <= 0 {
		return
	}
	n := copy(r.buffer, r.buffer[dropped:])
	clear(r.buffer[n:])
	r.buffer = r.buffer[:n]
	r.logger.Warn().Int("dropped", dropped).Int("pending", n).Msg("History database unwritable, dropping oldest records")
}

func (r *repository) write() error {
	return inTx(r.db, ErrTransactionFailed, r.logger, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(insertRecordSQL)
		if err != nil {
			return errors.New().Wrap(ErrTransactionFailed, err)
		}
		defer stmt.Close()

		for _, rec := range r.buffer {
			if _, err := stmt.Exec(rowValues(rec)...); err != nil {
				return errors.New().Wrap(ErrTransactionFailed, err)
			}
		}
		return nil
	})
}

// rowValues matches the column order of insertRecordSQL.
func rowValues(rec *Record) []any {
	return []any{
		rec.Timestamp.UnixMilli(),
		rec.SessionID,
		string(rec.Kind),
		rec.Selected,
		rec.From,
		rec.To,
		rec.Suggested,
		rec.Reason,
		rec.FPS,
		rec.AvgFPS,
		rec.LatencyAvgMs,
		rec.LatencyMaxMs,
		int64(rec.SlowCount),
		int64(rec.TotalCount),
		nullFloat(rec.Memory),
		nullFloat(rec.BatteryLevel),
		nullBool(rec.Charging),
		boolToInt(rec.LowEnd),
	}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
