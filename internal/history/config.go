package history

import (
	"time"

	"codeberg.org/nexustouch/perfd/internal/errors"
)

const (
	defaultDirPerm      = 0o755
	defaultDBPath       = "/var/lib/perfd/history.db"
	defaultBatchSize    = 32
	defaultBatchTimeout = 5 * time.Second
	backupDirName       = "backups"

	// Unwritten batches kept while the database refuses writes. Older rows
	// are dropped past this.
	maxPendingBatches = 4
)

type Config struct {
	DBPath       string
	BatchSize    int
	BatchTimeout time.Duration
	Enabled      bool
}

func DefaultConfig() Config {
	return Config{
		DBPath:       defaultDBPath,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Enabled:      false,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate the rest if history is enabled
	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 1 {
		return errFactory.WithData(ErrInvalidConfig, "batch size must be at least 1")
	}
	return nil
}
