package history

import (
	"context"
	"sync"
	"time"

	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/logger"
	"codeberg.org/nexustouch/perfd/internal/perf"
)

type service struct {
	repo   Repository
	cfg    Config
	mu     sync.RWMutex
	closed bool
}

type noopRecorder struct{}

// NewService returns a recorder backed by the history database, or a no-op
// recorder when history is disabled.
func NewService(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("History recording disabled, using no-op recorder")
		return noopRecorder{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		return nil, err
	}

	return &service{repo: repo, cfg: cfg}, nil
}

// NewServiceWithRepository wraps an existing repository.
func NewServiceWithRepository(repo Repository) Recorder {
	return &service{repo: repo}
}

func (s *service) Record(ctx context.Context, rec *Record) error {
	errFactory := errors.New()

	if rec == nil {
		return errFactory.New(ErrInvalidRecord)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errFactory.New(ErrRecorderClosed)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Record(rec); err != nil {
			return errFactory.Wrap(ErrRecordFailed, err)
		}
	}

	return nil
}

func (s *service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}

func (noopRecorder) Record(context.Context, *Record) error { return nil }
func (noopRecorder) Close() error                          { return nil }

// ChangeRecord builds the record of a mode change.
func ChangeRecord(sessionID string, c perf.Change, suggested perf.Mode, snap perf.Snapshot) *Record {
	rec := snapshotRecord(sessionID, KindChange, c.At, snap)
	rec.Selected = c.Selected.String()
	rec.From = c.From.String()
	rec.To = c.To.String()
	rec.Suggested = suggested.String()
	rec.Reason = string(c.Reason)
	return rec
}

// TickRecord builds the record of one controller evaluation.
func TickRecord(sessionID string, at time.Time, selected perf.Mode, d perf.Decision, snap perf.Snapshot) *Record {
	rec := snapshotRecord(sessionID, KindTick, at, snap)
	rec.Selected = selected.String()
	rec.From = d.From.String()
	rec.To = d.To.String()
	rec.Suggested = d.Suggested.String()
	rec.Reason = string(d.Reason)
	return rec
}

func snapshotRecord(sessionID string, kind Kind, at time.Time, snap perf.Snapshot) *Record {
	rec := &Record{
		Timestamp:    at.UTC(),
		SessionID:    sessionID,
		Kind:         kind,
		FPS:          snap.FPS,
		AvgFPS:       snap.AvgFPS,
		LatencyAvgMs: durationMs(snap.TouchLatency.Average),
		LatencyMaxMs: durationMs(snap.TouchLatency.Max),
		SlowCount:    snap.TouchLatency.SlowCount,
		TotalCount:   snap.TouchLatency.TotalCount,
		LowEnd:       snap.LowEndDevice,
	}
	if mem, ok := snap.MemoryUsage.Get(); ok {
		rec.Memory = &mem
	}
	if b, ok := snap.Battery.Get(); ok {
		level, charging := b.LevelPercent, b.Charging
		rec.BatteryLevel = &level
		rec.Charging = &charging
	}
	return rec
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
