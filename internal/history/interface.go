package history

import (
	"context"
	"time"
)

// Recorder is what sessions write to.
type Recorder interface {
	Record(ctx context.Context, rec *Record) error
	Close() error
}

// Repository stores and reads records.
type Repository interface {
	Record(rec *Record) error
	Flush() error
	// Pending is the number of buffered rows not yet written.
	Pending() int
	Query(ctx context.Context, filter Filter) ([]Record, error)
	Close() error
}

// Kind tells change records from periodic samples.
type Kind string

const (
	KindChange Kind = "change"
	KindTick   Kind = "tick"
)

// Record is one row of session history. Pointer fields are nil when the
// reading was unsupported.
type Record struct {
	Timestamp    time.Time `csv:"timestamp"`
	SessionID    string    `csv:"session"`
	Kind         Kind      `csv:"kind"`
	Selected     string    `csv:"selected"`
	From         string    `csv:"from"`
	To           string    `csv:"to"`
	Suggested    string    `csv:"suggested"`
	Reason       string    `csv:"reason"`
	FPS          float64   `csv:"fps"`
	AvgFPS       float64   `csv:"avg_fps"`
	LatencyAvgMs float64   `csv:"latency_avg_ms"`
	LatencyMaxMs float64   `csv:"latency_max_ms"`
	SlowCount    int       `csv:"slow_count"`
	TotalCount   int       `csv:"total_count"`
	Memory       *float64  `csv:"memory_percent"`
	BatteryLevel *float64  `csv:"battery_level"`
	Charging     *bool     `csv:"charging"`
	LowEnd       bool      `csv:"low_end"`
}

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	SessionID string
	Since     time.Time
	Kind      Kind
	Limit     int
}
