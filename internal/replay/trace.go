package replay

import (
	"io"
	"sort"

	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/session"
	"github.com/gocarina/gocsv"
)

// TraceRow is one line of a recorded client trace. Empty optional columns
// mean the client could not read the probe.
type TraceRow struct {
	AtMs     float64  `csv:"at_ms"`
	Type     string   `csv:"type"`
	ID       int64    `csv:"id,omitempty"`
	Level    *float64 `csv:"level,omitempty"`
	Charging *bool    `csv:"charging,omitempty"`
	Usage    *float64 `csv:"usage,omitempty"`
	Cores    *int     `csv:"cores,omitempty"`
	MemoryGB *float64 `csv:"memory_gb,omitempty"`
	Network  *string  `csv:"network,omitempty"`
	DPR      float64  `csv:"dpr,omitempty"`
	Mode     string   `csv:"mode,omitempty"`
}

func (r TraceRow) Event() session.Event {
	return session.Event{
		Type:     r.Type,
		At:       r.AtMs,
		ID:       r.ID,
		Level:    r.Level,
		Charging: r.Charging,
		Usage:    r.Usage,
		Cores:    r.Cores,
		MemoryGB: r.MemoryGB,
		Network:  r.Network,
		DPR:      r.DPR,
		Mode:     r.Mode,
	}
}

// ReadTrace parses a CSV trace and returns its events ordered by time.
func ReadTrace(r io.Reader) ([]session.Event, error) {
	errFactory := errors.New()

	var rows []TraceRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadTrace, err)
	}

	events := make([]session.Event, 0, len(rows))
	for i, row := range rows {
		ev := row.Event()
		if err := ev.Validate(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadTrace, err).WithData(map[string]any{"line": i + 2})
		}
		events = append(events, ev)
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].At < events[j].At })
	return events, nil
}

// WriteTrace writes events in the format ReadTrace accepts.
func WriteTrace(w io.Writer, events []session.Event) error {
	rows := make([]TraceRow, 0, len(events))
	for _, ev := range events {
		rows = append(rows, TraceRow{
			AtMs:     ev.At,
			Type:     ev.Type,
			ID:       ev.ID,
			Level:    ev.Level,
			Charging: ev.Charging,
			Usage:    ev.Usage,
			Cores:    ev.Cores,
			MemoryGB: ev.MemoryGB,
			Network:  ev.Network,
			DPR:      ev.DPR,
			Mode:     ev.Mode,
		})
	}

	if err := gocsv.Marshal(rows, w); err != nil {
		return errors.New().Wrap(errors.ErrWriteTrace, err)
	}
	return nil
}
