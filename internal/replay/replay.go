package replay

import (
	"time"

	"codeberg.org/nexustouch/perfd/internal/perf"
	"codeberg.org/nexustouch/perfd/internal/session"
)

// Options configures a replay. Start anchors the synthetic server clock;
// trace time zero maps to it.
type Options struct {
	Policy      perf.Policy
	Sampler     perf.SamplerConfig
	InitialMode perf.Mode
	Device      perf.DeviceInfo
	Start       time.Time
	// Tail keeps evaluating for this long after the last event.
	Tail time.Duration
}

// Transition is one mode change seen during a replay.
type Transition struct {
	AtMs         float64 `csv:"at_ms"`
	From         string  `csv:"from"`
	To           string  `csv:"to"`
	Selected     string  `csv:"selected"`
	Reason       string  `csv:"reason"`
	Suggested    string  `csv:"suggested"`
	AvgFPS       float64 `csv:"avg_fps"`
	LatencyAvgMs float64 `csv:"latency_avg_ms"`
	SlowCount    int     `csv:"slow_count"`
	TotalCount   int     `csv:"total_count"`
}

type Result struct {
	Transitions []Transition
	Events      int
	Ticks       int
	Duration    time.Duration
	Initial     perf.Mode
	Final       perf.Mode
	Selected    perf.Mode
	// ModeTime is how long each tier was active.
	ModeTime map[perf.Mode]time.Duration
	Policy   perf.Policy
}

// Run feeds a time-ordered trace through the controller. Evaluation ticks
// fire on the synthetic clock exactly as the live session schedules them,
// so the same trace always yields the same transitions.
func Run(events []session.Event, opts Options) Result {
	if opts.Start.IsZero() {
		opts.Start = time.Unix(0, 0).UTC()
	}

	d := session.NewDriver(opts.Policy, opts.Sampler, opts.InitialMode, opts.Device)
	store := d.Store()
	defer store.Close()

	changes, cancel := store.Subscribe()
	defer cancel()

	policy := d.Policy()
	res := Result{
		Events:   len(events),
		Initial:  store.Active(),
		ModeTime: make(map[perf.Mode]time.Duration),
		Policy:   policy,
	}

	active := store.Active()
	var since time.Duration

	drain := func(at time.Duration) {
		for {
			select {
			case c := <-changes:
				if c.From != c.To {
					res.ModeTime[active] += at - since
					active, since = c.To, at
				}
				res.Transitions = append(res.Transitions, transition(at, c, d))
			default:
				return
			}
		}
	}

	nextTick := policy.InitialDelay
	tickUntil := func(at time.Duration) {
		for nextTick <= at {
			d.Tick(opts.Start.Add(nextTick))
			res.Ticks++
			drain(nextTick)
			nextTick += policy.TickInterval
		}
	}

	var end time.Duration
	for _, ev := range events {
		at := offset(ev)
		tickUntil(at)
		d.Handle(ev, opts.Start.Add(at))
		drain(at)
		end = at
	}
	end += opts.Tail
	tickUntil(end)

	res.ModeTime[active] += end - since
	res.Duration = end
	res.Final = store.Active()
	res.Selected = store.Selected()

	return res
}

func offset(ev session.Event) time.Duration {
	return time.Duration(ev.At * float64(time.Millisecond))
}

func transition(at time.Duration, c perf.Change, d *session.Driver) Transition {
	snap := d.Snapshot()
	return Transition{
		AtMs:         float64(at) / float64(time.Millisecond),
		From:         c.From.String(),
		To:           c.To.String(),
		Selected:     c.Selected.String(),
		Reason:       string(c.Reason),
		Suggested:    d.Suggested().String(),
		AvgFPS:       snap.AvgFPS,
		LatencyAvgMs: float64(snap.TouchLatency.Average) / float64(time.Millisecond),
		SlowCount:    snap.TouchLatency.SlowCount,
		TotalCount:   snap.TouchLatency.TotalCount,
	}
}
