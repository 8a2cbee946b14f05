package perf

import "time"

const (
	DefaultCooldown          = 5 * time.Second
	DefaultTickInterval      = 3 * time.Second
	DefaultInitialDelay      = 2 * time.Second
	DefaultConsecutiveIssues = 3
	DefaultSpikeLatency      = 200 * time.Millisecond

	restoreLatencyFactor = 0.7
	restoreMaxSlowRate   = 0.05
	restoreMinFPS        = 55.0
)

// Policy tunes the hysteresis of a Controller.
type Policy struct {
	Cooldown          time.Duration
	TickInterval      time.Duration
	InitialDelay      time.Duration
	ConsecutiveIssues int
	SlowLatency       time.Duration
	SpikeLatency      time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Cooldown:          DefaultCooldown,
		TickInterval:      DefaultTickInterval,
		InitialDelay:      DefaultInitialDelay,
		ConsecutiveIssues: DefaultConsecutiveIssues,
		SlowLatency:       DefaultSlowLatency,
		SpikeLatency:      DefaultSpikeLatency,
	}
}

// ControllerState is threaded through every evaluation and returned updated.
type ControllerState struct {
	LastChange        time.Time
	ConsecutiveIssues int
	// PreviousMode is the tier in effect when auto was selected. Restoring
	// reduced to full requires it to be full.
	PreviousMode Mode
}

// Reason explains a mode change.
type Reason string

const (
	ReasonSustainedIssues Reason = "sustained_issues"
	ReasonLatencySpike    Reason = "latency_spike"
	ReasonRestore         Reason = "restore"
	ReasonSelected        Reason = "selected"
)

// Decision is the outcome of one evaluation.
type Decision struct {
	Changed   bool
	From      Mode
	To        Mode
	Suggested Mode
	Reason    Reason
}

// Controller decides when the active tier may change. It holds no mutable
// state; all of it lives in ControllerState.
type Controller struct {
	policy Policy
}

func NewController(policy Policy) *Controller {
	def := DefaultPolicy()
	if policy.ConsecutiveIssues <= 0 {
		policy.ConsecutiveIssues = def.ConsecutiveIssues
	}
	if policy.SlowLatency <= 0 {
		policy.SlowLatency = def.SlowLatency
	}
	if policy.SpikeLatency <= 0 {
		policy.SpikeLatency = def.SpikeLatency
	}
	if policy.TickInterval <= 0 {
		policy.TickInterval = def.TickInterval
	}
	if policy.InitialDelay < 0 {
		policy.InitialDelay = 0
	}
	if policy.Cooldown < 0 {
		policy.Cooldown = 0
	}
	return &Controller{policy: policy}
}

func (c *Controller) Policy() Policy {
	return c.policy
}

// Tick runs one periodic evaluation against the active tier.
func (c *Controller) Tick(st ControllerState, active Mode, snap Snapshot, now time.Time) (ControllerState, Decision) {
	suggested := SuggestMode(snap)
	d := Decision{From: active, To: active, Suggested: suggested}

	if suggested.Below(active) {
		st.ConsecutiveIssues++
		if st.ConsecutiveIssues < c.policy.ConsecutiveIssues || !c.cooledDown(st, now, 1) {
			return st, d
		}

		target := active.stepDown()
		if suggested == ModeMinimal {
			target = ModeMinimal
		}
		return c.change(st, d, target, ReasonSustainedIssues, now)
	}

	st.ConsecutiveIssues = 0

	if active == ModeFull || !c.canRestore(st, snap, now) {
		return st, d
	}
	if active == ModeReduced && st.PreviousMode != ModeFull {
		return st, d
	}

	return c.change(st, d, active.stepUp(), ReasonRestore, now)
}

// ObserveLatency reacts to a single interaction sample. A spike drops full or
// reduced straight to minimal without waiting for consecutive ticks.
func (c *Controller) ObserveLatency(st ControllerState, active Mode, latency time.Duration, now time.Time) (ControllerState, Decision) {
	d := Decision{From: active, To: active, Suggested: active}
	if latency <= c.policy.SpikeLatency {
		return st, d
	}
	if active != ModeFull && active != ModeReduced {
		return st, d
	}
	if !c.cooledDown(st, now, 1) {
		return st, d
	}

	d.Suggested = ModeMinimal
	return c.change(st, d, ModeMinimal, ReasonLatencySpike, now)
}

func (c *Controller) canRestore(st ControllerState, snap Snapshot, now time.Time) bool {
	if !c.cooledDown(st, now, 2) {
		return false
	}
	lat := snap.TouchLatency
	if float64(lat.Average) >= float64(c.policy.SlowLatency)*restoreLatencyFactor {
		return false
	}
	if lat.SlowRate() >= restoreMaxSlowRate {
		return false
	}
	return snap.AvgFPS >= restoreMinFPS
}

func (c *Controller) cooledDown(st ControllerState, now time.Time, factor time.Duration) bool {
	if st.LastChange.IsZero() {
		return true
	}
	return now.Sub(st.LastChange) >= c.policy.Cooldown*factor
}

func (c *Controller) change(st ControllerState, d Decision, target Mode, reason Reason, now time.Time) (ControllerState, Decision) {
	st.LastChange = now
	st.ConsecutiveIssues = 0
	d.Changed = target != d.From
	d.To = target
	d.Reason = reason
	return st, d
}
