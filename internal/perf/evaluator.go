package perf

import "time"

// Evaluator cutoffs. The order of the checks in SuggestMode is observable
// at tie-break snapshots and must not change.
const (
	criticalLatency = 150 * time.Millisecond
	elevatedLatency = 80 * time.Millisecond
	lowBattery      = 20.0
	highMemory      = 80.0
	minimalFPS      = 30.0
	reducedFPS      = 50.0
)

// SuggestMode maps a snapshot to the tier it can sustain. First match wins.
func SuggestMode(s Snapshot) Mode {
	if s.TouchLatency.Average > criticalLatency {
		return ModeMinimal
	}
	if b, ok := s.Battery.Get(); ok && b.LevelPercent < lowBattery && !b.Charging {
		return ModeMinimal
	}
	if mem, ok := s.MemoryUsage.Get(); ok && mem > highMemory {
		return ModeMinimal
	}
	if s.AvgFPS < minimalFPS || s.LowEndDevice {
		return ModeMinimal
	}
	if s.AvgFPS < reducedFPS || s.TouchLatency.Average > elevatedLatency {
		return ModeReduced
	}
	return ModeFull
}
