package session

import (
	"time"

	"codeberg.org/nexustouch/perfd/internal/perf"
	"codeberg.org/nexustouch/perfd/internal/probe"
)

// Driver applies client events and evaluation ticks to one sampler,
// controller and mode store. It has no goroutines or timers of its own, so
// the live session and trace replay share it with different clocks.
type Driver struct {
	// device holds the host probes until the client first reports its own
	// device, then only what the client has reported.
	device  perf.DeviceInfo
	store   *perf.Store
	sampler *perf.Sampler
	ctrl    *perf.Controller

	clientBattery bool
	clientMemory  bool
	clientDevice  bool
	suggested     perf.Mode
}

func NewDriver(policy perf.Policy, sampler perf.SamplerConfig, initial perf.Mode, device perf.DeviceInfo) *Driver {
	d := &Driver{
		device:  device,
		store:   perf.NewStore(initial),
		sampler: perf.NewSampler(sampler),
		ctrl:    perf.NewController(policy),
	}
	d.sampler.SetDevice(device)
	d.suggested = d.store.Active()
	return d
}

func (d *Driver) Store() *perf.Store {
	return d.store
}

func (d *Driver) Snapshot() perf.Snapshot {
	return d.sampler.Snapshot()
}

func (d *Driver) Policy() perf.Policy {
	return d.ctrl.Policy()
}

// Suggested is the evaluator's most recent suggestion.
func (d *Driver) Suggested() perf.Mode {
	return d.suggested
}

// SetPolicy swaps the controller. The hysteresis state lives in the store
// and carries over.
func (d *Driver) SetPolicy(p perf.Policy) {
	d.ctrl = perf.NewController(p)
}

// SetHost applies host probe readings the client has not overridden.
func (d *Driver) SetHost(r probe.Reading) {
	if !d.clientBattery {
		d.sampler.SetBattery(r.Battery)
	}
	if !d.clientMemory {
		d.sampler.SetMemoryUsage(r.Memory)
	}
}

// Handle applies one client event at server time now. It returns the
// snapshot trigger when the event republished the snapshot, or "".
func (d *Driver) Handle(ev Event, now time.Time) string {
	at := ev.clientTime()

	switch ev.Type {
	case EventFrame:
		if d.sampler.Frame(at) {
			return TriggerFrame
		}

	case EventPointerDown:
		d.sampler.PointerDown(ev.ID, at)

	case EventPointerUp:
		latency, ok := d.sampler.PointerUp(ev.ID, at)
		if !ok {
			return ""
		}
		if dec := d.store.ObserveLatency(d.ctrl, latency, now); dec.Changed {
			d.suggested = dec.Suggested
		}
		return TriggerInteraction

	case EventBattery:
		d.clientBattery = true
		if ev.Level == nil {
			d.sampler.SetBattery(perf.Unsupported[perf.BatteryStatus]())
			return ""
		}
		charging := ev.Charging != nil && *ev.Charging
		d.sampler.SetBattery(perf.Some(perf.BatteryStatus{LevelPercent: *ev.Level, Charging: charging}))

	case EventMemory:
		d.clientMemory = true
		if ev.Usage == nil {
			d.sampler.SetMemoryUsage(perf.Unsupported[float64]())
			return ""
		}
		d.sampler.SetMemoryUsage(perf.Some(*ev.Usage))

	case EventDevice:
		info := d.device
		if !d.clientDevice {
			info = perf.DeviceInfo{}
			d.clientDevice = true
		}
		if ev.Cores != nil {
			info.Cores = perf.Some(*ev.Cores)
		}
		if ev.MemoryGB != nil {
			info.MemoryGB = perf.Some(*ev.MemoryGB)
		}
		if ev.Network != nil {
			info.NetworkClass = perf.Some(*ev.Network)
		}
		d.device = info
		d.sampler.SetDevice(info)
		d.sampler.SetDevicePixelRatio(ev.DPR)

	case EventSelect:
		if mode, err := perf.ParseMode(ev.Mode); err == nil {
			d.store.Select(mode, now)
		}
	}

	return ""
}

// Tick runs one periodic evaluation.
func (d *Driver) Tick(now time.Time) perf.Decision {
	dec := d.store.Evaluate(d.ctrl, d.sampler.Snapshot(), now)
	d.suggested = dec.Suggested
	return dec
}
