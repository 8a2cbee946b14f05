package probe

import (
	"context"
	"sync"
	"time"

	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/logger"
	"codeberg.org/nexustouch/perfd/internal/perf"
)

type Config struct {
	SysfsRoot    string
	ProcfsRoot   string
	NetworkClass string
	Interval     time.Duration
	GPU          bool
}

// Reading is one poll of the host's dynamic probes.
type Reading struct {
	Battery perf.Optional[perf.BatteryStatus]
	Memory  perf.Optional[float64]
}

// Host probes the machine perfd runs on. Sessions fall back to it when a
// client does not report its own readings.
type Host struct {
	cfg    Config
	log    logger.Logger
	device perf.DeviceInfo
	gpu    *GPUMemory

	mu   sync.Mutex
	last Reading
}

func NewHost(cfg Config, log logger.Logger) *Host {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}

	h := &Host{
		cfg:    cfg,
		log:    log,
		device: Device(cfg.ProcfsRoot, cfg.NetworkClass, log),
	}

	if cfg.GPU {
		gpu, err := NewGPUMemory()
		if err != nil {
			log.Info().Err(err).Msg("GPU memory probe unavailable, using system memory")
		} else {
			log.Info().Str("gpu", gpu.Name()).Msg("GPU memory probe enabled")
			h.gpu = gpu
		}
	}

	return h
}

func (h *Host) Device() perf.DeviceInfo {
	return h.device
}

// Read polls battery and memory. Missing probes read as unsupported; a
// transient failure of a probe that worked before keeps the last value.
func (h *Host) Read() Reading {
	h.mu.Lock()
	defer h.mu.Unlock()

	var r Reading

	battery, err := ReadBattery(h.cfg.SysfsRoot)
	switch {
	case err == nil:
		r.Battery = perf.Some(battery)
	case errors.HasCode(err, ErrBatteryRead) && h.last.Battery.IsSupported():
		h.log.Debug().Err(err).Msg("Battery read failed, keeping last value")
		r.Battery = h.last.Battery
	default:
		r.Battery = perf.Unsupported[perf.BatteryStatus]()
	}

	r.Memory = h.readMemory()
	h.last = r

	return r
}

func (h *Host) readMemory() perf.Optional[float64] {
	if h.gpu != nil {
		usage, err := h.gpu.UsagePercent()
		if err == nil {
			return perf.Some(usage)
		}
		h.log.Debug().Err(err).Msg("GPU memory read failed, falling back to system memory")
	}

	mem, err := readMeminfo(h.cfg.ProcfsRoot)
	if err != nil {
		if h.last.Memory.IsSupported() {
			return h.last.Memory
		}
		return perf.Unsupported[float64]()
	}
	return perf.Some(mem.usagePercent())
}

// Watch calls fn with the first reading and then with every reading that
// differs from the previous one, until ctx is done.
func (h *Host) Watch(ctx context.Context, fn func(Reading)) {
	prev := h.Read()
	fn(prev)

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r := h.Read()
			if r != prev {
				fn(r)
				prev = r
			}
		}
	}
}

func (h *Host) Close() error {
	if h.gpu == nil {
		return nil
	}
	return h.gpu.Shutdown()
}
