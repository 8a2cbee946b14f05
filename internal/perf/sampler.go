package perf

import "time"

const (
	DefaultFrameWindow     = 60
	DefaultLatencyWindow   = 50
	DefaultPublishThrottle = time.Second
	DefaultSlowLatency     = 100 * time.Millisecond

	maxPendingPointers = 32
)

// SamplerConfig sizes the rolling windows of a Sampler.
type SamplerConfig struct {
	FrameWindow     int
	LatencyWindow   int
	PublishThrottle time.Duration
	SlowLatency     time.Duration
}

func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		FrameWindow:     DefaultFrameWindow,
		LatencyWindow:   DefaultLatencyWindow,
		PublishThrottle: DefaultPublishThrottle,
		SlowLatency:     DefaultSlowLatency,
	}
}

// Sampler turns raw frame and interaction timestamps into a Snapshot.
// Timestamps are offsets on the client's monotonic clock. A Sampler is owned
// by a single goroutine and is not safe for concurrent use.
type Sampler struct {
	cfg SamplerConfig

	frames    *Window
	latencies *Window

	lastFrame     time.Duration
	haveFrame     bool
	lastPublish   time.Duration
	havePublished bool

	pending map[int64]time.Duration

	snap Snapshot
}

func NewSampler(cfg SamplerConfig) *Sampler {
	def := DefaultSamplerConfig()
	if cfg.FrameWindow <= 0 {
		cfg.FrameWindow = def.FrameWindow
	}
	if cfg.LatencyWindow <= 0 {
		cfg.LatencyWindow = def.LatencyWindow
	}
	if cfg.SlowLatency <= 0 {
		cfg.SlowLatency = def.SlowLatency
	}
	if cfg.PublishThrottle < 0 {
		cfg.PublishThrottle = 0
	}

	return &Sampler{
		cfg:       cfg,
		frames:    NewWindow(cfg.FrameWindow),
		latencies: NewWindow(cfg.LatencyWindow),
		pending:   make(map[int64]time.Duration),
		snap: Snapshot{
			DevicePixelRatio: 1,
		},
	}
}

// Frame records a rendered frame at the given client time. It reports
// whether the frame rate figures in the snapshot were republished.
func (s *Sampler) Frame(at time.Duration) bool {
	if !s.haveFrame {
		s.lastFrame = at
		s.haveFrame = true
		return false
	}

	delta := at - s.lastFrame
	s.lastFrame = at
	if delta <= 0 {
		return false
	}

	s.frames.Push(float64(time.Second) / float64(delta))

	if s.havePublished && at-s.lastPublish < s.cfg.PublishThrottle {
		return false
	}
	s.lastPublish = at
	s.havePublished = true
	s.snap.FPS = s.frames.Last()
	s.snap.AvgFPS = s.frames.Mean()

	return true
}

// PointerDown marks the start of an interaction.
func (s *Sampler) PointerDown(id int64, at time.Duration) {
	if len(s.pending) >= maxPendingPointers {
		clear(s.pending)
	}
	s.pending[id] = at
}

// PointerUp closes the interaction started by PointerDown with the same id
// and returns its latency. Unpaired ends are ignored.
func (s *Sampler) PointerUp(id int64, at time.Duration) (time.Duration, bool) {
	start, ok := s.pending[id]
	if !ok {
		return 0, false
	}
	delete(s.pending, id)

	latency := at - start
	if latency < 0 {
		return 0, false
	}
	s.RecordLatency(latency)

	return latency, true
}

// RecordLatency adds an already measured interaction latency.
func (s *Sampler) RecordLatency(latency time.Duration) {
	s.latencies.Push(float64(latency))
	s.snap.TouchLatency = LatencyStats{
		Last:       time.Duration(s.latencies.Last()),
		Average:    time.Duration(s.latencies.Mean()),
		Max:        time.Duration(s.latencies.Max()),
		SlowCount:  s.latencies.CountAbove(float64(s.cfg.SlowLatency)),
		TotalCount: s.latencies.Len(),
	}
}

func (s *Sampler) SetDevice(info DeviceInfo) {
	s.snap.LowEndDevice = info.IsLowEnd()
}

func (s *Sampler) SetDevicePixelRatio(dpr float64) {
	if dpr > 0 {
		s.snap.DevicePixelRatio = dpr
	}
}

func (s *Sampler) SetBattery(b Optional[BatteryStatus]) {
	s.snap.Battery = b
}

func (s *Sampler) SetMemoryUsage(percent Optional[float64]) {
	s.snap.MemoryUsage = percent
}

// Snapshot returns the currently published metrics.
func (s *Sampler) Snapshot() Snapshot {
	return s.snap
}

// FrameSamples returns the retained frame rate samples, oldest first.
func (s *Sampler) FrameSamples() []float64 {
	return s.frames.Values()
}
