package perf

import "time"

// BatteryStatus is a reading of the platform battery.
type BatteryStatus struct {
	LevelPercent float64 `json:"level"`
	Charging     bool    `json:"charging"`
}

// LatencyStats summarises the retained interaction latency samples.
type LatencyStats struct {
	Last       time.Duration `json:"last"`
	Average    time.Duration `json:"average"`
	Max        time.Duration `json:"max"`
	SlowCount  int           `json:"slow_count"`
	TotalCount int           `json:"total_count"`
}

// SlowRate is the fraction of retained samples that were slow.
func (l LatencyStats) SlowRate() float64 {
	if l.TotalCount == 0 {
		return 0
	}
	return float64(l.SlowCount) / float64(l.TotalCount)
}

// Snapshot is the latest aggregated read of all performance metrics.
type Snapshot struct {
	FPS              float64                 `json:"fps"`
	AvgFPS           float64                 `json:"avg_fps"`
	MemoryUsage      Optional[float64]       `json:"memory_usage"`
	DevicePixelRatio float64                 `json:"device_pixel_ratio"`
	LowEndDevice     bool                    `json:"low_end_device"`
	Battery          Optional[BatteryStatus] `json:"battery"`
	TouchLatency     LatencyStats            `json:"touch_latency"`
}

// Network effective types reported by clients.
const (
	NetworkSlow2G = "slow-2g"
	Network2G     = "2g"
	Network3G     = "3g"
	Network4G     = "4g"
)

const (
	lowEndCores    = 2
	lowEndMemoryGB = 2
)

// DeviceInfo holds static capability readings of a device.
type DeviceInfo struct {
	Cores        Optional[int]     `json:"cores"`
	MemoryGB     Optional[float64] `json:"memory_gb"`
	NetworkClass Optional[string]  `json:"network"`
}

// IsLowEnd flags a resource-constrained device. Unknown readings never
// count against the device.
func (d DeviceInfo) IsLowEnd() bool {
	if cores, ok := d.Cores.Get(); ok && cores <= lowEndCores {
		return true
	}
	if mem, ok := d.MemoryGB.Get(); ok && mem <= lowEndMemoryGB {
		return true
	}
	if class, ok := d.NetworkClass.Get(); ok && (class == NetworkSlow2G || class == Network2G) {
		return true
	}
	return false
}
