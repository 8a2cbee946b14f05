package probe

import (
	"sync"

	"codeberg.org/nexustouch/perfd/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlReturn carries the driver's status code so callers can tell a
// missing driver from a device that stopped answering.
type nvmlReturn nvml.Return

func (r nvmlReturn) Error() string {
	return "nvml: " + nvml.ErrorString(nvml.Return(r))
}

// GPUMemory reads video memory pressure of the first NVIDIA GPU.
type GPUMemory struct {
	mu     sync.Mutex
	device nvml.Device
	name   string
}

// NewGPUMemory initializes NVML. It fails with ErrGPUUnavailable on hosts
// without the driver or without a device.
func NewGPUMemory() (*GPUMemory, error) {
	errFactory := errors.New()

	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, errFactory.Wrap(ErrGPUUnavailable, nvmlReturn(ret))
	}

	device, ret := nvml.DeviceGetHandleByIndex(0)
	if ret != nvml.SUCCESS {
		nvml.Shutdown()
		return nil, errFactory.Wrap(ErrGPUUnavailable, nvmlReturn(ret))
	}

	g := &GPUMemory{device: device}
	if name, ret := device.GetName(); ret == nvml.SUCCESS {
		g.name = name
	}

	return g, nil
}

func (g *GPUMemory) Name() string {
	return g.name
}

// UsagePercent returns used video memory as a percentage of total.
func (g *GPUMemory) UsagePercent() (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	mem, ret := g.device.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return 0, errors.New().Wrap(ErrGPUMemoryRead, nvmlReturn(ret))
	}
	if mem.Total == 0 {
		return 0, errors.New().WithData(ErrGPUMemoryRead, "zero total memory")
	}

	return float64(mem.Used) / float64(mem.Total) * 100, nil
}

func (g *GPUMemory) Shutdown() error {
	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return errors.New().Wrap(errors.ErrShutdownFailed, nvmlReturn(ret))
	}
	return nil
}
