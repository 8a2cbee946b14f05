package probe

import (
	"runtime"

	"codeberg.org/nexustouch/perfd/internal/logger"
	"codeberg.org/nexustouch/perfd/internal/perf"
)

// Device reads the static capabilities of the host once. networkClass is the
// configured effective network type; empty means unknown.
func Device(procRoot, networkClass string, log logger.Logger) perf.DeviceInfo {
	info := perf.DeviceInfo{
		Cores: perf.Some(runtime.NumCPU()),
	}

	if mem, err := readMeminfo(procRoot); err != nil {
		log.Debug().Err(err).Msg("Device memory unknown")
	} else {
		info.MemoryGB = perf.Some(mem.totalGiB())
	}

	if networkClass != "" {
		info.NetworkClass = perf.Some(networkClass)
	}

	log.Debug().
		Int("cores", info.Cores.OrElse(0)).
		Float64("memory_gb", info.MemoryGB.OrElse(0)).
		Str("network", info.NetworkClass.OrElse("unknown")).
		Bool("low_end", info.IsLowEnd()).
		Msg("Device capabilities probed")

	return info
}
