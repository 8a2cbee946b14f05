package probe

import "codeberg.org/nexustouch/perfd/internal/errors"

const (
	ErrBatteryNotFound = errors.ErrorCode("probe_battery_not_found")
	ErrBatteryRead     = errors.ErrorCode("probe_battery_read_failed")
	ErrMeminfoRead     = errors.ErrorCode("probe_meminfo_read_failed")
	ErrMeminfoField    = errors.ErrorCode("probe_meminfo_field_missing")
	ErrGPUUnavailable  = errors.ErrorCode("probe_gpu_unavailable")
	ErrGPUMemoryRead   = errors.ErrorCode("probe_gpu_memory_read_failed")
)
