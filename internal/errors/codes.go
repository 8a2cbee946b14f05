package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnavailable     ErrorCode = "service_unavailable"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidMode     ErrorCode = "invalid_mode"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Lifecycle errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Probe errors
	ErrProbeUnsupported ErrorCode = "probe_unsupported"
	ErrProbeRead        ErrorCode = "probe_read_failed"

	// Transport errors
	ErrListen         ErrorCode = "listen_failed"
	ErrUpgrade        ErrorCode = "websocket_upgrade_failed"
	ErrMalformedEvent ErrorCode = "malformed_event"
	ErrSessionClosed  ErrorCode = "session_closed"

	// History errors
	ErrInitHistory   ErrorCode = "init_history_failed"
	ErrRecordHistory ErrorCode = "record_history_failed"
	ErrCloseHistory  ErrorCode = "close_history_failed"

	// Replay errors
	ErrReadTrace  ErrorCode = "read_trace_failed"
	ErrWriteTrace ErrorCode = "write_trace_failed"
)

var errorMessages = map[ErrorCode]string{
	ErrInternal:         "Internal error occurred",
	ErrInvalidArgument:  "Invalid argument provided",
	ErrUnavailable:      "Service unavailable",
	ErrAlreadyRunning:   "Another instance is already running",
	ErrInvalidConfig:    "Invalid configuration",
	ErrReadConfig:       "Failed to read config file",
	ErrBindFlags:        "Failed to bind flags",
	ErrInvalidInterval:  "Invalid interval value",
	ErrInvalidMode:      "Invalid performance mode",
	ErrInvalidLogLevel:  "Invalid log level",
	ErrInitFailed:       "Initialization failed",
	ErrShutdownFailed:   "Shutdown failed",
	ErrProbeUnsupported: "Probe not supported on this platform",
	ErrProbeRead:        "Failed to read probe",
	ErrListen:           "Failed to listen",
	ErrUpgrade:          "Failed to upgrade connection",
	ErrMalformedEvent:   "Malformed telemetry event",
	ErrSessionClosed:    "Session closed",
	ErrInitHistory:      "Failed to initialize history",
	ErrRecordHistory:    "Failed to record history",
	ErrCloseHistory:     "Failed to close history",
	ErrReadTrace:        "Failed to read trace",
	ErrWriteTrace:       "Failed to write trace output",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
