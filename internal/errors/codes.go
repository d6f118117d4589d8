package errors

const (
	ErrInternal ErrorCode = "internal_error"

	// Configuration
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrMissingConfig   ErrorCode = "missing_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidCapacity ErrorCode = "invalid_capacity"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Process lifecycle
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"
	ErrInitApp        ErrorCode = "init_app_failed"
	ErrMainLoop       ErrorCode = "main_loop_failed"
	ErrServeHTTP      ErrorCode = "serve_http_failed"

	// Runtime degradation. None of these stop the process.
	ErrStorageUnavailable ErrorCode = "storage_unavailable"
	ErrChannelUnavailable ErrorCode = "channel_unavailable"
	ErrMalformedCommand   ErrorCode = "malformed_command"
)

var errorMessages = map[ErrorCode]string{
	ErrInternal:           "Internal error occurred",
	ErrInvalidConfig:      "Invalid configuration",
	ErrMissingConfig:      "Missing configuration",
	ErrBindFlags:          "Failed to parse flags",
	ErrReadConfig:         "Failed to read config file",
	ErrInvalidInterval:    "Invalid interval value",
	ErrInvalidCapacity:    "Invalid capacity value",
	ErrInvalidLogLevel:    "Invalid log level",
	ErrInitFailed:         "Initialization failed",
	ErrShutdownFailed:     "Shutdown failed",
	ErrAlreadyRunning:     "Another instance is already running",
	ErrInitApp:            "Failed to initialize application",
	ErrMainLoop:           "Error in main loop",
	ErrServeHTTP:          "HTTP server failed",
	ErrStorageUnavailable: "Durable storage unavailable",
	ErrChannelUnavailable: "Push channel unavailable",
	ErrMalformedCommand:   "Malformed command",
}

// GetErrorMessage returns the registered text for code, or the code itself.
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return string(code)
}
