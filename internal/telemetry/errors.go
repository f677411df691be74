package telemetry

import "codeberg.org/mutker/excavatorctl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrorCode("telemetry_invalid_config")
	ErrNoDevices     = errors.ErrorCode("telemetry_no_devices")

	// Collection Errors
	ErrResetFailed = errors.ErrorCode("telemetry_reset_failed")
	ErrFetchFailed = errors.ErrorCode("telemetry_fetch_failed")
	ErrPrintFailed = errors.ErrorCode("telemetry_print_failed")
)
