package metrics

import "codeberg.org/mutker/excavatorctl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig  = errors.ErrInvalidConfig
	ErrInvalidAddress = errors.ErrorCode("metrics_invalid_address")

	// Registry Errors
	ErrRegisterFailed = errors.ErrorCode("metrics_register_failed")

	// Service Errors
	ErrServeFailed     = errors.ErrorCode("metrics_serve_failed")
	ErrServiceShutdown = errors.ErrShutdownFailed
)
