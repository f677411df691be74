package benchmark

import "codeberg.org/mutker/excavatorctl/internal/errors"

const (
	ErrInvalidConfig errors.ErrorCode = "benchmark_invalid_configuration"
	ErrInvalidTier   errors.ErrorCode = "benchmark_invalid_tier"
	ErrUnknownTier   errors.ErrorCode = "benchmark_unknown_tier"
	ErrStopFailed    errors.ErrorCode = "benchmark_stop_failed"
)
