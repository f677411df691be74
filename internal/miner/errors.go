package miner

import "codeberg.org/mutker/excavatorctl/internal/errors"

const (
	ErrInvalidConfig  = errors.ErrInvalidConfig
	ErrAlreadyStarted = errors.ErrAlreadyStarted
	ErrNotStarted     = errors.ErrorCode("miner_telemetry_loop_not_started")
)
