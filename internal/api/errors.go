package api

import "codeberg.org/mutker/excavatorctl/internal/errors"

const (
	// Transport Errors
	ErrDial     = errors.ErrorCode("api_dial_failed")
	ErrWrite    = errors.ErrorCode("api_write_failed")
	ErrRead     = errors.ErrorCode("api_read_failed")
	ErrCanceled = errors.ErrorCode("api_request_canceled")

	// Response Errors
	ErrMalformedResponse = errors.ErrorCode("api_malformed_response")
	ErrRemote            = errors.ErrorCode("api_remote_error")
)
