package client

import "codeberg.org/mutker/tankctl/internal/errors"

const (
	ErrRequestFailed      = errors.ErrorCode("client_request_failed")
	ErrUnexpectedCode     = errors.ErrorCode("client_unexpected_status")
	ErrDecodeResponse     = errors.ErrorCode("client_decode_response")
	ErrChannelUnavailable = errors.ErrChannelUnavailable
)
