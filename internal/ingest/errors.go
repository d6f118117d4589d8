package ingest

import "codeberg.org/mutker/tankctl/internal/errors"

const (
	ErrInvalidConfig errors.ErrorCode = "ingest_invalid_config"
	ErrDecodeReading errors.ErrorCode = "ingest_decode_reading"
)
