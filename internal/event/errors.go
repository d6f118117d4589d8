package event

import "codeberg.org/mutker/tankctl/internal/errors"

const ErrDecodeEvent errors.ErrorCode = "event_decode_failed"
