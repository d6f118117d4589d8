package tank

import (
	"fmt"
	"math"

	"codeberg.org/mutker/tankctl/internal/errors"
)

// Validate rejects sensor payloads that the reconciler must never see.
func Validate(level, percentage float64) error {
	errFactory := errors.New()

	switch {
	case math.IsNaN(level) || math.IsInf(level, 0):
		return errFactory.WithData(errors.ErrMalformedCommand, "level must be a finite number")
	case level < 0:
		return errFactory.WithData(errors.ErrMalformedCommand, fmt.Sprintf("level %v is negative", level))
	case math.IsNaN(percentage) || math.IsInf(percentage, 0):
		return errFactory.WithData(errors.ErrMalformedCommand, "percentage must be a finite number")
	case percentage < MinPercentage || percentage > MaxPercentage:
		return errFactory.WithData(errors.ErrMalformedCommand,
			fmt.Sprintf("percentage %v outside [0,100]", percentage))
	}

	return nil
}
