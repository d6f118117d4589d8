package history

import (
	"context"

	"codeberg.org/mutker/tankctl/internal/tank"
)

// Repository is a bounded reading backend. QueryRecent answers newest
// first; Store normalizes to chronological order.
type Repository interface {
	Append(ctx context.Context, reading tank.Reading) error
	QueryRecent(ctx context.Context, limit int) ([]tank.Reading, error)
	Clear(ctx context.Context) error
	Close() error
}
