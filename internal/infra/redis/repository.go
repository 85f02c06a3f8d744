package redis

import (
	"context"
	"time"

	"rsipulse/internal/domain/entity"
)

// ReadingRepository stores and fans out the latest RSI reading per symbol.
type ReadingRepository interface {
	Latest(ctx context.Context, symbol string) (*entity.Reading, error)
	Save(ctx context.Context, r *entity.Reading) error
}

// NewReadingRepository returns a ReadingRouter which writes through to Redis
// and keeps an in-memory copy for when Redis is unavailable.
func NewReadingRepository(cli *Client, maxSymbols int, ttl time.Duration) ReadingRepository {
	return NewReadingRouter(cli, maxSymbols, ttl)
}
