package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"rsipulse/internal/domain/entity"
)

// ReadingRouter writes readings to Redis and an in-memory fallback.
type ReadingRouter struct {
	cli    *Client
	memMu  sync.RWMutex
	memory map[string]*entity.Reading
	sf     singleflight.Group
	maxSym int
	ttl    time.Duration
}

func NewReadingRouter(cli *Client, maxSymbols int, ttl time.Duration) *ReadingRouter {
	return &ReadingRouter{
		cli:    cli,
		memory: make(map[string]*entity.Reading),
		maxSym: maxSymbols,
		ttl:    ttl,
	}
}

func latestKey(symbol string) string { return fmt.Sprintf("rsi:%s:latest", symbol) }

// Channel is the pub/sub channel readings for symbol are published on.
func Channel(symbol string) string { return fmt.Sprintf("rsi:%s", symbol) }

// Latest returns the newest stored reading, or nil if none exists.
func (s *ReadingRouter) Latest(ctx context.Context, symbol string) (*entity.Reading, error) {
	res, err, _ := s.sf.Do(symbol, func() (interface{}, error) {
		if !s.cli.IsDown() {
			r, err := s.redisGet(ctx, symbol)
			if err == nil && r != nil {
				return r, nil
			}
		}
		return s.memoryGet(symbol), nil
	})
	if err != nil {
		return nil, err
	}
	r, _ := res.(*entity.Reading)
	if r == nil {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

// Save stores r, publishes it, and mirrors it to memory. Memory is always
// updated even when the Redis write fails.
func (s *ReadingRouter) Save(ctx context.Context, r *entity.Reading) error {
	if r == nil {
		return nil
	}
	s.memoryPut(r)
	if s.cli.IsDown() {
		return nil
	}
	if err := s.redisSave(ctx, r); err != nil {
		s.cli.MarkDown()
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

func (s *ReadingRouter) redisGet(ctx context.Context, symbol string) (*entity.Reading, error) {
	data, err := s.cli.RDB().HGetAll(ctx, latestKey(symbol)).Result()
	if err != nil || len(data) == 0 {
		return nil, err
	}

	r := &entity.Reading{Symbol: symbol}
	r.RSI, _ = strconv.ParseFloat(data["rsi"], 64)
	r.IsValidRSI, _ = strconv.ParseBool(data["valid"])
	r.TS, _ = strconv.ParseInt(data["ts"], 10, 64)
	r.Close, _ = strconv.ParseFloat(data["close"], 64)
	r.Bars, _ = strconv.Atoi(data["bars"])
	r.WarmupStatus = data["warmup"]
	r.Outcome = entity.Outcome(data["outcome"])
	if at, err := time.Parse(time.RFC3339Nano, data["updated_at"]); err == nil {
		r.UpdatedAt = at
	}
	return r, nil
}

func (s *ReadingRouter) redisSave(ctx context.Context, r *entity.Reading) error {
	key := latestKey(r.Symbol)
	fields := map[string]interface{}{
		"rsi":        strconv.FormatFloat(r.RSI, 'f', 8, 64),
		"valid":      strconv.FormatBool(r.IsValidRSI),
		"ts":         r.TS,
		"close":      strconv.FormatFloat(r.Close, 'f', -1, 64),
		"bars":       r.Bars,
		"warmup":     r.WarmupStatus,
		"outcome":    string(r.Outcome),
		"updated_at": r.UpdatedAt.Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}

	pipe := s.cli.RDB().TxPipeline()
	pipe.HSet(ctx, key, fields)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	pipe.Publish(ctx, Channel(r.Symbol), payload)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *ReadingRouter) memoryGet(symbol string) *entity.Reading {
	s.memMu.RLock()
	defer s.memMu.RUnlock()
	return s.memory[symbol]
}

func (s *ReadingRouter) memoryPut(r *entity.Reading) {
	cp := *r
	s.memMu.Lock()
	defer s.memMu.Unlock()
	s.memory[r.Symbol] = &cp

	if s.maxSym > 0 && len(s.memory) > s.maxSym {
		for k := range s.memory {
			if k != r.Symbol {
				delete(s.memory, k)
				break
			}
		}
	}
}
