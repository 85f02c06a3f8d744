package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rsipulse/internal/domain/entity"
	"rsipulse/internal/infra/feed"
	"rsipulse/internal/metrics"
)

type CandleSource interface {
	FetchIntraday(ctx context.Context, symbol string, since time.Time) ([]feed.Candle, error)
}

// Poller pulls candles from the upstream feed and drives the RSI service.
// Each configured symbol gets its own goroutine.
type Poller struct {
	src      CandleSource
	svc      *RSIService
	symbols  []string
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu    sync.Mutex
	since map[string]time.Time
}

func NewPoller(src CandleSource, svc *RSIService, symbols []string, interval time.Duration, m *metrics.Metrics, logger *zap.Logger) *Poller {
	return &Poller{
		src:      src,
		svc:      svc,
		symbols:  symbols,
		interval: interval,
		metrics:  m,
		logger:   logger,
		since:    make(map[string]time.Time, len(symbols)),
	}
}

// Run polls until ctx is cancelled. It returns nil on cancellation.
func (p *Poller) Run(ctx context.Context) error {
	if len(p.symbols) == 0 {
		p.logger.Info("poller idle, no symbols configured")
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, sym := range p.symbols {
		sym := sym
		g.Go(func() error {
			p.loop(ctx, sym)
			return nil
		})
	}
	return g.Wait()
}

func (p *Poller) loop(ctx context.Context, symbol string) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.PollOnce(ctx, symbol); err != nil && ctx.Err() == nil {
			p.metrics.PollErrors.WithLabelValues(symbol).Inc()
			p.logger.Warn("poll failed", zap.String("symbol", symbol), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PollOnce fetches candles from the open bar onward and ingests their closes.
// The open bar is re-sent every time, which revises it in the engine.
func (p *Poller) PollOnce(ctx context.Context, symbol string) (int, error) {
	p.mu.Lock()
	since := p.since[symbol]
	p.mu.Unlock()

	candles, err := p.src.FetchIntraday(ctx, symbol, since)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, nil
	}

	ticks := make([]entity.Tick, 0, len(candles))
	for _, c := range candles {
		ticks = append(ticks, entity.Tick{TS: c.Timestamp.Unix(), Price: c.Close})
	}
	resp, err := p.svc.Ingest(ctx, symbol, ticks...)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	p.since[symbol] = candles[len(candles)-1].Timestamp
	p.mu.Unlock()
	return resp.Accepted, nil
}
