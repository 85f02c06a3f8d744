package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"rsipulse/internal/domain/entity"
	"rsipulse/internal/metrics"
	"rsipulse/pkg/rsi"
)

type ReadingRepository interface {
	Latest(ctx context.Context, symbol string) (*entity.Reading, error)
	Save(ctx context.Context, r *entity.Reading) error
}

type RSIService struct {
	registry *Registry
	store    ReadingRepository
	metrics  *metrics.Metrics
	logger   *zap.Logger
	low      float64
	high     float64
	now      func() time.Time
}

func NewRSIService(reg *Registry, store ReadingRepository, m *metrics.Metrics, logger *zap.Logger, low, high float64) *RSIService {
	return &RSIService{
		registry: reg,
		store:    store,
		metrics:  m,
		logger:   logger,
		low:      low,
		high:     high,
		now:      time.Now,
	}
}

func normalize(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", entity.ErrBadRequest("symbol required")
	}
	return symbol, nil
}

// Ingest feeds ticks, in order, into symbol's engine and stores the resulting
// reading. Skipped ticks are counted and logged but are not errors.
func (s *RSIService) Ingest(ctx context.Context, symbol string, ticks ...entity.Tick) (*entity.TickResponse, error) {
	symbol, err := normalize(symbol)
	if err != nil {
		return nil, err
	}
	if len(ticks) == 0 {
		return nil, entity.ErrBadRequest("no ticks")
	}

	sl, err := s.registry.getOrCreate(symbol)
	if err != nil {
		if errors.Is(err, ErrSymbolLimit) {
			return nil, entity.HTTPError{StatusCode: 429, Msg: err.Error()}
		}
		return nil, err
	}
	s.metrics.Symbols.Set(float64(s.registry.Len()))

	resp := &entity.TickResponse{
		Symbol:   symbol,
		Outcomes: make([]entity.Outcome, 0, len(ticks)),
	}
	var last observation
	for _, t := range ticks {
		start := time.Now()
		last = sl.observe(t)
		s.metrics.IngestDur.Observe(time.Since(start).Seconds())
		s.metrics.TicksTotal.WithLabelValues(string(last.outcome)).Inc()

		if last.outcome.Skipped() {
			resp.Skipped++
			s.metrics.Diagnostics.WithLabelValues(string(last.diag.Kind)).Inc()
			s.logger.Warn("tick skipped",
				zap.String("symbol", symbol),
				zap.String("kind", string(last.diag.Kind)),
				zap.Int64("ts", last.diag.Timestamp),
				zap.Int64("last_ts", last.diag.LastTimestamp),
				zap.Float64("price", last.diag.Price),
			)
		} else {
			resp.Accepted++
		}
		resp.Outcomes = append(resp.Outcomes, last.outcome)
	}

	reading := s.reading(symbol, last.value, last.ok, last.state, s.low, s.high)
	reading.Outcome = last.outcome
	if last.ok {
		s.metrics.LastRSI.WithLabelValues(symbol).Set(last.value)
	}
	if resp.Accepted > 0 {
		if err := s.store.Save(ctx, reading); err != nil {
			s.metrics.StoreErrors.Inc()
			s.logger.Warn("reading save failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	s.logger.Debug("ticks ingested",
		zap.String("symbol", symbol),
		zap.Int("accepted", resp.Accepted),
		zap.Int("skipped", resp.Skipped),
		zap.String("phase", string(last.state.Phase)),
	)
	resp.Reading = *reading
	return resp, nil
}

// Reading returns the latest RSI for a symbol: from the live engine when this
// process tracks it, otherwise from the reading cache.
func (s *RSIService) Reading(ctx context.Context, req entity.ReadingRequest) (*entity.Reading, error) {
	symbol, err := normalize(req.Symbol)
	if err != nil {
		return nil, err
	}
	low, high := s.low, s.high
	if req.RSILow != nil {
		low = *req.RSILow
	}
	if req.RSIHigh != nil {
		high = *req.RSIHigh
	}
	if low >= high {
		return nil, entity.ErrBadRequest("rsi_low must be below rsi_high")
	}

	if sl, ok := s.registry.lookup(symbol); ok {
		v, valid, st := sl.current()
		return s.reading(symbol, v, valid, st, low, high), nil
	}

	cached, err := s.store.Latest(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("reading lookup: %w", err)
	}
	if cached == nil {
		return nil, entity.ErrNotFound(fmt.Sprintf("no data for %s", symbol))
	}
	cached.Alert = ""
	if cached.IsValidRSI {
		cached.Alert = rsi.CheckAlert(cached.RSI, low, high)
	}
	return cached, nil
}

// State returns the engine snapshot for a tracked symbol.
func (s *RSIService) State(symbol string) (rsi.State, error) {
	symbol, err := normalize(symbol)
	if err != nil {
		return rsi.State{}, err
	}
	st, err := s.registry.State(symbol)
	if errors.Is(err, ErrUnknownSymbol) {
		return st, entity.ErrNotFound(fmt.Sprintf("%s is not tracked", symbol))
	}
	return st, err
}

func (s *RSIService) reading(symbol string, v float64, ok bool, st rsi.State, low, high float64) *entity.Reading {
	r := &entity.Reading{
		Symbol:       symbol,
		IsValidRSI:   ok,
		TS:           st.LastTimestamp,
		Close:        st.LastClose,
		Bars:         st.BarCount,
		WarmupStatus: string(st.WarmupStatus()),
		UpdatedAt:    s.now().UTC(),
	}
	if ok {
		r.RSI = v
		r.Alert = rsi.CheckAlert(v, low, high)
	}
	return r
}
