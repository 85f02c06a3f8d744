package service

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"rsipulse/internal/domain/entity"
	"rsipulse/pkg/rsi"
)

var (
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrSymbolLimit   = errors.New("symbol limit reached")
)

// Registry owns one rsi.Engine per symbol. Engines are not safe for
// concurrent use, so each sits behind its own mutex.
type Registry struct {
	period int
	max    int

	mu      sync.RWMutex
	engines map[string]*slot
}

type slot struct {
	mu     sync.Mutex
	engine *rsi.Engine
	diag   *rsi.Diagnostic // set by the engine during the current Observe
}

type observation struct {
	value   float64
	ok      bool
	outcome entity.Outcome
	diag    *rsi.Diagnostic
	state   rsi.State
}

func NewRegistry(period, maxSymbols int) (*Registry, error) {
	// Surface a bad period at startup rather than on the first tick.
	if _, err := rsi.New(period); err != nil {
		return nil, err
	}
	return &Registry{
		period:  period,
		max:     maxSymbols,
		engines: make(map[string]*slot),
	}, nil
}

func (r *Registry) lookup(symbol string) (*slot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.engines[symbol]
	return s, ok
}

func (r *Registry) getOrCreate(symbol string) (*slot, error) {
	if s, ok := r.lookup(symbol); ok {
		return s, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.engines[symbol]; ok {
		return s, nil
	}
	if r.max > 0 && len(r.engines) >= r.max {
		return nil, fmt.Errorf("%w (%d)", ErrSymbolLimit, r.max)
	}

	s := &slot{}
	eng, err := rsi.New(r.period, rsi.WithDiagnostics(func(d rsi.Diagnostic) {
		s.diag = &d
	}))
	if err != nil {
		return nil, err
	}
	s.engine = eng
	r.engines[symbol] = s
	return s, nil
}

// Len returns the number of live engines.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}

// Symbols returns the tracked symbols in sorted order.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.engines))
	for k := range r.engines {
		out = append(out, k)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// State returns a snapshot of symbol's engine.
func (r *Registry) State(symbol string) (rsi.State, error) {
	s, ok := r.lookup(symbol)
	if !ok {
		return rsi.State{}, ErrUnknownSymbol
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshot(), nil
}

func (s *slot) observe(t entity.Tick) observation {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.diag = nil
	before := s.engine.Snapshot().BarCount
	v, ok := s.engine.Observe(t.TS, t.Price)
	st := s.engine.Snapshot()

	obs := observation{value: v, ok: ok, diag: s.diag, state: st}
	switch {
	case s.diag != nil && s.diag.Kind == rsi.OutOfOrder:
		obs.outcome = entity.OutcomeOutOfOrder
	case s.diag != nil:
		obs.outcome = entity.OutcomeInvalidPrice
	case before == 0:
		obs.outcome = entity.OutcomeFirst
	case st.BarCount > before:
		obs.outcome = entity.OutcomeNewBar
	default:
		obs.outcome = entity.OutcomeRevision
	}
	return obs
}

func (s *slot) current() (float64, bool, rsi.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.engine.Current()
	return v, ok, s.engine.Snapshot()
}
