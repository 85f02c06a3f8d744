// Package rsi computes Wilder's Relative Strength Index incrementally over a
// stream of (timestamp, price) ticks. Each tick either revises the open bar or
// closes it and opens a new one; state stays O(1) and history is never replayed.
package rsi

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidPeriod is returned by New when the period is not greater than 1.
var ErrInvalidPeriod = errors.New("rsi: period must be greater than 1")

// Engine is the incremental RSI state machine. It is not safe for concurrent
// use; callers serialize access (one engine per symbol, or a mutex).
type Engine struct {
	period   int
	barCount int
	bar      openBar
	phase    phase
	onDiag   func(Diagnostic)
}

// openBar tracks the bar currently accepting revisions.
type openBar struct {
	ts        int64
	close     float64
	prevClose float64 // close of the bar before this one
	hasPrev   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithDiagnostics registers fn to receive skipped-input events.
func WithDiagnostics(fn func(Diagnostic)) Option {
	return func(e *Engine) {
		if fn != nil {
			e.onDiag = fn
		}
	}
}

// New creates an engine with the given smoothing period.
func New(period int, opts ...Option) (*Engine, error) {
	if period <= 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPeriod, period)
	}
	e := &Engine{
		period: period,
		phase:  awaitingFirst{},
		onDiag: func(Diagnostic) {},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Period returns the smoothing window length.
func (e *Engine) Period() int { return e.period }

// Observe ingests one tick and returns the RSI, or false while none is defined.
// A tick with the open bar's timestamp revises that bar; a later timestamp
// closes it. Non-finite prices and timestamps older than the open bar are
// reported through the diagnostic hook and leave the engine untouched.
func (e *Engine) Observe(ts int64, price float64) (float64, bool) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		e.onDiag(Diagnostic{Kind: InvalidPrice, Timestamp: ts, LastTimestamp: e.bar.ts, Price: price})
		return e.Current()
	}

	if _, ok := e.phase.(awaitingFirst); ok {
		e.bar = openBar{ts: ts, close: price}
		e.barCount = 1
		e.phase = &bootstrapping{
			gains:  make([]float64, 0, e.period),
			losses: make([]float64, 0, e.period),
		}
		return 0, false
	}

	switch {
	case ts < e.bar.ts:
		e.onDiag(Diagnostic{Kind: OutOfOrder, Timestamp: ts, LastTimestamp: e.bar.ts, Price: price})
		return e.Current()
	case ts == e.bar.ts:
		return e.revise(price)
	default:
		return e.advance(ts, price)
	}
}

// Current returns the RSI derived from the current averages without mutating anything.
func (e *Engine) Current() (float64, bool) {
	t, ok := e.phase.(*tracking)
	if !ok {
		return 0, false
	}
	return derive(t.avgGain, t.avgLoss), true
}

// revise replaces the open bar's close. Smoothing is recomputed from the
// baseline captured when the bar opened, so repeated revisions never compound.
func (e *Engine) revise(price float64) (float64, bool) {
	if !e.bar.hasPrev {
		e.bar.close = price
		return 0, false
	}
	gain, loss := split(price - e.bar.prevClose)
	e.bar.close = price

	switch p := e.phase.(type) {
	case *bootstrapping:
		last := len(p.gains) - 1
		p.gains[last] = gain
		p.losses[last] = loss
		return 0, false
	case *tracking:
		if p.hasBaseline {
			p.avgGain, p.avgLoss = e.smooth(p.prevAvgGain, p.prevAvgLoss, gain, loss)
		}
	}
	return e.Current()
}

// advance closes the open bar and opens a new one at ts.
func (e *Engine) advance(ts int64, price float64) (float64, bool) {
	gain, loss := split(price - e.bar.close)
	e.bar = openBar{ts: ts, close: price, prevClose: e.bar.close, hasPrev: true}
	e.barCount++

	switch p := e.phase.(type) {
	case *bootstrapping:
		p.gains = append(p.gains, gain)
		p.losses = append(p.losses, loss)
		if len(p.gains) < e.period {
			return 0, false
		}
		e.phase = &tracking{
			avgGain: mean(p.gains),
			avgLoss: math.Max(mean(p.losses), 0),
		}
	case *tracking:
		p.prevAvgGain, p.prevAvgLoss, p.hasBaseline = p.avgGain, p.avgLoss, true
		p.avgGain, p.avgLoss = e.smooth(p.prevAvgGain, p.prevAvgLoss, gain, loss)
	}
	return e.Current()
}

// smooth applies one step of Wilder's recurrence, written as prev+(x-prev)/n
// so that averages of finite samples stay finite.
func (e *Engine) smooth(prevGain, prevLoss, gain, loss float64) (float64, float64) {
	n := float64(e.period)
	avgGain := prevGain + (gain-prevGain)/n
	if prevLoss == 0 && loss == 0 {
		return avgGain, 0
	}
	return avgGain, math.Max(prevLoss+(loss-prevLoss)/n, 0)
}

func derive(avgGain, avgLoss float64) float64 {
	switch {
	case avgLoss == 0:
		return 100
	case avgGain == 0:
		return 0
	}
	return 100 / (1 + avgLoss/avgGain)
}

// split separates a close-to-close change into gain and loss. A difference of
// two finite prices can overflow, so it is clamped to the finite range.
func split(change float64) (gain, loss float64) {
	change = math.Max(math.Min(change, math.MaxFloat64), -math.MaxFloat64)
	return math.Max(change, 0), math.Max(-change, 0)
}

// mean is a running mean; it never sums, so it cannot overflow.
func mean(xs []float64) float64 {
	m := 0.0
	for i, x := range xs {
		m += (x - m) / float64(i+1)
	}
	return m
}
