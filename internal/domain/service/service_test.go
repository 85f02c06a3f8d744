package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"rsipulse/internal/domain/entity"
	"rsipulse/internal/infra/feed"
	"rsipulse/internal/metrics"
	"rsipulse/pkg/rsi"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

type memStore struct {
	mu    sync.Mutex
	data  map[string]entity.Reading
	saves int
	err   error
}

func newMemStore() *memStore { return &memStore{data: make(map[string]entity.Reading)} }

func (m *memStore) Latest(_ context.Context, symbol string) (*entity.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[symbol]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memStore) Save(_ context.Context, r *entity.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.err != nil {
		return m.err
	}
	m.data[r.Symbol] = *r
	return nil
}

func newService(t *testing.T, period, maxSymbols int, store ReadingRepository) (*RSIService, *metrics.Metrics) {
	t.Helper()
	reg, err := NewRegistry(period, maxSymbols)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	m := metrics.New(prometheus.NewRegistry())
	return NewRSIService(reg, store, m, zap.NewNop(), 30, 70), m
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f)", label, got, want, tol)
	}
}

func scenarioTicks() []entity.Tick {
	return []entity.Tick{
		{TS: 1, Price: 10}, {TS: 2, Price: 11}, {TS: 3, Price: 10.5},
		{TS: 4, Price: 12}, {TS: 5, Price: 11.5},
	}
}

// ────────────────────────────────────────────────────────────
// Registry
// ────────────────────────────────────────────────────────────

func TestNewRegistry_InvalidPeriod(t *testing.T) {
	if _, err := NewRegistry(1, 10); !errors.Is(err, rsi.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestRegistry_SymbolLimit(t *testing.T) {
	reg, _ := NewRegistry(3, 2)
	for _, s := range []string{"A", "B"} {
		if _, err := reg.getOrCreate(s); err != nil {
			t.Fatalf("getOrCreate(%s): %v", s, err)
		}
	}
	if _, err := reg.getOrCreate("A"); err != nil {
		t.Fatalf("existing symbol must not count against the limit: %v", err)
	}
	if _, err := reg.getOrCreate("C"); !errors.Is(err, ErrSymbolLimit) {
		t.Fatalf("expected ErrSymbolLimit, got %v", err)
	}
	if got := reg.Symbols(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("unexpected symbols: %v", got)
	}
}

func TestRegistry_ConcurrentIngestSerialized(t *testing.T) {
	svc, _ := newService(t, 5, 0, newMemStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				svc.Ingest(ctx, "RACE", entity.Tick{TS: int64(i), Price: float64(100 + (i+w)%7)})
			}
		}(w)
	}
	wg.Wait()

	st, err := svc.State("RACE")
	if err != nil {
		t.Fatal(err)
	}
	// Interleaved writers make some ticks stale, so only the bounds are fixed.
	if st.LastTimestamp != 199 || st.BarCount < 1 || st.BarCount > 200 {
		t.Fatalf("expected at most 200 bars ending at ts 199, got %+v", st)
	}
}

// ────────────────────────────────────────────────────────────
// Ingest
// ────────────────────────────────────────────────────────────

func TestIngest_Outcomes(t *testing.T) {
	store := newMemStore()
	svc, m := newService(t, 3, 10, store)
	ctx := context.Background()

	ticks := append(scenarioTicks(),
		entity.Tick{TS: 5, Price: 11.8},
		entity.Tick{TS: 4, Price: 50},
		entity.Tick{TS: 6, Price: math.NaN()},
	)
	resp, err := svc.Ingest(ctx, " ibm ", ticks...)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	want := []entity.Outcome{
		entity.OutcomeFirst, entity.OutcomeNewBar, entity.OutcomeNewBar, entity.OutcomeNewBar,
		entity.OutcomeNewBar, entity.OutcomeRevision, entity.OutcomeOutOfOrder, entity.OutcomeInvalidPrice,
	}
	for i := range want {
		if resp.Outcomes[i] != want[i] {
			t.Errorf("tick %d: outcome %s, want %s", i, resp.Outcomes[i], want[i])
		}
	}
	if resp.Symbol != "IBM" || resp.Accepted != 6 || resp.Skipped != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	// Skipped ticks return the last known value: the (5,11.8) revision.
	assertClose(t, "reading RSI", resp.Reading.RSI, 75.7576, 0.001)
	if resp.Reading.Alert != rsi.Overbought {
		t.Errorf("expected OVERBOUGHT, got %q", resp.Reading.Alert)
	}

	saved, _ := store.Latest(ctx, "IBM")
	if saved == nil || saved.RSI != resp.Reading.RSI {
		t.Fatalf("expected reading to be stored, got %+v", saved)
	}

	if got := testutil.ToFloat64(m.Diagnostics.WithLabelValues(string(rsi.OutOfOrder))); got != 1 {
		t.Errorf("expected 1 out_of_order diagnostic, got %v", got)
	}
	if got := testutil.ToFloat64(m.TicksTotal.WithLabelValues(string(entity.OutcomeNewBar))); got != 4 {
		t.Errorf("expected 4 new_bar ticks, got %v", got)
	}
	assertClose(t, "rsi gauge", testutil.ToFloat64(m.LastRSI.WithLabelValues("IBM")), 75.7576, 0.001)
}

func TestIngest_SkippedOnlyDoesNotSave(t *testing.T) {
	store := newMemStore()
	svc, _ := newService(t, 3, 10, store)
	ctx := context.Background()

	svc.Ingest(ctx, "X", entity.Tick{TS: 10, Price: 1})
	before := store.saves
	resp, err := svc.Ingest(ctx, "X", entity.Tick{TS: 9, Price: 1})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Skipped != 1 || store.saves != before {
		t.Fatalf("skipped-only batch must not write a reading: %+v saves=%d", resp, store.saves)
	}
}

func TestIngest_StoreFailureIsNotFatal(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("redis down")
	svc, m := newService(t, 3, 10, store)

	if _, err := svc.Ingest(context.Background(), "X", entity.Tick{TS: 1, Price: 1}); err != nil {
		t.Fatalf("expected store error to be swallowed, got %v", err)
	}
	if got := testutil.ToFloat64(m.StoreErrors); got != 1 {
		t.Errorf("expected 1 store error, got %v", got)
	}
}

func TestIngest_BadInput(t *testing.T) {
	svc, _ := newService(t, 3, 1, newMemStore())
	ctx := context.Background()

	var he entity.HTTPError
	if _, err := svc.Ingest(ctx, "  ", entity.Tick{TS: 1, Price: 1}); !errors.As(err, &he) || he.StatusCode != 400 {
		t.Errorf("blank symbol: expected 400, got %v", err)
	}
	if _, err := svc.Ingest(ctx, "A"); !errors.As(err, &he) || he.StatusCode != 400 {
		t.Errorf("no ticks: expected 400, got %v", err)
	}
	svc.Ingest(ctx, "A", entity.Tick{TS: 1, Price: 1})
	if _, err := svc.Ingest(ctx, "B", entity.Tick{TS: 1, Price: 1}); !errors.As(err, &he) || he.StatusCode != 429 {
		t.Errorf("over limit: expected 429, got %v", err)
	}
}

// ────────────────────────────────────────────────────────────
// Reading / State
// ────────────────────────────────────────────────────────────

func TestReading_LiveEngine(t *testing.T) {
	svc, _ := newService(t, 3, 10, newMemStore())
	ctx := context.Background()
	svc.Ingest(ctx, "IBM", scenarioTicks()[:3]...)

	r, err := svc.Reading(ctx, entity.ReadingRequest{Symbol: "IBM"})
	if err != nil {
		t.Fatal(err)
	}
	if r.IsValidRSI || r.WarmupStatus != string(rsi.Processing) || r.Bars != 3 {
		t.Fatalf("expected bootstrapping reading, got %+v", r)
	}

	svc.Ingest(ctx, "IBM", scenarioTicks()[3:]...)
	low, high := 10.0, 60.0
	r, _ = svc.Reading(ctx, entity.ReadingRequest{Symbol: "ibm", RSILow: &low, RSIHigh: &high})
	assertClose(t, "RSI", r.RSI, 66.6667, 0.001)
	if r.Alert != rsi.Overbought {
		t.Errorf("expected OVERBOUGHT with high=60, got %q", r.Alert)
	}
}

func TestReading_FallsBackToStore(t *testing.T) {
	store := newMemStore()
	store.data["MSFT"] = entity.Reading{Symbol: "MSFT", RSI: 20, IsValidRSI: true}
	svc, _ := newService(t, 3, 10, store)

	r, err := svc.Reading(context.Background(), entity.ReadingRequest{Symbol: "MSFT"})
	if err != nil {
		t.Fatal(err)
	}
	if r.RSI != 20 || r.Alert != rsi.Oversold {
		t.Fatalf("unexpected cached reading: %+v", r)
	}

	var he entity.HTTPError
	if _, err := svc.Reading(context.Background(), entity.ReadingRequest{Symbol: "NONE"}); !errors.As(err, &he) || he.StatusCode != 404 {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestReading_InvalidBands(t *testing.T) {
	svc, _ := newService(t, 3, 10, newMemStore())
	low, high := 80.0, 20.0
	if _, err := svc.Reading(context.Background(), entity.ReadingRequest{Symbol: "A", RSILow: &low, RSIHigh: &high}); err == nil {
		t.Fatal("expected error for inverted bands")
	}
}

func TestState_Unknown(t *testing.T) {
	svc, _ := newService(t, 3, 10, newMemStore())
	var he entity.HTTPError
	if _, err := svc.State("ZZZ"); !errors.As(err, &he) || he.StatusCode != 404 {
		t.Fatalf("expected 404, got %v", err)
	}
}

// ────────────────────────────────────────────────────────────
// Poller
// ────────────────────────────────────────────────────────────

type scriptedSource struct {
	mu     sync.Mutex
	polls  [][]feed.Candle
	sinces []time.Time
	calls  int
}

func (s *scriptedSource) FetchIntraday(_ context.Context, _ string, since time.Time) ([]feed.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinces = append(s.sinces, since)
	if s.calls >= len(s.polls) {
		return nil, nil
	}
	out := s.polls[s.calls]
	s.calls++
	return out, nil
}

func bar(minute int, close float64) feed.Candle {
	return feed.Candle{Timestamp: time.Date(2026, 1, 15, 9, minute, 0, 0, time.UTC), Close: close}
}

func TestPoller_RevisesOpenBar(t *testing.T) {
	src := &scriptedSource{polls: [][]feed.Candle{
		{bar(0, 10), bar(5, 11), bar(10, 10.5), bar(15, 12), bar(20, 11.5)},
		{bar(20, 11.8)},
		{bar(20, 11.6), bar(25, 12.5)},
	}}
	svc, _ := newService(t, 3, 10, newMemStore())
	p := NewPoller(src, svc, []string{"IBM"}, time.Hour, svc.metrics, zap.NewNop())
	ctx := context.Background()

	if n, err := p.PollOnce(ctx, "IBM"); err != nil || n != 5 {
		t.Fatalf("first poll: n=%d err=%v", n, err)
	}
	if _, err := p.PollOnce(ctx, "IBM"); err != nil {
		t.Fatal(err)
	}
	r, _ := svc.Reading(ctx, entity.ReadingRequest{Symbol: "IBM"})
	assertClose(t, "RSI after revision poll", r.RSI, 75.7576, 0.001)

	if _, err := p.PollOnce(ctx, "IBM"); err != nil {
		t.Fatal(err)
	}
	st, _ := svc.State("IBM")
	if st.BarCount != 6 || st.PriceBeforeLast != 11.6 {
		t.Fatalf("expected bar 20 closed at 11.6, got %+v", st)
	}

	if !src.sinces[0].IsZero() || !src.sinces[1].Equal(bar(20, 0).Timestamp) {
		t.Errorf("unexpected since values: %v", src.sinces)
	}
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	src := &scriptedSource{}
	svc, _ := newService(t, 3, 10, newMemStore())
	p := NewPoller(src, svc, []string{"A", "B"}, 10*time.Millisecond, svc.metrics, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	src.mu.Lock()
	defer src.mu.Unlock()
	if len(src.sinces) < 2 {
		t.Fatalf("expected both symbols to be polled, got %d calls", len(src.sinces))
	}
}
