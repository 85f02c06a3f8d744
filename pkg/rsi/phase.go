package rsi

// Phase names the engine's lifecycle stage.
type Phase string

// Lifecycle stages reported in State.Phase.
const (
	PhaseEmpty         Phase = "empty"
	PhaseBootstrapping Phase = "bootstrapping"
	PhaseTracking      Phase = "tracking"
)

// phase is one of awaitingFirst, *bootstrapping or *tracking. Each variant
// carries only the fields that are valid in that stage.
type phase interface {
	name() Phase
}

type awaitingFirst struct{}

func (awaitingFirst) name() Phase { return PhaseEmpty }

// bootstrapping collects raw per-bar samples until period of them exist.
type bootstrapping struct {
	gains  []float64
	losses []float64
}

func (*bootstrapping) name() Phase { return PhaseBootstrapping }

// tracking holds the smoothed averages. prevAvg* are the averages as of the
// previous bar close and are the baseline for revising the open bar; they are
// only set once a bar has closed after initialization.
type tracking struct {
	avgGain     float64
	avgLoss     float64
	prevAvgGain float64
	prevAvgLoss float64
	hasBaseline bool
}

func (*tracking) name() Phase { return PhaseTracking }

// State is a read-only copy of the engine's internals.
type State struct {
	Period             int     `json:"period"`
	Phase              Phase   `json:"phase"`
	BarCount           int     `json:"bar_count"`
	LastTimestamp      int64   `json:"last_ts"`
	LastClose          float64 `json:"last_close"`
	PriceBeforeLast    float64 `json:"price_before_last"`
	HasPriceBeforeLast bool    `json:"has_price_before_last"`
	Samples            int     `json:"samples"`
	AvgGain            float64 `json:"avg_gain"`
	AvgLoss            float64 `json:"avg_loss"`
	PrevAvgGain        float64 `json:"prev_avg_gain"`
	PrevAvgLoss        float64 `json:"prev_avg_loss"`
	HasBaseline        bool    `json:"has_baseline"`
}

// Snapshot copies the engine state.
func (e *Engine) Snapshot() State {
	s := State{
		Period:             e.period,
		Phase:              e.phase.name(),
		BarCount:           e.barCount,
		LastTimestamp:      e.bar.ts,
		LastClose:          e.bar.close,
		PriceBeforeLast:    e.bar.prevClose,
		HasPriceBeforeLast: e.bar.hasPrev,
	}
	switch p := e.phase.(type) {
	case *bootstrapping:
		s.Samples = len(p.gains)
	case *tracking:
		s.Samples = e.period
		s.AvgGain, s.AvgLoss = p.avgGain, p.avgLoss
		s.PrevAvgGain, s.PrevAvgLoss = p.prevAvgGain, p.prevAvgLoss
		s.HasBaseline = p.hasBaseline
	}
	return s
}

// Ready reports whether an RSI value is defined.
func (s State) Ready() bool { return s.Phase == PhaseTracking }
