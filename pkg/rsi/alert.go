package rsi

// WarmupState indicates how settled the smoothed averages are.
type WarmupState string

const (
	Processing WarmupState = "processing" // bootstrap not complete
	Warming    WarmupState = "warming"    // tracking, fewer than stableFactor*period bars
	Stable     WarmupState = "stable"
)

// stableFactor is how many periods of bars it takes for the SMA seed to wash out.
const stableFactor = 4

// WarmupStatus reports the warm-up stage of s.
func (s State) WarmupStatus() WarmupState {
	if !s.Ready() {
		return Processing
	}
	if s.BarCount >= stableFactor*s.Period {
		return Stable
	}
	return Warming
}

// Alert labels returned by CheckAlert.
const (
	Oversold   = "OVERSOLD"
	Overbought = "OVERBOUGHT"
)

// CheckAlert labels rsi against the [low, high] band, or returns "" inside it.
func CheckAlert(rsi float64, low, high float64) string {
	if rsi <= low {
		return Oversold
	}
	if rsi >= high {
		return Overbought
	}
	return ""
}
