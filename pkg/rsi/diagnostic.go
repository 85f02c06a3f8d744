package rsi

import "fmt"

// DiagnosticKind classifies a tick the engine skipped.
type DiagnosticKind string

const (
	// InvalidPrice: the price was NaN or infinite.
	InvalidPrice DiagnosticKind = "invalid_price"
	// OutOfOrder: the timestamp was older than the open bar.
	OutOfOrder DiagnosticKind = "out_of_order"
)

// Diagnostic describes a skipped tick. Skips never change the engine state;
// Observe returns the last known RSI for them.
type Diagnostic struct {
	Kind          DiagnosticKind `json:"kind"`
	Timestamp     int64          `json:"ts"`
	LastTimestamp int64          `json:"last_ts"`
	Price         float64        `json:"price"`
}

func (d Diagnostic) String() string {
	switch d.Kind {
	case OutOfOrder:
		return fmt.Sprintf("out of order tick: ts %d < last %d", d.Timestamp, d.LastTimestamp)
	case InvalidPrice:
		return fmt.Sprintf("invalid price %v at ts %d", d.Price, d.Timestamp)
	}
	return string(d.Kind)
}
