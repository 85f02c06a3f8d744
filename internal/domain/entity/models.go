package entity

import (
	"fmt"
	"time"
)

type HTTPError struct {
	StatusCode int
	Msg        string
}

func (e HTTPError) Error() string { return e.Msg }

func ErrInternal(msg string) error {
	return HTTPError{StatusCode: 500, Msg: fmt.Sprintf("internal: %s", msg)}
}

func ErrNotFound(msg string) error {
	return HTTPError{StatusCode: 404, Msg: msg}
}

func ErrBadRequest(msg string) error {
	return HTTPError{StatusCode: 400, Msg: msg}
}

// Tick is one price observation. TS identifies the bar (unix seconds); a
// repeated TS revises that bar.
type Tick struct {
	TS    int64   `json:"ts"`
	Price float64 `json:"price"`
}

// Outcome describes what a tick did to its symbol's engine.
type Outcome string

const (
	OutcomeFirst        Outcome = "first"
	OutcomeNewBar       Outcome = "new_bar"
	OutcomeRevision     Outcome = "revision"
	OutcomeOutOfOrder   Outcome = "skipped_out_of_order"
	OutcomeInvalidPrice Outcome = "skipped_invalid_price"
)

// Skipped reports whether the engine ignored the tick.
func (o Outcome) Skipped() bool {
	return o == OutcomeOutOfOrder || o == OutcomeInvalidPrice
}

// Reading is the latest RSI for a symbol.
type Reading struct {
	Symbol       string    `json:"symbol"`
	RSI          float64   `json:"rsi"`
	IsValidRSI   bool      `json:"is_valid_rsi"`
	TS           int64     `json:"ts"`
	Close        float64   `json:"close"`
	Bars         int       `json:"bars"`
	WarmupStatus string    `json:"warmup_status"`
	Outcome      Outcome   `json:"outcome,omitempty"`
	Alert        string    `json:"alert,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ReadingRequest struct {
	Symbol  string   `json:"symbol" validate:"required"`
	RSILow  *float64 `json:"rsi_low,omitempty"`
	RSIHigh *float64 `json:"rsi_high,omitempty"`
}

type TickRequest struct {
	Ticks []Tick `json:"ticks"`
}

type TickResponse struct {
	Symbol   string    `json:"symbol"`
	Accepted int       `json:"accepted"`
	Skipped  int       `json:"skipped"`
	Outcomes []Outcome `json:"outcomes"`
	Reading  Reading   `json:"reading"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
