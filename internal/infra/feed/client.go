package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"rsipulse/internal/config"
)

const (
	barInterval = "5min"
	seriesKey   = "Time Series (" + barInterval + ")"
	stampLayout = "2006-01-02 15:04:05"
	maxBars     = 200
	timeout     = 8 * time.Second
	minSpacing  = 250 * time.Millisecond
)

var errNotReady = errors.New("feed client not initialized")

// Candle is one intraday bar reduced to what the RSI engine consumes.
type Candle struct {
	Timestamp time.Time
	Close     float64
}

// intradayPayload decodes the upstream's string-encoded series. Fields other
// than the close are ignored.
type intradayPayload struct {
	closes  map[string]string
	errText string
}

func (p *intradayPayload) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, k := range []string{"error", "Note", "Information"} {
		if v, ok := raw[k]; ok {
			var msg string
			_ = json.Unmarshal(v, &msg)
			p.errText = k + ": " + msg
			return nil
		}
	}

	series, ok := raw[seriesKey]
	if !ok {
		return nil
	}
	var bars map[string]struct {
		Close string `json:"4. close"`
	}
	if err := json.Unmarshal(series, &bars); err != nil {
		return err
	}
	p.closes = make(map[string]string, len(bars))
	for stamp, b := range bars {
		p.closes[stamp] = b.Close
	}
	return nil
}

// Client polls the upstream intraday endpoint, spacing requests by a shared
// ticker so concurrent symbol pollers do not burst the API.
type Client struct {
	http   *resty.Client
	spacer *time.Ticker
}

func NewClient(cfg *config.Config) *Client {
	r := resty.New().
		SetBaseURL(strings.TrimRight(cfg.UpstreamURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)

	return &Client{http: r, spacer: time.NewTicker(minSpacing)}
}

func (c *Client) Close() {
	c.spacer.Stop()
}

// FetchIntraday returns candles at or after since, oldest first. The newest
// candle is usually still forming, so its timestamp comes back on the next
// poll with an updated close.
func (c *Client) FetchIntraday(ctx context.Context, symbol string, since time.Time) ([]Candle, error) {
	if c == nil || c.http == nil {
		return nil, errNotReady
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.spacer.C:
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function": "TIME_SERIES_INTRADAY",
			"symbol":   symbol,
			"interval": barInterval,
			"tail":     strconv.Itoa(maxBars),
			"apikey":   "demo",
		}).
		Get("/query")
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("feed %s: upstream status %d", symbol, resp.StatusCode())
	}

	var payload intradayPayload
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("feed %s: decode: %w", symbol, err)
	}
	if payload.errText != "" {
		return nil, fmt.Errorf("feed %s: upstream %s", symbol, payload.errText)
	}

	return payload.candles(since), nil
}

// candles drops unparsable entries and bars older than since.
func (p *intradayPayload) candles(since time.Time) []Candle {
	out := make([]Candle, 0, len(p.closes))
	for stamp, raw := range p.closes {
		ts, err := time.ParseInLocation(stampLayout, stamp, time.UTC)
		if err != nil || ts.Before(since) {
			continue
		}
		closep, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		out = append(out, Candle{Timestamp: ts, Close: closep})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
