// Package model holds the value types shared across the chart client: bars,
// indicator rows, symbol metadata, and a generic Series helper. Indicator
// value vectors are plain []float64 (IndicatorBar.Values), not Series.
package model

import (
	"time"

	"golang.org/x/exp/constraints"
)

// Series is a thin generic slice wrapper over an ordered value sequence,
// trimmed down from the teacher repo's indicator-series helper to just the
// accessors the chart client actually needs.
type Series[T constraints.Ordered] []T

// Values returns the full backing slice.
func (s Series[T]) Values() []T {
	return s
}

// Last returns the value `position` slots back from the end (0 is the most
// recent value).
func (s Series[T]) Last(position int) T {
	return s[len(s)-1-position]
}

// Len returns the number of values in the series.
func (s Series[T]) Len() int {
	return len(s)
}

// Bar is one OHLCV candle as delivered by a timescale_update/du message.
type Bar struct {
	Time   int64   // unix seconds
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// IndicatorBar is one row of a Pine study's output: a timestamp plus the
// study's ordered value vector (e.g. buy-side volume, sell-side volume,
// delta for CVD).
type IndicatorBar struct {
	Time   int64
	Values []float64
}

// SymbolMetadata is the subset of symbol_resolved fields the client cares
// about, plus an opaque passthrough for anything else the server sent.
type SymbolMetadata struct {
	Name       string
	FullName   string
	Ticker     string
	Exchange   string
	Type       string
	Timezone   string
	MinMov     float64
	PriceScale float64
	Session    string
	Extra      map[string]any
}

// IndicatorResult is one resolved study's output, keyed by indicator type
// (e.g. "cvd") in FetchResult.Indicators.
type IndicatorResult struct {
	StudyName string
	Values    []IndicatorBar
}

// Timing records the duration of each step of a fetch for diagnostics.
type Timing struct {
	ResolveSymbol  int64 // milliseconds
	CreateSeries   int64
	CreateStudies  int64
	Total          int64
}

// FetchResult is the value FetchSymbol resolves with.
type FetchResult struct {
	Symbol     string
	Bars       []Bar
	Metadata   SymbolMetadata
	Indicators map[string]IndicatorResult
	Timing     Timing
}

// RequestKind enumerates the kinds of outstanding requests the tracker can
// hold, one per client->server method that expects a correlated reply.
type RequestKind string

const (
	RequestResolveSymbol RequestKind = "resolve_symbol"
	RequestCreateSeries  RequestKind = "create_series"
	RequestModifySeries  RequestKind = "modify_series"
	RequestCreateStudy   RequestKind = "create_study"
)

// IndicatorRequest describes one indicator a caller wants alongside the
// bars for a fetch.
type IndicatorRequest struct {
	Type            string // e.g. "cvd"
	AnchorPeriod    string // CVD only; default "3M"
	CustomTimeframe string
	Config          map[string]any // non-CVD indicators: passed through verbatim
}

// PendingFetch is the mutable record one in-flight fetchSymbol call owns
// (§3 "Pending Symbol Fetch"). The router writes into it only when an
// inbound message's session id still matches, which is what prevents a
// late-arriving response for an abandoned symbol from corrupting the
// next fetch.
type PendingFetch struct {
	Symbol          string
	SymbolSessionID string
	SeriesID        string

	Bars           []Bar
	Metadata       SymbolMetadata
	MetadataSet    bool
	Indicators     map[string]IndicatorResult
	StudyIDs       map[string]string // indicator type -> study id

	StartedAt time.Time
}

// NewPendingFetch returns an empty PendingFetch for symbol, scoped to the
// given session/series ids.
func NewPendingFetch(symbol, symbolSessionID, seriesID string) *PendingFetch {
	return &PendingFetch{
		Symbol:          symbol,
		SymbolSessionID: symbolSessionID,
		SeriesID:        seriesID,
		Indicators:      make(map[string]IndicatorResult),
		StudyIDs:        make(map[string]string),
		StartedAt:       time.Now(),
	}
}
