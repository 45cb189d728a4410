// Package diagnostics records completed fetchSymbol calls for later
// inspection: how long each step took, how many bars came back, whether
// an error was returned. It is the chart client's counterpart to the
// teacher repo's order-history storage, generalized from persisting
// orders to persisting fetch records.
package diagnostics

import (
	"time"

	"github.com/anjanpoonacha/tvchart/model"
)

// Record is one completed (or failed) FetchSymbol call.
type Record struct {
	ID        int64        `json:"id"`
	Symbol    string       `json:"symbol"`
	BarsCount int          `json:"bars_count"`
	Error     string       `json:"error"` // empty on success
	Timing    model.Timing `json:"timing"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewRecord builds a Record from a fetch's outcome.
func NewRecord(symbol string, result model.FetchResult, fetchErr error) Record {
	r := Record{
		Symbol:    symbol,
		BarsCount: len(result.Bars),
		Timing:    result.Timing,
		UpdatedAt: time.Now(),
	}
	if fetchErr != nil {
		r.Error = fetchErr.Error()
	}
	return r
}

// Filter reports whether a Record should be kept.
type Filter func(Record) bool

// WithSymbol keeps only records for the given symbol.
func WithSymbol(symbol string) Filter {
	return func(r Record) bool { return r.Symbol == symbol }
}

// WithFailuresOnly keeps only records whose fetch returned an error.
func WithFailuresOnly() Filter {
	return func(r Record) bool { return r.Error != "" }
}

// WithUpdatedAtBeforeOrEqual keeps records not newer than t.
func WithUpdatedAtBeforeOrEqual(t time.Time) Filter {
	return func(r Record) bool { return !r.UpdatedAt.After(t) }
}

// Storage persists Records and retrieves them by filter.
type Storage interface {
	Save(r Record) error
	Records(filters ...Filter) ([]Record, error)
}
