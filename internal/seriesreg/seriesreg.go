// Package seriesreg tracks the series handles (C5) a Connection has sent
// create_series for, so fetchSymbol can issue remove_series
// before minting new ones and avoid TradingView's per-connection series
// cap (§4.5).
//
// The live-handle set is a StudioSol/set.LinkedHashSetString, the same
// insertion-ordered unique-string container the teacher repo uses for
// exchange.DataFeedSubscription.Feeds (exchange/exchange.go) — cleanup
// must walk handles in the order they were registered.
package seriesreg

import (
	"fmt"
	"sync"

	"github.com/StudioSol/set"
	"github.com/anjanpoonacha/tvchart/tools/log"
)

// Remover sends the remove_series protocol message for one handle.
type Remover interface {
	RemoveSeries(chartSession, seriesID string) error
}

// Registry is a Connection's live series-handle tracker.
type Registry struct {
	mu              sync.Mutex
	handles         *set.LinkedHashSetString
	requestByHandle map[string]int64
	chartSession    string
	remover         Remover
}

// New returns an empty Registry bound to chartSession, sending
// remove_series through remover during CleanupAll.
func New(chartSession string, remover Remover) *Registry {
	return &Registry{
		handles:         set.NewLinkedHashSetString(),
		requestByHandle: make(map[string]int64),
		chartSession:    chartSession,
		remover:         remover,
	}
}

// Register records seriesID as live, associated with requestID.
func (r *Registry) Register(seriesID string, requestID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles.Add(seriesID)
	r.requestByHandle[seriesID] = requestID
}

// GetRequestID returns the request id seriesID was registered under, for
// router correlation.
func (r *Registry) GetRequestID(seriesID string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.requestByHandle[seriesID]
	return id, ok
}

// CleanupAll sends remove_series for every live handle, in registration
// order, logging (not failing on) send errors, then clears local state.
func (r *Registry) CleanupAll() {
	r.mu.Lock()
	handles := make([]string, 0)
	for h := range r.handles.Iter() {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		if err := r.remover.RemoveSeries(r.chartSession, h); err != nil {
			log.Warnf("seriesreg: remove_series failed for %s: %v", h, err)
		}
	}
	r.Clear()
}

// Clear drops all local tracking without sending anything, used on
// Connection disposal where the socket may already be gone.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = set.NewLinkedHashSetString()
	r.requestByHandle = make(map[string]int64)
}

// NextSeriesID mints the next series handle for chartSession-scoped
// counter n (e.g. "sds_3").
func NextSeriesID(n int64) string {
	return fmt.Sprintf("sds_%d", n)
}
