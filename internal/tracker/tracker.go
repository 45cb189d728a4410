// Package tracker implements the bounded request registry of §4.3: a
// map of in-flight requests keyed by id, per-kind default timeouts, and
// the cancellation/correlation operations the router and fetch
// coordinator drive it with.
//
// There is no promise type in Go, so createRequest's `{requestId,
// promise}` pair becomes a *Request whose Wait(ctx) blocks for the
// settled result — the same shape as a future, built on a channel
// instead of language-level async/await.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/anjanpoonacha/tvchart/internal/errs"
	"github.com/anjanpoonacha/tvchart/model"
	"github.com/samber/lo"
)

// MaxPending is the hard cap on live (unsettled) requests per Connection.
const MaxPending = 100

// Request is one in-flight request. Callers obtain one from
// Tracker.CreateRequest and block on Wait for its outcome.
type Request struct {
	ID           int64
	Kind         model.RequestKind
	Params       []any
	SymbolID     string
	IsCVD        bool
	TurnaroundID string
	SentAt       time.Time

	tracker *Tracker
	timer   *time.Timer
	done    chan struct{}

	mu     sync.Mutex
	value  any
	err    error
	settled bool
}

// Wait blocks until the request settles or ctx is done, whichever comes
// first. A ctx cancellation does not settle the request itself; the
// caller should follow up with CancelRequest if it gives up.
func (r *Request) Wait(ctx context.Context) (any, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Option configures an optional field of a created Request.
type Option func(*Request)

func WithSymbolID(id string) Option         { return func(r *Request) { r.SymbolID = id } }
func WithCVD(isCVD bool) Option             { return func(r *Request) { r.IsCVD = isCVD } }
func WithTurnaround(id string) Option       { return func(r *Request) { r.TurnaroundID = id } }

// Tracker is the per-Connection request registry.
type Tracker struct {
	mu       sync.Mutex
	byID     map[int64]*Request
	nextID   int64
	timeouts map[model.RequestKind]time.Duration
}

// New returns a Tracker with the default per-kind timeouts of §4.3.
func New() *Tracker {
	return &Tracker{
		byID: make(map[int64]*Request),
		timeouts: map[model.RequestKind]time.Duration{
			model.RequestResolveSymbol: 5 * time.Second,
			model.RequestCreateSeries:  15 * time.Second,
			model.RequestModifySeries:  15 * time.Second,
			model.RequestCreateStudy:   30 * time.Second,
		},
	}
}

// SetDefaultTimeout overrides the default timeout for kind.
func (t *Tracker) SetDefaultTimeout(kind model.RequestKind, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeouts[kind] = d
}

// GetDefaultTimeout returns the configured default timeout for kind.
func (t *Tracker) GetDefaultTimeout(kind model.RequestKind) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeouts[kind]
}

// Len returns the current live request count.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

// CreateRequest registers a new request and schedules its timeout. It
// fails synchronously with a queue-full *errs.Error if the registry is
// already at MaxPending.
func (t *Tracker) CreateRequest(kind model.RequestKind, params []any, timeout time.Duration, opts ...Option) (*Request, error) {
	t.mu.Lock()
	if len(t.byID) >= MaxPending {
		t.mu.Unlock()
		return nil, errs.New(errs.QueueFull, "request registry full", nil)
	}
	t.nextID++
	id := t.nextID

	r := &Request{
		ID:     id,
		Kind:   kind,
		Params: params,
		SentAt: time.Now(),
		done:   make(chan struct{}),
		tracker: t,
	}
	for _, opt := range opts {
		opt(r)
	}
	if timeout <= 0 {
		timeout = t.timeouts[kind]
	}
	t.byID[id] = r
	t.mu.Unlock()

	r.timer = time.AfterFunc(timeout, func() {
		kind := errs.DataTimeout
		if r.IsCVD {
			kind = errs.CVDTimeout
		}
		t.settle(id, nil, errs.New(kind, "request timed out", nil))
	})

	return r, nil
}

// Resolve settles a live request with a success value. Idempotent: a
// no-op if the request is already settled or unknown.
func (t *Tracker) Resolve(id int64, value any) {
	t.settle(id, value, nil)
}

// Reject settles a live request with an error. Idempotent.
func (t *Tracker) Reject(id int64, err error) {
	t.settle(id, nil, err)
}

func (t *Tracker) settle(id int64, value any, err error) {
	t.mu.Lock()
	r, ok := t.byID[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.byID, id)
	t.mu.Unlock()

	r.mu.Lock()
	if r.settled {
		r.mu.Unlock()
		return
	}
	r.settled = true
	r.value, r.err = value, err
	r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
	}
	close(r.done)
}

// CancelRequest rejects a live request with request-cancelled. A no-op
// if the request is unknown or already settled.
func (t *Tracker) CancelRequest(id int64, reason string) {
	t.Reject(id, errs.New(errs.RequestCancelled, reason, nil))
}

// CancelSymbolRequests cancels every live request tagged with symbolID
// and returns the count cancelled. Collection happens in two phases
// (snapshot ids, then cancel) since cancellation mutates the registry
// that a single-phase walk would be iterating.
func (t *Tracker) CancelSymbolRequests(symbolID string) int {
	t.mu.Lock()
	ids := lo.FilterMap(lo.Values(t.byID), func(r *Request, _ int) (int64, bool) {
		return r.ID, r.SymbolID == symbolID
	})
	t.mu.Unlock()

	for _, id := range ids {
		t.CancelRequest(id, "symbol switched")
	}
	return len(ids)
}

// CancelAllCVDRequests cancels every live CVD-tagged request and returns
// the count cancelled.
func (t *Tracker) CancelAllCVDRequests(reason string) int {
	t.mu.Lock()
	ids := lo.FilterMap(lo.Values(t.byID), func(r *Request, _ int) (int64, bool) {
		return r.ID, r.IsCVD
	})
	t.mu.Unlock()

	for _, id := range ids {
		t.CancelRequest(id, reason)
	}
	return len(ids)
}

// CancelAllRequests cancels every live request and returns the count
// cancelled.
func (t *Tracker) CancelAllRequests(reason string) int {
	t.mu.Lock()
	ids := lo.Map(lo.Values(t.byID), func(r *Request, _ int) int64 { return r.ID })
	t.mu.Unlock()

	for _, id := range ids {
		t.CancelRequest(id, reason)
	}
	return len(ids)
}

// ByID returns the live request with the given id, for correlation paths
// (e.g. the series registry) that resolve a handle to an id directly.
func (t *Tracker) ByID(id int64) (*Request, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.byID[id]
	return r, ok
}

// GetRequestByTurnaround finds a live request by its correlation key.
func (t *Tracker) GetRequestByTurnaround(turnaroundID string) (*Request, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.byID {
		if r.TurnaroundID == turnaroundID {
			return r, true
		}
	}
	return nil, false
}

// OldestPending returns the longest-outstanding live request of kind,
// the tier-3 router correlation fallback.
func (t *Tracker) OldestPending(kind model.RequestKind) (*Request, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var oldest *Request
	for _, r := range t.byID {
		if r.Kind != kind {
			continue
		}
		if oldest == nil || r.SentAt.Before(oldest.SentAt) {
			oldest = r
		}
	}
	return oldest, oldest != nil
}
