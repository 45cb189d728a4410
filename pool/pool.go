package pool

import (
	"context"
	"sync"
	"time"

	tvchart "github.com/anjanpoonacha/tvchart"
	"github.com/anjanpoonacha/tvchart/cvdconfig"
	"github.com/anjanpoonacha/tvchart/internal/errs"
	"github.com/anjanpoonacha/tvchart/internal/wsconn"
	"github.com/anjanpoonacha/tvchart/model"
	"github.com/anjanpoonacha/tvchart/tools/log"
)

const (
	defaultMaxSlots      = 4
	acquirePollInterval  = 100 * time.Millisecond
	acquireTimeout       = 30 * time.Second
	defaultReapInterval  = 5 * time.Minute
	defaultIdleThreshold = 10 * time.Minute
)

// AdapterFactory builds a fresh WebSocketAdapter for one slot, so each
// pooled Connection owns its own socket (Gorilla in production, Scripted
// in tests).
type AdapterFactory func() wsconn.WebSocketAdapter

// slot is one pool-managed Connection.
type slot struct {
	index      int
	connection *tvchart.Connection
	lastUsed   time.Time
	busy       bool
}

// Less orders slots oldest-lastUsed-first, so acquire hands out the least
// recently used idle slot.
func (s *slot) Less(other Item) bool {
	o, ok := other.(*slot)
	if !ok {
		return false
	}
	return s.lastUsed.Before(o.lastUsed)
}

// Pool is a bounded, credential-scoped set of Connections (§4.10): a
// caller acquires a slot, drives one fetchSymbol, and releases it back
// for reuse, idle beyond defaultIdleThreshold gets reaped, and a
// recoverable invalid-state/closed error triggers one connection
// replace-and-retry.
type Pool struct {
	cfg         tvchart.Config
	newAdapter  AdapterFactory
	cvdProvider cvdconfig.Provider
	maxSlots    int

	mu    sync.Mutex
	slots []*slot
	idle  *slotQueue

	stopReap chan struct{}
	reapOnce sync.Once
}

// New returns a Pool bounded to maxSlots Connections, all built from cfg
// via newAdapter/cvdProvider. It starts the background idle reaper.
func New(cfg tvchart.Config, newAdapter AdapterFactory, cvdProvider cvdconfig.Provider, maxSlots int) *Pool {
	if maxSlots <= 0 {
		maxSlots = defaultMaxSlots
	}
	p := &Pool{
		cfg:         cfg,
		newAdapter:  newAdapter,
		cvdProvider: cvdProvider,
		maxSlots:    maxSlots,
		idle:        newSlotQueue(),
		stopReap:    make(chan struct{}),
	}
	go p.reapLoop()
	return p
}

// Stop ends the background reaper and disposes every Connection.
func (p *Pool) Stop() {
	p.reapOnce.Do(func() { close(p.stopReap) })

	p.mu.Lock()
	slots := append([]*slot{}, p.slots...)
	p.slots = nil
	p.mu.Unlock()

	for _, s := range slots {
		_ = s.connection.Dispose()
	}
}

// FetchSymbol acquires a slot, runs fetchSymbol on it, and releases it.
// A recoverable invalid-state error (the slot's Connection closed
// underneath it) replaces that slot's Connection once and retries;
// any other error propagates.
func (p *Pool) FetchSymbol(ctx context.Context, req tvchart.FetchSymbolRequest) (model.FetchResult, error) {
	s, err := p.acquire(ctx)
	if err != nil {
		return model.FetchResult{}, err
	}

	result, err := p.tryFetch(ctx, s, req)
	if err != nil && errs.IsRecoverable(err) && errs.KindOf(err) == errs.InvalidState {
		log.Warnf("pool: slot %d connection unhealthy, replacing and retrying once", s.index)
		if rerr := p.replace(ctx, s); rerr != nil {
			p.release(s)
			return model.FetchResult{}, rerr
		}
		result, err = p.tryFetch(ctx, s, req)
	}

	p.release(s)
	return result, err
}

func (p *Pool) tryFetch(ctx context.Context, s *slot, req tvchart.FetchSymbolRequest) (model.FetchResult, error) {
	if !s.connection.IsReady() {
		return model.FetchResult{}, errs.NewRecoverable(errs.InvalidState, "slot connection not ready", nil, true)
	}
	return s.connection.FetchSymbol(ctx, req)
}

func (p *Pool) replace(ctx context.Context, s *slot) error {
	_ = s.connection.Dispose()
	conn := tvchart.NewConnection(p.cfg, p.newAdapter(), p.cvdProvider)
	if err := conn.Initialize(ctx); err != nil {
		return err
	}
	s.connection = conn
	return nil
}

// acquire returns an idle slot, creates a new one under maxSlots, or
// polls until one frees up or acquireTimeout elapses.
func (p *Pool) acquire(ctx context.Context) (*slot, error) {
	if s := p.popIdle(); s != nil {
		return s, nil
	}
	if s, ok := p.createSlot(ctx); ok {
		return s, nil
	}

	deadline := time.Now().Add(acquireTimeout)
	ticker := time.NewTicker(acquirePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if s := p.popIdle(); s != nil {
				return s, nil
			}
			if time.Now().After(deadline) {
				return nil, errs.New(errs.QueueFull, "pool: no slot available within timeout", nil)
			}
		}
	}
}

func (p *Pool) popIdle() *slot {
	item := p.idle.Pop()
	if item == nil {
		return nil
	}
	s := item.(*slot)
	p.mu.Lock()
	s.busy = true
	p.mu.Unlock()
	return s
}

func (p *Pool) createSlot(ctx context.Context) (*slot, bool) {
	p.mu.Lock()
	if len(p.slots) >= p.maxSlots {
		p.mu.Unlock()
		return nil, false
	}
	index := len(p.slots)
	p.slots = append(p.slots, nil) // reserve the index while unlocked below
	p.mu.Unlock()

	conn := tvchart.NewConnection(p.cfg, p.newAdapter(), p.cvdProvider)
	if err := conn.Initialize(ctx); err != nil {
		p.mu.Lock()
		p.slots = p.slots[:index]
		p.mu.Unlock()
		return nil, false
	}

	s := &slot{index: index, connection: conn, busy: true, lastUsed: time.Now()}
	p.mu.Lock()
	p.slots[index] = s
	p.mu.Unlock()
	return s, true
}

func (p *Pool) release(s *slot) {
	p.mu.Lock()
	s.busy = false
	s.lastUsed = time.Now()
	p.mu.Unlock()
	p.idle.Push(s)
}

// SlotInfo is a point-in-time snapshot of one pool slot, for
// diagnostics.SlotReport.
type SlotInfo struct {
	Index        int
	Symbol       string
	Busy         bool
	LastUsed     time.Time
	RequestCount int64
}

// SlotInfo snapshots every slot currently held by the pool.
func (p *Pool) SlotInfo() []SlotInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	info := make([]SlotInfo, 0, len(p.slots))
	for _, s := range p.slots {
		if s == nil {
			continue
		}
		info = append(info, SlotInfo{
			Index:        s.index,
			Symbol:       s.connection.CurrentSymbol(),
			Busy:         s.busy,
			LastUsed:     s.lastUsed,
			RequestCount: s.connection.GetStats().RequestCount,
		})
	}
	return info
}

func (p *Pool) reapLoop() {
	ticker := time.NewTicker(defaultReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.reapIdle()
		case <-p.stopReap:
			return
		}
	}
}

// reapIdle disposes Connections idle beyond defaultIdleThreshold or
// flagged via ShouldRefresh, freeing their slot for replacement on next
// acquire.
func (p *Pool) reapIdle() {
	p.mu.Lock()
	candidates := append([]*slot{}, p.slots...)
	p.mu.Unlock()

	for _, s := range candidates {
		if s == nil || s.busy {
			continue
		}
		stale := time.Since(s.lastUsed) > defaultIdleThreshold
		if !stale && !s.connection.ShouldRefresh() {
			continue
		}
		log.Infof("pool: reaping idle slot %d (stale=%v shouldRefresh=%v)", s.index, stale, s.connection.ShouldRefresh())
		_ = s.connection.Dispose()
	}
}
