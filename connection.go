// Package tvchart implements a long-lived client for TradingView's
// private chart-data WebSocket protocol: authentication, OHLCV bar and
// Pine-study (CVD) retrieval for one symbol at a time, rapid symbol
// switching with in-flight cancellation, and a bounded connection pool
// (package pool) on top.
package tvchart

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/anjanpoonacha/tvchart/cvdconfig"
	"github.com/anjanpoonacha/tvchart/internal/connstate"
	"github.com/anjanpoonacha/tvchart/internal/errs"
	"github.com/anjanpoonacha/tvchart/internal/heartbeat"
	"github.com/anjanpoonacha/tvchart/internal/protocol"
	"github.com/anjanpoonacha/tvchart/internal/router"
	"github.com/anjanpoonacha/tvchart/internal/seriesreg"
	"github.com/anjanpoonacha/tvchart/internal/tracker"
	"github.com/anjanpoonacha/tvchart/internal/wsconn"
	"github.com/anjanpoonacha/tvchart/model"
	"github.com/anjanpoonacha/tvchart/tools/log"
	"github.com/anjanpoonacha/tvchart/tools/metrics"
)

const responseHistoryCapacity = 100

// Connection is the facade (C9) composing the frame codec, state
// machine, tracker, heartbeat manager, series registry, and router over
// one WebSocketAdapter.
//
// Construction never starts initialization eagerly (REDESIGN FLAGS §9:
// the source starts an initialization promise inside its constructor;
// here NewConnection only builds the value, and the caller drives
// Initialize explicitly — a builder/factory split instead of a
// side-effecting constructor).
type Connection struct {
	cfg         Config
	adapter     wsconn.WebSocketAdapter
	cvdProvider cvdconfig.Provider

	state       *connstate.Machine
	tracker     *tracker.Tracker
	heartbeatMg *heartbeat.Manager
	events      *eventBus

	mu           sync.Mutex
	seriesReg    *seriesreg.Registry
	rtr          *router.Router
	chartSession string
	quoteSession string
	serverSession string

	symbolSessionCounter atomic.Int64
	seriesCounter        atomic.Int64
	turnaroundCounter    atomic.Int64
	requestCount         atomic.Int64

	currentSymbol  atomic.Pointer[string]
	currentPending atomic.Pointer[model.PendingFetch]

	initMu     sync.Mutex
	initDone   chan struct{}
	initErr    error
	initCalled bool

	disposed atomic.Bool

	history *metrics.History
	readBuf []byte
}

// NewConnection builds a Connection over adapter, using cvdProvider to
// resolve CVD study configs. Call Initialize before FetchSymbol.
func NewConnection(cfg Config, adapter wsconn.WebSocketAdapter, cvdProvider cvdconfig.Provider) *Connection {
	c := &Connection{
		cfg:         cfg,
		adapter:     adapter,
		cvdProvider: cvdProvider,
		state:       connstate.New(),
		tracker:     tracker.New(),
		events:      newEventBus(),
		history:     metrics.NewHistory(responseHistoryCapacity),
	}
	for kind, d := range cfg.PerKindTimeout {
		c.tracker.SetDefaultTimeout(model.RequestKind(kind), d)
	}
	empty := ""
	c.currentSymbol.Store(&empty)

	c.state.Subscribe(connstate.Wildcard, func(tr connstate.Transition) {
		c.events.emit(EventStateChange, tr)
	})

	return c
}

// GetState returns the current connection state.
func (c *Connection) GetState() connstate.State { return c.state.Current() }

// IsReady reports whether the connection is in the Ready state.
func (c *Connection) IsReady() bool { return c.state.Current() == connstate.Ready }

// ShouldRefresh reports whether this Connection has served at least
// MaxRequestsPerConnection requests, per §4.9 and the Open Question of
// §9 ("wire it into pool acquisition (preferred)") — pool.go consults
// this to proactively rotate a Connection before TradingView's own
// limits bite.
func (c *Connection) ShouldRefresh() bool {
	if c.cfg.MaxRequestsPerConnection <= 0 {
		return false
	}
	return c.requestCount.Load() >= int64(c.cfg.MaxRequestsPerConnection)
}

// CurrentSymbol returns the symbol this Connection is presently fetching,
// or "" if none. Used by Pool.SlotInfo to report slot occupancy.
func (c *Connection) CurrentSymbol() string {
	if s := c.currentSymbol.Load(); s != nil {
		return *s
	}
	return ""
}

// GetStats returns a snapshot of this Connection's request/response
// bookkeeping.
func (c *Connection) GetStats() Stats {
	return Stats{
		RequestCount: c.requestCount.Load(),
		ResponseTime: c.history.Summary(),
		State:        c.state.Current(),
	}
}

// Stats is the reporting shape FetchResult.Timing and §4.7 step 8's
// "success/request counters; last 100 response times" resolve into.
type Stats struct {
	RequestCount int64
	ResponseTime metrics.Summary
	State        connstate.State
}

// On subscribes to a Connection-level event; returns an unsubscribe func.
func (c *Connection) On(event ConnectionEvent, h EventHandler) func() { return c.events.on(event, h) }

// Once subscribes a one-shot handler.
func (c *Connection) Once(event ConnectionEvent, h EventHandler) { c.events.once(event, h) }

// Off removes all handlers for event.
func (c *Connection) Off(event ConnectionEvent) { c.events.off(event) }

func (c *Connection) warn(format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	log.Warn(msg)
	c.events.emit(EventWarning, msg)
}

// registerSocketHandlers wires the adapter's on-open/message/error/close
// events into the Connection, per §4.9: on-open starts the heartbeat
// manager, on-message forwards to the frame codec and router, on-close
// stops the heartbeat and forces Closed, on-error emits the error event.
func (c *Connection) registerSocketHandlers() {
	c.heartbeatMg = heartbeat.New(senderFunc(c.adapter.Send), heartbeat.OnStale(func() {
		c.warn("heartbeat: connection stale (no keepalive within timeout)")
	}))

	c.adapter.On(wsconn.EventOpen, func(any) {
		c.heartbeatMg.Start()
	})

	c.adapter.On(wsconn.EventMessage, func(payload any) {
		data, _ := payload.([]byte)
		c.onMessage(data)
	})

	c.adapter.On(wsconn.EventError, func(payload any) {
		err, _ := payload.(error)
		c.events.emit(EventError, errs.New(errs.NetworkError, "socket error", err))
	})

	c.adapter.On(wsconn.EventClose, func(payload any) {
		info, _ := payload.(wsconn.CloseInfo)
		c.heartbeatMg.Stop()
		c.state.Force(connstate.Closed)
		recoverable := info.Code == 1006
		c.tracker.CancelAllRequests("connection closed")
		c.events.emit(EventError, errs.NewRecoverable(errs.ConnectionClosed, "socket closed", nil, recoverable))
	})
}

// onMessage decodes one inbound read's bytes, draining heartbeats before
// any protocol message produces a side effect (§5 ordering guarantee),
// and buffering any trailing partial frame for the next read.
func (c *Connection) onMessage(data []byte) {
	c.mu.Lock()
	c.readBuf = append(c.readBuf, data...)
	buf := c.readBuf
	c.mu.Unlock()

	frames, remainder := protocol.Decode(buf)

	c.mu.Lock()
	c.readBuf = remainder
	c.mu.Unlock()

	for _, f := range frames {
		if f.IsHeartbeat {
			c.heartbeatMg.OnHeartbeat(f.Raw)
		}
	}
	for _, f := range frames {
		if f.IsHeartbeat {
			continue
		}
		if f.Message.Method == "" {
			if id, ok := protocol.HandshakeSessionID(f.Payload); ok {
				c.mu.Lock()
				c.serverSession = id
				c.mu.Unlock()
			}
			continue
		}
		c.rtr.Dispatch(f.Message.Method, f.Message.Params)
	}
}

type senderFunc func(data []byte) error

func (s senderFunc) Send(data []byte) error { return s(data) }

// Dispose idempotently tears down the Connection: cancels every pending
// request, stops the heartbeat, closes the socket with normal code 1000,
// clears the tracker and series registry, removes all listeners, and
// forces Closed.
func (c *Connection) Dispose() error {
	if !c.disposed.CompareAndSwap(false, true) {
		return nil
	}
	c.tracker.CancelAllRequests("Connection disposed")
	if c.heartbeatMg != nil {
		c.heartbeatMg.Stop()
	}
	c.mu.Lock()
	if c.seriesReg != nil {
		c.seriesReg.Clear()
	}
	c.mu.Unlock()

	_ = c.adapter.Close(1000, "normal closure")
	c.adapter.Off(wsconn.EventOpen)
	c.adapter.Off(wsconn.EventMessage)
	c.adapter.Off(wsconn.EventError)
	c.adapter.Off(wsconn.EventClose)
	c.state.Force(connstate.Closed)
	return nil
}
