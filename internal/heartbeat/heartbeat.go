// Package heartbeat implements the keep-alive manager of §4.4: echo
// every server heartbeat frame verbatim, track liveness, and raise a
// one-shot warning if the server goes quiet past the stale threshold.
package heartbeat

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultCheckInterval = 5 * time.Second
	defaultStaleTimeout  = 30 * time.Second
)

// Sender writes raw bytes to the underlying transport; satisfied by
// wsconn.WebSocketAdapter.
type Sender interface {
	Send(data []byte) error
}

// Manager echoes heartbeats and watches for a stale connection.
type Manager struct {
	sender        Sender
	checkInterval time.Duration
	staleTimeout  time.Duration
	onStale       func()

	mu             sync.Mutex
	lastReceivedAt time.Time
	echoed         int64
	staleFired     bool

	stop      chan struct{}
	once      sync.Once
	startOnce sync.Once
}

// Option configures a Manager at construction.
type Option func(*Manager)

func WithCheckInterval(d time.Duration) Option { return func(m *Manager) { m.checkInterval = d } }
func WithStaleTimeout(d time.Duration) Option  { return func(m *Manager) { m.staleTimeout = d } }
func OnStale(fn func()) Option                 { return func(m *Manager) { m.onStale = fn } }

// New returns a Manager that has not yet started its liveness check.
func New(sender Sender, opts ...Option) *Manager {
	m := &Manager{
		sender:        sender,
		checkInterval: defaultCheckInterval,
		staleTimeout:  defaultStaleTimeout,
		lastReceivedAt: time.Now(),
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the background liveness-check loop. Safe to call once;
// subsequent calls are no-ops.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(m.checkInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					m.checkStale()
				case <-m.stop:
					return
				}
			}
		}()
	})
}

// Stop ends the liveness-check loop. Idempotent.
func (m *Manager) Stop() {
	m.once.Do(func() { close(m.stop) })
}

// OnHeartbeat echoes the frame's raw bytes back over the socket and
// records lastReceivedAt. Any send error is swallowed here; the socket's
// own close handler is the authoritative failure signal.
func (m *Manager) OnHeartbeat(raw []byte) {
	m.mu.Lock()
	m.lastReceivedAt = time.Now()
	m.staleFired = false
	m.mu.Unlock()

	atomic.AddInt64(&m.echoed, 1)
	_ = m.sender.Send(raw)
}

func (m *Manager) checkStale() {
	m.mu.Lock()
	elapsed := time.Since(m.lastReceivedAt)
	stale := elapsed > m.staleTimeout
	alreadyFired := m.staleFired
	if stale {
		m.staleFired = true
	}
	m.mu.Unlock()

	if stale && !alreadyFired && m.onStale != nil {
		m.onStale()
	}
}

// IsHealthy reports whether a heartbeat has arrived within staleTimeout.
func (m *Manager) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.lastReceivedAt) <= m.staleTimeout
}

// EchoedCount returns the number of heartbeats echoed so far.
func (m *Manager) EchoedCount() int64 {
	return atomic.LoadInt64(&m.echoed)
}

// Reset clears liveness bookkeeping as of now, used after a fresh socket
// takes over.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastReceivedAt = time.Now()
	m.staleFired = false
}
