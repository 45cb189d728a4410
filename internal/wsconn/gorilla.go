package wsconn

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Gorilla is the production WebSocketAdapter, backed by
// gorilla/websocket. No example repo in the retrieval pack dials a raw
// WebSocket directly, so the dial/read-loop shape below follows the
// adapter boundary the spec itself describes (§6) rather than a
// teacher file.
type Gorilla struct {
	emitter *emitter
	dialer  *websocket.Dialer

	mu    sync.Mutex
	conn  *websocket.Conn
	state atomic.Int32
}

// NewGorilla returns a Gorilla adapter in StateClosed, ready to Connect.
func NewGorilla() *Gorilla {
	g := &Gorilla{
		emitter: newEmitter(),
		dialer:  websocket.DefaultDialer,
	}
	g.state.Store(int32(StateClosed))
	return g
}

func (g *Gorilla) ReadyState() ReadyState {
	return ReadyState(g.state.Load())
}

// Connect dials url, sending opts as request headers, and starts the
// background read loop. It blocks until the handshake completes or
// fails; the caller (the Initialization Coordinator) races this against
// its own connect-timeout.
func (g *Gorilla) Connect(url string, opts ConnectOptions) error {
	g.state.Store(int32(StateConnecting))

	header := http.Header{}
	if opts.Origin != "" {
		header.Set("Origin", opts.Origin)
	}
	if opts.UserAgent != "" {
		header.Set("User-Agent", opts.UserAgent)
	}

	conn, _, err := g.dialer.Dial(url, header)
	if err != nil {
		g.state.Store(int32(StateClosed))
		return err
	}

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	g.state.Store(int32(StateOpen))
	g.emitter.emit(EventOpen, nil)

	go g.readLoop(conn)
	return nil
}

func (g *Gorilla) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			g.state.Store(int32(StateClosed))
			code := websocket.CloseNoStatusReceived
			if ce, ok := err.(*websocket.CloseError); ok {
				code = ce.Code
			}
			g.emitter.emit(EventClose, CloseInfo{Code: code, Reason: err.Error()})
			return
		}
		g.emitter.emit(EventMessage, data)
	}
}

func (g *Gorilla) Send(data []byte) error {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (g *Gorilla) Close(code int, reason string) error {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return nil
	}
	g.state.Store(int32(StateClosing))
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	err := conn.Close()
	g.state.Store(int32(StateClosed))
	return err
}

func (g *Gorilla) On(event Event, handler Handler) func() { return g.emitter.on(event, handler) }
func (g *Gorilla) Once(event Event, handler Handler)      { g.emitter.once(event, handler) }
func (g *Gorilla) Off(event Event)                        { g.emitter.off(event) }
