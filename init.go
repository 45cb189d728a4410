package tvchart

import (
	"context"
	"fmt"
	"time"

	"github.com/anjanpoonacha/tvchart/internal/connstate"
	"github.com/anjanpoonacha/tvchart/internal/errs"
	"github.com/anjanpoonacha/tvchart/internal/protocol"
	"github.com/anjanpoonacha/tvchart/internal/router"
	"github.com/anjanpoonacha/tvchart/internal/seriesreg"
	"github.com/anjanpoonacha/tvchart/internal/wsconn"
	"github.com/anjanpoonacha/tvchart/model"
)

// Initialize drives the Connection through its full handshake (C8, §4.8):
// dial, authenticate, open chart/quote sessions. It is idempotent — a
// second call while the first is in flight waits for the same result,
// and a call after a successful Initialize is a no-op.
func (c *Connection) Initialize(ctx context.Context) error {
	c.initMu.Lock()
	if c.initCalled {
		done := c.initDone
		c.initMu.Unlock()
		<-done
		return c.initErr
	}
	c.initCalled = true
	c.initDone = make(chan struct{})
	c.initMu.Unlock()

	err := c.initialize(ctx)

	c.initMu.Lock()
	c.initErr = err
	close(c.initDone)
	c.initMu.Unlock()

	return err
}

func (c *Connection) initialize(ctx context.Context) error {
	c.chartSession = protocol.GenerateID("cs_")
	c.quoteSession = protocol.GenerateID("qs_")

	c.mu.Lock()
	c.seriesReg = seriesreg.New(c.chartSession, c)
	c.rtr = &router.Router{
		Tracker:   c.tracker,
		Series:    c.seriesReg,
		State:     c.state,
		Current:   c.getCurrentPending,
		OnWarning: func(msg string) { c.events.emit(EventWarning, msg) },
		OnError:   func(err error) { c.events.emit(EventError, err) },
	}
	c.mu.Unlock()

	c.registerSocketHandlers()

	if err := c.state.Transition(connstate.Connecting); err != nil {
		return err
	}
	if err := c.dial(ctx); err != nil {
		c.state.Force(connstate.Error)
		return err
	}
	if err := c.state.Transition(connstate.Connected); err != nil {
		return err
	}

	if err := c.state.Transition(connstate.Authenticating); err != nil {
		return err
	}
	if err := c.authenticate(); err != nil {
		c.state.Force(connstate.Error)
		return err
	}
	if err := c.state.Transition(connstate.Authenticated); err != nil {
		return err
	}

	if err := c.openSessions(); err != nil {
		c.state.Force(connstate.Error)
		return err
	}
	return c.state.Transition(connstate.Ready)
}

// getCurrentPending satisfies router.CurrentFetchFunc.
func (c *Connection) getCurrentPending() *model.PendingFetch { return c.currentPending.Load() }

func (c *Connection) dial(ctx context.Context) error {
	url := fmt.Sprintf("%s?from=chart/%s/&date=%s&type=chart",
		c.cfg.WebsocketURL, c.cfg.ChartID, time.Now().UTC().Format(time.RFC3339))

	timeout := c.cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = defaultConnectionTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- c.adapter.Connect(url, wsconn.ConnectOptions{Origin: "https://www.tradingview.com"}) }()

	select {
	case err := <-result:
		if err != nil {
			return errs.New(errs.NetworkError, "dial failed", err)
		}
		return nil
	case <-dialCtx.Done():
		return errs.New(errs.ConnectionTimeout, "connect timed out", dialCtx.Err())
	}
}

func (c *Connection) authenticate() error {
	if err := c.send("set_auth_token", []any{c.cfg.JWTToken}); err != nil {
		return err
	}
	return c.send("set_locale", []any{"en", "US"})
}

func (c *Connection) openSessions() error {
	if err := c.send("chart_create_session", []any{c.chartSession, ""}); err != nil {
		return err
	}
	return c.send("quote_create_session", []any{c.quoteSession})
}

// RemoveSeries satisfies seriesreg.Remover, sending remove_series on the
// chart session this Connection opened.
func (c *Connection) RemoveSeries(chartSession, seriesID string) error {
	return c.send("remove_series", []any{chartSession, seriesID})
}

func (c *Connection) send(method string, params []any) error {
	frame, err := protocol.Encode(method, params)
	if err != nil {
		return errs.New(errs.ProtocolError, "encode "+method, err)
	}
	if err := c.adapter.Send(frame); err != nil {
		return errs.New(errs.NetworkError, "send "+method, err)
	}
	return nil
}
