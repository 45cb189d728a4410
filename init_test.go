package tvchart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anjanpoonacha/tvchart/cvdconfig"
	"github.com/anjanpoonacha/tvchart/internal/connstate"
	"github.com/anjanpoonacha/tvchart/internal/wsconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(opts ...Option) Config {
	base := []Option{
		WithJWTToken("test-jwt"),
		WithWebsocketURL("wss://example.invalid/ws"),
		WithChartID("cid"),
		WithConnectionTimeout(time.Second),
		WithDataTimeout(time.Second),
	}
	return NewConfig(append(base, opts...)...)
}

func newMockCVD(t *testing.T) cvdconfig.Provider {
	t.Helper()
	p, err := cvdconfig.NewMock(time.Minute)
	require.NoError(t, err)
	return p
}

func TestInitializeReachesReady(t *testing.T) {
	adapter := wsconn.NewScripted()
	conn := NewConnection(testConfig(), adapter, newMockCVD(t))

	err := conn.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, connstate.Ready, conn.GetState())
	assert.True(t, conn.IsReady())
	assert.Equal(t, 1, adapter.ConnectCount())

	// authenticate (2 sends) + openSessions (2 sends) = 4 writes.
	assert.Equal(t, 4, adapter.SentCount())
}

// failDialAdapter always fails Connect, for exercising Initialize's error
// path without waiting out a real timeout.
type failDialAdapter struct{ *wsconn.Scripted }

func (f failDialAdapter) Connect(url string, opts wsconn.ConnectOptions) error {
	return errors.New("boom")
}

func TestInitializeDialFailureForcesErrorState(t *testing.T) {
	adapter := failDialAdapter{wsconn.NewScripted()}
	conn := NewConnection(testConfig(), adapter, newMockCVD(t))

	err := conn.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, connstate.Error, conn.GetState())
}

func TestInitializeIsIdempotentUnderConcurrency(t *testing.T) {
	adapter := wsconn.NewScripted()
	conn := NewConnection(testConfig(), adapter, newMockCVD(t))

	const callers = 10
	var wg sync.WaitGroup
	errsOut := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errsOut[i] = conn.Initialize(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errsOut {
		assert.NoError(t, err)
	}
	// Only the first caller should have actually dialed.
	assert.Equal(t, 1, adapter.ConnectCount())

	// A call after success is a no-op returning the same nil result.
	assert.NoError(t, conn.Initialize(context.Background()))
	assert.Equal(t, 1, adapter.ConnectCount())
}
