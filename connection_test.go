package tvchart

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/anjanpoonacha/tvchart/internal/connstate"
	"github.com/anjanpoonacha/tvchart/internal/wsconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wrapHeartbeat(n int) []byte {
	payload := fmt.Sprintf("~h~%d", n)
	return []byte(fmt.Sprintf("~m~%d~m~%s", len(payload), payload))
}

func TestHeartbeatIsEchoedBack(t *testing.T) {
	adapter := wsconn.NewScripted()
	conn := NewConnection(testConfig(), adapter, newMockCVD(t))
	require.NoError(t, conn.Initialize(context.Background()))

	before := adapter.SentCount()
	adapter.ScriptMessage(wrapHeartbeat(7))

	assert.Eventually(t, func() bool { return adapter.SentCount() == before+1 }, time.Second, time.Millisecond)
	assert.Equal(t, wrapHeartbeat(7), adapter.LastSent())
}

func TestShouldRefreshHonorsMaxRequestsPerConnection(t *testing.T) {
	adapter := wsconn.NewScripted()
	conn := NewConnection(testConfig(WithMaxRequestsPerConnection(2)), adapter, newMockCVD(t))
	require.NoError(t, conn.Initialize(context.Background()))

	assert.False(t, conn.ShouldRefresh())
	conn.requestCount.Store(2)
	assert.True(t, conn.ShouldRefresh())
}

func TestShouldRefreshDisabledWhenMaxIsZero(t *testing.T) {
	adapter := wsconn.NewScripted()
	conn := NewConnection(testConfig(WithMaxRequestsPerConnection(0)), adapter, newMockCVD(t))
	require.NoError(t, conn.Initialize(context.Background()))

	conn.requestCount.Store(1000)
	assert.False(t, conn.ShouldRefresh())
}

func TestDisposeIsIdempotentAndForcesClosed(t *testing.T) {
	adapter := wsconn.NewScripted()
	conn := NewConnection(testConfig(), adapter, newMockCVD(t))
	require.NoError(t, conn.Initialize(context.Background()))

	require.NoError(t, conn.Dispose())
	assert.Equal(t, connstate.Closed, conn.GetState())
	// A second Dispose must not panic or re-run teardown.
	require.NoError(t, conn.Dispose())
}

func TestCurrentSymbolEmptyBeforeAnyFetch(t *testing.T) {
	adapter := wsconn.NewScripted()
	conn := NewConnection(testConfig(), adapter, newMockCVD(t))
	assert.Equal(t, "", conn.CurrentSymbol())
}
