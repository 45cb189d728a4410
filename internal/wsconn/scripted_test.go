package wsconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedConnectFiresOpen(t *testing.T) {
	s := NewScripted()
	opened := false
	s.On(EventOpen, func(any) { opened = true })

	require.NoError(t, s.Connect("wss://example", ConnectOptions{}))
	assert.True(t, opened)
	assert.Equal(t, StateOpen, s.ReadyState())
	assert.Equal(t, 1, s.ConnectCount())
}

func TestScriptedSendRecordsPayload(t *testing.T) {
	s := NewScripted()
	require.NoError(t, s.Send([]byte("hello")))
	assert.Equal(t, 1, s.SentCount())
	assert.Equal(t, []byte("hello"), s.LastSent())
}

func TestScriptedMessageDelivered(t *testing.T) {
	s := NewScripted()
	var got []byte
	s.On(EventMessage, func(payload any) { got = payload.([]byte) })

	s.ScriptMessage([]byte("~m~4~m~data"))
	assert.Equal(t, []byte("~m~4~m~data"), got)
}

func TestScriptedCloseFiresOnceHandler(t *testing.T) {
	s := NewScripted()
	calls := 0
	s.Once(EventClose, func(any) { calls++ })

	s.ScriptClose(1006, "abnormal")
	s.ScriptClose(1000, "normal")

	assert.Equal(t, 1, calls)
	assert.Equal(t, StateClosed, s.ReadyState())
}

func TestUnsubscribeStopsEmitterDelivery(t *testing.T) {
	s := NewScripted()
	calls := 0
	unsub := s.On(EventMessage, func(any) { calls++ })
	s.ScriptMessage([]byte("1"))
	unsub()
	s.ScriptMessage([]byte("2"))
	assert.Equal(t, 1, calls)
}

func TestOffRemovesAllHandlersForEvent(t *testing.T) {
	s := NewScripted()
	calls := 0
	s.On(EventMessage, func(any) { calls++ })
	s.On(EventMessage, func(any) { calls++ })
	s.Off(EventMessage)
	s.ScriptMessage([]byte("x"))
	assert.Equal(t, 0, calls)
}
