package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistry_PutGet(t *testing.T) {
	r := NewSessionRegistry()

	r.Put(1, "sess-a")

	id, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, "sess-a", id)
	assert.True(t, r.Connected(1))
	assert.False(t, r.Connected(2))
}

func TestSessionRegistry_ConnectingFlag(t *testing.T) {
	r := NewSessionRegistry()

	r.SetConnecting(1, true)
	assert.True(t, r.Connecting(1))

	r.SetConnecting(1, false)
	assert.False(t, r.Connecting(1))
}

func TestSessionRegistry_Reset(t *testing.T) {
	r := NewSessionRegistry()
	r.Put(1, "sess-a")
	r.Put(2, "sess-b")
	r.SetConnecting(3, true)

	r.Reset()

	assert.False(t, r.Connected(1))
	assert.False(t, r.Connected(2))
	assert.False(t, r.Connecting(3))
	assert.Empty(t, r.Sessions())
}

func TestSessionRegistry_Sessions(t *testing.T) {
	r := NewSessionRegistry()
	r.Put(1, "sess-a")
	r.Put(2, "sess-b")

	sessions := r.Sessions()
	assert.Len(t, sessions, 2)
}
