package storage

import (
	"context"
	"testing"
	"time"

	rstore "ChatRelay/service/storage/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPresence(t *testing.T, relay string) (*Presence, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := rstore.FromURL("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return NewPresence(rdb, relay, time.Hour), mr
}

func TestPresenceCounts(t *testing.T) {
	ctx := context.Background()
	p, mr := newPresence(t, "relay-1")

	n, err := p.Online(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = p.Online(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	m, err := p.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"relay-1": 2}, m)
	assert.True(t, mr.TTL(presenceKey("u1")) > 0)

	_, err = p.Offline(ctx, "u1")
	require.NoError(t, err)
	n, err = p.Offline(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	online, err := p.IsOnline(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, online)
	assert.False(t, mr.Exists(presenceKey("u1")))
}

func TestPresenceAcrossRelays(t *testing.T) {
	ctx := context.Background()
	p1, mr := newPresence(t, "relay-1")
	p2 := NewPresence(p1.rdb, "relay-2", time.Hour)

	_, err := p1.Online(ctx, "u1")
	require.NoError(t, err)
	_, err = p2.Online(ctx, "u1")
	require.NoError(t, err)
	_, err = p1.Offline(ctx, "u1")
	require.NoError(t, err)

	m, err := p1.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"relay-2": 1}, m)

	// offline without a prior online never leaves a negative count
	_, err = p1.Offline(ctx, "u1")
	require.NoError(t, err)
	m, err = p1.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"relay-2": 1}, m)
	assert.True(t, mr.Exists(presenceKey("u1")))
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := rstore.FromURL("://nope")
	assert.Error(t, err)
}
