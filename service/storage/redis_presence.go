package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// presence key: im:presence:<user>
// Hash field: relay id, value: live connections of the user on that relay.
func presenceKey(user string) string { return "im:presence:" + user }

// KEYS[1] = presence key
// ARGV[1] = relay id
// ARGV[2] = delta (+1 / -1)
// ARGV[3] = ttlSeconds
// 返回：该 relay 上剩余连接数
const luaPresenceAdjust = `
local key   = KEYS[1]
local relay = ARGV[1]
local delta = tonumber(ARGV[2])
local ttl   = tonumber(ARGV[3])

local n = redis.call("HINCRBY", key, relay, delta)
if n <= 0 then
  redis.call("HDEL", key, relay)
  n = 0
end
if redis.call("HLEN", key) == 0 then
  redis.call("DEL", key)
else
  redis.call("EXPIRE", key, ttl)
end
return n
`

var presenceAdjust = redis.NewScript(luaPresenceAdjust)

// Presence records which relays hold connections for a user.
type Presence struct {
	rdb     *redis.Client
	relayID string
	ttl     time.Duration
}

func NewPresence(rdb *redis.Client, relayID string, ttl time.Duration) *Presence {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Presence{rdb: rdb, relayID: relayID, ttl: ttl}
}

// Online counts one more connection of user on this relay and renews the TTL.
func (p *Presence) Online(ctx context.Context, user string) (int64, error) {
	return p.adjust(ctx, user, 1)
}

// Offline counts one connection less; the relay field is removed at zero.
func (p *Presence) Offline(ctx context.Context, user string) (int64, error) {
	return p.adjust(ctx, user, -1)
}

func (p *Presence) adjust(ctx context.Context, user string, delta int) (int64, error) {
	n, err := presenceAdjust.Run(ctx, p.rdb, []string{presenceKey(user)},
		p.relayID, delta, int64(p.ttl/time.Second)).Int64()
	if err != nil {
		return 0, errors.Wrapf(err, "presence adjust user=%s", user)
	}
	return n, nil
}

// Lookup returns relay id -> connection count for user. An offline user yields an empty map.
func (p *Presence) Lookup(ctx context.Context, user string) (map[string]int64, error) {
	raw, err := p.rdb.HGetAll(ctx, presenceKey(user)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "presence lookup user=%s", user)
	}
	out := make(map[string]int64, len(raw))
	for relay, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		out[relay] = n
	}
	return out, nil
}

// IsOnline reports whether any relay holds a connection for user.
func (p *Presence) IsOnline(ctx context.Context, user string) (bool, error) {
	m, err := p.Lookup(ctx, user)
	return len(m) > 0, err
}
