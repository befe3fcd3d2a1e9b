package bus

import (
	"context"
	"sync"
	"time"
)

// IdemStore remembers keys for a while.
type IdemStore interface {
	SeenOnce(key string, ttl time.Duration) (seen bool, err error)
}

type MemIdem struct {
	mu   sync.Mutex
	m    map[string]time.Time // key -> expiry
	ttl  time.Duration
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// NewMemIdem returns an in-process store with a sweeper goroutine; Close stops it.
func NewMemIdem(defaultTTL time.Duration) *MemIdem {
	mi := &MemIdem{
		m:    make(map[string]time.Time),
		ttl:  defaultTTL,
		now:  time.Now,
		stop: make(chan struct{}),
	}
	go mi.sweep(time.Minute)
	return mi
}

func (mi *MemIdem) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-mi.stop:
			return
		case <-t.C:
			now := mi.now()
			mi.mu.Lock()
			for k, exp := range mi.m {
				if !exp.After(now) {
					delete(mi.m, k)
				}
			}
			mi.mu.Unlock()
		}
	}
}

func (mi *MemIdem) SeenOnce(key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = mi.ttl
	}
	now := mi.now()
	mi.mu.Lock()
	defer mi.mu.Unlock()
	if exp, ok := mi.m[key]; ok && exp.After(now) {
		return true, nil
	}
	mi.m[key] = now.Add(ttl)
	return false, nil
}

func (mi *MemIdem) Close() {
	mi.once.Do(func() { close(mi.stop) })
}

// IdemMiddleware drops envelopes whose id was already delivered within ttl.
// Envelopes without an id pass through.
func IdemMiddleware(store IdemStore, ttl time.Duration, onDuplicate func(Envelope)) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, env Envelope) {
			if env.ID != "" {
				if seen, _ := store.SeenOnce(env.ID, ttl); seen {
					if onDuplicate != nil {
						onDuplicate(env)
					}
					return
				}
			}
			next(ctx, env)
		}
	}
}
