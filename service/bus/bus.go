// Package bus carries envelopes between relay processes. Publishing is
// fire-and-forget through a bounded queue drained by a single writer; the
// receiving side dedupes by envelope id and hands each envelope to the
// handlers registered for its topic.
package bus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"ChatRelay/logger"
	"ChatRelay/tools/errs"
	"ChatRelay/tools/safe"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Handler consumes one envelope. Handlers run on transport goroutines and must not block.
type Handler func(ctx context.Context, env Envelope)

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

// Chain applies mws so that mws[0] runs first.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Drop reasons.
const (
	DropQueueFull = "queue_full"
	DropClosed    = "closed"
	DropTransport = "transport"
	DropDecode    = "decode"
)

// Observer receives bus counters, typically backed by prometheus.
type Observer interface {
	Published(topic Topic)
	Dropped(topic Topic, reason string)
	Delivered(topic Topic)
	Duplicate(topic Topic)
}

type nopObserver struct{}

func (nopObserver) Published(Topic)       {}
func (nopObserver) Dropped(Topic, string) {}
func (nopObserver) Delivered(Topic)       {}
func (nopObserver) Duplicate(Topic)       {}

type Options struct {
	RelayID        string
	QueueSize      int
	PublishTimeout time.Duration
	DedupeTTL      time.Duration
	Observer       Observer
}

func (o *Options) withDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 4096
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 3 * time.Second
	}
	if o.DedupeTTL <= 0 {
		o.DedupeTTL = 2 * time.Minute
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
}

// Stats is a snapshot of the bus counters.
type Stats struct {
	Published  uint64
	Dropped    uint64
	Delivered  uint64
	Duplicates uint64
}

type Bus struct {
	opts Options
	tr   Transport
	log  *zap.Logger

	queue chan Envelope
	stop  chan struct{}
	wg    sync.WaitGroup

	mu       sync.RWMutex
	handlers map[Topic][]Handler
	dispatch Handler
	idem     *MemIdem

	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once

	published, dropped, delivered, duplicates atomic.Uint64
}

func New(tr Transport, opts Options) *Bus {
	safe.MustNotNil(tr, "bus transport")
	opts.withDefaults()
	b := &Bus{
		opts:     opts,
		tr:       tr,
		log:      logger.Named("bus").With(zap.String("relay", opts.RelayID)),
		queue:    make(chan Envelope, opts.QueueSize),
		stop:     make(chan struct{}),
		handlers: make(map[Topic][]Handler),
		idem:     NewMemIdem(opts.DedupeTTL),
	}
	b.dispatch = Chain(b.fanout, IdemMiddleware(b.idem, opts.DedupeTTL, func(env Envelope) {
		b.duplicates.Add(1)
		b.opts.Observer.Duplicate(env.Topic)
	}))
	return b
}

// RelayID is the id stamped on envelopes published by this bus.
func (b *Bus) RelayID() string { return b.opts.RelayID }

// Subscribe registers a process-wide handler for topic.
func (b *Bus) Subscribe(topic Topic, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Start subscribes the transport to every topic and starts the writer.
func (b *Bus) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return nil
	}
	if err := b.tr.Start(ctx, Topics, b.receive); err != nil {
		return errs.ErrBusTransport.WrapMsg(err.Error())
	}
	b.wg.Add(1)
	go b.writer()
	return nil
}

// Run starts the bus and closes it when ctx ends.
func (b *Bus) Run(ctx context.Context) error {
	if err := b.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return b.Close()
}

// Publish enqueues an envelope and returns at once. Failures are logged,
// counted and dropped; the returned error is informational only.
func (b *Bus) Publish(topic Topic, conversationID string, payload any, origin Origin) error {
	raw, err := marshalPayload(payload)
	if err != nil {
		b.drop(topic, DropDecode, err)
		return errs.ErrBusTransport.WrapMsg("encode payload", "topic", topic)
	}
	env := Envelope{
		ID:             uuid.NewString(),
		Topic:          topic,
		ConversationID: conversationID,
		Payload:        raw,
		OriginUserID:   origin.UserID,
		OriginRelay:    b.opts.RelayID,
		OriginConnID:   origin.ConnID,
		Timestamp:      time.Now().UnixMilli(),
	}
	if b.closed.Load() {
		b.drop(topic, DropClosed, nil)
		return errs.ErrBusTransport.WrapMsg("bus closed", "topic", topic)
	}
	select {
	case b.queue <- env:
		return nil
	default:
		b.drop(topic, DropQueueFull, nil)
		return errs.ErrBusTransport.WrapMsg("publish queue full", "topic", topic)
	}
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, errs.ErrValidation.WrapMsg("payload is not valid JSON")
		}
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, errs.ErrValidation.WrapMsg("payload is not valid JSON")
		}
		return p, nil
	default:
		return json.Marshal(payload)
	}
}

func (b *Bus) writer() {
	defer b.wg.Done()
	for {
		select {
		case env := <-b.queue:
			b.send(env)
		case <-b.stop:
			// flush what is already queued
			for {
				select {
				case env := <-b.queue:
					b.send(env)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) send(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		b.drop(env.Topic, DropDecode, err)
		return
	}
	key := env.ConversationID
	if key == "" {
		key = env.OriginUserID
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.PublishTimeout)
	defer cancel()
	if err := b.tr.Publish(ctx, Outbound{Topic: env.Topic, ID: env.ID, Key: key, Data: data}); err != nil {
		b.drop(env.Topic, DropTransport, err)
		return
	}
	b.published.Add(1)
	b.opts.Observer.Published(env.Topic)
}

func (b *Bus) drop(topic Topic, reason string, err error) {
	b.dropped.Add(1)
	b.opts.Observer.Dropped(topic, reason)
	fields := []zap.Field{zap.String("topic", string(topic)), zap.String("reason", reason)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	b.log.Warn("bus envelope dropped", fields...)
}

// receive is the transport callback.
func (b *Bus) receive(topic Topic, data []byte) {
	env, err := DecodeEnvelope(topic, data)
	if err != nil {
		b.drop(topic, DropDecode, err)
		return
	}
	b.dispatch(context.Background(), env)
}

func (b *Bus) fanout(ctx context.Context, env Envelope) {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[env.Topic]...)
	b.mu.RUnlock()

	b.delivered.Add(1)
	b.opts.Observer.Delivered(env.Topic)
	for _, h := range hs {
		func() {
			defer safe.Recover("bus handler "+string(env.Topic), nil)
			h(ctx, env)
		}()
	}
}

// Close stops the writer after flushing queued envelopes, then closes the transport.
func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.stop)
		b.wg.Wait()
		err = multierr.Append(err, b.tr.Close())
		b.idem.Close()
	})
	return err
}

func (b *Bus) Stats() Stats {
	return Stats{
		Published:  b.published.Load(),
		Dropped:    b.dropped.Load(),
		Delivered:  b.delivered.Load(),
		Duplicates: b.duplicates.Load(),
	}
}
