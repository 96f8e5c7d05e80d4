// Package stream layers typed market-data delivery on top of the
// websocket engine. A Stream binds a decode function to a client's data
// callback and fans the decoded events out to per-key subscription
// channels, where the key is usually the venue's symbol.
package stream

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"nakula/pkg/core"
	"nakula/pkg/wsclient"
)

// Event pairs one decoded value with the subscription key it belongs to.
type Event[T any] struct {
	Key   string
	Value T
}

// Decoder turns one raw data frame into typed events. Frames that
// belong to other feeds decode to an empty slice; a non-nil error marks
// the frame as malformed and is reported on every subscriber's error
// channel.
type Decoder[T any] func(meta core.Meta, raw []byte) ([]Event[T], error)

// Config controls per-subscription channel behavior.
type Config struct {
	// BufferSize is the capacity of each subscription's data channel.
	// Events for a full channel are dropped, never blocked on.
	BufferSize int
}

// DefaultConfig returns a Config with a 256-event buffer.
func DefaultConfig() Config {
	return Config{BufferSize: 256}
}

// Stream fans decoded events from one client out to subscribers. Start
// registers the decode callback, Subscribe opens a keyed channel pair
// and forwards the topics to the client, Stop tears the fan-out down.
// The client's own Run loop still drives delivery.
type Stream[T any] struct {
	client *wsclient.Client
	decode Decoder[T]
	config Config
	logger zerolog.Logger

	mu      sync.RWMutex
	subs    map[string]*subscription[T]
	cbID    int
	started bool
	stopped bool

	dropped atomic.Int64
}

type subscription[T any] struct {
	key    string
	topics []string
	dataCh chan T
	errCh  chan error
}

// New creates a stream that decodes the client's data frames with
// decode. A non-positive buffer size falls back to the default.
func New[T any](client *wsclient.Client, decode Decoder[T], config Config) *Stream[T] {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	return &Stream[T]{
		client: client,
		decode: decode,
		config: config,
		subs:   make(map[string]*subscription[T]),
		logger: zerolog.Nop(),
	}
}

// SetLogger attaches a logger. Call before Start.
func (s *Stream[T]) SetLogger(logger zerolog.Logger) {
	s.logger = logger.With().Str("client", s.client.Meta().String()).Logger()
}

// Start registers the stream's decode callback with the client.
// Calling Start twice is a no-op.
func (s *Stream[T]) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.cbID = s.client.RegisterMessageCallback(s.onMessage)
	s.started = true
}

// Stop unregisters the callback and closes every subscription channel.
// Topics stay in the client's authoritative set; use Unsubscribe to
// remove them first when the client keeps running.
func (s *Stream[T]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.started {
		s.client.UnregisterMessageCallback(s.cbID)
	}
	for _, sub := range s.subs {
		close(sub.dataCh)
		close(sub.errCh)
	}
	s.subs = make(map[string]*subscription[T])
	s.stopped = true
}

// Subscribe adds topics to the client's topic set and returns the
// channels carrying key's decoded events and errors. Subscribing a key
// twice returns the existing channels without touching the client.
func (s *Stream[T]) Subscribe(ctx context.Context, key string, topics []string) (<-chan T, <-chan error, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, nil, core.ErrClientClosed
	}
	if sub, ok := s.subs[key]; ok {
		s.mu.Unlock()
		return sub.dataCh, sub.errCh, nil
	}
	sub := &subscription[T]{
		key:    key,
		topics: topics,
		dataCh: make(chan T, s.config.BufferSize),
		errCh:  make(chan error, 1),
	}
	s.subs[key] = sub
	s.mu.Unlock()

	if err := s.client.Subscribe(ctx, topics); err != nil {
		s.mu.Lock()
		if _, ok := s.subs[key]; ok {
			delete(s.subs, key)
			close(sub.dataCh)
			close(sub.errCh)
		}
		s.mu.Unlock()
		return nil, nil, err
	}
	return sub.dataCh, sub.errCh, nil
}

// Unsubscribe closes key's channels and removes its topics from the
// client. Unknown keys are a no-op.
func (s *Stream[T]) Unsubscribe(ctx context.Context, key string) error {
	s.mu.Lock()
	sub, ok := s.subs[key]
	if ok {
		delete(s.subs, key)
		close(sub.dataCh)
		close(sub.errCh)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.client.Unsubscribe(ctx, sub.topics)
}

// Keys returns the subscribed keys in sorted order.
func (s *Stream[T]) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.subs))
	for key := range s.subs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Dropped returns the number of events discarded because a subscriber's
// channel was full.
func (s *Stream[T]) Dropped() int64 {
	return s.dropped.Load()
}

// Sends run under the read lock while closes run under the write lock,
// so a channel is never closed with a send in flight.
func (s *Stream[T]) onMessage(meta core.Meta, raw []byte) {
	events, err := s.decode(meta, raw)
	if err != nil {
		s.mu.RLock()
		for _, sub := range s.subs {
			select {
			case sub.errCh <- err:
			default:
			}
		}
		s.mu.RUnlock()
		s.logger.Debug().Err(err).Msg("undecodable data frame")
		return
	}

	if len(events) == 0 {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range events {
		sub, ok := s.subs[ev.Key]
		if !ok {
			continue
		}
		select {
		case sub.dataCh <- ev.Value:
		default:
			s.dropped.Add(1)
		}
	}
}
