// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bus provides the in-process topic pub-sub the pipeline is built
// on: ordered per-topic delivery to every subscriber, backpressure from
// slow subscribers to publishers on their topic only, and a
// request/response surface for point queries against module state.
package bus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultQueueDepth is the per-subscriber queue depth. A subscriber that
// falls this far behind blocks publishers on its topic.
const DefaultQueueDepth = 16

// ErrClosed is returned when publishing on a closed bus
var ErrClosed = errors.New("bus: closed")

// ErrNoHandler is returned when no handler is registered for a request
// topic
var ErrNoHandler = errors.New("bus: no handler for topic")

// Subscription is one subscriber's ordered queue on a topic
type Subscription struct {
	topic string
	ch    chan any

	mu     sync.Mutex
	closed bool
}

// Topic returns the topic this subscription is attached to
func (s *Subscription) Topic() string {
	return s.topic
}

// Read blocks until the next message, the context is cancelled, or the
// subscription is closed. A closed subscription returns io.EOF, which
// module loops treat as shutdown.
func (s *Subscription) Read(ctx context.Context) (any, error) {
	select {
	case msg, ok := <-s.ch:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// RequestHandler answers a point query against a module's current state
type RequestHandler func(ctx context.Context, req any) (any, error)

// Bus is an in-process message bus
type Bus struct {
	mu         sync.RWMutex
	subs       map[string][]*Subscription
	handlers   map[string]RequestHandler
	queueDepth int
	closed     bool

	published *prometheus.CounterVec
}

// Option configures a Bus
type Option func(*Bus)

// WithQueueDepth overrides the per-subscriber queue depth
func WithQueueDepth(depth int) Option {
	return func(b *Bus) {
		if depth > 0 {
			b.queueDepth = depth
		}
	}
}

// WithMetrics registers a per-topic publish counter with the given
// registerer
func WithMetrics(reg prometheus.Registerer) Option {
	return func(b *Bus) {
		b.published = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainindex_bus_published_total",
				Help: "Messages published per topic",
			},
			[]string{"topic"},
		)
		reg.MustRegister(b.published)
	}
}

// New creates a message bus
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:       make(map[string][]*Subscription),
		handlers:   make(map[string]RequestHandler),
		queueDepth: DefaultQueueDepth,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe attaches a new subscriber to a topic. Messages published
// after the call are delivered in publish order. Subscribing on a closed
// bus yields a subscription that reads EOF immediately.
func (b *Bus) Subscribe(topic string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscription{
		topic: topic,
		ch:    make(chan any, b.queueDepth),
	}
	if b.closed {
		sub.close()
		return sub
	}
	b.subs[topic] = append(b.subs[topic], sub)
	return sub
}

// Publish delivers a message to every subscriber of the topic in order.
// It blocks while any subscriber's queue is full, which is how
// backpressure propagates upstream; topics without slow subscribers are
// unaffected.
func (b *Bus) Publish(ctx context.Context, topic string, msg any) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	subs := b.subs[topic]
	b.mu.RUnlock()

	if b.published != nil {
		b.published.WithLabelValues(topic).Inc()
	}
	for _, sub := range subs {
		select {
		case sub.ch <- msg:
		case <-ctx.Done():
			return fmt.Errorf("publish %s: %w", topic, ctx.Err())
		}
	}
	return nil
}

// HandleRequests registers the request handler for a topic. Each topic
// has at most one handler; the module owning the state registers it.
func (b *Bus) HandleRequests(topic string, handler RequestHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
}

// Request sends a point query to the topic's handler and returns its
// response. Responses reflect the handler's latest committed state.
func (b *Bus) Request(ctx context.Context, topic string, req any) (any, error) {
	b.mu.RLock()
	handler := b.handlers[topic]
	b.mu.RUnlock()
	if handler == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, topic)
	}
	return handler(ctx, req)
}

// Close shuts the bus down: subscriptions still deliver messages already
// queued, then observe EOF; further publishes fail
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.close()
		}
	}
}
