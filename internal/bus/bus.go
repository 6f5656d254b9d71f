// Package bus implements the kernel's in-process event bus: exact and
// prefix-wildcard pub/sub with per-subscriber ordering guarantees.
package bus

import (
	"strings"
	"sync"
	"time"

	"github.com/bykadzu/Aether-agent-os-sub005/pkg/logger"
)

// Event is the envelope delivered to every subscriber.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Handler receives events pushed to a callback-style subscription.
type Handler func(Event)

const defaultBacklog = 64

type subscriber struct {
	id      string
	pattern string
	ch      chan Event
	handler Handler
}

// Bus is the central event bus. Zero value is not usable; construct with New.
type Bus struct {
	log *logger.Logger

	mu      sync.RWMutex
	exact   map[string][]*subscriber
	prefix  map[string][]*subscriber
	all     []*subscriber
	nextID  uint64
}

// New builds a Bus.
func New(log *logger.Logger) *Bus {
	if log == nil {
		log = logger.NewDefault("bus")
	}
	return &Bus{
		log:    log,
		exact:  make(map[string][]*subscriber),
		prefix: make(map[string][]*subscriber),
	}
}

// Subscribe registers a channel-based subscriber for an exact kind or a
// "prefix.*" wildcard pattern. The returned channel is buffered; a slow
// reader has its oldest pending event dropped rather than blocking the
// publisher.
func (b *Bus) Subscribe(pattern string) (string, <-chan Event) {
	sub := &subscriber{
		pattern: pattern,
		ch:      make(chan Event, defaultBacklog),
	}
	b.register(sub)
	return sub.id, sub.ch
}

// SubscribeFunc registers a callback-style subscriber. The handler runs
// synchronously on the publisher's goroutine in subscription order, so it
// must not block; long work should hand off to its own goroutine.
func (b *Bus) SubscribeFunc(pattern string, handler Handler) string {
	sub := &subscriber{
		pattern: pattern,
		handler: handler,
	}
	b.register(sub)
	return sub.id
}

func (b *Bus) register(sub *subscriber) {
	b.mu.Lock()
	b.nextID++
	sub.id = "sub-" + itoa(b.nextID)
	switch {
	case sub.pattern == "*":
		b.all = append(b.all, sub)
	case strings.HasSuffix(sub.pattern, ".*"):
		prefix := strings.TrimSuffix(sub.pattern, ".*")
		b.prefix[prefix] = append(b.prefix[prefix], sub)
	default:
		b.exact[sub.pattern] = append(b.exact[sub.pattern], sub)
	}
	b.mu.Unlock()
}

// Unsubscribe removes a subscriber by id, closing its channel if any.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for pattern, subs := range b.exact {
		b.exact[pattern] = removeSub(subs, id)
	}
	for prefix, subs := range b.prefix {
		b.prefix[prefix] = removeSub(subs, id)
	}
	b.all = removeSub(b.all, id)
}

func removeSub(subs []*subscriber, id string) []*subscriber {
	out := subs[:0]
	for _, s := range subs {
		if s.id == id {
			if s.ch != nil {
				close(s.ch)
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// Publish delivers an event to every matching subscriber, exact subscribers
// first, then wildcard subscribers whose prefix matches. A single
// publisher's events reach each of its subscribers in publish order;
// delivery order across different publisher goroutines is not guaranteed.
func (b *Bus) Publish(kind string, payload any) {
	evt := Event{Kind: kind, Timestamp: time.Now(), Payload: payload}

	b.mu.RLock()
	matched := append([]*subscriber{}, b.exact[kind]...)
	for prefix, subs := range b.prefix {
		if strings.HasPrefix(kind, prefix+".") {
			matched = append(matched, subs...)
		}
	}
	matched = append(matched, b.all...)
	b.mu.RUnlock()

	for _, sub := range matched {
		if sub.handler != nil {
			sub.handler(evt)
			continue
		}
		b.deliverOrDrop(sub, evt)
	}
}

// deliverOrDrop never blocks the publisher: if a subscriber's channel is
// full, the oldest pending event is dropped to make room.
func (b *Bus) deliverOrDrop(sub *subscriber, evt Event) {
	select {
	case sub.ch <- evt:
		return
	default:
	}
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- evt:
	default:
		b.log.WithField("pattern", sub.pattern).Warn("bus: dropped event for saturated subscriber")
	}
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
