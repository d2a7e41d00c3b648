package transport

import (
	"context"
	"strings"
	"sync"
)

// Bus is an in-process Transport. Publish delivers synchronously to every
// matching subscriber; subjects use NATS token syntax including the `*`
// and `>` wildcards.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*memSub]struct{}
	closed bool
}

type memSub struct {
	bus     *Bus
	pattern string
	h       Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*memSub]struct{})}
}

func (b *Bus) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	var targets []Handler
	for s := range b.subs {
		if Match(s.pattern, subject) {
			targets = append(targets, s.h)
		}
	}
	b.mu.RUnlock()

	for _, h := range targets {
		data := make([]byte, len(payload))
		copy(data, payload)
		h(subject, data)
	}
	return nil
}

func (b *Bus) Subscribe(subject string, h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	s := &memSub{bus: b, pattern: subject, h: h}
	b.subs[s] = struct{}{}
	return s, nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[*memSub]struct{})
	return nil
}

func (s *memSub) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	return nil
}

// Match reports whether subject matches a NATS-style pattern.
func Match(pattern, subject string) bool {
	p := strings.Split(pattern, ".")
	s := strings.Split(subject, ".")
	for i, tok := range p {
		if tok == ">" {
			return len(s) > i
		}
		if i >= len(s) {
			return false
		}
		if tok != "*" && tok != s[i] {
			return false
		}
	}
	return len(p) == len(s)
}
