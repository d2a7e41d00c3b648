// Package transport defines the publish/subscribe contract shared by the
// coordinator and the machines, plus an in-process implementation.
package transport

import (
	"context"
	"errors"
	"sync/atomic"
)

var ErrClosed = errors.New("transport closed")

// Handler receives one delivered message. Handlers run on the transport's
// delivery goroutine and must not block.
type Handler func(subject string, payload []byte)

// Subscription is an active interest in a subject.
type Subscription interface {
	Unsubscribe() error
}

// Transport is a subject-addressed message bus. Delivery is asynchronous
// and unordered across subjects; publishes are fire-and-forget.
type Transport interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	Subscribe(subject string, h Handler) (Subscription, error)
	Close() error
}

// Message is one inbound delivery queued for a tick loop.
type Message struct {
	Subject string
	Payload []byte
}

// Mailbox turns transport callbacks into a channel so a single goroutine
// can select over inbound messages and its tick timer.
type Mailbox struct {
	ch      chan Message
	dropped atomic.Uint64
}

func NewMailbox(size int) *Mailbox {
	if size <= 0 {
		size = 256
	}
	return &Mailbox{ch: make(chan Message, size)}
}

// Handler enqueues without blocking. When the mailbox is full the message
// is dropped; senders republish state every tick.
func (m *Mailbox) Handler() Handler {
	return func(subject string, payload []byte) {
		select {
		case m.ch <- Message{Subject: subject, Payload: payload}:
		default:
			m.dropped.Add(1)
		}
	}
}

func (m *Mailbox) C() <-chan Message { return m.ch }

// Dropped is the number of messages discarded because the mailbox was full.
func (m *Mailbox) Dropped() uint64 { return m.dropped.Load() }
