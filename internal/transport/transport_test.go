package transport

import (
	"context"
	"testing"
)

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern, subject string
		want             bool
	}{
		{"machines", "machines", true},
		{"jobs.m1", "jobs.m1", true},
		{"jobs.m1", "jobs.m2", false},
		{"jobs.*", "jobs.m2", true},
		{"*.m1", "finished_job.m1", true},
		{"jobs.>", "jobs.m1.x", true},
		{"jobs.>", "jobs", false},
		{"jobs", "jobs.m1", false},
	}
	for _, c := range cases {
		if got := Match(c.pattern, c.subject); got != c.want {
			t.Fatalf("Match(%q, %q) = %v want %v", c.pattern, c.subject, got, c.want)
		}
	}
}

func TestBusDeliversToMailbox(t *testing.T) {
	bus := NewBus()
	box := NewMailbox(1)
	sub, err := bus.Subscribe("jobs.*", box.Handler())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	ctx := context.Background()

	payload := []byte("a")
	if err := bus.Publish(ctx, "jobs.m1", payload); err != nil {
		t.Fatalf("publish: %v", err)
	}
	payload[0] = 'z'
	// mailbox of one: the second message is dropped, not blocked on
	_ = bus.Publish(ctx, "jobs.m2", []byte("b"))

	msg := <-box.C()
	if msg.Subject != "jobs.m1" || string(msg.Payload) != "a" {
		t.Fatalf("unexpected message %q %q", msg.Subject, msg.Payload)
	}
	if box.Dropped() != 1 {
		t.Fatalf("dropped = %d want 1", box.Dropped())
	}

	_ = sub.Unsubscribe()
	_ = bus.Publish(ctx, "jobs.m1", []byte("c"))
	select {
	case m := <-box.C():
		t.Fatalf("delivery after unsubscribe: %+v", m)
	default:
	}

	_ = bus.Close()
	if err := bus.Publish(ctx, "jobs.m1", nil); err != ErrClosed {
		t.Fatalf("publish after close: %v", err)
	}
}
