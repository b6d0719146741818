// Package events defines the sink the core publishes state transitions to.
// Publishing is observability only; a failed publish never fails the
// operation that produced the event.
package events

import (
	"context"
	"sync"
)

// Publisher delivers one event per ledger state transition.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// Nop discards all events.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

// Published is one captured event.
type Published struct {
	Topic string
	Event any
}

// Capture records events in memory for tests.
type Capture struct {
	mu     sync.Mutex
	events []Published
}

func (c *Capture) Publish(_ context.Context, topic string, event any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, Published{Topic: topic, Event: event})
	return nil
}

// Events returns a copy of everything published so far.
func (c *Capture) Events() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Published, len(c.events))
	copy(out, c.events)
	return out
}

// ByTopic returns captured events with the given topic.
func (c *Capture) ByTopic(topic string) []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Published
	for _, p := range c.events {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

var (
	_ Publisher = Nop{}
	_ Publisher = (*Capture)(nil)
)
