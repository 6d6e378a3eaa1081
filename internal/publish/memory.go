package publish

import (
	"context"
	"errors"
	"sync"

	"github.com/rickgao/quote-relay/internal/model"
)

// ErrClosed is returned by publishers after Close.
var ErrClosed = errors.New("publisher closed")

// MemoryPublisher keeps events in memory. Used by tests and demo runs.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []model.QuoteEvent
	fail   map[string]error
	closed bool
}

// NewMemory creates an empty MemoryPublisher.
func NewMemory() *MemoryPublisher {
	return &MemoryPublisher{fail: make(map[string]error)}
}

// FailRoom makes publishes to room return err. A nil err clears it.
func (p *MemoryPublisher) FailRoom(room string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.fail, room)
		return
	}
	p.fail[room] = err
}

func (p *MemoryPublisher) Publish(_ context.Context, ev model.QuoteEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.fail[ev.Room]; err != nil {
		return err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Events returns a copy of everything published.
func (p *MemoryPublisher) Events() []model.QuoteEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.QuoteEvent(nil), p.events...)
}

// Room returns the events published to room.
func (p *MemoryPublisher) Room(room string) []model.QuoteEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []model.QuoteEvent
	for _, ev := range p.events {
		if ev.Room == room {
			out = append(out, ev)
		}
	}
	return out
}

// Reset discards recorded events.
func (p *MemoryPublisher) Reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}
