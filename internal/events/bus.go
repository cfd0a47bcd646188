// Package events carries change signals to interested parties, such as a
// companion device that needs to know the store or the preferences changed.
package events

import (
	"sync"
)

// Kind identifies an event.
type Kind int

const (
	RefreshStarted Kind = iota + 1
	RefreshEnded
	ItemsChanged
	PreferencesChanged
)

func (k Kind) String() string {
	switch k {
	case RefreshStarted:
		return "refresh_started"
	case RefreshEnded:
		return "refresh_ended"
	case ItemsChanged:
		return "items_changed"
	case PreferencesChanged:
		return "preferences_changed"
	default:
		return "unknown"
	}
}

// Event is one signal.
type Event struct {
	Kind Kind
	// Success is set on RefreshEnded.
	Success bool
}

// Bus fans events out to subscribers. Slow subscribers miss events rather
// than blocking the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel receiving events and a function that ends the
// subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber with room in its buffer.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
