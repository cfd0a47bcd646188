package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()
	a, cancelA := bus.Subscribe(4)
	b, cancelB := bus.Subscribe(4)
	defer cancelB()

	bus.Publish(Event{Kind: RefreshStarted})
	bus.Publish(Event{Kind: RefreshEnded, Success: true})

	assert.Equal(t, Event{Kind: RefreshStarted}, <-a)
	assert.Equal(t, Event{Kind: RefreshEnded, Success: true}, <-a)
	assert.Equal(t, RefreshStarted, (<-b).Kind)

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)

	bus.Publish(Event{Kind: ItemsChanged})
	assert.Equal(t, RefreshEnded, (<-b).Kind)
	assert.Equal(t, ItemsChanged, (<-b).Kind)
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Publish(Event{Kind: PreferencesChanged})
	bus.Publish(Event{Kind: ItemsChanged})

	require.Len(t, ch, 1)
	assert.Equal(t, PreferencesChanged, (<-ch).Kind)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "refresh_started", RefreshStarted.String())
	assert.Equal(t, "preferences_changed", PreferencesChanged.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
