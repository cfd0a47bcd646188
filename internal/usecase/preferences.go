package usecase

import (
	"slices"
	"sync"

	"github.com/naka-gawa/github-trailer/internal/domain"
	"github.com/naka-gawa/github-trailer/internal/events"
)

// Preferences holds the live settings and tracks whether they changed since
// the last successful refresh.
type Preferences struct {
	mu       sync.RWMutex
	settings domain.Settings
	dirty    bool
	bus      *events.Bus
}

// NewPreferences creates Preferences from the loaded settings.
func NewPreferences(settings domain.Settings, bus *events.Bus) *Preferences {
	return &Preferences{settings: settings, bus: bus}
}

// Settings returns a copy of the current settings.
func (p *Preferences) Settings() domain.Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.settings
	s.StatusFilteringTerms = slices.Clone(s.StatusFilteringTerms)
	return s
}

// Update changes the settings and marks them dirty.
func (p *Preferences) Update(fn func(s *domain.Settings)) {
	p.mu.Lock()
	fn(&p.settings)
	p.mu.Unlock()
	p.MarkDirty()
}

// MarkDirty flags the preferences as changed and signals listeners.
func (p *Preferences) MarkDirty() {
	p.mu.Lock()
	p.dirty = true
	p.mu.Unlock()
	p.bus.Publish(events.Event{Kind: events.PreferencesChanged})
}

// Dirty reports whether the preferences changed since the last successful
// refresh.
func (p *Preferences) Dirty() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dirty
}

func (p *Preferences) clearDirty() {
	p.mu.Lock()
	p.dirty = false
	p.mu.Unlock()
}
