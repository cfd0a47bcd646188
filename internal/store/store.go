// Package store holds the local copy of tracked items. Mutations happen on an
// in-memory model under a write lock; readers get clones so they can query
// while a refresh is in flight. The model is persisted through a Persister.
package store

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/naka-gawa/github-trailer/internal/domain"
)

// Model is the mutable working set. It is only handed out inside Update and
// View, which hold the store's lock.
type Model struct {
	PullRequests map[domain.Key]*domain.PullRequest
	Issues       map[domain.Key]*domain.Issue

	LastSuccessfulRefresh time.Time

	changed bool
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{
		PullRequests: make(map[domain.Key]*domain.PullRequest),
		Issues:       make(map[domain.Key]*domain.Issue),
	}
}

// Touch records that the model differs from what was last persisted.
func (m *Model) Touch() {
	m.changed = true
}

// Changed reports whether the model differs from what was last persisted.
func (m *Model) Changed() bool {
	return m.changed
}

// PullRequestOrNew looks up a pull request, creating it when absent.
func (m *Model) PullRequestOrNew(key domain.Key) (pr *domain.PullRequest, created bool) {
	if pr, ok := m.PullRequests[key]; ok {
		return pr, false
	}
	pr = &domain.PullRequest{Item: domain.Item{Key: key}}
	m.PullRequests[key] = pr
	m.changed = true
	return pr, true
}

// IssueOrNew looks up an issue, creating it when absent.
func (m *Model) IssueOrNew(key domain.Key) (issue *domain.Issue, created bool) {
	if issue, ok := m.Issues[key]; ok {
		return issue, false
	}
	issue = &domain.Issue{Item: domain.Item{Key: key}}
	m.Issues[key] = issue
	m.changed = true
	return issue, true
}

// AllPullRequests returns the live pull requests ordered by key.
func (m *Model) AllPullRequests() []*domain.PullRequest {
	return sortedValues(m.PullRequests)
}

// AllIssues returns the live issues ordered by key.
func (m *Model) AllIssues() []*domain.Issue {
	return sortedValues(m.Issues)
}

// ResetPostSyncActions clears the transient marker on every item.
func (m *Model) ResetPostSyncActions() {
	for _, pr := range m.PullRequests {
		pr.PostSyncAction = domain.NoAction
	}
	for _, issue := range m.Issues {
		issue.PostSyncAction = domain.NoAction
	}
}

// RemoveWhere deletes every item for which match returns true and reports how
// many were removed.
func (m *Model) RemoveWhere(match func(*domain.Item) bool) int {
	return m.RemovePullRequestsWhere(func(pr *domain.PullRequest) bool { return match(&pr.Item) }) +
		m.RemoveIssuesWhere(func(issue *domain.Issue) bool { return match(&issue.Item) })
}

// RemovePullRequestsWhere deletes the matching pull requests.
func (m *Model) RemovePullRequestsWhere(match func(*domain.PullRequest) bool) int {
	removed := 0
	for k, pr := range m.PullRequests {
		if match(pr) {
			delete(m.PullRequests, k)
			removed++
		}
	}
	if removed > 0 {
		m.changed = true
	}
	return removed
}

// RemoveIssuesWhere deletes the matching issues.
func (m *Model) RemoveIssuesWhere(match func(*domain.Issue) bool) int {
	removed := 0
	for k, issue := range m.Issues {
		if match(issue) {
			delete(m.Issues, k)
			removed++
		}
	}
	if removed > 0 {
		m.changed = true
	}
	return removed
}

// Sweep removes items still marked Delete at the end of a sync pass.
func (m *Model) Sweep() int {
	return m.RemoveWhere(func(it *domain.Item) bool { return it.PostSyncAction == domain.Delete })
}

func sortedValues[T domain.Listable](items map[domain.Key]T) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		out = append(out, it)
	}
	slices.SortFunc(out, func(a, b T) int {
		x, y := a.Base().Key, b.Base().Key
		if c := cmp.Compare(x.Server, y.Server); c != 0 {
			return c
		}
		return cmp.Compare(x.RemoteID, y.RemoteID)
	})
	return out
}

// Persister loads and saves whole models.
type Persister interface {
	Load(ctx context.Context) (*Model, error)
	Save(ctx context.Context, m *Model) error
}

// Store guards the model.
type Store struct {
	mu        sync.RWMutex
	model     *Model
	persister Persister
	logger    *slog.Logger
}

// New creates an empty store backed by persister.
func New(persister Persister, logger *slog.Logger) *Store {
	return &Store{model: NewModel(), persister: persister, logger: logger}
}

// Load replaces the in-memory model with the persisted one.
func (s *Store) Load(ctx context.Context) error {
	m, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("load store: %w", err)
	}
	s.mu.Lock()
	s.model = m
	s.mu.Unlock()
	s.logger.Debug("store loaded", "pull_requests", len(m.PullRequests), "issues", len(m.Issues))
	return nil
}

// Reload replaces the in-memory model with the persisted one so edits saved
// by other processes are not overwritten by the next Save. A model with
// unsaved changes is kept and Reload reports false.
func (s *Store) Reload(ctx context.Context) (bool, error) {
	m, err := s.persister.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("reload store: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model.changed {
		return false, nil
	}
	s.model = m
	return true, nil
}

// Update runs fn with exclusive access to the model.
func (s *Store) Update(fn func(m *Model) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.model)
}

// View runs fn with shared access to the model. fn must not mutate it.
func (s *Store) View(fn func(m *Model)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.model)
}

// PullRequests returns clones of every pull request ordered by key.
func (s *Store) PullRequests() []*domain.PullRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	live := s.model.AllPullRequests()
	out := make([]*domain.PullRequest, len(live))
	for i, pr := range live {
		out[i] = pr.Clone()
	}
	return out
}

// Issues returns clones of every issue ordered by key.
func (s *Store) Issues() []*domain.Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	live := s.model.AllIssues()
	out := make([]*domain.Issue, len(live))
	for i, issue := range live {
		out[i] = issue.Clone()
	}
	return out
}

// LastSuccessfulRefresh is the completion time of the last cycle without failures.
func (s *Store) LastSuccessfulRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model.LastSuccessfulRefresh
}

// HasChanges reports whether the model changed since it was last saved.
func (s *Store) HasChanges() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model.Changed()
}

// Save persists the model and clears the change flag.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persister.Save(ctx, s.model); err != nil {
		return fmt.Errorf("save store: %w", err)
	}
	s.model.changed = false
	return nil
}
