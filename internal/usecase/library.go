package usecase

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/naka-gawa/github-trailer/internal/categorize"
	"github.com/naka-gawa/github-trailer/internal/domain"
	"github.com/naka-gawa/github-trailer/internal/events"
	"github.com/naka-gawa/github-trailer/internal/statuses"
	"github.com/naka-gawa/github-trailer/internal/store"
)

// Library is the read and maintenance API over the store. Reads work on
// clones and may run while a refresh is in flight.
type Library struct {
	store *store.Store
	prefs *Preferences
	bus   *events.Bus
	now   func() time.Time
}

// NewLibrary creates a Library.
func NewLibrary(s *store.Store, prefs *Preferences, bus *events.Bus) *Library {
	return &Library{store: s, prefs: prefs, bus: bus, now: time.Now}
}

// PullRequests lists the pull requests matching q in display order.
func (l *Library) PullRequests(q categorize.Query) []*domain.PullRequest {
	return categorize.List(l.store.PullRequests(), q, l.prefs.Settings())
}

// Issues lists the issues matching q in display order.
func (l *Library) Issues(q categorize.Query) []*domain.Issue {
	return categorize.List(l.store.Issues(), q, l.prefs.Settings())
}

// Stats summarises counts and badges for every section.
func (l *Library) Stats() domain.Stats {
	settings := l.prefs.Settings()
	prs := l.store.PullRequests()
	out := domain.Stats{
		PullRequests: kindStats(prs, settings, domain.Section.PullRequestTitle),
	}
	out.Badge = out.PullRequests.Badge
	if settings.ShowIssuesMenu {
		issues := kindStats(l.store.Issues(), settings, domain.Section.IssueTitle)
		out.Issues = &issues
		out.Badge += issues.Badge
	}
	if last := l.store.LastSuccessfulRefresh(); !last.IsZero() {
		out.LastSuccessfulRefresh = last.Format(time.RFC3339)
	}
	return out
}

func kindStats[T domain.Listable](items []T, settings domain.Settings, title func(domain.Section) string) domain.KindStats {
	ks := domain.KindStats{
		Total: categorize.CountAll(items),
		Open:  categorize.CountOpen(items),
		Badge: categorize.BadgeCount(items, settings),
	}
	for _, s := range domain.Sections {
		ks.Sections = append(ks.Sections, domain.SectionStats{
			Section: s.String(),
			Title:   title(s),
			Items:   categorize.CountInSection(items, s),
			Unread:  categorize.BadgeCountInSection(items, s),
		})
	}
	return ks
}

// DisplayedStatuses returns the statuses of pr as they should be shown.
func (l *Library) DisplayedStatuses(pr *domain.PullRequest) []domain.Status {
	settings := l.prefs.Settings()
	return statuses.Displayed(pr, settings.StatusFilteringMode, settings.StatusFilteringTerms)
}

// MarkUnmergeable reports whether pr should be flagged as unmergeable.
func (l *Library) MarkUnmergeable(pr *domain.PullRequest) bool {
	return categorize.MarkUnmergeable(pr, l.prefs.Settings())
}

// MarkPullRequestsRead catches up with every comment on the pull requests in
// s, or in every section when s is None.
func (l *Library) MarkPullRequestsRead(s domain.Section) int {
	now := l.now()
	return l.mutate(func(m *store.Model) int {
		return categorize.MarkEverythingRead(m.AllPullRequests(), s, func(pr *domain.PullRequest) {
			pr.CatchUpWithComments(now)
		})
	})
}

// MarkIssuesRead is MarkPullRequestsRead for issues.
func (l *Library) MarkIssuesRead(s domain.Section) int {
	now := l.now()
	return l.mutate(func(m *store.Model) int {
		return categorize.MarkEverythingRead(m.AllIssues(), s, func(issue *domain.Issue) {
			issue.CatchUpWithComments(now)
		})
	})
}

// ClearAllMerged drops every merged pull request that is not pinned.
func (l *Library) ClearAllMerged() int {
	return l.mutate(func(m *store.Model) int {
		return m.RemovePullRequestsWhere(func(pr *domain.PullRequest) bool {
			return pr.Condition == domain.Merged && !pr.Pinned
		})
	})
}

// ClearAllClosed drops every closed issue and every closed pull request that
// is not pinned.
func (l *Library) ClearAllClosed() int {
	return l.mutate(func(m *store.Model) int {
		return m.RemovePullRequestsWhere(func(pr *domain.PullRequest) bool {
			return pr.Condition == domain.Closed && !pr.Pinned
		}) + m.RemoveIssuesWhere(func(issue *domain.Issue) bool {
			return issue.Condition == domain.Closed
		})
	})
}

// SetPinned pins or unpins pull request number in repo and reports how many
// records matched. Pinned pull requests survive ClearAllMerged and
// ClearAllClosed.
func (l *Library) SetPinned(repo string, number int, pinned bool) int {
	return l.mutate(func(m *store.Model) int {
		n := 0
		for _, pr := range m.PullRequests {
			if pr.Number == number && strings.EqualFold(pr.RepoFullName, repo) {
				pr.Pinned = pinned
				n++
			}
		}
		return n
	})
}

// mutate runs fn under the write lock. fn reports how many items it touched.
func (l *Library) mutate(fn func(m *store.Model) int) int {
	var n int
	_ = l.store.Update(func(m *store.Model) error {
		if n = fn(m); n > 0 {
			m.Touch()
		}
		return nil
	})
	if n > 0 {
		l.bus.Publish(events.Event{Kind: events.ItemsChanged})
	}
	return n
}

// MarkPreferencesDirty records that the settings changed outside a refresh.
// The next StartRefreshIfDue refreshes right away.
func (l *Library) MarkPreferencesDirty() {
	l.prefs.MarkDirty()
}

// ApplySettings replaces the live settings, for instance after the
// configuration file was edited, and marks them dirty.
func (l *Library) ApplySettings(settings domain.Settings) {
	l.prefs.Update(func(s *domain.Settings) {
		*s = settings
		s.StatusFilteringTerms = slices.Clone(settings.StatusFilteringTerms)
	})
}

// Save persists pending changes.
func (l *Library) Save(ctx context.Context) error {
	if !l.store.HasChanges() {
		return nil
	}
	return l.store.Save(ctx)
}
