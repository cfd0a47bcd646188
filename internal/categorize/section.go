// Package categorize buckets items into sections and builds the filtered,
// sorted and counted views presentation layers read.
package categorize

import (
	"github.com/naka-gawa/github-trailer/internal/domain"
)

// Section decides which section an item belongs to. It depends only on the
// item and the settings, so it is total and idempotent.
func Section(it domain.Listable, settings domain.Settings) domain.Section {
	item := it.Base()
	if item.PostSyncAction == domain.Delete {
		return domain.SectionNone
	}
	if _, isIssue := it.(*domain.Issue); isIssue && !settings.ShowIssuesMenu {
		return domain.SectionNone
	}
	switch item.Condition {
	case domain.Merged:
		return domain.SectionMerged
	case domain.Closed:
		return domain.SectionClosed
	}
	switch {
	case item.CreatedByMe || item.AssignedToMe:
		return domain.SectionMine
	case item.Participated:
		return domain.SectionParticipated
	default:
		return domain.SectionAll
	}
}

// Assign recomputes the section of every item and reports how many moved.
func Assign[T domain.Listable](items []T, settings domain.Settings) int {
	moved := 0
	for _, it := range items {
		s := Section(it, settings)
		if it.Base().Section != s {
			it.Base().Section = s
			moved++
		}
	}
	return moved
}

// MarkUnmergeable reports whether a pull request should be flagged as not
// mergeable in its current section.
func MarkUnmergeable(pr *domain.PullRequest, settings domain.Settings) bool {
	if pr.Mergeable != domain.False {
		return false
	}
	switch pr.Section {
	case domain.SectionMerged, domain.SectionClosed, domain.SectionNone:
		return false
	case domain.SectionAll:
		return !settings.MarkUnmergeableOnUserSectionsOnly
	default:
		return true
	}
}
