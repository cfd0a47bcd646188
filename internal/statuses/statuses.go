// Package statuses collapses the commit statuses of a pull request into the
// list shown to the user.
package statuses

import (
	"cmp"
	"slices"

	"github.com/naka-gawa/github-trailer/internal/domain"
	"github.com/naka-gawa/github-trailer/internal/predicate"
)

const noDescription = "(No status description)"

// Displayed returns the statuses of pr filtered by mode and terms, newest
// first. A status is dropped when its description or its target URL has
// already been shown by a newer status.
func Displayed(pr *domain.PullRequest, mode domain.StatusFilterMode, terms []string) []domain.Status {
	sorted := predicate.Filter(pr.Statuses, Filter(mode, terms))
	slices.SortStableFunc(sorted, func(a, b domain.Status) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})

	result := make([]domain.Status, 0, len(sorted))
	descriptions := make(map[string]struct{})
	targetURLs := make(map[string]struct{})
	for _, s := range sorted {
		desc := description(s)
		if _, seen := descriptions[desc]; seen {
			continue
		}
		if _, seen := targetURLs[s.TargetURL]; seen {
			continue
		}
		descriptions[desc] = struct{}{}
		targetURLs[s.TargetURL] = struct{}{}
		result = append(result, s)
	}
	return result
}

// Filter builds the term predicate for mode. With no terms, or in All mode,
// every status matches.
func Filter(mode domain.StatusFilterMode, terms []string) predicate.Predicate[domain.Status] {
	if mode == domain.StatusFilterAll || mode == "" || len(terms) == 0 {
		return predicate.True[domain.Status]()
	}
	matchers := make([]predicate.Predicate[domain.Status], 0, len(terms))
	for _, term := range terms {
		matchers = append(matchers, func(s domain.Status) bool {
			return predicate.ContainsFold(s.Description, term)
		})
	}
	anyTerm := predicate.Or(matchers...)
	if mode == domain.StatusFilterExclude {
		return predicate.Not(anyTerm)
	}
	return anyTerm
}

func description(s domain.Status) string {
	if s.Description == "" {
		return noDescription
	}
	return s.Description
}
