package categorize

import (
	"cmp"
	"slices"
	"strings"

	"github.com/naka-gawa/github-trailer/internal/domain"
	"github.com/naka-gawa/github-trailer/internal/predicate"
)

// AnySection selects every real section, i.e. section > None.
const AnySection domain.Section = -1

// Query describes a listing: which section and an optional free-text filter.
type Query struct {
	Section domain.Section
	Filter  string
}

// Predicate translates q into a predicate under the given settings:
// section filter AND free-text filter AND hide-uncommented.
func Predicate[T domain.Listable](q Query, settings domain.Settings) predicate.Predicate[T] {
	parts := []predicate.Predicate[T]{InSection[T](q.Section)}
	if q.Filter != "" {
		parts = append(parts, TextFilter[T](q.Filter, settings))
	}
	if settings.HideUncommented {
		parts = append(parts, HasUnread[T]())
	}
	return predicate.And(parts...)
}

// InSection matches items in s, or in any real section for AnySection.
func InSection[T domain.Listable](s domain.Section) predicate.Predicate[T] {
	if s == AnySection {
		return func(it T) bool { return it.Base().Section > domain.SectionNone }
	}
	return func(it T) bool { return it.Base().Section == s }
}

// HasUnread matches items with unread comments.
func HasUnread[T domain.Listable]() predicate.Predicate[T] {
	return func(it T) bool { return it.Base().UnreadComments > 0 }
}

// TextFilter matches text case-insensitively against the title, the author
// login and, when enabled, the repo name, labels and pull request statuses.
func TextFilter[T domain.Listable](text string, settings domain.Settings) predicate.Predicate[T] {
	fields := []predicate.Predicate[T]{
		func(it T) bool { return predicate.ContainsFold(it.Base().Title, text) },
		func(it T) bool { return predicate.ContainsFold(it.Base().Author.Login, text) },
	}
	if settings.IncludeReposInFilter {
		fields = append(fields, func(it T) bool {
			return predicate.ContainsFold(it.Base().RepoFullName, text)
		})
	}
	if settings.IncludeLabelsInFilter {
		fields = append(fields, func(it T) bool {
			return slices.ContainsFunc(it.Base().Labels, func(l domain.Label) bool {
				return predicate.ContainsFold(l.Name, text)
			})
		})
	}
	if settings.IncludeStatusesInFilter {
		fields = append(fields, func(it T) bool {
			pr, ok := any(it).(*domain.PullRequest)
			if !ok {
				return false
			}
			return slices.ContainsFunc(pr.Statuses, func(s domain.Status) bool {
				return predicate.ContainsFold(s.Description, text)
			})
		})
	}
	return predicate.Or(fields...)
}

// Compare orders items by section, then repo when grouping, then by the
// selected sort field.
func Compare[T domain.Listable](settings domain.Settings) func(a, b T) int {
	return func(a, b T) int {
		x, y := a.Base(), b.Base()
		if c := cmp.Compare(x.Section, y.Section); c != 0 {
			return c
		}
		if settings.GroupByRepo {
			if c := compareFold(x.RepoFullName, y.RepoFullName); c != 0 {
				return c
			}
		}
		c := compareField(x, y, settings.SortField)
		if settings.SortDescending {
			return -c
		}
		return c
	}
}

func compareField(x, y *domain.Item, field domain.SortField) int {
	switch field {
	case domain.SortByTitle:
		return compareFold(x.Title, y.Title)
	case domain.SortByCreated:
		return x.CreatedAt.Compare(y.CreatedAt)
	case domain.SortByUpdated:
		return x.UpdatedAt.Compare(y.UpdatedAt)
	case domain.SortByNumber:
		return cmp.Compare(x.Number, y.Number)
	default:
		return 0
	}
}

func compareFold(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}
