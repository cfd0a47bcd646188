package categorize

import (
	"slices"

	"github.com/naka-gawa/github-trailer/internal/domain"
	"github.com/naka-gawa/github-trailer/internal/predicate"
)

// List returns the items matching q, sorted for display.
func List[T domain.Listable](items []T, q Query, settings domain.Settings) []T {
	out := predicate.Filter(items, Predicate[T](q, settings))
	slices.SortStableFunc(out, Compare[T](settings))
	return out
}

// CountAll counts items in any real section.
func CountAll[T domain.Listable](items []T) int {
	return count(items, InSection[T](AnySection))
}

// CountInSection counts items in s.
func CountInSection[T domain.Listable](items []T, s domain.Section) int {
	return count(items, InSection[T](s))
}

// BadgeCount counts the items of the all-sections listing that have unread
// comments.
func BadgeCount[T domain.Listable](items []T, settings domain.Settings) int {
	p := predicate.And(Predicate[T](Query{Section: AnySection}, settings), HasUnread[T]())
	return count(items, p)
}

// BadgeCountInSection counts the items in s that have unread comments.
func BadgeCountInSection[T domain.Listable](items []T, s domain.Section) int {
	return count(items, predicate.And(InSection[T](s), HasUnread[T]()))
}

// CountOpen counts items whose remote condition is open.
func CountOpen[T domain.Listable](items []T) int {
	return count(items, func(it T) bool { return it.Base().Condition == domain.Open })
}

// MarkEverythingRead calls catchUp on every item in s, or on every item in a
// real section when s is None. It returns the number of items touched.
func MarkEverythingRead[T domain.Listable](items []T, s domain.Section, catchUp func(T)) int {
	target := s
	if s == domain.SectionNone {
		target = AnySection
	}
	matched := predicate.Filter(items, InSection[T](target))
	for _, it := range matched {
		catchUp(it)
	}
	return len(matched)
}

func count[T any](items []T, p predicate.Predicate[T]) int {
	n := 0
	for _, it := range items {
		if p(it) {
			n++
		}
	}
	return n
}
