package domain

import "time"

// SortField selects the secondary ordering of item listings.
type SortField string

const (
	SortByCreated SortField = "created"
	SortByUpdated SortField = "updated"
	SortByTitle   SortField = "title"
	SortByNumber  SortField = "number"
)

// StatusFilterMode decides how status filtering terms are applied.
type StatusFilterMode string

const (
	StatusFilterAll     StatusFilterMode = "all"
	StatusFilterInclude StatusFilterMode = "include"
	StatusFilterExclude StatusFilterMode = "exclude"
)

// Settings are the global, user-controlled preferences consulted by the sync
// engine. None of them are visible on a single item, which is why sections are
// always computed over the whole store.
type Settings struct {
	Period                            time.Duration
	GroupByRepo                       bool
	SortField                         SortField
	SortDescending                    bool
	IncludeReposInFilter              bool
	IncludeLabelsInFilter             bool
	IncludeStatusesInFilter           bool
	HideUncommented                   bool
	StatusFilteringMode               StatusFilterMode
	StatusFilteringTerms              []string
	ShowIssuesMenu                    bool
	MarkUnmergeableOnUserSectionsOnly bool
	LowWaterMark                      float64
}
