package domain

// SectionStats holds the item and unread counts for a single section.
type SectionStats struct {
	Section string `json:"section"`
	Title   string `json:"title"`
	Items   int    `json:"items"`
	Unread  int    `json:"unread"`
}

// KindStats aggregates the sections of one item kind.
type KindStats struct {
	Total    int            `json:"total"`
	Open     int            `json:"open"`
	Badge    int            `json:"badge"`
	Sections []SectionStats `json:"sections"`
}

// Stats is the summary printed by the status command.
type Stats struct {
	PullRequests          KindStats  `json:"pull_requests"`
	Issues                *KindStats `json:"issues,omitempty"`
	Badge                 int        `json:"badge"`
	LastSuccessfulRefresh string     `json:"last_successful_refresh,omitempty"`
}
