package gateway

import "time"

// The payload types are the validated shape of what the GitHub API returns.
// Every optional field is a pointer; the accessor methods document the
// default used when the field is missing, so ingestion never fails on a
// partial payload.

// UserPayload is the author or assignee of an item.
type UserPayload struct {
	ID        *int64
	Login     *string
	AvatarURL *string
}

// LabelPayload is one label attached to an item.
type LabelPayload struct {
	Name  *string
	Color *string
}

// ItemPayload holds the fields pull requests and issues share.
type ItemPayload struct {
	ID        int64
	URL       *string
	HTMLURL   *string
	Number    *int
	State     *string
	Title     *string
	Body      *string
	User      *UserPayload
	Assignee  *UserPayload
	Labels    []LabelPayload
	Comments  *int
	CreatedAt *time.Time
	UpdatedAt *time.Time
}

// PullRequestLinks are the hypermedia links of a pull request.
type PullRequestLinks struct {
	Comments       *string
	ReviewComments *string
	Statuses       *string
	Issue          *string
}

// PullRequestPayload is one pull request. Mergeable, Comments and
// ReviewComments are only present on the single pull request endpoint;
// Mergeable is also nil while GitHub is still computing it.
type PullRequestPayload struct {
	ItemPayload
	ReviewComments     *int
	Mergeable          *bool
	Merged             *bool
	HeadSHA            *string
	RequestedReviewers []UserPayload
	Links              PullRequestLinks
}

// IssuePayload is one issue.
type IssuePayload struct {
	ItemPayload
	CommentsURL *string
}

// StatusPayload is one commit status.
type StatusPayload struct {
	ID          *int64
	State       *string
	Description *string
	TargetURL   *string
	Context     *string
	CreatedAt   *time.Time
}

// Valid reports whether the payload carries an identity. Payloads without one
// are skipped at the ingestion boundary.
func (p ItemPayload) Valid() bool {
	return p.ID != 0
}

// Or dereferences p, falling back to def when p is nil.
func Or[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// LoginOrEmpty is the user's login, or "" when the user is missing.
func (u *UserPayload) LoginOrEmpty() string {
	if u == nil {
		return ""
	}
	return Or(u.Login, "")
}
