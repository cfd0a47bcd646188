// Package ingest merges decoded GitHub payloads into the local model.
//
// Ingestion decides the per-cycle postSyncAction of every record it touches,
// refreshes the record's fields when the payload represents a real change and
// always advances the lifecycle condition. It never computes sections; that
// is left to the categorize package once the whole store has been merged.
package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/naka-gawa/github-trailer/internal/domain"
	"github.com/naka-gawa/github-trailer/internal/gateway"
	"github.com/naka-gawa/github-trailer/internal/store"
)

// ErrMissingID is returned for payloads without a remote id.
var ErrMissingID = errors.New("payload has no id")

// Merger merges payloads for one cycle. It must be used while holding the
// store's write lock.
type Merger struct {
	logger *slog.Logger
}

// NewMerger creates a Merger.
func NewMerger(logger *slog.Logger) *Merger {
	return &Merger{logger: logger}
}

// PullRequest merges one pull request payload and returns the live record.
func (g *Merger) PullRequest(m *store.Model, p gateway.PullRequestPayload, server domain.Server, repo domain.Repo) (*domain.PullRequest, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("merge pull request in %s: %w", repo.FullName(), ErrMissingID)
	}
	pr, created := m.PullRequestOrNew(domain.Key{Server: server.Label, RemoteID: p.ID})
	pr.PostSyncAction = actionFor(created, pr.UpdatedAt, p.UpdatedAt)

	if pr.PostSyncAction != domain.NoAction {
		mergeItem(&pr.Item, p.ItemPayload, created, server, repo)
		if p.Mergeable != nil {
			pr.Mergeable = domain.TristateOf(p.Mergeable)
		}
		pr.HeadSHA = gateway.Or(p.HeadSHA, "")
		pr.IssueCommentLink = gateway.Or(p.Links.Comments, "")
		pr.ReviewCommentLink = gateway.Or(p.Links.ReviewComments, "")
		pr.StatusesLink = gateway.Or(p.Links.Statuses, "")
		pr.IssueURL = gateway.Or(p.Links.Issue, "")
		if server.UserLogin != "" && slices.ContainsFunc(p.RequestedReviewers, func(u gateway.UserPayload) bool {
			return strings.EqualFold(u.LoginOrEmpty(), server.UserLogin)
		}) {
			pr.Participated = true
		}
		m.Touch()
	}
	advanceCondition(m, &pr.Item)

	g.logger.Debug("merged pull request", "key", pr.Key, "number", pr.Number, "action", pr.PostSyncAction)
	return pr, nil
}

// PullRequestDetail merges what only the single pull request endpoint
// returns: the comment totals, review comments included, and mergeability.
// pr must have been merged from the listing in the same cycle.
func (g *Merger) PullRequestDetail(m *store.Model, pr *domain.PullRequest, p gateway.PullRequestPayload) {
	pr.Mergeable = domain.TristateOf(p.Mergeable)
	if p.Comments != nil || p.ReviewComments != nil {
		total := gateway.Or(p.Comments, 0) + gateway.Or(p.ReviewComments, 0)
		mergeComments(&pr.Item, total, pr.PostSyncAction == domain.New)
	}
	if sha := gateway.Or(p.HeadSHA, ""); sha != "" {
		pr.HeadSHA = sha
	}
	m.Touch()
	g.logger.Debug("merged pull request detail", "key", pr.Key, "comments", pr.TotalComments, "unread", pr.UnreadComments)
}

// Issue merges one issue payload and returns the live record.
func (g *Merger) Issue(m *store.Model, p gateway.IssuePayload, server domain.Server, repo domain.Repo) (*domain.Issue, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("merge issue in %s: %w", repo.FullName(), ErrMissingID)
	}
	issue, created := m.IssueOrNew(domain.Key{Server: server.Label, RemoteID: p.ID})
	issue.PostSyncAction = actionFor(created, issue.UpdatedAt, p.UpdatedAt)

	if issue.PostSyncAction != domain.NoAction {
		mergeItem(&issue.Item, p.ItemPayload, created, server, repo)
		issue.CommentsLink = issueCommentsLink(repo, issue.Number)
		m.Touch()
	}
	advanceCondition(m, &issue.Item)

	g.logger.Debug("merged issue", "key", issue.Key, "number", issue.Number, "action", issue.PostSyncAction)
	return issue, nil
}

// actionFor decides the postSyncAction of a record from its stored and
// incoming updated-at timestamps.
func actionFor(created bool, stored time.Time, incoming *time.Time) domain.PostSyncAction {
	switch {
	case created:
		return domain.New
	case !gateway.Or(incoming, time.Time{}).Equal(stored):
		return domain.Updated
	default:
		return domain.NoAction
	}
}

func mergeItem(it *domain.Item, p gateway.ItemPayload, created bool, server domain.Server, repo domain.Repo) {
	it.URL = gateway.Or(p.URL, "")
	it.WebURL = gateway.Or(p.HTMLURL, "")
	it.Number = gateway.Or(p.Number, 0)
	it.State = gateway.Or(p.State, "")
	it.Title = gateway.Or(p.Title, "")
	it.Body = gateway.Or(p.Body, "")
	it.RepoFullName = repo.FullName()
	it.CreatedAt = gateway.Or(p.CreatedAt, time.Time{})
	it.UpdatedAt = gateway.Or(p.UpdatedAt, time.Time{})

	it.Author = domain.Author{}
	if p.User != nil {
		it.Author = domain.Author{
			ID:        gateway.Or(p.User.ID, 0),
			Login:     gateway.Or(p.User.Login, ""),
			AvatarURL: gateway.Or(p.User.AvatarURL, ""),
		}
	}
	it.CreatedByMe = server.UserLogin != "" && strings.EqualFold(it.Author.Login, server.UserLogin)

	if p.Comments != nil {
		mergeComments(it, *p.Comments, created)
	}
	mergeAssignment(it, p.Assignee, server)
	mergeLabels(it, p.Labels)
}

// mergeComments counts comments added since the last merge as unread. A new
// item starts with all of its comments unread unless the user opened it.
func mergeComments(it *domain.Item, total int, created bool) {
	switch {
	case created && !it.CreatedByMe:
		it.UnreadComments = total
	case total > it.TotalComments && !created:
		it.UnreadComments += total - it.TotalComments
	}
	it.TotalComments = total
}

func mergeAssignment(it *domain.Item, assignee *gateway.UserPayload, server domain.Server) {
	if assignee == nil {
		it.AssignedToMe = false
		it.IsNewAssignment = false
		return
	}
	assigned := server.UserLogin != "" && strings.EqualFold(assignee.LoginOrEmpty(), server.UserLogin)
	it.IsNewAssignment = assigned && !it.AssignedToMe
	it.AssignedToMe = assigned
}

// mergeLabels replaces the item's labels with the payload's. Labels that are
// still present keep their position.
func mergeLabels(it *domain.Item, payloads []gateway.LabelPayload) {
	for i := range it.Labels {
		it.Labels[i].PostSyncAction = domain.Delete
	}
	for _, lp := range payloads {
		name := gateway.Or(lp.Name, "")
		if name == "" {
			continue
		}
		color := gateway.Or(lp.Color, "")
		if i := slices.IndexFunc(it.Labels, func(l domain.Label) bool { return l.Name == name }); i >= 0 {
			it.Labels[i].Color = color
			it.Labels[i].PostSyncAction = domain.Updated
			continue
		}
		it.Labels = append(it.Labels, domain.Label{Name: name, Color: color, PostSyncAction: domain.New})
	}
	it.Labels = slices.DeleteFunc(it.Labels, func(l domain.Label) bool { return l.PostSyncAction == domain.Delete })
	for i := range it.Labels {
		it.Labels[i].PostSyncAction = domain.NoAction
	}
}

func advanceCondition(m *store.Model, it *domain.Item) {
	next, reopened := domain.NextCondition(it.Condition)
	if next != it.Condition || reopened != it.Reopened {
		m.Touch()
	}
	it.Condition, it.Reopened = next, reopened
}

func issueCommentsLink(repo domain.Repo, number int) string {
	if number == 0 {
		return ""
	}
	return fmt.Sprintf("/repos/%s/issues/%d/comments", repo.FullName(), number)
}
