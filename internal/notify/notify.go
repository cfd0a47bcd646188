// Package notify works out which local notifications a sync pass produced
// and hands them to a dispatcher.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/naka-gawa/github-trailer/internal/domain"
)

// Kind is the type of a notification.
type Kind int

const (
	NewPullRequest Kind = iota + 1
	PullRequestReopened
	PullRequestMerged
	PullRequestClosed
	NewPullRequestAssigned
	NewIssue
	IssueReopened
	IssueClosed
	NewIssueAssigned
)

var kindNames = map[Kind]string{
	NewPullRequest:         "new_pr",
	PullRequestReopened:    "pr_reopened",
	PullRequestMerged:      "pr_merged",
	PullRequestClosed:      "pr_closed",
	NewPullRequestAssigned: "new_pr_assigned",
	NewIssue:               "new_issue",
	IssueReopened:          "issue_reopened",
	IssueClosed:            "issue_closed",
	NewIssueAssigned:       "new_issue_assigned",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Notification is a single local notification about one item.
type Notification struct {
	Kind  Kind
	Key   domain.Key
	Repo  string
	Title string
	URL   string
}

// Headline is the one-line text of the notification.
func (n Notification) Headline() string {
	return fmt.Sprintf("%s: %s", n.Repo, n.Title)
}

func notification(kind Kind, it *domain.Item) Notification {
	return Notification{Kind: kind, Key: it.Key, Repo: it.RepoFullName, Title: it.Title, URL: it.WebURL}
}

// Collect inspects the records touched by the last sync pass. It must run
// after categorization and before post-sync actions are reset.
func Collect(prs []*domain.PullRequest, issues []*domain.Issue) []Notification {
	var out []Notification
	for _, pr := range prs {
		if kind, ok := itemKind(&pr.Item, NewPullRequest, PullRequestReopened, PullRequestMerged, PullRequestClosed, NewPullRequestAssigned); ok {
			out = append(out, notification(kind, &pr.Item))
		}
	}
	for _, issue := range issues {
		if kind, ok := itemKind(&issue.Item, NewIssue, IssueReopened, 0, IssueClosed, NewIssueAssigned); ok {
			out = append(out, notification(kind, &issue.Item))
		}
	}
	return out
}

func itemKind(it *domain.Item, created, reopened, merged, closed, assigned Kind) (Kind, bool) {
	if it.Section == domain.SectionNone {
		return 0, false
	}
	switch it.PostSyncAction {
	case domain.New:
		if it.IsNewAssignment {
			return assigned, true
		}
		return created, true
	case domain.Updated:
		switch {
		case it.Condition == domain.Merged && merged != 0:
			return merged, true
		case it.Condition == domain.Closed:
			return closed, true
		case it.Reopened:
			return reopened, true
		case it.IsNewAssignment:
			return assigned, true
		}
	}
	return 0, false
}

// Dispatcher delivers notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, notifications []Notification) error
}

// LogDispatcher writes notifications to the logger.
type LogDispatcher struct {
	Logger *slog.Logger
}

func (d LogDispatcher) Dispatch(ctx context.Context, notifications []Notification) error {
	for _, n := range notifications {
		d.Logger.InfoContext(ctx, n.Headline(), "kind", n.Kind, "key", n.Key, "url", n.URL)
	}
	return nil
}
