package ingest

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/naka-gawa/github-trailer/internal/domain"
	"github.com/naka-gawa/github-trailer/internal/gateway"
	"github.com/naka-gawa/github-trailer/internal/store"
)

func inRepo(it *domain.Item, repo domain.Repo) bool {
	return it.Server == repo.Server && strings.EqualFold(it.RepoFullName, repo.FullName())
}

// MarkPullRequestsForDeletion flags every open pull request of repo as Delete.
// Records that show up in the repo's listing are un-flagged again by the
// merge. Merged and closed records are left alone so they are not refetched
// on every cycle.
func MarkPullRequestsForDeletion(m *store.Model, repo domain.Repo) int {
	marked := 0
	for _, pr := range m.PullRequests {
		if inRepo(&pr.Item, repo) && pr.Condition == domain.Open {
			pr.PostSyncAction = domain.Delete
			marked++
		}
	}
	return marked
}

// MarkIssuesForDeletion is MarkPullRequestsForDeletion for issues.
func MarkIssuesForDeletion(m *store.Model, repo domain.Repo) int {
	marked := 0
	for _, issue := range m.Issues {
		if inRepo(&issue.Item, repo) && issue.Condition == domain.Open {
			issue.PostSyncAction = domain.Delete
			marked++
		}
	}
	return marked
}

// PendingPullRequests lists the pull requests of repo still flagged Delete
// after its listing was merged, ordered by number.
func PendingPullRequests(m *store.Model, repo domain.Repo) []*domain.PullRequest {
	var out []*domain.PullRequest
	for _, pr := range m.PullRequests {
		if inRepo(&pr.Item, repo) && pr.PostSyncAction == domain.Delete {
			out = append(out, pr)
		}
	}
	slices.SortFunc(out, func(a, b *domain.PullRequest) int { return cmp.Compare(a.Number, b.Number) })
	return out
}

// PendingIssues is PendingPullRequests for issues.
func PendingIssues(m *store.Model, repo domain.Repo) []*domain.Issue {
	var out []*domain.Issue
	for _, issue := range m.Issues {
		if inRepo(&issue.Item, repo) && issue.PostSyncAction == domain.Delete {
			out = append(out, issue)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Issue) int { return cmp.Compare(a.Number, b.Number) })
	return out
}

// ClosePullRequest resolves a pull request that dropped out of the open
// listing using its individually fetched payload.
func ClosePullRequest(m *store.Model, pr *domain.PullRequest, p gateway.PullRequestPayload) {
	switch {
	case gateway.Or(p.Merged, false):
		pr.Condition = domain.Merged
	case gateway.Or(p.State, "") == "closed":
		pr.Condition = domain.Closed
	default:
		// Still open; it was likely missed by pagination. Keep it as is.
		pr.PostSyncAction = domain.NoAction
		return
	}
	pr.PostSyncAction = domain.Updated
	pr.State = gateway.Or(p.State, pr.State)
	pr.UpdatedAt = gateway.Or(p.UpdatedAt, pr.UpdatedAt)
	m.Touch()
}

// CloseIssue is ClosePullRequest for issues.
func CloseIssue(m *store.Model, issue *domain.Issue, p gateway.IssuePayload) {
	if gateway.Or(p.State, "") != "closed" {
		issue.PostSyncAction = domain.NoAction
		return
	}
	issue.Condition = domain.Closed
	issue.PostSyncAction = domain.Updated
	issue.State = "closed"
	issue.UpdatedAt = gateway.Or(p.UpdatedAt, issue.UpdatedAt)
	m.Touch()
}

// Keep clears the Delete flag on a record whose fate could not be resolved,
// so a transient failure never drops it.
func Keep(it *domain.Item) {
	if it.PostSyncAction == domain.Delete {
		it.PostSyncAction = domain.NoAction
	}
}

// ReplaceStatuses swaps the pull request's statuses for the payload's.
func ReplaceStatuses(m *store.Model, pr *domain.PullRequest, payloads []gateway.StatusPayload) {
	statuses := make([]domain.Status, 0, len(payloads))
	for _, p := range payloads {
		statuses = append(statuses, domain.Status{
			RemoteID:    gateway.Or(p.ID, 0),
			Description: gateway.Or(p.Description, ""),
			TargetURL:   gateway.Or(p.TargetURL, ""),
			State:       gateway.Or(p.State, ""),
			Context:     gateway.Or(p.Context, ""),
			CreatedAt:   gateway.Or(p.CreatedAt, time.Time{}),
		})
	}
	pr.Statuses = statuses
	m.Touch()
}
