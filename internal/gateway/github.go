// Package gateway provides a gateway to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/github-trailer/internal/domain"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
)

const perPage = 100

// Fetcher defines the behavior of a gateway for fetching information from a
// single GitHub server.
type Fetcher interface {
	FetchViewerLogin(ctx context.Context) (string, error)
	FetchPullRequests(ctx context.Context, repo domain.Repo) ([]PullRequestPayload, error)
	FetchIssues(ctx context.Context, repo domain.Repo) ([]IssuePayload, error)
	// FetchPullRequest and FetchIssue return domain.ErrNotFound when the item
	// no longer exists.
	FetchPullRequest(ctx context.Context, repo domain.Repo, number int) (PullRequestPayload, error)
	FetchIssue(ctx context.Context, repo domain.Repo, number int) (IssuePayload, error)
	FetchStatuses(ctx context.Context, repo domain.Repo, ref string) ([]StatusPayload, error)
	FetchRateLimit(ctx context.Context) (domain.Quota, error)
}

// GitHubGateway is the concrete implementation of the Fetcher interface.
type GitHubGateway struct {
	restClient    *github.Client
	graphqlClient *githubv4.Client
	logger        *slog.Logger
}

// viewerQuery resolves the login of the authenticated user.
type viewerQuery struct {
	Viewer struct {
		Login githubv4.String
	}
}

// Endpoints points a gateway at GitHub Enterprise. Empty values mean github.com.
type Endpoints struct {
	APIURL     string
	GraphQLURL string
}

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway.
func NewGitHubGateway(token string, endpoints Endpoints, logger *slog.Logger) (Fetcher, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: ts,
		},
	}

	restClient := github.NewClient(httpClient)
	if endpoints.APIURL != "" {
		restClient, err = restClient.WithEnterpriseURLs(endpoints.APIURL, endpoints.APIURL)
		if err != nil {
			return nil, fmt.Errorf("failed to configure enterprise URL %q: %w", endpoints.APIURL, err)
		}
	}
	graphqlClient := githubv4.NewClient(httpClient)
	if endpoints.GraphQLURL != "" {
		graphqlClient = githubv4.NewEnterpriseClient(endpoints.GraphQLURL, httpClient)
	}

	return &GitHubGateway{
		restClient:    restClient,
		graphqlClient: graphqlClient,
		logger:        logger,
	}, nil
}

// FetchViewerLogin returns the login the token belongs to.
func (g *GitHubGateway) FetchViewerLogin(ctx context.Context) (string, error) {
	var q viewerQuery
	if err := g.graphqlClient.Query(ctx, &q, nil); err != nil {
		return "", fmt.Errorf("failed to execute GraphQL query for viewer: %w", err)
	}
	return string(q.Viewer.Login), nil
}

func (g *GitHubGateway) FetchPullRequests(ctx context.Context, repo domain.Repo) ([]PullRequestPayload, error) {
	opts := &github.PullRequestListOptions{State: "open", ListOptions: github.ListOptions{PerPage: perPage}}
	var payloads []PullRequestPayload
	for {
		prs, resp, err := g.restClient.PullRequests.List(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list pull requests for %s: %w", repo.FullName(), err)
		}
		for _, pr := range prs {
			payloads = append(payloads, toPullRequestPayload(pr))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
		g.logger.Debug("fetching next page of pull requests", "repo", repo.FullName(), "page", resp.NextPage)
	}
	g.logger.Debug("fetched pull requests", "repo", repo.FullName(), "count", len(payloads))
	return payloads, nil
}

func (g *GitHubGateway) FetchIssues(ctx context.Context, repo domain.Repo) ([]IssuePayload, error) {
	opts := &github.IssueListByRepoOptions{State: "open", ListOptions: github.ListOptions{PerPage: perPage}}
	var payloads []IssuePayload
	for {
		issues, resp, err := g.restClient.Issues.ListByRepo(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list issues for %s: %w", repo.FullName(), err)
		}
		for _, issue := range issues {
			// The issues endpoint also lists pull requests.
			if issue.IsPullRequest() {
				continue
			}
			payloads = append(payloads, toIssuePayload(issue))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
		g.logger.Debug("fetching next page of issues", "repo", repo.FullName(), "page", resp.NextPage)
	}
	g.logger.Debug("fetched issues", "repo", repo.FullName(), "count", len(payloads))
	return payloads, nil
}

func (g *GitHubGateway) FetchPullRequest(ctx context.Context, repo domain.Repo, number int) (PullRequestPayload, error) {
	pr, _, err := g.restClient.PullRequests.Get(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		return PullRequestPayload{}, fmt.Errorf("failed to get pull request %s#%d: %w", repo.FullName(), number, notFound(err))
	}
	return toPullRequestPayload(pr), nil
}

func (g *GitHubGateway) FetchIssue(ctx context.Context, repo domain.Repo, number int) (IssuePayload, error) {
	issue, _, err := g.restClient.Issues.Get(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		return IssuePayload{}, fmt.Errorf("failed to get issue %s#%d: %w", repo.FullName(), number, notFound(err))
	}
	return toIssuePayload(issue), nil
}

func (g *GitHubGateway) FetchStatuses(ctx context.Context, repo domain.Repo, ref string) ([]StatusPayload, error) {
	opts := &github.ListOptions{PerPage: perPage}
	var payloads []StatusPayload
	for {
		statuses, resp, err := g.restClient.Repositories.ListStatuses(ctx, repo.Owner, repo.Name, ref, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list statuses for %s@%s: %w", repo.FullName(), ref, err)
		}
		for _, s := range statuses {
			payloads = append(payloads, StatusPayload{
				ID:          s.ID,
				State:       s.State,
				Description: s.Description,
				TargetURL:   s.TargetURL,
				Context:     s.Context,
				CreatedAt:   timeOf(s.CreatedAt),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return payloads, nil
}

// rateLimitResponse is the subset of GET /rate_limit we read.
type rateLimitResponse struct {
	Resources struct {
		Core *github.Rate `json:"core"`
	} `json:"resources"`
}

// FetchRateLimit reads the core REST quota. The endpoint itself is free.
func (g *GitHubGateway) FetchRateLimit(ctx context.Context) (domain.Quota, error) {
	req, err := g.restClient.NewRequest(http.MethodGet, "rate_limit", nil)
	if err != nil {
		return domain.Quota{}, fmt.Errorf("failed to build rate limit request: %w", err)
	}
	var body rateLimitResponse
	if _, err := g.restClient.Do(ctx, req, &body); err != nil {
		return domain.Quota{}, fmt.Errorf("failed to fetch rate limit: %w", err)
	}
	core := body.Resources.Core
	if core == nil {
		return domain.Quota{}, nil
	}
	return domain.Quota{
		Remaining: core.Remaining,
		Limit:     core.Limit,
		ResetAt:   core.Reset.Time,
	}, nil
}

func notFound(err error) error {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}
	return err
}

func toPullRequestPayload(pr *github.PullRequest) PullRequestPayload {
	var headSHA *string
	if pr.Head != nil {
		headSHA = pr.Head.SHA
	}
	links := pr.GetLinks()
	return PullRequestPayload{
		ItemPayload: ItemPayload{
			ID:        pr.GetID(),
			URL:       pr.URL,
			HTMLURL:   pr.HTMLURL,
			Number:    pr.Number,
			State:     pr.State,
			Title:     pr.Title,
			Body:      pr.Body,
			User:      toUser(pr.User),
			Assignee:  toUser(pr.Assignee),
			Labels:    toLabels(pr.Labels),
			Comments:  pr.Comments,
			CreatedAt: timeOf(pr.CreatedAt),
			UpdatedAt: timeOf(pr.UpdatedAt),
		},
		ReviewComments:     pr.ReviewComments,
		Mergeable:          pr.Mergeable,
		Merged:             pr.Merged,
		HeadSHA:            headSHA,
		RequestedReviewers: toUsers(pr.RequestedReviewers),
		Links: PullRequestLinks{
			Comments:       nonEmpty(links.GetComments().GetHRef()),
			ReviewComments: nonEmpty(links.GetReviewComments().GetHRef()),
			Statuses:       nonEmpty(links.GetStatuses().GetHRef()),
			Issue:          nonEmpty(links.GetIssue().GetHRef()),
		},
	}
}

func toIssuePayload(issue *github.Issue) IssuePayload {
	return IssuePayload{
		ItemPayload: ItemPayload{
			ID:        issue.GetID(),
			URL:       issue.URL,
			HTMLURL:   issue.HTMLURL,
			Number:    issue.Number,
			State:     issue.State,
			Title:     issue.Title,
			Body:      issue.Body,
			User:      toUser(issue.User),
			Assignee:  toUser(issue.Assignee),
			Labels:    toLabels(issue.Labels),
			Comments:  issue.Comments,
			CreatedAt: timeOf(issue.CreatedAt),
			UpdatedAt: timeOf(issue.UpdatedAt),
		},
		CommentsURL: issue.CommentsURL,
	}
}

func toUser(u *github.User) *UserPayload {
	if u == nil {
		return nil
	}
	return &UserPayload{ID: u.ID, Login: u.Login, AvatarURL: u.AvatarURL}
}

func toUsers(users []*github.User) []UserPayload {
	out := make([]UserPayload, 0, len(users))
	for _, u := range users {
		if u == nil {
			continue
		}
		out = append(out, *toUser(u))
	}
	return out
}

func toLabels(labels []*github.Label) []LabelPayload {
	out := make([]LabelPayload, 0, len(labels))
	for _, l := range labels {
		if l == nil {
			continue
		}
		out = append(out, LabelPayload{Name: l.Name, Color: l.Color})
	}
	return out
}

func timeOf(ts *github.Timestamp) *time.Time {
	if ts == nil {
		return nil
	}
	t := ts.Time
	return &t
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
