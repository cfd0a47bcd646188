package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/github-trailer/internal/domain"
	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRepo = domain.Repo{Server: "gh", Owner: "org", Name: "repo", Enabled: true}

// setupTestGateway creates a GitHubGateway that communicates with a mock HTTP server.
func setupTestGateway(t *testing.T, handler http.Handler) (*GitHubGateway, *httptest.Server) {
	server := httptest.NewServer(handler)

	// Setup REST client to point to the mock server.
	restClient := github.NewClient(server.Client())
	baseURL, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	restClient.BaseURL = baseURL

	// Use NewEnterpriseClient to point the GraphQL client to our mock server's URL.
	graphqlClient := githubv4.NewEnterpriseClient(server.URL+"/graphql", server.Client())

	gateway := &GitHubGateway{
		restClient:    restClient,
		graphqlClient: graphqlClient,
		logger:        slog.New(slog.DiscardHandler),
	}

	return gateway, server
}

func TestGitHubGateway_FetchPullRequests(t *testing.T) {
	testCases := []struct {
		name           string
		handlerFunc    func(w http.ResponseWriter, r *http.Request)
		expectError    bool
		expectedErrMsg string
		check          func(t *testing.T, payloads []PullRequestPayload)
	}{
		{
			name: "happy path - maps every field",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/repos/org/repo/pulls", r.URL.Path)
				assert.Equal(t, "open", r.URL.Query().Get("state"))
				fmt.Fprint(w, `[{
					"id": 11, "number": 7, "state": "open", "title": "Fix build", "body": "details",
					"url": "https://api.github.com/repos/org/repo/pulls/7",
					"html_url": "https://github.com/org/repo/pull/7",
					"user": {"id": 3, "login": "octocat", "avatar_url": "https://avatars/3"},
					"assignee": {"login": "hubot"},
					"requested_reviewers": [{"login": "reviewer"}],
					"labels": [{"name": "bug", "color": "ff0000"}],
					"head": {"sha": "abc123"},
					"created_at": "2024-01-01T00:00:00Z",
					"updated_at": "2024-01-02T00:00:00Z",
					"_links": {"statuses": {"href": "https://api.github.com/statuses/abc123"}}
				}]`)
			},
			check: func(t *testing.T, payloads []PullRequestPayload) {
				require.Len(t, payloads, 1)
				p := payloads[0]
				assert.Equal(t, int64(11), p.ID)
				assert.Equal(t, 7, Or(p.Number, 0))
				assert.Equal(t, "Fix build", Or(p.Title, ""))
				assert.Equal(t, "octocat", p.User.LoginOrEmpty())
				assert.Equal(t, "hubot", p.Assignee.LoginOrEmpty())
				require.Len(t, p.RequestedReviewers, 1)
				assert.Equal(t, "reviewer", p.RequestedReviewers[0].LoginOrEmpty())
				require.Len(t, p.Labels, 1)
				assert.Equal(t, "bug", Or(p.Labels[0].Name, ""))
				assert.Nil(t, p.Mergeable)
				assert.Nil(t, p.Comments)
				assert.Nil(t, p.ReviewComments)
				assert.Equal(t, "abc123", Or(p.HeadSHA, ""))
				assert.Equal(t, "https://api.github.com/statuses/abc123", Or(p.Links.Statuses, ""))
				assert.Nil(t, p.Links.Comments)
				assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), p.UpdatedAt.UTC())
			},
		},
		{
			name: "missing fields stay nil",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `[{"id": 12}]`)
			},
			check: func(t *testing.T, payloads []PullRequestPayload) {
				require.Len(t, payloads, 1)
				p := payloads[0]
				assert.True(t, p.Valid())
				assert.Nil(t, p.Title)
				assert.Nil(t, p.User)
				assert.Nil(t, p.Mergeable)
				assert.Nil(t, p.HeadSHA)
				assert.Equal(t, "", p.Assignee.LoginOrEmpty())
			},
		},
		{
			name: "error case - GitHub API returns an error",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{"message": "Internal Server Error"}`)
			},
			expectError:    true,
			expectedErrMsg: "failed to list pull requests for org/repo",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gateway, server := setupTestGateway(t, http.HandlerFunc(tc.handlerFunc))
			defer server.Close()
			payloads, err := gateway.FetchPullRequests(context.Background(), testRepo)
			if tc.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tc.expectedErrMsg)
			} else {
				assert.NoError(t, err)
				tc.check(t, payloads)
			}
		})
	}
}

func TestGitHubGateway_FetchIssues_SkipsPullRequests(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/org/repo/issues", r.URL.Path)
		fmt.Fprint(w, `[
			{"id": 1, "number": 1, "title": "Crash", "comments": 4, "comments_url": "https://api.github.com/repos/org/repo/issues/1/comments"},
			{"id": 2, "number": 2, "title": "A PR", "pull_request": {"url": "https://api.github.com/repos/org/repo/pulls/2"}}
		]`)
	}
	gateway, server := setupTestGateway(t, http.HandlerFunc(handler))
	defer server.Close()

	payloads, err := gateway.FetchIssues(context.Background(), testRepo)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, int64(1), payloads[0].ID)
	assert.Equal(t, 4, Or(payloads[0].Comments, 0))
	assert.Equal(t, "https://api.github.com/repos/org/repo/issues/1/comments", Or(payloads[0].CommentsURL, ""))
}

func TestGitHubGateway_FetchPullRequest_NotFound(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	}
	gateway, server := setupTestGateway(t, http.HandlerFunc(handler))
	defer server.Close()

	_, err := gateway.FetchPullRequest(context.Background(), testRepo, 9)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = gateway.FetchIssue(context.Background(), testRepo, 9)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGitHubGateway_FetchPullRequest_Merged(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/org/repo/pulls/9", r.URL.Path)
		fmt.Fprint(w, `{"id": 90, "number": 9, "state": "closed", "merged": true,
			"mergeable": null, "comments": 3, "review_comments": 2}`)
	}
	gateway, server := setupTestGateway(t, http.HandlerFunc(handler))
	defer server.Close()

	p, err := gateway.FetchPullRequest(context.Background(), testRepo, 9)
	require.NoError(t, err)
	assert.True(t, Or(p.Merged, false))
	assert.Equal(t, "closed", Or(p.State, ""))
	assert.Nil(t, p.Mergeable)
	assert.Equal(t, 3, Or(p.Comments, 0))
	assert.Equal(t, 2, Or(p.ReviewComments, 0))
}

func TestGitHubGateway_FetchStatuses(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/org/repo/commits/abc123/statuses", r.URL.Path)
		fmt.Fprint(w, `[{"id": 5, "state": "failure", "description": "Build failed", "target_url": "https://ci/5", "context": "ci", "created_at": "2024-01-03T00:00:00Z"}]`)
	}
	gateway, server := setupTestGateway(t, http.HandlerFunc(handler))
	defer server.Close()

	payloads, err := gateway.FetchStatuses(context.Background(), testRepo, "abc123")
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, "Build failed", Or(payloads[0].Description, ""))
	assert.Equal(t, "https://ci/5", Or(payloads[0].TargetURL, ""))
	assert.Equal(t, "failure", Or(payloads[0].State, ""))
}

func TestGitHubGateway_FetchRateLimit(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rate_limit", r.URL.Path)
		fmt.Fprint(w, `{"resources": {"core": {"limit": 5000, "remaining": 42, "reset": 1700000000}}}`)
	}
	gateway, server := setupTestGateway(t, http.HandlerFunc(handler))
	defer server.Close()

	quota, err := gateway.FetchRateLimit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5000, quota.Limit)
	assert.Equal(t, 42, quota.Remaining)
	assert.Equal(t, int64(1700000000), quota.ResetAt.Unix())
}

func TestGitHubGateway_FetchViewerLogin(t *testing.T) {
	testCases := []struct {
		name           string
		responseBody   string
		expected       string
		expectError    bool
		expectedErrMsg string
	}{
		{
			name:         "happy path",
			responseBody: `{"data":{"viewer":{"login":"octocat"}}}`,
			expected:     "octocat",
		},
		{
			name:           "error case",
			responseBody:   `{"errors":[{"message":"Bad credentials"}]}`,
			expectError:    true,
			expectedErrMsg: "failed to execute GraphQL query for viewer",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := func(w http.ResponseWriter, r *http.Request) {
				body, err := io.ReadAll(r.Body)
				require.NoError(t, err)
				assert.Contains(t, string(body), "viewer")
				fmt.Fprint(w, tc.responseBody)
			}
			gateway, server := setupTestGateway(t, http.HandlerFunc(handler))
			defer server.Close()

			login, err := gateway.FetchViewerLogin(context.Background())
			if tc.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tc.expectedErrMsg)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expected, login)
			}
		})
	}
}

func TestOr(t *testing.T) {
	n := 3
	assert.Equal(t, 3, Or(&n, 0))
	assert.Equal(t, 9, Or[int](nil, 9))
}
