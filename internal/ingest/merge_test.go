package ingest

import (
	"log/slog"
	"testing"
	"time"

	"github.com/naka-gawa/github-trailer/internal/domain"
	"github.com/naka-gawa/github-trailer/internal/gateway"
	"github.com/naka-gawa/github-trailer/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testServer = domain.Server{Label: "gh", UserLogin: "me", GoodToGo: true}
	testRepo   = domain.Repo{Server: "gh", Owner: "org", Name: "repo", Enabled: true}
	t0         = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func ptr[T any](v T) *T { return &v }

func newMerger() *Merger {
	return NewMerger(slog.New(slog.DiscardHandler))
}

func prPayload(id int64, updated time.Time) gateway.PullRequestPayload {
	return gateway.PullRequestPayload{
		ItemPayload: gateway.ItemPayload{
			ID:        id,
			Number:    ptr(int(id)),
			Title:     ptr("Fix build"),
			State:     ptr("open"),
			User:      &gateway.UserPayload{ID: ptr(int64(3)), Login: ptr("octocat")},
			Labels:    []gateway.LabelPayload{{Name: ptr("bug"), Color: ptr("ff0000")}},
			CreatedAt: ptr(t0),
			UpdatedAt: ptr(updated),
		},
		HeadSHA: ptr("abc123"),
		Links:   gateway.PullRequestLinks{Statuses: ptr("https://api/statuses/abc123")},
	}
}

// prDetail is what the single pull request endpoint adds to a listing.
func prDetail(comments, reviewComments int, mergeable *bool) gateway.PullRequestPayload {
	return gateway.PullRequestPayload{
		ItemPayload:    gateway.ItemPayload{Comments: ptr(comments)},
		ReviewComments: ptr(reviewComments),
		Mergeable:      mergeable,
	}
}

func TestMerger_PullRequest_Actions(t *testing.T) {
	m := store.NewModel()
	g := newMerger()

	pr, err := g.PullRequest(m, prPayload(1, t0), testServer, testRepo)
	require.NoError(t, err)
	assert.Equal(t, domain.New, pr.PostSyncAction)
	assert.Equal(t, "Fix build", pr.Title)
	assert.Equal(t, "org/repo", pr.RepoFullName)
	assert.Equal(t, domain.Unknown, pr.Mergeable)
	assert.Equal(t, "abc123", pr.HeadSHA)
	assert.Equal(t, 0, pr.TotalComments)

	// Unchanged payload: the record is not touched.
	pr.Title = "local edit"
	again, err := g.PullRequest(m, prPayload(1, t0), testServer, testRepo)
	require.NoError(t, err)
	assert.Same(t, pr, again)
	assert.Equal(t, domain.NoAction, again.PostSyncAction)
	assert.Equal(t, "local edit", again.Title)
	assert.Equal(t, []domain.Label{{Name: "bug", Color: "ff0000"}}, again.Labels)

	changed := prPayload(1, t0.Add(time.Hour))
	changed.Title = ptr("Fix build for real")
	updated, err := g.PullRequest(m, changed, testServer, testRepo)
	require.NoError(t, err)
	assert.Equal(t, domain.Updated, updated.PostSyncAction)
	assert.Equal(t, "Fix build for real", updated.Title)
	assert.Len(t, m.PullRequests, 1)
}

func TestMerger_PullRequestDetail_CommentsAccumulate(t *testing.T) {
	m := store.NewModel()
	g := newMerger()

	pr, err := g.PullRequest(m, prPayload(1, t0), testServer, testRepo)
	require.NoError(t, err)
	g.PullRequestDetail(m, pr, prDetail(2, 1, ptr(false)))
	assert.Equal(t, 3, pr.TotalComments)
	assert.Equal(t, 3, pr.UnreadComments)
	assert.Equal(t, domain.False, pr.Mergeable)

	// The listing carries no mergeability, so the known value survives it.
	pr, err = g.PullRequest(m, prPayload(1, t0.Add(time.Hour)), testServer, testRepo)
	require.NoError(t, err)
	assert.Equal(t, domain.False, pr.Mergeable)
	g.PullRequestDetail(m, pr, prDetail(4, 1, ptr(true)))
	assert.Equal(t, 5, pr.TotalComments)
	assert.Equal(t, 5, pr.UnreadComments)
	assert.Equal(t, domain.True, pr.Mergeable)

	pr.CatchUpWithComments(t0)
	pr, err = g.PullRequest(m, prPayload(1, t0.Add(2*time.Hour)), testServer, testRepo)
	require.NoError(t, err)
	g.PullRequestDetail(m, pr, prDetail(5, 1, nil))
	assert.Equal(t, 6, pr.TotalComments)
	assert.Equal(t, 1, pr.UnreadComments)
	assert.Equal(t, domain.Unknown, pr.Mergeable)
}

func TestMerger_PullRequest_MissingFieldsUseDefaults(t *testing.T) {
	m := store.NewModel()
	pr, err := newMerger().PullRequest(m, gateway.PullRequestPayload{ItemPayload: gateway.ItemPayload{ID: 9}}, testServer, testRepo)
	require.NoError(t, err)
	assert.Equal(t, domain.New, pr.PostSyncAction)
	assert.Equal(t, "", pr.Title)
	assert.Equal(t, 0, pr.Number)
	assert.Equal(t, domain.Author{}, pr.Author)
	assert.Equal(t, domain.Unknown, pr.Mergeable)
	assert.Empty(t, pr.Labels)
	assert.False(t, pr.AssignedToMe)
	assert.True(t, pr.UpdatedAt.IsZero())
}

func TestMerger_RejectsPayloadWithoutID(t *testing.T) {
	m := store.NewModel()
	_, err := newMerger().PullRequest(m, gateway.PullRequestPayload{}, testServer, testRepo)
	assert.ErrorIs(t, err, ErrMissingID)
	_, err = newMerger().Issue(m, gateway.IssuePayload{}, testServer, testRepo)
	assert.ErrorIs(t, err, ErrMissingID)
	assert.Empty(t, m.PullRequests)
	assert.Empty(t, m.Issues)
}

func TestMerger_Assignment(t *testing.T) {
	testCases := []struct {
		name            string
		wasAssigned     bool
		assignee        *gateway.UserPayload
		expectAssigned  bool
		expectNewAssign bool
	}{
		{name: "newly assigned to me", assignee: &gateway.UserPayload{Login: ptr("me")}, expectAssigned: true, expectNewAssign: true},
		{name: "login differs only in case", assignee: &gateway.UserPayload{Login: ptr("ME")}, expectAssigned: true, expectNewAssign: true},
		{name: "already assigned to me", wasAssigned: true, assignee: &gateway.UserPayload{Login: ptr("me")}, expectAssigned: true},
		{name: "assigned to someone else", wasAssigned: true, assignee: &gateway.UserPayload{Login: ptr("other")}},
		{name: "assignee without login", assignee: &gateway.UserPayload{}},
		{name: "no assignee", wasAssigned: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := store.NewModel()
			issue, _ := m.IssueOrNew(domain.Key{Server: "gh", RemoteID: 4})
			issue.AssignedToMe = tc.wasAssigned

			p := gateway.IssuePayload{ItemPayload: gateway.ItemPayload{ID: 4, Assignee: tc.assignee, UpdatedAt: ptr(t0)}}
			got, err := newMerger().Issue(m, p, testServer, testRepo)
			require.NoError(t, err)
			assert.Equal(t, tc.expectAssigned, got.AssignedToMe)
			assert.Equal(t, tc.expectNewAssign, got.IsNewAssignment)
		})
	}
}

func TestMerger_LabelsAreReplaced(t *testing.T) {
	m := store.NewModel()
	g := newMerger()
	p := prPayload(1, t0)
	p.Labels = []gateway.LabelPayload{{Name: ptr("bug")}, {Name: ptr("ci")}}
	_, err := g.PullRequest(m, p, testServer, testRepo)
	require.NoError(t, err)

	p = prPayload(1, t0.Add(time.Minute))
	p.Labels = []gateway.LabelPayload{{Name: ptr("ci"), Color: ptr("00ff00")}, {Name: ptr("docs")}, {}}
	pr, err := g.PullRequest(m, p, testServer, testRepo)
	require.NoError(t, err)

	require.Len(t, pr.Labels, 2)
	assert.Equal(t, domain.Label{Name: "ci", Color: "00ff00"}, pr.Labels[0])
	assert.Equal(t, domain.Label{Name: "docs"}, pr.Labels[1])
}

func TestMerger_ConditionAndReopen(t *testing.T) {
	testCases := []struct {
		name           string
		previous       domain.Condition
		expectReopened bool
	}{
		{name: "open stays open", previous: domain.Open},
		{name: "closed is reopened", previous: domain.Closed, expectReopened: true},
		{name: "merged comes back open", previous: domain.Merged},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := store.NewModel()
			g := newMerger()
			pr, err := g.PullRequest(m, prPayload(1, t0), testServer, testRepo)
			require.NoError(t, err)
			pr.Condition = tc.previous

			// Condition advances even when nothing else changed.
			pr, err = g.PullRequest(m, prPayload(1, t0), testServer, testRepo)
			require.NoError(t, err)
			assert.Equal(t, domain.NoAction, pr.PostSyncAction)
			assert.Equal(t, domain.Open, pr.Condition)
			assert.Equal(t, tc.expectReopened, pr.Reopened)
		})
	}
}

func TestMerger_Ownership(t *testing.T) {
	m := store.NewModel()
	g := newMerger()

	p := prPayload(1, t0)
	p.User = &gateway.UserPayload{Login: ptr("ME")}
	p.Assignee = &gateway.UserPayload{Login: ptr("Me")}
	mine, err := g.PullRequest(m, p, testServer, testRepo)
	require.NoError(t, err)
	g.PullRequestDetail(m, mine, prDetail(3, 0, nil))
	assert.True(t, mine.CreatedByMe)
	assert.True(t, mine.AssignedToMe)
	assert.Equal(t, 3, mine.TotalComments)
	assert.Equal(t, 0, mine.UnreadComments)

	p = prPayload(2, t0)
	p.RequestedReviewers = []gateway.UserPayload{{Login: ptr("someone")}, {Login: ptr("ME")}}
	review, err := g.PullRequest(m, p, testServer, testRepo)
	require.NoError(t, err)
	assert.False(t, review.CreatedByMe)
	assert.True(t, review.Participated)
}

func TestMerger_IssueCommentsLink(t *testing.T) {
	m := store.NewModel()
	p := gateway.IssuePayload{ItemPayload: gateway.ItemPayload{ID: 8, Number: ptr(42), UpdatedAt: ptr(t0)}}
	issue, err := newMerger().Issue(m, p, testServer, testRepo)
	require.NoError(t, err)
	assert.Equal(t, "/repos/org/repo/issues/42/comments", issue.CommentsLink)
	assert.Equal(t, domain.New, issue.PostSyncAction)
}
