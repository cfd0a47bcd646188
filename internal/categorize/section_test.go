package categorize

import (
	"testing"

	"github.com/naka-gawa/github-trailer/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestSection(t *testing.T) {
	settings := domain.Settings{ShowIssuesMenu: true}

	testCases := []struct {
		name     string
		item     domain.Listable
		settings domain.Settings
		expected domain.Section
	}{
		{
			name:     "item pending deletion is hidden",
			item:     &domain.PullRequest{Item: domain.Item{PostSyncAction: domain.Delete, CreatedByMe: true}},
			settings: settings,
			expected: domain.SectionNone,
		},
		{
			name:     "issues are hidden when the issues menu is off",
			item:     &domain.Issue{Item: domain.Item{CreatedByMe: true}},
			settings: domain.Settings{},
			expected: domain.SectionNone,
		},
		{
			name:     "merged wins over mine",
			item:     &domain.PullRequest{Item: domain.Item{Condition: domain.Merged, CreatedByMe: true}},
			settings: settings,
			expected: domain.SectionMerged,
		},
		{
			name:     "closed",
			item:     &domain.Issue{Item: domain.Item{Condition: domain.Closed}},
			settings: settings,
			expected: domain.SectionClosed,
		},
		{
			name:     "authored by me",
			item:     &domain.PullRequest{Item: domain.Item{CreatedByMe: true}},
			settings: settings,
			expected: domain.SectionMine,
		},
		{
			name:     "assigned to me",
			item:     &domain.Issue{Item: domain.Item{AssignedToMe: true}},
			settings: settings,
			expected: domain.SectionMine,
		},
		{
			name:     "participated",
			item:     &domain.PullRequest{Item: domain.Item{Participated: true}},
			settings: settings,
			expected: domain.SectionParticipated,
		},
		{
			name:     "everything else",
			item:     &domain.PullRequest{},
			settings: settings,
			expected: domain.SectionAll,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Section(tc.item, tc.settings)
			assert.Equal(t, tc.expected, got)
			assert.True(t, got.Valid())
			assert.Equal(t, got, Section(tc.item, tc.settings), "must be idempotent")
		})
	}
}

func TestAssign_IsIdempotent(t *testing.T) {
	prs := []*domain.PullRequest{
		{Item: domain.Item{CreatedByMe: true}},
		{Item: domain.Item{Condition: domain.Closed}},
		{},
	}
	settings := domain.Settings{}

	assert.Equal(t, 3, Assign(prs, settings))
	assert.Equal(t, 0, Assign(prs, settings))
	assert.Equal(t, domain.SectionMine, prs[0].Section)
	assert.Equal(t, domain.SectionClosed, prs[1].Section)
	assert.Equal(t, domain.SectionAll, prs[2].Section)
}

func TestMarkUnmergeable(t *testing.T) {
	pr := func(s domain.Section, m domain.Tristate) *domain.PullRequest {
		return &domain.PullRequest{Item: domain.Item{Section: s}, Mergeable: m}
	}
	userOnly := domain.Settings{MarkUnmergeableOnUserSectionsOnly: true}

	assert.True(t, MarkUnmergeable(pr(domain.SectionMine, domain.False), userOnly))
	assert.False(t, MarkUnmergeable(pr(domain.SectionMine, domain.Unknown), userOnly))
	assert.False(t, MarkUnmergeable(pr(domain.SectionMerged, domain.False), userOnly))
	assert.False(t, MarkUnmergeable(pr(domain.SectionAll, domain.False), userOnly))
	assert.True(t, MarkUnmergeable(pr(domain.SectionAll, domain.False), domain.Settings{}))
}
