// Package domain contains the core data structures of the tracker: the items
// mirrored from GitHub, the servers and repos they come from and the settings
// that drive how they are bucketed.
package domain

import (
	"fmt"
	"slices"
	"time"
)

// Key identifies an item. Remote ids are only unique per server.
type Key struct {
	Server   string
	RemoteID int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.Server, k.RemoteID)
}

// PostSyncAction is the transient per-cycle marker describing what a sync pass
// decided about a record. It is never persisted.
type PostSyncAction int

const (
	NoAction PostSyncAction = iota
	Delete
	New
	Updated
)

func (a PostSyncAction) String() string {
	switch a {
	case Delete:
		return "delete"
	case New:
		return "new"
	case Updated:
		return "updated"
	default:
		return "none"
	}
}

// Author is the user who opened an item.
type Author struct {
	ID        int64
	Login     string
	AvatarURL string
}

// Label belongs to exactly one item.
type Label struct {
	Name  string
	Color string

	PostSyncAction PostSyncAction
}

// Status is a commit status reported on a pull request's head.
type Status struct {
	RemoteID    int64
	Description string
	TargetURL   string
	State       string
	Context     string
	CreatedAt   time.Time
}

// Item holds everything pull requests and issues have in common.
type Item struct {
	Key

	URL          string
	WebURL       string
	Number       int
	Title        string
	Body         string
	State        string
	Author       Author
	RepoFullName string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Condition      Condition
	Section        Section
	PostSyncAction PostSyncAction

	TotalComments         int
	UnreadComments        int
	LatestReadCommentDate time.Time

	CreatedByMe     bool
	AssignedToMe    bool
	IsNewAssignment bool
	Reopened        bool
	Participated    bool

	Labels []Label
}

// Base gives generic code access to the shared fields of any item kind.
func (i *Item) Base() *Item { return i }

// CatchUpWithComments marks every comment on the item as read.
func (i *Item) CatchUpWithComments(now time.Time) {
	i.UnreadComments = 0
	i.LatestReadCommentDate = now
}

// HasLabel reports whether a label with the given name is attached.
func (i *Item) HasLabel(name string) bool {
	return slices.ContainsFunc(i.Labels, func(l Label) bool { return l.Name == name })
}

func (i Item) clone() Item {
	i.Labels = slices.Clone(i.Labels)
	return i
}

// Listable is implemented by *PullRequest and *Issue.
type Listable interface {
	Base() *Item
}

// Tristate is a boolean that may not be known yet.
type Tristate int

const (
	Unknown Tristate = iota
	True
	False
)

// TristateOf converts an optional bool.
func TristateOf(b *bool) Tristate {
	switch {
	case b == nil:
		return Unknown
	case *b:
		return True
	default:
		return False
	}
}

// PullRequest is an Item with merge state and commit statuses.
type PullRequest struct {
	Item

	Mergeable Tristate
	Pinned    bool
	HeadSHA   string
	Statuses  []Status

	IssueCommentLink  string
	ReviewCommentLink string
	StatusesLink      string
	IssueURL          string
}

// Clone returns a copy that shares no slices with the receiver.
func (p *PullRequest) Clone() *PullRequest {
	c := *p
	c.Item = p.Item.clone()
	c.Statuses = slices.Clone(p.Statuses)
	return &c
}

// Issue is an Item with only a comments link.
type Issue struct {
	Item

	CommentsLink string
}

// Clone returns a copy that shares no slices with the receiver.
func (i *Issue) Clone() *Issue {
	c := *i
	c.Item = i.Item.clone()
	return &c
}
