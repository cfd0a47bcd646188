package domain

import "fmt"

// Section is the exclusive bucket an item is listed and counted under.
type Section int

const (
	SectionNone Section = iota
	SectionMine
	SectionParticipated
	SectionMerged
	SectionClosed
	SectionAll
)

// Sections lists the real sections in display order.
var Sections = []Section{SectionMine, SectionParticipated, SectionMerged, SectionClosed, SectionAll}

var (
	prMenuTitles    = [...]string{"", "Mine", "Participated", "Recently Merged", "Recently Closed", "All Pull Requests"}
	issueMenuTitles = [...]string{"", "Mine", "Participated", "Recently Merged", "Recently Closed", "All Issues"}
	sectionKeys     = [...]string{"none", "mine", "participated", "merged", "closed", "all"}
)

// Valid reports whether s is one of the enumerated sections.
func (s Section) Valid() bool {
	return s >= SectionNone && s <= SectionAll
}

func (s Section) String() string {
	if !s.Valid() {
		return fmt.Sprintf("section(%d)", int(s))
	}
	return sectionKeys[s]
}

// PullRequestTitle is the menu title used for the section in pull request lists.
func (s Section) PullRequestTitle() string {
	if !s.Valid() {
		return ""
	}
	return prMenuTitles[s]
}

// IssueTitle is the menu title used for the section in issue lists.
func (s Section) IssueTitle() string {
	if !s.Valid() {
		return ""
	}
	return issueMenuTitles[s]
}

// ParseSection accepts the lower-case keys produced by String.
func ParseSection(key string) (Section, error) {
	for i, k := range sectionKeys {
		if k == key {
			return Section(i), nil
		}
	}
	return SectionNone, fmt.Errorf("unknown section %q", key)
}
