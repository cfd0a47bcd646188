package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/naka-gawa/github-trailer/internal/categorize"
	"github.com/naka-gawa/github-trailer/internal/domain"
	"github.com/spf13/cobra"
)

// listEntry is the JSON shape of one listed item.
type listEntry struct {
	Repo        string   `json:"repo"`
	Number      int      `json:"number"`
	Title       string   `json:"title"`
	Author      string   `json:"author,omitempty"`
	Section     string   `json:"section"`
	Unread      int      `json:"unread,omitempty"`
	URL         string   `json:"url,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	Statuses    []string `json:"statuses,omitempty"`
	Pinned      bool     `json:"pinned,omitempty"`
	Unmergeable bool     `json:"unmergeable,omitempty"`
}

func entryFor(it *domain.Item) listEntry {
	e := listEntry{
		Repo:    it.RepoFullName,
		Number:  it.Number,
		Title:   it.Title,
		Author:  it.Author.Login,
		Section: it.Section.String(),
		Unread:  it.UnreadComments,
		URL:     it.WebURL,
	}
	for _, l := range it.Labels {
		e.Labels = append(e.Labels, l.Name)
	}
	return e
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists pull requests or issues of a section as JSON",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		sectionKey, _ := cmd.Flags().GetString("section")
		filter, _ := cmd.Flags().GetString("filter")
		issues, _ := cmd.Flags().GetBool("issues")
		label, _ := cmd.Flags().GetString("label")
		pinnedOnly, _ := cmd.Flags().GetBool("pinned")
		if issues && pinnedOnly {
			fmt.Fprintln(os.Stderr, "Error: --pinned applies to pull requests only.")
			os.Exit(1)
		}

		q := categorize.Query{Section: categorize.AnySection, Filter: filter}
		if sectionKey != "" {
			s, err := domain.ParseSection(sectionKey)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid --section: %v\n", err)
				os.Exit(1)
			}
			q.Section = s
		}

		a := mustApp(ctx, cmd)
		defer a.Close()

		var entries []listEntry
		if issues {
			for _, issue := range a.library.Issues(q) {
				if label != "" && !issue.HasLabel(label) {
					continue
				}
				entries = append(entries, entryFor(&issue.Item))
			}
		} else {
			for _, pr := range a.library.PullRequests(q) {
				if (label != "" && !pr.HasLabel(label)) || (pinnedOnly && !pr.Pinned) {
					continue
				}
				e := entryFor(&pr.Item)
				e.Pinned = pr.Pinned
				for _, s := range a.library.DisplayedStatuses(pr) {
					e.Statuses = append(e.Statuses, fmt.Sprintf("%s: %s", s.State, s.Description))
				}
				e.Unmergeable = a.library.MarkUnmergeable(pr)
				entries = append(entries, e)
			}
		}

		jsonData, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to marshal results to JSON: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(jsonData))
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringP("section", "s", "", "Section to list: mine, participated, merged, closed or all (default every section)")
	listCmd.Flags().StringP("filter", "f", "", "Free-text filter on title, author and, when enabled, repo, labels and statuses")
	listCmd.Flags().Bool("issues", false, "List issues instead of pull requests")
	listCmd.Flags().StringP("label", "l", "", "Only list items carrying this label")
	listCmd.Flags().Bool("pinned", false, "Only list pinned pull requests")
}
