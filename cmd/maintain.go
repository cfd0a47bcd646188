package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/naka-gawa/github-trailer/internal/domain"
	"github.com/spf13/cobra"
)

var markReadCmd = &cobra.Command{
	Use:   "mark-read",
	Short: "Marks every comment in a section as read",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		sectionKey, _ := cmd.Flags().GetString("section")
		issues, _ := cmd.Flags().GetBool("issues")

		section := domain.SectionNone
		if sectionKey != "" {
			s, err := domain.ParseSection(sectionKey)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid --section: %v\n", err)
				os.Exit(1)
			}
			section = s
		}

		a := mustApp(ctx, cmd)
		defer a.Close()

		var n int
		if issues {
			n = a.library.MarkIssuesRead(section)
		} else {
			n = a.library.MarkPullRequestsRead(section)
		}
		if err := a.library.Save(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("marked %d item(s) read\n", n)
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Removes merged or closed items from the local mirror",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		merged, _ := cmd.Flags().GetBool("merged")
		closed, _ := cmd.Flags().GetBool("closed")
		if !merged && !closed {
			fmt.Fprintln(os.Stderr, "Error: pass --merged, --closed or both.")
			os.Exit(1)
		}

		a := mustApp(ctx, cmd)
		defer a.Close()

		n := 0
		if merged {
			n += a.library.ClearAllMerged()
		}
		if closed {
			n += a.library.ClearAllClosed()
		}
		if err := a.library.Save(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("removed %d item(s)\n", n)
	},
}

var pinCmd = &cobra.Command{
	Use:   "pin <owner/repo> <number>",
	Short: "Pins a pull request so clear keeps it",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		number, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid pull request number %q: %v\n", args[1], err)
			os.Exit(1)
		}
		unpin, _ := cmd.Flags().GetBool("unpin")

		a := mustApp(ctx, cmd)
		defer a.Close()

		if a.library.SetPinned(args[0], number, !unpin) == 0 {
			fmt.Fprintf(os.Stderr, "Error: no tracked pull request %s#%d.\n", args[0], number)
			os.Exit(1)
		}
		if err := a.library.Save(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s#%d pinned=%t\n", args[0], number, !unpin)
	},
}

func init() {
	rootCmd.AddCommand(pinCmd)
	pinCmd.Flags().Bool("unpin", false, "Remove the pin instead")

	rootCmd.AddCommand(markReadCmd)
	markReadCmd.Flags().StringP("section", "s", "", "Section to mark read (default every section)")
	markReadCmd.Flags().Bool("issues", false, "Mark issues instead of pull requests")

	rootCmd.AddCommand(clearCmd)
	clearCmd.Flags().Bool("merged", false, "Remove merged pull requests")
	clearCmd.Flags().Bool("closed", false, "Remove closed pull requests and issues")
}
