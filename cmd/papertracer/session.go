package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/shufanz/papertracer/internal/config"
	"github.com/shufanz/papertracer/internal/database"
	"github.com/shufanz/papertracer/internal/log"
	"github.com/shufanz/papertracer/internal/session"
	"github.com/spf13/cobra"
)

// NewSessionCmd creates the session command group.
func NewSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and maintain saved crawl sessions",
		Long: `Session lists, analyzes and maintains the crawl sessions saved under
the data directory. Each session holds the crawl snapshot used for
resuming, the citation tree and the fetch attempt database.`,
	}

	cmd.PersistentFlags().String("data-dir", "",
		"Session data root (default: XDG data directory)")

	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionAnalyzeCmd())
	cmd.AddCommand(newSessionCleanupCmd())
	cmd.AddCommand(newSessionMergeCmd())

	return cmd
}

// sessionManager builds a Manager and its Store over the configured
// data root.
func sessionManager(cmd *cobra.Command) (*session.Manager, *session.Store, error) {
	dataDir, err := cmd.Flags().GetString("data-dir")
	if err != nil {
		return nil, nil, err
	}
	if dataDir == "" {
		dataDir = config.XDGDataDir()
	}

	logger := log.NewSecureLogger(os.Stderr, getVerboseFlag(cmd))
	slog.SetDefault(logger)

	store := session.NewStore(dataDir)
	return session.NewManager(store, logger), store, nil
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, _, err := sessionManager(cmd)
			if err != nil {
				return err
			}

			sessions, err := mgr.List()
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No saved sessions.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tMODIFIED\tREQUESTS\tVISITED\tTREE\tSIZE")
			for _, s := range sessions {
				tree := "-"
				if s.HasTree {
					tree = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
					s.ID,
					s.Modified.Format("2006-01-02 15:04"),
					s.RequestCount,
					s.VisitedURLs,
					tree,
					formatBytes(s.SizeBytes),
				)
			}
			return w.Flush()
		},
	}
}

func newSessionAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <session-id>",
		Short: "Show detailed statistics for one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, store, err := sessionManager(cmd)
			if err != nil {
				return err
			}

			a, err := mgr.Analyze(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session:       %s\n", a.ID)
			fmt.Fprintf(out, "Path:          %s\n", a.Path)
			fmt.Fprintf(out, "Modified:      %s\n", a.Modified.Format(time.RFC3339))
			fmt.Fprintf(out, "Files:         %d (%s)\n", a.FileCount, formatBytes(a.SizeBytes))
			if a.HasState {
				fmt.Fprintf(out, "Requests:      %d\n", a.RequestCount)
				fmt.Fprintf(out, "Visited URLs:  %d\n", a.VisitedURLs)
				if a.ConsecutiveRateLimits > 0 {
					fmt.Fprintf(out, "Rate limits:   %d consecutive (last %s)\n",
						a.ConsecutiveRateLimits, a.LastRateLimitTime)
				}
			} else {
				fmt.Fprintln(out, "Requests:      no readable state file")
			}
			if a.HasTree {
				fmt.Fprintf(out, "Tree:          %d nodes, depth %d\n", a.TreeNodes, a.TreeMaxDepth)
			} else {
				fmt.Fprintln(out, "Tree:          none")
			}

			if len(a.FileTypes) > 0 {
				exts := make([]string, 0, len(a.FileTypes))
				for ext := range a.FileTypes {
					exts = append(exts, ext)
				}
				sort.Strings(exts)
				fmt.Fprintln(out, "File types:")
				for _, ext := range exts {
					fmt.Fprintf(out, "  %-8s %d\n", ext, a.FileTypes[ext])
				}
			}

			writeFetchLog(cmd.Context(), out, store, args[0])
			return nil
		},
	}
}

// writeFetchLog prints the classification breakdown from the session's
// crawl database. A session without a database is silently skipped.
func writeFetchLog(ctx context.Context, out io.Writer, store *session.Store, sessionID string) {
	db, err := database.Open(store.Dir(sessionID), database.Options{EnableWAL: true})
	if err != nil {
		return
	}
	defer db.Close()

	counts, err := db.ClassificationCounts(ctx, sessionID)
	if err != nil || len(counts) == 0 {
		return
	}

	fmt.Fprintln(out, "Fetch log:")
	labels := []struct{ key, label string }{
		{"normal", "Normal"},
		{"challenge", "Challenge"},
		{"rate_limited", "Rate limited"},
		{"", "Transport error"},
	}
	for _, l := range labels {
		if n := counts[l.key]; n > 0 {
			fmt.Fprintf(out, "  %-16s %d\n", l.label, n)
		}
	}
}

func newSessionCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove sessions older than a cutoff",
		Long: `Cleanup removes session directories whose last modification is older
than the cutoff. With --dry-run it only reports what would be removed;
without --force it asks for confirmation first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			days, err := cmd.Flags().GetInt("days")
			if err != nil {
				return err
			}
			dryRun, err := cmd.Flags().GetBool("dry-run")
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}

			mgr, _, err := sessionManager(cmd)
			if err != nil {
				return err
			}

			maxAge := time.Duration(days) * 24 * time.Hour
			out := cmd.OutOrStdout()

			old, err := mgr.Cleanup(maxAge, true)
			if err != nil {
				return err
			}
			if len(old) == 0 {
				fmt.Fprintf(out, "No sessions older than %d days.\n", days)
				return nil
			}

			for _, s := range old {
				fmt.Fprintf(out, "  %s  (%s, %s)\n",
					s.ID, s.Modified.Format("2006-01-02"), formatBytes(s.SizeBytes))
			}
			if dryRun {
				fmt.Fprintf(out, "Would remove %d session(s). Re-run without --dry-run to delete.\n", len(old))
				return nil
			}

			if !force {
				fmt.Fprintf(out, "Remove %d session(s)? [y/N]: ", len(old))
				var answer string
				fmt.Fscanln(cmd.InOrStdin(), &answer)
				if answer != "y" && answer != "Y" {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}
			}

			removed, err := mgr.Cleanup(maxAge, false)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Removed %d session(s).\n", len(removed))
			return nil
		},
	}

	cmd.Flags().Int("days", 30, "Remove sessions older than this many days")
	cmd.Flags().Bool("dry-run", false, "Only report what would be removed")
	cmd.Flags().Bool("force", false, "Skip the confirmation prompt")

	return cmd
}

func newSessionMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge <session-id> <session-id>",
		Short: "Merge two sessions into a new one",
		Long: `Merge combines two sessions into a new one. The merged snapshot unions
the visited URL sets and sums the request counts, so a crawl resumed
from it never re-fetches what either session already covered.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputID, err := cmd.Flags().GetString("output")
			if err != nil {
				return err
			}

			mgr, _, err := sessionManager(cmd)
			if err != nil {
				return err
			}

			info, err := mgr.Merge(args[0], args[1], outputID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Merged into %s\n", info.ID)
			fmt.Fprintf(out, "  Requests:     %d\n", info.RequestCount)
			fmt.Fprintf(out, "  Visited URLs: %d\n", info.VisitedURLs)
			fmt.Fprintf(out, "\nResume with:\n  papertracer crawl --resume %s <url>\n", info.ID)
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "ID for the merged session (generated when empty)")

	return cmd
}

// formatBytes renders a byte count in human-readable units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
