package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/rashplayer/internal/store"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List journaled sessions with cycle counts and latency",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := openJournal(cmd.Context(), true); err != nil {
			return err
		}
		sessions, err := Journal.ListSessions(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		renderSessions(os.Stdout, sessions)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func renderSessions(out io.Writer, sessions []store.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions found in journal.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tPROFILE\tSOURCE\tSTARTED\tENDED\tCYCLES\tACTIONS\tAVG\tMAX")
	fmt.Fprintln(w, "--\t-------\t------\t-------\t-----\t------\t-------\t---\t---")
	for _, s := range sessions {
		ended := "running"
		if !s.Open() {
			ended = s.EndedAt.Local().Format("2006-01-02 15:04")
		}
		source := s.Source
		if source == "" {
			source = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%v\t%v\n",
			shortID(s.ID), s.Profile, source, s.StartedAt.Local().Format("2006-01-02 15:04"), ended,
			s.Cycles, s.Committed, s.AvgTotal, s.MaxTotal)
	}
	w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
