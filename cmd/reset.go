package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/rashplayer/internal/segment"
	"github.com/spf13/cobra"
)

var (
	resetJournal bool
	resetSegment bool
	resetYes     bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (journal tables, shared segment)",
	Long:  "Clears all state. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing EVERYTHING
		if !resetJournal && !resetSegment {
			resetJournal = true
			resetSegment = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetJournal && Cfg.Journal != "" {
			if resetYes || confirm(os.Stdout, reader, "⚠️  Are you sure you want to DROP all journal tables?") {
				if err := openJournal(cmd.Context(), true); err != nil {
					return err
				}
				fmt.Println("🗑️  Clearing Journal...")
				if err := Journal.Reset(cmd.Context()); err != nil {
					return fmt.Errorf("failed to reset journal: %w", err)
				}
			}
		}

		if resetSegment && segment.Exists(Cfg.Segment) {
			if resetYes || confirm(os.Stdout, reader, fmt.Sprintf("⚠️  Are you sure you want to unlink segment %s?", Cfg.Segment)) {
				fmt.Println("🗑️  Unlinking Segment...")
				if err := segment.Unlink(Cfg.Segment); err != nil {
					return fmt.Errorf("failed to unlink segment: %w", err)
				}
			}
		}

		fmt.Println("✨ System Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetJournal, "journal-tables", false, "Drop the cycle journal tables")
	resetCmd.Flags().BoolVar(&resetSegment, "shm", false, "Unlink the shared segment")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(out io.Writer, r *bufio.Reader, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
