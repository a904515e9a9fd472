package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/rashplayer/internal/segment"
	"github.com/andresmejia3/rashplayer/internal/worker"
	"github.com/spf13/cobra"
)

var (
	runCreate bool
	runUnlink bool
	runHz     int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Attach to the shared segment and process frames until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runLoop(cmd.Context())
	},
}

func init() {
	runCmd.Flags().BoolVar(&runCreate, "create", false, "Create the segment if it does not exist")
	runCmd.Flags().BoolVar(&runUnlink, "unlink", false, "Unlink the segment on exit (only when this process created it)")
	runCmd.Flags().IntVar(&runHz, "hz", 0, "Polling rate override (default: from configuration)")
	rootCmd.AddCommand(runCmd)
}

// openSegment attaches to name, creating it first when allowed.
func openSegment(name string, create bool) (seg *segment.Segment, created bool, err error) {
	if segment.Exists(name) {
		seg, err = segment.Attach(name)
		return seg, false, err
	}
	if !create {
		return nil, false, fmt.Errorf("segment %q does not exist (use --create)", name)
	}
	seg, err = segment.Create(name)
	return seg, err == nil, err
}

func runLoop(ctx context.Context) error {
	// 1. Engines
	eng, br, err := loadEngines()
	if err != nil {
		return err
	}
	defer eng.Shutdown()

	// 2. Segment
	seg, created, err := openSegment(Cfg.Segment, runCreate)
	if err != nil {
		return err
	}
	defer func() {
		if err := seg.Detach(); err != nil {
			Logger.Warn("detach failed", "error", err)
		}
		if created && runUnlink {
			if err := segment.Unlink(Cfg.Segment); err != nil {
				Logger.Warn("unlink failed", "error", err)
			}
		}
	}()

	// 3. Journal
	if err := openJournal(ctx, false); err != nil {
		return err
	}
	var session string
	if Journal != nil {
		if session, err = Journal.CreateSession(ctx, Cfg.Profile, "segment:"+Cfg.Segment); err != nil {
			return fmt.Errorf("failed to create journal session: %w", err)
		}
		defer Journal.EndSession(context.Background(), session)
	}

	hz := Cfg.PollingHz
	if runHz > 0 {
		hz = runHz
	}
	w := worker.New(seg, eng, br, worker.Options{
		PollingHz: hz,
		Recorder:  recorder(),
		Session:   session,
		QueueSize: Cfg.QueueSize,
		Logger:    newLogger("worker"),
	})

	fmt.Fprintf(os.Stderr, "🎮 Profile %s on segment %s at %d Hz (Ctrl+C to stop)\n", Cfg.Profile, Cfg.Segment, hz)
	err = w.Run(ctx)
	w.Close()
	printStats(os.Stderr, w.Stats())
	return err
}

// recorder adapts the optional journal; a nil Journal must stay a nil Recorder.
func recorder() worker.Recorder {
	if Journal == nil {
		return nil
	}
	return Journal
}
