package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/rashplayer/internal/brain"
	"github.com/andresmejia3/rashplayer/internal/config"
	"github.com/andresmejia3/rashplayer/internal/logging"
	"github.com/andresmejia3/rashplayer/internal/profile"
	"github.com/andresmejia3/rashplayer/internal/store"
	"github.com/andresmejia3/rashplayer/internal/types"
	"github.com/andresmejia3/rashplayer/internal/utils"
	"github.com/andresmejia3/rashplayer/internal/vision"
	"github.com/spf13/cobra"
)

var (
	// Cfg is the effective configuration, resolved in PersistentPreRunE.
	Cfg config.Config
	// Journal is opened on demand by the commands that record or read cycles.
	Journal store.Journal
	// Logger is the CLI's structured logger.
	Logger *slog.Logger

	configPath string
	flagLevel  string
	flagJrnl   string
	flagSeg    string
	flagProf   string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "rashplayer",
	Short:   "Vision and decision engine for mobile game automation",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		Cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		// Flags win over file and environment.
		flags := cmd.Flags()
		if flags.Changed("log-level") {
			Cfg.LogLevel = flagLevel
		}
		if flags.Changed("journal") {
			Cfg.Journal = flagJrnl
		}
		if flags.Changed("segment") {
			Cfg.Segment = flagSeg
		}
		if flags.Changed("profile") {
			Cfg.Profile = flagProf
		}
		if err := Cfg.Validate(); err != nil {
			return err
		}
		Logger = newLogger("cli")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if Journal != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to close the journal cleanly.
			Journal.Close(context.Background())
			Journal = nil
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	// Errors are printed in the boxed format below rather than by cobra.
	rootCmd.SilenceErrors = true
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		utils.Die("Command failed", err, nil)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Path to a TOML configuration file")
	pf.StringVar(&flagLevel, "log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	pf.StringVar(&flagJrnl, "journal", "", "Cycle journal DSN (postgres://..., sqlite://path or a file path); empty disables it")
	pf.StringVarP(&flagSeg, "segment", "s", config.DefaultSegment, "Shared segment name under /dev/shm")
	pf.StringVarP(&flagProf, "profile", "p", config.DefaultProfile, "Game profile")
}

func newLogger(component string) *slog.Logger {
	return logging.NewLogger(logging.Options{Level: Cfg.LogLevel, Writer: os.Stderr, Component: component})
}

// openJournal connects the configured journal. A missing DSN is not an
// error unless required.
func openJournal(ctx context.Context, required bool) error {
	if Cfg.Journal == "" {
		if required {
			return store.ErrNoJournal
		}
		return nil
	}
	j, err := store.Open(ctx, Cfg.Journal)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	Journal = j
	return nil
}

// loadEngines builds a vision engine and a brain with the configured profile applied.
func loadEngines() (*vision.Engine, *brain.Brain, error) {
	p, err := profile.Build(Cfg.Profile, profile.Options{
		TapPoint:  types.Point{X: Cfg.Tap.X, Y: Cfg.Tap.Y},
		Templates: Cfg.Templates,
	})
	if err != nil {
		return nil, nil, err
	}
	eng := vision.NewEngine(newLogger("vision"))
	br := brain.New(newLogger("brain"))
	if err := profile.Apply(p, eng, br); err != nil {
		return nil, nil, fmt.Errorf("failed to apply profile %s: %w", p.Name, err)
	}
	t, tr, d := eng.Counts()
	Logger.Info("profile loaded", "profile", p.Name, "templates", t, "triggers", tr, "detectors", d, "rules", len(p.Rules))
	return eng, br, nil
}
