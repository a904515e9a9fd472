package cmd

import (
	"fmt"

	"github.com/andresmejia3/rashplayer/internal/segment"
	"github.com/andresmejia3/rashplayer/internal/types"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state [idle|detecting|action-pending|executing|paused|error]",
	Short: "Show the game state, or ask the running worker to switch to another",
	Long: "Without arguments, prints the state published in the segment. With a state name, writes a " +
		"request the worker applies on its next tick (e.g. 'state paused', then 'state idle' to resume).",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		seg, err := segment.Attach(Cfg.Segment)
		if err != nil {
			return err
		}
		defer seg.Detach()

		if len(args) == 0 {
			fmt.Println(seg.State().String())
			return nil
		}
		st, err := requestState(seg, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("✅ Requested state %s on %s\n", st, Cfg.Segment)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stateCmd)
}

func requestState(seg *segment.Segment, name string) (types.GameState, error) {
	st, err := types.ParseGameState(name)
	if err != nil {
		return 0, err
	}
	seg.RequestState(st)
	return st, nil
}
