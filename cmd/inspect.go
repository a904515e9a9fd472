package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/rashplayer/internal/segment"
	"github.com/andresmejia3/rashplayer/internal/types"
	"github.com/spf13/cobra"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the shared segment header, results and pending action",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		seg, err := segment.AttachReadOnly(Cfg.Segment)
		if err != nil {
			return err
		}
		defer seg.Detach()
		if inspectJSON {
			return writeSnapshotJSON(os.Stdout, seg)
		}
		renderInspect(os.Stdout, seg)
		return nil
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Emit a JSON snapshot instead of tables")
	rootCmd.AddCommand(inspectCmd)
}

// snapshot is the JSON form of a segment.
type snapshot struct {
	Segment       string               `json:"segment"`
	FrameNumber   uint64               `json:"frame_number"`
	FrameTime     time.Time            `json:"frame_time"`
	Width         int                  `json:"width"`
	Height        int                  `json:"height"`
	Stride        int                  `json:"stride"`
	FrameReady    bool                 `json:"frame_ready"`
	ResultReady   bool                 `json:"result_ready"`
	State         string               `json:"state"`
	VisionLatency time.Duration        `json:"vision_latency_ns"`
	BrainLatency  time.Duration        `json:"brain_latency_ns"`
	TotalLatency  time.Duration        `json:"total_latency_ns"`
	Results       []types.VisionResult `json:"results"`
	PendingAction types.ActionCommand  `json:"pending_action"`
}

func takeSnapshot(seg *segment.Segment) snapshot {
	w, h, stride := seg.FrameMeta()
	vis, brn, total := seg.Latencies()
	return snapshot{
		Segment:       seg.Name(),
		FrameNumber:   seg.FrameNumber(),
		FrameTime:     seg.FrameTimestamp(),
		Width:         w,
		Height:        h,
		Stride:        stride,
		FrameReady:    seg.FrameReady(),
		ResultReady:   seg.ResultReady(),
		State:         seg.State().String(),
		VisionLatency: vis,
		BrainLatency:  brn,
		TotalLatency:  total,
		Results:       seg.Results(),
		PendingAction: seg.PendingAction(),
	}
}

func writeSnapshotJSON(out io.Writer, seg *segment.Segment) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(takeSnapshot(seg))
}

func renderInspect(out io.Writer, seg *segment.Segment) {
	s := takeSnapshot(seg)
	fmt.Fprintf(out, "Segment:  %s\n", s.Segment)
	fmt.Fprintf(out, "Frame:    #%d %dx%d (stride %d) at %s\n", s.FrameNumber, s.Width, s.Height, s.Stride,
		s.FrameTime.Local().Format("15:04:05.000"))
	fmt.Fprintf(out, "Flags:    frame_ready=%t result_ready=%t\n", s.FrameReady, s.ResultReady)
	fmt.Fprintf(out, "State:    %s\n", s.State)
	fmt.Fprintf(out, "Latency:  vision %v, brain %v, total %v\n", s.VisionLatency, s.BrainLatency, s.TotalLatency)

	fmt.Fprintf(out, "\nResults (%d):\n", len(s.Results))
	if len(s.Results) > 0 {
		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TRIGGER\tFOUND\tCONFIDENCE\tLOCATION\tBOX")
		fmt.Fprintln(w, "-------\t-----\t----------\t--------\t---")
		for _, r := range s.Results {
			fmt.Fprintf(w, "%d\t%t\t%.3f\t(%d,%d)\t%dx%d@(%d,%d)\n", r.TriggerID, r.Found, r.Confidence,
				r.Location.X, r.Location.Y, r.Box.Width, r.Box.Height, r.Box.X, r.Box.Y)
		}
		w.Flush()
	}

	a := s.PendingAction
	fmt.Fprintf(out, "\nPending action: %s", a.Kind.String())
	if a.Kind != types.ActionNone {
		fmt.Fprintf(out, " at (%d,%d) -> (%d,%d), %dms, hold %dms, randomize %.2f",
			a.Start.X, a.Start.Y, a.End.X, a.End.Y, a.DurationMs, a.HoldMs, a.Randomize)
	}
	fmt.Fprintln(out)
}
