package cmd

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
	"time"

	"github.com/andresmejia3/rashplayer/internal/segment"
	"github.com/andresmejia3/rashplayer/internal/types"
	"github.com/andresmejia3/rashplayer/internal/utils"
	"github.com/andresmejia3/rashplayer/internal/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// ReplayOptions configures an offline replay.
type ReplayOptions struct {
	InputPath string
	FPS       float64 // resample rate, 0 keeps the source rate
	MaxFrames int     // 0 processes the whole video
}

var replayOpts ReplayOptions

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Run the vision and brain pipeline over a recorded gameplay video",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runReplay(cmd.Context(), replayOpts)
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayOpts.InputPath, "input", "i", "", "Path to video")
	replayCmd.Flags().Float64Var(&replayOpts.FPS, "fps", 0, "Resample the video to this rate before processing (0 keeps the source rate)")
	replayCmd.Flags().IntVarP(&replayOpts.MaxFrames, "max-frames", "n", 0, "Stop after this many frames (0 for all)")

	replayCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(replayCmd)
}

// Buffer pool to reduce GC pressure while decoding
var frameBufferPool = sync.Pool{
	New: func() interface{} { return make([]byte, 0, segment.FrameBufferSize) },
}

type rawFrame struct {
	Index int
	Data  []byte
}

// replaySummary tallies what the brain decided over a replay.
type replaySummary struct {
	Frames  int
	Actions map[types.ActionKind]int
	States  map[types.GameState]int
	Stats   worker.Stats
}

func (s *replaySummary) add(rec types.CycleRecord) {
	s.Frames++
	s.States[rec.State]++
	if rec.Committed {
		s.Actions[rec.Action.Kind]++
	}
}

func validateReplayFlags(opts *ReplayOptions) error {
	info, err := os.Stat(opts.InputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return utils.Report("Input file does not exist", err, nil)
		}
		return utils.Report("Unable to access input file", err, nil)
	}
	if info.IsDir() {
		err := fmt.Errorf("%s is a directory", opts.InputPath)
		return utils.Report("Input path is a directory, expected a video file", err, nil)
	}
	if opts.FPS < 0 {
		err := fmt.Errorf("must be >= 0, got %g", opts.FPS)
		return utils.Report("Invalid fps", err, nil)
	}
	if opts.MaxFrames < 0 {
		err := fmt.Errorf("must be >= 0, got %d", opts.MaxFrames)
		return utils.Report("Invalid max-frames", err, nil)
	}
	return nil
}

func runReplay(ctx context.Context, opts ReplayOptions) error {
	// Kill ffmpeg immediately if we return early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := validateReplayFlags(&opts); err != nil {
		return err
	}

	// 1. Probe
	width, height, err := utils.GetVideoDimensions(ctx, opts.InputPath)
	if err != nil {
		return utils.Report("Failed to determine video dimensions", err, nil)
	}
	if width > segment.MaxFrameWidth || height > segment.MaxFrameHeight {
		fmt.Fprintf(os.Stderr, "⚠️  %dx%d exceeds the %dx%d frame buffer; frames will be cropped.\n",
			width, height, segment.MaxFrameWidth, segment.MaxFrameHeight)
	}
	fps := opts.FPS
	if fps == 0 {
		if fps, err = utils.GetVideoFPS(ctx, opts.InputPath); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Could not read frame rate (%v), assuming 30 fps.\n", err)
			fps = 30
		}
	}
	var barTotal int64 = -1 // spinner unless the count is known
	if opts.FPS == 0 {
		if n := utils.GetTotalFrames(ctx, opts.InputPath); n > 0 {
			barTotal = int64(n)
		}
	}
	if opts.MaxFrames > 0 && (barTotal < 0 || int64(opts.MaxFrames) < barTotal) {
		barTotal = int64(opts.MaxFrames)
	}

	// 2. Engines, segment, journal
	eng, br, err := loadEngines()
	if err != nil {
		return err
	}
	defer eng.Shutdown()
	seg := segment.NewInMemory()

	if err := openJournal(ctx, false); err != nil {
		return err
	}
	var session string
	if Journal != nil {
		if session, err = Journal.CreateSession(ctx, Cfg.Profile, opts.InputPath); err != nil {
			return fmt.Errorf("failed to create journal session: %w", err)
		}
		defer Journal.EndSession(context.Background(), session)
		fmt.Fprintf(os.Stderr, "📼 Journal session %s\n", session)
	}
	w := worker.New(seg, eng, br, worker.Options{
		PollingHz: Cfg.PollingHz,
		Recorder:  recorder(),
		Session:   session,
		QueueSize: Cfg.QueueSize,
		Logger:    newLogger("worker"),
	})
	defer w.Close()

	// 3. Decoder
	decoder := utils.NewFFmpegRawDecoder(ctx, opts.InputPath, opts.FPS)
	decoderOut, err := decoder.StdoutPipe()
	if err != nil {
		return utils.Report("Failed to create decoder pipe", err, nil)
	}
	if err := decoder.Start(); err != nil {
		return utils.Report("Failed to start decoder", err, decoder)
	}

	frames := make(chan rawFrame, 4)
	go readFrames(ctx, decoderOut, width*height*4, opts.MaxFrames, frames)

	bar := progressbar.NewOptions64(barTotal,
		progressbar.OptionSetDescription("Replaying"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	// 4. Tick once per decoded frame
	summary := replaySummary{Actions: map[types.ActionKind]int{}, States: map[types.GameState]int{}}
	start := time.Now()
	for f := range frames {
		img := &image.RGBA{
			Pix:    f.Data,
			Stride: width * 4,
			Rect:   image.Rect(0, 0, width, height),
		}
		ts := start.Add(time.Duration(float64(f.Index) / fps * float64(time.Second)))
		seg.Publish(img, uint64(f.Index+1), ts)
		frameBufferPool.Put(f.Data[:0])

		rec, ok, err := w.Tick()
		if err != nil {
			return utils.Report("Cycle failed", err, nil)
		}
		if ok {
			summary.add(rec)
		}
		bar.Add(1)
	}
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	// Stopping early (max-frames or Ctrl+C) kills ffmpeg; that is not a decoder failure.
	cancel()
	if err := decoder.Wait(); err != nil && ctx.Err() == nil {
		return utils.Report("Decoder process failed", err, decoder)
	}

	w.Close()
	summary.Stats = w.Stats()
	printReplaySummary(os.Stdout, summary)
	return nil
}

// readFrames splits the decoder's raw stream into frames. It closes out when
// the stream ends, max frames were read, or ctx is cancelled.
func readFrames(ctx context.Context, r io.Reader, frameSize, maxFrames int, out chan<- rawFrame) {
	defer close(out)
	for idx := 0; maxFrames == 0 || idx < maxFrames; idx++ {
		buf := frameBufferPool.Get().([]byte)
		if cap(buf) < frameSize {
			buf = make([]byte, frameSize)
		}
		buf = buf[:frameSize]

		if _, err := io.ReadFull(r, buf); err != nil {
			// EOF or unexpected error, stop reading
			frameBufferPool.Put(buf[:0])
			return
		}
		select {
		case out <- rawFrame{Index: idx, Data: buf}:
		case <-ctx.Done():
			return
		}
	}
}

func printReplaySummary(out io.Writer, s replaySummary) {
	fmt.Fprintf(out, "Frames processed: %d\n", s.Frames)
	fmt.Fprintf(out, "Actions committed: %d\n", s.Stats.Committed)
	for k := types.ActionNone; k <= types.ActionWait; k++ {
		if n := s.Actions[k]; n > 0 {
			fmt.Fprintf(out, "  %-10s %d\n", k.String(), n)
		}
	}
	fmt.Fprintln(out, "States:")
	for st := types.StateIdle; st.Valid(); st++ {
		if n := s.States[st]; n > 0 {
			fmt.Fprintf(out, "  %-14s %d\n", st.String(), n)
		}
	}
	fmt.Fprintf(out, "Latency avg/max: %v / %v\n", s.Stats.AvgTotal(), s.Stats.MaxTotal)
	if s.Stats.Dropped > 0 || s.Stats.RecordErrors > 0 {
		fmt.Fprintf(out, "Journal: %d recorded, %d dropped, %d failed\n", s.Stats.Recorded, s.Stats.Dropped, s.Stats.RecordErrors)
	}
}

// printStats reports the worker counters after a live run.
func printStats(out io.Writer, s worker.Stats) {
	fmt.Fprintf(out, "✨ %d ticks, %d cycles, %d actions committed, %d errors; latency avg %v max %v\n",
		s.Ticks, s.Cycles, s.Committed, s.Errors, s.AvgTotal(), s.MaxTotal)
	if s.Dropped > 0 {
		fmt.Fprintf(out, "⚠️  %d journal records dropped\n", s.Dropped)
	}
}
