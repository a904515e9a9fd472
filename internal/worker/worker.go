// Package worker drives the vision engine and the brain over a shared
// segment at a fixed rate and hands every processed cycle to a journal.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/rashplayer/internal/brain"
	"github.com/andresmejia3/rashplayer/internal/logging"
	"github.com/andresmejia3/rashplayer/internal/segment"
	"github.com/andresmejia3/rashplayer/internal/types"
	"github.com/andresmejia3/rashplayer/internal/vision"
)

const (
	DefaultPollingHz = 100
	DefaultQueueSize = 1024
)

// Recorder persists cycle records. store.Journal satisfies it.
type Recorder interface {
	RecordCycle(ctx context.Context, session string, rec types.CycleRecord) error
}

type Options struct {
	PollingHz int
	Recorder  Recorder // nil disables journaling
	Session   string
	QueueSize int
	Logger    *slog.Logger
}

// Stats is a snapshot of worker counters.
type Stats struct {
	Ticks        uint64
	Cycles       uint64 // ticks that found a frame and ran both stages
	Committed    uint64 // cycles that wrote a pending action
	Errors       uint64
	Dropped      uint64 // records lost to a full journal queue
	Recorded     uint64
	RecordErrors uint64

	LastTotal time.Duration
	MaxTotal  time.Duration
	SumTotal  time.Duration
}

// AvgTotal is the mean vision+brain latency over processed cycles.
func (s Stats) AvgTotal() time.Duration {
	if s.Cycles == 0 {
		return 0
	}
	return s.SumTotal / time.Duration(s.Cycles)
}

type Worker struct {
	seg    *segment.Segment
	eng    *vision.Engine
	br     *brain.Brain
	opts   Options
	logger *slog.Logger

	queue chan types.CycleRecord
	wg    sync.WaitGroup
	once  sync.Once

	ticks, cycles, committed, errs atomic.Uint64
	dropped, recorded, recordErrs  atomic.Uint64

	mu    sync.Mutex
	last  time.Duration
	worst time.Duration
	sum   time.Duration
}

// New wires a worker and, when a recorder is configured, starts the journal
// goroutine. Close stops it.
func New(seg *segment.Segment, eng *vision.Engine, br *brain.Brain, opts Options) *Worker {
	if opts.PollingHz <= 0 {
		opts.PollingHz = DefaultPollingHz
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	w := &Worker{
		seg:    seg,
		eng:    eng,
		br:     br,
		opts:   opts,
		logger: logging.OrDiscard(opts.Logger),
	}
	if opts.Recorder != nil {
		w.queue = make(chan types.CycleRecord, opts.QueueSize)
		w.wg.Add(1)
		go w.journal()
	}
	return w
}

// Interval is the tick period derived from the polling rate.
func (w *Worker) Interval() time.Duration {
	return time.Second / time.Duration(w.opts.PollingHz)
}

// Tick runs one scheduler step. It applies a pending external state request,
// then, if a frame is ready, runs vision and brain and clears frame-ready.
// ok is false for a tick that found no frame.
func (w *Worker) Tick() (rec types.CycleRecord, ok bool, err error) {
	w.ticks.Add(1)

	// 1. External control
	if st, req := w.seg.TakeStateRequest(); req {
		if err := w.br.SetState(st); err != nil {
			w.logger.Warn("ignoring state request", "error", err)
		} else {
			w.seg.SetState(st)
		}
	}

	// 2. Vision
	n, err := w.eng.ProcessSegment(w.seg)
	if errors.Is(err, vision.ErrFrameNotReady) {
		return rec, false, nil
	}
	if err != nil {
		w.errs.Add(1)
		return rec, false, err
	}

	// 3. Brain
	out, err := w.br.Process(w.seg)
	if err != nil {
		w.errs.Add(1)
		return rec, false, err
	}

	// 4. Hand the buffer back to the producer
	w.seg.SetFrameReady(false)

	vis, brn, total := w.seg.Latencies()
	found := 0
	for _, r := range w.seg.Results() {
		if r.Found {
			found++
		}
	}
	rec = types.CycleRecord{
		FrameNumber:   w.seg.FrameNumber(),
		State:         out.State,
		Action:        out.Action,
		Committed:     out.Committed,
		Results:       n,
		Found:         found,
		VisionLatency: vis,
		BrainLatency:  brn,
		TotalLatency:  total,
		At:            time.Now(),
	}
	w.observe(rec)
	w.enqueue(rec)

	w.logger.Debug("cycle", "frame", rec.FrameNumber, "state", rec.State.String(),
		"action", rec.Action.Kind.String(), "committed", rec.Committed, "total", rec.TotalLatency)
	return rec, true, nil
}

func (w *Worker) observe(rec types.CycleRecord) {
	w.cycles.Add(1)
	if rec.Committed {
		w.committed.Add(1)
	}
	w.mu.Lock()
	w.last = rec.TotalLatency
	w.worst = max(w.worst, rec.TotalLatency)
	w.sum += rec.TotalLatency
	w.mu.Unlock()
}

// enqueue never blocks the tick; a full queue drops the record.
func (w *Worker) enqueue(rec types.CycleRecord) {
	if w.queue == nil {
		return
	}
	select {
	case w.queue <- rec:
	default:
		if w.dropped.Add(1) == 1 {
			w.logger.Warn("journal queue full, dropping cycle records", "capacity", cap(w.queue))
		}
	}
}

func (w *Worker) journal() {
	defer w.wg.Done()
	ctx := context.Background()
	for rec := range w.queue {
		if err := w.opts.Recorder.RecordCycle(ctx, w.opts.Session, rec); err != nil {
			if w.recordErrs.Add(1) == 1 {
				w.logger.Error("journal write failed", "error", err)
			}
			continue
		}
		w.recorded.Add(1)
	}
}

// Run ticks at the polling rate until ctx is cancelled. Tick errors are
// logged and counted; the loop keeps going.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.Interval())
	defer ticker.Stop()
	w.logger.Info("worker started", "hz", w.opts.PollingHz, "session", w.opts.Session)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping", "cycles", w.cycles.Load())
			return nil
		case <-ticker.C:
			if _, _, err := w.Tick(); err != nil {
				w.logger.Error("tick failed", "error", err)
			}
		}
	}
}

// Close drains the journal queue and waits for pending writes. Safe to call twice.
func (w *Worker) Close() {
	w.once.Do(func() {
		if w.queue != nil {
			close(w.queue)
		}
		w.wg.Wait()
	})
}

// Stats returns a snapshot of the counters.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Ticks:        w.ticks.Load(),
		Cycles:       w.cycles.Load(),
		Committed:    w.committed.Load(),
		Errors:       w.errs.Load(),
		Dropped:      w.dropped.Load(),
		Recorded:     w.recorded.Load(),
		RecordErrors: w.recordErrs.Load(),
		LastTotal:    w.last,
		MaxTotal:     w.worst,
		SumTotal:     w.sum,
	}
}
