package worker

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/andresmejia3/rashplayer/internal/brain"
	"github.com/andresmejia3/rashplayer/internal/segment"
	"github.com/andresmejia3/rashplayer/internal/types"
	"github.com/andresmejia3/rashplayer/internal/vision"
)

// MockRecorder collects records in memory. When gate is set, every write
// announces itself on entered and then waits for gate to close.
type MockRecorder struct {
	mu      sync.Mutex
	records []types.CycleRecord
	entered chan struct{}
	gate    chan struct{}
	err     error
}

func (m *MockRecorder) RecordCycle(ctx context.Context, session string, rec types.CycleRecord) error {
	if m.gate != nil {
		m.entered <- struct{}{}
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *MockRecorder) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

const redTrigger = 5

// newRig builds a segment, an engine with one red color trigger and a brain
// that taps whenever the trigger fires.
func newRig(t *testing.T, opts Options) (*segment.Segment, *brain.Brain, *Worker) {
	t.Helper()
	seg := segment.NewInMemory()
	eng := vision.NewEngine(nil)
	if _, err := eng.AddTrigger(types.Trigger{
		ID:     redTrigger,
		Params: types.ColorParams{Target: types.HSV{H: 0, S: 255, V: 255}},
		Active: true,
	}); err != nil {
		t.Fatal(err)
	}
	br := brain.New(nil)
	if err := br.LoadRules([]types.Rule{{
		Condition: "trigger_5_found == 1",
		Action:    types.ActionTap,
		Target:    types.Point{X: 10, Y: 20},
		Priority:  1,
	}}); err != nil {
		t.Fatal(err)
	}
	w := New(seg, eng, br, opts)
	t.Cleanup(w.Close)
	return seg, br, w
}

func redFrame() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 10; y < 30; y++ {
		for x := 10; x < 30; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	return img
}

func TestTickWithoutFrame(t *testing.T) {
	seg, _, w := newRig(t, Options{})
	_, ok, err := w.Tick()
	if err != nil || ok {
		t.Fatalf("Tick() ok=%v err=%v, want idle tick", ok, err)
	}
	if seg.ResultReady() {
		t.Error("result-ready raised without a frame")
	}
	s := w.Stats()
	if s.Ticks != 1 || s.Cycles != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestTickPipeline(t *testing.T) {
	seg, br, w := newRig(t, Options{})

	// 1. idle -> detecting: the action is chosen but not committed
	seg.Publish(redFrame(), 1, time.Now())
	rec, ok, err := w.Tick()
	if err != nil || !ok {
		t.Fatalf("Tick() ok=%v err=%v", ok, err)
	}
	if rec.State != types.StateDetecting || rec.Committed || rec.Action.Kind != types.ActionTap {
		t.Errorf("first cycle = %+v", rec)
	}
	if seg.FrameReady() {
		t.Error("frame-ready not cleared")
	}
	if !seg.ResultReady() {
		t.Error("result-ready not raised")
	}
	if rec.Results != 1 || rec.Found != 1 || rec.FrameNumber != 1 {
		t.Errorf("record = %+v", rec)
	}

	// 2. detecting -> action-pending: committed
	seg.Publish(redFrame(), 2, time.Now())
	rec, _, _ = w.Tick()
	if rec.State != types.StateActionPending || !rec.Committed {
		t.Errorf("second cycle = %+v", rec)
	}
	if got := seg.PendingAction(); got.Kind != types.ActionTap || got.Start != (types.Point{X: 10, Y: 20}) {
		t.Errorf("pending action = %+v", got)
	}
	if br.State() != types.StateActionPending {
		t.Errorf("brain state = %v", br.State())
	}
	if s := w.Stats(); s.Cycles != 2 || s.Committed != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestStateRequest(t *testing.T) {
	seg, br, w := newRig(t, Options{})
	seg.RequestState(types.StatePaused)
	if _, ok, _ := w.Tick(); ok {
		t.Fatal("no frame was published")
	}
	if br.State() != types.StatePaused || seg.State() != types.StatePaused {
		t.Fatalf("state = %v / %v, want paused", br.State(), seg.State())
	}

	seg.Publish(redFrame(), 1, time.Now())
	rec, _, _ := w.Tick()
	if rec.State != types.StatePaused || rec.Committed {
		t.Errorf("paused cycle = %+v", rec)
	}

	seg.RequestState(types.StateIdle)
	seg.Publish(redFrame(), 2, time.Now())
	rec, _, _ = w.Tick()
	if rec.State != types.StateDetecting {
		t.Errorf("resumed cycle state = %v, want detecting", rec.State)
	}
}

func TestJournalRecordsCycles(t *testing.T) {
	rec := &MockRecorder{}
	seg, _, w := newRig(t, Options{Recorder: rec, Session: "s1"})
	for i := 0; i < 5; i++ {
		seg.Publish(redFrame(), uint64(i+1), time.Now())
		if _, _, err := w.Tick(); err != nil {
			t.Fatal(err)
		}
	}
	w.Close()
	if rec.Len() != 5 {
		t.Fatalf("recorded %d, want 5", rec.Len())
	}
	if rec.records[4].FrameNumber != 5 {
		t.Errorf("last record = %+v", rec.records[4])
	}
	if s := w.Stats(); s.Recorded != 5 || s.Dropped != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestJournalDropsWhenFull(t *testing.T) {
	rec := &MockRecorder{entered: make(chan struct{}, 8), gate: make(chan struct{})}
	seg, _, w := newRig(t, Options{Recorder: rec, QueueSize: 1})

	seg.Publish(redFrame(), 1, time.Now())
	w.Tick()
	<-rec.entered // the journal goroutine holds record 1

	for i := 2; i <= 4; i++ {
		seg.Publish(redFrame(), uint64(i), time.Now())
		w.Tick() // 2 is queued, 3 and 4 are dropped
	}
	if d := w.Stats().Dropped; d != 2 {
		t.Errorf("dropped = %d, want 2", d)
	}

	close(rec.gate)
	w.Close()
	if rec.Len() != 2 {
		t.Errorf("recorded %d, want 2", rec.Len())
	}
}

func TestJournalErrorsCounted(t *testing.T) {
	rec := &MockRecorder{err: errors.New("db down")}
	seg, _, w := newRig(t, Options{Recorder: rec})
	seg.Publish(redFrame(), 1, time.Now())
	w.Tick()
	w.Close()
	if s := w.Stats(); s.RecordErrors != 1 || s.Recorded != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	seg, _, w := newRig(t, Options{PollingHz: 1000})
	seg.Publish(redFrame(), 1, time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := w.Stats()
	if s.Ticks == 0 || s.Cycles != 1 {
		t.Errorf("stats = %+v, want one processed cycle among many ticks", s)
	}
}

func TestIntervalAndAverage(t *testing.T) {
	_, _, w := newRig(t, Options{})
	if w.Interval() != 10*time.Millisecond {
		t.Errorf("Interval() = %v", w.Interval())
	}
	s := Stats{Cycles: 4, SumTotal: 8 * time.Millisecond}
	if s.AvgTotal() != 2*time.Millisecond {
		t.Errorf("AvgTotal() = %v", s.AvgTotal())
	}
	if (Stats{}).AvgTotal() != 0 {
		t.Error("empty average should be zero")
	}
}
