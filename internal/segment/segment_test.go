package segment

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/andresmejia3/rashplayer/internal/types"
)

func TestLayout(t *testing.T) {
	if offPendingAction != 864 {
		t.Errorf("pending action offset = %d, want 864", offPendingAction)
	}
	if HeaderSize != 896 {
		t.Errorf("header size = %d, want 896", HeaderSize)
	}
	if FrameOffset != 4096 {
		t.Errorf("frame offset = %d, want 4096", FrameOffset)
	}
	if Size != 4096+1920*1080*4 {
		t.Errorf("size = %d", Size)
	}
}

func TestNewTooSmall(t *testing.T) {
	_, err := New(make([]byte, Size-1))
	if !errors.Is(err, ErrTooSmall) {
		t.Fatalf("expected ErrTooSmall, got %v", err)
	}
}

func TestInitAndValidate(t *testing.T) {
	s := NewInMemory()
	if err := s.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if s.FrameReady() || s.ResultReady() {
		t.Error("flags should be clear after init")
	}
	if s.State() != types.StateIdle {
		t.Errorf("state = %v, want idle", s.State())
	}

	le.PutUint32(s.buf[offMagic:], 0xdeadbeef)
	if err := s.Validate(); !errors.Is(err, ErrBadMagic) {
		t.Errorf("expected ErrBadMagic, got %v", err)
	}
}

func TestPublishAndFrameView(t *testing.T) {
	s := NewInMemory()
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	img.SetRGBA(3, 2, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	ts := time.Unix(0, 12345)
	s.Publish(img, 7, ts)

	if !s.FrameReady() {
		t.Fatal("frame-ready not raised by Publish")
	}
	if s.FrameNumber() != 7 || !s.FrameTimestamp().Equal(ts) {
		t.Errorf("metadata = %d/%v", s.FrameNumber(), s.FrameTimestamp())
	}
	w, h, stride := s.FrameMeta()
	if w != 8 || h != 4 || stride != 32 {
		t.Errorf("geometry = %dx%d stride %d", w, h, stride)
	}

	got := s.CurrentFrame().RGBAAt(3, 2)
	if got != (color.RGBA{R: 10, G: 20, B: 30, A: 255}) {
		t.Errorf("pixel = %v", got)
	}
}

func TestFrameViewClamp(t *testing.T) {
	s := NewInMemory()
	tests := []struct {
		name         string
		w, h, stride int
		wantW, wantH int
	}{
		{"normal", 100, 50, 400, 100, 50},
		{"oversized", 5000, 5000, 0, 1920, 1080},
		{"hostile stride", 10, 1080, 1 << 24, 10, 0},
		{"negative", -1, 10, 0, 0, 0},
		{"short stride", 10, 10, 1, 10, 10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			img := s.Frame().Image(tc.w, tc.h, tc.stride)
			b := img.Bounds()
			if b.Dx() != tc.wantW && tc.wantH != 0 {
				t.Errorf("width = %d, want %d", b.Dx(), tc.wantW)
			}
			if b.Dy() != tc.wantH {
				t.Errorf("height = %d, want %d", b.Dy(), tc.wantH)
			}
			if len(img.Pix) > s.Frame().Cap() {
				t.Errorf("image exceeds buffer: %d > %d", len(img.Pix), s.Frame().Cap())
			}
		})
	}
}

func TestWriteResultsCapsAndClears(t *testing.T) {
	s := NewInMemory()
	many := make([]types.VisionResult, 20)
	for i := range many {
		many[i] = types.VisionResult{TriggerID: uint32(i + 1), Found: true, Confidence: 0.5}
	}
	if n := s.WriteResults(many); n != types.MaxResults {
		t.Fatalf("wrote %d results, want %d", n, types.MaxResults)
	}

	s.WriteResults([]types.VisionResult{{
		TriggerID:   9,
		Found:       true,
		Confidence:  0.75,
		Location:    types.Point{X: 5, Y: -6},
		Box:         types.Rect{X: 1, Y: 2, Width: 3, Height: 4},
		TimestampNs: 99,
	}})
	got := s.Results()
	if len(got) != 1 {
		t.Fatalf("results = %d, want 1", len(got))
	}
	want := types.VisionResult{TriggerID: 9, Found: true, Confidence: 0.75,
		Location: types.Point{X: 5, Y: -6}, Box: types.Rect{X: 1, Y: 2, Width: 3, Height: 4}, TimestampNs: 99}
	if got[0] != want {
		t.Errorf("result = %+v, want %+v", got[0], want)
	}
	if stale := s.result(1); stale.TriggerID != 0 {
		t.Errorf("slot 1 not cleared: %+v", stale)
	}
}

func TestPendingAction(t *testing.T) {
	s := NewInMemory()
	a := types.ActionCommand{
		Kind:       types.ActionSwipe,
		Start:      types.Point{X: 10, Y: 20},
		End:        types.Point{X: 30, Y: 40},
		DurationMs: 120,
		HoldMs:     5,
		Randomize:  0.3,
	}
	s.SetPendingAction(a)
	if got := s.PendingAction(); got != a {
		t.Errorf("pending = %+v, want %+v", got, a)
	}
	s.ClearPendingAction()
	if got := s.PendingAction(); got.Kind != types.ActionNone {
		t.Errorf("pending after clear = %+v", got)
	}
}

func TestStateRequest(t *testing.T) {
	s := NewInMemory()
	if _, ok := s.TakeStateRequest(); ok {
		t.Fatal("unexpected request on fresh segment")
	}
	// idle is state 0, so the encoding must distinguish it from "no request"
	s.RequestState(types.StateIdle)
	st, ok := s.TakeStateRequest()
	if !ok || st != types.StateIdle {
		t.Errorf("got %v/%v, want idle/true", st, ok)
	}
	if _, ok := s.TakeStateRequest(); ok {
		t.Error("request not cleared after take")
	}
}

func TestLatencies(t *testing.T) {
	s := NewInMemory()
	s.SetVisionLatency(3 * time.Millisecond)
	s.SetBrainLatency(time.Millisecond)
	v, b, total := s.Latencies()
	if v != 3*time.Millisecond || b != time.Millisecond || total != 4*time.Millisecond {
		t.Errorf("latencies = %v %v %v", v, b, total)
	}
}

func TestCreateAttachUnlink(t *testing.T) {
	old := ShmDir
	ShmDir = t.TempDir()
	t.Cleanup(func() { ShmDir = old })

	owner, err := Create("test_seg")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer owner.Detach()

	peer, err := Attach("test_seg")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	owner.RequestState(types.StatePaused)
	if st, ok := peer.TakeStateRequest(); !ok || st != types.StatePaused {
		t.Errorf("peer saw %v/%v, want paused/true", st, ok)
	}

	if err := peer.Detach(); err != nil {
		t.Errorf("detach: %v", err)
	}
	if err := peer.Detach(); !errors.Is(err, ErrClosed) {
		t.Errorf("second detach = %v, want ErrClosed", err)
	}

	if err := Unlink("test_seg"); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if Exists("test_seg") {
		t.Error("segment still exists after unlink")
	}
	if _, err := Attach("test_seg"); err == nil {
		t.Error("attach after unlink should fail")
	}
}

func TestInvalidName(t *testing.T) {
	for _, name := range []string{"", "a/b", "/"} {
		if _, err := Create(name); err == nil {
			t.Errorf("Create(%q) should fail", name)
		}
	}
}
