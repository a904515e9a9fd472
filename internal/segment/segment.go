// Package segment implements the fixed-layout synchronization block shared
// between the frame producer and the perception/decision consumer.
//
// The block is plain memory: a header with two one-way flags, frame metadata,
// latency counters, a bounded result array and one pending action, followed
// by the frame buffer at a page-aligned offset. The flags are a handshake,
// not a lock. The producer raises FrameReady only after the frame bytes are
// written; the consumer raises ResultReady only after the results and the
// pending action are written. One producer, one consumer.
package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/andresmejia3/rashplayer/internal/types"
)

var (
	ErrTooSmall   = errors.New("segment buffer too small")
	ErrBadMagic   = errors.New("segment magic mismatch")
	ErrBadVersion = errors.New("segment version mismatch")
)

var le = binary.LittleEndian

// Segment is a typed view over a shared block of Size bytes.
type Segment struct {
	buf    []byte
	frame  FrameView
	name   string
	unmap  func() error
	closed bool
}

// New wraps buf as a segment. buf must hold at least Size bytes and be
// 4-byte aligned (mmap'd memory and Go heap allocations both are).
func New(buf []byte) (*Segment, error) {
	if len(buf) < Size {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrTooSmall, len(buf), Size)
	}
	s := &Segment{buf: buf[:Size:Size]}
	s.frame = FrameView{pix: s.buf[FrameOffset:]}
	return s, nil
}

// NewInMemory allocates a private, initialized segment. Used by replay and tests.
func NewInMemory() *Segment {
	s, _ := New(make([]byte, Size))
	s.Init()
	return s
}

// Init writes the header identity and resets every handshake field.
func (s *Segment) Init() {
	le.PutUint32(s.buf[offMagic:], Magic)
	le.PutUint32(s.buf[offVersion:], Version)
	s.SetFrameReady(false)
	s.SetResultReady(false)
	s.SetState(types.StateIdle)
	atomic.StoreUint32(s.word(offStateRequest), 0)
	le.PutUint32(s.buf[offNumResults:], 0)
}

// Validate checks the header identity written by Init.
func (s *Segment) Validate() error {
	if m := le.Uint32(s.buf[offMagic:]); m != Magic {
		return fmt.Errorf("%w: got %#x", ErrBadMagic, m)
	}
	if v := le.Uint32(s.buf[offVersion:]); v != Version {
		return fmt.Errorf("%w: got %d, want %d", ErrBadVersion, v, Version)
	}
	return nil
}

// Name returns the handle the segment was attached with, or "" for private segments.
func (s *Segment) Name() string { return s.name }

func (s *Segment) word(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&s.buf[off]))
}

func loadFlag(p *uint32) bool { return atomic.LoadUint32(p) != 0 }

func storeFlag(p *uint32, v bool) {
	var n uint32
	if v {
		n = 1
	}
	atomic.StoreUint32(p, n)
}

// FrameReady reports whether the producer has published a frame.
func (s *Segment) FrameReady() bool { return loadFlag(s.word(offFrameReady)) }

// SetFrameReady raises or clears the producer's signal.
func (s *Segment) SetFrameReady(v bool) { storeFlag(s.word(offFrameReady), v) }

// ResultReady reports whether the consumer has finished writing results.
func (s *Segment) ResultReady() bool { return loadFlag(s.word(offResultReady)) }

// SetResultReady raises or clears the consumer's signal.
func (s *Segment) SetResultReady(v bool) { storeFlag(s.word(offResultReady), v) }

func (s *Segment) State() types.GameState {
	return types.GameState(atomic.LoadUint32(s.word(offCurrentState)))
}

func (s *Segment) SetState(st types.GameState) {
	atomic.StoreUint32(s.word(offCurrentState), uint32(st))
}

// RequestState asks the consumer to switch to st on its next tick.
func (s *Segment) RequestState(st types.GameState) {
	atomic.StoreUint32(s.word(offStateRequest), uint32(st)+1)
}

// TakeStateRequest returns and clears a pending state request.
func (s *Segment) TakeStateRequest() (types.GameState, bool) {
	v := atomic.SwapUint32(s.word(offStateRequest), 0)
	if v == 0 {
		return 0, false
	}
	return types.GameState(v - 1), true
}

func (s *Segment) FrameNumber() uint64 { return le.Uint64(s.buf[offFrameNumber:]) }

func (s *Segment) FrameTimestamp() time.Time {
	return time.Unix(0, int64(le.Uint64(s.buf[offFrameTimestamp:])))
}

// FrameMeta returns the dimensions the producer declared for the current frame.
func (s *Segment) FrameMeta() (width, height, stride int) {
	return int(int32(le.Uint32(s.buf[offFrameWidth:]))),
		int(int32(le.Uint32(s.buf[offFrameHeight:]))),
		int(int32(le.Uint32(s.buf[offFrameStride:])))
}

func (s *Segment) setFrameMeta(number uint64, ts time.Time, width, height, stride int) {
	le.PutUint64(s.buf[offFrameNumber:], number)
	le.PutUint64(s.buf[offFrameTimestamp:], uint64(ts.UnixNano()))
	le.PutUint32(s.buf[offFrameWidth:], uint32(int32(width)))
	le.PutUint32(s.buf[offFrameHeight:], uint32(int32(height)))
	le.PutUint32(s.buf[offFrameStride:], uint32(int32(stride)))
}

// Latencies returns the vision, brain and total latency of the last cycle.
func (s *Segment) Latencies() (vision, brain, total time.Duration) {
	return time.Duration(le.Uint64(s.buf[offVisionLatency:])),
		time.Duration(le.Uint64(s.buf[offBrainLatency:])),
		time.Duration(le.Uint64(s.buf[offTotalLatency:]))
}

func (s *Segment) SetVisionLatency(d time.Duration) {
	le.PutUint64(s.buf[offVisionLatency:], uint64(d))
}

// SetBrainLatency stores the brain latency and derives the total from the
// vision latency already written this cycle.
func (s *Segment) SetBrainLatency(d time.Duration) {
	le.PutUint64(s.buf[offBrainLatency:], uint64(d))
	vision := time.Duration(le.Uint64(s.buf[offVisionLatency:]))
	le.PutUint64(s.buf[offTotalLatency:], uint64(vision+d))
}

// Frame returns the bounds-checked view of the frame buffer.
func (s *Segment) Frame() FrameView { return s.frame }

// CurrentFrame returns the published frame as an image over the shared buffer.
func (s *Segment) CurrentFrame() *image.RGBA {
	w, h, stride := s.FrameMeta()
	return s.frame.Image(w, h, stride)
}

// Publish is the producer side of the handshake: copy img into the frame
// buffer, write its metadata, then raise FrameReady. Frames larger than the
// buffer are cropped.
func (s *Segment) Publish(img *image.RGBA, number uint64, ts time.Time) {
	w, h, stride := s.frame.Write(img)
	s.setFrameMeta(number, ts, w, h, stride)
	s.SetFrameReady(true)
}

func (s *Segment) NumResults() int {
	n := int(le.Uint32(s.buf[offNumResults:]))
	return min(n, types.MaxResults)
}

// Results decodes the result array.
func (s *Segment) Results() []types.VisionResult {
	n := s.NumResults()
	out := make([]types.VisionResult, n)
	for i := range out {
		out[i] = s.result(i)
	}
	return out
}

func (s *Segment) result(i int) types.VisionResult {
	b := s.buf[offResults+i*resultSize:]
	return types.VisionResult{
		TriggerID:  le.Uint32(b[resTriggerID:]),
		Found:      b[resFound] != 0,
		Confidence: math.Float32frombits(le.Uint32(b[resConfidence:])),
		Location:   types.Point{X: int32(le.Uint32(b[resLocX:])), Y: int32(le.Uint32(b[resLocY:]))},
		Box: types.Rect{
			X:      int32(le.Uint32(b[resBoxX:])),
			Y:      int32(le.Uint32(b[resBoxY:])),
			Width:  int32(le.Uint32(b[resBoxW:])),
			Height: int32(le.Uint32(b[resBoxH:])),
		},
		TimestampNs: int64(le.Uint64(b[resTimestamp:])),
	}
}

// WriteResults replaces the whole result array. Results beyond the
// capacity are dropped; unused slots are zeroed so nothing stale survives.
func (s *Segment) WriteResults(results []types.VisionResult) int {
	n := min(len(results), types.MaxResults)
	for i := 0; i < types.MaxResults; i++ {
		b := s.buf[offResults+i*resultSize : offResults+(i+1)*resultSize]
		clear(b)
		if i >= n {
			continue
		}
		r := results[i]
		le.PutUint32(b[resTriggerID:], r.TriggerID)
		if r.Found {
			b[resFound] = 1
		}
		le.PutUint32(b[resConfidence:], math.Float32bits(r.Confidence))
		le.PutUint32(b[resLocX:], uint32(r.Location.X))
		le.PutUint32(b[resLocY:], uint32(r.Location.Y))
		le.PutUint32(b[resBoxX:], uint32(r.Box.X))
		le.PutUint32(b[resBoxY:], uint32(r.Box.Y))
		le.PutUint32(b[resBoxW:], uint32(r.Box.Width))
		le.PutUint32(b[resBoxH:], uint32(r.Box.Height))
		le.PutUint64(b[resTimestamp:], uint64(r.TimestampNs))
	}
	le.PutUint32(s.buf[offNumResults:], uint32(n))
	return n
}

func (s *Segment) PendingAction() types.ActionCommand {
	b := s.buf[offPendingAction:]
	return types.ActionCommand{
		Kind:       types.ActionKind(le.Uint32(b[actKind:])),
		Start:      types.Point{X: int32(le.Uint32(b[actStartX:])), Y: int32(le.Uint32(b[actStartY:]))},
		End:        types.Point{X: int32(le.Uint32(b[actEndX:])), Y: int32(le.Uint32(b[actEndY:]))},
		DurationMs: int32(le.Uint32(b[actDuration:])),
		HoldMs:     int32(le.Uint32(b[actHold:])),
		Randomize:  math.Float32frombits(le.Uint32(b[actRandomize:])),
	}
}

func (s *Segment) SetPendingAction(a types.ActionCommand) {
	b := s.buf[offPendingAction:]
	le.PutUint32(b[actKind:], uint32(a.Kind))
	le.PutUint32(b[actStartX:], uint32(a.Start.X))
	le.PutUint32(b[actStartY:], uint32(a.Start.Y))
	le.PutUint32(b[actEndX:], uint32(a.End.X))
	le.PutUint32(b[actEndY:], uint32(a.End.Y))
	le.PutUint32(b[actDuration:], uint32(a.DurationMs))
	le.PutUint32(b[actHold:], uint32(a.HoldMs))
	le.PutUint32(b[actRandomize:], math.Float32bits(a.Randomize))
}

// ClearPendingAction is called by the action executor once it has consumed the action.
func (s *Segment) ClearPendingAction() {
	clear(s.buf[offPendingAction : offPendingAction+actionSize])
}
