// Package vision matches registered triggers against RGBA frames.
//
// An Engine owns a template registry and a trigger registry. Each cycle it
// evaluates every active trigger in registration order, then every
// registered Detector, producing at most types.MaxResults results. Template
// triggers use normalized cross-correlation, color triggers an HSV
// tolerance scan and edge triggers a scan-line gradient search.
package vision

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/andresmejia3/rashplayer/internal/logging"
	"github.com/andresmejia3/rashplayer/internal/segment"
	"github.com/andresmejia3/rashplayer/internal/types"
)

var (
	ErrTemplateCapacity = errors.New("template registry full")
	ErrTriggerCapacity  = errors.New("trigger registry full")
	ErrInvalidTemplate  = errors.New("invalid template")
	ErrInvalidTrigger   = errors.New("invalid trigger")
	ErrFrameNotReady    = errors.New("frame not ready")
	ErrUnknownTrigger   = errors.New("unknown trigger")
)

// Detector is a profile-supplied detection routine evaluated after the
// registered triggers. Each detector contributes exactly one result per cycle.
type Detector interface {
	ID() uint32
	Detect(frame *image.RGBA) types.VisionResult
}

type template struct {
	meta types.Template
	gray grayTemplate
}

// Engine is the vision context. Registries are guarded by a mutex so that
// configuration calls may come from another goroutine than Process.
type Engine struct {
	mu        sync.Mutex
	templates []template
	triggers  []types.Trigger
	detectors []Detector
	logger    *slog.Logger
}

// NewEngine returns an empty engine. A nil logger discards output.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{
		templates: make([]template, 0, types.MaxTemplates),
		triggers:  make([]types.Trigger, 0, types.MaxTriggers),
		logger:    logging.OrDiscard(logger),
	}
}

// LoadTemplate deep-copies t into the registry and returns its id, which is
// its registry index. The caller's image may be reused afterwards.
func (e *Engine) LoadTemplate(t types.Template) (uint32, error) {
	if t.Image == nil || t.Image.Bounds().Empty() {
		return 0, fmt.Errorf("%w: %q has no pixels", ErrInvalidTemplate, t.Name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.templates) >= types.MaxTemplates {
		return 0, fmt.Errorf("%w: %d templates loaded", ErrTemplateCapacity, len(e.templates))
	}

	img := cloneRGBA(t.Image)
	id := uint32(len(e.templates))
	t.ID = id
	t.Image = img
	e.templates = append(e.templates, template{meta: t, gray: newGrayTemplate(img)})

	e.logger.Debug("template loaded", "id", id, "name", t.Name,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return id, nil
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		copy(dst.Pix[y*dst.Stride:(y+1)*dst.Stride], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
	}
	return dst
}

// Template returns a copy of the registered template metadata.
func (e *Engine) Template(id uint32) (types.Template, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(id) >= len(e.templates) {
		return types.Template{}, false
	}
	return e.templates[id].meta, true
}

// AddTrigger registers t and returns its registry index.
func (e *Engine) AddTrigger(t types.Trigger) (int, error) {
	if t.Params == nil {
		return 0, fmt.Errorf("%w: trigger %d has no parameters", ErrInvalidTrigger, t.ID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.triggers) >= types.MaxTriggers {
		return 0, fmt.Errorf("%w: %d triggers registered", ErrTriggerCapacity, len(e.triggers))
	}
	e.triggers = append(e.triggers, t)
	e.logger.Debug("trigger added", "id", t.ID, "name", t.Name, "kind", t.Kind().String(), "active", t.Active)
	return len(e.triggers) - 1, nil
}

// SetTriggerActive toggles every trigger with the given id.
func (e *Engine) SetTriggerActive(id uint32, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	hit := false
	for i := range e.triggers {
		if e.triggers[i].ID == id {
			e.triggers[i].Active = active
			hit = true
		}
	}
	if !hit {
		return fmt.Errorf("%w: %d", ErrUnknownTrigger, id)
	}
	return nil
}

// Triggers returns a snapshot of the trigger registry.
func (e *Engine) Triggers() []types.Trigger {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.Trigger(nil), e.triggers...)
}

// RegisterDetector appends a profile detector.
func (e *Engine) RegisterDetector(d Detector) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detectors = append(e.detectors, d)
}

// Counts reports the number of loaded templates, triggers and detectors.
func (e *Engine) Counts() (templates, triggers, detectors int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.templates), len(e.triggers), len(e.detectors)
}

// Shutdown releases all registries. The engine may be reused afterwards.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates = e.templates[:0]
	e.triggers = e.triggers[:0]
	e.detectors = nil
}

// Process evaluates every active trigger, then every detector, against
// frame. It returns at most types.MaxResults results and the time spent.
func (e *Engine) Process(frame *image.RGBA, now time.Time) ([]types.VisionResult, time.Duration) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	ts := now.UnixNano()
	results := make([]types.VisionResult, 0, types.MaxResults)
	for i := range e.triggers {
		if len(results) == types.MaxResults {
			break
		}
		t := &e.triggers[i]
		if !t.Active {
			continue
		}
		r := e.evaluate(frame, t)
		r.TriggerID = t.ID
		r.TimestampNs = ts
		results = append(results, r)
	}
	for _, d := range e.detectors {
		if len(results) == types.MaxResults {
			break
		}
		r := d.Detect(frame)
		r.TriggerID = d.ID()
		r.TimestampNs = ts
		results = append(results, r)
	}
	return results, time.Since(start)
}

func (e *Engine) evaluate(frame *image.RGBA, t *types.Trigger) types.VisionResult {
	switch p := t.Params.(type) {
	case types.TemplateParams:
		if int(p.TemplateID) >= len(e.templates) {
			return types.VisionResult{}
		}
		return matchResult(frame, t.Region, &e.templates[p.TemplateID])

	case types.ColorParams:
		tol := p.Tolerance
		if tol <= 0 {
			tol = DefaultColorTolerance
		}
		minPixels := p.MinPixels
		if minPixels <= 0 {
			minPixels = DefaultColorMinPixels
		}
		cr := FindColorRegion(frame, t.Region, p.Target, tol)
		r := types.VisionResult{Found: cr.Count > minPixels}
		if cr.Count > 0 {
			r.Confidence = 1
			r.Location = types.Point{X: int32(cr.Center.X), Y: int32(cr.Center.Y)}
			r.Box = types.RectFrom(cr.Bounds)
		}
		return r

	case types.EdgeParams:
		pos, _, found := DetectEdge(frame, t.Region, p.Horizontal)
		region := t.Region.Within(frame.Bounds())
		c := regionCenter(region)
		r := types.VisionResult{Found: found}
		if p.Horizontal {
			r.Location = types.Point{X: int32(c.X), Y: int32(pos)}
		} else {
			r.Location = types.Point{X: int32(pos), Y: int32(c.Y)}
		}
		if found {
			r.Confidence = 1
		}
		return r
	}
	return types.VisionResult{}
}

// matchResult searches the trigger's region, or the template's own search
// region when the trigger leaves it unset.
func matchResult(frame *image.RGBA, area types.Rect, t *template) types.VisionResult {
	if area.Width <= 0 && area.Height <= 0 {
		area = t.meta.SearchRegion
	}
	region := area.Within(frame.Bounds())
	at, score := matchTemplate(frame, region, &t.gray)
	return types.VisionResult{
		Found:      score >= t.meta.Threshold,
		Confidence: score,
		Location:   types.Point{X: int32(at.X + t.gray.w/2), Y: int32(at.Y + t.gray.h/2)},
		Box:        types.Rect{X: int32(at.X), Y: int32(at.Y), Width: int32(t.gray.w), Height: int32(t.gray.h)},
	}
}

// ProcessSegment runs Process over the segment's current frame and writes
// the results and vision latency back. It fails with ErrFrameNotReady,
// touching nothing, when the producer has not raised frame-ready.
func (e *Engine) ProcessSegment(seg *segment.Segment) (int, error) {
	if seg == nil {
		return 0, fmt.Errorf("%w: nil segment", ErrFrameNotReady)
	}
	if !seg.FrameReady() {
		return 0, ErrFrameNotReady
	}
	start := time.Now()
	results, _ := e.Process(seg.CurrentFrame(), start)
	n := seg.WriteResults(results)
	seg.SetVisionLatency(time.Since(start))
	return n, nil
}
