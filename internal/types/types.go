package types

import (
	"fmt"
	"image"
	"strings"
	"time"
)

// Fixed registry and segment capacities.
const (
	MaxTemplates = 32
	MaxTriggers  = 64
	MaxRules     = 256
	MaxVariables = 64
	MaxResults   = 16
)

// Point is a screen coordinate in frame pixels.
type Point struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// Rect is a screen region. A zero width or height means "to the frame edge".
type Rect struct {
	X      int32 `json:"x"`
	Y      int32 `json:"y"`
	Width  int32 `json:"width"`
	Height int32 `json:"height"`
}

// Within resolves r against the frame bounds and clamps it to them.
// The returned rectangle may be empty when r lies outside the frame.
func (r Rect) Within(bounds image.Rectangle) image.Rectangle {
	x0 := bounds.Min.X + max(int(r.X), 0)
	y0 := bounds.Min.Y + max(int(r.Y), 0)
	x1, y1 := bounds.Max.X, bounds.Max.Y
	if r.Width > 0 {
		x1 = x0 + int(r.Width)
	}
	if r.Height > 0 {
		y1 = y0 + int(r.Height)
	}
	return image.Rect(x0, y0, x1, y1).Intersect(bounds)
}

// RectFrom converts an image.Rectangle into a Rect.
func RectFrom(r image.Rectangle) Rect {
	return Rect{X: int32(r.Min.X), Y: int32(r.Min.Y), Width: int32(r.Dx()), Height: int32(r.Dy())}
}

// HSV is a color on the OpenCV scale: H in 0..179, S and V in 0..255.
type HSV struct {
	H uint8 `json:"h"`
	S uint8 `json:"s"`
	V uint8 `json:"v"`
}

// HSVRange is an inclusive per-channel HSV band.
type HSVRange struct {
	Lo HSV `json:"lo"`
	Hi HSV `json:"hi"`
}

// Contains reports whether c lies inside the band on all three channels.
func (r HSVRange) Contains(c HSV) bool {
	return c.H >= r.Lo.H && c.H <= r.Hi.H &&
		c.S >= r.Lo.S && c.S <= r.Hi.S &&
		c.V >= r.Lo.V && c.V <= r.Hi.V
}

// GameState is the control-flow phase of the automation.
type GameState uint32

const (
	StateIdle GameState = iota
	StateDetecting
	StateActionPending
	StateExecuting
	StatePaused
	StateError
)

var stateNames = [...]string{"idle", "detecting", "action-pending", "executing", "paused", "error"}

func (s GameState) String() string {
	if s.Valid() {
		return stateNames[s]
	}
	return fmt.Sprintf("unknown(%d)", uint32(s))
}

// Valid reports whether s is one of the defined states.
func (s GameState) Valid() bool {
	return int(s) < len(stateNames)
}

// ParseGameState accepts the names printed by String, case-insensitively.
// Underscores are accepted in place of dashes.
func ParseGameState(name string) (GameState, error) {
	name = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for i, n := range stateNames {
		if n == name {
			return GameState(i), nil
		}
	}
	return 0, fmt.Errorf("unknown game state %q", name)
}

// ActionKind is the input gesture requested from the action executor.
type ActionKind uint32

const (
	ActionNone ActionKind = iota
	ActionTap
	ActionSwipe
	ActionLongPress
	ActionDrag
	ActionWait
)

var actionNames = [...]string{"none", "tap", "swipe", "long-press", "drag", "wait"}

func (a ActionKind) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("unknown(%d)", uint32(a))
}

// ParseActionKind maps "tap", "TAP", "long_press" and friends to an ActionKind.
// Unknown names map to ActionNone.
func ParseActionKind(name string) ActionKind {
	name = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for i, n := range actionNames {
		if n == name {
			return ActionKind(i)
		}
	}
	return ActionNone
}

// VisionResult is the outcome of evaluating one trigger against one frame.
type VisionResult struct {
	TriggerID   uint32  `json:"trigger_id"`
	Found       bool    `json:"found"`
	Confidence  float32 `json:"confidence"`
	Location    Point   `json:"location"`
	Box         Rect    `json:"bounding_box"`
	TimestampNs int64   `json:"timestamp_ns"`
}

// ActionCommand is the input chosen for this cycle.
type ActionCommand struct {
	Kind       ActionKind `json:"type"`
	Start      Point      `json:"start"`
	End        Point      `json:"end"`
	DurationMs int32      `json:"duration_ms"`
	HoldMs     int32      `json:"hold_ms"`
	Randomize  float32    `json:"randomize"` // 0.0-1.0
}

// Rule is one line of game logic: when Condition holds, request Action at Target.
type Rule struct {
	Condition string     `json:"condition"`
	Action    ActionKind `json:"action"`
	Target    Point      `json:"target"`
	Priority  int32      `json:"priority"`

	// Optional gesture shaping. Zero values fall back to the brain defaults.
	End        Point `json:"end,omitempty"`
	DurationMs int32 `json:"duration_ms,omitempty"`
	HoldMs     int32 `json:"hold_ms,omitempty"`
}

// Template is a reference image to search for.
type Template struct {
	ID           uint32
	Name         string
	Image        *image.RGBA
	Threshold    float32 // 0.0-1.0
	SearchRegion Rect
}

// TriggerKind identifies which detector a trigger runs.
type TriggerKind uint32

const (
	TriggerTemplate TriggerKind = iota
	TriggerColor
	TriggerEdge
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerTemplate:
		return "template"
	case TriggerColor:
		return "color"
	case TriggerEdge:
		return "edge"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(k))
	}
}

// TriggerParams is the kind-specific half of a trigger. The set of
// implementations is closed: TemplateParams, ColorParams and EdgeParams.
type TriggerParams interface {
	Kind() TriggerKind
	sealed()
}

// TemplateParams binds a trigger to a loaded template.
type TemplateParams struct {
	TemplateID uint32
}

// ColorParams searches for pixels near Target. Zero Tolerance and MinPixels
// select the engine defaults.
type ColorParams struct {
	Target    HSV
	Tolerance int
	MinPixels int
}

// EdgeParams searches for the strongest row (Horizontal) or column edge.
// Color describes the edge for profiles; the gradient scan itself is color-agnostic.
type EdgeParams struct {
	Color      HSV
	Horizontal bool
}

func (TemplateParams) Kind() TriggerKind { return TriggerTemplate }
func (ColorParams) Kind() TriggerKind    { return TriggerColor }
func (EdgeParams) Kind() TriggerKind     { return TriggerEdge }

func (TemplateParams) sealed() {}
func (ColorParams) sealed()    {}
func (EdgeParams) sealed()     {}

// Trigger is an active detection task evaluated every cycle.
type Trigger struct {
	ID     uint32
	Name   string
	Params TriggerParams
	Region Rect
	Active bool
}

// Kind returns the trigger kind derived from its parameters.
func (t Trigger) Kind() TriggerKind {
	return t.Params.Kind()
}

// CycleRecord summarizes one processed cycle for journaling.
type CycleRecord struct {
	FrameNumber   uint64
	State         GameState
	Action        ActionCommand
	Committed     bool
	Results       int
	Found         int
	VisionLatency time.Duration
	BrainLatency  time.Duration
	TotalLatency  time.Duration
	At            time.Time
}
