package profile

import (
	"fmt"
	"image"

	"github.com/andresmejia3/rashplayer/internal/types"
	"github.com/andresmejia3/rashplayer/internal/vision"
)

// Flappy detector ids, also the trigger ids their results carry.
const (
	FlappyBirdID uint32 = 1
	FlappyGapID  uint32 = 2
)

// Flappy defaults, OpenCV HSV scale.
var (
	FlappyBirdRange = types.HSVRange{Lo: types.HSV{H: 20, S: 150, V: 150}, Hi: types.HSV{H: 40, S: 255, V: 255}}
	FlappyPipeRange = types.HSVRange{Lo: types.HSV{H: 35, S: 100, V: 100}, Hi: types.HSV{H: 85, S: 255, V: 255}}
	FlappyTapPoint  = types.Point{X: 540, Y: 960}
)

const (
	FlappyBirdMinPixels = 200
	FlappyTapMargin     = 20 // tap when the bird sinks this far below the gap centre
)

func init() {
	if err := Register("flappy", NewFlappy); err != nil {
		panic(err)
	}
}

// NewFlappy builds the Flappy Bird profile: a yellow blob detector for the
// bird and a pipe pair detector for the next gap.
func NewFlappy(opts Options) (*Profile, error) {
	tap := opts.TapPoint
	if tap == (types.Point{}) {
		tap = FlappyTapPoint
	}
	return &Profile{
		Name:        "flappy",
		Description: "Flappy Bird: keep the bird level with the next pipe gap",
		Rules: []types.Rule{
			{
				Condition: fmt.Sprintf("bird_y > gap_center_y + %d", FlappyTapMargin),
				Action:    types.ActionTap,
				Target:    tap,
				Priority:  10,
			},
			// Before the first gap is seen, hold the bird in the upper half.
			{
				Condition: fmt.Sprintf("bird_y > %d && gap_center_y == 0", tap.Y),
				Action:    types.ActionTap,
				Target:    tap,
				Priority:  5,
			},
		},
		Aliases: map[string]uint32{"bird": FlappyBirdID, "gap_center": FlappyGapID},
		Detectors: []vision.Detector{
			&BlobDetector{DetectorID: FlappyBirdID, Range: FlappyBirdRange, MinPixels: FlappyBirdMinPixels},
			&GapDetector{DetectorID: FlappyGapID, Range: FlappyPipeRange},
		},
	}, nil
}

// BlobDetector finds the pixels of one HSV range and reports the centre of
// their bounding box.
type BlobDetector struct {
	DetectorID uint32
	Range      types.HSVRange
	Region     types.Rect
	MinPixels  int
}

func (d *BlobDetector) ID() uint32 { return d.DetectorID }

func (d *BlobDetector) Detect(frame *image.RGBA) types.VisionResult {
	cr := vision.FindHSVRange(frame, d.Region, d.Range)
	if cr.Count <= d.MinPixels {
		return types.VisionResult{}
	}
	c := cr.Bounds.Min.Add(cr.Bounds.Max).Div(2)
	return types.VisionResult{
		Found:      true,
		Confidence: 1,
		Location:   types.Point{X: int32(c.X), Y: int32(c.Y)},
		Box:        types.RectFrom(cr.Bounds),
	}
}

// GapDetector locates the opening of the leftmost obstacle pair. Obstacles
// are found by column density; one that runs through the opening is split
// into its upper and lower parts first.
type GapDetector struct {
	DetectorID uint32
	Range      types.HSVRange
	Region     types.Rect
	Options    vision.DensityOptions
}

func (d *GapDetector) ID() uint32 { return d.DetectorID }

func (d *GapDetector) Detect(frame *image.RGBA) types.VisionResult {
	objs := vision.ColumnObjects(frame, d.Region, d.Range, d.Options)
	parts := make([]vision.Object, 0, 2*len(objs))
	for _, o := range objs {
		if top, bottom, ok := vision.SplitObject(frame, o, d.Range); ok {
			parts = append(parts, top, bottom)
			continue
		}
		parts = append(parts, o)
	}
	gap, ok := vision.PairGap(parts)
	if !ok {
		return types.VisionResult{}
	}
	return types.VisionResult{
		Found:      true,
		Confidence: 1,
		Location:   types.Point{X: int32(gap.X), Y: int32(gap.Y)},
		Box:        types.Rect{X: int32(gap.X), Y: int32(gap.Y)},
	}
}
