// Package projector maps normalized cluster ordinates and metadata onto a
// pixel viewport. Everything here is a pure function of its arguments.
package projector

import (
	"math"

	"comment-map/constant"
)

const (
	BaseRadius  = 6.0
	RadiusScale = 2.0

	DefaultTooltipMargin    = 12.0
	DefaultTooltipMinOffset = 8.0
)

var stanceColors = map[constant.Stance]string{
	constant.StanceSupport: "#22c55e",
	constant.StanceSkeptic: "#ef4444",
	constant.StanceNeutral: "#94a3b8",
}

// Palette colors clusters without a recognized stance, by list position.
var Palette = []string{
	"#6366f1",
	"#f59e0b",
	"#06b6d4",
	"#ec4899",
	"#8b5cf6",
	"#14b8a6",
	"#f97316",
	"#84cc16",
}

type Point struct {
	X float64
	Y float64
}

type Size struct {
	Width  float64
	Height float64
}

// Position converts an ordinate in [-1,1]x[-1,1] to pixels. Positive y is
// drawn toward the top.
func Position(ordX, ordY, width, height float64) Point {
	return Point{
		X: (ordX + 1) / 2 * width,
		Y: (1 - (ordY+1)/2) * height,
	}
}

// MarkerRadius grows with the square root of size so outliers do not swamp
// the map. Negative sizes are treated as zero.
func MarkerRadius(size int) float64 {
	if size < 0 {
		size = 0
	}
	return BaseRadius + RadiusScale*math.Sqrt(float64(size))
}

// Color returns the stance color, or the palette entry for index when the
// stance is missing or unknown.
func Color(stance *constant.Stance, index int) string {
	if stance != nil {
		if c, ok := stanceColors[*stance]; ok {
			return c
		}
	}
	n := len(Palette)
	return Palette[((index%n)+n)%n]
}

// PlaceTooltip anchors a box of size box next to the pointer, flipping to the
// other side of the pointer when it would overflow the right or bottom edge,
// then clamping so the box stays at least minOffset from the top-left and
// inside the far edges.
func PlaceTooltip(pointer Point, viewport, box Size, margin, minOffset float64) Point {
	x := pointer.X + margin
	if x+box.Width > viewport.Width {
		x = pointer.X - box.Width - margin
	}
	y := pointer.Y + margin
	if y+box.Height > viewport.Height {
		y = pointer.Y - box.Height - margin
	}
	return Point{
		X: clampOffset(x, viewport.Width-box.Width, minOffset),
		Y: clampOffset(y, viewport.Height-box.Height, minOffset),
	}
}

func clampOffset(v, max, minOffset float64) float64 {
	v = math.Min(v, max)
	return math.Max(v, minOffset)
}

type Segment struct {
	Stance constant.Stance
	Size   int
	Share  float64
}

// StanceBreakdown splits total size into support, skeptic and neutral
// buckets. Clusters with no stance count as neutral. An empty total yields
// no segments.
func StanceBreakdown(stances []*constant.Stance, sizes []int) []Segment {
	buckets := map[constant.Stance]int{}
	total := 0
	for i, size := range sizes {
		if size <= 0 {
			continue
		}
		stance := constant.StanceNeutral
		if i < len(stances) && stances[i] != nil {
			if _, ok := stanceColors[*stances[i]]; ok {
				stance = *stances[i]
			}
		}
		buckets[stance] += size
		total += size
	}
	if total == 0 {
		return nil
	}

	order := []constant.Stance{constant.StanceSupport, constant.StanceSkeptic, constant.StanceNeutral}
	segments := make([]Segment, 0, len(order))
	for _, stance := range order {
		segments = append(segments, Segment{
			Stance: stance,
			Size:   buckets[stance],
			Share:  float64(buckets[stance]) / float64(total) * 100,
		})
	}
	return segments
}

func StanceColor(stance constant.Stance) string {
	return stanceColors[stance]
}
