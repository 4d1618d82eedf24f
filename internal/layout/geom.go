package layout

// Rect represents a container geometry in logical pixels.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Orientation names a split direction issued to the window manager.
type Orientation string

const (
	SplitVertical   Orientation = "splitv"
	SplitHorizontal Orientation = "splith"
)

// SplitOrientation picks the split direction for a container based on its
// geometry. Tall containers split vertically, wide ones horizontally; ratio
// biases the decision (ratio > 1 requires the container to be that much wider
// before a horizontal split wins).
func SplitOrientation(r Rect, ratio float64) Orientation {
	if ratio <= 0 {
		ratio = 1.0
	}
	if float64(r.Height) > float64(r.Width)/ratio {
		return SplitVertical
	}
	return SplitHorizontal
}

// ResizePercentPoints computes the percentage-point target for a post-split
// resize given the container's share of its parent and a scaling factor.
func ResizePercentPoints(percent float64, factor float64) int {
	return int(percent * factor * 100)
}
