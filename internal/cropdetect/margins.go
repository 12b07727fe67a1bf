package cropdetect

import (
	"fmt"
	"math"

	cErrors "github.com/mantonx/ffcrop/internal/errors"
)

// DefaultTopPad is added to the top margin; the detector undercrops the top edge slightly
const DefaultTopPad = 2

// Margins are the distances from each frame edge to the picture
type Margins struct {
	Top    int
	Bottom int
	Left   int
	Right  int
}

// CropArg formats m for the cuvid decoder's -crop option (top x bottom x left x right)
func (m Margins) CropArg() string {
	return fmt.Sprintf("%dx%dx%dx%d", m.Top, m.Bottom, m.Left, m.Right)
}

// Negative reports whether any side is below zero
func (m Margins) Negative() bool {
	return m.Top < 0 || m.Bottom < 0 || m.Left < 0 || m.Right < 0
}

// Clamped returns m with negative sides raised to zero
func (m Margins) Clamped() Margins {
	return Margins{
		Top:    max(m.Top, 0),
		Bottom: max(m.Bottom, 0),
		Left:   max(m.Left, 0),
		Right:  max(m.Right, 0),
	}
}

// Resolve converts box into margins against dims:
//
//	top = y1 + topPad, bottom = height - y2, left = x1, right = width - x2
//
// When the box does not fit the frame the raw margins are returned together
// with ErrInconsistentGeometry so the caller can decide whether to clamp.
func Resolve(box CropBox, dims Dimensions, topPad int) (Margins, error) {
	top := int64(box.Y1) + int64(topPad)
	bottom := int64(dims.Height) - int64(box.Y2)
	left := int64(box.X1)
	right := int64(dims.Width) - int64(box.X2)

	for _, v := range []int64{top, bottom, left, right} {
		if v > math.MaxInt32 || v < math.MinInt32 {
			return Margins{}, cErrors.Newf(cErrors.ErrorTypeResolve, "resolve", cErrors.ErrInconsistentGeometry,
				"margin out of range for box %d,%d-%d,%d in %s", box.X1, box.Y1, box.X2, box.Y2, dims)
		}
	}

	m := Margins{Top: int(top), Bottom: int(bottom), Left: int(left), Right: int(right)}
	if m.Negative() {
		return m, cErrors.Newf(cErrors.ErrorTypeResolve, "resolve", cErrors.ErrInconsistentGeometry,
			"box %d,%d-%d,%d exceeds %s (margins %s)", box.X1, box.Y1, box.X2, box.Y2, dims, m.CropArg()).
			WithDetail("margins", m)
	}
	return m, nil
}
