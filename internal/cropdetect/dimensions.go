package cropdetect

import (
	"strconv"
	"strings"

	cErrors "github.com/mantonx/ffcrop/internal/errors"
)

// Dimensions is the original frame size of the input's first video stream
type Dimensions struct {
	Width  int
	Height int
}

func (d Dimensions) String() string {
	return strconv.Itoa(d.Width) + "x" + strconv.Itoa(d.Height)
}

// ParseDimensions parses the prober's "WIDTHxHEIGHT" text
func ParseDimensions(s string) (Dimensions, error) {
	parts := strings.Split(strings.TrimSpace(s), "x")
	if len(parts) != 2 {
		return Dimensions{}, cErrors.ConversionError("parse_dimensions", "expected WIDTHxHEIGHT, got %q", s)
	}

	width, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil || width <= 0 {
		return Dimensions{}, cErrors.ConversionError("parse_dimensions", "invalid width %q", parts[0])
	}
	height, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil || height <= 0 {
		return Dimensions{}, cErrors.ConversionError("parse_dimensions", "invalid height %q", parts[1])
	}

	return Dimensions{Width: int(width), Height: int(height)}, nil
}
