package cropdetect

import (
	"math"
	"strconv"
	"strings"

	cErrors "github.com/mantonx/ffcrop/internal/errors"
)

// Layout gives the whitespace token index of each field in a directive.
// A negative index counts from the end of the line, so -1 is the last token.
type Layout struct {
	X1, X2, Y1, Y2 int
	Crop           int
}

// FFmpegLayout matches the cropdetect log line:
//
//	[Parsed_cropdetect_0 @ 0x5583c1e0] x1:0 x2:1279 y1:88 y2:631 w:1280 h:544 x:0 y:88 pts:3003 t:0.033367 crop=1280:544:0:88
//
// Builds that print a limit: token before crop= keep the same positions.
var FFmpegLayout = Layout{X1: 3, X2: 4, Y1: 5, Y2: 6, Crop: -1}

// CropBox is the picture rectangle a directive reports
type CropBox struct {
	X1, Y1 int
	X2, Y2 int

	// Filter is the directive's crop=w:h:x:y expression, passed to FFmpeg as is
	Filter string
}

// Extract parses one directive into a CropBox using layout. It is the only
// place that knows where FFmpeg puts each field.
func Extract(directive string, layout Layout) (CropBox, error) {
	tokens := strings.Fields(directive)

	x1, err := labeledField(tokens, layout.X1, "x1")
	if err != nil {
		return CropBox{}, err
	}
	x2, err := labeledField(tokens, layout.X2, "x2")
	if err != nil {
		return CropBox{}, err
	}
	y1, err := labeledField(tokens, layout.Y1, "y1")
	if err != nil {
		return CropBox{}, err
	}
	y2, err := labeledField(tokens, layout.Y2, "y2")
	if err != nil {
		return CropBox{}, err
	}

	filter, ok := token(tokens, layout.Crop)
	if !ok {
		return CropBox{}, cErrors.ParseError("extract", "crop expression missing")
	}
	if !strings.HasPrefix(filter, DefaultMarker) || len(filter) == len(DefaultMarker) {
		return CropBox{}, cErrors.ParseError("extract", "unexpected crop expression %q", filter)
	}

	if x1 > x2 || y1 > y2 {
		return CropBox{}, cErrors.ParseError("extract", "inverted rectangle x1:%d x2:%d y1:%d y2:%d", x1, x2, y1, y2)
	}

	return CropBox{X1: x1, Y1: y1, X2: x2, Y2: y2, Filter: filter}, nil
}

func token(tokens []string, index int) (string, bool) {
	if index < 0 {
		index += len(tokens)
	}
	if index < 0 || index >= len(tokens) {
		return "", false
	}
	return tokens[index], true
}

// labeledField reads a "label:value" token as a non-negative 32-bit integer
func labeledField(tokens []string, index int, label string) (int, error) {
	tok, ok := token(tokens, index)
	if !ok {
		return 0, cErrors.ParseError("extract", "field %q missing", label)
	}

	name, value, found := strings.Cut(tok, ":")
	if !found || name != label {
		return 0, cErrors.ParseError("extract", "expected field %q, found %q", label, tok)
	}

	n, err := strconv.ParseInt(value, 10, 32)
	if err != nil || n < 0 || n > math.MaxInt32 {
		return 0, cErrors.ParseError("extract", "field %q has invalid value %q", label, value)
	}
	return int(n), nil
}
