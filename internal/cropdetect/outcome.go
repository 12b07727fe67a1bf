package cropdetect

// Outcome is the result of the detection phase. A run that finds no directive
// is a valid, successful outcome, not an error.
type Outcome struct {
	Detected  bool
	Directive string
	Box       CropBox
}

// NoBorders is the outcome of a diagnostic pass that never reported a crop
func NoBorders() Outcome {
	return Outcome{}
}

// Borders is the outcome of a pass whose retained directive yielded box
func Borders(directive string, box CropBox) Outcome {
	return Outcome{Detected: true, Directive: directive, Box: box}
}

func (o Outcome) String() string {
	if !o.Detected {
		return "no borders detected"
	}
	return "borders detected: " + o.Box.Filter
}
