package cropdetect

import (
	"fmt"
	"strings"
)

// DefaultMarker identifies a cropdetect directive in FFmpeg's log output
const DefaultMarker = "crop="

// FilterTag prefixes every log line the cropdetect filter instance writes
const FilterTag = "[Parsed_cropdetect_"

// LineSource yields diagnostic lines in stream order
type LineSource interface {
	Scan() bool
	Text() string
}

// Retainer folds matching directives into the one the pipeline acts on
type Retainer interface {
	// Observe records a matching directive
	Observe(directive string)
	// Retained returns the chosen directive, or false if nothing was observed
	Retained() (string, bool)
}

// Retention strategy names
const (
	RetainLast = "last"
	RetainMode = "mode"
)

// NewRetainer returns a fresh retainer for the named strategy
func NewRetainer(name, marker string) (Retainer, error) {
	switch name {
	case "", RetainLast:
		return &LastMatch{}, nil
	case RetainMode:
		return NewModeMatch(marker), nil
	default:
		return nil, fmt.Errorf("unknown retention strategy %q", name)
	}
}

// Collect reads src to exhaustion and returns the retained directive. Lines
// not containing marker are ignored.
func Collect(src LineSource, marker string, r Retainer) (string, bool) {
	if marker == "" {
		marker = DefaultMarker
	}
	for src.Scan() {
		line := src.Text()
		if strings.Contains(line, marker) {
			r.Observe(line)
		}
	}
	return r.Retained()
}

// taggedSource passes through only the lines containing tag
type taggedSource struct {
	src LineSource
	tag string
}

// OnlyTagged filters src down to the lines containing tag. FFmpeg echoes
// file names and metadata that may contain the marker too.
func OnlyTagged(src LineSource, tag string) LineSource {
	return &taggedSource{src: src, tag: tag}
}

func (t *taggedSource) Scan() bool {
	for t.src.Scan() {
		if strings.Contains(t.src.Text(), t.tag) {
			return true
		}
	}
	return false
}

func (t *taggedSource) Text() string {
	return t.src.Text()
}

// LastMatch keeps the most recent directive. The detector refines its
// estimate on every analyzed frame, so the final line is the converged one.
type LastMatch struct {
	last string
	seen bool
}

func (m *LastMatch) Observe(directive string) {
	m.last = directive
	m.seen = true
}

func (m *LastMatch) Retained() (string, bool) {
	return m.last, m.seen
}

// ModeMatch keeps the directive whose crop expression was reported most
// often. Ties go to the expression seen most recently, and the directive
// returned is the last one carrying the winning expression.
type ModeMatch struct {
	marker string
	seq    int
	counts map[string]*modeEntry
}

type modeEntry struct {
	count     int
	lastSeq   int
	directive string
}

// NewModeMatch creates a ModeMatch keyed on the token carrying marker
func NewModeMatch(marker string) *ModeMatch {
	if marker == "" {
		marker = DefaultMarker
	}
	return &ModeMatch{marker: marker, counts: make(map[string]*modeEntry)}
}

func (m *ModeMatch) Observe(directive string) {
	m.seq++
	key := cropExpression(directive, m.marker)

	entry, ok := m.counts[key]
	if !ok {
		entry = &modeEntry{}
		m.counts[key] = entry
	}
	entry.count++
	entry.lastSeq = m.seq
	entry.directive = directive
}

func (m *ModeMatch) Retained() (string, bool) {
	var best *modeEntry
	for _, entry := range m.counts {
		if best == nil || entry.count > best.count ||
			(entry.count == best.count && entry.lastSeq > best.lastSeq) {
			best = entry
		}
	}
	if best == nil {
		return "", false
	}
	return best.directive, true
}

// cropExpression returns the last whitespace token containing marker, or the
// whole line if none does.
func cropExpression(line, marker string) string {
	fields := strings.Fields(line)
	for i := len(fields) - 1; i >= 0; i-- {
		if strings.Contains(fields[i], marker) {
			return fields[i]
		}
	}
	return line
}
