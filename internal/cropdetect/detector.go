// Package cropdetect finds black borders with FFmpeg's cropdetect filter and
// turns the detector's report into crop geometry.
package cropdetect

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/ffcrop/internal/config"
	cErrors "github.com/mantonx/ffcrop/internal/errors"
	"github.com/mantonx/ffcrop/internal/logger"
	"github.com/mantonx/ffcrop/internal/transcode/ffmpeg"
)

// ScanMode selects how much of the input the diagnostic pass analyzes
type ScanMode string

const (
	// ScanFull analyzes every frame
	ScanFull ScanMode = "full"
	// ScanBounded seeks to the bounded offset and samples a few frames
	ScanBounded ScanMode = "bounded"
	// ScanQuick seeks to the quick offset and samples a few frames
	ScanQuick ScanMode = "quick"
)

// ParseScanMode validates a scan mode name
func ParseScanMode(s string) (ScanMode, error) {
	switch mode := ScanMode(s); mode {
	case ScanFull, ScanBounded, ScanQuick:
		return mode, nil
	default:
		return "", cErrors.ValidationError("parse_scan_mode", "unknown scan mode %q", s)
	}
}

// DiagnosticStarter launches a diagnostic FFmpeg pass
type DiagnosticStarter interface {
	StartDiagnostic(ctx context.Context, args []string) (*ffmpeg.LineStream, error)
}

// Detector runs the diagnostic pass and reduces its output to an Outcome
type Detector struct {
	logger  hclog.Logger
	starter DiagnosticStarter
	cfg     config.DetectConfig
	layout  Layout
}

// NewDetector creates a detector using cfg's filter constants and sampling
func NewDetector(log hclog.Logger, starter DiagnosticStarter, cfg config.DetectConfig) *Detector {
	if cfg.Marker == "" {
		cfg.Marker = DefaultMarker
	}
	return &Detector{
		logger:  logger.OrNull(log).Named("cropdetect"),
		starter: starter,
		cfg:     cfg,
		layout:  FFmpegLayout,
	}
}

// DiagnosticArgs builds the FFmpeg arguments for a pass over input that
// writes its throwaway output to scratch.
func (d *Detector) DiagnosticArgs(input, scratch string, mode ScanMode) ([]string, error) {
	args := []string{"-hide_banner", "-nostats"}

	var offset time.Duration
	switch mode {
	case ScanFull:
	case ScanBounded:
		offset = d.cfg.BoundedOffset
	case ScanQuick:
		offset = d.cfg.QuickOffset
	default:
		return nil, cErrors.ValidationError("diagnostic_args", "unknown scan mode %q", mode)
	}

	if mode != ScanFull {
		args = append(args, "-ss", formatSeconds(offset))
	}
	args = append(args, "-i", input)
	if mode != ScanFull {
		args = append(args, "-frames:v", strconv.Itoa(d.cfg.SampleFrames))
	}

	args = append(args,
		"-vf", fmt.Sprintf("cropdetect=%d:%d:%d", d.cfg.Limit, d.cfg.Round, d.cfg.Reset),
		"-y", scratch,
	)
	return args, nil
}

// Detect runs a diagnostic pass over input and returns the retained crop.
// A pass that exits non-zero fails even if it reported directives.
func (d *Detector) Detect(ctx context.Context, input, scratch string, mode ScanMode) (Outcome, error) {
	retainer, err := NewRetainer(d.cfg.Retention, d.cfg.Marker)
	if err != nil {
		return Outcome{}, cErrors.ValidationError("detect", "%v", err)
	}

	args, err := d.DiagnosticArgs(input, scratch, mode)
	if err != nil {
		return Outcome{}, err
	}

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	d.logger.Info("running diagnostic pass", "input", input, "mode", mode, "retention", d.cfg.Retention)

	stream, err := d.starter.StartDiagnostic(ctx, args)
	if err != nil {
		return Outcome{}, withInput(err, input)
	}

	// Only the filter's own lines count when the stock marker is used
	var src LineSource = stream
	if d.cfg.Marker == DefaultMarker {
		src = OnlyTagged(stream, FilterTag)
	}

	directive, found := Collect(src, d.cfg.Marker, retainer)
	if err := stream.Wait(); err != nil {
		return Outcome{}, withInput(err, input)
	}

	if !found {
		d.logger.Info("no crop directive reported", "input", input, "lines", stream.Lines())
		return NoBorders(), nil
	}

	box, err := Extract(directive, d.layout)
	if err != nil {
		d.logger.Error("unparseable crop directive", "directive", directive)
		return Outcome{}, withInput(err, input)
	}

	d.logger.Debug("retained crop directive", "directive", directive, "filter", box.Filter)
	return Borders(directive, box), nil
}

func withInput(err error, input string) error {
	var cErr *cErrors.CropError
	if errors.As(err, &cErr) && cErr.Input == "" {
		cErr.WithInput(input)
	}
	return err
}

// formatSeconds renders d the way FFmpeg's -ss accepts it
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
