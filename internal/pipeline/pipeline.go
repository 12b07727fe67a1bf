// Package pipeline removes black borders from a video: it detects them with
// a diagnostic pass, resolves the crop geometry for the chosen strategy and
// hands the final invocation to FFmpeg.
package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/ffcrop/internal/config"
	"github.com/mantonx/ffcrop/internal/cropdetect"
	cErrors "github.com/mantonx/ffcrop/internal/errors"
	"github.com/mantonx/ffcrop/internal/logger"
)

// Strategy selects how the final crop is performed
type Strategy string

const (
	// StrategySoftware crops with the detector's crop filter expression
	StrategySoftware Strategy = "software"
	// StrategyAccelerated crops in the hardware decoder using per-side margins
	StrategyAccelerated Strategy = "accelerated"
)

// ParseStrategy validates a strategy name
func ParseStrategy(s string) (Strategy, error) {
	switch strategy := Strategy(s); strategy {
	case StrategySoftware, StrategyAccelerated:
		return strategy, nil
	default:
		return "", cErrors.ValidationError("parse_strategy", "unknown strategy %q", s)
	}
}

// Detector runs the diagnostic pass
type Detector interface {
	Detect(ctx context.Context, input, scratch string, mode cropdetect.ScanMode) (cropdetect.Outcome, error)
}

// DimensionProber reports the input's frame size as WIDTHxHEIGHT text
type DimensionProber interface {
	ProbeDimensions(ctx context.Context, input string) (string, error)
}

// Transcoder runs a finished FFmpeg argument list to completion
type Transcoder interface {
	Transcode(ctx context.Context, args []string) error
}

// Options describe one run
type Options struct {
	RunID     string // generated when empty
	Input     string
	Output    string // defaults to DefaultOutputPath
	Strategy  Strategy
	Scan      cropdetect.ScanMode
	DryRun    bool
	Overwrite bool // replace an existing output file
}

// Result describes how a run ended
type Result struct {
	RunID      string
	Input      string
	Output     string
	Strategy   Strategy
	Scan       cropdetect.ScanMode
	State      State
	Outcome    cropdetect.Outcome
	Dimensions *cropdetect.Dimensions
	Margins    *cropdetect.Margins
	Args       []string
	DryRun     bool
	Clamped    bool
	StartedAt  time.Time
	Duration   time.Duration
	Err        error
}

// Cropped reports whether the run produced an output file
func (r *Result) Cropped() bool {
	return r.State == StateDone && r.Outcome.Detected && !r.DryRun
}

// TransitionFunc observes state changes
type TransitionFunc func(runID string, from, to State)

// Pipeline is the border removal state machine. Runs are sequential: each
// phase waits for its external process before the next one starts.
type Pipeline struct {
	logger     hclog.Logger
	detector   Detector
	prober     DimensionProber
	transcoder Transcoder

	ffmpegCfg  config.FFmpegConfig
	scratchDir string
	resolveCfg config.ResolveConfig
	outputCfg  config.OutputConfig

	freeSpace    FreeSpaceFunc
	onTransition TransitionFunc
}

// New creates a pipeline from its collaborators and cfg
func New(log hclog.Logger, detector Detector, prober DimensionProber, transcoder Transcoder, cfg *config.Config) *Pipeline {
	return &Pipeline{
		logger:     logger.OrNull(log).Named("pipeline"),
		detector:   detector,
		prober:     prober,
		transcoder: transcoder,
		ffmpegCfg:  cfg.FFmpeg,
		scratchDir: cfg.Detect.ScratchDir,
		resolveCfg: cfg.Resolve,
		outputCfg:  cfg.Output,
		freeSpace:  DiskFree,
	}
}

// WithFreeSpace replaces the disk space source used by the preflight check
func (p *Pipeline) WithFreeSpace(fn FreeSpaceFunc) *Pipeline {
	p.freeSpace = fn
	return p
}

// OnTransition registers fn to be called on every state change
func (p *Pipeline) OnTransition(fn TransitionFunc) *Pipeline {
	p.onTransition = fn
	return p
}

// run carries the mutable state of one Run call
type run struct {
	p      *Pipeline
	result *Result
	log    hclog.Logger
}

func (r *run) transition(to State) {
	from := r.result.State
	if from == StateAborted {
		return
	}
	if !canTransition(from, to) {
		// Programming error; surface it on the result rather than panicking.
		r.result.Err = &TransitionError{RunID: r.result.RunID, From: from, To: to}
		r.result.State = StateAborted
		return
	}
	r.log.Debug("state transition", "from", from, "to", to)
	r.result.State = to
	if r.p.onTransition != nil {
		r.p.onTransition(r.result.RunID, from, to)
	}
}

func (r *run) abort(err error) (*Result, error) {
	r.transition(StateAborted)
	if r.result.Err == nil {
		r.result.Err = err
	}
	r.result.Duration = time.Since(r.result.StartedAt)
	r.log.Error("run aborted", "state", r.result.State, "error", r.result.Err)
	return r.result, r.result.Err
}

func (r *run) done() (*Result, error) {
	r.transition(StateDone)
	r.result.Duration = time.Since(r.result.StartedAt)
	if r.result.Err != nil {
		return r.result, r.result.Err
	}
	return r.result, nil
}

// Run removes the borders of opts.Input. The returned Result is never nil;
// its State is StateDone or StateAborted. NoBordersDetected is a successful
// run that produces no output.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	result := &Result{
		RunID:     runID,
		Input:     opts.Input,
		Output:    opts.Output,
		Strategy:  opts.Strategy,
		Scan:      opts.Scan,
		State:     StateIdle,
		DryRun:    opts.DryRun,
		StartedAt: time.Now(),
	}
	r := &run{p: p, result: result, log: p.logger.With("run_id", runID, "input", opts.Input)}

	if err := p.validate(&opts); err != nil {
		return r.abort(err)
	}
	result.Output = opts.Output
	result.Strategy = opts.Strategy
	result.Scan = opts.Scan

	// Detecting
	r.transition(StateDetecting)
	scratch := NewScratch(p.scratchDir, opts.Input)
	defer func() {
		if err := scratch.Remove(); err != nil {
			r.log.Warn("failed to remove scratch file", "path", scratch.Path, "error", err)
		}
	}()

	outcome, err := p.detector.Detect(ctx, opts.Input, scratch.Path, opts.Scan)
	if err != nil {
		return r.abort(err)
	}
	result.Outcome = outcome

	if !outcome.Detected {
		r.log.Info("no black borders detected")
		return r.done()
	}
	r.log.Info("borders detected", "filter", outcome.Box.Filter)

	switch opts.Strategy {
	case StrategyAccelerated:
		// Resolving
		r.transition(StateResolving)
		margins, err := p.resolve(ctx, r, opts.Input, outcome.Box)
		if err != nil {
			return r.abort(err)
		}
		result.Margins = &margins
		result.Args = AcceleratedArgs(p.ffmpegCfg, opts.Input, margins, opts.Output)
	default:
		result.Args = SoftwareArgs(opts.Input, outcome.Box.Filter, p.ffmpegCfg.SoftwareEncoderArgs, opts.Output)
	}

	if opts.DryRun {
		r.log.Info("dry run, skipping crop", "args", result.Args)
		return r.done()
	}

	// Cropping
	r.transition(StateCropping)
	if err := checkFreeSpace(p.freeSpace, opts.Input, opts.Output, p.outputCfg.MinFreeRatio); err != nil {
		return r.abort(err)
	}

	_, statErr := os.Stat(opts.Output)
	preexisting := statErr == nil

	if err := p.transcoder.Transcode(ctx, result.Args); err != nil {
		if !preexisting {
			p.removePartialOutput(r, opts.Output)
		}
		return r.abort(cErrors.Wrap(err, cErrors.ErrorTypeTranscode, "crop"))
	}

	r.log.Info("crop complete", "output", opts.Output)
	return r.done()
}

func (p *Pipeline) validate(opts *Options) error {
	if opts.Input == "" {
		return cErrors.ValidationError("run", "input path is required")
	}

	info, err := os.Stat(opts.Input)
	if err != nil {
		return cErrors.ValidationError("run", "cannot read input: %v", err).WithInput(opts.Input)
	}
	if info.IsDir() {
		return cErrors.ValidationError("run", "input is a directory").WithInput(opts.Input)
	}

	if opts.Strategy == "" {
		opts.Strategy = StrategySoftware
	}
	if _, err := ParseStrategy(string(opts.Strategy)); err != nil {
		return err
	}

	if opts.Scan == "" {
		opts.Scan = cropdetect.ScanBounded
	}
	if _, err := cropdetect.ParseScanMode(string(opts.Scan)); err != nil {
		return err
	}

	if opts.Output == "" {
		opts.Output = DefaultOutputPath(opts.Input, p.outputCfg.Suffix)
	}
	if sameFile(opts.Input, opts.Output) {
		return cErrors.ValidationError("run", "output would overwrite input").WithInput(opts.Input)
	}
	if !opts.Overwrite {
		if _, err := os.Stat(opts.Output); err == nil {
			return cErrors.ValidationError("run", "output %s already exists", opts.Output).WithInput(opts.Input)
		}
	}

	return nil
}

// resolve probes the frame size and converts box into margins
func (p *Pipeline) resolve(ctx context.Context, r *run, input string, box cropdetect.CropBox) (cropdetect.Margins, error) {
	raw, err := p.prober.ProbeDimensions(ctx, input)
	if err != nil {
		return cropdetect.Margins{}, err
	}

	dims, err := cropdetect.ParseDimensions(raw)
	if err != nil {
		return cropdetect.Margins{}, cErrors.Wrap(err, cErrors.ErrorTypeConversion, "resolve")
	}
	r.result.Dimensions = &dims

	margins, err := cropdetect.Resolve(box, dims, p.resolveCfg.TopPad)
	if err != nil {
		if !errors.Is(err, cErrors.ErrInconsistentGeometry) || !p.resolveCfg.ClampNegative || !margins.Negative() {
			return cropdetect.Margins{}, err
		}
		r.log.Warn("crop box exceeds frame, clamping margins", "dimensions", dims.String(), "margins", margins.CropArg())
		margins = margins.Clamped()
		r.result.Clamped = true
	}

	r.log.Debug("resolved margins", "dimensions", dims.String(), "margins", margins.CropArg())
	return margins, nil
}

func (p *Pipeline) removePartialOutput(r *run, output string) {
	if err := os.Remove(output); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.log.Warn("failed to remove partial output", "output", output, "error", err)
	}
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}
