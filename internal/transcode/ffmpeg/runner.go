package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/ffcrop/internal/config"
	cErrors "github.com/mantonx/ffcrop/internal/errors"
	"github.com/mantonx/ffcrop/internal/logger"
)

// stderrTailLines is how many trailing stderr lines are kept for error reports
const stderrTailLines = 12

// CommandRunner interface for command execution (enables mocking in tests)
type CommandRunner interface {
	// Run executes a command to completion and returns its standard output
	Run(ctx context.Context, cmd string, args ...string) ([]byte, error)
	// Start launches a command with its standard error attached for reading
	Start(ctx context.Context, cmd string, args ...string) (Process, error)
}

// Process is a started command whose standard error is being captured
type Process interface {
	Stderr() io.Reader
	Wait() error
}

// DefaultCommandRunner implements CommandRunner using os/exec
type DefaultCommandRunner struct {
	// WaitDelay bounds how long Wait blocks after the context ends
	WaitDelay time.Duration
}

// Run executes a command using os/exec
func (r *DefaultCommandRunner) Run(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	command := exec.CommandContext(ctx, cmd, args...)
	command.WaitDelay = r.waitDelay()

	var stderr bytes.Buffer
	command.Stderr = &stderr

	out, err := command.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}

// Start launches a command using os/exec and attaches its stderr
func (r *DefaultCommandRunner) Start(ctx context.Context, cmd string, args ...string) (Process, error) {
	command := exec.CommandContext(ctx, cmd, args...)
	command.WaitDelay = r.waitDelay()

	stderr, err := command.StderrPipe()
	if err != nil {
		return nil, cErrors.CaptureError("attach_stderr", err)
	}

	if err := command.Start(); err != nil {
		return nil, cErrors.SpawnError("start", err)
	}

	return &execProcess{cmd: command, stderr: stderr}, nil
}

func (r *DefaultCommandRunner) waitDelay() time.Duration {
	if r.WaitDelay > 0 {
		return r.WaitDelay
	}
	return 5 * time.Second
}

type execProcess struct {
	cmd    *exec.Cmd
	stderr io.Reader
}

func (p *execProcess) Stderr() io.Reader { return p.stderr }
func (p *execProcess) Wait() error       { return p.cmd.Wait() }

// Runner drives the external encoder and prober
type Runner struct {
	logger      hclog.Logger
	execer      CommandRunner
	ffmpegPath  string
	ffprobePath string
	cropTimeout time.Duration
}

// ProgressUpdate contains progress information from FFmpeg
type ProgressUpdate struct {
	Frame int64
	FPS   float64
	Time  time.Duration
	Speed float64
}

// NewRunner creates a new FFmpeg runner
func NewRunner(log hclog.Logger, cfg config.FFmpegConfig) *Runner {
	return NewRunnerWithExecutor(log, cfg, &DefaultCommandRunner{})
}

// NewRunnerWithExecutor creates a new FFmpeg runner with custom command executor (for testing)
func NewRunnerWithExecutor(log hclog.Logger, cfg config.FFmpegConfig, execer CommandRunner) *Runner {
	ffmpegPath := cfg.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	ffprobePath := cfg.FFprobePath
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	return &Runner{
		logger:      logger.OrNull(log).Named("ffmpeg"),
		execer:      execer,
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		cropTimeout: cfg.CropTimeout,
	}
}

// Transcode runs FFmpeg with args to completion. A non-zero exit status is
// reported as ErrTranscodeFailed together with the tail of stderr.
func (r *Runner) Transcode(ctx context.Context, args []string) error {
	r.logger.Info("executing FFmpeg command", "command", r.ffmpegPath, "args", strings.Join(args, " "))

	if r.cropTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cropTimeout)
		defer cancel()
	}

	proc, err := r.execer.Start(ctx, r.ffmpegPath, args...)
	if err != nil {
		return startError("transcode", err)
	}

	tail := newLineTail(stderrTailLines)
	scanErr := r.monitorProgress(proc.Stderr(), tail)
	if scanErr != nil {
		// Keep draining so the process cannot block on a full pipe
		_, _ = io.Copy(io.Discard, proc.Stderr())
	}

	if err := proc.Wait(); err != nil {
		if ctxErr := contextError(ctx); ctxErr != nil {
			return cErrors.TranscodeError("transcode", ctxErr)
		}

		stderrTail := tail.String()
		tErr := cErrors.TranscodeError("transcode", fmt.Errorf("%w: %v", cErrors.ErrTranscodeFailed, err)).
			WithDetail("stderr", stderrTail)
		if isHardwareAccelError(stderrTail) {
			tErr = tErr.WithDetail("hint", "hardware decoder unavailable; retry with the software strategy")
		}
		return tErr
	}

	if scanErr != nil {
		r.logger.Warn("error reading FFmpeg output", "error", scanErr)
	}

	return nil
}

// StartDiagnostic launches FFmpeg for a diagnostic pass and returns its
// standard error as a line stream. The caller must call Wait on the stream.
func (r *Runner) StartDiagnostic(ctx context.Context, args []string) (*LineStream, error) {
	r.logger.Debug("starting diagnostic pass", "command", r.ffmpegPath, "args", strings.Join(args, " "))

	proc, err := r.execer.Start(ctx, r.ffmpegPath, args...)
	if err != nil {
		return nil, startError("start_diagnostic", err)
	}

	return newLineStream(ctx, proc), nil
}

// ProbeDimensions asks FFprobe for the first video stream's size and returns
// the raw "WIDTHxHEIGHT" text.
func (r *Runner) ProbeDimensions(ctx context.Context, inputPath string) (string, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		inputPath,
	}

	out, err := r.execer.Run(ctx, r.ffprobePath, args...)
	if err != nil {
		return "", cErrors.ProbeError("probe_dimensions", err).WithInput(inputPath)
	}

	text := strings.TrimSpace(string(out))
	if text == "" {
		return "", cErrors.ProbeError("probe_dimensions", errors.New("no video stream reported")).WithInput(inputPath)
	}

	// Multi-line output means several streams matched; the first one wins.
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}

	r.logger.Debug("probed dimensions", "input", inputPath, "dimensions", text)
	return text, nil
}

var (
	frameRegex = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRegex   = regexp.MustCompile(`fps=\s*([\d.]+)`)
	timeRegex  = regexp.MustCompile(`time=(\d{2}):(\d{2}):(\d{2}\.\d{2})`)
	speedRegex = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// parseProgress extracts progress fields from one FFmpeg status line
func parseProgress(line string) (ProgressUpdate, bool) {
	update := ProgressUpdate{}

	matches := frameRegex.FindStringSubmatch(line)
	if matches == nil {
		return update, false
	}
	if frame, err := strconv.ParseInt(matches[1], 10, 64); err == nil {
		update.Frame = frame
	}

	if matches := fpsRegex.FindStringSubmatch(line); matches != nil {
		if fps, err := strconv.ParseFloat(matches[1], 64); err == nil {
			update.FPS = fps
		}
	}

	if matches := timeRegex.FindStringSubmatch(line); matches != nil {
		hours, _ := strconv.Atoi(matches[1])
		minutes, _ := strconv.Atoi(matches[2])
		seconds, _ := strconv.ParseFloat(matches[3], 64)
		update.Time = time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds*float64(time.Second))
	}

	if matches := speedRegex.FindStringSubmatch(line); matches != nil {
		if speed, err := strconv.ParseFloat(matches[1], 64); err == nil {
			update.Speed = speed
		}
	}

	return update, true
}

// monitorProgress drains FFmpeg stderr, logging progress and keeping a tail
func (r *Runner) monitorProgress(stderr io.Reader, tail *lineTail) error {
	scanner := newLineScanner(stderr)

	for scanner.Scan() {
		line := scanner.Text()
		if update, ok := parseProgress(line); ok {
			r.logger.Debug("transcoding progress", "frame", update.Frame, "fps", update.FPS, "time", update.Time, "speed", update.Speed)
			continue
		}
		tail.Add(line)
	}

	return scanner.Err()
}

// isHardwareAccelError checks if FFmpeg output points at a hardware acceleration failure
func isHardwareAccelError(output string) bool {
	text := strings.ToLower(output)

	hardwareErrors := []string{
		"function not implemented",
		"no device available",
		"cannot load libcuda",
		"cannot load libnvcuvid",
		"device creation failed",
		"cuvid",
		"nvenc",
	}

	for _, pattern := range hardwareErrors {
		if strings.Contains(text, pattern) {
			return true
		}
	}

	return false
}

// startError classifies a failed Start; errors already carrying a type keep it
func startError(op string, err error) error {
	var cErr *cErrors.CropError
	if errors.As(err, &cErr) {
		return err
	}
	return cErrors.SpawnError(op, err)
}

// contextError maps a finished context to the timeout/cancel sentinels
func contextError(ctx context.Context) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return cErrors.ErrTimeout
	case errors.Is(ctx.Err(), context.Canceled):
		return cErrors.ErrCancelled
	default:
		return nil
	}
}
