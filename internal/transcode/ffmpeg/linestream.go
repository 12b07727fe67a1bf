package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	cErrors "github.com/mantonx/ffcrop/internal/errors"
)

// maxLineBytes bounds a single diagnostic line
const maxLineBytes = 1024 * 1024

// LineStream yields a running process's diagnostic output one line at a time.
// It follows the bufio.Scanner shape: Scan until false, then Wait.
type LineStream struct {
	ctx     context.Context
	proc    Process
	scanner *bufio.Scanner
	tail    *lineTail
	lines   int
	waited  bool
}

func newLineStream(ctx context.Context, proc Process) *LineStream {
	return &LineStream{
		ctx:     ctx,
		proc:    proc,
		scanner: newLineScanner(proc.Stderr()),
		tail:    newLineTail(stderrTailLines),
	}
}

// Scan advances to the next line. It returns false when the process closes
// its output or reading fails.
func (s *LineStream) Scan() bool {
	if !s.scanner.Scan() {
		return false
	}
	s.lines++
	s.tail.Add(s.scanner.Text())
	return true
}

// Text returns the current line
func (s *LineStream) Text() string {
	return s.scanner.Text()
}

// Lines returns how many lines have been read so far
func (s *LineStream) Lines() int {
	return s.lines
}

// Wait drains any unread output, waits for the process to exit and reports
// how the pass ended. A process killed by its context deadline yields
// ErrTimeout; a non-zero exit status yields ErrDiagnosticFailed even when
// lines were captured.
func (s *LineStream) Wait() error {
	if s.waited {
		return nil
	}
	s.waited = true

	for s.Scan() {
	}
	scanErr := s.scanner.Err()
	if scanErr != nil {
		// Unblock the writer so Wait cannot hang on a full pipe.
		_, _ = io.Copy(io.Discard, s.proc.Stderr())
	}

	waitErr := s.proc.Wait()

	if ctxErr := contextError(s.ctx); ctxErr != nil && waitErr != nil {
		return cErrors.New(cErrors.ErrorTypeCapture, "diagnostic", ctxErr).
			WithDetail("lines", s.lines)
	}

	if scanErr != nil {
		return cErrors.CaptureError("diagnostic", scanErr).WithDetail("lines", s.lines)
	}

	if waitErr != nil {
		return cErrors.New(cErrors.ErrorTypeCapture, "diagnostic",
			fmt.Errorf("%w: %v", cErrors.ErrDiagnosticFailed, waitErr)).
			WithDetail("lines", s.lines).
			WithDetail("stderr", s.tail.String())
	}

	return nil
}

// newLineScanner returns a scanner that treats both \n and \r as line ends,
// since FFmpeg rewrites its status line with carriage returns.
func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	scanner.Split(scanLinesCR)
	return scanner
}

func scanLinesCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance = i + 1
		// Treat \r\n as one terminator
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		} else if data[i] == '\r' && i+1 == len(data) && !atEOF {
			// Need more data to know whether \n follows
			return 0, nil, nil
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// lineTail keeps the last n non-empty lines
type lineTail struct {
	lines []string
	max   int
}

func newLineTail(n int) *lineTail {
	return &lineTail{max: n}
}

func (t *lineTail) Add(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *lineTail) String() string {
	return strings.Join(t.lines, "\n")
}
