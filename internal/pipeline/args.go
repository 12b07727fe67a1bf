package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/mantonx/ffcrop/internal/config"
	"github.com/mantonx/ffcrop/internal/cropdetect"
)

// SoftwareArgs builds a crop through FFmpeg's crop filter using the
// detector's filter expression verbatim.
func SoftwareArgs(input, filter string, encoderArgs []string, output string) []string {
	args := []string{"-i", input, "-vf", filter}
	args = append(args, encoderArgs...)
	return append(args, "-y", output)
}

// AcceleratedArgs builds a crop done by the hardware decoder from per-side margins
func AcceleratedArgs(cfg config.FFmpegConfig, input string, margins cropdetect.Margins, output string) []string {
	return []string{
		"-hwaccel", cfg.HWAccel,
		"-c:v", cfg.HWDecoder,
		"-crop", margins.CropArg(),
		"-i", input,
		"-c:v", cfg.HWEncoder,
		"-c:a", "copy",
		"-y", output,
	}
}

// DefaultOutputPath places the result next to input: dir/stem<suffix>.ext
func DefaultOutputPath(input, suffix string) string {
	dir, base := filepath.Split(input)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, stem+suffix+ext)
}
