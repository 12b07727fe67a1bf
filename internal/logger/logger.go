// Package logger builds the hclog loggers used throughout ffcrop.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/ffcrop/internal/config"
)

// Name is the root logger name; components derive sub-loggers with Named.
const Name = "ffcrop"

// New creates a logger from the logging configuration. A nil out writes to stderr.
func New(cfg config.LoggingConfig, out io.Writer) (hclog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	color, err := parseColor(cfg.Color)
	if err != nil {
		return nil, err
	}

	if out == nil {
		out = os.Stderr
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       Name,
		Level:      level,
		Output:     out,
		JSONFormat: cfg.Format == "json",
		Color:      color,
	}), nil
}

// ParseLevel converts a configured level name to an hclog level
func ParseLevel(s string) (hclog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return hclog.Info, nil
	}
	level := hclog.LevelFromString(s)
	if level == hclog.NoLevel {
		return hclog.NoLevel, fmt.Errorf("unknown log level: %s", s)
	}
	return level, nil
}

func parseColor(s string) (hclog.ColorOption, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return hclog.AutoColor, nil
	case "always", "on":
		return hclog.ForceColor, nil
	case "never", "off":
		return hclog.ColorOff, nil
	default:
		return hclog.ColorOff, fmt.Errorf("unknown color option: %s", s)
	}
}

// OrNull returns l, or a logger that discards everything when l is nil
func OrNull(l hclog.Logger) hclog.Logger {
	if l == nil {
		return hclog.NewNullLogger()
	}
	return l
}
