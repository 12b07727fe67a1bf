package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "crop=", cfg.Detect.Marker)
	assert.Equal(t, 90*time.Second, cfg.Detect.BoundedOffset)
	assert.Equal(t, 1*time.Second, cfg.Detect.QuickOffset)
	assert.Equal(t, 10, cfg.Detect.SampleFrames)
	assert.Equal(t, 2, cfg.Resolve.TopPad)
	assert.Equal(t, "last", cfg.Detect.Retention)
	assert.Equal(t, []string{"-c:a", "copy"}, cfg.FFmpeg.SoftwareEncoderArgs)
	assert.NoError(t, Validate(cfg))
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Detect.ScratchDir)
	assert.NotEmpty(t, cfg.Journal.Path)
	assert.Equal(t, "ffmpeg", cfg.FFmpeg.FFmpegPath)
}

func TestLoad_ReturnsIndependentConfigs(t *testing.T) {
	a, err := Load("")
	require.NoError(t, err)
	a.Resolve.TopPad = 9
	a.FFmpeg.SoftwareEncoderArgs[0] = "-an"

	b, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2, b.Resolve.TopPad)
	assert.Equal(t, []string{"-c:a", "copy"}, b.FFmpeg.SoftwareEncoderArgs)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ffcrop.yaml")
	content := `
detect:
  bounded_offset: 45s
  sample_frames: 25
  retention: mode
resolve:
  top_pad: 4
output:
  suffix: -CROPPED
watch:
  extensions: [MKV, mp4]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Detect.BoundedOffset)
	assert.Equal(t, 25, cfg.Detect.SampleFrames)
	assert.Equal(t, "mode", cfg.Detect.Retention)
	assert.Equal(t, 4, cfg.Resolve.TopPad)
	assert.Equal(t, "-CROPPED", cfg.Output.Suffix)
	assert.Equal(t, []string{".mkv", ".mp4"}, cfg.Watch.Extensions)

	// Untouched sections keep their defaults
	assert.Equal(t, 1*time.Second, cfg.Detect.QuickOffset)
	assert.Equal(t, "crop=", cfg.Detect.Marker)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ffcrop.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"resolve":{"top_pad":6}}`), 0644))

	t.Setenv("FFCROP_TOP_PAD", "8")
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")
	t.Setenv("FFCROP_QUICK_OFFSET", "2500ms")
	t.Setenv("FFCROP_CLAMP_NEGATIVE", "true")
	t.Setenv("FFCROP_SOFTWARE_ENCODER_ARGS", "-c:v, libx264 ,-crf,20")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Resolve.TopPad)
	assert.True(t, cfg.Resolve.ClampNegative)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpeg.FFmpegPath)
	assert.Equal(t, 2500*time.Millisecond, cfg.Detect.QuickOffset)
	assert.Equal(t, []string{"-c:v", "libx264", "-crf", "20"}, cfg.FFmpeg.SoftwareEncoderArgs)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	dir := t.TempDir()
	bad := filepath.Join(dir, "ffcrop.toml")
	require.NoError(t, os.WriteFile(bad, []byte("x = 1"), 0644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "unsupported config file format")

	t.Setenv("FFCROP_SAMPLE_FRAMES", "many")
	_, err = Load("")
	assert.ErrorContains(t, err, "FFCROP_SAMPLE_FRAMES")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty marker", func(c *Config) { c.Detect.Marker = "" }},
		{"zero frames", func(c *Config) { c.Detect.SampleFrames = 0 }},
		{"negative offset", func(c *Config) { c.Detect.BoundedOffset = -time.Second }},
		{"unknown retention", func(c *Config) { c.Detect.Retention = "median" }},
		{"negative pad", func(c *Config) { c.Resolve.TopPad = -1 }},
		{"empty suffix", func(c *Config) { c.Output.Suffix = "" }},
		{"negative ratio", func(c *Config) { c.Output.MinFreeRatio = -0.5 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"negative limit", func(c *Config) { c.Detect.Limit = -1 }},
		{"unknown journal driver", func(c *Config) { c.Journal.Driver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Journal.Driver = "postgres" }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"empty queue", func(c *Config) { c.Server.QueueSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidateSchema(t *testing.T) {
	assert.NoError(t, ValidateSchema(DefaultConfig()))

	cfg := DefaultConfig()
	cfg.Detect.Retention = "mode"
	cfg.Journal.Driver = "postgres"
	cfg.Journal.DSN = "host=localhost user=ffcrop dbname=ffcrop"
	cfg.FFmpeg.SoftwareEncoderArgs = nil
	assert.NoError(t, ValidateSchema(cfg))

	// Validate accepts any non-negative limit; cropdetect tops out at 255
	cfg = DefaultConfig()
	cfg.Detect.Limit = 300
	require.NoError(t, Validate(cfg))
	assert.ErrorContains(t, ValidateSchema(cfg), "config does not match schema")

	cfg = DefaultConfig()
	cfg.Logging.Color = "sometimes"
	assert.Error(t, ValidateSchema(cfg))
}

func TestLoad_SchemaRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ffcrop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detect:\n  limit: 512\n"), 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "configuration validation failed")
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "ffcrop.yaml")

	cfg := DefaultConfig()
	cfg.Resolve.TopPad = 3
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Resolve.TopPad)
	assert.Equal(t, cfg.Detect.BoundedOffset, loaded.Detect.BoundedOffset)
}
