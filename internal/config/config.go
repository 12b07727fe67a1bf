// Package config loads ffcrop configuration from defaults, an optional YAML or
// JSON file, and FFCROP_* environment variables, in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	// External tool configuration
	FFmpeg FFmpegConfig `yaml:"ffmpeg" json:"ffmpeg"`

	// Border detection configuration
	Detect DetectConfig `yaml:"detect" json:"detect"`

	// Margin resolution configuration
	Resolve ResolveConfig `yaml:"resolve" json:"resolve"`

	// Output configuration
	Output OutputConfig `yaml:"output" json:"output"`

	// Run history configuration
	Journal JournalConfig `yaml:"journal" json:"journal"`

	// Drop-folder configuration
	Watch WatchConfig `yaml:"watch" json:"watch"`

	// Job server configuration
	Server ServerConfig `yaml:"server" json:"server"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// FFmpegConfig holds encoder/prober locations and crop invocation settings
type FFmpegConfig struct {
	FFmpegPath          string        `yaml:"ffmpeg_path" json:"ffmpeg_path" env:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath         string        `yaml:"ffprobe_path" json:"ffprobe_path" env:"FFPROBE_PATH" default:"ffprobe"`
	HWAccel             string        `yaml:"hwaccel" json:"hwaccel" env:"FFCROP_HWACCEL" default:"cuda"`
	HWDecoder           string        `yaml:"hw_decoder" json:"hw_decoder" env:"FFCROP_HW_DECODER" default:"h264_cuvid"`
	HWEncoder           string        `yaml:"hw_encoder" json:"hw_encoder" env:"FFCROP_HW_ENCODER" default:"h264_nvenc"`
	SoftwareEncoderArgs []string      `yaml:"software_encoder_args" json:"software_encoder_args" env:"FFCROP_SOFTWARE_ENCODER_ARGS"`
	CropTimeout         time.Duration `yaml:"crop_timeout" json:"crop_timeout" env:"FFCROP_CROP_TIMEOUT"`
}

// DetectConfig holds cropdetect filter constants and sampling settings
type DetectConfig struct {
	Marker        string        `yaml:"marker" json:"marker" env:"FFCROP_DETECT_MARKER" default:"crop="`
	Limit         int           `yaml:"limit" json:"limit" env:"FFCROP_DETECT_LIMIT" default:"24"`
	Round         int           `yaml:"round" json:"round" env:"FFCROP_DETECT_ROUND" default:"16"`
	Reset         int           `yaml:"reset" json:"reset" env:"FFCROP_DETECT_RESET" default:"0"`
	BoundedOffset time.Duration `yaml:"bounded_offset" json:"bounded_offset" env:"FFCROP_BOUNDED_OFFSET" default:"90s"`
	QuickOffset   time.Duration `yaml:"quick_offset" json:"quick_offset" env:"FFCROP_QUICK_OFFSET" default:"1s"`
	SampleFrames  int           `yaml:"sample_frames" json:"sample_frames" env:"FFCROP_SAMPLE_FRAMES" default:"10"`
	Retention     string        `yaml:"retention" json:"retention" env:"FFCROP_RETENTION" default:"last"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout" env:"FFCROP_DETECT_TIMEOUT" default:"30m"`
	ScratchDir    string        `yaml:"scratch_dir" json:"scratch_dir" env:"FFCROP_SCRATCH_DIR"`
}

// ResolveConfig holds margin derivation settings
type ResolveConfig struct {
	TopPad        int  `yaml:"top_pad" json:"top_pad" env:"FFCROP_TOP_PAD" default:"2"`
	ClampNegative bool `yaml:"clamp_negative" json:"clamp_negative" env:"FFCROP_CLAMP_NEGATIVE" default:"false"`
}

// OutputConfig holds output naming and preflight settings
type OutputConfig struct {
	Suffix       string  `yaml:"suffix" json:"suffix" env:"FFCROP_OUTPUT_SUFFIX" default:"-NO-BORDER"`
	MinFreeRatio float64 `yaml:"min_free_ratio" json:"min_free_ratio" env:"FFCROP_MIN_FREE_RATIO" default:"1.0"`
}

// JournalConfig holds run history settings
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" env:"FFCROP_JOURNAL" default:"true"`
	Driver  string `yaml:"driver" json:"driver" env:"FFCROP_JOURNAL_DRIVER" default:"sqlite"`
	Path    string `yaml:"path" json:"path" env:"FFCROP_JOURNAL_PATH"`
	DSN     string `yaml:"dsn" json:"dsn" env:"FFCROP_JOURNAL_DSN"`
}

// WatchConfig holds drop-folder settings
type WatchConfig struct {
	Extensions []string      `yaml:"extensions" json:"extensions" env:"FFCROP_WATCH_EXTENSIONS"`
	Settle     time.Duration `yaml:"settle" json:"settle" env:"FFCROP_WATCH_SETTLE" default:"3s"`
}

// ServerConfig holds the job server's listen address
type ServerConfig struct {
	Host      string `yaml:"host" json:"host" env:"FFCROP_SERVER_HOST" default:"127.0.0.1"`
	Port      int    `yaml:"port" json:"port" env:"FFCROP_SERVER_PORT" default:"8086"`
	QueueSize int    `yaml:"queue_size" json:"queue_size" env:"FFCROP_SERVER_QUEUE" default:"32"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" env:"FFCROP_LOG_LEVEL" default:"info"`
	Format string `yaml:"format" json:"format" env:"FFCROP_LOG_FORMAT" default:"text"`
	Color  string `yaml:"color" json:"color" env:"FFCROP_LOG_COLOR" default:"auto"`
}

// DefaultConfig returns the default application configuration
func DefaultConfig() *Config {
	return &Config{
		FFmpeg: FFmpegConfig{
			FFmpegPath:          "ffmpeg",
			FFprobePath:         "ffprobe",
			HWAccel:             "cuda",
			HWDecoder:           "h264_cuvid",
			HWEncoder:           "h264_nvenc",
			SoftwareEncoderArgs: []string{"-c:a", "copy"},
		},
		Detect: DetectConfig{
			Marker:        "crop=",
			Limit:         24,
			Round:         16,
			Reset:         0,
			BoundedOffset: 90 * time.Second,
			QuickOffset:   1 * time.Second,
			SampleFrames:  10,
			Retention:     "last",
			Timeout:       30 * time.Minute,
		},
		Resolve: ResolveConfig{
			TopPad: 2,
		},
		Output: OutputConfig{
			Suffix:       "-NO-BORDER",
			MinFreeRatio: 1.0,
		},
		Journal: JournalConfig{
			Enabled: true,
			Driver:  "sqlite",
		},
		Watch: WatchConfig{
			Extensions: []string{".mp4", ".mkv", ".mov", ".avi", ".m4v", ".webm", ".ts"},
			Settle:     3 * time.Second,
		},
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      8086,
			QueueSize: 32,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Color:  "auto",
		},
	}
}

// Load builds configuration from defaults, the file at configPath (if any)
// and environment variables, then validates it.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if !fileExists(configPath) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		if err := loadFromFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := ValidateSchema(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	applyDerivedConfig(cfg)
	return cfg, nil
}

// Save writes cfg to path in the format implied by its extension
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	var data []byte
	var err error

	switch ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".json":
		return json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

// loadStructFromEnv overrides fields whose env tag names a set variable.
// Unlike defaults, which live in DefaultConfig, only present variables apply
// so that file values survive.
func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue, ok := os.LookupEnv(envTag)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s from %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		} else {
			intVal, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(intVal)
		}
	case reflect.Float32, reflect.Float64:
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatVal)
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolVal)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %v", field.Type())
		}
		values := strings.Split(value, ",")
		for i, v := range values {
			values[i] = strings.TrimSpace(v)
		}
		field.Set(reflect.ValueOf(values))
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}

	return nil
}

// Validate checks cfg for values the pipeline cannot run with
func Validate(config *Config) error {
	if config.FFmpeg.FFmpegPath == "" || config.FFmpeg.FFprobePath == "" {
		return fmt.Errorf("ffmpeg and ffprobe paths must be set")
	}

	if config.Detect.Marker == "" {
		return fmt.Errorf("detect marker must not be empty")
	}

	if config.Detect.Limit < 0 || config.Detect.Round < 0 || config.Detect.Reset < 0 {
		return fmt.Errorf("cropdetect parameters must be non-negative")
	}

	if config.Detect.SampleFrames < 1 {
		return fmt.Errorf("invalid sample frame count: %d", config.Detect.SampleFrames)
	}

	if config.Detect.BoundedOffset < 0 || config.Detect.QuickOffset < 0 {
		return fmt.Errorf("scan offsets must be non-negative")
	}

	switch config.Detect.Retention {
	case "last", "mode":
	default:
		return fmt.Errorf("unsupported retention strategy: %s", config.Detect.Retention)
	}

	if config.Resolve.TopPad < 0 {
		return fmt.Errorf("invalid top pad: %d", config.Resolve.TopPad)
	}

	if config.Output.Suffix == "" {
		return fmt.Errorf("output suffix must not be empty")
	}

	if config.Output.MinFreeRatio < 0 {
		return fmt.Errorf("invalid min free ratio: %f", config.Output.MinFreeRatio)
	}

	if config.Server.Port < 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.QueueSize < 1 {
		return fmt.Errorf("invalid server queue size: %d", config.Server.QueueSize)
	}

	switch config.Journal.Driver {
	case "sqlite":
	case "postgres":
		if config.Journal.Enabled && config.Journal.DSN == "" {
			return fmt.Errorf("journal dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported journal driver: %s", config.Journal.Driver)
	}

	switch config.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format: %s", config.Logging.Format)
	}

	return nil
}

func applyDerivedConfig(config *Config) {
	if config.Detect.ScratchDir == "" {
		config.Detect.ScratchDir = os.TempDir()
	}

	if config.Journal.Path == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			config.Journal.Path = filepath.Join(dir, "ffcrop", "history.db")
		} else {
			config.Journal.Path = filepath.Join(os.TempDir(), "ffcrop-history.db")
		}
	}

	for i, ext := range config.Watch.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		config.Watch.Extensions[i] = ext
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
