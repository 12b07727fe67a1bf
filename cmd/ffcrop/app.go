package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/ffcrop/internal/config"
	"github.com/mantonx/ffcrop/internal/cropdetect"
	"github.com/mantonx/ffcrop/internal/journal"
	"github.com/mantonx/ffcrop/internal/logger"
	"github.com/mantonx/ffcrop/internal/pipeline"
	"github.com/mantonx/ffcrop/internal/transcode/ffmpeg"
)

// app holds the collaborators shared by the subcommands
type app struct {
	cfg      *config.Config
	log      hclog.Logger
	runner   *ffmpeg.Runner
	detector *cropdetect.Detector
	pipeline *pipeline.Pipeline
	store    *journal.Store // nil when the journal is disabled
}

// newApp loads configuration, applies overrides and wires the pipeline
func newApp(flags *globalFlags, overrides ...func(*config.Config)) (*app, error) {
	path := flags.configPath
	if path == "" {
		path = os.Getenv("FFCROP_CONFIG")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	for _, override := range overrides {
		override(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Logging, nil)
	if err != nil {
		return nil, err
	}

	runner := ffmpeg.NewRunner(log, cfg.FFmpeg)
	detector := cropdetect.NewDetector(log, runner, cfg.Detect)

	a := &app{
		cfg:      cfg,
		log:      log,
		runner:   runner,
		detector: detector,
		pipeline: pipeline.New(log, detector, runner, runner, cfg),
	}
	return a, nil
}

// openJournal opens the run history if it is enabled
func (a *app) openJournal() error {
	if !a.cfg.Journal.Enabled {
		return nil
	}
	store, err := journal.Open(a.cfg.Journal, a.log)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	a.store = store
	return nil
}

// record stores res in the journal. Failures are logged, never fatal.
func (a *app) record(ctx context.Context, res *pipeline.Result) {
	if a.store == nil || res == nil {
		return
	}
	if err := a.store.Record(ctx, journal.FromResult(res)); err != nil {
		a.log.Warn("failed to record run", "run_id", res.RunID, "error", err)
	}
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("failed to close journal", "error", err)
		}
	}
}
