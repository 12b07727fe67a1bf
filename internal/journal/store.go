// Package journal keeps a history of pipeline runs in a SQL database.
package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mantonx/ffcrop/internal/config"
	cErrors "github.com/mantonx/ffcrop/internal/errors"
	"github.com/mantonx/ffcrop/internal/logger"
	"github.com/mantonx/ffcrop/internal/pipeline"
)

// ErrNotFound is returned when no run has the requested ID
var ErrNotFound = errors.New("run not found")

// defaultLimit caps Recent when the caller passes a non-positive limit
const defaultLimit = 20

// Store reads and writes run history
type Store struct {
	db     *gorm.DB
	logger hclog.Logger
}

// NewStore wraps an open database. Call Migrate before first use on a fresh database.
func NewStore(db *gorm.DB, log hclog.Logger) *Store {
	return &Store{db: db, logger: logger.OrNull(log).Named("journal")}
}

// Open connects to the journal database described by cfg and migrates it
func Open(cfg config.JournalConfig, log hclog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create journal directory: %w", err)
			}
		}
		dialector = sqlite.Open(cfg.Path)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported journal driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to journal database: %w", err)
	}

	store := NewStore(db, log)
	if err := store.Migrate(); err != nil {
		return nil, err
	}

	store.logger.Debug("journal opened", "driver", cfg.Driver)
	return store, nil
}

// Migrate creates or updates the runs table
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Run{}); err != nil {
		return fmt.Errorf("failed to migrate journal: %w", err)
	}
	return nil
}

// Record saves run
func (s *Store) Record(ctx context.Context, run *Run) error {
	if run.ID == "" {
		return cErrors.ValidationError("journal_record", "run ID is required")
	}
	return s.db.WithContext(ctx).Create(run).Error
}

// Get retrieves a run by ID
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Recent returns up to limit runs, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	var runs []Run
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// Close releases the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// FromResult converts a pipeline result into a journal row
func FromResult(res *pipeline.Result) *Run {
	run := &Run{
		ID:         res.RunID,
		Input:      res.Input,
		Output:     res.Output,
		Strategy:   string(res.Strategy),
		Scan:       string(res.Scan),
		State:      string(res.State),
		Detected:   res.Outcome.Detected,
		Filter:     res.Outcome.Box.Filter,
		Clamped:    res.Clamped,
		DryRun:     res.DryRun,
		StartedAt:  res.StartedAt,
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.Dimensions != nil {
		run.Dimensions = res.Dimensions.String()
	}
	if res.Margins != nil {
		run.Margins = res.Margins.CropArg()
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
		run.ErrorType = string(cErrors.GetType(res.Err))
	}
	return run
}
