package journal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mantonx/ffcrop/internal/config"
	"github.com/mantonx/ffcrop/internal/cropdetect"
	cErrors "github.com/mantonx/ffcrop/internal/errors"
	"github.com/mantonx/ffcrop/internal/pipeline"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	store := NewStore(db, hclog.NewNullLogger())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })
	return store
}

// newMockStore backs a Store with go-sqlmock through the postgres dialector
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})
	db, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return NewStore(db, nil), mock
}

func TestStoreRecordAndRecent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Record(ctx, &Run{
			ID:        fmt.Sprintf("run-%d", i),
			Input:     fmt.Sprintf("/videos/clip%d.mp4", i),
			State:     "done",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "run-1", runs[1].ID)

	runs, err = store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	run, err := store.Get(ctx, "run-0")
	require.NoError(t, err)
	assert.Equal(t, "/videos/clip0.mp4", run.Input)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRecordRequiresID(t *testing.T) {
	store := setupTestStore(t)
	err := store.Record(context.Background(), &Run{Input: "a.mp4"})
	assert.ErrorIs(t, err, cErrors.ErrInvalidInput)
}

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	store, err := Open(config.JournalConfig{Enabled: true, Driver: "sqlite", Path: path}, nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Record(context.Background(), &Run{ID: "a", Input: "x.mkv", StartedAt: time.Now()}))
	runs, err := store.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(config.JournalConfig{Driver: "mysql"}, nil)
	assert.ErrorContains(t, err, "unsupported journal driver")
}

func TestStoreMock(t *testing.T) {
	t.Run("record", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "runs"`).WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := store.Record(context.Background(), &Run{ID: "abc", Input: "clip.mp4", StartedAt: time.Now()})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet(), "SQL mock expectations not met")
	})

	t.Run("record failure rolls back", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "runs"`).WillReturnError(errors.New("connection reset by peer"))
		mock.ExpectRollback()

		err := store.Record(context.Background(), &Run{ID: "abc", Input: "clip.mp4"})
		assert.ErrorContains(t, err, "connection reset by peer")
		require.NoError(t, mock.ExpectationsWereMet(), "SQL mock expectations not met")
	})

	t.Run("recent", func(t *testing.T) {
		store, mock := newMockStore(t)

		rows := sqlmock.NewRows([]string{"id", "input", "state", "detected", "filter"}).
			AddRow("r2", "/v/b.mp4", "done", true, "crop=1280:544:0:88").
			AddRow("r1", "/v/a.mp4", "aborted", false, "")
		mock.ExpectQuery(`SELECT \* FROM "runs" ORDER BY started_at DESC LIMIT \$1`).
			WithArgs(10).
			WillReturnRows(rows)

		runs, err := store.Recent(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "crop=1280:544:0:88", runs[0].Filter)
		assert.Equal(t, "aborted", runs[1].State)
		require.NoError(t, mock.ExpectationsWereMet(), "SQL mock expectations not met")
	})

	t.Run("get not found", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(`SELECT \* FROM "runs" WHERE id = \$1`).
			WithArgs("nope", 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := store.Get(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet(), "SQL mock expectations not met")
	})
}

func TestFromResult(t *testing.T) {
	dims := cropdetect.Dimensions{Width: 1280, Height: 720}
	margins := cropdetect.Margins{Top: 10, Bottom: 8, Left: 10, Right: 10}
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res := &pipeline.Result{
		RunID:      "run-1",
		Input:      "clip.mp4",
		Output:     "clip-NO-BORDER.mp4",
		Strategy:   pipeline.StrategyAccelerated,
		Scan:       cropdetect.ScanBounded,
		State:      pipeline.StateDone,
		Outcome:    cropdetect.Borders("x1:10 ...", cropdetect.CropBox{X1: 10, Y1: 8, X2: 1270, Y2: 712, Filter: "crop=1260:704:10:8"}),
		Dimensions: &dims,
		Margins:    &margins,
		StartedAt:  started,
		Duration:   1500 * time.Millisecond,
	}

	run := FromResult(res)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "accelerated", run.Strategy)
	assert.Equal(t, "bounded", run.Scan)
	assert.Equal(t, "done", run.State)
	assert.True(t, run.Detected)
	assert.Equal(t, "crop=1260:704:10:8", run.Filter)
	assert.Equal(t, "1280x720", run.Dimensions)
	assert.Equal(t, "10x8x10x10", run.Margins)
	assert.Equal(t, int64(1500), run.DurationMs)
	assert.Empty(t, run.Error)

	res.State = pipeline.StateAborted
	res.Err = cErrors.ProbeError("probe_dimensions", errors.New("exit status 1"))
	run = FromResult(res)
	assert.Equal(t, "probe", run.ErrorType)
	assert.Contains(t, run.Error, "dimension probe failed")
}
