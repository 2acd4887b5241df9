package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mantonx/scrollcast/internal/database"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/types"
)

func setupStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "history.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return NewGormStore(db, nil)
}

func req(url string, mode types.Mode) types.CaptureRequest {
	r := types.Defaults(mode)
	r.URL = url
	return r
}

func TestStartComplete(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	started := time.Now().Add(-2 * time.Second)

	require.NoError(t, s.Start(ctx, "c1", req("https://example.com", types.ModeVideo), started))

	rec, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, database.CaptureStatusRunning, rec.Status)
	assert.Equal(t, "video", rec.Mode)
	assert.Equal(t, 720, rec.Height)
	assert.Nil(t, rec.FinishedAt)

	err = s.Complete(ctx, &types.CaptureResult{
		ID:            "c1",
		Kind:          types.KindVideo,
		ContainerPath: "/videos/c1/recording.avi",
		MP4Path:       "/videos/c1/capture.mp4",
		GIFPath:       "/videos/c1/capture.gif",
		FrameCount:    375,
		SizesBytes:    types.Sizes{Container: 10, MP4: 20, GIF: 30},
	}, time.Now())
	require.NoError(t, err)

	rec, err = s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, database.CaptureStatusCompleted, rec.Status)
	assert.Equal(t, "/videos/c1/capture.mp4", rec.MP4Path)
	assert.Equal(t, int64(30), rec.GIFBytes)
	assert.Equal(t, 375, rec.FrameCount)
	require.NotNil(t, rec.FinishedAt)
	assert.Greater(t, rec.Elapsed(), time.Second)
}

func TestFail(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx, "c2", req("https://example.com", types.ModeFrames), time.Now()))
	require.NoError(t, s.Fail(ctx, "c2", "navigation", "net::ERR_NAME_NOT_RESOLVED", time.Now()))

	rec, err := s.Get(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, database.CaptureStatusFailed, rec.Status)
	assert.Equal(t, "navigation", rec.Stage)
	assert.Contains(t, rec.Error, "ERR_NAME_NOT_RESOLVED")
}

func TestGetMissing(t *testing.T) {
	s := setupStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Fail(context.Background(), "nope", "capture", "x", time.Now()), ErrNotFound)
}

func TestList_NewestFirstWithFilters(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	require.NoError(t, s.Start(ctx, "a", req("https://a.example", types.ModeFrames), base))
	require.NoError(t, s.Start(ctx, "b", req("https://b.example", types.ModeVideo), base.Add(time.Minute)))
	require.NoError(t, s.Start(ctx, "c", req("https://c.example", types.ModeFrames), base.Add(2*time.Minute)))
	require.NoError(t, s.Fail(ctx, "c", "launch", "no browser", time.Now()))

	all, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "a", all[2].ID)

	frames, err := s.List(ctx, ListOptions{Mode: types.ModeFrames, Limit: 1})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "c", frames[0].ID)

	failed, err := s.List(ctx, ListOptions{Status: database.CaptureStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
}

func TestGet_DatabaseError(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB, PreferSimpleProtocol: true}), &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "capture_records"`).WillReturnError(errors.New("connection reset by peer"))

	_, err = NewGormStore(db, nil).Get(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNopStore(t *testing.T) {
	var s Store = NopStore{}
	assert.NoError(t, s.Start(context.Background(), "x", types.CaptureRequest{}, time.Now()))
	_, err := s.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotFound)
}
