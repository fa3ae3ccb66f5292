package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/pkg/database"
	"github.com/weiawesome/wes-io-stage/pkg/storage"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "stage.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, &domain.SettingsModel{}, &domain.TemplateModel{}, &domain.SongModel{}))
	return db
}

func TestSettingsRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSettingsRepository(testDB(t))

	got, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), got)

	s := domain.DefaultSettings()
	s.LinesPerDisplay = 4
	s.AutoAdvanceMs = 3000
	require.NoError(t, repo.Save(ctx, s))
	s.Theme = "light"
	require.NoError(t, repo.Save(ctx, s))

	got, err = repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestTemplateRepository(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewGormTemplateRepository(db)

	tmpl := domain.DefaultTemplate()
	tmpl.ID = "blue"
	tmpl.BackgroundColor = "#0000ff"
	require.NoError(t, repo.Upsert(ctx, tmpl))

	bad := tmpl
	bad.ID = "bad"
	bad.TextColor = "blue"
	assert.ErrorIs(t, repo.Upsert(ctx, bad), domain.ErrInvalidTemplate)

	// A corrupt row is skipped rather than failing the whole list.
	require.NoError(t, db.Create(&domain.TemplateModel{ID: "corrupt", Name: "x", Document: database.JSON(`{"position": 1}`)}).Error)

	list, err := repo.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tmpl, list[0])

	require.NoError(t, repo.Delete(ctx, "blue"))
	assert.ErrorIs(t, repo.Delete(ctx, "blue"), ErrTemplateNotFound)
}

func TestSongRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSongRepository(testDB(t))

	song := domain.Song{
		ID:    "amazing-grace",
		Title: "Amazing Grace",
		Sections: []domain.SongSection{
			{ID: "v1", Label: "Verse 1", Lines: []string{"Amazing grace", "how sweet the sound"}},
			{ID: "c", Label: "Chorus", Lines: []string{"My chains are gone"}},
		},
		Arrangement: []string{"v1", "c", "v1"},
	}
	require.NoError(t, repo.Upsert(ctx, song))
	assert.ErrorIs(t, repo.Upsert(ctx, domain.Song{ID: "empty"}), domain.ErrInvalidSong)

	got, err := repo.GetSong(ctx, song.ID)
	require.NoError(t, err)
	assert.Equal(t, song, got)

	_, err = repo.GetSong(ctx, "missing")
	assert.ErrorIs(t, err, ErrSongNotFound)

	list, err := repo.ListSongs(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, song.ID))
	assert.ErrorIs(t, repo.Delete(ctx, song.ID), ErrSongNotFound)
}

func TestSceneRepository(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	repo := NewStorageSceneRepository(store)

	saved, err := repo.Save(ctx, domain.Scene{
		Name: "Sermon",
		Layers: []domain.SceneLayer{
			{Name: "camera", Content: domain.ItemContent{Item: domain.CameraFeed{DeviceID: "A"}}, Geometry: domain.FullCanvas, Opacity: 1, Visible: true},
			{ID: "title", Name: "title", Content: domain.EmptyContent{}, Geometry: domain.FullCanvas, Opacity: 1},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.NotEmpty(t, saved.Layers[0].ID)
	assert.Equal(t, "title", saved.Layers[1].ID)

	got, err := repo.GetScene(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	list, err := repo.ListScenes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, saved.ID, list[0].ID)

	require.NoError(t, repo.Delete(ctx, saved.ID))
	_, err = repo.GetScene(ctx, saved.ID)
	assert.ErrorIs(t, err, ErrSceneNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, saved.ID), ErrSceneNotFound)
}

func TestFileTemplateSource(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "templates.json")
	src := NewFileTemplateSource(path)

	list, err := src.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"a","position":"top-left"}]`), 0o644))
	list, err = src.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.PositionTopLeft, list[0].Position)

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o644))
	_, err = src.ListTemplates(ctx)
	assert.Error(t, err)
}
