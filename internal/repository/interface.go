package repository

import (
	"context"
	"errors"

	"github.com/weiawesome/wes-io-stage/internal/domain"
)

var (
	ErrSongNotFound     = errors.New("song not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrSceneNotFound    = errors.New("scene not found")
)

// SettingsRepository persists the presentation settings.
type SettingsRepository interface {
	// Get returns the stored settings, or the defaults when none are stored.
	Get(ctx context.Context) (domain.PresentationSettings, error)
	Save(ctx context.Context, s domain.PresentationSettings) error
}

// TemplateRepository persists lower-third templates.
type TemplateRepository interface {
	ListTemplates(ctx context.Context) ([]domain.LowerThirdTemplate, error)
	Upsert(ctx context.Context, t domain.LowerThirdTemplate) error
	Delete(ctx context.Context, id string) error
}

// SongRepository persists songs for lyrics mode.
type SongRepository interface {
	GetSong(ctx context.Context, id string) (domain.Song, error)
	ListSongs(ctx context.Context) ([]domain.Song, error)
	Upsert(ctx context.Context, s domain.Song) error
	Delete(ctx context.Context, id string) error
}

// SceneRepository persists composed scenes.
type SceneRepository interface {
	GetScene(ctx context.Context, id string) (domain.Scene, error)
	ListScenes(ctx context.Context) ([]domain.Scene, error)
	// Save assigns ids to the scene and its layers where missing and
	// returns the stored scene.
	Save(ctx context.Context, s domain.Scene) (domain.Scene, error)
	Delete(ctx context.Context, id string) error
}
