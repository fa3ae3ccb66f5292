package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/pkg/log"
)

// GormSongRepository implements SongRepository using GORM.
type GormSongRepository struct {
	db *gorm.DB
}

// NewGormSongRepository creates a new GORM-based song repository.
func NewGormSongRepository(db *gorm.DB) *GormSongRepository {
	return &GormSongRepository{db: db}
}

// GetSong retrieves a song by id. A stored song that no longer validates
// is reported as not found.
func (r *GormSongRepository) GetSong(ctx context.Context, id string) (domain.Song, error) {
	l := log.Ctx(ctx)

	var model domain.SongModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return domain.Song{}, ErrSongNotFound
		}
		l.Error().Err(result.Error).Str("song_id", id).Msg("failed to get song by id")
		return domain.Song{}, result.Error
	}

	song, err := model.ToDomain()
	if err == nil {
		err = song.Validate()
	}
	if err != nil {
		l.Warn().Err(err).Str("song_id", id).Msg("stored song is invalid")
		return domain.Song{}, ErrSongNotFound
	}
	return song, nil
}

// ListSongs returns every valid song ordered by title.
func (r *GormSongRepository) ListSongs(ctx context.Context) ([]domain.Song, error) {
	l := log.Ctx(ctx)

	var models []domain.SongModel
	if err := r.db.WithContext(ctx).Order("title").Find(&models).Error; err != nil {
		l.Error().Err(err).Msg("failed to list songs from db")
		return nil, err
	}

	songs := make([]domain.Song, 0, len(models))
	for i := range models {
		song, err := models[i].ToDomain()
		if err == nil {
			err = song.Validate()
		}
		if err != nil {
			l.Warn().Err(err).Str("song_id", models[i].ID).Msg("skipping invalid song")
			continue
		}
		songs = append(songs, song)
	}
	return songs, nil
}

// Upsert stores s after validation.
func (r *GormSongRepository) Upsert(ctx context.Context, s domain.Song) error {
	l := log.Ctx(ctx)

	if err := s.Validate(); err != nil {
		return err
	}
	model, err := domain.SongToModel(s)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		l.Error().Err(err).Str("song_id", s.ID).Msg("failed to save song in db")
		return err
	}
	return nil
}

// Delete removes a song.
func (r *GormSongRepository) Delete(ctx context.Context, id string) error {
	l := log.Ctx(ctx)

	result := r.db.WithContext(ctx).Delete(&domain.SongModel{}, "id = ?", id)
	if result.Error != nil {
		l.Error().Err(result.Error).Str("song_id", id).Msg("failed to delete song in db")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSongNotFound
	}
	return nil
}
