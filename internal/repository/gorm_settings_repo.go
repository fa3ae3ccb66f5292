package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/pkg/log"
)

// GormSettingsRepository implements SettingsRepository using GORM.
type GormSettingsRepository struct {
	db *gorm.DB
}

// NewGormSettingsRepository creates a new GORM-based settings repository.
func NewGormSettingsRepository(db *gorm.DB) *GormSettingsRepository {
	return &GormSettingsRepository{db: db}
}

// Get returns the stored settings or the defaults.
func (r *GormSettingsRepository) Get(ctx context.Context) (domain.PresentationSettings, error) {
	l := log.Ctx(ctx)

	var model domain.SettingsModel
	result := r.db.WithContext(ctx).First(&model, "scope = ?", domain.SettingsScope)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return domain.DefaultSettings(), nil
		}
		l.Error().Err(result.Error).Msg("failed to get settings from db")
		return domain.PresentationSettings{}, result.Error
	}
	return model.ToDomain(), nil
}

// Save replaces the stored settings.
func (r *GormSettingsRepository) Save(ctx context.Context, s domain.PresentationSettings) error {
	l := log.Ctx(ctx)

	if err := r.db.WithContext(ctx).Save(domain.SettingsToModel(s)).Error; err != nil {
		l.Error().Err(err).Msg("failed to save settings in db")
		return err
	}
	l.Debug().Msg("settings saved in db")
	return nil
}
