package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/pkg/log"
)

// GormTemplateRepository implements TemplateRepository using GORM. It also
// serves as the lower-third catalogue's template source.
type GormTemplateRepository struct {
	db *gorm.DB
}

// NewGormTemplateRepository creates a new GORM-based template repository.
func NewGormTemplateRepository(db *gorm.DB) *GormTemplateRepository {
	return &GormTemplateRepository{db: db}
}

// ListTemplates returns every decodable template ordered by id. Rows whose
// document cannot be decoded are skipped; field validation is left to the
// catalogue.
func (r *GormTemplateRepository) ListTemplates(ctx context.Context) ([]domain.LowerThirdTemplate, error) {
	l := log.Ctx(ctx)

	var models []domain.TemplateModel
	if err := r.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		l.Error().Err(err).Msg("failed to list templates from db")
		return nil, err
	}

	templates := make([]domain.LowerThirdTemplate, 0, len(models))
	for i := range models {
		t, err := models[i].ToDomain()
		if err != nil {
			l.Warn().Err(err).Str("template_id", models[i].ID).Msg("skipping undecodable template")
			continue
		}
		templates = append(templates, t)
	}
	return templates, nil
}

// Upsert stores t after validation.
func (r *GormTemplateRepository) Upsert(ctx context.Context, t domain.LowerThirdTemplate) error {
	l := log.Ctx(ctx)

	if err := t.Validate(); err != nil {
		return err
	}
	model, err := domain.TemplateToModel(t)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		l.Error().Err(err).Str("template_id", t.ID).Msg("failed to save template in db")
		return err
	}
	return nil
}

// Delete removes a template.
func (r *GormTemplateRepository) Delete(ctx context.Context, id string) error {
	l := log.Ctx(ctx)

	result := r.db.WithContext(ctx).Delete(&domain.TemplateModel{}, "id = ?", id)
	if result.Error != nil {
		l.Error().Err(result.Error).Str("template_id", id).Msg("failed to delete template in db")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTemplateNotFound
	}
	return nil
}
