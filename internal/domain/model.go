package domain

import (
	"encoding/json"
	"time"

	"github.com/weiawesome/wes-io-stage/pkg/database"
)

// SettingsScope is the primary key of the single presentation settings row.
const SettingsScope = "presentation"

// SettingsModel is the GORM model for the settings table.
type SettingsModel struct {
	Scope             string    `gorm:"type:varchar(36);primaryKey"`
	Theme             string    `gorm:"type:varchar(50);not null"`
	ReferencePosition string    `gorm:"type:varchar(20);not null"`
	FontScale         float64   `gorm:"not null"`
	LinesPerDisplay   int       `gorm:"not null"`
	AutoAdvanceMs     int64     `gorm:"not null;default:0"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for SettingsModel.
func (SettingsModel) TableName() string {
	return "settings"
}

// ToDomain converts SettingsModel to PresentationSettings.
func (m *SettingsModel) ToDomain() PresentationSettings {
	return PresentationSettings{
		Theme:             m.Theme,
		ReferencePosition: m.ReferencePosition,
		FontScale:         m.FontScale,
		LinesPerDisplay:   m.LinesPerDisplay,
		AutoAdvanceMs:     m.AutoAdvanceMs,
	}
}

// SettingsToModel converts PresentationSettings to SettingsModel.
func SettingsToModel(s PresentationSettings) *SettingsModel {
	return &SettingsModel{
		Scope:             SettingsScope,
		Theme:             s.Theme,
		ReferencePosition: s.ReferencePosition,
		FontScale:         s.FontScale,
		LinesPerDisplay:   s.LinesPerDisplay,
		AutoAdvanceMs:     s.AutoAdvanceMs,
	}
}

// TemplateModel is the GORM model for the lower_third_templates table.
// Styling is kept as one JSON document.
type TemplateModel struct {
	ID        string        `gorm:"type:varchar(64);primaryKey"`
	Name      string        `gorm:"type:varchar(200);not null"`
	Document  database.JSON `gorm:"type:text;not null"`
	CreatedAt time.Time     `gorm:"autoCreateTime"`
	UpdatedAt time.Time     `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for TemplateModel.
func (TemplateModel) TableName() string {
	return "lower_third_templates"
}

// ToDomain decodes the stored document. The id column wins over any id in
// the document.
func (m *TemplateModel) ToDomain() (LowerThirdTemplate, error) {
	var t LowerThirdTemplate
	if err := json.Unmarshal(m.Document, &t); err != nil {
		return LowerThirdTemplate{}, err
	}
	t.ID = m.ID
	return t, nil
}

// TemplateToModel converts a template to TemplateModel.
func TemplateToModel(t LowerThirdTemplate) (*TemplateModel, error) {
	doc, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return &TemplateModel{ID: t.ID, Name: t.Name, Document: doc}, nil
}

// SongModel is the GORM model for the songs table.
type SongModel struct {
	ID          string               `gorm:"type:varchar(64);primaryKey"`
	Title       string               `gorm:"type:varchar(200);index;not null"`
	Author      string               `gorm:"type:varchar(200)"`
	Sections    database.JSON        `gorm:"type:text;not null"`
	Arrangement database.StringArray `gorm:"type:text"`
	CreatedAt   time.Time            `gorm:"autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for SongModel.
func (SongModel) TableName() string {
	return "songs"
}

// ToDomain converts SongModel to Song.
func (m *SongModel) ToDomain() (Song, error) {
	var sections []SongSection
	if err := json.Unmarshal(m.Sections, &sections); err != nil {
		return Song{}, err
	}
	return Song{
		ID:          m.ID,
		Title:       m.Title,
		Author:      m.Author,
		Sections:    sections,
		Arrangement: []string(m.Arrangement),
	}, nil
}

// SongToModel converts Song to SongModel.
func SongToModel(s Song) (*SongModel, error) {
	sections, err := json.Marshal(s.Sections)
	if err != nil {
		return nil, err
	}
	return &SongModel{
		ID:          s.ID,
		Title:       s.Title,
		Author:      s.Author,
		Sections:    sections,
		Arrangement: database.StringArray(s.Arrangement),
	}, nil
}
