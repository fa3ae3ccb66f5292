package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/weiawesome/wes-io-stage/internal/domain"
)

// FileTemplateSource reads lower-third templates from a JSON file holding
// an array of templates.
type FileTemplateSource struct {
	path string
}

// NewFileTemplateSource creates a source for path.
func NewFileTemplateSource(path string) *FileTemplateSource {
	return &FileTemplateSource{path: path}
}

// Path returns the file being read.
func (s *FileTemplateSource) Path() string {
	return s.path
}

// ListTemplates decodes the file. A missing file yields no templates.
func (s *FileTemplateSource) ListTemplates(_ context.Context) ([]domain.LowerThirdTemplate, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	var list []domain.LowerThirdTemplate
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return list, nil
}
