package lowerthird

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/pkg/log"
)

// TemplateSource loads persisted templates.
type TemplateSource interface {
	ListTemplates(ctx context.Context) ([]domain.LowerThirdTemplate, error)
}

// Catalogue is the validated set of templates available to the operator.
type Catalogue struct {
	mu        sync.RWMutex
	templates map[string]domain.LowerThirdTemplate
}

// NewCatalogue creates a catalogue holding only the default template.
func NewCatalogue() *Catalogue {
	c := &Catalogue{}
	c.Replace(context.Background(), nil)
	return c
}

// Load replaces the catalogue from src. Invalid entries are dropped with a
// warning; only a failing source is an error.
func (c *Catalogue) Load(ctx context.Context, src TemplateSource) error {
	list, err := src.ListTemplates(ctx)
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}
	c.Replace(ctx, list)
	return nil
}

// Replace installs list after validation and returns how many entries were
// kept. The default template is always present.
func (c *Catalogue) Replace(ctx context.Context, list []domain.LowerThirdTemplate) int {
	l := log.Ctx(ctx)
	next := make(map[string]domain.LowerThirdTemplate, len(list)+1)
	def := domain.DefaultTemplate()
	next[def.ID] = def

	kept := 0
	for _, t := range list {
		if err := t.Validate(); err != nil {
			l.Warn().Err(err).Str("template_id", t.ID).Msg("skipping invalid lower third template")
			continue
		}
		next[t.ID] = t
		kept++
	}

	c.mu.Lock()
	c.templates = next
	c.mu.Unlock()
	return kept
}

// Get returns the template with id.
func (c *Catalogue) Get(id string) (domain.LowerThirdTemplate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.templates[id]
	return t, ok
}

// Resolve returns the template with id, or the default when id is empty
// or unknown.
func (c *Catalogue) Resolve(id string) domain.LowerThirdTemplate {
	if t, ok := c.Get(id); ok {
		return t
	}
	t, _ := c.Get(domain.DefaultTemplate().ID)
	return t
}

// List returns all templates sorted by id.
func (c *Catalogue) List() []domain.LowerThirdTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.LowerThirdTemplate, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
