package lowerthird

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-stage/internal/domain"
)

func TestResolve_BottomLeft(t *testing.T) {
	p := domain.LowerThirdPayload{
		Data:     domain.LowerThirdData{Kind: domain.LowerThirdNameplate, Title: "Jane", Subtitle: "Host"},
		Template: domain.DefaultTemplate(),
	}

	o := Resolve(p, domain.HD)

	// 60% x 15%, 5% margin on a 1920x1080 canvas.
	assert.Equal(t, domain.Rect{X: 96, Y: 864, W: 1152, H: 162}, o.Box)
	assert.Equal(t, "Jane", o.Title)
	assert.Equal(t, "Host", o.Subtitle)
}

func TestResolve_TopRight(t *testing.T) {
	tmpl := domain.DefaultTemplate()
	tmpl.Position = domain.PositionTopRight

	o := Resolve(domain.LowerThirdPayload{Template: tmpl}, domain.HD)

	assert.Equal(t, 1920-96-1152, o.Box.X)
	assert.Equal(t, 54, o.Box.Y)
}

func TestResolve_LyricsUsesLines(t *testing.T) {
	p := domain.LowerThirdPayload{
		Data:     domain.LowerThirdData{Kind: domain.LowerThirdLyrics, Title: "Song", Lines: []string{"a", "b"}},
		Template: domain.DefaultTemplate(),
	}

	o := Resolve(p, domain.HD)

	assert.Equal(t, []string{"a", "b"}, o.Lines)
	assert.Empty(t, o.Title)
}

type staticSource struct {
	list []domain.LowerThirdTemplate
	err  error
}

func (s staticSource) ListTemplates(context.Context) ([]domain.LowerThirdTemplate, error) {
	return s.list, s.err
}

func TestCatalogue_FiltersInvalid(t *testing.T) {
	good := domain.DefaultTemplate()
	good.ID = "blue"
	good.BackgroundColor = "#0033aa"

	bad := domain.DefaultTemplate()
	bad.ID = "broken"
	bad.TextColor = "not-a-colour"

	c := NewCatalogue()
	require.NoError(t, c.Load(context.Background(), staticSource{list: []domain.LowerThirdTemplate{good, bad, {}}}))

	_, ok := c.Get("blue")
	assert.True(t, ok)
	_, ok = c.Get("broken")
	assert.False(t, ok)
	assert.Len(t, c.List(), 2)
	assert.Equal(t, "default", c.Resolve("missing").ID)
}

func TestCatalogue_SourceError(t *testing.T) {
	c := NewCatalogue()
	err := c.Load(context.Background(), staticSource{err: errors.New("db down")})
	assert.Error(t, err)
	assert.Len(t, c.List(), 1)
}
