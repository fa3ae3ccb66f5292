package compositor

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-stage/internal/domain"
)

func testScene() domain.Scene {
	return domain.Scene{
		ID:         "sermon",
		Name:       "Sermon",
		Background: &domain.Background{Color: "#101010"},
		Layers: []domain.SceneLayer{
			{
				ID:       "cam",
				Content:  domain.ItemContent{Item: domain.CameraFeed{DeviceID: "d1"}},
				Geometry: domain.FullCanvas,
				Opacity:  1,
				Visible:  true,
			},
			{
				ID:       "verse",
				Content:  domain.ItemContent{Item: domain.Verse{Book: "John", Chapter: 3, Verse: 16}},
				Geometry: domain.Geometry{X: 50, Y: 50, W: 50, H: 50},
				Opacity:  1.5,
				Visible:  true,
			},
			{
				ID:       "hidden",
				Content:  domain.ItemContent{Item: domain.Media{ID: "m"}},
				Geometry: domain.FullCanvas,
				Opacity:  1,
				Visible:  false,
			},
			{
				ID:       "slot",
				Content:  domain.EmptyContent{},
				Geometry: domain.Geometry{W: 10, H: 10},
				Opacity:  1,
				Visible:  true,
			},
			{
				ID: "lt",
				Content: domain.LowerThirdContent{
					Data:     domain.LowerThirdData{Kind: domain.LowerThirdNameplate, Title: "Pastor"},
					Template: domain.DefaultTemplate(),
				},
				Geometry: domain.Geometry{X: 10, Y: 10, W: 1, H: 1},
				Opacity:  1,
				Visible:  true,
			},
		},
	}
}

func layerIDs(nodes []RenderNode) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.LayerID
	}
	return ids
}

func TestCompose_Deterministic(t *testing.T) {
	a, err := Compose(testScene(), ModeOutput, domain.HD)
	require.NoError(t, err)
	b, err := Compose(testScene(), ModeOutput, domain.HD)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestCompose_OutputMode(t *testing.T) {
	nodes, err := Compose(testScene(), ModeOutput, domain.HD)
	require.NoError(t, err)

	// Invisible layer and empty slot contribute nothing.
	assert.Equal(t, []string{"background", "cam", "verse", "lt"}, layerIDs(nodes))
	for i, n := range nodes {
		assert.Equal(t, i, n.Z)
	}

	assert.Equal(t, RendererCamera, nodes[1].Renderer)
	assert.Equal(t, domain.Rect{X: 960, Y: 540, W: 960, H: 540}, nodes[2].Rect)
	assert.Equal(t, 1.0, nodes[2].Opacity)

	lt := nodes[3]
	assert.Equal(t, RendererLowerThird, lt.Renderer)
	assert.Equal(t, domain.HD.Full(), lt.Rect)
	require.NotNil(t, lt.LowerThird)
	assert.Equal(t, "Pastor", lt.LowerThird.Title)
}

func TestCompose_PreviewShowsPlaceholder(t *testing.T) {
	nodes, err := Compose(testScene(), ModePreview, domain.HD)
	require.NoError(t, err)

	assert.Equal(t, []string{"background", "cam", "verse", "slot", "lt"}, layerIDs(nodes))
	assert.Equal(t, RendererPlaceholder, nodes[3].Renderer)
}

func TestCompose_NestedScene(t *testing.T) {
	inner := domain.Scene{
		ID: "inner",
		Layers: []domain.SceneLayer{
			{ID: "pip", Content: domain.ItemContent{Item: domain.CameraFeed{DeviceID: "d2"}},
				Geometry: domain.Geometry{X: 50, Y: 0, W: 50, H: 50}, Opacity: 0.5, Visible: true},
		},
	}
	outer := domain.Scene{
		ID: "outer",
		Layers: []domain.SceneLayer{
			{ID: "box", Content: domain.ItemContent{Item: domain.SceneItem{Scene: inner}},
				Geometry: domain.Geometry{X: 0, Y: 0, W: 50, H: 50}, Opacity: 0.5, Visible: true},
		},
	}

	nodes, err := Compose(outer, ModeOutput, domain.HD)
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	assert.Equal(t, "box/pip", nodes[0].LayerID)
	assert.Equal(t, domain.Rect{X: 480, Y: 0, W: 480, H: 270}, nodes[0].Rect)
	assert.InDelta(t, 0.25, nodes[0].Opacity, 1e-9)
}

func TestCompose_RejectsCycle(t *testing.T) {
	self := domain.Scene{ID: "loop"}
	self.Layers = []domain.SceneLayer{
		{ID: "me", Content: domain.ItemContent{Item: domain.SceneItem{Scene: domain.Scene{
			ID: "loop",
		}}}, Geometry: domain.FullCanvas, Opacity: 1, Visible: true},
	}

	_, err := Compose(self, ModeOutput, domain.HD)
	assert.ErrorIs(t, err, ErrSceneCycle)
}

func TestCompose_RejectsDeepNesting(t *testing.T) {
	s := domain.Scene{ID: "leaf"}
	for i := 0; i < MaxDepth+1; i++ {
		s = domain.Scene{
			ID: s.ID + "+",
			Layers: []domain.SceneLayer{
				{ID: "n", Content: domain.ItemContent{Item: domain.SceneItem{Scene: s}}, Geometry: domain.FullCanvas, Opacity: 1, Visible: true},
			},
		}
	}

	_, err := Compose(s, ModeOutput, domain.HD)
	assert.ErrorIs(t, err, ErrSceneTooDeep)
}

func TestThumbnail_RendersPNG(t *testing.T) {
	nodes, err := Compose(testScene(), ModeOutput, domain.HD)
	require.NoError(t, err)

	data, err := NewThumbnailer(nil).Render(context.Background(), nodes, domain.HD, 320)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 180, img.Bounds().Dy())
}

func TestThumbnail_RejectsBadSize(t *testing.T) {
	_, err := NewThumbnailer(nil).Render(context.Background(), nil, domain.Canvas{}, 320)
	assert.Error(t, err)
}
