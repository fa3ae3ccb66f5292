package compositor

import (
	"errors"
	"fmt"

	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/internal/lowerthird"
)

var (
	ErrSceneCycle   = errors.New("scene contains itself")
	ErrSceneTooDeep = errors.New("scene nesting too deep")
)

// MaxDepth bounds scene-in-scene nesting.
const MaxDepth = 4

// Mode selects output or operator preview rendering.
type Mode int

const (
	ModeOutput Mode = iota
	ModePreview
)

func (m Mode) String() string {
	if m == ModePreview {
		return "preview"
	}
	return "output"
}

// Renderer names the component that draws a node.
type Renderer string

const (
	RendererBackground  Renderer = "background"
	RendererPlaceholder Renderer = "placeholder"
	RendererVerse       Renderer = "verse"
	RendererImage       Renderer = "image"
	RendererVideo       Renderer = "video"
	RendererSlide       Renderer = "slide"
	RendererCustomSlide Renderer = "custom_slide"
	RendererCamera      Renderer = "camera"
	RendererTimer       Renderer = "timer"
	RendererLowerThird  Renderer = "lower_third"
)

// RenderNode is one drawable entry. Nodes are ordered bottom to top.
type RenderNode struct {
	// LayerID is the layer path, "/"-joined through nested scenes.
	LayerID  string      `json:"layer_id"`
	Name     string      `json:"name,omitempty"`
	Z        int         `json:"z"`
	Rect     domain.Rect `json:"rect"`
	Opacity  float64     `json:"opacity"`
	Renderer Renderer    `json:"renderer"`

	Item       domain.DisplayItem  `json:"-"`
	LowerThird *lowerthird.Overlay `json:"lower_third,omitempty"`
	Color      string              `json:"color,omitempty"`
	ImagePath  string              `json:"image_path,omitempty"`
}

// Compose flattens scene into an ordered render list. It is deterministic:
// the same inputs always produce the same list.
func Compose(scene domain.Scene, mode Mode, canvas domain.Canvas) ([]RenderNode, error) {
	c := composer{mode: mode, canvas: canvas}
	if err := c.scene(scene, canvas.Full(), 1, "", 0, nil); err != nil {
		return nil, err
	}
	for i := range c.nodes {
		c.nodes[i].Z = i
	}
	return c.nodes, nil
}

type composer struct {
	mode   Mode
	canvas domain.Canvas
	nodes  []RenderNode
}

func (c *composer) scene(s domain.Scene, box domain.Rect, opacity float64, prefix string, depth int, seen []string) error {
	if depth >= MaxDepth {
		return fmt.Errorf("%w: %s", ErrSceneTooDeep, s.ID)
	}
	for _, id := range seen {
		if id == s.ID {
			return fmt.Errorf("%w: %s", ErrSceneCycle, s.ID)
		}
	}
	seen = append(seen, s.ID)

	if bg := s.Background; bg != nil && (bg.Color != "" || bg.ImagePath != "") {
		c.nodes = append(c.nodes, RenderNode{
			LayerID:   prefix + "background",
			Rect:      box,
			Opacity:   opacity,
			Renderer:  RendererBackground,
			Color:     bg.Color,
			ImagePath: bg.ImagePath,
		})
	}

	for _, layer := range s.Layers {
		if !layer.Visible {
			continue
		}
		if err := c.layer(layer, box, opacity, prefix, depth, seen); err != nil {
			return err
		}
	}
	return nil
}

func (c *composer) layer(l domain.SceneLayer, box domain.Rect, parentOpacity float64, prefix string, depth int, seen []string) error {
	node := RenderNode{
		LayerID: prefix + l.ID,
		Name:    l.Name,
		Rect:    within(box, l.Geometry),
		Opacity: clamp01(l.Opacity) * parentOpacity,
	}

	switch content := l.Content.(type) {
	case nil, domain.EmptyContent:
		if c.mode == ModeOutput {
			return nil
		}
		node.Renderer = RendererPlaceholder
	case domain.LowerThirdContent:
		// Always the full canvas; the template places the graphic.
		node.Rect = c.canvas.Full()
		node.Renderer = RendererLowerThird
		overlay := lowerthird.Resolve(domain.LowerThirdPayload{Data: content.Data, Template: content.Template}, c.canvas)
		node.LowerThird = &overlay
	case domain.ItemContent:
		if nested, ok := content.Item.(domain.SceneItem); ok {
			return c.scene(nested.Scene, node.Rect, node.Opacity, node.LayerID+"/", depth+1, seen)
		}
		r, err := rendererFor(content.Item)
		if err != nil {
			return fmt.Errorf("layer %s: %w", node.LayerID, err)
		}
		node.Renderer = r
		node.Item = content.Item
		node.ImagePath = imagePath(content.Item)
	default:
		return fmt.Errorf("layer %s: unsupported content %T", node.LayerID, l.Content)
	}

	c.nodes = append(c.nodes, node)
	return nil
}

func rendererFor(item domain.DisplayItem) (Renderer, error) {
	switch it := item.(type) {
	case domain.Verse:
		return RendererVerse, nil
	case domain.Media:
		if it.MediaType == domain.MediaVideo {
			return RendererVideo, nil
		}
		return RendererImage, nil
	case domain.PresentationSlide:
		return RendererSlide, nil
	case domain.CustomSlide:
		return RendererCustomSlide, nil
	case domain.CameraFeed:
		return RendererCamera, nil
	case domain.Timer:
		return RendererTimer, nil
	case nil:
		return "", fmt.Errorf("%w: empty item", domain.ErrUnknownItem)
	default:
		return "", fmt.Errorf("%w: %T", domain.ErrUnknownItem, item)
	}
}

func imagePath(item domain.DisplayItem) string {
	switch it := item.(type) {
	case domain.Media:
		if it.MediaType == domain.MediaImage {
			return it.Path
		}
		if it.ThumbnailPath != nil {
			return *it.ThumbnailPath
		}
	case domain.PresentationSlide:
		return it.ImagePath
	}
	return ""
}

// within maps percentage geometry onto box.
func within(box domain.Rect, g domain.Geometry) domain.Rect {
	r := g.ToRect(domain.Canvas{W: box.W, H: box.H})
	r.X += box.X
	r.Y += box.Y
	return r
}

func clamp01(v float64) float64 {
	return max(0, min(v, 1))
}
