package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidScene is returned by Scene.Validate.
var ErrInvalidScene = errors.New("invalid scene")

// Scene is a named, ordered stack of layers. Layers[0] is the bottom.
type Scene struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Layers     []SceneLayer `json:"layers"`
	Background *Background  `json:"background,omitempty"`
}

// Background fills the canvas beneath every layer.
type Background struct {
	Color     string `json:"color,omitempty"`
	ImagePath string `json:"image_path,omitempty"`
}

// Geometry is a layer's box in percent of the canvas.
type Geometry struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// FullCanvas covers the whole output.
var FullCanvas = Geometry{X: 0, Y: 0, W: 100, H: 100}

// SceneLayer is one positioned piece of content.
type SceneLayer struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Content  LayerContent `json:"-"`
	Geometry Geometry     `json:"geometry"`
	Opacity  float64      `json:"opacity"`
	Visible  bool         `json:"visible"`
}

// LayerContentKind tags a LayerContent variant on the wire.
type LayerContentKind string

const (
	ContentEmpty      LayerContentKind = "empty"
	ContentItem       LayerContentKind = "item"
	ContentLowerThird LayerContentKind = "lower_third"
)

// LayerContent is what a layer shows. The set of implementations is closed
// to this package.
type LayerContent interface {
	ContentKind() LayerContentKind
	isLayerContent()
}

// EmptyContent is a placeholder layer.
type EmptyContent struct{}

func (EmptyContent) ContentKind() LayerContentKind { return ContentEmpty }
func (EmptyContent) isLayerContent()                {}

// ItemContent shows a DisplayItem inside the layer's box.
type ItemContent struct {
	Item DisplayItem
}

func (ItemContent) ContentKind() LayerContentKind { return ContentItem }
func (ItemContent) isLayerContent()                {}

// LowerThirdContent shows an overlay. It always spans the full canvas; the
// template positions the graphic within it.
type LowerThirdContent struct {
	Data     LowerThirdData     `json:"data"`
	Template LowerThirdTemplate `json:"template"`
}

func (LowerThirdContent) ContentKind() LayerContentKind { return ContentLowerThird }
func (LowerThirdContent) isLayerContent()                {}

type layerWire struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Content  json.RawMessage `json:"content"`
	Geometry Geometry        `json:"geometry"`
	Opacity  *float64        `json:"opacity,omitempty"`
	Visible  *bool           `json:"visible,omitempty"`
}

type contentWire struct {
	Kind     LayerContentKind    `json:"kind"`
	Item     *ItemEnvelope       `json:"item,omitempty"`
	Data     *LowerThirdData     `json:"data,omitempty"`
	Template *LowerThirdTemplate `json:"template,omitempty"`
}

func (l SceneLayer) MarshalJSON() ([]byte, error) {
	cw := contentWire{Kind: ContentEmpty}
	switch c := l.Content.(type) {
	case nil, EmptyContent:
	case ItemContent:
		cw.Kind = ContentItem
		cw.Item = Wrap(c.Item)
	case LowerThirdContent:
		cw.Kind = ContentLowerThird
		cw.Data = &c.Data
		cw.Template = &c.Template
	default:
		return nil, fmt.Errorf("layer %s: unsupported content %T", l.ID, l.Content)
	}
	content, err := json.Marshal(cw)
	if err != nil {
		return nil, err
	}
	opacity, visible := l.Opacity, l.Visible
	return json.Marshal(layerWire{
		ID:       l.ID,
		Name:     l.Name,
		Content:  content,
		Geometry: l.Geometry,
		Opacity:  &opacity,
		Visible:  &visible,
	})
}

// UnmarshalJSON decodes a layer. Missing opacity defaults to 1 and missing
// visibility to true.
func (l *SceneLayer) UnmarshalJSON(b []byte) error {
	var w layerWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	l.ID = w.ID
	l.Name = w.Name
	l.Geometry = w.Geometry
	l.Opacity = 1
	if w.Opacity != nil {
		l.Opacity = *w.Opacity
	}
	l.Visible = true
	if w.Visible != nil {
		l.Visible = *w.Visible
	}

	l.Content = EmptyContent{}
	if len(w.Content) == 0 || string(w.Content) == "null" {
		return nil
	}
	var cw contentWire
	if err := json.Unmarshal(w.Content, &cw); err != nil {
		return fmt.Errorf("layer %s content: %w", w.ID, err)
	}
	switch cw.Kind {
	case ContentEmpty, "":
	case ContentItem:
		if cw.Item == nil || cw.Item.Item == nil {
			return fmt.Errorf("layer %s: item content without item", w.ID)
		}
		l.Content = ItemContent{Item: cw.Item.Item}
	case ContentLowerThird:
		var lt LowerThirdContent
		if cw.Data != nil {
			lt.Data = *cw.Data
		}
		if cw.Template != nil {
			lt.Template = *cw.Template
		}
		l.Content = lt
	default:
		return fmt.Errorf("layer %s: unknown content kind %q", w.ID, cw.Kind)
	}
	return nil
}

// Validate checks structural constraints a composer must uphold.
func (s Scene) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidScene)
	}
	seen := make(map[string]struct{}, len(s.Layers))
	for i, l := range s.Layers {
		if l.ID == "" {
			return fmt.Errorf("%w: layer %d has no id", ErrInvalidScene, i)
		}
		if _, dup := seen[l.ID]; dup {
			return fmt.Errorf("%w: duplicate layer id %s", ErrInvalidScene, l.ID)
		}
		seen[l.ID] = struct{}{}
		if l.Geometry.W < 0 || l.Geometry.H < 0 {
			return fmt.Errorf("%w: layer %s has negative size", ErrInvalidScene, l.ID)
		}
	}
	return nil
}

// Canvas is the output size in pixels.
type Canvas struct {
	W int `json:"w"`
	H int `json:"h"`
}

// HD is the default output canvas.
var HD = Canvas{W: 1920, H: 1080}

// Rect is an absolute region in pixels.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Full returns the rect covering the whole canvas.
func (c Canvas) Full() Rect {
	return Rect{W: c.W, H: c.H}
}

// ToRect maps percentage geometry onto c, rounding to whole pixels.
func (g Geometry) ToRect(c Canvas) Rect {
	px := func(pct float64, total int) int {
		return int(math.Round(pct * float64(total) / 100))
	}
	return Rect{
		X: px(g.X, c.W),
		Y: px(g.Y, c.H),
		W: px(g.W, c.W),
		H: px(g.H, c.H),
	}
}
