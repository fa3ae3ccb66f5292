package compositor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/weiawesome/wes-io-stage/internal/domain"
	pkglog "github.com/weiawesome/wes-io-stage/pkg/log"
	"github.com/weiawesome/wes-io-stage/pkg/storage"
)

var rendererColors = map[Renderer]color.NRGBA{
	RendererPlaceholder: {R: 0x55, G: 0x55, B: 0x55, A: 0xff},
	RendererVerse:       {R: 0x2e, G: 0x5c, B: 0x8a, A: 0xff},
	RendererImage:       {R: 0x3a, G: 0x7d, B: 0x44, A: 0xff},
	RendererVideo:       {R: 0x7d, G: 0x3a, B: 0x6b, A: 0xff},
	RendererSlide:       {R: 0x8a, G: 0x6d, B: 0x2e, A: 0xff},
	RendererCustomSlide: {R: 0x8a, G: 0x4f, B: 0x2e, A: 0xff},
	RendererCamera:      {R: 0xb0, G: 0x30, B: 0x30, A: 0xff},
	RendererTimer:       {R: 0x30, G: 0x30, B: 0xb0, A: 0xff},
	RendererLowerThird:  {R: 0xee, G: 0xee, B: 0xee, A: 0xff},
}

// Thumbnailer rasterises render lists into PNG wireframes. Image-backed
// nodes are drawn from storage when the object can be read.
type Thumbnailer struct {
	store storage.Storage
}

// NewThumbnailer creates a thumbnailer. store may be nil, in which case
// every node is drawn as a flat block.
func NewThumbnailer(store storage.Storage) *Thumbnailer {
	return &Thumbnailer{store: store}
}

// Render draws nodes at width pixels wide, keeping the canvas aspect ratio.
func (t *Thumbnailer) Render(ctx context.Context, nodes []RenderNode, canvas domain.Canvas, width int) ([]byte, error) {
	if canvas.W <= 0 || canvas.H <= 0 || width <= 0 {
		return nil, fmt.Errorf("invalid thumbnail size %dx%d -> %d", canvas.W, canvas.H, width)
	}
	scale := float64(width) / float64(canvas.W)
	height := max(1, int(float64(canvas.H)*scale))

	dst := imaging.New(width, height, color.NRGBA{A: 0xff})
	for _, n := range nodes {
		r := scaleRect(n.Rect, scale)
		if r.W <= 0 || r.H <= 0 {
			continue
		}
		if n.Renderer == RendererLowerThird && n.LowerThird != nil {
			// Only the graphic box is drawn, not its full-canvas layer.
			r = scaleRect(n.LowerThird.Box, scale)
		}
		tile := t.tile(ctx, n, r.W, r.H)
		dst = imaging.Overlay(dst, tile, image.Pt(r.X, r.Y), n.Opacity)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// Store renders nodes and writes the PNG under key.
func (t *Thumbnailer) Store(ctx context.Context, key string, nodes []RenderNode, canvas domain.Canvas, width int) error {
	if t.store == nil {
		return fmt.Errorf("thumbnail %s: no storage configured", key)
	}
	png, err := t.Render(ctx, nodes, canvas, width)
	if err != nil {
		return err
	}
	if err := t.store.Write(ctx, key, bytes.NewReader(png), int64(len(png)), "image/png"); err != nil {
		return fmt.Errorf("write thumbnail %s: %w", key, err)
	}
	return nil
}

func (t *Thumbnailer) tile(ctx context.Context, n RenderNode, w, h int) image.Image {
	if n.ImagePath != "" && t.store != nil {
		img, err := t.load(ctx, n.ImagePath)
		if err == nil {
			return imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos)
		}
		pkglog.Ctx(ctx).Debug().Err(err).Str("path", n.ImagePath).Msg("thumbnail image unavailable")
	}

	c, ok := rendererColors[n.Renderer]
	if n.Renderer == RendererBackground {
		c, ok = parseHex(n.Color)
	}
	if !ok {
		c = rendererColors[RendererPlaceholder]
	}
	return imaging.New(w, h, c)
}

func (t *Thumbnailer) load(ctx context.Context, key string) (image.Image, error) {
	rc, err := t.store.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return imaging.Decode(rc)
}

func scaleRect(r domain.Rect, s float64) domain.Rect {
	return domain.Rect{
		X: int(float64(r.X) * s),
		Y: int(float64(r.Y) * s),
		W: int(float64(r.W) * s),
		H: int(float64(r.H) * s),
	}
}

// parseHex accepts #rgb and #rrggbb.
func parseHex(s string) (color.NRGBA, bool) {
	s = strings.TrimPrefix(s, "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return color.NRGBA{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, true
}
