package lowerthird

import (
	"math"

	"github.com/weiawesome/wes-io-stage/internal/domain"
)

// Overlay is a payload resolved against a canvas: where the graphic box
// sits and what text it carries.
type Overlay struct {
	Box      domain.Rect               `json:"box"`
	Title    string                    `json:"title,omitempty"`
	Subtitle string                    `json:"subtitle,omitempty"`
	Lines    []string                  `json:"lines,omitempty"`
	Template domain.LowerThirdTemplate `json:"template"`
}

// Resolve computes the overlay box for p on canvas. The box is anchored by
// the template position and inset by its margin.
func Resolve(p domain.LowerThirdPayload, canvas domain.Canvas) Overlay {
	t := p.Template
	w := pct(t.WidthPct, canvas.W)
	h := pct(t.HeightPct, canvas.H)
	mx := pct(t.MarginPct, canvas.W)
	my := pct(t.MarginPct, canvas.H)

	var x, y int
	switch t.Position {
	case domain.PositionBottomLeft, domain.PositionTopLeft:
		x = mx
	case domain.PositionBottomRight, domain.PositionTopRight:
		x = canvas.W - mx - w
	default:
		x = (canvas.W - w) / 2
	}
	switch t.Position {
	case domain.PositionTopLeft, domain.PositionTopCenter, domain.PositionTopRight:
		y = my
	default:
		y = canvas.H - my - h
	}

	o := Overlay{
		Box:      domain.Rect{X: x, Y: y, W: w, H: h},
		Template: t,
	}
	switch p.Data.Kind {
	case domain.LowerThirdLyrics:
		o.Lines = append([]string(nil), p.Data.Lines...)
	case domain.LowerThirdFreeText:
		o.Lines = append([]string(nil), p.Data.Lines...)
		if len(o.Lines) == 0 && p.Data.Title != "" {
			o.Lines = []string{p.Data.Title}
		}
	default:
		o.Title = p.Data.Title
		o.Subtitle = p.Data.Subtitle
	}
	return o
}

func pct(v float64, total int) int {
	return int(math.Round(v * float64(total) / 100))
}
