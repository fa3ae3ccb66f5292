package domain

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidTemplate is returned by LowerThirdTemplate.Validate.
var ErrInvalidTemplate = errors.New("invalid lower third template")

// LowerThirdKind selects how LowerThirdData is laid out.
type LowerThirdKind string

const (
	LowerThirdNameplate LowerThirdKind = "nameplate"
	LowerThirdLyrics    LowerThirdKind = "lyrics"
	LowerThirdFreeText  LowerThirdKind = "freetext"
)

// LowerThirdData is overlay content. It is combined with a template only at
// render or broadcast time.
type LowerThirdData struct {
	Kind     LowerThirdKind `json:"kind"`
	Title    string         `json:"title,omitempty"`
	Subtitle string         `json:"subtitle,omitempty"`
	Lines    []string       `json:"lines,omitempty"`

	// Lyrics mode.
	SongID    string `json:"song_id,omitempty"`
	LineIndex int    `json:"line_index,omitempty"`
	EndOfSong bool   `json:"end_of_song,omitempty"`
}

// Position anchors the overlay inside the canvas.
type Position string

const (
	PositionBottomLeft   Position = "bottom-left"
	PositionBottomCenter Position = "bottom-center"
	PositionBottomRight  Position = "bottom-right"
	PositionTopLeft      Position = "top-left"
	PositionTopCenter    Position = "top-center"
	PositionTopRight     Position = "top-right"
)

// LowerThirdTemplate is an immutable styling record referenced by id.
type LowerThirdTemplate struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Position  Position `json:"position"`
	WidthPct  float64  `json:"width_pct"`
	HeightPct float64  `json:"height_pct"`
	MarginPct float64  `json:"margin_pct"`

	BackgroundColor string  `json:"background_color"`
	BackgroundAlpha float64 `json:"background_alpha"`
	TextColor       string  `json:"text_color"`
	AccentColor     string  `json:"accent_color,omitempty"`

	FontFamily   string  `json:"font_family,omitempty"`
	TitleSize    float64 `json:"title_size"`
	SubtitleSize float64 `json:"subtitle_size"`
	Animation    string  `json:"animation,omitempty"` // "fade", "slide", "none"
}

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

func validPosition(p Position) bool {
	switch p {
	case PositionBottomLeft, PositionBottomCenter, PositionBottomRight,
		PositionTopLeft, PositionTopCenter, PositionTopRight:
		return true
	}
	return false
}

// Validate reports the first structural problem with t.
func (t LowerThirdTemplate) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTemplate)
	}
	if !validPosition(t.Position) {
		return fmt.Errorf("%w: %s: unknown position %q", ErrInvalidTemplate, t.ID, t.Position)
	}
	for _, pct := range []float64{t.WidthPct, t.HeightPct} {
		if pct <= 0 || pct > 100 {
			return fmt.Errorf("%w: %s: size out of range", ErrInvalidTemplate, t.ID)
		}
	}
	if t.MarginPct < 0 || t.MarginPct >= 50 {
		return fmt.Errorf("%w: %s: margin out of range", ErrInvalidTemplate, t.ID)
	}
	if t.BackgroundAlpha < 0 || t.BackgroundAlpha > 1 {
		return fmt.Errorf("%w: %s: background alpha out of range", ErrInvalidTemplate, t.ID)
	}
	for _, c := range []string{t.BackgroundColor, t.TextColor} {
		if !hexColor.MatchString(c) {
			return fmt.Errorf("%w: %s: bad colour %q", ErrInvalidTemplate, t.ID, c)
		}
	}
	if t.AccentColor != "" && !hexColor.MatchString(t.AccentColor) {
		return fmt.Errorf("%w: %s: bad colour %q", ErrInvalidTemplate, t.ID, t.AccentColor)
	}
	return nil
}

// DefaultTemplate is used when a show request names no template.
func DefaultTemplate() LowerThirdTemplate {
	return LowerThirdTemplate{
		ID:              "default",
		Name:            "Default",
		Position:        PositionBottomLeft,
		WidthPct:        60,
		HeightPct:       15,
		MarginPct:       5,
		BackgroundColor: "#000000",
		BackgroundAlpha: 0.7,
		TextColor:       "#ffffff",
		TitleSize:       48,
		SubtitleSize:    32,
		Animation:       "fade",
	}
}

// LowerThirdPayload is what windows receive on lower-third-update.
type LowerThirdPayload struct {
	Data     LowerThirdData     `json:"data"`
	Template LowerThirdTemplate `json:"template"`
}

// Clone returns a deep copy.
func (p *LowerThirdPayload) Clone() *LowerThirdPayload {
	if p == nil {
		return nil
	}
	c := *p
	if p.Data.Lines != nil {
		c.Data.Lines = append([]string(nil), p.Data.Lines...)
	}
	return &c
}
