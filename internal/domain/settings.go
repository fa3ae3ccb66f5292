package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSettings is returned by PresentationSettings.Validate.
var ErrInvalidSettings = errors.New("invalid settings")

// PresentationSettings are the operator-editable display preferences shared
// by every window.
type PresentationSettings struct {
	Theme             string  `json:"theme"`
	ReferencePosition string  `json:"reference_position"` // "top", "bottom"
	FontScale         float64 `json:"font_scale"`
	LinesPerDisplay   int     `json:"lines_per_display"`
	// Lyrics auto-advance interval in milliseconds; 0 disables it.
	AutoAdvanceMs int64 `json:"auto_advance_ms"`
}

// DefaultSettings is what a fresh install uses.
func DefaultSettings() PresentationSettings {
	return PresentationSettings{
		Theme:             "dark",
		ReferencePosition: "bottom",
		FontScale:         1.0,
		LinesPerDisplay:   2,
	}
}

// AutoAdvance returns the auto-advance interval.
func (s PresentationSettings) AutoAdvance() time.Duration {
	return time.Duration(s.AutoAdvanceMs) * time.Millisecond
}

func (s PresentationSettings) Validate() error {
	if s.LinesPerDisplay < 1 {
		return fmt.Errorf("%w: lines_per_display must be at least 1", ErrInvalidSettings)
	}
	if s.FontScale <= 0 {
		return fmt.Errorf("%w: font_scale must be positive", ErrInvalidSettings)
	}
	if s.AutoAdvanceMs < 0 {
		return fmt.Errorf("%w: auto_advance_ms must not be negative", ErrInvalidSettings)
	}
	switch s.ReferencePosition {
	case "top", "bottom":
	default:
		return fmt.Errorf("%w: unknown reference_position %q", ErrInvalidSettings, s.ReferencePosition)
	}
	return nil
}
