package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidSong is returned by Song.Validate.
var ErrInvalidSong = errors.New("invalid song")

// Song is a lyric sheet split into sections.
type Song struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Author   string        `json:"author,omitempty"`
	Sections []SongSection `json:"sections"`
	// Arrangement lists section ids in performance order. Empty means
	// natural order.
	Arrangement []string `json:"arrangement,omitempty"`
}

// SongSection is a verse, chorus, bridge, etc.
type SongSection struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Lines []string `json:"lines"`
}

// Validate rejects songs that cannot be displayed.
func (s Song) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidSong)
	}
	if len(s.Sections) == 0 {
		return fmt.Errorf("%w: %s has no sections", ErrInvalidSong, s.ID)
	}
	seen := make(map[string]struct{}, len(s.Sections))
	for _, sec := range s.Sections {
		if sec.ID == "" {
			return fmt.Errorf("%w: %s has a section without id", ErrInvalidSong, s.ID)
		}
		if _, dup := seen[sec.ID]; dup {
			return fmt.Errorf("%w: %s: duplicate section %s", ErrInvalidSong, s.ID, sec.ID)
		}
		seen[sec.ID] = struct{}{}
	}
	return nil
}

// FlattenLines concatenates section lines in arrangement order, or natural
// order when there is no arrangement. Unknown section ids are skipped.
func (s Song) FlattenLines() []string {
	byID := make(map[string]SongSection, len(s.Sections))
	for _, sec := range s.Sections {
		byID[sec.ID] = sec
	}

	order := s.Arrangement
	if len(order) == 0 {
		order = make([]string, 0, len(s.Sections))
		for _, sec := range s.Sections {
			order = append(order, sec.ID)
		}
	}

	var lines []string
	for _, id := range order {
		sec, ok := byID[id]
		if !ok {
			continue
		}
		lines = append(lines, sec.Lines...)
	}
	return lines
}
