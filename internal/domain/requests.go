package domain

import "encoding/json"

// StageRequest is the body of POST /stage.
type StageRequest struct {
	Item *ItemEnvelope `json:"item"`
}

// GoLiveRequest is the body of POST /live. Without an item the staged item
// goes live; with one it is staged first.
type GoLiveRequest struct {
	Item *ItemEnvelope `json:"item"`
}

// BlackoutRequest is the body of POST /blackout.
type BlackoutRequest struct {
	Enabled bool `json:"enabled"`
}

// SuggestionRequest is the body of POST /suggestion.
type SuggestionRequest struct {
	Item       *ItemEnvelope `json:"item"`
	Confidence float64       `json:"confidence" binding:"gte=0,lte=1"`
	Source     string        `json:"source"`
}

// LowerThirdRequest is the body of POST /lower-third.
type LowerThirdRequest struct {
	Data       LowerThirdData `json:"data"`
	TemplateID string         `json:"template_id"`
}

// LoadSongRequest is the body of POST /lyrics/load.
type LoadSongRequest struct {
	SongID     string `json:"song_id" binding:"required"`
	TemplateID string `json:"template_id"`
}

// AutoAdvanceRequest is the body of POST /lyrics/auto.
type AutoAdvanceRequest struct {
	Enabled bool `json:"enabled"`
}

// ControlEventRequest is the body of POST /events.
type ControlEventRequest struct {
	Type    string          `json:"type" binding:"required"`
	Payload json.RawMessage `json:"payload"`
}

// SessionRequest is the body of POST /session.
type SessionRequest struct {
	PIN  string `json:"pin" binding:"required"`
	Role string `json:"role"`
}

// ChangedResponse reports whether a command changed anything.
type ChangedResponse struct {
	Changed bool          `json:"changed"`
	Version uint64        `json:"version"`
	State   *ProgramState `json:"state,omitempty"`
}
