package domain

import "encoding/json"

// Sources of a transcription-update.
const (
	SourceManual     = "manual"
	SourceRecognizer = "recognizer"
)

// TranscriptionUpdate tells the output what text and item are on air.
type TranscriptionUpdate struct {
	Text         string
	DetectedItem DisplayItem
	Confidence   float64
	Source       string
}

type transcriptionWire struct {
	Text         string        `json:"text"`
	DetectedItem *ItemEnvelope `json:"detected_item"`
	Confidence   float64       `json:"confidence"`
	Source       string        `json:"source"`
}

func (t TranscriptionUpdate) MarshalJSON() ([]byte, error) {
	return json.Marshal(transcriptionWire{
		Text:         t.Text,
		DetectedItem: Wrap(t.DetectedItem),
		Confidence:   t.Confidence,
		Source:       t.Source,
	})
}

func (t *TranscriptionUpdate) UnmarshalJSON(b []byte) error {
	var w transcriptionWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*t = TranscriptionUpdate{
		Text:         w.Text,
		DetectedItem: w.DetectedItem.Unwrap(),
		Confidence:   w.Confidence,
		Source:       w.Source,
	}
	return nil
}

// Session status values.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
	StatusError   = "error"
)

// SessionStatus reports the recogniser session state.
type SessionStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// AudioLevel is an input meter sample in dBFS.
type AudioLevel struct {
	RMS  float64 `json:"rms"`
	Peak float64 `json:"peak"`
}

// Media control actions.
const (
	MediaPlay  = "play"
	MediaPause = "pause"
	MediaStop  = "stop"
	MediaSeek  = "seek"
)

// MediaControl drives video playback on the output.
type MediaControl struct {
	Action   string   `json:"action"`
	Position *float64 `json:"position,omitempty"` // seconds, for seek
}

func (m MediaControl) Valid() bool {
	switch m.Action {
	case MediaPlay, MediaPause, MediaStop:
		return true
	case MediaSeek:
		return m.Position != nil && *m.Position >= 0
	}
	return false
}
