package domain

import "encoding/json"

// HistoryLimit caps ProgramState.History.
const HistoryLimit = 10

// Suggestion is an advisory item from an external recogniser.
type Suggestion struct {
	Item       DisplayItem
	Confidence float64
	Source     string
}

// ProgramState is the canonical staged/live record for one session.
type ProgramState struct {
	Live       DisplayItem
	Staged     DisplayItem
	Suggested  *Suggestion
	Blackout   bool
	LowerThird *LowerThirdPayload
	// History is most-recent-first and never longer than HistoryLimit.
	History []DisplayItem
	Version uint64
	// Epoch identifies the owner lifetime that produced Version. Versions
	// restart when an owner comes up without a snapshot.
	Epoch string
}

// Supersedes reports whether s should replace prev: it comes from another
// owner lifetime, or from the same one at a higher version.
func (s ProgramState) Supersedes(prev ProgramState) bool {
	if s.Epoch != prev.Epoch {
		return true
	}
	return s.Version > prev.Version
}

// Clone returns a deep copy of s. Items are immutable values and are
// shared.
func (s ProgramState) Clone() ProgramState {
	c := s
	if s.Suggested != nil {
		sg := *s.Suggested
		c.Suggested = &sg
	}
	c.LowerThird = s.LowerThird.Clone()
	if s.History != nil {
		c.History = append([]DisplayItem(nil), s.History...)
	}
	return c
}

type suggestionWire struct {
	Item       *ItemEnvelope `json:"item"`
	Confidence float64       `json:"confidence"`
	Source     string        `json:"source"`
}

type programWire struct {
	Live       *ItemEnvelope      `json:"live_item"`
	Staged     *ItemEnvelope      `json:"staged_item"`
	Suggested  *suggestionWire    `json:"suggested_item"`
	Blackout   bool               `json:"blackout"`
	LowerThird *LowerThirdPayload `json:"lower_third"`
	History    []ItemEnvelope     `json:"history"`
	Version    uint64             `json:"version"`
	Epoch      string             `json:"epoch,omitempty"`
}

func (s ProgramState) MarshalJSON() ([]byte, error) {
	w := programWire{
		Live:       Wrap(s.Live),
		Staged:     Wrap(s.Staged),
		Blackout:   s.Blackout,
		LowerThird: s.LowerThird,
		History:    make([]ItemEnvelope, 0, len(s.History)),
		Version:    s.Version,
		Epoch:      s.Epoch,
	}
	if s.Suggested != nil {
		w.Suggested = &suggestionWire{
			Item:       Wrap(s.Suggested.Item),
			Confidence: s.Suggested.Confidence,
			Source:     s.Suggested.Source,
		}
	}
	for _, it := range s.History {
		w.History = append(w.History, ItemEnvelope{Item: it})
	}
	return json.Marshal(w)
}

func (s *ProgramState) UnmarshalJSON(b []byte) error {
	var w programWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = ProgramState{
		Live:       w.Live.Unwrap(),
		Staged:     w.Staged.Unwrap(),
		Blackout:   w.Blackout,
		LowerThird: w.LowerThird,
		Version:    w.Version,
		Epoch:      w.Epoch,
	}
	if w.Suggested != nil && w.Suggested.Item != nil {
		s.Suggested = &Suggestion{
			Item:       w.Suggested.Item.Unwrap(),
			Confidence: w.Suggested.Confidence,
			Source:     w.Suggested.Source,
		}
	}
	for _, env := range w.History {
		if env.Item != nil {
			s.History = append(s.History, env.Item)
		}
	}
	return nil
}
