package program

import (
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/weiawesome/wes-io-stage/internal/domain"
)

// Op names the transition that produced a Delta.
type Op string

const (
	OpStage          Op = "stage"
	OpGoLive         Op = "go_live"
	OpClearLive      Op = "clear_live"
	OpBlackout       Op = "blackout"
	OpSuggest        Op = "suggest"
	OpPromote        Op = "promote"
	OpLowerThirdShow Op = "lower_third_show"
	OpLowerThirdHide Op = "lower_third_hide"
	OpTimerUpdate    Op = "timer_update"
	OpReset          Op = "reset"
)

// Delta is the result of one transition. It carries the full state after
// the transition so a subscriber can never observe a staged/live pair that
// did not exist on the owner.
type Delta struct {
	Op    Op                  `json:"op"`
	State domain.ProgramState `json:"state"`
}

// Version returns the state version the delta produced.
func (d Delta) Version() uint64 {
	return d.State.Version
}

// State owns the canonical ProgramState of one session. It is safe for
// concurrent use; every successful mutation bumps the version.
type State struct {
	mu sync.RWMutex
	s  domain.ProgramState
}

// New creates an empty state at version 0 under a fresh epoch.
func New() *State {
	return &State{s: domain.ProgramState{Epoch: ulid.Make().String()}}
}

// FromSnapshot creates a state seeded from a persisted snapshot.
func FromSnapshot(snap domain.ProgramState) *State {
	st := &State{}
	st.Restore(snap)
	return st
}

// Restore replaces the whole state with snap without producing a delta. It
// keeps the snapshot's epoch so its versions continue.
func (st *State) Restore(snap domain.ProgramState) {
	s := snap.Clone()
	if s.Epoch == "" {
		s.Epoch = ulid.Make().String()
	}
	if len(s.History) > domain.HistoryLimit {
		s.History = s.History[:domain.HistoryLimit]
	}
	st.mu.Lock()
	st.s = s
	st.mu.Unlock()
}

// Snapshot returns a deep copy of the current state.
func (st *State) Snapshot() domain.ProgramState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Clone()
}

// Live returns the item currently on air.
func (st *State) Live() domain.DisplayItem {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Live
}

// Staged returns the item about to go on air.
func (st *State) Staged() domain.DisplayItem {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Staged
}

// LowerThird returns the visible overlay, or nil.
func (st *State) LowerThird() *domain.LowerThirdPayload {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.LowerThird.Clone()
}

// Version returns the current version.
func (st *State) Version() uint64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Version
}

// commit must be called with mu held.
func (st *State) commit(op Op) Delta {
	st.s.Version++
	return Delta{Op: op, State: st.s.Clone()}
}

// Stage sets the staged item. A nil item clears it. Live is never touched.
func (st *State) Stage(item domain.DisplayItem) Delta {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Staged = item
	return st.commit(OpStage)
}

// GoLive moves the staged item to live and records it in history. It
// reports false and changes nothing when nothing is staged.
func (st *State) GoLive() (Delta, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.s.Staged == nil {
		return Delta{}, false
	}
	st.s.Live = st.s.Staged
	st.s.History = pushHistory(st.s.History, st.s.Staged)
	return st.commit(OpGoLive), true
}

// ClearLive takes the live item off air. It reports false when nothing
// is live.
func (st *State) ClearLive() (Delta, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.s.Live == nil {
		return Delta{}, false
	}
	st.s.Live = nil
	return st.commit(OpClearLive), true
}

// SetBlanked toggles blackout. It reports false when the value is unchanged.
func (st *State) SetBlanked(blank bool) (Delta, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.s.Blackout == blank {
		return Delta{}, false
	}
	st.s.Blackout = blank
	return st.commit(OpBlackout), true
}

// Suggest records an advisory item. A nil item withdraws the suggestion.
func (st *State) Suggest(item domain.DisplayItem, confidence float64, source string) Delta {
	st.mu.Lock()
	defer st.mu.Unlock()
	if item == nil {
		st.s.Suggested = nil
	} else {
		st.s.Suggested = &domain.Suggestion{Item: item, Confidence: confidence, Source: source}
	}
	return st.commit(OpSuggest)
}

// PromoteSuggestion stages the suggested item and withdraws the suggestion.
func (st *State) PromoteSuggestion() (Delta, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.s.Suggested == nil {
		return Delta{}, false
	}
	st.s.Staged = st.s.Suggested.Item
	st.s.Suggested = nil
	return st.commit(OpPromote), true
}

// ShowLowerThird replaces the overlay.
func (st *State) ShowLowerThird(p domain.LowerThirdPayload) Delta {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.LowerThird = p.Clone()
	return st.commit(OpLowerThirdShow)
}

// HideLowerThird clears the overlay. It reports false when already hidden.
func (st *State) HideLowerThird() (Delta, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.s.LowerThird == nil {
		return Delta{}, false
	}
	st.s.LowerThird = nil
	return st.commit(OpLowerThirdHide), true
}

// SetLiveTimer stamps the live Timer with a start time in unix millis. A
// nil startedAt resets it to not started. It reports false when the live
// item is not a timer.
func (st *State) SetLiveTimer(startedAt *uint64) (Delta, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	t, ok := st.s.Live.(domain.Timer)
	if !ok {
		return Delta{}, false
	}
	if startedAt != nil {
		v := *startedAt
		startedAt = &v
	}
	t.StartedAt = startedAt
	st.s.Live = t
	if staged, ok := st.s.Staged.(domain.Timer); ok && staged.Key() == t.Key() {
		st.s.Staged = t
	}
	return st.commit(OpTimerUpdate), true
}

// Reset returns to an empty state while keeping the version monotonic.
func (st *State) Reset() Delta {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s = domain.ProgramState{Version: st.s.Version, Epoch: st.s.Epoch}
	return st.commit(OpReset)
}

func pushHistory(history []domain.DisplayItem, item domain.DisplayItem) []domain.DisplayItem {
	key := item.Key()
	out := make([]domain.DisplayItem, 0, domain.HistoryLimit)
	out = append(out, item)
	for _, h := range history {
		if len(out) == domain.HistoryLimit {
			break
		}
		if h.Key() == key {
			continue
		}
		out = append(out, h)
	}
	return out
}
