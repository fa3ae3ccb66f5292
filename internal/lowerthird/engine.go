package lowerthird

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/pkg/log"
)

// Sink receives every visible change to the overlay. A nil payload means
// hidden. It is called with the engine lock held, in change order, and must
// not call back into the engine.
type Sink interface {
	LowerThirdChanged(ctx context.Context, p *domain.LowerThirdPayload)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, p *domain.LowerThirdPayload)

func (f SinkFunc) LowerThirdChanged(ctx context.Context, p *domain.LowerThirdPayload) {
	f(ctx, p)
}

// Direction of a lyrics advance.
type Direction int

const (
	Back    Direction = -1
	Forward Direction = 1
)

type lyrics struct {
	song     domain.Song
	lines    []string
	index    int
	template domain.LowerThirdTemplate
}

// Engine owns the lower-third overlay: free show/hide plus lyrics paging
// with optional auto-advance.
type Engine struct {
	mu              sync.Mutex
	sink            Sink
	clock           clockwork.Clock
	linesPerDisplay int

	current *domain.LowerThirdPayload
	lyrics  *lyrics

	timer    clockwork.Timer
	timerGen uint64
	interval time.Duration
	timerCtx context.Context
}

// NewEngine creates an engine. linesPerDisplay below 1 is treated as 1.
func NewEngine(sink Sink, clock clockwork.Clock, linesPerDisplay int) *Engine {
	if linesPerDisplay < 1 {
		linesPerDisplay = 1
	}
	return &Engine{
		sink:            sink,
		clock:           clock,
		linesPerDisplay: linesPerDisplay,
	}
}

// Current returns the visible overlay, or nil.
func (e *Engine) Current() *domain.LowerThirdPayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Clone()
}

// Restore installs p as the visible overlay without notifying the sink,
// e.g. after the owner reloads a snapshot. Lyrics mode is not restored.
func (e *Engine) Restore(p *domain.LowerThirdPayload) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopTimerLocked()
	e.lyrics = nil
	e.current = p.Clone()
}

// Show displays data with template. Any loaded song is unloaded.
func (e *Engine) Show(ctx context.Context, data domain.LowerThirdData, tmpl domain.LowerThirdTemplate) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopTimerLocked()
	e.lyrics = nil
	e.setLocked(ctx, &domain.LowerThirdPayload{Data: data, Template: tmpl})
}

// Hide clears the overlay and reports whether anything was visible. Hiding
// an already hidden overlay does not notify the sink.
func (e *Engine) Hide(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopTimerLocked()
	e.lyrics = nil
	if e.current == nil {
		return false
	}
	e.setLocked(ctx, nil)
	return true
}

// LoadSong enters lyrics mode with the first page of song visible.
func (e *Engine) LoadSong(ctx context.Context, song domain.Song, tmpl domain.LowerThirdTemplate) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopTimerLocked()
	e.lyrics = &lyrics{song: song, lines: song.FlattenLines(), template: tmpl}
	e.showPageLocked(ctx)
}

// SongLoaded reports whether lyrics mode is active.
func (e *Engine) SongLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lyrics != nil
}

// Index returns the first line of the visible lyrics page, or -1.
func (e *Engine) Index() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lyrics == nil {
		return -1
	}
	return e.lyrics.index
}

// Advance moves one page in dir, clamped to the song. It reports whether
// the page changed. With no song loaded it does nothing.
func (e *Engine) Advance(ctx context.Context, dir Direction) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	changed := e.advanceLocked(ctx, dir)
	if changed && e.timer != nil {
		// Manual paging restarts the countdown.
		e.scheduleLocked()
	}
	return changed
}

// SetLinesPerDisplay changes the page size. The visible page is realigned
// and any running auto-advance restarts.
func (e *Engine) SetLinesPerDisplay(ctx context.Context, n int) {
	if n < 1 {
		n = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if n == e.linesPerDisplay {
		return
	}
	e.linesPerDisplay = n
	if e.lyrics == nil {
		return
	}
	e.lyrics.index = min(e.lyrics.index/n*n, e.lastStartLocked())
	e.showPageLocked(ctx)
	if e.timer != nil {
		e.scheduleLocked()
	}
}

// StartAutoAdvance pages forward every interval until the last page. Any
// previous auto-advance is cancelled first. It does nothing without a song
// or with a non-positive interval.
func (e *Engine) StartAutoAdvance(ctx context.Context, interval time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopTimerLocked()
	if e.lyrics == nil || interval <= 0 || e.atEndLocked() {
		return
	}
	e.interval = interval
	e.timerCtx = context.WithoutCancel(ctx)
	e.scheduleLocked()
}

// StopAutoAdvance cancels a running auto-advance.
func (e *Engine) StopAutoAdvance() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTimerLocked()
}

// AutoAdvancing reports whether an auto-advance timer is pending.
func (e *Engine) AutoAdvancing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timer != nil
}

func (e *Engine) scheduleLocked() {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timerGen++
	gen := e.timerGen
	e.timer = e.clock.AfterFunc(e.interval, func() { e.tick(gen) })
}

func (e *Engine) tick(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A timer stopped after it already fired must not act.
	if gen != e.timerGen || e.timer == nil {
		return
	}
	e.timer = nil

	ctx := e.timerCtx
	e.advanceLocked(ctx, Forward)
	if e.atEndLocked() {
		log.Ctx(ctx).Debug().Str("song_id", e.lyrics.song.ID).Msg("lyrics auto-advance reached end")
		return
	}
	e.scheduleLocked()
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.timerGen++
}

func (e *Engine) advanceLocked(ctx context.Context, dir Direction) bool {
	if e.lyrics == nil {
		return false
	}
	next := e.lyrics.index + int(dir)*e.linesPerDisplay
	next = max(0, min(next, e.lastStartLocked()))
	if next == e.lyrics.index {
		return false
	}
	e.lyrics.index = next
	e.showPageLocked(ctx)
	return true
}

// lastStartLocked is the first line of the last page.
func (e *Engine) lastStartLocked() int {
	n := len(e.lyrics.lines)
	if n == 0 {
		return 0
	}
	return (n - 1) / e.linesPerDisplay * e.linesPerDisplay
}

func (e *Engine) atEndLocked() bool {
	return e.lyrics != nil && e.lyrics.index >= e.lastStartLocked()
}

func (e *Engine) showPageLocked(ctx context.Context) {
	ly := e.lyrics
	end := min(ly.index+e.linesPerDisplay, len(ly.lines))
	var page []string
	if ly.index < end {
		page = append([]string(nil), ly.lines[ly.index:end]...)
	}

	e.setLocked(ctx, &domain.LowerThirdPayload{
		Data: domain.LowerThirdData{
			Kind:      domain.LowerThirdLyrics,
			Title:     ly.song.Title,
			Subtitle:  ly.song.Author,
			Lines:     page,
			SongID:    ly.song.ID,
			LineIndex: ly.index,
			EndOfSong: e.atEndLocked(),
		},
		Template: ly.template,
	})
}

func (e *Engine) setLocked(ctx context.Context, p *domain.LowerThirdPayload) {
	e.current = p
	if e.sink != nil {
		e.sink.LowerThirdChanged(ctx, p.Clone())
	}
}
