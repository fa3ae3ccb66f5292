package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/weiawesome/wes-io-stage/internal/cache"
	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/internal/kafka"
	"github.com/weiawesome/wes-io-stage/internal/lowerthird"
	"github.com/weiawesome/wes-io-stage/internal/metrics"
	"github.com/weiawesome/wes-io-stage/internal/program"
	"github.com/weiawesome/wes-io-stage/internal/repository"
	"github.com/weiawesome/wes-io-stage/internal/statebus"
	"github.com/weiawesome/wes-io-stage/pkg/log"
	"github.com/weiawesome/wes-io-stage/pkg/pubsub"
)

var (
	// ErrPublish wraps a failure to replicate a committed change. The local
	// state has already changed when it is returned.
	ErrPublish = errors.New("failed to publish program change")
	// ErrSongNotFound is returned when lyrics are requested for an unknown song.
	ErrSongNotFound = errors.New("song not found")
	// ErrTemplateNotFound is returned when deleting an unknown template.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrInvalidControlEvent rejects an unknown or malformed control event.
	ErrInvalidControlEvent = errors.New("invalid control event")
)

// Origins recorded in the as-run log.
const (
	OriginAPI    = "api"
	OriginRemote = "remote"
)

// RelaySender sends frames to the relay.
type RelaySender interface {
	Send(ctx context.Context, msg interface{}) error
}

// ProgramConfig tunes the controller.
type ProgramConfig struct {
	// SettleDelay separates stage and go-live in StageThenGoLive so windows
	// render the staged item before it is cut.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// ProgramDeps are the collaborators of the controller. Snapshots, AsRun and
// Relay are optional.
type ProgramDeps struct {
	Bus       *statebus.Bus
	Settings  repository.SettingsRepository
	Songs     repository.SongRepository
	Templates []lowerthird.TemplateSource
	// TemplateRepo receives template edits; it is usually also listed in
	// Templates.
	TemplateRepo repository.TemplateRepository
	Snapshots cache.SnapshotCache
	AsRun     kafka.AsRunProducer
	Relay     RelaySender
	Clock     clockwork.Clock
}

type programService struct {
	cfg  ProgramConfig
	deps ProgramDeps

	catalogue *lowerthird.Catalogue
	engine    *lowerthird.Engine

	// pubMu keeps deltas leaving in version order. Lock order is engine
	// before pubMu; nothing holding pubMu calls into the engine.
	pubMu sync.Mutex
	// state is restored in place and never replaced.
	state *program.State

	settingsMu sync.RWMutex
	settings   domain.PresentationSettings
}

var _ ProgramService = (*programService)(nil)

// NewProgramService creates the controller that owns the session's program
// state. Start must be called before use.
func NewProgramService(cfg ProgramConfig, deps ProgramDeps) ProgramService {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 80 * time.Millisecond
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	s := &programService{
		cfg:       cfg,
		deps:      deps,
		catalogue: lowerthird.NewCatalogue(),
		state:     program.New(),
		settings:  domain.DefaultSettings(),
	}
	s.engine = lowerthird.NewEngine(lowerthird.SinkFunc(s.lowerThirdChanged), deps.Clock, s.settings.LinesPerDisplay)
	return s
}

func (s *programService) Start(ctx context.Context) error {
	l := log.Ctx(ctx)

	settings, err := s.deps.Settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	s.settingsMu.Lock()
	s.settings = settings
	s.settingsMu.Unlock()
	s.engine.SetLinesPerDisplay(ctx, settings.LinesPerDisplay)

	if err := s.ReloadTemplates(ctx); err != nil {
		return err
	}

	if s.deps.Snapshots != nil {
		snap, err := s.deps.Snapshots.Get(ctx, s.deps.Bus.Session())
		switch {
		case err == nil:
			s.pubMu.Lock()
			s.state.Restore(snap)
			s.pubMu.Unlock()
			s.engine.Restore(snap.LowerThird)
			l.Info().Uint64(log.FieldVersion, snap.Version).Str("epoch", snap.Epoch).Msg("program state restored from snapshot")
		case errors.Is(err, cache.ErrCacheMiss):
		default:
			l.Warn().Err(err).Msg("failed to read program snapshot, starting empty")
		}
	}
	return nil
}

func (s *programService) Snapshot(_ context.Context) domain.ProgramState {
	return s.state.Snapshot()
}

// publishLocked replicates d. pubMu must be held.
func (s *programService) publishLocked(ctx context.Context, d program.Delta) error {
	metrics.ProgramMutations.WithLabelValues(string(d.Op)).Inc()
	metrics.ProgramVersion.Set(float64(d.Version()))

	if s.deps.Snapshots != nil {
		if err := s.deps.Snapshots.Set(ctx, s.deps.Bus.Session(), d.State); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Uint64(log.FieldVersion, d.Version()).Msg("failed to store program snapshot")
		}
	}

	if err := s.deps.Bus.PublishDelta(ctx, d); err != nil {
		metrics.ProgramPublishErrors.Inc()
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return nil
}

// mutate applies one transition and publishes it when it changed anything.
func (s *programService) mutate(ctx context.Context, fn func(st *program.State) (program.Delta, bool)) (program.Delta, bool, error) {
	return s.mutateAndEmit(ctx, fn, "", nil)
}

// mutateAndEmit is mutate followed by a display event derived from the
// delta. Both leave under pubMu so events keep the order of their deltas.
func (s *programService) mutateAndEmit(ctx context.Context, fn func(st *program.State) (program.Delta, bool), eventType string, payload func(program.Delta) interface{}) (program.Delta, bool, error) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	d, ok := fn(s.state)
	if !ok {
		return program.Delta{}, false, nil
	}
	if err := s.publishLocked(ctx, d); err != nil {
		return d, true, err
	}
	if payload != nil {
		if err := s.deps.Bus.Emit(ctx, eventType, payload(d)); err != nil {
			return d, true, fmt.Errorf("%w: %w", ErrPublish, err)
		}
	}
	return d, true, nil
}

func (s *programService) Stage(ctx context.Context, item domain.DisplayItem) (domain.ProgramState, error) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	d := s.state.Stage(item)
	if err := s.publishLocked(ctx, d); err != nil {
		return d.State, err
	}
	if err := s.deps.Bus.Emit(ctx, pubsub.EventItemStaged, domain.Wrap(item)); err != nil {
		return d.State, fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return d.State, nil
}

func (s *programService) GoLive(ctx context.Context) (bool, error) {
	return s.goLive(ctx, OriginAPI)
}

// goLive cuts to the staged item and tells the remote panels.
func (s *programService) goLive(ctx context.Context, origin string) (bool, error) {
	d, ok, err := s.cut(ctx, origin)
	if ok {
		s.broadcastState(ctx, d.State)
	}
	return ok, err
}

func (s *programService) cut(ctx context.Context, origin string) (program.Delta, bool, error) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	d, ok := s.state.GoLive()
	if !ok {
		return program.Delta{}, false, nil
	}
	if err := s.publishLocked(ctx, d); err != nil {
		return d, true, err
	}

	live := d.State.Live
	update := domain.TranscriptionUpdate{
		Text:         live.Label(),
		DetectedItem: live,
		Confidence:   1,
		Source:       domain.SourceManual,
	}
	if err := s.deps.Bus.Emit(ctx, pubsub.EventTranscriptionUpdate, update); err != nil {
		return d, true, fmt.Errorf("%w: %w", ErrPublish, err)
	}

	s.asRun(ctx, &kafka.AsRunEvent{
		Type:    kafka.EventCut,
		Version: d.Version(),
		Item:    domain.Wrap(live),
		Label:   live.Label(),
		Source:  origin,
	})
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldItemKind, string(live.Kind())).
		Str(log.FieldItemKey, live.Key().String()).
		Uint64(log.FieldVersion, d.Version()).
		Msg("item live")
	return d, true, nil
}

func (s *programService) StageThenGoLive(ctx context.Context, item domain.DisplayItem) (bool, error) {
	return s.stageThenGoLive(ctx, item, OriginAPI)
}

func (s *programService) stageThenGoLive(ctx context.Context, item domain.DisplayItem, origin string) (bool, error) {
	if item == nil {
		return false, nil
	}
	if _, err := s.Stage(ctx, item); err != nil {
		return false, err
	}
	select {
	case <-s.deps.Clock.After(s.cfg.SettleDelay):
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return s.goLive(ctx, origin)
}

func (s *programService) ClearLive(ctx context.Context) (bool, error) {
	d, ok, err := s.mutateAndEmit(ctx, (*program.State).ClearLive, pubsub.EventTranscriptionUpdate,
		func(program.Delta) interface{} {
			return domain.TranscriptionUpdate{Confidence: 1, Source: domain.SourceManual}
		})
	if !ok {
		return false, err
	}
	s.asRun(ctx, &kafka.AsRunEvent{Type: kafka.EventClear, Version: d.Version(), Source: OriginAPI})
	s.broadcastState(ctx, d.State)
	return true, err
}

func (s *programService) SetBlackout(ctx context.Context, on bool) (bool, error) {
	d, ok, err := s.mutate(ctx, func(st *program.State) (program.Delta, bool) {
		return st.SetBlanked(on)
	})
	if ok {
		s.asRun(ctx, &kafka.AsRunEvent{Type: kafka.EventBlackout, Version: d.Version(), Blackout: on, Source: OriginAPI})
	}
	return ok, err
}

func (s *programService) Suggest(ctx context.Context, item domain.DisplayItem, confidence float64, source string) error {
	_, _, err := s.mutate(ctx, func(st *program.State) (program.Delta, bool) {
		return st.Suggest(item, confidence, source), true
	})
	return err
}

func (s *programService) PromoteSuggestion(ctx context.Context) (bool, error) {
	d, ok, err := s.mutate(ctx, (*program.State).PromoteSuggestion)
	if !ok || err != nil {
		return ok, err
	}
	if err := s.deps.Bus.Emit(ctx, pubsub.EventItemStaged, domain.Wrap(d.State.Staged)); err != nil {
		return true, fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return true, nil
}

func (s *programService) StartTimer(ctx context.Context) (bool, error) {
	now := uint64(s.deps.Clock.Now().UnixMilli())
	return s.setTimer(ctx, &now)
}

func (s *programService) ResetTimer(ctx context.Context) (bool, error) {
	return s.setTimer(ctx, nil)
}

// setTimer updates the live timer and re-announces it so every window
// ticks from the same start.
func (s *programService) setTimer(ctx context.Context, startedAt *uint64) (bool, error) {
	set := func(st *program.State) (program.Delta, bool) {
		return st.SetLiveTimer(startedAt)
	}
	_, ok, err := s.mutateAndEmit(ctx, set, pubsub.EventTranscriptionUpdate, func(d program.Delta) interface{} {
		timer, _ := d.State.Live.(domain.Timer)
		return domain.TranscriptionUpdate{
			Text:         "Timer: " + timer.TimerType,
			DetectedItem: timer,
			Confidence:   1,
			Source:       domain.SourceManual,
		}
	})
	return ok, err
}

func (s *programService) History(_ context.Context) []domain.DisplayItem {
	return s.state.Snapshot().History
}

func (s *programService) asRun(ctx context.Context, event *kafka.AsRunEvent) {
	if s.deps.AsRun == nil {
		return
	}
	event.Session = s.deps.Bus.Session()
	event.Timestamp = s.deps.Clock.Now().UnixMilli()
	if err := s.deps.AsRun.ProduceAsRun(ctx, event); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str("event", event.Type).Msg("failed to produce as-run event")
	}
}

// lowerThirdChanged is the engine's sink. It runs with the engine lock held.
func (s *programService) lowerThirdChanged(ctx context.Context, p *domain.LowerThirdPayload) {
	l := log.Ctx(ctx)

	s.pubMu.Lock()
	var (
		d  program.Delta
		ok = true
	)
	if p == nil {
		d, ok = s.state.HideLowerThird()
	} else {
		d = s.state.ShowLowerThird(*p)
	}
	if ok {
		if err := s.publishLocked(ctx, d); err != nil {
			l.Error().Err(err).Msg("lower third change not replicated")
		}
		if err := s.deps.Bus.Emit(ctx, pubsub.EventLowerThirdUpdate, p); err != nil {
			l.Error().Err(err).Msg("lower third update not emitted")
		}
	}
	s.pubMu.Unlock()

	if ok {
		s.toRemotes(ctx, domain.LTUpdateMessage{Type: domain.TypeLTUpdate, Payload: p})
	}
}

func (s *programService) ShowLowerThird(ctx context.Context, data domain.LowerThirdData, templateID string) {
	s.engine.Show(ctx, data, s.catalogue.Resolve(templateID))
}

func (s *programService) HideLowerThird(ctx context.Context) bool {
	return s.engine.Hide(ctx)
}

func (s *programService) LoadSong(ctx context.Context, songID, templateID string) error {
	song, err := s.deps.Songs.GetSong(ctx, songID)
	if err != nil {
		if errors.Is(err, repository.ErrSongNotFound) {
			return ErrSongNotFound
		}
		return err
	}
	s.engine.LoadSong(ctx, song, s.catalogue.Resolve(templateID))
	if interval := s.Settings(ctx).AutoAdvance(); interval > 0 {
		s.engine.StartAutoAdvance(ctx, interval)
	}
	return nil
}

func (s *programService) AdvanceLyrics(ctx context.Context, dir lowerthird.Direction) bool {
	return s.engine.Advance(ctx, dir)
}

func (s *programService) SetAutoAdvance(ctx context.Context, enabled bool) bool {
	if !enabled {
		s.engine.StopAutoAdvance()
		return false
	}
	s.engine.StartAutoAdvance(ctx, s.Settings(ctx).AutoAdvance())
	return s.engine.AutoAdvancing()
}

func (s *programService) Lyrics(_ context.Context) LyricsStatus {
	return LyricsStatus{
		Loaded:        s.engine.SongLoaded(),
		Index:         s.engine.Index(),
		AutoAdvancing: s.engine.AutoAdvancing(),
		Current:       s.engine.Current(),
	}
}

func (s *programService) Settings(_ context.Context) domain.PresentationSettings {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.settings
}

func (s *programService) SaveSettings(ctx context.Context, settings domain.PresentationSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := s.deps.Settings.Save(ctx, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	s.settingsMu.Lock()
	prev := s.settings
	s.settings = settings
	s.settingsMu.Unlock()

	s.engine.SetLinesPerDisplay(ctx, settings.LinesPerDisplay)
	if prev.AutoAdvanceMs != settings.AutoAdvanceMs && s.engine.AutoAdvancing() {
		s.engine.StartAutoAdvance(ctx, settings.AutoAdvance())
	}

	if err := s.deps.Bus.Emit(ctx, pubsub.EventSettingsChanged, settings); err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return nil
}

func (s *programService) Templates(_ context.Context) []domain.LowerThirdTemplate {
	return s.catalogue.List()
}

func (s *programService) ReloadTemplates(ctx context.Context) error {
	var all []domain.LowerThirdTemplate
	for _, src := range s.deps.Templates {
		list, err := src.ListTemplates(ctx)
		if err != nil {
			return fmt.Errorf("list templates: %w", err)
		}
		all = append(all, list...)
	}
	kept := s.catalogue.Replace(ctx, all)
	l := log.Ctx(ctx)
	l.Debug().Int("templates", kept).Int("rejected", len(all)-kept).Msg("lower third catalogue loaded")
	return nil
}

func (s *programService) SaveTemplate(ctx context.Context, t domain.LowerThirdTemplate) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := s.deps.TemplateRepo.Upsert(ctx, t); err != nil {
		return err
	}
	return s.ReloadTemplates(ctx)
}

func (s *programService) DeleteTemplate(ctx context.Context, id string) error {
	if id == domain.DefaultTemplate().ID {
		return fmt.Errorf("%w: default template cannot be deleted", domain.ErrInvalidTemplate)
	}
	if err := s.deps.TemplateRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrTemplateNotFound) {
			return ErrTemplateNotFound
		}
		return err
	}
	return s.ReloadTemplates(ctx)
}

func (s *programService) Songs(ctx context.Context) ([]domain.Song, error) {
	return s.deps.Songs.ListSongs(ctx)
}

func (s *programService) SaveSong(ctx context.Context, song domain.Song) error {
	if err := song.Validate(); err != nil {
		return err
	}
	return s.deps.Songs.Upsert(ctx, song)
}

func (s *programService) DeleteSong(ctx context.Context, id string) error {
	if err := s.deps.Songs.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrSongNotFound) {
			return ErrSongNotFound
		}
		return err
	}
	return nil
}

func (s *programService) EmitControl(ctx context.Context, eventType string, payload json.RawMessage) error {
	var v interface{}
	switch eventType {
	case pubsub.EventSessionStatus:
		var st domain.SessionStatus
		if err := json.Unmarshal(payload, &st); err != nil || st.Status == "" {
			return fmt.Errorf("%w: %s", ErrInvalidControlEvent, eventType)
		}
		v = st
	case pubsub.EventAudioLevel:
		var lvl domain.AudioLevel
		if err := json.Unmarshal(payload, &lvl); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidControlEvent, eventType)
		}
		v = lvl
	case pubsub.EventMediaControl:
		var mc domain.MediaControl
		if err := json.Unmarshal(payload, &mc); err != nil || !mc.Valid() {
			return fmt.Errorf("%w: %s", ErrInvalidControlEvent, eventType)
		}
		v = mc
	default:
		return fmt.Errorf("%w: %s", ErrInvalidControlEvent, eventType)
	}
	if err := s.deps.Bus.Emit(ctx, eventType, v); err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return nil
}

// HandleRemote answers a remote panel command forwarded by the relay.
func (s *programService) HandleRemote(ctx context.Context, raw []byte) {
	l := log.Ctx(ctx)

	var cmd domain.RemoteCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		l.Debug().Err(err).Msg("undecodable remote command")
		return
	}
	cl := l.With().Str(log.FieldCmd, cmd.Cmd).Str(log.FieldClientKey, cmd.From).Logger()
	ctx = log.WithLogger(ctx, cl)
	l = &cl

	switch cmd.Cmd {
	case domain.CmdGetState:
		s.broadcastState(ctx, s.state.Snapshot())

	case domain.CmdGetSongs:
		songs, err := s.deps.Songs.ListSongs(ctx)
		if err != nil {
			l.Error().Err(err).Msg("remote song list failed")
			s.replyError(ctx, cmd.From, "song list unavailable")
			return
		}
		if songs == nil {
			songs = []domain.Song{}
		}
		s.toRemotes(ctx, domain.SongsMessage{Type: domain.TypeSongs, Songs: songs})

	case domain.CmdGoLive:
		var (
			changed bool
			err     error
		)
		if len(cmd.Item) > 0 && string(cmd.Item) != "null" {
			item, derr := domain.DecodeItem(cmd.Item)
			if derr != nil {
				s.replyError(ctx, cmd.From, "invalid item")
				return
			}
			changed, err = s.stageThenGoLive(ctx, item, OriginRemote)
		} else {
			changed, err = s.goLive(ctx, OriginRemote)
		}
		if err != nil {
			l.Error().Err(err).Msg("remote go live failed")
			s.replyError(ctx, cmd.From, "go live failed")
			return
		}
		if !changed {
			s.broadcastState(ctx, s.state.Snapshot())
		}

	case domain.CmdShowLT:
		var data domain.LowerThirdData
		if err := json.Unmarshal(cmd.Data, &data); err != nil {
			s.replyError(ctx, cmd.From, "invalid lower third data")
			return
		}
		s.engine.Show(ctx, data, s.remoteTemplate(ctx, cmd.Template))

	case domain.CmdHideLT:
		s.engine.Hide(ctx)

	default:
		s.replyError(ctx, cmd.From, "unknown command")
	}
}

// remoteTemplate accepts a template id or a full template object. Anything
// unusable falls back to the default template.
func (s *programService) remoteTemplate(ctx context.Context, raw json.RawMessage) domain.LowerThirdTemplate {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return s.catalogue.Resolve(id)
	}
	var t domain.LowerThirdTemplate
	if err := json.Unmarshal(raw, &t); err == nil {
		if err := t.Validate(); err == nil {
			return t
		}
		l := log.Ctx(ctx)
		l.Debug().Str("template_id", t.ID).Msg("remote template invalid, using default")
	}
	return s.catalogue.Resolve("")
}

func (s *programService) broadcastState(ctx context.Context, st domain.ProgramState) {
	s.toRemotes(ctx, domain.StateMessage{
		Type:     domain.TypeState,
		LiveItem: domain.Wrap(st.Live),
		LT:       st.LowerThird,
	})
}

// toRemotes fans msg out to every relay client.
func (s *programService) toRemotes(ctx context.Context, msg interface{}) {
	if s.deps.Relay == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := s.deps.Relay.Send(ctx, domain.BroadcastCommand{Cmd: domain.CmdBroadcast, Message: data}); err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Msg("remote broadcast dropped")
	}
}

func (s *programService) replyError(ctx context.Context, to, message string) {
	if s.deps.Relay == nil || to == "" {
		return
	}
	err := s.deps.Relay.Send(ctx, domain.ErrorMessage{Type: domain.TypeError, Message: message, Target: to})
	if err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Msg("remote error reply dropped")
	}
}
