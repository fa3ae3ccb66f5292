package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-stage/internal/cache"
	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/internal/kafka"
	"github.com/weiawesome/wes-io-stage/internal/lowerthird"
	"github.com/weiawesome/wes-io-stage/internal/program"
	"github.com/weiawesome/wes-io-stage/internal/repository"
	"github.com/weiawesome/wes-io-stage/internal/statebus"
	"github.com/weiawesome/wes-io-stage/pkg/pubsub"
)

var (
	john316 = domain.Verse{Book: "John", Chapter: 3, Verse: 16}
	psalm23 = domain.Verse{Book: "Psalm", Chapter: 23, Verse: 1}
)

type fakeSettings struct {
	mu sync.Mutex
	s  domain.PresentationSettings
}

func (f *fakeSettings) Get(context.Context) (domain.PresentationSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s, nil
}

func (f *fakeSettings) Save(_ context.Context, s domain.PresentationSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s = s
	return nil
}

type fakeSongs struct {
	songs map[string]domain.Song
}

func (f *fakeSongs) GetSong(_ context.Context, id string) (domain.Song, error) {
	s, ok := f.songs[id]
	if !ok {
		return domain.Song{}, repository.ErrSongNotFound
	}
	return s, nil
}

func (f *fakeSongs) ListSongs(context.Context) ([]domain.Song, error) {
	out := make([]domain.Song, 0, len(f.songs))
	for _, s := range f.songs {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSongs) Upsert(_ context.Context, s domain.Song) error {
	f.songs[s.ID] = s
	return nil
}

func (f *fakeSongs) Delete(_ context.Context, id string) error {
	if _, ok := f.songs[id]; !ok {
		return repository.ErrSongNotFound
	}
	delete(f.songs, id)
	return nil
}

type fakeTemplates struct {
	mu   sync.Mutex
	list []domain.LowerThirdTemplate
}

func (f *fakeTemplates) ListTemplates(context.Context) ([]domain.LowerThirdTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.LowerThirdTemplate(nil), f.list...), nil
}

func (f *fakeTemplates) Upsert(_ context.Context, t domain.LowerThirdTemplate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.list = append(f.list, t)
	return nil
}

func (f *fakeTemplates) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.list {
		if t.ID == id {
			f.list = append(f.list[:i], f.list[i+1:]...)
			return nil
		}
	}
	return repository.ErrTemplateNotFound
}

type fakeRelay struct {
	mu   sync.Mutex
	sent []json.RawMessage
}

func (f *fakeRelay) Send(_ context.Context, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, data)
	f.mu.Unlock()
	return nil
}

func (f *fakeRelay) frames() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(f.sent))
	for _, raw := range f.sent {
		var m map[string]interface{}
		_ = json.Unmarshal(raw, &m)
		out = append(out, m)
	}
	return out
}

// broadcasts returns the inner messages of every broadcast frame.
func (f *fakeRelay) broadcasts() []map[string]interface{} {
	var out []map[string]interface{}
	for _, fr := range f.frames() {
		if fr["cmd"] != domain.CmdBroadcast {
			continue
		}
		m, _ := fr["message"].(map[string]interface{})
		out = append(out, m)
	}
	return out
}

type fakeAsRun struct {
	mu     sync.Mutex
	events []kafka.AsRunEvent
}

func (f *fakeAsRun) ProduceAsRun(_ context.Context, e *kafka.AsRunEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeAsRun) Close() error { return nil }

func (f *fakeAsRun) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type programFixture struct {
	svc       ProgramService
	bus       *statebus.Bus
	clock     *clockwork.FakeClock
	relay     *fakeRelay
	asRun     *fakeAsRun
	settings  *fakeSettings
	templates *fakeTemplates
	snapshots *cache.MemorySnapshotCache
	deltas    <-chan program.Delta
	control   <-chan *pubsub.Event
}

func newProgramFixture(t *testing.T, seed func(f *programFixture)) *programFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ps := pubsub.NewMemoryPubSub()
	t.Cleanup(func() { ps.Close() })

	f := &programFixture{
		bus:       statebus.New(ps, "test"),
		clock:     clockwork.NewFakeClock(),
		relay:     &fakeRelay{},
		asRun:     &fakeAsRun{},
		settings:  &fakeSettings{s: domain.DefaultSettings()},
		templates: &fakeTemplates{},
		snapshots: cache.NewMemorySnapshotCache(),
	}
	if seed != nil {
		seed(f)
	}

	var err error
	f.deltas, err = f.bus.Deltas(ctx)
	require.NoError(t, err)
	f.control, err = f.bus.Control(ctx)
	require.NoError(t, err)

	f.svc = NewProgramService(ProgramConfig{SettleDelay: 50 * time.Millisecond}, ProgramDeps{
		Bus:      f.bus,
		Settings: f.settings,
		Songs: &fakeSongs{songs: map[string]domain.Song{
			"amazing": {
				ID:    "amazing",
				Title: "Amazing Grace",
				Sections: []domain.SongSection{
					{ID: "v1", Label: "Verse 1", Lines: []string{"a", "b", "c", "d", "e"}},
				},
			},
		}},
		Templates:    []lowerthird.TemplateSource{f.templates},
		TemplateRepo: f.templates,
		Snapshots:    f.snapshots,
		AsRun:        f.asRun,
		Relay:        f.relay,
		Clock:        f.clock,
	})
	require.NoError(t, f.svc.Start(ctx))
	return f
}

func (f *programFixture) nextDelta(t *testing.T) program.Delta {
	t.Helper()
	select {
	case d := <-f.deltas:
		return d
	case <-time.After(time.Second):
		t.Fatal("no delta published")
		return program.Delta{}
	}
}

func (f *programFixture) nextControl(t *testing.T, eventType string) *pubsub.Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case e := <-f.control:
			if e.Type == eventType {
				return e
			}
		case <-deadline:
			t.Fatalf("no %s event", eventType)
			return nil
		}
	}
}

func (f *programFixture) assertNoDelta(t *testing.T) {
	t.Helper()
	select {
	case d := <-f.deltas:
		t.Fatalf("unexpected delta %s v%d", d.Op, d.Version())
	case <-time.After(20 * time.Millisecond):
	}
}

func TestProgram_StageThenGoLivePublishesInOrder(t *testing.T) {
	f := newProgramFixture(t, nil)
	ctx := context.Background()

	st, err := f.svc.Stage(ctx, john316)
	require.NoError(t, err)
	assert.Equal(t, john316, st.Staged)
	assert.Nil(t, st.Live)

	d := f.nextDelta(t)
	assert.Equal(t, program.OpStage, d.Op)
	assert.Equal(t, uint64(1), d.Version())

	var staged domain.ItemEnvelope
	require.NoError(t, f.nextControl(t, pubsub.EventItemStaged).UnmarshalPayload(&staged))
	assert.Equal(t, john316, staged.Item)

	changed, err := f.svc.GoLive(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	d = f.nextDelta(t)
	assert.Equal(t, program.OpGoLive, d.Op)
	assert.Equal(t, john316, d.State.Live)
	assert.Equal(t, uint64(2), d.Version())

	var update domain.TranscriptionUpdate
	require.NoError(t, f.nextControl(t, pubsub.EventTranscriptionUpdate).UnmarshalPayload(&update))
	assert.Equal(t, john316, update.DetectedItem)
	assert.Equal(t, "John 3:16", update.Text)
	assert.Equal(t, domain.SourceManual, update.Source)
	assert.Equal(t, 1.0, update.Confidence)

	assert.Equal(t, []string{kafka.EventCut}, f.asRun.types())
}

func TestProgram_GoLiveWithNothingStaged(t *testing.T) {
	f := newProgramFixture(t, nil)

	changed, err := f.svc.GoLive(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
	f.assertNoDelta(t)
	assert.Empty(t, f.asRun.types())
}

func TestProgram_StageThenGoLiveWaitsForSettle(t *testing.T) {
	f := newProgramFixture(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		changed, err := f.svc.StageThenGoLive(ctx, psalm23)
		assert.NoError(t, err)
		done <- changed
	}()

	d := f.nextDelta(t)
	assert.Equal(t, program.OpStage, d.Op)
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	assert.Nil(t, f.svc.Snapshot(ctx).Live, "live must not change before the settle delay")

	f.clock.Advance(50 * time.Millisecond)
	select {
	case changed := <-done:
		assert.True(t, changed)
	case <-ctx.Done():
		t.Fatal("go live did not complete")
	}

	d = f.nextDelta(t)
	assert.Equal(t, program.OpGoLive, d.Op)
	assert.Equal(t, psalm23, d.State.Live)
}

func TestProgram_StageThenGoLiveCancelled(t *testing.T) {
	f := newProgramFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.StageThenGoLive(ctx, psalm23)
		done <- err
	}()
	f.nextDelta(t)
	require.NoError(t, f.clock.BlockUntilContext(context.Background(), 1))
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancel did not interrupt the settle delay")
	}
	snap := f.svc.Snapshot(context.Background())
	assert.Equal(t, psalm23, snap.Staged)
	assert.Nil(t, snap.Live)
}

func TestProgram_ClearAndBlackout(t *testing.T) {
	f := newProgramFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Stage(ctx, john316)
	require.NoError(t, err)
	_, err = f.svc.GoLive(ctx)
	require.NoError(t, err)

	changed, err := f.svc.SetBlackout(ctx, true)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = f.svc.SetBlackout(ctx, true)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = f.svc.ClearLive(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = f.svc.ClearLive(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	snap := f.svc.Snapshot(ctx)
	assert.Nil(t, snap.Live)
	assert.Equal(t, john316, snap.Staged)
	assert.True(t, snap.Blackout)
	assert.Equal(t, []string{kafka.EventCut, kafka.EventBlackout, kafka.EventClear}, f.asRun.types())
}

func TestProgram_SuggestAndPromote(t *testing.T) {
	f := newProgramFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.svc.Suggest(ctx, psalm23, 0.8, "recogniser"))
	snap := f.svc.Snapshot(ctx)
	require.NotNil(t, snap.Suggested)
	assert.Nil(t, snap.Staged)

	changed, err := f.svc.PromoteSuggestion(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, psalm23, f.svc.Snapshot(ctx).Staged)

	var staged domain.ItemEnvelope
	require.NoError(t, f.nextControl(t, pubsub.EventItemStaged).UnmarshalPayload(&staged))
	assert.Equal(t, psalm23, staged.Item)
}

func TestProgram_StartTimerStampsClock(t *testing.T) {
	f := newProgramFixture(t, nil)
	ctx := context.Background()

	changed, err := f.svc.StartTimer(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "no live timer")

	secs := 300
	_, err = f.svc.Stage(ctx, domain.Timer{TimerType: "countdown", DurationSecs: &secs})
	require.NoError(t, err)
	_, err = f.svc.GoLive(ctx)
	require.NoError(t, err)

	changed, err = f.svc.StartTimer(ctx)
	require.NoError(t, err)
	require.True(t, changed)

	live, ok := f.svc.Snapshot(ctx).Live.(domain.Timer)
	require.True(t, ok)
	require.NotNil(t, live.StartedAt)
	assert.Equal(t, uint64(f.clock.Now().UnixMilli()), *live.StartedAt)

	var update domain.TranscriptionUpdate
	require.NoError(t, f.nextControl(t, pubsub.EventTranscriptionUpdate).UnmarshalPayload(&update))
	require.NoError(t, f.nextControl(t, pubsub.EventTranscriptionUpdate).UnmarshalPayload(&update))
	assert.Equal(t, "Timer: countdown", update.Text)

	changed, err = f.svc.ResetTimer(ctx)
	require.NoError(t, err)
	require.True(t, changed)
	live, ok = f.svc.Snapshot(ctx).Live.(domain.Timer)
	require.True(t, ok)
	assert.Nil(t, live.StartedAt)
}

func TestProgram_LowerThirdReplicatesAndBroadcasts(t *testing.T) {
	f := newProgramFixture(t, func(f *programFixture) {
		tmpl := domain.DefaultTemplate()
		tmpl.ID = "blue"
		tmpl.BackgroundColor = "#0000ff"
		f.templates.list = []domain.LowerThirdTemplate{tmpl}
	})
	ctx := context.Background()

	f.svc.ShowLowerThird(ctx, domain.LowerThirdData{Kind: domain.LowerThirdNameplate, Title: "Pastor Kim"}, "blue")

	d := f.nextDelta(t)
	assert.Equal(t, program.OpLowerThirdShow, d.Op)
	require.NotNil(t, d.State.LowerThird)
	assert.Equal(t, "blue", d.State.LowerThird.Template.ID)
	assert.Equal(t, "Pastor Kim", d.State.LowerThird.Data.Title)
	f.nextControl(t, pubsub.EventLowerThirdUpdate)

	bc := f.relay.broadcasts()
	require.Len(t, bc, 1)
	assert.Equal(t, domain.TypeLTUpdate, bc[0]["type"])
	assert.NotNil(t, bc[0]["payload"])

	assert.True(t, f.svc.HideLowerThird(ctx))
	assert.Equal(t, program.OpLowerThirdHide, f.nextDelta(t).Op)
	assert.False(t, f.svc.HideLowerThird(ctx))
	f.assertNoDelta(t)

	bc = f.relay.broadcasts()
	require.Len(t, bc, 2)
	assert.Nil(t, bc[1]["payload"])
}

func TestProgram_UnknownTemplateFallsBackToDefault(t *testing.T) {
	f := newProgramFixture(t, nil)
	ctx := context.Background()

	f.svc.ShowLowerThird(ctx, domain.LowerThirdData{Kind: domain.LowerThirdFreeText, Lines: []string{"Welcome"}}, "missing")
	d := f.nextDelta(t)
	require.NotNil(t, d.State.LowerThird)
	assert.Equal(t, domain.DefaultTemplate().ID, d.State.LowerThird.Template.ID)
}

func TestProgram_Lyrics(t *testing.T) {
	f := newProgramFixture(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.LoadSong(ctx, "nope", ""), ErrSongNotFound)

	require.NoError(t, f.svc.LoadSong(ctx, "amazing", ""))
	status := f.svc.Lyrics(ctx)
	assert.True(t, status.Loaded)
	assert.Equal(t, 0, status.Index)
	assert.False(t, status.AutoAdvancing, "auto advance is off by default")
	require.NotNil(t, status.Current)
	assert.Equal(t, []string{"a", "b"}, status.Current.Data.Lines)

	assert.True(t, f.svc.AdvanceLyrics(ctx, lowerthird.Forward))
	assert.True(t, f.svc.AdvanceLyrics(ctx, lowerthird.Forward))
	assert.False(t, f.svc.AdvanceLyrics(ctx, lowerthird.Forward))
	status = f.svc.Lyrics(ctx)
	assert.Equal(t, 4, status.Index)
	assert.True(t, status.Current.Data.EndOfSong)

	lt := f.svc.Snapshot(ctx).LowerThird
	require.NotNil(t, lt)
	assert.Equal(t, []string{"e"}, lt.Data.Lines)
}

func TestProgram_SettingsDriveAutoAdvance(t *testing.T) {
	f := newProgramFixture(t, nil)
	ctx := context.Background()

	bad := domain.DefaultSettings()
	bad.LinesPerDisplay = 0
	assert.ErrorIs(t, f.svc.SaveSettings(ctx, bad), domain.ErrInvalidSettings)

	s := domain.DefaultSettings()
	s.LinesPerDisplay = 1
	s.AutoAdvanceMs = 4000
	require.NoError(t, f.svc.SaveSettings(ctx, s))
	assert.Equal(t, s, f.svc.Settings(ctx))
	assert.Equal(t, 1, f.settings.s.LinesPerDisplay)

	var changed domain.PresentationSettings
	require.NoError(t, f.nextControl(t, pubsub.EventSettingsChanged).UnmarshalPayload(&changed))
	assert.Equal(t, s, changed)

	require.NoError(t, f.svc.LoadSong(ctx, "amazing", ""))
	assert.True(t, f.svc.Lyrics(ctx).AutoAdvancing)

	f.clock.Advance(4 * time.Second)
	require.Eventually(t, func() bool { return f.svc.Lyrics(ctx).Index == 1 }, time.Second, 5*time.Millisecond)

	assert.False(t, f.svc.SetAutoAdvance(ctx, false))
	assert.False(t, f.svc.Lyrics(ctx).AutoAdvancing)
}

func TestProgram_RestoresSnapshot(t *testing.T) {
	f := newProgramFixture(t, func(f *programFixture) {
		require.NoError(t, f.snapshots.Set(context.Background(), "test", domain.ProgramState{
			Live:    john316,
			History: []domain.DisplayItem{john316},
			Version: 7,
		}))
	})
	ctx := context.Background()

	snap := f.svc.Snapshot(ctx)
	assert.Equal(t, uint64(7), snap.Version)
	assert.Equal(t, john316, snap.Live)

	_, err := f.svc.Stage(ctx, psalm23)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), f.nextDelta(t).Version())

	stored, err := f.snapshots.Get(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, uint64(8), stored.Version)
	assert.Equal(t, psalm23, stored.Staged)
}

func TestProgram_RestoredLowerThirdCanBeHidden(t *testing.T) {
	f := newProgramFixture(t, func(f *programFixture) {
		require.NoError(t, f.snapshots.Set(context.Background(), "test", domain.ProgramState{
			LowerThird: &domain.LowerThirdPayload{
				Data:     domain.LowerThirdData{Kind: domain.LowerThirdNameplate, Title: "Pastor"},
				Template: domain.DefaultTemplate(),
			},
			Version: 3,
		}))
	})
	ctx := context.Background()

	require.NotNil(t, f.svc.Snapshot(ctx).LowerThird)

	assert.True(t, f.svc.HideLowerThird(ctx))
	d := f.nextDelta(t)
	assert.Equal(t, program.OpLowerThirdHide, d.Op)
	assert.Equal(t, uint64(4), d.Version())
	assert.Nil(t, f.svc.Snapshot(ctx).LowerThird)
}

func TestProgram_ReadsDuringMutations(t *testing.T) {
	f := newProgramFixture(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			_, _ = f.svc.Stage(ctx, john316)
			_, _ = f.svc.GoLive(ctx)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			_ = f.svc.Snapshot(ctx)
			_ = f.svc.History(ctx)
			f.svc.HandleRemote(ctx, []byte(`{"cmd":"get_state"}`))
		}
	}()
	wg.Wait()
	assert.Equal(t, uint64(40), f.svc.Snapshot(ctx).Version)
}

func TestProgram_CutsReachRemotes(t *testing.T) {
	f := newProgramFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Stage(ctx, john316)
	require.NoError(t, err)
	assert.Empty(t, f.relay.broadcasts(), "staging is not announced to remotes")

	_, err = f.svc.GoLive(ctx)
	require.NoError(t, err)
	bc := f.relay.broadcasts()
	require.Len(t, bc, 1)
	assert.Equal(t, domain.TypeState, bc[0]["type"])
	live, _ := bc[0]["live_item"].(map[string]interface{})
	assert.Equal(t, string(domain.KindVerse), live["type"])

	f.nextControl(t, pubsub.EventTranscriptionUpdate)

	changed, err := f.svc.ClearLive(ctx)
	require.NoError(t, err)
	require.True(t, changed)

	var cleared domain.TranscriptionUpdate
	require.NoError(t, f.nextControl(t, pubsub.EventTranscriptionUpdate).UnmarshalPayload(&cleared))
	assert.Nil(t, cleared.DetectedItem)
	assert.Empty(t, cleared.Text)
	assert.Equal(t, domain.SourceManual, cleared.Source)

	bc = f.relay.broadcasts()
	require.Len(t, bc, 2)
	assert.Equal(t, domain.TypeState, bc[1]["type"])
	assert.Nil(t, bc[1]["live_item"])

	changed, err = f.svc.ClearLive(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, f.relay.broadcasts(), 2)
}

func TestProgram_Templates(t *testing.T) {
	f := newProgramFixture(t, nil)
	ctx := context.Background()

	assert.Len(t, f.svc.Templates(ctx), 1)

	tmpl := domain.DefaultTemplate()
	tmpl.ID = "green"
	tmpl.BackgroundColor = "#00ff00"
	require.NoError(t, f.svc.SaveTemplate(ctx, tmpl))
	assert.Len(t, f.svc.Templates(ctx), 2)

	tmpl.ID = "broken"
	tmpl.TextColor = "green"
	assert.ErrorIs(t, f.svc.SaveTemplate(ctx, tmpl), domain.ErrInvalidTemplate)

	require.NoError(t, f.svc.DeleteTemplate(ctx, "green"))
	assert.Len(t, f.svc.Templates(ctx), 1)
	assert.ErrorIs(t, f.svc.DeleteTemplate(ctx, "green"), ErrTemplateNotFound)
	assert.ErrorIs(t, f.svc.DeleteTemplate(ctx, domain.DefaultTemplate().ID), domain.ErrInvalidTemplate)
}

func TestProgram_EmitControl(t *testing.T) {
	f := newProgramFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.svc.EmitControl(ctx, pubsub.EventMediaControl, json.RawMessage(`{"action":"pause"}`)))
	var mc domain.MediaControl
	require.NoError(t, f.nextControl(t, pubsub.EventMediaControl).UnmarshalPayload(&mc))
	assert.Equal(t, domain.MediaPause, mc.Action)

	tests := []struct {
		name      string
		eventType string
		payload   string
	}{
		{"seek without position", pubsub.EventMediaControl, `{"action":"seek"}`},
		{"unknown action", pubsub.EventMediaControl, `{"action":"rewind"}`},
		{"empty status", pubsub.EventSessionStatus, `{}`},
		{"bad level", pubsub.EventAudioLevel, `"loud"`},
		{"not a control event", pubsub.EventProgramDelta, `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.EmitControl(ctx, tt.eventType, json.RawMessage(tt.payload))
			assert.ErrorIs(t, err, ErrInvalidControlEvent)
		})
	}
}

func remote(t *testing.T, f *programFixture, cmd map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(cmd)
	require.NoError(t, err)
	f.svc.HandleRemote(context.Background(), raw)
}

func TestProgram_RemoteCommands(t *testing.T) {
	f := newProgramFixture(t, nil)

	remote(t, f, map[string]interface{}{"cmd": domain.CmdGetState, "_from": "remote:1"})
	bc := f.relay.broadcasts()
	require.Len(t, bc, 1)
	assert.Equal(t, domain.TypeState, bc[0]["type"])
	assert.Nil(t, bc[0]["live_item"])

	remote(t, f, map[string]interface{}{"cmd": "reboot", "_from": "remote:1"})
	frames := f.relay.frames()
	last := frames[len(frames)-1]
	assert.Equal(t, domain.TypeError, last["type"])
	assert.Equal(t, "remote:1", last["target"])

	remote(t, f, map[string]interface{}{"cmd": domain.CmdGoLive, "item": json.RawMessage(`{"type":"Verse"}`), "_from": "remote:1"})
	frames = f.relay.frames()
	assert.Equal(t, "invalid item", frames[len(frames)-1]["message"])

	remote(t, f, map[string]interface{}{
		"cmd":      domain.CmdShowLT,
		"data":     map[string]interface{}{"kind": "nameplate", "title": "Guest"},
		"template": "default",
		"_from":    "remote:1",
	})
	lt := f.svc.Snapshot(context.Background()).LowerThird
	require.NotNil(t, lt)
	assert.Equal(t, "Guest", lt.Data.Title)

	remote(t, f, map[string]interface{}{"cmd": domain.CmdHideLT, "_from": "remote:1"})
	assert.Nil(t, f.svc.Snapshot(context.Background()).LowerThird)
}

func TestProgram_RemoteGetSongs(t *testing.T) {
	f := newProgramFixture(t, nil)

	remote(t, f, map[string]interface{}{"cmd": domain.CmdGetSongs, "_from": "remote:1"})
	bc := f.relay.broadcasts()
	require.Len(t, bc, 1)
	assert.Equal(t, domain.TypeSongs, bc[0]["type"])
	songs, ok := bc[0]["songs"].([]interface{})
	require.True(t, ok)
	require.Len(t, songs, 1)
	song, _ := songs[0].(map[string]interface{})
	assert.Equal(t, "Amazing Grace", song["title"])
}

func TestProgram_RemoteGoLiveStagesItem(t *testing.T) {
	f := newProgramFixture(t, nil)
	item, err := domain.EncodeItem(john316)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		remote(t, f, map[string]interface{}{"cmd": domain.CmdGoLive, "item": json.RawMessage(item), "_from": "remote:9"})
	}()
	f.nextDelta(t)
	require.NoError(t, f.clock.BlockUntilContext(context.Background(), 1))
	f.clock.Advance(50 * time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("remote go live did not complete")
	}

	assert.Equal(t, john316, f.svc.Snapshot(context.Background()).Live)
	bc := f.relay.broadcasts()
	require.NotEmpty(t, bc)
	state := bc[len(bc)-1]
	assert.Equal(t, domain.TypeState, state["type"])
	assert.NotNil(t, state["live_item"])

	f.asRun.mu.Lock()
	defer f.asRun.mu.Unlock()
	require.Len(t, f.asRun.events, 1)
	assert.Equal(t, OriginRemote, f.asRun.events[0].Source)
	assert.Equal(t, "test", f.asRun.events[0].Session)
}
