package service

import (
	"context"
	"encoding/json"

	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/internal/hub"
	"github.com/weiawesome/wes-io-stage/internal/lowerthird"
)

// RelayService handles relay connections.
type RelayService interface {
	// Authenticate checks the pin and resolves the client's routing key.
	Authenticate(ctx context.Context, msg domain.AuthMessage) (Identity, error)

	// HandleConnect announces or replays camera presence.
	HandleConnect(ctx context.Context, client *hub.Client)

	// HandleMessage routes one frame from an authenticated client.
	HandleMessage(ctx context.Context, client *hub.Client, raw []byte)

	// HandleDisconnect unregisters the client and announces camera loss.
	HandleDisconnect(ctx context.Context, client *hub.Client)
}

// LyricsStatus describes the loaded song in lyrics mode.
type LyricsStatus struct {
	Loaded        bool                      `json:"loaded"`
	Index         int                       `json:"index"`
	AutoAdvancing bool                      `json:"auto_advancing"`
	Current       *domain.LowerThirdPayload `json:"current"`
}

// ProgramService owns the staged/live program of one session and everything
// that changes it.
type ProgramService interface {
	// Start loads settings and templates and restores the last snapshot.
	Start(ctx context.Context) error

	Snapshot(ctx context.Context) domain.ProgramState
	History(ctx context.Context) []domain.DisplayItem

	// Stage replaces the staged item. Live is untouched.
	Stage(ctx context.Context, item domain.DisplayItem) (domain.ProgramState, error)
	// GoLive promotes the staged item. It reports false when nothing is staged.
	GoLive(ctx context.Context) (bool, error)
	// StageThenGoLive stages item, waits the settle delay, then goes live.
	StageThenGoLive(ctx context.Context, item domain.DisplayItem) (bool, error)
	ClearLive(ctx context.Context) (bool, error)
	SetBlackout(ctx context.Context, on bool) (bool, error)
	Suggest(ctx context.Context, item domain.DisplayItem, confidence float64, source string) error
	PromoteSuggestion(ctx context.Context) (bool, error)
	// StartTimer stamps the live countdown with the current time.
	StartTimer(ctx context.Context) (bool, error)
	// ResetTimer returns the live countdown to not started.
	ResetTimer(ctx context.Context) (bool, error)

	ShowLowerThird(ctx context.Context, data domain.LowerThirdData, templateID string)
	HideLowerThird(ctx context.Context) bool
	LoadSong(ctx context.Context, songID, templateID string) error
	AdvanceLyrics(ctx context.Context, dir lowerthird.Direction) bool
	SetAutoAdvance(ctx context.Context, enabled bool) bool
	Lyrics(ctx context.Context) LyricsStatus

	Settings(ctx context.Context) domain.PresentationSettings
	SaveSettings(ctx context.Context, s domain.PresentationSettings) error

	Templates(ctx context.Context) []domain.LowerThirdTemplate
	ReloadTemplates(ctx context.Context) error
	SaveTemplate(ctx context.Context, t domain.LowerThirdTemplate) error
	DeleteTemplate(ctx context.Context, id string) error

	Songs(ctx context.Context) ([]domain.Song, error)
	SaveSong(ctx context.Context, s domain.Song) error
	DeleteSong(ctx context.Context, id string) error

	// EmitControl validates and broadcasts a control event.
	EmitControl(ctx context.Context, eventType string, payload json.RawMessage) error

	// HandleRemote answers a remote panel command forwarded by the relay.
	HandleRemote(ctx context.Context, raw []byte)
}
