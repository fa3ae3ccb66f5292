package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-stage/internal/camera"
	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/internal/lowerthird"
	"github.com/weiawesome/wes-io-stage/internal/service"
	"github.com/weiawesome/wes-io-stage/pkg/log"
	"github.com/weiawesome/wes-io-stage/pkg/middleware"
	"github.com/weiawesome/wes-io-stage/pkg/response"
)

// CameraControl is the operator's view of the camera registry.
type CameraControl interface {
	Sources() []domain.CameraSource
	EnablePreview(ctx context.Context, deviceID string) error
	DisablePreview(ctx context.Context, deviceID string) error
}

// Handler serves the operator control API.
type Handler struct {
	program        service.ProgramService
	scenes         service.SceneService
	cameras        CameraControl
	sessions       service.SessionService
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(program service.ProgramService, scenes service.SceneService, cameras CameraControl, sessions service.SessionService, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		program:        program,
		scenes:         scenes,
		cameras:        cameras,
		sessions:       sessions,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		// Public routes
		api.POST("/session", h.OpenSession)

		operator := api.Group("", h.authMiddleware.RequireAuth(service.RoleOperator))
		{
			operator.DELETE("/session", h.RevokeSessions)

			operator.GET("/snapshot", h.GetSnapshot)
			operator.GET("/history", h.GetHistory)
			operator.GET("/stage", h.GetStaged)
			operator.POST("/stage", h.StageItem)
			operator.GET("/live", h.GetLive)
			operator.POST("/live", h.GoLive)
			operator.DELETE("/live", h.ClearLive)
			operator.POST("/live/timer/start", h.StartTimer)
			operator.POST("/live/timer/reset", h.ResetTimer)
			operator.POST("/blackout", h.SetBlackout)
			operator.POST("/suggestion", h.Suggest)
			operator.POST("/suggestion/promote", h.PromoteSuggestion)
			operator.POST("/events", h.EmitEvent)

			operator.POST("/lower-third", h.ShowLowerThird)
			operator.DELETE("/lower-third", h.HideLowerThird)

			lyrics := operator.Group("/lyrics")
			{
				lyrics.GET("", h.GetLyrics)
				lyrics.POST("/load", h.LoadSong)
				lyrics.POST("/next", h.NextLyrics)
				lyrics.POST("/prev", h.PrevLyrics)
				lyrics.POST("/auto", h.SetAutoAdvance)
			}

			operator.GET("/settings", h.GetSettings)
			operator.PUT("/settings", h.SaveSettings)

			operator.GET("/cameras", h.ListCameras)
			operator.POST("/cameras/:id/preview", h.EnablePreview)
			operator.DELETE("/cameras/:id/preview", h.DisablePreview)

			h.registerLibraryRoutes(operator)
		}
	}
}

// OpenSession trades the pin for a control session token.
func (h *Handler) OpenSession(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	sess, err := h.sessions.Login(ctx, req.PIN, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPIN):
			response.Unauthorized(c, "invalid pin")
		case errors.Is(err, service.ErrInvalidRole):
			response.BadRequest(c, "unknown role")
		default:
			l.Error().Err(err).Msg("failed to open session")
			response.InternalError(c, "failed to open session")
		}
		return
	}

	response.Created(c, sess)
}

// RevokeSessions ends every control session, the caller's included.
func (h *Handler) RevokeSessions(c *gin.Context) {
	h.sessions.RevokeAll(c.Request.Context())
	response.Success(c, nil)
}

// GetSnapshot returns the full program state, for windows starting up.
func (h *Handler) GetSnapshot(c *gin.Context) {
	response.Success(c, h.program.Snapshot(c.Request.Context()))
}

// GetHistory returns recently live items, most recent first.
func (h *Handler) GetHistory(c *gin.Context) {
	history := h.program.History(c.Request.Context())
	out := make([]*domain.ItemEnvelope, 0, len(history))
	for _, item := range history {
		out = append(out, domain.Wrap(item))
	}
	response.Success(c, out)
}

// GetStaged returns the staged item, or null.
func (h *Handler) GetStaged(c *gin.Context) {
	response.Success(c, domain.Wrap(h.program.Snapshot(c.Request.Context()).Staged))
}

// GetLive returns the live item, or null.
func (h *Handler) GetLive(c *gin.Context) {
	response.Success(c, domain.Wrap(h.program.Snapshot(c.Request.Context()).Live))
}

// StageItem stages an item without touching live.
func (h *Handler) StageItem(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.StageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Item.Unwrap() == nil {
		response.BadRequest(c, "item is required")
		return
	}

	st, err := h.program.Stage(ctx, req.Item.Unwrap())
	if err != nil {
		l.Error().Err(err).Msg("failed to stage item")
		h.publishFailure(c, err, "failed to stage item")
		return
	}
	response.Success(c, st)
}

// GoLive promotes the staged item, or stages and promotes the given one.
func (h *Handler) GoLive(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.GoLiveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	var (
		changed bool
		err     error
	)
	if item := req.Item.Unwrap(); item != nil {
		changed, err = h.program.StageThenGoLive(ctx, item)
	} else {
		changed, err = h.program.GoLive(ctx)
	}
	if err != nil {
		l.Error().Err(err).Msg("failed to go live")
		h.publishFailure(c, err, "failed to go live")
		return
	}
	h.changed(c, changed)
}

// ClearLive takes the live item off air.
func (h *Handler) ClearLive(c *gin.Context) {
	ctx := c.Request.Context()
	changed, err := h.program.ClearLive(ctx)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to clear live")
		h.publishFailure(c, err, "failed to clear live")
		return
	}
	h.changed(c, changed)
}

// StartTimer starts the live timer.
func (h *Handler) StartTimer(c *gin.Context) {
	ctx := c.Request.Context()
	changed, err := h.program.StartTimer(ctx)
	if err != nil {
		h.publishFailure(c, err, "failed to start timer")
		return
	}
	h.changed(c, changed)
}

// ResetTimer clears the live timer's start time.
func (h *Handler) ResetTimer(c *gin.Context) {
	ctx := c.Request.Context()
	changed, err := h.program.ResetTimer(ctx)
	if err != nil {
		h.publishFailure(c, err, "failed to reset timer")
		return
	}
	h.changed(c, changed)
}

// SetBlackout turns the output black, or back on.
func (h *Handler) SetBlackout(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.BlackoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	changed, err := h.program.SetBlackout(ctx, req.Enabled)
	if err != nil {
		h.publishFailure(c, err, "failed to set blackout")
		return
	}
	h.changed(c, changed)
}

// Suggest records an advisory item from a recogniser.
func (h *Handler) Suggest(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.SuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Item.Unwrap() == nil {
		response.BadRequest(c, "item is required")
		return
	}
	if err := h.program.Suggest(ctx, req.Item.Unwrap(), req.Confidence, req.Source); err != nil {
		h.publishFailure(c, err, "failed to record suggestion")
		return
	}
	h.changed(c, true)
}

// PromoteSuggestion stages the suggested item.
func (h *Handler) PromoteSuggestion(c *gin.Context) {
	changed, err := h.program.PromoteSuggestion(c.Request.Context())
	if err != nil {
		h.publishFailure(c, err, "failed to promote suggestion")
		return
	}
	h.changed(c, changed)
}

// EmitEvent broadcasts a control event such as media-control.
func (h *Handler) EmitEvent(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.ControlEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.program.EmitControl(ctx, req.Type, req.Payload); err != nil {
		if errors.Is(err, service.ErrInvalidControlEvent) {
			response.BadRequest(c, err.Error())
			return
		}
		h.publishFailure(c, err, "failed to emit event")
		return
	}
	response.Success(c, nil)
}

// ShowLowerThird shows an overlay over whatever is live.
func (h *Handler) ShowLowerThird(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.LowerThirdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.program.ShowLowerThird(ctx, req.Data, req.TemplateID)
	h.changed(c, true)
}

// HideLowerThird hides the overlay.
func (h *Handler) HideLowerThird(c *gin.Context) {
	h.changed(c, h.program.HideLowerThird(c.Request.Context()))
}

// GetLyrics returns the lyrics mode position.
func (h *Handler) GetLyrics(c *gin.Context) {
	response.Success(c, h.program.Lyrics(c.Request.Context()))
}

// LoadSong enters lyrics mode.
func (h *Handler) LoadSong(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.LoadSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.program.LoadSong(ctx, req.SongID, req.TemplateID); err != nil {
		if errors.Is(err, service.ErrSongNotFound) {
			response.NotFound(c, "song not found")
			return
		}
		l.Error().Err(err).Str("song_id", req.SongID).Msg("failed to load song")
		response.InternalError(c, "failed to load song")
		return
	}
	response.Success(c, h.program.Lyrics(ctx))
}

// NextLyrics pages forward.
func (h *Handler) NextLyrics(c *gin.Context) {
	h.advance(c, lowerthird.Forward)
}

// PrevLyrics pages back.
func (h *Handler) PrevLyrics(c *gin.Context) {
	h.advance(c, lowerthird.Back)
}

func (h *Handler) advance(c *gin.Context, dir lowerthird.Direction) {
	ctx := c.Request.Context()
	changed := h.program.AdvanceLyrics(ctx, dir)
	response.Success(c, gin.H{"changed": changed, "lyrics": h.program.Lyrics(ctx)})
}

// SetAutoAdvance starts or stops lyrics auto-advance.
func (h *Handler) SetAutoAdvance(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.AutoAdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	running := h.program.SetAutoAdvance(ctx, req.Enabled)
	if req.Enabled && !running {
		response.UnprocessableEntity(c, "auto-advance needs a loaded song, a positive interval and a page left")
		return
	}
	response.Success(c, h.program.Lyrics(ctx))
}

// GetSettings returns the presentation settings.
func (h *Handler) GetSettings(c *gin.Context) {
	response.Success(c, h.program.Settings(c.Request.Context()))
}

// SaveSettings validates and stores the presentation settings.
func (h *Handler) SaveSettings(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.PresentationSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.program.SaveSettings(ctx, req); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSettings):
			response.UnprocessableEntity(c, err.Error())
		case errors.Is(err, service.ErrPublish):
			response.ServiceUnavailable(c, "settings saved but not delivered to every window")
		default:
			l.Error().Err(err).Msg("failed to save settings")
			response.InternalError(c, "failed to save settings")
		}
		return
	}
	response.Success(c, req)
}

// ListCameras lists known camera devices.
func (h *Handler) ListCameras(c *gin.Context) {
	response.Success(c, h.cameras.Sources())
}

// EnablePreview starts a camera preview.
func (h *Handler) EnablePreview(c *gin.Context) {
	h.preview(c, true)
}

// DisablePreview stops a camera preview.
func (h *Handler) DisablePreview(c *gin.Context) {
	h.preview(c, false)
}

func (h *Handler) preview(c *gin.Context, enable bool) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	deviceID := c.Param("id")

	var err error
	if enable {
		err = h.cameras.EnablePreview(ctx, deviceID)
	} else {
		err = h.cameras.DisablePreview(ctx, deviceID)
	}
	if err != nil {
		if errors.Is(err, camera.ErrUnknownDevice) {
			response.NotFound(c, "camera not found")
			return
		}
		l.Error().Err(err).Str(log.FieldDeviceID, deviceID).Msg("failed to change camera preview")
		response.InternalError(c, "failed to change camera preview")
		return
	}
	response.Success(c, h.cameras.Sources())
}

func (h *Handler) changed(c *gin.Context, changed bool) {
	st := h.program.Snapshot(c.Request.Context())
	response.Success(c, domain.ChangedResponse{Changed: changed, Version: st.Version, State: &st})
}

// publishFailure reports a command whose state change could not be
// replicated. The change itself stands.
func (h *Handler) publishFailure(c *gin.Context, err error, msg string) {
	if errors.Is(err, service.ErrPublish) {
		response.ServiceUnavailable(c, msg+": windows were not updated")
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		response.Error(c, 499, "CANCELED", msg+": request cancelled")
		return
	}
	response.InternalError(c, msg)
}
