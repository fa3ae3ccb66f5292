package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-stage/internal/compositor"
	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/internal/service"
	"github.com/weiawesome/wes-io-stage/pkg/log"
	"github.com/weiawesome/wes-io-stage/pkg/response"
)

const maxThumbnailWidth = 1920

func (h *Handler) registerLibraryRoutes(g *gin.RouterGroup) {
	templates := g.Group("/templates")
	{
		templates.GET("", h.ListTemplates)
		templates.PUT("/:id", h.SaveTemplate)
		templates.DELETE("/:id", h.DeleteTemplate)
	}

	songs := g.Group("/songs")
	{
		songs.GET("", h.ListSongs)
		songs.PUT("/:id", h.SaveSong)
		songs.DELETE("/:id", h.DeleteSong)
	}

	scenes := g.Group("/scenes")
	{
		scenes.GET("", h.ListScenes)
		scenes.POST("", h.CreateScene)
		scenes.GET("/:id", h.GetScene)
		scenes.PUT("/:id", h.SaveScene)
		scenes.DELETE("/:id", h.DeleteScene)
		scenes.GET("/:id/compose", h.ComposeScene)
		scenes.GET("/:id/thumbnail", h.SceneThumbnail)
		scenes.POST("/:id/stage", h.StageScene)
	}
}

// ListTemplates lists the lower-third templates.
func (h *Handler) ListTemplates(c *gin.Context) {
	response.Success(c, h.program.Templates(c.Request.Context()))
}

// SaveTemplate creates or replaces a template.
func (h *Handler) SaveTemplate(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.LowerThirdTemplate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req.ID = c.Param("id")

	if err := h.program.SaveTemplate(ctx, req); err != nil {
		if errors.Is(err, domain.ErrInvalidTemplate) {
			response.UnprocessableEntity(c, err.Error())
			return
		}
		l.Error().Err(err).Str("template_id", req.ID).Msg("failed to save template")
		response.InternalError(c, "failed to save template")
		return
	}
	response.Success(c, req)
}

// DeleteTemplate removes a template.
func (h *Handler) DeleteTemplate(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	id := c.Param("id")

	if err := h.program.DeleteTemplate(ctx, id); err != nil {
		switch {
		case errors.Is(err, service.ErrTemplateNotFound):
			response.NotFound(c, "template not found")
		case errors.Is(err, domain.ErrInvalidTemplate):
			response.Conflict(c, err.Error())
		default:
			l.Error().Err(err).Str("template_id", id).Msg("failed to delete template")
			response.InternalError(c, "failed to delete template")
		}
		return
	}
	response.Success(c, nil)
}

// ListSongs lists songs for lyrics mode.
func (h *Handler) ListSongs(c *gin.Context) {
	ctx := c.Request.Context()
	songs, err := h.program.Songs(ctx)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to list songs")
		response.InternalError(c, "failed to list songs")
		return
	}
	response.Success(c, songs)
}

// SaveSong creates or replaces a song.
func (h *Handler) SaveSong(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.Song
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req.ID = c.Param("id")

	if err := h.program.SaveSong(ctx, req); err != nil {
		if errors.Is(err, domain.ErrInvalidSong) {
			response.UnprocessableEntity(c, err.Error())
			return
		}
		l.Error().Err(err).Str("song_id", req.ID).Msg("failed to save song")
		response.InternalError(c, "failed to save song")
		return
	}
	response.Success(c, req)
}

// DeleteSong removes a song.
func (h *Handler) DeleteSong(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if err := h.program.DeleteSong(ctx, id); err != nil {
		if errors.Is(err, service.ErrSongNotFound) {
			response.NotFound(c, "song not found")
			return
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str("song_id", id).Msg("failed to delete song")
		response.InternalError(c, "failed to delete song")
		return
	}
	response.Success(c, nil)
}

// ListScenes lists stored scenes.
func (h *Handler) ListScenes(c *gin.Context) {
	ctx := c.Request.Context()
	scenes, err := h.scenes.List(ctx)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to list scenes")
		response.InternalError(c, "failed to list scenes")
		return
	}
	response.Success(c, scenes)
}

// GetScene returns one scene.
func (h *Handler) GetScene(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	scene, err := h.scenes.Get(ctx, id)
	if err != nil {
		h.sceneFailure(c, err, id, "failed to get scene")
		return
	}
	response.Success(c, scene)
}

// CreateScene stores a new scene under a generated id.
func (h *Handler) CreateScene(c *gin.Context) {
	var req domain.Scene
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req.ID = ""
	h.saveScene(c, req, true)
}

// SaveScene creates or replaces the scene with the path id.
func (h *Handler) SaveScene(c *gin.Context) {
	var req domain.Scene
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req.ID = c.Param("id")
	h.saveScene(c, req, false)
}

func (h *Handler) saveScene(c *gin.Context, scene domain.Scene, created bool) {
	saved, err := h.scenes.Save(c.Request.Context(), scene)
	if err != nil {
		h.sceneFailure(c, err, scene.ID, "failed to save scene")
		return
	}
	if created {
		response.Created(c, saved)
		return
	}
	response.Success(c, saved)
}

// DeleteScene removes a scene.
func (h *Handler) DeleteScene(c *gin.Context) {
	id := c.Param("id")
	if err := h.scenes.Delete(c.Request.Context(), id); err != nil {
		h.sceneFailure(c, err, id, "failed to delete scene")
		return
	}
	response.Success(c, nil)
}

// ComposeScene returns the scene's render list. ?mode=preview shows empty
// slots as placeholders.
func (h *Handler) ComposeScene(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	mode, ok := parseMode(c.Query("mode"))
	if !ok {
		response.BadRequest(c, "mode must be output or preview")
		return
	}
	nodes, err := h.scenes.Compose(ctx, id, mode)
	if err != nil {
		h.sceneFailure(c, err, id, "failed to compose scene")
		return
	}
	response.Success(c, nodes)
}

// SceneThumbnail renders the scene as a PNG wireframe.
func (h *Handler) SceneThumbnail(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	mode, ok := parseMode(c.DefaultQuery("mode", compositor.ModePreview.String()))
	if !ok {
		response.BadRequest(c, "mode must be output or preview")
		return
	}
	width, err := strconv.Atoi(c.DefaultQuery("width", strconv.Itoa(service.ThumbnailWidth)))
	if err != nil || width < 1 || width > maxThumbnailWidth {
		response.BadRequest(c, "width must be between 1 and 1920")
		return
	}

	png, err := h.scenes.Thumbnail(ctx, id, mode, width)
	if err != nil {
		h.sceneFailure(c, err, id, "failed to render thumbnail")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// StageScene stages a stored scene.
func (h *Handler) StageScene(c *gin.Context) {
	id := c.Param("id")
	st, err := h.scenes.Stage(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrPublish) {
			response.ServiceUnavailable(c, "scene staged but not delivered to every window")
			return
		}
		h.sceneFailure(c, err, id, "failed to stage scene")
		return
	}
	response.Success(c, st)
}

func (h *Handler) sceneFailure(c *gin.Context, err error, id, msg string) {
	switch {
	case errors.Is(err, service.ErrSceneNotFound):
		response.NotFound(c, "scene not found")
	case errors.Is(err, domain.ErrInvalidScene),
		errors.Is(err, compositor.ErrSceneCycle),
		errors.Is(err, compositor.ErrSceneTooDeep),
		errors.Is(err, domain.ErrUnknownItem):
		response.UnprocessableEntity(c, err.Error())
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str("scene_id", id).Msg(msg)
		response.InternalError(c, msg)
	}
}

func parseMode(s string) (compositor.Mode, bool) {
	switch s {
	case "", compositor.ModeOutput.String():
		return compositor.ModeOutput, true
	case compositor.ModePreview.String():
		return compositor.ModePreview, true
	}
	return 0, false
}
