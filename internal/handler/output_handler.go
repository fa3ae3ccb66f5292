package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-stage/internal/compositor"
	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/internal/service"
	"github.com/weiawesome/wes-io-stage/pkg/log"
	"github.com/weiawesome/wes-io-stage/pkg/response"
)

// OutputHandler serves the output window's current frame.
type OutputHandler struct {
	output      service.OutputService
	thumbnailer *compositor.Thumbnailer
	canvas      domain.Canvas
}

// NewOutputHandler creates the output frame handler.
func NewOutputHandler(output service.OutputService, thumbnailer *compositor.Thumbnailer, canvas domain.Canvas) *OutputHandler {
	return &OutputHandler{output: output, thumbnailer: thumbnailer, canvas: canvas}
}

// RegisterRoutes registers the output routes. They are read-only and
// served on the loopback control port.
func (h *OutputHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1/output")
	{
		api.GET("/frame", h.GetFrame)
		api.GET("/frame.png", h.GetFramePNG)
	}
}

// GetFrame returns the latest composed frame.
func (h *OutputHandler) GetFrame(c *gin.Context) {
	response.Success(c, h.output.Frame())
}

// GetFramePNG renders the latest frame as a PNG wireframe.
func (h *OutputHandler) GetFramePNG(c *gin.Context) {
	ctx := c.Request.Context()

	width, err := strconv.Atoi(c.DefaultQuery("width", strconv.Itoa(service.ThumbnailWidth)))
	if err != nil || width < 1 || width > maxThumbnailWidth {
		response.BadRequest(c, "width must be between 1 and 1920")
		return
	}

	frame := h.output.Frame()
	nodes := frame.Nodes
	if frame.LowerThird != nil {
		nodes = append(append([]compositor.RenderNode(nil), nodes...), compositor.RenderNode{
			LayerID:    "lower_third",
			Z:          len(nodes),
			Rect:       h.canvas.Full(),
			Opacity:    1,
			Renderer:   compositor.RendererLowerThird,
			LowerThird: frame.LowerThird,
		})
	}

	png, err := h.thumbnailer.Render(ctx, nodes, h.canvas, width)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to render output frame")
		response.InternalError(c, "failed to render output frame")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
