package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	models "Fractal/internal/domain/models"
	"Fractal/internal/handler/ws"
	"Fractal/internal/service/ratelimit"
	"Fractal/internal/usecase"
	xhttp "Fractal/pkg/http"
	xlogger "Fractal/pkg/logger"
	"Fractal/pkg/util"
)

const basePath = "/api/fractal/v2.1"

// FractalEchoHandler serves the analog engine over Echo.
type FractalEchoHandler struct {
	logger    *xlogger.Logger
	focus     *usecase.FocusPackUseCase
	terminal  *usecase.TerminalUseCase
	candles   *usecase.CandlesUseCase
	snapshots *usecase.SnapshotUseCase
	intel     *usecase.IntelUseCase
	health    *usecase.HealthUseCase
	hub       *ws.Hub
	limiter   *ratelimit.Limiter
	timeout   time.Duration
}

// NewFractalEchoHandler wires the use cases. hub and limiter may be nil.
func NewFractalEchoHandler(logger *xlogger.Logger, focus *usecase.FocusPackUseCase, terminal *usecase.TerminalUseCase,
	candles *usecase.CandlesUseCase, snapshots *usecase.SnapshotUseCase, intel *usecase.IntelUseCase,
	health *usecase.HealthUseCase, hub *ws.Hub, limiter *ratelimit.Limiter, timeout time.Duration) *FractalEchoHandler {
	return &FractalEchoHandler{
		logger:    logger.With(xlogger.String("component", "handler.fractal")),
		focus:     focus,
		terminal:  terminal,
		candles:   candles,
		snapshots: snapshots,
		intel:     intel,
		health:    health,
		hub:       hub,
		limiter:   limiter,
		timeout:   timeout,
	}
}

func (h *FractalEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/health", h.Health)

	g := e.Group(basePath)
	if h.limiter != nil {
		g.Use(h.limiter.Middleware())
	}
	g.GET("/focus-pack", h.FocusPack)
	g.GET("/terminal", h.Terminal)
	g.GET("/candles", h.Candles)
	g.POST("/admin/memory/write-snapshots", h.WriteSnapshots)
	g.GET("/admin/memory/snapshots", h.ListSnapshots)
	g.GET("/admin/memory/snapshots/latest", h.LatestSnapshot)
	g.GET("/admin/memory/snapshots/count", h.CountSnapshots)
	g.POST("/admin/memory/resolve-outcomes", h.ResolveOutcomes)
	g.GET("/admin/memory/forward-stats", h.ForwardStats)
	g.GET("/admin/intel/timeline", h.IntelTimeline)
	if h.hub != nil {
		g.GET("/stream", h.hub.Serve)
	}
}

func (h *FractalEchoHandler) requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.Request().Context())
	}
	return context.WithTimeout(c.Request().Context(), h.timeout)
}

func (h *FractalEchoHandler) Health(c echo.Context) error {
	st := h.health.Check(c.Request().Context())
	if !st.OK {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, st)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *FractalEchoHandler) FocusPack(c echo.Context) error {
	req := &models.FocusPackRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	focus, err := models.ParseHorizon(req.Focus)
	if err != nil {
		return h.fail(c, err)
	}
	phaseFilter, err := models.ParsePhase(req.Phase)
	if err != nil {
		return h.fail(c, err)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	pack, err := h.focus.Build(ctx, req.Symbol, focus, phaseFilter)
	if err != nil {
		return h.fail(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, usecase.Render(pack, req.Mode))
}

func (h *FractalEchoHandler) Terminal(c echo.Context) error {
	req := &models.TerminalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	focus, err := models.ParseHorizon(req.Focus)
	if err != nil {
		return h.fail(c, err)
	}
	preset, err := models.ParsePreset(req.Preset)
	if err != nil {
		return h.fail(c, err)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	t, err := h.terminal.Get(ctx, usecase.TerminalParams{
		Symbol:   req.Symbol,
		Focus:    focus,
		Preset:   preset,
		Extended: req.Set == "extended",
	})
	if err != nil {
		return h.fail(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, t)
}

func (h *FractalEchoHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p := usecase.GetCandlesParams{Symbol: req.Symbol, Limit: req.Limit}
	if req.From != "" {
		t, ok := util.ParseTime(req.From)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.InvalidParamError("ERR_INVALID_TIME", "from", "from must be a date, RFC3339 time or unix seconds"))
		}
		p.From = t
	}
	if req.To != "" {
		t, ok := util.ParseTime(req.To)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.InvalidParamError("ERR_INVALID_TIME", "to", "to must be a date, RFC3339 time or unix seconds"))
		}
		p.To = t
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	res, err := h.candles.GetCandles(ctx, p)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *FractalEchoHandler) WriteSnapshots(c echo.Context) error {
	req := &models.WriteSnapshotsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	res, err := h.snapshots.Write(ctx, req.Symbol)
	if err != nil {
		return h.fail(c, err)
	}
	if res.Queued {
		return xhttp.AcceptedResponse(c, res)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *FractalEchoHandler) ListSnapshots(c echo.Context) error {
	req := &models.SnapshotsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.snapshots.List(c.Request().Context(), req.Symbol, req.Limit)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *FractalEchoHandler) LatestSnapshot(c echo.Context) error {
	req := &models.LatestSnapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	focus, err := models.ParseHorizon(req.Focus)
	if err != nil {
		return h.fail(c, err)
	}
	preset, err := models.ParsePreset(req.Preset)
	if err != nil {
		return h.fail(c, err)
	}
	res, err := h.snapshots.Latest(c.Request().Context(), req.Symbol, focus, preset)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *FractalEchoHandler) CountSnapshots(c echo.Context) error {
	req := &models.MemoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.snapshots.Count(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *FractalEchoHandler) ResolveOutcomes(c echo.Context) error {
	req := &models.MemoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	res, err := h.snapshots.ResolveOutcomes(ctx, req.Symbol)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *FractalEchoHandler) ForwardStats(c echo.Context) error {
	req := &models.MemoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.snapshots.ForwardStats(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *FractalEchoHandler) IntelTimeline(c echo.Context) error {
	req := &models.IntelTimelineRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	res, err := h.intel.Timeline(ctx, req.Symbol, req.Window)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

// fail maps domain errors to HTTP responses. Readiness conditions get 425 with the
// readiness details as data.
func (h *FractalEchoHandler) fail(c echo.Context, err error) error {
	var nr *models.NotReadyError
	if errors.As(err, &nr) {
		return xhttp.NotReadyResponse(c, nr)
	}

	var appErr *xhttp.AppError
	switch {
	case errors.Is(err, models.ErrInvalidHorizon):
		appErr = xhttp.InvalidParamError("ERR_INVALID_HORIZON", "focus", err.Error())
	case errors.Is(err, models.ErrInvalidPhase):
		appErr = xhttp.InvalidParamError("ERR_INVALID_PHASE", "phase", err.Error())
	case errors.Is(err, models.ErrInvalidPreset):
		appErr = xhttp.InvalidParamError("ERR_INVALID_PRESET", "preset", err.Error())
	case errors.Is(err, models.ErrInvalidSymbol):
		appErr = xhttp.InvalidParamError("ERR_INVALID_SYMBOL", "symbol", err.Error())
	case errors.Is(err, models.ErrInvalidRequest):
		appErr = xhttp.BadRequestError(err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		appErr = xhttp.RequestTimeoutError("request timed out")
	case errors.Is(err, models.ErrUpstreamData):
		h.logger.Error("upstream data error", xlogger.String("path", c.Path()), xlogger.Error(err))
		appErr = xhttp.BadGatewayError("upstream data unavailable")
	default:
		h.logger.Error("request failed", xlogger.String("path", c.Path()), xlogger.Error(err))
		appErr = xhttp.InternalError("computation failed")
	}
	return xhttp.AppErrorResponse(c, appErr.WithError(err))
}
