package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"CandleCast/internal/domain/models"
	svcmetrics "CandleCast/internal/service/metrics"
	"CandleCast/internal/usecase"
	xhttp "CandleCast/pkg/http"
	xlogger "CandleCast/pkg/logger"
	"CandleCast/pkg/util"

	"github.com/labstack/echo/v4"
)

const historyLookback = 24 * time.Hour

// HealthCheck reports whether one backing service is reachable.
type HealthCheck func(ctx context.Context) error

// PredictionsEchoHandler serves predictions, models and drift reports.
type PredictionsEchoHandler struct {
	logger *xlogger.Logger
	uc     *usecase.PredictionsUseCase
	checks map[string]HealthCheck
	now    func() time.Time
}

func NewPredictionsEchoHandler(logger *xlogger.Logger, uc *usecase.PredictionsUseCase, checks map[string]HealthCheck) *PredictionsEchoHandler {
	return &PredictionsEchoHandler{logger: logger, uc: uc, checks: checks, now: time.Now}
}

func (h *PredictionsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/predictions", h.observe("prediction", h.Latest))
	g.GET("/predictions/latest", h.observe("predictions_latest", h.LatestAll))
	g.GET("/predictions/history", h.observe("predictions_history", h.History))
	g.GET("/models", h.observe("models", h.Models))
	g.GET("/models/current", h.observe("model_current", h.CurrentModel))
	g.POST("/models/:id/promote", h.observe("model_promote", h.Promote))
	g.POST("/train", h.observe("train", h.Train))
	g.GET("/drift", h.observe("drift", h.Drift))
}

func (h *PredictionsEchoHandler) observe(endpoint string, next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		svcmetrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil || c.Response().Status >= http.StatusBadRequest {
			svcmetrics.APIErrors.WithLabelValues(endpoint).Inc()
		}
		return err
	}
}

type healthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
	Pairs    []string          `json:"pairs"`
}

func (h *PredictionsEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	res := healthResponse{Status: "ok", Services: make(map[string]string, len(names)), Pairs: h.uc.Pairs()}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("health check failed", xlogger.String("service", name), xlogger.Error(err))
			res.Services[name] = err.Error()
			res.Status = "degraded"
			continue
		}
		res.Services[name] = "ok"
	}
	if res.Status != "ok" {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, res)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PredictionsEchoHandler) Latest(c echo.Context) error {
	req := &models.PredictionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.uc.Latest(c.Request().Context(), req.Pair)
	if err != nil {
		return h.fail(c, "latest prediction", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, res)
}

func (h *PredictionsEchoHandler) LatestAll(c echo.Context) error {
	res, err := h.uc.LatestAll(c.Request().Context())
	if err != nil {
		return h.fail(c, "latest predictions", err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *PredictionsEchoHandler) History(c echo.Context) error {
	req := &models.PredictionHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to := util.ResolveRange(req.From, req.To, h.now().UTC(), historyLookback)
	res, err := h.uc.History(c.Request().Context(), usecase.HistoryParams{
		Pair:  req.Pair,
		From:  from,
		To:    to,
		Limit: req.Limit,
	})
	if err != nil {
		return h.fail(c, "prediction history", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PredictionsEchoHandler) Models(c echo.Context) error {
	req := &models.ModelsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.uc.Models(c.Request().Context(), req.Pair, req.Limit)
	if err != nil {
		return h.fail(c, "list models", err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *PredictionsEchoHandler) CurrentModel(c echo.Context) error {
	req := &models.PredictionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.uc.CurrentModel(c.Request().Context(), req.Pair)
	if err != nil {
		return h.fail(c, "current model", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PredictionsEchoHandler) Promote(c echo.Context) error {
	req := &models.PromoteRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.uc.Promote(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "promote model", err)
	}
	h.logger.Info("model promoted via api",
		xlogger.String("pair", res.Pair),
		xlogger.String("version", res.VersionID))
	return xhttp.SuccessResponse(c, res)
}

func (h *PredictionsEchoHandler) Train(c echo.Context) error {
	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.uc.Train(c.Request().Context(), req.Pair); err != nil {
		return h.fail(c, "enqueue training", err)
	}
	return xhttp.AcceptedResponse(c, map[string]string{"pair": req.Pair, "status": "queued"})
}

func (h *PredictionsEchoHandler) Drift(c echo.Context) error {
	req := &models.DriftRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res := h.uc.Drift(req.Pair, req.Triggered)
	return xhttp.ListResponse(c, res, int64(len(res)))
}

// fail maps domain errors onto AppErrors. Unknown errors are logged and
// answered with a bare 500.
func (h *PredictionsEchoHandler) fail(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("%s: %v", op, err))
	case errors.Is(err, models.ErrNoModel):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError(err.Error()))
	case errors.Is(err, models.ErrValidation):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	case errors.Is(err, usecase.ErrTrainingInProgress):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError(err.Error()))
	}
	h.logger.Error(op+" failed", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}
