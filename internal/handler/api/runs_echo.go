package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"LobCast/internal/deeplob"
	models "LobCast/internal/domain/models"
	domrepo "LobCast/internal/domain/repository"
	"LobCast/internal/service/metrics"
	"LobCast/internal/usecase"
	xhttp "LobCast/pkg/http"
	xlogger "LobCast/pkg/logger"
)

// RunsEchoHandler exposes training runs, inference and model inspection
// over HTTP.
type RunsEchoHandler struct {
	logger    *xlogger.Logger
	training  *usecase.TrainingUseCase
	inference *usecase.InferenceUseCase
}

func NewRunsEchoHandler(logger *xlogger.Logger, training *usecase.TrainingUseCase, inference *usecase.InferenceUseCase) *RunsEchoHandler {
	metrics.Register()
	return &RunsEchoHandler{logger: logger, training: training, inference: inference}
}

func (h *RunsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.POST("/runs", h.CreateRun)
	g.GET("/runs", h.ListRuns)
	g.GET("/runs/:id", h.GetRun)
	g.GET("/runs/:id/epochs", h.RunEpochs)
	g.POST("/predict", h.Predict)
	g.GET("/predictions", h.RecentPredictions)
	g.GET("/model/summary", h.ModelSummary)
	g.GET("/horizons", h.Horizons)
}

func (h *RunsEchoHandler) CreateRun(c echo.Context) error {
	start := time.Now()
	endpoint := "create_run"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.CreateRunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	run, err := h.training.CreateRun(c.Request().Context(), req)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("create run usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.AcceptedResponse(c, run)
}

func (h *RunsEchoHandler) GetRun(c echo.Context) error {
	start := time.Now()
	endpoint := "get_run"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.GetRunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	run, err := h.training.Get(c.Request().Context(), req.ID)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("get run usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, run)
}

// RunEpochs returns the training curve recorded while the run trained,
// oldest epoch first.
func (h *RunsEchoHandler) RunEpochs(c echo.Context) error {
	start := time.Now()
	endpoint := "run_epochs"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.GetRunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	epochs, err := h.training.EpochHistory(c.Request().Context(), req.ID)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("run epochs usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, epochs, int64(len(epochs)))
}

func (h *RunsEchoHandler) ListRuns(c echo.Context) error {
	start := time.Now()
	endpoint := "list_runs"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.ListRunsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	runs, err := h.training.List(c.Request().Context(), models.RunStatus(req.Status), req.Limit)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("list runs usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, runs, int64(len(runs)))
}

func (h *RunsEchoHandler) Predict(c echo.Context) error {
	start := time.Now()
	endpoint := "predict"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	pred, err := h.inference.Predict(c.Request().Context(), req)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("predict usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, pred)
}

func (h *RunsEchoHandler) RecentPredictions(c echo.Context) error {
	start := time.Now()
	endpoint := "recent_predictions"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.RecentPredictionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	preds, err := h.inference.Recent(c.Request().Context(), req.Instrument, req.Limit)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("recent predictions usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, preds, int64(len(preds)))
}

// ModelSummary assembles the architecture for the requested dimensions and
// returns its per-layer shape table. Nothing touches the tensor runtime.
func (h *RunsEchoHandler) ModelSummary(c echo.Context) error {
	start := time.Now()
	endpoint := "model_summary"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.ModelSummaryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	m, err := deeplob.Build(req.WindowLength, req.NumFeatures, req.RecurrentUnits)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("build model: %v", err))
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"input_shape":  m.InputShape,
		"output_shape": m.OutputShape(),
		"total_layers": len(m.Layers),
		"layers":       m.Summary(),
		"loss":         deeplob.LossCategoricalX,
		"optimizer": map[string]interface{}{
			"name":      deeplob.OptimizerName,
			"step_size": deeplob.AdamStepSize,
			"beta_1":    deeplob.AdamBeta1,
			"beta_2":    deeplob.AdamBeta2,
			"epsilon":   deeplob.AdamEpsilon,
		},
	})
}

func (h *RunsEchoHandler) Horizons(c echo.Context) error {
	start := time.Now()
	endpoint := "horizons"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	hs := domrepo.Horizons()
	out := make([]map[string]interface{}, len(hs))
	for i, hz := range hs {
		out[i] = map[string]interface{}{
			"events":       int(hz),
			"label_column": hz.LabelColumn(),
		}
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"horizons": out,
		"default":  int(domrepo.DefaultHorizon()),
	})
}
