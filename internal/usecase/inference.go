package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"LobCast/internal/domain/models"
	domrepo "LobCast/internal/domain/repository"
	domsvc "LobCast/internal/domain/service"
	"LobCast/internal/service/cache"
	"LobCast/internal/service/ratelimit"
	"LobCast/internal/service/window"
	"LobCast/pkg/config"
	xhttp "LobCast/pkg/http"
	"LobCast/pkg/logger"
)

// InferenceUseCase serves movement predictions from tracked live windows or
// caller-provided ones.
type InferenceUseCase struct {
	cfg       *config.Config
	log       *logger.Logger
	tracker   *window.Tracker
	predictor domsvc.Predictor
	store     domrepo.PredictionStore
	publisher domrepo.PredictionPublisher
	cache     cache.BytesCache
	limiter   *ratelimit.Limiter
	metrics   domrepo.Metrics
}

func NewInferenceUseCase(
	cfg *config.Config,
	log *logger.Logger,
	tracker *window.Tracker,
	predictor domsvc.Predictor,
	store domrepo.PredictionStore,
	publisher domrepo.PredictionPublisher,
	c cache.BytesCache,
	limiter *ratelimit.Limiter,
	metrics domrepo.Metrics,
) *InferenceUseCase {
	return &InferenceUseCase{
		cfg:       cfg,
		log:       log,
		tracker:   tracker,
		predictor: predictor,
		store:     store,
		publisher: publisher,
		cache:     c,
		limiter:   limiter,
		metrics:   metrics,
	}
}

// Predict scores one window. Live requests are cached per instrument and
// rate limited; explicit windows always go to the runtime.
func (u *InferenceUseCase) Predict(ctx context.Context, req *models.PredictRequest) (*models.Prediction, error) {
	start := time.Now()
	horizon := int(domrepo.NormalizeHorizon(req.Horizon))

	if len(req.Window) > 0 {
		if err := u.checkWindow(req.Window); err != nil {
			return nil, err
		}
		pred, err := u.score(ctx, req.Window, req.Instrument, horizon)
		if err != nil {
			return nil, err
		}
		u.metrics.RecordLatency("predict", time.Since(start).Seconds())
		return pred, nil
	}

	if req.Instrument == "" {
		return nil, xhttp.BadRequestError("instrument or window is required")
	}

	key := fmt.Sprintf("prediction:%s:%d", req.Instrument, horizon)
	if b, ok, err := u.cache.GetBytes(key); err == nil && ok {
		var pred models.Prediction
		if err := json.Unmarshal(b, &pred); err == nil {
			u.metrics.RecordCache(true)
			pred.Source = "cache"
			u.metrics.RecordLatency("predict", time.Since(start).Seconds())
			return &pred, nil
		}
	}
	u.metrics.RecordCache(false)

	win, ok := u.tracker.Window(req.Instrument)
	if !ok {
		return nil, xhttp.ConflictError(fmt.Sprintf("window warming for %s: %d of %d snapshots",
			req.Instrument, u.tracker.Len(req.Instrument), u.tracker.Length()))
	}

	if !u.limiter.Allow(req.Instrument, float64(u.cfg.Predict.RateBurst), u.cfg.Predict.RateLimit) {
		return nil, xhttp.TooManyRequestsError(fmt.Sprintf("prediction rate exceeded for %s", req.Instrument))
	}

	pred, err := u.score(ctx, win, req.Instrument, horizon)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(pred); err == nil {
		if err := u.cache.SetBytes(key, b, u.cfg.Predict.CacheTTL); err != nil {
			u.metrics.RecordError("cache_set")
		}
	}

	u.metrics.RecordLatency("predict", time.Since(start).Seconds())
	return pred, nil
}

func (u *InferenceUseCase) score(ctx context.Context, win [][]float64, instrument string, horizon int) (*models.Prediction, error) {
	pred, err := u.predictor.Predict(ctx, win)
	if err != nil {
		u.metrics.RecordError("predict")
		return nil, xhttp.UnavailableError("tensor runtime predict failed").WithError(err)
	}
	pred.Instrument = instrument
	pred.Horizon = horizon

	u.persist(ctx, pred)
	u.metrics.RecordPrediction(instrument, pred.ClassName())
	return pred, nil
}

// persist stores and publishes best-effort; a missing row never fails the
// response.
func (u *InferenceUseCase) persist(ctx context.Context, pred *models.Prediction) {
	if pred.Instrument == "" {
		return // ad hoc window without an instrument identity
	}
	if u.store != nil {
		if err := u.store.Store(ctx, pred); err != nil {
			u.metrics.RecordError("prediction_store")
			u.log.Warn("prediction store failed", logger.Error(err))
		}
	}
	if u.publisher != nil {
		if err := u.publisher.PublishPrediction(ctx, pred); err != nil {
			u.metrics.RecordError("prediction_publish")
			u.log.Warn("prediction publish failed", logger.Error(err))
		}
	}
}

// checkWindow validates an explicit window's feature width. Length is left
// to the runtime, which knows the loaded model's input shape.
func (u *InferenceUseCase) checkWindow(win [][]float64) error {
	want := u.cfg.Dataset.NumFeatures
	if len(win) < 2 {
		return xhttp.BadRequestErrorf("window too short: %d rows", len(win))
	}
	for i, row := range win {
		if len(row) != want {
			return xhttp.BadRequestErrorf("window row %d has %d features, want %d", i, len(row), want)
		}
	}
	return nil
}

// Recent lists the newest stored predictions for an instrument.
func (u *InferenceUseCase) Recent(ctx context.Context, instrument string, limit int) ([]*models.Prediction, error) {
	preds, err := u.store.Latest(ctx, instrument, limit)
	if err != nil {
		return nil, fmt.Errorf("recent predictions: %w", err)
	}
	return preds, nil
}

// Tracked reports per-instrument window fill, for readiness inspection.
func (u *InferenceUseCase) Tracked() map[string]int {
	out := make(map[string]int)
	for _, ins := range u.tracker.Instruments() {
		out[ins] = u.tracker.Len(ins)
	}
	return out
}
