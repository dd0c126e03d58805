package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"LobCast/internal/domain/models"
	"LobCast/internal/service/cache"
	"LobCast/internal/service/ratelimit"
	"LobCast/internal/service/window"
	"LobCast/pkg/config"
	"LobCast/pkg/logger"
)

// fakePredictor scores every window with a fixed distribution.
type fakePredictor struct {
	mu    sync.Mutex
	calls int
	probs []float64
	err   error
	last  [][]float64
}

func (p *fakePredictor) Predict(_ context.Context, win [][]float64) (*models.Prediction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.calls++
	p.last = win
	class, conf := 0, 0.0
	for i, v := range p.probs {
		if v > conf {
			class, conf = i, v
		}
	}
	return &models.Prediction{
		Timestamp:     time.Now().UTC(),
		Probabilities: append([]float64(nil), p.probs...),
		Class:         class,
		Confidence:    conf,
		Source:        "model",
	}, nil
}

func (p *fakePredictor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type memPredictionStore struct {
	mu    sync.Mutex
	preds []*models.Prediction
}

func (s *memPredictionStore) Init(context.Context) error { return nil }

func (s *memPredictionStore) Store(_ context.Context, p *models.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preds = append(s.preds, p)
	return nil
}

func (s *memPredictionStore) Latest(_ context.Context, instrument string, limit int) ([]*models.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Prediction
	for i := len(s.preds) - 1; i >= 0 && len(out) < limit; i-- {
		if s.preds[i].Instrument == instrument {
			out = append(out, s.preds[i])
		}
	}
	return out, nil
}

func (s *memPredictionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.preds)
}

type capturePublisher struct {
	mu    sync.Mutex
	preds []*models.Prediction
}

func (p *capturePublisher) PublishPrediction(_ context.Context, pred *models.Prediction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.preds = append(p.preds, pred)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.preds)
}

func inferenceConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Dataset.WindowLength = 4
	cfg.Dataset.NumFeatures = 3
	cfg.Predict.CacheTTL = time.Minute
	cfg.Predict.RateLimit = 100
	cfg.Predict.RateBurst = 10
	return cfg
}

func mustTracker(t *testing.T, cfg *config.Config) *window.Tracker {
	t.Helper()
	tr, err := window.NewTracker(cfg.Dataset.WindowLength, cfg.Dataset.NumFeatures)
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}
	return tr
}

func warmTracker(t *testing.T, tr *window.Tracker, instrument string, steps int) {
	t.Helper()
	for i := 0; i < steps; i++ {
		if _, err := tr.Push(instrument, []float64{float64(i), 1, 2}); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
}

func newInference(cfg *config.Config, tr *window.Tracker, p *fakePredictor, store *memPredictionStore, pub *capturePublisher) *InferenceUseCase {
	return NewInferenceUseCase(cfg, logger.Nop(), tr, p, store, pub,
		cache.NewTTLCache(), ratelimit.New(), newStubMetrics())
}

func TestPredictLiveWindowScoresAndCaches(t *testing.T) {
	cfg := inferenceConfig()
	tr := mustTracker(t, cfg)
	warmTracker(t, tr, "BTC-USD", cfg.Dataset.WindowLength)
	fp := &fakePredictor{probs: []float64{0.1, 0.2, 0.7}}
	store := &memPredictionStore{}
	pub := &capturePublisher{}
	uc := newInference(cfg, tr, fp, store, pub)

	req := &models.PredictRequest{Instrument: "BTC-USD", Horizon: 50}
	pred, err := uc.Predict(context.Background(), req)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.Instrument != "BTC-USD" || pred.Horizon != 50 {
		t.Errorf("identity = %s/%d", pred.Instrument, pred.Horizon)
	}
	if pred.Class != models.ClassUp {
		t.Errorf("class = %d, want %d", pred.Class, models.ClassUp)
	}
	if pred.Source != "model" {
		t.Errorf("source = %q, want model", pred.Source)
	}
	if store.count() != 1 {
		t.Errorf("stored predictions = %d, want 1", store.count())
	}
	if pub.count() != 1 {
		t.Errorf("published predictions = %d, want 1", pub.count())
	}

	again, err := uc.Predict(context.Background(), req)
	if err != nil {
		t.Fatalf("second Predict: %v", err)
	}
	if again.Source != "cache" {
		t.Errorf("second source = %q, want cache", again.Source)
	}
	if again.Class != models.ClassUp {
		t.Errorf("cached class = %d", again.Class)
	}
	if fp.callCount() != 1 {
		t.Errorf("predictor calls = %d, want 1", fp.callCount())
	}
}

func TestPredictExplicitWindowBypassesCache(t *testing.T) {
	cfg := inferenceConfig()
	fp := &fakePredictor{probs: []float64{0.6, 0.3, 0.1}}
	store := &memPredictionStore{}
	uc := newInference(cfg, mustTracker(t, cfg), fp, store, &capturePublisher{})

	req := &models.PredictRequest{
		Instrument: "ETH-USD",
		Horizon:    20,
		Window:     [][]float64{{1, 2, 3}, {4, 5, 6}},
	}
	for i := 0; i < 2; i++ {
		pred, err := uc.Predict(context.Background(), req)
		if err != nil {
			t.Fatalf("Predict %d: %v", i, err)
		}
		if pred.Source != "model" {
			t.Errorf("source = %q, want model", pred.Source)
		}
		if pred.Horizon != 20 {
			t.Errorf("horizon = %d, want 20", pred.Horizon)
		}
	}
	if fp.callCount() != 2 {
		t.Errorf("predictor calls = %d, want 2", fp.callCount())
	}
	if len(fp.last) != 2 || fp.last[0][0] != 1 {
		t.Errorf("window not passed through: %v", fp.last)
	}
	if store.count() != 2 {
		t.Errorf("stored predictions = %d, want 2", store.count())
	}
}

func TestPredictAdHocWindowNotPersisted(t *testing.T) {
	cfg := inferenceConfig()
	fp := &fakePredictor{probs: []float64{0.5, 0.3, 0.2}}
	store := &memPredictionStore{}
	pub := &capturePublisher{}
	uc := newInference(cfg, mustTracker(t, cfg), fp, store, pub)

	pred, err := uc.Predict(context.Background(), &models.PredictRequest{
		Window: [][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}},
	})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.Horizon != 50 {
		t.Errorf("horizon = %d, want default 50", pred.Horizon)
	}
	if store.count() != 0 || pub.count() != 0 {
		t.Errorf("ad hoc prediction persisted: store=%d pub=%d", store.count(), pub.count())
	}
}

func TestPredictWarmingWindowConflict(t *testing.T) {
	cfg := inferenceConfig()
	tr := mustTracker(t, cfg)
	warmTracker(t, tr, "BTC-USD", 2)
	fp := &fakePredictor{probs: []float64{1, 0, 0}}
	uc := newInference(cfg, tr, fp, &memPredictionStore{}, &capturePublisher{})

	_, err := uc.Predict(context.Background(), &models.PredictRequest{Instrument: "BTC-USD", Horizon: 50})
	if err == nil {
		t.Fatal("expected error")
	}
	if code := appErrCode(t, err); code != "ERR_CONFLICT" {
		t.Errorf("code = %s, want ERR_CONFLICT", code)
	}
	if !strings.Contains(err.Error(), "2 of 4") {
		t.Errorf("error = %v", err)
	}
	if fp.callCount() != 0 {
		t.Errorf("predictor called %d times during warmup", fp.callCount())
	}
}

func TestPredictRateLimited(t *testing.T) {
	cfg := inferenceConfig()
	cfg.Predict.RateBurst = 1
	cfg.Predict.RateLimit = 0
	tr := mustTracker(t, cfg)
	warmTracker(t, tr, "BTC-USD", cfg.Dataset.WindowLength)
	fp := &fakePredictor{probs: []float64{0.1, 0.8, 0.1}}
	uc := newInference(cfg, tr, fp, &memPredictionStore{}, &capturePublisher{})

	if _, err := uc.Predict(context.Background(), &models.PredictRequest{Instrument: "BTC-USD", Horizon: 50}); err != nil {
		t.Fatalf("first Predict: %v", err)
	}

	// A different horizon misses the cache, so the bucket is consulted
	// again and the single-token burst is spent.
	_, err := uc.Predict(context.Background(), &models.PredictRequest{Instrument: "BTC-USD", Horizon: 20})
	if err == nil {
		t.Fatal("expected error")
	}
	if code := appErrCode(t, err); code != "ERR_RATE_LIMITED" {
		t.Errorf("code = %s, want ERR_RATE_LIMITED", code)
	}
	if fp.callCount() != 1 {
		t.Errorf("predictor calls = %d, want 1", fp.callCount())
	}
}

func TestPredictRuntimeDownIsUnavailable(t *testing.T) {
	cfg := inferenceConfig()
	tr := mustTracker(t, cfg)
	warmTracker(t, tr, "BTC-USD", cfg.Dataset.WindowLength)
	fp := &fakePredictor{err: errors.New("dial tcp 127.0.0.1:8501: connection refused")}
	store := &memPredictionStore{}
	uc := newInference(cfg, tr, fp, store, &capturePublisher{})

	_, err := uc.Predict(context.Background(), &models.PredictRequest{Instrument: "BTC-USD", Horizon: 50})
	if err == nil {
		t.Fatal("expected error")
	}
	if code := appErrCode(t, err); code != "ERR_UNAVAILABLE" {
		t.Errorf("code = %s, want ERR_UNAVAILABLE", code)
	}
	if store.count() != 0 {
		t.Errorf("stored predictions = %d, want 0", store.count())
	}
}

func TestPredictRejectsBadExplicitWindow(t *testing.T) {
	cases := []struct {
		name string
		win  [][]float64
	}{
		{"too short", [][]float64{{1, 2, 3}}},
		{"ragged row", [][]float64{{1, 2, 3}, {4, 5}}},
		{"wrong width", [][]float64{{1, 2}, {3, 4}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := inferenceConfig()
			fp := &fakePredictor{probs: []float64{1, 0, 0}}
			uc := newInference(cfg, mustTracker(t, cfg), fp, &memPredictionStore{}, &capturePublisher{})

			_, err := uc.Predict(context.Background(), &models.PredictRequest{Window: tc.win})
			if err == nil {
				t.Fatal("expected error")
			}
			if code := appErrCode(t, err); code != "ERR_BAD_REQUEST" {
				t.Errorf("code = %s, want ERR_BAD_REQUEST", code)
			}
			if fp.callCount() != 0 {
				t.Errorf("predictor called %d times", fp.callCount())
			}
		})
	}
}

func TestPredictRequiresInstrumentOrWindow(t *testing.T) {
	cfg := inferenceConfig()
	uc := newInference(cfg, mustTracker(t, cfg), &fakePredictor{probs: []float64{1, 0, 0}},
		&memPredictionStore{}, &capturePublisher{})

	_, err := uc.Predict(context.Background(), &models.PredictRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if code := appErrCode(t, err); code != "ERR_BAD_REQUEST" {
		t.Errorf("code = %s, want ERR_BAD_REQUEST", code)
	}
}

func TestRecentReadsStore(t *testing.T) {
	cfg := inferenceConfig()
	store := &memPredictionStore{}
	uc := newInference(cfg, mustTracker(t, cfg), &fakePredictor{probs: []float64{1, 0, 0}},
		store, &capturePublisher{})

	ctx := context.Background()
	for _, p := range []*models.Prediction{
		{Instrument: "BTC-USD", Class: models.ClassDown},
		{Instrument: "ETH-USD", Class: models.ClassUp},
		{Instrument: "BTC-USD", Class: models.ClassStationary},
	} {
		if err := store.Store(ctx, p); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}

	preds, err := uc.Recent(ctx, "BTC-USD", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(preds) != 2 {
		t.Fatalf("predictions = %d, want 2", len(preds))
	}
	if preds[0].Class != models.ClassStationary || preds[1].Class != models.ClassDown {
		t.Errorf("order = %d,%d, want newest first", preds[0].Class, preds[1].Class)
	}
}
