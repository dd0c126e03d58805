package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"LobCast/internal/domain/models"
	"LobCast/internal/service/cache"
	"LobCast/internal/service/ratelimit"
	"LobCast/internal/service/window"
	"LobCast/internal/usecase"
	"LobCast/pkg/config"
	"LobCast/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordSnapshot(string)                        {}
func (nopMetrics) RecordWindowReady(string)                     {}
func (nopMetrics) RecordPrediction(string, string)              {}
func (nopMetrics) RecordError(string)                           {}
func (nopMetrics) RecordLatency(string, float64)                {}
func (nopMetrics) RecordRunState(string)                        {}
func (nopMetrics) SetActiveRuns(int)                            {}
func (nopMetrics) RecordTrainingProgress(int, float64, float64) {}
func (nopMetrics) RecordCache(bool)                             {}
func (nopMetrics) RecordFeedReconnect()                         {}
func (nopMetrics) SetQueueDepth(int)                            {}

type stubRunStore struct {
	mu     sync.Mutex
	runs   map[string]models.Run
	epochs []models.EpochMetric
}

func newStubRunStore() *stubRunStore { return &stubRunStore{runs: map[string]models.Run{}} }

func (s *stubRunStore) Init(context.Context) error { return nil }

func (s *stubRunStore) Create(_ context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

func (s *stubRunStore) Update(_ context.Context, run *models.Run) error {
	return s.Create(context.Background(), run)
}

func (s *stubRunStore) Get(_ context.Context, id string) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := run
	return &out, nil
}

func (s *stubRunStore) List(_ context.Context, status models.RunStatus, limit int) ([]*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Run
	for _, run := range s.runs {
		if status != "" && run.Status != status {
			continue
		}
		r := run
		out = append(out, &r)
	}
	return out, nil
}

func (s *stubRunStore) AppendEpoch(_ context.Context, m *models.EpochMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epochs = append(s.epochs, *m)
	return nil
}

func (s *stubRunStore) Epochs(_ context.Context, runID string) ([]*models.EpochMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.EpochMetric
	for i := range s.epochs {
		if s.epochs[i].RunID != runID {
			continue
		}
		m := s.epochs[i]
		out = append(out, &m)
	}
	return out, nil
}

func (s *stubRunStore) Health(context.Context) error { return nil }
func (s *stubRunStore) Close() error                 { return nil }

type stubQueue struct {
	mu        sync.Mutex
	published []string
}

func (q *stubQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, msgType)
	return nil
}

func (q *stubQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.published)
}

type stubPredictor struct{ probs []float64 }

func (p *stubPredictor) Predict(context.Context, [][]float64) (*models.Prediction, error) {
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

type stubPredStore struct {
	mu    sync.Mutex
	preds []*models.Prediction
}

func (s *stubPredStore) Init(context.Context) error { return nil }

func (s *stubPredStore) Store(_ context.Context, p *models.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preds = append(s.preds, p)
	return nil
}

func (s *stubPredStore) Latest(_ context.Context, instrument string, limit int) ([]*models.Prediction, error) {
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

type handlerFixture struct {
	e     *echo.Echo
	store *stubRunStore
	queue *stubQueue
	preds *stubPredStore
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	cfg := &config.Config{}
	cfg.Dataset.WindowLength = 4
	cfg.Dataset.NumFeatures = 3
	cfg.Runtime.Device = "gpu"
	cfg.Predict.CacheTTL = time.Minute
	cfg.Predict.RateLimit = 100
	cfg.Predict.RateBurst = 10

	f := &handlerFixture{
		e:     echo.New(),
		store: newStubRunStore(),
		queue: &stubQueue{},
		preds: &stubPredStore{},
	}

	// Handler tests never reach Execute, so the runtime-facing services
	// stay nil.
	training := usecase.NewTrainingUseCase(cfg, logger.Nop(), f.store, nil,
		nil, nil, nil, nil, f.queue, nopMetrics{})

	tr, err := window.NewTracker(cfg.Dataset.WindowLength, cfg.Dataset.NumFeatures)
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}
	inference := usecase.NewInferenceUseCase(cfg, logger.Nop(), tr,
		&stubPredictor{probs: []float64{0.1, 0.2, 0.7}}, f.preds, nil,
		cache.NewTTLCache(), ratelimit.New(), nopMetrics{})

	h := NewRunsEchoHandler(logger.Nop(), training, inference)
	h.RegisterRoutes(f.e)
	return f
}

func (f *handlerFixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

// decodeEnvelope unwraps the standard response envelope. The transport
// status is always 200; the semantic status travels in the body.
func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (int, json.RawMessage) {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("http status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	var env struct {
		Status int             `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env.Status, env.Data
}

func TestCreateRunAccepted(t *testing.T) {
	f := newHandlerFixture(t)

	body := `{"window_length":100,"horizon":50,"recurrent_units":64,"batch_size":64,"epochs":200}`
	rec := f.do(http.MethodPost, "/api/v1/runs", body)

	status, data := decodeEnvelope(t, rec)
	if status != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body %s", status, rec.Body.String())
	}
	var run models.Run
	if err := json.Unmarshal(data, &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.ID == "" {
		t.Error("run has no id")
	}
	if run.Status != models.RunQueued {
		t.Errorf("run status = %s, want queued", run.Status)
	}
	if run.WindowLength != 100 || run.Horizon != 50 {
		t.Errorf("run dims = %d/%d", run.WindowLength, run.Horizon)
	}
	if f.queue.count() != 1 {
		t.Errorf("queued tasks = %d, want 1", f.queue.count())
	}
	if _, err := f.store.Get(context.Background(), run.ID); err != nil {
		t.Errorf("run not stored: %v", err)
	}
}

func TestCreateRunAppliesDefaults(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/runs", `{}`)

	status, data := decodeEnvelope(t, rec)
	if status != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body %s", status, rec.Body.String())
	}
	var run models.Run
	if err := json.Unmarshal(data, &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.WindowLength != 100 || run.Horizon != 50 || run.Epochs != 200 || run.BatchSize != 64 {
		t.Errorf("defaults not applied: %+v", run)
	}
	if run.Device != "gpu" {
		t.Errorf("device = %q, want configured default", run.Device)
	}
}

func TestCreateRunRejectsUnknownHorizon(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/runs", `{"horizon":15}`)

	status, data := decodeEnvelope(t, rec)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	var verrs []struct {
		Code  string `json:"code"`
		Field string `json:"field"`
	}
	if err := json.Unmarshal(data, &verrs); err != nil {
		t.Fatalf("decode validation errors: %v", err)
	}
	if len(verrs) == 0 || verrs[0].Code != "ERR_ONEOF" {
		t.Errorf("validation errors = %+v", verrs)
	}
	if f.queue.count() != 0 {
		t.Error("invalid run was queued")
	}
}

func TestGetRunByID(t *testing.T) {
	f := newHandlerFixture(t)
	const id = "4f9d3b2a-1c2e-4a5b-9c3d-2f1e0a9b8c7d"
	seed := &models.Run{ID: id, Status: models.RunTraining, Epoch: 17}
	if err := f.store.Create(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := f.do(http.MethodGet, "/api/v1/runs/"+id, "")

	status, data := decodeEnvelope(t, rec)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	var run models.Run
	if err := json.Unmarshal(data, &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.ID != id || run.Status != models.RunTraining || run.Epoch != 17 {
		t.Errorf("run = %+v", run)
	}
}

func TestGetRunUnknownIs404(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/runs/4f9d3b2a-1c2e-4a5b-9c3d-2f1e0a9b8c7d", "")

	status, data := decodeEnvelope(t, rec)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body %s", status, rec.Body.String())
	}
	var appErrs []struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(data, &appErrs); err != nil {
		t.Fatalf("decode app errors: %v", err)
	}
	if len(appErrs) != 1 || appErrs[0].Code != "ERR_NOT_FOUND" {
		t.Errorf("app errors = %+v", appErrs)
	}
}

func TestRunEpochs(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	const id = "4f9d3b2a-1c2e-4a5b-9c3d-2f1e0a9b8c7d"
	if err := f.store.Create(ctx, &models.Run{ID: id, Status: models.RunCompleted}); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	for _, m := range []*models.EpochMetric{
		{RunID: id, Epoch: 1, Loss: 0.9, Accuracy: 0.4},
		{RunID: id, Epoch: 2, Loss: 0.5, Accuracy: 0.7, ValAccuracy: 0.65},
		{RunID: "b0000000-0000-4000-8000-000000000009", Epoch: 1, Loss: 0.3},
	} {
		if err := f.store.AppendEpoch(ctx, m); err != nil {
			t.Fatalf("seed epoch: %v", err)
		}
	}

	rec := f.do(http.MethodGet, "/api/v1/runs/"+id+"/epochs", "")

	status, data := decodeEnvelope(t, rec)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", status, rec.Body.String())
	}
	var list struct {
		Rows  []*models.EpochMetric `json:"rows"`
		Total int64                 `json:"total"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 2 || len(list.Rows) != 2 {
		t.Fatalf("list = total %d rows %d", list.Total, len(list.Rows))
	}
	if list.Rows[0].Epoch != 1 || list.Rows[1].Epoch != 2 {
		t.Errorf("epochs = %d, %d", list.Rows[0].Epoch, list.Rows[1].Epoch)
	}
	if list.Rows[1].ValAccuracy != 0.65 {
		t.Errorf("epoch 2 val accuracy = %v", list.Rows[1].ValAccuracy)
	}
}

func TestRunEpochsUnknownRunIs404(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/runs/4f9d3b2a-1c2e-4a5b-9c3d-2f1e0a9b8c7d/epochs", "")

	status, _ := decodeEnvelope(t, rec)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body %s", status, rec.Body.String())
	}
}

func TestGetRunRejectsMalformedID(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/runs/not-a-uuid", "")

	status, _ := decodeEnvelope(t, rec)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestListRuns(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	for _, run := range []*models.Run{
		{ID: "a0000000-0000-4000-8000-000000000001", Status: models.RunCompleted},
		{ID: "a0000000-0000-4000-8000-000000000002", Status: models.RunTraining},
	} {
		if err := f.store.Create(ctx, run); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	rec := f.do(http.MethodGet, "/api/v1/runs", "")

	status, data := decodeEnvelope(t, rec)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	var list struct {
		Rows  []*models.Run `json:"rows"`
		Total int64         `json:"total"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 2 || len(list.Rows) != 2 {
		t.Errorf("list = total %d rows %d", list.Total, len(list.Rows))
	}
}

func TestPredictExplicitWindow(t *testing.T) {
	f := newHandlerFixture(t)

	body := `{"instrument":"BTC-USD","horizon":50,"window":[[1,2,3],[4,5,6]]}`
	rec := f.do(http.MethodPost, "/api/v1/predict", body)

	status, data := decodeEnvelope(t, rec)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", status, rec.Body.String())
	}
	var pred models.Prediction
	if err := json.Unmarshal(data, &pred); err != nil {
		t.Fatalf("decode prediction: %v", err)
	}
	if pred.Class != models.ClassUp {
		t.Errorf("class = %d, want %d", pred.Class, models.ClassUp)
	}
	if pred.Instrument != "BTC-USD" || pred.Horizon != 50 {
		t.Errorf("identity = %s/%d", pred.Instrument, pred.Horizon)
	}
	if pred.Source != "model" {
		t.Errorf("source = %q", pred.Source)
	}
}

func TestPredictRequiresInstrumentOrWindow(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/predict", `{}`)

	status, _ := decodeEnvelope(t, rec)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", status, rec.Body.String())
	}
}

func TestRecentPredictions(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	for _, p := range []*models.Prediction{
		{Instrument: "BTC-USD", Class: models.ClassDown},
		{Instrument: "BTC-USD", Class: models.ClassUp},
		{Instrument: "ETH-USD", Class: models.ClassStationary},
	} {
		if err := f.preds.Store(ctx, p); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	rec := f.do(http.MethodGet, "/api/v1/predictions?instrument=BTC-USD", "")

	status, data := decodeEnvelope(t, rec)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	var list struct {
		Rows []*models.Prediction `json:"rows"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(list.Rows))
	}
	if list.Rows[0].Class != models.ClassUp {
		t.Errorf("newest class = %d, want %d", list.Rows[0].Class, models.ClassUp)
	}
}

func TestModelSummaryDefaults(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/model/summary", "")

	status, data := decodeEnvelope(t, rec)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", status, rec.Body.String())
	}
	var res struct {
		InputShape  []int `json:"input_shape"`
		OutputShape []int `json:"output_shape"`
		TotalLayers int   `json:"total_layers"`
		Layers      []struct {
			Kind string `json:"kind"`
		} `json:"layers"`
		Loss string `json:"loss"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if res.TotalLayers != 22 || len(res.Layers) != 22 {
		t.Errorf("layers = %d/%d, want 22", res.TotalLayers, len(res.Layers))
	}
	if len(res.InputShape) != 3 || res.InputShape[0] != 100 || res.InputShape[1] != 40 {
		t.Errorf("input shape = %v", res.InputShape)
	}
	if len(res.OutputShape) != 1 || res.OutputShape[0] != 3 {
		t.Errorf("output shape = %v", res.OutputShape)
	}
	if res.Loss != "categorical_crossentropy" {
		t.Errorf("loss = %q", res.Loss)
	}
}

func TestModelSummaryImpossibleDims(t *testing.T) {
	f := newHandlerFixture(t)

	// Two feature columns collapse to width 1 after the first stage,
	// leaving nothing for the second width reduction.
	rec := f.do(http.MethodGet, "/api/v1/model/summary?num_features=2", "")

	status, _ := decodeEnvelope(t, rec)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", status, rec.Body.String())
	}
}

func TestHorizons(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/horizons", "")

	status, data := decodeEnvelope(t, rec)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	var res struct {
		Default  int `json:"default"`
		Horizons []struct {
			Events      int `json:"events"`
			LabelColumn int `json:"label_column"`
		} `json:"horizons"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("decode horizons: %v", err)
	}
	if res.Default != 50 {
		t.Errorf("default = %d, want 50", res.Default)
	}
	if len(res.Horizons) != 5 {
		t.Fatalf("horizons = %d, want 5", len(res.Horizons))
	}
	if res.Horizons[3].Events != 50 || res.Horizons[3].LabelColumn != 3 {
		t.Errorf("horizon[3] = %+v", res.Horizons[3])
	}
}
