package runtime

import (
	"context"
	"fmt"
	"time"

	"LobCast/internal/deeplob"
	"LobCast/internal/domain/models"
	domsvc "LobCast/internal/domain/service"
	"LobCast/pkg/config"
	"LobCast/pkg/util"
)

// probTolerance bounds how far a probability vector's sum may drift from 1
// before the response is treated as corrupt.
const probTolerance = 1e-6

// HTTPPredictor scores windows against the runtime's current model.
type HTTPPredictor struct {
	base *HTTPServiceBase
}

func NewHTTPPredictor(cfg *config.Config) *HTTPPredictor {
	return &HTTPPredictor{base: NewHTTPServiceBase(cfg)}
}

type predictRequest struct {
	Window [][]float64 `json:"window"`
}

type predictResponse struct {
	Probabilities []float64 `json:"probabilities"`
}

// Predict posts the window and validates the returned distribution: three
// entries, each within [0, 1], summing to 1.
func (p *HTTPPredictor) Predict(ctx context.Context, window [][]float64) (*models.Prediction, error) {
	if len(window) == 0 {
		return nil, fmt.Errorf("predict: empty window")
	}

	var resp predictResponse
	if err := p.base.PostJSON(ctx, "/predict", predictRequest{Window: window}, &resp); err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	probs := resp.Probabilities
	if len(probs) != deeplob.NumClasses {
		return nil, fmt.Errorf("predict: got %d probabilities, want %d", len(probs), deeplob.NumClasses)
	}
	for i, v := range probs {
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("predict: probability %d out of range: %v", i, v)
		}
	}
	if sum := util.SumFloats(probs); !util.ApproxEqual(sum, 1, probTolerance) {
		return nil, fmt.Errorf("predict: probabilities sum to %v", sum)
	}

	class := util.ArgMax(probs)
	return &models.Prediction{
		Timestamp:     time.Now().UTC(),
		Probabilities: probs,
		Class:         class,
		Confidence:    probs[class],
		Source:        "model",
	}, nil
}

var _ domsvc.Predictor = (*HTTPPredictor)(nil)
