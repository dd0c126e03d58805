package runtime

import (
	"context"
	"fmt"

	"LobCast/internal/deeplob"
	"LobCast/internal/domain/models"
	domsvc "LobCast/internal/domain/service"
	"LobCast/pkg/config"
)

// HTTPModelCompiler assembles the network locally, then ships the compiled
// descriptor to the runtime, which instantiates the real graph.
type HTTPModelCompiler struct {
	base *HTTPServiceBase
}

func NewHTTPModelCompiler(cfg *config.Config) *HTTPModelCompiler {
	return &HTTPModelCompiler{base: NewHTTPServiceBase(cfg)}
}

type compileRequest struct {
	RunID string            `json:"run_id"`
	Model *deeplob.Compiled `json:"model"`
}

type compileResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
	Params int64  `json:"params,omitempty"`
}

// Compile builds the architecture for the run's dimensions and registers it
// on the runtime under the run id. Invalid dimensions fail locally before
// any network call.
func (c *HTTPModelCompiler) Compile(ctx context.Context, run *models.Run) error {
	model, err := deeplob.Build(run.WindowLength, run.NumFeatures, run.RecurrentUnits)
	if err != nil {
		return err
	}

	var resp compileResponse
	err = c.base.PostJSONWithRetry(ctx, "/model/compile", compileRequest{
		RunID: run.ID,
		Model: model.Compile(),
	}, &resp, c.base.retries)
	if err != nil {
		return fmt.Errorf("compile model: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("runtime rejected model: %s", resp.Detail)
	}
	return nil
}

var _ domsvc.ModelCompiler = (*HTTPModelCompiler)(nil)
