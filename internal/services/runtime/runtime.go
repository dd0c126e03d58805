package runtime

import (
	"context"
	"fmt"

	"LobCast/internal/domain/models"
	domsvc "LobCast/internal/domain/service"
	"LobCast/pkg/config"
)

// HTTPRuntime initializes and health-checks the external tensor process.
type HTTPRuntime struct {
	base *HTTPServiceBase
}

func NewHTTPRuntime(cfg *config.Config) *HTTPRuntime {
	return &HTTPRuntime{base: NewHTTPServiceBase(cfg)}
}

type initRequest struct {
	Device       string `json:"device"`
	MemoryGrowth bool   `json:"memory_growth"`
}

type statusResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Init configures the runtime's compute device before any model work.
func (r *HTTPRuntime) Init(ctx context.Context, opts models.RuntimeOptions) error {
	var resp statusResponse
	err := r.base.PostJSONWithRetry(ctx, "/runtime/init", initRequest{
		Device:       opts.Device,
		MemoryGrowth: opts.MemoryGrowth,
	}, &resp, r.base.retries)
	if err != nil {
		return fmt.Errorf("runtime init: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("runtime init rejected: %s", resp.Detail)
	}
	return nil
}

// Ping checks the runtime health endpoint.
func (r *HTTPRuntime) Ping(ctx context.Context) error {
	var resp statusResponse
	if err := r.base.GetJSON(ctx, "/health", &resp); err != nil {
		return fmt.Errorf("runtime ping: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("runtime unhealthy: %s", resp.Detail)
	}
	return nil
}

var _ domsvc.Runtime = (*HTTPRuntime)(nil)
