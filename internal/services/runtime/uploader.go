package runtime

import (
	"context"
	"fmt"

	domsvc "LobCast/internal/domain/service"
	"LobCast/internal/fi2010"
	"LobCast/pkg/config"
)

// HTTPDatasetUploader ships windowed tensors to the runtime in fixed-size
// chunks of samples, then commits the split so the runtime can verify it
// received everything.
type HTTPDatasetUploader struct {
	base      *HTTPServiceBase
	chunkSize int
}

func NewHTTPDatasetUploader(cfg *config.Config) *HTTPDatasetUploader {
	chunk := cfg.Runtime.ChunkSize
	if chunk <= 0 {
		chunk = 256
	}
	return &HTTPDatasetUploader{base: NewHTTPServiceBase(cfg), chunkSize: chunk}
}

type uploadChunkRequest struct {
	RunID       string    `json:"run_id"`
	Role        string    `json:"role"`
	Seq         int       `json:"seq"`
	TotalChunks int       `json:"total_chunks"`
	Count       int       `json:"count"`
	WindowShape [3]int    `json:"window_shape"`
	Features    []float64 `json:"features"`
	Labels      []float64 `json:"labels"`
}

type uploadChunkResponse struct {
	Status   string `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Received int    `json:"received"`
}

type commitRequest struct {
	RunID   string `json:"run_id"`
	Role    string `json:"role"`
	Samples int    `json:"samples"`
}

// Upload streams ds to the runtime under (runID, role). Features are sent
// flattened in sample-major order; labels as flattened one-hot rows.
func (u *HTTPDatasetUploader) Upload(ctx context.Context, runID, role string, ds *fi2010.WindowSet) error {
	if ds == nil || ds.Len() == 0 {
		return fmt.Errorf("upload %s: empty dataset", role)
	}

	n := ds.Len()
	shape := ds.WindowShape()
	sampleLen := shape[0] * shape[1] * shape[2]
	totalChunks := (n + u.chunkSize - 1) / u.chunkSize

	for seq := 0; seq < totalChunks; seq++ {
		lo := seq * u.chunkSize
		hi := lo + u.chunkSize
		if hi > n {
			hi = n
		}

		req := uploadChunkRequest{
			RunID:       runID,
			Role:        role,
			Seq:         seq,
			TotalChunks: totalChunks,
			Count:       hi - lo,
			WindowShape: shape,
			Features:    make([]float64, 0, (hi-lo)*sampleLen),
			Labels:      make([]float64, 0, (hi-lo)*fi2010.NumClasses),
		}
		for i := lo; i < hi; i++ {
			req.Features = append(req.Features, ds.Sample(i)...)
			req.Labels = append(req.Labels, ds.Label(i)...)
		}

		var resp uploadChunkResponse
		if err := u.base.PostJSONWithRetry(ctx, "/dataset/upload", req, &resp, u.base.retries); err != nil {
			return fmt.Errorf("upload %s chunk %d/%d: %w", role, seq+1, totalChunks, err)
		}
		if resp.Status != "ok" {
			return fmt.Errorf("upload %s chunk %d/%d rejected: %s", role, seq+1, totalChunks, resp.Detail)
		}
	}

	var commit statusResponse
	if err := u.base.PostJSON(ctx, "/dataset/commit", commitRequest{RunID: runID, Role: role, Samples: n}, &commit); err != nil {
		return fmt.Errorf("commit %s: %w", role, err)
	}
	if commit.Status != "ok" {
		return fmt.Errorf("commit %s rejected: %s", role, commit.Detail)
	}
	return nil
}

var _ domsvc.DatasetUploader = (*HTTPDatasetUploader)(nil)
