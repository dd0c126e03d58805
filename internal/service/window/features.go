package window

import (
	"fmt"

	"LobCast/internal/domain/models"
)

// NumLevels is how many book levels per side feed the model.
const NumLevels = 10

// FeatureDim is the flattened per-event vector width: four values per level.
const FeatureDim = 4 * NumLevels

// Vector flattens a snapshot into the channel layout the network consumes:
// ask price, ask size, bid price, bid size for each level, best level first.
func Vector(s *models.Snapshot) ([]float64, error) {
	if s == nil {
		return nil, fmt.Errorf("snapshot is nil")
	}
	if s.Depth() < NumLevels {
		return nil, fmt.Errorf("snapshot depth %d, need %d levels per side", s.Depth(), NumLevels)
	}
	out := make([]float64, 0, FeatureDim)
	for i := 0; i < NumLevels; i++ {
		out = append(out, s.Asks[i].Price, s.Asks[i].Size, s.Bids[i].Price, s.Bids[i].Size)
	}
	return out, nil
}
