package window

import (
	"testing"
	"time"

	"LobCast/internal/domain/models"
)

func bookSnapshot(levels int) *models.Snapshot {
	s := &models.Snapshot{
		Instrument: "BTC-USD",
		Timestamp:  time.Unix(1700000000, 0),
	}
	for i := 0; i < levels; i++ {
		s.Asks = append(s.Asks, models.PriceLevel{Price: 100 + float64(i), Size: float64(i + 1)})
		s.Bids = append(s.Bids, models.PriceLevel{Price: 99 - float64(i), Size: float64(i + 2)})
	}
	return s
}

func TestVectorLayout(t *testing.T) {
	vec, err := Vector(bookSnapshot(NumLevels))
	if err != nil {
		t.Fatalf("Vector: %v", err)
	}
	if len(vec) != FeatureDim {
		t.Fatalf("len = %d, want %d", len(vec), FeatureDim)
	}

	// Level 1: ask price, ask size, bid price, bid size.
	want := []float64{100, 1, 99, 2}
	for i, w := range want {
		if vec[i] != w {
			t.Errorf("vec[%d] = %v, want %v", i, vec[i], w)
		}
	}
	// Level 3 starts at offset 8.
	if vec[8] != 102 || vec[10] != 97 {
		t.Errorf("level 3 = (%v, %v), want (102, 97)", vec[8], vec[10])
	}
}

func TestVectorTooShallow(t *testing.T) {
	if _, err := Vector(bookSnapshot(NumLevels - 1)); err == nil {
		t.Fatal("expected error for shallow book")
	}
}

func TestVectorNil(t *testing.T) {
	if _, err := Vector(nil); err == nil {
		t.Fatal("expected error for nil snapshot")
	}
}
