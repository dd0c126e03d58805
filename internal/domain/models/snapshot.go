package models

import "time"

// PriceLevel is one side entry of the book at a given depth.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Snapshot is a limit order book snapshot at one event time. Levels are
// ordered best-first: Asks[0] is the lowest ask, Bids[0] the highest bid.
type Snapshot struct {
	Instrument string       `json:"instrument"`
	Timestamp  time.Time    `json:"timestamp"`
	Seq        uint64       `json:"seq"`
	Asks       []PriceLevel `json:"asks"`
	Bids       []PriceLevel `json:"bids"`
}

// Depth returns the number of levels present on both sides.
func (s *Snapshot) Depth() int {
	if len(s.Asks) < len(s.Bids) {
		return len(s.Asks)
	}
	return len(s.Bids)
}

// Mid returns the mid price, or 0 when either side is empty.
func (s *Snapshot) Mid() float64 {
	if len(s.Asks) == 0 || len(s.Bids) == 0 {
		return 0
	}
	return (s.Asks[0].Price + s.Bids[0].Price) / 2
}

// Spread returns ask minus bid at the top of the book.
func (s *Snapshot) Spread() float64 {
	if len(s.Asks) == 0 || len(s.Bids) == 0 {
		return 0
	}
	return s.Asks[0].Price - s.Bids[0].Price
}
