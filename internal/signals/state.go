package signals

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polyedge/internal/types"
)

// PricePoint is one sampled price.
type PricePoint struct {
	Price     decimal.Decimal
	Timestamp time.Time
}

// VolumePoint is one sampled trade volume.
type VolumePoint struct {
	Volume    decimal.Decimal
	Timestamp time.Time
}

// TradePoint is one recent trade print.
type TradePoint struct {
	Price     decimal.Decimal
	Size      decimal.Decimal
	Side      types.Side
	Timestamp time.Time
}

// MarketState is the per-asset micro-structure state owned by the
// detector. Mutated only by the detector's event loop; external readers
// get copies via Detector.MarketState.
type MarketState struct {
	AssetID      string
	Question     string
	CurrentPrice decimal.Decimal
	BestBid      decimal.Decimal
	BestAsk      decimal.Decimal
	Spread       decimal.Decimal
	BidDepth     decimal.Decimal
	AskDepth     decimal.Decimal

	PriceHistory  []PricePoint
	VolumeHistory []VolumePoint
	RecentTrades  []TradePoint

	FirstSeen  time.Time
	LastUpdate time.Time
}

func newMarketState(assetID string, ts time.Time) *MarketState {
	return &MarketState{
		AssetID:   assetID,
		FirstSeen: ts,
	}
}

// recordPrice appends a price sample and prunes.
func (s *MarketState) recordPrice(price decimal.Decimal, ts time.Time, horizon time.Duration) {
	s.PriceHistory = append(s.PriceHistory, PricePoint{Price: price, Timestamp: ts})
	s.PriceHistory = prunePrices(s.PriceHistory, ts.Add(-horizon))
}

// recordTrade appends trade and volume samples and prunes.
func (s *MarketState) recordTrade(price, size decimal.Decimal, side types.Side, ts time.Time, horizon time.Duration) {
	cutoff := ts.Add(-horizon)
	s.RecentTrades = append(s.RecentTrades, TradePoint{Price: price, Size: size, Side: side, Timestamp: ts})
	s.RecentTrades = pruneTrades(s.RecentTrades, cutoff)
	s.VolumeHistory = append(s.VolumeHistory, VolumePoint{Volume: size, Timestamp: ts})
	s.VolumeHistory = pruneVolumes(s.VolumeHistory, cutoff)
}

// clone returns a point-in-time copy safe for other components.
func (s *MarketState) clone() MarketState {
	cp := *s
	cp.PriceHistory = append([]PricePoint(nil), s.PriceHistory...)
	cp.VolumeHistory = append([]VolumePoint(nil), s.VolumeHistory...)
	cp.RecentTrades = append([]TradePoint(nil), s.RecentTrades...)
	return cp
}

// Samples are time-ordered, so pruning is a prefix cut.

func prunePrices(points []PricePoint, cutoff time.Time) []PricePoint {
	i := 0
	for i < len(points) && points[i].Timestamp.Before(cutoff) {
		i++
	}
	return points[i:]
}

func pruneVolumes(points []VolumePoint, cutoff time.Time) []VolumePoint {
	i := 0
	for i < len(points) && points[i].Timestamp.Before(cutoff) {
		i++
	}
	return points[i:]
}

func pruneTrades(points []TradePoint, cutoff time.Time) []TradePoint {
	i := 0
	for i < len(points) && points[i].Timestamp.Before(cutoff) {
		i++
	}
	return points[i:]
}
