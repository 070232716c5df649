package edge

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polyedge/internal/config"
)

// Quality grades whether a market is liquid enough to signal on.
type Quality string

const (
	QualityHigh    Quality = "high"
	QualityMedium  Quality = "medium"
	QualityLow     Quality = "low"
	QualityGarbage Quality = "garbage" // never emits
)

// qualityTier is one rung of the assessment ladder.
type qualityTier struct {
	quality   Quality
	minVolume decimal.Decimal
	maxSpread decimal.Decimal
	minTrades int
}

// QualityFilter assesses markets against descending liquidity tiers.
type QualityFilter struct {
	tiers []qualityTier
}

// NewQualityFilter builds the filter from configured thresholds.
func NewQualityFilter(cfg *config.Config) *QualityFilter {
	return &QualityFilter{tiers: []qualityTier{
		{QualityHigh, cfg.QualityHighVolume, cfg.QualityHighSpread, cfg.QualityHighTrades},
		{QualityMedium, cfg.QualityMediumVolume, cfg.QualityMediumSpread, cfg.QualityMediumTrades},
		{QualityLow, cfg.QualityLowVolume, cfg.QualityLowSpread, cfg.QualityLowTrades},
	}}
}

// Assess returns the first tier the market clears, garbage if none. A
// zero spread means no book has been observed and only fails the high
// tier if volume or trade count also fail.
func (f *QualityFilter) Assess(volume24h, spread decimal.Decimal, tradeCount24h int) Quality {
	for _, t := range f.tiers {
		if volume24h.LessThan(t.minVolume) || tradeCount24h < t.minTrades {
			continue
		}
		if spread.IsPositive() && spread.GreaterThan(t.maxSpread) {
			continue
		}
		return t.quality
	}
	return QualityGarbage
}
