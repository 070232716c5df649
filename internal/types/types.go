package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Side is the aggressor side of a venue trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the counterparty side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Outcome is one leg of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Opposite returns the other leg.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// Priority orders alerts for rate limiting and channel thresholds.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	}
	return "unknown"
}

// Confidence levels share the priority ordering: low < medium < high < very_high.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
	ConfidenceVeryHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	case ConfidenceVeryHigh:
		return "very_high"
	}
	return "unknown"
}

// Direction is the expected price move for an outcome token.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Market is a single outcome token tradable on the venue.
type Market struct {
	AssetID       string
	ConditionID   string
	Question      string
	Description   string
	Slug          string
	OutcomePrices []decimal.Decimal // [yes, no] in [0,1]
	Volume24h     decimal.Decimal
	TradeCount24h int
	EndDate       time.Time
	Active        bool
}

// YesPrice returns the first outcome price, zero if unpopulated.
func (m *Market) YesPrice() decimal.Decimal {
	if len(m.OutcomePrices) > 0 {
		return m.OutcomePrices[0]
	}
	return decimal.Zero
}

// AlertSource identifies which emitter produced an alert.
type AlertSource string

const (
	SourceSignal    AlertSource = "signal"
	SourceCongress  AlertSource = "congress"
	SourceWeather   AlertSource = "weather"
	SourceFed       AlertSource = "fed"
	SourceSports    AlertSource = "sports"
	SourceLinked    AlertSource = "linked"
	SourceWhaleEdge AlertSource = "whale_edge"
	SourceArbitrage AlertSource = "arbitrage"
)

// Alert is the normalized output shape every emitter converges on.
type Alert struct {
	ID        string
	Timestamp time.Time
	Priority  Priority
	Title     string
	Body      string
	Source    AlertSource
	Metadata  map[string]string
}
