package edge

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polyedge/internal/types"
)

// Type labels what produced an edge opportunity.
type Type string

const (
	TypeTruthEvent        Type = "truth_event"
	TypeWhaleAccumulation Type = "whale_accumulation"
	TypeWhaleConsensus    Type = "whale_consensus"
	TypeWhaleExit         Type = "whale_exit"
)

// Action is the suggested response to an opportunity.
type Action string

const (
	ActionBuyYes  Action = "BUY_YES"
	ActionBuyNo   Action = "BUY_NO"
	ActionCopy    Action = "COPY"
	ActionFade    Action = "FADE"
	ActionMonitor Action = "MONITOR"
)

// Urgency bands how quickly an opportunity decays.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyHours     Urgency = "hours"
	UrgencyDay       Urgency = "day"
)

func (u Urgency) band() float64 {
	switch u {
	case UrgencyImmediate:
		return 100
	case UrgencyHours:
		return 50
	}
	return 25
}

// Opportunity is one detected mispricing.
type Opportunity struct {
	MarketID     string
	AssetID      string
	Question     string
	Type         Type
	Direction    types.Direction
	Magnitude    decimal.Decimal // remaining expected move, absolute
	Confidence   types.Confidence
	Action       Action
	Urgency      Urgency
	Score        float64
	Reason       string
	Notional     decimal.Decimal // flow size behind the signal, zero for truth edges
	Participants []string        // whale addresses behind whale edges
	DetectedAt   time.Time
}

// ScanResponse is a point-in-time edge scan.
type ScanResponse struct {
	GeneratedAt   time.Time
	Cached        bool
	Opportunities []Opportunity
}
