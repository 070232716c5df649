package edge

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polyedge/internal/truthlink"
	"github.com/web3guy0/polyedge/internal/types"
)

// Horizons bound how long a truth event stays actionable per source.
var truthHorizons = map[types.AlertSource]time.Duration{
	types.SourceCongress: 24 * time.Hour,
	types.SourceWeather:  24 * time.Hour,
	types.SourceFed:      24 * time.Hour,
	types.SourceSports:   12 * time.Hour,
}

// truthEvent is the cached per-market view of the most recent relevant
// linked alert, with the price frozen at first observation.
type truthEvent struct {
	alertID      string
	source       types.AlertSource
	title        string
	direction    types.Direction
	significance truthlink.Significance
	relevance    float64
	timestamp    time.Time
	priceAtEvent decimal.Decimal
	priceKnown   bool
	expectedMove decimal.Decimal
}

// TruthEdgeTracker caches linked alerts per market and evaluates how
// much of each event's expected move the market has absorbed.
type TruthEdgeTracker struct {
	mu     sync.Mutex
	events map[string]*truthEvent // asset id
	quoter Quoter
}

// NewTruthEdgeTracker builds a tracker reading prices through q.
func NewTruthEdgeTracker(q Quoter) *TruthEdgeTracker {
	return &TruthEdgeTracker{
		events: make(map[string]*truthEvent),
		quoter: q,
	}
}

// OnLinkedAlert records the alert against each affected market,
// replacing any older event. The market price at event time is cached
// on first observation and never revised.
func (t *TruthEdgeTracker) OnLinkedAlert(alert truthlink.LinkedAlert) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, am := range alert.AffectedMarkets {
		ev := &truthEvent{
			alertID:      alert.ID,
			source:       alert.Source,
			title:        alert.Title,
			direction:    am.Direction,
			significance: alert.Significance,
			relevance:    am.Relevance,
			timestamp:    alert.Timestamp,
			expectedMove: expectedMove(alert, am),
		}
		if prev, ok := t.events[am.Market.AssetID]; ok && prev.alertID == alert.ID {
			continue
		}
		if price, ok := t.quoter.CurrentMid(am.Market.AssetID); ok {
			ev.priceAtEvent = price
			ev.priceKnown = true
		}
		t.events[am.Market.AssetID] = ev
	}
}

// expectedMove sizes the move a truth event should produce, per the
// event-impact table.
func expectedMove(alert truthlink.LinkedAlert, am truthlink.AffectedMarket) decimal.Decimal {
	var base float64
	switch alert.Source {
	case types.SourceCongress:
		// A bill becoming law or dying is the resolution event itself.
		base = 0.25
	case types.SourceSports:
		if strings.Contains(strings.ToLower(alert.Summary), "out") {
			base = 0.15
		} else {
			base = 0.10
		}
	case types.SourceFed:
		base = 0.12
	case types.SourceWeather:
		base = 0.10
	default:
		base = 0.08
	}
	if alert.Significance >= truthlink.SignificanceCritical {
		base *= 1.2
	}
	return decimal.NewFromFloat(base * am.Relevance)
}

// evaluate returns an opportunity when the market has absorbed less
// than half of the expected move and the remaining gap is at least 3%.
func (t *TruthEdgeTracker) evaluate(assetID string, currentPrice decimal.Decimal, now time.Time) *Opportunity {
	t.mu.Lock()
	ev, ok := t.events[assetID]
	if ok {
		horizon := truthHorizons[ev.source]
		if horizon == 0 {
			horizon = 24 * time.Hour
		}
		if now.Sub(ev.timestamp) > horizon {
			delete(t.events, assetID)
			ok = false
		}
	}
	if ok && !ev.priceKnown {
		// Late price discovery still freezes the first quote seen.
		ev.priceAtEvent = currentPrice
		ev.priceKnown = true
		t.mu.Unlock()
		return nil
	}
	var snapshot truthEvent
	if ok {
		snapshot = *ev
	}
	t.mu.Unlock()

	if !ok {
		return nil
	}

	expected := snapshot.expectedMove
	if snapshot.direction == types.DirectionDown {
		expected = expected.Neg()
	}
	actual := currentPrice.Sub(snapshot.priceAtEvent)

	if actual.Abs().GreaterThanOrEqual(expected.Abs().Mul(decimal.NewFromFloat(0.5))) {
		return nil
	}
	gap := expected.Sub(actual).Abs()
	if gap.LessThan(decimal.NewFromFloat(0.03)) {
		return nil
	}

	age := now.Sub(snapshot.timestamp)
	return &Opportunity{
		AssetID:    assetID,
		Type:       TypeTruthEvent,
		Direction:  snapshot.direction,
		Magnitude:  gap,
		Confidence: truthConfidence(age),
		Action:     truthAction(snapshot.direction, age),
		Urgency:    truthUrgency(age),
		Reason:     string(snapshot.source) + ": " + snapshot.title,
		Notional:   decimal.Zero,
		DetectedAt: now,
	}
}

// truthConfidence decays with event age: fresh events are the most
// reliable predictors.
func truthConfidence(age time.Duration) types.Confidence {
	switch {
	case age <= time.Hour:
		return types.ConfidenceVeryHigh
	case age <= 4*time.Hour:
		return types.ConfidenceHigh
	case age <= 12*time.Hour:
		return types.ConfidenceMedium
	}
	return types.ConfidenceLow
}

func truthAction(dir types.Direction, age time.Duration) Action {
	if age > 12*time.Hour {
		return ActionMonitor
	}
	if dir == types.DirectionUp {
		return ActionBuyYes
	}
	return ActionBuyNo
}

func truthUrgency(age time.Duration) Urgency {
	switch {
	case age <= time.Hour:
		return UrgencyImmediate
	case age <= 6*time.Hour:
		return UrgencyHours
	}
	return UrgencyDay
}
