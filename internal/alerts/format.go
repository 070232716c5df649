package alerts

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polyedge/internal/arb"
	"github.com/web3guy0/polyedge/internal/edge"
	"github.com/web3guy0/polyedge/internal/signals"
	"github.com/web3guy0/polyedge/internal/truthlink"
	"github.com/web3guy0/polyedge/internal/types"
	"github.com/web3guy0/polyedge/internal/whales"
)

// FormatSignal normalises a micro-structure signal.
func FormatSignal(s signals.Signal) types.Alert {
	title := fmt.Sprintf("%s %s", signalEmoji(s.Type), signalHeadline(s))
	body := s.Detail
	if s.Question != "" {
		body = s.Question + "\n" + body
	}
	return types.Alert{
		ID:        uuid.New().String(),
		Timestamp: s.Timestamp,
		Priority:  strengthPriority(s.Strength),
		Title:     title,
		Body:      body,
		Source:    types.SourceSignal,
		Metadata: map[string]string{
			"asset_id":  s.AssetID,
			"type":      string(s.Type),
			"strength":  string(s.Strength),
			"direction": string(s.Direction),
			"change":    s.ChangePercent.StringFixed(2),
			"price":     s.Price.StringFixed(4),
		},
	}
}

func signalHeadline(s signals.Signal) string {
	name := strings.ReplaceAll(string(s.Type), "_", " ")
	return fmt.Sprintf("%s %s %s%%", strings.ToUpper(name[:1])+name[1:], s.Direction, s.ChangePercent.StringFixed(1))
}

func signalEmoji(t signals.SignalType) string {
	switch t {
	case signals.SignalPriceSpike:
		return "📈"
	case signals.SignalVolumeSpike:
		return "📊"
	case signals.SignalSpreadCompression:
		return "🤏"
	case signals.SignalAggressiveSweep:
		return "🧹"
	case signals.SignalDepthPull:
		return "🫳"
	}
	return "🔔"
}

func strengthPriority(s signals.Strength) types.Priority {
	switch s {
	case signals.StrengthVeryHigh:
		return types.PriorityCritical
	case signals.StrengthHigh:
		return types.PriorityHigh
	case signals.StrengthMedium:
		return types.PriorityMedium
	}
	return types.PriorityLow
}

// FormatLinked normalises a truth-source linked alert.
func FormatLinked(la truthlink.LinkedAlert) types.Alert {
	var b strings.Builder
	b.WriteString(la.Summary)
	for i, am := range la.AffectedMarkets {
		if i >= 5 {
			fmt.Fprintf(&b, "\n… and %d more markets", len(la.AffectedMarkets)-i)
			break
		}
		fmt.Fprintf(&b, "\n%s %s (relevance %.2f)", directionArrow(am.Direction), am.Market.Question, am.Relevance)
	}
	return types.Alert{
		ID:        la.ID,
		Timestamp: la.Timestamp,
		Priority:  la.Urgency,
		Title:     sourceEmoji(la.Source) + " " + la.Title,
		Body:      b.String(),
		Source:    la.Source,
		Metadata: map[string]string{
			"confidence":   la.Confidence.String(),
			"significance": la.Significance.String(),
			"markets":      fmt.Sprintf("%d", len(la.AffectedMarkets)),
		},
	}
}

func sourceEmoji(s types.AlertSource) string {
	switch s {
	case types.SourceCongress:
		return "🏛️"
	case types.SourceWeather:
		return "🌀"
	case types.SourceFed:
		return "🏦"
	case types.SourceSports:
		return "🏈"
	}
	return "🔗"
}

func directionArrow(d types.Direction) string {
	if d == types.DirectionUp {
		return "↑"
	}
	return "↓"
}

// FormatEdge normalises an edge opportunity.
func FormatEdge(opp edge.Opportunity) types.Alert {
	title := fmt.Sprintf("🎯 %s: %s", edgeTypeName(opp.Type), opp.Action)
	body := fmt.Sprintf("%s\n%s, expected move %s %s, score %.0f",
		opp.Question, opp.Reason, opp.Magnitude.StringFixed(2), opp.Direction, opp.Score)
	return types.Alert{
		ID:        uuid.New().String(),
		Timestamp: opp.DetectedAt,
		Priority:  edgePriority(opp),
		Title:     title,
		Body:      body,
		Source:    types.SourceWhaleEdge,
		Metadata: map[string]string{
			"market_id":  opp.MarketID,
			"asset_id":   opp.AssetID,
			"type":       string(opp.Type),
			"action":     string(opp.Action),
			"urgency":    string(opp.Urgency),
			"confidence": opp.Confidence.String(),
			"magnitude":  opp.Magnitude.StringFixed(3),
		},
	}
}

func edgeTypeName(t edge.Type) string {
	switch t {
	case edge.TypeTruthEvent:
		return "Truth edge"
	case edge.TypeWhaleAccumulation:
		return "Whale accumulation"
	case edge.TypeWhaleConsensus:
		return "Whale consensus"
	case edge.TypeWhaleExit:
		return "Whale exit"
	}
	return "Edge"
}

func edgePriority(opp edge.Opportunity) types.Priority {
	switch {
	case opp.Urgency == edge.UrgencyImmediate && opp.Confidence >= types.ConfidenceVeryHigh:
		return types.PriorityCritical
	case opp.Urgency == edge.UrgencyImmediate || opp.Confidence >= types.ConfidenceHigh:
		return types.PriorityHigh
	case opp.Urgency == edge.UrgencyHours:
		return types.PriorityMedium
	}
	return types.PriorityLow
}

// FormatWhaleTrade normalises a notable classified whale trade.
func FormatWhaleTrade(ct whales.ClassifiedTrade) types.Alert {
	t := ct.Trade
	title := fmt.Sprintf("🐋 %s %s $%s", ct.Behavior, t.Side, t.Notional.StringFixed(0))
	body := fmt.Sprintf("%s %s %s shares @ %s (%s)",
		t.Wallet.Hex()[:10], t.Outcome, t.Size.StringFixed(0), t.Price.StringFixed(3), t.Whale.Tier)
	priority := types.PriorityLow
	switch {
	case ct.Behavior == whales.BehaviorExit || t.Notional.GreaterThanOrEqual(decimal.NewFromInt(100000)):
		priority = types.PriorityHigh
	case t.Notional.GreaterThanOrEqual(decimal.NewFromInt(10000)):
		priority = types.PriorityMedium
	}
	return types.Alert{
		ID:        uuid.New().String(),
		Timestamp: t.Timestamp,
		Priority:  priority,
		Title:     title,
		Body:      body,
		Source:    types.SourceWhaleEdge,
		Metadata: map[string]string{
			"wallet":    t.Wallet.Hex(),
			"market_id": t.MarketID,
			"behavior":  string(ct.Behavior),
			"tier":      string(t.Whale.Tier),
		},
	}
}

// FormatArb normalises an arbitrage opportunity.
func FormatArb(opp arb.Opportunity) types.Alert {
	var b strings.Builder
	for _, leg := range opp.Legs {
		fmt.Fprintf(&b, "%s @ %s → %s\n", leg.Question, leg.Price.StringFixed(3), leg.Action)
	}
	fmt.Fprintf(&b, "expected edge %s", opp.ExpectedEdge.StringFixed(3))

	priority := types.PriorityHigh
	if opp.Urgency == "immediate" {
		priority = types.PriorityCritical
	}
	return types.Alert{
		ID:        uuid.New().String(),
		Timestamp: opp.DetectedAt,
		Priority:  priority,
		Title:     fmt.Sprintf("💰 Arbitrage (%s) edge %s", opp.Type, opp.ExpectedEdge.StringFixed(3)),
		Body:      b.String(),
		Source:    types.SourceArbitrage,
		Metadata: map[string]string{
			"type":    string(opp.Type),
			"edge":    opp.ExpectedEdge.StringFixed(4),
			"urgency": opp.Urgency,
		},
	}
}
