package edge

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polyedge/internal/types"
	"github.com/web3guy0/polyedge/internal/whales"
)

const (
	accumulationWindow   = 2 * time.Hour
	accumulationMinBuys  = 3
	consensusWindow      = 4 * time.Hour
	consensusMinWhales   = 3
	exitWindow           = 2 * time.Hour
	exitMinPriorNotional = 10000
)

var accumulationMinTotal = decimal.NewFromInt(20000)

// WhaleFlow is the tracker surface the edge detector reads.
type WhaleFlow interface {
	RecentTrades(marketID string, since time.Time) []whales.ClassifiedTrade
}

// detectAccumulation finds a single whale quietly building a position:
// three or more same-outcome buys inside two hours totalling $20k+,
// with the price still within 3 points of the first fill.
func detectAccumulation(trades []whales.ClassifiedTrade, currentPrice decimal.Decimal, now time.Time) *Opportunity {
	since := now.Add(-accumulationWindow)

	type run struct {
		buys     int
		total    decimal.Decimal
		first    whales.ClassifiedTrade
		tier     whales.Tier
		copyable bool
	}
	runs := make(map[string]*run) // wallet|outcome

	for _, ct := range trades {
		t := ct.Trade
		if t.Timestamp.Before(since) || t.Side != types.SideBuy {
			continue
		}
		key := t.Wallet.Hex() + "|" + string(t.Outcome)
		r, ok := runs[key]
		if !ok {
			r = &run{total: decimal.Zero, first: ct, tier: t.Whale.Tier, copyable: t.Whale.CopySuitability >= 70}
			runs[key] = r
		}
		r.buys++
		r.total = r.total.Add(t.Notional)
	}

	for _, r := range runs {
		if r.buys < accumulationMinBuys || r.total.LessThan(accumulationMinTotal) {
			continue
		}
		firstPrice := r.first.Trade.Price
		if firstPrice.IsZero() || currentPrice.IsZero() {
			continue
		}
		move := currentPrice.Sub(firstPrice).Abs()
		if move.GreaterThanOrEqual(decimal.NewFromFloat(0.03)) {
			continue
		}

		dir := types.DirectionUp
		action := ActionBuyYes
		if r.first.Trade.Outcome == types.OutcomeNo {
			dir = types.DirectionDown
			action = ActionBuyNo
		}
		if r.copyable {
			action = ActionCopy
		}
		opp := &Opportunity{
			Type:         TypeWhaleAccumulation,
			Direction:    dir,
			Magnitude:    accumulationMove(r.tier, r.total),
			Confidence:   accumulationConfidence(r.tier, r.total),
			Action:       action,
			Urgency:      UrgencyHours,
			Reason:       "whale accumulation: " + r.first.Trade.Wallet.Hex()[:10],
			Notional:     r.total,
			Participants: []string{r.first.Trade.Wallet.Hex()},
			DetectedAt:   now,
		}
		if r.copyable {
			opp.Score += 5
		}
		return opp
	}
	return nil
}

// accumulationMove sizes the remaining move from whale tier and flow.
func accumulationMove(tier whales.Tier, total decimal.Decimal) decimal.Decimal {
	switch {
	case tier == whales.TierTop10:
		return decimal.NewFromFloat(0.15)
	case total.GreaterThanOrEqual(decimal.NewFromInt(100000)):
		return decimal.NewFromFloat(0.10)
	}
	return decimal.NewFromFloat(0.05)
}

func accumulationConfidence(tier whales.Tier, total decimal.Decimal) types.Confidence {
	if tier == whales.TierTop10 {
		if total.GreaterThanOrEqual(decimal.NewFromInt(100000)) {
			return types.ConfidenceVeryHigh
		}
		return types.ConfidenceHigh
	}
	return types.ConfidenceMedium
}

// detectConsensus finds three or more distinct whales buying the same
// outcome inside four hours.
func detectConsensus(trades []whales.ClassifiedTrade, now time.Time) *Opportunity {
	since := now.Add(-consensusWindow)

	type side struct {
		wallets  map[string]whales.Tier
		total    decimal.Decimal
		copyable int
	}
	sides := map[types.Outcome]*side{
		types.OutcomeYes: {wallets: make(map[string]whales.Tier), total: decimal.Zero},
		types.OutcomeNo:  {wallets: make(map[string]whales.Tier), total: decimal.Zero},
	}

	for _, ct := range trades {
		t := ct.Trade
		if t.Timestamp.Before(since) || t.Side != types.SideBuy {
			continue
		}
		s := sides[t.Outcome]
		if _, seen := s.wallets[t.Wallet.Hex()]; !seen && t.Whale.CopySuitability >= 70 {
			s.copyable++
		}
		s.wallets[t.Wallet.Hex()] = t.Whale.Tier
		s.total = s.total.Add(t.Notional)
	}

	for outcome, s := range sides {
		if len(s.wallets) < consensusMinWhales {
			continue
		}
		top10 := 0
		for _, tier := range s.wallets {
			if tier == whales.TierTop10 {
				top10++
			}
		}

		move := 0.08 + 0.02*float64(len(s.wallets)-consensusMinWhales)
		if top10 >= consensusMinWhales {
			move = 0.20
		}
		if move > 0.25 {
			move = 0.25
		}

		dir := types.DirectionUp
		action := ActionBuyYes
		if outcome == types.OutcomeNo {
			dir = types.DirectionDown
			action = ActionBuyNo
		}
		confidence := types.ConfidenceHigh
		if top10 >= consensusMinWhales {
			confidence = types.ConfidenceVeryHigh
		}

		participants := make([]string, 0, len(s.wallets))
		for w := range s.wallets {
			participants = append(participants, w)
		}

		return &Opportunity{
			Type:         TypeWhaleConsensus,
			Direction:    dir,
			Magnitude:    decimal.NewFromFloat(move),
			Confidence:   confidence,
			Action:       action,
			Urgency:      UrgencyImmediate,
			Reason:       "whale consensus",
			Notional:     s.total,
			Participants: participants,
			Score:        float64(s.copyable) * 5,
			DetectedAt:   now,
		}
	}
	return nil
}

// detectExit finds a whale unloading at least half of a $10k+ position
// within two hours. The signal fades the abandoned outcome.
func detectExit(trades []whales.ClassifiedTrade, now time.Time) *Opportunity {
	since := now.Add(-exitWindow)
	minPrior := decimal.NewFromInt(exitMinPriorNotional)
	half := decimal.NewFromFloat(0.5)

	for _, ct := range trades {
		t := ct.Trade
		if t.Timestamp.Before(since) || t.Side != types.SideSell {
			continue
		}
		pos := ct.Position
		if !pos.PeakShares.IsPositive() {
			continue
		}
		priorNotional := pos.PeakShares.Mul(t.Price)
		if priorNotional.LessThan(minPrior) {
			continue
		}
		if pos.NetShares.GreaterThan(pos.PeakShares.Mul(half)) {
			continue
		}

		dir := types.DirectionDown
		if t.Outcome == types.OutcomeNo {
			dir = types.DirectionUp
		}
		return &Opportunity{
			Type:         TypeWhaleExit,
			Direction:    dir,
			Magnitude:    decimal.NewFromFloat(0.08),
			Confidence:   types.ConfidenceHigh,
			Action:       ActionFade,
			Urgency:      UrgencyImmediate,
			Reason:       "whale exit: " + t.Wallet.Hex()[:10],
			Notional:     t.Notional,
			Participants: []string{t.Wallet.Hex()},
			DetectedAt:   now,
		}
	}
	return nil
}
