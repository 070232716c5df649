package edge

import (
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/polyedge/internal/config"
	"github.com/web3guy0/polyedge/internal/truthlink"
	"github.com/web3guy0/polyedge/internal/types"
	"github.com/web3guy0/polyedge/internal/whales"
)

var now = time.Date(2026, 8, 1, 15, 0, 0, 0, time.UTC)

func whaleAddr(i int) common.Address {
	return common.HexToAddress(fmt.Sprintf("0x%040x", i+1))
}

func classifiedBuy(w int, tier whales.Tier, suitability float64, outcome types.Outcome, price, size float64, at time.Time) whales.ClassifiedTrade {
	p := decimal.NewFromFloat(price)
	s := decimal.NewFromFloat(size)
	return whales.ClassifiedTrade{
		Trade: whales.WhaleTrade{
			Whale:     &whales.Whale{Address: whaleAddr(w), Tier: tier, CopySuitability: suitability},
			Wallet:    whaleAddr(w),
			MarketID:  "M",
			Outcome:   outcome,
			Side:      types.SideBuy,
			Price:     p,
			Size:      s,
			Notional:  p.Mul(s),
			Timestamp: at,
		},
		Behavior: whales.BehaviorStack,
	}
}

func testQuality() *QualityFilter {
	return NewQualityFilter(&config.Config{
		QualityHighVolume:   decimal.NewFromInt(100000),
		QualityHighSpread:   decimal.NewFromFloat(0.02),
		QualityHighTrades:   100,
		QualityMediumVolume: decimal.NewFromInt(25000),
		QualityMediumSpread: decimal.NewFromFloat(0.05),
		QualityMediumTrades: 25,
		QualityLowVolume:    decimal.NewFromInt(5000),
		QualityLowSpread:    decimal.NewFromFloat(0.10),
		QualityLowTrades:    10,
	})
}

func TestQualityTiers(t *testing.T) {
	f := testQuality()

	assert.Equal(t, QualityHigh,
		f.Assess(decimal.NewFromInt(200000), decimal.NewFromFloat(0.01), 500))
	assert.Equal(t, QualityMedium,
		f.Assess(decimal.NewFromInt(30000), decimal.NewFromFloat(0.04), 50))
	assert.Equal(t, QualityLow,
		f.Assess(decimal.NewFromInt(6000), decimal.NewFromFloat(0.08), 15))
	assert.Equal(t, QualityGarbage,
		f.Assess(decimal.NewFromInt(100), decimal.NewFromFloat(0.30), 2))
	// No book observed yet: zero spread does not disqualify.
	assert.Equal(t, QualityHigh,
		f.Assess(decimal.NewFromInt(200000), decimal.Zero, 500))
}

func TestDetectAccumulation(t *testing.T) {
	// One top-50 whale, three buys, $21k, price barely moved.
	trades := []whales.ClassifiedTrade{
		classifiedBuy(0, whales.TierTop50, 80, types.OutcomeYes, 0.50, 14000, now.Add(-90*time.Minute)),
		classifiedBuy(0, whales.TierTop50, 80, types.OutcomeYes, 0.50, 14000, now.Add(-60*time.Minute)),
		classifiedBuy(0, whales.TierTop50, 80, types.OutcomeYes, 0.50, 14000, now.Add(-30*time.Minute)),
	}

	opp := detectAccumulation(trades, decimal.NewFromFloat(0.505), now)
	require.NotNil(t, opp)
	assert.Equal(t, TypeWhaleAccumulation, opp.Type)
	// Copy-suitable whale: follow the wallet instead of a naked buy.
	assert.Equal(t, ActionCopy, opp.Action)
	assert.Equal(t, UrgencyHours, opp.Urgency)
	assert.Equal(t, types.DirectionUp, opp.Direction)
	assert.True(t, opp.Magnitude.Equal(decimal.NewFromFloat(0.05)))
	// Copy-suitable whale pre-seeds the score.
	assert.InDelta(t, 5.0, opp.Score, 1e-9)
}

func TestDetectAccumulationTop10ModestFlow(t *testing.T) {
	// Ladder of fills drifting 0.41 to 0.43, about $26k total.
	trades := []whales.ClassifiedTrade{
		classifiedBuy(0, whales.TierTop10, 80, types.OutcomeYes, 0.41, 20000, now.Add(-55*time.Minute)),
		classifiedBuy(0, whales.TierTop10, 80, types.OutcomeYes, 0.42, 17000, now.Add(-40*time.Minute)),
		classifiedBuy(0, whales.TierTop10, 80, types.OutcomeYes, 0.42, 14000, now.Add(-25*time.Minute)),
		classifiedBuy(0, whales.TierTop10, 80, types.OutcomeYes, 0.43, 11000, now.Add(-10*time.Minute)),
	}

	// Two points of drift is still inside the quiet band.
	opp := detectAccumulation(trades, decimal.NewFromFloat(0.43), now)
	require.NotNil(t, opp)
	assert.True(t, opp.Magnitude.Equal(decimal.NewFromFloat(0.15)), "got %s", opp.Magnitude)
	assert.Equal(t, types.ConfidenceHigh, opp.Confidence)
	assert.Equal(t, ActionCopy, opp.Action)
	assert.Equal(t, UrgencyHours, opp.Urgency)
}

func TestDetectAccumulationTop10SizesMove(t *testing.T) {
	trades := []whales.ClassifiedTrade{
		classifiedBuy(0, whales.TierTop10, 50, types.OutcomeYes, 0.50, 80000, now.Add(-90*time.Minute)),
		classifiedBuy(0, whales.TierTop10, 50, types.OutcomeYes, 0.50, 80000, now.Add(-60*time.Minute)),
		classifiedBuy(0, whales.TierTop10, 50, types.OutcomeYes, 0.50, 80000, now.Add(-30*time.Minute)),
	}

	opp := detectAccumulation(trades, decimal.NewFromFloat(0.50), now)
	require.NotNil(t, opp)
	// Top-10 whale with $120k of flow.
	assert.True(t, opp.Magnitude.Equal(decimal.NewFromFloat(0.15)), "got %s", opp.Magnitude)
	assert.Equal(t, types.ConfidenceVeryHigh, opp.Confidence)
}

func TestDetectAccumulationRejectsMovedPrice(t *testing.T) {
	trades := []whales.ClassifiedTrade{
		classifiedBuy(0, whales.TierTop50, 80, types.OutcomeYes, 0.50, 14000, now.Add(-90*time.Minute)),
		classifiedBuy(0, whales.TierTop50, 80, types.OutcomeYes, 0.50, 14000, now.Add(-60*time.Minute)),
		classifiedBuy(0, whales.TierTop50, 80, types.OutcomeYes, 0.50, 14000, now.Add(-30*time.Minute)),
	}

	// Price already ran three points: the market caught up, no edge left.
	assert.Nil(t, detectAccumulation(trades, decimal.NewFromFloat(0.53), now))
}

func TestDetectConsensus(t *testing.T) {
	trades := []whales.ClassifiedTrade{
		classifiedBuy(0, whales.TierTop50, 80, types.OutcomeYes, 0.50, 1000, now.Add(-3*time.Hour)),
		classifiedBuy(1, whales.TierTop50, 80, types.OutcomeYes, 0.51, 1000, now.Add(-2*time.Hour)),
		classifiedBuy(2, whales.TierTop50, 40, types.OutcomeYes, 0.52, 1000, now.Add(-time.Hour)),
	}

	opp := detectConsensus(trades, now)
	require.NotNil(t, opp)
	assert.Equal(t, TypeWhaleConsensus, opp.Type)
	assert.Equal(t, UrgencyImmediate, opp.Urgency)
	assert.Equal(t, ActionBuyYes, opp.Action)
	assert.True(t, opp.Magnitude.Equal(decimal.NewFromFloat(0.08)), "got %s", opp.Magnitude)
	assert.Equal(t, types.ConfidenceHigh, opp.Confidence)
	assert.Len(t, opp.Participants, 3)
	// Two of the three whales are copy-suitable.
	assert.InDelta(t, 10.0, opp.Score, 1e-9)
}

func TestDetectConsensusAllTop10(t *testing.T) {
	trades := []whales.ClassifiedTrade{
		classifiedBuy(0, whales.TierTop10, 50, types.OutcomeNo, 0.40, 1000, now.Add(-3*time.Hour)),
		classifiedBuy(1, whales.TierTop10, 50, types.OutcomeNo, 0.41, 1000, now.Add(-2*time.Hour)),
		classifiedBuy(2, whales.TierTop10, 50, types.OutcomeNo, 0.42, 1000, now.Add(-time.Hour)),
	}

	opp := detectConsensus(trades, now)
	require.NotNil(t, opp)
	assert.True(t, opp.Magnitude.Equal(decimal.NewFromFloat(0.20)))
	assert.Equal(t, types.ConfidenceVeryHigh, opp.Confidence)
	assert.Equal(t, ActionBuyNo, opp.Action)
	assert.Equal(t, types.DirectionDown, opp.Direction)
}

func TestDetectExitFadesAbandonedOutcome(t *testing.T) {
	sell := classifiedBuy(0, whales.TierTop10, 50, types.OutcomeYes, 0.50, 18000, now.Add(-time.Hour))
	sell.Trade.Side = types.SideSell
	sell.Position = whales.Position{
		PeakShares: decimal.NewFromInt(30000),
		NetShares:  decimal.NewFromInt(12000),
	}

	opp := detectExit([]whales.ClassifiedTrade{sell}, now)
	require.NotNil(t, opp)
	assert.Equal(t, TypeWhaleExit, opp.Type)
	assert.Equal(t, ActionFade, opp.Action)
	assert.Equal(t, types.DirectionDown, opp.Direction)
	assert.Equal(t, UrgencyImmediate, opp.Urgency)
}

func TestDetectExitIgnoresSmallPositions(t *testing.T) {
	sell := classifiedBuy(0, whales.TierTop10, 50, types.OutcomeYes, 0.50, 500, now.Add(-time.Hour))
	sell.Trade.Side = types.SideSell
	sell.Position = whales.Position{
		PeakShares: decimal.NewFromInt(1000),
		NetShares:  decimal.NewFromInt(100),
	}

	assert.Nil(t, detectExit([]whales.ClassifiedTrade{sell}, now))
}

// ─── scan plumbing ───────────────────────────────────────────────────

type stubCatalog struct{ markets map[string]truthlink.TrackedMarket }

func (s stubCatalog) TrackedMarkets() map[string]truthlink.TrackedMarket { return s.markets }

type stubQuoter struct {
	mid    decimal.Decimal
	spread decimal.Decimal
}

func (s stubQuoter) CurrentMid(string) (decimal.Decimal, bool)    { return s.mid, true }
func (s stubQuoter) CurrentSpread(string) (decimal.Decimal, bool) { return s.spread, true }

type stubFlow struct{ trades []whales.ClassifiedTrade }

func (s stubFlow) RecentTrades(string, time.Time) []whales.ClassifiedTrade { return s.trades }

func liquidMarket() truthlink.TrackedMarket {
	return truthlink.TrackedMarket{Market: types.Market{
		AssetID:       "A",
		ConditionID:   "M",
		Question:      "Will it happen?",
		OutcomePrices: []decimal.Decimal{decimal.NewFromFloat(0.50), decimal.NewFromFloat(0.50)},
		Volume24h:     decimal.NewFromInt(200000),
		TradeCount24h: 500,
		Active:        true,
	}}
}

func consensusTrades() []whales.ClassifiedTrade {
	return []whales.ClassifiedTrade{
		classifiedBuy(0, whales.TierTop50, 80, types.OutcomeYes, 0.50, 1000, now.Add(-3*time.Hour)),
		classifiedBuy(1, whales.TierTop50, 80, types.OutcomeYes, 0.51, 1000, now.Add(-2*time.Hour)),
		classifiedBuy(2, whales.TierTop50, 40, types.OutcomeYes, 0.52, 1000, now.Add(-time.Hour)),
	}
}

func TestScanMarketCooldownSuppressesRepeats(t *testing.T) {
	d := NewDetector(
		stubCatalog{markets: map[string]truthlink.TrackedMarket{"A": liquidMarket()}},
		stubQuoter{mid: decimal.NewFromFloat(0.50), spread: decimal.NewFromFloat(0.01)},
		stubFlow{trades: consensusTrades()},
		testQuality(),
		DefaultOptions(),
	)

	opps := d.scan(now)
	require.Len(t, opps, 1)
	assert.Equal(t, "M", opps[0].MarketID)
	assert.Equal(t, "A", opps[0].AssetID)
	assert.Positive(t, opps[0].Score)

	// Inside the 5-minute market cooldown nothing re-emits.
	assert.Empty(t, d.scan(now.Add(time.Minute)))

	// After the cooldown the same condition fires again.
	assert.Len(t, d.scan(now.Add(6*time.Minute)), 1)
}

func TestScanSkipsGarbageMarkets(t *testing.T) {
	m := liquidMarket()
	m.Market.Volume24h = decimal.NewFromInt(100)
	m.Market.TradeCount24h = 2

	d := NewDetector(
		stubCatalog{markets: map[string]truthlink.TrackedMarket{"A": m}},
		stubQuoter{mid: decimal.NewFromFloat(0.50), spread: decimal.NewFromFloat(0.01)},
		stubFlow{trades: consensusTrades()},
		testQuality(),
		DefaultOptions(),
	)

	assert.Empty(t, d.scan(now))
}

func TestScanNotifiesListeners(t *testing.T) {
	// Trades anchored to wall-clock time since Scan stamps its own now.
	wall := time.Now()
	trades := []whales.ClassifiedTrade{
		classifiedBuy(0, whales.TierTop50, 80, types.OutcomeYes, 0.50, 1000, wall.Add(-3*time.Hour)),
		classifiedBuy(1, whales.TierTop50, 80, types.OutcomeYes, 0.51, 1000, wall.Add(-2*time.Hour)),
		classifiedBuy(2, whales.TierTop50, 40, types.OutcomeYes, 0.52, 1000, wall.Add(-time.Hour)),
	}

	d := NewDetector(
		stubCatalog{markets: map[string]truthlink.TrackedMarket{"A": liquidMarket()}},
		stubQuoter{mid: decimal.NewFromFloat(0.50), spread: decimal.NewFromFloat(0.01)},
		stubFlow{trades: trades},
		testQuality(),
		DefaultOptions(),
	)

	var first, second []Opportunity
	d.AddListener(func(o Opportunity) { first = append(first, o) })
	d.AddListener(func(o Opportunity) { second = append(second, o) })

	resp := d.Scan()
	require.Len(t, resp.Opportunities, 1)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, resp.Opportunities[0].MarketID, first[0].MarketID)
}

func TestScanResponseCaches(t *testing.T) {
	d := NewDetector(
		stubCatalog{markets: map[string]truthlink.TrackedMarket{}},
		stubQuoter{},
		stubFlow{},
		testQuality(),
		DefaultOptions(),
	)

	first := d.Scan()
	assert.False(t, first.Cached)
	second := d.Scan()
	assert.True(t, second.Cached)
	assert.Equal(t, first.GeneratedAt, second.GeneratedAt)
}
