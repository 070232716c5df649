package whales

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polyedge/internal/types"
)

// Behavior labels what a whale trade looks like in context.
type Behavior string

const (
	BehaviorScoop    Behavior = "SCOOP"    // buying near-worthless shares
	BehaviorLock     Behavior = "LOCK"     // buying near-certain shares
	BehaviorTail     Behavior = "TAIL"     // longshot entry or near-certain sale
	BehaviorExit     Behavior = "EXIT"     // dumping an accumulated position
	BehaviorFlip     Behavior = "FLIP"     // switching sides within minutes
	BehaviorArb      Behavior = "ARB"      // buying both outcomes
	BehaviorScalp    Behavior = "SCALP"    // quick round trip
	BehaviorDCA      Behavior = "DCA"      // patient spaced accumulation
	BehaviorStack    Behavior = "STACK"    // repeated sizing into one outcome
	BehaviorHedge    Behavior = "HEDGE"    // offsetting an existing long
	BehaviorFade     Behavior = "FADE"     // buying against a sharp move
	BehaviorChase    Behavior = "CHASE"    // buying with a sharp move
	BehaviorStandard Behavior = "STANDARD" // nothing notable
)

const (
	scoopMaxPrice  = 0.01
	lockMinPrice   = 0.97
	tailBuyMax     = 0.03
	tailSellMin    = 0.97
	flipWindow     = 30 * time.Minute
	arbWindow      = 5 * time.Minute
	scalpWindow    = time.Hour
	dcaWindow      = 4 * time.Hour
	dcaMinSpread   = 2 * time.Hour
	stackWindow    = 24 * time.Hour
	moveWindow     = 30 * time.Minute
	moveThreshold  = 0.05
	historyMax     = 24 * time.Hour
)

// pastTrade is a pruned record of one prior whale trade in a market.
type pastTrade struct {
	outcome   types.Outcome
	side      types.Side
	price     decimal.Decimal
	size      decimal.Decimal
	notional  decimal.Decimal
	timestamp time.Time
}

type pricePoint struct {
	price     decimal.Decimal
	timestamp time.Time
}

// Classifier labels whale trades against per-wallet trade history, the
// position ledger and recent market prices. Classify must run before
// the ledger absorbs the trade so positions reflect pre-trade state.
type Classifier struct {
	mu      sync.Mutex
	history map[string][]pastTrade // wallet|market
	prices  map[string][]pricePoint
	ledger  *Ledger
}

// NewClassifier builds a classifier over the given ledger.
func NewClassifier(ledger *Ledger) *Classifier {
	return &Classifier{
		history: make(map[string][]pastTrade),
		prices:  make(map[string][]pricePoint),
		ledger:  ledger,
	}
}

func historyKey(wallet common.Address, marketID string) string {
	return wallet.Hex() + "|" + marketID
}

// ObservePrice records a market trade price for fade/chase detection.
// Every venue trade feeds this, not just whale trades.
func (c *Classifier) ObservePrice(marketID string, price decimal.Decimal, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pts := append(c.prices[marketID], pricePoint{price: price, timestamp: ts})
	cutoff := ts.Add(-moveWindow)
	i := 0
	for i < len(pts) && pts[i].timestamp.Before(cutoff) {
		i++
	}
	c.prices[marketID] = pts[i:]
}

// Classify labels the trade. Rules are checked in priority order and
// the first match wins, so every trade gets exactly one label.
func (c *Classifier) Classify(t WhaleTrade) Behavior {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := historyKey(t.Wallet, t.MarketID)
	hist := c.pruneHistory(key, t.Timestamp)
	price := t.Price.InexactFloat64()

	defer c.recordLocked(key, t)

	isBuy := t.Side == types.SideBuy

	if isBuy && price <= scoopMaxPrice {
		return BehaviorScoop
	}
	if isBuy && price >= lockMinPrice {
		return BehaviorLock
	}
	if (isBuy && price <= tailBuyMax) || (!isBuy && price >= tailSellMin) {
		return BehaviorTail
	}

	if !isBuy && c.isExit(t) {
		return BehaviorExit
	}

	if isBuy && recentOppositeSell(hist, t) {
		return BehaviorFlip
	}
	if isBuy && recentOppositeBuy(hist, t) {
		return BehaviorArb
	}
	if !isBuy && recentSameOutcomeBuy(hist, t) {
		return BehaviorScalp
	}
	if isBuy && isDCA(hist, t) {
		return BehaviorDCA
	}
	if isBuy && isStack(hist, t) {
		return BehaviorStack
	}
	if c.isHedge(t) {
		return BehaviorHedge
	}

	if isBuy {
		if move, ok := c.recentMove(t.MarketID, t.Timestamp); ok {
			if move <= -moveThreshold {
				return BehaviorFade
			}
			if move >= moveThreshold {
				return BehaviorChase
			}
		}
	}

	return BehaviorStandard
}

func (c *Classifier) pruneHistory(key string, now time.Time) []pastTrade {
	hist := c.history[key]
	cutoff := now.Add(-historyMax)
	i := 0
	for i < len(hist) && hist[i].timestamp.Before(cutoff) {
		i++
	}
	hist = hist[i:]
	c.history[key] = hist
	return hist
}

func (c *Classifier) recordLocked(key string, t WhaleTrade) {
	c.history[key] = append(c.history[key], pastTrade{
		outcome:   t.Outcome,
		side:      t.Side,
		price:     t.Price,
		size:      t.Size,
		notional:  t.Notional,
		timestamp: t.Timestamp,
	})
}

// isExit reports whether a sell unloads most of an accumulated long:
// at least 80% of the current net position, or at least half of the
// position's historical peak.
func (c *Classifier) isExit(t WhaleTrade) bool {
	pos, ok := c.ledger.Position(t.Wallet, t.MarketID, t.Outcome)
	if !ok || !pos.NetShares.IsPositive() {
		return false
	}
	if t.Size.GreaterThanOrEqual(pos.NetShares.Mul(decimal.NewFromFloat(0.8))) {
		return true
	}
	return pos.PeakShares.IsPositive() &&
		t.Size.GreaterThanOrEqual(pos.PeakShares.Mul(decimal.NewFromFloat(0.5)))
}

// isHedge detects offsets of existing exposure: buying the opposite
// outcome at a meaningful fraction of an open long, or trimming at
// least a quarter of one.
func (c *Classifier) isHedge(t WhaleTrade) bool {
	if t.Side == types.SideBuy {
		opp, ok := c.ledger.Position(t.Wallet, t.MarketID, t.Outcome.Opposite())
		if !ok || !opp.NetShares.IsPositive() {
			return false
		}
		return t.Size.GreaterThanOrEqual(opp.NetShares.Mul(decimal.NewFromFloat(0.10)))
	}
	pos, ok := c.ledger.Position(t.Wallet, t.MarketID, t.Outcome)
	if !ok || !pos.NetShares.IsPositive() {
		return false
	}
	return t.Size.GreaterThanOrEqual(pos.NetShares.Mul(decimal.NewFromFloat(0.25)))
}

func recentOppositeSell(hist []pastTrade, t WhaleTrade) bool {
	cutoff := t.Timestamp.Add(-flipWindow)
	for _, h := range hist {
		if h.timestamp.Before(cutoff) {
			continue
		}
		if h.side == types.SideSell && h.outcome == t.Outcome.Opposite() {
			return true
		}
	}
	return false
}

func recentOppositeBuy(hist []pastTrade, t WhaleTrade) bool {
	cutoff := t.Timestamp.Add(-arbWindow)
	for _, h := range hist {
		if h.timestamp.Before(cutoff) {
			continue
		}
		if h.side == types.SideBuy && h.outcome == t.Outcome.Opposite() {
			return true
		}
	}
	return false
}

func recentSameOutcomeBuy(hist []pastTrade, t WhaleTrade) bool {
	cutoff := t.Timestamp.Add(-scalpWindow)
	for _, h := range hist {
		if h.timestamp.Before(cutoff) {
			continue
		}
		if h.side == types.SideBuy && h.outcome == t.Outcome {
			return true
		}
	}
	return false
}

// isDCA looks for patient accumulation: counting this trade, at least
// three same-outcome buys inside four hours, spread over at least two
// hours first to last, with every price within 5% of their mean.
func isDCA(hist []pastTrade, t WhaleTrade) bool {
	cutoff := t.Timestamp.Add(-dcaWindow)
	var buys []pastTrade
	for _, h := range hist {
		if h.timestamp.Before(cutoff) || h.side != types.SideBuy || h.outcome != t.Outcome {
			continue
		}
		buys = append(buys, h)
	}
	buys = append(buys, pastTrade{outcome: t.Outcome, side: t.Side, price: t.Price, timestamp: t.Timestamp})
	if len(buys) < 3 {
		return false
	}
	if t.Timestamp.Sub(buys[0].timestamp) < dcaMinSpread {
		return false
	}

	sum := decimal.Zero
	for _, b := range buys {
		sum = sum.Add(b.price)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(buys))))
	if mean.IsZero() {
		return false
	}
	band := mean.Mul(decimal.NewFromFloat(0.05))
	for _, b := range buys {
		if b.price.Sub(mean).Abs().GreaterThan(band) {
			return false
		}
	}
	return true
}

// isStack looks for repeated sizing: counting this trade, at least
// three same-outcome buys inside 24 hours with $1000+ combined.
func isStack(hist []pastTrade, t WhaleTrade) bool {
	cutoff := t.Timestamp.Add(-stackWindow)
	count := 1
	total := t.Notional
	for _, h := range hist {
		if h.timestamp.Before(cutoff) || h.side != types.SideBuy || h.outcome != t.Outcome {
			continue
		}
		count++
		total = total.Add(h.notional)
	}
	return count >= 3 && total.GreaterThanOrEqual(decimal.NewFromInt(1000))
}

// recentMove returns the fractional price change over the last 30
// minutes of observed market prices.
func (c *Classifier) recentMove(marketID string, now time.Time) (float64, bool) {
	pts := c.prices[marketID]
	cutoff := now.Add(-moveWindow)
	var first, last *pricePoint
	for i := range pts {
		if pts[i].timestamp.Before(cutoff) {
			continue
		}
		if first == nil {
			first = &pts[i]
		}
		last = &pts[i]
	}
	if first == nil || last == nil || first == last || first.price.IsZero() {
		return 0, false
	}
	return last.price.Sub(first.price).Div(first.price).InexactFloat64(), true
}
