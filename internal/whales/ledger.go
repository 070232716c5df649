package whales

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polyedge/internal/types"
)

// Position is a wallet's running exposure in one (market, outcome).
// NetShares is signed: positive long, negative short (sold ahead of any
// observed buy). VWAP covers the open side only and resets on a
// zero-cross. PeakShares never decreases below |NetShares|.
type Position struct {
	Wallet      common.Address
	MarketID    string
	Outcome     types.Outcome
	NetShares   decimal.Decimal
	VWAP        decimal.Decimal
	PeakShares  decimal.Decimal
	RealizedPnL decimal.Decimal
	FirstTrade  time.Time
	LastTrade   time.Time
	TradeCount  int
}

func positionKey(wallet common.Address, marketID string, outcome types.Outcome) string {
	return wallet.Hex() + "|" + marketID + "|" + string(outcome)
}

// Ledger tracks per-(wallet, market, outcome) positions for every
// tracked whale.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*Position
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[string]*Position)}
}

// Apply folds one whale trade into the ledger and returns a copy of the
// updated position.
func (l *Ledger) Apply(t WhaleTrade) Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := positionKey(t.Wallet, t.MarketID, t.Outcome)
	p, ok := l.positions[key]
	if !ok {
		p = &Position{
			Wallet:      t.Wallet,
			MarketID:    t.MarketID,
			Outcome:     t.Outcome,
			NetShares:   decimal.Zero,
			VWAP:        decimal.Zero,
			PeakShares:  decimal.Zero,
			RealizedPnL: decimal.Zero,
			FirstTrade:  t.Timestamp,
		}
		l.positions[key] = p
	}

	signed := t.Size
	if t.Side == types.SideSell {
		signed = t.Size.Neg()
	}

	prev := p.NetShares
	next := prev.Add(signed)

	switch {
	case prev.IsZero():
		// Opening a fresh position in either direction.
		p.VWAP = t.Price

	case prev.Sign() == signed.Sign():
		// Adding to the open side: blend the VWAP.
		total := prev.Abs().Add(t.Size)
		p.VWAP = p.VWAP.Mul(prev.Abs()).Add(t.Price.Mul(t.Size)).Div(total)

	case next.Sign() == prev.Sign() || next.IsZero():
		// Reducing without crossing zero: realize against VWAP.
		realized := t.Price.Sub(p.VWAP).Mul(t.Size)
		if prev.Sign() < 0 {
			realized = realized.Neg()
		}
		p.RealizedPnL = p.RealizedPnL.Add(realized)
		if next.IsZero() {
			p.VWAP = decimal.Zero
		}

	default:
		// Zero-cross: realize the old side fully, open the remainder at
		// the trade price.
		closed := prev.Abs()
		realized := t.Price.Sub(p.VWAP).Mul(closed)
		if prev.Sign() < 0 {
			realized = realized.Neg()
		}
		p.RealizedPnL = p.RealizedPnL.Add(realized)
		p.VWAP = t.Price
	}

	p.NetShares = next
	if abs := next.Abs(); abs.GreaterThan(p.PeakShares) {
		p.PeakShares = abs
	}
	p.LastTrade = t.Timestamp
	p.TradeCount++

	// PeakShares >= |NetShares| must hold after every mutation. A
	// violation means corrupted state, so reset rather than propagate.
	if p.PeakShares.LessThan(p.NetShares.Abs()) {
		log.Error().
			Str("wallet", t.Wallet.Hex()).
			Str("market", t.MarketID).
			Str("peak", p.PeakShares.String()).
			Str("net", p.NetShares.String()).
			Msg("Position invariant violated, resetting")
		p.NetShares = signed
		p.VWAP = t.Price
		p.PeakShares = signed.Abs()
		p.RealizedPnL = decimal.Zero
	}

	return *p
}

// Position returns a copy of the position, if any.
func (l *Ledger) Position(wallet common.Address, marketID string, outcome types.Outcome) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[positionKey(wallet, marketID, outcome)]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// WalletPositions returns copies of all of a wallet's open or
// previously open positions.
func (l *Ledger) WalletPositions(wallet common.Address) []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Position
	for _, p := range l.positions {
		if p.Wallet == wallet {
			out = append(out, *p)
		}
	}
	return out
}

// MarketPositions returns copies of all positions in a market.
func (l *Ledger) MarketPositions(marketID string) []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Position
	for _, p := range l.positions {
		if p.MarketID == marketID {
			out = append(out, *p)
		}
	}
	return out
}
