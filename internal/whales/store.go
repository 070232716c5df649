package whales

import (
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polyedge/internal/types"
)

// retention keeps enough history for 30-day window queries.
const retention = 31 * 24 * time.Hour

// TradeStore is the append-only ordered log of observed venue trades.
// Appends happen from a single writer; reads take snapshots under RLock.
type TradeStore struct {
	mu     sync.RWMutex
	trades []VenueTrade

	// market price range observed so far, for early-entry scoring
	marketLow  map[string]decimal.Decimal
	marketHigh map[string]decimal.Decimal

	appends uint64
}

// NewTradeStore creates an empty trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		marketLow:  make(map[string]decimal.Decimal),
		marketHigh: make(map[string]decimal.Decimal),
	}
}

// Append adds one trade to the log. Trades must arrive in time order per
// the venue contract; mild disorder only degrades window queries.
func (s *TradeStore) Append(t VenueTrade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, t)

	if low, ok := s.marketLow[t.MarketID]; !ok || t.Price.LessThan(low) {
		s.marketLow[t.MarketID] = t.Price
	}
	if high, ok := s.marketHigh[t.MarketID]; !ok || t.Price.GreaterThan(high) {
		s.marketHigh[t.MarketID] = t.Price
	}

	s.appends++
	if s.appends%4096 == 0 {
		s.pruneLocked(t.Timestamp.Add(-retention))
	}
}

func (s *TradeStore) pruneLocked(cutoff time.Time) {
	i := 0
	for i < len(s.trades) && s.trades[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.trades = append([]VenueTrade(nil), s.trades[i:]...)
	}
}

// Len returns the number of retained trades.
func (s *TradeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trades)
}

// TradesByWallet returns trades where the wallet was either counterparty,
// newest last, bounded by since.
func (s *TradeStore) TradesByWallet(wallet common.Address, since time.Time) []VenueTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []VenueTrade
	for _, t := range s.trades {
		if t.Timestamp.Before(since) {
			continue
		}
		if t.Maker == wallet || t.Taker == wallet {
			out = append(out, t)
		}
	}
	return out
}

// TradesByMarket returns trades in a market, bounded by since.
func (s *TradeStore) TradesByMarket(marketID string, since time.Time) []VenueTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []VenueTrade
	for _, t := range s.trades {
		if t.Timestamp.Before(since) {
			continue
		}
		if t.MarketID == marketID {
			out = append(out, t)
		}
	}
	return out
}

// walletFill is one trade from a single wallet's perspective.
type walletFill struct {
	trade   VenueTrade
	side    types.Side
	isMaker bool
}

// fillsByWallet groups the window's trades per wallet, resolving each
// counterparty's effective side.
func (s *TradeStore) fillsByWallet(since time.Time) map[common.Address][]walletFill {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fills := make(map[common.Address][]walletFill)
	for _, t := range s.trades {
		if t.Timestamp.Before(since) {
			continue
		}
		takerSide := t.Side
		makerSide := types.SideSell
		if takerSide == types.SideSell {
			makerSide = types.SideBuy
		}
		fills[t.Taker] = append(fills[t.Taker], walletFill{trade: t, side: takerSide, isMaker: false})
		fills[t.Maker] = append(fills[t.Maker], walletFill{trade: t, side: makerSide, isMaker: true})
	}
	return fills
}

// WalletStats aggregates a single wallet over the window ending now.
func (s *TradeStore) WalletStats(wallet common.Address, window time.Duration, now time.Time) WalletStats {
	fills := s.fillsByWallet(now.Add(-window))[wallet]
	return s.computeStats(wallet, window, fills)
}

// AllWalletStats aggregates every wallet seen in the window.
func (s *TradeStore) AllWalletStats(window time.Duration, now time.Time) map[common.Address]WalletStats {
	byWallet := s.fillsByWallet(now.Add(-window))
	out := make(map[common.Address]WalletStats, len(byWallet))
	for wallet, fills := range byWallet {
		out[wallet] = s.computeStats(wallet, window, fills)
	}
	return out
}

func (s *TradeStore) computeStats(wallet common.Address, window time.Duration, fills []walletFill) WalletStats {
	stats := WalletStats{Wallet: wallet, Window: window, Volume: decimal.Zero, PnL: decimal.Zero, AvgMarketVolume: decimal.Zero}
	if len(fills) == 0 {
		return stats
	}

	// Per (market, outcome) running position for realized PnL and holds.
	type bookState struct {
		net       decimal.Decimal
		vwap      decimal.Decimal
		openedAt  time.Time
	}
	books := make(map[string]*bookState)

	makerFills := 0
	wins, realizations := 0, 0
	earlyBuys, buys := 0, 0
	var pnlSamples []float64
	var holdHoursTotal float64
	holds := 0
	marketNotional := make(map[string]decimal.Decimal)

	for _, f := range fills {
		t := f.trade
		stats.TradeCount++
		stats.Volume = stats.Volume.Add(t.Notional)
		marketNotional[t.MarketID] = marketNotional[t.MarketID].Add(t.Notional)
		if f.isMaker {
			makerFills++
		}

		key := t.MarketID + "|" + string(t.Outcome)
		book, ok := books[key]
		if !ok {
			book = &bookState{net: decimal.Zero, vwap: decimal.Zero}
			books[key] = book
		}

		if f.side == types.SideBuy {
			buys++
			if s.earlyEntry(t.MarketID, t.Price) {
				earlyBuys++
			}
			if !book.net.IsPositive() {
				book.openedAt = t.Timestamp
				book.vwap = t.Price
				book.net = book.net.Add(t.Size)
			} else {
				total := book.net.Add(t.Size)
				book.vwap = book.vwap.Mul(book.net).Add(t.Price.Mul(t.Size)).Div(total)
				book.net = total
			}
			continue
		}

		// Sell: realize against the running long.
		if book.net.IsPositive() {
			covered := decimal.Min(book.net, t.Size)
			pnl := t.Price.Sub(book.vwap).Mul(covered)
			stats.PnL = stats.PnL.Add(pnl)
			pnlSamples = append(pnlSamples, pnl.InexactFloat64())
			realizations++
			if pnl.IsPositive() {
				wins++
			}
			if !book.openedAt.IsZero() {
				holdHoursTotal += t.Timestamp.Sub(book.openedAt).Hours()
				holds++
			}
			book.net = book.net.Sub(covered)
			if !book.net.IsPositive() {
				book.vwap = decimal.Zero
			}
		}
	}

	if stats.TradeCount > 0 {
		stats.MakerRatio = float64(makerFills) / float64(stats.TradeCount)
	}
	if realizations > 0 {
		stats.WinRate = float64(wins) / float64(realizations)
	}
	if holds > 0 {
		stats.AvgHoldHours = holdHoursTotal / float64(holds)
	}
	if buys > 0 {
		stats.EarlyEntryScore = clamp100(100 * float64(earlyBuys) / float64(buys))
	}
	if len(marketNotional) > 0 {
		total := decimal.Zero
		for _, v := range marketNotional {
			total = total.Add(v)
		}
		stats.AvgMarketVolume = total.Div(decimal.NewFromInt(int64(len(marketNotional))))
	}
	stats.PnLVolatility = stddev(pnlSamples)

	return stats
}

// earlyEntry reports whether a buy price sits in the cheapest third of
// the market's observed range.
func (s *TradeStore) earlyEntry(marketID string, price decimal.Decimal) bool {
	s.mu.RLock()
	low, okLow := s.marketLow[marketID]
	high, okHigh := s.marketHigh[marketID]
	s.mu.RUnlock()

	if !okLow || !okHigh || high.LessThanOrEqual(low) {
		return false
	}
	third := high.Sub(low).Div(decimal.NewFromInt(3))
	return price.LessThanOrEqual(low.Add(third))
}

func stddev(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range samples {
		mean += v
	}
	mean /= float64(len(samples))
	variance := 0.0
	for _, v := range samples {
		d := v - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(samples)))
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
