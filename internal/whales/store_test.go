package whales

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/polyedge/internal/types"
)

var (
	wallet3 = common.HexToAddress("0x3333333333333333333333333333333333333333")
	wallet4 = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

func venueTrade(maker, taker common.Address, takerSide types.Side, price, size float64, at time.Time) VenueTrade {
	p := decimal.NewFromFloat(price)
	s := decimal.NewFromFloat(size)
	return VenueTrade{
		MarketID:  "M",
		AssetID:   "M-yes",
		Outcome:   types.OutcomeYes,
		Maker:     maker,
		Taker:     taker,
		Side:      takerSide,
		Price:     p,
		Size:      s,
		Notional:  p.Mul(s),
		Timestamp: at,
	}
}

func TestWalletStatsRealizedRoundTrip(t *testing.T) {
	store := NewTradeStore()

	store.Append(venueTrade(wallet2, wallet, types.SideBuy, 0.40, 100, base))
	store.Append(venueTrade(wallet2, wallet, types.SideSell, 0.50, 100, base.Add(2*time.Hour)))

	stats := store.WalletStats(wallet, 7*24*time.Hour, base.Add(3*time.Hour))

	assert.Equal(t, 2, stats.TradeCount)
	// 100 shares bought at 0.40 and sold at 0.50.
	assert.True(t, stats.PnL.Equal(decimal.NewFromInt(10)), "got %s", stats.PnL)
	assert.InDelta(t, 1.0, stats.WinRate, 1e-9)
	assert.InDelta(t, 2.0, stats.AvgHoldHours, 1e-9)
	assert.True(t, stats.Volume.Equal(decimal.NewFromInt(90)))
	// Taker on both fills.
	assert.InDelta(t, 0.0, stats.MakerRatio, 1e-9)
	// Single realization has no spread.
	assert.InDelta(t, 0.0, stats.PnLVolatility, 1e-9)
}

func TestWalletStatsResolvesMakerSide(t *testing.T) {
	store := NewTradeStore()

	// The wallet takes a long, then sits as maker while a taker buys,
	// which is the wallet selling.
	store.Append(venueTrade(wallet2, wallet, types.SideBuy, 0.40, 100, base))
	store.Append(venueTrade(wallet, wallet2, types.SideBuy, 0.50, 100, base.Add(time.Hour)))

	stats := store.WalletStats(wallet, 7*24*time.Hour, base.Add(2*time.Hour))

	assert.True(t, stats.PnL.Equal(decimal.NewFromInt(10)), "got %s", stats.PnL)
	assert.InDelta(t, 0.5, stats.MakerRatio, 1e-9)
}

func TestWalletStatsEarlyEntryScore(t *testing.T) {
	store := NewTradeStore()

	// Establish the market's observed range with unrelated wallets.
	store.Append(venueTrade(wallet3, wallet4, types.SideBuy, 0.10, 10, base))
	store.Append(venueTrade(wallet3, wallet4, types.SideBuy, 0.70, 10, base.Add(time.Minute)))

	// One buy in the cheapest third (below 0.30), one above it.
	store.Append(venueTrade(wallet2, wallet, types.SideBuy, 0.25, 100, base.Add(2*time.Minute)))
	store.Append(venueTrade(wallet2, wallet, types.SideBuy, 0.60, 100, base.Add(3*time.Minute)))

	stats := store.WalletStats(wallet, 7*24*time.Hour, base.Add(time.Hour))
	assert.InDelta(t, 50.0, stats.EarlyEntryScore, 1e-9)
}

func TestTradesByWalletMatchesEitherSide(t *testing.T) {
	store := NewTradeStore()

	store.Append(venueTrade(wallet, wallet2, types.SideBuy, 0.50, 10, base))
	store.Append(venueTrade(wallet3, wallet, types.SideSell, 0.50, 10, base.Add(time.Minute)))
	store.Append(venueTrade(wallet3, wallet4, types.SideBuy, 0.50, 10, base.Add(2*time.Minute)))

	require.Len(t, store.TradesByWallet(wallet, base), 2)
	assert.Len(t, store.TradesByWallet(wallet, base.Add(time.Minute)), 1)
	assert.Len(t, store.TradesByMarket("M", base), 3)
	assert.Empty(t, store.TradesByMarket("other", base))
	assert.Equal(t, 3, store.Len())
}

func TestWalletStatsEmptyWindow(t *testing.T) {
	store := NewTradeStore()
	store.Append(venueTrade(wallet2, wallet, types.SideBuy, 0.40, 100, base))

	// Window starts after the only trade.
	stats := store.WalletStats(wallet, time.Hour, base.Add(48*time.Hour))
	assert.Equal(t, 0, stats.TradeCount)
	assert.True(t, stats.Volume.IsZero())
	assert.True(t, stats.PnL.IsZero())
}
