package whales

import (
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/polyedge/internal/types"
)

func rankedAddr(i int) common.Address {
	return common.HexToAddress(fmt.Sprintf("0x%040x", i+1))
}

func throwawayAddr(i int) common.Address {
	return common.HexToAddress(fmt.Sprintf("0x%040x", 0x10000+i))
}

// seedRoundTrips gives each of n wallets two buys and two sells with
// sizes decreasing by rank, against one-off counterparties that never
// meet the trade-count minimum.
func seedRoundTrips(store *TradeStore, n int, at time.Time) {
	seq := 0
	for i := 0; i < n; i++ {
		w := rankedAddr(i)
		size := float64((n - i) * 100)
		legs := []struct {
			side  types.Side
			price float64
		}{
			{types.SideBuy, 0.40},
			{types.SideBuy, 0.40},
			{types.SideSell, 0.50},
			{types.SideSell, 0.50},
		}
		for j, leg := range legs {
			tr := venueTrade(throwawayAddr(seq), w, leg.side, leg.price, size, at.Add(time.Duration(i*10+j)*time.Minute))
			store.Append(tr)
			seq++
		}
	}
}

func TestRebuildAssignsTiersByRank(t *testing.T) {
	store := NewTradeStore()
	now := base.Add(24 * time.Hour)
	seedRoundTrips(store, 12, base)

	u := NewUniverse(store, UniverseOptions{MinTrades: 3, MinVolume: decimal.NewFromInt(100)})
	u.Rebuild(now)

	// Ranks 0..9 hold top10 (top 5 of either ladder, or top 10 of both);
	// ranks 10 and 11 land in top50.
	for i := 0; i < 12; i++ {
		w, ok := u.Lookup(rankedAddr(i))
		require.True(t, ok, "rank %d missing", i)
		want := TierTop10
		if i >= 10 {
			want = TierTop50
		}
		assert.Equal(t, want, w.Tier, "rank %d", i)
	}

	// One-off counterparties never qualify.
	assert.False(t, u.Contains(throwawayAddr(0)))
	assert.Len(t, u.Whales(), 12)
}

func TestRebuildEnforcesMinima(t *testing.T) {
	store := NewTradeStore()
	// Two trades only, below the trade-count minimum.
	store.Append(venueTrade(wallet2, wallet, types.SideBuy, 0.40, 50000, base))
	store.Append(venueTrade(wallet2, wallet, types.SideSell, 0.50, 50000, base.Add(time.Hour)))

	u := NewUniverse(store, UniverseOptions{MinTrades: 10, MinVolume: decimal.NewFromInt(100)})
	u.Rebuild(base.Add(24 * time.Hour))

	assert.False(t, u.Contains(wallet))
}

func TestRebuildKeepsBootstrapWallets(t *testing.T) {
	store := NewTradeStore()
	u := NewUniverse(store, UniverseOptions{
		MinTrades: 10,
		MinVolume: decimal.NewFromInt(10000),
		Bootstrap: []common.Address{wallet},
	})

	w, ok := u.Lookup(wallet)
	require.True(t, ok)
	assert.Equal(t, TierTracked, w.Tier)

	// No trade data at all; the bootstrap entry survives the rebuild.
	u.Rebuild(base.Add(24 * time.Hour))
	w, ok = u.Lookup(wallet)
	require.True(t, ok)
	assert.Equal(t, TierTracked, w.Tier)
}

func TestRebuildCarriesDisplayName(t *testing.T) {
	store := NewTradeStore()
	seedRoundTrips(store, 1, base)

	u := NewUniverse(store, UniverseOptions{
		MinTrades: 3,
		MinVolume: decimal.NewFromInt(100),
		Bootstrap: []common.Address{rankedAddr(0)},
	})
	w, ok := u.Lookup(rankedAddr(0))
	require.True(t, ok)
	w.DisplayName = "gambler"

	u.Rebuild(base.Add(24 * time.Hour))

	w, ok = u.Lookup(rankedAddr(0))
	require.True(t, ok)
	assert.Equal(t, "gambler", w.DisplayName)
	// Trade data upgraded the bootstrap entry off the tracked tier.
	assert.NotEqual(t, TierTracked, w.Tier)
	assert.False(t, u.LastRebuild().IsZero())
}
