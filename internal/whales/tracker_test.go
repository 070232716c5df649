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

func newBootstrapTracker() *Tracker {
	return NewTracker(UniverseOptions{
		MinTrades: 10,
		MinVolume: decimal.NewFromInt(10000),
		Bootstrap: []common.Address{wallet},
	}, time.Hour)
}

func TestProcessFansOutToAllListeners(t *testing.T) {
	tr := newBootstrapTracker()

	var first, second []ClassifiedTrade
	tr.AddListener(func(ct ClassifiedTrade) { first = append(first, ct) })
	tr.AddListener(func(ct ClassifiedTrade) { second = append(second, ct) })

	tr.Process(venueTrade(wallet2, wallet, types.SideBuy, 0.40, 1000, base))

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, wallet, first[0].Trade.Wallet)
	assert.Equal(t, types.SideBuy, first[0].Trade.Side)
	assert.False(t, first[0].Trade.IsMaker)
}

func TestProcessLabelsMakerSideOpposite(t *testing.T) {
	tr := newBootstrapTracker()

	var got []ClassifiedTrade
	tr.AddListener(func(ct ClassifiedTrade) { got = append(got, ct) })

	// Tracked whale resting on the maker side of a taker buy.
	tr.Process(venueTrade(wallet, wallet2, types.SideBuy, 0.40, 1000, base))

	require.Len(t, got, 1)
	assert.Equal(t, types.SideSell, got[0].Trade.Side)
	assert.True(t, got[0].Trade.IsMaker)
	assert.Len(t, tr.RecentTrades("", base.Add(-time.Hour)), 1)
}

func TestProcessIgnoresUntrackedWallets(t *testing.T) {
	tr := newBootstrapTracker()

	var got []ClassifiedTrade
	tr.AddListener(func(ct ClassifiedTrade) { got = append(got, ct) })

	tr.Process(venueTrade(wallet2, throwawayAddr(0), types.SideBuy, 0.40, 1000, base))

	assert.Empty(t, got)
	assert.Empty(t, tr.RecentTrades("", base.Add(-time.Hour)))
}
