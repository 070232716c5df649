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
	wallet  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	wallet2 = common.HexToAddress("0x2222222222222222222222222222222222222222")
	base    = time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
)

func whaleTrade(side types.Side, price, size float64, at time.Time) WhaleTrade {
	p := decimal.NewFromFloat(price)
	s := decimal.NewFromFloat(size)
	return WhaleTrade{
		Wallet:    wallet,
		MarketID:  "M",
		Outcome:   types.OutcomeYes,
		Side:      side,
		Price:     p,
		Size:      s,
		Notional:  p.Mul(s),
		Timestamp: at,
	}
}

func TestLedgerVWAPBlendsOnAdds(t *testing.T) {
	l := NewLedger()

	l.Apply(whaleTrade(types.SideBuy, 0.40, 100, base))
	pos := l.Apply(whaleTrade(types.SideBuy, 0.60, 100, base.Add(time.Minute)))

	assert.True(t, pos.NetShares.Equal(decimal.NewFromInt(200)))
	assert.True(t, pos.VWAP.Equal(decimal.NewFromFloat(0.5)), "got %s", pos.VWAP)
	assert.True(t, pos.PeakShares.Equal(decimal.NewFromInt(200)))
}

func TestLedgerRealizesOnReduce(t *testing.T) {
	l := NewLedger()

	l.Apply(whaleTrade(types.SideBuy, 0.40, 100, base))
	pos := l.Apply(whaleTrade(types.SideSell, 0.50, 40, base.Add(time.Minute)))

	assert.True(t, pos.NetShares.Equal(decimal.NewFromInt(60)))
	// 40 shares times a 10-cent gain.
	assert.True(t, pos.RealizedPnL.Equal(decimal.NewFromInt(4)), "got %s", pos.RealizedPnL)
	// VWAP untouched by a partial reduce.
	assert.True(t, pos.VWAP.Equal(decimal.NewFromFloat(0.40)))
	// Peak never decreases.
	assert.True(t, pos.PeakShares.Equal(decimal.NewFromInt(100)))
}

func TestLedgerZeroCrossResetsVWAP(t *testing.T) {
	l := NewLedger()

	l.Apply(whaleTrade(types.SideBuy, 0.40, 100, base))
	pos := l.Apply(whaleTrade(types.SideSell, 0.50, 150, base.Add(time.Minute)))

	// Long 100 crossed to short 50; vwap resets to the crossing price.
	assert.True(t, pos.NetShares.Equal(decimal.NewFromInt(-50)))
	assert.True(t, pos.VWAP.Equal(decimal.NewFromFloat(0.50)))
	// The closed 100 shares realized at +10 cents.
	assert.True(t, pos.RealizedPnL.Equal(decimal.NewFromInt(10)))
}

func TestLedgerFlatResetsVWAPToZero(t *testing.T) {
	l := NewLedger()

	l.Apply(whaleTrade(types.SideBuy, 0.40, 100, base))
	pos := l.Apply(whaleTrade(types.SideSell, 0.50, 100, base.Add(time.Minute)))

	assert.True(t, pos.NetShares.IsZero())
	assert.True(t, pos.VWAP.IsZero())
	assert.True(t, pos.PeakShares.Equal(decimal.NewFromInt(100)))
}

func TestLedgerPeakInvariantHolds(t *testing.T) {
	l := NewLedger()

	trades := []WhaleTrade{
		whaleTrade(types.SideBuy, 0.30, 500, base),
		whaleTrade(types.SideSell, 0.35, 200, base.Add(1*time.Minute)),
		whaleTrade(types.SideBuy, 0.32, 700, base.Add(2*time.Minute)),
		whaleTrade(types.SideSell, 0.40, 900, base.Add(3*time.Minute)),
		whaleTrade(types.SideSell, 0.45, 300, base.Add(4*time.Minute)),
		whaleTrade(types.SideBuy, 0.44, 1000, base.Add(5*time.Minute)),
	}
	for _, tr := range trades {
		pos := l.Apply(tr)
		assert.True(t, pos.PeakShares.GreaterThanOrEqual(pos.NetShares.Abs()),
			"peak %s < |net| %s", pos.PeakShares, pos.NetShares.Abs())
	}
}

func TestLedgerBatchEqualsIncremental(t *testing.T) {
	trades := []WhaleTrade{
		whaleTrade(types.SideBuy, 0.30, 100, base),
		whaleTrade(types.SideBuy, 0.50, 300, base.Add(1*time.Minute)),
		whaleTrade(types.SideSell, 0.60, 250, base.Add(2*time.Minute)),
		whaleTrade(types.SideBuy, 0.55, 50, base.Add(3*time.Minute)),
	}

	// Applying one by one must land on the same net as summing sides.
	l := NewLedger()
	var last Position
	for _, tr := range trades {
		last = l.Apply(tr)
	}

	expected := decimal.Zero
	for _, tr := range trades {
		if tr.Side == types.SideBuy {
			expected = expected.Add(tr.Size)
		} else {
			expected = expected.Sub(tr.Size)
		}
	}
	require.True(t, last.NetShares.Equal(expected), "net %s want %s", last.NetShares, expected)
}

func TestLedgerKeysPositionsByOutcomeAndWallet(t *testing.T) {
	l := NewLedger()

	yes := whaleTrade(types.SideBuy, 0.40, 100, base)
	no := whaleTrade(types.SideBuy, 0.60, 50, base)
	no.Outcome = types.OutcomeNo
	other := whaleTrade(types.SideBuy, 0.40, 25, base)
	other.Wallet = wallet2

	l.Apply(yes)
	l.Apply(no)
	l.Apply(other)

	posYes, ok := l.Position(wallet, "M", types.OutcomeYes)
	require.True(t, ok)
	posNo, ok := l.Position(wallet, "M", types.OutcomeNo)
	require.True(t, ok)
	posOther, ok := l.Position(wallet2, "M", types.OutcomeYes)
	require.True(t, ok)

	assert.True(t, posYes.NetShares.Equal(decimal.NewFromInt(100)))
	assert.True(t, posNo.NetShares.Equal(decimal.NewFromInt(50)))
	assert.True(t, posOther.NetShares.Equal(decimal.NewFromInt(25)))
	assert.Len(t, l.WalletPositions(wallet), 2)
	assert.Len(t, l.MarketPositions("M"), 3)
}
