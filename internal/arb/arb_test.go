package arb

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/polyedge/internal/types"
)

var scanAt = time.Date(2026, 8, 1, 16, 0, 0, 0, time.UTC)

func market(assetID, conditionID, question string, yes float64) types.Market {
	return types.Market{
		AssetID:       assetID,
		ConditionID:   conditionID,
		Question:      question,
		OutcomePrices: []decimal.Decimal{decimal.NewFromFloat(yes), decimal.NewFromFloat(1 - yes)},
		Active:        true,
	}
}

func TestMutuallyExclusiveOverpricedPair(t *testing.T) {
	d := NewDetector(nil, DefaultOptions())

	markets := []types.Market{
		market("A", "c1", "Team A wins the championship?", 0.60),
		market("B", "c2", "Team B wins the championship?", 0.55),
	}

	opps := d.Scan(markets, scanAt)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, RelationMutuallyExclusive, opp.Type)
	// 0.60 + 0.55 leaves 15 cents on the table.
	assert.True(t, opp.ExpectedEdge.Equal(decimal.NewFromFloat(0.15)), "got %s", opp.ExpectedEdge)
	assert.Equal(t, "immediate", opp.Urgency)
	require.Len(t, opp.Legs, 2)
	assert.Equal(t, "buy_no", opp.Legs[0].Action)
	assert.Equal(t, "buy_no", opp.Legs[1].Action)
}

func TestMutuallyExclusiveFairlyPricedStaysQuiet(t *testing.T) {
	d := NewDetector(nil, DefaultOptions())

	markets := []types.Market{
		market("A", "c1", "Team A wins the championship?", 0.55),
		market("B", "c2", "Team B wins the championship?", 0.45),
	}

	assert.Empty(t, d.Scan(markets, scanAt))
}

func TestInverseVariantSumDeviation(t *testing.T) {
	d := NewDetector(nil, Options{MinEdge: decimal.NewFromFloat(0.02), Tick: time.Second})

	// Two outcome tokens of one condition summing over 1.
	markets := []types.Market{
		market("YES", "c1", "Will it rain tomorrow?", 0.60),
		market("NO", "c1", "Will it rain tomorrow?", 0.45),
	}

	opps := d.Scan(markets, scanAt)
	require.Len(t, opps, 1)
	assert.Equal(t, RelationInverse, opps[0].Type)
	assert.True(t, opps[0].ExpectedEdge.Equal(decimal.NewFromFloat(0.05)), "got %s", opps[0].ExpectedEdge)
	assert.Equal(t, "buy_no", opps[0].Legs[0].Action)
}

func TestSubsetByMarginViolation(t *testing.T) {
	d := NewDetector(nil, DefaultOptions())

	// Winning by 10 is stricter than winning by 3, yet priced higher.
	markets := []types.Market{
		market("BY10", "c1", "Will the Chiefs win the game by 10 points?", 0.40),
		market("BY3", "c2", "Will the Chiefs win the game by 3 points?", 0.30),
	}

	opps := d.Scan(markets, scanAt)
	require.Len(t, opps, 1)
	assert.Equal(t, RelationSubset, opps[0].Type)
	assert.True(t, opps[0].ExpectedEdge.Equal(decimal.NewFromFloat(0.10)), "got %s", opps[0].ExpectedEdge)
	assert.Equal(t, "BY10", opps[0].Legs[0].AssetID)
	assert.Equal(t, "buy_no", opps[0].Legs[0].Action)
	assert.Equal(t, "buy_yes", opps[0].Legs[1].Action)
	assert.Equal(t, "hours", opps[0].Urgency)
}

func TestSubsetBeforeDateVariant(t *testing.T) {
	rels := DetectRelations([]types.Market{
		market("DATED", "c1", "Will Bitcoin reach $200k before March 1?", 0.20),
		market("OPEN", "c2", "Will Bitcoin reach $200k this year?", 0.35),
	})

	require.Len(t, rels, 1)
	assert.Equal(t, RelationSubset, rels[0].Type)
	// The dated variant is the stricter claim.
	assert.Equal(t, "DATED", rels[0].A)
	assert.Equal(t, "OPEN", rels[0].B)
}

func TestScanDedupesRepeatedPairs(t *testing.T) {
	d := NewDetector(nil, DefaultOptions())

	markets := []types.Market{
		market("A", "c1", "Team A wins the championship?", 0.60),
		market("B", "c2", "Team B wins the championship?", 0.55),
	}

	require.Len(t, d.Scan(markets, scanAt), 1)
	// Same pair inside the 5-minute window stays silent.
	assert.Empty(t, d.Scan(markets, scanAt.Add(time.Minute)))
	// And comes back once the window passes.
	assert.Len(t, d.Scan(markets, scanAt.Add(6*time.Minute)), 1)
}

type stubLister struct {
	markets []types.Market
	err     error
}

func (s *stubLister) ListActiveMarkets() ([]types.Market, error) { return s.markets, s.err }

func TestTickFansOutToListeners(t *testing.T) {
	lister := &stubLister{markets: []types.Market{
		market("A", "c1", "Team A wins the championship?", 0.60),
		market("B", "c2", "Team B wins the championship?", 0.55),
	}}
	d := NewDetector(lister, DefaultOptions())

	var first, second []Opportunity
	d.AddListener(func(o Opportunity) { first = append(first, o) })
	d.AddListener(func(o Opportunity) { second = append(second, o) })

	d.tick(scanAt)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, RelationMutuallyExclusive, first[0].Type)
}

func TestTickSkipsOnListerError(t *testing.T) {
	d := NewDetector(&stubLister{err: errors.New("api down")}, DefaultOptions())

	var got []Opportunity
	d.AddListener(func(o Opportunity) { got = append(got, o) })

	d.tick(scanAt)
	assert.Empty(t, got)
}

func TestScanRespectsMinEdge(t *testing.T) {
	d := NewDetector(nil, Options{MinEdge: decimal.NewFromFloat(0.05), Tick: time.Second})

	markets := []types.Market{
		market("A", "c1", "Team A wins the championship?", 0.54),
		market("B", "c2", "Team B wins the championship?", 0.50),
	}

	// The 4-cent violation clears the tolerance but not MinEdge.
	assert.Empty(t, d.Scan(markets, scanAt))
}
