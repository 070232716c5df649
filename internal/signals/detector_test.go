package signals

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/polyedge/internal/types"
	"github.com/web3guy0/polyedge/internal/venue"
)

var t0 = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func priceEvent(asset string, bid, ask float64, ts time.Time) venue.Event {
	return venue.Event{Price: &venue.PriceEvent{
		AssetID:   asset,
		BestBid:   decimal.NewFromFloat(bid),
		BestAsk:   decimal.NewFromFloat(ask),
		Timestamp: ts,
	}}
}

func tradeEvent(asset string, price, size float64, side types.Side, ts time.Time) venue.Event {
	return venue.Event{Trade: &venue.TradeEvent{
		AssetID:   asset,
		Price:     decimal.NewFromFloat(price),
		Size:      decimal.NewFromFloat(size),
		Side:      side,
		Timestamp: ts,
	}}
}

func bookEvent(asset string, bid, ask float64, bidDepth, askDepth float64, ts time.Time) venue.Event {
	return venue.Event{Book: &venue.BookEvent{
		AssetID:   asset,
		Bids:      []venue.BookLevel{{Price: decimal.NewFromFloat(bid), Size: decimal.NewFromFloat(bidDepth)}},
		Asks:      []venue.BookLevel{{Price: decimal.NewFromFloat(ask), Size: decimal.NewFromFloat(askDepth)}},
		BestBid:   decimal.NewFromFloat(bid),
		BestAsk:   decimal.NewFromFloat(ask),
		Timestamp: ts,
	}}
}

func drain(d *Detector) []Signal {
	var out []Signal
	for {
		select {
		case s := <-d.Signals():
			out = append(out, s)
		default:
			return out
		}
	}
}

func TestPriceSpikeFiresOnceWithinCooldown(t *testing.T) {
	d := NewDetector(DefaultOptions())

	// Baseline at 0.50, before the 5-minute window.
	d.Process(priceEvent("A", 0.49, 0.51, t0))

	// Warmup satisfied, baseline outside window: spike to ~0.55 (+10%).
	spikeAt := t0.Add(6 * time.Minute)
	d.Process(priceEvent("A", 0.54, 0.56, spikeAt))

	signals := drain(d)
	require.Len(t, signals, 1)
	assert.Equal(t, SignalPriceSpike, signals[0].Type)
	assert.Equal(t, types.DirectionUp, signals[0].Direction)

	// Identical spike 30s later is inside the 60s cooldown.
	d.Process(priceEvent("A", 0.58, 0.60, spikeAt.Add(30*time.Second)))
	assert.Empty(t, drain(d))

	// After the cooldown it may fire again.
	d.Process(priceEvent("A", 0.62, 0.64, spikeAt.Add(61*time.Second)))
	signals = drain(d)
	require.Len(t, signals, 1)
	assert.Equal(t, SignalPriceSpike, signals[0].Type)
}

func TestPriceSpikeYoungMarketBaseline(t *testing.T) {
	d := NewDetector(DefaultOptions())

	// A market younger than the spike window: flat at 0.50, then a
	// +10% jump 40 seconds in, then drift inside the cooldown.
	d.Process(priceEvent("A", 0.49, 0.51, t0))
	d.Process(priceEvent("A", 0.49, 0.51, t0.Add(35*time.Second)))
	d.Process(priceEvent("A", 0.54, 0.56, t0.Add(40*time.Second)))
	d.Process(priceEvent("A", 0.55, 0.57, t0.Add(50*time.Second)))
	d.Process(priceEvent("A", 0.56, 0.58, t0.Add(70*time.Second)))

	signals := drain(d)
	require.Len(t, signals, 1)
	assert.Equal(t, SignalPriceSpike, signals[0].Type)
	assert.Equal(t, types.DirectionUp, signals[0].Direction)
	assert.True(t, signals[0].ChangePercent.Equal(decimal.NewFromInt(10)), "got %s", signals[0].ChangePercent)
	assert.Equal(t, t0.Add(40*time.Second), signals[0].Timestamp)
}

func TestPriceSpikeSingleSampleNeverFires(t *testing.T) {
	d := NewDetector(DefaultOptions())

	// One sample cannot be its own baseline, however old the market.
	d.Process(priceEvent("A", 0.54, 0.56, t0.Add(5*time.Minute)))
	assert.Empty(t, drain(d))
}

func TestWarmupSuppressesEarlySignals(t *testing.T) {
	opts := DefaultOptions()
	opts.PriceSpikeWindow = 10 * time.Second
	d := NewDetector(opts)

	d.Process(priceEvent("A", 0.49, 0.51, t0))
	// Big move 15s in: past the window but inside the 30s warmup.
	d.Process(priceEvent("A", 0.59, 0.61, t0.Add(15*time.Second)))
	assert.Empty(t, drain(d))

	// Same move after warmup fires.
	d.Process(priceEvent("A", 0.69, 0.71, t0.Add(31*time.Second)))
	signals := drain(d)
	require.Len(t, signals, 1)
	assert.Equal(t, SignalPriceSpike, signals[0].Type)
}

func TestVolumeSpikeNeedsBaseline(t *testing.T) {
	d := NewDetector(DefaultOptions())

	// A burst with no prior baseline must not fire.
	burstAt := t0.Add(time.Minute)
	for i := 0; i < 5; i++ {
		d.Process(tradeEvent("A", 0.50, 100, types.SideBuy, burstAt.Add(time.Duration(i)*time.Second)))
	}
	for _, s := range drain(d) {
		assert.NotEqual(t, SignalVolumeSpike, s.Type)
	}
}

func TestVolumeSpikeFiresOverBaseline(t *testing.T) {
	opts := DefaultOptions()
	opts.SweepMinTotalSize = decimal.NewFromInt(1000000) // keep sweeps quiet
	d := NewDetector(opts)

	// Trickle baseline: 1 share/minute for 25 minutes.
	for i := 0; i < 25; i++ {
		d.Process(tradeEvent("A", 0.50, 1, types.SideBuy, t0.Add(time.Duration(i)*time.Minute)))
	}
	drain(d)

	// 60x the per-minute baseline inside the last minute.
	burstAt := t0.Add(26 * time.Minute)
	d.Process(tradeEvent("A", 0.50, 60, types.SideBuy, burstAt))

	signals := drain(d)
	require.Len(t, signals, 1)
	assert.Equal(t, SignalVolumeSpike, signals[0].Type)
	assert.Equal(t, types.DirectionUp, signals[0].Direction)
}

func TestAggressiveSweepDetectsDominantSide(t *testing.T) {
	d := NewDetector(DefaultOptions())

	// Establish state old enough to clear warmup.
	d.Process(tradeEvent("A", 0.50, 1, types.SideBuy, t0))

	at := t0.Add(5 * time.Minute)
	d.Process(tradeEvent("A", 0.50, 30, types.SideSell, at))
	d.Process(tradeEvent("A", 0.49, 30, types.SideSell, at.Add(2*time.Second)))
	d.Process(tradeEvent("A", 0.48, 30, types.SideSell, at.Add(4*time.Second)))

	var sweep *Signal
	for _, s := range drain(d) {
		if s.Type == SignalAggressiveSweep {
			sweep = &s
			break
		}
	}
	require.NotNil(t, sweep)
	assert.Equal(t, types.DirectionDown, sweep.Direction)
}

func TestDepthPullDirections(t *testing.T) {
	d := NewDetector(DefaultOptions())

	d.Process(bookEvent("A", 0.49, 0.51, 500, 500, t0))

	// Bid side vanishes: support gone, direction down.
	d.Process(bookEvent("A", 0.49, 0.51, 100, 500, t0.Add(time.Minute)))
	signals := drain(d)
	require.Len(t, signals, 1)
	assert.Equal(t, SignalDepthPull, signals[0].Type)
	assert.Equal(t, types.DirectionDown, signals[0].Direction)

	// Ask side vanishes on another asset: resistance gone, direction up.
	d.Process(bookEvent("B", 0.49, 0.51, 500, 500, t0))
	d.Process(bookEvent("B", 0.49, 0.51, 500, 100, t0.Add(time.Minute)))
	signals = drain(d)
	require.Len(t, signals, 1)
	assert.Equal(t, types.DirectionUp, signals[0].Direction)
}

func TestMalformedEventsDropped(t *testing.T) {
	d := NewDetector(DefaultOptions())

	// Crossed book and out-of-range trade must not create state.
	d.Process(priceEvent("A", 0.60, 0.40, t0))
	d.Process(tradeEvent("B", 1.50, 10, types.SideBuy, t0))

	_, okA := d.MarketState("A")
	_, okB := d.MarketState("B")
	assert.False(t, okA)
	assert.False(t, okB)
	assert.Empty(t, drain(d))
}

func TestSpreadCompression(t *testing.T) {
	d := NewDetector(DefaultOptions())

	// Wide 4-cent spread, then compression to 1 cent (75%).
	d.Process(bookEvent("A", 0.48, 0.52, 500, 500, t0))
	d.Process(bookEvent("A", 0.495, 0.505, 500, 500, t0.Add(time.Minute)))

	var comp *Signal
	for _, s := range drain(d) {
		if s.Type == SignalSpreadCompression {
			comp = &s
			break
		}
	}
	require.NotNil(t, comp)
	assert.True(t, comp.ChangePercent.GreaterThanOrEqual(decimal.NewFromInt(40)))
}
