package signals

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polyedge/internal/config"
	"github.com/web3guy0/polyedge/internal/types"
	"github.com/web3guy0/polyedge/internal/venue"
)

// SignalType enumerates the micro-structure detectors.
type SignalType string

const (
	SignalPriceSpike        SignalType = "price_spike"
	SignalVolumeSpike       SignalType = "volume_spike"
	SignalSpreadCompression SignalType = "spread_compression"
	SignalAggressiveSweep   SignalType = "aggressive_sweep"
	SignalDepthPull         SignalType = "depth_pull"
)

// Strength bands a signal's magnitude.
type Strength string

const (
	StrengthLow      Strength = "low"
	StrengthMedium   Strength = "medium"
	StrengthHigh     Strength = "high"
	StrengthVeryHigh Strength = "very_high"
)

// Signal is one detected micro-structure event.
type Signal struct {
	AssetID       string
	Question      string
	Type          SignalType
	Strength      Strength
	Direction     types.Direction
	ChangePercent decimal.Decimal
	Detail        string
	Price         decimal.Decimal
	Timestamp     time.Time
}

// Options are the detector thresholds, all env-overridable.
type Options struct {
	PriceSpikeThresholdPct decimal.Decimal
	PriceSpikeWindow       time.Duration
	VolumeSpikeMultiplier  decimal.Decimal
	VolumeSpikeBaselineWin time.Duration
	SpreadCompThresholdPct decimal.Decimal
	SpreadCompMinSpread    decimal.Decimal
	SweepWindow            time.Duration
	SweepMinTradeCount     int
	SweepMinTotalSize      decimal.Decimal
	SweepMinPriceImpactPct decimal.Decimal
	DepthPullThresholdPct  decimal.Decimal
	DepthPullMinDepth      decimal.Decimal
	Warmup                 time.Duration
	Cooldown               time.Duration
}

// DefaultOptions returns the stock thresholds.
func DefaultOptions() Options {
	return Options{
		PriceSpikeThresholdPct: decimal.NewFromInt(3),
		PriceSpikeWindow:       5 * time.Minute,
		VolumeSpikeMultiplier:  decimal.NewFromInt(3),
		VolumeSpikeBaselineWin: 30 * time.Minute,
		SpreadCompThresholdPct: decimal.NewFromInt(40),
		SpreadCompMinSpread:    decimal.NewFromFloat(0.02),
		SweepWindow:            30 * time.Second,
		SweepMinTradeCount:     3,
		SweepMinTotalSize:      decimal.NewFromInt(50),
		SweepMinPriceImpactPct: decimal.NewFromInt(1),
		DepthPullThresholdPct:  decimal.NewFromInt(50),
		DepthPullMinDepth:      decimal.NewFromInt(100),
		Warmup:                 30 * time.Second,
		Cooldown:               60 * time.Second,
	}
}

// OptionsFromConfig maps the engine config onto detector options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PriceSpikeThresholdPct: cfg.PriceSpikeThresholdPct,
		PriceSpikeWindow:       cfg.PriceSpikeWindow,
		VolumeSpikeMultiplier:  cfg.VolumeSpikeMultiplier,
		VolumeSpikeBaselineWin: cfg.VolumeSpikeBaselineWin,
		SpreadCompThresholdPct: cfg.SpreadCompThresholdPct,
		SpreadCompMinSpread:    cfg.SpreadCompMinSpread,
		SweepWindow:            cfg.SweepWindow,
		SweepMinTradeCount:     cfg.SweepMinTradeCount,
		SweepMinTotalSize:      cfg.SweepMinTotalSize,
		SweepMinPriceImpactPct: cfg.SweepMinPriceImpactPct,
		DepthPullThresholdPct:  cfg.DepthPullThresholdPct,
		DepthPullMinDepth:      cfg.DepthPullMinDepth,
		Warmup:                 cfg.SignalWarmup,
		Cooldown:               cfg.SignalCooldown,
	}
}

// maxWindow is the widest detection window; history is pruned to twice it.
func (o Options) maxWindow() time.Duration {
	max := o.PriceSpikeWindow
	if o.VolumeSpikeBaselineWin > max {
		max = o.VolumeSpikeBaselineWin
	}
	if o.SweepWindow > max {
		max = o.SweepWindow
	}
	return max
}

// Detector turns the venue stream into micro-structure signals. Per-asset
// state is single-writer: only the event loop mutates it. All detection
// time arithmetic runs on event timestamps so replayed feeds behave
// identically to live ones.
type Detector struct {
	opts    Options
	horizon time.Duration

	mu        sync.RWMutex
	states    map[string]*MarketState
	cooldowns map[string]time.Time // assetID|signalType -> last fire

	signalCh chan Signal
	stopCh   chan struct{}
	stopOnce sync.Once

	malformed uint64
}

// NewDetector creates a signal detector with the given thresholds.
func NewDetector(opts Options) *Detector {
	return &Detector{
		opts:      opts,
		horizon:   2 * opts.maxWindow(),
		states:    make(map[string]*MarketState),
		cooldowns: make(map[string]time.Time),
		signalCh:  make(chan Signal, 256),
		stopCh:    make(chan struct{}),
	}
}

// Attach starts consuming the venue stream.
func (d *Detector) Attach(stream venue.Stream) {
	go d.loop(stream.Subscribe())
	log.Info().Msg("📊 Signal detector attached to venue stream")
}

// Signals returns the output channel.
func (d *Detector) Signals() <-chan Signal {
	return d.signalCh
}

// Stop terminates the event loop.
func (d *Detector) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

func (d *Detector) loop(events <-chan venue.Event) {
	for {
		select {
		case <-d.stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.Process(ev)
		}
	}
}

// Process applies one venue event. Exported so replay tooling and tests
// can drive the detector without a live stream.
func (d *Detector) Process(ev venue.Event) {
	assetID := ev.AssetID()
	if assetID == "" {
		d.malformed++
		log.Debug().Msg("Dropped venue event without asset id")
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case ev.Book != nil:
		d.processBook(ev.Book)
	case ev.Price != nil:
		d.processPrice(ev.Price)
	case ev.Trade != nil:
		d.processTrade(ev.Trade)
	}
}

func (d *Detector) state(assetID string, ts time.Time) *MarketState {
	s, ok := d.states[assetID]
	if !ok {
		s = newMarketState(assetID, ts)
		d.states[assetID] = s
	}
	return s
}

func (d *Detector) processBook(ev *venue.BookEvent) {
	if !validTopOfBook(ev.BestBid, ev.BestAsk) {
		d.malformed++
		log.Debug().Str("asset", ev.AssetID).Msg("Dropped book event with invalid top of book")
		return
	}

	s := d.state(ev.AssetID, ev.Timestamp)

	prevSpread := s.Spread
	prevBidDepth := s.BidDepth
	prevAskDepth := s.AskDepth
	hadBook := !s.CurrentPrice.IsZero()

	s.BestBid = ev.BestBid
	s.BestAsk = ev.BestAsk
	s.Spread = ev.BestAsk.Sub(ev.BestBid)
	s.BidDepth = ev.BidDepth()
	s.AskDepth = ev.AskDepth()
	s.CurrentPrice = ev.BestBid.Add(ev.BestAsk).Div(decimal.NewFromInt(2))
	s.LastUpdate = ev.Timestamp
	s.recordPrice(s.CurrentPrice, ev.Timestamp, d.horizon)

	d.checkPriceSpike(s, ev.Timestamp)
	if hadBook {
		d.checkSpreadCompression(s, prevSpread, ev.Timestamp)
		d.checkDepthPull(s, "bid", prevBidDepth, s.BidDepth, ev.Timestamp)
		d.checkDepthPull(s, "ask", prevAskDepth, s.AskDepth, ev.Timestamp)
	}
}

func (d *Detector) processPrice(ev *venue.PriceEvent) {
	if !validTopOfBook(ev.BestBid, ev.BestAsk) {
		d.malformed++
		log.Debug().Str("asset", ev.AssetID).Msg("Dropped price event with invalid top of book")
		return
	}

	s := d.state(ev.AssetID, ev.Timestamp)

	s.BestBid = ev.BestBid
	s.BestAsk = ev.BestAsk
	s.Spread = ev.BestAsk.Sub(ev.BestBid)
	s.CurrentPrice = ev.BestBid.Add(ev.BestAsk).Div(decimal.NewFromInt(2))
	s.LastUpdate = ev.Timestamp
	s.recordPrice(s.CurrentPrice, ev.Timestamp, d.horizon)

	d.checkPriceSpike(s, ev.Timestamp)
}

func (d *Detector) processTrade(ev *venue.TradeEvent) {
	if ev.Price.IsNegative() || ev.Price.GreaterThan(decimal.NewFromInt(1)) || ev.Size.IsNegative() {
		d.malformed++
		log.Debug().Str("asset", ev.AssetID).Msg("Dropped trade event out of range")
		return
	}

	s := d.state(ev.AssetID, ev.Timestamp)
	s.LastUpdate = ev.Timestamp
	s.recordTrade(ev.Price, ev.Size, ev.Side, ev.Timestamp, d.horizon)

	d.checkVolumeSpike(s, ev.Timestamp)
	d.checkAggressiveSweep(s, ev.Timestamp)
}

// ─── Detectors ────────────────────────────────────────────────────────────────

func (d *Detector) checkPriceSpike(s *MarketState, now time.Time) {
	windowStart := now.Add(-d.opts.PriceSpikeWindow)

	// Baseline is the last sample taken before the window opened. A
	// young market has none yet; the oldest in-window sample serves
	// instead, but a lone sample never baselines itself.
	var baseline *PricePoint
	for i := range s.PriceHistory {
		if s.PriceHistory[i].Timestamp.After(windowStart) {
			break
		}
		baseline = &s.PriceHistory[i]
	}
	if baseline == nil && len(s.PriceHistory) > 1 {
		baseline = &s.PriceHistory[0]
	}
	if baseline == nil || baseline.Price.IsZero() {
		return
	}

	delta := s.CurrentPrice.Sub(baseline.Price)
	changePct := delta.Abs().Div(baseline.Price).Mul(decimal.NewFromInt(100))
	if changePct.LessThan(d.opts.PriceSpikeThresholdPct) {
		return
	}

	direction := types.DirectionUp
	if delta.IsNegative() {
		direction = types.DirectionDown
	}

	d.emit(s, Signal{
		Type:          SignalPriceSpike,
		Strength:      bandRatio(changePct, d.opts.PriceSpikeThresholdPct),
		Direction:     direction,
		ChangePercent: changePct,
		Price:         s.CurrentPrice,
		Timestamp:     now,
	})
}

func (d *Detector) checkVolumeSpike(s *MarketState, now time.Time) {
	recentStart := now.Add(-60 * time.Second)
	baselineStart := now.Add(-d.opts.VolumeSpikeBaselineWin)

	recent := decimal.Zero
	baselineTotal := decimal.Zero
	for _, v := range s.VolumeHistory {
		switch {
		case !v.Timestamp.Before(recentStart):
			recent = recent.Add(v.Volume)
		case !v.Timestamp.Before(baselineStart):
			baselineTotal = baselineTotal.Add(v.Volume)
		}
	}

	minutes := decimal.NewFromFloat((d.opts.VolumeSpikeBaselineWin - 60*time.Second).Minutes())
	if !minutes.IsPositive() {
		return
	}
	baselinePerMin := baselineTotal.Div(minutes)
	// No baseline means no spike, only a first burst of activity.
	if !baselinePerMin.IsPositive() {
		return
	}

	ratio := recent.Div(baselinePerMin)
	if ratio.LessThan(d.opts.VolumeSpikeMultiplier) {
		return
	}

	d.emit(s, Signal{
		Type:          SignalVolumeSpike,
		Strength:      bandRatio(ratio, d.opts.VolumeSpikeMultiplier),
		Direction:     dominantDirection(s.RecentTrades, now.Add(-60*time.Second)),
		ChangePercent: ratio.Mul(decimal.NewFromInt(100)),
		Price:         s.CurrentPrice,
		Timestamp:     now,
	})
}

func (d *Detector) checkSpreadCompression(s *MarketState, prevSpread decimal.Decimal, now time.Time) {
	if prevSpread.LessThan(d.opts.SpreadCompMinSpread) {
		return
	}
	compression := prevSpread.Sub(s.Spread)
	if !compression.IsPositive() {
		return
	}
	compressionPct := compression.Div(prevSpread).Mul(decimal.NewFromInt(100))
	if compressionPct.LessThan(d.opts.SpreadCompThresholdPct) {
		return
	}

	d.emit(s, Signal{
		Type:          SignalSpreadCompression,
		Strength:      bandRatio(compressionPct, d.opts.SpreadCompThresholdPct),
		ChangePercent: compressionPct,
		Price:         s.CurrentPrice,
		Timestamp:     now,
	})
}

func (d *Detector) checkAggressiveSweep(s *MarketState, now time.Time) {
	cutoff := now.Add(-d.opts.SweepWindow)

	var buys, sells []TradePoint
	for _, t := range s.RecentTrades {
		if t.Timestamp.Before(cutoff) {
			continue
		}
		if t.Side == types.SideBuy {
			buys = append(buys, t)
		} else {
			sells = append(sells, t)
		}
	}

	dominant := buys
	direction := types.DirectionUp
	if len(sells) > len(buys) {
		dominant = sells
		direction = types.DirectionDown
	}
	if len(dominant) < d.opts.SweepMinTradeCount {
		return
	}

	total := decimal.Zero
	low := dominant[0].Price
	high := dominant[0].Price
	for _, t := range dominant {
		total = total.Add(t.Size)
		if t.Price.LessThan(low) {
			low = t.Price
		}
		if t.Price.GreaterThan(high) {
			high = t.Price
		}
	}
	if total.LessThan(d.opts.SweepMinTotalSize) || low.IsZero() {
		return
	}

	impactPct := high.Sub(low).Div(low).Mul(decimal.NewFromInt(100))
	if impactPct.LessThan(d.opts.SweepMinPriceImpactPct) {
		return
	}

	d.emit(s, Signal{
		Type:          SignalAggressiveSweep,
		Strength:      bandRatio(total, d.opts.SweepMinTotalSize),
		Direction:     direction,
		ChangePercent: impactPct,
		Price:         s.CurrentPrice,
		Timestamp:     now,
	})
}

func (d *Detector) checkDepthPull(s *MarketState, side string, prev, curr decimal.Decimal, now time.Time) {
	if prev.LessThan(d.opts.DepthPullMinDepth) {
		return
	}
	pulled := prev.Sub(curr)
	if !pulled.IsPositive() {
		return
	}
	pulledPct := pulled.Div(prev).Mul(decimal.NewFromInt(100))
	if pulledPct.LessThan(d.opts.DepthPullThresholdPct) {
		return
	}

	// Bids pulled means support gone; asks pulled means resistance gone.
	direction := types.DirectionDown
	if side == "ask" {
		direction = types.DirectionUp
	}

	d.emit(s, Signal{
		Type:          SignalDepthPull,
		Strength:      bandRatio(pulledPct, d.opts.DepthPullThresholdPct),
		Direction:     direction,
		ChangePercent: pulledPct,
		Detail:        side,
		Price:         s.CurrentPrice,
		Timestamp:     now,
	})
}

// ─── Gating & emission ────────────────────────────────────────────────────────

func (d *Detector) emit(s *MarketState, sig Signal) {
	// Warm-up: a market must be observed for a while before it may fire.
	if sig.Timestamp.Sub(s.FirstSeen) < d.opts.Warmup {
		return
	}

	key := s.AssetID + "|" + string(sig.Type)
	if last, ok := d.cooldowns[key]; ok && sig.Timestamp.Sub(last) < d.opts.Cooldown {
		return
	}
	d.cooldowns[key] = sig.Timestamp

	sig.AssetID = s.AssetID
	sig.Question = s.Question

	log.Info().
		Str("asset", shortID(s.AssetID)).
		Str("type", string(sig.Type)).
		Str("strength", string(sig.Strength)).
		Str("change_pct", sig.ChangePercent.StringFixed(2)).
		Msg("🚨 Signal detected")

	select {
	case d.signalCh <- sig:
	default:
		log.Warn().Str("asset", shortID(s.AssetID)).Msg("Signal channel full, signal dropped")
	}
}

// ─── Public surface ───────────────────────────────────────────────────────────

// MarketState returns a point-in-time copy of an asset's state.
func (d *Detector) MarketState(assetID string) (MarketState, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.states[assetID]
	if !ok {
		return MarketState{}, false
	}
	return s.clone(), true
}

// SetMarketQuestion attaches the human-readable question to an asset so
// downstream alerts can render it.
func (d *Detector) SetMarketQuestion(assetID, question string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state(assetID, time.Now()).Question = question
}

// CurrentMid implements the PriceProvider surface the edge detector
// reads prices through.
func (d *Detector) CurrentMid(assetID string) (decimal.Decimal, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.states[assetID]
	if !ok || s.CurrentPrice.IsZero() {
		return decimal.Zero, false
	}
	return s.CurrentPrice, true
}

// CurrentSpread returns the last observed top-of-book spread.
func (d *Detector) CurrentSpread(assetID string) (decimal.Decimal, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.states[assetID]
	if !ok || s.BestAsk.IsZero() {
		return decimal.Zero, false
	}
	return s.Spread, true
}

// TrackedAssets lists every asset with populated state.
func (d *Detector) TrackedAssets() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	assets := make([]string, 0, len(d.states))
	for id := range d.states {
		assets = append(assets, id)
	}
	return assets
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func validTopOfBook(bid, ask decimal.Decimal) bool {
	one := decimal.NewFromInt(1)
	return bid.IsPositive() && ask.LessThan(one) && !bid.GreaterThan(ask)
}

// bandRatio maps value/threshold onto strength bands.
func bandRatio(value, threshold decimal.Decimal) Strength {
	if !threshold.IsPositive() {
		return StrengthLow
	}
	ratio := value.Div(threshold)
	switch {
	case ratio.GreaterThanOrEqual(decimal.NewFromInt(3)):
		return StrengthVeryHigh
	case ratio.GreaterThanOrEqual(decimal.NewFromInt(2)):
		return StrengthHigh
	case ratio.GreaterThanOrEqual(decimal.NewFromFloat(1.5)):
		return StrengthMedium
	}
	return StrengthLow
}

func dominantDirection(trades []TradePoint, cutoff time.Time) types.Direction {
	buyVol := decimal.Zero
	sellVol := decimal.Zero
	for _, t := range trades {
		if t.Timestamp.Before(cutoff) {
			continue
		}
		if t.Side == types.SideBuy {
			buyVol = buyVol.Add(t.Size)
		} else {
			sellVol = sellVol.Add(t.Size)
		}
	}
	if sellVol.GreaterThan(buyVol) {
		return types.DirectionDown
	}
	return types.DirectionUp
}

func shortID(id string) string {
	if len(id) > 16 {
		return id[:16] + "..."
	}
	return id
}
