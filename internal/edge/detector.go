package edge

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polyedge/internal/truthlink"
)

// Quoter supplies current prices and spreads per asset.
type Quoter interface {
	CurrentMid(assetID string) (decimal.Decimal, bool)
	CurrentSpread(assetID string) (decimal.Decimal, bool)
}

// MarketCatalog supplies the tracked-market snapshot to scan over.
type MarketCatalog interface {
	TrackedMarkets() map[string]truthlink.TrackedMarket
}

// Options tune scan caching and emission throttling.
type Options struct {
	CacheTTL time.Duration
	Cooldown time.Duration
}

// DefaultOptions mirror the engine defaults.
func DefaultOptions() Options {
	return Options{
		CacheTTL: 60 * time.Second,
		Cooldown: 5 * time.Minute,
	}
}

// Detector joins truth events and whale flow against current prices.
// Scan is cheap to call repeatedly: results are cached for CacheTTL and
// recomputation is serialised, so concurrent callers are safe.
type Detector struct {
	catalog MarketCatalog
	quoter  Quoter
	flow    WhaleFlow
	truth   *TruthEdgeTracker
	quality *QualityFilter
	opts    Options

	scanMu    sync.Mutex // serialises recomputation
	mu        sync.Mutex
	cache     ScanResponse
	cacheAt   time.Time
	cooldowns map[string]time.Time // market id -> last emit

	listeners []func(Opportunity)

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewDetector wires the detector to its inputs.
func NewDetector(catalog MarketCatalog, quoter Quoter, flow WhaleFlow, quality *QualityFilter, opts Options) *Detector {
	return &Detector{
		catalog:   catalog,
		quoter:    quoter,
		flow:      flow,
		truth:     NewTruthEdgeTracker(quoter),
		quality:   quality,
		opts:      opts,
		cooldowns: make(map[string]time.Time),
		stopCh:    make(chan struct{}),
	}
}

// OnLinkedAlert feeds truth-source alerts into the truth-edge cache.
// Register this with the linker.
func (d *Detector) OnLinkedAlert(alert truthlink.LinkedAlert) {
	d.truth.OnLinkedAlert(alert)
}

// AddListener registers a consumer for newly surfaced opportunities.
func (d *Detector) AddListener(fn func(Opportunity)) {
	d.mu.Lock()
	d.listeners = append(d.listeners, fn)
	d.mu.Unlock()
}

// Start runs periodic scans so opportunities reach listeners without an
// API caller driving them.
func (d *Detector) Start() {
	go func() {
		ticker := time.NewTicker(d.opts.CacheTTL)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.Scan()
			case <-d.stopCh:
				return
			}
		}
	}()
}

// Stop halts the periodic scan loop.
func (d *Detector) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// Scan returns current opportunities, recomputing at most once per
// CacheTTL.
func (d *Detector) Scan() ScanResponse {
	d.scanMu.Lock()
	defer d.scanMu.Unlock()

	now := time.Now()

	d.mu.Lock()
	if now.Sub(d.cacheAt) < d.opts.CacheTTL && !d.cacheAt.IsZero() {
		resp := d.cache
		resp.Cached = true
		d.mu.Unlock()
		return resp
	}
	d.mu.Unlock()

	opps := d.scan(now)

	d.mu.Lock()
	d.cache = ScanResponse{GeneratedAt: now, Opportunities: opps}
	d.cacheAt = now
	listeners := append([]func(Opportunity){}, d.listeners...)
	resp := d.cache
	d.mu.Unlock()

	for _, opp := range opps {
		for _, fn := range listeners {
			fn(opp)
		}
	}
	return resp
}

// scan walks every tracked market. One opportunity per market at most,
// and a market that emitted within the cooldown stays silent.
func (d *Detector) scan(now time.Time) []Opportunity {
	var out []Opportunity

	for assetID, tm := range d.catalog.TrackedMarkets() {
		marketID := tm.Market.ConditionID
		if marketID == "" {
			marketID = assetID
		}

		d.mu.Lock()
		last, cooling := d.cooldowns[marketID]
		d.mu.Unlock()
		if cooling && now.Sub(last) < d.opts.Cooldown {
			continue
		}

		spread, _ := d.quoter.CurrentSpread(assetID)
		if q := d.quality.Assess(tm.Market.Volume24h, spread, tm.Market.TradeCount24h); q == QualityGarbage {
			continue
		}

		best := d.scanMarket(assetID, marketID, tm, now)
		if best == nil {
			continue
		}

		d.mu.Lock()
		d.cooldowns[marketID] = now
		d.mu.Unlock()

		out = append(out, *best)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	if len(out) > 0 {
		log.Info().Int("opportunities", len(out)).Msg("🎯 Edge scan")
	}
	return out
}

// scanMarket runs every pattern, isolating panics so one bad pattern
// cannot take down the scan, and keeps the highest-scoring hit.
func (d *Detector) scanMarket(assetID, marketID string, tm truthlink.TrackedMarket, now time.Time) *Opportunity {
	price, havePrice := d.quoter.CurrentMid(assetID)
	if !havePrice {
		price = tm.Market.YesPrice()
	}

	var candidates []*Opportunity

	runPattern(marketID, "truth_event", &candidates, func() *Opportunity {
		return d.truth.evaluate(assetID, price, now)
	})

	trades := d.flow.RecentTrades(marketID, now.Add(-consensusWindow))
	if len(trades) > 0 {
		runPattern(marketID, "whale_accumulation", &candidates, func() *Opportunity {
			return detectAccumulation(trades, price, now)
		})
		runPattern(marketID, "whale_consensus", &candidates, func() *Opportunity {
			return detectConsensus(trades, now)
		})
		runPattern(marketID, "whale_exit", &candidates, func() *Opportunity {
			return detectExit(trades, now)
		})
	}

	var best *Opportunity
	for _, opp := range candidates {
		if opp == nil {
			continue
		}
		opp.MarketID = marketID
		opp.AssetID = assetID
		opp.Question = tm.Market.Question
		opp.Score = score(*opp)
		if best == nil || opp.Score > best.Score {
			best = opp
		}
	}
	return best
}

func runPattern(marketID, name string, candidates *[]*Opportunity, fn func() *Opportunity) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("market", marketID).Str("pattern", name).Interface("panic", r).
				Msg("Edge pattern panicked, skipping")
		}
	}()
	*candidates = append(*candidates, fn())
}

// score ranks an opportunity: urgency band, type weight, capped size
// contribution and confidence, on top of any copy-suitability bonus the
// pattern pre-seeded.
func score(opp Opportunity) float64 {
	s := opp.Score
	s += opp.Urgency.band()

	switch opp.Type {
	case TypeTruthEvent:
		s += 30
	case TypeWhaleConsensus:
		s += 25
	case TypeWhaleAccumulation:
		s += 20
	case TypeWhaleExit:
		s += 15
	}

	if size := opp.Notional.InexactFloat64() / 1000; size > 0 {
		if size > 25 {
			size = 25
		}
		s += size
	}

	s += float64(opp.Confidence) * 5
	return s
}
