package whales

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ClassifiedTrade is a whale trade with its behaviour label and the
// post-trade position snapshot.
type ClassifiedTrade struct {
	Trade    WhaleTrade
	Behavior Behavior
	Position Position
}

// Tracker wires the trade store, universe, ledger and classifier
// together: it consumes the venue trade feed, labels trades by tracked
// whales and fans them out to listeners.
type Tracker struct {
	store      *TradeStore
	universe   *Universe
	ledger     *Ledger
	classifier *Classifier

	mu        sync.RWMutex
	recent    []ClassifiedTrade
	listeners []func(ClassifiedTrade)

	rebuildEvery time.Duration
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup

	lastTrade time.Time
}

// NewTracker builds a tracker with the given universe bounds.
func NewTracker(opts UniverseOptions, rebuildEvery time.Duration) *Tracker {
	store := NewTradeStore()
	ledger := NewLedger()
	return &Tracker{
		store:        store,
		universe:     NewUniverse(store, opts),
		ledger:       ledger,
		classifier:   NewClassifier(ledger),
		rebuildEvery: rebuildEvery,
		stopCh:       make(chan struct{}),
	}
}

// AddListener registers a callback for classified whale trades.
// Callbacks run on the tracker goroutine and must not block.
func (t *Tracker) AddListener(fn func(ClassifiedTrade)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// Store exposes the trade log for aggregate queries.
func (t *Tracker) Store() *TradeStore { return t.store }

// Universe exposes the tracked whale set.
func (t *Tracker) Universe() *Universe { return t.universe }

// Ledger exposes whale positions.
func (t *Tracker) Ledger() *Ledger { return t.ledger }

// Attach consumes venue trades from the channel until it closes or the
// tracker stops, and starts the periodic universe rebuild.
func (t *Tracker) Attach(trades <-chan VenueTrade) {
	t.wg.Add(2)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case tr, ok := <-trades:
				if !ok {
					return
				}
				t.Process(tr)
			case <-t.stopCh:
				return
			}
		}
	}()
	go t.rebuildLoop()
}

func (t *Tracker) rebuildLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.rebuildEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.universe.Rebuild(time.Now())
		case <-t.stopCh:
			return
		}
	}
}

// Stop halts the feed consumer and rebuild loop.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	t.wg.Wait()
}

// Process folds one venue trade in: every trade feeds the store and the
// price history, and trades by tracked whales are classified and fanned
// out. Exported so replay tooling and tests can drive it directly.
func (t *Tracker) Process(tr VenueTrade) {
	t.store.Append(tr)
	t.classifier.ObservePrice(tr.MarketID, tr.Price, tr.Timestamp)

	t.mu.Lock()
	t.lastTrade = tr.Timestamp
	t.mu.Unlock()

	if w, ok := t.universe.Lookup(tr.Taker); ok {
		t.processWhaleTrade(WhaleTrade{
			ID:        tr.ID,
			Whale:     w,
			Wallet:    tr.Taker,
			MarketID:  tr.MarketID,
			AssetID:   tr.AssetID,
			Outcome:   tr.Outcome,
			Side:      tr.Side,
			Price:     tr.Price,
			Size:      tr.Size,
			Notional:  tr.Notional,
			IsMaker:   false,
			Timestamp: tr.Timestamp,
		})
	}
	if w, ok := t.universe.Lookup(tr.Maker); ok {
		t.processWhaleTrade(WhaleTrade{
			ID:        tr.ID,
			Whale:     w,
			Wallet:    tr.Maker,
			MarketID:  tr.MarketID,
			AssetID:   tr.AssetID,
			Outcome:   tr.Outcome,
			Side:      tr.Side.Opposite(),
			Price:     tr.Price,
			Size:      tr.Size,
			Notional:  tr.Notional,
			IsMaker:   true,
			Timestamp: tr.Timestamp,
		})
	}
}

// processWhaleTrade classifies against pre-trade state, then folds the
// trade into the ledger and fans the labelled trade out.
func (t *Tracker) processWhaleTrade(wt WhaleTrade) {
	behavior := t.classifier.Classify(wt)
	pos := t.ledger.Apply(wt)

	ct := ClassifiedTrade{Trade: wt, Behavior: behavior, Position: pos}

	t.mu.Lock()
	t.recent = append(t.recent, ct)
	cutoff := wt.Timestamp.Add(-24 * time.Hour)
	i := 0
	for i < len(t.recent) && t.recent[i].Trade.Timestamp.Before(cutoff) {
		i++
	}
	t.recent = t.recent[i:]
	listeners := append([]func(ClassifiedTrade){}, t.listeners...)
	t.mu.Unlock()

	log.Debug().
		Str("wallet", wt.Wallet.Hex()).
		Str("market", wt.MarketID).
		Str("side", string(wt.Side)).
		Str("behavior", string(behavior)).
		Str("notional", wt.Notional.StringFixed(2)).
		Msg("🐋 Whale trade")

	for _, fn := range listeners {
		fn(ct)
	}
}

// RecentTrades returns classified whale trades since the cutoff,
// optionally filtered to one market. Pass "" for all markets.
func (t *Tracker) RecentTrades(marketID string, since time.Time) []ClassifiedTrade {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []ClassifiedTrade
	for _, ct := range t.recent {
		if ct.Trade.Timestamp.Before(since) {
			continue
		}
		if marketID != "" && ct.Trade.MarketID != marketID {
			continue
		}
		out = append(out, ct)
	}
	return out
}

// Status reports feed liveness for the health endpoint.
func (t *Tracker) Status() (lastTrade time.Time, whaleCount int) {
	t.mu.RLock()
	lastTrade = t.lastTrade
	t.mu.RUnlock()
	return lastTrade, len(t.universe.Whales())
}
