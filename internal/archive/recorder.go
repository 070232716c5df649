package archive

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polyedge/internal/whales"
)

// SnapshotSource supplies per-asset state for the per-minute snapshots.
type SnapshotSource interface {
	TrackedAssets() []string
	CurrentMid(assetID string) (decimal.Decimal, bool)
	CurrentSpread(assetID string) (decimal.Decimal, bool)
}

// Recorder streams trades and market snapshots into the archive and
// works the impact job queue.
type Recorder struct {
	archive *Archive
	source  SnapshotSource

	mu  sync.Mutex
	seq map[string]int // marketId|taker|unix -> next sequence

	impactDelay time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewRecorder builds a recorder; impactDelay is how long after a trade
// its price impact is measured.
func NewRecorder(a *Archive, source SnapshotSource, impactDelay time.Duration) *Recorder {
	return &Recorder{
		archive:     a,
		source:      source,
		seq:         make(map[string]int),
		impactDelay: impactDelay,
		stopCh:      make(chan struct{}),
	}
}

// OnTrade archives a venue trade and queues its impact measurement.
// Safe to register as a tracker listener.
func (r *Recorder) OnTrade(t whales.VenueTrade) {
	id := t.ID
	if id == "" {
		id = r.nextID(t)
	}
	row := &ArchivedTrade{
		ID:       id,
		MarketID: t.MarketID,
		AssetID:  t.AssetID,
		Outcome:  string(t.Outcome),
		Maker:    t.Maker.Hex(),
		Taker:    t.Taker.Hex(),
		Side:     string(t.Side),
		Price:    t.Price,
		Size:     t.Size,
		Notional: t.Notional,
		TradedAt: t.Timestamp,
	}
	if err := r.archive.SaveTrade(row); err != nil {
		log.Error().Err(err).Str("trade", id).Msg("Trade archive failed")
		return
	}
	if err := r.archive.EnqueueImpactJob(id, t.AssetID, t.Price, t.Timestamp.Add(r.impactDelay)); err != nil {
		log.Error().Err(err).Str("trade", id).Msg("Impact job enqueue failed")
	}
}

func (r *Recorder) nextID(t whales.VenueTrade) string {
	key := t.MarketID + "|" + t.Taker.Hex() + "|" + t.Timestamp.UTC().Format("20060102150405")
	r.mu.Lock()
	seq := r.seq[key]
	r.seq[key] = seq + 1
	if len(r.seq) > 65536 {
		r.seq = make(map[string]int)
	}
	r.mu.Unlock()
	return TradeID(t.MarketID, t.Taker.Hex(), t.Timestamp, seq)
}

// Start runs the snapshot and impact loops.
func (r *Recorder) Start() {
	r.wg.Add(2)
	go r.snapshotLoop()
	go r.impactLoop()
}

// Stop halts both loops.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *Recorder) snapshotLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			r.snapshot(now.Truncate(time.Minute))
		case <-r.stopCh:
			return
		}
	}
}

func (r *Recorder) snapshot(minute time.Time) {
	for _, assetID := range r.source.TrackedAssets() {
		price, ok := r.source.CurrentMid(assetID)
		if !ok {
			continue
		}
		spread, _ := r.source.CurrentSpread(assetID)
		snap := &MarketSnapshot{
			AssetID: assetID,
			Minute:  minute,
			Price:   price,
			Spread:  spread,
		}
		if err := r.archive.SaveSnapshot(snap); err != nil {
			log.Warn().Err(err).Str("asset", assetID).Msg("Snapshot save failed")
		}
	}
}

func (r *Recorder) impactLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			r.runImpactJobs(now)
		case <-r.stopCh:
			return
		}
	}
}

func (r *Recorder) runImpactJobs(now time.Time) {
	jobs, err := r.archive.DueImpactJobs(now, 100)
	if err != nil {
		log.Warn().Err(err).Msg("Impact job fetch failed")
		return
	}
	for i := range jobs {
		job := &jobs[i]
		price, ok := r.source.CurrentMid(job.AssetID)
		if !ok {
			if err := r.archive.FailImpactJob(job, time.Minute); err != nil {
				log.Warn().Err(err).Uint("job", job.ID).Msg("Impact job retry failed")
			}
			continue
		}
		if err := r.archive.CompleteImpactJob(job, price); err != nil {
			log.Warn().Err(err).Uint("job", job.ID).Msg("Impact job save failed")
		}
	}
}
