package whales

import (
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// UniverseOptions bound which wallets qualify for tracking.
type UniverseOptions struct {
	MinTrades int
	MinVolume decimal.Decimal
	Bootstrap []common.Address
}

// DefaultUniverseOptions mirror the engine defaults.
func DefaultUniverseOptions() UniverseOptions {
	return UniverseOptions{
		MinTrades: 10,
		MinVolume: decimal.NewFromInt(10000),
	}
}

// Universe is the current set of tracked whales, rebuilt periodically
// from trade-store aggregates.
type Universe struct {
	mu      sync.RWMutex
	whales  map[common.Address]*Whale
	opts    UniverseOptions
	store   *TradeStore
	rebuilt time.Time
}

// NewUniverse seeds the universe with bootstrap wallets at the tracked
// tier. Bootstrapped wallets stay tracked until trade data qualifies
// them for a higher tier.
func NewUniverse(store *TradeStore, opts UniverseOptions) *Universe {
	u := &Universe{
		whales: make(map[common.Address]*Whale),
		opts:   opts,
		store:  store,
	}
	for _, addr := range opts.Bootstrap {
		u.whales[addr] = &Whale{Address: addr, Tier: TierTracked,
			PnL7d: decimal.Zero, PnL30d: decimal.Zero, Volume7d: decimal.Zero, Volume30d: decimal.Zero}
	}
	return u
}

// Lookup returns the whale record for an address, if tracked.
func (u *Universe) Lookup(addr common.Address) (*Whale, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	w, ok := u.whales[addr]
	return w, ok
}

// Contains reports whether the address is in the tracked universe.
func (u *Universe) Contains(addr common.Address) bool {
	_, ok := u.Lookup(addr)
	return ok
}

// Whales returns a snapshot of the universe sorted by 7-day PnL.
func (u *Universe) Whales() []*Whale {
	u.mu.RLock()
	out := make([]*Whale, 0, len(u.whales))
	for _, w := range u.whales {
		cp := *w
		out = append(out, &cp)
	}
	u.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].PnL7d.GreaterThan(out[j].PnL7d)
	})
	return out
}

// LastRebuild reports when the universe was last rebuilt.
func (u *Universe) LastRebuild() time.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.rebuilt
}

// rankEntry pairs a wallet with its ranking score.
type rankEntry struct {
	addr  common.Address
	score decimal.Decimal
	stats7, stats30 WalletStats
}

// Rebuild recomputes the universe from 7- and 30-day trade aggregates.
//
// Wallets qualify through either ranking ladder: top 50 by volume score
// max(vol7d, vol30d/4) or top 50 by profit score max(pnl7d, pnl30d/4),
// subject to the trade-count and volume minima. The top10 tier goes to
// wallets in the top 10 of both ladders, or the top 5 of either.
// Bootstrap wallets that never qualify stay at the tracked tier.
func (u *Universe) Rebuild(now time.Time) {
	stats7 := u.store.AllWalletStats(7*24*time.Hour, now)
	stats30 := u.store.AllWalletStats(30*24*time.Hour, now)

	four := decimal.NewFromInt(4)
	var volRank, pnlRank []rankEntry
	for addr, s30 := range stats30 {
		s7 := stats7[addr]
		if s30.TradeCount < u.opts.MinTrades || s30.Volume.LessThan(u.opts.MinVolume) {
			continue
		}
		volScore := decimal.Max(s7.Volume, s30.Volume.Div(four))
		pnlScore := decimal.Max(s7.PnL, s30.PnL.Div(four))
		volRank = append(volRank, rankEntry{addr: addr, score: volScore, stats7: s7, stats30: s30})
		pnlRank = append(pnlRank, rankEntry{addr: addr, score: pnlScore, stats7: s7, stats30: s30})
	}

	sortRank(volRank)
	sortRank(pnlRank)
	if len(volRank) > 50 {
		volRank = volRank[:50]
	}
	if len(pnlRank) > 50 {
		pnlRank = pnlRank[:50]
	}

	volPos := rankPositions(volRank)
	pnlPos := rankPositions(pnlRank)

	next := make(map[common.Address]*Whale)
	addWhale := func(e rankEntry) {
		if _, ok := next[e.addr]; ok {
			return
		}
		tier := TierTop50
		vp, inVol := volPos[e.addr]
		pp, inPnl := pnlPos[e.addr]
		if (inVol && vp < 10 && inPnl && pp < 10) || (inVol && vp < 5) || (inPnl && pp < 5) {
			tier = TierTop10
		}
		w := &Whale{
			Address:         e.addr,
			PnL7d:           e.stats7.PnL,
			PnL30d:          e.stats30.PnL,
			Volume7d:        e.stats7.Volume,
			Volume30d:       e.stats30.Volume,
			TradeCount7d:    e.stats7.TradeCount,
			TradeCount30d:   e.stats30.TradeCount,
			EarlyEntryScore: e.stats30.EarlyEntryScore,
			Tier:            tier,
			LastSeen:        now,
		}
		w.CopySuitability = copySuitability(e.stats30)
		next[e.addr] = w
	}
	for _, e := range volRank {
		addWhale(e)
	}
	for _, e := range pnlRank {
		addWhale(e)
	}

	u.mu.Lock()
	// Carry over display names and keep bootstrapped wallets tracked.
	for addr, old := range u.whales {
		if w, ok := next[addr]; ok {
			w.DisplayName = old.DisplayName
			continue
		}
		if old.Tier == TierTracked {
			next[addr] = old
		}
	}
	u.whales = next
	u.rebuilt = now
	u.mu.Unlock()

	log.Info().
		Int("whales", len(next)).
		Int("vol_ranked", len(volRank)).
		Int("pnl_ranked", len(pnlRank)).
		Msg("🐋 Whale universe rebuilt")
}

func sortRank(entries []rankEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].score.Equal(entries[j].score) {
			return entries[i].score.GreaterThan(entries[j].score)
		}
		return entries[i].addr.Hex() < entries[j].addr.Hex()
	})
}

func rankPositions(entries []rankEntry) map[common.Address]int {
	pos := make(map[common.Address]int, len(entries))
	for i, e := range entries {
		pos[e.addr] = i
	}
	return pos
}

// copySuitability scores how safely a wallet's trades could be copied,
// as a linear combination of behaviour traits clamped to 0..100.
func copySuitability(s WalletStats) float64 {
	score := 50.0

	// Longer holds copy better than scalps.
	switch {
	case s.AvgHoldHours >= 24:
		score += 15
	case s.AvgHoldHours >= 4:
		score += 8
	case s.AvgHoldHours > 0 && s.AvgHoldHours < 1:
		score -= 15
	}

	// Liquid markets mean copyable fills.
	avgMkt := s.AvgMarketVolume.InexactFloat64()
	switch {
	case avgMkt >= 100000:
		score += 10
	case avgMkt >= 25000:
		score += 5
	case avgMkt > 0 && avgMkt < 5000:
		score -= 10
	}

	// Consistency: low PnL volatility relative to volume.
	if vol := s.Volume.InexactFloat64(); vol > 0 {
		rel := s.PnLVolatility / vol
		switch {
		case rel < 0.01:
			score += 10
		case rel > 0.10:
			score -= 10
		}
	}

	// Takers are easier to follow than passive makers.
	switch {
	case s.MakerRatio <= 0.3:
		score += 5
	case s.MakerRatio >= 0.7:
		score -= 5
	}

	switch {
	case s.WinRate >= 0.6:
		score += 10
	case s.WinRate > 0 && s.WinRate < 0.4:
		score -= 10
	}

	switch {
	case s.EarlyEntryScore >= 60:
		score += 10
	case s.EarlyEntryScore < 20:
		score -= 5
	}

	return clamp100(score)
}
