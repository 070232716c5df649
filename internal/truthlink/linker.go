package truthlink

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polyedge/internal/types"
)

// TrackedMarket is a market the linker has categorised.
type TrackedMarket struct {
	Market        types.Market
	TruthMap      TruthMap
	TrackedAt     time.Time
	LastRefreshed time.Time
}

// AffectedMarket is one market a truth event could move.
type AffectedMarket struct {
	Market    types.Market
	Relevance float64
	Direction types.Direction
}

// LinkedAlert joins a truth event to the markets it affects. The
// affected list is always non-empty and sorted by relevance descending.
type LinkedAlert struct {
	ID              string
	Timestamp       time.Time
	Source          types.AlertSource
	Title           string
	Summary         string
	Significance    Significance
	Confidence      types.Confidence
	Urgency         types.Priority
	AffectedMarkets []AffectedMarket
}

// MarketUniverse supplies the active market list on refresh.
type MarketUniverse interface {
	ListActiveMarkets() ([]types.Market, error)
}

// Sources bundles the optional truth emitters. Any channel may be nil;
// the linker functions with none attached.
type Sources struct {
	Venue    MarketUniverse
	Congress <-chan CongressEvent
	Weather  <-chan WeatherEvent
	Fed      <-chan FedEvent
	Sports   <-chan SportsEvent
}

// WatchEntry marks a market for preferential (or exclusive) alerting.
type WatchEntry struct {
	AssetID       string
	MinConfidence *types.Confidence
}

// Linker maps truth-source events onto tracked markets. The tracked map
// is single-writer: only the linker's own goroutines mutate it.
type Linker struct {
	rules   []CategoryRule
	refresh time.Duration

	mu        sync.RWMutex
	tracked   map[string]*TrackedMarket
	watch     map[string]WatchEntry
	exclusive bool

	listeners []func(LinkedAlert)

	universe    MarketUniverse
	lastRefresh time.Time
	lastError   error

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewLinker creates a linker with the given categorisation rules.
func NewLinker(rules []CategoryRule, refresh time.Duration) *Linker {
	return &Linker{
		rules:   rules,
		refresh: refresh,
		tracked: make(map[string]*TrackedMarket),
		watch:   make(map[string]WatchEntry),
		stopCh:  make(chan struct{}),
	}
}

// AddListener registers an alert consumer. Listeners run on the linker's
// dispatch goroutines and must not block.
func (l *Linker) AddListener(fn func(LinkedAlert)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Attach wires the sources and starts the refresh and dispatch loops.
func (l *Linker) Attach(src Sources) {
	l.universe = src.Venue

	if src.Venue != nil {
		go l.refreshLoop()
	}
	if src.Congress != nil {
		go dispatch(l.stopCh, src.Congress, l.handleCongress)
	}
	if src.Weather != nil {
		go dispatch(l.stopCh, src.Weather, l.handleWeather)
	}
	if src.Fed != nil {
		go dispatch(l.stopCh, src.Fed, l.handleFed)
	}
	if src.Sports != nil {
		go dispatch(l.stopCh, src.Sports, l.handleSports)
	}

	log.Info().
		Bool("congress", src.Congress != nil).
		Bool("weather", src.Weather != nil).
		Bool("fed", src.Fed != nil).
		Bool("sports", src.Sports != nil).
		Msg("🔗 Truth-market linker attached")
}

// Stop terminates all linker goroutines.
func (l *Linker) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func dispatch[T any](stop <-chan struct{}, ch <-chan T, handle func(T)) {
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			handle(ev)
		}
	}
}

// ─── Market universe refresh ──────────────────────────────────────────────────

func (l *Linker) refreshLoop() {
	l.refreshUniverse()

	ticker := time.NewTicker(l.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.refreshUniverse()
		}
	}
}

// refreshUniverse categorises new markets and refreshes tracked prices.
// A fetch failure leaves the tracked set untouched.
func (l *Linker) refreshUniverse() {
	markets, err := l.universe.ListActiveMarkets()

	l.mu.Lock()
	defer l.mu.Unlock()

	if err != nil {
		l.lastError = err
		log.Warn().Err(err).Msg("Market universe refresh failed, keeping tracked markets")
		return
	}
	l.lastError = nil
	l.lastRefresh = time.Now()

	added := 0
	for i := range markets {
		m := markets[i]
		if tm, ok := l.tracked[m.AssetID]; ok {
			tm.Market = m
			tm.LastRefreshed = time.Now()
			continue
		}
		truthMap, ok := Categorize(l.rules, m.Question+" "+m.Description)
		if !ok {
			continue
		}
		l.tracked[m.AssetID] = &TrackedMarket{
			Market:        m,
			TruthMap:      truthMap,
			TrackedAt:     time.Now(),
			LastRefreshed: time.Now(),
		}
		added++
	}

	if added > 0 {
		log.Info().Int("added", added).Int("tracked", len(l.tracked)).Msg("🗺️ Market universe refreshed")
	}
}

// TrackMarket registers a market with an explicit truth map, bypassing
// categorisation.
func (l *Linker) TrackMarket(m types.Market, tm TruthMap) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracked[m.AssetID] = &TrackedMarket{
		Market:        m,
		TruthMap:      tm,
		TrackedAt:     time.Now(),
		LastRefreshed: time.Now(),
	}
}

// TrackedMarkets returns a shallow clone of the tracked map.
func (l *Linker) TrackedMarkets() map[string]TrackedMarket {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]TrackedMarket, len(l.tracked))
	for id, tm := range l.tracked {
		out[id] = *tm
	}
	return out
}

// SetWatchlist installs the watchlist. In exclusive mode only watched
// markets survive linking; otherwise watched markets get a relevance
// boost.
func (l *Linker) SetWatchlist(entries []WatchEntry, exclusive bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watch = make(map[string]WatchEntry, len(entries))
	for _, e := range entries {
		l.watch[e.AssetID] = e
	}
	l.exclusive = exclusive
	log.Info().Int("watched", len(entries)).Bool("exclusive", exclusive).Msg("👀 Watchlist updated")
}

// Status reports refresh health for the /health endpoint.
func (l *Linker) Status() (lastRefresh time.Time, lastError error, trackedCount int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastRefresh, l.lastError, len(l.tracked)
}

// ─── Source handlers ──────────────────────────────────────────────────────────

func (l *Linker) handleCongress(ev CongressEvent) {
	enacted := congressEnactment(ev)
	failed := congressFailure(ev)
	if !enacted && !failed {
		// No directional read on procedural actions.
		return
	}

	affected := l.collectAffected(func(tm *TrackedMarket) (float64, types.Direction, bool) {
		if tm.TruthMap.Category != CategoryGovernmentShutdown && tm.TruthMap.Category != CategoryLegislation {
			return 0, "", false
		}

		relevance := 0.0
		if matchesPatterns(ev.Title, tm.TruthMap.BillPatterns) {
			relevance = 0.8
		} else if k := countKeywordHits(ev.Title+" "+ev.ActionText, tm.TruthMap.Keywords); k >= 1 {
			relevance = 0.5 + 0.1*float64(k)
			if relevance > 0.9 {
				relevance = 0.9
			}
		}
		if relevance == 0 {
			return 0, "", false
		}

		// A funding bill becoming law makes a shutdown less likely; a
		// generic legislation market resolves the other way around.
		var dir types.Direction
		if tm.TruthMap.Category == CategoryGovernmentShutdown {
			dir = types.DirectionDown
			if failed {
				dir = types.DirectionUp
			}
		} else {
			dir = types.DirectionUp
			if failed {
				dir = types.DirectionDown
			}
		}
		return relevance, dir, true
	})

	l.emit(types.SourceCongress, ev.Significance, affected,
		congressTitle(ev), ev.ActionText, ev.Timestamp)
}

func (l *Linker) handleWeather(ev WeatherEvent) {
	headline := strings.ToLower(ev.EventName + " " + ev.Headline)
	tropical := strings.Contains(headline, "tropical") ||
		strings.Contains(headline, "hurricane") ||
		strings.Contains(headline, "cyclone")

	affected := l.collectAffected(func(tm *TrackedMarket) (float64, types.Direction, bool) {
		switch tm.TruthMap.Category {
		case CategoryHurricane:
			if tropical {
				return 0.9, types.DirectionUp, true
			}
		case CategoryWeather:
		default:
			return 0, "", false
		}
		if countKeywordHits(ev.EventName+" "+ev.Headline, tm.TruthMap.Keywords) >= 1 {
			return 0.7, types.DirectionUp, true
		}
		return 0, "", false
	})

	l.emit(types.SourceWeather, ev.Significance, affected, ev.EventName, ev.Headline, ev.Timestamp)
}

func (l *Linker) handleFed(ev FedEvent) {
	var relevance float64
	switch ev.Type {
	case FedFOMCStatement, FedRateDecision:
		relevance = 0.95
	case FedFOMCMinutes:
		relevance = 0.7
	default:
		relevance = 0.5
	}

	affected := l.collectAffected(func(tm *TrackedMarket) (float64, types.Direction, bool) {
		if tm.TruthMap.Category != CategoryFedRate {
			return 0, "", false
		}
		question := strings.ToLower(tm.Market.Question)
		// Guard against categorisation false positives: the question
		// itself must mention the Fed or rates.
		if !containsWord(question, "fed") && !containsWord(question, "fomc") &&
			!strings.Contains(question, "federal reserve") && !containsWord(question, "rate") {
			return 0, "", false
		}

		dovish := ev.RateDecision == "cut" || ev.Sentiment == SentimentDovish
		hawkish := ev.RateDecision == "hike" || ev.Sentiment == SentimentHawkish
		if !dovish && !hawkish {
			return 0, "", false
		}

		cutMarket := containsWord(question, "cut") || strings.Contains(question, "lower")
		hikeMarket := containsWord(question, "hike") || containsWord(question, "raise")
		switch {
		case cutMarket && dovish:
			return relevance, types.DirectionUp, true
		case cutMarket && hawkish:
			return relevance, types.DirectionDown, true
		case hikeMarket && hawkish:
			return relevance, types.DirectionUp, true
		case hikeMarket && dovish:
			return relevance, types.DirectionDown, true
		}
		return 0, "", false
	})

	l.emit(types.SourceFed, ev.Significance, affected, fedTitle(ev), string(ev.Sentiment), ev.Timestamp)
}

func (l *Linker) handleSports(ev SportsEvent) {
	playerOut := strings.EqualFold(ev.Status, "out")
	upgraded := ev.IsUpdate &&
		(strings.EqualFold(ev.PreviousStatus, "out") || strings.EqualFold(ev.PreviousStatus, "doubtful")) &&
		!playerOut && !strings.EqualFold(ev.Status, "doubtful")

	affected := l.collectAffected(func(tm *TrackedMarket) (float64, types.Direction, bool) {
		question := strings.ToLower(tm.Market.Question)

		switch tm.TruthMap.Category {
		case CategorySportsPlayer:
			if ev.Player == "" || !strings.Contains(question, strings.ToLower(ev.Player)) {
				return 0, "", false
			}
			if playerOut {
				return 0.95, types.DirectionDown, true
			}
			if upgraded {
				return 0.95, types.DirectionUp, true
			}
			return 0, "", false

		case CategorySportsOutcome:
			if ev.Significance < SignificanceCritical {
				return 0, "", false
			}
			teamHit := (ev.Team != "" && strings.Contains(question, strings.ToLower(ev.Team))) ||
				(ev.TeamAbbr != "" && containsWord(question, strings.ToLower(ev.TeamAbbr)))
			if teamHit && playerOut {
				// Losing a star player hurts bets on that team winning.
				return 0.7, types.DirectionDown, true
			}
			return 0, "", false
		}
		return 0, "", false
	})

	l.emit(types.SourceSports, ev.Significance, affected, sportsTitle(ev), ev.Status, ev.Timestamp)
}

// ─── Linking machinery ────────────────────────────────────────────────────────

// collectAffected scores every tracked market with the supplied scorer.
func (l *Linker) collectAffected(score func(*TrackedMarket) (float64, types.Direction, bool)) []AffectedMarket {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var affected []AffectedMarket
	for _, tm := range l.tracked {
		relevance, dir, ok := score(tm)
		if !ok || relevance <= 0 {
			continue
		}
		affected = append(affected, AffectedMarket{
			Market:    tm.Market,
			Relevance: relevance,
			Direction: dir,
		})
	}
	return affected
}

// emit applies the watchlist, ranks, and notifies listeners. An empty
// affected set is dropped silently.
func (l *Linker) emit(source types.AlertSource, sig Significance, affected []AffectedMarket, title, summary string, ts time.Time) {
	l.mu.RLock()
	watch := l.watch
	exclusive := l.exclusive
	listeners := append([]func(LinkedAlert){}, l.listeners...)
	l.mu.RUnlock()

	filtered := make([]AffectedMarket, 0, len(affected))
	for _, am := range affected {
		_, watched := watch[am.Market.AssetID]
		if exclusive && !watched {
			continue
		}
		if watched && !exclusive {
			am.Relevance += 0.2
			if am.Relevance > 1 {
				am.Relevance = 1
			}
		}
		filtered = append(filtered, am)
	}
	if len(filtered) == 0 {
		return
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Relevance > filtered[j].Relevance
	})

	confidence := mapConfidence(avgRelevance(filtered), sig)

	// Per-market confidence floors from the watchlist.
	final := make([]AffectedMarket, 0, len(filtered))
	for _, am := range filtered {
		if entry, watched := watch[am.Market.AssetID]; watched && entry.MinConfidence != nil && confidence < *entry.MinConfidence {
			continue
		}
		final = append(final, am)
	}
	if len(final) == 0 {
		return
	}

	alert := LinkedAlert{
		ID:              uuid.New().String(),
		Timestamp:       ts,
		Source:          source,
		Title:           title,
		Summary:         summary,
		Significance:    sig,
		Confidence:      confidence,
		Urgency:         significancePriority(sig),
		AffectedMarkets: final,
	}

	log.Info().
		Str("source", string(source)).
		Str("title", title).
		Int("markets", len(final)).
		Str("confidence", confidence.String()).
		Msg("🔗 Linked alert")

	for _, fn := range listeners {
		fn(alert)
	}
}

func avgRelevance(markets []AffectedMarket) float64 {
	total := 0.0
	for _, am := range markets {
		total += am.Relevance
	}
	return total / float64(len(markets))
}

// mapConfidence combines average relevance with event significance.
func mapConfidence(avg float64, sig Significance) types.Confidence {
	switch {
	case avg >= 0.8 && sig >= SignificanceHigh:
		return types.ConfidenceVeryHigh
	case avg >= 0.8 || (avg >= 0.6 && sig >= SignificanceMedium):
		return types.ConfidenceHigh
	case avg >= 0.4:
		return types.ConfidenceMedium
	}
	return types.ConfidenceLow
}

func significancePriority(sig Significance) types.Priority {
	switch sig {
	case SignificanceCritical:
		return types.PriorityCritical
	case SignificanceHigh:
		return types.PriorityHigh
	case SignificanceMedium:
		return types.PriorityMedium
	}
	return types.PriorityLow
}

// ─── Event descriptions ───────────────────────────────────────────────────────

func congressEnactment(ev CongressEvent) bool {
	action := strings.ToLower(ev.ActionType + " " + ev.ActionText)
	return strings.Contains(action, "became law") ||
		strings.Contains(action, "became_law") ||
		strings.Contains(action, "signed") ||
		strings.Contains(action, "enacted") ||
		strings.Contains(action, "passed")
}

func congressFailure(ev CongressEvent) bool {
	action := strings.ToLower(ev.ActionType + " " + ev.ActionText)
	return strings.Contains(action, "failed") ||
		strings.Contains(action, "rejected") ||
		strings.Contains(action, "vetoed")
}

func congressTitle(ev CongressEvent) string {
	if ev.BillID != "" {
		return ev.BillID + ": " + ev.Title
	}
	return ev.Title
}

func fedTitle(ev FedEvent) string {
	switch ev.Type {
	case FedRateDecision:
		return "Fed rate decision: " + ev.RateDecision
	case FedFOMCStatement:
		return "FOMC statement"
	case FedFOMCMinutes:
		return "FOMC minutes"
	}
	return "Fed speech"
}

func sportsTitle(ev SportsEvent) string {
	if ev.Player != "" {
		return ev.League + ": " + ev.Player + " " + ev.Status
	}
	return ev.League + ": " + ev.Team + " update"
}
