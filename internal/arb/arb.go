package arb

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polyedge/internal/types"
)

// RelationType classifies how two markets constrain each other.
type RelationType string

const (
	RelationInverse           RelationType = "inverse"
	RelationMutuallyExclusive RelationType = "mutually_exclusive"
	RelationSubset            RelationType = "subset"
	RelationCorrelated        RelationType = "correlated"
)

// Relation is one detected pair relationship with its constraint.
type Relation struct {
	Type   RelationType
	A, B   string // asset ids
	Target decimal.Decimal
	Factor decimal.Decimal
	Tol    decimal.Decimal
}

// Leg names one side of an arbitrage with the action to take.
type Leg struct {
	AssetID  string
	Question string
	Price    decimal.Decimal
	Action   string // buy_yes or buy_no
}

// Opportunity is one constraint violation worth acting on.
type Opportunity struct {
	Type         RelationType
	Legs         []Leg
	ExpectedEdge decimal.Decimal
	Urgency      string
	DetectedAt   time.Time
}

// MarketLister supplies the market snapshot each tick scans.
type MarketLister interface {
	ListActiveMarkets() ([]types.Market, error)
}

// Options tune the detector.
type Options struct {
	MinEdge decimal.Decimal
	Tick    time.Duration
}

// DefaultOptions mirror the engine defaults.
func DefaultOptions() Options {
	return Options{
		MinEdge: decimal.NewFromFloat(0.02),
		Tick:    30 * time.Second,
	}
}

// Detector scans known markets on a fixed tick for pair constraint
// violations.
type Detector struct {
	lister MarketLister
	opts   Options

	mu        sync.Mutex
	recent    map[string]time.Time // pair+type -> last emit
	listeners []func(Opportunity)

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewDetector creates an arbitrage detector over the given market source.
func NewDetector(lister MarketLister, opts Options) *Detector {
	return &Detector{
		lister: lister,
		opts:   opts,
		recent: make(map[string]time.Time),
		stopCh: make(chan struct{}),
	}
}

// AddListener registers an opportunity consumer.
func (d *Detector) AddListener(fn func(Opportunity)) {
	d.mu.Lock()
	d.listeners = append(d.listeners, fn)
	d.mu.Unlock()
}

// Start runs the scan loop.
func (d *Detector) Start() {
	go func() {
		ticker := time.NewTicker(d.opts.Tick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.tick(time.Now())
			case <-d.stopCh:
				return
			}
		}
	}()
}

// Stop halts the scan loop.
func (d *Detector) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

func (d *Detector) tick(now time.Time) {
	markets, err := d.lister.ListActiveMarkets()
	if err != nil {
		log.Warn().Err(err).Msg("Arb scan skipped, market fetch failed")
		return
	}
	for _, opp := range d.Scan(markets, now) {
		d.mu.Lock()
		listeners := append([]func(Opportunity){}, d.listeners...)
		d.mu.Unlock()
		for _, fn := range listeners {
			fn(opp)
		}
	}
}

// Scan detects relations across the snapshot and checks each
// constraint. Exported for tests and replay tooling.
func (d *Detector) Scan(markets []types.Market, now time.Time) []Opportunity {
	byAsset := make(map[string]types.Market, len(markets))
	for _, m := range markets {
		byAsset[m.AssetID] = m
	}

	var out []Opportunity
	for _, rel := range DetectRelations(markets) {
		a, okA := byAsset[rel.A]
		b, okB := byAsset[rel.B]
		if !okA || !okB {
			continue
		}
		opp := checkRelation(rel, a, b, now)
		if opp == nil || opp.ExpectedEdge.LessThan(d.opts.MinEdge) {
			continue
		}

		key := rel.A + "|" + rel.B + "|" + string(rel.Type)
		d.mu.Lock()
		if last, ok := d.recent[key]; ok && now.Sub(last) < 5*time.Minute {
			d.mu.Unlock()
			continue
		}
		d.recent[key] = now
		d.mu.Unlock()

		log.Info().
			Str("type", string(rel.Type)).
			Str("edge", opp.ExpectedEdge.StringFixed(4)).
			Msg("💰 Arbitrage opportunity")
		out = append(out, *opp)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExpectedEdge.GreaterThan(out[j].ExpectedEdge)
	})
	return out
}

// checkRelation evaluates one constraint against current yes prices.
func checkRelation(rel Relation, a, b types.Market, now time.Time) *Opportunity {
	pa, pb := a.YesPrice(), b.YesPrice()
	if pa.IsZero() || pb.IsZero() {
		return nil
	}
	one := decimal.NewFromInt(1)

	switch rel.Type {
	case RelationMutuallyExclusive:
		// P(A) + P(B) can sum to at most 1: both cannot happen.
		sum := pa.Add(pb)
		if sum.LessThanOrEqual(one.Add(rel.Tol)) {
			return nil
		}
		return &Opportunity{
			Type: rel.Type,
			Legs: []Leg{
				{AssetID: a.AssetID, Question: a.Question, Price: pa, Action: "buy_no"},
				{AssetID: b.AssetID, Question: b.Question, Price: pb, Action: "buy_no"},
			},
			ExpectedEdge: sum.Sub(one),
			Urgency:      "immediate",
			DetectedAt:   now,
		}

	case RelationInverse:
		// Yes/No legs of the same question must sum to 1.
		deviation := pa.Add(pb).Sub(rel.Target).Abs()
		if deviation.LessThanOrEqual(rel.Tol) {
			return nil
		}
		action := "buy_yes"
		if pa.Add(pb).GreaterThan(rel.Target) {
			action = "buy_no"
		}
		return &Opportunity{
			Type: rel.Type,
			Legs: []Leg{
				{AssetID: a.AssetID, Question: a.Question, Price: pa, Action: action},
				{AssetID: b.AssetID, Question: b.Question, Price: pb, Action: action},
			},
			ExpectedEdge: deviation,
			Urgency:      "immediate",
			DetectedAt:   now,
		}

	case RelationCorrelated:
		deviation := pb.Sub(rel.Factor.Mul(pa)).Abs()
		if deviation.LessThanOrEqual(rel.Tol) {
			return nil
		}
		return &Opportunity{
			Type: rel.Type,
			Legs: []Leg{
				{AssetID: a.AssetID, Question: a.Question, Price: pa, Action: "buy_yes"},
				{AssetID: b.AssetID, Question: b.Question, Price: pb, Action: "buy_no"},
			},
			ExpectedEdge: deviation,
			Urgency:      "hours",
			DetectedAt:   now,
		}

	case RelationSubset:
		// A implies B, so P(A) can never exceed P(B).
		if pa.LessThanOrEqual(pb.Add(rel.Tol)) {
			return nil
		}
		return &Opportunity{
			Type: rel.Type,
			Legs: []Leg{
				{AssetID: a.AssetID, Question: a.Question, Price: pa, Action: "buy_no"},
				{AssetID: b.AssetID, Question: b.Question, Price: pb, Action: "buy_yes"},
			},
			ExpectedEdge: pa.Sub(pb),
			Urgency:      "hours",
			DetectedAt:   now,
		}
	}
	return nil
}

// ─── Relation detection heuristics ────────────────────────────────────────────

var (
	winsPattern   = regexp.MustCompile(`(?i)\b(.+?)\s+(?:wins|to win|will win)\b`)
	byNPattern    = regexp.MustCompile(`(?i)\bby\s+(\d+(?:\.\d+)?)`)
	beforePattern = regexp.MustCompile(`(?i)\bbefore\s+([a-z]+\s+\d{1,2}|\d{4})`)
)

var tol = decimal.NewFromFloat(0.02)

// DetectRelations pairs markets whose questions imply a constraint.
func DetectRelations(markets []types.Market) []Relation {
	var relations []Relation
	one := decimal.NewFromInt(1)

	for i := 0; i < len(markets); i++ {
		for j := i + 1; j < len(markets); j++ {
			a, b := markets[i], markets[j]

			if isYesNoVariant(a, b) {
				relations = append(relations, Relation{
					Type: RelationInverse, A: a.AssetID, B: b.AssetID, Target: one, Tol: tol,
				})
				continue
			}
			if isMutuallyExclusive(a.Question, b.Question) {
				relations = append(relations, Relation{
					Type: RelationMutuallyExclusive, A: a.AssetID, B: b.AssetID, Target: one, Tol: tol,
				})
				continue
			}
			if sub, sup, ok := subsetPair(a, b); ok {
				relations = append(relations, Relation{
					Type: RelationSubset, A: sub, B: sup, Tol: tol,
				})
			}
		}
	}
	return relations
}

// isYesNoVariant matches the two outcome tokens of one condition.
func isYesNoVariant(a, b types.Market) bool {
	return a.ConditionID != "" && a.ConditionID == b.ConditionID && a.AssetID != b.AssetID
}

// isMutuallyExclusive matches "X wins" style questions about different
// subjects that share enough context words.
func isMutuallyExclusive(qa, qb string) bool {
	ma := winsPattern.FindStringSubmatch(qa)
	mb := winsPattern.FindStringSubmatch(qb)
	if ma == nil || mb == nil {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(ma[1]), strings.TrimSpace(mb[1])) {
		return false
	}
	return sharedContextWords(qa, qb) >= 1
}

// subsetPair matches "by N" and "before DATE" variants of the same
// question: the stricter market is the subset.
func subsetPair(a, b types.Market) (sub, sup string, ok bool) {
	na := byNPattern.FindStringSubmatch(a.Question)
	nb := byNPattern.FindStringSubmatch(b.Question)
	if na != nil && nb != nil && sharedContextWords(a.Question, b.Question) >= 3 {
		da, errA := decimal.NewFromString(na[1])
		db, errB := decimal.NewFromString(nb[1])
		if errA == nil && errB == nil && !da.Equal(db) {
			// Winning by more is the stricter claim.
			if da.GreaterThan(db) {
				return a.AssetID, b.AssetID, true
			}
			return b.AssetID, a.AssetID, true
		}
	}

	ba := beforePattern.MatchString(a.Question)
	bb := beforePattern.MatchString(b.Question)
	if ba != bb && sharedContextWords(a.Question, b.Question) >= 3 {
		// The dated variant is the stricter claim.
		if ba {
			return a.AssetID, b.AssetID, true
		}
		return b.AssetID, a.AssetID, true
	}
	return "", "", false
}

var stopWords = map[string]bool{
	"will": true, "the": true, "a": true, "an": true, "to": true, "in": true,
	"by": true, "of": true, "on": true, "win": true, "wins": true, "be": true,
}

func sharedContextWords(qa, qb string) int {
	wordsA := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(qa)) {
		w = strings.Trim(w, "?.,!\"'")
		if len(w) > 2 && !stopWords[w] {
			wordsA[w] = true
		}
	}
	shared := 0
	for _, w := range strings.Fields(strings.ToLower(qb)) {
		w = strings.Trim(w, "?.,!\"'")
		if wordsA[w] {
			shared++
			delete(wordsA, w)
		}
	}
	return shared
}
