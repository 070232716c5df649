package alerts

import (
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polyedge/internal/types"
)

// Channel delivers alerts to one sink.
type Channel interface {
	Name() string
	MinPriority() types.Priority
	Send(alert types.Alert) error
}

// Options tune deduplication and the global output rate.
type Options struct {
	DedupeWindow time.Duration
	RatePerMin   int // non-critical alerts admitted per sliding minute
	KeepRecent   int // alerts retained for the API, 0 disables
}

// DefaultOptions mirror the engine defaults.
func DefaultOptions() Options {
	return Options{
		DedupeWindow: 60 * time.Second,
		RatePerMin:   60,
		KeepRecent:   200,
	}
}

// Engine normalises, de-duplicates, rate-limits and fans alerts out.
// Channels are fixed at construction; only the dedupe window and the
// recent buffer mutate afterwards, under the mutex.
type Engine struct {
	channels []Channel
	opts     Options

	mu     sync.Mutex
	seen   map[uint64]time.Time
	window []time.Time // admit times of the last minute, oldest first
	recent []types.Alert

	published uint64
	deduped   uint64
	dropped   uint64
}

// NewEngine builds the alert engine over the given channels.
func NewEngine(channels []Channel, opts Options) *Engine {
	return &Engine{
		channels: channels,
		opts:     opts,
		seen:     make(map[uint64]time.Time),
	}
}

// Publish runs an alert through dedupe and the rate limiter, then fans
// it out. Channel failures are isolated: one failing sink never blocks
// the others.
func (e *Engine) Publish(alert types.Alert) {
	key := dedupeKey(alert)

	e.mu.Lock()
	if last, ok := e.seen[key]; ok && alert.Timestamp.Sub(last) < e.opts.DedupeWindow {
		e.deduped++
		e.mu.Unlock()
		return
	}
	e.seen[key] = alert.Timestamp
	e.pruneSeenLocked(alert.Timestamp)
	e.mu.Unlock()

	// Critical alerts bypass the window and never consume capacity.
	if alert.Priority < types.PriorityCritical {
		e.mu.Lock()
		cutoff := alert.Timestamp.Add(-time.Minute)
		i := 0
		for i < len(e.window) && !e.window[i].After(cutoff) {
			i++
		}
		e.window = e.window[i:]
		if len(e.window) >= e.opts.RatePerMin {
			e.dropped++
			e.mu.Unlock()
			log.Warn().Str("title", alert.Title).Str("priority", alert.Priority.String()).
				Msg("Alert rate limit hit, dropping")
			return
		}
		e.window = append(e.window, alert.Timestamp)
		e.mu.Unlock()
	}

	e.mu.Lock()
	e.published++
	if e.opts.KeepRecent > 0 {
		e.recent = append(e.recent, alert)
		if len(e.recent) > e.opts.KeepRecent {
			e.recent = e.recent[len(e.recent)-e.opts.KeepRecent:]
		}
	}
	e.mu.Unlock()

	for _, ch := range e.channels {
		if alert.Priority < ch.MinPriority() {
			continue
		}
		if err := ch.Send(alert); err != nil {
			log.Error().Err(err).Str("channel", ch.Name()).Str("alert", alert.ID).
				Msg("Alert channel delivery failed")
		}
	}
}

// Recent returns the newest retained alerts, newest first.
func (e *Engine) Recent(limit int) []types.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.recent)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]types.Alert, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, e.recent[i])
	}
	return out
}

// Stats reports publish counters for the health endpoint.
func (e *Engine) Stats() (published, deduped, dropped uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.published, e.deduped, e.dropped
}

func (e *Engine) pruneSeenLocked(now time.Time) {
	if len(e.seen) < 1024 {
		return
	}
	cutoff := now.Add(-e.opts.DedupeWindow)
	for k, ts := range e.seen {
		if ts.Before(cutoff) {
			delete(e.seen, k)
		}
	}
}

// dedupeKey hashes source type, title and a normalised body prefix so
// near-identical alerts within the window collapse.
func dedupeKey(alert types.Alert) uint64 {
	body := strings.ToLower(strings.Join(strings.Fields(alert.Body), " "))
	if len(body) > 120 {
		body = body[:120]
	}
	h := fnv.New64a()
	h.Write([]byte(string(alert.Source)))
	h.Write([]byte{0})
	if t, ok := alert.Metadata["type"]; ok {
		h.Write([]byte(t))
		h.Write([]byte{0})
	}
	h.Write([]byte(alert.Title))
	h.Write([]byte{0})
	h.Write([]byte(body))
	return h.Sum64()
}

// FormatCount renders channel counts for startup logging.
func FormatCount(channels []Channel) string {
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name())
	}
	return strconv.Itoa(len(names)) + " (" + strings.Join(names, ", ") + ")"
}
