package venue

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/web3guy0/polyedge/internal/types"
	"github.com/web3guy0/polyedge/internal/whales"
)

const defaultDataAPIURL = "https://data-api.polymarket.com"

// dataTrade is the wire shape of one trade row from the data API.
type dataTrade struct {
	TransactionHash string  `json:"transactionHash"`
	ConditionID     string  `json:"conditionId"`
	Asset           string  `json:"asset"`
	Outcome         string  `json:"outcome"`
	ProxyWallet     string  `json:"proxyWallet"`
	Maker           string  `json:"maker"`
	Side            string  `json:"side"`
	Price           float64 `json:"price"`
	Size            float64 `json:"size"`
	Timestamp       int64   `json:"timestamp"`
}

// TradeFeed polls the venue data API for recent trades and emits them
// in time order with both counterparties resolved.
type TradeFeed struct {
	baseURL string
	client  *resty.Client
	poll    time.Duration
	out     chan whales.VenueTrade

	mu       sync.Mutex
	lastSeen int64
	seen     map[string]struct{}
	lastErr  error
	lastOK   time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewTradeFeed creates a feed polling every interval.
func NewTradeFeed(poll time.Duration) *TradeFeed {
	return &TradeFeed{
		baseURL: defaultDataAPIURL,
		client: resty.New().
			SetTimeout(15 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(time.Second).
			SetRateLimiter(rate.NewLimiter(rate.Limit(5), 10)),
		poll:   poll,
		out:    make(chan whales.VenueTrade, 512),
		seen:   make(map[string]struct{}),
		stopCh: make(chan struct{}),
	}
}

// Trades returns the output channel. Closed on Stop.
func (f *TradeFeed) Trades() <-chan whales.VenueTrade {
	return f.out
}

// Start begins polling.
func (f *TradeFeed) Start() {
	go func() {
		defer close(f.out)
		ticker := time.NewTicker(f.poll)
		defer ticker.Stop()
		f.fetch()
		for {
			select {
			case <-ticker.C:
				f.fetch()
			case <-f.stopCh:
				return
			}
		}
	}()
}

// Stop halts polling and closes the output channel.
func (f *TradeFeed) Stop() {
	f.stopOnce.Do(func() { close(f.stopCh) })
}

// Status reports feed liveness for the health endpoint.
func (f *TradeFeed) Status() (connected bool, lastUpdate time.Time, lastError error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr == nil && !f.lastOK.IsZero(), f.lastOK, f.lastErr
}

func (f *TradeFeed) fetch() {
	params := url.Values{}
	params.Set("limit", "500")
	params.Set("takerOnly", "false")

	resp, err := f.client.R().Get(f.baseURL + "/trades?" + params.Encode())
	if err == nil && resp.IsError() {
		err = fmt.Errorf("trades fetch: status %d", resp.StatusCode())
	}
	if err != nil {
		f.mu.Lock()
		f.lastErr = err
		f.mu.Unlock()
		log.Warn().Err(err).Msg("Trade feed fetch failed")
		return
	}

	var rows []dataTrade
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		f.mu.Lock()
		f.lastErr = err
		f.mu.Unlock()
		log.Warn().Err(err).Msg("Trade feed decode failed")
		return
	}

	f.mu.Lock()
	f.lastErr = nil
	f.lastOK = time.Now()
	fresh := f.filterNew(rows)
	f.mu.Unlock()

	// Oldest first so downstream windows see time order.
	for i := len(fresh) - 1; i >= 0; i-- {
		t, ok := parseDataTrade(fresh[i])
		if !ok {
			continue
		}
		select {
		case f.out <- t:
		case <-f.stopCh:
			return
		}
	}
}

// filterNew drops rows already emitted. Caller holds the mutex.
func (f *TradeFeed) filterNew(rows []dataTrade) []dataTrade {
	var fresh []dataTrade
	maxTS := f.lastSeen
	for _, r := range rows {
		if r.Timestamp < f.lastSeen {
			continue
		}
		key := r.TransactionHash + "|" + r.Asset + "|" + r.ProxyWallet
		if _, dup := f.seen[key]; dup {
			continue
		}
		f.seen[key] = struct{}{}
		fresh = append(fresh, r)
		if r.Timestamp > maxTS {
			maxTS = r.Timestamp
		}
	}
	f.lastSeen = maxTS
	if len(f.seen) > 8192 {
		f.seen = make(map[string]struct{})
	}
	return fresh
}

func parseDataTrade(r dataTrade) (whales.VenueTrade, bool) {
	if r.Asset == "" || r.Price <= 0 || r.Size <= 0 {
		return whales.VenueTrade{}, false
	}
	price := decimal.NewFromFloat(r.Price)
	size := decimal.NewFromFloat(r.Size)

	outcome := types.OutcomeYes
	if strings.EqualFold(r.Outcome, "no") {
		outcome = types.OutcomeNo
	}
	side := types.SideBuy
	if strings.EqualFold(r.Side, "sell") {
		side = types.SideSell
	}

	return whales.VenueTrade{
		ID:        r.TransactionHash + "-" + r.Asset,
		MarketID:  r.ConditionID,
		AssetID:   r.Asset,
		Outcome:   outcome,
		Maker:     common.HexToAddress(r.Maker),
		Taker:     common.HexToAddress(r.ProxyWallet),
		Side:      side,
		Price:     price,
		Size:      size,
		Notional:  price.Mul(size),
		Timestamp: time.Unix(r.Timestamp, 0),
	}, true
}
