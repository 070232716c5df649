package venue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polyedge/internal/types"
)

// WSClient maintains the venue market-data websocket and republishes
// messages as Stream events. Book and price events for an asset may be
// coalesced under back-pressure (the next update supersedes the last);
// trades are never dropped while the client is running.
type WSClient struct {
	url string

	mu          sync.RWMutex
	conn        *websocket.Conn
	isConnected bool
	subscribed  map[string]bool // assetID -> subscribed
	lastError   error
	lastUpdate  time.Time

	eventCh  chan Event
	stopCh   chan struct{}
	stopOnce sync.Once

	dropped   uint64
	malformed uint64
}

// wsBookMsg is the initial order book snapshot (delivered as an array).
type wsBookMsg struct {
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Timestamp string `json:"timestamp"`
	Bids      []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"bids"`
	Asks []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"asks"`
}

// wsPriceChangeMsg is a real-time top-of-book update.
type wsPriceChangeMsg struct {
	EventType    string `json:"event_type"`
	Market       string `json:"market"`
	Timestamp    string `json:"timestamp"`
	PriceChanges []struct {
		AssetID string `json:"asset_id"`
		Price   string `json:"price"`
		Size    string `json:"size"`
		Side    string `json:"side"`
		BestBid string `json:"best_bid"`
		BestAsk string `json:"best_ask"`
	} `json:"price_changes"`
}

// wsTradeMsg is a last-trade-price print.
type wsTradeMsg struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Timestamp string `json:"timestamp"`
}

// NewWSClient creates a venue websocket client.
func NewWSClient(url string) *WSClient {
	return &WSClient{
		url:        url,
		subscribed: make(map[string]bool),
		eventCh:    make(chan Event, 4096),
		stopCh:     make(chan struct{}),
	}
}

// Connect establishes the websocket connection and starts the read loop.
func (c *WSClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isConnected {
		return nil
	}

	log.Info().Str("url", c.url).Msg("Connecting to venue WebSocket...")

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		c.lastError = err
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	c.conn = conn
	c.isConnected = true
	c.lastError = nil

	go c.readMessages()

	log.Info().Msg("✅ Connected to venue WebSocket")
	return nil
}

// SubscribeAssets subscribes to market data for the given outcome tokens.
func (c *WSClient) SubscribeAssets(assetIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnected {
		return fmt.Errorf("not connected")
	}

	fresh := make([]string, 0, len(assetIDs))
	for _, id := range assetIDs {
		if !c.subscribed[id] {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	msg := map[string]interface{}{
		"type":       "market",
		"assets_ids": fresh,
	}
	msgBytes, _ := json.Marshal(msg)
	if err := c.conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
		c.lastError = err
		return fmt.Errorf("subscribe failed: %w", err)
	}

	for _, id := range fresh {
		c.subscribed[id] = true
	}
	log.Info().Int("assets", len(fresh)).Msg("📡 Subscribed to venue markets")
	return nil
}

// Subscribe returns the event channel. A single channel keeps per-asset
// venue ordering intact.
func (c *WSClient) Subscribe() <-chan Event {
	return c.eventCh
}

func (c *WSClient) readMessages() {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		_, message, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.lastError = err
			c.mu.Unlock()
			log.Error().Err(err).Msg("WebSocket read error")
			c.handleDisconnect()
			return
		}

		c.handleMessage(message)
	}
}

func (c *WSClient) handleMessage(data []byte) {
	c.mu.Lock()
	c.lastUpdate = time.Now()
	c.mu.Unlock()

	// Single-object messages carry an event_type discriminator.
	var probe struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &probe); err == nil {
		switch probe.EventType {
		case "price_change":
			var pc wsPriceChangeMsg
			if err := json.Unmarshal(data, &pc); err == nil {
				c.handlePriceChange(&pc)
				return
			}
		case "last_trade_price":
			var tr wsTradeMsg
			if err := json.Unmarshal(data, &tr); err == nil {
				c.handleTrade(&tr)
				return
			}
		}
	}

	// Subscription responses are an array of book snapshots.
	var snapshots []wsBookMsg
	if err := json.Unmarshal(data, &snapshots); err == nil && len(snapshots) > 0 {
		for i := range snapshots {
			c.handleBook(&snapshots[i])
		}
		return
	}

	c.malformed++
	log.Debug().Int("bytes", len(data)).Msg("Unparseable venue message dropped")
}

func (c *WSClient) handleBook(snap *wsBookMsg) {
	if snap.AssetID == "" {
		c.malformed++
		return
	}

	ev := &BookEvent{
		AssetID:   snap.AssetID,
		Timestamp: parseWSTimestamp(snap.Timestamp),
	}
	// Venue delivers bids ascending and asks descending; the best level
	// for each side is the last element.
	for _, l := range snap.Bids {
		price, err1 := decimal.NewFromString(l.Price)
		size, err2 := decimal.NewFromString(l.Size)
		if err1 != nil || err2 != nil {
			c.malformed++
			continue
		}
		ev.Bids = append([]BookLevel{{Price: price, Size: size}}, ev.Bids...)
	}
	for _, l := range snap.Asks {
		price, err1 := decimal.NewFromString(l.Price)
		size, err2 := decimal.NewFromString(l.Size)
		if err1 != nil || err2 != nil {
			c.malformed++
			continue
		}
		ev.Asks = append([]BookLevel{{Price: price, Size: size}}, ev.Asks...)
	}

	if len(ev.Bids) > 0 {
		ev.BestBid = ev.Bids[0].Price
	}
	if len(ev.Asks) > 0 {
		ev.BestAsk = ev.Asks[0].Price
	}
	if ev.BestBid.IsPositive() && ev.BestAsk.IsPositive() {
		ev.Spread = ev.BestAsk.Sub(ev.BestBid)
		ev.Midpoint = ev.BestBid.Add(ev.BestAsk).Div(decimal.NewFromInt(2))
	}

	c.publish(Event{Book: ev}, true)
}

func (c *WSClient) handlePriceChange(pc *wsPriceChangeMsg) {
	ts := parseWSTimestamp(pc.Timestamp)
	for _, change := range pc.PriceChanges {
		bestBid, err1 := decimal.NewFromString(change.BestBid)
		bestAsk, err2 := decimal.NewFromString(change.BestAsk)
		if change.AssetID == "" || err1 != nil || err2 != nil {
			c.malformed++
			continue
		}
		c.publish(Event{Price: &PriceEvent{
			AssetID:   change.AssetID,
			BestBid:   bestBid,
			BestAsk:   bestAsk,
			Timestamp: ts,
		}}, true)
	}
}

func (c *WSClient) handleTrade(tr *wsTradeMsg) {
	price, err1 := decimal.NewFromString(tr.Price)
	size, err2 := decimal.NewFromString(tr.Size)
	if tr.AssetID == "" || err1 != nil || err2 != nil || size.IsNegative() {
		c.malformed++
		return
	}
	side := types.SideBuy
	if tr.Side == "SELL" || tr.Side == "sell" {
		side = types.SideSell
	}
	c.publish(Event{Trade: &TradeEvent{
		AssetID:   tr.AssetID,
		Price:     price,
		Size:      size,
		Side:      side,
		Timestamp: parseWSTimestamp(tr.Timestamp),
	}}, false)
}

// publish sends an event downstream. Coalescable events (book/price) are
// dropped on a full channel since the next update supersedes them; trades
// block until delivered or shutdown.
func (c *WSClient) publish(ev Event, coalescable bool) {
	if coalescable {
		select {
		case c.eventCh <- ev:
		default:
			c.dropped++
			log.Warn().Str("asset", ev.AssetID()).Msg("Venue event coalesced under back-pressure")
		}
		return
	}

	select {
	case c.eventCh <- ev:
	case <-c.stopCh:
	}
}

func (c *WSClient) handleDisconnect() {
	c.mu.Lock()
	c.isConnected = false
	resubscribe := make([]string, 0, len(c.subscribed))
	for id := range c.subscribed {
		resubscribe = append(resubscribe, id)
	}
	c.subscribed = make(map[string]bool)
	c.mu.Unlock()

	select {
	case <-c.stopCh:
		return
	default:
	}

	log.Warn().Msg("WebSocket disconnected, reconnecting in 5s...")
	time.Sleep(5 * time.Second)

	if err := c.Connect(); err != nil {
		log.Error().Err(err).Msg("Reconnect failed")
		go c.handleDisconnect()
		return
	}
	if len(resubscribe) > 0 {
		if err := c.SubscribeAssets(resubscribe...); err != nil {
			log.Error().Err(err).Msg("Resubscribe failed")
		}
	}
}

// Close shuts down the connection and stops the read loop. Safe to
// call more than once.
func (c *WSClient) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
	}
	c.isConnected = false
}

// Status reports connection health for the /health endpoint.
func (c *WSClient) Status() (connected bool, lastUpdate time.Time, lastError error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected, c.lastUpdate, c.lastError
}

func parseWSTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Now()
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms)
	}
	return time.Now()
}
