package venue

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polyedge/internal/types"
)

// The engine only depends on this abstract event contract; the wire
// format behind it is the websocket client's business.

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// BookEvent is a full book snapshot or resting-liquidity update.
type BookEvent struct {
	AssetID   string
	Bids      []BookLevel // best first
	Asks      []BookLevel // best first
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	Spread    decimal.Decimal
	Midpoint  decimal.Decimal
	Timestamp time.Time
}

// BidDepth sums resting bid size.
func (b *BookEvent) BidDepth() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.Bids {
		total = total.Add(l.Size)
	}
	return total
}

// AskDepth sums resting ask size.
func (b *BookEvent) AskDepth() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.Asks {
		total = total.Add(l.Size)
	}
	return total
}

// PriceEvent is a top-of-book change without depth.
type PriceEvent struct {
	AssetID   string
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	Timestamp time.Time
}

// TradeEvent is a single print on the venue.
type TradeEvent struct {
	AssetID   string
	Price     decimal.Decimal
	Size      decimal.Decimal
	Side      types.Side
	Timestamp time.Time
}

// Event is the tagged union delivered on the stream channel. Exactly one
// field is non-nil.
type Event struct {
	Book  *BookEvent
	Price *PriceEvent
	Trade *TradeEvent
}

// AssetID returns the key of whichever variant is set.
func (e Event) AssetID() string {
	switch {
	case e.Book != nil:
		return e.Book.AssetID
	case e.Price != nil:
		return e.Price.AssetID
	case e.Trade != nil:
		return e.Trade.AssetID
	}
	return ""
}

// Stream is the abstract venue feed consumed by the signal detector.
// Events for a given asset arrive in venue order; no ordering is promised
// across assets.
type Stream interface {
	Subscribe() <-chan Event
}
