package venue

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/polyedge/internal/types"
)

func TestWSClientCloseIsIdempotent(t *testing.T) {
	c := NewWSClient("ws://example.invalid/ws")

	assert.NotPanics(t, func() {
		c.Close()
		c.Close()
	})

	connected, _, _ := c.Status()
	assert.False(t, connected)
}

func TestHandleMessageParsesTrade(t *testing.T) {
	c := NewWSClient("ws://example.invalid/ws")

	c.handleMessage([]byte(`{"event_type":"last_trade_price","asset_id":"A","price":"0.55","size":"10","side":"SELL","timestamp":"1700000000000"}`))

	select {
	case ev := <-c.Subscribe():
		require.NotNil(t, ev.Trade)
		assert.Equal(t, "A", ev.Trade.AssetID)
		assert.Equal(t, types.SideSell, ev.Trade.Side)
		assert.True(t, ev.Trade.Price.Equal(decimal.NewFromFloat(0.55)))
		assert.Equal(t, time.UnixMilli(1700000000000), ev.Trade.Timestamp)
	default:
		t.Fatal("no event published")
	}
}

func TestHandleMessageDropsUnparseable(t *testing.T) {
	c := NewWSClient("ws://example.invalid/ws")

	c.handleMessage([]byte(`not json at all`))
	c.handleMessage([]byte(`{"event_type":"last_trade_price","asset_id":"","price":"0.55","size":"10"}`))

	select {
	case <-c.Subscribe():
		t.Fatal("unexpected event")
	default:
	}
}
