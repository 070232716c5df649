package whales

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polyedge/internal/types"
)

// Tier ranks a whale within the tracked universe.
type Tier string

const (
	TierTop10   Tier = "top10"
	TierTop50   Tier = "top50"
	TierTracked Tier = "tracked" // bootstrapped, not yet qualified by trade data
)

// Whale is a tracked high-performance wallet.
type Whale struct {
	Address         common.Address
	DisplayName     string // enrichment only, never affects qualification
	PnL7d           decimal.Decimal
	PnL30d          decimal.Decimal
	Volume7d        decimal.Decimal
	Volume30d       decimal.Decimal
	TradeCount7d    int
	TradeCount30d   int
	EarlyEntryScore float64 // 0..100
	CopySuitability float64 // 0..100
	Tier            Tier
	LastSeen        time.Time
}

// VenueTrade is one observed venue trade with both counterparties.
type VenueTrade struct {
	ID        string
	MarketID  string // condition id
	AssetID   string // outcome token traded
	Outcome   types.Outcome
	Maker     common.Address
	Taker     common.Address
	Side      types.Side // taker side
	Price     decimal.Decimal
	Size      decimal.Decimal // shares
	Notional  decimal.Decimal // USDC
	Timestamp time.Time
}

// WhaleTrade is a venue trade where a counterparty is a tracked whale.
type WhaleTrade struct {
	ID        string
	Whale     *Whale
	Wallet    common.Address
	MarketID  string
	AssetID   string
	Outcome   types.Outcome
	Side      types.Side // the whale's side
	Price     decimal.Decimal
	Size      decimal.Decimal
	Notional  decimal.Decimal
	IsMaker   bool
	Timestamp time.Time
}

// WalletStats are window-based aggregates over a wallet's trades.
//
// Documented formula contracts:
//   - PnLVolatility is the population standard deviation of realized
//     per-fill PnL over the window.
//   - EarlyEntryScore is 100 times the share of the wallet's buys whose
//     price fell in the cheapest third of the market's observed price
//     range at trade time, clamped to [0,100].
type WalletStats struct {
	Wallet          common.Address
	Window          time.Duration
	Volume          decimal.Decimal
	PnL             decimal.Decimal
	TradeCount      int
	AvgHoldHours    float64
	AvgMarketVolume decimal.Decimal
	PnLVolatility   float64
	MakerRatio      float64
	WinRate         float64
	EarlyEntryScore float64
}
