package venue

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/web3guy0/polyedge/internal/cache"
	"github.com/web3guy0/polyedge/internal/types"
)

const defaultGammaURL = "https://gamma-api.polymarket.com"

// gammaMarket is the wire shape of one market row. Outcome prices and
// token ids arrive as JSON-encoded string arrays inside strings.
type gammaMarket struct {
	ConditionID   string `json:"conditionId"`
	Question      string `json:"question"`
	Description   string `json:"description"`
	Slug          string `json:"slug"`
	OutcomePrices string `json:"outcomePrices"`
	ClobTokenIDs  string `json:"clobTokenIds"`
	Volume24h     string `json:"volume24hr"`
	EndDate       string `json:"endDate"`
	Active        bool   `json:"active"`
	Closed        bool   `json:"closed"`
}

// MarketClient fetches the active market universe from the venue's REST
// API, with a short cache so the linker refresh and the arb tick do not
// double-fetch.
type MarketClient struct {
	baseURL string
	client  *resty.Client
	cache   *cache.TTL[[]types.Market]
}

// NewMarketClient creates a client against the default API host.
func NewMarketClient() *MarketClient {
	return &MarketClient{
		baseURL: defaultGammaURL,
		client: resty.New().
			SetTimeout(15 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(time.Second).
			SetRateLimiter(rate.NewLimiter(rate.Limit(5), 10)),
		cache: cache.New[[]types.Market](30 * time.Second),
	}
}

// ListActiveMarkets returns open markets, paging until the venue runs
// dry or a sanity bound is hit.
func (c *MarketClient) ListActiveMarkets() ([]types.Market, error) {
	return c.cache.GetOrFill("active", c.fetchActive)
}

func (c *MarketClient) fetchActive() ([]types.Market, error) {
	var all []types.Market

	const pageSize = 100
	for offset := 0; offset < 2000; offset += pageSize {
		params := url.Values{}
		params.Set("closed", "false")
		params.Set("active", "true")
		params.Set("limit", fmt.Sprintf("%d", pageSize))
		params.Set("offset", fmt.Sprintf("%d", offset))

		resp, err := c.client.R().Get(c.baseURL + "/markets?" + params.Encode())
		if err != nil {
			return nil, fmt.Errorf("fetch markets: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("fetch markets: status %d", resp.StatusCode())
		}

		var page []gammaMarket
		if err := json.Unmarshal(resp.Body(), &page); err != nil {
			return nil, fmt.Errorf("decode markets: %w", err)
		}

		for _, gm := range page {
			if m, ok := parseGammaMarket(gm); ok {
				all = append(all, m)
			}
		}
		if len(page) < pageSize {
			break
		}
	}

	log.Debug().Int("markets", len(all)).Msg("Market universe fetched")
	return all, nil
}

func parseGammaMarket(gm gammaMarket) (types.Market, bool) {
	if gm.Closed || !gm.Active || gm.Question == "" {
		return types.Market{}, false
	}

	var tokenIDs []string
	if err := json.Unmarshal([]byte(gm.ClobTokenIDs), &tokenIDs); err != nil || len(tokenIDs) == 0 {
		return types.Market{}, false
	}

	var rawPrices []string
	var prices []decimal.Decimal
	if err := json.Unmarshal([]byte(gm.OutcomePrices), &rawPrices); err == nil {
		for _, rp := range rawPrices {
			if p, err := decimal.NewFromString(rp); err == nil {
				prices = append(prices, p)
			}
		}
	}

	m := types.Market{
		AssetID:       tokenIDs[0],
		ConditionID:   gm.ConditionID,
		Question:      gm.Question,
		Description:   gm.Description,
		Slug:          gm.Slug,
		OutcomePrices: prices,
		Active:        true,
	}
	if v, err := decimal.NewFromString(strings.TrimSpace(gm.Volume24h)); err == nil {
		m.Volume24h = v
	}
	if gm.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, gm.EndDate); err == nil {
			m.EndDate = t
		}
	}
	return m, true
}
