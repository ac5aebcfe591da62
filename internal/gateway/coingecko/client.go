// Package coingecko 访问 CoinGecko 行情接口。
package coingecko

import (
	"context"
	"net/url"
	"strings"
	"time"

	"Superio-Chain/internal/gateway"
	"Superio-Chain/internal/gateway/httpx"
)

const (
	defaultBaseURL = "https://api.coingecko.com/api/v3"
	upstream       = "coingecko"
)

// Coin 是单个币种的行情快照。
type Coin struct {
	ID                       string  `json:"coin_id"`
	Name                     string  `json:"name"`
	Symbol                   string  `json:"symbol"`
	CurrentPrice             float64 `json:"current_price"`
	MarketCap                float64 `json:"market_cap"`
	TotalVolume              float64 `json:"total_volume"`
	PriceChange24h           float64 `json:"price_change_24h"`
	PriceChangePercentage24h float64 `json:"price_change_percentage_24h"`
	MarketCapRank            *int    `json:"market_cap_rank,omitempty"`
	LastUpdated              string  `json:"last_updated"`
}

// Config 描述客户端参数。
type Config struct {
	BaseURL  string
	APIKey   string
	CacheTTL time.Duration
}

// Client 是 CoinGecko 网关。
type Client struct {
	http    *httpx.Client
	cache   gateway.Cache
	baseURL string
	apiKey  string
	ttl     time.Duration
}

// New 创建网关。cache 可以为 nil。
func New(httpClient *httpx.Client, cache gateway.Cache, cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if cache == nil {
		cache = gateway.NopCache{}
	}
	return &Client{http: httpClient, cache: cache, baseURL: base, apiKey: cfg.APIKey, ttl: cfg.CacheTTL}
}

type coinResp struct {
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	MarketCapRank *int   `json:"market_cap_rank"`
	LastUpdated   string `json:"last_updated"`
	MarketData    struct {
		CurrentPrice             map[string]float64 `json:"current_price"`
		MarketCap                map[string]float64 `json:"market_cap"`
		TotalVolume              map[string]float64 `json:"total_volume"`
		PriceChange24h           float64            `json:"price_change_24h"`
		PriceChangePercentage24h float64            `json:"price_change_percentage_24h"`
	} `json:"market_data"`
}

// Coin 返回币种行情。失败时 ok 为 false。
func (c *Client) Coin(ctx context.Context, id string) (Coin, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return Coin{}, false
	}
	return gateway.Cached(ctx, c.cache, "coingecko:coin:"+id, c.ttl, upstream, "coin", func(ctx context.Context) (Coin, error) {
		q := url.Values{}
		q.Set("localization", "false")
		q.Set("tickers", "false")
		q.Set("community_data", "false")
		q.Set("developer_data", "false")
		var resp coinResp
		if err := c.http.GetJSON(ctx, c.baseURL+"/coins/"+url.PathEscape(id)+"?"+q.Encode(), c.headers(), &resp); err != nil {
			return Coin{}, err
		}
		md := resp.MarketData
		return Coin{
			ID:                       id,
			Name:                     resp.Name,
			Symbol:                   strings.ToUpper(resp.Symbol),
			CurrentPrice:             md.CurrentPrice["usd"],
			MarketCap:                md.MarketCap["usd"],
			TotalVolume:              md.TotalVolume["usd"],
			PriceChange24h:           md.PriceChange24h,
			PriceChangePercentage24h: md.PriceChangePercentage24h,
			MarketCapRank:            resp.MarketCapRank,
			LastUpdated:              resp.LastUpdated,
		}, nil
	})
}

// SimplePrices 批量查询美元价格，键为 CoinGecko id。
func (c *Client) SimplePrices(ctx context.Context, ids ...string) (map[string]float64, bool) {
	if len(ids) == 0 {
		return nil, false
	}
	return gateway.Call(ctx, upstream, "simple_price", func(ctx context.Context) (map[string]float64, error) {
		q := url.Values{}
		q.Set("ids", strings.Join(ids, ","))
		q.Set("vs_currencies", "usd")
		var resp map[string]map[string]float64
		if err := c.http.GetJSON(ctx, c.baseURL+"/simple/price?"+q.Encode(), c.headers(), &resp); err != nil {
			return nil, err
		}
		out := make(map[string]float64, len(resp))
		for id, quote := range resp {
			out[id] = quote["usd"]
		}
		return out, nil
	})
}

func (c *Client) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"x-cg-demo-api-key": c.apiKey}
}
