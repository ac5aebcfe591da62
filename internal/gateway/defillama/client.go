// Package defillama 访问 DeFiLlama 的收益池与协议 TVL 接口。
package defillama

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	xerrors "Superio-Chain/internal/errors"
	"Superio-Chain/internal/gateway"
	"Superio-Chain/internal/gateway/httpx"
)

const (
	defaultAPIBase    = "https://api.llama.fi"
	defaultYieldsBase = "https://yields.llama.fi"
	defaultProBase    = "https://pro-api.llama.fi"
	upstream          = "defillama"
)

// Config 描述客户端参数。APIKey 非空时收益池走 pro 接口。
type Config struct {
	APIBase    string
	YieldsBase string
	ProBase    string
	APIKey     string
	PoolsTTL   time.Duration
}

// Client 是 DeFiLlama 网关。
type Client struct {
	http       *httpx.Client
	cache      gateway.Cache
	apiBase    string
	yieldsBase string
	proBase    string
	apiKey     string
	poolsTTL   time.Duration
}

// New 创建网关。
func New(httpClient *httpx.Client, cache gateway.Cache, cfg Config) *Client {
	if cache == nil {
		cache = gateway.NopCache{}
	}
	return &Client{
		http:       httpClient,
		cache:      cache,
		apiBase:    orDefault(cfg.APIBase, defaultAPIBase),
		yieldsBase: orDefault(cfg.YieldsBase, defaultYieldsBase),
		proBase:    orDefault(cfg.ProBase, defaultProBase),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		poolsTTL:   cfg.PoolsTTL,
	}
}

type poolsEnvelope struct {
	Status string      `json:"status"`
	Data   []poolEntry `json:"data"`
}

type poolEntry struct {
	Pool      string   `json:"pool"`
	Chain     string   `json:"chain"`
	Project   string   `json:"project"`
	Symbol    string   `json:"symbol"`
	APY       *float64 `json:"apy"`
	APYBase   *float64 `json:"apyBase"`
	APYReward *float64 `json:"apyReward"`
	TVLUSD    *float64 `json:"tvlUsd"`
	URL       string   `json:"url"`
}

// Pools 返回全部收益池。
func (c *Client) Pools(ctx context.Context) ([]Pool, bool) {
	return gateway.Cached(ctx, c.cache, "defillama:pools", c.poolsTTL, upstream, "pools", func(ctx context.Context) ([]Pool, error) {
		endpoint := c.yieldsBase + "/pools"
		if c.apiKey != "" {
			endpoint = c.proBase + "/" + url.PathEscape(c.apiKey) + "/yields/pools"
		}
		var env poolsEnvelope
		if err := c.http.GetJSON(ctx, endpoint, nil, &env); err != nil {
			return nil, err
		}
		if len(env.Data) == 0 {
			return nil, xerrors.New(xerrors.CodeUpstreamUnavailable, "defillama 未返回收益池")
		}
		pools := make([]Pool, 0, len(env.Data))
		for _, p := range env.Data {
			pools = append(pools, p.toPool())
		}
		return pools, nil
	})
}

func (p poolEntry) toPool() Pool {
	reward := num(p.APYReward)
	base := num(p.APYBase)
	if p.APYBase == nil && p.APY != nil {
		base = *p.APY - reward
	}
	return Pool{
		PoolID:    p.Pool,
		Project:   p.Project,
		Chain:     p.Chain,
		Symbol:    p.Symbol,
		APYBase:   base,
		APYReward: reward,
		TVLUSD:    num(p.TVLUSD),
		URL:       p.URL,
	}
}

// ProtocolSummary 是 /protocols 列表中的一项。
type ProtocolSummary struct {
	Name      string   `json:"name"`
	Slug      string   `json:"slug"`
	Category  string   `json:"category"`
	Chain     string   `json:"chain"`
	Chains    []string `json:"chains"`
	TVL       float64  `json:"tvl"`
	Change1D  *float64 `json:"change_1d,omitempty"`
	Change7D  *float64 `json:"change_7d,omitempty"`
	URL       string   `json:"url,omitempty"`
	Symbol    string   `json:"symbol,omitempty"`
	MarketCap *float64 `json:"mcap,omitempty"`
}

// Protocols 返回按 TVL 降序的协议列表。
func (c *Client) Protocols(ctx context.Context) ([]ProtocolSummary, bool) {
	return gateway.Call(ctx, upstream, "protocols", func(ctx context.Context) ([]ProtocolSummary, error) {
		var resp []ProtocolSummary
		if err := c.http.GetJSON(ctx, c.apiBase+"/protocols", nil, &resp); err != nil {
			return nil, err
		}
		sort.SliceStable(resp, func(i, j int) bool { return resp[i].TVL > resp[j].TVL })
		return resp, nil
	})
}

// TVLPoint 是协议 TVL 时间序列中的一点。
type TVLPoint struct {
	Date              int64   `json:"date"`
	TotalLiquidityUSD float64 `json:"totalLiquidityUSD"`
}

// Protocol 是单个协议的 TVL 详情。
type Protocol struct {
	Name             string             `json:"name"`
	Symbol           string             `json:"symbol,omitempty"`
	Category         string             `json:"category,omitempty"`
	Description      string             `json:"description,omitempty"`
	URL              string             `json:"url,omitempty"`
	Chains           []string           `json:"chains,omitempty"`
	CurrentChainTVLs map[string]float64 `json:"currentChainTvls,omitempty"`
	TVL              []TVLPoint         `json:"tvl,omitempty"`
}

// CurrentTVL 返回时间序列中最新的 TVL。
func (p Protocol) CurrentTVL() float64 {
	if len(p.TVL) == 0 {
		return 0
	}
	return p.TVL[len(p.TVL)-1].TotalLiquidityUSD
}

// Protocol 返回协议详情。name 为 DeFiLlama slug。
func (c *Client) Protocol(ctx context.Context, name string) (Protocol, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Protocol{}, false
	}
	return gateway.Call(ctx, upstream, "protocol", func(ctx context.Context) (Protocol, error) {
		var resp Protocol
		if err := c.http.GetJSON(ctx, c.apiBase+"/protocol/"+url.PathEscape(name), nil, &resp); err != nil {
			return Protocol{}, err
		}
		if resp.Name == "" {
			return Protocol{}, xerrors.New(xerrors.CodeNotFound, "协议不存在: "+name)
		}
		return resp, nil
	})
}

// ChainTVL 是单条链的 TVL。
type ChainTVL struct {
	Name        string  `json:"name"`
	TVL         float64 `json:"tvl"`
	TokenSymbol string  `json:"tokenSymbol,omitempty"`
	ChainID     any     `json:"chainId,omitempty"`
}

// Chains 返回各链 TVL，按 TVL 降序。
func (c *Client) Chains(ctx context.Context) ([]ChainTVL, bool) {
	return gateway.Call(ctx, upstream, "chains", func(ctx context.Context) ([]ChainTVL, error) {
		var resp []ChainTVL
		if err := c.http.GetJSON(ctx, c.apiBase+"/v2/chains", nil, &resp); err != nil {
			return nil, err
		}
		sort.SliceStable(resp, func(i, j int) bool { return resp[i].TVL > resp[j].TVL })
		return resp, nil
	})
}

// Chain 按名称（大小写不敏感）查找单条链。
func (c *Client) Chain(ctx context.Context, name string) (ChainTVL, bool) {
	chains, ok := c.Chains(ctx)
	if !ok {
		return ChainTVL{}, false
	}
	for _, ch := range chains {
		if strings.EqualFold(ch.Name, name) {
			return ch, true
		}
	}
	return ChainTVL{}, false
}

func num(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func orDefault(v, def string) string {
	v = strings.TrimRight(strings.TrimSpace(v), "/")
	if v == "" {
		return def
	}
	return v
}
