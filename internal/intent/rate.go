package intent

import (
	"context"
	"strings"
	"time"

	"Superio-Chain/pkg/logger"
)

// RateSource 标识汇率来源。
type RateSource string

const (
	RateLive     RateSource = "live"
	RateFallback RateSource = "fallback"
	RateDefault  RateSource = "default"
)

// RateQuote 是一次汇率解析结果。LowConfidence 表示使用了 1:1 兜底。
type RateQuote struct {
	Rate          float64    `json:"rate"`
	Source        RateSource `json:"source"`
	LowConfidence bool       `json:"low_confidence"`
}

// PriceFeed 提供以美元计价的现货价格，键为 CoinGecko id。
type PriceFeed interface {
	SimplePrices(ctx context.Context, ids ...string) (map[string]float64, bool)
}

// Rater 抽象汇率解析，便于测试替换。
type Rater interface {
	Rate(ctx context.Context, from, to string, amount float64) RateQuote
}

// FallbackRates 以 "from_to" 为键的静态汇率表。
var FallbackRates = map[string]float64{
	"sol_usdc":  140.50,
	"usdc_sol":  1 / 140.50,
	"sol_eth":   0.045,
	"eth_sol":   1 / 0.045,
	"usdc_usdt": 1.0,
	"usdt_usdc": 1.0,
	"eth_usdc":  3000.0,
	"usdc_eth":  1 / 3000.0,
	"base_usdc": 1.0,
	"usdc_base": 1.0,
	"eth_base":  1.0,
	"base_eth":  1.0,
	"btc_usdc":  45000.0,
	"usdc_btc":  1 / 45000.0,
}

// CoinGeckoIDs 将规范符号映射到 CoinGecko id。BASE 按 ETH 计价。
var CoinGeckoIDs = map[string]string{
	"SOL":   "solana",
	"USDC":  "usd-coin",
	"USDT":  "tether",
	"ETH":   "ethereum",
	"BTC":   "bitcoin",
	"BASE":  "ethereum",
	"MATIC": "matic-network",
	"AVAX":  "avalanche-2",
	"LINK":  "chainlink",
	"DAI":   "dai",
	"BONK":  "bonk",
	"WIF":   "dogwifhat",
	"JUP":   "jupiter-exchange-solana",
}

const defaultRateTimeout = 5 * time.Second

// RateResolver 先查询实时价格，失败时回落到静态表。
type RateResolver struct {
	feed    PriceFeed
	timeout time.Duration
}

// NewRateResolver 创建汇率解析器。feed 为 nil 时只使用静态表。
func NewRateResolver(feed PriceFeed, timeout time.Duration) *RateResolver {
	if timeout <= 0 {
		timeout = defaultRateTimeout
	}
	return &RateResolver{feed: feed, timeout: timeout}
}

// Rate 返回 1 单位 from 可兑换的 to 数量。
//
// 实时路径失败后只查 "from_to" 正向键，不尝试倒数。
func (r *RateResolver) Rate(ctx context.Context, from, to string, _ float64) RateQuote {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	log := logger.Named("rate")

	if quote, ok := r.live(ctx, from, to); ok {
		return quote
	}
	if rate, ok := FallbackRates[pairKey(from, to)]; ok {
		log.Debug("使用静态汇率", "from", from, "to", to, "rate", rate)
		return RateQuote{Rate: rate, Source: RateFallback}
	}
	log.Warn("未找到汇率，按 1:1 处理", "from", from, "to", to)
	return RateQuote{Rate: 1.0, Source: RateDefault, LowConfidence: true}
}

func (r *RateResolver) live(ctx context.Context, from, to string) (RateQuote, bool) {
	if r == nil || r.feed == nil {
		return RateQuote{}, false
	}
	fromID, okFrom := CoinGeckoIDs[from]
	toID, okTo := CoinGeckoIDs[to]
	if !okFrom || !okTo {
		return RateQuote{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	prices, ok := r.feed.SimplePrices(ctx, fromID, toID)
	if !ok {
		return RateQuote{}, false
	}
	fromPrice, toPrice := prices[fromID], prices[toID]
	if fromPrice <= 0 || toPrice <= 0 {
		return RateQuote{}, false
	}
	return RateQuote{Rate: fromPrice / toPrice, Source: RateLive}, true
}

// StaticRate 是无网络路径：正向键、倒数、最后 1:1。
func StaticRate(from, to string) RateQuote {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if rate, ok := FallbackRates[pairKey(from, to)]; ok {
		return RateQuote{Rate: rate, Source: RateFallback}
	}
	if rate, ok := FallbackRates[pairKey(to, from)]; ok && rate != 0 {
		return RateQuote{Rate: 1 / rate, Source: RateFallback}
	}
	return RateQuote{Rate: 1.0, Source: RateDefault, LowConfidence: true}
}

// StaticRater 以 StaticRate 实现 Rater。
type StaticRater struct{}

// Rate 实现 Rater。
func (StaticRater) Rate(_ context.Context, from, to string, _ float64) RateQuote {
	return StaticRate(from, to)
}

func pairKey(from, to string) string {
	return strings.ToLower(from) + "_" + strings.ToLower(to)
}
