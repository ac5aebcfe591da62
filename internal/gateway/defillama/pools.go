package defillama

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"Superio-Chain/internal/textfmt"
)

// Pool 是一个收益池。池子从不被修改，只做过滤与排序。
type Pool struct {
	PoolID    string  `json:"pool_id"`
	Project   string  `json:"project"`
	Chain     string  `json:"chain"`
	Symbol    string  `json:"symbol"`
	APYBase   float64 `json:"apy_base"`
	APYReward float64 `json:"apy_reward"`
	TVLUSD    float64 `json:"tvl_usd"`
	URL       string  `json:"url,omitempty"`
}

// TotalAPY 返回基础 APY 与奖励 APY 之和。
func (p Pool) TotalAPY() float64 {
	return p.APYBase + p.APYReward
}

// PoolType 是收益池筛选类型。
type PoolType string

const (
	PoolSafe    PoolType = "safe"
	PoolStable  PoolType = "stablecoin"
	PoolHighAPY PoolType = "high-apy"
	PoolAll     PoolType = "all"
)

const (
	SafeMinAPY     = 7.0
	SafeMaxAPY     = 15.0
	DefaultMinTVL  = 20_000_000.0
	DefaultChain   = "ethereum"
	HighAPYLimit   = 10
	SummaryTopN    = 5
	NoPoolsMessage = "No pools found matching your criteria."
)

var stableKeywords = []string{"usdc", "usdt", "dai", "busd", "frax", "lusd", "susd"}

// ByChain 按链名精确过滤（大小写不敏感）。
func ByChain(pools []Pool, chain string) []Pool {
	return filter(pools, func(p Pool) bool { return strings.EqualFold(p.Chain, chain) })
}

// ByProject 按项目名子串过滤。
func ByProject(pools []Pool, project string) []Pool {
	project = strings.ToLower(project)
	return filter(pools, func(p Pool) bool { return strings.Contains(strings.ToLower(p.Project), project) })
}

// ByToken 按代币符号子串过滤（大写比较）。
func ByToken(pools []Pool, token string) []Pool {
	token = strings.ToUpper(strings.TrimSpace(token))
	return filter(pools, func(p Pool) bool { return strings.Contains(strings.ToUpper(p.Symbol), token) })
}

// Safe 返回 APY 在 [minAPY, maxAPY] 且 TVL 不低于 minTVL 的池子，按总 APY 降序。
func Safe(pools []Pool, minAPY, maxAPY, minTVL float64) []Pool {
	out := filter(pools, func(p Pool) bool {
		apy := p.TotalAPY()
		return apy >= minAPY && apy <= maxAPY && p.TVLUSD >= minTVL
	})
	sortByAPY(out)
	return out
}

// Stable 返回稳定币池，按总 APY 降序。
func Stable(pools []Pool, minTVL float64) []Pool {
	out := filter(pools, func(p Pool) bool {
		if p.TVLUSD < minTVL {
			return false
		}
		symbol := strings.ToLower(p.Symbol)
		for _, kw := range stableKeywords {
			if strings.Contains(symbol, kw) {
				return true
			}
		}
		return false
	})
	sortByAPY(out)
	return out
}

// TopByAPY 返回 TVL 达标的前 limit 个高 APY 池。
func TopByAPY(pools []Pool, limit int, minTVL float64) []Pool {
	out := filter(pools, func(p Pool) bool { return p.TVLUSD >= minTVL })
	sortByAPY(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Query 描述一次收益池查询。零值字段使用默认值。
type Query struct {
	Chain    string
	Token    string
	Project  string
	MinTVL   float64
	PoolType PoolType
}

// Normalize 补齐默认值：链为 ethereum，类型为 safe，最低 TVL 为 2000 万美元。
func (q Query) Normalize() Query {
	q.Chain = strings.ToLower(strings.TrimSpace(q.Chain))
	if q.Chain == "" {
		q.Chain = DefaultChain
	}
	if !(q.MinTVL > 0) {
		q.MinTVL = DefaultMinTVL
	}
	switch PoolType(strings.ToLower(string(q.PoolType))) {
	case PoolStable, "stable":
		q.PoolType = PoolStable
	case PoolHighAPY:
		q.PoolType = PoolHighAPY
	case PoolAll:
		q.PoolType = PoolAll
	default:
		q.PoolType = PoolSafe
	}
	q.Token = strings.TrimSpace(q.Token)
	q.Project = strings.TrimSpace(q.Project)
	return q
}

// Apply 依次应用链、代币、项目与类型过滤。
func (q Query) Apply(pools []Pool) []Pool {
	q = q.Normalize()
	out := pools
	if q.Chain != string(PoolAll) {
		out = ByChain(out, q.Chain)
	}
	if q.Token != "" {
		out = ByToken(out, q.Token)
	}
	if q.Project != "" {
		out = ByProject(out, q.Project)
	}
	switch q.PoolType {
	case PoolStable:
		return Stable(out, q.MinTVL)
	case PoolHighAPY:
		return TopByAPY(out, HighAPYLimit, q.MinTVL)
	case PoolAll:
		return TopByAPY(out, 0, q.MinTVL)
	default:
		return Safe(out, SafeMinAPY, SafeMaxAPY, q.MinTVL)
	}
}

// FormatPool 渲染单个池子的展示文本。
func FormatPool(p Pool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** - %s (%s)\n", orUnknown(p.Project), orUnknown(p.Symbol), orUnknown(p.Chain))
	fmt.Fprintf(&b, "💰 APY: %.2f%% (Base: %.2f%% + Rewards: %.2f%%)\n", p.TotalAPY(), p.APYBase, p.APYReward)
	fmt.Fprintf(&b, "📊 TVL: $%s\n", textfmt.Commas(p.TVLUSD, 0))
	if p.PoolID != "" {
		fmt.Fprintf(&b, "🔗 Pool ID: `%s`\n", p.PoolID)
	}
	return b.String()
}

// Summary 渲染前 5 个池子的摘要。
func Summary(pools []Pool) string {
	if len(pools) == 0 {
		return NoPoolsMessage
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📊 **Found %d Yield Pools**\n\n", len(pools))
	for i, p := range pools {
		if i == SummaryTopN {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, FormatPool(p))
	}
	if len(pools) > SummaryTopN {
		fmt.Fprintf(&b, "\n_... and %d more pools_", len(pools)-SummaryTopN)
	}
	return b.String()
}

// PoolView 是前端收益池列表的一行。
type PoolView struct {
	PoolID    string  `json:"pool_id"`
	Project   string  `json:"project"`
	Chain     string  `json:"chain"`
	Symbol    string  `json:"symbol"`
	APYTotal  float64 `json:"apy_total"`
	APYBase   float64 `json:"apy_base"`
	APYReward float64 `json:"apy_reward"`
	TVL       float64 `json:"tvl"`
	URL       string  `json:"url"`
}

// Views 返回前 limit 个池子的展示数据。
func Views(pools []Pool, limit int) []PoolView {
	if limit > 0 && len(pools) > limit {
		pools = pools[:limit]
	}
	out := make([]PoolView, 0, len(pools))
	for _, p := range pools {
		out = append(out, PoolView{
			PoolID:    p.PoolID,
			Project:   orUnknown(p.Project),
			Chain:     orUnknown(p.Chain),
			Symbol:    orUnknown(p.Symbol),
			APYTotal:  round(p.TotalAPY(), 2),
			APYBase:   round(p.APYBase, 2),
			APYReward: round(p.APYReward, 2),
			TVL:       round(p.TVLUSD, 0),
			URL:       p.URL,
		})
	}
	return out
}

func filter(pools []Pool, keep func(Pool) bool) []Pool {
	out := make([]Pool, 0, len(pools))
	for _, p := range pools {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func sortByAPY(pools []Pool) {
	sort.SliceStable(pools, func(i, j int) bool { return pools[i].TotalAPY() > pools[j].TotalAPY() })
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
