// Package knowledge 提供两类知识：由收益池构建的事实图谱，以及供大模型
// 引用的静态知识片段。
package knowledge

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"Superio-Chain/internal/gateway/defillama"
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// 规则文本按固定顺序输出。
var defaultRules = []string{
	"(= (isSafePool $p)\n   (and\n     (> (hasAPY $p) 7.0)\n     (< (hasAPY $p) 15.0)\n     (> (hasTVL $p) 1000000.0)))",
	"(= (isHighRiskPool $p)\n   (or\n     (> (hasAPY $p) 50.0)\n     (< (hasTVL $p) 100000.0)))",
	"(= (hasStableCoins $p)\n   (or\n     (isInPool token_USDC $p)\n     (isInPool token_USDT $p)\n     (isInPool token_DAI $p)))",
}

const mettaHeader = "; DeFi Knowledge Base\n\n" +
	"; Type Declarations\n(: Pool Type)\n(: Token Type)\n(: Chain Type)\n\n" +
	"; Relationship Declarations\n(: hasAPY (-> Pool Float))\n(: hasTVL (-> Pool Float))\n" +
	"(: onChain (-> Pool Chain))\n(: isInPool (-> Token Pool))\n(: hasPoolAddress (-> Pool String))\n\n" +
	"; Facts\n"

// SafeCriteria 描述安全池的筛选条件，边界值包含在内。
type SafeCriteria struct {
	MinAPY float64
	MaxAPY float64
	MinTVL float64
}

// DefaultSafeCriteria 是 7–15% APY 且 TVL 不低于 100 万美元。
var DefaultSafeCriteria = SafeCriteria{MinAPY: 7, MaxAPY: 15, MinTVL: 1_000_000}

// Graph 是由事实与规则组成的知识图谱。事实按插入顺序保存。
type Graph struct {
	facts []string
	rules []string

	// 事实中的数值已四舍五入，筛选使用原始值。
	metrics []poolMetrics
}

type poolMetrics struct {
	id  string
	apy float64
	tvl float64
}

// Build 由收益池构建图谱并附带默认规则。
func Build(pools []defillama.Pool) *Graph {
	g := &Graph{rules: append([]string(nil), defaultRules...)}
	for _, p := range pools {
		g.AddPool(p)
	}
	return g
}

// PoolID 返回池的实体标识。
func PoolID(project, symbol string) string {
	return "pool_" + slug(orUnknown(project)) + "_" + slug(orUnknown(symbol))
}

// ChainID 返回链的实体标识。
func ChainID(chain string) string {
	return "chain_" + slug(title(orUnknown(chain)))
}

// TokenID 返回代币的实体标识。
func TokenID(symbol string) string {
	return "token_" + slug(strings.ToUpper(symbol))
}

// AddPool 追加一个池的全部事实，返回新增的事实。
func (g *Graph) AddPool(p defillama.Pool) []string {
	pool := PoolID(p.Project, p.Symbol)
	chain := ChainID(p.Chain)
	facts := []string{
		fmt.Sprintf("(: %s Pool)", pool),
		fmt.Sprintf("(: %s Chain)", chain),
		fmt.Sprintf("(hasAPY %s %.2f)", pool, p.TotalAPY()),
		fmt.Sprintf("(hasAPYBase %s %.2f)", pool, p.APYBase),
		fmt.Sprintf("(hasAPYReward %s %.2f)", pool, p.APYReward),
		fmt.Sprintf("(hasTVL %s %.0f)", pool, p.TVLUSD),
		fmt.Sprintf("(onChain %s %s)", pool, chain),
		fmt.Sprintf("(hasPoolAddress %s %q)", pool, p.PoolID),
		fmt.Sprintf("(hasProject %s %q)", pool, p.Project),
		fmt.Sprintf("(hasSymbol %s %q)", pool, p.Symbol),
	}
	for _, token := range SplitTokens(p.Symbol) {
		id := TokenID(token)
		facts = append(facts, fmt.Sprintf("(: %s Token)", id), fmt.Sprintf("(isInPool %s %s)", id, pool))
	}
	g.facts = append(g.facts, facts...)
	g.metrics = append(g.metrics, poolMetrics{id: pool, apy: p.TotalAPY(), tvl: p.TVLUSD})
	return facts
}

// SplitTokens 按 - _ / 和空格拆分池符号并转为大写。
func SplitTokens(symbol string) []string {
	fields := strings.FieldsFunc(symbol, func(r rune) bool {
		return r == '-' || r == '_' || r == '/' || r == ' '
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, strings.ToUpper(f))
		}
	}
	return out
}

// Facts 返回事实副本。
func (g *Graph) Facts() []string { return append([]string(nil), g.facts...) }

// Rules 返回规则副本。
func (g *Graph) Rules() []string { return append([]string(nil), g.rules...) }

// QuerySafe 返回 APY 与 TVL 满足 c 的池，按首次插入顺序去重。
// 同一池多次插入时以第一次的数值为准。
func (g *Graph) QuerySafe(c SafeCriteria) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range g.metrics {
		if seen[m.id] {
			continue
		}
		seen[m.id] = true
		if m.apy < c.MinAPY || m.apy > c.MaxAPY || m.tvl < c.MinTVL {
			continue
		}
		out = append(out, m.id)
	}
	return out
}

// QueryByToken 返回包含指定代币的池。
func (g *Graph) QueryByToken(symbol string) []string {
	id := TokenID(symbol)
	var out []string
	for _, fact := range g.facts {
		terms := parseFact(fact)
		if len(terms) == 3 && terms[0].text == "isInPool" && terms[1].text == id {
			out = append(out, terms[2].text)
		}
	}
	return out
}

// MeTTa 以文本形式导出类型声明、事实与规则。
func (g *Graph) MeTTa() string {
	var b strings.Builder
	b.WriteString(mettaHeader)
	for _, fact := range g.facts {
		b.WriteString(fact)
		b.WriteByte('\n')
	}
	b.WriteString("\n; Rules\n")
	for _, rule := range g.rules {
		b.WriteString(rule)
		b.WriteByte('\n')
	}
	return b.String()
}

func slug(s string) string {
	return nonAlnum.ReplaceAllString(s, "_")
}

// title 把每个单词首字母大写、其余小写。
func title(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if prevLetter {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(unicode.ToUpper(r))
		}
		prevLetter = unicode.IsLetter(r)
	}
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
