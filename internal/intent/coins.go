package intent

import (
	"regexp"
	"strings"
)

type coinAlias struct {
	alias string
	id    string
}

// coinAliases 的顺序决定文本中同时出现多个币种时的优先级。
var coinAliases = []coinAlias{
	{"bitcoin", "bitcoin"},
	{"btc", "bitcoin"},
	{"ethereum", "ethereum"},
	{"eth", "ethereum"},
	{"cardano", "cardano"},
	{"ada", "cardano"},
	{"solana", "solana"},
	{"sol", "solana"},
	{"ripple", "ripple"},
	{"xrp", "ripple"},
	{"dogecoin", "dogecoin"},
	{"doge", "dogecoin"},
	{"polkadot", "polkadot"},
	{"dot", "polkadot"},
	{"avalanche", "avalanche-2"},
	{"avax", "avalanche-2"},
	{"polygon", "matic-network"},
	{"matic", "matic-network"},
	{"chainlink", "chainlink"},
	{"link", "chainlink"},
}

// DefaultCoinID 是无法从文本识别币种时的默认值。
const DefaultCoinID = "bitcoin"

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// CoinID 将别名映射为 CoinGecko id，未知别名按小写原样返回。
func CoinID(alias string) string {
	alias = strings.ToLower(strings.TrimSpace(alias))
	for _, c := range coinAliases {
		if c.alias == alias {
			return c.id
		}
	}
	return alias
}

// ExtractCoin 按整词匹配从文本中找出第一个已知币种。
func ExtractCoin(text string) (string, bool) {
	words := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		words[w] = struct{}{}
	}
	for _, c := range coinAliases {
		if _, ok := words[c.alias]; ok {
			return c.id, true
		}
	}
	return DefaultCoinID, false
}
