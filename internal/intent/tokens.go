package intent

import "strings"

// Network 标识代币所在的网络。
type Network string

const (
	NetworkEthereum  Network = "Ethereum"
	NetworkSolana    Network = "Solana"
	NetworkBase      Network = "Base"
	NetworkPolygon   Network = "Polygon"
	NetworkAvalanche Network = "Avalanche"
	NetworkBitcoin   Network = "Bitcoin"

	// NetworkSepolia 是模型发起转账时使用的测试网。
	NetworkSepolia Network = "Ethereum Sepolia"
)

// Token 描述静态注册表中的一个代币。
type Token struct {
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name"`
	Decimals int     `json:"decimals"`
	Network  Network `json:"network"`
}

// Registry 将小写别名映射到唯一的代币描述。
type Registry map[string]Token

var (
	tokenSOL   = Token{Symbol: "SOL", Name: "Solana", Decimals: 9, Network: NetworkSolana}
	tokenUSDC  = Token{Symbol: "USDC", Name: "USD Coin", Decimals: 6, Network: NetworkSolana}
	tokenUSDT  = Token{Symbol: "USDT", Name: "Tether", Decimals: 6, Network: NetworkSolana}
	tokenETH   = Token{Symbol: "ETH", Name: "Ethereum", Decimals: 18, Network: NetworkEthereum}
	tokenBTC   = Token{Symbol: "BTC", Name: "Bitcoin", Decimals: 8, Network: NetworkBitcoin}
	tokenBONK  = Token{Symbol: "BONK", Name: "Bonk", Decimals: 5, Network: NetworkSolana}
	tokenWIF   = Token{Symbol: "WIF", Name: "dogwifhat", Decimals: 6, Network: NetworkSolana}
	tokenJUP   = Token{Symbol: "JUP", Name: "Jupiter", Decimals: 6, Network: NetworkSolana}
	tokenBASE  = Token{Symbol: "BASE", Name: "Base", Decimals: 18, Network: NetworkBase}
	tokenDAI   = Token{Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18, Network: NetworkEthereum}
	tokenMATIC = Token{Symbol: "MATIC", Name: "Polygon", Decimals: 18, Network: NetworkPolygon}
	tokenAVAX  = Token{Symbol: "AVAX", Name: "Avalanche", Decimals: 18, Network: NetworkAvalanche}
	tokenLINK  = Token{Symbol: "LINK", Name: "Chainlink", Decimals: 18, Network: NetworkEthereum}
)

// SendTokens 是转账解析使用的别名表。
var SendTokens = Registry{
	"sol":      tokenSOL,
	"solana":   tokenSOL,
	"usdc":     tokenUSDC,
	"usdt":     tokenUSDT,
	"eth":      tokenETH,
	"ethereum": tokenETH,
	"btc":      tokenBTC,
	"bitcoin":  tokenBTC,
	"bonk":     tokenBONK,
	"wif":      tokenWIF,
	"jup":      tokenJUP,
	"base":     tokenBASE,
	"dai":      tokenDAI,
	"matic":    tokenMATIC,
	"avax":     tokenAVAX,
	"link":     tokenLINK,
}

// SwapTokens 在转账别名之外额外接受链名作为别名。
var SwapTokens = func() Registry {
	r := make(Registry, len(SendTokens)+3)
	for k, v := range SendTokens {
		r[k] = v
	}
	r["polygon"] = tokenMATIC
	r["avalanche"] = tokenAVAX
	r["chainlink"] = tokenLINK
	return r
}()

// Lookup 按别名查找代币，大小写不敏感。
func (r Registry) Lookup(alias string) (Token, bool) {
	t, ok := r[strings.ToLower(strings.TrimSpace(alias))]
	return t, ok
}

// Canonical 返回别名对应的规范符号；未知别名原样转为大写。
func (r Registry) Canonical(alias string) string {
	if t, ok := r.Lookup(alias); ok {
		return t.Symbol
	}
	return strings.ToUpper(strings.TrimSpace(alias))
}
