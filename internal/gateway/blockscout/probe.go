package blockscout

import "context"

// Sepolia 与 Mainnet 是地址分析默认探测的两条链，按顺序探测。
var (
	Sepolia = Chain{ID: "11155111", Name: "Ethereum Sepolia"}
	Mainnet = Chain{ID: "1", Name: "Ethereum Mainnet"}
)

// DefaultProbeChains 返回默认探测顺序。
func DefaultProbeChains() []Chain {
	return []Chain{Sepolia, Mainnet}
}

// ProbeChain 依次查询 candidates，返回第一条原生余额大于 0 的链及其地址信息。
// 全部落空时返回第一条候选链，found 为 false。
func (c *Client) ProbeChain(ctx context.Context, address string, candidates []Chain) (chain Chain, info AddressInfo, found bool) {
	if len(candidates) == 0 {
		candidates = DefaultProbeChains()
	}
	for _, candidate := range candidates {
		got, ok := c.AddressInfo(ctx, candidate.ID, address)
		if ok && got.BasicInfo.CoinBalance.Big().Sign() > 0 {
			return candidate, got, true
		}
	}
	return candidates[0], AddressInfo{}, false
}
