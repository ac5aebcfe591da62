package web3

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"Superio-Chain/internal/gateway/blockscout"
)

// Catalog models the structure of configs/chains.yaml.
type Catalog struct {
	Chains []ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes a single chain known to the router.
type ChainDefinition struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	RPCURL      string `yaml:"rpc_url"`
	RPCURLEnv   string `yaml:"rpc_url_env"`
	Probe       bool   `yaml:"probe"`
	Description string `yaml:"description"`
}

// DefaultCatalog 与 Blockscout 的默认探测顺序一致，不含 RPC 地址。
func DefaultCatalog() Catalog {
	return Catalog{Chains: []ChainDefinition{
		{ID: blockscout.Sepolia.ID, Name: blockscout.Sepolia.Name, Type: "evm", RPCURLEnv: "SEPOLIA_RPC_URL", Probe: true},
		{ID: blockscout.Mainnet.ID, Name: blockscout.Mainnet.Name, Type: "evm", RPCURLEnv: "ETHEREUM_RPC_URL", Probe: true},
	}}
}

// LoadCatalog parses the YAML chain catalog. An empty path yields DefaultCatalog.
func LoadCatalog(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(content, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	seen := make(map[string]bool, len(catalog.Chains))
	for i, chain := range catalog.Chains {
		id := strings.TrimSpace(chain.ID)
		if id == "" {
			return Catalog{}, fmt.Errorf("第 %d 条链缺少 id", i+1)
		}
		if seen[id] {
			return Catalog{}, fmt.Errorf("链 %s 重复定义", id)
		}
		seen[id] = true
		catalog.Chains[i].ID = id
		if catalog.Chains[i].Type == "" {
			catalog.Chains[i].Type = "evm"
		}
	}
	if len(catalog.Chains) == 0 {
		return DefaultCatalog(), nil
	}
	return catalog, nil
}

// ProbeChains 按定义顺序返回参与地址探测的链。
func (c Catalog) ProbeChains() []blockscout.Chain {
	var out []blockscout.Chain
	for _, chain := range c.Chains {
		if chain.Probe {
			out = append(out, blockscout.Chain{ID: chain.ID, Name: chain.Name})
		}
	}
	return out
}

// Lookup 按 chain id 查找定义。
func (c Catalog) Lookup(id string) (ChainDefinition, bool) {
	for _, chain := range c.Chains {
		if chain.ID == id {
			return chain, true
		}
	}
	return ChainDefinition{}, false
}

// ResolveRPCURL 优先读取 RPCURLEnv 指向的环境变量。
func (d ChainDefinition) ResolveRPCURL() string {
	if d.RPCURLEnv != "" {
		if v := strings.TrimSpace(os.Getenv(d.RPCURLEnv)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(d.RPCURL)
}
