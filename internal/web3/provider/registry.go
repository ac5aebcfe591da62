package provider

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"Superio-Chain/internal/gateway/blockscout"
	"Superio-Chain/internal/web3"
	"Superio-Chain/internal/web3/ethereum"
	"Superio-Chain/pkg/logger"
)

// Dialer creates a chain client from a catalog entry.
type Dialer func(ctx context.Context, def web3.ChainDefinition, rpcURL string) (web3.Client, error)

func dialEVM(ctx context.Context, def web3.ChainDefinition, rpcURL string) (web3.Client, error) {
	return ethereum.NewClient(ctx, ethereum.Config{Name: def.Name, RPCURL: rpcURL, Notes: def.Description})
}

// Registry manages the chain clients keyed by chain id.
type Registry struct {
	clients map[string]web3.Client
	log     *slog.Logger
}

// Option 定义可选配置。
type Option func(*options)

type options struct {
	dial Dialer
}

// WithDialer replaces the RPC dialer.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dial = d
		}
	}
}

// NewRegistry dials every catalog chain that has an RPC endpoint. Chains that
// fail to dial are skipped and logged, so an empty registry is valid.
func NewRegistry(ctx context.Context, catalog web3.Catalog, opts ...Option) *Registry {
	o := options{dial: dialEVM}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	r := &Registry{clients: make(map[string]web3.Client), log: logger.Named("web3")}
	for _, def := range catalog.Chains {
		rpcURL := def.ResolveRPCURL()
		if rpcURL == "" {
			continue
		}
		if t := strings.ToLower(def.Type); t != "" && t != "evm" {
			r.log.Warn("跳过不支持的链类型", "chain_id", def.ID, "type", def.Type)
			continue
		}
		client, err := o.dial(ctx, def, rpcURL)
		if err != nil {
			r.log.Warn("初始化链客户端失败", "chain_id", def.ID, "error", err)
			continue
		}
		r.clients[def.ID] = client
	}
	return r
}

// Client returns the chain client identified by chain id.
func (r *Registry) Client(id string) (web3.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[id]
	return client, ok
}

// Chains returns the sorted ids of registered chains.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FirstFunded 依次读取候选链的原生余额，返回第一条余额大于 0 的链。
// 没有 RPC 的链被跳过。
func (r *Registry) FirstFunded(ctx context.Context, address string, candidates []blockscout.Chain) (blockscout.Chain, bool) {
	if r == nil {
		return blockscout.Chain{}, false
	}
	for _, chain := range candidates {
		client, ok := r.clients[chain.ID]
		if !ok {
			continue
		}
		balance, err := client.BalanceAt(ctx, address)
		if err != nil {
			r.log.Warn("RPC 余额查询失败", "chain_id", chain.ID, "error", err)
			continue
		}
		if balance.Sign() > 0 {
			return chain, true
		}
	}
	return blockscout.Chain{}, false
}

// Snapshots 返回每条链的最新区块信息，失败的链记录错误文本。
func (r *Registry) Snapshots(ctx context.Context) map[string]any {
	out := make(map[string]any)
	if r == nil {
		return out
	}
	for id, client := range r.clients {
		snap, err := client.FetchChainSnapshot(ctx)
		if err != nil {
			out[id] = map[string]string{"error": err.Error()}
			continue
		}
		out[id] = snap
	}
	return out
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for id, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, id)
	}
}

// ErrNoChains 表示没有任何可用的 RPC 端点。
var ErrNoChains = errors.New("未配置任何链的 RPC 端点")

// Require 在注册表为空时返回 ErrNoChains。
func (r *Registry) Require() error {
	if r == nil || len(r.clients) == 0 {
		return ErrNoChains
	}
	return nil
}
