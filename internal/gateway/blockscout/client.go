package blockscout

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	xerrors "Superio-Chain/internal/errors"
	"Superio-Chain/internal/gateway"
	"Superio-Chain/internal/gateway/httpx"
)

const (
	// DefaultPageSize 是单页请求条数上限。
	DefaultPageSize = 50
	// MaxPages 是一次分页查询最多请求的页数（含首页）。
	MaxPages = 10

	summaryFallback = "Could not generate transaction summary"
)

// Config 描述客户端参数。
type Config struct {
	URL string
}

// Client 是 Blockscout MCP 网关。
type Client struct {
	mcp   *caller
	cache gateway.Cache
	ttl   time.Duration
}

// New 创建网关。cache 可以为 nil；ttl 仅作用于合约 ABI 等变化缓慢的数据。
func New(httpClient *httpx.Client, cache gateway.Cache, cfg Config, ttl time.Duration) *Client {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		url = DefaultMCPURL
	}
	if cache == nil {
		cache = gateway.NopCache{}
	}
	return &Client{mcp: &caller{http: httpClient, url: url}, cache: cache, ttl: ttl}
}

func (c *Client) text(ctx context.Context, tool string, args map[string]any) (string, error) {
	res, err := c.mcp.call(ctx, tool, args)
	if err != nil {
		return "", err
	}
	text, ok := res.Text()
	if !ok {
		return "", xerrors.New(xerrors.CodeUnrecognizedShape, "MCP 结果没有内容", xerrors.WithMetadata("tool", tool))
	}
	return text, nil
}

func (c *Client) shape(ctx context.Context, tool string, args map[string]any) (Shape, error) {
	text, err := c.text(ctx, tool, args)
	if err != nil {
		return Shape{}, err
	}
	return DecodeShape(text)
}

// list 请求一个列表工具，并按 next_call 继续翻页直到满足 limit、
// 上游不再给出下一页、某页没有新增条目或达到 MaxPages。
// limit<=0 时只请求一页 DefaultPageSize 条，不翻页。
func (c *Client) list(ctx context.Context, tool string, args map[string]any, limit int) ([]json.RawMessage, error) {
	if limit > 0 {
		args["limit"] = limit
	} else {
		args["limit"] = DefaultPageSize
	}
	page, err := c.shape(ctx, tool, args)
	if err != nil {
		return nil, err
	}
	if page.Kind == ShapeObject {
		return nil, xerrors.Wrap(xerrors.CodeUnrecognizedShape, ErrUnrecognizedShape, tool+" 返回了非列表内容")
	}
	items := page.Items
	if limit <= 0 {
		return items, nil
	}
	for pages := 1; page.Next != nil && pages < MaxPages; pages++ {
		if len(items) >= limit {
			break
		}
		params := make(map[string]any, len(page.Next.Params)+1)
		for k, v := range page.Next.Params {
			params[k] = v
		}
		params["limit"] = min(DefaultPageSize, limit-len(items))
		page, err = c.shape(ctx, page.Next.ToolName, params)
		if err != nil || page.Kind == ShapeObject || len(page.Items) == 0 {
			break
		}
		items = append(items, page.Items...)
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func decodeAll[T any](items []json.RawMessage) ([]T, error) {
	return DecodeItems[T](Shape{Kind: ShapeList, Items: items})
}

// AddressInfo 返回地址基础信息。
func (c *Client) AddressInfo(ctx context.Context, chainID, address string) (AddressInfo, bool) {
	return gateway.Call(ctx, upstream, "address_info", func(ctx context.Context) (AddressInfo, error) {
		page, err := c.shape(ctx, "get_address_info", map[string]any{"chain_id": chainID, "address": address})
		if err != nil {
			return AddressInfo{}, err
		}
		return DecodeObject[AddressInfo](page)
	})
}

// Tokens 返回地址持有的 ERC-20 代币。
func (c *Client) Tokens(ctx context.Context, chainID, address string) ([]TokenHolding, bool) {
	return gateway.Call(ctx, upstream, "tokens", func(ctx context.Context) ([]TokenHolding, error) {
		page, err := c.shape(ctx, "get_tokens_by_address", map[string]any{"chain_id": chainID, "address": address})
		if err != nil {
			return nil, err
		}
		return DecodeItems[TokenHolding](page)
	})
}

// Transactions 返回地址最近的交易。limit<=0 时只取一页默认条数，不翻页。
func (c *Client) Transactions(ctx context.Context, chainID, address string, limit int) ([]Transaction, bool) {
	return gateway.Call(ctx, upstream, "transactions", func(ctx context.Context) ([]Transaction, error) {
		items, err := c.list(ctx, "get_transactions_by_address", map[string]any{"chain_id": chainID, "address": address}, limit)
		if err != nil {
			return nil, err
		}
		return decodeAll[Transaction](items)
	})
}

// TokenTransfers 返回地址的代币转账记录。
func (c *Client) TokenTransfers(ctx context.Context, chainID, address string, limit int) ([]TokenTransfer, bool) {
	return gateway.Call(ctx, upstream, "token_transfers", func(ctx context.Context) ([]TokenTransfer, error) {
		items, err := c.list(ctx, "get_token_transfers_by_address", map[string]any{"chain_id": chainID, "address": address}, limit)
		if err != nil {
			return nil, err
		}
		return decodeAll[TokenTransfer](items)
	})
}

// TransactionInfo 返回单笔交易详情。与其他方法不同，失败原因会返回给调用方用于展示。
func (c *Client) TransactionInfo(ctx context.Context, chainID, hash string) (TransactionInfo, error) {
	return gateway.Try(ctx, upstream, "transaction_info", func(ctx context.Context) (TransactionInfo, error) {
		page, err := c.shape(ctx, "get_transaction_info", map[string]any{
			"chain_id":         chainID,
			"transaction_hash": hash,
			"includeRawInput":  false,
		})
		if err != nil {
			return TransactionInfo{}, err
		}
		tx, err := DecodeObject[TransactionInfo](page)
		if err != nil {
			return TransactionInfo{}, err
		}
		tx.Raw = page.Object
		return tx, nil
	})
}

// TransactionSummary 返回交易的可读摘要原文。失败时返回固定提示。
func (c *Client) TransactionSummary(ctx context.Context, chainID, hash string) string {
	text, ok := gateway.Call(ctx, upstream, "transaction_summary", func(ctx context.Context) (string, error) {
		return c.text(ctx, "transaction_summary", map[string]any{"chain_id": chainID, "transaction_hash": hash})
	})
	if !ok || text == "" {
		return summaryFallback
	}
	return text
}

// ContractABI 返回已验证合约的 ABI 原文，结果按链与地址缓存。
func (c *Client) ContractABI(ctx context.Context, chainID, address string) (json.RawMessage, bool) {
	key := "blockscout:abi:" + chainID + ":" + strings.ToLower(address)
	return gateway.Cached(ctx, c.cache, key, c.ttl, upstream, "contract_abi", func(ctx context.Context) (json.RawMessage, error) {
		text, err := c.text(ctx, "get_contract_abi", map[string]any{"chain_id": chainID, "address": address})
		if err != nil {
			return nil, err
		}
		if !json.Valid([]byte(text)) {
			return nil, xerrors.New(xerrors.CodeUnrecognizedShape, "ABI 不是合法 JSON")
		}
		return json.RawMessage(text), nil
	})
}

// NFTs 返回地址持有的 NFT 原始条目。
func (c *Client) NFTs(ctx context.Context, chainID, address string) ([]json.RawMessage, bool) {
	return gateway.Call(ctx, upstream, "nft_tokens", func(ctx context.Context) ([]json.RawMessage, error) {
		page, err := c.shape(ctx, "nft_tokens_by_address", map[string]any{"chain_id": chainID, "address": address})
		if err != nil {
			return nil, err
		}
		if page.Kind == ShapeObject {
			return nil, xerrors.Wrap(xerrors.CodeUnrecognizedShape, ErrUnrecognizedShape, "NFT 结果不是列表")
		}
		return page.Items, nil
	})
}

// ResolveENS 把 ENS 名称解析为地址文本。
func (c *Client) ResolveENS(ctx context.Context, name string) (string, bool) {
	text, ok := gateway.Call(ctx, upstream, "resolve_ens", func(ctx context.Context) (string, error) {
		return c.text(ctx, "get_address_by_ens_name", map[string]any{"ens_name": name})
	})
	text = strings.TrimSpace(text)
	return text, ok && text != ""
}
