package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	xerrors "Superio-Chain/internal/errors"
	"Superio-Chain/internal/gateway/blockscout"
	"Superio-Chain/internal/intent"
	"Superio-Chain/pkg/logger"
)

const (
	invalidHashText    = "Invalid transaction hash. Please provide a valid Ethereum transaction hash (starting with 0x)."
	invalidAddressText = "Invalid address. Please provide a valid Ethereum address (starting with 0x) or an ENS name."

	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
	metricsSampleSize   = 20
)

var upstreamMessage = xerrors.AttributesOf(xerrors.CodeUpstreamUnavailable).Message

func (r *Router) requireExplorer() error {
	if r.explorer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置链上浏览器")
	}
	return nil
}

func (r *Router) handleLookupTransaction(ctx context.Context, _ Request, raw json.RawMessage, reply *Reply) error {
	var args txArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	hash := strings.TrimSpace(args.TransactionHash)
	if !intent.IsTxHash(hash) {
		reply.Response = invalidHashText
		return nil
	}
	if err := r.requireExplorer(); err != nil {
		return err
	}
	chainID := blockscout.Sepolia.ID

	info, err := r.explorer.TransactionInfo(ctx, chainID, hash)
	if err != nil {
		logger.FromContext(ctx, r.log).Warn("查询交易失败", "hash", hash, "error", err)
		reply.Response = fmt.Sprintf("⚠️ Failed to look up transaction. Error: %s\n\n"+
			"This could be because:\n"+
			"1. The transaction hash is not on Ethereum Sepolia testnet\n"+
			"2. The transaction doesn't exist\n"+
			"3. There was a network error", errorText(err))
		return nil
	}
	summary := blockscout.RenderSummary(r.explorer.TransactionSummary(ctx, chainID, hash))

	report := TransactionReport(hash, summary, info)
	if info.To != nil && info.To.IsContract {
		if abi, ok := r.explorer.ContractABI(ctx, chainID, info.To.Hash); ok {
			report += ContractABILine(abi)
		}
	}

	rec := reply.primary()
	rec.Source = SourceBlockscout
	rec.ChainID = chainID
	reply.Response = report
	reply.TransactionInfo = info.Raw
	return nil
}

// resolveAddress 接受 0x 地址，或在配置了浏览器时把 .eth 名称解析为地址。
func (r *Router) resolveAddress(ctx context.Context, input string) (string, bool) {
	input = strings.TrimSpace(input)
	if intent.IsEVMAddress(input) {
		return input, true
	}
	if r.explorer == nil || !strings.HasSuffix(strings.ToLower(input), ".eth") {
		return "", false
	}
	address, ok := r.explorer.ResolveENS(ctx, input)
	if !ok || !intent.IsEVMAddress(address) {
		logger.FromContext(ctx, r.log).Info("ENS 解析失败", "name", input)
		return "", false
	}
	return address, true
}

func (r *Router) handleAnalyzeAddress(ctx context.Context, _ Request, raw json.RawMessage, reply *Reply) error {
	var args addressArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	address, ok := r.resolveAddress(ctx, args.Address)
	if !ok {
		reply.Response = invalidAddressText
		return nil
	}
	if err := r.requireExplorer(); err != nil {
		return err
	}
	log := logger.FromContext(ctx, r.log)

	chain, info, found := r.explorer.ProbeChain(ctx, address, r.probeOrder(ctx, address))
	infoOK := found
	if !found {
		info, infoOK = r.explorer.AddressInfo(ctx, chain.ID, address)
	}
	log.Info("分析地址", "address", address, "chain", chain.Name, "probed", found)

	tokens, tokensOK := r.explorer.Tokens(ctx, chain.ID, address)
	txs, txsOK := r.explorer.Transactions(ctx, chain.ID, address, metricsSampleSize)
	transfers, _ := r.explorer.TokenTransfers(ctx, chain.ID, address, metricsSampleSize)
	nfts, _ := r.explorer.NFTs(ctx, chain.ID, address)

	if !infoOK && !tokensOK && !txsOK {
		reply.Response = "⚠️ Failed to analyze address. Error: " + upstreamMessage
		return nil
	}

	data := AddressData{Address: address, Chain: chain, Tokens: tokens, Txs: txs, Transfers: transfers, NFTCount: len(nfts)}
	if infoOK {
		data.Info = &info
		reply.AddressInfo = &info
	}
	rec := reply.primary()
	rec.Source = SourceBlockscout
	rec.ChainID = chain.ID
	reply.Response = AddressReport(data)
	reply.TokenCount = intPtr(len(tokens))
	return nil
}

// probeOrder 返回地址分析的探测顺序，RPC 探测到余额的链排在最前。
func (r *Router) probeOrder(ctx context.Context, address string) []blockscout.Chain {
	if r.balances == nil {
		return r.probeChains
	}
	funded, ok := r.balances.FirstFunded(ctx, address, r.probeChains)
	if !ok {
		return r.probeChains
	}
	order := []blockscout.Chain{funded}
	for _, c := range r.probeChains {
		if c.ID != funded.ID {
			order = append(order, c)
		}
	}
	return order
}

func (r *Router) handleAddressTokens(ctx context.Context, _ Request, raw json.RawMessage, reply *Reply) error {
	var args addressArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	address, ok := r.resolveAddress(ctx, args.Address)
	if !ok {
		reply.Response = invalidAddressText
		return nil
	}
	if err := r.requireExplorer(); err != nil {
		return err
	}
	chainID := blockscout.Sepolia.ID
	tokens, ok := r.explorer.Tokens(ctx, chainID, address)
	switch {
	case !ok:
		reply.Response = "⚠️ Failed to get token holdings. Error: " + upstreamMessage
		return nil
	case len(tokens) == 0:
		reply.Response = fmt.Sprintf("No ERC-20 tokens found for address %s on Sepolia.", address)
		return nil
	}
	rec := reply.primary()
	rec.Source = SourceBlockscout
	rec.ChainID = chainID
	reply.Response = TokenList(address, tokens)
	reply.TokenCount = intPtr(len(tokens))
	return nil
}

func (r *Router) handleAddressTransactions(ctx context.Context, _ Request, raw json.RawMessage, reply *Reply) error {
	var args addressArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	address, ok := r.resolveAddress(ctx, args.Address)
	if !ok {
		reply.Response = invalidAddressText
		return nil
	}
	if err := r.requireExplorer(); err != nil {
		return err
	}
	limit := int(args.Limit.or(defaultHistoryLimit))
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	chainID := blockscout.Sepolia.ID
	txs, ok := r.explorer.Transactions(ctx, chainID, address, limit)
	switch {
	case !ok:
		reply.Response = "⚠️ Failed to get transaction history. Error: " + upstreamMessage
		return nil
	case len(txs) == 0:
		reply.Response = fmt.Sprintf("No transactions found for address %s on Sepolia.", address)
		return nil
	}
	if len(txs) > limit {
		txs = txs[:limit]
	}
	rec := reply.primary()
	rec.Source = SourceBlockscout
	rec.ChainID = chainID
	reply.Response = TransactionList(address, txs)
	reply.TxCount = intPtr(len(txs))
	return nil
}
