package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/params"

	"Superio-Chain/internal/gateway/blockscout"
	"Superio-Chain/internal/textfmt"
)

const maxReportedTransfers = 3

// toUnit 把 wei 数量换算为 ETH 或 Gwei。
func toUnit(v *big.Int, unit float64) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v)
	f.Quo(f, big.NewFloat(unit))
	out, _ := f.Float64()
	return out
}

func toEther(q blockscout.Quantity) float64 { return toUnit(q.Big(), params.Ether) }

func toGwei(q blockscout.Quantity) float64 { return toUnit(q.Big(), params.GWei) }

func head(s string, n int) string {
	if len(s) > n {
		s = s[:n]
	}
	return s + "..."
}

func gasPercent(used, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(used) / float64(limit) * 100
}

// TransactionReport 渲染单笔交易的详细说明，缺失的字段不输出。
func TransactionReport(hash, summary string, tx blockscout.TransactionInfo) string {
	var b strings.Builder
	b.WriteString("📋 **Transaction Analysis**\n\n")
	if summary != "" {
		fmt.Fprintf(&b, "**Summary:** %s\n\n", summary)
	}
	fmt.Fprintf(&b, "**Transaction Hash:** `%s`\n\n", hash)

	if tx.Status != nil {
		emoji := "❌"
		if tx.Succeeded() {
			emoji = "✅"
		}
		fmt.Fprintf(&b, "**Status:** %s %s\n", emoji, strings.ToUpper(*tx.Status))
	}
	if tx.Confirmations != nil {
		fmt.Fprintf(&b, "**Confirmations:** %s\n", textfmt.Integer(*tx.Confirmations))
	}
	if tx.BlockNumber != nil {
		fmt.Fprintf(&b, "**Block:** #%s\n", textfmt.Integer(*tx.BlockNumber))
	}
	b.WriteString("\n")

	if tx.From != nil {
		fmt.Fprintf(&b, "**From:** `%s`\n", tx.From.Hash)
	}
	if tx.To != nil {
		marker := ""
		if tx.To.IsContract {
			marker = " 📝 (Contract)"
		}
		fmt.Fprintf(&b, "**To:** `%s`%s\n", tx.To.Hash, marker)
	}
	if tx.Value != nil {
		fmt.Fprintf(&b, "**Value:** %.6f ETH\n", toEther(*tx.Value))
	}
	b.WriteString("\n")

	if tx.GasLimit != nil {
		fmt.Fprintf(&b, "**Gas Limit:** %s\n", textfmt.Integer(tx.GasLimit.Int64()))
	}
	if tx.GasUsed != nil {
		used := tx.GasUsed.Int64()
		limit := used
		if tx.GasLimit != nil {
			limit = tx.GasLimit.Int64()
		}
		fmt.Fprintf(&b, "**Gas Used:** %s (%.1f%% of limit)\n", textfmt.Integer(used), gasPercent(used, limit))
	}
	if tx.GasPrice != nil {
		fmt.Fprintf(&b, "**Gas Price:** %.2f Gwei\n", toGwei(*tx.GasPrice))
	}
	if tx.GasUsed != nil && tx.GasPrice != nil {
		cost := new(big.Int).Mul(tx.GasUsed.Big(), tx.GasPrice.Big())
		fmt.Fprintf(&b, "**Total Gas Cost:** %.6f ETH\n", toUnit(cost, params.Ether))
	}
	if fee := priorityFee(tx); fee != nil {
		fmt.Fprintf(&b, "**Priority Fee:** %.2f Gwei\n", toGwei(*fee))
	}
	b.WriteString("\n")

	if t := tx.TypeText(); t != "" {
		fmt.Fprintf(&b, "**Type:** %s\n", t)
	}
	if tx.Method != "" {
		fmt.Fprintf(&b, "**Method:** `%s`\n", tx.Method)
	}
	if tx.Nonce != nil {
		fmt.Fprintf(&b, "**Nonce:** %d\n", *tx.Nonce)
	}
	if tx.Position != nil {
		fmt.Fprintf(&b, "**Position in Block:** %d\n", *tx.Position)
	}
	if tx.Timestamp != nil {
		fmt.Fprintf(&b, "**Timestamp:** %s\n", *tx.Timestamp)
	}

	if n := len(tx.TokenTransfers); n > 0 {
		fmt.Fprintf(&b, "\n**Token Transfers:** %d transfer(s)\n", n)
		for i, t := range tx.TokenTransfers {
			if i == maxReportedTransfers {
				break
			}
			symbol := t.Token.Symbol
			if symbol == "" {
				symbol = "???"
			}
			name := t.Token.Name
			if name == "" {
				name = "Unknown"
			}
			fmt.Fprintf(&b, "  %d. %s %s (%s)\n", i+1, t.Total.Value.Big().String(), symbol, name)
		}
		if n > maxReportedTransfers {
			fmt.Fprintf(&b, "  ... and %d more\n", n-maxReportedTransfers)
		}
	}
	if !tx.Succeeded() {
		if reason := tx.RevertText(); reason != "" {
			fmt.Fprintf(&b, "\n⚠️ **Revert Reason:** %s\n", reason)
		}
	}

	b.WriteString("\n---\n\n**💡 Analysis:**\n")
	b.WriteString(transactionInsights(tx))
	return b.String()
}

func priorityFee(tx blockscout.TransactionInfo) *blockscout.Quantity {
	for _, q := range []*blockscout.Quantity{tx.MaxPriorityFeePerGas, tx.PriorityFee} {
		if q != nil && q.Big().Sign() > 0 {
			return q
		}
	}
	return nil
}

func transactionInsights(tx blockscout.TransactionInfo) string {
	var b strings.Builder
	if tx.GasUsed != nil && tx.GasLimit != nil {
		pct := gasPercent(tx.GasUsed.Int64(), tx.GasLimit.Int64())
		switch {
		case pct < 50:
			b.WriteString("- **Gas Efficiency:** Excellent - transaction used less than 50% of the gas limit, indicating efficient execution.\n")
		case pct < 80:
			b.WriteString("- **Gas Efficiency:** Good - transaction used a reasonable amount of gas.\n")
		case pct < 95:
			b.WriteString("- **Gas Efficiency:** Moderate - transaction used most of the allocated gas.\n")
		default:
			b.WriteString("- **Gas Efficiency:** Low - transaction nearly exhausted the gas limit, which could indicate complex operations.\n")
		}
	}

	switch {
	case tx.To != nil && tx.To.IsContract:
		b.WriteString("- **Type:** Smart contract interaction - this transaction executed code on a deployed contract.\n")
		if tx.Method != "" {
			fmt.Fprintf(&b, "  - Called method: `%s`\n", tx.Method)
		}
	case tx.Value != nil && tx.Value.Big().Sign() > 0:
		b.WriteString("- **Type:** Direct ETH transfer - simple value transfer between addresses.\n")
	default:
		b.WriteString("- **Type:** Zero-value transaction - possibly a contract call or data storage operation.\n")
	}

	switch n := len(tx.TokenTransfers); {
	case n == 1:
		b.WriteString("- **Token Activity:** Single token transfer detected.\n")
	case n > 1:
		fmt.Fprintf(&b, "- **Token Activity:** Multiple token transfers (%d) - possibly a swap or complex DeFi interaction.\n", n)
	}

	if tx.Succeeded() {
		var confirmations int64
		if tx.Confirmations != nil {
			confirmations = *tx.Confirmations
		}
		switch {
		case confirmations > 12:
			b.WriteString("- **Security:** Transaction is well-confirmed and considered final.\n")
		case confirmations > 0:
			fmt.Fprintf(&b, "- **Security:** Transaction has %d confirmations - generally safe but awaiting more confirmations for finality.\n", confirmations)
		}
	} else {
		b.WriteString("- **Status:** ⚠️ Transaction failed - the operation was reverted. Check the revert reason above.\n")
	}
	return b.String()
}

// Reputation 是地址的链上信誉评分。
type Reputation struct {
	Score       int
	Tier        string
	Description string
	Factors     []string
}

// ScoreReputation 根据余额与活跃度计算信誉分，上限 100。
func ScoreReputation(balanceETH float64, txCount, transferCount, tokenCount int, hasLogs bool) Reputation {
	var rep Reputation
	add := func(points int, factor string) {
		rep.Score += points
		rep.Factors = append(rep.Factors, factor)
	}
	if balanceETH > 0 {
		add(10, "💰 Has ETH balance")
	}
	switch {
	case txCount > 10:
		add(20, "🔹 Active trader (10+ txs)")
	case txCount > 0:
		add(10, "🔸 Some transaction history")
	}
	switch {
	case transferCount > 20:
		add(20, "🪙 Token power user")
	case transferCount > 0:
		add(10, "🔸 Token activity")
	}
	switch {
	case tokenCount > 10:
		add(15, "💎 Diverse token portfolio")
	case tokenCount > 0:
		add(10, "🪙 Token holder")
	}
	if hasLogs {
		add(10, "📡 DeFi user")
	}
	if rep.Score > 100 {
		rep.Score = 100
	}

	switch {
	case rep.Score >= 80:
		rep.Tier, rep.Description = "🏆 Elite", "Highly active and established on-chain"
	case rep.Score >= 60:
		rep.Tier, rep.Description = "🌟 Veteran", "Experienced on-chain participant"
	case rep.Score >= 40:
		rep.Tier, rep.Description = "⭐ Active", "Regular on-chain activity"
	case rep.Score >= 20:
		rep.Tier, rep.Description = "📈 Emerging", "Building on-chain presence"
	default:
		rep.Tier, rep.Description = "🆕 New", "New or inactive address"
	}
	return rep
}

// AddressData 汇总地址分析所需的上游数据。
type AddressData struct {
	Address   string
	Chain     blockscout.Chain
	Info      *blockscout.AddressInfo
	Tokens    []blockscout.TokenHolding
	Txs       []blockscout.Transaction
	Transfers []blockscout.TokenTransfer
	NFTCount  int
}

// AddressReport 渲染地址画像。
func AddressReport(d AddressData) string {
	var b strings.Builder
	b.WriteString("## 📊 **Address Analytics**\n\n")
	fmt.Fprintf(&b, "**Address:** `%s`\n", d.Address)
	fmt.Fprintf(&b, "**Network:** %s\n\n", d.Chain.Name)

	if d.Info != nil {
		basic := d.Info.BasicInfo
		balance := toEther(basic.CoinBalance)
		txCount := len(d.Txs)
		transferCount := len(d.Transfers)

		b.WriteString("### 💰 **Balance**\n")
		fmt.Fprintf(&b, "- Native Balance: **%.6f ETH**\n", balance)
		kind := "👤 Wallet"
		if basic.IsContract {
			kind = "🤖 Smart Contract"
		}
		fmt.Fprintf(&b, "- Address Type: %s\n\n", kind)

		b.WriteString("### 📊 **On-Chain Metrics**\n")
		fmt.Fprintf(&b, "- Total Transactions: **%d**\n", txCount)
		if transferCount > 0 {
			fmt.Fprintf(&b, "- Token Transfers: **%d**\n", transferCount)
		}
		fmt.Fprintf(&b, "- Total Interactions: **%d**\n", txCount+transferCount)
		fmt.Fprintf(&b, "- Unique Tokens Held: **%d**\n", len(d.Tokens))
		if d.NFTCount > 0 {
			fmt.Fprintf(&b, "- NFTs Held: **%d**\n", d.NFTCount)
		}
		b.WriteString("\n")

		rep := ScoreReputation(balance, txCount, transferCount, len(d.Tokens), basic.HasLogs)
		b.WriteString("### 🏅 **On-Chain Reputation**\n")
		fmt.Fprintf(&b, "- **Tier:** %s (%s)\n", rep.Tier, rep.Description)
		fmt.Fprintf(&b, "- **Score:** %d/100\n", rep.Score)
		if len(rep.Factors) > 0 {
			b.WriteString("- **Contributing Factors:**\n")
			for i, f := range rep.Factors {
				if i == 5 {
					break
				}
				fmt.Fprintf(&b, "  • %s\n", f)
			}
		}
		b.WriteString("\n")

		b.WriteString("### 🎯 **Activity Indicators**\n")
		var items []string
		if basic.HasTokens {
			items = append(items, "✅ Holds ERC-20 Tokens")
		}
		if basic.HasTokenTransfers {
			items = append(items, "✅ Token Transfer Activity")
		}
		if basic.HasLogs {
			items = append(items, "✅ Smart Contract Interactions")
		}
		if len(items) == 0 {
			items = append(items, "ℹ️ No recent activity detected")
		}
		for _, item := range items {
			fmt.Fprintf(&b, "- %s\n", item)
		}
		b.WriteString("\n")
	}

	if len(d.Tokens) > 0 {
		fmt.Fprintf(&b, "### 🪙 **Token Holdings** (%d tokens)\n\n", len(d.Tokens))
		for i, t := range d.Tokens {
			if i == 10 {
				break
			}
			fmt.Fprintf(&b, "%d. **%s** (%s)\n", i+1, orDefault(t.Symbol, "N/A"), orDefault(t.Name, "Unknown Token"))
			fmt.Fprintf(&b, "   Balance: `%s`\n\n", tokenAmount(t.Amount()))
		}
	} else {
		b.WriteString("### 🪙 **Token Holdings**\n- No ERC-20 tokens detected\n\n")
	}

	if len(d.Txs) > 0 {
		fmt.Fprintf(&b, "### 📜 **Recent Transaction History** (%d shown)\n\n", len(d.Txs))
		for i, tx := range d.Txs {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "%d. **Transaction** `%s`\n", i+1, head(tx.Hash, 16))
			if tx.BlockNumber.Valid {
				fmt.Fprintf(&b, "   Block: %s\n", tx.BlockNumber.Big().String())
			}
			if value := toEther(tx.Value); value > 0 {
				fmt.Fprintf(&b, "   Value: %.6f ETH\n", value)
			}
			b.WriteString("\n")
		}
	} else {
		b.WriteString("### 📜 **Transaction History**\n- No recent transactions found\n\n")
	}
	return b.String()
}

func tokenAmount(v float64) string {
	switch {
	case v >= 1_000_000:
		return textfmt.Commas(v, 2)
	case v >= 1:
		return textfmt.Commas(v, 4)
	default:
		return fmt.Sprintf("%.6f", v)
	}
}

// TokenList 渲染代币持仓列表。
func TokenList(address string, tokens []blockscout.TokenHolding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💰 **Token Holdings for %s:**\n\n", address)
	for _, t := range tokens {
		fmt.Fprintf(&b, "**%s** (%s)\n", orDefault(t.Symbol, "N/A"), orDefault(t.Name, "Unknown"))
		fmt.Fprintf(&b, "  Balance: %s\n\n", textfmt.Commas(t.Amount(), 6))
	}
	return b.String()
}

// TransactionList 渲染地址的交易列表。
func TransactionList(address string, txs []blockscout.Transaction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📜 **Transaction History for %s:**\n\n", address)
	for i, tx := range txs {
		to := "Contract"
		if tx.To.Hash != "" {
			to = head(tx.To.Hash, 10)
		}
		fmt.Fprintf(&b, "%d. `%s`\n", i+1, head(tx.Hash, 16))
		fmt.Fprintf(&b, "   From: %s → To: %s\n\n", head(tx.From.Hash, 10), to)
	}
	return b.String()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

const maxListedMethods = 5

// ContractABILine 用已验证的 ABI 描述目标合约，ABI 无法解析时返回空串。
func ContractABILine(raw json.RawMessage) string {
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(parsed.Methods))
	for name := range parsed.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	fmt.Fprintf(&b, "\n**Verified Contract:** %d function(s), %d event(s)\n", len(parsed.Methods), len(parsed.Events))
	if len(names) > 0 {
		if len(names) > maxListedMethods {
			names = names[:maxListedMethods]
		}
		fmt.Fprintf(&b, "**Functions:** `%s`\n", strings.Join(names, "`, `"))
	}
	return b.String()
}
