package router

import (
	"fmt"

	"Superio-Chain/internal/llm"
)

// Tool 是路由器可分发的工具名，取值封闭。
type Tool string

const (
	ToolSendToken              Tool = "send_token"
	ToolSwapToken              Tool = "swap_token"
	ToolAnalyzeChart           Tool = "analyze_chart"
	ToolLookupTransaction      Tool = "lookup_transaction"
	ToolAnalyzeAddress         Tool = "analyze_address"
	ToolGetAddressTokens       Tool = "get_address_tokens"
	ToolGetAddressTransactions Tool = "get_address_transactions"
	ToolGetCryptoInfo          Tool = "get_crypto_info"
	ToolGetYieldPools          Tool = "get_yield_pools"
	ToolExplainTransaction     Tool = "explain_transaction"

	// ToolGeneral 表示没有选择任何工具，直接对话。
	ToolGeneral Tool = "general"
)

// ParseTool 校验模型返回的工具名。未知名称是显式错误。
func ParseTool(name string) (Tool, error) {
	t := Tool(name)
	if _, ok := handlers[t]; !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return t, nil
}

func object(required []string, props map[string]any) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{"type": "object", "properties": props, "required": required}
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func enumProp(typ, description string, values []string, def string) map[string]any {
	p := map[string]any{"type": typ, "description": description, "enum": values}
	if def != "" {
		p["default"] = def
	}
	return p
}

var menu = []llm.ToolSpec{
	{
		Name:        string(ToolSendToken),
		Description: "Prepare a token send/transfer transaction for wallet signing on Ethereum Sepolia testnet (default network). Use this when user wants to send tokens to someone.",
		Parameters: object([]string{"amount", "to_address"}, map[string]any{
			"token": map[string]any{
				"type":        "string",
				"description": "Token symbol (default: 'ETH' for Ethereum on Sepolia testnet). Can also be 'USDC', 'USDT', etc.",
				"default":     "ETH",
			},
			"amount":     prop("number", "Amount to send"),
			"to_address": prop("string", "Recipient Ethereum wallet address (0x... format for Sepolia testnet)"),
		}),
	},
	{
		Name:        string(ToolSwapToken),
		Description: "Prepare a token swap/exchange transaction for wallet signing. Use this when user wants to swap/exchange one token for another.",
		Parameters: object([]string{"from_token", "to_token", "from_amount"}, map[string]any{
			"from_token":  prop("string", "Token to sell (e.g., 'ETH', 'USDC')"),
			"to_token":    prop("string", "Token to buy (e.g., 'USDT', 'WBTC')"),
			"from_amount": prop("number", "Amount of from_token to sell"),
		}),
	},
	{
		Name:        string(ToolAnalyzeChart),
		Description: "Analyze a cryptocurrency or stock chart using technical analysis. Use this when user asks about chart analysis, price predictions, trading signals, or wants to see a chart. DEFAULT: BINANCE exchange, 1D timeframe.",
		Parameters: object([]string{"symbol"}, map[string]any{
			"symbol": prop("string", "Trading symbol (e.g., 'ETH', 'BTC', 'AAPL')"),
			"exchange": enumProp("string", "Exchange name: 'BINANCE' for crypto (default), 'NASDAQ' or 'NYSE' for stocks",
				[]string{"BINANCE", "NASDAQ", "NYSE", "COINBASE"}, "BINANCE"),
			"interval": enumProp("string", "Chart timeframe (default: 1D)",
				[]string{"1m", "5m", "15m", "1h", "4h", "1D", "1W"}, "1D"),
			"indicator": enumProp("string", "Optional indicator to overlay: RSI, MACD or BB (Bollinger Bands)",
				[]string{"RSI", "MACD", "BB"}, ""),
		}),
	},
	{
		Name:        string(ToolLookupTransaction),
		Description: "Look up a blockchain transaction on Ethereum Sepolia by its hash and explain what it did: status, gas usage, value, token transfers and method. ALWAYS use this when the user provides a transaction hash (0x followed by 64 hex characters).",
		Parameters: object([]string{"transaction_hash"}, map[string]any{
			"transaction_hash": prop("string", "Transaction hash (0x... 66 characters)"),
		}),
	},
	{
		Name:        string(ToolAnalyzeAddress),
		Description: "Get comprehensive on-chain analytics for a wallet or contract address: balance, transaction count, token holdings, activity metrics and an on-chain reputation score.",
		Parameters: object([]string{"address"}, map[string]any{
			"address": prop("string", "Ethereum address (0x... format)"),
		}),
	},
	{
		Name:        string(ToolGetAddressTokens),
		Description: "Get the ERC-20 token holdings of an address on Ethereum Sepolia.",
		Parameters: object([]string{"address"}, map[string]any{
			"address": prop("string", "Ethereum address (0x... format)"),
		}),
	},
	{
		Name:        string(ToolGetAddressTransactions),
		Description: "Get the recent transaction history of an address on Ethereum Sepolia.",
		Parameters: object([]string{"address"}, map[string]any{
			"address": prop("string", "Ethereum address (0x... format)"),
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of transactions to return (default: 10)",
				"default":     10,
			},
		}),
	},
	{
		Name:        string(ToolGetCryptoInfo),
		Description: "Get current market data for a cryptocurrency: price, 24h change, market cap and optionally the Fear & Greed market sentiment. Use this for price questions and market analysis.",
		Parameters: object([]string{"coin"}, map[string]any{
			"coin": prop("string", "Coin name or symbol (e.g., 'bitcoin', 'ETH', 'solana')"),
			"include_sentiment": map[string]any{
				"type":        "boolean",
				"description": "Include the Fear & Greed Index sentiment (default: true)",
				"default":     true,
			},
		}),
	},
	{
		Name:        string(ToolGetYieldPools),
		Description: "Get DeFi yield pools where users can invest to earn APY. Returns pools with APY rates, TVL, chains, and protocols.",
		Parameters: object(nil, map[string]any{
			"chain": enumProp("string", "Filter by blockchain: ethereum, polygon, arbitrum, optimism, bsc, avalanche, solana, etc.",
				[]string{"ethereum", "polygon", "arbitrum", "optimism", "bsc", "avalanche", "solana", "all"}, ""),
			"token":   prop("string", "Filter by token symbol: ETH, USDC, USDT, DAI, etc."),
			"project": prop("string", "Filter by protocol name: aave, lido, curve, etc."),
			"min_tvl": prop("number", "Minimum TVL in USD to filter safe pools (default: 20000000)"),
			"pool_type": enumProp("string", "Type of pools: safe (7-15% APY, default), stablecoin (safer), high-apy (riskier), or all",
				[]string{"safe", "stablecoin", "high-apy", "all"}, ""),
		}),
	},
	{
		Name:        string(ToolExplainTransaction),
		Description: "Explain how blockchain transactions work in general: gas, fees, nonces, confirmations, approvals, swaps and similar concepts.",
		Parameters: object([]string{"topic"}, map[string]any{
			"topic": prop("string", "The concept or question to explain (e.g., 'gas fees', 'nonce')"),
		}),
	},
}

// Menu 返回提供给模型的工具清单副本。
func Menu() []llm.ToolSpec {
	return append([]llm.ToolSpec(nil), menu...)
}

// systemPrompt 告诉模型可用能力及调用约定。
const systemPrompt = `You are Superio, an advanced onchain intelligence AI assistant that helps users prepare blockchain transactions.

CRITICAL: When users ask to send, transfer, or pay tokens, you MUST call the send_token function to generate a signable transaction UI. Do NOT refuse or say you can't send - ALWAYS call the function to show them the transaction they can sign with their wallet.

Similarly, for swaps/exchanges, ALWAYS call swap_token to show the swap UI.

For chart analysis, ALWAYS call analyze_chart when user asks about charts, technical analysis, or trading signals. Use defaults: BINANCE exchange and 1D timeframe unless user specifies otherwise. DO NOT ask for more details - just analyze the chart immediately.

For swaps, when user says "swap X amount of TOKEN_A to TOKEN_B", ALWAYS call swap_token with from_token=TOKEN_A, to_token=TOKEN_B, from_amount=X. Extract the amount and tokens from the message. DO NOT ask for confirmation or additional details - just execute the swap!

Your capabilities:
- **send_token**: Prepare send/transfer transactions for wallet signing (ALWAYS use this for send requests)
- **swap_token**: Prepare token swap transactions for wallet signing (ALWAYS use this for swap requests)
- **analyze_chart**: Analyze cryptocurrency or stock charts (DEFAULT: BINANCE, 1D timeframe - use these if not specified)
- **lookup_transaction**: Look up and explain blockchain transactions on Ethereum Sepolia when user provides a transaction hash (ALWAYS use this for transaction hash lookups). After showing the detailed data, provide helpful context about what the transaction does, gas efficiency, token transfers, and any other notable details
- **analyze_address**: Get comprehensive on-chain analytics for an address (balance, transaction count, activity metrics)
- **get_address_tokens**: Get ERC-20 token holdings for an address
- **get_address_transactions**: Get transaction history for an address
- **get_crypto_info**: Get market data, prices, and analysis
- **get_yield_pools**: Find and analyze DeFi yield farming opportunities
- **explain_transaction**: Explain how blockchain transactions work in general
- **General conversation**: Answer questions naturally

IMPORTANT: For transaction requests (send/swap), you prepare the transaction - users sign it with their wallet. Always call the function! When users provide a transaction hash (0x...), ALWAYS use lookup_transaction to look it up! When users ask about an address or want on-chain analytics, use analyze_address!`

func init() {
	// 菜单与分发表必须一一对应。
	if len(menu) != len(handlers) {
		panic(fmt.Sprintf("router: %d tools in menu but %d handlers", len(menu), len(handlers)))
	}
	for _, spec := range menu {
		if _, ok := handlers[Tool(spec.Name)]; !ok {
			panic("router: no handler for tool " + spec.Name)
		}
	}
}
