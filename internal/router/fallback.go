package router

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"Superio-Chain/internal/intent"
	"Superio-Chain/internal/observability/metrics"
)

// FallbackGeneralText 是关键字兜底无法识别意图时的固定回复。
const FallbackGeneralText = "I'm having trouble reaching my language model right now, but I can still help with specific requests. " +
	"Try \"send 0.1 ETH to 0x...\", \"swap 5 SOL for USDC\", a transaction hash or address, " +
	"\"price of bitcoin\", \"show me yield pools\" or \"ETH chart\"."

var (
	txHashPattern  = regexp.MustCompile(`0x[a-fA-F0-9]{64}`)
	addressPattern = regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)
	wordsPattern   = regexp.MustCompile(`[A-Za-z0-9]+`)
)

var (
	tokenKeywords   = []string{"token", "holding", "erc-20", "erc20", "balance of"}
	historyKeywords = []string{"transactions", "history", "txs", "activity"}
	priceKeywords   = []string{"price", "worth", "market cap", "how much is", "trading at", "sentiment"}
	yieldKeywords   = []string{"yield", "apy", "pool", "farm", "staking", "earn"}
	chartKeywords   = []string{"chart", "technical analysis", "candle", "support", "resistance", "signal"}
	explainKeywords = []string{"what is", "what's", "explain", "how does", "how do", "why did"}
)

const defaultChartSymbol = "BTC"

// Classification 是关键字兜底的识别结果。Send 或 Swap 非空时无需再分发。
type Classification struct {
	Tool      Tool
	Arguments json.RawMessage
	Send      *intent.SendIntent
	Swap      *intent.SwapIntent
	Guidance  string
}

// KeywordClassifier 在大模型不可用时按正则与关键字选择工具。
type KeywordClassifier struct {
	rater intent.Rater
}

// NewKeywordClassifier 创建兜底分类器。rater 为空时使用静态汇率表。
func NewKeywordClassifier(rater intent.Rater) *KeywordClassifier {
	if rater == nil {
		rater = intent.StaticRater{}
	}
	return &KeywordClassifier{rater: rater}
}

// Classify 依次尝试转账、兑换、哈希与地址，再匹配行情、收益、图表与解释关键字。
func (k *KeywordClassifier) Classify(ctx context.Context, text string) Classification {
	var guidance string
	if intent.DetectSend(text) {
		if send, ok := intent.ParseSend(text); ok {
			return Classification{Tool: ToolSendToken, Send: send, Arguments: marshalArgs(sendArgsOf(send))}
		}
		guidance = intent.SendGuidance
	}
	if intent.DetectSwap(text) {
		if swap, ok := intent.ParseSwap(ctx, text, k.rater); ok {
			return Classification{Tool: ToolSwapToken, Swap: swap, Arguments: marshalArgs(swapArgsOf(swap))}
		}
		if guidance == "" {
			guidance = intent.SwapGuidance
		}
	}

	lower := strings.ToLower(text)
	if hash := txHashPattern.FindString(text); hash != "" {
		return Classification{Tool: ToolLookupTransaction, Arguments: marshalArgs(map[string]string{"transaction_hash": hash})}
	}
	if address := addressPattern.FindString(text); address != "" {
		args := marshalArgs(map[string]string{"address": address})
		switch {
		case containsAny(lower, tokenKeywords):
			return Classification{Tool: ToolGetAddressTokens, Arguments: args}
		case containsAny(lower, historyKeywords):
			return Classification{Tool: ToolGetAddressTransactions, Arguments: args}
		default:
			return Classification{Tool: ToolAnalyzeAddress, Arguments: args}
		}
	}

	switch {
	case containsAny(lower, priceKeywords):
		coin, _ := intent.ExtractCoin(text)
		return Classification{Tool: ToolGetCryptoInfo, Arguments: marshalArgs(map[string]any{"coin": coin, "include_sentiment": true})}
	case containsAny(lower, yieldKeywords):
		return Classification{Tool: ToolGetYieldPools, Arguments: marshalArgs(map[string]any{})}
	case containsAny(lower, chartKeywords):
		return Classification{Tool: ToolAnalyzeChart, Arguments: marshalArgs(map[string]string{"symbol": chartSymbol(text)})}
	case containsAny(lower, explainKeywords):
		return Classification{Tool: ToolExplainTransaction, Arguments: marshalArgs(map[string]string{"topic": text})}
	}
	return Classification{Tool: ToolGeneral, Guidance: guidance}
}

func sendArgsOf(s *intent.SendIntent) map[string]any {
	return map[string]any{"token": s.Token, "amount": s.Amount, "to_address": s.ToAddress}
}

func swapArgsOf(s *intent.SwapIntent) map[string]any {
	return map[string]any{"from_token": s.FromToken, "to_token": s.ToToken, "from_amount": s.FromAmount}
}

// chartSymbol 取文本中第一个已注册的代币符号。
func chartSymbol(text string) string {
	for _, w := range wordsPattern.FindAllString(text, -1) {
		if t, ok := intent.SwapTokens.Lookup(w); ok {
			return t.Symbol
		}
	}
	return defaultChartSymbol
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// handleFallback 在工具选择失败时使用关键字分类。
func (r *Router) handleFallback(ctx context.Context, req Request) *Reply {
	c := r.fallback.Classify(ctx, req.Message)
	record := func() []ToolRecord {
		args, _ := argumentMap(c.Arguments)
		return []ToolRecord{{Name: string(c.Tool), Source: SourceKeyword, Arguments: args}}
	}
	switch {
	case c.Send != nil:
		reply := &Reply{ToolsUsed: record()}
		applySend(reply, c.Send)
		metrics.ObserveToolDispatch(string(ToolSendToken), "fallback")
		return reply
	case c.Swap != nil:
		reply := &Reply{ToolsUsed: record()}
		applySwap(reply, c.Swap)
		metrics.ObserveToolDispatch(string(ToolSwapToken), "fallback")
		return reply
	case c.Tool == ToolGeneral:
		text := FallbackGeneralText
		if c.Guidance != "" {
			text = c.Guidance
		}
		return &Reply{
			Response:  text,
			ToolsUsed: []ToolRecord{{Name: "General Conversation", Source: SourceKeyword, Type: "direct_response"}},
		}
	}
	reply, err := r.dispatch(ctx, req, string(c.Tool), c.Arguments, SourceKeyword)
	if err != nil {
		return r.fail(ctx, c.Tool, err, reply)
	}
	return reply
}
