package coordinator

import (
	"context"
	"fmt"
	"strings"

	"Superio-Chain/internal/gateway/coingecko"
	"Superio-Chain/internal/gateway/feargreed"
	"Superio-Chain/internal/llm"
	"Superio-Chain/internal/textfmt"
)

const (
	analysisSystemPrompt = "You are Superio, an advanced onchain intelligence AI assistant. You specialize in DeFi analysis, " +
		"cryptocurrency markets, and blockchain data. Provide clear, data-driven insights and recommendations in 2-3 sentences. " +
		"Never introduce yourself as any other identity - you are Superio."
	analysisMaxTokens = 300

	// 24 小时涨跌幅阈值（百分比）。
	sellThreshold = -10.0
	buyThreshold  = 10.0
)

func analysisPrompt(coin coingecko.Coin, index *feargreed.Index, query string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this cryptocurrency data and provide insights:\n\nCoin: %s (%s)\n", coin.Name, coin.Symbol)
	fmt.Fprintf(&b, "Current Price: $%s\n", textfmt.Commas(coin.CurrentPrice, 2))
	fmt.Fprintf(&b, "24h Change: %.2f%%\n", coin.PriceChangePercentage24h)
	fmt.Fprintf(&b, "Market Cap: $%s\n", textfmt.Commas(coin.MarketCap, 0))
	fmt.Fprintf(&b, "Volume: $%s", textfmt.Commas(coin.TotalVolume, 0))
	if index != nil {
		fmt.Fprintf(&b, "\n\nMarket Sentiment (Fear & Greed Index): %s - %s", index.Value, index.ValueClassification)
	}
	if strings.TrimSpace(query) != "" {
		fmt.Fprintf(&b, "\n\nUser Query: %s", query)
	}
	b.WriteString("\n\nProvide a concise analysis (2-3 sentences) and clear recommendation (SELL, HOLD, or BUY).")
	return b.String()
}

// extractRecommendation 依次查找 SELL、BUY、HOLD，均未出现时返回空串。
func extractRecommendation(analysis string) string {
	upper := strings.ToUpper(analysis)
	for _, rec := range []string{"SELL", "BUY", "HOLD"} {
		if strings.Contains(upper, rec) {
			return rec
		}
	}
	return ""
}

// ThresholdAnalysis 在没有大模型时按 24 小时涨跌幅给出建议。
func ThresholdAnalysis(coin coingecko.Coin, index *feargreed.Index) (string, string) {
	change := coin.PriceChangePercentage24h
	var b strings.Builder
	fmt.Fprintf(&b, "Price analysis for %s: ", coin.Name)
	var rec string
	switch {
	case change < sellThreshold:
		fmt.Fprintf(&b, "Significant drop of %.2f%% in 24h. ", change)
		rec = "SELL"
	case change > buyThreshold:
		fmt.Fprintf(&b, "Strong gain of %.2f%% in 24h. ", change)
		rec = "BUY"
	default:
		fmt.Fprintf(&b, "Moderate change of %.2f%% in 24h. ", change)
		rec = "HOLD"
	}
	if index != nil {
		fmt.Fprintf(&b, "Market sentiment: %s.", index.ValueClassification)
	}
	return strings.TrimSpace(b.String()), rec
}

// analyze 调用大模型生成解读，失败时退回阈值分析。
func (c *Coordinator) analyze(ctx context.Context, coin coingecko.Coin, index *feargreed.Index, query string) (string, string) {
	if c.llmClient != nil {
		if c.llmTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.llmTimeout)
			defer cancel()
		}
		resp, err := c.llmClient.Complete(ctx, llm.Request{
			Messages:    []llm.Message{llm.System(analysisSystemPrompt), llm.User(analysisPrompt(coin, index, query))},
			Temperature: llm.Temperature(0.7),
			MaxTokens:   analysisMaxTokens,
		})
		if err == nil && resp != nil && strings.TrimSpace(resp.Content) != "" {
			return resp.Content, extractRecommendation(resp.Content)
		}
		c.log.Warn("大模型分析失败，使用阈值分析", "coin", coin.ID, "error", err)
	}
	return ThresholdAnalysis(coin, index)
}

// FormatResponse 渲染返回给最终用户的分析文本。
func FormatResponse(resp *AnalysisResponse) string {
	var b strings.Builder
	b.WriteString(resp.Analysis)
	b.WriteString("\n\n")
	if resp.Recommendation != "" {
		fmt.Fprintf(&b, "Recommendation: %s\n\n", resp.Recommendation)
	}
	if coin := resp.CoinData; coin != nil {
		fmt.Fprintf(&b, "💰 %s (%s)\n", coin.Name, coin.Symbol)
		fmt.Fprintf(&b, "Price: $%s\n", textfmt.Commas(coin.CurrentPrice, 2))
		fmt.Fprintf(&b, "24h Change: %.2f%%\n", coin.PriceChangePercentage24h)
		fmt.Fprintf(&b, "Market Cap: $%s\n", textfmt.Commas(coin.MarketCap, 0))
	}
	if idx := resp.FGIData; idx != nil {
		fmt.Fprintf(&b, "\n📊 Market Sentiment: %s (%s)", idx.ValueClassification, idx.Value)
	}
	if resp.Partial {
		fmt.Fprintf(&b, "\n\n⚠️ Partial result: missing %s data.", strings.Join(resp.Missing, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
