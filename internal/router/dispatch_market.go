package router

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	xerrors "Superio-Chain/internal/errors"
	"Superio-Chain/internal/gateway/chartimg"
	"Superio-Chain/internal/gateway/coingecko"
	"Superio-Chain/internal/gateway/feargreed"
	"Superio-Chain/internal/intent"
	"Superio-Chain/internal/llm"
	"Superio-Chain/internal/textfmt"
	"Superio-Chain/pkg/logger"
)

const (
	visionMaxTokens      = 1200
	chartFetchFailedText = "Could not fetch chart data."
	chartDefaultText     = "Analysis generated."
	coinFetchFailedText  = "Sorry, couldn't fetch market data for %s."
)

// Recommendation 是图表分析给出的交易建议。
type Recommendation string

const (
	RecommendBuy  Recommendation = "BUY"
	RecommendSell Recommendation = "SELL"
	RecommendHold Recommendation = "HOLD"
)

func (r *Router) handleCryptoInfo(ctx context.Context, req Request, raw json.RawMessage, reply *Reply) error {
	var args cryptoArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	coinID := intent.CoinID(args.Coin)
	if coinID == "" {
		coinID, _ = intent.ExtractCoin(req.Message)
	}
	if r.market == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置行情数据源")
	}
	reply.primary().Source = SourceCoinGecko
	coin, ok := r.market.Coin(ctx, coinID)
	if !ok {
		reply.primary().Error = userError(xerrors.New(xerrors.CodeUpstreamUnavailable, "无法获取币种行情"))
		reply.Response = fmt.Sprintf(coinFetchFailedText, coinID)
		return nil
	}

	var index *feargreed.Index
	if (args.IncludeSentiment == nil || *args.IncludeSentiment) && r.sentiment != nil {
		if idx, ok := r.sentiment.Index(ctx, 1); ok {
			index = &idx
			reply.ToolsUsed = append(reply.ToolsUsed, ToolRecord{
				Name:   "Fear & Greed Index",
				Source: SourceFearGreed,
				Data:   map[string]string{"sentiment": idx.ValueClassification, "value": idx.Value},
			})
		}
	}

	data := MarketContext(coin, index)
	text, err := r.answer(ctx, "You are Superio. Use this data to answer: "+data, req.Message, answerMaxTokens)
	if err != nil {
		logger.FromContext(ctx, r.log).Warn("行情解读失败，直接返回数据", "error", err)
		reply.Response = data
		return nil
	}
	reply.Response = text
	return nil
}

// MarketContext 渲染注入到提示词中的行情数据。
func MarketContext(coin coingecko.Coin, index *feargreed.Index) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current market data for %s:\n", coin.Name)
	fmt.Fprintf(&b, "- Price: $%s\n", textfmt.Commas(coin.CurrentPrice, 2))
	fmt.Fprintf(&b, "- 24h Change: %.2f%%\n", coin.PriceChangePercentage24h)
	fmt.Fprintf(&b, "- Market Cap: $%s\n", textfmt.Commas(coin.MarketCap, 0))
	if index != nil {
		fmt.Fprintf(&b, "- Market Sentiment: %s (%s/100)\n", index.ValueClassification, index.Value)
	}
	return b.String()
}

type chartResult struct {
	file           string
	analysis       string
	recommendation Recommendation
	err            error
}

func (r *Router) handleChart(ctx context.Context, _ Request, raw json.RawMessage, reply *Reply) error {
	var args chartArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	symbol := strings.ToUpper(strings.TrimSpace(args.Symbol))
	exchange := strings.ToUpper(strings.TrimSpace(args.Exchange))
	if exchange == "" {
		exchange = chartimg.DefaultExchange
	}
	interval := strings.TrimSpace(args.Interval)
	if interval == "" {
		interval = chartimg.DefaultInterval
	}

	result := r.analyzeChart(ctx, symbol, exchange, interval, strings.ToUpper(strings.TrimSpace(args.Indicator)))

	var chartURL string
	if result.err == nil {
		chartURL = fmt.Sprintf("%s/api/chart/%s", r.publicURL, result.file)
	}
	rec := reply.primary()
	rec.Source = SourceChart
	rec.ChartURL = chartURL
	rec.Recommendation = string(result.recommendation)

	var b strings.Builder
	fmt.Fprintf(&b, "📊 **Chart Analysis: %s**\n\n", symbol)
	if result.err != nil {
		fmt.Fprintf(&b, "❌ Error: %s", errorText(result.err))
	} else {
		analysis := result.analysis
		if strings.TrimSpace(analysis) == "" {
			analysis = chartDefaultText
		}
		b.WriteString(analysis)
		fmt.Fprintf(&b, "\n\n%s **Recommendation: %s**", recommendationEmoji(result.recommendation), result.recommendation)
	}
	reply.Response = b.String()
	reply.ChartURL = chartURL
	reply.ChartAnalysis = result.analysis
	return nil
}

// analyzeChart 生成图表并交给视觉模型分析。失败信息放在结果中而不是返回错误。
func (r *Router) analyzeChart(ctx context.Context, symbol, exchange, interval, indicator string) chartResult {
	log := logger.FromContext(ctx, r.log)
	if symbol == "" {
		return chartResult{analysis: chartFetchFailedText, err: xerrors.New(xerrors.CodeInvalidArgument, "symbol is required")}
	}
	if r.charts == nil {
		return chartResult{analysis: chartFetchFailedText, err: xerrors.New(xerrors.CodeInitializationFailure, "chart service is not configured")}
	}
	file, err := r.charts.Render(ctx, symbol, exchange, interval, indicator)
	if err != nil {
		log.Warn("生成图表失败", "symbol", symbol, "error", err)
		return chartResult{analysis: chartFetchFailedText, err: err}
	}
	image, err := r.charts.Read(file)
	if err != nil {
		return chartResult{analysis: chartFetchFailedText, err: err}
	}

	analysis, err := r.visionAnalysis(ctx, chartimg.TradingViewSymbol(symbol, exchange), image)
	if err != nil {
		log.Warn("图表分析失败", "symbol", symbol, "error", err)
		analysis = "Analysis error: " + errorText(err)
	}
	return chartResult{file: file, analysis: analysis, recommendation: ExtractRecommendation(analysis)}
}

func (r *Router) visionAnalysis(ctx context.Context, symbol string, png []byte) (string, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	resp, err := r.complete(ctx, llm.Request{
		Model: r.visionModel,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: visionPrompt(symbol),
			Images:  []string{dataURL},
		}},
		Temperature: llm.Temperature(classifyTemperature),
		MaxTokens:   visionMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func visionPrompt(symbol string) string {
	return fmt.Sprintf(`You are a senior crypto and equity market technician. Study this %s chart and give a concrete trading read.

Be direct and specific. Skip disclaimers such as "not financial advice".

Cover:
1. **Trend**: uptrend, downtrend or range.
2. **Support and Resistance**: the price levels that matter.
3. **Patterns**: any recognisable formation (triangles, flags, head and shoulders).
4. **Price Action**: what the recent candles say.
5. **Indicators**: read any visible indicator.
6. **Volume**: volume behaviour if shown.
7. **Recommendation**: one of BUY, SELL or HOLD, with entry, stop loss, take profit targets and the risk/reward ratio.`, symbol)
}

// ExtractRecommendation 依次检查 BUY、SELL，都没有时为 HOLD。
func ExtractRecommendation(analysis string) Recommendation {
	upper := strings.ToUpper(analysis)
	switch {
	case strings.Contains(upper, string(RecommendBuy)):
		return RecommendBuy
	case strings.Contains(upper, string(RecommendSell)):
		return RecommendSell
	default:
		return RecommendHold
	}
}

func recommendationEmoji(rec Recommendation) string {
	switch rec {
	case RecommendBuy:
		return "🟢"
	case RecommendSell:
		return "🔴"
	default:
		return "🟡"
	}
}

func errorText(err error) string {
	if e, ok := xerrors.From(err); ok {
		return e.Message()
	}
	return err.Error()
}
