package router

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	xerrors "Superio-Chain/internal/errors"
	"Superio-Chain/internal/gateway/defillama"
	"Superio-Chain/internal/knowledge"
	"Superio-Chain/pkg/logger"
)

const (
	yieldViewLimit      = 10
	yieldNarrativePools = 10
	yieldFetchFailed    = "Sorry, couldn't fetch yield data."
	yieldSourcesFooter  = "\n\n---\n📡 **Data Sources:** DeFiLlama API (live) • ASI:One Mini (analysis)"
	yieldSystemPrompt   = "You are Superio, a DeFi yield analysis expert. Provide clear, actionable insights about yield farming opportunities."
)

func (r *Router) handleYieldPools(ctx context.Context, req Request, raw json.RawMessage, reply *Reply) error {
	var args yieldArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	if r.yields == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置收益池数据源")
	}
	pools, ok := r.yields.Pools(ctx)
	if !ok || len(pools) == 0 {
		reply.Response = yieldFetchFailed
		return nil
	}

	query := defillama.Query{
		Chain:    args.Chain,
		Token:    args.Token,
		Project:  args.Project,
		MinTVL:   args.MinTVL.or(0),
		PoolType: defillama.PoolType(args.PoolType),
	}.Normalize()
	filtered := query.Apply(pools)

	text := defillama.Summary(filtered)
	if narrative := r.yieldNarrative(ctx, filtered, req.Message); narrative != "" {
		text += "\n\n**Analysis:**\n" + narrative
	}
	text += yieldSourcesFooter

	summary := r.knowledgeSummary(ctx, filtered)

	rec := reply.primary()
	rec.Source = SourceDeFiLlama
	rec.Filters = rec.Arguments
	if rec.Filters == nil {
		rec.Filters = map[string]any{}
	}
	rec.ResultsCount = intPtr(len(filtered))

	reply.Response = text
	reply.YieldPools = defillama.Views(filtered, yieldViewLimit)
	if reply.YieldPools == nil {
		reply.YieldPools = []defillama.PoolView{}
	}
	reply.MeTTaKnowledge = &summary
	return nil
}

// knowledgeSummary 构建知识图谱摘要，失败时返回空结构。
func (r *Router) knowledgeSummary(ctx context.Context, pools []defillama.Pool) (summary knowledge.Summary) {
	defer func() {
		if p := recover(); p != nil {
			logger.FromContext(ctx, r.log).Warn("构建知识图谱失败，使用空结构", "panic", p)
			summary = knowledge.EmptySummary()
		}
	}()
	if len(pools) == 0 {
		return knowledge.EmptySummary()
	}
	summary = knowledge.Build(pools).Summarize()
	if len(summary.GraphData.Nodes) == 0 {
		return knowledge.EmptySummary()
	}
	return summary
}

type poolDigest struct {
	Project string  `json:"project"`
	Chain   string  `json:"chain"`
	Symbol  string  `json:"symbol"`
	APY     float64 `json:"apy"`
	TVL     float64 `json:"tvl"`
}

// yieldNarrative 请求模型给出两三句解读，失败时返回空串。
func (r *Router) yieldNarrative(ctx context.Context, pools []defillama.Pool, query string) string {
	if len(pools) == 0 {
		return ""
	}
	digest := make([]poolDigest, 0, yieldNarrativePools)
	for i, p := range pools {
		if i == yieldNarrativePools {
			break
		}
		digest = append(digest, poolDigest{
			Project: p.Project,
			Chain:   p.Chain,
			Symbol:  p.Symbol,
			APY:     math.Round(p.TotalAPY()*100) / 100,
			TVL:     math.Round(p.TVLUSD),
		})
	}
	encoded, err := json.Marshal(digest)
	if err != nil {
		return ""
	}
	prompt := fmt.Sprintf(`Analyze these DeFi yield pools and provide recommendations.

User Query: %s

Available Pools:
%s

Provide a concise analysis (2-3 sentences) highlighting:
1. Best opportunities based on the user's query
2. Risk considerations (APY vs TVL balance)
3. Specific recommendations

Be helpful and data-driven.`, query, encoded)

	text, err := r.answer(ctx, yieldSystemPrompt, prompt, answerMaxTokens)
	if err != nil {
		logger.FromContext(ctx, r.log).Warn("收益池解读失败", "error", err)
		return ""
	}
	return strings.TrimSpace(text)
}

func (r *Router) handleExplain(ctx context.Context, req Request, raw json.RawMessage, reply *Reply) error {
	var args explainArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	topic := strings.TrimSpace(args.Topic)
	if topic == "" {
		topic = req.Message
	}
	var snippets []knowledge.Snippet
	if r.knowledge != nil {
		snippets = r.knowledge.Query(topic, req.Message)
	}
	system := "You are Superio. Explain blockchain transactions clearly and concisely. Focus on: " + topic + knowledge.PromptBlock(snippets)

	text, err := r.answer(ctx, system, req.Message, explainMaxTokens)
	if err != nil {
		if len(snippets) == 0 {
			return err
		}
		logger.FromContext(ctx, r.log).Warn("解释生成失败，返回知识片段", "error", err)
		reply.Response = snippetText(snippets)
		return nil
	}
	reply.Response = text
	return nil
}

func snippetText(snippets []knowledge.Snippet) string {
	var b strings.Builder
	for i, s := range snippets {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "**%s**\n%s", s.Title, s.Content)
	}
	return b.String()
}
