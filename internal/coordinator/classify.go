package coordinator

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"Superio-Chain/internal/llm"
	"Superio-Chain/pkg/logger"
)

// Intent 是协调器层面的粗粒度意图。
type Intent string

const (
	IntentDeFi    Intent = "DEFI"
	IntentGeneral Intent = "GENERAL"
)

// Classification 是意图识别结果。
type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Agent      string  `json:"agent"`
	Method     string  `json:"method"`
}

const (
	agentDeFi        = "defi_agent"
	agentCoordinator = "coordinator_agent"
	maxKeywordScore  = 0.95
)

var defiKeywords = map[string]bool{
	"price": true, "coin": true, "crypto": true, "bitcoin": true, "ethereum": true, "token": true,
	"defi": true, "trading": true, "market": true, "tvl": true, "protocol": true, "yield": true,
	"liquidity": true, "apy": true, "fear": true, "greed": true, "sentiment": true, "buy": true, "sell": true,
	"btc": true, "eth": true, "ada": true, "sol": true, "xrp": true, "doge": true, "dot": true, "avax": true, "matic": true,
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// KeywordClassify 按命中的关键字数量打分，置信度 min(0.5+0.1*score, 0.95)。
func KeywordClassify(query string) Classification {
	seen := map[string]bool{}
	for _, w := range tokenPattern.FindAllString(strings.ToLower(query), -1) {
		if defiKeywords[w] {
			seen[w] = true
		}
	}
	if score := len(seen); score > 0 {
		return Classification{
			Intent:     IntentDeFi,
			Confidence: math.Min(0.5+0.1*float64(score), maxKeywordScore),
			Agent:      agentDeFi,
			Method:     "keyword",
		}
	}
	return Classification{Intent: IntentGeneral, Confidence: 0.3, Agent: agentCoordinator, Method: "keyword"}
}

const classifyPrompt = `Analyze this user query and classify the intent.

User Query: "%s"

Available Intents:
1. DEFI - Questions about cryptocurrency prices, DeFi protocols, trading, market analysis, specific coins
2. GENERAL - General conversation, greetings, or questions not related to DeFi/crypto

Respond with ONLY ONE WORD: either "DEFI" or "GENERAL"`

// Classifier 优先使用大模型识别意图，失败时退回关键字打分。
type Classifier struct {
	client  llm.Client
	timeout time.Duration
}

// NewClassifier 创建分类器，client 可以为 nil。
func NewClassifier(client llm.Client, timeout time.Duration) *Classifier {
	return &Classifier{client: client, timeout: timeout}
}

// Classify 返回意图与置信度。
func (c *Classifier) Classify(ctx context.Context, query string) Classification {
	if c == nil || c.client == nil {
		return KeywordClassify(query)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			llm.System("You are an intent classification expert. Respond with only one word: DEFI or GENERAL."),
			llm.User(fmt.Sprintf(classifyPrompt, query)),
		},
		Temperature: llm.Temperature(0.3),
		MaxTokens:   10,
	})
	if err != nil || resp == nil {
		logger.FromContext(ctx, logger.Named("coordinator")).Warn("意图识别失败，使用关键字", "error", err)
		return KeywordClassify(query)
	}
	if strings.Contains(strings.ToUpper(resp.Content), string(IntentDeFi)) {
		return Classification{Intent: IntentDeFi, Confidence: 0.9, Agent: agentDeFi, Method: "ai"}
	}
	return Classification{Intent: IntentGeneral, Confidence: 0.8, Agent: agentCoordinator, Method: "ai"}
}
