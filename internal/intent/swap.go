package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	xerrors "Superio-Chain/internal/errors"
)

var swapKeywords = []string{"swap", "exchange", "trade", "convert", "buy", "sell"}

type swapPattern struct {
	re        *regexp.Regexp
	hasTarget bool
}

var swapPatterns = []swapPattern{
	{re: regexp.MustCompile(`(?i)(?:swap|exchange|trade|convert)\s+(\d+\.?\d*)\s+(\w+)\s+(?:for|to|into)\s+(\w+)`), hasTarget: true},
	{re: regexp.MustCompile(`(?i)(?:swap|exchange|trade|convert)\s+(\d+\.?\d*)\s+(\w+)\s+(?:for|to|into)`)},
	{re: regexp.MustCompile(`(?i)(?:buy|sell)\s+(\d+\.?\d*)\s+(\w+)`)},
}

// DefaultSlippage 是兑换的默认滑点容忍度（百分比）。
const DefaultSlippage = 0.5

// swapEstimatedGas 以 SOL 计。
const swapEstimatedGas = 0.00005

// SwapIntent 是一笔待签名的兑换描述，满足 ToAmount == FromAmount * Rate。
type SwapIntent struct {
	FromToken     string     `json:"from_token"`
	FromTokenName string     `json:"from_token_name"`
	FromAmount    float64    `json:"from_amount"`
	ToToken       string     `json:"to_token"`
	ToTokenName   string     `json:"to_token_name"`
	ToAmount      float64    `json:"to_amount"`
	Rate          float64    `json:"exchange_rate"`
	Slippage      float64    `json:"slippage"`
	RateSource    RateSource `json:"rate_source"`
	LowConfidence bool       `json:"low_confidence"`
}

// SwapUI 是前端兑换卡片所需的数据。
type SwapUI struct {
	FromToken     string     `json:"from_token"`
	FromTokenName string     `json:"from_token_name"`
	FromAmount    float64    `json:"from_amount"`
	ToToken       string     `json:"to_token"`
	ToTokenName   string     `json:"to_token_name"`
	ToAmount      float64    `json:"to_amount"`
	ExchangeRate  float64    `json:"exchange_rate"`
	Slippage      float64    `json:"slippage"`
	EstimatedGas  float64    `json:"estimated_gas"`
	RateSource    RateSource `json:"rate_source"`
	LowConfidence bool       `json:"low_confidence"`
}

// SwapMatch 是未定价的兑换解析结果。
type SwapMatch struct {
	From   Token
	To     Token
	Amount float64
}

// DetectSwap 是兑换意图的关键字预筛选。
func DetectSwap(text string) bool {
	return containsAny(strings.ToLower(text), swapKeywords)
}

// MatchSwap 只做文本解析，不查询汇率。
func MatchSwap(text string) (SwapMatch, bool) {
	for _, p := range swapPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		from, ok := SwapTokens.Lookup(m[2])
		if !ok {
			continue
		}
		var to Token
		if p.hasTarget {
			if to, ok = SwapTokens.Lookup(m[3]); !ok {
				continue
			}
		} else {
			to = defaultSwapTarget(from)
		}
		amount, ok := parseAmount(m[1])
		if !ok {
			continue
		}
		return SwapMatch{From: from, To: to, Amount: amount}, true
	}
	return SwapMatch{}, false
}

func defaultSwapTarget(from Token) Token {
	if from.Symbol == tokenUSDC.Symbol {
		return tokenSOL
	}
	return tokenUSDC
}

// ParseSwap 解析兑换文本并通过 rater 定价。
func ParseSwap(ctx context.Context, text string, rater Rater) (*SwapIntent, bool) {
	m, ok := MatchSwap(text)
	if !ok {
		return nil, false
	}
	if rater == nil {
		rater = StaticRater{}
	}
	quote := rater.Rate(ctx, m.From.Symbol, m.To.Symbol, m.Amount)
	return newSwapIntent(m.From, m.To, m.Amount, quote), true
}

// BuildSwap 用工具调用参数构造兑换意图。未注册的符号保留大写原样。
func BuildSwap(ctx context.Context, fromAlias, toAlias string, amount float64, rater Rater) (*SwapIntent, error) {
	if strings.TrimSpace(fromAlias) == "" || strings.TrimSpace(toAlias) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "兑换需要指定源代币和目标代币")
	}
	if !(amount > 0) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "兑换金额必须大于 0")
	}
	from := resolveSwapToken(fromAlias)
	to := resolveSwapToken(toAlias)
	if rater == nil {
		rater = StaticRater{}
	}
	quote := rater.Rate(ctx, from.Symbol, to.Symbol, amount)
	return newSwapIntent(from, to, amount, quote), nil
}

func resolveSwapToken(alias string) Token {
	if t, ok := SwapTokens.Lookup(alias); ok {
		return t
	}
	sym := strings.ToUpper(strings.TrimSpace(alias))
	return Token{Symbol: sym, Name: sym}
}

func newSwapIntent(from, to Token, amount float64, quote RateQuote) *SwapIntent {
	return &SwapIntent{
		FromToken:     from.Symbol,
		FromTokenName: from.Name,
		FromAmount:    amount,
		ToToken:       to.Symbol,
		ToTokenName:   to.Name,
		ToAmount:      amount * quote.Rate,
		Rate:          quote.Rate,
		Slippage:      DefaultSlippage,
		RateSource:    quote.Source,
		LowConfidence: quote.LowConfidence,
	}
}

// Reply 返回给用户的兑换确认语句。
func (s *SwapIntent) Reply() string {
	text := fmt.Sprintf("I'll help you swap %s %s for %s.", FormatAmount(s.FromAmount), s.FromToken, s.ToToken)
	if s.LowConfidence {
		text += fmt.Sprintf(" Note: no exchange rate was available for %s/%s, so a 1:1 estimate is shown. Please verify before signing.", s.FromToken, s.ToToken)
	}
	return text
}

// UI 返回兑换卡片数据。
func (s *SwapIntent) UI() SwapUI {
	return SwapUI{
		FromToken:     s.FromToken,
		FromTokenName: s.FromTokenName,
		FromAmount:    s.FromAmount,
		ToToken:       s.ToToken,
		ToTokenName:   s.ToTokenName,
		ToAmount:      s.ToAmount,
		ExchangeRate:  s.Rate,
		Slippage:      s.Slippage,
		EstimatedGas:  swapEstimatedGas,
		RateSource:    s.RateSource,
		LowConfidence: s.LowConfidence,
	}
}

// SwapGuidance 是无法解析兑换指令时的提示。
const SwapGuidance = "I can help you swap tokens! Please specify the amount, the token you have, and the token you want.\n\n" +
	"Example: \"swap 5 SOL for USDC\""
