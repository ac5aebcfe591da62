package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	xerrors "Superio-Chain/internal/errors"
)

var sendKeywords = []string{"send", "transfer", "pay", "payment"}

var sendPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:send|transfer|pay)\s+(\d+\.?\d*)\s+(\w+)\s+to\s+([0-9a-zA-Z]+)`),
	regexp.MustCompile(`(?i)(?:send|transfer|pay)\s+(\w+)\s+(\d+\.?\d*)\s+to\s+([0-9a-zA-Z]+)`),
}

// SendIntent 是一笔待外部钱包签名的转账描述。
type SendIntent struct {
	Token        string  `json:"token"`
	TokenName    string  `json:"token_name"`
	Amount       float64 `json:"amount"`
	ToAddress    string  `json:"to_address"`
	Network      Network `json:"network"`
	Decimals     int     `json:"decimals"`
	EstimatedFee float64 `json:"estimated_gas"`
	FeeSymbol    string  `json:"gas_symbol"`
}

// SendUI 是前端渲染转账确认卡片所需的数据。
type SendUI struct {
	Token        string   `json:"token"`
	TokenName    string   `json:"token_name"`
	Amount       float64  `json:"amount"`
	ToAddress    string   `json:"to_address"`
	Network      Network  `json:"network"`
	EstimatedGas float64  `json:"estimated_gas"`
	GasSymbol    string   `json:"gas_symbol"`
	TotalCost    *float64 `json:"total_cost,omitempty"`
}

// DetectSend 是转账意图的关键字预筛选，允许误报。
func DetectSend(text string) bool {
	return containsAny(strings.ToLower(text), sendKeywords)
}

// ParseSend 按顺序尝试转账模式，第一个所有捕获都可解析的匹配胜出。
func ParseSend(text string) (*SendIntent, bool) {
	for i, pattern := range sendPatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		amountRaw, tokenRaw := m[1], m[2]
		if i == 1 {
			amountRaw, tokenRaw = m[2], m[1]
		}
		amount, ok := parseAmount(amountRaw)
		if !ok {
			continue
		}
		intent, err := BuildSend(tokenRaw, amount, m[3])
		if err != nil {
			continue
		}
		return intent, true
	}
	return nil, false
}

// BuildSend 校验参数并构造转账意图。地址必须符合代币所在网络的格式。
func BuildSend(tokenAlias string, amount float64, address string) (*SendIntent, error) {
	token, ok := SendTokens.Lookup(tokenAlias)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的代币: %s", tokenAlias))
	}
	return buildSend(token, token.Network, amount, address)
}

// BuildSepoliaSend 用于模型工具调用：代币的符号与精度取自注册表，
// 网络固定为 Ethereum Sepolia，收款地址必须是 EVM 地址。
func BuildSepoliaSend(tokenAlias string, amount float64, address string) (*SendIntent, error) {
	token, ok := SendTokens.Lookup(tokenAlias)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的代币: %s", tokenAlias))
	}
	return buildSend(token, NetworkSepolia, amount, address)
}

func buildSend(token Token, network Network, amount float64, address string) (*SendIntent, error) {
	if !(amount > 0) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "转账金额必须大于 0")
	}
	address = strings.TrimSpace(address)
	if !ValidAddress(network, address) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("地址不符合 %s 网络格式", network))
	}
	fee := EstimateFee(network)
	return &SendIntent{
		Token:        token.Symbol,
		TokenName:    token.Name,
		Amount:       amount,
		ToAddress:    address,
		Network:      network,
		Decimals:     token.Decimals,
		EstimatedFee: fee.Amount,
		FeeSymbol:    fee.Symbol,
	}, nil
}

// Reply 返回给用户的确认语句。
func (s *SendIntent) Reply() string {
	return fmt.Sprintf("I'll help you send %s %s to %s. Please review the transaction details below.",
		FormatAmount(s.Amount), s.Token, ShortAddress(s.ToAddress))
}

// UI 返回转账卡片数据。仅当手续费与转账代币相同时给出合计。
func (s *SendIntent) UI() SendUI {
	ui := SendUI{
		Token:        s.Token,
		TokenName:    s.TokenName,
		Amount:       s.Amount,
		ToAddress:    s.ToAddress,
		Network:      s.Network,
		EstimatedGas: s.EstimatedFee,
		GasSymbol:    s.FeeSymbol,
	}
	if s.Token == s.FeeSymbol {
		total := s.Amount + s.EstimatedFee
		ui.TotalCost = &total
	}
	return ui
}

// SendGuidance 是无法解析转账指令时的提示。
const SendGuidance = "I can help you send tokens! Please specify the amount, token, and recipient address.\n\n" +
	"Example: \"send 0.5 SOL to 7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU\""

func parseAmount(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || !(v > 0) {
		return 0, false
	}
	return v, true
}

// FormatAmount 去掉多余的尾随零。
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
