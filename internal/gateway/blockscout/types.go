package blockscout

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
)

// Quantity 是链上整数量。Blockscout 有时以字符串、有时以数字返回，二者都接受；
// null 与空串视为缺失。
type Quantity struct {
	Int   *big.Int
	Valid bool
}

// UnmarshalJSON 实现 json.Unmarshaler。
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = Quantity{}
		return nil
	}
	text := string(data)
	if data[0] == '"' {
		s, err := strconv.Unquote(text)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(s)
	}
	if text == "" {
		*q = Quantity{}
		return nil
	}
	v, ok := new(big.Int).SetString(text, 0)
	if !ok {
		// 科学计数法等数字形式。
		f, _, err := big.ParseFloat(text, 10, 256, big.ToNearestEven)
		if err != nil {
			return err
		}
		v, _ = f.Int(nil)
	}
	*q = Quantity{Int: v, Valid: true}
	return nil
}

// MarshalJSON 以十进制字符串输出。
func (q Quantity) MarshalJSON() ([]byte, error) {
	if !q.Valid || q.Int == nil {
		return []byte("null"), nil
	}
	return json.Marshal(q.Int.String())
}

// Big 返回值，缺失时为 0。
func (q Quantity) Big() *big.Int {
	if !q.Valid || q.Int == nil {
		return new(big.Int)
	}
	return q.Int
}

// Int64 返回截断后的 int64。
func (q Quantity) Int64() int64 {
	return q.Big().Int64()
}

// Float 按 10^decimals 缩放为浮点数。
func (q Quantity) Float(decimals int) float64 {
	f := new(big.Float).SetInt(q.Big())
	if decimals > 0 {
		scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
		f.Quo(f, scale)
	}
	out, _ := f.Float64()
	return out
}

// AddressRef 是地址字段，既可能是字符串，也可能是 {hash, is_contract} 对象。
type AddressRef struct {
	Hash       string `json:"hash"`
	IsContract bool   `json:"is_contract"`
	Name       string `json:"name,omitempty"`
	ENS        string `json:"ens_domain_name,omitempty"`
}

// UnmarshalJSON 实现 json.Unmarshaler。
func (a *AddressRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = AddressRef{}
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &a.Hash)
	}
	type plain AddressRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = AddressRef(p)
	return nil
}

// BasicInfo 是 get_address_info 中的基础信息。
type BasicInfo struct {
	CoinBalance       Quantity `json:"coin_balance"`
	IsContract        bool     `json:"is_contract"`
	HasTokens         bool     `json:"has_tokens"`
	HasTokenTransfers bool     `json:"has_token_transfers"`
	HasLogs           bool     `json:"has_logs"`
	ENS               string   `json:"ens_domain_name,omitempty"`
}

// AddressInfo 是 get_address_info 的结果。
type AddressInfo struct {
	BasicInfo BasicInfo       `json:"basic_info"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// TokenHolding 是地址持有的一种 ERC-20 代币。
type TokenHolding struct {
	Address  string   `json:"address"`
	Name     string   `json:"name"`
	Symbol   string   `json:"symbol"`
	Decimals Quantity `json:"decimals"`
	Balance  Quantity `json:"balance"`
}

// Amount 按代币精度换算余额，缺少精度时按 18 位处理。
func (t TokenHolding) Amount() float64 {
	decimals := 18
	if t.Decimals.Valid {
		decimals = int(t.Decimals.Int64())
	}
	return t.Balance.Float(decimals)
}

// Transaction 是地址交易列表中的一项。
type Transaction struct {
	Hash        string     `json:"hash"`
	From        AddressRef `json:"from"`
	To          AddressRef `json:"to"`
	BlockNumber Quantity   `json:"block_number"`
	Value       Quantity   `json:"value"`
	Timestamp   string     `json:"timestamp"`
	Method      string     `json:"method,omitempty"`
	Status      string     `json:"status,omitempty"`
}

// TokenRef 是代币的简要描述。
type TokenRef struct {
	Address  string   `json:"address"`
	Name     string   `json:"name"`
	Symbol   string   `json:"symbol"`
	Decimals Quantity `json:"decimals"`
}

// TokenTransfer 是一次代币转账。
type TokenTransfer struct {
	TxHash string     `json:"transaction_hash"`
	From   AddressRef `json:"from"`
	To     AddressRef `json:"to"`
	Token  TokenRef   `json:"token"`
	Total  struct {
		Value    Quantity `json:"value"`
		Decimals Quantity `json:"decimals"`
	} `json:"total"`
	Timestamp string `json:"timestamp"`
}

// TransactionInfo 是单笔交易详情。指针字段为 nil 表示上游未返回该字段。
type TransactionInfo struct {
	Hash                 string          `json:"hash"`
	Status               *string         `json:"status"`
	Confirmations        *int64          `json:"confirmations"`
	BlockNumber          *int64          `json:"block_number"`
	From                 *AddressRef     `json:"from"`
	To                   *AddressRef     `json:"to"`
	Value                *Quantity       `json:"value"`
	GasLimit             *Quantity       `json:"gas_limit"`
	GasUsed              *Quantity       `json:"gas_used"`
	GasPrice             *Quantity       `json:"gas_price"`
	MaxPriorityFeePerGas *Quantity       `json:"max_priority_fee_per_gas"`
	PriorityFee          *Quantity       `json:"priority_fee"`
	Type                 json.RawMessage `json:"type"`
	Method               string          `json:"method"`
	Nonce                *int64          `json:"nonce"`
	Position             *int64          `json:"position"`
	Timestamp            *string         `json:"timestamp"`
	TokenTransfers       []TokenTransfer `json:"token_transfers"`
	RevertReason         json.RawMessage `json:"revert_reason"`

	// Raw 保留上游原始对象，原样返回给调用方。
	Raw json.RawMessage `json:"-"`
}

// Succeeded 判断交易状态是否为 ok。
func (t TransactionInfo) Succeeded() bool {
	return t.Status != nil && *t.Status == "ok"
}

// TypeText 返回交易类型的文本形式。
func (t TransactionInfo) TypeText() string {
	return rawText(t.Type)
}

// RevertText 返回回滚原因的文本形式。
func (t TransactionInfo) RevertText() string {
	return rawText(t.RevertReason)
}

func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Chain 是一条 Blockscout 支持的链。
type Chain struct {
	ID   string `json:"chain_id"`
	Name string `json:"name"`
}

// UnmarshalJSON 接受数字或字符串形式的 chain_id。
func (c *Chain) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID    json.RawMessage `json:"chain_id"`
		AltID json.RawMessage `json:"id"`
		Name  string          `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id := raw.ID
	if len(id) == 0 {
		id = raw.AltID
	}
	c.ID = strings.Trim(strings.TrimSpace(string(id)), `"`)
	c.Name = raw.Name
	return nil
}
