package router

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	xerrors "Superio-Chain/internal/errors"
)

// number 兼容模型把数值写成字符串的情况。
type number struct {
	value float64
	set   bool
}

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = number{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		if s == "" {
			*n = number{}
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*n = number{value: v, set: true}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = number{value: v, set: true}
	return nil
}

func (n number) or(def float64) float64 {
	if !n.set {
		return def
	}
	return n.value
}

type sendArgs struct {
	Token     string `json:"token"`
	Amount    number `json:"amount"`
	ToAddress string `json:"to_address"`
}

type swapArgs struct {
	FromToken  string `json:"from_token"`
	ToToken    string `json:"to_token"`
	FromAmount number `json:"from_amount"`
}

type chartArgs struct {
	Symbol    string `json:"symbol"`
	Exchange  string `json:"exchange"`
	Interval  string `json:"interval"`
	Indicator string `json:"indicator"`
}

type txArgs struct {
	TransactionHash string `json:"transaction_hash"`
}

type addressArgs struct {
	Address string `json:"address"`
	Limit   number `json:"limit"`
}

type cryptoArgs struct {
	Coin             string `json:"coin"`
	IncludeSentiment *bool  `json:"include_sentiment"`
}

type yieldArgs struct {
	Chain    string `json:"chain"`
	Token    string `json:"token"`
	Project  string `json:"project"`
	MinTVL   number `json:"min_tvl"`
	PoolType string `json:"pool_type"`
}

type explainArgs struct {
	Topic string `json:"topic"`
}

func decodeArgs(raw json.RawMessage, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "工具参数解析失败")
	}
	return nil
}

// argumentMap 把原始参数转成记录在 tools_used 中的对象。
func argumentMap(raw json.RawMessage) (map[string]any, error) {
	out := map[string]any{}
	if err := decodeArgs(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func marshalArgs(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return raw
}
