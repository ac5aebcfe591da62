package blockscout

import (
	"bytes"
	"encoding/json"
	"strings"
)

// SummaryUnavailable 是摘要无法解析时的占位文本。
const SummaryUnavailable = "Transaction summary unavailable"

type summaryEnvelope struct {
	Data struct {
		Summary []struct {
			Template  string                     `json:"summary_template"`
			Variables map[string]json.RawMessage `json:"summary_template_variables"`
		} `json:"summary"`
	} `json:"data"`
}

// RenderSummary 把 transaction_summary 的模板与变量渲染为一句话。
//
// 地址变量优先取 hash，其次取 ENS 名称。仍未替换的 {native} 与 {to_address}
// 分别替换为 ETH 与 (address)。没有摘要时返回空串，内容无法解析时返回
// SummaryUnavailable。
func RenderSummary(text string) string {
	var env summaryEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return SummaryUnavailable
	}
	if len(env.Data.Summary) == 0 {
		return ""
	}
	first := env.Data.Summary[0]
	out := first.Template
	for key, raw := range first.Variables {
		var variable struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(raw, &variable); err != nil || len(variable.Value) == 0 {
			continue
		}
		out = strings.ReplaceAll(out, "{"+key+"}", variableText(variable.Value))
	}
	out = strings.ReplaceAll(out, "{native}", "ETH")
	return strings.ReplaceAll(out, "{to_address}", "(address)")
}

func variableText(value json.RawMessage) string {
	value = bytes.TrimSpace(value)
	switch {
	case len(value) > 0 && value[0] == '{':
		var ref struct {
			Hash string `json:"hash"`
			ENS  string `json:"ens_domain_name"`
		}
		if err := json.Unmarshal(value, &ref); err == nil {
			if ref.Hash != "" {
				return ref.Hash
			}
			if ref.ENS != "" {
				return ref.ENS
			}
		}
	case len(value) > 0 && value[0] == '"':
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			return s
		}
	}
	return string(value)
}
