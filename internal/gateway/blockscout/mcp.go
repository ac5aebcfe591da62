// Package blockscout 通过 Blockscout MCP 服务查询链上数据。
//
// MCP 服务以 JSON-RPC 的 tools/call 暴露工具，响应可能是普通 JSON，也可能是
// text/event-stream。两种形式都归一为 Result。
package blockscout

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"

	xerrors "Superio-Chain/internal/errors"
	"Superio-Chain/internal/gateway/httpx"
)

const (
	// DefaultMCPURL 是公共 MCP 端点。
	DefaultMCPURL = "https://mcp.blockscout.com/mcp"
	upstream      = "blockscout"
	ssePrefix     = "data:"
)

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

func (e rpcEnvelope) hasResult() bool {
	return len(e.Result) > 0 && !bytes.Equal(bytes.TrimSpace(e.Result), []byte("null"))
}

func (e rpcEnvelope) hasError() bool {
	return len(e.Error) > 0 && !bytes.Equal(bytes.TrimSpace(e.Error), []byte("null"))
}

// Content 是 MCP 工具结果中的一段内容。
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result 是 tools/call 的结果。
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Text 返回第一段文本内容。
func (r Result) Text() (string, bool) {
	if len(r.Content) == 0 {
		return "", false
	}
	return r.Content[0].Text, true
}

type caller struct {
	http   *httpx.Client
	url    string
	nextID atomic.Int64
}

func (c *caller) call(ctx context.Context, tool string, args map[string]any) (Result, error) {
	if args == nil {
		args = map[string]any{}
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "tools/call",
		Params:  rpcParams{Name: tool, Arguments: args},
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return Result{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码 MCP 请求失败")
	}
	req, err := httpx.NewBodyRequest(ctx, http.MethodPost, c.url, payload, map[string]string{
		"Accept": "application/json, text/event-stream",
	})
	if err != nil {
		return Result{}, err
	}
	body, header, err := c.http.Do(ctx, req)
	if err != nil {
		return Result{}, err
	}

	var raw json.RawMessage
	if strings.Contains(header.Get("Content-Type"), "text/event-stream") {
		raw, err = DecodeStream(body)
	} else {
		raw, err = decodeEnvelope(body)
	}
	if err != nil {
		return Result{}, err
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, xerrors.Wrap(xerrors.CodeUnrecognizedShape, err, "MCP 结果格式无法识别")
	}
	if res.IsError {
		text, _ := res.Text()
		return Result{}, xerrors.New(xerrors.CodeUpstreamUnavailable, "MCP 工具返回错误: "+text,
			xerrors.WithMetadata("tool", tool))
	}
	return res, nil
}

func decodeEnvelope(body []byte) (json.RawMessage, error) {
	var env rpcEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "解析 MCP 响应失败")
	}
	if env.hasError() {
		return nil, xerrors.New(xerrors.CodeUpstreamUnavailable, "MCP 返回错误: "+string(env.Error))
	}
	if !env.hasResult() {
		return nil, xerrors.New(xerrors.CodeUpstreamUnavailable, "MCP 响应缺少 result")
	}
	return env.Result, nil
}

// DecodeStream 解析事件流形式的 JSON-RPC 响应。
//
// 只解析以 "data:" 开头的行；最后一个带 result 的信封生效；任何带 error 的
// 信封使整个调用失败，无论它出现在什么位置。
func DecodeStream(body []byte) (json.RawMessage, error) {
	var last json.RawMessage
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if !strings.HasPrefix(line, ssePrefix) {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, ssePrefix))
		var env rpcEnvelope
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			continue
		}
		if env.hasError() {
			return nil, xerrors.New(xerrors.CodeUpstreamUnavailable, "MCP 事件流返回错误: "+string(env.Error))
		}
		if env.hasResult() {
			last = env.Result
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "读取 MCP 事件流失败")
	}
	if last == nil {
		return nil, xerrors.New(xerrors.CodeUpstreamUnavailable, "MCP 事件流中没有结果")
	}
	return last, nil
}
