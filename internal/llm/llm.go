package llm

import (
	"context"
	"encoding/json"
)

// Role 是消息角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 是一条对话消息。Images 为 data URL 或 http(s) URL，仅视觉模型使用。
type Message struct {
	Role    Role
	Content string
	Images  []string
}

// System 构造系统消息。
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User 构造用户消息。
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// ToolSpec 描述一个可供模型调用的函数。Parameters 是 JSON Schema。
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall 是模型选择的函数调用。
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Request 描述一次补全请求。Model 为空时使用客户端的默认模型。
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolSpec
	ToolChoice  string
	Temperature *float64
	MaxTokens   int
}

// Response 是补全结果。ToolCalls 非空时 Content 通常为空。
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Temperature 返回 t 的指针，便于填写 Request。
func Temperature(t float64) *float64 { return &t }
