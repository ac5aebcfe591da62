// Package llm 定义与 OpenAI 兼容的对话补全接口：消息、工具菜单与工具调用。
// 具体供应商的适配位于子包中。
package llm
