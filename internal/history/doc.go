// Package history 维护按钱包地址划分的聊天记录：为提示词拼接最近上下文，
// 并在消息数达到阈值时用大模型刷新会话摘要。
package history
