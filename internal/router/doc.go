// Package router 是工具路由器：由大模型在固定的工具清单中选择一个工具，
// 分发到对应的处理器，并在回复的 tools_used 中记录数据来源。模型不可用时
// 改用关键字分类兜底，任何处理器错误都被转换成统一的致歉回复。
package router
