// Package coordinator 是消息驱动的分析部署形态：协调器把一次币种分析拆成
// 行情与情绪两个子请求，经总线并行发出，按关联 ID 收集回复后合成结果。
// 超过截止时间时用已有数据强制合成并标记 partial，缺少行情时返回 TIMEOUT 错误。
package coordinator
