// Package mysql 保存按钱包地址划分的聊天记录与会话摘要。
// 提供基于 JSON-lines 文件的内存实现与带内嵌迁移的 MySQL 实现。
package mysql
