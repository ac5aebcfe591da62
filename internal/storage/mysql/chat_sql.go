package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	xerrors "Superio-Chain/internal/errors"
)

const (
	upsertConversationSQL = `INSERT INTO chat_conversations (wallet_address, summary, message_count, created_at, updated_at)
    VALUES (?, ?, 1, ?, ?)
    ON DUPLICATE KEY UPDATE message_count = message_count + 1, updated_at = VALUES(updated_at)`
	insertMessageSQL = `INSERT INTO chat_messages (wallet_address, role, content, metadata, created_at)
    VALUES (?, ?, ?, ?, ?)`
	selectCountSQL        = `SELECT message_count FROM chat_conversations WHERE wallet_address = ?`
	selectConversationSQL = `SELECT summary, message_count, created_at, updated_at
    FROM chat_conversations WHERE wallet_address = ?`
	selectMessagesSQL = `SELECT role, content, metadata, created_at
    FROM chat_messages WHERE wallet_address = ? ORDER BY id ASC`
	selectRecentSQL = `SELECT role, content, metadata, created_at
    FROM chat_messages WHERE wallet_address = ? ORDER BY id DESC LIMIT ?`
	upsertSummarySQL = `INSERT INTO chat_conversations (wallet_address, summary, message_count, created_at, updated_at)
    VALUES (?, ?, 0, ?, ?)
    ON DUPLICATE KEY UPDATE summary = VALUES(summary), updated_at = VALUES(updated_at)`
)

// SQLChatRepository 使用 MySQL 存储聊天记录，时间戳以毫秒保存。
type SQLChatRepository struct {
	db *sql.DB
}

// NewSQLChatRepository 创建连接池并执行内嵌迁移。
func NewSQLChatRepository(ctx context.Context, cfg Config) (*SQLChatRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "执行聊天记录迁移失败")
	}
	return &SQLChatRepository{db: db}, nil
}

// AppendMessage 在同一事务内更新会话计数并写入消息。
func (s *SQLChatRepository) AppendMessage(ctx context.Context, wallet string, msg Message) (int, error) {
	wallet, err := normalizeWallet(wallet)
	if err != nil {
		return 0, err
	}
	msg, err = normalizeMessage(msg)
	if err != nil {
		return 0, err
	}
	metadata, err := marshalMetadata(msg.Metadata)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化消息元数据失败")
	}
	at := msg.Timestamp.UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}
	if _, err := tx.ExecContext(ctx, upsertConversationSQL, wallet, DefaultSummary, at, at); err != nil {
		tx.Rollback()
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新会话失败")
	}
	if _, err := tx.ExecContext(ctx, insertMessageSQL, wallet, msg.Role, msg.Content, metadata, at); err != nil {
		tx.Rollback()
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入消息失败")
	}
	var count int
	if err := tx.QueryRowContext(ctx, selectCountSQL, wallet).Scan(&count); err != nil {
		tx.Rollback()
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询消息数量失败")
	}
	if err := tx.Commit(); err != nil {
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交事务失败")
	}
	return count, nil
}

// Conversation 实现 ChatRepository。
func (s *SQLChatRepository) Conversation(ctx context.Context, wallet string) (*Conversation, error) {
	wallet, err := normalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	conv := emptyConversation(wallet)
	var createdAt, updatedAt int64
	err = s.db.QueryRowContext(ctx, selectConversationSQL, wallet).Scan(&conv.Summary, &conv.MessageCount, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return conv, nil
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询会话失败")
	}
	conv.CreatedAt = time.UnixMilli(createdAt).UTC()
	conv.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	rows, err := s.db.QueryContext(ctx, selectMessagesSQL, wallet)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询消息失败")
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	conv.Messages = msgs
	return conv, nil
}

// RecentMessages 实现 ChatRepository。
func (s *SQLChatRepository) RecentMessages(ctx context.Context, wallet string, limit int) ([]Message, error) {
	wallet, err := normalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectRecentSQL, wallet, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询最近消息失败")
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// UpdateSummary 实现 ChatRepository。
func (s *SQLChatRepository) UpdateSummary(ctx context.Context, wallet, summary string) error {
	wallet, err := normalizeWallet(wallet)
	if err != nil {
		return err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "summary 不能为空")
	}
	now := time.Now().UnixMilli()
	if _, err := s.db.ExecContext(ctx, upsertSummarySQL, wallet, summary, now, now); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新会话摘要失败")
	}
	return nil
}

// Close 关闭底层数据库连接。
func (s *SQLChatRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()
	msgs := []Message{}
	for rows.Next() {
		var (
			msg      Message
			metadata sql.NullString
			at       int64
		)
		if err := rows.Scan(&msg.Role, &msg.Content, &metadata, &at); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析消息失败")
		}
		meta, err := unmarshalMetadata(metadata)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析消息元数据失败")
		}
		msg.Metadata = meta
		msg.Timestamp = time.UnixMilli(at).UTC()
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历消息失败")
	}
	return msgs, nil
}

func marshalMetadata(metadata map[string]any) (sql.NullString, error) {
	if len(metadata) == 0 {
		return sql.NullString{}, nil
	}
	bytes, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(bytes), Valid: true}, nil
}

func unmarshalMetadata(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw.String), &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}
