package mysql

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	xerrors "Superio-Chain/internal/errors"
)

// 单个会话在内存中保留的最大消息数。
const memoryMessageLimit = 512

// chatEvent 是 JSON-lines 日志中的一行。
type chatEvent struct {
	Wallet  string   `json:"wallet"`
	Message *Message `json:"message,omitempty"`
	Summary string   `json:"summary,omitempty"`
	At      int64    `json:"at"`
}

// MemoryChatRepository 在内存中保存会话，并以追加写的方式记录到本地 JSON-lines 文件，
// 重启时按顺序回放。
type MemoryChatRepository struct {
	mu            sync.RWMutex
	dataFile      string
	conversations map[string]*Conversation
}

// NewMemoryChatRepository 创建仓库并从 dataDir/chat_history.log 恢复数据。
func NewMemoryChatRepository(dataDir string) (*MemoryChatRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建数据目录失败")
	}
	repo := &MemoryChatRepository{
		dataFile:      filepath.Join(dataDir, "chat_history.log"),
		conversations: make(map[string]*Conversation),
	}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// AppendMessage 实现 ChatRepository。
func (m *MemoryChatRepository) AppendMessage(_ context.Context, wallet string, msg Message) (int, error) {
	wallet, err := normalizeWallet(wallet)
	if err != nil {
		return 0, err
	}
	msg, err = normalizeMessage(msg)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.appendEvent(chatEvent{Wallet: wallet, Message: &msg, At: msg.Timestamp.Unix()}); err != nil {
		return 0, err
	}
	return m.applyMessage(wallet, msg), nil
}

// Conversation 实现 ChatRepository。
func (m *MemoryChatRepository) Conversation(_ context.Context, wallet string) (*Conversation, error) {
	wallet, err := normalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[wallet]
	if !ok {
		return emptyConversation(wallet), nil
	}
	out := *conv
	out.Messages = append([]Message(nil), conv.Messages...)
	return &out, nil
}

// RecentMessages 实现 ChatRepository。
func (m *MemoryChatRepository) RecentMessages(_ context.Context, wallet string, limit int) ([]Message, error) {
	wallet, err := normalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[wallet]
	if !ok {
		return []Message{}, nil
	}
	msgs := conv.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]Message(nil), msgs...), nil
}

// UpdateSummary 实现 ChatRepository。
func (m *MemoryChatRepository) UpdateSummary(_ context.Context, wallet, summary string) error {
	wallet, err := normalizeWallet(wallet)
	if err != nil {
		return err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "summary 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if err := m.appendEvent(chatEvent{Wallet: wallet, Summary: summary, At: now.Unix()}); err != nil {
		return err
	}
	m.applySummary(wallet, summary, now)
	return nil
}

// Close 实现 ChatRepository，文件在每次写入后都已关闭。
func (m *MemoryChatRepository) Close() error { return nil }

func (m *MemoryChatRepository) conversation(wallet string, at time.Time) *Conversation {
	conv, ok := m.conversations[wallet]
	if !ok {
		conv = emptyConversation(wallet)
		conv.CreatedAt = at
		m.conversations[wallet] = conv
	}
	return conv
}

func (m *MemoryChatRepository) applyMessage(wallet string, msg Message) int {
	conv := m.conversation(wallet, msg.Timestamp)
	conv.Messages = append(conv.Messages, msg)
	if len(conv.Messages) > memoryMessageLimit {
		conv.Messages = conv.Messages[len(conv.Messages)-memoryMessageLimit:]
	}
	conv.MessageCount++
	conv.UpdatedAt = msg.Timestamp
	return conv.MessageCount
}

func (m *MemoryChatRepository) applySummary(wallet, summary string, at time.Time) {
	conv := m.conversation(wallet, at)
	conv.Summary = summary
	conv.UpdatedAt = at
}

func (m *MemoryChatRepository) appendEvent(event chatEvent) error {
	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开聊天日志失败")
	}
	defer file.Close()

	encoded, err := json.Marshal(event)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化聊天记录失败")
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入聊天日志失败")
	}
	return nil
}

func (m *MemoryChatRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取聊天日志失败")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var event chatEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil || event.Wallet == "" {
			continue
		}
		switch {
		case event.Message != nil:
			m.applyMessage(event.Wallet, *event.Message)
		case event.Summary != "":
			m.applySummary(event.Wallet, event.Summary, time.Unix(event.At, 0).UTC())
		}
	}
	if err := scanner.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析聊天日志失败")
	}
	return nil
}
