package mysql

import (
	"context"
	"strings"
	"time"

	xerrors "Superio-Chain/internal/errors"
)

// DefaultSummary 是新会话的默认摘要。
const DefaultSummary = "New conversation"

// 消息角色。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 是一条聊天记录。
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Conversation 是某个钱包地址的完整会话。
type Conversation struct {
	WalletAddress string    `json:"wallet_address"`
	Summary       string    `json:"summary"`
	MessageCount  int       `json:"message_count"`
	Messages      []Message `json:"messages"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ChatRepository 抽象聊天记录的持久化接口。
type ChatRepository interface {
	// AppendMessage 追加一条消息，返回追加后的消息总数。
	AppendMessage(ctx context.Context, wallet string, msg Message) (int, error)
	// Conversation 返回完整会话，不存在时返回带默认摘要的空会话。
	Conversation(ctx context.Context, wallet string) (*Conversation, error)
	// RecentMessages 按时间正序返回最近 limit 条消息。
	RecentMessages(ctx context.Context, wallet string, limit int) ([]Message, error)
	UpdateSummary(ctx context.Context, wallet, summary string) error
	Close() error
}

func normalizeWallet(wallet string) (string, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "wallet_address 不能为空")
	}
	return wallet, nil
}

func normalizeMessage(msg Message) (Message, error) {
	msg.Role = strings.ToLower(strings.TrimSpace(msg.Role))
	if msg.Role != RoleUser && msg.Role != RoleAssistant {
		return msg, xerrors.New(xerrors.CodeInvalidArgument, "role 必须是 user 或 assistant",
			xerrors.WithMetadata("role", msg.Role))
	}
	if strings.TrimSpace(msg.Content) == "" {
		return msg, xerrors.New(xerrors.CodeInvalidArgument, "消息内容不能为空")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return msg, nil
}

func emptyConversation(wallet string) *Conversation {
	return &Conversation{WalletAddress: wallet, Summary: DefaultSummary, Messages: []Message{}}
}
