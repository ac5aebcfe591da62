package history

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"Superio-Chain/internal/llm"
	"Superio-Chain/internal/storage/mysql"
	"Superio-Chain/pkg/logger"
)

const (
	// ContextMessages 是拼接上下文时读取的最近消息数。
	ContextMessages = 5
	// ContextChars 是上下文内容的最大字符数。
	ContextChars = 500

	summaryMaxTokens   = 20
	summarySnippetSize = 100
	defaultTimeout     = 30 * time.Second
)

// 不保存记录的匿名用户。
var anonymousUsers = map[string]bool{"": true, "anonymous": true, "web_user": true}

// Tracked 判断用户是否需要保存聊天记录。
func Tracked(userID string) bool {
	return !anonymousUsers[strings.TrimSpace(userID)]
}

// Service 在聊天仓库之上提供上下文拼接与摘要维护。
type Service struct {
	repo      mysql.ChatRepository
	llmClient llm.Client
	timeout   time.Duration
	log       *slog.Logger
}

// Option 定义可选配置。
type Option func(*Service)

// WithSummaryTimeout 设置生成摘要的大模型超时。
func WithSummaryTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// NewService 创建服务。client 为 nil 时摘要保持默认值。
func NewService(repo mysql.ChatRepository, client llm.Client, opts ...Option) *Service {
	s := &Service{repo: repo, llmClient: client, timeout: defaultTimeout, log: logger.Named("history")}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Context 返回用于提示词的最近对话摘录，失败时返回空串。
func (s *Service) Context(ctx context.Context, wallet string) string {
	if !Tracked(wallet) {
		return ""
	}
	recent, err := s.repo.RecentMessages(ctx, wallet, ContextMessages)
	if err != nil {
		logger.FromContext(ctx, s.log).Warn("加载对话上下文失败", "wallet", wallet, "error", err)
		return ""
	}
	return ContextString(recent, ContextChars)
}

// RecordUser 保存用户消息。
func (s *Service) RecordUser(ctx context.Context, wallet, content string) error {
	if !Tracked(wallet) {
		return nil
	}
	_, err := s.repo.AppendMessage(ctx, wallet, mysql.Message{Role: mysql.RoleUser, Content: content})
	return err
}

// RecordAssistant 保存助手回复，并在达到阈值时刷新摘要。
func (s *Service) RecordAssistant(ctx context.Context, wallet, content string, metadata map[string]any) error {
	if !Tracked(wallet) {
		return nil
	}
	count, err := s.repo.AppendMessage(ctx, wallet, mysql.Message{Role: mysql.RoleAssistant, Content: content, Metadata: metadata})
	if err != nil {
		return err
	}
	if ShouldSummarize(count) {
		s.refreshSummary(ctx, wallet)
	}
	return nil
}

// Append 直接追加一条消息，不触发摘要。
func (s *Service) Append(ctx context.Context, wallet string, msg mysql.Message) (int, error) {
	return s.repo.AppendMessage(ctx, wallet, msg)
}

// Conversation 返回完整会话。
func (s *Service) Conversation(ctx context.Context, wallet string) (*mysql.Conversation, error) {
	return s.repo.Conversation(ctx, wallet)
}

// UpdateSummary 手动设置摘要。
func (s *Service) UpdateSummary(ctx context.Context, wallet, summary string) error {
	return s.repo.UpdateSummary(ctx, wallet, summary)
}

func (s *Service) refreshSummary(ctx context.Context, wallet string) {
	log := logger.FromContext(ctx, s.log)
	conv, err := s.repo.Conversation(ctx, wallet)
	if err != nil || len(conv.Messages) == 0 {
		log.Warn("读取会话失败，跳过摘要", "wallet", wallet, "error", err)
		return
	}
	summary := Summarize(ctx, s.llmClient, s.timeout, conv.Messages)
	if err := s.repo.UpdateSummary(ctx, wallet, summary); err != nil {
		log.Warn("更新会话摘要失败", "wallet", wallet, "error", err)
		return
	}
	log.Info("会话摘要已更新", "wallet", wallet, "summary", summary)
}

// ShouldSummarize 判断当前消息数是否需要刷新摘要。
func ShouldSummarize(count int) bool {
	return count > 0 && (count%10 == 0 || count >= 5)
}

const summaryPrompt = `Summarize this conversation in 3-6 words. Focus on the main topic or intent.

Conversation context:
%s

Summary (be concise, avoid "conversation about"):`

// Summarize 取前两条与后两条消息生成 3 到 6 个词的摘要，失败时返回默认摘要。
func Summarize(ctx context.Context, client llm.Client, timeout time.Duration, messages []mysql.Message) string {
	if client == nil || len(messages) == 0 {
		return mysql.DefaultSummary
	}
	picked := messages
	if len(messages) > 4 {
		picked = append(append([]mysql.Message(nil), messages[:2]...), messages[len(messages)-2:]...)
	}
	lines := make([]string, 0, len(picked))
	for _, msg := range picked {
		content := msg.Content
		if runes := []rune(content); len(runes) > summarySnippetSize {
			content = string(runes[:summarySnippetSize]) + "..."
		}
		lines = append(lines, msg.Role+": "+content)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			llm.System("You are a helpful assistant that creates very brief, concise summaries of conversations. Return only the summary, no explanations."),
			llm.User(fmt.Sprintf(summaryPrompt, strings.Join(lines, "\n"))),
		},
		Temperature: llm.Temperature(0.3),
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil || resp == nil {
		logger.FromContext(ctx, logger.Named("history")).Warn("生成摘要失败", "error", err)
		return mysql.DefaultSummary
	}
	return cleanSummary(resp.Content)
}

// 只去掉开头的 "conversation" 或 "conversation about"。
var conversationPrefix = regexp.MustCompile(`(?i)^conversation(\s+about)?\b`)

func cleanSummary(raw string) string {
	summary := strings.TrimSpace(strings.ReplaceAll(raw, `"`, ""))
	summary = strings.TrimSpace(conversationPrefix.ReplaceAllString(summary, ""))
	if summary == "" {
		return mysql.DefaultSummary
	}
	return summary
}

// ContextString 从最近 5 条消息中由新到旧选取，累计内容不超过 maxChars，按原顺序输出。
func ContextString(recent []mysql.Message, maxChars int) string {
	if len(recent) == 0 {
		return ""
	}
	if len(recent) > ContextMessages {
		recent = recent[len(recent)-ContextMessages:]
	}
	var parts []string
	total := 0
	for i := len(recent) - 1; i >= 0; i-- {
		msg := recent[i]
		if total+len(msg.Content) > maxChars {
			break
		}
		role := msg.Role
		if role == "" {
			role = mysql.RoleUser
		}
		parts = append([]string{role + ": " + msg.Content}, parts...)
		total += len(msg.Content)
	}
	return strings.Join(parts, "\n")
}
