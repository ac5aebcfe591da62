package history

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"Superio-Chain/internal/llm"
	"Superio-Chain/internal/storage/mysql"
)

type stubLLM struct {
	content  string
	err      error
	requests []llm.Request
}

func (s *stubLLM) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Content: s.content}, nil
}

const wallet = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"

func newRepo(t *testing.T) *mysql.MemoryChatRepository {
	t.Helper()
	repo, err := mysql.NewMemoryChatRepository(t.TempDir())
	if err != nil {
		t.Fatalf("创建仓库失败: %v", err)
	}
	return repo
}

func TestShouldSummarize(t *testing.T) {
	cases := map[int]bool{0: false, 1: false, 4: false, 5: true, 6: true, 10: true, 23: true}
	for count, want := range cases {
		if got := ShouldSummarize(count); got != want {
			t.Fatalf("count=%d 期望 %v，实际 %v", count, want, got)
		}
	}
}

func TestContextStringKeepsNewestWithinLimit(t *testing.T) {
	msgs := []mysql.Message{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: strings.Repeat("x", 490)},
		{Role: "user", Content: "three"},
		{Role: "assistant", Content: "four"},
	}
	got := ContextString(msgs, 500)
	want := "assistant: " + strings.Repeat("x", 490) + "\nuser: three\nassistant: four"
	if got != want {
		t.Fatalf("上下文不符:\n%q", got)
	}
	if ContextString(nil, 500) != "" {
		t.Fatalf("空消息应返回空串")
	}
}

func TestContextStringUsesLastFive(t *testing.T) {
	var msgs []mysql.Message
	for _, c := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		msgs = append(msgs, mysql.Message{Role: "user", Content: c})
	}
	if got := ContextString(msgs, 500); got != "user: c\nuser: d\nuser: e\nuser: f\nuser: g" {
		t.Fatalf("应只取最近 5 条: %q", got)
	}
}

func TestSummarizeUsesFirstAndLastTwo(t *testing.T) {
	client := &stubLLM{content: `"Conversation about ETH yields"`}
	var msgs []mysql.Message
	for _, c := range []string{"first", "second", "middle", "fourth", "fifth"} {
		msgs = append(msgs, mysql.Message{Role: "user", Content: c})
	}
	got := Summarize(context.Background(), client, 0, msgs)
	if got != "ETH yields" {
		t.Fatalf("摘要清理不符: %q", got)
	}
	prompt := client.requests[0].Messages[1].Content
	if strings.Contains(prompt, "middle") || !strings.Contains(prompt, "user: fifth") {
		t.Fatalf("提示词应只包含前后两条: %s", prompt)
	}
}

func TestSummarizeTruncatesOnRuneBoundary(t *testing.T) {
	client := &stubLLM{content: "以太坊收益"}
	long := strings.Repeat("链", summarySnippetSize+10)
	Summarize(context.Background(), client, 0, []mysql.Message{{Role: "user", Content: long}})

	prompt := client.requests[0].Messages[1].Content
	if !utf8.ValidString(prompt) {
		t.Fatalf("截断后出现非法 UTF-8: %q", prompt)
	}
	if !strings.Contains(prompt, "user: "+strings.Repeat("链", summarySnippetSize)+"...") {
		t.Fatalf("应按字符截断到 %d 个: %s", summarySnippetSize, prompt)
	}
}

func TestCleanSummaryStripsLeadingPhraseOnly(t *testing.T) {
	cases := map[string]string{
		"Conversation about ETH yields": "ETH yields",
		"Yield conversation on Aave":    "Yield conversation on Aave",
		"Conversational AI pricing":     "Conversational AI pricing",
		`"Conversation about"`:          mysql.DefaultSummary,
	}
	for raw, want := range cases {
		if got := cleanSummary(raw); got != want {
			t.Fatalf("cleanSummary(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestSummarizeFallsBack(t *testing.T) {
	msgs := []mysql.Message{{Role: "user", Content: "hi"}}
	if got := Summarize(context.Background(), &stubLLM{err: errors.New("down")}, 0, msgs); got != mysql.DefaultSummary {
		t.Fatalf("失败时应返回默认摘要: %q", got)
	}
	if got := Summarize(context.Background(), nil, 0, msgs); got != mysql.DefaultSummary {
		t.Fatalf("无大模型时应返回默认摘要: %q", got)
	}
	if got := Summarize(context.Background(), &stubLLM{content: "  "}, 0, msgs); got != mysql.DefaultSummary {
		t.Fatalf("空回复应返回默认摘要: %q", got)
	}
}

func TestServiceRecordsAndSummarizes(t *testing.T) {
	repo := newRepo(t)
	client := &stubLLM{content: "Bitcoin price questions"}
	svc := NewService(repo, client)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := svc.RecordUser(ctx, wallet, "what is the btc price"); err != nil {
			t.Fatalf("保存用户消息失败: %v", err)
		}
		if err := svc.RecordAssistant(ctx, wallet, "BTC is $64,000", map[string]any{"tool": "get_crypto_info"}); err != nil {
			t.Fatalf("保存助手消息失败: %v", err)
		}
	}
	if len(client.requests) != 0 {
		t.Fatalf("4 条消息不应触发摘要")
	}
	conv, _ := svc.Conversation(ctx, wallet)
	if conv.Summary != mysql.DefaultSummary {
		t.Fatalf("摘要应保持默认: %q", conv.Summary)
	}

	_ = svc.RecordUser(ctx, wallet, "and eth?")
	if err := svc.RecordAssistant(ctx, wallet, "ETH is $3,100", nil); err != nil {
		t.Fatalf("保存助手消息失败: %v", err)
	}
	conv, _ = svc.Conversation(ctx, wallet)
	if conv.Summary != "Bitcoin price questions" || conv.MessageCount != 6 {
		t.Fatalf("摘要未刷新: %+v", conv)
	}
	if got := svc.Context(ctx, wallet); !strings.HasSuffix(got, "assistant: ETH is $3,100") {
		t.Fatalf("上下文不符: %q", got)
	}
}

func TestServiceSkipsAnonymousUsers(t *testing.T) {
	repo := newRepo(t)
	svc := NewService(repo, nil)
	ctx := context.Background()
	for _, user := range []string{"", "anonymous", "web_user"} {
		if err := svc.RecordUser(ctx, user, "hello"); err != nil {
			t.Fatalf("匿名用户不应报错: %v", err)
		}
		if svc.Context(ctx, user) != "" {
			t.Fatalf("匿名用户不应有上下文")
		}
	}
	if Tracked("anonymous") || !Tracked(wallet) {
		t.Fatalf("Tracked 判断错误")
	}
}
