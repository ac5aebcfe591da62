package knowledge

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	xerrors "Superio-Chain/internal/errors"
)

//go:embed snippets.json
var defaultSnippets []byte

// DefaultMaxSnippets 是单次检索返回的片段上限。
const DefaultMaxSnippets = 3

// Provider 按主题检索知识片段。
type Provider interface {
	Query(topic, text string) []Snippet
}

// Snippet 描述可供大模型引用的一段知识。
type Snippet struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
	Tags     []string `json:"tags"`
}

// StaticProvider 在内存中的片段列表上做关键词匹配。
type StaticProvider struct {
	items      []Snippet
	maxResults int
}

// NewStaticProvider 创建静态知识库实例。
func NewStaticProvider(items []Snippet, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = DefaultMaxSnippets
	}
	return &StaticProvider{items: items, maxResults: maxResults}
}

// DefaultProvider 返回内置的交易知识片段。
func DefaultProvider(maxResults int) *StaticProvider {
	var items []Snippet
	if err := json.Unmarshal(defaultSnippets, &items); err != nil {
		panic("knowledge: 内置知识片段无法解析: " + err.Error())
	}
	return NewStaticProvider(items, maxResults)
}

// LoadStaticProvider 从 JSON 文件加载知识条目。path 为空时返回内置片段。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultProvider(maxResults), nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析知识库路径失败")
	}
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取知识库文件失败")
	}
	var entries []Snippet
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析知识库文件失败")
	}
	return NewStaticProvider(entries, maxResults), nil
}

// Query 返回关键词或标签出现在 topic 或 text 中的片段，保持文件顺序。
func (p *StaticProvider) Query(topic, text string) []Snippet {
	if p == nil {
		return nil
	}
	topic = strings.ToLower(strings.TrimSpace(topic))
	text = strings.ToLower(strings.TrimSpace(text))
	if topic == "" && text == "" {
		return nil
	}

	results := make([]Snippet, 0, p.maxResults)
	for _, item := range p.items {
		if matchesAny(item.Keywords, topic, text) || matchesAny(item.Tags, topic, text) {
			results = append(results, item)
			if len(results) >= p.maxResults {
				break
			}
		}
	}
	return results
}

func matchesAny(words []string, haystacks ...string) bool {
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		for _, h := range haystacks {
			if strings.Contains(h, w) {
				return true
			}
		}
	}
	return false
}

// PromptBlock 把片段渲染为可直接拼进系统提示词的文本。
func PromptBlock(snippets []Snippet) string {
	if len(snippets) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nReference notes:")
	for _, s := range snippets {
		b.WriteString("\n- ")
		b.WriteString(s.Title)
		b.WriteString(": ")
		b.WriteString(s.Content)
	}
	return b.String()
}

var _ Provider = (*StaticProvider)(nil)
