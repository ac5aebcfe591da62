package knowledge

import "strings"

// Node 是图谱中的实体节点。
type Node struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Label      string            `json:"label"`
	Properties map[string]string `json:"properties"`
}

// Edge 是实体之间的关系。
type Edge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Relation string `json:"relation"`
}

// GraphData 是用于可视化的节点与边。
type GraphData struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Export 是完整导出。
type Export struct {
	GraphData GraphData `json:"graph_data"`
	SafePools []string  `json:"safe_pools"`
	Facts     []string  `json:"metta_facts"`
	Rules     []string  `json:"metta_rules"`
	MeTTa     string    `json:"metta"`
}

// Summary 是随聊天回复返回的精简导出。
type Summary struct {
	GraphData  GraphData `json:"graph_data"`
	SafePools  []string  `json:"safe_pools"`
	FactsCount int       `json:"facts_count"`
	RulesCount int       `json:"rules_count"`
}

// EmptySummary 是图谱无法构建时返回的占位结构。
func EmptySummary() Summary {
	return Summary{GraphData: GraphData{Nodes: []Node{}, Edges: []Edge{}}, SafePools: []string{}}
}

type term struct {
	text   string
	quoted bool
}

// parseFact 把形如 (name a "b") 的事实拆成项，引号内容作为一个项。
func parseFact(fact string) []term {
	s := strings.TrimSpace(fact)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	var (
		out []term
		cur strings.Builder
		inQ bool
		was bool
	)
	flush := func() {
		if cur.Len() > 0 || was {
			out = append(out, term{text: cur.String(), quoted: was})
		}
		cur.Reset()
		was = false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case inQ && ch == '\\' && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
		case ch == '"':
			inQ = !inQ
			was = true
		case ch == ' ' && !inQ:
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	flush()
	return out
}

func entityType(id string) (string, bool) {
	switch {
	case strings.HasPrefix(id, "pool_"):
		return "pool", true
	case strings.HasPrefix(id, "token_"):
		return "token", true
	case strings.HasPrefix(id, "chain_"):
		return "chain", true
	}
	return "", false
}

// Data 扫描事实重新计算节点与边。节点按首次出现顺序排列；
// 形如 (属性 实体 值) 的事实成为节点属性，isInPool 与 onChain 成为边。
func (g *Graph) Data() GraphData {
	data := GraphData{Nodes: []Node{}, Edges: []Edge{}}
	index := map[string]int{}
	for _, fact := range g.facts {
		terms := parseFact(fact)
		for _, t := range terms {
			if t.quoted {
				continue
			}
			kind, ok := entityType(t.text)
			if !ok {
				continue
			}
			if _, seen := index[t.text]; !seen {
				index[t.text] = len(data.Nodes)
				data.Nodes = append(data.Nodes, Node{
					ID:         t.text,
					Type:       kind,
					Label:      title(strings.ReplaceAll(t.text, "_", " ")),
					Properties: map[string]string{},
				})
			}
		}
		if len(terms) != 3 || terms[0].text == ":" || terms[0].quoted {
			continue
		}
		if i, ok := index[terms[1].text]; ok && !terms[1].quoted {
			data.Nodes[i].Properties[terms[0].text] = terms[2].text
		}
		switch terms[0].text {
		case "isInPool", "onChain":
			data.Edges = append(data.Edges, Edge{From: terms[1].text, To: terms[2].text, Relation: terms[0].text})
		}
	}
	return data
}

// Export 返回完整导出，safe 使用 DefaultSafeCriteria。
func (g *Graph) Export() Export {
	return Export{
		GraphData: g.Data(),
		SafePools: nonNil(g.QuerySafe(DefaultSafeCriteria)),
		Facts:     g.Facts(),
		Rules:     g.Rules(),
		MeTTa:     g.MeTTa(),
	}
}

// Summarize 返回精简导出。
func (g *Graph) Summarize() Summary {
	return Summary{
		GraphData:  g.Data(),
		SafePools:  nonNil(g.QuerySafe(DefaultSafeCriteria)),
		FactsCount: len(g.facts),
		RulesCount: len(g.rules),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
