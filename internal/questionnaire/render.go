package questionnaire

import "strings"

// Filter narrows a render pass the way the section view's search box and
// "only unanswered" toggle do.
type Filter struct {
	Query          string `json:"query,omitempty"`
	OnlyUnanswered bool   `json:"onlyUnanswered,omitempty"`
}

// ItemView is one rendered question or header.
type ItemView struct {
	ID               string           `json:"id,omitempty"`
	Head             string           `json:"head,omitempty"`
	Question         string           `json:"question,omitempty"`
	Kind             Kind             `json:"kind"`
	Type             string           `json:"type,omitempty"`
	Options          []string         `json:"options,omitempty"`
	Answer           any              `json:"answer,omitempty"`
	Answered         bool             `json:"answered"`
	DocumentRequired bool             `json:"documentRequired,omitempty"`
	Note             string           `json:"note,omitempty"`
	SubQuestion      *SubQuestionView `json:"subQuestion,omitempty"`
	ShowTable        bool             `json:"showTable,omitempty"`
	Details          any              `json:"details,omitempty"`
}

// SubQuestionView is the revealed sub-question of an item.
type SubQuestionView struct {
	ID        string   `json:"id"`
	ParentID  string   `json:"parentId"`
	Question  string   `json:"question,omitempty"`
	Kind      Kind     `json:"kind"`
	Options   []string `json:"options,omitempty"`
	Answer    any      `json:"answer,omitempty"`
	ShowTable bool     `json:"showTable,omitempty"`
	Table     any      `json:"table,omitempty"`
}

// Render walks items in order and returns the visible questions and headers.
// Hidden groups contribute nothing; malformed nodes are skipped.
func Render(items []any, answers AnswerMap, f Filter) []ItemView {
	var out []ItemView
	query := strings.ToLower(strings.TrimSpace(f.Query))
	walkNodes(items, func(n Node) bool {
		if !NodeVisible(n, answers) {
			return false
		}
		switch n.Shape() {
		case ShapeGroup:
			return true
		case ShapeHeader:
			if query == "" && !f.OnlyUnanswered {
				out = append(out, ItemView{ID: n.ID(), Head: n.Head(), Question: n.Question()})
			}
			return false
		case ShapeQuestion:
			v := viewOf(n)
			if query != "" && !strings.Contains(strings.ToLower(labelOf(n)), query) {
				return false
			}
			if f.OnlyUnanswered && v.Answered {
				return false
			}
			out = append(out, v)
		}
		return false
	})
	return out
}

func labelOf(n Node) string {
	if q := n.Question(); q != "" {
		return q
	}
	return n.ID()
}

func viewOf(n Node) ItemView {
	v := ItemView{
		ID:               n.ID(),
		Question:         n.Question(),
		Kind:             n.Kind(),
		Type:             n.Type(),
		Options:          n.Options(),
		Answer:           n.Answer(),
		Answered:         IsAnswered(n.Answer()),
		DocumentRequired: DocumentRequired(n),
		ShowTable:        TableRevealed(n),
	}
	if note, ok := Note(n); ok {
		v.Note = note
	}
	if v.ShowTable {
		v.Details = n["details"]
	}
	if sub, ok := SubQuestion(n); ok {
		subAnswers, _ := n["subAnswers"].(map[string]any)
		sv := &SubQuestionView{
			ID:        sub.ID(),
			ParentID:  n.ID(),
			Question:  sub.Question(),
			Kind:      sub.Kind(),
			Options:   sub.Options(),
			Answer:    subAnswers[sub.ID()],
			ShowTable: SubTableRevealed(n, sub),
		}
		if sv.ShowTable {
			sv.Table = subAnswers[SubTableKey(sub.ID())]
		}
		v.SubQuestion = sv
	}
	return v
}
