package questionnaire

import (
	"maps"
	"slices"
)

// AnswerMap is the flat id -> answer projection used as evaluation input.
// It is rebuilt on every pass and never written back to a document.
type AnswerMap map[string]any

// BuildAnswerMap walks items in pre-order. When an id appears more than once
// the first occurrence wins, matching the mutation engine.
func BuildAnswerMap(items []any) AnswerMap {
	m := AnswerMap{}
	walkNodes(items, func(n Node) bool {
		if id := n.ID(); id != "" {
			if _, seen := m[id]; !seen {
				m[id] = n.Answer()
			}
		}
		return true
	})
	return m
}

// AnswerMap builds the answer map of one group of d.
func (d Document) AnswerMap(groupKey string) AnswerMap {
	items, _ := d.Items(groupKey)
	return BuildAnswerMap(items)
}

// ExtractAnswers collects every id/answer pair found anywhere inside v,
// including pairs nested in attributes other than the item lists. It is used
// to import answers from other sections.
func ExtractAnswers(v any) AnswerMap {
	m := AnswerMap{}
	extractInto(v, m)
	return m
}

// ExtractDocumentAnswers is ExtractAnswers over every group of d.
func ExtractDocumentAnswers(d Document) AnswerMap {
	m := AnswerMap{}
	for _, g := range d.Groups() {
		extractInto(g.Items, m)
	}
	return m
}

func extractInto(v any, m AnswerMap) {
	switch t := v.(type) {
	case []any:
		for _, x := range t {
			extractInto(x, m)
		}
	case map[string]any:
		n := Node(t)
		if id := n.ID(); id != "" {
			if a, ok := t["answer"]; ok {
				if _, seen := m[id]; !seen {
					m[id] = a
				}
			}
		}
		for _, k := range slices.Sorted(maps.Keys(t)) {
			extractInto(t[k], m)
		}
	}
}

// Merge returns a new map holding m overlaid with over.
func (m AnswerMap) Merge(over AnswerMap) AnswerMap {
	out := make(AnswerMap, len(m)+len(over))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// walkNodes visits every object node in pre-order. Returning false from fn
// skips the node's children.
func walkNodes(items []any, fn func(Node) bool) {
	for _, el := range items {
		n, ok := AsNode(el)
		if !ok {
			continue
		}
		if !fn(n) {
			continue
		}
		if children, _, ok := n.Children(); ok {
			walkNodes(children, fn)
		}
	}
}
