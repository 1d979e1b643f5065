package questionnaire

import (
	"math"
	"reflect"
	"strings"
)

// Progress counts answerable questions and how many carry an answer.
type Progress struct {
	Total    int `json:"total"`
	Answered int `json:"answered"`
}

// Percent is the rounded completion percentage; 0 when there is nothing to answer.
func (p Progress) Percent() int {
	if p.Total == 0 {
		return 0
	}
	return int(math.Round(float64(p.Answered) / float64(p.Total) * 100))
}

func (p Progress) add(o Progress) Progress {
	return Progress{Total: p.Total + o.Total, Answered: p.Answered + o.Answered}
}

// IsAnswered is false for nil, blank strings, and empty lists or objects.
func IsAnswered(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// Flatten collects every question in pre-order, descending into groups.
// Conditions are ignored; malformed nodes and headers are skipped.
func Flatten(items []any) []Node {
	var out []Node
	walkNodes(items, func(n Node) bool {
		switch n.Shape() {
		case ShapeQuestion:
			out = append(out, n)
			return false
		case ShapeGroup:
			return true
		}
		return false
	})
	return out
}

// FlattenVisible is Flatten restricted to nodes whose conditions hold.
// A hidden group hides everything nested in it.
func FlattenVisible(items []any, answers AnswerMap) []Node {
	var out []Node
	walkNodes(items, func(n Node) bool {
		if !NodeVisible(n, answers) {
			return false
		}
		switch n.Shape() {
		case ShapeQuestion:
			out = append(out, n)
			return false
		case ShapeGroup:
			return true
		}
		return false
	})
	return out
}

func count(nodes []Node) Progress {
	p := Progress{Total: len(nodes)}
	for _, n := range nodes {
		if IsAnswered(n.Answer()) {
			p.Answered++
		}
	}
	return p
}

// ComputeProgress counts all questions regardless of visibility.
func ComputeProgress(items []any) Progress {
	return count(Flatten(items))
}

// ComputeVisibleProgress counts only the questions visible under answers.
func ComputeVisibleProgress(items []any, answers AnswerMap) Progress {
	return count(FlattenVisible(items, answers))
}

// GroupProgress is the completion of one top-level group.
type GroupProgress struct {
	Key     string   `json:"key"`
	Title   string   `json:"title"`
	All     Progress `json:"all"`
	Visible Progress `json:"visible"`
	Percent int      `json:"percent"`
}

// Report is the completion of a whole section.
type Report struct {
	Groups  []GroupProgress `json:"groups"`
	All     Progress        `json:"all"`
	Visible Progress        `json:"visible"`
	Percent int             `json:"percent"`
}

// SectionProgress reports per-group and summed progress for doc. Visibility
// is evaluated against each group's own answers overlaid on external ones.
func SectionProgress(doc Document, external AnswerMap) Report {
	var r Report
	for _, g := range doc.Groups() {
		answers := external.Merge(BuildAnswerMap(g.Items))
		gp := GroupProgress{
			Key:     g.Key,
			Title:   g.Title,
			All:     ComputeProgress(g.Items),
			Visible: ComputeVisibleProgress(g.Items, answers),
		}
		gp.Percent = gp.All.Percent()
		r.Groups = append(r.Groups, gp)
		r.All = r.All.add(gp.All)
		r.Visible = r.Visible.add(gp.Visible)
	}
	r.Percent = r.All.Percent()
	return r
}
