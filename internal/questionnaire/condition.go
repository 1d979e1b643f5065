package questionnaire

import "math"

// Condition is an equality predicate over the answer map.
type Condition struct {
	QuestionID string `json:"questionId"`
	Operator   string `json:"operator,omitempty"`
	Value      any    `json:"value"`
}

func parseCondition(v any) (Condition, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return Condition{}, false
	}
	qid := scalarString(m["questionId"])
	if qid == "" {
		return Condition{}, false
	}
	op, _ := m["operator"].(string)
	return Condition{QuestionID: qid, Operator: op, Value: m["value"]}, true
}

// Evaluate reports whether the condition holds. A question id that is absent
// from the map, or whose answer is unset, never satisfies a condition.
// Every operator, "==" or otherwise, compares for equality.
func Evaluate(c Condition, answers AnswerMap) bool {
	actual, ok := answers[c.QuestionID]
	if !ok || actual == nil {
		return false
	}
	return sameValue(actual, c.Value)
}

// EvaluateAll is the conjunction of conds; an empty list holds.
func EvaluateAll(conds []Condition, answers AnswerMap) bool {
	for _, c := range conds {
		if !Evaluate(c, answers) {
			return false
		}
	}
	return true
}

// GroupIncluded reports whether a group wrapped with a `condition` renders.
func GroupIncluded(n Node, answers AnswerMap) bool {
	c, ok := n.Condition()
	if !ok {
		return true
	}
	return Evaluate(c, answers)
}

// NodeVisible applies both the `condition` and the `conditions` attributes.
func NodeVisible(n Node, answers AnswerMap) bool {
	return GroupIncluded(n, answers) && EvaluateAll(n.Conditions(), answers)
}

// DocumentRequired reports whether the question asks for supporting documents
// given its current answer.
func DocumentRequired(n Node) bool {
	if truthy(n["documentRequired"]) {
		return true
	}
	rule, ok := n["documentRequiredIf"]
	if !ok || rule == nil {
		return false
	}
	answer := n.Answer()
	if answer == nil {
		return false
	}
	if list, ok := rule.([]any); ok {
		return containsValue(list, answer)
	}
	return sameValue(answer, rule)
}

// Reveal evaluates a reveal rule against an answer. The rule is either a
// single value compared to the answer, or a mapping looked up by the answer.
func Reveal(rule, answer any) bool {
	if !truthy(rule) {
		return false
	}
	switch r := rule.(type) {
	case map[string]any:
		if answer == nil {
			return false
		}
		key, ok := answerKey(answer)
		return ok && truthy(r[key])
	case []any:
		return false
	default:
		return answer != nil && sameValue(answer, rule)
	}
}

// TableRevealed reports whether `dynamicTableIf` or `tableif` exposes the
// inline details table for the current answer.
func TableRevealed(n Node) bool {
	return Reveal(n["dynamicTableIf"], n.Answer()) || Reveal(n["tableif"], n.Answer())
}

// SubQuestion returns the embedded question revealed by `subQuestionIf` for
// the current answer, tagged with its parent id.
func SubQuestion(n Node) (Node, bool) {
	rule, ok := n["subQuestionIf"].(map[string]any)
	if !ok || !truthy(n.Answer()) {
		return nil, false
	}
	key, ok := answerKey(n.Answer())
	if !ok {
		return nil, false
	}
	def, ok := AsNode(rule[key])
	if !ok {
		return nil, false
	}
	sub := def.clone()
	sub["parentId"] = n.ID()
	return sub, true
}

// RevealsSubQuestion reports whether the sub-question subID is currently shown.
func RevealsSubQuestion(n Node, subID string) bool {
	sub, ok := SubQuestion(n)
	return ok && sub.ID() == subID
}

// SubTableRevealed applies the sub-question's own `tableif` to its sub-answer.
func SubTableRevealed(parent, sub Node) bool {
	answers, _ := parent["subAnswers"].(map[string]any)
	return Reveal(sub["tableif"], answers[sub.ID()])
}

// SubTableKey is the subAnswers key holding a sub-question's details table.
func SubTableKey(subID string) string { return subID + "__table" }

// Note returns the `noteIf` text for the current answer.
func Note(n Node) (string, bool) {
	rule, ok := n["noteIf"].(map[string]any)
	if !ok || !truthy(n.Answer()) {
		return "", false
	}
	key, ok := answerKey(n.Answer())
	if !ok {
		return "", false
	}
	s, ok := rule[key].(string)
	return s, ok && s != ""
}

// sameValue is strict equality: scalars of the same kind compare by value,
// numbers across integer and float types, containers never match.
func sameValue(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}

func containsValue(list, v any) bool {
	switch l := list.(type) {
	case []any:
		for _, x := range l {
			if sameValue(v, x) {
				return true
			}
		}
	case []string:
		for _, x := range l {
			if sameValue(v, x) {
				return true
			}
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// answerKey is the property name a scalar answer selects in a value-keyed rule.
func answerKey(v any) (string, bool) {
	switch v.(type) {
	case string, float64, int, int64, bool:
		return scalarString(v), true
	}
	return "", false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0 && !math.IsNaN(t)
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}
