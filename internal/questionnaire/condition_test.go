package questionnaire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	answers := AnswerMap{"q1": "Yes", "q2": nil, "n": float64(3), "flag": true}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equal", Condition{QuestionID: "q1", Value: "Yes"}, true},
		{"not equal", Condition{QuestionID: "q1", Value: "No"}, false},
		{"case sensitive", Condition{QuestionID: "q1", Value: "yes"}, false},
		{"unset answer", Condition{QuestionID: "q2", Value: "Yes"}, false},
		{"unknown id", Condition{QuestionID: "zz", Value: "Yes"}, false},
		{"number across int", Condition{QuestionID: "n", Value: 3}, true},
		{"number vs string", Condition{QuestionID: "n", Value: "3"}, false},
		{"bool", Condition{QuestionID: "flag", Value: true}, true},
		{"unknown operator is equality", Condition{QuestionID: "q1", Operator: "eq", Value: "Yes"}, true},
		{"bang-equals is still equality", Condition{QuestionID: "q1", Operator: "!=", Value: "Yes"}, true},
		{"bang-equals mismatch", Condition{QuestionID: "q1", Operator: "!=", Value: "No"}, false},
		{"ne on unset", Condition{QuestionID: "q2", Operator: "!=", Value: "No"}, false},
		{"in is equality, not membership", Condition{QuestionID: "q1", Operator: "in", Value: []any{"No", "Yes"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.cond, answers))
		})
	}
}

func TestEvaluateAllIsConjunction(t *testing.T) {
	conds := []Condition{
		{QuestionID: "a", Value: "Yes"},
		{QuestionID: "b", Value: "No"},
	}
	assert.True(t, EvaluateAll(nil, AnswerMap{}))
	assert.True(t, EvaluateAll(conds, AnswerMap{"a": "Yes", "b": "No"}))
	assert.False(t, EvaluateAll(conds, AnswerMap{"a": "Yes", "b": "Yes"}))
	assert.False(t, EvaluateAll(conds, AnswerMap{"a": "Yes"}))
}

func TestGroupVisibilityFollowsAnswer(t *testing.T) {
	items := []any{
		map[string]any{"id": "q1", "question": "Any?", "type": "radio", "options": []any{"Yes", "No"}},
		map[string]any{
			"condition": map[string]any{"questionId": "q1", "value": "Yes"},
			"questions": []any{
				map[string]any{"id": "q2", "question": "Which?", "type": "text"},
			},
		},
	}

	visible := func(items []any) []string {
		var ids []string
		for _, n := range FlattenVisible(items, BuildAnswerMap(items)) {
			ids = append(ids, n.ID())
		}
		return ids
	}
	assert.Equal(t, []string{"q1"}, visible(items))

	doc := NewDocument("s", items)
	doc, err := SetAnswer(doc, "s", "q1", "Yes")
	require.NoError(t, err)
	next, _ := doc.Items("s")
	assert.Equal(t, []string{"q1", "q2"}, visible(next))

	doc, err = SetAnswer(doc, "s", "q1", "No")
	require.NoError(t, err)
	next, _ = doc.Items("s")
	assert.Equal(t, []string{"q1"}, visible(next))
}

func TestNodeVisibleCombinesConditionAndConditions(t *testing.T) {
	n := Node{
		"id":        "x",
		"type":      "text",
		"condition": map[string]any{"questionId": "a", "value": "Yes"},
		"conditions": []any{
			map[string]any{"questionId": "b", "value": "Yes"},
			"garbage",
		},
	}
	assert.True(t, NodeVisible(n, AnswerMap{"a": "Yes", "b": "Yes"}))
	assert.False(t, NodeVisible(n, AnswerMap{"a": "Yes", "b": "No"}))
	assert.False(t, NodeVisible(n, AnswerMap{"a": "No", "b": "Yes"}))
}

func TestDocumentRequired(t *testing.T) {
	assert.True(t, DocumentRequired(Node{"documentRequired": true}))
	assert.False(t, DocumentRequired(Node{"documentRequired": false}))

	n := Node{"documentRequiredIf": "Yes", "answer": "Yes"}
	assert.True(t, DocumentRequired(n))
	n["answer"] = "No"
	assert.False(t, DocumentRequired(n))

	list := Node{"documentRequiredIf": []any{"Yes", "Partially"}, "answer": "Partially"}
	assert.True(t, DocumentRequired(list))
	delete(list, "answer")
	assert.False(t, DocumentRequired(list))
}

func TestReveal(t *testing.T) {
	assert.False(t, Reveal(nil, "Yes"))
	assert.False(t, Reveal(false, "Yes"))
	assert.True(t, Reveal("Yes", "Yes"))
	assert.False(t, Reveal("Yes", "No"))
	assert.False(t, Reveal("Yes", nil))

	rule := map[string]any{"Yes": true, "No": false}
	assert.True(t, Reveal(rule, "Yes"))
	assert.False(t, Reveal(rule, "No"))
	assert.False(t, Reveal(rule, "Other"))
	assert.False(t, Reveal(rule, nil))
	assert.False(t, Reveal(rule, []any{"Yes"}))

	assert.False(t, Reveal([]any{"Yes"}, "Yes"))
}

func TestTableRevealed(t *testing.T) {
	assert.True(t, TableRevealed(Node{"dynamicTableIf": "Yes", "answer": "Yes"}))
	assert.True(t, TableRevealed(Node{"tableif": map[string]any{"Yes": true}, "answer": "Yes"}))
	assert.False(t, TableRevealed(Node{"tableif": map[string]any{"Yes": true}, "answer": "No"}))
	assert.False(t, TableRevealed(Node{"answer": "Yes"}))
}

func TestSubQuestionReveal(t *testing.T) {
	n := Node{
		"id":     "q1",
		"type":   "radio",
		"answer": "Yes",
		"subQuestionIf": map[string]any{
			"Yes": map[string]any{"id": "q1a", "question": "Explain", "type": "text", "tableif": "Other"},
		},
	}

	sub, ok := SubQuestion(n)
	require.True(t, ok)
	assert.Equal(t, "q1a", sub.ID())
	assert.Equal(t, "q1", sub["parentId"])
	assert.True(t, RevealsSubQuestion(n, "q1a"))
	assert.False(t, SubTableRevealed(n, sub))

	n["subAnswers"] = map[string]any{"q1a": "Other"}
	assert.True(t, SubTableRevealed(n, sub))
	assert.Equal(t, "q1a__table", SubTableKey("q1a"))

	n["answer"] = "No"
	_, ok = SubQuestion(n)
	assert.False(t, ok)
	assert.False(t, RevealsSubQuestion(n, "q1a"))

	n["answer"] = nil
	_, ok = SubQuestion(n)
	assert.False(t, ok)
}

func TestSubQuestionRuleNotMutated(t *testing.T) {
	def := map[string]any{"id": "s", "type": "text"}
	n := Node{"id": "p", "answer": "Yes", "subQuestionIf": map[string]any{"Yes": def}}
	_, ok := SubQuestion(n)
	require.True(t, ok)
	_, tagged := def["parentId"]
	assert.False(t, tagged)
}

func TestNote(t *testing.T) {
	n := Node{"id": "q", "answer": "No", "noteIf": map[string]any{"No": "Attach the waiver."}}
	note, ok := Note(n)
	require.True(t, ok)
	assert.Equal(t, "Attach the waiver.", note)

	n["answer"] = "Yes"
	_, ok = Note(n)
	assert.False(t, ok)
}
