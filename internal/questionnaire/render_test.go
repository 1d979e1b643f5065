package questionnaire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderItems() []any {
	return []any{
		map[string]any{"head": "Governance"},
		map[string]any{
			"id": "g1", "question": "Is there a board?", "type": "radio",
			"options": []any{"Yes", "No"}, "answer": "Yes",
			"documentRequiredIf": "Yes",
			"subQuestionIf": map[string]any{
				"Yes": map[string]any{"id": "g1a", "question": "How many members?", "type": "text"},
			},
			"subAnswers": map[string]any{"g1a": "5"},
		},
		map[string]any{
			"id": "g2", "question": "List committees", "type": "radio", "answer": "Yes",
			"tableif": map[string]any{"Yes": true},
			"details": []any{map[string]any{"name": "Audit"}},
			"noteIf":  map[string]any{"Yes": "Include charters."},
		},
		map[string]any{
			"condition": map[string]any{"questionId": "g1", "value": "No"},
			"questions": []any{map[string]any{"id": "g3", "question": "Why not?", "type": "text"}},
		},
		map[string]any{"id": "g4", "question": "Auditor name", "type": "text"},
	}
}

func TestRenderAll(t *testing.T) {
	items := renderItems()
	views := Render(items, BuildAnswerMap(items), Filter{})
	require.Len(t, views, 4)

	assert.Equal(t, "Governance", views[0].Head)

	g1 := views[1]
	assert.Equal(t, "g1", g1.ID)
	assert.Equal(t, KindRadio, g1.Kind)
	assert.Equal(t, []string{"Yes", "No"}, g1.Options)
	assert.True(t, g1.Answered)
	assert.True(t, g1.DocumentRequired)
	require.NotNil(t, g1.SubQuestion)
	assert.Equal(t, "g1a", g1.SubQuestion.ID)
	assert.Equal(t, "g1", g1.SubQuestion.ParentID)
	assert.Equal(t, "5", g1.SubQuestion.Answer)

	g2 := views[2]
	assert.True(t, g2.ShowTable)
	assert.Equal(t, []any{map[string]any{"name": "Audit"}}, g2.Details)
	assert.Equal(t, "Include charters.", g2.Note)

	assert.Equal(t, "g4", views[3].ID)
	assert.False(t, views[3].Answered)
}

func TestRenderSearch(t *testing.T) {
	items := renderItems()
	views := Render(items, BuildAnswerMap(items), Filter{Query: "  AUDITOR "})
	require.Len(t, views, 1)
	assert.Equal(t, "g4", views[0].ID)

	views = Render(items, BuildAnswerMap(items), Filter{Query: "why"})
	assert.Empty(t, views)
}

func TestRenderOnlyUnanswered(t *testing.T) {
	items := renderItems()
	views := Render(items, BuildAnswerMap(items), Filter{OnlyUnanswered: true})
	require.Len(t, views, 1)
	assert.Equal(t, "g4", views[0].ID)
}

func TestRenderHiddenGroupAppears(t *testing.T) {
	items := renderItems()
	views := Render(items, AnswerMap{"g1": "No"}, Filter{Query: "why"})
	require.Len(t, views, 1)
	assert.Equal(t, "g3", views[0].ID)
}

func TestRenderHeaderWithID(t *testing.T) {
	items := []any{
		map[string]any{"id": "H1", "head": "General"},
		map[string]any{"id": "Q1", "question": "Q?", "type": "text"},
	}
	assert.Equal(t, ShapeHeader, Node(items[0].(map[string]any)).Shape())

	views := Render(items, BuildAnswerMap(items), Filter{})
	require.Len(t, views, 2)
	assert.Equal(t, "H1", views[0].ID)
	assert.Equal(t, "General", views[0].Head)
	assert.Equal(t, "Q1", views[1].ID)
	assert.Equal(t, Progress{Total: 1}, ComputeProgress(items))
}
