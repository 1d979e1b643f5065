package questionnaire

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument(t *testing.T) Document {
	t.Helper()
	doc, err := DecodeDocument([]byte(`{
		"general": {
			"Entity": [
				{"id": "e1", "question": "Name?", "type": "text"},
				{"head": "Ownership"},
				{"questions": [
					{"id": "e2", "question": "Owner?", "type": "radio", "options": ["A", "B"]},
					{"id": "e3", "question": "Share?", "type": "percent", "subAnswers": {"x": 1}}
				]}
			],
			"Finance": [
				{"id": "f1", "question": "Revenue?", "type": "text"}
			]
		}
	}`))
	require.NoError(t, err)
	return doc
}

func sameSlice(a, b []any) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer() && len(a) == len(b)
}

func TestSetFieldLocality(t *testing.T) {
	doc := sampleDocument(t)
	before, _ := doc.Items("Entity")
	finance, _ := doc.Items("Finance")

	next, err := SetAnswer(doc, "Entity", "e2", "B")
	require.NoError(t, err)

	after, _ := next.Items("Entity")
	n, ok := FindNode(after, "e2")
	require.True(t, ok)
	assert.Equal(t, "B", n.Answer())

	// original untouched
	old, _ := FindNode(before, "e2")
	assert.Nil(t, old.Answer())

	// untouched group shares storage
	nextFinance, _ := next.Items("Finance")
	assert.True(t, sameSlice(finance, nextFinance))

	// siblings off the path are shared
	assert.Equal(t,
		reflect.ValueOf(before[0]).Pointer(),
		reflect.ValueOf(after[0]).Pointer())
	oldGroup, _, _ := Node(before[2].(map[string]any)).Children()
	newGroup, _, _ := Node(after[2].(map[string]any)).Children()
	assert.Equal(t,
		reflect.ValueOf(oldGroup[1]).Pointer(),
		reflect.ValueOf(newGroup[1]).Pointer())
}

func TestSetFieldIdempotent(t *testing.T) {
	doc := sampleDocument(t)
	once, err := SetAnswer(doc, "Entity", "e1", "Acme")
	require.NoError(t, err)
	twice, err := SetAnswer(once, "Entity", "e1", "Acme")
	require.NoError(t, err)

	a, _ := once.Items("Entity")
	b, _ := twice.Items("Entity")
	assert.Equal(t, a, b)
}

func TestSetFieldMerge(t *testing.T) {
	doc := sampleDocument(t)
	next, err := MergeSubAnswers(doc, "Entity", "e3", map[string]any{"y": 2})
	require.NoError(t, err)

	items, _ := next.Items("Entity")
	n, _ := FindNode(items, "e3")
	assert.Equal(t, map[string]any{"x": float64(1), "y": 2}, n["subAnswers"])

	orig, _ := doc.Items("Entity")
	o, _ := FindNode(orig, "e3")
	assert.Equal(t, map[string]any{"x": float64(1)}, o["subAnswers"])
}

func TestSetFieldMergeIntoMissingField(t *testing.T) {
	doc := sampleDocument(t)
	next, err := SetField(doc, "Entity", "e1", FieldSubAnswers, map[string]any{"k": "v"}, true)
	require.NoError(t, err)
	items, _ := next.Items("Entity")
	n, _ := FindNode(items, "e1")
	assert.Equal(t, map[string]any{"k": "v"}, n["subAnswers"])
}

func TestSetFieldMergeRejectsNonObject(t *testing.T) {
	doc := sampleDocument(t)
	next, err := SetField(doc, "Entity", "e3", FieldSubAnswers, "oops", true)
	require.ErrorIs(t, err, ErrShapeMismatch)
	assert.Equal(t, doc, next)
}

func TestSetFieldMissing(t *testing.T) {
	doc := sampleDocument(t)

	next, err := SetAnswer(doc, "Entity", "nope", "x")
	require.ErrorIs(t, err, ErrNodeNotFound)
	assert.Equal(t, doc, next)

	_, err = SetAnswer(doc, "Missing", "e1", "x")
	require.ErrorIs(t, err, ErrNodeNotFound)

	_, err = SetAnswer(Document{}, "Entity", "e1", "x")
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestSetFieldSingleArrayIgnoresGroupKey(t *testing.T) {
	doc := NewDocument("access", []any{map[string]any{"id": "a1", "type": "text"}})
	next, err := SetAnswer(doc, "whatever", "a1", "ok")
	require.NoError(t, err)
	items, _ := next.Items("")
	n, _ := FindNode(items, "a1")
	assert.Equal(t, "ok", n.Answer())
}

func TestSetFieldFirstMatchWins(t *testing.T) {
	doc := NewDocument("s", []any{
		map[string]any{"id": "dup", "type": "text"},
		map[string]any{"questions": []any{map[string]any{"id": "dup", "type": "text"}}},
	})
	next, err := SetAnswer(doc, "s", "dup", "first")
	require.NoError(t, err)

	items, _ := next.Items("s")
	assert.Equal(t, "first", Node(items[0].(map[string]any)).Answer())
	nested, _, _ := Node(items[1].(map[string]any)).Children()
	assert.Nil(t, Node(nested[0].(map[string]any)).Answer())
	assert.Equal(t, "first", next.AnswerMap("s")["dup"])
}

func TestSetDetails(t *testing.T) {
	doc := sampleDocument(t)
	rows := []any{map[string]any{"name": "A"}}
	next, err := SetDetails(doc, "Finance", "f1", rows)
	require.NoError(t, err)
	items, _ := next.Items("Finance")
	n, _ := FindNode(items, "f1")
	assert.Equal(t, rows, n["details"])
}
