package questionnaire

import "fmt"

// Field names rewritten by the convenience setters.
const (
	FieldAnswer     = "answer"
	FieldSubAnswers = "subAnswers"
	FieldDetails    = "details"
)

// SetField returns a copy of doc in which the first node with id itemID inside
// the addressed group has fieldName set to value. With merge, value must be an
// object and is shallow-merged into the object already stored at fieldName.
//
// Only the path from the group root to the matched node is copied; every other
// subtree is shared with doc. When nothing matches, doc is returned unchanged
// together with ErrNodeNotFound.
func SetField(doc Document, groupKey, itemID, fieldName string, value any, merge bool) (Document, error) {
	var patch map[string]any
	if merge {
		m, ok := value.(map[string]any)
		if !ok {
			return doc, fmt.Errorf("%w: merge into %q needs an object, got %T", ErrShapeMismatch, fieldName, value)
		}
		patch = m
	}
	items, ok := doc.Items(groupKey)
	if !ok {
		return doc, fmt.Errorf("%w: group %q", ErrNodeNotFound, groupKey)
	}
	next, found := updateItems(items, itemID, func(n Node) Node {
		cp := n.clone()
		if !merge {
			cp[fieldName] = value
			return cp
		}
		existing, _ := n[fieldName].(map[string]any)
		merged := make(map[string]any, len(existing)+len(patch))
		for k, v := range existing {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}
		cp[fieldName] = merged
		return cp
	})
	if !found {
		return doc, fmt.Errorf("%w: %q in group %q", ErrNodeNotFound, itemID, groupKey)
	}
	return doc.withItems(groupKey, next), nil
}

// SetAnswer replaces the answer of itemID.
func SetAnswer(doc Document, groupKey, itemID string, value any) (Document, error) {
	return SetField(doc, groupKey, itemID, FieldAnswer, value, false)
}

// MergeSubAnswers shallow-merges values into the subAnswers of itemID.
func MergeSubAnswers(doc Document, groupKey, itemID string, values map[string]any) (Document, error) {
	return SetField(doc, groupKey, itemID, FieldSubAnswers, values, true)
}

// SetDetails replaces the details rows of itemID.
func SetDetails(doc Document, groupKey, itemID string, rows any) (Document, error) {
	return SetField(doc, groupKey, itemID, FieldDetails, rows, false)
}

// FindNode returns the first node with the given id in pre-order.
func FindNode(items []any, id string) (Node, bool) {
	var found Node
	walkNodes(items, func(n Node) bool {
		if found != nil {
			return false
		}
		if n.ID() == id {
			found = n
			return false
		}
		return true
	})
	return found, found != nil
}

// updateItems rewrites the first node matching id. The returned slice is the
// input slice itself when nothing matched.
func updateItems(items []any, id string, mutate func(Node) Node) ([]any, bool) {
	for i, el := range items {
		n, ok := AsNode(el)
		if !ok {
			continue
		}
		if n.ID() == id {
			next := make([]any, len(items))
			copy(next, items)
			next[i] = map[string]any(mutate(n))
			return next, true
		}
		children, key, ok := n.Children()
		if !ok {
			continue
		}
		if updated, found := updateItems(children, id, mutate); found {
			cp := n.clone()
			cp[key] = updated
			next := make([]any, len(items))
			copy(next, items)
			next[i] = map[string]any(cp)
			return next, true
		}
	}
	return items, false
}
