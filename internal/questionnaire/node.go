package questionnaire

import (
	"fmt"
	"strconv"
)

// Kind is the closed set of field kinds a question can declare.
type Kind int

const (
	KindCustom Kind = iota
	KindRadio
	KindText
	KindPercent
	KindDate
	KindDropdown
	KindMultiSelect
	KindDocument
	KindTable
)

var kindNames = map[Kind]string{
	KindCustom:      "custom",
	KindRadio:       "radio",
	KindText:        "text",
	KindPercent:     "percent",
	KindDate:        "date",
	KindDropdown:    "dropdown",
	KindMultiSelect: "multi-select",
	KindDocument:    "document",
	KindTable:       "table",
}

// ParseKind maps a schema type string to a Kind. Unknown strings are custom.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if name == s && k != KindCustom {
			return k
		}
	}
	return KindCustom
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "custom"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Shape classifies a node of the tree.
type Shape int

const (
	ShapeMalformed Shape = iota
	ShapeQuestion
	ShapeGroup
	ShapeHeader
)

func (s Shape) String() string {
	switch s {
	case ShapeQuestion:
		return "question"
	case ShapeGroup:
		return "group"
	case ShapeHeader:
		return "header"
	}
	return "malformed"
}

// Node is one element of a question tree. Unknown attributes are kept as-is.
type Node map[string]any

// AsNode returns v as a Node when it is a JSON object.
func AsNode(v any) (Node, bool) {
	switch t := v.(type) {
	case map[string]any:
		return Node(t), true
	case Node:
		return t, true
	}
	return nil, false
}

// ID returns the node identifier; numeric ids are formatted as strings.
func (n Node) ID() string {
	return scalarString(n["id"])
}

// Question returns the display text.
func (n Node) Question() string {
	s, _ := n["question"].(string)
	return s
}

// Head returns the header text of a pure header node.
func (n Node) Head() string {
	s, _ := n["head"].(string)
	return s
}

// Type returns the raw schema type string.
func (n Node) Type() string {
	s, _ := n["type"].(string)
	return s
}

// Kind returns the field kind. A custom type carrying `table: true` is a table.
func (n Node) Kind() Kind {
	k := ParseKind(n.Type())
	if k == KindCustom {
		if b, _ := n["table"].(bool); b {
			return KindTable
		}
	}
	return k
}

// Answer returns the stored answer, or nil.
func (n Node) Answer() any { return n["answer"] }

// Options returns the ordered option list of a choice question.
func (n Node) Options() []string {
	return stringList(n["options"])
}

// Children returns the nested item list and the attribute holding it.
func (n Node) Children() ([]any, string, bool) {
	for _, key := range [...]string{"questions", "items"} {
		if arr, ok := n[key].([]any); ok {
			return arr, key, true
		}
	}
	return nil, "", false
}

// Shape classifies the node. A node that carries both an id+type pair and a
// nested item list is malformed. A head with an id but no question, type or
// answer is still a header.
func (n Node) Shape() Shape {
	_, _, hasChildren := n.Children()
	_, hasType := n["type"]
	id := n.ID()
	if hasChildren {
		if id != "" && hasType {
			return ShapeMalformed
		}
		return ShapeGroup
	}
	if id != "" {
		_, hasQuestion := n["question"]
		_, hasAnswer := n["answer"]
		if hasQuestion || hasType || hasAnswer {
			return ShapeQuestion
		}
		if n.Head() != "" {
			return ShapeHeader
		}
		return ShapeMalformed
	}
	if n.Head() != "" || n.Question() != "" {
		return ShapeHeader
	}
	return ShapeMalformed
}

// Condition returns the single `condition` attribute, if well formed.
func (n Node) Condition() (Condition, bool) {
	return parseCondition(n["condition"])
}

// Conditions returns the `conditions` list. Malformed entries are dropped.
func (n Node) Conditions() []Condition {
	arr, _ := n["conditions"].([]any)
	out := make([]Condition, 0, len(arr))
	for _, v := range arr {
		if c, ok := parseCondition(v); ok {
			out = append(out, c)
		}
	}
	return out
}

func (n Node) clone() Node {
	cp := make(Node, len(n)+1)
	for k, v := range n {
		cp[k] = v
	}
	return cp
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
