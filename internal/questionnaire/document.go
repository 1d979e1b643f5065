// Package questionnaire interprets JSON-described question trees: it exposes a
// section's groups, evaluates visibility and reveal rules over a flat answer
// map, rewrites answers copy-on-write and reports completion progress.
package questionnaire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is one section: a single root key holding either an item list
// (one implicit group) or an ordered mapping of group keys to item lists.
//
// A Document is immutable once built. Mutations return a new Document that
// shares every untouched subtree with the original.
type Document struct {
	root   string
	single bool
	items  []any
	order  []string
	groups map[string]any
	scalar any
	extra  []entry
}

type entry struct {
	key   string
	value any
}

// Group is one top-level tab of a section.
type Group struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Items []any  `json:"items"`
}

// NewDocument builds a single-array section document.
func NewDocument(root string, items []any) Document {
	return Document{root: root, single: true, items: items}
}

// NewGroupedDocument builds a multi-group section document. Group order is kept.
func NewGroupedDocument(root string, groups ...Group) Document {
	d := Document{root: root, groups: make(map[string]any, len(groups))}
	for _, g := range groups {
		if _, dup := d.groups[g.Key]; !dup {
			d.order = append(d.order, g.Key)
		}
		d.groups[g.Key] = g.Items
	}
	return d
}

// RootKey returns the section's root key, or "" for an empty document.
func (d Document) RootKey() string { return d.root }

// IsZero reports whether the document has no root key.
func (d Document) IsZero() bool { return d.root == "" }

// Grouped reports whether the document uses the multi-group form.
func (d Document) Grouped() bool { return d.root != "" && !d.single }

// TopLevelGroups returns the ordered groups of a section document. The
// single-array form yields one group named after the root key. An empty
// document yields no groups.
func TopLevelGroups(d Document) []Group {
	if d.root == "" {
		return nil
	}
	if d.single {
		return []Group{{Key: d.root, Title: d.root, Items: d.items}}
	}
	out := make([]Group, 0, len(d.order))
	for _, k := range d.order {
		items, _ := d.groups[k].([]any)
		out = append(out, Group{Key: k, Title: k, Items: items})
	}
	return out
}

// Groups is shorthand for TopLevelGroups(d).
func (d Document) Groups() []Group { return TopLevelGroups(d) }

// Items returns the item list addressed by groupKey. In the single-array form
// the group key is ignored.
func (d Document) Items(groupKey string) ([]any, bool) {
	if d.root == "" {
		return nil, false
	}
	if d.single {
		return d.items, true
	}
	v, ok := d.groups[groupKey]
	if !ok {
		return nil, false
	}
	items, ok := v.([]any)
	return items, ok
}

func (d Document) withItems(groupKey string, items []any) Document {
	next := d
	if d.single {
		next.items = items
		return next
	}
	next.groups = make(map[string]any, len(d.groups))
	for k, v := range d.groups {
		next.groups[k] = v
	}
	next.groups[groupKey] = items
	return next
}

// ------------------------------------------------------------------
// Encoding
// ------------------------------------------------------------------

var errNotObject = errors.New("section document must be an object")

// DecodeDocument parses a JSON section document, keeping group order.
func DecodeDocument(data []byte) (Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Document{}, nil
	}
	var doc Document
	err := decodeObject(trimmed, func(i int, key string, raw json.RawMessage) error {
		if i > 0 {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			doc.extra = append(doc.extra, entry{key: key, value: v})
			return nil
		}
		doc.root = key
		return doc.decodeRoot(raw)
	})
	if err != nil {
		return Document{}, fmt.Errorf("decode section: %w", err)
	}
	return doc, nil
}

func (d *Document) decodeRoot(raw json.RawMessage) error {
	switch firstByte(raw) {
	case '[':
		d.single = true
		return json.Unmarshal(raw, &d.items)
	case '{':
		d.groups = map[string]any{}
		return decodeObject(raw, func(_ int, key string, v json.RawMessage) error {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return err
			}
			if _, dup := d.groups[key]; !dup {
				d.order = append(d.order, key)
			}
			d.groups[key] = val
			return nil
		})
	default:
		d.single = true
		return json.Unmarshal(raw, &d.scalar)
	}
}

// decodeObject walks the members of a JSON object in document order.
func decodeObject(data []byte, fn func(i int, key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errNotObject
	}
	for i := 0; dec.More(); i++ {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(i, key, raw); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

func firstByte(b []byte) byte {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

// MarshalJSON writes the document with its original group order.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if d.root != "" {
		if err := writeMember(&buf, d.root, d.rootValue()); err != nil {
			return nil, err
		}
		for _, e := range d.extra {
			buf.WriteByte(',')
			if err := writeMember(&buf, e.key, e.value); err != nil {
				return nil, err
			}
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d Document) rootValue() any {
	if !d.single {
		return orderedGroups{order: d.order, groups: d.groups}
	}
	if d.items == nil && d.scalar != nil {
		return d.scalar
	}
	if d.items == nil {
		return []any{}
	}
	return d.items
}

type orderedGroups struct {
	order  []string
	groups map[string]any
}

func (o orderedGroups) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeMember(&buf, k, o.groups[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeMember(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Document) UnmarshalJSON(data []byte) error {
	doc, err := DecodeDocument(data)
	if err != nil {
		return err
	}
	*d = doc
	return nil
}

// DecodeYAMLDocument parses a YAML section document. Numbers are normalized
// to float64 so answers compare the same way as JSON-loaded ones.
func DecodeYAMLDocument(data []byte) (Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return Document{}, fmt.Errorf("decode section: %w", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return Document{}, nil
	}
	top := root.Content[0]
	if top.Kind == yaml.ScalarNode && top.Tag == "!!null" {
		return Document{}, nil
	}
	if top.Kind != yaml.MappingNode {
		return Document{}, fmt.Errorf("decode section: %w", errNotObject)
	}
	var doc Document
	for i := 0; i+1 < len(top.Content); i += 2 {
		key, val := top.Content[i].Value, top.Content[i+1]
		if i > 0 {
			v, err := decodeYAMLValue(val)
			if err != nil {
				return Document{}, fmt.Errorf("decode section: %w", err)
			}
			doc.extra = append(doc.extra, entry{key: key, value: v})
			continue
		}
		doc.root = key
		switch val.Kind {
		case yaml.MappingNode:
			doc.groups = map[string]any{}
			for j := 0; j+1 < len(val.Content); j += 2 {
				gk := val.Content[j].Value
				gv, err := decodeYAMLValue(val.Content[j+1])
				if err != nil {
					return Document{}, fmt.Errorf("decode section: group %q: %w", gk, err)
				}
				if _, dup := doc.groups[gk]; !dup {
					doc.order = append(doc.order, gk)
				}
				doc.groups[gk] = gv
			}
		case yaml.SequenceNode:
			doc.single = true
			v, err := decodeYAMLValue(val)
			if err != nil {
				return Document{}, fmt.Errorf("decode section: %w", err)
			}
			doc.items, _ = v.([]any)
		default:
			doc.single = true
			v, err := decodeYAMLValue(val)
			if err != nil {
				return Document{}, fmt.Errorf("decode section: %w", err)
			}
			doc.scalar = v
		}
	}
	return doc, nil
}

func decodeYAMLValue(n *yaml.Node) (any, error) {
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

// normalize converts YAML-decoded values to the shapes encoding/json produces.
func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case map[string]any:
		for k, x := range t {
			t[k] = normalize(x)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, x := range t {
			m[fmt.Sprint(k)] = normalize(x)
		}
		return m
	case []any:
		for i, x := range t {
			t[i] = normalize(x)
		}
		return t
	}
	return v
}
