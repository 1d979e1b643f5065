package questionnaire

import "fmt"

// Answer is the typed payload of a question. The set of implementations is
// closed; DecodeAnswer is the only constructor from untyped JSON values.
type Answer interface {
	Kind() Kind
	// Raw returns the value stored in the document.
	Raw() any
}

// TextAnswer holds free text, dates and textual percentages.
type TextAnswer struct {
	K    Kind
	Text string
}

func (a TextAnswer) Kind() Kind { return a.K }
func (a TextAnswer) Raw() any   { return a.Text }

// NumberAnswer is a percent given as a number.
type NumberAnswer float64

func (NumberAnswer) Kind() Kind { return KindPercent }
func (a NumberAnswer) Raw() any { return float64(a) }

// ChoiceAnswer is the selected option of a radio or dropdown.
type ChoiceAnswer struct {
	K      Kind
	Option string
}

func (a ChoiceAnswer) Kind() Kind { return a.K }
func (a ChoiceAnswer) Raw() any   { return a.Option }

// MultiAnswer is the selected option set of a multi-select.
type MultiAnswer []string

func (MultiAnswer) Kind() Kind { return KindMultiSelect }
func (a MultiAnswer) Raw() any {
	out := make([]any, len(a))
	for i, s := range a {
		out[i] = s
	}
	return out
}

// DocumentAnswer is either plain text or an object of sub-input selections
// with the free text under "__text".
type DocumentAnswer struct {
	Text       string
	Selections map[string]string
	plain      bool
}

// DocumentTextKey is the object key holding free text in a document answer.
const DocumentTextKey = "__text"

func (DocumentAnswer) Kind() Kind { return KindDocument }
func (a DocumentAnswer) Raw() any {
	if a.plain {
		return a.Text
	}
	m := make(map[string]any, len(a.Selections)+1)
	for k, v := range a.Selections {
		m[k] = v
	}
	if a.Text != "" {
		m[DocumentTextKey] = a.Text
	}
	return m
}

// TableAnswer is the row list of a table field.
type TableAnswer []any

func (TableAnswer) Kind() Kind { return KindTable }
func (a TableAnswer) Raw() any { return []any(a) }

// RawAnswer carries the value of a custom field untouched.
type RawAnswer struct{ Value any }

func (RawAnswer) Kind() Kind { return KindCustom }
func (a RawAnswer) Raw() any { return a.Value }

// DecodeAnswer checks that raw fits kind and returns its typed form. A nil raw
// value clears the answer and yields a nil Answer.
func DecodeAnswer(kind Kind, raw any) (Answer, error) {
	if raw == nil {
		return nil, nil
	}
	mismatch := func() error {
		return fmt.Errorf("%w: %s field cannot hold %T", ErrShapeMismatch, kind, raw)
	}
	switch kind {
	case KindText, KindDate:
		s, ok := raw.(string)
		if !ok {
			return nil, mismatch()
		}
		return TextAnswer{K: kind, Text: s}, nil
	case KindPercent:
		switch v := raw.(type) {
		case string:
			return TextAnswer{K: kind, Text: v}, nil
		case float64:
			return NumberAnswer(v), nil
		}
		return nil, mismatch()
	case KindRadio, KindDropdown:
		s, ok := raw.(string)
		if !ok {
			return nil, mismatch()
		}
		return ChoiceAnswer{K: kind, Option: s}, nil
	case KindMultiSelect:
		list, ok := raw.([]any)
		if !ok {
			return nil, mismatch()
		}
		out := make(MultiAnswer, 0, len(list))
		for _, x := range list {
			s, ok := x.(string)
			if !ok {
				return nil, mismatch()
			}
			out = append(out, s)
		}
		return out, nil
	case KindDocument:
		switch v := raw.(type) {
		case string:
			return DocumentAnswer{Text: v, plain: true}, nil
		case map[string]any:
			a := DocumentAnswer{Selections: map[string]string{}}
			for k, x := range v {
				s, ok := x.(string)
				if !ok {
					return nil, mismatch()
				}
				if k == DocumentTextKey {
					a.Text = s
					continue
				}
				a.Selections[k] = s
			}
			return a, nil
		}
		return nil, mismatch()
	case KindTable:
		rows, ok := raw.([]any)
		if !ok {
			return nil, mismatch()
		}
		return TableAnswer(rows), nil
	case KindCustom:
		return RawAnswer{Value: raw}, nil
	}
	return nil, mismatch()
}

// DecodeAnswer checks raw against the node's own kind.
func (n Node) DecodeAnswer(raw any) (Answer, error) {
	return DecodeAnswer(n.Kind(), raw)
}
