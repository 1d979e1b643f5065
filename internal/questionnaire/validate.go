package questionnaire

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Issue is one schema problem found by Validate.
type Issue struct {
	Group string `json:"group"`
	Path  string `json:"path"`
	ID    string `json:"id,omitempty"`
	Err   error  `json:"-"`
}

func (i Issue) Error() string {
	if i.ID != "" {
		return fmt.Sprintf("%s/%s (%s): %v", i.Group, i.Path, i.ID, i.Err)
	}
	return fmt.Sprintf("%s/%s: %v", i.Group, i.Path, i.Err)
}

func (i Issue) Unwrap() error { return i.Err }

// MarshalText renders the issue for JSON responses.
func (i Issue) MarshalText() ([]byte, error) { return []byte(i.Error()), nil }

// Validate reports ids used more than once across the section and nodes that
// are neither a group nor a question. It never modifies doc.
func Validate(doc Document) []Issue {
	var issues []Issue
	seen := map[string]string{}
	for _, g := range doc.Groups() {
		validateItems(g.Key, g.Items, nil, seen, &issues)
	}
	return issues
}

func validateItems(group string, items []any, path []string, seen map[string]string, issues *[]Issue) {
	for i, el := range items {
		p := append(slices.Clone(path), strconv.Itoa(i))
		n, ok := AsNode(el)
		if !ok {
			*issues = append(*issues, Issue{Group: group, Path: strings.Join(p, "."), Err: ErrSchemaShapeMismatch})
			continue
		}
		shape := n.Shape()
		id := n.ID()
		if shape == ShapeMalformed {
			*issues = append(*issues, Issue{Group: group, Path: strings.Join(p, "."), ID: id, Err: ErrSchemaShapeMismatch})
		}
		if id != "" {
			loc := group + "/" + strings.Join(p, ".")
			if first, dup := seen[id]; dup {
				*issues = append(*issues, Issue{
					Group: group,
					Path:  strings.Join(p, "."),
					ID:    id,
					Err:   fmt.Errorf("%w (first at %s)", ErrDuplicateID, first),
				})
			} else {
				seen[id] = loc
			}
		}
		if shape == ShapeGroup {
			children, key, _ := n.Children()
			validateItems(group, children, append(p, key), seen, issues)
		}
	}
}

// IssuesErr joins issues into one error, or returns nil.
func IssuesErr(issues []Issue) error {
	if len(issues) == 0 {
		return nil
	}
	errs := make([]error, len(issues))
	for i, is := range issues {
		errs[i] = is
	}
	return errors.Join(errs...)
}

// HasDuplicates reports whether any issue is a duplicate id.
func HasDuplicates(issues []Issue) bool {
	for _, is := range issues {
		if errors.Is(is.Err, ErrDuplicateID) {
			return true
		}
	}
	return false
}
