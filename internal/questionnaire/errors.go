package questionnaire

import "errors"

var (
	// ErrNodeNotFound is returned when a mutation target id is not in the group.
	ErrNodeNotFound = errors.New("questionnaire: node not found")
	// ErrSchemaShapeMismatch marks a node that is neither a group nor a question.
	ErrSchemaShapeMismatch = errors.New("questionnaire: schema shape mismatch")
	// ErrShapeMismatch is returned when a value does not fit the field it targets.
	ErrShapeMismatch = errors.New("questionnaire: answer shape mismatch")
	// ErrDuplicateID is reported when an id occurs more than once in a section.
	ErrDuplicateID = errors.New("questionnaire: duplicate id")
)
