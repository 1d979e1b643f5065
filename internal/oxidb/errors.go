package oxidb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBroken is returned by a client whose connection lost frame sync.
	ErrBroken = errors.New("oxidb: connection broken")
	// ErrDuplicate matches server errors caused by a unique index.
	ErrDuplicate = errors.New("oxidb: duplicate key")
	// ErrExists matches "already exists" server errors.
	ErrExists = errors.New("oxidb: already exists")
)

// Error is returned when the OxiDB server returns an error response.
type Error struct {
	Cmd string
	Msg string
}

func (e *Error) Error() string {
	if e.Cmd == "" {
		return fmt.Sprintf("oxidb: %s", e.Msg)
	}
	return fmt.Sprintf("oxidb: %s: %s", e.Cmd, e.Msg)
}

// Is maps server messages onto the package sentinels.
func (e *Error) Is(target error) bool {
	msg := strings.ToLower(e.Msg)
	switch target {
	case ErrDuplicate:
		return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
	case ErrExists:
		return strings.Contains(msg, "already exists")
	}
	return false
}
