package registry

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotRegistered matches any NotRegisteredError via errors.Is.
var ErrNotRegistered = errors.New("relationship not registered")

// NotRegisteredError reports a query or operation that referenced an
// unknown relationship id.
type NotRegisteredError struct {
	ID string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("relationship %q not registered", e.ID)
}

// Is makes errors.Is(err, ErrNotRegistered) true.
func (e *NotRegisteredError) Is(target error) bool {
	return target == ErrNotRegistered
}

// IsNotRegistered reports whether err is or wraps a NotRegisteredError.
func IsNotRegistered(err error) bool {
	return errors.Is(err, ErrNotRegistered)
}

// ValidationError describes one invalid field of a definition.
type ValidationError struct {
	Field   string `json:"field"`   // e.g. "from.field.taxonomy"
	Tag     string `json:"tag"`     // failed rule, e.g. "required_if"
	Message string `json:"message"` // human-readable message
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DefinitionError reports every validation failure for one definition.
type DefinitionError struct {
	ID     string
	Errors []ValidationError
}

func (e *DefinitionError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		msgs = append(msgs, ve.Error())
	}
	return fmt.Sprintf("invalid relationship %q: %s", e.ID, strings.Join(msgs, "; "))
}
