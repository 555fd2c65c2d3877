package normalizer

import (
	"errors"
	"fmt"
)

// Spec error codes.
const (
	CodeMalformedSpec      = "MALFORMED_SPEC"
	CodeMixedShape         = "MIXED_SHAPE"
	CodeMissingDirection   = "MISSING_DIRECTION"
	CodeAmbiguousDirection = "AMBIGUOUS_DIRECTION"
	CodeInvalidItems       = "INVALID_ITEMS"
	CodeInvalidRelation    = "INVALID_RELATION"
)

// SpecError reports a caller-supplied spec that cannot be normalized.
// No storage is touched when a SpecError is returned.
type SpecError struct {
	Code    string
	Field   string // dotted path into the spec, e.g. "1.from"
	Message string
}

func (e *SpecError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsSpecError reports whether err is a SpecError, optionally with one of codes.
func IsSpecError(err error, codes ...string) bool {
	var specErr *SpecError
	if !errors.As(err, &specErr) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, code := range codes {
		if specErr.Code == code {
			return true
		}
	}
	return false
}

func specErrorf(code, field, format string, args ...any) *SpecError {
	return &SpecError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}
