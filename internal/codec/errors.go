package codec

import "fmt"

// FormatErrorKind classifies why a payload could not be encoded.
type FormatErrorKind string

const (
	InvalidCharacter FormatErrorKind = "invalid_character"
	InvalidLength    FormatErrorKind = "invalid_length"
	OutOfRange       FormatErrorKind = "out_of_range"
)

// FormatError reports a payload that is not valid in the active format.
type FormatError struct {
	Kind   FormatErrorKind
	Format Format
	Input  string
}

func (e *FormatError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("invalid %s payload %q: %s", e.Format, e.Input, e.Kind)
}

// Is allows errors.Is to compare FormatError values by Kind
func (e *FormatError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*FormatError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors for format failures
var (
	ErrInvalidCharacter = &FormatError{Kind: InvalidCharacter}
	ErrInvalidLength    = &FormatError{Kind: InvalidLength}
	ErrOutOfRange       = &FormatError{Kind: OutOfRange}
)
