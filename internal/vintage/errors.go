package vintage

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrMalformedVintageFile is returned when a raw file yields no usable vintage.
var ErrMalformedVintageFile = eris.New("malformed vintage file")

// MalformedError describes why a particular file could not be parsed.
type MalformedError struct {
	Source string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("vintage: malformed vintage file %s: %s", e.Source, e.Reason)
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformedVintageFile
}

func malformed(source, format string, args ...any) error {
	return &MalformedError{Source: source, Reason: fmt.Sprintf(format, args...)}
}
