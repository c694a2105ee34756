package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrMalformed = errors.New("malformed payload")

// ProtocolError describes an inbound payload that could not be used as sent.
// Fields lists the members that were missing or invalid and got defaults.
type ProtocolError struct {
	Event  string
	Fields []string
	Err    error
}

func (e *ProtocolError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "protocol error on %q", e.Event)
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " (defaulted: %s)", strings.Join(e.Fields, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Fatal reports whether the payload was unusable and got dropped.
func (e *ProtocolError) Fatal() bool { return e != nil && errors.Is(e.Err, ErrMalformed) }
