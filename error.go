package stream

import (
	"fmt"
	"strings"
)

// Errors wraps errors of multiple connections that failed
// are failing.
type Errors []error

func (e Errors) Error() string {
	s := make([]string, 0, len(e))
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Unwrap allows errors.Is and errors.As to match any of the errors.
func (e Errors) Unwrap() []error {
	return e
}

// ret returns untyped nil if error is list is empty.
func (e Errors) ret() error {
	switch len(e) {
	case 0:
		return nil
	case 1:
		return e[0]
	}
	return e
}

// ConnectionError is returned when connection failed to deliver data.
type ConnectionError struct {
	Source string
	Sink   string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Sink == "" {
		return fmt.Sprintf("source %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("source %s sink %s: %v", e.Source, e.Sink, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
