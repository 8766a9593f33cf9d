package feeds

import "fmt"

// TransportError is an upstream failure: connection error, timeout or a
// non-200 answer. StatusCode is 0 when no response was received.
type TransportError struct {
	Feed       string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: GET %s: status %d: %v", e.Feed, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: GET %s: %v", e.Feed, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError is a malformed payload or instant string.
type ParseError struct {
	Feed  string
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	switch {
	case e.Field != "" && e.Value != "":
		return fmt.Sprintf("%s: parse %s %q: %v", e.Feed, e.Field, e.Value, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s: parse %s: %v", e.Feed, e.Field, e.Err)
	default:
		return fmt.Sprintf("%s: parse: %v", e.Feed, e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }
