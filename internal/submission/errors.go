package submission

import (
	"errors"
	"fmt"
)

var (
	// ErrNotPDF is returned for download targets without a .pdf suffix.
	ErrNotPDF = errors.New("resource is not a pdf")
	// ErrNoComments is returned when a contact-group page has no comment container.
	ErrNoComments = errors.New("comments container not found")
	// ErrUnknownLayout is returned for an unregistered layout kind.
	ErrUnknownLayout = errors.New("unknown layout")
	// ErrObjectNotFound is returned by blob stores for a missing path.
	ErrObjectNotFound = errors.New("object not found")
)

// FetchError reports a fetch that exhausted its retries.
type FetchError struct {
	URL        string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempts: %v", e.URL, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s: failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError reports a candidate missing a required field.
type ParseError struct {
	URL    string
	Field  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s: field %q: %s", e.URL, e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DateFormatError reports a date string that matched no known format.
type DateFormatError struct {
	Input string
}

func (e *DateFormatError) Error() string {
	return fmt.Sprintf("unrecognized date %q", e.Input)
}

// TaxonomyMiss records a value that did not resolve against a taxonomy.
type TaxonomyMiss struct {
	Kind  string
	Value string
	Href  string
}

func (m TaxonomyMiss) Error() string {
	return fmt.Sprintf("%s %q not found in taxonomy (%s)", m.Kind, m.Value, m.Href)
}
