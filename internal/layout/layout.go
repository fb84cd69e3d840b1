// Package layout holds one FieldParser per page-layout revision. Each parser
// turns a RawCandidate into a ParsedMetadata draft.
package layout

import (
	"fmt"

	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

// Kind names a page-layout revision.
type Kind string

const (
	// LinkText reads authorship from the link text itself.
	LinkText Kind = "link_text"
	// HeadingAuthor reads authorship from the bold pseudo-heading above the link.
	HeadingAuthor Kind = "heading_author"
	// DelimitedParagraph reads "date | author" from the surrounding paragraph.
	DelimitedParagraph Kind = "delimited_paragraph"
	// DatedParagraph reads "author (dd/mm/yyyy)" from the surrounding paragraph.
	DatedParagraph Kind = "dated_paragraph"
	// FieldBlocks reads labeled fields captured from structured sub-pages.
	FieldBlocks Kind = "field_blocks"
)

// Kinds lists every registered layout.
func Kinds() []Kind {
	return []Kind{LinkText, HeadingAuthor, DelimitedParagraph, DatedParagraph, FieldBlocks}
}

// Valid reports whether k is registered.
func (k Kind) Valid() bool {
	_, err := New(k)
	return err == nil
}

// FieldParser converts one candidate into typed metadata.
type FieldParser interface {
	Parse(c submission.RawCandidate, documentType string) (submission.ParsedMetadata, error)
}

// New returns the parser registered for kind.
func New(kind Kind) (FieldParser, error) {
	switch kind {
	case LinkText:
		return linkTextParser{}, nil
	case HeadingAuthor:
		return headingAuthorParser{}, nil
	case DelimitedParagraph:
		return delimitedParser{}, nil
	case DatedParagraph:
		return datedParser{}, nil
	case FieldBlocks:
		return fieldBlockParser{}, nil
	default:
		return nil, fmt.Errorf("layout %q: %w", kind, submission.ErrUnknownLayout)
	}
}

const unknownCategory = "unknown"

// category picks the first non-empty value.
func category(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return unknownCategory
}

func requireHref(c submission.RawCandidate) error {
	if c.Href == "" {
		return &submission.ParseError{URL: c.PageURL, Field: "href", Reason: "candidate has no document link"}
	}
	return nil
}
