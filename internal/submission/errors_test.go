package submission

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchErrorUnwraps(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := fmt.Errorf("fetch index: %w", &FetchError{URL: "https://example.org", Attempts: 3, Err: cause})

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 3, fe.Attempts)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestFetchErrorIncludesStatus(t *testing.T) {
	t.Parallel()

	err := &FetchError{URL: "https://example.org", Attempts: 1, StatusCode: 404, Err: errors.New("not found")}
	assert.Contains(t, err.Error(), "status 404")
}

func TestParseErrorMessage(t *testing.T) {
	t.Parallel()

	err := &ParseError{URL: "https://example.org/a", Field: "File", Reason: "missing value", Err: ErrNoComments}
	assert.ErrorIs(t, err, ErrNoComments)
	assert.Contains(t, err.Error(), `field "File"`)
}

func TestDateFormatErrorAs(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("parse date: %w", &DateFormatError{Input: "not-a-date"})
	var de *DateFormatError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "not-a-date", de.Input)
}

func TestRawCandidateFieldPrefixMatch(t *testing.T) {
	t.Parallel()

	c := RawCandidate{Fields: []Field{
		{Label: "Group of States:", Value: "African Group"},
		{Label: "File:", Value: "doc.pdf", Href: "https://example.org/doc.pdf"},
	}}

	f, ok := c.Field("File")
	require.True(t, ok)
	assert.Equal(t, "https://example.org/doc.pdf", f.Href)

	_, ok = c.Field("Member")
	assert.False(t, ok)
}
