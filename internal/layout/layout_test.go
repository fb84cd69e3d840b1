package layout

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

func parserFor(t *testing.T, kind Kind) FieldParser {
	t.Helper()
	p, err := New(kind)
	require.NoError(t, err)
	return p
}

func TestNewUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := New("tabular")
	require.ErrorIs(t, err, submission.ErrUnknownLayout)
	assert.False(t, Kind("tabular").Valid())
	for _, k := range Kinds() {
		assert.True(t, k.Valid(), k)
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Statement on plastics", CleanText("Statement\r\n on plastics"))
	assert.Equal(t, "a b", CleanText("a  b"))
	assert.Equal(t, "ab", CleanText("a\tb"))
	assert.Empty(t, CleanText(""))
}

func TestDelimitedParagraph(t *testing.T) {
	t.Parallel()

	p := parserFor(t, DelimitedParagraph)
	md, err := p.Parse(submission.RawCandidate{
		Href:                 "https://example.org/a.pdf",
		LinkText:             "Statement\n on plastics",
		SurroundingParagraph: "12/05/2023 | Ghana on behalf of the African Group English",
		SectionName:          "Part 2",
		Order:                3,
	}, "statement")
	require.NoError(t, err)

	assert.Equal(t, "Ghana", md.Member)
	assert.Equal(t, "African Group", md.GroupOfStates)
	assert.Equal(t, "Part 2", md.Article)
	assert.Equal(t, "Statement on plastics", md.Description)
	assert.Equal(t, "https://example.org/a.pdf", md.FileURL)
	assert.Equal(t, []string{"English"}, md.Languages)
	assert.Equal(t, "statement", md.DocumentType)
	assert.Equal(t, int64(3), md.Order)
	require.NotNil(t, md.UploadDate)
	assert.True(t, time.Date(2023, 5, 12, 0, 0, 0, 0, time.UTC).Equal(*md.UploadDate))
}

func TestDelimitedParagraphVariants(t *testing.T) {
	t.Parallel()

	p := parserFor(t, DelimitedParagraph)

	md, err := p.Parse(submission.RawCandidate{
		Href:                 "https://example.org/b.pdf",
		SurroundingParagraph: "Norway | closing plenary",
		SubsectionName:       "Article 3",
		SectionName:          "Part 1",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "Norway", md.Member)
	assert.Nil(t, md.UploadDate)
	assert.Equal(t, "Article 3", md.Article)

	md, err = p.Parse(submission.RawCandidate{
		Href:                 "https://example.org/c.pdf",
		SurroundingParagraph: "01/01/20235 | Japan, Korea",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "Japan, Korea", md.GroupOfStates)
	assert.Empty(t, md.Member)
	assert.Equal(t, unknownCategory, md.Article)
	require.NotNil(t, md.UploadDate)
	assert.Equal(t, 2023, md.UploadDate.Year())

	md, err = p.Parse(submission.RawCandidate{
		Href:                 "https://example.org/d.pdf",
		LinkText:             "Submission",
		SurroundingParagraph: "03/04/2023 | Chile (English version)",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "Chile", md.Member)
	assert.Equal(t, "Submission", md.Article)
}

func TestDelimitedParagraphExtraSegmentsKeepWholeAuthor(t *testing.T) {
	t.Parallel()

	md, err := parserFor(t, DelimitedParagraph).Parse(submission.RawCandidate{
		Href:                 "https://example.org/e.pdf",
		SurroundingParagraph: "12/05/2023 | Norway | Annex",
	}, "")
	require.NoError(t, err)
	assert.Nil(t, md.UploadDate)
	assert.Equal(t, "12/05/2023 | Norway | Annex", md.Member)
	assert.Empty(t, md.GroupOfStates)
}

func TestDelimitedParagraphBadDate(t *testing.T) {
	t.Parallel()

	_, err := parserFor(t, DelimitedParagraph).Parse(submission.RawCandidate{
		Href:                 "https://example.org/a.pdf",
		SurroundingParagraph: "32/13/2023 | Norway",
	}, "")
	var pe *submission.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "upload_date", pe.Field)
	var dfe *submission.DateFormatError
	assert.True(t, errors.As(err, &dfe))
}

func TestParagraphLayoutsRequireHref(t *testing.T) {
	t.Parallel()

	for _, k := range []Kind{LinkText, HeadingAuthor, DelimitedParagraph, DatedParagraph} {
		_, err := parserFor(t, k).Parse(submission.RawCandidate{PageURL: "https://example.org/p", LinkText: "Japan"}, "")
		var pe *submission.ParseError
		require.ErrorAs(t, err, &pe, k)
		assert.Equal(t, "href", pe.Field)
	}
}

func TestDatedParagraph(t *testing.T) {
	t.Parallel()

	p := parserFor(t, DatedParagraph)
	md, err := p.Parse(submission.RawCandidate{
		Href:                 "https://example.org/a.pdf",
		SurroundingParagraph: "Submission by Japan (15/03/2023)",
		SectionName:          "Plastic products",
	}, "pre session submission")
	require.NoError(t, err)
	assert.Equal(t, "Japan", md.Member)
	assert.Equal(t, "Plastic products", md.Article)
	require.NotNil(t, md.UploadDate)
	assert.True(t, time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC).Equal(*md.UploadDate))

	md, err = p.Parse(submission.RawCandidate{
		Href:                 "https://example.org/b.pdf",
		SurroundingParagraph: "Peru - 01/02/20235 English",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "Peru", md.Member)
	assert.Equal(t, []string{"English"}, md.Languages)
	require.NotNil(t, md.UploadDate)
	assert.Equal(t, time.February, md.UploadDate.Month())

	md, err = p.Parse(submission.RawCandidate{
		Href:                 "https://example.org/c.pdf",
		SurroundingParagraph: "Alliance of Small Island States",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "Alliance of Small Island States", md.GroupOfStates)
	assert.Nil(t, md.UploadDate)
}

func TestLinkText(t *testing.T) {
	t.Parallel()

	p := parserFor(t, LinkText)
	md, err := p.Parse(submission.RawCandidate{
		Href:        "https://example.org/a.pdf",
		LinkText:    "Submission by Japan (English)",
		SectionName: "Plastic products",
		GroupName:   "Submissions",
	}, "pre session submission")
	require.NoError(t, err)
	assert.Equal(t, "Japan", md.Member)
	assert.Equal(t, []string{"English"}, md.Languages)
	assert.Equal(t, "Plastic products", md.Article)
	assert.Equal(t, "Submission by Japan (English)", md.Description)

	md, err = p.Parse(submission.RawCandidate{
		Href:      "https://example.org/b.pdf",
		LinkText:  "Statement from the Group of African States",
		GroupName: "Statements",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "the Group of African States", md.GroupOfStates)
	assert.Equal(t, "Statements", md.Article)

	_, err = p.Parse(submission.RawCandidate{Href: "https://example.org/c.pdf", LinkText: "English"}, "")
	var pe *submission.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "author", pe.Field)
}

func TestHeadingAuthor(t *testing.T) {
	t.Parallel()

	p := parserFor(t, HeadingAuthor)
	md, err := p.Parse(submission.RawCandidate{
		Href:           "https://example.org/a.pdf",
		LinkText:       "Français",
		SubsectionName: "Rwanda and Peru",
		GroupName:      "Part 1",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "Rwanda and Peru", md.GroupOfStates)
	assert.Equal(t, []string{"French"}, md.Languages)
	assert.Empty(t, md.Description)
	assert.Equal(t, "Part 1", md.Article)

	_, err = p.Parse(submission.RawCandidate{Href: "https://example.org/b.pdf", LinkText: "English"}, "")
	var pe *submission.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "author", pe.Field)
}

func blockFields() []submission.Field {
	return []submission.Field{
		{Label: "Member", Value: "Norway"},
		{Label: "Article", Value: "Article 5"},
		{Label: "Description", Value: "Proposal on design"},
		{Label: "Is this a replacement upload?", Value: "Yes"},
		{Label: "File", Value: "no_proposal.pdf", Href: "https://resolutions.unep.org/sites/no_proposal.pdf"},
		{Label: "Language", Value: "english"},
		{Label: "Date of Upload", Value: "Monday, June 3, 2024 - 14:05"},
		{Label: "Document Type", Value: "Submission"},
	}
}

func TestFieldBlocks(t *testing.T) {
	t.Parallel()

	p := parserFor(t, FieldBlocks)
	md, err := p.Parse(submission.RawCandidate{PageURL: "https://x.test/cg1", Fields: blockFields(), Order: 2}, "insession document")
	require.NoError(t, err)

	assert.Equal(t, "Norway", md.Member)
	assert.Empty(t, md.GroupOfStates)
	assert.Equal(t, "Article 5", md.Article)
	assert.Equal(t, "Proposal on design", md.Description)
	assert.True(t, md.IsReplacement)
	assert.Equal(t, "https://resolutions.unep.org/sites/no_proposal.pdf", md.FileURL)
	assert.Equal(t, []string{"English"}, md.Languages)
	assert.Equal(t, "insession document", md.DocumentType)
	assert.Equal(t, int64(2), md.Order)
	require.NotNil(t, md.UploadDate)
	assert.Equal(t, 14, md.UploadDate.Hour())

	md, err = p.Parse(submission.RawCandidate{Fields: blockFields()}, "")
	require.NoError(t, err)
	assert.Equal(t, "Submission", md.DocumentType)
}

func TestFieldBlocksReplacementIsLiteralYes(t *testing.T) {
	t.Parallel()

	fields := blockFields()
	fields[3].Value = "No"
	md, err := parserFor(t, FieldBlocks).Parse(submission.RawCandidate{Fields: fields}, "")
	require.NoError(t, err)
	assert.False(t, md.IsReplacement)
}

func TestFieldBlocksStructuralErrors(t *testing.T) {
	t.Parallel()

	p := parserFor(t, FieldBlocks)

	detached := blockFields()
	detached[0] = submission.Field{Label: "Member", Detached: true}
	_, err := p.Parse(submission.RawCandidate{PageURL: "https://x.test/cg1", Fields: detached}, "")
	var pe *submission.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, FieldMember, pe.Field)
	assert.Equal(t, "https://x.test/cg1", pe.URL)

	noFile := blockFields()[:4]
	_, err = p.Parse(submission.RawCandidate{Fields: noFile}, "")
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, FieldFile, pe.Field)

	badDate := blockFields()
	badDate[6].Value = "yesterday"
	_, err = p.Parse(submission.RawCandidate{Fields: badDate}, "")
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, FieldUploadDate, pe.Field)
}
