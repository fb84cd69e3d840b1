package layout

import (
	"regexp"
	"strings"
	"time"

	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

var englishSuffix = regexp.MustCompile(`(?i)(.*) english`)

// delimitedParser reads "dd/mm/yyyy | Author" paragraphs. A second segment
// mentioning "closing" is a closing-statement marker, not an author.
type delimitedParser struct{}

func (delimitedParser) Parse(c submission.RawCandidate, documentType string) (submission.ParsedMetadata, error) {
	if err := requireHref(c); err != nil {
		return submission.ParsedMetadata{}, err
	}
	text := CleanText(c.SurroundingParagraph)
	var langs []string
	if strings.Contains(strings.ToLower(text), "english") {
		if m := englishSuffix.FindStringSubmatch(text); m != nil {
			text = m[1]
			langs = []string{"English"}
		}
	}

	parts := strings.Split(text, "|")
	if len(parts) > 1 && strings.Contains(strings.ToLower(parts[1]), "closing") {
		parts = parts[:1]
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	var uploaded *time.Time
	authorField := strings.Join(parts, " | ")
	if len(parts) == 2 {
		t, err := ParseDate(parts[0])
		if err != nil {
			return submission.ParsedMetadata{}, &submission.ParseError{
				URL: c.Href, Field: "upload_date", Reason: "unparseable date", Err: err,
			}
		}
		uploaded = &t
		authorField = parts[1]
	}
	if strings.Contains(strings.ToLower(authorField), "english") {
		authorField, _, _ = strings.Cut(authorField, "(")
	}

	who := ResolveAuthorship(authorField)
	description := CleanText(c.LinkText)
	return submission.ParsedMetadata{
		Member:        who.Member,
		GroupOfStates: who.GroupOfStates,
		Article:       category(c.SubsectionName, c.SectionName, description),
		Description:   description,
		FileURL:       c.Href,
		Languages:     langs,
		UploadDate:    uploaded,
		DocumentType:  documentType,
		Order:         c.Order,
	}, nil
}

// trailingDate captures "Author (dd/mm/yyyy)" and "Author - dd/mm/yyyy".
var trailingDate = regexp.MustCompile(
	`^(.*?)\s*(?:\(\s*(\d{1,2}/{1,2}\d{1,2}/\d{4,5})\s*\)|[-–|]\s*(\d{1,2}/{1,2}\d{1,2}/\d{4,5}))\s*$`)

// datedParser reads paragraphs that end with the upload date.
type datedParser struct{}

func (datedParser) Parse(c submission.RawCandidate, documentType string) (submission.ParsedMetadata, error) {
	if err := requireHref(c); err != nil {
		return submission.ParsedMetadata{}, err
	}
	text, langs := stripLanguageTags(CleanText(c.SurroundingParagraph))

	var uploaded *time.Time
	authorField := text
	if m := trailingDate.FindStringSubmatch(text); m != nil {
		raw := m[2]
		if raw == "" {
			raw = m[3]
		}
		t, err := ParseDate(raw)
		if err != nil {
			return submission.ParsedMetadata{}, &submission.ParseError{
				URL: c.Href, Field: "upload_date", Reason: "unparseable date", Err: err,
			}
		}
		uploaded = &t
		authorField = m[1]
	}
	authorField, moreLangs := stripLanguageTags(stripSubmissionPrefix(authorField))

	who := ResolveAuthorship(authorField)
	description := CleanText(c.LinkText)
	return submission.ParsedMetadata{
		Member:        who.Member,
		GroupOfStates: who.GroupOfStates,
		Article:       category(c.SubsectionName, c.SectionName, description),
		Description:   description,
		FileURL:       c.Href,
		Languages:     mergeLanguages(langs, moreLangs),
		UploadDate:    uploaded,
		DocumentType:  documentType,
		Order:         c.Order,
	}, nil
}

func mergeLanguages(sets ...[]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, set := range sets {
		for _, l := range set {
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}
