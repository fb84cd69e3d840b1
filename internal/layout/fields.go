package layout

import (
	"strings"

	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

// Field titles on contact-group pages.
const (
	FieldGroupOfStates = "Group of States"
	FieldMember        = "Member"
	FieldArticle       = "Article"
	FieldDescription   = "Description"
	FieldReplacement   = "Is this a replacement upload"
	FieldFile          = "File"
	FieldLanguage      = "Language"
	FieldUploadDate    = "Date of Upload"
	FieldDocumentType  = "Document Type"
)

var knownFields = []string{
	FieldGroupOfStates, FieldMember, FieldArticle, FieldDescription, FieldReplacement,
	FieldFile, FieldLanguage, FieldUploadDate, FieldDocumentType,
}

// fieldBlockParser interprets labeled fields captured from a comment block.
type fieldBlockParser struct{}

func (fieldBlockParser) Parse(c submission.RawCandidate, documentType string) (submission.ParsedMetadata, error) {
	values := make(map[string]submission.Field, len(knownFields))
	for _, title := range knownFields {
		f, ok := c.Field(title)
		if !ok {
			continue
		}
		if f.Detached {
			return submission.ParsedMetadata{}, &submission.ParseError{
				URL: c.PageURL, Field: title, Reason: "label has no adjacent value",
			}
		}
		values[title] = f
	}

	file := values[FieldFile]
	if file.Href == "" {
		return submission.ParsedMetadata{}, &submission.ParseError{
			URL: c.PageURL, Field: FieldFile, Reason: "no document link",
		}
	}

	md := submission.ParsedMetadata{
		Member:        values[FieldMember].Value,
		GroupOfStates: values[FieldGroupOfStates].Value,
		Article:       values[FieldArticle].Value,
		Description:   values[FieldDescription].Value,
		IsReplacement: strings.EqualFold(strings.TrimSpace(values[FieldReplacement].Value), "yes"),
		FileURL:       file.Href,
		DocumentType:  documentType,
		Order:         c.Order,
	}
	if md.DocumentType == "" {
		md.DocumentType = values[FieldDocumentType].Value
	}
	if lang := values[FieldLanguage].Value; lang != "" {
		md.Languages = []string{LanguageName(lang)}
	}
	if raw := values[FieldUploadDate].Value; raw != "" {
		t, err := ParseUploadTimestamp(raw)
		if err != nil {
			return submission.ParsedMetadata{}, &submission.ParseError{
				URL: c.PageURL, Field: FieldUploadDate, Reason: "unparseable timestamp", Err: err,
			}
		}
		md.UploadDate = &t
	}
	return md, nil
}
