package layout

import (
	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

// linkTextParser reads authorship from link text such as
// "Submission by Japan (English)".
type linkTextParser struct{}

func (linkTextParser) Parse(c submission.RawCandidate, documentType string) (submission.ParsedMetadata, error) {
	if err := requireHref(c); err != nil {
		return submission.ParsedMetadata{}, err
	}
	description := CleanText(c.LinkText)
	author, langs := stripLanguageTags(description)
	author = stripSubmissionPrefix(author)
	if author == "" {
		return submission.ParsedMetadata{}, &submission.ParseError{
			URL: c.Href, Field: "author", Reason: "link text carries no author",
		}
	}
	who := ResolveAuthorship(author)
	return submission.ParsedMetadata{
		Member:        who.Member,
		GroupOfStates: who.GroupOfStates,
		Article:       category(c.SubsectionName, c.SectionName, c.GroupName),
		Description:   description,
		FileURL:       c.Href,
		Languages:     langs,
		DocumentType:  documentType,
		Order:         c.Order,
	}, nil
}

// headingAuthorParser reads authorship from the bold pseudo-heading above
// the link; the link text is a language label or a title.
type headingAuthorParser struct{}

func (headingAuthorParser) Parse(c submission.RawCandidate, documentType string) (submission.ParsedMetadata, error) {
	if err := requireHref(c); err != nil {
		return submission.ParsedMetadata{}, err
	}
	author, headingLangs := stripLanguageTags(stripSubmissionPrefix(CleanText(c.SubsectionName)))
	if author == "" {
		return submission.ParsedMetadata{}, &submission.ParseError{
			URL: c.Href, Field: "author", Reason: "no bold heading precedes the link",
		}
	}
	title, langs := stripLanguageTags(CleanText(c.LinkText))
	who := ResolveAuthorship(author)
	return submission.ParsedMetadata{
		Member:        who.Member,
		GroupOfStates: who.GroupOfStates,
		Article:       category(c.SectionName, c.GroupName, title),
		Description:   title,
		FileURL:       c.Href,
		Languages:     mergeLanguages(headingLangs, langs),
		DocumentType:  documentType,
		Order:         c.Order,
	}, nil
}
