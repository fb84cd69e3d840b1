package snapshot

import (
	"slices"
	"sort"

	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

// ValidDocumentTypes are the document types downstream consumers accept.
var ValidDocumentTypes = []string{"statement", "pre session submission", "insession document"}

// Taxonomy is the lookup surface verification needs.
type Taxonomy interface {
	HasAuthor(name string) bool
	HasTopic(id string) bool
}

// VerifyOptions tunes a verification pass.
type VerifyOptions struct {
	// ExpectedCount flags a record count mismatch when non-zero.
	ExpectedCount int
	// SkipTopics disables topic checks, for sessions published without articles.
	SkipTopics bool
}

// Report lists the problems found in one snapshot. Slices hold hrefs unless
// noted otherwise.
type Report struct {
	Session               string   `yaml:"session"`
	Records               int      `yaml:"records"`
	ExpectedRecords       int      `yaml:"expected_records,omitempty"`
	MissingAuthors        []string `yaml:"missing_authors,omitempty"`
	UnknownAuthors        []string `yaml:"unknown_authors,omitempty"` // author names
	MissingTopics         []string `yaml:"missing_topics,omitempty"`
	PossiblyMissingTopics []string `yaml:"possibly_missing_topics,omitempty"`
	UnknownTopics         []string `yaml:"unknown_topics,omitempty"` // topic names
	MissingTitles         []string `yaml:"missing_titles,omitempty"`
	DuplicateTitles       []string `yaml:"duplicate_titles,omitempty"` // titles
	DuplicateHrefs        []string `yaml:"duplicate_hrefs,omitempty"`
	InvalidDocumentTypes  []string `yaml:"invalid_document_types,omitempty"`
}

// OK reports whether the snapshot passed every check.
func (r Report) OK() bool {
	return (r.ExpectedRecords == 0 || r.ExpectedRecords == r.Records) &&
		len(r.MissingAuthors)+len(r.UnknownAuthors)+len(r.MissingTopics)+len(r.UnknownTopics)+
			len(r.MissingTitles)+len(r.DuplicateTitles)+len(r.DuplicateHrefs)+len(r.InvalidDocumentTypes) == 0
}

// Verify checks snap against the taxonomy. A nil taxonomy skips the
// membership checks.
func Verify(snap submission.Snapshot, tax Taxonomy, opts VerifyOptions) Report {
	r := Report{Session: snap.Session, Records: len(snap.Submissions), ExpectedRecords: opts.ExpectedCount}
	unknownAuthors := map[string]struct{}{}
	unknownTopics := map[string]struct{}{}
	titles := map[string]int{}
	hrefs := map[string]int{}

	for _, s := range snap.Submissions {
		if len(s.Authors) == 0 {
			r.MissingAuthors = append(r.MissingAuthors, s.Href)
		}
		for _, a := range s.Authors {
			if tax != nil && !tax.HasAuthor(a) {
				unknownAuthors[a] = struct{}{}
			}
		}
		if !opts.SkipTopics {
			switch {
			case len(s.DraftCategory) == 0 && s.DocumentType == "statement":
				r.PossiblyMissingTopics = append(r.PossiblyMissingTopics, s.Href)
			case len(s.DraftCategory) == 0:
				r.MissingTopics = append(r.MissingTopics, s.Href)
			}
			for _, c := range s.DraftCategory {
				if tax != nil && !tax.HasTopic(c) {
					unknownTopics[c] = struct{}{}
				}
			}
		}
		if s.Title == "" {
			r.MissingTitles = append(r.MissingTitles, s.Href)
		} else {
			titles[s.Title]++
		}
		hrefs[s.Href]++
		if !slices.Contains(ValidDocumentTypes, s.DocumentType) {
			r.InvalidDocumentTypes = append(r.InvalidDocumentTypes, s.Href)
		}
	}

	r.UnknownAuthors = sortedKeys(unknownAuthors)
	r.UnknownTopics = sortedKeys(unknownTopics)
	r.DuplicateTitles = repeated(titles)
	r.DuplicateHrefs = repeated(hrefs)
	return r
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func repeated(counts map[string]int) []string {
	var out []string
	for k, n := range counts {
		if n > 1 {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
