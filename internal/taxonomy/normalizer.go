package taxonomy

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/JakeFAU/inc-submissions-harvester/internal/metrics"
	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

// Miss kinds.
const (
	KindAuthor = "author"
	KindTopic  = "topic"
)

var andSplit = regexp.MustCompile(`(?i)\s+and\s+`)

// Normalizer maps parsed drafts onto a taxonomy Context.
type Normalizer struct {
	ctx    *Context
	logger *zap.Logger
}

// NewNormalizer binds a Normalizer to one run's taxonomy.
func NewNormalizer(ctx *Context, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		ctx:    ctx,
		logger: logger.Named("normalizer"),
	}
}

// Normalize converts md into a NormalizedSubmission for session. Values that
// do not resolve are dropped and returned as misses.
func (n *Normalizer) Normalize(md submission.ParsedMetadata, session string) (submission.NormalizedSubmission, []submission.TaxonomyMiss) {
	var misses []submission.TaxonomyMiss
	authors, authorMisses := n.authors(md)
	misses = append(misses, authorMisses...)
	topics, keyElements, topicMisses := n.topics(md)
	misses = append(misses, topicMisses...)

	for _, m := range misses {
		metrics.ObserveTaxonomyMiss(m.Kind)
		n.logger.Warn("taxonomy miss",
			zap.String("kind", m.Kind),
			zap.String("field", m.Value),
			zap.String("url", m.Href),
		)
	}

	return submission.NormalizedSubmission{
		Title:         n.Title(md.FileURL),
		Description:   n.cleanDescription(md.Description),
		Authors:       authors,
		DraftCategory: topics,
		KeyElements:   keyElements,
		DocumentType:  md.DocumentType,
		Href:          md.FileURL,
		Session:       session,
		Languages:     md.Languages,
		UploadDate:    md.UploadDate,
		IsReplacement: md.IsReplacement,
		Order:         md.Order,
	}, misses
}

// authors applies the manual href override, then taxonomy matching, then
// coalition expansion.
func (n *Normalizer) authors(md submission.ParsedMetadata) ([]string, []submission.TaxonomyMiss) {
	if mapped, ok := n.ctx.hrefAuthors[md.FileURL]; ok {
		return append([]string{}, mapped...), nil
	}

	source := md.GroupOfStates
	if source == "" {
		source = md.Member
	}
	var (
		matched []string
		misses  []submission.TaxonomyMiss
	)
	for _, piece := range strings.Split(source, ",") {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		if canonical, ok := n.ctx.authorIndex[Key(piece)]; ok {
			matched = appendUnique(matched, canonical)
			continue
		}
		parts := andSplit.Split(piece, -1)
		if len(parts) == 1 {
			misses = append(misses, submission.TaxonomyMiss{Kind: KindAuthor, Value: piece, Href: md.FileURL})
			continue
		}
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if canonical, ok := n.ctx.authorIndex[Key(part)]; ok {
				matched = appendUnique(matched, canonical)
			} else if part != "" {
				misses = append(misses, submission.TaxonomyMiss{Kind: KindAuthor, Value: part, Href: md.FileURL})
			}
		}
	}

	expanded := []string{}
	for _, a := range matched {
		if members, ok := n.ctx.coalitions[a]; ok {
			expanded = appendUnique(expanded, members...)
		}
		expanded = appendUnique(expanded, a)
	}
	return expanded, misses
}

// topics applies free-text overrides, then resolves each category or
// subcategory to its canonical category.
func (n *Normalizer) topics(md submission.ParsedMetadata) (topics, keyElements []string, misses []submission.TaxonomyMiss) {
	topics = []string{}
	if md.Article == "" {
		return topics, nil, nil
	}
	candidates := []string{md.Article}
	if remapped, ok := n.ctx.topicRemap[Key(md.Article)]; ok {
		candidates = remapped
	}
	for _, c := range candidates {
		category, ok := n.ctx.topicIndex[Key(c)]
		if !ok {
			misses = append(misses, submission.TaxonomyMiss{Kind: KindTopic, Value: c, Href: md.FileURL})
			continue
		}
		topics = appendUnique(topics, category)
		if article := n.ctx.categories[category].Article; article != "" {
			keyElements = appendUnique(keyElements, n.ctx.KeyElements[article]...)
		}
	}
	return topics, keyElements, misses
}

// Title derives a display title from the document file name:
// "Submission_by_JAPAN.pdf" becomes "Submission By Japan".
func (n *Normalizer) Title(href string) string {
	name := href
	if u, err := url.Parse(href); err == nil {
		name = u.Path
	}
	name = path.Base(name)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if i := strings.Index(strings.ToLower(name), ".pdf"); i >= 0 {
		name = name[:i]
	} else if i := strings.Index(name, "."); i >= 0 {
		name = name[:i]
	}
	name = strings.Join(strings.Fields(strings.ReplaceAll(name, "_", " ")), " ")
	return titleCase(name)
}

func (n *Normalizer) cleanDescription(s string) string {
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), " ")
	if s == "" {
		return ""
	}
	return titleCase(s)
}

// titleCase builds a Caser per call; a Caser is not safe for concurrent use.
func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}
