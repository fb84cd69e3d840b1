// Package extract turns fetched submission pages into candidate document
// links with the textual context the layout parsers need.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"slices"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

var pdfPattern = regexp.MustCompile(`(?i)\.pdf($|#.*$|\?)`)

// Selectors locate collapsible groups on a page.
type Selectors struct {
	Group   string
	Label   string
	Content string
}

// DefaultSelectors match the accordion markup used by the source site.
var DefaultSelectors = Selectors{
	Group:   "li.accordion-item",
	Label:   ".accordion-title",
	Content: ".accordion-content",
}

// Options narrows which groups contribute candidates.
type Options struct {
	// IncludeGroups is an allow-list of group labels. Empty admits all groups.
	IncludeGroups []string
	// GroupPattern admits additional labels when IncludeGroups is set.
	GroupPattern *regexp.Regexp
	// PreventDuplicateGroups skips any group whose label was already seen.
	PreventDuplicateGroups bool
	Selectors              Selectors
}

func (o Options) admits(label string) bool {
	if len(o.IncludeGroups) == 0 && o.GroupPattern == nil {
		return true
	}
	if slices.Contains(o.IncludeGroups, label) {
		return true
	}
	return o.GroupPattern != nil && o.GroupPattern.MatchString(label)
}

// Candidates extracts one RawCandidate per PDF link inside the admitted
// groups, in document order. A page without groups yields an empty slice.
func Candidates(page []byte, baseURL string, opts Options) ([]submission.RawCandidate, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	sel := opts.Selectors
	if sel.Group == "" {
		sel = DefaultSelectors
	}

	out := []submission.RawCandidate{}
	seen := make(map[string]struct{})
	doc.Find(sel.Group).Each(func(_ int, group *goquery.Selection) {
		label := collapse(group.Find(sel.Label).First().Text())
		if label != "" && opts.PreventDuplicateGroups {
			if _, dup := seen[label]; dup {
				return
			}
			seen[label] = struct{}{}
		}
		if !opts.admits(label) {
			return
		}
		content := group.Find(sel.Content).First()
		if content.Length() == 0 {
			return
		}
		root := content.Get(0)
		content.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			if !pdfPattern.MatchString(href) {
				return
			}
			abs, err := base.Parse(href)
			if err != nil {
				return
			}
			node := a.Get(0)
			section, subsection := headingContext(node, root)
			out = append(out, submission.RawCandidate{
				Href:                 abs.String(),
				LinkText:             nodeText(node),
				SurroundingParagraph: surroundingParagraph(node),
				SectionName:          section,
				SubsectionName:       subsection,
				GroupName:            label,
				PageURL:              baseURL,
				Order:                int64(len(out)),
			})
		})
	})
	return out, nil
}

// surroundingParagraph picks the prose describing a link. Links listed
// under a paragraph (the element just before them is a list item) take that
// paragraph; inline links take their enclosing paragraph.
func surroundingParagraph(link *html.Node) string {
	if prev := previousElement(link); prev != nil && prev.Data == "li" {
		if p := previousElementNamed(link, "p"); p != nil {
			if text := nodeText(p); text != "" {
				return text
			}
		}
	}
	return nodeText(ancestorNamed(link, "p"))
}
