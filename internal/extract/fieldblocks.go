package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

// FileFieldLabel is the field whose link becomes the candidate href.
const FileFieldLabel = "File"

// FieldBlocks extracts one candidate per comment block on a contact-group
// page. Every labeled field is captured; interpreting them is left to the
// layout parser.
func FieldBlocks(page []byte, pageURL, group string) ([]submission.RawCandidate, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	comments := doc.Find("div#comments").First()
	if comments.Length() == 0 {
		return nil, fmt.Errorf("%s: %w", pageURL, submission.ErrNoComments)
	}
	blocks := comments.Find("div.comment")
	if blocks.Length() == 0 {
		return nil, fmt.Errorf("%s: no comment blocks: %w", pageURL, submission.ErrNoComments)
	}

	out := make([]submission.RawCandidate, 0, blocks.Length())
	blocks.Each(func(i int, block *goquery.Selection) {
		c := submission.RawCandidate{
			GroupName: group,
			PageURL:   pageURL,
			Order:     int64(i),
		}
		block.Find("div.field-label").Each(func(_ int, label *goquery.Selection) {
			c.Fields = append(c.Fields, readField(label, base))
		})
		if f, ok := c.Field(FileFieldLabel); ok {
			c.Href = f.Href
			c.LinkText = f.Value
		}
		out = append(out, c)
	})
	return out, nil
}

func readField(label *goquery.Selection, base *url.URL) submission.Field {
	f := submission.Field{Label: strings.TrimSuffix(collapse(label.Text()), ":")}
	next := nextSiblingDiv(label.Get(0))
	if next == nil {
		f.Detached = true
		return f
	}
	value := goquery.NewDocumentFromNode(next).Selection
	if inner := value.Find("div").First(); inner.Length() > 0 {
		f.Value = collapse(inner.Text())
	} else {
		f.Value = collapse(value.Text())
	}
	if href, ok := value.Find("a[href]").First().Attr("href"); ok {
		if abs, err := base.Parse(strings.TrimSpace(href)); err == nil {
			f.Href = abs.String()
		}
	}
	return f
}

func nextSiblingDiv(n *html.Node) *html.Node {
	for sib := n.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type == html.ElementNode && sib.Data == "div" {
			return sib
		}
	}
	return nil
}
