package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

var contactGroupPattern = regexp.MustCompile(`contactgroup\d{1,2}`)

// ContactGroups lists the sub-pages linked from the contact-group index.
// Headings that look like contact groups but carry no link are returned in
// skipped so the caller can log them.
func ContactGroups(page []byte, baseURL string) (groups []submission.ContactGroup, skipped []string, err error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("div#ContactGroups h4").Each(func(_ int, h *goquery.Selection) {
		text := collapse(h.Text())
		key := strings.ToLower(strings.ReplaceAll(text, " ", ""))
		if !contactGroupPattern.MatchString(key) {
			return
		}
		href, ok := h.Find("a[href]").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			skipped = append(skipped, text)
			return
		}
		abs, perr := base.Parse(strings.TrimSpace(href))
		if perr != nil {
			skipped = append(skipped, text)
			return
		}
		groups = append(groups, submission.ContactGroup{
			Text:  groupName(text),
			URL:   abs.String(),
			Index: len(groups),
		})
	})
	return groups, skipped, nil
}

// groupName turns "Contact Group 1 >" into "contact_group_1".
func groupName(text string) string {
	name := strings.TrimSpace(strings.ReplaceAll(text, " >", ""))
	name = strings.TrimSuffix(name, ">")
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}
