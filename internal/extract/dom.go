package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// nodeText joins the text nodes under n with single spaces.
func nodeText(n *html.Node) string {
	if n == nil {
		return ""
	}
	var parts []string
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			if t := strings.TrimSpace(cur.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapse(strings.Join(parts, " "))
}

// collapse folds every whitespace run, including non-breaking spaces, into one space.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// previousElement returns the element that precedes n in document order:
// the deepest last descendant of the previous sibling, or the parent.
func previousElement(n *html.Node) *html.Node {
	for cur := n; cur != nil; {
		var prev *html.Node
		if cur.PrevSibling != nil {
			prev = cur.PrevSibling
			for prev.LastChild != nil {
				prev = prev.LastChild
			}
		} else {
			prev = cur.Parent
		}
		if prev == nil {
			return nil
		}
		if prev.Type == html.ElementNode {
			return prev
		}
		cur = prev
	}
	return nil
}

// previousElementNamed walks backwards in document order to the first
// element called name.
func previousElementNamed(n *html.Node, name string) *html.Node {
	for cur := previousElement(n); cur != nil; cur = previousElement(cur) {
		if cur.Data == name {
			return cur
		}
	}
	return nil
}

func ancestorNamed(n *html.Node, name string) *html.Node {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && cur.Data == name {
			return cur
		}
	}
	return nil
}

func hasDescendant(n *html.Node, name string) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == name || hasDescendant(c, name)) {
			return true
		}
	}
	return false
}
