package extract

import "golang.org/x/net/html"

func isHeading(n *html.Node) bool {
	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

// isPseudoHeading matches a paragraph used as a bold subheading: it holds a
// strong element and no link.
func isPseudoHeading(n *html.Node) bool {
	return n.Data == "p" && hasDescendant(n, "strong") && !hasDescendant(n, "a")
}

// headingContext resolves the nearest section heading and bold subheading
// for link. Each frame of the worklist scans the previous siblings of one
// node; the next frame is that node's parent. The walk ends when both values
// are known or the parent would be root.
func headingContext(link, root *html.Node) (section, subsection string) {
	for cur := link; cur != nil && cur != root; cur = cur.Parent {
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if sib.Type != html.ElementNode {
				continue
			}
			if subsection == "" && isPseudoHeading(sib) {
				subsection = nodeText(sib)
				continue
			}
			if section == "" && isHeading(sib) {
				section = nodeText(sib)
			}
			if section != "" && subsection != "" {
				return section, subsection
			}
		}
	}
	return section, subsection
}
