package layout

import (
	"regexp"
	"strings"
)

// Authorship is the member/coalition split of an author field.
type Authorship struct {
	Member        string
	GroupOfStates string
}

var (
	onBehalfOf     = regexp.MustCompile(`(?i)\s*on behalf of the\s*|\s*on behalf of\s*`)
	listJoin       = regexp.MustCompile(`(?i)\sand\s|,and\s`)
	coalitionNames = regexp.MustCompile(`(?i)^(?:european union|the group of.*|group of.*|` +
		`the allicance of.*|the alliance of.*|alliance of.*|` +
		`the group of states of.*|group of states of.*|.*as co-chairs.*)`)
)

// andNamedCountries contain "and" in their own name and are never lists.
var andNamedCountries = []string{
	"bosnia and herzegovina",
	"antigua and barbuda",
	"trinidad and tobago",
	"saint vincent and the grenadines",
	"saint kitts and nevis",
	"sao tome and principe",
	"heard island and mcdonald islands",
}

// ResolveAuthorship applies the rules in order: an "on behalf of" clause
// splits member from coalition; a comma or "and" list is a coalition; a
// known coalition name is a coalition; anything else is a single member.
func ResolveAuthorship(text string) Authorship {
	text = strings.TrimSpace(text)
	if text == "" {
		return Authorship{}
	}
	if parts := onBehalfOf.Split(text, -1); len(parts) > 1 {
		return Authorship{
			Member:        strings.TrimSpace(parts[0]),
			GroupOfStates: strings.TrimSpace(parts[len(parts)-1]),
		}
	}
	if isList(text) {
		return Authorship{GroupOfStates: text}
	}
	if coalitionNames.MatchString(text) {
		return Authorship{GroupOfStates: text}
	}
	return Authorship{Member: text}
}

// isList reports a comma or "and" join once country names that contain
// "and" are masked out.
func isList(text string) bool {
	masked := strings.ToLower(text)
	for _, name := range andNamedCountries {
		masked = strings.ReplaceAll(masked, name, "country")
	}
	return strings.Contains(masked, ",") || listJoin.MatchString(masked)
}
