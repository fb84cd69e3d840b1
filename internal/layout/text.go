package layout

import (
	"regexp"
	"strings"
)

// CleanText removes line breaks and tabs and halves double spaces.
func CleanText(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.NewReplacer("\n", "", "\r", "", "\t", "").Replace(raw)
	return strings.ReplaceAll(s, "  ", " ")
}

var languageNames = map[string]string{
	"english":  "English",
	"french":   "French",
	"français": "French",
	"francais": "French",
	"spanish":  "Spanish",
	"español":  "Spanish",
	"espanol":  "Spanish",
	"arabic":   "Arabic",
	"chinese":  "Chinese",
	"russian":  "Russian",
}

var trailingLanguage = regexp.MustCompile(
	`(?i)\s*[(\[\-–,/]?\s*(english|french|français|francais|spanish|español|espanol|arabic|chinese|russian)\s*[)\]]?\s*$`)

// LanguageName maps a language label to its English name. Unknown labels
// are returned trimmed.
func LanguageName(label string) string {
	label = strings.TrimSpace(label)
	if name, ok := languageNames[strings.ToLower(label)]; ok {
		return name
	}
	return label
}

// stripLanguageTags removes trailing language labels such as "(English)"
// or "- Français" and returns them in reading order.
func stripLanguageTags(text string) (string, []string) {
	var langs []string
	for {
		loc := trailingLanguage.FindStringSubmatchIndex(text)
		if loc == nil {
			break
		}
		langs = append([]string{LanguageName(text[loc[2]:loc[3]])}, langs...)
		text = text[:loc[0]]
	}
	return strings.TrimSpace(text), langs
}

var submissionPrefix = regexp.MustCompile(`(?i)^\s*(submission|statement|input|comments?)\s+(by|from|of)\s+`)

func stripSubmissionPrefix(text string) string {
	return strings.TrimSpace(submissionPrefix.ReplaceAllString(text, ""))
}
