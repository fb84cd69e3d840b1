// Package langdetect guesses the language of submission text when the page
// carried no explicit language label.
package langdetect

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

// UN official languages, the only ones submissions are published in.
var officialLanguages = []lingua.Language{
	lingua.English,
	lingua.French,
	lingua.Spanish,
	lingua.Arabic,
	lingua.Chinese,
	lingua.Russian,
}

// Detector wraps a lingua detector restricted to the UN languages.
type Detector struct {
	detector lingua.LanguageDetector
	minChars int
}

// New builds a Detector. Texts shorter than minChars runes are not guessed.
func New(minChars int) *Detector {
	return &Detector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(officialLanguages...).
			WithMinimumRelativeDistance(0.1).
			Build(),
		minChars: minChars,
	}
}

// Detect returns the English name of the language of text, or false when
// the text is too short or ambiguous.
func (d *Detector) Detect(text string) (string, bool) {
	if d == nil {
		return "", false
	}
	text = strings.TrimSpace(text)
	if len([]rune(text)) < d.minChars {
		return "", false
	}
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	return lang.String(), true
}

// Fill returns langs unchanged when non-empty, otherwise a one-element
// slice holding the first detectable language among texts.
func (d *Detector) Fill(langs []string, texts ...string) []string {
	if len(langs) > 0 {
		return langs
	}
	for _, t := range texts {
		if name, ok := d.Detect(t); ok {
			return []string{name}
		}
	}
	return langs
}
