package expand

import (
	"strings"

	"golang.org/x/text/language"
)

// frenchIndicators are common French words counted by DetectLanguage.
// Two or more matches classify the query as French.
var frenchIndicators = map[string]struct{}{
	"le": {}, "la": {}, "les": {}, "un": {}, "une": {}, "des": {},
	"de": {}, "du": {}, "et": {}, "ou": {}, "qui": {}, "que": {},
	"dans": {}, "pour": {}, "avec": {}, "chez": {}, "sur": {},
	"est": {}, "sont": {}, "directeur": {}, "responsable": {},
	"entreprise": {}, "société": {}, "travaille": {},
}

// DetectLanguage classifies text as "fra" or "eng" with a lexical
// heuristic: at least two French indicator words mean French.
func DetectLanguage(text string) string {
	matches := 0
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if _, ok := frenchIndicators[strings.Trim(word, ".,;:!?'\"")]; ok {
			matches++
			if matches >= 2 {
				return "fra"
			}
		}
	}
	return "eng"
}

var supported = language.NewMatcher([]language.Tag{
	language.English, // first entry is the fallback
	language.French,
})

// ResolveLanguage canonicalizes an optional caller-provided language hint
// ("fr", "fr-FR", "french" is not accepted, BCP 47 only) against the
// supported set, falling back to detection over the query text.
func ResolveLanguage(hint, text string) string {
	if hint != "" {
		if tag, err := language.Parse(hint); err == nil {
			matched, _, conf := supported.Match(tag)
			if conf >= language.High {
				base, _ := matched.Base()
				if base.String() == "fr" {
					return "fra"
				}
				return "eng"
			}
		}
	}
	return DetectLanguage(text)
}
