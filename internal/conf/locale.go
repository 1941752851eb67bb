// conf/locale.go language handling for label and time value formatting.
//
// The Wikidata termbox supports far more languages than we can sensibly
// enumerate here, so instead of a fixed table we validate codes with
// x/text and normalize them to their canonical BCP 47 form. Wikidata
// accepts lowercase codes ("en", "de-at", "pt-br").
package conf

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// NormalizeLanguage validates a language code and returns it in the
// lowercase form the Wikidata API expects.
func NormalizeLanguage(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("empty language code")
	}

	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("unsupported language code %q: %w", code, err)
	}

	return strings.ToLower(tag.String()), nil
}

// ResolveLanguage picks the best supported language for an Accept-Language
// header, falling back to the given default when nothing matches.
func ResolveLanguage(acceptLanguage, fallback string) string {
	if acceptLanguage == "" {
		return fallback
	}

	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return fallback
	}

	normalized, err := NormalizeLanguage(tags[0].String())
	if err != nil {
		return fallback
	}
	return normalized
}
