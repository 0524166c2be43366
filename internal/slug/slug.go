// Package slug turns headings into URL-fragment friendly identifiers.
package slug

import (
	"strconv"
	"strings"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/unicode/norm"
)

// SectionPrefix starts every synthesized section anchor.
const SectionPrefix = "#section-"

// Make transliterates s to ASCII, lowercases it and joins its alphanumeric
// runs with hyphens. Symbols with no transliteration are dropped, so the
// result may be "".
func Make(s string) string {
	folded := unidecode.Unidecode(norm.NFKC.String(s))

	var b strings.Builder
	b.Grow(len(folded))
	hyphen := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if hyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			hyphen = false
			b.WriteRune(r)
		default:
			hyphen = true
		}
	}
	return b.String()
}

// Anchor resolves the section_id of a section. An extracted anchor wins;
// otherwise the heading is slugged, and an unsluggable heading falls back to
// the section's position.
func Anchor(extracted, heading string, index int) string {
	if extracted != "" {
		return extracted
	}
	if s := Make(heading); s != "" {
		return SectionPrefix + s
	}
	return SectionPrefix + strconv.Itoa(index)
}
