package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/site-ingest/internal/dom"
)

// MinContentChars is the visible text a sub-page's main region needs to be
// considered real content.
const MinContentChars = 100

var notFoundPhrases = []string{"page not found", "this page could not be found"}

// SoftNotFound reports whether a page that loaded successfully is really an
// empty or error page: too little visible text in <main> (or <body>), or
// "not found" phrasing.
func SoftNotFound(doc *dom.Document) bool {
	if doc == nil {
		return true
	}
	text := strings.TrimSpace(mainRegion(doc, false).InnerText())
	if utf8.RuneCountInString(text) < MinContentChars {
		return true
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "404") && strings.Contains(lower, "not found") {
		return true
	}
	for _, phrase := range notFoundPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
