package extract

import (
	"sort"
	"strings"

	"github.com/JakeFAU/site-ingest/internal/crawler"
	"github.com/JakeFAU/site-ingest/internal/textutil"
)

const (
	fingerprintHeadingChars = 50
	fingerprintSeparator    = "|"
)

// Fingerprint summarizes a page by its section headings: each truncated,
// sorted, then joined. Pages whose headings form the same multiset share a
// fingerprint regardless of order. Body text is ignored.
func Fingerprint(sections []crawler.RawSection) string {
	headings := make([]string, len(sections))
	for i, s := range sections {
		headings[i] = textutil.Truncate(s.Heading, fingerprintHeadingChars)
	}
	sort.Strings(headings)
	return strings.Join(headings, fingerprintSeparator)
}
