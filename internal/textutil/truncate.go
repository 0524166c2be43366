// Package textutil holds rune-aware string helpers shared by extraction and
// summarization.
package textutil

import "unicode/utf8"

// Truncate keeps at most n runes of s. A negative n keeps everything.
func Truncate(s string, n int) string {
	if n < 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
