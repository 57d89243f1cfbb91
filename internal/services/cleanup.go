package services

import "github.com/dlclark/regexp2"

var (
	repeatedCommas = regexp2.MustCompile(`,{2,}`, regexp2.None)
	// Go's regexp has no back-references, hence regexp2.
	repeatedWords = regexp2.MustCompile(`\b([A-Za-z]+)(?:\s+\1\b)+`, regexp2.None)
)

// Cleanup collapses runs of commas and immediately repeated words in a finished response, e.g.
// "a,, b the the c" becomes "a, b the c". It returns text unchanged if a replacement fails.
func Cleanup(text string) string {
	out, err := repeatedCommas.Replace(text, ",", -1, -1)
	if err != nil {
		return text
	}
	out, err = repeatedWords.Replace(out, "$1", -1, -1)
	if err != nil {
		return text
	}
	return out
}
