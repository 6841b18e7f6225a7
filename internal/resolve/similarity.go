package resolve

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
)

// Trigram returns the pg_trgm similarity of a and b: the Jaccard index of
// their word trigram sets, words lower-cased and padded with two leading
// blanks and one trailing blank.
func Trigram(a, b string) float64 {
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(ta)+len(tb)-shared)
}

func trigrams(s string) map[string]struct{} {
	out := make(map[string]struct{})
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		padded := []rune("  " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			out[string(padded[i:i+3])] = struct{}{}
		}
	}
	return out
}

// TextSimilarity is the normalized Levenshtein similarity of two phrases
// after case and whitespace folding.
func TextSimilarity(a, b string) float64 {
	a, b = foldText(a), foldText(b)
	if a == "" || b == "" {
		return 0
	}
	return levenshtein.Similarity(a, b, nil)
}

func foldText(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// NormalizeDesignation reduces a printed bill designation to upper-case
// letters and digits, so "H.R. 1", "H R 1" and "hr1" compare equal.
func NormalizeDesignation(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var citationRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\broll\s*(?:no\.?|call(?:\s+(?:no\.?|number))?)\s*:?\s*(\d+)`),
	regexp.MustCompile(`(?i)\brecord\s+vote\s+(?:number|no\.?)\s*:?\s*(\d+)`),
}

// CitesRollCall reports whether an action description cites roll call n,
// as in "(Roll no. 182)" or "Record Vote Number: 110".
func CitesRollCall(description string, n int) bool {
	for _, re := range citationRes {
		for _, m := range re.FindAllStringSubmatch(description, -1) {
			if got, err := strconv.Atoi(m[1]); err == nil && got == n {
				return true
			}
		}
	}
	return false
}
