// Package similarity scores how closely a transcript matches the phrase the
// learner was asked to say.
//
// Scoring is a cheap bag-of-words overlap over normalized text rather than an
// edit distance: it tolerates small recognition noise and ignores case,
// punctuation and diacritics.
package similarity

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Threshold is the minimum score at which a transcript counts as an attempt
// at the expected phrase.
const Threshold = 0.70

// Normalize lowercases s, strips punctuation and symbols, folds diacritics
// ("cómo" becomes "como") and collapses runs of whitespace to single spaces.
func Normalize(s string) string {
	folded, _, err := transform.String(foldChain(), s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// foldChain decomposes, drops combining marks and recomposes. A fresh chain is
// built per call because transform.Chain is stateful.
func foldChain() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Tokens returns the whitespace-separated tokens of the normalized form of s.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// Score returns the similarity of transcript to expected in [0,1].
//
// Identical normalized strings score 1.0. Otherwise the score is the number
// of transcript tokens that occur anywhere in the expected phrase divided by
// the longer token count. Repeated tokens are not deduplicated.
func Score(transcript, expected string) float64 {
	a, b := Normalize(transcript), Normalize(expected)
	if a == b {
		return 1.0
	}
	ta, tb := strings.Fields(a), strings.Fields(b)
	denom := max(len(ta), len(tb))
	if denom == 0 || len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	want := make(map[string]struct{}, len(tb))
	for _, t := range tb {
		want[t] = struct{}{}
	}
	matches := 0
	for _, t := range ta {
		if _, ok := want[t]; ok {
			matches++
		}
	}
	return float64(matches) / float64(denom)
}

// Passes reports whether score meets threshold. A non-positive threshold
// means [Threshold].
func Passes(score, threshold float64) bool {
	if threshold <= 0 {
		threshold = Threshold
	}
	return score >= threshold
}

// Closest returns the candidate that best matches word, comparing normalized
// forms. Candidates sharing a Double Metaphone code with word are preferred;
// among them (or among all candidates when none share a code) the highest
// Jaro-Winkler similarity wins. It returns "" when candidates is empty.
func Closest(word string, candidates []string) string {
	w := Normalize(word)
	if w == "" || len(candidates) == 0 {
		return ""
	}
	wp, ws := matchr.DoubleMetaphone(w)

	best, bestScore := "", -1.0
	bestPhonetic := false
	for _, c := range candidates {
		n := Normalize(c)
		if n == "" {
			continue
		}
		cp, cs := matchr.DoubleMetaphone(n)
		phonetic := codesOverlap(wp, ws, cp, cs)
		score := matchr.JaroWinkler(w, n, false)

		switch {
		case phonetic && !bestPhonetic:
		case phonetic == bestPhonetic && score > bestScore:
		default:
			continue
		}
		best, bestScore, bestPhonetic = c, score, phonetic
	}
	return best
}

func codesOverlap(ap, as, bp, bs string) bool {
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}
