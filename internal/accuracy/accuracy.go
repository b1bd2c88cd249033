// Package accuracy scores recognized text against the text a caller expected,
// for calibrating capture conditions and engine settings.
package accuracy

import (
	"math"
	"strings"
	"unicode"

	"github.com/arbovm/levenshtein"
	"github.com/codycollier/wer"

	"go-quiz-helper/pkg/models"
)

// Score compares recognized with expected. Both sides are case-folded and
// whitespace-collapsed first, so layout differences from the engine do not
// count as errors.
func Score(expected, recognized string) models.Accuracy {
	exp := normalize(expected)
	rec := normalize(recognized)

	cer := CharacterErrorRate(exp, rec)
	return models.Accuracy{
		ExpectedText: expected,
		WER:          round(WordErrorRate(exp, rec)),
		CER:          round(cer),
		MatchScore:   round(math.Max(0, 1-cer) * 100),
	}
}

// WordErrorRate is the word-level edit distance over the reference length.
// An empty reference scores 0 against an empty candidate and 1 otherwise.
func WordErrorRate(reference, candidate string) float64 {
	ref := strings.Fields(reference)
	cand := strings.Fields(candidate)
	if len(ref) == 0 {
		if len(cand) == 0 {
			return 0
		}
		return 1
	}
	rate, _ := wer.WER(ref, cand)
	return rate
}

// CharacterErrorRate is the rune-level edit distance over the reference
// length, with the same empty-reference convention as WordErrorRate.
func CharacterErrorRate(reference, candidate string) float64 {
	refLen := len([]rune(reference))
	if refLen == 0 {
		if candidate == "" {
			return 0
		}
		return 1
	}
	return float64(levenshtein.Distance(reference, candidate)) / float64(refLen)
}

func normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}
