// Package quiz extracts multiple-choice options from recognized question text
// and relates the remote answer back to them.
package quiz

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/arbovm/levenshtein"

	"go-quiz-helper/pkg/models"
)

// MinMatchSimilarity is the lowest normalized similarity accepted when the
// answer has to be matched to an option by text
const MinMatchSimilarity = 0.6

// optionLabel finds "A)", "A.", "A:" and "(A)" markers at a line or word start
var optionLabel = regexp.MustCompile(`(?m)(?:^|\s)\(?([A-H])[).:]`)

// ParseChoices returns the lettered options found in text. Labels must run
// consecutively from A; fewer than two options yields nil.
func ParseChoices(text string) []models.Choice {
	_, choices := Parse(text)
	return choices
}

// Parse splits text into the question stem and its lettered options. When no
// options are found the whole text is the stem.
func Parse(text string) (string, []models.Choice) {
	matches := optionLabel.FindAllStringSubmatchIndex(text, -1)

	type marker struct {
		label      string
		start, end int
	}
	var markers []marker
	next := byte('A')
	for _, m := range matches {
		letter := text[m[2]]
		if letter != next {
			continue
		}
		markers = append(markers, marker{label: string(letter), start: m[2], end: m[1]})
		next++
	}

	if len(markers) < 2 {
		return strings.TrimSpace(text), nil
	}

	choices := make([]models.Choice, 0, len(markers))
	for i, mk := range markers {
		end := len(text)
		if i+1 < len(markers) {
			end = markers[i+1].start
		}
		body := strings.TrimSpace(text[mk.end:end])
		body = strings.TrimSuffix(body, "(")
		choices = append(choices, models.Choice{Label: mk.label, Text: strings.TrimSpace(body)})
	}

	stem := text[:markers[0].start]
	stem = strings.TrimSuffix(strings.TrimRightFunc(stem, unicode.IsSpace), "(")
	return strings.TrimSpace(stem), choices
}

// MatchAnswer picks the option the answer refers to, either by label
// ("B", "b)", "Answer: B") or by closest text. It returns nil when nothing is
// close enough.
func MatchAnswer(answer string, choices []models.Choice) *models.Choice {
	if len(choices) == 0 {
		return nil
	}

	norm := normalize(answer)
	if norm == "" {
		return nil
	}

	if label := answerLabel(norm); label != "" {
		for i := range choices {
			if strings.EqualFold(choices[i].Label, label) {
				return &choices[i]
			}
		}
	}

	// Exact text, then the longest option quoted inside the answer
	padded := " " + norm + " "
	contained := -1
	for i := range choices {
		opt := normalize(choices[i].Text)
		if opt == "" {
			continue
		}
		if opt == norm {
			return &choices[i]
		}
		if strings.Contains(padded, " "+opt+" ") &&
			(contained < 0 || len(opt) > len(normalize(choices[contained].Text))) {
			contained = i
		}
	}
	if contained >= 0 {
		return &choices[contained]
	}

	best := -1
	bestScore := 0.0
	for i := range choices {
		opt := normalize(choices[i].Text)
		if opt == "" {
			continue
		}
		if score := Similarity(norm, opt); score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 || bestScore < MinMatchSimilarity {
		return nil
	}
	return &choices[best]
}

// Similarity is 1 minus the Levenshtein distance over the longer length
func Similarity(a, b string) float64 {
	longer := max(len([]rune(a)), len([]rune(b)))
	if longer == 0 {
		return 1
	}
	return 1 - float64(levenshtein.Distance(a, b))/float64(longer)
}

var answerPrefix = regexp.MustCompile(`^(?:the\s+)?(?:correct\s+)?(?:answer|option|choice)(?:\s+is)?\s*[:\-]?\s*`)

// answerLabel extracts a bare option letter from a normalized answer
func answerLabel(norm string) string {
	s := answerPrefix.ReplaceAllString(norm, "")
	s = strings.Trim(s, "() .:")
	if len(s) == 1 && s[0] >= 'a' && s[0] <= 'h' {
		return strings.ToUpper(s)
	}
	return ""
}

// normalize lowercases, collapses whitespace and drops trailing punctuation
func normalize(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return strings.TrimRightFunc(s, unicode.IsPunct)
}
