package delivery

import (
	"strconv"
	"strings"

	"github.com/prepworks/prepworks-engine/internal/catalog"
)

// Evaluate decides correctness of a submitted answer. Skips are always
// incorrect. Fill-in-blanks compares the submitted strings against the
// stored answers as case-insensitive sets; choice types compare the
// submitted option indices against the options flagged correct.
func Evaluate(q catalog.Question, answer []string, skipped bool) bool {
	if skipped {
		return false
	}
	switch q.Type {
	case catalog.TypeFillInBlanks:
		return equalFoldSets(answer, q.Answers)
	default:
		var correct []string
		for i, opt := range q.Options {
			if opt.IsCorrect {
				correct = append(correct, strconv.Itoa(i))
			}
		}
		return equalFoldSets(answer, correct)
	}
}

func equalFoldSets(a, b []string) bool {
	if len(b) == 0 {
		return false
	}
	seen := map[string]int{}
	for _, s := range a {
		seen[strings.ToLower(strings.TrimSpace(s))]++
	}
	for _, s := range b {
		seen[strings.ToLower(strings.TrimSpace(s))]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}
