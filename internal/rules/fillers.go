package rules

import (
	"regexp"
	"slices"
	"strings"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
)

// DefaultFillers are the hedges and fillers the practice screen warns about.
var DefaultFillers = []string{
	"um",
	"uh",
	"er",
	"like",
	"you know",
	"I think maybe",
	"kind of",
	"sort of",
	"basically",
	"actually",
}

// FillerCounter counts filler phrases in an answer.
type FillerCounter struct {
	phrases []string
	res     []*regexp.Regexp
}

func NewFillerCounter(phrases []string) *FillerCounter {
	if len(phrases) == 0 {
		phrases = DefaultFillers
	}
	c := &FillerCounter{}
	for _, phrase := range phrases {
		phrase = strings.TrimSpace(phrase)
		if phrase == "" {
			continue
		}
		words := strings.Fields(regexp.QuoteMeta(phrase))
		c.phrases = append(c.phrases, phrase)
		c.res = append(c.res, regexp.MustCompile(`(?i)\b`+strings.Join(words, `\s+`)+`\b`))
	}
	return c
}

// Count reports every phrase found in text, most frequent first.
func (c *FillerCounter) Count(text string) []domain.FillerUsage {
	var usage []domain.FillerUsage
	for i, re := range c.res {
		if n := len(re.FindAllStringIndex(text, -1)); n > 0 {
			usage = append(usage, domain.FillerUsage{Phrase: c.phrases[i], Count: n})
		}
	}
	slices.SortStableFunc(usage, func(a, b domain.FillerUsage) int {
		return b.Count - a.Count
	})
	return usage
}
