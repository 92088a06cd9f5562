package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
)

// Rule rewrites answer text. changed reports whether output differs from input.
type Rule interface {
	Apply(input string) (output string, changed bool)
}

// Parser turns one rules-file line into a Rule.
type Parser interface {
	CanParse(line string) bool
	Parse(line string) (Rule, error)
}

// Normalizer cleans spoken answers before they are scored. Built-in rules
// drop stuttered words and tidy whitespace; file rules run after them.
type Normalizer struct {
	rules     []Rule
	loopLimit int
}

func NewNormalizer(rules []Rule, loopLimit int) *Normalizer {
	if loopLimit <= 0 {
		loopLimit = 30
	}
	all := append([]Rule{stutterRule{}, spacingRule{}}, rules...)
	return &Normalizer{rules: all, loopLimit: loopLimit}
}

// Load reads rules from path. A missing or empty path yields the built-in rules only.
func Load(path string, loopLimit int, parsers []Parser, logger *log.Logger) (*Normalizer, error) {
	if logger == nil {
		logger = log.Default()
	}
	if len(parsers) == 0 {
		parsers = DefaultParsers()
	}
	if strings.TrimSpace(path) == "" {
		return NewNormalizer(nil, loopLimit), nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("rules file not found, using built-in rules", "path", path)
			return NewNormalizer(nil, loopLimit), nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	parsed, err := Parse(string(contents), parsers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	logger.Debug("rules loaded", "path", path, "count", len(parsed))
	return NewNormalizer(parsed, loopLimit), nil
}

// Apply runs every rule until the text stops changing or the loop limit is hit.
func (n *Normalizer) Apply(text string) (string, error) {
	result := text
	for range n.loopLimit {
		changed := false
		for _, rule := range n.rules {
			if next, ok := rule.Apply(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return result, nil
}

// Parse compiles a rules file. Blank lines and # comments are skipped.
func Parse(contents string, parsers []Parser) ([]Rule, error) {
	lines := strings.Split(contents, "\n")
	parsed := make([]Rule, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule, err := parseLine(line, parsers)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		parsed = append(parsed, rule)
	}
	return parsed, nil
}

func parseLine(line string, parsers []Parser) (Rule, error) {
	for _, parser := range parsers {
		if parser.CanParse(line) {
			return parser.Parse(line)
		}
	}
	return nil, errors.New("unsupported rule format")
}

// DefaultParsers understands sed-style s/re/repl/flags and "from => to" lines.
func DefaultParsers() []Parser {
	return []Parser{sedParser{}, phraseParser{}}
}

type phraseParser struct{}

func (phraseParser) CanParse(line string) bool {
	return strings.Contains(line, "=>")
}

func (phraseParser) Parse(line string) (Rule, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("phrase rule source cannot be empty")
	}
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(from) + `\b`)
	if err != nil {
		return nil, fmt.Errorf("invalid phrase: %w", err)
	}
	return replaceRule{re: re, replacement: strings.TrimSpace(to), global: true}, nil
}

type sedParser struct{}

func (sedParser) CanParse(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordOrSpace(line[1])
}

func (sedParser) Parse(line string) (Rule, error) {
	delim := line[1]
	pattern, pos, err := readDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, pos, err := readDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	prefix, global, err := sedFlags(strings.TrimSpace(line[pos:]))
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(prefix + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return replaceRule{re: re, replacement: replacement, global: global}, nil
}

// sedFlags maps i/g/m/s flags onto a Go regexp prefix. Matching is always
// case-insensitive since spoken answers carry no reliable casing.
func sedFlags(flags string) (prefix string, global bool, err error) {
	inline := "i"
	for _, flag := range flags {
		switch flag {
		case 'i', ' ':
		case 'g':
			global = true
		case 'm', 's':
			if !strings.ContainsRune(inline, flag) {
				inline += string(flag)
			}
		default:
			return "", false, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}
	return "(?" + inline + ")", global, nil
}

type replaceRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func (r replaceRule) Apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	expanded := r.re.ExpandString(nil, r.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

// stutterRule collapses immediately repeated words ("I I think" -> "I think").
type stutterRule struct{}

func (stutterRule) Apply(input string) (string, bool) {
	words := strings.Fields(input)
	if len(words) < 2 {
		return input, false
	}
	kept := words[:1]
	for _, word := range words[1:] {
		if strings.EqualFold(trimPunct(word), trimPunct(kept[len(kept)-1])) && trimPunct(word) != "" && !hasTrailingPunct(kept[len(kept)-1]) {
			kept[len(kept)-1] = word
			continue
		}
		kept = append(kept, word)
	}
	if len(kept) == len(words) {
		return input, false
	}
	return strings.Join(kept, " "), true
}

// spacingRule trims and collapses whitespace and removes space before punctuation.
type spacingRule struct{}

var spaceBeforePunct = regexp.MustCompile(`\s+([,.!?;:])`)

func (spacingRule) Apply(input string) (string, bool) {
	output := strings.Join(strings.Fields(input), " ")
	output = spaceBeforePunct.ReplaceAllString(output, "$1")
	return output, output != input
}

func readDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var builder strings.Builder
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		switch {
		case escaped:
			escaped = false
		case char == '\\':
			escaped = true
		case char == delim:
			return builder.String(), index + 1, nil
		}
		builder.WriteByte(char)
	}
	return "", 0, errors.New("unterminated expression")
}

func trimPunct(word string) string {
	return strings.TrimFunc(word, func(r rune) bool {
		return strings.ContainsRune(",.!?;:\"'", r)
	})
}

func hasTrailingPunct(word string) bool {
	return word != "" && strings.ContainsRune(",.!?;:", rune(word[len(word)-1]))
}

func isWordOrSpace(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == ' ' || char == '\t'
}
