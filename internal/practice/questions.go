package practice

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultQuestions are asked when no question file is configured.
var DefaultQuestions = []string{
	"Tell me about yourself and your professional background.",
	"Describe a time when you had to work with a difficult team member.",
	"How do you handle stress and pressure in the workplace?",
	"What are your greatest strengths and how do they help in your work?",
	"Describe a situation where you had to communicate complex information to someone.",
}

type questionFile struct {
	Questions []string `yaml:"questions"`
}

// QuestionBank hands out practice questions.
type QuestionBank struct {
	questions []string

	mu   sync.Mutex
	rand *rand.Rand
}

func NewQuestionBank(questions []string, seed uint64) *QuestionBank {
	cleaned := make([]string, 0, len(questions))
	for _, q := range questions {
		if q = strings.TrimSpace(q); q != "" {
			cleaned = append(cleaned, q)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, DefaultQuestions...)
	}
	return &QuestionBank{questions: cleaned, rand: rand.New(rand.NewPCG(seed, seed>>1|1))}
}

// LoadQuestions reads a YAML file with a top-level questions list. An empty
// path or a missing file yields the default questions.
func LoadQuestions(path string, seed uint64) (*QuestionBank, error) {
	if strings.TrimSpace(path) == "" {
		return NewQuestionBank(nil, seed), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewQuestionBank(nil, seed), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read questions %s: %w", path, err)
	}

	var file questionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse questions %s: %w", path, err)
	}
	return NewQuestionBank(file.Questions, seed), nil
}

func (b *QuestionBank) Random() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.questions[b.rand.IntN(len(b.questions))]
}

func (b *QuestionBank) All() []string {
	return append([]string(nil), b.questions...)
}
