package domain

import (
	"math"
	"time"
)

// Evaluation is the scored feedback for one answer.
type Evaluation struct {
	Clarity        float64 `json:"clarity"`
	Confidence     float64 `json:"confidence"`
	Tone           float64 `json:"tone"`
	Feedback       string  `json:"feedback"`
	ImprovedAnswer string  `json:"improvedAnswer"`
	Fallback       bool    `json:"fallback,omitempty"`
}

// Overall returns the mean of the three scores rounded to one decimal.
func (e Evaluation) Overall() float64 {
	return RoundTenth((e.Clarity + e.Confidence + e.Tone) / 3)
}

// FillerUsage counts one filler phrase found in an answer.
type FillerUsage struct {
	Phrase string `json:"phrase"`
	Count  int    `json:"count"`
}

// QuestionResult pairs a practice question with the answer and its scores.
type QuestionResult struct {
	Question string        `json:"question"`
	Response string        `json:"response"`
	Results  Evaluation    `json:"results"`
	Fillers  []FillerUsage `json:"fillers,omitempty"`
	// Overall is filled in when the result is reported.
	Overall float64 `json:"overall,omitempty"`
}

// PracticeSession is the ephemeral hand-off record between practice and results.
type PracticeSession struct {
	QuestionsAndResponses []QuestionResult `json:"questionsAndResponses"`
	Timestamp             time.Time        `json:"timestamp"`
}

// ScoreAverages holds per-category means.
type ScoreAverages struct {
	Clarity    float64 `json:"clarity"`
	Confidence float64 `json:"confidence"`
	Tone       float64 `json:"tone"`
}

// Report summarizes a practice session.
type Report struct {
	ID        string           `json:"id"`
	Questions []QuestionResult `json:"questions"`
	Averages  ScoreAverages    `json:"averages"`
	Overall   float64          `json:"overall"`
	// Best is the highest per-question overall score.
	Best float64 `json:"best"`
	// Improvement is the last question's overall minus the first's.
	Improvement float64   `json:"improvement"`
	Timestamp   time.Time `json:"timestamp"`
}

// Aggregate computes per-category means and the overall score, each rounded to one decimal.
func Aggregate(results []QuestionResult) (ScoreAverages, float64) {
	if len(results) == 0 {
		return ScoreAverages{}, 0
	}
	var total ScoreAverages
	for _, result := range results {
		total.Clarity += result.Results.Clarity
		total.Confidence += result.Results.Confidence
		total.Tone += result.Results.Tone
	}
	n := float64(len(results))
	avg := ScoreAverages{
		Clarity:    RoundTenth(total.Clarity / n),
		Confidence: RoundTenth(total.Confidence / n),
		Tone:       RoundTenth(total.Tone / n),
	}
	return avg, RoundTenth((avg.Clarity + avg.Confidence + avg.Tone) / 3)
}

// Progress returns the best per-question overall and the change from the
// first to the last question.
func Progress(results []QuestionResult) (best float64, improvement float64) {
	if len(results) == 0 {
		return 0, 0
	}
	for _, result := range results {
		best = max(best, result.Results.Overall())
	}
	first := results[0].Results.Overall()
	last := results[len(results)-1].Results.Overall()
	return best, RoundTenth(last - first)
}

// RoundTenth rounds to one decimal place.
func RoundTenth(value float64) float64 {
	return math.Round(value*10) / 10
}
