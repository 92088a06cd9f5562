package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func renderResult(w io.Writer, result domain.QuestionResult) {
	table := newTable(w, "Category", "Score")
	table.Append([]string{"Clarity", score(result.Results.Clarity)})
	table.Append([]string{"Confidence", score(result.Results.Confidence)})
	table.Append([]string{"Tone", score(result.Results.Tone)})
	table.SetFooter([]string{"Overall", score(result.Results.Overall())})
	table.Render()

	if result.Results.Fallback {
		fmt.Fprintln(w, "\n(evaluation service unavailable, scores are estimates)")
	}
	if result.Results.Feedback != "" {
		fmt.Fprintf(w, "\nFeedback: %s\n", result.Results.Feedback)
	}
	if result.Results.ImprovedAnswer != "" && result.Results.ImprovedAnswer != result.Response {
		fmt.Fprintf(w, "Improved answer: %s\n", result.Results.ImprovedAnswer)
	}
	if len(result.Fillers) > 0 {
		fmt.Fprintf(w, "Fillers: %s\n", fillers(result.Fillers))
	}
}

func renderReport(w io.Writer, report domain.Report) {
	table := newTable(w, "#", "Question", "Clarity", "Confidence", "Tone", "Overall")
	for i, q := range report.Questions {
		table.Append([]string{
			fmt.Sprint(i + 1),
			truncate(q.Question, 48),
			score(q.Results.Clarity),
			score(q.Results.Confidence),
			score(q.Results.Tone),
			score(q.Overall),
		})
	}
	table.SetFooter([]string{
		"", "Average",
		score(report.Averages.Clarity),
		score(report.Averages.Confidence),
		score(report.Averages.Tone),
		score(report.Overall),
	})
	table.Render()

	fmt.Fprintf(w, "\nBest answer: %s   Improvement: %+.1f\n", score(report.Best), report.Improvement)
}

func score(v float64) string {
	return fmt.Sprintf("%.1f", v)
}

func fillers(usage []domain.FillerUsage) string {
	parts := make([]string, 0, len(usage))
	for _, u := range usage {
		parts = append(parts, fmt.Sprintf("%q x%d", u.Phrase, u.Count))
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
